package zbatch

import "sort"

// ResultMap groups related rows by the normalized primary id they belong
// to. Every requested id has an entry, empty when nothing matched.
type ResultMap map[string][]Row

func newResultMap(keys []string) ResultMap {
	m := make(ResultMap, len(keys))
	for _, k := range keys {
		m[k] = []Row{}
	}
	return m
}

// Get returns the rows grouped under id.
func (m ResultMap) Get(id any) []Row {
	return m[KeyOf(id)]
}

// Has reports whether id was part of the batch.
func (m ResultMap) Has(id any) bool {
	_, ok := m[KeyOf(id)]
	return ok
}

// Total returns the number of rows across all groups.
func (m ResultMap) Total() int {
	n := 0
	for _, rows := range m {
		n += len(rows)
	}
	return n
}

// Keys returns the group keys in sorted order.
func (m ResultMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AttachLists hands each record the rows grouped under its id.
func AttachLists[P any](records []P, result ResultMap, id func(P) any, set func(P, []Row)) {
	for _, p := range records {
		rows, ok := result[KeyOf(id(p))]
		if !ok {
			rows = []Row{}
		}
		set(p, rows)
	}
}

// DecodeRows decodes each row into a new T.
func DecodeRows[T any](rows []Row) ([]T, error) {
	out := make([]T, len(rows))
	for i, row := range rows {
		if err := Decode(row, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AttachDecoded decodes each record's group into []R and hands it over.
func AttachDecoded[P, R any](records []P, result ResultMap, id func(P) any, set func(P, []R)) error {
	for _, p := range records {
		related, err := DecodeRows[R](result[KeyOf(id(p))])
		if err != nil {
			return err
		}
		set(p, related)
	}
	return nil
}
