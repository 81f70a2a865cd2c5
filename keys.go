package zbatch

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"
)

// KeyOf normalizes an identifier into the string used to group rows.
// Drivers hand back the same logical id as int, int64, []byte or string
// depending on the column type and protocol, so grouping never compares the
// raw values: 7, int64(7), "7" and []byte("7") all share one key.
func KeyOf(id any) string {
	if isNilID(id) {
		return ""
	}

	switch v := id.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}

	// Handle pointers (nullable ids)
	if val := reflect.ValueOf(id); val.Kind() == reflect.Pointer {
		return KeyOf(val.Elem().Interface())
	}

	// Fallback to string formatting
	return fmt.Sprintf("%v", id)
}

// isNilID reports whether id carries no value, including typed nil pointers.
func isNilID(id any) bool {
	if id == nil {
		return true
	}
	val := reflect.ValueOf(id)
	return val.Kind() == reflect.Pointer && val.IsNil()
}

// distinctIDs drops nil and duplicate ids, keeping first-occurrence order.
// It returns the surviving ids and their keys index-aligned.
func distinctIDs(ids []any) ([]any, []string) {
	out := make([]any, 0, len(ids))
	keys := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if isNilID(id) {
			continue
		}
		key := KeyOf(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
		keys = append(keys, key)
	}

	return out, keys
}

// chunkIDs splits ids into slices of at most size values. A size <= 0
// yields a single chunk.
func chunkIDs(ids []any, size int) [][]any {
	if size <= 0 || len(ids) <= size {
		return [][]any{ids}
	}

	chunks := make([][]any, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
