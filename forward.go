package zbatch

import (
	"context"
	"fmt"
)

// Default columns of a forward polymorphic reference stored on a row.
const (
	DefaultForwardTypeColumn  = "content_type"
	DefaultForwardIDColumn    = "object_pk"
	DefaultForwardCacheColumn = "content_object"
)

// ForwardRef describes a polymorphic reference held by records of type R:
// a type tag naming the target entity plus the target's id. Attach stores
// the loaded target on the record.
type ForwardRef[R any] struct {
	Name    string
	TypeTag func(R) any
	ID      func(R) any
	Attach  func(R, Row)
}

// RowRef builds a ForwardRef over Row records. The tag and id are read from
// typeColumn and idColumn and the loaded target is stored under cacheColumn.
// Empty arguments take the defaults content_type, object_pk and
// content_object.
func RowRef(typeColumn, idColumn, cacheColumn string) ForwardRef[Row] {
	if typeColumn == "" {
		typeColumn = DefaultForwardTypeColumn
	}
	if idColumn == "" {
		idColumn = DefaultForwardIDColumn
	}
	if cacheColumn == "" {
		cacheColumn = DefaultForwardCacheColumn
	}

	return ForwardRef[Row]{
		Name:    cacheColumn,
		TypeTag: func(r Row) any { return r[typeColumn] },
		ID:      func(r Row) any { return r[idColumn] },
		Attach:  func(r Row, target Row) { r[cacheColumn] = target },
	}
}

type tagGroup struct {
	tag    any
	entity EntityType
	ids    []any
	seen   map[string]struct{}
}

// ResolveForward loads the targets of a forward polymorphic reference for
// every record with one query per distinct type tag and attaches them.
//
// All tags are mapped to entities before the first query; an unknown tag is
// a ConfigurationError. Records with a nil tag or id are left alone. Targets
// that no longer exist are skipped and reported as missing. The records
// slice is returned for chaining.
func ResolveForward[R any](ctx context.Context, b *Batcher, records []R, ref ForwardRef[R]) ([]R, error) {
	if ref.TypeTag == nil || ref.ID == nil || ref.Attach == nil {
		return nil, configError("", ref.Name, fmt.Errorf("%w: forward reference needs TypeTag, ID and Attach", ErrInvalidConfig))
	}
	if len(records) == 0 {
		return records, nil
	}

	groups := make(map[string]*tagGroup)
	var order []string

	for _, r := range records {
		tag, id := ref.TypeTag(r), ref.ID(r)
		if isNilID(tag) || isNilID(id) {
			continue
		}

		tk := KeyOf(tag)
		g, ok := groups[tk]
		if !ok {
			g = &tagGroup{tag: tag, seen: make(map[string]struct{})}
			groups[tk] = g
			order = append(order, tk)
		}

		ik := KeyOf(id)
		if _, dup := g.seen[ik]; dup {
			continue
		}
		g.seen[ik] = struct{}{}
		g.ids = append(g.ids, id)
	}

	for _, tk := range order {
		e, err := b.registry.EntityForTag(groups[tk].tag)
		if err != nil {
			return nil, configError(tk, ref.Name, ErrUnknownTypeTag)
		}
		groups[tk].entity = e
	}

	targets := make(map[string]map[string]Row, len(order))
	for _, tk := range order {
		g := groups[tk]
		loaded, err := b.loadByIDs(ctx, OpForward, ref.Name, g.entity, g.ids)
		if err != nil {
			return nil, err
		}
		targets[tk] = loaded
	}

	missing := make(map[string]int)
	for _, r := range records {
		tag, id := ref.TypeTag(r), ref.ID(r)
		if isNilID(tag) || isNilID(id) {
			continue
		}

		tk := KeyOf(tag)
		target, ok := targets[tk][KeyOf(id)]
		if !ok {
			missing[tk]++
			continue
		}
		ref.Attach(r, target)
	}

	for _, tk := range order {
		n := missing[tk]
		if n == 0 {
			continue
		}
		b.observer.MissingTargets(ref.Name, tk, n)
		b.logger.Debug().
			Str("relation", ref.Name).
			Str("type_tag", tk).
			Str("entity", groups[tk].entity.Name).
			Int("missing", n).
			Msg("forward targets not found")
	}

	return records, nil
}

// SelectRelatedGeneric loads the rows of entity matching where, ordered by
// primary key, and resolves their forward reference described by ref.
func (b *Batcher) SelectRelatedGeneric(ctx context.Context, entity string, ref ForwardRef[Row], where ...Condition) ([]Row, error) {
	e, err := b.registry.Entity(entity)
	if err != nil {
		return nil, err
	}

	label := entity + "." + ref.Name
	q := Query{
		Table:   e.Table,
		Where:   where,
		OrderBy: []string{e.PrimaryKey},
	}

	b.observer.QueryIssued(OpForward, label)
	rows, err := b.store.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	b.observer.RowsFetched(OpForward, label, len(rows))

	return ResolveForward(ctx, b, rows, ref)
}
