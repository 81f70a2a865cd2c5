package zbatch

import (
	"context"
	"fmt"
	"maps"

	"github.com/rs/zerolog"
)

// fromAlias carries the join table's owner key alongside target columns in
// the many-to-many join query. It is removed before rows are returned.
const fromAlias = "zbatch_from"

// Batcher resolves many-to-many and generic relations for whole collections
// of already-fetched records with one bulk query per relation.
type Batcher struct {
	store       Store
	registry    *Registry
	logger      zerolog.Logger
	stats       *Stats
	observer    Observer
	maxInClause int
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithLogger sets the logger. Queries are logged at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Batcher) {
		b.logger = l
	}
}

// WithObserver adds an observer next to the built-in Stats.
func WithObserver(o Observer) Option {
	return func(b *Batcher) {
		if o != nil {
			b.observer = append(b.observer.(multiObserver), o)
		}
	}
}

// WithMaxInClause caps the number of ids bound into one IN list. Larger
// batches are split into several queries. Zero means no cap.
func WithMaxInClause(n int) Option {
	return func(b *Batcher) {
		b.maxInClause = n
	}
}

// New creates a Batcher reading through store and resolving relations
// against registry.
func New(store Store, registry *Registry, opts ...Option) (*Batcher, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidConfig)
	}

	stats := &Stats{}
	b := &Batcher{
		store:    store,
		registry: registry,
		logger:   zerolog.Nop(),
		stats:    stats,
		observer: multiObserver{stats},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Registry returns the registry the batcher resolves against.
func (b *Batcher) Registry() *Registry {
	return b.registry
}

// Stats returns the batcher's counters.
func (b *Batcher) Stats() StatsSnapshot {
	return b.stats.Snapshot()
}

// BatchManyToMany groups the related records of a many-to-many relation by
// owner id. With no fields, each list holds target rows. With fields, each
// list holds join rows exposing the from and to keys, the join key when
// declared, and the requested join columns.
//
// The relation is resolved before any query is issued. Every distinct id
// in primaryIDs is present in the result; ids without matches map to an
// empty list.
func (b *Batcher) BatchManyToMany(ctx context.Context, owner string, primaryIDs []any, relation string, fields ...string) (ResultMap, error) {
	d, err := b.resolve(owner, relation, RelationManyToMany)
	if err != nil {
		return nil, err
	}
	target, err := b.registry.Entity(d.Target)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := ValidateIdentifier(f); err != nil {
			return nil, configError(owner, relation, err)
		}
	}

	ids, keys := distinctIDs(primaryIDs)
	result := newResultMap(keys)
	if len(ids) == 0 {
		return result, nil
	}

	var build func(chunk []any) Query
	groupColumn := d.FromColumn

	if len(fields) == 0 {
		groupColumn = fromAlias
		build = func(chunk []any) Query {
			return Query{
				Table: target.Table,
				Alias: "t",
				Columns: []Column{
					{Name: "t.*"},
					{Name: "j." + d.FromColumn, As: fromAlias},
				},
				Join: &Join{
					Table: d.Through,
					Alias: "j",
					Left:  "j." + d.ToColumn,
					Right: "t." + target.PrimaryKey,
				},
				Where:   []Condition{In("j."+d.FromColumn, chunk)},
				OrderBy: []string{"j." + d.FromColumn, "j." + d.orderTiebreak()},
			}
		}
	} else {
		columns := joinColumns(d, fields)
		orderBy := append([]string{d.FromColumn}, fields...)
		orderBy = append(orderBy, d.orderTiebreak())
		build = func(chunk []any) Query {
			return Query{
				Table:   d.Through,
				Columns: columns,
				Where:   []Condition{In(d.FromColumn, chunk)},
				OrderBy: orderBy,
			}
		}
	}

	rows, err := b.fetch(ctx, OpManyToMany, d, ids, build)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		key := KeyOf(row[groupColumn])
		list, ok := result[key]
		if !ok {
			continue
		}
		if len(fields) == 0 {
			delete(row, fromAlias)
		}
		result[key] = append(list, row)
	}

	return result, nil
}

// BatchGeneric groups the rows of a generic relation's target table by the
// owner id they point at. Only rows tagged with the owner's type tag are
// considered: the declared tag and every alias mapped onto the owner.
func (b *Batcher) BatchGeneric(ctx context.Context, owner string, primaryIDs []any, relation string) (ResultMap, error) {
	d, err := b.resolve(owner, relation, RelationGeneric)
	if err != nil {
		return nil, err
	}
	target, err := b.registry.Entity(d.Target)
	if err != nil {
		return nil, err
	}
	tags, err := b.registry.TypeTags(owner)
	if err != nil {
		return nil, err
	}
	tagCond := In(d.TypeColumn, tags)
	if len(tags) == 1 {
		tagCond = Eq(d.TypeColumn, tags[0])
	}

	ids, keys := distinctIDs(primaryIDs)
	result := newResultMap(keys)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := b.fetch(ctx, OpGeneric, d, ids, func(chunk []any) Query {
		return Query{
			Table: target.Table,
			Where: []Condition{
				tagCond,
				In(d.IDColumn, chunk),
			},
			OrderBy: []string{d.IDColumn, target.PrimaryKey},
		}
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		key := KeyOf(row[d.IDColumn])
		if list, ok := result[key]; ok {
			result[key] = append(list, row)
		}
	}

	return result, nil
}

func (b *Batcher) resolve(owner, relation string, kind RelationKind) (RelationDescriptor, error) {
	d, err := b.registry.Relation(owner, relation)
	if err != nil {
		return RelationDescriptor{}, err
	}
	if d.Kind != kind {
		return RelationDescriptor{}, configError(owner, relation,
			fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidRelation, relation, d.Kind, kind))
	}
	return d, nil
}

// fetch runs one query per chunk of ids and concatenates the rows.
func (b *Batcher) fetch(ctx context.Context, op Operation, d RelationDescriptor, ids []any, build func([]any) Query) ([]Row, error) {
	label := d.Owner + "." + d.Name

	var all []Row
	for _, chunk := range chunkIDs(ids, b.maxInClause) {
		q := build(chunk)
		b.observer.QueryIssued(op, label)

		rows, err := b.store.Select(ctx, q)
		if err != nil {
			return nil, err
		}

		b.observer.RowsFetched(op, label, len(rows))
		b.logger.Debug().
			Str("operation", string(op)).
			Str("relation", label).
			Str("table", q.Table).
			Int("ids", len(chunk)).
			Int("rows", len(rows)).
			Msg("bulk query")

		all = append(all, rows...)
	}
	return all, nil
}

// loadByIDs runs one LoadByIDs per chunk of ids against entity e.
func (b *Batcher) loadByIDs(ctx context.Context, op Operation, relation string, e EntityType, ids []any) (map[string]Row, error) {
	out := make(map[string]Row, len(ids))
	for _, chunk := range chunkIDs(ids, b.maxInClause) {
		b.observer.QueryIssued(op, relation)

		loaded, err := b.store.LoadByIDs(ctx, e.Table, e.PrimaryKey, chunk)
		if err != nil {
			return nil, err
		}

		b.observer.RowsFetched(op, relation, len(loaded))
		b.logger.Debug().
			Str("operation", string(op)).
			Str("relation", relation).
			Str("table", e.Table).
			Int("ids", len(chunk)).
			Int("rows", len(loaded)).
			Msg("bulk load by ids")

		maps.Copy(out, loaded)
	}
	return out, nil
}

// joinColumns selects the join keys plus requested fields, without repeats.
func joinColumns(d RelationDescriptor, fields []string) []Column {
	names := []string{d.FromColumn, d.ToColumn}
	if d.ThroughKey != "" {
		names = append(names, d.ThroughKey)
	}
	names = append(names, fields...)

	seen := make(map[string]struct{}, len(names))
	columns := make([]Column, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		columns = append(columns, Column{Name: n})
	}
	return columns
}
