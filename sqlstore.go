package zbatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db       Queryer
	dialect  *Dialect
	resolver *DBResolver
	stmts    *stmtCache

	// ownsReplicas is set by OpenStore, which opened the resolver's replicas.
	ownsReplicas bool
}

// SQLStoreOption configures an SQLStore.
type SQLStoreOption func(*SQLStore)

// WithResolver routes reads through a primary/replica resolver instead of
// the Queryer given to NewSQLStore. The caller keeps ownership of its
// connections.
func WithResolver(r *DBResolver) SQLStoreOption {
	return func(s *SQLStore) {
		s.resolver = r
	}
}

// WithStatementCache keeps up to capacity prepared statements per store.
// Only reads issued on a *sql.DB are prepared; transactions and connections
// query directly.
func WithStatementCache(capacity int) SQLStoreOption {
	return func(s *SQLStore) {
		s.stmts = newStmtCache(capacity)
	}
}

// NewSQLStore creates a store reading through db. A nil dialect means "?"
// placeholders.
func NewSQLStore(db Queryer, dialect *Dialect, opts ...SQLStoreOption) *SQLStore {
	if dialect == nil {
		dialect = Dialects.SQLite3
	}
	s := &SQLStore{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// queryer returns the replica chosen by the resolver when one is configured,
// otherwise the store's own connection.
func (s *SQLStore) queryer() Queryer {
	if s.resolver != nil {
		if db := s.resolver.Reader(); db != nil {
			return db
		}
	}
	return s.db
}

// Select executes the query and returns its rows.
func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args := s.buildSelectQuery(q)
	rows, release, err := s.query(ctx, query, args)
	if err != nil {
		return nil, WrapQueryError("SELECT", query, args, err)
	}
	defer release()
	defer rows.Close()

	result, err := scanRowMaps(rows)
	if err != nil {
		return nil, WrapQueryError("SELECT", query, args, err)
	}
	return result, nil
}

// query runs query on the chosen connection, through a cached prepared
// statement when the store has a statement cache.
func (s *SQLStore) query(ctx context.Context, query string, args []any) (*sql.Rows, func(), error) {
	q := s.queryer()

	db, ok := q.(*sql.DB)
	if s.stmts == nil || !ok {
		rows, err := q.QueryContext(ctx, query, args...)
		return rows, func() {}, err
	}

	key := fmt.Sprintf("%p|%s", db, query)
	stmt, release, err := s.stmts.acquire(key, func() (*sql.Stmt, error) {
		return db.PrepareContext(ctx, query)
	})
	if err != nil {
		return nil, nil, err
	}

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return rows, release, nil
}

// StmtCacheStats reports statement cache usage. It is zero without a cache.
func (s *SQLStore) StmtCacheStats() StmtCacheStats {
	if s.stmts == nil {
		return StmtCacheStats{}
	}
	return s.stmts.stats()
}

// Close releases cached prepared statements and the replicas OpenStore
// opened. The primary connection is left open.
func (s *SQLStore) Close() error {
	var errs []error
	if s.stmts != nil {
		errs = append(errs, s.stmts.Close())
	}
	if s.ownsReplicas && s.resolver != nil {
		errs = append(errs, s.resolver.Close())
	}
	return errors.Join(errs...)
}

// LoadByIDs fetches the rows of table whose key is in ids.
func (s *SQLStore) LoadByIDs(ctx context.Context, table, key string, ids []any) (map[string]Row, error) {
	if len(ids) == 0 {
		return map[string]Row{}, nil
	}

	rows, err := s.Select(ctx, Query{
		Table: table,
		Where: []Condition{In(key, ids)},
	})
	if err != nil {
		return nil, err
	}
	return indexRows(rows, key), nil
}

// buildSelectQuery renders q with "?" placeholders and rebinds them for the dialect.
func (s *SQLStore) buildSelectQuery(q Query) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		sb.WriteString("*")
	}
	for i, c := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		if c.As != "" {
			sb.WriteString(" AS ")
			sb.WriteString(c.As)
		}
	}

	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)
	if q.Alias != "" {
		sb.WriteString(" AS ")
		sb.WriteString(q.Alias)
	}

	if j := q.Join; j != nil {
		sb.WriteString(" JOIN ")
		sb.WriteString(j.Table)
		if j.Alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(j.Alias)
		}
		sb.WriteString(" ON ")
		sb.WriteString(j.Left)
		sb.WriteString(" = ")
		sb.WriteString(j.Right)
	}

	for i, w := range q.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		switch {
		case !w.In:
			sb.WriteString(w.Column)
			sb.WriteString(" = ?")
			args = append(args, w.Value)
		case len(w.Values) == 0:
			sb.WriteString("1 = 0")
		default:
			sb.WriteString(w.Column)
			sb.WriteString(" IN (")
			sb.WriteString(questionMarks(len(w.Values)))
			sb.WriteString(")")
			args = append(args, w.Values...)
		}
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(q.OrderBy, ", "))
	}

	return s.dialect.Rebind(sb.String()), args
}

// scanRowMaps scans every row into a Row keyed by result column name.
func scanRowMaps(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]Row, 0, 64)

	// Reusable destination slice - content will be overwritten each row
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

func indexRows(rows []Row, key string) map[string]Row {
	out := make(map[string]Row, len(rows))
	for _, row := range rows {
		out[KeyOf(row[key])] = row
	}
	return out
}
