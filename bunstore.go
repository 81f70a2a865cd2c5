package zbatch

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// BunStore implements Store on top of a bun.IDB, so applications already
// built on bun can batch through their existing *bun.DB or *bun.Tx.
type BunStore struct {
	db bun.IDB
}

// NewBunStore wraps a bun database or transaction.
func NewBunStore(db bun.IDB) *BunStore {
	return &BunStore{db: db}
}

// NewBunDB wraps sqlDB with the bun dialect matching driver. Pass
// sqliteshim.ShimName, "sqlite3", "pgx", "postgres" or "mysql". When debug
// is set, every query is logged by bundebug (also toggled by BUNDEBUG).
func NewBunDB(driver string, sqlDB *sql.DB, debug bool) *bun.DB {
	var db *bun.DB
	switch driver {
	case "pgx", "pgx/v5", "postgres":
		db = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		db = bun.NewDB(sqlDB, mysqldialect.New())
	default:
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(debug),
		bundebug.FromEnv("BUNDEBUG"),
	))
	return db
}

// OpenBunSQLite opens a SQLite database through bun's sqliteshim driver,
// which picks whichever SQLite implementation is compiled in.
func OpenBunSQLite(dsn string, debug bool) (*bun.DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	return NewBunDB(sqliteshim.ShimName, sqlDB, debug), nil
}

// Select executes the query and returns its rows.
func (s *BunStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sq := s.db.NewSelect()
	if q.Alias != "" {
		sq = sq.TableExpr("? AS ?", bun.Ident(q.Table), bun.Ident(q.Alias))
	} else {
		sq = sq.TableExpr("?", bun.Ident(q.Table))
	}

	for _, c := range q.Columns {
		if c.As != "" {
			sq = sq.ColumnExpr("? AS ?", bun.Ident(c.Name), bun.Ident(c.As))
		} else {
			sq = sq.ColumnExpr("?", bun.Ident(c.Name))
		}
	}

	if j := q.Join; j != nil {
		if j.Alias != "" {
			sq = sq.Join("JOIN ? AS ? ON ? = ?", bun.Ident(j.Table), bun.Ident(j.Alias), bun.Ident(j.Left), bun.Ident(j.Right))
		} else {
			sq = sq.Join("JOIN ? ON ? = ?", bun.Ident(j.Table), bun.Ident(j.Left), bun.Ident(j.Right))
		}
	}

	for _, w := range q.Where {
		switch {
		case !w.In:
			sq = sq.Where("? = ?", bun.Ident(w.Column), w.Value)
		case len(w.Values) == 0:
			sq = sq.Where("1 = 0")
		default:
			sq = sq.Where("? IN (?)", bun.Ident(w.Column), bun.In(w.Values))
		}
	}

	for _, col := range q.OrderBy {
		sq = sq.OrderExpr("? ASC", bun.Ident(col))
	}

	var maps []map[string]interface{}
	if err := sq.Scan(ctx, &maps); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, WrapQueryError("SELECT", sq.String(), nil, err)
	}

	rows := make([]Row, len(maps))
	for i, m := range maps {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = normalizeValue(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// LoadByIDs fetches the rows of table whose key is in ids.
func (s *BunStore) LoadByIDs(ctx context.Context, table, key string, ids []any) (map[string]Row, error) {
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
