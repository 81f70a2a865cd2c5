package zbatch

import (
	"context"
	"fmt"
	"regexp"
)

// Row is one fetched row keyed by column name.
type Row map[string]any

// Store is the relational store the batcher reads through. Implementations
// exist for database/sql (SQLStore) and bun (BunStore).
type Store interface {
	// Select runs a single bulk query and returns its rows in ORDER BY order.
	Select(ctx context.Context, q Query) ([]Row, error)

	// LoadByIDs fetches rows of table whose key column is in ids, indexed
	// by KeyOf(key value). Ids with no row are simply absent.
	LoadByIDs(ctx context.Context, table, key string, ids []any) (map[string]Row, error)
}

// Query describes one SELECT. Table, column and alias names must be plain
// identifiers; values are always bound as arguments.
type Query struct {
	Table   string
	Alias   string
	Columns []Column // empty selects *
	Join    *Join
	Where   []Condition // joined with AND
	OrderBy []string    // ascending
}

// Column is a selected column, optionally qualified ("t.id", "t.*") and aliased.
type Column struct {
	Name string
	As   string
}

// Join is an inner join: JOIN Table AS Alias ON Left = Right.
type Join struct {
	Table string
	Alias string
	Left  string
	Right string
}

// Condition is an equality or IN filter on one column.
type Condition struct {
	Column string
	In     bool
	Value  any   // for equality
	Values []any // for IN
}

// Eq builds a "column = value" condition.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Value: value}
}

// In builds a "column IN (values...)" condition. An empty list matches nothing.
func In(column string, values []any) Condition {
	return Condition{Column: column, In: true, Values: values}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?$`)

// ValidateIdentifier rejects anything but a plain or table-qualified
// identifier, so names can be written into SQL without quoting.
func ValidateIdentifier(name string) error {
	if name == "*" || identifierPattern.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
}

// Validate checks every identifier the query would write into SQL.
func (q Query) Validate() error {
	idents := []string{q.Table}
	if q.Alias != "" {
		idents = append(idents, q.Alias)
	}
	for _, c := range q.Columns {
		idents = append(idents, c.Name)
		if c.As != "" {
			idents = append(idents, c.As)
		}
	}
	if q.Join != nil {
		idents = append(idents, q.Join.Table, q.Join.Left, q.Join.Right)
		if q.Join.Alias != "" {
			idents = append(idents, q.Join.Alias)
		}
	}
	for _, w := range q.Where {
		idents = append(idents, w.Column)
	}
	idents = append(idents, q.OrderBy...)

	for _, ident := range idents {
		if err := ValidateIdentifier(ident); err != nil {
			return err
		}
	}
	return nil
}

// normalizeValue turns driver byte slices into strings so rows compare and
// print the same regardless of driver.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
