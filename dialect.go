package zbatch

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences the store cares about.
type Dialect struct {
	DriverName                string
	PlaceholderChar           string
	IncludeIndexInPlaceholder bool
}

// Dialects lists the built-in dialects.
var Dialects = &struct {
	MySQL      *Dialect
	PostgreSQL *Dialect
	SQLite3    *Dialect
}{
	MySQL: &Dialect{
		DriverName:                "mysql",
		PlaceholderChar:           "?",
		IncludeIndexInPlaceholder: false,
	},

	PostgreSQL: &Dialect{
		DriverName:                "postgres",
		PlaceholderChar:           "$",
		IncludeIndexInPlaceholder: true,
	},

	SQLite3: &Dialect{
		DriverName:                "sqlite3",
		PlaceholderChar:           "?",
		IncludeIndexInPlaceholder: false,
	},
}

// DialectFor returns the dialect matching a database/sql driver name.
// Unknown drivers fall back to "?" placeholders.
func DialectFor(driver string) *Dialect {
	switch driver {
	case "postgres", "pgx", "pgx/v5":
		return Dialects.PostgreSQL
	case "mysql":
		return Dialects.MySQL
	default:
		return Dialects.SQLite3
	}
}

// Rebind rewrites "?" placeholders into the dialect's form, leaving
// question marks inside single-quoted literals alone.
func (d *Dialect) Rebind(query string) string {
	if d == nil || !d.IncludeIndexInPlaceholder {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			sb.WriteString(d.PlaceholderChar)
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func questionMarks(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
