package zbatch

import "testing"

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple",
			input:    "SELECT * FROM users WHERE id = ?",
			expected: "SELECT * FROM users WHERE id = $1",
		},
		{
			name:     "Multiple",
			input:    "SELECT * FROM users WHERE name = ? AND age > ?",
			expected: "SELECT * FROM users WHERE name = $1 AND age > $2",
		},
		{
			name:     "Inside Quotes",
			input:    "SELECT * FROM users WHERE name = 'Question?' AND age = ?",
			expected: "SELECT * FROM users WHERE name = 'Question?' AND age = $1",
		},
		{
			name:     "IN list",
			input:    "SELECT * FROM tags WHERE id IN (?,?,?)",
			expected: "SELECT * FROM tags WHERE id IN ($1,$2,$3)",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dialects.PostgreSQL.Rebind(tt.input)
			if got != tt.expected {
				t.Errorf("Rebind() = %q, want %q", got, tt.expected)
			}
			if got := Dialects.MySQL.Rebind(tt.input); got != tt.input {
				t.Errorf("MySQL Rebind() changed the query: %q", got)
			}
		})
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]*Dialect{
		"pgx":      Dialects.PostgreSQL,
		"postgres": Dialects.PostgreSQL,
		"mysql":    Dialects.MySQL,
		"sqlite3":  Dialects.SQLite3,
		"unknown":  Dialects.SQLite3,
	}
	for driver, want := range tests {
		if got := DialectFor(driver); got != want {
			t.Errorf("DialectFor(%q) = %s, want %s", driver, got.DriverName, want.DriverName)
		}
	}
}

func TestQuestionMarks(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?,?,?"}
	for n, want := range tests {
		if got := questionMarks(n); got != want {
			t.Errorf("questionMarks(%d) = %q, want %q", n, got, want)
		}
	}
}
