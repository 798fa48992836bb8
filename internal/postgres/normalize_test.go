package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "literals replaced",
			in:   "SELECT * FROM users WHERE id = 42 AND email = 'x@y.com'",
			want: "SELECT * FROM users WHERE id = ? AND email = ?",
		},
		{
			name: "whitespace collapsed",
			in:   "SELECT  *\n\tFROM users\n  WHERE active",
			want: "SELECT * FROM users WHERE active",
		},
		{
			name: "doubled quote escape inside literal",
			in:   "SELECT 1 FROM t WHERE name = 'O''Brien'",
			want: "SELECT ? FROM t WHERE name = ?",
		},
		{
			name: "integer inside identifier untouched",
			in:   "SELECT col2 FROM t2 WHERE x = 3",
			want: "SELECT col2 FROM t2 WHERE x = ?",
		},
		{
			name: "multiple literals",
			in:   "INSERT INTO logs (lvl, msg) VALUES (3, 'boom'), (4, 'bang')",
			want: "INSERT INTO logs (lvl, msg) VALUES (?, ?), (?, ?)",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "unterminated literal does not panic",
			in:   "SELECT 1 FROM t WHERE name = 'unfinished",
			want: "SELECT ? FROM t WHERE name = 'unfinished",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.in))
		})
	}
}

// Normalization must be a fixpoint: running it twice never changes the
// result again.
func TestNormalizeQueryIdempotent(t *testing.T) {
	queries := []string{
		"SELECT * FROM users WHERE id = 42 AND email = 'x@y.com'",
		"  UPDATE t SET  a = 'a''b' WHERE n = 100  ",
		"select 1",
		"",
		"garbage ' 123 '' 456",
	}
	for _, q := range queries {
		once := NormalizeQuery(q)
		assert.Equal(t, once, NormalizeQuery(once), "query %q", q)
	}
}
