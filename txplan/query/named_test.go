//go:build unit

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	t.Parallel()

	params := map[string]any{"id": 7, "name": "alice", "unused": true}

	tests := []struct {
		name     string
		sql      string
		dialect  Dialect
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "dollar reuses repeated names",
			sql:      "SELECT * FROM users WHERE id = :id OR parent_id = :id AND name = :name",
			dialect:  DialectDollar,
			wantSQL:  "SELECT * FROM users WHERE id = $1 OR parent_id = $1 AND name = $2",
			wantArgs: []any{7, "alice"},
		},
		{
			name:     "question repeats arguments",
			sql:      "SELECT * FROM users WHERE id = :id OR parent_id = :id",
			dialect:  DialectQuestion,
			wantSQL:  "SELECT * FROM users WHERE id = ? OR parent_id = ?",
			wantArgs: []any{7, 7},
		},
		{
			name:     "casts and literals are untouched",
			sql:      `SELECT :id::int, ':name', "col:name", 'it''s :id' -- :name` + "\nFROM t",
			dialect:  DialectDollar,
			wantSQL:  `SELECT $1::int, ':name', "col:name", 'it''s :id' -- :name` + "\nFROM t",
			wantArgs: []any{7},
		},
		{
			name:     "block comments and dollar quotes are untouched",
			sql:      "SELECT /* :id */ $body$ :name $body$, $$ :id $$, :name",
			dialect:  DialectDollar,
			wantSQL:  "SELECT /* :id */ $body$ :name $body$, $$ :id $$, $1",
			wantArgs: []any{"alice"},
		},
		{
			name:    "positional placeholders pass through",
			sql:     "SELECT $1, ?",
			dialect: DialectDollar,
			wantSQL: "SELECT $1, ?",
		},
		{
			name:    "lone colon",
			sql:     "SELECT 'a' || : || 'b'",
			dialect: DialectDollar,
			wantSQL: "SELECT 'a' || : || 'b'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotSQL, gotArgs, err := Bind(tt.sql, params, tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestBindErrors(t *testing.T) {
	t.Parallel()

	_, _, err := Bind("SELECT :missing", map[string]any{}, DialectDollar)
	require.ErrorIs(t, err, ErrMissingParam)
	assert.Contains(t, err.Error(), "missing")

	for _, sql := range []string{"SELECT 'open", `SELECT "open`, "SELECT /* open", "SELECT $x$ open"} {
		_, _, err := Bind(sql, nil, DialectDollar)
		assert.ErrorIs(t, err, ErrUnterminated, sql)
	}
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Dialect{
		"":         DialectDollar,
		"pgx":      DialectDollar,
		"Postgres": DialectDollar,
		"sqlite3":  DialectQuestion,
		"question": DialectQuestion,
	} {
		got, err := ParseDialect(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseDialect("oracle")
	assert.ErrorIs(t, err, ErrInvalidDialect)
	assert.Equal(t, "question", DialectQuestion.String())
}
