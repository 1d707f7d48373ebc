//go:build unit

package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/plan"
	"github.com/LerianStudio/lib-txplan/txplan/transaction"
)

func setup(t *testing.T) (*plan.Executor, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "query.db")+"?_busy_timeout=5000")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			balance NUMERIC NOT NULL DEFAULT 0,
			avatar BLOB
		);
		CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			amount NUMERIC NOT NULL
		);`)
	require.NoError(t, err)

	connector, err := transaction.NewSQLConnector(db)
	require.NoError(t, err)

	manager, err := transaction.NewManager(connector, transaction.WithLogger(log.NewNop()))
	require.NoError(t, err)

	exec, err := plan.NewExecutor(manager, plan.WithLogger(log.NewNop()))
	require.NoError(t, err)

	return exec, db
}

func sqlite(opts ...Option) []Option {
	return append([]Option{WithDialect(DialectQuestion)}, opts...)
}

func TestStatementsInPlan(t *testing.T) {
	t.Parallel()

	exec, _ := setup(t)

	p := plan.New()

	account := plan.Add[int64](p,
		Scalar("INSERT INTO accounts (name, balance, avatar) VALUES (:name, :balance, :avatar) RETURNING id", sqlite()...),
		plan.Params{"name": "alice", "balance": "12.5", "avatar": []byte{0x1, 0x2}},
	)
	p.AddStep(Exec("INSERT INTO accounts (name) VALUES (:name)", sqlite()...), plan.Params{"name": "bob"})

	credit := p.AddStep(
		Exec("INSERT INTO entries (account_id, amount) VALUES (:account_id, :amount)", sqlite()...),
		plan.Params{"account_id": account.Field(), "amount": 3},
	)

	row := p.AddStep(One("SELECT id, name, balance, avatar FROM accounts WHERE id = :id", sqlite()...),
		plan.Params{"id": account.Field()})
	all := p.AddStep(All("SELECT name FROM accounts ORDER BY name", sqlite()...), nil)
	names := p.AddStep(Column("SELECT name FROM accounts ORDER BY name", sqlite()...), nil)
	missing := p.AddStep(One("SELECT * FROM accounts WHERE name = :name", sqlite()...), plan.Params{"name": "nobody"})
	none := p.AddStep(Scalar("SELECT id FROM accounts WHERE name = :name", sqlite()...), plan.Params{"name": "nobody"})

	// the spread row carries extra columns the statement does not name
	spread := p.AddStep(Scalar("SELECT name || ':' || :name FROM accounts WHERE id = :id", sqlite()...),
		plan.Params{"row": row.Row()})

	result, err := exec.Execute(context.Background(), p, transaction.Required)
	require.NoError(t, err)

	id, ok := account.Get(result)
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	stored, ok := result.Raw(credit)
	require.True(t, ok)
	assert.Equal(t, int64(1), stored.Value())

	stored, ok = result.Raw(row)
	require.True(t, ok)

	got := stored.Value().(map[string]any)
	assert.Equal(t, "alice", got["name"])
	assert.True(t, decimal.RequireFromString("12.5").Equal(got["balance"].(decimal.Decimal)))
	assert.Equal(t, []byte{0x1, 0x2}, got["avatar"])

	stored, _ = result.Raw(all)
	assert.Equal(t, []map[string]any{{"name": "alice"}, {"name": "bob"}}, stored.Value())

	stored, _ = result.Raw(names)
	assert.Equal(t, []any{"alice", "bob"}, stored.Value())

	stored, _ = result.Raw(missing)
	assert.Nil(t, stored.Value())

	stored, _ = result.Raw(none)
	assert.Nil(t, stored.Value())

	stored, _ = result.Raw(spread)
	assert.Equal(t, "alice:alice", stored.Value())
}

func TestMissingParameterFailsStep(t *testing.T) {
	t.Parallel()

	exec, db := setup(t)

	p := plan.New()
	p.AddStep(Exec("INSERT INTO accounts (name) VALUES (:name)", sqlite()...), plan.Params{"name": "alice"})
	p.AddStep(Exec("INSERT INTO accounts (name) VALUES (:nickname)", sqlite()...), plan.Params{"name": "bob"})

	_, err := exec.Execute(context.Background(), p, transaction.Required)
	require.ErrorIs(t, err, ErrMissingParam)

	var queryErr *plan.QueryError
	require.ErrorAs(t, err, &queryErr)

	var stepErr *plan.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.StepIndex)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM accounts").Scan(&n))
	assert.Zero(t, n)
}

func TestEmptyStatement(t *testing.T) {
	t.Parallel()

	exec, _ := setup(t)

	p := plan.New()
	p.AddStep(Exec("   "), nil)

	_, err := exec.Execute(context.Background(), p, transaction.Required)
	require.ErrorIs(t, err, ErrEmptyStatement)
}

func TestStatementAccessors(t *testing.T) {
	t.Parallel()

	s := All("SELECT 1")
	assert.Equal(t, plan.ShapeRowList, s.Shape())
	assert.Equal(t, "SELECT 1", s.SQL())
	assert.Equal(t, "row_list: SELECT 1", s.String())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	v, err := normalize([]byte("10.25"), "NUMERIC")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.25").Equal(v.(decimal.Decimal)))

	v, err = normalize("3", "decimal(10,2)")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(v.(decimal.Decimal)))

	v, err = normalize([]byte("hello"), "TEXT")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	v, err = normalize(nil, "NUMERIC")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = normalize([]byte("abc"), "NUMERIC")
	assert.Error(t, err)
}
