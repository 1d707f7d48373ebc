//go:build unit

package plan

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/transaction"
)

// recorder captures the parameters every step received.
type recorder struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (r *recorder) record(params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, params)
}

func (r *recorder) snapshot() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]map[string]any(nil), r.calls...)
}

// returning builds an operation that records its params and returns result.
func returning(rec *recorder, result StoredResult) Operation {
	return Func(result.Shape(), func(_ context.Context, _ transaction.Querier, params map[string]any) (StoredResult, error) {
		if rec != nil {
			rec.record(params)
		}

		return result, nil
	})
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "plan.db")+"?_busy_timeout=5000")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		total INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	return db
}

func userNames(t *testing.T, db *sql.DB) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM users ORDER BY id")
	require.NoError(t, err)

	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))

		names = append(names, name)
	}

	require.NoError(t, rows.Err())

	return names
}

func newSQLiteExecutor(t *testing.T, opts ...Option) (*Executor, *transaction.Manager, *sql.DB) {
	t.Helper()

	db := openSQLite(t)

	connector, err := transaction.NewSQLConnector(db)
	require.NoError(t, err)

	manager, err := transaction.NewManager(connector, transaction.WithLogger(log.NewNop()))
	require.NoError(t, err)

	exec, err := NewExecutor(manager, append([]Option{WithLogger(log.NewNop())}, opts...)...)
	require.NoError(t, err)

	return exec, manager, db
}

// insertUser inserts params["name"] and returns the new id as a scalar.
func insertUser() Operation {
	return Func(ShapeScalar, func(ctx context.Context, q transaction.Querier, params map[string]any) (StoredResult, error) {
		res, err := q.ExecContext(ctx, "INSERT INTO users (name) VALUES (?)", params["name"])
		if err != nil {
			return StoredResult{}, err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return StoredResult{}, err
		}

		return ScalarResult(id), nil
	})
}

// insertOrder inserts an order for params["user_id"] and returns the affected count.
func insertOrder() Operation {
	return Func(ShapeAffectedCount, func(ctx context.Context, q transaction.Querier, params map[string]any) (StoredResult, error) {
		res, err := q.ExecContext(ctx, "INSERT INTO orders (user_id, total) VALUES (?, ?)", params["user_id"], params["total"])
		if err != nil {
			return StoredResult{}, err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return StoredResult{}, err
		}

		return AffectedCount(n), nil
	})
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM "+table).Scan(&n))

	return n
}
