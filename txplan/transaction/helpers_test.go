//go:build unit

package transaction

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var errFakeQuery = errors.New("fake tx does not return rows")

type fakeTx struct {
	mu           sync.Mutex
	statements   []string
	commitErr    error
	rollbackErr  error
	savepointErr error
	rbSpErr      error
}

func (f *fakeTx) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statements = append(f.statements, s)
}

func (f *fakeTx) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.statements))
	copy(out, f.statements)

	return out
}

func (f *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.record(query)

	return driver.RowsAffected(1), nil
}

func (f *fakeTx) QueryContext(_ context.Context, query string, _ ...any) (*sql.Rows, error) {
	f.record(query)

	return nil, errFakeQuery
}

func (f *fakeTx) Commit() error {
	f.record("COMMIT")

	return f.commitErr
}

func (f *fakeTx) Rollback() error {
	f.record("ROLLBACK")

	return f.rollbackErr
}

func (f *fakeTx) Savepoint(_ context.Context, name string) error {
	f.record("SAVEPOINT " + name)

	return f.savepointErr
}

func (f *fakeTx) RollbackToSavepoint(_ context.Context, name string) error {
	f.record("ROLLBACK TO SAVEPOINT " + name)

	return f.rbSpErr
}

func (f *fakeTx) ReleaseSavepoint(_ context.Context, name string) error {
	f.record("RELEASE SAVEPOINT " + name)

	return nil
}

type fakeConnector struct {
	mu       sync.Mutex
	txs      []*fakeTx
	beginErr error
	prepare  func(*fakeTx)
}

func (c *fakeConnector) Begin(context.Context, *sql.TxOptions) (Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}

	tx := &fakeTx{}
	if c.prepare != nil {
		c.prepare(tx)
	}

	c.mu.Lock()
	c.txs = append(c.txs, tx)
	c.mu.Unlock()

	return tx, nil
}

func (c *fakeConnector) begun() []*fakeTx {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*fakeTx(nil), c.txs...)
}

func newFakeManager(t *testing.T, opts ...Option) (*Manager, *fakeConnector) {
	t.Helper()

	connector := &fakeConnector{}

	m, err := NewManager(connector, opts...)
	require.NoError(t, err)

	return m, connector
}

// openSQLite returns a file-backed database so independent transactions see each other's commits.
func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "txplan.db")+"?_busy_timeout=5000")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`)
	require.NoError(t, err)

	return db
}

func countAccounts(t *testing.T, db *sql.DB) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM accounts").Scan(&n))

	return n
}

func insertAccount(ctx context.Context, q Querier, name string) error {
	_, err := q.ExecContext(ctx, "INSERT INTO accounts (name) VALUES (?)", name)

	return err
}
