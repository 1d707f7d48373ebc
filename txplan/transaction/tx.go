package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var savepointPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// Querier runs statements inside a transaction scope.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx is a live transaction with savepoint support.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Connector begins independent transactions.
type Connector interface {
	Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

// rawTx is satisfied by *sql.Tx and dbresolver.Tx.
type rawTx interface {
	Querier
	Commit() error
	Rollback() error
}

// sqlTx adds SQL savepoint statements to a database/sql style transaction.
type sqlTx struct {
	rawTx
}

func (t *sqlTx) Savepoint(ctx context.Context, name string) error {
	return t.savepointStatement(ctx, "SAVEPOINT ", name)
}

func (t *sqlTx) RollbackToSavepoint(ctx context.Context, name string) error {
	return t.savepointStatement(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

func (t *sqlTx) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointStatement(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *sqlTx) savepointStatement(ctx context.Context, statement, name string) error {
	if !savepointPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSavepoint, name)
	}

	if _, err := t.ExecContext(ctx, statement+name); err != nil {
		return fmt.Errorf("%s%s: %w", statement, name, err)
	}

	return nil
}
