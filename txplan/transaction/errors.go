package transaction

import "errors"

// Operations reported in Error.Op.
const (
	OpBegin             = "begin"
	OpCommit            = "commit"
	OpRollback          = "rollback"
	OpJoin              = "join"
	OpSavepoint         = "savepoint"
	OpRollbackSavepoint = "rollback_savepoint"
	OpReleaseSavepoint  = "release_savepoint"
	OpExecute           = "execute"
)

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context is nil")
	// ErrNilConnector is returned by NewManager without a connector.
	ErrNilConnector = errors.New("transaction connector is required")
	// ErrNilCallback is returned by Do without a callback.
	ErrNilCallback = errors.New("transaction callback is required")
	// ErrNilDB is returned by NewSQLConnector without a pool.
	ErrNilDB = errors.New("database handle is required")
	// ErrNilProvider is returned by NewResolverConnector without a provider.
	ErrNilProvider = errors.New("resolver provider is required")
	// ErrNoPrimaryDB is returned when the resolver has no primary pool.
	ErrNoPrimaryDB = errors.New("no primary database configured")
	// ErrInvalidPropagation is returned for an unknown propagation mode.
	ErrInvalidPropagation = errors.New("invalid propagation")
	// ErrInvalidSavepoint is returned for savepoint names that are not plain identifiers.
	ErrInvalidSavepoint = errors.New("invalid savepoint name")
	// ErrRollbackOnly is reported when a joined scope failed and its owner had to roll back.
	ErrRollbackOnly = errors.New("transaction marked rollback-only")
	// ErrScopeSuspended is returned when a suspended scope is used.
	ErrScopeSuspended = errors.New("transaction scope is suspended")
	// ErrScopeClosed is returned when a finished scope is used.
	ErrScopeClosed = errors.New("transaction scope is closed")
)

// Error is a transaction-level failure not attributable to a single step:
// begin, commit or rollback failures, cancellation and rollback-only outcomes.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "transaction " + e.Op + " failed"
	}

	return "transaction " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
