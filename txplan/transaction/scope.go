package transaction

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// ScopeState is the state of the ambient scope carried by a context.
type ScopeState int32

const (
	// StateNone means no scope is carried by the context.
	StateNone ScopeState = iota
	// StateActive means the scope accepts statements.
	StateActive
	// StateSuspended means a RequiresNew scope is running in its place.
	StateSuspended
	// StateSavepointScoped means a Nested scope is running inside it under a savepoint.
	StateSavepointScoped
	// StateClosed means the scope committed or rolled back.
	StateClosed
)

func (s ScopeState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	case StateSavepointScoped:
		return "savepoint-scoped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type scopeKey struct {
	manager *Manager
}

// scope is one propagation unit. Joined Required callers share the scope they join;
// Nested callers get a child scope that shares the parent's Tx.
type scope struct {
	tx           Tx
	parent       *scope
	savepoint    string
	propagation  Propagation
	state        atomic.Int32
	rollbackOnly atomic.Bool
}

func newScope(tx Tx, parent *scope, savepoint string, propagation Propagation) *scope {
	s := &scope{
		tx:          tx,
		parent:      parent,
		savepoint:   savepoint,
		propagation: propagation,
	}
	s.state.Store(int32(StateActive))

	return s
}

func (s *scope) current() ScopeState {
	return ScopeState(s.state.Load())
}

// enter moves the scope into state and returns a func restoring the previous one.
func (s *scope) enter(state ScopeState) func() {
	previous := s.state.Swap(int32(state))

	return func() {
		s.state.CompareAndSwap(int32(state), previous)
	}
}

// suspend moves this scope and every enclosing scope sharing its Tx into StateSuspended.
// The returned func restores them innermost last.
func (s *scope) suspend() func() {
	var resumes []func()

	for cur := s; cur != nil; cur = cur.parent {
		resumes = append(resumes, cur.enter(StateSuspended))
	}

	return func() {
		for i := len(resumes) - 1; i >= 0; i-- {
			resumes[i]()
		}
	}
}

func (s *scope) close() {
	s.state.Store(int32(StateClosed))
}

// usable fails when this scope or any enclosing scope is suspended or closed.
func (s *scope) usable() error {
	for cur := s; cur != nil; cur = cur.parent {
		switch cur.current() {
		case StateClosed:
			return ErrScopeClosed
		case StateSuspended:
			return ErrScopeSuspended
		}
	}

	return nil
}

func (s *scope) bind(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, scopeKey{manager: m}, s)
}

func scopeFrom(ctx context.Context, m *Manager) *scope {
	s, _ := ctx.Value(scopeKey{manager: m}).(*scope)

	return s
}

// scopedQuerier refuses statements once its scope is suspended or closed, so a
// Querier captured by a callback cannot leak work into the wrong transaction.
type scopedQuerier struct {
	scope *scope
}

func (q scopedQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := q.scope.usable(); err != nil {
		return nil, err
	}

	return q.scope.tx.ExecContext(ctx, query, args...)
}

func (q scopedQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := q.scope.usable(); err != nil {
		return nil, err
	}

	return q.scope.tx.QueryContext(ctx, query, args...)
}
