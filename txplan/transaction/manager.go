package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/lib-txplan/txplan"
	constant "github.com/LerianStudio/lib-txplan/txplan/constants"
	"github.com/LerianStudio/lib-txplan/txplan/internal/nilcheck"
	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry/metrics"
	"github.com/LerianStudio/lib-txplan/txplan/runtime"
)

// Func is a callback run inside a transaction scope. The context it receives
// carries the scope, so nested Do calls and plan executions propagate from it.
type Func func(ctx context.Context, q Querier) error

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		if nilcheck.Interface(logger) {
			return
		}

		m.logger = logger
	}
}

// WithMetricsFactory sets the metrics factory. Without it the context factory is used.
func WithMetricsFactory(factory *metrics.MetricsFactory) Option {
	return func(m *Manager) {
		if factory != nil {
			m.metrics = factory
		}
	}
}

// WithTracer sets the tracer. Without it the context tracer is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if !nilcheck.Interface(tracer) {
			m.tracer = tracer
		}
	}
}

// WithTxOptions sets the isolation level and read-only flag for new transactions.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(m *Manager) {
		m.txOptions = opts
	}
}

// WithTransactionTimeout bounds new transactions whose context carries no deadline.
func WithTransactionTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// Manager applies propagation rules on top of a Connector.
type Manager struct {
	connector Connector
	logger    log.Logger
	metrics   *metrics.MetricsFactory
	tracer    trace.Tracer
	txOptions *sql.TxOptions
	timeout   time.Duration
	savepoint atomic.Uint64
}

// NewManager builds a Manager around connector.
func NewManager(connector Connector, opts ...Option) (*Manager, error) {
	if nilcheck.Interface(connector) {
		return nil, ErrNilConnector
	}

	m := &Manager{
		connector: connector,
		timeout:   constant.DefaultTransactionTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

// State reports the state of the ambient scope carried by ctx.
func (m *Manager) State(ctx context.Context) ScopeState {
	if ctx == nil {
		return StateNone
	}

	s := scopeFrom(ctx, m)
	if s == nil {
		return StateNone
	}

	return s.current()
}

// Current returns a Querier bound to the ambient scope carried by ctx, if it is usable.
//
//nolint:ireturn
func (m *Manager) Current(ctx context.Context) (Querier, bool) {
	if ctx == nil {
		return nil, false
	}

	s := scopeFrom(ctx, m)
	if s == nil || s.usable() != nil {
		return nil, false
	}

	return scopedQuerier{scope: s}, true
}

// Do runs fn inside a scope chosen by propagation. fn's error is returned unchanged
// after rollback; transaction-level failures are returned as *Error.
func (m *Manager) Do(ctx context.Context, propagation Propagation, fn Func) error {
	if ctx == nil {
		return ErrNilContext
	}

	if fn == nil {
		return ErrNilCallback
	}

	if !propagation.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidPropagation, propagation)
	}

	ambient := scopeFrom(ctx, m)

	if propagation == RequiresNew {
		if ambient != nil && ambient.usable() == nil {
			return m.suspendAndBegin(ctx, ambient, fn)
		}

		return m.begin(ctx, propagation, fn)
	}

	if ambient == nil {
		return m.begin(ctx, propagation, fn)
	}

	if err := ambient.usable(); err != nil {
		return &Error{Op: OpJoin, Err: err}
	}

	if propagation == Nested {
		return m.nest(ctx, ambient, fn)
	}

	return m.join(ctx, ambient, fn)
}

// Run is Do for callbacks that produce a value.
func Run[T any](ctx context.Context, m *Manager, propagation Propagation, fn func(context.Context, Querier) (T, error)) (T, error) {
	var out T

	if fn == nil {
		return out, ErrNilCallback
	}

	err := m.Do(ctx, propagation, func(ctx context.Context, q Querier) error {
		value, err := fn(ctx, q)
		if err != nil {
			return err
		}

		out = value

		return nil
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return out, nil
}

func (m *Manager) tracking(ctx context.Context) (log.Logger, trace.Tracer, *metrics.MetricsFactory) {
	logger, tracer, _, factory := txplan.NewTrackingFromContext(ctx)

	if m.logger != nil {
		logger = m.logger
	}

	if m.tracer != nil {
		tracer = m.tracer
	}

	if m.metrics != nil {
		factory = m.metrics
	}

	return logger, tracer, factory
}

func (m *Manager) invoke(ctx context.Context, logger log.Logger, s *scope, fn Func) (err error) {
	defer runtime.RecoverToError(ctx, logger, "transaction", "callback", &err)

	return fn(ctx, scopedQuerier{scope: s})
}

func (m *Manager) begin(ctx context.Context, propagation Propagation, fn Func) error {
	logger, tracer, factory := m.tracking(ctx)

	ctx, span := tracer.Start(ctx, constant.SpanTransactionScope, trace.WithAttributes(
		attribute.String("propagation", propagation.String()),
		attribute.String("scope", "root"),
	))
	defer span.End()

	txCtx, cancel := ctx, context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		txCtx, cancel = context.WithTimeout(ctx, m.timeout)
	}

	defer cancel()

	tx, err := m.connector.Begin(txCtx, m.txOptions)
	if err != nil {
		err = &Error{Op: OpBegin, Err: err}

		opentelemetry.HandleSpanError(&span, "failed to begin transaction", err)
		logger.Log(ctx, log.LevelError, "failed to begin transaction", log.String("propagation", propagation.String()), log.RedactedErr(err, runtime.IsProductionMode()))
		_ = factory.RecordTransaction(ctx, propagation.String(), constant.OutcomeAborted)

		return err
	}

	s := newScope(tx, nil, "", propagation)

	logger.Log(ctx, log.LevelDebug, "transaction started", log.String("propagation", propagation.String()))

	fnErr := m.invoke(s.bind(txCtx, m), logger, s, fn)
	if fnErr == nil && s.rollbackOnly.Load() {
		fnErr = &Error{Op: OpCommit, Err: ErrRollbackOnly}
	}

	if fnErr == nil {
		if ctxErr := txCtx.Err(); ctxErr != nil {
			fnErr = &Error{Op: OpCommit, Err: ctxErr}
		}
	}

	s.close()

	if fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Log(ctx, log.LevelError, "failed to roll back transaction", log.RedactedErr(rbErr, runtime.IsProductionMode()))

			fnErr = &Error{Op: OpRollback, Err: errors.Join(fnErr, rbErr)}
		}

		opentelemetry.HandleSpanError(&span, "transaction rolled back", fnErr)
		logger.Log(ctx, log.LevelDebug, "transaction rolled back", log.String("propagation", propagation.String()))
		_ = factory.RecordTransaction(ctx, propagation.String(), constant.OutcomeRolledBack)

		return fnErr
	}

	if err := tx.Commit(); err != nil {
		err = &Error{Op: OpCommit, Err: err}

		opentelemetry.HandleSpanError(&span, "failed to commit transaction", err)
		logger.Log(ctx, log.LevelError, "failed to commit transaction", log.RedactedErr(err, runtime.IsProductionMode()))
		_ = factory.RecordTransaction(ctx, propagation.String(), constant.OutcomeAborted)

		return err
	}

	logger.Log(ctx, log.LevelDebug, "transaction committed", log.String("propagation", propagation.String()))
	_ = factory.RecordTransaction(ctx, propagation.String(), constant.OutcomeCommitted)

	return nil
}

func (m *Manager) suspendAndBegin(ctx context.Context, ambient *scope, fn Func) error {
	logger, _, _ := m.tracking(ctx)

	resume := ambient.suspend()
	defer resume()

	logger.Log(ctx, log.LevelDebug, "ambient transaction suspended")

	return m.begin(ctx, RequiresNew, fn)
}

func (m *Manager) join(ctx context.Context, ambient *scope, fn Func) error {
	logger, _, factory := m.tracking(ctx)

	err := m.invoke(ctx, logger, ambient, fn)
	if err != nil {
		ambient.rollbackOnly.Store(true)

		span := trace.SpanFromContext(ctx)
		opentelemetry.HandleSpanBusinessErrorEvent(&span, constant.EventScopeRollbackOnly, err)
		logger.Log(ctx, log.LevelDebug, "joined scope failed, marking rollback-only", log.Err(err))
	}

	_ = factory.RecordTransaction(ctx, Required.String(), constant.OutcomeJoined)

	return err
}

func (m *Manager) nest(ctx context.Context, parent *scope, fn Func) error {
	logger, tracer, factory := m.tracking(ctx)

	name := constant.SavepointPrefix + strconv.FormatUint(m.savepoint.Add(1), 10)

	ctx, span := tracer.Start(ctx, constant.SpanTransactionScope, trace.WithAttributes(
		attribute.String("propagation", Nested.String()),
		attribute.String("scope", "savepoint"),
		attribute.String("savepoint", name),
	))
	defer span.End()

	if err := parent.tx.Savepoint(ctx, name); err != nil {
		err = &Error{Op: OpSavepoint, Err: err}

		opentelemetry.HandleSpanError(&span, "failed to open savepoint", err)
		_ = factory.RecordTransaction(ctx, Nested.String(), constant.OutcomeAborted)

		return err
	}

	logger.Log(ctx, log.LevelDebug, "savepoint opened", log.String("savepoint", name))

	child := newScope(parent.tx, parent, name, Nested)
	restore := parent.enter(StateSavepointScoped)

	fnErr := m.invoke(child.bind(ctx, m), logger, child, fn)
	if fnErr == nil && child.rollbackOnly.Load() {
		fnErr = &Error{Op: OpReleaseSavepoint, Err: ErrRollbackOnly}
	}

	child.close()
	restore()

	// Savepoint cleanup must run even when ctx was cancelled mid-callback.
	cleanupCtx := context.WithoutCancel(ctx)

	if fnErr != nil {
		if rbErr := parent.tx.RollbackToSavepoint(cleanupCtx, name); rbErr != nil {
			parent.rollbackOnly.Store(true)

			err := &Error{Op: OpRollbackSavepoint, Err: errors.Join(fnErr, rbErr)}
			opentelemetry.HandleSpanError(&span, "failed to roll back to savepoint", err)
			logger.Log(ctx, log.LevelError, "failed to roll back to savepoint", log.String("savepoint", name), log.RedactedErr(rbErr, runtime.IsProductionMode()))

			return err
		}

		if relErr := parent.tx.ReleaseSavepoint(cleanupCtx, name); relErr != nil {
			logger.Log(ctx, log.LevelWarn, "failed to release savepoint after rollback", log.String("savepoint", name), log.Err(relErr))
		}

		opentelemetry.HandleSpanEvent(&span, constant.EventSavepointRolledBack, attribute.String("savepoint", name))
		logger.Log(ctx, log.LevelDebug, "rolled back to savepoint", log.String("savepoint", name))
		_ = factory.RecordTransaction(ctx, Nested.String(), constant.OutcomeSavepointRolledBack)

		return fnErr
	}

	if err := parent.tx.ReleaseSavepoint(cleanupCtx, name); err != nil {
		parent.rollbackOnly.Store(true)

		err = &Error{Op: OpReleaseSavepoint, Err: err}
		opentelemetry.HandleSpanError(&span, "failed to release savepoint", err)

		return err
	}

	logger.Log(ctx, log.LevelDebug, "savepoint released", log.String("savepoint", name))
	_ = factory.RecordTransaction(ctx, Nested.String(), constant.OutcomeSavepointReleased)

	return nil
}
