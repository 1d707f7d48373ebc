package plan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/lib-txplan/txplan"
	"github.com/LerianStudio/lib-txplan/txplan/assert"
	constant "github.com/LerianStudio/lib-txplan/txplan/constants"
	"github.com/LerianStudio/lib-txplan/txplan/internal/nilcheck"
	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry/metrics"
	"github.com/LerianStudio/lib-txplan/txplan/runtime"
	"github.com/LerianStudio/lib-txplan/txplan/transaction"
)

// State is the lifecycle state of one plan execution.
type State int32

const (
	// StatePending means the transaction scope is not open yet.
	StatePending State = iota
	// StateRunning means steps are being resolved and executed.
	StateRunning
	// StateCommitted means every step completed and the scope finished successfully.
	StateCommitted
	// StateAborted means the execution failed and its scope was rolled back.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StateListener observes execution state transitions.
type StateListener func(planID string, from, to State)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		if !nilcheck.Interface(logger) {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer. Without it the context tracer is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		if !nilcheck.Interface(tracer) {
			e.tracer = tracer
		}
	}
}

// WithMetricsFactory sets the metrics factory. Without it the context factory is used.
func WithMetricsFactory(factory *metrics.MetricsFactory) Option {
	return func(e *Executor) {
		if factory != nil {
			e.metrics = factory
		}
	}
}

// WithStateListener registers fn to be called on every state transition.
func WithStateListener(fn StateListener) Option {
	return func(e *Executor) {
		if fn != nil {
			e.listeners = append(e.listeners, fn)
		}
	}
}

// Executor runs plans inside transaction scopes opened by a transaction.Manager.
type Executor struct {
	manager   *transaction.Manager
	logger    log.Logger
	tracer    trace.Tracer
	metrics   *metrics.MetricsFactory
	listeners []StateListener
}

// NewExecutor builds an Executor on top of manager.
func NewExecutor(manager *transaction.Manager, opts ...Option) (*Executor, error) {
	if manager == nil {
		return nil, ErrNilManager
	}

	e := &Executor{manager: manager}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e, nil
}

// Outcome is delivered by ExecuteAsync.
type Outcome struct {
	Result *Result
	Err    error
}

// Execute runs every step of p in order inside one scope chosen by propagation and
// returns the stored results once the scope finished successfully.
//
// A failing step is reported as a *StepError wrapping a *DependencyError or a *QueryError;
// no later step runs and the scope is rolled back, or rolled back to its savepoint for
// Nested. A context cancelled between steps yields a *transaction.Error with Op "execute".
// Scope-level failures are returned as *transaction.Error.
func (e *Executor) Execute(ctx context.Context, p *Plan, propagation transaction.Propagation) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	frozen, err := p.snapshot()
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, frozen, propagation)
}

// ExecuteAsync runs Execute on a background goroutine. The plan is frozen before
// ExecuteAsync returns. The channel yields exactly one Outcome and is then closed.
func (e *Executor) ExecuteAsync(ctx context.Context, p *Plan, propagation transaction.Propagation) <-chan Outcome {
	out := make(chan Outcome, 1)

	if ctx == nil {
		out <- Outcome{Err: ErrNilContext}
		close(out)

		return out
	}

	frozen, err := p.snapshot()
	if err != nil {
		out <- Outcome{Err: err}
		close(out)

		return out
	}

	logger, _, _, _ := e.tracking(ctx)

	runtime.SafeGoWithContextAndComponent(ctx, logger, "plan", "execute_async", runtime.KeepRunning, func(ctx context.Context) {
		defer close(out)

		var outcome Outcome

		func() {
			defer runtime.RecoverToError(ctx, logger, "plan", "execute_async", &outcome.Err)

			outcome.Result, outcome.Err = e.execute(ctx, frozen, propagation)
		}()

		out <- outcome
	})

	return out
}

func (e *Executor) tracking(ctx context.Context) (log.Logger, trace.Tracer, string, *metrics.MetricsFactory) {
	logger, tracer, headerID, factory := txplan.NewTrackingFromContext(ctx)

	if e.logger != nil {
		logger = e.logger
	}

	if e.tracer != nil {
		tracer = e.tracer
	}

	if e.metrics != nil {
		factory = e.metrics
	}

	return logger, tracer, headerID, factory
}

// execution is the private, per-call state of one plan run.
type execution struct {
	mu        sync.Mutex
	plan      *Plan
	state     State
	results   []StoredResult
	done      []bool
	asserter  *assert.Asserter
	listeners []StateListener
}

var legalTransitions = map[State][]State{
	StatePending: {StateRunning, StateAborted},
	StateRunning: {StateCommitted, StateAborted},
}

func (x *execution) transition(ctx context.Context, to State) {
	x.mu.Lock()
	from := x.state

	legal := false

	for _, next := range legalTransitions[from] {
		if next == to {
			legal = true

			break
		}
	}

	if !legal {
		x.mu.Unlock()

		_ = x.asserter.Never(ctx, "illegal plan execution state transition", "from", from.String(), "to", to.String())

		return
	}

	x.state = to
	x.mu.Unlock()

	for _, fn := range x.listeners {
		fn(x.plan.id.String(), from, to)
	}
}

func (e *Executor) execute(ctx context.Context, frozen *Plan, propagation transaction.Propagation) (*Result, error) {
	logger, tracer, headerID, factory := e.tracking(ctx)
	logger = logger.With(log.String("header_id", headerID))

	attrs := append(txplan.AttributesFromContext(ctx),
		attribute.String("plan.id", frozen.id.String()),
		attribute.Int("plan.steps", len(frozen.steps)),
		attribute.String("propagation", propagation.String()),
	)

	ctx, span := tracer.Start(ctx, constant.SpanPlanExecute, trace.WithAttributes(attrs...))
	defer span.End()

	run := &execution{
		plan:      frozen,
		state:     StatePending,
		results:   make([]StoredResult, len(frozen.steps)),
		done:      make([]bool, len(frozen.steps)),
		asserter:  assert.New(logger, "plan", "execute"),
		listeners: e.listeners,
	}

	start := time.Now()

	err := e.manager.Do(ctx, propagation, func(ctx context.Context, q transaction.Querier) error {
		run.transition(ctx, StateRunning)

		if err := e.walk(ctx, q, run, logger, tracer, factory); err != nil {
			return err
		}

		return run.asserter.That(ctx, !slices.Contains(run.done, false), "plan finished with steps that stored no result",
			"plan_id", frozen.id.String())
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		run.transition(ctx, StateAborted)

		fields := []log.Field{
			log.String("plan_id", frozen.id.String()),
			log.String("propagation", propagation.String()),
			log.String("error_kind", ErrorKind(err)),
			log.RedactedErr(err, runtime.IsProductionMode()),
		}

		var stepErr *StepError
		if errors.As(err, &stepErr) {
			fields = append(fields, log.Int("step_index", stepErr.StepIndex))
		}

		logger.Log(ctx, log.LevelWarn, "transaction plan aborted", fields...)
		opentelemetry.HandleSpanError(&span, "transaction plan aborted", err)

		_ = factory.RecordPlanExecuted(ctx, constant.OutcomeAborted, propagation.String())
		_ = factory.RecordPlanDuration(ctx, elapsed, constant.OutcomeAborted)

		return nil, err
	}

	run.transition(ctx, StateCommitted)

	logger.Log(ctx, log.LevelDebug, "transaction plan committed",
		log.String("plan_id", frozen.id.String()),
		log.Int("steps", len(frozen.steps)),
	)

	_ = factory.RecordPlanExecuted(ctx, constant.OutcomeCommitted, propagation.String())
	_ = factory.RecordPlanDuration(ctx, elapsed, constant.OutcomeCommitted)

	return newResult(frozen.id, frozen.handles, run.results), nil
}

func (e *Executor) walk(
	ctx context.Context,
	q transaction.Querier,
	run *execution,
	logger log.Logger,
	tracer trace.Tracer,
	factory *metrics.MetricsFactory,
) error {
	for idx, step := range run.plan.steps {
		if err := ctx.Err(); err != nil {
			return &transaction.Error{Op: transaction.OpExecute, Err: err}
		}

		stored, err := e.step(ctx, q, run, idx, step, logger, tracer)
		if err != nil {
			return &StepError{StepIndex: idx, Err: err}
		}

		run.results[idx] = stored
		run.done[idx] = true

		_ = factory.RecordPlanStepExecuted(ctx, step.shape.String())
	}

	return nil
}

func (e *Executor) step(
	ctx context.Context,
	q transaction.Querier,
	run *execution,
	idx int,
	step Step,
	logger log.Logger,
	tracer trace.Tracer,
) (StoredResult, error) {
	ctx, span := tracer.Start(ctx, constant.SpanPlanStep, trace.WithAttributes(
		attribute.Int("step.index", idx),
		attribute.String("step.shape", step.shape.String()),
	))
	defer span.End()

	if step.op == nil {
		err := &QueryError{Err: ErrNilOperation}
		opentelemetry.HandleSpanError(&span, "invalid step", err)

		return StoredResult{}, err
	}

	if !step.shape.IsValid() {
		err := &QueryError{Err: fmt.Errorf("%w: %s", ErrInvalidShape, step.shape)}
		opentelemetry.HandleSpanError(&span, "invalid step", err)

		return StoredResult{}, err
	}

	res := &resolver{
		plan:     run.plan,
		results:  run.results,
		done:     run.done,
		consumer: idx,
		asserter: run.asserter,
		logger:   logger,
	}

	params, err := res.resolveParams(ctx, step.params)
	if err != nil {
		opentelemetry.HandleSpanError(&span, "failed to resolve step parameters", err)

		return StoredResult{}, err
	}

	stored, err := runOperation(ctx, q, step, params, logger)
	if err != nil {
		err = &QueryError{Err: err}
		opentelemetry.HandleSpanError(&span, "step execution failed", err)

		return StoredResult{}, err
	}

	return stored, nil
}

func runOperation(ctx context.Context, q transaction.Querier, step Step, params map[string]any, logger log.Logger) (stored StoredResult, err error) {
	defer runtime.RecoverToError(ctx, logger, "plan", "step", &err)

	stored, err = step.op.Run(ctx, q, params)
	if err != nil {
		return StoredResult{}, err
	}

	if stored.shape != step.shape {
		return StoredResult{}, fmt.Errorf("%w: declared %s, got %s", ErrShapeMismatch, step.shape, stored.shape)
	}

	return stored, nil
}
