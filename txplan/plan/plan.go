package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/LerianStudio/lib-txplan/txplan/transaction"
)

// Params is a step's parameter map. Entries built with Const, Field, Column, Scalars,
// Row, Transform or a handle method are resolved before the step runs; any other entry
// is passed through unchanged.
type Params map[string]any

// Operation is one database operation. Run receives fully resolved parameters and must
// return a result of the shape it declares.
type Operation interface {
	Shape() Shape
	Run(ctx context.Context, q transaction.Querier, params map[string]any) (StoredResult, error)
}

// RunFunc is the body of an operation built with Func.
type RunFunc func(ctx context.Context, q transaction.Querier, params map[string]any) (StoredResult, error)

type funcOperation struct {
	shape Shape
	run   RunFunc
}

func (o funcOperation) Shape() Shape { return o.shape }

func (o funcOperation) Run(ctx context.Context, q transaction.Querier, params map[string]any) (StoredResult, error) {
	return o.run(ctx, q, params)
}

// Func adapts fn into an Operation of the given shape.
//
//nolint:ireturn
func Func(shape Shape, fn RunFunc) Operation {
	return funcOperation{shape: shape, run: fn}
}

// Step is one deferred operation at a fixed plan position.
type Step struct {
	op     Operation
	params Params
	shape  Shape
}

// Operation returns the step's operation.
//
//nolint:ireturn
func (s Step) Operation() Operation { return s.op }

// Shape returns the declared extraction shape.
func (s Step) Shape() Shape { return s.shape }

// Params returns a copy of the unresolved parameter map.
func (s Step) Params() Params { return copyParams(s.params) }

// Plan is an ordered, append-only list of steps plus the table of handles it issued.
// The zero Plan is empty and ready to use. A Plan is not safe for concurrent mutation.
type Plan struct {
	id      uuid.UUID
	steps   []Step
	handles map[uuid.UUID]int
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{
		id:      uuid.New(),
		handles: make(map[uuid.UUID]int),
	}
}

// lazyInit prepares a zero Plan for its first step.
func (p *Plan) lazyInit() {
	if p.id == uuid.Nil {
		p.id = uuid.New()
	}

	if p.handles == nil {
		p.handles = make(map[uuid.UUID]int)
	}
}

// ID identifies the plan in logs and traces.
func (p *Plan) ID() uuid.UUID { return p.id }

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Steps returns a copy of the steps in execution order.
func (p *Plan) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)

	return out
}

// IndexOf returns the step index ref is bound to in p.
func (p *Plan) IndexOf(ref Ref) (int, bool) {
	if ref == nil {
		return 0, false
	}

	idx, ok := p.handles[ref.ID()]

	return idx, ok
}

// Add appends a step running op with params and returns the handle of its result.
// params is copied; later changes to the caller's map do not affect the step.
// p must not be nil.
func Add[T any](p *Plan, op Operation, params Params) Handle[T] {
	p.lazyInit()

	h := newHandle[T]()

	var shape Shape
	if op != nil {
		shape = op.Shape()
	}

	p.handles[h.id] = len(p.steps)
	p.steps = append(p.steps, Step{op: op, params: copyParams(params), shape: shape})

	return h
}

// AddStep is Add for callers that do not need a typed handle.
func (p *Plan) AddStep(op Operation, params Params) Handle[any] {
	return Add[any](p, op, params)
}

// AddPlan appends sub's steps after p's, in order, and rebinds every handle sub issued to
// its shifted index in p. sub should not be used afterwards.
func (p *Plan) AddPlan(sub *Plan) error {
	if p == nil || sub == nil {
		return ErrNilPlan
	}

	if sub == p {
		return ErrSelfMerge
	}

	for id := range sub.handles {
		if _, exists := p.handles[id]; exists {
			return fmt.Errorf("%w: %s", ErrHandleAlreadyBound, id)
		}
	}

	p.lazyInit()

	offset := len(p.steps)

	for _, step := range sub.steps {
		p.steps = append(p.steps, Step{op: step.op, params: copyParams(step.params), shape: step.shape})
	}

	for id, idx := range sub.handles {
		p.handles[id] = idx + offset
	}

	return nil
}

// Validate checks every step without executing anything: operations must be present
// with a known shape, and every reference, including those inside transforms, must point
// to a handle of p bound to an earlier step. The first failure is returned as a *StepError.
func (p *Plan) Validate() error {
	if p == nil {
		return ErrNilPlan
	}

	for idx, step := range p.steps {
		if step.op == nil {
			return &StepError{StepIndex: idx, Err: &QueryError{Err: ErrNilOperation}}
		}

		if !step.shape.IsValid() {
			return &StepError{StepIndex: idx, Err: &QueryError{Err: fmt.Errorf("%w: %s", ErrInvalidShape, step.shape)}}
		}

		for _, key := range sortedKeys(step.params) {
			v, ok := step.params[key].(valuer)
			if !ok {
				continue
			}

			if err := p.checkRefs(v.valueNode(), idx); err != nil {
				return &StepError{StepIndex: idx, Err: err}
			}
		}
	}

	return nil
}

func (p *Plan) checkRefs(n node, consumer int) error {
	var ref Ref

	switch n := n.(type) {
	case fieldNode:
		ref = n.ref
	case columnNode:
		ref = n.ref
	case rowNode:
		ref = n.ref
	case transformNode:
		return p.checkRefs(n.source, consumer)
	default:
		return nil
	}

	_, err := p.producerIndex(ref, consumer)

	return err
}

// producerIndex applies the handle-table and ordering checks shared by validation and resolution.
func (p *Plan) producerIndex(ref Ref, consumer int) (int, error) {
	idx, ok := p.IndexOf(ref)
	if !ok {
		return 0, &DependencyError{Kind: KindUnknownStepHandle, ReferencedStep: -1}
	}

	if idx >= consumer {
		return idx, &DependencyError{Kind: KindDependencyOnFutureStep, ReferencedStep: idx}
	}

	return idx, nil
}

// snapshot freezes the steps and handle table for one execution.
func (p *Plan) snapshot() (*Plan, error) {
	if p == nil {
		return nil, ErrNilPlan
	}

	handles := make(map[uuid.UUID]int, len(p.handles))
	for id, idx := range p.handles {
		handles[id] = idx
	}

	return &Plan{id: p.id, steps: p.Steps(), handles: handles}, nil
}

func copyParams(params Params) Params {
	out := make(Params, len(params))
	for k, v := range params {
		out[k] = v
	}

	return out
}

func sortedKeys(params Params) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
