package plan

import "github.com/google/uuid"

// Result is the read-only outcome of a committed plan execution, keyed by handle.
type Result struct {
	planID   uuid.UUID
	byHandle map[uuid.UUID]StoredResult
	steps    []StoredResult
}

func newResult(planID uuid.UUID, handles map[uuid.UUID]int, stored []StoredResult) *Result {
	r := &Result{
		planID:   planID,
		byHandle: make(map[uuid.UUID]StoredResult, len(handles)),
		steps:    stored,
	}

	for id, idx := range handles {
		r.byHandle[id] = stored[idx]
	}

	return r
}

// PlanID identifies the executed plan.
func (r *Result) PlanID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}

	return r.planID
}

// Len returns the number of executed steps.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}

	return len(r.steps)
}

// Raw returns the stored result of the step ref points to.
func (r *Result) Raw(ref Ref) (StoredResult, bool) {
	if r == nil || ref == nil {
		return StoredResult{}, false
	}

	stored, ok := r.byHandle[ref.ID()]

	return stored, ok
}

// Step returns the stored result at step index idx.
func (r *Result) Step(idx int) (StoredResult, bool) {
	if r == nil || idx < 0 || idx >= len(r.steps) {
		return StoredResult{}, false
	}

	return r.steps[idx], true
}
