package plan

import "github.com/google/uuid"

// Ref identifies a step's future result. Only handles issued by a Plan implement it.
type Ref interface {
	ID() uuid.UUID
	isRef()
}

// Handle is returned by Add. It is valid only in the plan that issued it, or in a plan
// that plan was merged into.
type Handle[T any] struct {
	id uuid.UUID
}

func newHandle[T any]() Handle[T] {
	return Handle[T]{id: uuid.New()}
}

// ID returns the handle identity.
func (h Handle[T]) ID() uuid.UUID {
	return h.id
}

func (Handle[T]) isRef() {}

func (h Handle[T]) String() string {
	return h.id.String()
}

// Field reads the step's scalar result, or the only column of row rowIndex (default 0).
func (h Handle[T]) Field(rowIndex ...int) Value[T] {
	return Value[T]{n: fieldNode{ref: h, row: firstIndex(rowIndex)}}
}

// Column reads column from every row of the step's row-list result.
func (h Handle[T]) Column(column string) Value[[]any] {
	return Column[any](h, column)
}

// Row reads row rowIndex (default 0) of the step's result.
func (h Handle[T]) Row(rowIndex ...int) Value[map[string]any] {
	return Row(h, rowIndex...)
}

// Get returns the step's stored result converted to T. ok is false when the handle has
// no result in r, the result is SQL NULL (a null scalar or a missing single row), or it
// cannot be converted to T.
func (h Handle[T]) Get(r *Result) (T, bool) {
	var zero T

	stored, ok := r.Raw(h)
	if !ok || stored.Value() == nil {
		return zero, false
	}

	v, err := convert[T](stored.Value())
	if err != nil {
		return zero, false
	}

	return v, true
}
