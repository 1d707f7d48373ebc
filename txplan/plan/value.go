package plan

import (
	"fmt"
	"math"
	"reflect"
)

// node is the closed set of value sources. The resolver switches over the concrete
// types, so a new variant must be handled there.
type node interface {
	isNode()
}

type constNode struct {
	value any
}

type fieldNode struct {
	ref       Ref
	column    string
	hasColumn bool
	row       int
}

type columnNode struct {
	ref       Ref
	column    string
	hasColumn bool
}

type rowNode struct {
	ref Ref
	row int
}

type transformNode struct {
	source node
	apply  func(any) (any, error)
}

func (constNode) isNode()     {}
func (fieldNode) isNode()     {}
func (columnNode) isNode()    {}
func (rowNode) isNode()       {}
func (transformNode) isNode() {}

// Value is a deferred parameter: a literal, a reference to an earlier step's result,
// or a transformation of another Value. T is the type the value resolves to.
type Value[T any] struct {
	n node
}

func (v Value[T]) valueNode() node {
	return v.n
}

// valuer is implemented by every Value[T]; params entries that implement it are resolved.
type valuer interface {
	valueNode() node
}

// Const wraps a literal.
func Const[T any](v T) Value[T] {
	return Value[T]{n: constNode{value: v}}
}

// Field reads column from row rowIndex (default 0) of ref's result.
func Field[V any](ref Ref, column string, rowIndex ...int) Value[V] {
	return Value[V]{n: fieldNode{ref: ref, column: column, hasColumn: true, row: firstIndex(rowIndex)}}
}

// Column reads column from every row of ref's row-list result.
func Column[V any](ref Ref, column string) Value[[]V] {
	return Value[[]V]{n: columnNode{ref: ref, column: column, hasColumn: true}}
}

// Scalars reads ref's column-list result, or the only column of its row-list result.
func Scalars[V any](ref Ref) Value[[]V] {
	return Value[[]V]{n: columnNode{ref: ref}}
}

// Row reads row rowIndex (default 0) of ref's result. Placed directly in a Params map,
// a row is spread: each of its columns becomes a parameter of the step.
func Row(ref Ref, rowIndex ...int) Value[map[string]any] {
	return Value[map[string]any]{n: rowNode{ref: ref, row: firstIndex(rowIndex)}}
}

// Transform maps source through fn when the step that uses it is resolved. An error or
// panic from fn fails the step with TRANSFORMATION_FAILED. A transformed row is not spread.
func Transform[IN, OUT any](source Value[IN], fn func(IN) (OUT, error)) Value[OUT] {
	return Value[OUT]{n: transformNode{
		source: source.n,
		apply: func(in any) (any, error) {
			typed, err := convert[IN](in)
			if err != nil {
				return nil, err
			}

			return fn(typed)
		},
	}}
}

func firstIndex(rowIndex []int) int {
	if len(rowIndex) == 0 {
		return 0
	}

	return rowIndex[0]
}

// convert adapts a resolved value to T. nil becomes the zero T, numeric kinds convert
// into each other, and []any converts element-wise into any slice type.
func convert[T any](v any) (T, error) {
	var zero T

	if v == nil {
		return zero, nil
	}

	if typed, ok := v.(T); ok {
		return typed, nil
	}

	target := reflect.TypeOf((*T)(nil)).Elem()

	out, err := convertValue(reflect.ValueOf(v), target)
	if err != nil {
		return zero, err
	}

	typed, ok := out.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("%w: cannot use %T as %s", ErrTypeMismatch, v, target)
	}

	return typed, nil
}

func convertValue(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(target), nil
		}

		v = v.Elem()
	}

	switch {
	case v.Type().AssignableTo(target):
		out := reflect.New(target).Elem()
		out.Set(v)

		return out, nil
	case isNumeric(v.Kind()) && isNumeric(target.Kind()):
		return convertNumber(v, target)
	case v.Kind() == reflect.Slice && target.Kind() == reflect.Slice:
		out := reflect.MakeSlice(target, v.Len(), v.Len())

		for i := range v.Len() {
			elem, err := convertValue(v.Index(i), target.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}

			out.Index(i).Set(elem)
		}

		return out, nil
	default:
		return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrTypeMismatch, v.Type(), target)
	}
}

// convertNumber rejects conversions that overflow the target, flip the sign or drop a
// fractional part. Float narrowing only fails when a finite value overflows.
func convertNumber(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	mismatch := fmt.Errorf("%w: %v does not fit in %s", ErrTypeMismatch, v.Interface(), target)

	if isFloat(v.Kind()) && math.IsNaN(v.Float()) && !isFloat(target.Kind()) {
		return reflect.Value{}, mismatch
	}

	out := v.Convert(target)

	if isFloat(v.Kind()) && isFloat(target.Kind()) {
		if math.IsInf(out.Float(), 0) && !math.IsInf(v.Float(), 0) {
			return reflect.Value{}, mismatch
		}

		return out, nil
	}

	if isNegative(v) != isNegative(out) || !out.Convert(v.Type()).Equal(v) {
		return reflect.Value{}, mismatch
	}

	return out, nil
}

func isNegative(v reflect.Value) bool {
	switch {
	case v.CanInt():
		return v.Int() < 0
	case v.CanFloat():
		return v.Float() < 0
	default:
		return false
	}
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
