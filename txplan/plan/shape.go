package plan

import "strconv"

// Shape is the declared result category of a step.
type Shape int

const (
	// ShapeAffectedCount is the number of rows touched by a statement.
	ShapeAffectedCount Shape = iota + 1
	// ShapeScalar is a single, possibly null, value.
	ShapeScalar
	// ShapeSingleRow is one row, or null when nothing matched.
	ShapeSingleRow
	// ShapeRowList is zero or more rows.
	ShapeRowList
	// ShapeColumnList is one value per row.
	ShapeColumnList
)

func (s Shape) String() string {
	switch s {
	case ShapeAffectedCount:
		return "affected_count"
	case ShapeScalar:
		return "scalar"
	case ShapeSingleRow:
		return "single_row"
	case ShapeRowList:
		return "row_list"
	case ShapeColumnList:
		return "column_list"
	default:
		return "Shape(" + strconv.Itoa(int(s)) + ")"
	}
}

// IsValid reports whether s is a known shape.
func (s Shape) IsValid() bool {
	return s >= ShapeAffectedCount && s <= ShapeColumnList
}

// StoredResult is the raw result of one executed step, tagged with its shape.
// The constructors copy their input, so a stored result never changes after it is built.
type StoredResult struct {
	shape  Shape
	count  int64
	scalar any
	row    map[string]any
	rows   []map[string]any
	values []any
}

// AffectedCount builds a ShapeAffectedCount result.
func AffectedCount(n int64) StoredResult {
	return StoredResult{shape: ShapeAffectedCount, count: n}
}

// ScalarResult builds a ShapeScalar result. v may be nil.
func ScalarResult(v any) StoredResult {
	return StoredResult{shape: ShapeScalar, scalar: v}
}

// SingleRowResult builds a ShapeSingleRow result. A nil row means nothing matched.
func SingleRowResult(row map[string]any) StoredResult {
	return StoredResult{shape: ShapeSingleRow, row: copyRow(row)}
}

// RowListResult builds a ShapeRowList result.
func RowListResult(rows []map[string]any) StoredResult {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = copyRow(row)
	}

	return StoredResult{shape: ShapeRowList, rows: out}
}

// ColumnListResult builds a ShapeColumnList result.
func ColumnListResult(values []any) StoredResult {
	return StoredResult{shape: ShapeColumnList, values: append([]any{}, values...)}
}

// Shape returns the result's shape.
func (r StoredResult) Shape() Shape {
	return r.shape
}

// Value returns the raw result as a fresh copy: int64, any, map[string]any,
// []map[string]any or []any depending on the shape.
func (r StoredResult) Value() any {
	switch r.shape {
	case ShapeAffectedCount:
		return r.count
	case ShapeScalar:
		return r.scalar
	case ShapeSingleRow:
		if r.row == nil {
			return nil
		}

		return copyRow(r.row)
	case ShapeRowList:
		out := make([]map[string]any, len(r.rows))
		for i, row := range r.rows {
			out[i] = copyRow(row)
		}

		return out
	case ShapeColumnList:
		return append([]any{}, r.values...)
	default:
		return nil
	}
}

func copyRow(row map[string]any) map[string]any {
	if row == nil {
		return nil
	}

	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}

	return out
}
