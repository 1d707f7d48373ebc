package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-txplan/txplan/assert"
	"github.com/LerianStudio/lib-txplan/txplan/runtime"
)

// resolver evaluates value trees for one consuming step. It only sees results of steps
// before the consumer.
type resolver struct {
	plan     *Plan
	results  []StoredResult
	done     []bool
	consumer int
	asserter *assert.Asserter
	logger   runtime.Logger
}

// resolveParams returns the concrete parameters of the consuming step. Bare Row entries
// are spread in sorted key order, then explicit entries are applied and win on collision.
func (r *resolver) resolveParams(ctx context.Context, params Params) (map[string]any, error) {
	out := make(map[string]any, len(params))
	explicit := make(map[string]any, len(params))

	for _, key := range sortedKeys(params) {
		raw := params[key]

		v, ok := raw.(valuer)
		if !ok {
			explicit[key] = raw

			continue
		}

		resolved, err := r.resolve(ctx, v.valueNode())
		if err != nil {
			return nil, err
		}

		if _, spread := v.valueNode().(rowNode); spread {
			row, _ := resolved.(map[string]any)
			for col, value := range row {
				out[col] = value
			}

			continue
		}

		explicit[key] = resolved
	}

	for key, value := range explicit {
		out[key] = value
	}

	return out, nil
}

func (r *resolver) resolve(ctx context.Context, n node) (any, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case constNode:
		return n.value, nil
	case fieldNode:
		stored, idx, err := r.lookup(ctx, n.ref)
		if err != nil {
			return nil, err
		}

		return extractField(stored, idx, n)
	case columnNode:
		stored, idx, err := r.lookup(ctx, n.ref)
		if err != nil {
			return nil, err
		}

		return extractColumn(stored, idx, n)
	case rowNode:
		stored, idx, err := r.lookup(ctx, n.ref)
		if err != nil {
			return nil, err
		}

		return extractRow(stored, idx, n)
	case transformNode:
		source, err := r.resolve(ctx, n.source)
		if err != nil {
			return nil, err
		}

		return r.applyTransform(ctx, n, source)
	default:
		return nil, r.asserter.Never(ctx, "unhandled value node", "type", fmt.Sprintf("%T", n))
	}
}

func (r *resolver) applyTransform(ctx context.Context, n transformNode, source any) (out any, err error) {
	defer func() {
		if err == nil {
			return
		}

		var depErr *DependencyError
		if !errors.As(err, &depErr) || depErr.Kind != KindTransformationFailed {
			err = &DependencyError{Kind: KindTransformationFailed, ReferencedStep: -1, Err: err}
		}
	}()

	defer runtime.RecoverToError(ctx, r.logger, "plan", "transform", &err)

	return n.apply(source)
}

func (r *resolver) lookup(ctx context.Context, ref Ref) (StoredResult, int, error) {
	idx, err := r.plan.producerIndex(ref, r.consumer)
	if err != nil {
		return StoredResult{}, idx, err
	}

	if idx >= len(r.done) || !r.done[idx] {
		_ = r.asserter.Never(ctx, "referenced step has no stored result", "referenced_step", idx, "consumer", r.consumer)

		return StoredResult{}, idx, &DependencyError{Kind: KindResultNotFound, ReferencedStep: idx}
	}

	return r.results[idx], idx, nil
}

func dependencyFailure(kind DependencyKind, idx int, column string, row int) *DependencyError {
	return &DependencyError{Kind: kind, ReferencedStep: idx, Column: column, RowIndex: row}
}

func extractField(stored StoredResult, idx int, n fieldNode) (any, error) {
	switch stored.shape {
	case ShapeAffectedCount, ShapeScalar:
		if n.hasColumn {
			return nil, dependencyFailure(KindResultNotMapList, idx, n.column, n.row)
		}

		if n.row != 0 {
			return nil, dependencyFailure(KindRowIndexOutOfBounds, idx, "", n.row)
		}

		if stored.shape == ShapeAffectedCount {
			return stored.count, nil
		}

		if stored.scalar == nil {
			return nil, dependencyFailure(KindNullSourceResult, idx, "", n.row)
		}

		return stored.scalar, nil
	case ShapeColumnList:
		if n.hasColumn {
			return nil, dependencyFailure(KindResultNotMapList, idx, n.column, n.row)
		}

		if len(stored.values) == 0 {
			return nil, dependencyFailure(KindNullSourceResult, idx, "", n.row)
		}

		if n.row < 0 || n.row >= len(stored.values) {
			return nil, dependencyFailure(KindRowIndexOutOfBounds, idx, "", n.row)
		}

		return stored.values[n.row], nil
	case ShapeSingleRow, ShapeRowList:
		row, err := pickRow(stored, idx, n.row)
		if err != nil {
			return nil, err
		}

		if !n.hasColumn {
			return onlyColumn(row, idx, n.row)
		}

		value, ok := row[n.column]
		if !ok {
			return nil, dependencyFailure(KindColumnNotFound, idx, n.column, n.row)
		}

		return value, nil
	default:
		return nil, dependencyFailure(KindScalarNotFound, idx, n.column, n.row)
	}
}

func extractColumn(stored StoredResult, idx int, n columnNode) (any, error) {
	switch stored.shape {
	case ShapeColumnList:
		if n.hasColumn {
			return nil, dependencyFailure(KindResultNotMapList, idx, n.column, 0)
		}

		return append([]any{}, stored.values...), nil
	case ShapeRowList:
		out := make([]any, len(stored.rows))

		for i, row := range stored.rows {
			if !n.hasColumn {
				value, err := onlyColumn(row, idx, i)
				if err != nil {
					return nil, err
				}

				out[i] = value

				continue
			}

			value, ok := row[n.column]
			if !ok {
				return nil, dependencyFailure(KindColumnNotFound, idx, n.column, i)
			}

			out[i] = value
		}

		return out, nil
	default:
		return nil, dependencyFailure(KindResultNotList, idx, n.column, 0)
	}
}

func extractRow(stored StoredResult, idx int, n rowNode) (any, error) {
	switch stored.shape {
	case ShapeSingleRow, ShapeRowList:
		row, err := pickRow(stored, idx, n.row)
		if err != nil {
			return nil, err
		}

		return copyRow(row), nil
	default:
		return nil, dependencyFailure(KindInvalidRowAccessOnNonList, idx, "", n.row)
	}
}

// pickRow returns row rowIndex of a row-shaped result. A null single row, an empty row
// list and a null row inside a list are null sources.
func pickRow(stored StoredResult, idx, rowIndex int) (map[string]any, error) {
	rows := stored.rows
	if stored.shape == ShapeSingleRow {
		if stored.row == nil {
			return nil, dependencyFailure(KindNullSourceResult, idx, "", rowIndex)
		}

		rows = []map[string]any{stored.row}
	}

	if len(rows) == 0 {
		return nil, dependencyFailure(KindNullSourceResult, idx, "", rowIndex)
	}

	if rowIndex < 0 || rowIndex >= len(rows) {
		return nil, dependencyFailure(KindRowIndexOutOfBounds, idx, "", rowIndex)
	}

	if rows[rowIndex] == nil {
		return nil, dependencyFailure(KindNullSourceResult, idx, "", rowIndex)
	}

	return rows[rowIndex], nil
}

func onlyColumn(row map[string]any, idx, rowIndex int) (any, error) {
	if len(row) != 1 {
		return nil, dependencyFailure(KindScalarNotFound, idx, "", rowIndex)
	}

	for _, value := range row {
		return value, nil
	}

	return nil, nil
}
