package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-txplan/txplan/plan"
	"github.com/LerianStudio/lib-txplan/txplan/transaction"
)

// Option configures a Statement.
type Option func(*Statement)

// WithDialect sets the placeholder syntax. The default is DialectDollar.
func WithDialect(d Dialect) Option {
	return func(s *Statement) {
		s.dialect = d
	}
}

// Statement is a plan.Operation running one SQL statement.
type Statement struct {
	sql     string
	shape   plan.Shape
	dialect Dialect
}

var _ plan.Operation = (*Statement)(nil)

func newStatement(sql string, shape plan.Shape, opts []Option) *Statement {
	s := &Statement{sql: sql, shape: shape, dialect: DialectDollar}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Exec runs a statement and yields the affected row count.
func Exec(sql string, opts ...Option) *Statement {
	return newStatement(sql, plan.ShapeAffectedCount, opts)
}

// Scalar yields the first column of the first row, or nil when no row is returned.
func Scalar(sql string, opts ...Option) *Statement {
	return newStatement(sql, plan.ShapeScalar, opts)
}

// One yields the first row, or a null row when no row is returned.
func One(sql string, opts ...Option) *Statement {
	return newStatement(sql, plan.ShapeSingleRow, opts)
}

// All yields every row.
func All(sql string, opts ...Option) *Statement {
	return newStatement(sql, plan.ShapeRowList, opts)
}

// Column yields the first column of every row.
func Column(sql string, opts ...Option) *Statement {
	return newStatement(sql, plan.ShapeColumnList, opts)
}

// Shape implements plan.Operation.
func (s *Statement) Shape() plan.Shape { return s.shape }

// SQL returns the statement text before binding.
func (s *Statement) SQL() string { return s.sql }

func (s *Statement) String() string {
	return s.shape.String() + ": " + s.sql
}

// Run binds params and executes the statement on q.
func (s *Statement) Run(ctx context.Context, q transaction.Querier, params map[string]any) (plan.StoredResult, error) {
	if strings.TrimSpace(s.sql) == "" {
		return plan.StoredResult{}, ErrEmptyStatement
	}

	bound, args, err := Bind(s.sql, params, s.dialect)
	if err != nil {
		return plan.StoredResult{}, err
	}

	if s.shape == plan.ShapeAffectedCount {
		res, err := q.ExecContext(ctx, bound, args...)
		if err != nil {
			return plan.StoredResult{}, err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return plan.StoredResult{}, fmt.Errorf("rows affected: %w", err)
		}

		return plan.AffectedCount(n), nil
	}

	rows, err := q.QueryContext(ctx, bound, args...)
	if err != nil {
		return plan.StoredResult{}, err
	}

	scanned, err := scanRows(rows, s.shape != plan.ShapeRowList)
	if err != nil {
		return plan.StoredResult{}, err
	}

	return shapeRows(s.shape, scanned)
}

func shapeRows(shape plan.Shape, scanned *scannedRows) (plan.StoredResult, error) {
	switch shape {
	case plan.ShapeScalar:
		if len(scanned.rows) == 0 {
			return plan.ScalarResult(nil), nil
		}

		return plan.ScalarResult(scanned.rows[0][scanned.columns[0]]), nil
	case plan.ShapeSingleRow:
		if len(scanned.rows) == 0 {
			return plan.SingleRowResult(nil), nil
		}

		return plan.SingleRowResult(scanned.rows[0]), nil
	case plan.ShapeRowList:
		return plan.RowListResult(scanned.rows), nil
	case plan.ShapeColumnList:
		values := make([]any, len(scanned.rows))
		for i, row := range scanned.rows {
			values[i] = row[scanned.columns[0]]
		}

		return plan.ColumnListResult(values), nil
	default:
		return plan.StoredResult{}, errors.New("unsupported shape " + shape.String())
	}
}
