package query

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoColumns is returned when a query that must yield values returns no columns.
var ErrNoColumns = errors.New("query returned no columns")

type scannedRows struct {
	columns []string
	rows    []map[string]any
}

// scanRows drains rows into column-keyed maps and closes them. A row with a repeated
// column name keeps the last value.
func scanRows(rows *sql.Rows, needColumn bool) (*scannedRows, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	if needColumn && len(columns) == 0 {
		return nil, ErrNoColumns
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	out := &scannedRows{columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, col := range columns {
			v, err := normalize(values[i], types[i].DatabaseTypeName())
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}

			row[col] = v
		}

		out.rows = append(out.rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func isDecimalType(databaseType string) bool {
	t := strings.ToUpper(databaseType)

	return strings.HasPrefix(t, "NUMERIC") || strings.HasPrefix(t, "DECIMAL")
}

func normalize(v any, databaseType string) (any, error) {
	if isDecimalType(databaseType) {
		switch n := v.(type) {
		case []byte:
			return decimal.NewFromString(string(n))
		case string:
			return decimal.NewFromString(n)
		case int64:
			return decimal.NewFromInt(n), nil
		case float64:
			return decimal.NewFromFloat(n), nil
		}
	}

	if b, ok := v.([]byte); ok {
		if strings.EqualFold(databaseType, "BLOB") || strings.EqualFold(databaseType, "BYTEA") {
			return append([]byte(nil), b...), nil
		}

		return string(b), nil
	}

	return v, nil
}
