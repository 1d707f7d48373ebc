// Package query provides plan operations backed by plain SQL with :name parameters.
//
// Statements are not built or inspected beyond parameter binding. Row values are
// normalized while scanning: textual []byte becomes string and NUMERIC or DECIMAL
// columns become decimal.Decimal.
package query
