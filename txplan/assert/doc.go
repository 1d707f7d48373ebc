// Package assert evaluates internal invariants and returns errors instead of panicking.
//
// A failed assertion is logged, counted in assertion_failed_total and recorded on the
// active span. Plan construction uses it to reject malformed steps early.
package assert
