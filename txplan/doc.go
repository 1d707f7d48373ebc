// Package txplan carries the request-scoped facilities shared by the plan executor,
// the transaction manager and the query helpers: logger, tracer, metrics factory
// and correlation id.
//
// The engine itself lives in the plan and transaction subpackages.
package txplan
