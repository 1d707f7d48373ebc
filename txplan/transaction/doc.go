// Package transaction implements transaction propagation for single blocks and plans.
//
// A Manager begins transactions through a Connector and carries the ambient scope in
// the context it hands to callbacks. Three propagation modes are supported:
//
//   - Required joins the ambient scope or begins a new transaction.
//   - RequiresNew suspends the ambient scope and begins an independent transaction.
//   - Nested opens a savepoint inside the ambient scope, or behaves like Required.
//
// A joined Required scope that fails marks its owner rollback-only, so a caller that
// swallows the error still cannot commit partial work.
package transaction
