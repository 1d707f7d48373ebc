// Package runtime provides panic recovery with logging, metrics, span events and
// optional external error reporting. The plan executor and the transaction
// manager use it to turn panics in user operations into ordinary errors.
package runtime
