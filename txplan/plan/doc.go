// Package plan declares transaction plans: ordered steps whose parameters may reference
// the results of earlier steps, executed as one atomic unit through a transaction.Manager.
//
// A Handle[T] carries T only as a compile-time aid for callers. No runtime type check
// happens at the handle layer; a mismatch surfaces when a value is converted, either as
// TRANSFORMATION_FAILED inside a Transform or as a false ok from Handle.Get.
package plan
