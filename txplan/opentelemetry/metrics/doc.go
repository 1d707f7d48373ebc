// Package metrics provides a lazily-initialized OpenTelemetry instrument factory
// and the pre-defined plan and transaction metrics.
package metrics
