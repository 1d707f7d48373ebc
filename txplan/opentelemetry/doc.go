// Package opentelemetry provides span helpers shared by the plan engine and the
// transaction orchestrator.
package opentelemetry
