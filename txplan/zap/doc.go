// Package zap provides the zap-backed implementation of the txplan log.Logger.
//
// It bridges the txplan/log abstraction to zap while preserving structured
// fields and correlating entries with the active OpenTelemetry span.
package zap
