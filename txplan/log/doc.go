// Package log defines the logging interface and typed logging fields used by
// every txplan package.
//
// Adapters (such as the zap package) implement Logger so applications can keep
// logging calls consistent across backends.
package log
