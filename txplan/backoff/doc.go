// Package backoff retries an operation on a capped, jittered exponential schedule.
//
// The CLI uses it to ride out a database that is still starting when a plan is run.
package backoff
