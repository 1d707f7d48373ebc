package log

import "context"

// NopLogger discards everything. Its zero value is ready to use.
type NopLogger struct{}

var nop Logger = NopLogger{}

// NewNop returns the shared no-op logger.
//
//nolint:ireturn
func NewNop() Logger {
	return nop
}

func (NopLogger) Log(context.Context, Level, string, ...Field) {}

//nolint:ireturn
func (l NopLogger) With(...Field) Logger { return l }

//nolint:ireturn
func (l NopLogger) WithGroup(string) Logger { return l }

func (NopLogger) Enabled(Level) bool { return false }

func (NopLogger) Sync(context.Context) error { return nil }
