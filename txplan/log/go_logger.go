package log

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
)

// logControlCharReplacer escapes control characters that can be used for log injection (CWE-117).
var logControlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitizeLogString(s string) string {
	return logControlCharReplacer.Replace(s)
}

// GoLogger is the Go built-in (log) implementation of Logger.
//
// Messages and string field values are sanitized to prevent log injection (CWE-117).
type GoLogger struct {
	Level  Level
	out    *stdlog.Logger
	fields []Field
	group  string
}

// NewGoLogger creates a GoLogger writing to w at the given verbosity ceiling.
// A nil writer defaults to os.Stderr.
func NewGoLogger(w io.Writer, level Level) *GoLogger {
	if w == nil {
		w = os.Stderr
	}

	return &GoLogger{
		Level: level,
		out:   stdlog.New(w, "", stdlog.LstdFlags),
	}
}

// Log writes a single line: "[level] msg key=value ...".
func (l *GoLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}

	var b strings.Builder

	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(sanitizeLogString(msg))

	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	for _, field := range all {
		b.WriteString(" ")
		b.WriteString(l.key(field.Key))
		b.WriteString("=")
		b.WriteString(formatValue(field.Value))
	}

	l.writer().Print(b.String())
}

func (l *GoLogger) key(key string) string {
	if l.group == "" {
		return sanitizeLogString(key)
	}

	return sanitizeLogString(l.group + "." + key)
}

func (l *GoLogger) writer() *stdlog.Logger {
	if l.out == nil {
		return stdlog.Default()
	}

	return l.out
}

// With returns a child logger carrying the given fields.
//
//nolint:ireturn
func (l *GoLogger) With(fields ...Field) Logger {
	child := l.clone()
	child.fields = append(child.fields, fields...)

	return child
}

// WithGroup returns a child logger whose subsequent field keys are prefixed by name.
//
//nolint:ireturn
func (l *GoLogger) WithGroup(name string) Logger {
	child := l.clone()

	if child.group == "" {
		child.group = name
	} else {
		child.group = child.group + "." + name
	}

	return child
}

// Enabled reports whether level is within the logger verbosity ceiling.
func (l *GoLogger) Enabled(level Level) bool {
	if l == nil {
		return false
	}

	return l.Level >= level
}

// Sync is a no-op: the standard logger writes synchronously.
func (l *GoLogger) Sync(_ context.Context) error { return nil }

func (l *GoLogger) clone() *GoLogger {
	fields := make([]Field, len(l.fields))
	copy(fields, l.fields)

	return &GoLogger{
		Level:  l.Level,
		out:    l.out,
		fields: fields,
		group:  l.group,
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return sanitizeLogString(v)
	case error:
		return sanitizeLogString(v.Error())
	case fmt.Stringer:
		return sanitizeLogString(v.String())
	default:
		return sanitizeLogString(fmt.Sprintf("%v", v))
	}
}
