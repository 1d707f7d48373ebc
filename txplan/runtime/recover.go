package runtime

import (
	"context"
	"runtime/debug"

	"github.com/LerianStudio/lib-txplan/txplan/log"
)

// Logger defines the minimal logging interface required by runtime.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// PanicPolicy decides what happens after a panic has been logged and recorded.
type PanicPolicy int

const (
	// KeepRunning swallows the panic.
	KeepRunning PanicPolicy = iota
	// CrashProcess re-panics after recording.
	CrashProcess
)

// String returns the policy name.
func (p PanicPolicy) String() string {
	switch p {
	case KeepRunning:
		return "KeepRunning"
	case CrashProcess:
		return "CrashProcess"
	default:
		return "Unknown"
	}
}

// RecoverWithPolicyAndContext recovers from a panic, logs it with the stack trace and records
// metrics, span events and error reports. Under CrashProcess it re-panics afterwards.
// It must be deferred directly.
func RecoverWithPolicyAndContext(ctx context.Context, logger Logger, component, name string, policy PanicPolicy) {
	if recovered := recover(); recovered != nil {
		stack := debug.Stack()
		logPanicWithStack(ctx, logger, name, recovered, stack)
		recordPanicObservability(ctx, recovered, stack, component, name)

		if policy == CrashProcess {
			panic(recovered)
		}
	}
}

// RecoverToError recovers from a panic and stores a *PanicError in errp, replacing
// whatever the function was about to return. It must be deferred directly.
//
//	func (e *Executor) runStep(ctx context.Context) (err error) {
//	    defer runtime.RecoverToError(ctx, e.logger, "plan", "step", &err)
//	    ...
//	}
func RecoverToError(ctx context.Context, logger Logger, component, name string, errp *error) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		logPanicWithStack(ctx, logger, name, r, stack)
		recordPanicObservability(ctx, r, stack, component, name)

		if errp != nil {
			*errp = toPanicError(r, stack, IsProductionMode())
		}
	}
}

// SafeGoWithContextAndComponent launches fn in a goroutine guarded by the given policy.
func SafeGoWithContextAndComponent(
	ctx context.Context,
	logger Logger,
	component, name string,
	policy PanicPolicy,
	fn func(context.Context),
) {
	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)

		fn(ctx)
	}()
}

func logPanicWithStack(ctx context.Context, logger Logger, name string, panicValue any, stack []byte) {
	if logger == nil {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	value := formatPanicValue(panicValue)
	stackValue := string(stack)

	if IsProductionMode() {
		value = redactedPanicMsg
		stackValue = ""
	}

	logger.Log(ctx, log.LevelError, "panic recovered",
		log.String("source", name),
		log.String("panic_value", value),
		log.String("stack_trace", stackValue),
	)
}

func recordPanicObservability(ctx context.Context, panicValue any, stack []byte, component, name string) {
	if ctx == nil {
		ctx = context.Background()
	}

	recordPanicMetric(ctx, component, name)
	RecordPanicToSpanWithComponent(ctx, panicValue, stack, component, name)
	reportPanicToErrorService(ctx, panicValue, stack, component, name)
}
