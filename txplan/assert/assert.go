package assert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	constant "github.com/LerianStudio/lib-txplan/txplan/constants"
	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry/metrics"
)

// Logger defines the minimal logging interface required by assertions.
// It is satisfied by txplan/log.Logger.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// Asserter evaluates invariants and emits telemetry on failure.
type Asserter struct {
	logger    Logger
	component string
	operation string
}

// ErrAssertionFailed is the sentinel error for failed assertions.
var ErrAssertionFailed = errors.New("assertion failed")

// AssertionError represents a failed assertion.
type AssertionError struct {
	Assertion string
	Message   string
	Component string
	Operation string
	Details   string
}

// Error returns the formatted assertion failure message.
func (entry *AssertionError) Error() string {
	if entry == nil {
		return ErrAssertionFailed.Error()
	}

	if entry.Details == "" {
		return "assertion failed: " + entry.Message
	}

	return "assertion failed: " + entry.Message + "\n" + entry.Details
}

// Unwrap returns the sentinel assertion error for errors.Is.
func (entry *AssertionError) Unwrap() error {
	return ErrAssertionFailed
}

// New creates an Asserter. component and operation label the log entry, the span event
// and the assertion_failed_total counter recorded on failure.
//
// Example:
//
//	asserter := assert.New(logger, "plan", "execute")
func New(logger Logger, component, operation string) *Asserter {
	return &Asserter{
		logger:    logger,
		component: component,
		operation: operation,
	}
}

// That returns an error if ok is false. kv holds alternating keys and values that are
// attached to the failure as details.
//
// Example:
//
//	if err := asserter.That(ctx, idx < len(stored), "step result missing", "step_index", idx); err != nil {
//		return err
//	}
func (asserter *Asserter) That(ctx context.Context, ok bool, msg string, kv ...any) error {
	if ok {
		return nil
	}

	return asserter.fail(ctx, "That", msg, kv...)
}

// Never always returns an error. Use it for code paths that should be unreachable.
//
// Example:
//
//	switch state {
//	case StateCommitted, StateAborted:
//		return nil
//	default:
//		return asserter.Never(ctx, "unexpected executor state", "state", state.String())
//	}
func (asserter *Asserter) Never(ctx context.Context, msg string, kv ...any) error {
	return asserter.fail(ctx, "Never", msg, kv...)
}

const maxValueLength = 200

func truncateValue(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) <= maxValueLength {
		return s
	}

	return s[:maxValueLength] + "... (truncated " + strconv.Itoa(len(s)-maxValueLength) + " chars)"
}

func (asserter *Asserter) fail(ctx context.Context, assertion, msg string, kv ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		logger               Logger
		component, operation string
	)

	if asserter != nil {
		logger, component, operation = asserter.logger, asserter.component, asserter.operation
	}

	pairs := make([]any, 0, len(kv)+6)
	pairs = append(pairs, "assertion", assertion)

	if component != "" {
		pairs = append(pairs, "component", component)
	}

	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}

	pairs = append(pairs, kv...)
	details := formatKeyValueLines(pairs)

	logAssertion(ctx, logger, msg, details)
	recordAssertionMetric(ctx, component, operation, assertion)
	recordAssertionToSpan(ctx, assertion, msg, component, operation)

	return &AssertionError{
		Assertion: assertion,
		Message:   msg,
		Component: component,
		Operation: operation,
		Details:   details,
	}
}

func formatKeyValueLines(kv []any) string {
	var sb strings.Builder

	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			sb.WriteString("\n")
		}

		var value any = "MISSING_VALUE"
		if i+1 < len(kv) {
			value = kv[i+1]
		}

		fmt.Fprintf(&sb, "    %v=%v", kv[i], truncateValue(value))
	}

	return sb.String()
}

func logAssertion(ctx context.Context, logger Logger, msg, details string) {
	if logger == nil {
		fmt.Fprintln(os.Stderr, "ASSERTION FAILED: "+msg+"\n"+details)

		return
	}

	logger.Log(ctx, log.LevelError, "ASSERTION FAILED: "+msg, log.String("details", details))
}

// AssertionSpanEventName is the event name used when recording assertion failures on spans.
const AssertionSpanEventName = constant.EventAssertionFailed

var assertionFailedMetric = metrics.Metric{
	Name:        constant.MetricAssertionFailedTotal,
	Unit:        "1",
	Description: "Total number of failed assertions",
}

var (
	assertionMetricsFactory *metrics.MetricsFactory
	assertionMetricsMu      sync.RWMutex
)

// InitAssertionMetrics installs the factory used to count failed assertions.
func InitAssertionMetrics(factory *metrics.MetricsFactory) {
	assertionMetricsMu.Lock()
	defer assertionMetricsMu.Unlock()

	if factory == nil || assertionMetricsFactory != nil {
		return
	}

	assertionMetricsFactory = factory
}

// ResetAssertionMetrics clears the assertion metrics factory.
func ResetAssertionMetrics() {
	assertionMetricsMu.Lock()
	defer assertionMetricsMu.Unlock()

	assertionMetricsFactory = nil
}

func recordAssertionMetric(ctx context.Context, component, operation, assertion string) {
	assertionMetricsMu.RLock()
	factory := assertionMetricsFactory
	assertionMetricsMu.RUnlock()

	if factory == nil {
		return
	}

	counter, err := factory.Counter(assertionFailedMetric)
	if err != nil {
		return
	}

	_ = counter.WithAttributes(
		attribute.String("component", component),
		attribute.String("operation", operation),
		attribute.String("assertion", assertion),
	).AddOne(ctx)
}

func recordAssertionToSpan(ctx context.Context, assertion, message, component, operation string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("assertion.name", assertion),
		attribute.String("assertion.message", message),
	}

	if component != "" {
		attrs = append(attrs, attribute.String("assertion.component", component))
	}

	if operation != "" {
		attrs = append(attrs, attribute.String("assertion.operation", operation))
	}

	span.AddEvent(AssertionSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(fmt.Errorf("%w: %s", ErrAssertionFailed, message))
	span.SetStatus(codes.Error, "assertion failed")
}
