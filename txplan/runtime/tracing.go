package runtime

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	constant "github.com/LerianStudio/lib-txplan/txplan/constants"
)

// PanicSpanEventName is the event name recorded on the active span when a panic is recovered.
const PanicSpanEventName = constant.EventPanicRecovered

var errPanicRecovered = errors.New("panic recovered")

// RecordPanicToSpanWithComponent records a recovered panic on the span carried by ctx.
// Nothing is recorded when the span is not recording.
func RecordPanicToSpanWithComponent(ctx context.Context, panicValue any, stack []byte, component, goroutineName string) {
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	value := formatPanicValue(panicValue)
	stackValue := string(stack)

	if IsProductionMode() {
		value = redactedPanicMsg
		stackValue = ""
	}

	attrs := []attribute.KeyValue{
		attribute.String("panic.value", value),
		attribute.String("panic.stack", stackValue),
		attribute.String("panic.goroutine_name", goroutineName),
	}

	if component != "" {
		attrs = append(attrs, attribute.String("panic.component", component))
	}

	span.AddEvent(PanicSpanEventName, trace.WithAttributes(attrs...))
	span.RecordError(errors.Join(errPanicRecovered, errors.New(value)))
	span.SetStatus(codes.Error, "panic recovered in "+goroutineName)
}
