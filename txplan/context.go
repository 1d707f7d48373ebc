package txplan

import (
	"context"
	"strings"

	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTracerName names the tracer used when none was attached to the context.
const DefaultTracerName = "txplan.default"

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("txplan_custom_context")

// CustomContextKeyValue holds the facilities attached to a context.
type CustomContextKeyValue struct {
	HeaderID      string
	Tracer        trace.Tracer
	Logger        log.Logger
	MetricFactory *metrics.MetricsFactory

	// AttrBag holds attributes applied to every span started by the executor.
	AttrBag []attribute.KeyValue
}

// cloneContextValues copies the current values so derived contexts never mutate their parent.
func cloneContextValues(ctx context.Context) *CustomContextKeyValue {
	existing, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if existing == nil {
		return &CustomContextKeyValue{}
	}

	clone := *existing

	if existing.AttrBag != nil {
		clone.AttrBag = make([]attribute.KeyValue, len(existing.AttrBag))
		copy(clone.AttrBag, existing.AttrBag)
	}

	return &clone
}

// NewLoggerFromContext returns the logger stored in ctx, or a no-op logger.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if ctx == nil {
		return log.NewNop()
	}

	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values.Logger != nil {
		return values.Logger
	}

	return log.NewNop()
}

// ContextWithLogger returns a copy of ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values := cloneContextValues(ctx)
	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithTracer returns a copy of ctx carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values := cloneContextValues(ctx)
	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithMetricFactory returns a copy of ctx carrying the metrics factory.
func ContextWithMetricFactory(ctx context.Context, metricFactory *metrics.MetricsFactory) context.Context {
	values := cloneContextValues(ctx)
	values.MetricFactory = metricFactory

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithHeaderID returns a copy of ctx carrying a correlation id.
func ContextWithHeaderID(ctx context.Context, headerID string) context.Context {
	values := cloneContextValues(ctx)
	values.HeaderID = headerID

	return context.WithValue(ctx, CustomContextKey, values)
}

// ContextWithSpanAttributes appends attributes to the bag applied to executor spans.
func ContextWithSpanAttributes(ctx context.Context, kv ...attribute.KeyValue) context.Context {
	if len(kv) == 0 {
		return ctx
	}

	values := cloneContextValues(ctx)
	values.AttrBag = append(values.AttrBag, kv...)

	return context.WithValue(ctx, CustomContextKey, values)
}

// AttributesFromContext returns a copy of the attribute bag.
func AttributesFromContext(ctx context.Context) []attribute.KeyValue {
	if values, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok && values != nil && len(values.AttrBag) > 0 {
		out := make([]attribute.KeyValue, len(values.AttrBag))
		copy(out, values.AttrBag)

		return out
	}

	return nil
}

// TrackingComponents is the full set of tracking facilities resolved from a context.
type TrackingComponents struct {
	Logger        log.Logger
	Tracer        trace.Tracer
	HeaderID      string
	MetricFactory *metrics.MetricsFactory
}

// NewTrackingFromContext extracts tracking components from ctx, substituting
// working defaults for anything missing. None of the returned values is nil.
//
//nolint:ireturn
func NewTrackingFromContext(ctx context.Context) (log.Logger, trace.Tracer, string, *metrics.MetricsFactory) {
	c := extractTrackingComponents(ctx)

	return c.Logger, c.Tracer, c.HeaderID, c.MetricFactory
}

func extractTrackingComponents(ctx context.Context) TrackingComponents {
	var values *CustomContextKeyValue
	if ctx != nil {
		values, _ = ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	}

	if values == nil {
		values = &CustomContextKeyValue{}
	}

	return TrackingComponents{
		Logger:        resolveLogger(values.Logger),
		Tracer:        resolveTracer(values.Tracer),
		HeaderID:      resolveHeaderID(values.HeaderID),
		MetricFactory: resolveMetricFactory(values.MetricFactory),
	}
}

func resolveLogger(logger log.Logger) log.Logger {
	if logger != nil {
		return logger
	}

	return log.NewNop()
}

func resolveTracer(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}

	return otel.Tracer(DefaultTracerName)
}

func resolveHeaderID(headerID string) string {
	if trimmed := strings.TrimSpace(headerID); trimmed != "" {
		return trimmed
	}

	return uuid.New().String()
}

// resolveMetricFactory never returns nil. It falls back to the global meter
// provider and then to a no-op factory.
func resolveMetricFactory(factory *metrics.MetricsFactory) *metrics.MetricsFactory {
	if factory != nil {
		return factory
	}

	defaultFactory, err := metrics.NewMetricsFactory(otel.GetMeterProvider().Meter(DefaultTracerName), log.NewNop())
	if err != nil {
		return metrics.NewNopFactory()
	}

	return defaultFactory
}
