package metrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilCounter is returned when a counter builder has no instrument.
	ErrNilCounter = errors.New("counter instrument is nil")
	// ErrNilHistogram is returned when a histogram builder has no instrument.
	ErrNilHistogram = errors.New("histogram instrument is nil")
)

// mergeAttributes returns a set holding base plus extra. A key in extra replaces the same key in base.
func mergeAttributes(base attribute.Set, extra []attribute.KeyValue) attribute.Set {
	if len(extra) == 0 {
		return base
	}

	merged := make([]attribute.KeyValue, 0, base.Len()+len(extra))
	merged = append(merged, base.ToSlice()...)
	merged = append(merged, extra...)

	return attribute.NewSet(merged...)
}

// CounterBuilder records increments with a fixed label set. Builders are immutable.
type CounterBuilder struct {
	counter metric.Int64Counter
	attrs   attribute.Set
}

// WithAttributes returns a builder carrying the extra labels.
func (c *CounterBuilder) WithAttributes(attrs ...attribute.KeyValue) *CounterBuilder {
	return &CounterBuilder{counter: c.counter, attrs: mergeAttributes(c.attrs, attrs)}
}

// Add records value.
func (c *CounterBuilder) Add(ctx context.Context, value int64) error {
	if c.counter == nil {
		return ErrNilCounter
	}

	c.counter.Add(ctx, value, metric.WithAttributeSet(c.attrs))

	return nil
}

// AddOne increments the counter by one.
func (c *CounterBuilder) AddOne(ctx context.Context) error {
	return c.Add(ctx, 1)
}

// HistogramBuilder records samples with a fixed label set.
type HistogramBuilder struct {
	histogram metric.Int64Histogram
	attrs     attribute.Set
}

// WithAttributes returns a builder carrying the extra labels.
func (h *HistogramBuilder) WithAttributes(attrs ...attribute.KeyValue) *HistogramBuilder {
	return &HistogramBuilder{histogram: h.histogram, attrs: mergeAttributes(h.attrs, attrs)}
}

// Record records value.
func (h *HistogramBuilder) Record(ctx context.Context, value int64) error {
	if h.histogram == nil {
		return ErrNilHistogram
	}

	h.histogram.Record(ctx, value, metric.WithAttributeSet(h.attrs))

	return nil
}
