package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// RecordPlanExecuted increments the plan execution counter for the given outcome.
func (f *MetricsFactory) RecordPlanExecuted(ctx context.Context, outcome, propagation string) error {
	b, err := f.Counter(MetricPlansExecuted)
	if err != nil {
		return err
	}

	return b.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("propagation", propagation),
	).AddOne(ctx)
}

// RecordPlanStepExecuted increments the executed-step counter.
func (f *MetricsFactory) RecordPlanStepExecuted(ctx context.Context, shape string) error {
	b, err := f.Counter(MetricPlanStepsExecuted)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("shape", shape)).AddOne(ctx)
}

// RecordPlanDuration records how long a plan execution took, in milliseconds.
func (f *MetricsFactory) RecordPlanDuration(ctx context.Context, milliseconds int64, outcome string) error {
	b, err := f.Histogram(MetricPlanDuration)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("outcome", outcome)).Record(ctx, milliseconds)
}

// RecordTransaction increments the transaction scope counter.
func (f *MetricsFactory) RecordTransaction(ctx context.Context, propagation, outcome string) error {
	b, err := f.Counter(MetricTransactions)
	if err != nil {
		return err
	}

	return b.WithAttributes(
		attribute.String("propagation", propagation),
		attribute.String("outcome", outcome),
	).AddOne(ctx)
}
