package runtime

import (
	"context"
	"sync"

	constant "github.com/LerianStudio/lib-txplan/txplan/constants"
	"github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/LerianStudio/lib-txplan/txplan/opentelemetry/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// PanicMetrics records panic-related metrics through a MetricsFactory.
type PanicMetrics struct {
	factory *metrics.MetricsFactory
	logger  log.Logger
}

var panicRecoveredMetric = metrics.Metric{
	Name:        constant.MetricPanicRecoveredTotal,
	Unit:        "1",
	Description: "Total number of recovered panics",
}

var (
	panicMetricsInstance *PanicMetrics
	panicMetricsMu       sync.RWMutex
)

// InitPanicMetrics initializes panic metrics with the provided MetricsFactory.
// Subsequent calls are no-ops until ResetPanicMetrics is called.
func InitPanicMetrics(factory *metrics.MetricsFactory, logger log.Logger) {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	if factory == nil || panicMetricsInstance != nil {
		return
	}

	panicMetricsInstance = &PanicMetrics{
		factory: factory,
		logger:  logger,
	}
}

// GetPanicMetrics returns the singleton PanicMetrics instance, or nil.
func GetPanicMetrics() *PanicMetrics {
	panicMetricsMu.RLock()
	defer panicMetricsMu.RUnlock()

	return panicMetricsInstance
}

// ResetPanicMetrics clears the panic metrics singleton.
func ResetPanicMetrics() {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	panicMetricsInstance = nil
}

// RecordPanicRecovered increments the panic_recovered_total counter.
func (pm *PanicMetrics) RecordPanicRecovered(ctx context.Context, component, goroutineName string) {
	if pm == nil || pm.factory == nil {
		return
	}

	counter, err := pm.factory.Counter(panicRecoveredMetric)
	if err != nil {
		if pm.logger != nil {
			pm.logger.Log(ctx, log.LevelWarn, "failed to create panic metric counter", log.Err(err))
		}

		return
	}

	err = counter.
		WithAttributes(
			attribute.String("component", sanitizeLabel(component)),
			attribute.String("goroutine_name", sanitizeLabel(goroutineName)),
		).
		AddOne(ctx)
	if err != nil && pm.logger != nil {
		pm.logger.Log(ctx, log.LevelWarn, "failed to record panic metric", log.Err(err))
	}
}

func recordPanicMetric(ctx context.Context, component, goroutineName string) {
	if pm := GetPanicMetrics(); pm != nil {
		pm.RecordPanicRecovered(ctx, component, goroutineName)
	}
}

func sanitizeLabel(value string) string {
	if len(value) > constant.MaxMetricLabelLength {
		return value[:constant.MaxMetricLabelLength]
	}

	return value
}
