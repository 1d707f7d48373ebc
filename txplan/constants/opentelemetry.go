package constants

const (
	// MetricPanicRecoveredTotal is the counter metric for recovered panics.
	MetricPanicRecoveredTotal = "panic_recovered_total"
	// MetricAssertionFailedTotal is the counter metric for failed assertions.
	MetricAssertionFailedTotal = "assertion_failed_total"
	// MetricPlansExecutedTotal counts plan executions by outcome.
	MetricPlansExecutedTotal = "txplan_plans_executed_total"
	// MetricPlanStepsExecutedTotal counts steps that produced a stored result.
	MetricPlanStepsExecutedTotal = "txplan_plan_steps_executed_total"
	// MetricPlanDuration records plan execution wall time in milliseconds.
	MetricPlanDuration = "txplan_plan_duration_ms"
	// MetricTransactionsTotal counts transaction scopes by propagation and outcome.
	MetricTransactionsTotal = "txplan_transactions_total"
)

const (
	// EventAssertionFailed is the span event name for assertion failures.
	EventAssertionFailed = "assertion.failed"
	// EventPanicRecovered is the span event name for recovered panics.
	EventPanicRecovered = "panic.recovered"
	// EventSavepointRolledBack is recorded when a nested scope rolls back to its savepoint.
	EventSavepointRolledBack = "transaction.savepoint.rolled_back"
	// EventScopeRollbackOnly is recorded when a failed joined scope dooms its root transaction.
	EventScopeRollbackOnly = "transaction.scope.rollback_only"
)

const (
	// SpanPlanExecute names the span covering one plan execution.
	SpanPlanExecute = "txplan.plan.execute"
	// SpanPlanStep names the span covering one step.
	SpanPlanStep = "txplan.plan.step"
	// SpanTransactionScope names the span covering one propagation scope.
	SpanTransactionScope = "txplan.transaction.scope"
)

// MaxMetricLabelLength is the maximum length for metric labels to prevent cardinality explosion.
const MaxMetricLabelLength = 64
