package plan

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNilPlan is returned when a nil plan is passed.
	ErrNilPlan = errors.New("plan is nil")
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context is nil")
	// ErrNilManager is returned by NewExecutor without a transaction manager.
	ErrNilManager = errors.New("transaction manager is required")
	// ErrNilOperation is reported for a step added without an operation.
	ErrNilOperation = errors.New("step operation is nil")
	// ErrInvalidShape is reported for an operation declaring an unknown shape.
	ErrInvalidShape = errors.New("invalid extraction shape")
	// ErrShapeMismatch is reported when an operation returns a shape other than the one it declared.
	ErrShapeMismatch = errors.New("operation returned a result of an undeclared shape")
	// ErrSelfMerge is returned when a plan is merged into itself.
	ErrSelfMerge = errors.New("cannot merge a plan into itself")
	// ErrHandleAlreadyBound is returned when a merged plan carries handles the receiver already issued.
	ErrHandleAlreadyBound = errors.New("handle already bound in receiving plan")
	// ErrTypeMismatch is reported when a resolved value cannot be converted to the requested type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// DependencyKind classifies a failure to resolve a step parameter.
type DependencyKind string

// Dependency failure kinds.
const (
	KindDependencyOnFutureStep    DependencyKind = "DEPENDENCY_ON_FUTURE_STEP"
	KindUnknownStepHandle         DependencyKind = "UNKNOWN_STEP_HANDLE"
	KindResultNotFound            DependencyKind = "RESULT_NOT_FOUND"
	KindNullSourceResult          DependencyKind = "NULL_SOURCE_RESULT"
	KindRowIndexOutOfBounds       DependencyKind = "ROW_INDEX_OUT_OF_BOUNDS"
	KindResultNotList             DependencyKind = "RESULT_NOT_LIST"
	KindResultNotMapList          DependencyKind = "RESULT_NOT_MAP_LIST"
	KindInvalidRowAccessOnNonList DependencyKind = "INVALID_ROW_ACCESS_ON_NON_LIST"
	KindColumnNotFound            DependencyKind = "COLUMN_NOT_FOUND"
	KindScalarNotFound            DependencyKind = "SCALAR_NOT_FOUND"
	KindTransformationFailed      DependencyKind = "TRANSFORMATION_FAILED"
)

// Sentinels matched by errors.Is against a *DependencyError of the same kind.
var (
	ErrDependencyOnFutureStep    = errors.New(string(KindDependencyOnFutureStep))
	ErrUnknownStepHandle         = errors.New(string(KindUnknownStepHandle))
	ErrResultNotFound            = errors.New(string(KindResultNotFound))
	ErrNullSourceResult          = errors.New(string(KindNullSourceResult))
	ErrRowIndexOutOfBounds       = errors.New(string(KindRowIndexOutOfBounds))
	ErrResultNotList             = errors.New(string(KindResultNotList))
	ErrResultNotMapList          = errors.New(string(KindResultNotMapList))
	ErrInvalidRowAccessOnNonList = errors.New(string(KindInvalidRowAccessOnNonList))
	ErrColumnNotFound            = errors.New(string(KindColumnNotFound))
	ErrScalarNotFound            = errors.New(string(KindScalarNotFound))
	ErrTransformationFailed      = errors.New(string(KindTransformationFailed))
)

var kindSentinels = map[DependencyKind]error{
	KindDependencyOnFutureStep:    ErrDependencyOnFutureStep,
	KindUnknownStepHandle:         ErrUnknownStepHandle,
	KindResultNotFound:            ErrResultNotFound,
	KindNullSourceResult:          ErrNullSourceResult,
	KindRowIndexOutOfBounds:       ErrRowIndexOutOfBounds,
	KindResultNotList:             ErrResultNotList,
	KindResultNotMapList:          ErrResultNotMapList,
	KindInvalidRowAccessOnNonList: ErrInvalidRowAccessOnNonList,
	KindColumnNotFound:            ErrColumnNotFound,
	KindScalarNotFound:            ErrScalarNotFound,
	KindTransformationFailed:      ErrTransformationFailed,
}

// DependencyError reports a parameter that could not be resolved. No statement was
// dispatched for the step that carries it.
type DependencyError struct {
	Kind DependencyKind
	// ReferencedStep is the producing step index, or -1 when the handle is unknown.
	ReferencedStep int
	Column         string
	RowIndex       int
	Err            error
}

func (e *DependencyError) Error() string {
	msg := "step dependency " + string(e.Kind)

	if e.ReferencedStep >= 0 {
		msg += " (step " + strconv.Itoa(e.ReferencedStep)

		if e.Column != "" {
			msg += ", column " + strconv.Quote(e.Column)
		}

		msg += ", row " + strconv.Itoa(e.RowIndex) + ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is matches the sentinel of e's kind.
func (e *DependencyError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]

	return ok && target == sentinel
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// QueryError reports that a step's operation failed to execute.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return "query execution failed: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// StepError tags a *DependencyError or *QueryError with the index of the failing step.
type StepError struct {
	StepIndex int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("plan step %d: %v", e.StepIndex, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a label for the failure category of err: a dependency kind,
// "QUERY_EXECUTION", "TRANSACTION" or "UNKNOWN".
func ErrorKind(err error) string {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return string(depErr.Kind)
	}

	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		return "QUERY_EXECUTION"
	}

	if err != nil {
		return "TRANSACTION"
	}

	return "UNKNOWN"
}
