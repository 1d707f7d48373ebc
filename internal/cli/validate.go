package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LerianStudio/lib-txplan/txplan/plan"
	"github.com/LerianStudio/lib-txplan/txplan/query"
)

// ValidateResult is the data payload of a successful validate.
type ValidateResult struct {
	File  string `json:"file"`
	Steps int    `json:"steps"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan.yaml>",
		Short: "Check a plan file without touching a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	out := &formatter{format: rootOpts.Format, out: cmd.OutOrStdout()}

	file, p, err := loadPlan(path, query.DialectQuestion)
	if err != nil {
		return reportPlanFileError(out, file, err)
	}

	if rootOpts.Verbose && !out.json() {
		for i, step := range file.Steps {
			fmt.Fprintf(cmd.ErrOrStderr(), "  step %d %s (%s)\n", i, step.Name, step.Shape)
		}
	}

	result := ValidateResult{File: path, Steps: p.Len()}

	if out.json() {
		return out.encode(Response{Status: "ok", Data: result})
	}

	_, err = fmt.Fprintf(out.out, "✓ %s: %d steps\n", path, result.Steps)

	return err
}

// loadPlan reads the file, builds the plan and checks its references. The returned
// file is non-nil whenever decoding succeeded.
func loadPlan(path string, dialect query.Dialect) (*PlanFile, *plan.Plan, error) {
	file, err := LoadPlanFile(path)
	if err != nil {
		return nil, nil, err
	}

	p, _, err := file.Build(dialect)
	if err != nil {
		return file, nil, err
	}

	if err := p.Validate(); err != nil {
		return file, nil, err
	}

	return file, p, nil
}

func reportPlanFileError(out *formatter, file *PlanFile, err error) error {
	failure := Failure{Code: CodeSchema, Message: err.Error()}
	code := ExitFailure

	var refErr *ReferenceError
	var stepErr *plan.StepError

	switch {
	case errors.As(err, &refErr):
		failure.Code = CodeReference
		failure.StepIndex = &refErr.Index
		failure.StepName = refErr.Step
	case errors.As(err, &stepErr):
		failure.Code = CodeReference
		failure.StepIndex = &stepErr.StepIndex
		failure.StepName = file.stepName(stepErr.StepIndex)
	case !errors.Is(err, ErrInvalidPlanFile):
		failure.Code = CodeLoad
		code = ExitCommandError
	}

	if writeErr := out.failure(failure); writeErr != nil {
		return writeErr
	}

	return WrapExitError(code, "plan file rejected", err)
}

func (f *PlanFile) stepName(idx int) string {
	if f == nil || idx < 0 || idx >= len(f.Steps) {
		return ""
	}

	return f.Steps[idx].Name
}
