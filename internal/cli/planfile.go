package cli

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/LerianStudio/lib-txplan/txplan/plan"
	"github.com/LerianStudio/lib-txplan/txplan/query"
)

// Plan file error codes.
const (
	CodeLoad       = "E001"
	CodeSchema     = "E002"
	CodeReference  = "E003"
	CodeDependency = "E004"
	CodeQuery      = "E005"
	CodeTx         = "E006"
	CodeConnection = "E007"
)

var (
	// ErrInvalidPlanFile is returned when a plan file fails schema validation.
	ErrInvalidPlanFile = errors.New("invalid plan file")
	// ErrUnknownStep is returned when a reference names a step that does not exist.
	ErrUnknownStep = errors.New("reference to unknown step")
	// ErrForwardReference is returned when a reference names the same or a later step.
	ErrForwardReference = errors.New("reference to a step that has not run yet")
	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PlanFile is the YAML description of a plan.
type PlanFile struct {
	Steps []StepSpec `yaml:"steps" validate:"required,min=1,dive"`
}

// StepSpec describes one step.
type StepSpec struct {
	Name   string               `yaml:"name" validate:"required,identifier"`
	SQL    string               `yaml:"sql" validate:"required"`
	Shape  string               `yaml:"shape" validate:"required,oneof=exec scalar row rows column"`
	Params map[string]ParamSpec `yaml:"params" validate:"dive,keys,identifier,endkeys"`
}

// ParamSpec is either a literal or a reference to an earlier step.
type ParamSpec struct {
	Literal any
	Ref     *RefSpec `validate:"omitempty"`
}

// RefSpec references an earlier step's result. A "row" reference is spread into the
// step's parameters.
type RefSpec struct {
	Kind   string `yaml:"ref" validate:"required,oneof=field column row"`
	From   string `yaml:"from" validate:"required,identifier"`
	Column string `yaml:"column"`
	Row    int    `yaml:"row" validate:"gte=0"`
}

// UnmarshalYAML decodes a mapping carrying a "ref" key as a reference and anything else
// as a literal.
func (p *ParamSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value != "ref" {
				continue
			}

			var ref RefSpec
			if err := node.Decode(&ref); err != nil {
				return err
			}

			p.Ref = &ref

			return nil
		}
	}

	return node.Decode(&p.Literal)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		vld := validator.New(validator.WithRequiredStructEnabled())

		if err := vld.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			return identifierPattern.MatchString(fl.Field().String())
		}); err != nil {
			errValidate = fmt.Errorf("register identifier validation: %w", err)

			return
		}

		validate = vld
	})

	return validate, errValidate
}

// LoadPlanFile reads, decodes and checks the plan file at path.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParsePlanFile(data)
}

// ParsePlanFile decodes and checks a plan file.
func ParsePlanFile(data []byte) (*PlanFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file PlanFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlanFile, err)
	}

	vld, err := getValidator()
	if err != nil {
		return nil, err
	}

	if err := vld.Struct(&file); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]

			return nil, fmt.Errorf("%w: %s failed on %q", ErrInvalidPlanFile, fe.Namespace(), fe.Tag())
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidPlanFile, err)
	}

	if err := file.checkReferences(); err != nil {
		return nil, err
	}

	return &file, nil
}

// ReferenceError locates a bad reference in the plan file.
type ReferenceError struct {
	Step  string
	Index int
	Param string
	Err   error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("step %d (%s) param %q: %v", e.Index, e.Step, e.Param, e.Err)
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

func (f *PlanFile) checkReferences() error {
	positions := make(map[string]int, len(f.Steps))

	for i, step := range f.Steps {
		if _, dup := positions[step.Name]; dup {
			return &ReferenceError{Step: step.Name, Index: i, Err: ErrDuplicateStep}
		}

		positions[step.Name] = i
	}

	for i, step := range f.Steps {
		for _, name := range slices.Sorted(maps.Keys(step.Params)) {
			param := step.Params[name]
			if param.Ref == nil {
				continue
			}

			from, ok := positions[param.Ref.From]

			switch {
			case !ok:
				return &ReferenceError{Step: step.Name, Index: i, Param: name, Err: fmt.Errorf("%w %q", ErrUnknownStep, param.Ref.From)}
			case from >= i:
				return &ReferenceError{Step: step.Name, Index: i, Param: name, Err: fmt.Errorf("%w %q", ErrForwardReference, param.Ref.From)}
			}
		}
	}

	return nil
}

var shapes = map[string]func(string, ...query.Option) *query.Statement{
	"exec":   query.Exec,
	"scalar": query.Scalar,
	"row":    query.One,
	"rows":   query.All,
	"column": query.Column,
}

// Build turns the file into a plan. It returns the handle of every step in file order.
func (f *PlanFile) Build(dialect query.Dialect) (*plan.Plan, []plan.Handle[any], error) {
	p := plan.New()
	handles := make([]plan.Handle[any], 0, len(f.Steps))
	byName := make(map[string]plan.Handle[any], len(f.Steps))

	for i, step := range f.Steps {
		newStatement, ok := shapes[step.Shape]
		if !ok {
			return nil, nil, fmt.Errorf("%w: step %d has unknown shape %q", ErrInvalidPlanFile, i, step.Shape)
		}

		params := make(plan.Params, len(step.Params))

		for name, param := range step.Params {
			if param.Ref == nil {
				params[name] = param.Literal

				continue
			}

			h, ok := byName[param.Ref.From]
			if !ok {
				return nil, nil, &ReferenceError{Step: step.Name, Index: i, Param: name, Err: fmt.Errorf("%w %q", ErrUnknownStep, param.Ref.From)}
			}

			params[name] = refValue(h, param.Ref)
		}

		h := p.AddStep(newStatement(step.SQL, query.WithDialect(dialect)), params)
		handles = append(handles, h)
		byName[step.Name] = h
	}

	return p, handles, nil
}

func refValue(h plan.Handle[any], ref *RefSpec) any {
	switch ref.Kind {
	case "column":
		if ref.Column == "" {
			return plan.Scalars[any](h)
		}

		return h.Column(ref.Column)
	case "row":
		return h.Row(ref.Row)
	default:
		if ref.Column == "" {
			return h.Field(ref.Row)
		}

		return plan.Field[any](h, ref.Column, ref.Row)
	}
}
