package transaction

import (
	"fmt"
	"strings"
)

// Propagation decides how a new scope relates to the ambient one.
type Propagation int

const (
	// Required joins the ambient transaction or starts a new one.
	Required Propagation = iota
	// RequiresNew always starts an independent transaction, suspending the ambient one.
	RequiresNew
	// Nested opens a savepoint in the ambient transaction, or acts as Required without one.
	Nested
)

// String returns the canonical upper-case name.
func (p Propagation) String() string {
	switch p {
	case Required:
		return "REQUIRED"
	case RequiresNew:
		return "REQUIRES_NEW"
	case Nested:
		return "NESTED"
	default:
		return fmt.Sprintf("Propagation(%d)", int(p))
	}
}

// IsValid reports whether p is one of the defined modes.
func (p Propagation) IsValid() bool {
	return p >= Required && p <= Nested
}

// ParsePropagation accepts the canonical names case-insensitively, with '-' or '_'.
func ParsePropagation(s string) (Propagation, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "REQUIRED", "":
		return Required, nil
	case "REQUIRES_NEW":
		return RequiresNew, nil
	case "NESTED":
		return Nested, nil
	}

	return Required, fmt.Errorf("%w: %q", ErrInvalidPropagation, s)
}
