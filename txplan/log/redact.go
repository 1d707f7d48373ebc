package log

import "fmt"

// RedactedErr returns Err(err), or only the error's dynamic type when redact is set.
// Driver errors can echo bound parameter values, so production callers redact them.
func RedactedErr(err error, redact bool) Field {
	if redact && err != nil {
		return String("error_type", fmt.Sprintf("%T", err))
	}

	return Err(err)
}
