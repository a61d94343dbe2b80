package httpx

import "fmt"

type invalidError struct {
	msg string
}

func (e invalidError) Error() string { return e.msg }

func (e invalidError) Is(target error) bool { return target == ErrValidation }

// Invalid returns a validation error that keeps msg verbatim while still
// matching ErrValidation.
func Invalid(msg string) error {
	return invalidError{msg: msg}
}

// Invalidf is Invalid with formatting.
func Invalidf(format string, args ...any) error {
	return invalidError{msg: fmt.Sprintf(format, args...)}
}
