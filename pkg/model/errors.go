package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a semantic problem in otherwise well-formed
// configuration, such as a duplicate name or a release without a chart.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func validationErrorf(file, format string, args ...interface{}) *ValidationError {
	return &ValidationError{File: file, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a lookup of an undefined cluster, environment or
// release.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no such %s: %q", e.Kind, e.Name)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
