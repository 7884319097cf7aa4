// Package queryerr defines the errors a query can fail with. None of them are
// retryable: each means the statement is invalid for the schema it ran
// against.
package queryerr

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound      = errors.New("table not found")
	ErrColumnNotFound     = errors.New("column not found")
	ErrParameterNotFound  = errors.New("parameter not found")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrUnsupportedFeature = errors.New("unsupported feature")
)

type TableNotFound struct {
	Table string
}

func (e TableNotFound) Error() string {
	return fmt.Sprintf("table not found: %s", e.Table)
}

func (e TableNotFound) Unwrap() error {
	return ErrTableNotFound
}

type ColumnNotFound struct {
	Table  string
	Column string
}

func (e ColumnNotFound) Error() string {
	return fmt.Sprintf("column not found: %s.%s", e.Table, e.Column)
}

func (e ColumnNotFound) Unwrap() error {
	return ErrColumnNotFound
}

// ParameterNotFound carries the 1-based parameter index as written in the
// statement. Index 0 is never valid.
type ParameterNotFound struct {
	Index int
}

func (e ParameterNotFound) Error() string {
	return fmt.Sprintf("parameter not found: $%d", e.Index)
}

func (e ParameterNotFound) Unwrap() error {
	return ErrParameterNotFound
}

type TypeMismatch struct {
	Expected string
	Actual   string
}

func (e TypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e TypeMismatch) Unwrap() error {
	return ErrTypeMismatch
}

type UnsupportedFeature struct {
	Description string
}

func (e UnsupportedFeature) Error() string {
	return fmt.Sprintf("unsupported feature: %s", e.Description)
}

func (e UnsupportedFeature) Unwrap() error {
	return ErrUnsupportedFeature
}

func Unsupported(format string, args ...interface{}) error {
	return UnsupportedFeature{Description: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err belongs to the query error taxonomy, as
// opposed to a storage or internal failure.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrParameterNotFound) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnsupportedFeature)
}
