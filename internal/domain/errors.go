package domain

import (
	"errors"
	"fmt"
)

// DataError reports malformed or missing price data. It is raised before any
// optimization model is built.
type DataError struct {
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	if e.Field == "" {
		return "invalid data: " + e.Reason
	}
	return fmt.Sprintf("invalid data: %s: %s", e.Field, e.Reason)
}

// NewDataError creates a DataError with a formatted reason.
func NewDataError(field, format string, args ...any) error {
	return &DataError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsDataError reports whether err wraps a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
