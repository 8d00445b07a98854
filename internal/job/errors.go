package job

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyStatusHistory is returned when a frame carries no status entries
	ErrEmptyStatusHistory = errors.New("status history is empty")

	// ErrMissingField is returned when a required frame field is empty
	ErrMissingField = errors.New("required field missing")

	// ErrInvalidTimestamp is returned when a timestamp matches no accepted layout
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidShape is returned when a frame does not match the job schema
	ErrInvalidShape = errors.New("frame does not match job schema")
)

// ConstructionError reports why a Resource could not be built from a frame.
type ConstructionError struct {
	Field string
	Err   error
}

func (e *ConstructionError) Error() string {
	if e.Field == "" {
		return "construct job: " + e.Err.Error()
	}
	return fmt.Sprintf("construct job: %s: %s", e.Field, e.Err.Error())
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// ShapeError lists the schema violations of a frame.
type ShapeError struct {
	Violations []string
}

func (e *ShapeError) Error() string {
	return ErrInvalidShape.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *ShapeError) Unwrap() error {
	return ErrInvalidShape
}
