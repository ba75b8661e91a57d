package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider marks failures of the embedding or index service.
	ErrProvider = errors.New("provider error")
	// ErrMissingCompanionData marks an absent image embedding for a document.
	ErrMissingCompanionData = errors.New("missing companion data")
	// ErrDimensionMismatch marks a vector whose width disagrees with the configuration.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNotFound marks a missing collection or missing chunks for a document.
	ErrNotFound = errors.New("not found")
)

// ProviderError wraps a failed call to an external service.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// DimensionError reports a vector of the wrong width.
type DimensionError struct {
	What string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: width %d, expected %d", e.What, e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// StageError identifies the pipeline stage and artifact a failure belongs to.
type StageError struct {
	Stage    string
	Artifact string
	Err      error
}

func (e *StageError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Artifact, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
