// Package errdef provides structured error types for the memvault stores.
package errdef

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrValidation   = errors.New("validation failed")
	ErrExists       = errors.New("resource already exists")
)

// Kind classifies a store failure for the error detector.
type Kind string

const (
	KindMissingFile       Kind = "missing_file"
	KindInvalidJSON       Kind = "invalid_json"
	KindInconsistentState Kind = "inconsistent_state"
	KindCorruptedData     Kind = "corrupted_data"
)

// Severity grades how much a failure threatens project data integrity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordinal for severity comparisons (low=0 … critical=3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// StoreError represents a classified failure while reading or writing a
// project file. The error detector consumes the Kind; callers unwrap Err.
type StoreError struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a classified store error.
func NewStoreError(op, path string, kind Kind, err error) *StoreError {
	return &StoreError{Op: op, Path: path, Kind: kind, Err: err}
}

// KindOf extracts the failure classification from an error chain.
func KindOf(err error) (Kind, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
