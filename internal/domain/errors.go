package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks across package boundaries
var (
	ErrSchema        = errors.New("schema error")
	ErrNotFound      = errors.New("data not found")
	ErrConfiguration = errors.New("configuration error")
)

// Notes attached to results produced by the documented degenerate-data fallbacks.
// They are not errors; they let a caller tell a low-confidence baseline from a fully trained model.
const (
	NoteSingleClassTraining = "Single-class training data; logistic regression skipped"
	NoteEmptyTestSet        = "Empty test set due to time-based split"
	NoteSingleClassTestSet  = "Single-class test set"
)

// SchemaError reports required transaction fields missing at the ingestion boundary
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid dataset schema: missing columns [%s]", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// DataNotFoundError reports that no transactions or features exist for a business
type DataNotFoundError struct {
	BusinessID string
	What       string
}

func (e *DataNotFoundError) Error() string {
	what := e.What
	if what == "" {
		what = "data"
	}
	if e.BusinessID == "" {
		return fmt.Sprintf("no %s found", what)
	}
	return fmt.Sprintf("no %s found for business %s", what, e.BusinessID)
}

func (e *DataNotFoundError) Unwrap() error { return ErrNotFound }

// ConfigurationError aborts a run: missing target column, unknown option, invalid value
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
