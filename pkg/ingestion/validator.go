package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	errInvalidSource = errors.New("invalid source")
	errEmptyBatch    = errors.New("missing vitals records")
	errInvalidRecord = errors.New("invalid vitals record")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Validator struct {
	allowedSources map[string]struct{}
}

func NewValidator(sources []string) *Validator {
	vs := make(map[string]struct{})
	for _, src := range sources {
		if trimmed := strings.TrimSpace(strings.ToLower(src)); trimmed != "" {
			vs[trimmed] = struct{}{}
		}
	}
	return &Validator{allowedSources: vs}
}

// Validate rejects a whole batch when the source is unknown, when it is
// empty, or when any record lacks a patient, a parseable date, or any
// measurement at all. Batches are all-or-nothing.
func (v *Validator) Validate(upload VitalsUpload) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}

	source := strings.TrimSpace(strings.ToLower(upload.Source))
	if source == "" {
		return ValidationError{reason: fmt.Errorf("source required: %w", errInvalidSource)}
	}
	if len(v.allowedSources) > 0 {
		if _, ok := v.allowedSources[source]; !ok {
			return ValidationError{reason: fmt.Errorf("source '%s' not allowed: %w", source, errInvalidSource)}
		}
	}

	if len(upload.Records) == 0 {
		return ValidationError{reason: errEmptyBatch}
	}

	for i, rec := range upload.Records {
		if strings.TrimSpace(rec.PatientID) == "" {
			return ValidationError{reason: fmt.Errorf("record %d: patient_id required: %w", i, errInvalidRecord)}
		}
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(rec.Date)); err != nil {
			return ValidationError{reason: fmt.Errorf("record %d: date must be YYYY-MM-DD: %w", i, errInvalidRecord)}
		}
		if !rec.hasMeasurement() {
			return ValidationError{reason: fmt.Errorf("record %d: at least one measurement required: %w", i, errInvalidRecord)}
		}
	}
	return nil
}
