// Package analysis is the boundary to the external QC analysis service.
// The job subsystem only needs two things from it: a function to execute
// a payload reference, and a way to tell transient failures from fatal ones.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
)

// Func executes the QC analysis for a payload reference and returns the
// structured result. It may be slow and it may fail; callers classify the
// error via IsTransient.
type Func func(ctx context.Context, payloadRef string) (json.RawMessage, error)

// Error kinds reported by the analyzer boundary.
const (
	KindNetwork     = "Network"
	KindUnavailable = "Unavailable"
	KindValidation  = "Validation"
	KindInternal    = "Internal"
)

// Error is a classified analysis failure. Transient failures are expected
// to succeed on retry; fatal ones need human or data intervention.
type Error struct {
	Kind      string
	Message   string
	Transient bool
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

// IsTransient classifies an execution error. Tagged errors carry their
// own hint; untagged errors default to transient. The attempt budget
// bounds the damage of retrying a truly fatal error, while a wrong
// "fatal" verdict would lose the work permanently.
func IsTransient(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Transient
	}
	return true
}

// Kind extracts the error kind for job/DLQ records.
func Kind(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
