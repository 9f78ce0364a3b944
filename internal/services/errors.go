// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized means the actor is not a member of the group resolved for the proposal.
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidStatus      = errors.New("invalid status transition")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate record")
	ErrNoDefaultGroup     = errors.New("no default group configured")
	ErrReferralCannotSend = errors.New("referral cannot be sent")
)

// MissingFieldsError lists the required proposal fields that were left empty at submission.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "The proposal has these missing fields, " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrValidation
}

func notAuthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotAuthorized, fmt.Sprintf(format, args...))
}

func invalidStatus(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStatus, fmt.Sprintf(format, args...))
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsDomainError reports whether err is a rejection the caller caused, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, sentinel := range []error{ErrNotAuthorized, ErrInvalidStatus, ErrValidation, ErrDuplicate, ErrReferralCannotSend, ErrNotFound} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsDomainError(err):
		return "rejected"
	}
	return "error"
}

// ErrorMessage strips the sentinel prefix so handlers can show the human readable part.
func ErrorMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrNotAuthorized, ErrInvalidStatus, ErrValidation, ErrDuplicate, ErrReferralCannotSend, ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
