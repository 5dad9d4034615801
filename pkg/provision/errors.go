package provision

import (
	"errors"
	"fmt"
)

// EnvelopeError is returned when the CMS container around a profile cannot be
// parsed or carries no content.
type EnvelopeError struct {
	Stage string // "parse" or "content"
	Cause error
}

func (e *EnvelopeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to unwrap signed envelope (%s): %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("failed to unwrap signed envelope (%s)", e.Stage)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Cause
}

// RecordError is returned when the property list inside the envelope is not a
// complete provisioning profile record.
type RecordError struct {
	Field  string // empty when the record itself could not be parsed
	Reason string
	Cause  error
}

func (e *RecordError) Error() string {
	msg := "invalid provisioning profile record"
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.Field, e.Reason)
	} else if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RecordError) Unwrap() error {
	return e.Cause
}

// CertificateDecodeError is returned when the subject or validity of an
// embedded certificate cannot be read.
type CertificateDecodeError struct {
	Field string // "subject" or "validity"
	Cause error
}

func (e *CertificateDecodeError) Error() string {
	return fmt.Sprintf("failed to decode certificate %s: %v", e.Field, e.Cause)
}

func (e *CertificateDecodeError) Unwrap() error {
	return e.Cause
}

// KeychainAccessError is returned when the signing identities cannot be
// loaded. It is fatal for an analysis run.
type KeychainAccessError struct {
	Source string
	Cause  error
}

func (e *KeychainAccessError) Error() string {
	return fmt.Sprintf("failed to read signing identities from %s: %v", e.Source, e.Cause)
}

func (e *KeychainAccessError) Unwrap() error {
	return e.Cause
}

// PathResolutionError is returned when no profile file exists for an argument.
type PathResolutionError struct {
	Arg   string
	Tried []string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("no provisioning profile found for %q", e.Arg)
}

// IsFatal reports whether err must abort the whole analysis run.
func IsFatal(err error) bool {
	var kerr *KeychainAccessError
	return errors.As(err, &kerr)
}
