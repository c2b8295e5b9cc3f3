package analysis

import (
	"context"
	"errors"
)

// ErrorKind classifies a failure in user-facing terms.
type ErrorKind string

const (
	KindUnreadableDocument ErrorKind = "unreadable_document"
	KindUnknownCapability  ErrorKind = "unknown_capability"
	KindCapabilityError    ErrorKind = "capability_error"
	KindTransient          ErrorKind = "transient"
	KindRefused            ErrorKind = "refused"
	KindTimeout            ErrorKind = "timeout"
)

// Describe returns a plain-language explanation of the failure kind.
func (k ErrorKind) Describe() string {
	switch k {
	case KindUnreadableDocument:
		return "The uploaded document could not be read as a lab report."
	case KindUnknownCapability:
		return "This analysis is not configured correctly and could not run."
	case KindCapabilityError:
		return "A tool this analysis depends on was unavailable."
	case KindTransient:
		return "The analysis service was temporarily unavailable. Please try again later."
	case KindRefused:
		return "The analysis service declined to produce a usable answer."
	case KindTimeout:
		return "The analysis took too long and was stopped."
	default:
		return "The analysis failed."
	}
}

// Classifier lets an error declare its own kind. Package sentinel errors
// implement it so KindOf can map a wrapped chain without importing every
// package that produces errors.
type Classifier interface {
	Kind() ErrorKind
}

// KindOf walks err's chain and returns the first declared kind.
// Deadline and cancellation errors map to KindTimeout. Anything
// unrecognised is KindRefused, so it is never retried as if transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindRefused
}

// kindError is a sentinel error that carries an ErrorKind.
type kindError struct {
	msg  string
	kind ErrorKind
}

func (e *kindError) Error() string   { return e.msg }
func (e *kindError) Kind() ErrorKind { return e.kind }

// NewKindError returns a sentinel error classified as kind.
func NewKindError(msg string, kind ErrorKind) error {
	return &kindError{msg: msg, kind: kind}
}
