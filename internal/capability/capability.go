// Package capability holds the bounded external actions analysis roles may
// invoke, and the startup-time registry that resolves them by name.
package capability

import (
	"context"
	"fmt"

	"github.com/kalambet/bloodlens/internal/analysis"
)

// Well-known capability names.
const (
	DocumentRead    = "document-read"
	NutritionLookup = "nutrition-lookup"
	ExerciseLookup  = "exercise-lookup"
	WebSearch       = "web-search"
)

var (
	// ErrUnknownCapability is returned by Resolve for unregistered names.
	ErrUnknownCapability = analysis.NewKindError("unknown capability", analysis.KindUnknownCapability)
	// ErrCapability matches any *Error via errors.Is.
	ErrCapability = analysis.NewKindError("capability failed", analysis.KindCapabilityError)
)

// Args are the inputs a capability receives. Text is the extracted document
// text (or prior findings, for heuristics); Query is a free-text lookup.
type Args struct {
	Text  string
	Query string
}

// Capability is a named, invocable action. Implementations must be safe for
// concurrent use: one instance serves every request in the process.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, args Args) (string, error)
}

// Func adapts a plain function to the Capability interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, args Args) (string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Invoke(ctx context.Context, args Args) (string, error) {
	return f.Fn(ctx, args)
}

// Error reports a failed capability invocation.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capability %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrCapability.
func (e *Error) Is(target error) bool { return target == ErrCapability }

// Kind classifies the error for reporting.
func (e *Error) Kind() analysis.ErrorKind { return analysis.KindCapabilityError }
