package capability

import (
	"context"
	"fmt"
	"sort"
)

// Registry maps capability names to implementations. It is filled once by
// NewRegistry and read-only afterwards, so it can be shared across requests
// without locking.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry registers caps. Empty or duplicate names are rejected.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if c == nil {
			return nil, fmt.Errorf("registering capability: nil capability")
		}
		name := c.Name()
		if name == "" {
			return nil, fmt.Errorf("registering capability: empty name")
		}
		if _, dup := r.caps[name]; dup {
			return nil, fmt.Errorf("registering capability %q: already registered", name)
		}
		r.caps[name] = c
	}
	return r, nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (Capability, error) {
	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke calls c and converts any failure, including a panic inside the
// capability, into an *Error.
func Invoke(ctx context.Context, c Capability, args Args) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &Error{Name: c.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err = c.Invoke(ctx, args)
	if err != nil {
		return "", &Error{Name: c.Name(), Err: err}
	}
	return out, nil
}
