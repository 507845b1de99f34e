package resolver

import (
	"context"
	"fmt"
)

// Scope holds the variables visible to expression evaluation. Page variables
// are added one at a time so each resolved variable is available to the ones
// declared after it.
type Scope map[string]interface{}

// Clone returns an independent copy so a render cannot mutate the caller's
// scope.
func (s Scope) Clone() Scope {
	out := make(Scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Set stores a resolved variable in the scope.
func (s Scope) Set(name string, value interface{}) {
	s[name] = value
}

// Resolver evaluates a dynamic expression against a variable scope. The
// engine never evaluates expressions itself; the host injects an
// implementation (Home Assistant templates in production, a static map in
// tests).
type Resolver interface {
	Resolve(ctx context.Context, expr string, scope Scope) (interface{}, error)
}

// ResolveError wraps an evaluation failure with the expression that caused
// it.
type ResolveError struct {
	Expr string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", e.Expr, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Func adapts an ordinary function to the Resolver interface.
type Func func(ctx context.Context, expr string, scope Scope) (interface{}, error)

func (f Func) Resolve(ctx context.Context, expr string, scope Scope) (interface{}, error) {
	return f(ctx, expr, scope)
}

// Static is a map-backed resolver. Scope entries take precedence over the
// static values, mirroring how page variables shadow ambient state.
type Static struct {
	Values map[string]interface{}
}

// NewStatic creates a Static resolver from the given expression table.
func NewStatic(values map[string]interface{}) *Static {
	if values == nil {
		values = make(map[string]interface{})
	}
	return &Static{Values: values}
}

func (s *Static) Resolve(ctx context.Context, expr string, scope Scope) (interface{}, error) {
	if v, ok := scope[expr]; ok {
		return v, nil
	}
	if v, ok := s.Values[expr]; ok {
		return v, nil
	}
	return nil, &ResolveError{Expr: expr, Err: fmt.Errorf("unknown expression")}
}
