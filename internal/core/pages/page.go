// Package pages defines the typed page and component model rendered onto
// pixel displays, including the dynamic-field resolution contract.
package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// Kind discriminates the two page forms.
type Kind string

const (
	// KindComponents is a layout of components.
	KindComponents Kind = "components"
	// KindTemplateReference names a pre-authored page to load from the
	// page store and render with supplied variables.
	KindTemplateReference Kind = "template-reference"
)

// DefaultDuration applies when a rotation page does not declare its own.
const DefaultDuration = 15 * time.Second

// Variable is one entry of a page's ordered variable list. Variables
// resolve left to right; earlier results are visible to later expressions
// and to component fields.
type Variable struct {
	Name  string   `json:"name"`
	Value DynValue `json:"value"`
}

// VariableError identifies which page variable failed to resolve. A
// variable failure aborts the whole page, since later components may depend
// on it.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("variables.%s: %v", e.Name, e.Err)
}

func (e *VariableError) Unwrap() error { return e.Err }

// Page is one renderable unit.
type Page struct {
	Kind       Kind
	Name       string
	Duration   time.Duration
	Enabled    DynBool
	Variables  []Variable
	Background *colorspec.Spec
	Components []Component
}

type pageJSON struct {
	Kind       Kind              `json:"kind"`
	Name       string            `json:"name,omitempty"`
	Duration   float64           `json:"duration,omitempty"`
	Enabled    DynBool           `json:"enabled,omitempty"`
	Variables  []Variable        `json:"variables,omitempty"`
	Background *colorspec.Spec   `json:"background,omitempty"`
	Components []json.RawMessage `json:"components,omitempty"`
}

// ParsePage decodes and validates a page definition. Structural problems
// (missing discriminator, empty component list, negative duration) are
// rejected here, before any render is attempted.
func ParsePage(data []byte) (*Page, error) {
	var pj pageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("invalid page definition: %w", err)
	}

	p := &Page{
		Kind:       pj.Kind,
		Name:       pj.Name,
		Enabled:    pj.Enabled,
		Variables:  pj.Variables,
		Background: pj.Background,
	}

	if pj.Duration < 0 {
		return nil, fmt.Errorf("page duration must be positive, got %v", pj.Duration)
	}
	p.Duration = time.Duration(pj.Duration * float64(time.Second))

	for i, raw := range pj.Components {
		c, err := ParseComponent(raw)
		if err != nil {
			return nil, fmt.Errorf("components[%d]: %w", i, err)
		}
		p.Components = append(p.Components, c)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the structural invariants that must hold before a render
// is attempted.
func (p *Page) Validate() error {
	switch p.Kind {
	case KindComponents:
		if len(p.Components) == 0 {
			return fmt.Errorf("components page must declare at least one component")
		}
	case KindTemplateReference:
		if p.Name == "" {
			return fmt.Errorf("template-reference page requires a name")
		}
	case "":
		return fmt.Errorf("page is missing its kind")
	default:
		return fmt.Errorf("unknown page kind %q", p.Kind)
	}
	if p.Duration < 0 {
		return fmt.Errorf("page duration must be positive")
	}
	return nil
}

// EffectiveDuration returns the page's own duration or the rotation
// default.
func (p *Page) EffectiveDuration(def time.Duration) time.Duration {
	if p.Duration > 0 {
		return p.Duration
	}
	if def > 0 {
		return def
	}
	return DefaultDuration
}

// IsEnabled re-evaluates the page's enable condition. Pages without an
// explicit condition are enabled. The result is never cached.
func (p *Page) IsEnabled(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (bool, error) {
	return p.Enabled.ResolveOr(ctx, res, scope, true)
}

// ExtendScope resolves the page variables in declared order, adding each
// result to scope so later variables and components can reference it.
func (p *Page) ExtendScope(ctx context.Context, res resolver.Resolver, scope resolver.Scope) error {
	for _, v := range p.Variables {
		val, err := v.Value.Resolve(ctx, res, scope)
		if err != nil {
			return &VariableError{Name: v.Name, Err: err}
		}
		scope.Set(v.Name, val)
	}
	return nil
}

// WithVariables returns a shallow copy with vars prepended, so a
// template-reference's supplied variables resolve before the stored page's
// own.
func (p *Page) WithVariables(vars []Variable) *Page {
	if len(vars) == 0 {
		return p
	}
	clone := *p
	clone.Variables = append(append([]Variable{}, vars...), p.Variables...)
	return &clone
}
