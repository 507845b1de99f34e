package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// Dynamic fields are sum types: either a literal of the target type or an
// expression string resolved once per render through the injected value
// resolver.

// DynInt is an integer field that may be written as a number or an
// expression. Fractional resolved values truncate toward zero.
type DynInt struct {
	lit  int
	expr string
	set  bool
}

// Int builds a literal DynInt.
func Int(v int) DynInt { return DynInt{lit: v, set: true} }

// IntExpr builds a dynamic DynInt.
func IntExpr(expr string) DynInt { return DynInt{expr: expr, set: true} }

// IsSet reports whether the field appeared in the page definition.
func (d DynInt) IsSet() bool { return d.set }

func (d *DynInt) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		d.lit = int(f)
		d.set = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or expression, got %s", string(data))
	}
	d.expr = s
	d.set = true
	return nil
}

// Resolve produces the concrete integer. Unset fields resolve to zero.
func (d DynInt) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (int, error) {
	if d.expr == "" {
		return d.lit, nil
	}
	v, err := res.Resolve(ctx, d.expr, scope)
	if err != nil {
		return 0, err
	}
	return resolver.ToInt(v)
}

// OrDefault resolves the field, substituting def when it was never set.
func (d DynInt) OrDefault(ctx context.Context, res resolver.Resolver, scope resolver.Scope, def int) (int, error) {
	if !d.set {
		return def, nil
	}
	return d.Resolve(ctx, res, scope)
}

// DynFloat is a float field that may be written as a number or an
// expression. Used for arc angles and graph bounds.
type DynFloat struct {
	lit  float64
	expr string
	set  bool
}

// Float builds a literal DynFloat.
func Float(v float64) DynFloat { return DynFloat{lit: v, set: true} }

func (d DynFloat) IsSet() bool { return d.set }

func (d *DynFloat) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		d.lit = f
		d.set = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or expression, got %s", string(data))
	}
	d.expr = s
	d.set = true
	return nil
}

func (d DynFloat) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (float64, error) {
	if d.expr == "" {
		return d.lit, nil
	}
	v, err := res.Resolve(ctx, d.expr, scope)
	if err != nil {
		return 0, err
	}
	return resolver.ToFloat(v)
}

// DynBool is a boolean field that may be written as a bool literal or an
// expression. Unset fields resolve to the provided default.
type DynBool struct {
	lit  bool
	expr string
	set  bool
}

// Bool builds a literal DynBool.
func Bool(v bool) DynBool { return DynBool{lit: v, set: true} }

// BoolExpr builds a dynamic DynBool.
func BoolExpr(expr string) DynBool { return DynBool{expr: expr, set: true} }

func (d DynBool) IsSet() bool { return d.set }

func (d *DynBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		d.lit = b
		d.set = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected bool or expression, got %s", string(data))
	}
	d.expr = s
	d.set = true
	return nil
}

// ResolveOr evaluates the field, returning def when it was never set. The
// result is never cached; callers re-evaluate every time the value is
// considered.
func (d DynBool) ResolveOr(ctx context.Context, res resolver.Resolver, scope resolver.Scope, def bool) (bool, error) {
	if !d.set {
		return def, nil
	}
	if d.expr == "" {
		return d.lit, nil
	}
	v, err := res.Resolve(ctx, d.expr, scope)
	if err != nil {
		return false, err
	}
	return resolver.ToBool(v)
}

// DynString is a text field. Strings containing template markers ("{{" or
// "{%") are treated as expressions; anything else is a literal.
type DynString struct {
	value string
	set   bool
}

// String builds a DynString (literal or templated, depending on content).
func String(v string) DynString { return DynString{value: v, set: true} }

func (d DynString) IsSet() bool { return d.set }

func (d *DynString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected string, got %s", string(data))
	}
	d.value = s
	d.set = true
	return nil
}

func isTemplated(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

func (d DynString) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (string, error) {
	if !isTemplated(d.value) {
		return d.value, nil
	}
	v, err := res.Resolve(ctx, d.value, scope)
	if err != nil {
		return "", err
	}
	return resolver.ToString(v), nil
}

// DynValue is an untyped dynamic field, used for page variables. String
// literals are always treated as expressions; any other JSON value is
// literal.
type DynValue struct {
	lit  interface{}
	expr string
	set  bool
}

// Value builds a literal DynValue.
func Value(v interface{}) DynValue { return DynValue{lit: v, set: true} }

// ValueExpr builds a dynamic DynValue.
func ValueExpr(expr string) DynValue { return DynValue{expr: expr, set: true} }

func (d *DynValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.expr = s
		d.set = true
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	d.lit = v
	d.set = true
	return nil
}

func (d DynValue) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (interface{}, error) {
	if d.expr == "" {
		return d.lit, nil
	}
	return res.Resolve(ctx, d.expr, scope)
}

// DynFloats is a number-series field, used by graph components. Arrays are
// literal; a string is an expression resolving to a series.
type DynFloats struct {
	lit  []float64
	expr string
	set  bool
}

// Floats builds a literal series.
func Floats(v []float64) DynFloats { return DynFloats{lit: v, set: true} }

// FloatsExpr builds a dynamic series.
func FloatsExpr(expr string) DynFloats { return DynFloats{expr: expr, set: true} }

func (d DynFloats) IsSet() bool { return d.set }

func (d *DynFloats) UnmarshalJSON(data []byte) error {
	var nums []float64
	if err := json.Unmarshal(data, &nums); err == nil {
		d.lit = nums
		d.set = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number array or expression, got %s", string(data))
	}
	d.expr = s
	d.set = true
	return nil
}

func (d DynFloats) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) ([]float64, error) {
	if d.expr == "" {
		return d.lit, nil
	}
	v, err := res.Resolve(ctx, d.expr, scope)
	if err != nil {
		return nil, err
	}
	return resolver.ToFloatSlice(v)
}
