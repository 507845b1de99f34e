// Package colorspec parses and resolves the color forms accepted by page
// definitions: RGB triples, #RRGGBB hex strings, named palette colors,
// dynamic expressions, and threshold lists.
package colorspec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// ErrInvalidColor is returned when a resolved value matches no accepted
// color form.
var ErrInvalidColor = errors.New("invalid color")

// RGB is the canonical resolved color, each channel clamped to 0-255.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// ToRGBA converts to the standard library color type with full opacity.
func (c RGB) ToRGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
)

var palette = map[string]RGB{
	"black":   {0, 0, 0},
	"white":   {255, 255, 255},
	"red":     {255, 0, 0},
	"green":   {0, 255, 0},
	"blue":    {0, 0, 255},
	"yellow":  {255, 255, 0},
	"cyan":    {0, 255, 255},
	"magenta": {255, 0, 255},
	"orange":  {255, 165, 0},
	"purple":  {128, 0, 128},
	"gray":    {128, 128, 128},
	"grey":    {128, 128, 128},
}

// Threshold pairs a breakpoint value with the color shown at or below it.
type Threshold struct {
	Value float64 `json:"value"`
	Color Spec    `json:"color"`
}

// Spec is a color as written in a page definition. Exactly one of the
// internal forms is populated after unmarshalling.
type Spec struct {
	literal    *RGB
	expr       string
	thresholds []Threshold
	current    string
	currentLit *float64
}

// FromRGB builds a literal spec.
func FromRGB(r, g, b uint8) Spec {
	return Spec{literal: &RGB{r, g, b}}
}

// FromExpr builds a dynamic spec.
func FromExpr(expr string) Spec {
	return Spec{expr: expr}
}

// FromThresholds builds a threshold-list spec whose current value comes from
// the given expression.
func FromThresholds(valueExpr string, thresholds []Threshold) Spec {
	return Spec{thresholds: thresholds, current: valueExpr}
}

// IsZero reports whether the spec was left unset in the page definition.
func (s Spec) IsZero() bool {
	return s.literal == nil && s.expr == "" && len(s.thresholds) == 0
}

// UnmarshalJSON accepts a 3-number array, a hex/named/expression string, or
// a threshold-list object.
func (s *Spec) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var nums []float64
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidColor, err)
		}
		rgb, err := fromTriple(nums)
		if err != nil {
			return err
		}
		s.literal = &rgb
		return nil

	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidColor, err)
		}
		if rgb, err := parseString(str); err == nil {
			s.literal = &rgb
			return nil
		}
		s.expr = str
		return nil

	case '{':
		var obj struct {
			Thresholds []Threshold     `json:"thresholds"`
			Value      json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidColor, err)
		}
		if len(obj.Thresholds) == 0 {
			return fmt.Errorf("%w: threshold list is empty", ErrInvalidColor)
		}
		s.thresholds = obj.Thresholds
		if len(obj.Value) > 0 {
			var f float64
			if err := json.Unmarshal(obj.Value, &f); err == nil {
				s.currentLit = &f
			} else {
				var str string
				if err := json.Unmarshal(obj.Value, &str); err != nil {
					return fmt.Errorf("%w: threshold value must be a number or expression", ErrInvalidColor)
				}
				s.current = str
			}
		} else {
			return fmt.Errorf("%w: threshold list requires a value", ErrInvalidColor)
		}
		return nil
	}

	return fmt.Errorf("%w: unsupported color form %s", ErrInvalidColor, trimmed)
}

// Resolve produces the concrete RGB for this spec. Threshold lists evaluate
// their current value first and then resolve the selected breakpoint's color
// recursively; dynamic expressions are evaluated and the result parsed like
// any literal form.
func (s Spec) Resolve(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (RGB, error) {
	switch {
	case len(s.thresholds) > 0:
		current, err := s.currentValue(ctx, res, scope)
		if err != nil {
			return RGB{}, err
		}
		picked := s.thresholds[len(s.thresholds)-1]
		for _, t := range s.thresholds {
			if t.Value >= current {
				picked = t
				break
			}
		}
		return picked.Color.Resolve(ctx, res, scope)

	case s.expr != "":
		v, err := res.Resolve(ctx, s.expr, scope)
		if err != nil {
			return RGB{}, err
		}
		return Parse(v)

	case s.literal != nil:
		return *s.literal, nil
	}

	return RGB{}, fmt.Errorf("%w: empty color spec", ErrInvalidColor)
}

func (s Spec) currentValue(ctx context.Context, res resolver.Resolver, scope resolver.Scope) (float64, error) {
	if s.currentLit != nil {
		return *s.currentLit, nil
	}
	v, err := res.Resolve(ctx, s.current, scope)
	if err != nil {
		return 0, err
	}
	return resolver.ToFloat(v)
}

// Parse converts an already-resolved dynamic value into an RGB. Accepted
// forms mirror the static ones: 3-number slice, hex string, palette name.
func Parse(v interface{}) (RGB, error) {
	switch t := v.(type) {
	case RGB:
		return t, nil
	case string:
		return parseString(t)
	case []interface{}:
		nums := make([]float64, 0, len(t))
		for _, e := range t {
			f, err := resolver.ToFloat(e)
			if err != nil {
				return RGB{}, fmt.Errorf("%w: %v", ErrInvalidColor, err)
			}
			nums = append(nums, f)
		}
		return fromTriple(nums)
	case []float64:
		return fromTriple(t)
	case []int:
		nums := make([]float64, len(t))
		for i, n := range t {
			nums[i] = float64(n)
		}
		return fromTriple(nums)
	default:
		return RGB{}, fmt.Errorf("%w: unsupported value %v (%T)", ErrInvalidColor, v, v)
	}
}

func parseString(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if rgb, ok := palette[strings.ToLower(s)]; ok {
		return rgb, nil
	}
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		var r, g, b uint8
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err == nil {
			return RGB{r, g, b}, nil
		}
	}
	return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// fromTriple clamps each channel to [0,255] rather than failing on
// out-of-range values.
func fromTriple(nums []float64) (RGB, error) {
	if len(nums) != 3 {
		return RGB{}, fmt.Errorf("%w: expected 3 channels, got %d", ErrInvalidColor, len(nums))
	}
	return RGB{clamp(nums[0]), clamp(nums[1]), clamp(nums[2])}, nil
}

func clamp(f float64) uint8 {
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
