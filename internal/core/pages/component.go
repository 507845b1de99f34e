package pages

import (
	"encoding/json"
	"fmt"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/imagesource"
)

// Component type discriminators.
const (
	TypeText        = "text"
	TypeRectangle   = "rectangle"
	TypeLine        = "line"
	TypeCircle      = "circle"
	TypeArc         = "arc"
	TypeArrow       = "arrow"
	TypeImage       = "image"
	TypeIcon        = "icon"
	TypeProgressBar = "progress_bar"
	TypeGraph       = "graph"
)

// Component is one visual primitive on a page. Concrete types carry only
// the fields relevant to their kind and validate them at parse time.
type Component interface {
	Type() string
	Common() *Base
	Validate() error
}

// Base holds the fields shared by every component. Z overrides declaration
// order when set; equal z values keep declaration order.
type Base struct {
	X DynInt `json:"x"`
	Y DynInt `json:"y"`
	Z *int   `json:"z,omitempty"`
}

// Common gives interface holders access to the shared fields. It cannot be
// named after the embedded struct: the promoted field would shadow it.
func (b *Base) Common() *Base { return b }

// ZIndex returns the paint-order override, zero when unset.
func (b *Base) ZIndex() int {
	if b.Z == nil {
		return 0
	}
	return *b.Z
}

// Text alignment values.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

type Text struct {
	Base
	Text   DynString      `json:"text"`
	Color  colorspec.Spec `json:"color,omitempty"`
	Size   DynInt         `json:"size,omitempty"`
	Align  string         `json:"align,omitempty"`
	Scroll bool           `json:"scroll,omitempty"`
}

func (*Text) Type() string { return TypeText }

func (c *Text) Validate() error {
	if !c.Text.IsSet() {
		return fmt.Errorf("text component requires text")
	}
	switch c.Align {
	case "", AlignLeft, AlignCenter, AlignRight:
		return nil
	default:
		return fmt.Errorf("invalid align %q", c.Align)
	}
}

type Rectangle struct {
	Base
	Width     DynInt         `json:"width"`
	Height    DynInt         `json:"height"`
	Filled    bool           `json:"filled,omitempty"`
	Thickness DynInt         `json:"thickness,omitempty"`
	Color     colorspec.Spec `json:"color,omitempty"`
}

func (*Rectangle) Type() string { return TypeRectangle }

func (c *Rectangle) Validate() error {
	if !c.Width.IsSet() || !c.Height.IsSet() {
		return fmt.Errorf("rectangle component requires width and height")
	}
	return nil
}

type Line struct {
	Base
	X2        DynInt         `json:"x2"`
	Y2        DynInt         `json:"y2"`
	Thickness DynInt         `json:"thickness,omitempty"`
	Color     colorspec.Spec `json:"color,omitempty"`
}

func (*Line) Type() string { return TypeLine }

func (c *Line) Validate() error {
	if !c.X2.IsSet() || !c.Y2.IsSet() {
		return fmt.Errorf("line component requires x2 and y2")
	}
	return nil
}

type Circle struct {
	Base
	Radius    DynInt         `json:"radius"`
	Filled    bool           `json:"filled,omitempty"`
	Thickness DynInt         `json:"thickness,omitempty"`
	Color     colorspec.Spec `json:"color,omitempty"`
}

func (*Circle) Type() string { return TypeCircle }

func (c *Circle) Validate() error {
	if !c.Radius.IsSet() {
		return fmt.Errorf("circle component requires radius")
	}
	return nil
}

// Arc angles are degrees, clockwise from the positive x axis.
type Arc struct {
	Base
	Radius     DynInt         `json:"radius"`
	StartAngle DynFloat       `json:"start_angle"`
	EndAngle   DynFloat       `json:"end_angle"`
	Thickness  DynInt         `json:"thickness,omitempty"`
	Color      colorspec.Spec `json:"color,omitempty"`
}

func (*Arc) Type() string { return TypeArc }

func (c *Arc) Validate() error {
	if !c.Radius.IsSet() {
		return fmt.Errorf("arc component requires radius")
	}
	if !c.StartAngle.IsSet() || !c.EndAngle.IsSet() {
		return fmt.Errorf("arc component requires start_angle and end_angle")
	}
	return nil
}

type Arrow struct {
	Base
	X2        DynInt         `json:"x2"`
	Y2        DynInt         `json:"y2"`
	Thickness DynInt         `json:"thickness,omitempty"`
	HeadSize  DynInt         `json:"head_size,omitempty"`
	Color     colorspec.Spec `json:"color,omitempty"`
}

func (*Arrow) Type() string { return TypeArrow }

func (c *Arrow) Validate() error {
	if !c.X2.IsSet() || !c.Y2.IsSet() {
		return fmt.Errorf("arrow component requires x2 and y2")
	}
	return nil
}

type Image struct {
	Base
	Source imagesource.Source `json:"source"`
	Width  DynInt             `json:"width,omitempty"`
	Height DynInt             `json:"height,omitempty"`
}

func (*Image) Type() string { return TypeImage }

func (c *Image) Validate() error {
	return c.Source.Validate()
}

// Icon is a small image drawn at a fixed square size.
type Icon struct {
	Base
	Source imagesource.Source `json:"source"`
	Size   DynInt             `json:"size,omitempty"`
}

func (*Icon) Type() string { return TypeIcon }

func (c *Icon) Validate() error {
	return c.Source.Validate()
}

// ProgressBar renders a filled fraction of a horizontal bar. Value resolves
// to a percentage and is clamped to [0,100] at render time.
type ProgressBar struct {
	Base
	Width      DynInt         `json:"width"`
	Height     DynInt         `json:"height"`
	Value      DynInt         `json:"value"`
	Color      colorspec.Spec `json:"color,omitempty"`
	Background colorspec.Spec `json:"background,omitempty"`
}

func (*ProgressBar) Type() string { return TypeProgressBar }

func (c *ProgressBar) Validate() error {
	if !c.Width.IsSet() || !c.Height.IsSet() {
		return fmt.Errorf("progress_bar component requires width and height")
	}
	if !c.Value.IsSet() {
		return fmt.Errorf("progress_bar component requires value")
	}
	return nil
}

// Graph plots a number series as a polyline scaled into its box. Min and
// max default to the series bounds when unset.
type Graph struct {
	Base
	Width  DynInt         `json:"width"`
	Height DynInt         `json:"height"`
	Values DynFloats      `json:"values"`
	Min    DynFloat       `json:"min,omitempty"`
	Max    DynFloat       `json:"max,omitempty"`
	Color  colorspec.Spec `json:"color,omitempty"`
}

func (*Graph) Type() string { return TypeGraph }

func (c *Graph) Validate() error {
	if !c.Width.IsSet() || !c.Height.IsSet() {
		return fmt.Errorf("graph component requires width and height")
	}
	if !c.Values.IsSet() {
		return fmt.Errorf("graph component requires values")
	}
	return nil
}

// ParseComponent decodes one component from its JSON form, dispatching on
// the type discriminator and validating the per-type invariants.
func ParseComponent(data json.RawMessage) (Component, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid component: %w", err)
	}

	var c Component
	switch envelope.Type {
	case TypeText:
		c = &Text{}
	case TypeRectangle:
		c = &Rectangle{}
	case TypeLine:
		c = &Line{}
	case TypeCircle:
		c = &Circle{}
	case TypeArc:
		c = &Arc{}
	case TypeArrow:
		c = &Arrow{}
	case TypeImage:
		c = &Image{}
	case TypeIcon:
		c = &Icon{}
	case TypeProgressBar:
		c = &ProgressBar{}
	case TypeGraph:
		c = &Graph{}
	case "":
		return nil, fmt.Errorf("component is missing its type")
	default:
		return nil, fmt.Errorf("unknown component type %q", envelope.Type)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("invalid %s component: %w", envelope.Type, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
