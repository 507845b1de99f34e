// Package render walks a resolved page's components in paint order and maps
// each to primitive draw calls on a target, isolating per-component
// failures so one bad component never blanks the whole page.
package render

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/imagesource"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// Defaults applied when a component leaves styling unset.
var (
	defaultBackground = colorspec.Black
	defaultForeground = colorspec.White
	defaultBarTrack   = colorspec.RGB{R: 64, G: 64, B: 64}
)

const defaultTextSize = 13

// Renderer turns pages into draw calls.
type Renderer struct {
	res    resolver.Resolver
	images *imagesource.Service
	logger *logrus.Logger
}

// NewRenderer creates a renderer around the injected value resolver and
// image source service.
func NewRenderer(res resolver.Resolver, images *imagesource.Service, logger *logrus.Logger) *Renderer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Renderer{res: res, images: images, logger: logger}
}

// Render resolves and draws a components page onto target. The returned
// error is non-nil only for structural problems; everything else is
// reported through the Result. Template-reference pages must be expanded
// before reaching the renderer.
func (r *Renderer) Render(ctx context.Context, page *pages.Page, scope resolver.Scope, target Target) (*Result, error) {
	if page == nil {
		return nil, fmt.Errorf("nil page")
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if page.Kind != pages.KindComponents {
		return nil, fmt.Errorf("cannot render unexpanded %s page", page.Kind)
	}

	start := time.Now()
	scope = scope.Clone()
	if scope == nil {
		scope = resolver.Scope{}
	}

	// A variable failure aborts the whole page: later components may
	// depend on the missing value.
	if err := page.ExtendScope(ctx, r.res, scope); err != nil {
		field := "variables"
		if varErr, ok := err.(*pages.VariableError); ok {
			field = "variables." + varErr.Name
		}
		r.logger.WithError(err).WithField("field", field).Warn("Page variable resolution failed")
		return failedResult(&ComponentError{Index: -1, Type: "page", Field: field, Message: err.Error(), Err: err}), nil
	}

	target.Clear(r.background(ctx, page, scope))

	ordered := paintOrder(page.Components)
	result := &Result{}
	for _, oc := range ordered {
		if cerr := r.drawComponent(ctx, oc.index, oc.component, scope, target); cerr != nil {
			result.Skipped++
			result.Errors = append(result.Errors, cerr)
			r.logger.WithFields(logrus.Fields{
				"component": cerr.Index,
				"type":      cerr.Type,
				"field":     cerr.Field,
			}).WithError(cerr.Err).Warn("Component skipped")
			continue
		}
		result.Rendered++
	}

	switch {
	case result.Rendered == 0:
		result.Outcome = OutcomeFailed
	case result.Skipped > 0:
		result.Outcome = OutcomePartial
	default:
		result.Outcome = OutcomeComplete
	}

	// The buffer only reaches the device when something rendered.
	if result.Rendered > 0 {
		if err := target.Push(ctx); err != nil {
			result.Outcome = OutcomeFailed
			result.Errors = append(result.Errors, &ComponentError{
				Index: -1, Type: "device", Field: "push", Message: err.Error(), Err: err,
			})
		}
	}

	r.logger.WithFields(logrus.Fields{
		"outcome":  result.Outcome,
		"rendered": result.Rendered,
		"skipped":  result.Skipped,
		"elapsed":  time.Since(start),
	}).Debug("Render finished")

	return result, nil
}

func (r *Renderer) background(ctx context.Context, page *pages.Page, scope resolver.Scope) colorspec.RGB {
	if page.Background == nil || page.Background.IsZero() {
		return defaultBackground
	}
	bg, err := page.Background.Resolve(ctx, r.res, scope)
	if err != nil {
		r.logger.WithError(err).Warn("Background resolution failed, using default")
		return defaultBackground
	}
	return bg
}

type orderedComponent struct {
	index     int
	component pages.Component
}

// paintOrder sorts by z ascending; the sort is stable so equal z keeps
// declaration order and first-painted stays bottom-most.
func paintOrder(components []pages.Component) []orderedComponent {
	out := make([]orderedComponent, len(components))
	for i, c := range components {
		out[i] = orderedComponent{index: i, component: c}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].component.Common().ZIndex() < out[j].component.Common().ZIndex()
	})
	return out
}

// drawComponent resolves, bounds-checks and dispatches one component. A nil
// return means it contributed to the buffer; otherwise the component is
// skipped and the error describes why.
func (r *Renderer) drawComponent(ctx context.Context, index int, c pages.Component, scope resolver.Scope, target Target) *ComponentError {
	fail := func(field string, err error) *ComponentError {
		return &ComponentError{Index: index, Type: c.Type(), Field: field, Message: err.Error(), Err: err}
	}

	width, height := target.Size()
	bounds := image.Rect(0, 0, width, height)

	x, err := c.Common().X.Resolve(ctx, r.res, scope)
	if err != nil {
		return fail("x", err)
	}
	y, err := c.Common().Y.Resolve(ctx, r.res, scope)
	if err != nil {
		return fail("y", err)
	}

	switch t := c.(type) {
	case *pages.Text:
		text, err := t.Text.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("text", err)
		}
		size, err := t.Size.OrDefault(ctx, r.res, scope, defaultTextSize)
		if err != nil {
			return fail("size", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if !image.Pt(x, y).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		align := t.Align
		if align == "" {
			align = AlignLeft
		}
		if err := target.DrawText(x, y, text, TextStyle{Size: size, Color: color, Align: align, Scroll: t.Scroll}); err != nil {
			return fail("", err)
		}

	case *pages.Rectangle:
		w, err := t.Width.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("width", err)
		}
		h, err := t.Height.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("height", err)
		}
		thickness, err := t.Thickness.OrDefault(ctx, r.res, scope, 1)
		if err != nil {
			return fail("thickness", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if w <= 0 || h <= 0 || !image.Rect(x, y, x+w, y+h).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawRect(x, y, w, h, color, t.Filled, thickness); err != nil {
			return fail("", err)
		}

	case *pages.Line:
		x2, err := t.X2.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("x2", err)
		}
		y2, err := t.Y2.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("y2", err)
		}
		thickness, err := t.Thickness.OrDefault(ctx, r.res, scope, 1)
		if err != nil {
			return fail("thickness", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if !image.Pt(x, y).In(bounds) || !image.Pt(x2, y2).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawLine(x, y, x2, y2, thickness, color); err != nil {
			return fail("", err)
		}

	case *pages.Circle:
		radius, err := t.Radius.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("radius", err)
		}
		thickness, err := t.Thickness.OrDefault(ctx, r.res, scope, 1)
		if err != nil {
			return fail("thickness", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if radius <= 0 || !image.Rect(x-radius, y-radius, x+radius+1, y+radius+1).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawCircle(x, y, radius, color, t.Filled, thickness); err != nil {
			return fail("", err)
		}

	case *pages.Arc:
		radius, err := t.Radius.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("radius", err)
		}
		startDeg, err := t.StartAngle.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("start_angle", err)
		}
		endDeg, err := t.EndAngle.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("end_angle", err)
		}
		thickness, err := t.Thickness.OrDefault(ctx, r.res, scope, 1)
		if err != nil {
			return fail("thickness", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if radius <= 0 || !image.Rect(x-radius, y-radius, x+radius+1, y+radius+1).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawArc(x, y, radius, startDeg, endDeg, thickness, color); err != nil {
			return fail("", err)
		}

	case *pages.Arrow:
		x2, err := t.X2.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("x2", err)
		}
		y2, err := t.Y2.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("y2", err)
		}
		thickness, err := t.Thickness.OrDefault(ctx, r.res, scope, 1)
		if err != nil {
			return fail("thickness", err)
		}
		headSize, err := t.HeadSize.OrDefault(ctx, r.res, scope, 4)
		if err != nil {
			return fail("head_size", err)
		}
		color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		if !image.Pt(x, y).In(bounds) || !image.Pt(x2, y2).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawArrow(x, y, x2, y2, thickness, headSize, color); err != nil {
			return fail("", err)
		}

	case *pages.Image:
		w, err := t.Width.OrDefault(ctx, r.res, scope, 0)
		if err != nil {
			return fail("width", err)
		}
		h, err := t.Height.OrDefault(ctx, r.res, scope, 0)
		if err != nil {
			return fail("height", err)
		}
		img, err := r.images.Resolve(ctx, t.Source, w, h)
		if err != nil {
			return fail("source", err)
		}
		if !image.Rect(x, y, x+img.Bounds().Dx(), y+img.Bounds().Dy()).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawImage(x, y, img); err != nil {
			return fail("", err)
		}

	case *pages.Icon:
		size, err := t.Size.OrDefault(ctx, r.res, scope, 16)
		if err != nil {
			return fail("size", err)
		}
		img, err := r.images.Resolve(ctx, t.Source, size, size)
		if err != nil {
			return fail("source", err)
		}
		if !image.Rect(x, y, x+img.Bounds().Dx(), y+img.Bounds().Dy()).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if err := target.DrawImage(x, y, img); err != nil {
			return fail("", err)
		}

	case *pages.ProgressBar:
		w, err := t.Width.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("width", err)
		}
		h, err := t.Height.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("height", err)
		}
		value, err := t.Value.Resolve(ctx, r.res, scope)
		if err != nil {
			return fail("value", err)
		}
		fg, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
		if err != nil {
			return fail("color", err)
		}
		bg, err := r.resolveColor(ctx, t.Background, scope, defaultBarTrack)
		if err != nil {
			return fail("background", err)
		}
		if w <= 0 || h <= 0 || !image.Rect(x, y, x+w, y+h).In(bounds) {
			return fail("", ErrOutOfBounds)
		}
		if value < 0 {
			value = 0
		} else if value > 100 {
			value = 100
		}
		if err := target.DrawProgressBar(x, y, w, h, value, fg, bg); err != nil {
			return fail("", err)
		}

	case *pages.Graph:
		if cerr := r.drawGraph(ctx, fail, t, x, y, bounds, scope, target); cerr != nil {
			return cerr
		}

	default:
		return fail("", fmt.Errorf("no draw primitive for component type %q", c.Type()))
	}

	return nil
}

// drawGraph scales the series into its box and plots it as connected line
// segments.
func (r *Renderer) drawGraph(ctx context.Context, fail func(string, error) *ComponentError, t *pages.Graph, x, y int, bounds image.Rectangle, scope resolver.Scope, target Target) *ComponentError {
	w, err := t.Width.Resolve(ctx, r.res, scope)
	if err != nil {
		return fail("width", err)
	}
	h, err := t.Height.Resolve(ctx, r.res, scope)
	if err != nil {
		return fail("height", err)
	}
	values, err := t.Values.Resolve(ctx, r.res, scope)
	if err != nil {
		return fail("values", err)
	}
	color, err := r.resolveColor(ctx, t.Color, scope, defaultForeground)
	if err != nil {
		return fail("color", err)
	}
	if w <= 0 || h <= 0 || !image.Rect(x, y, x+w, y+h).In(bounds) {
		return fail("", ErrOutOfBounds)
	}
	if len(values) == 0 {
		return fail("values", fmt.Errorf("empty series"))
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if t.Min.IsSet() {
		if min, err = t.Min.Resolve(ctx, r.res, scope); err != nil {
			return fail("min", err)
		}
	}
	if t.Max.IsSet() {
		if max, err = t.Max.Resolve(ctx, r.res, scope); err != nil {
			return fail("max", err)
		}
	}
	if max <= min {
		max = min + 1
	}

	plot := func(i int, v float64) (int, int) {
		px := x
		if len(values) > 1 {
			px = x + i*(w-1)/(len(values)-1)
		}
		norm := (v - min) / (max - min)
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		py := y + h - 1 - int(norm*float64(h-1))
		return px, py
	}

	if len(values) == 1 {
		px, py := plot(0, values[0])
		return failIfErr(fail, target.DrawLine(px, py, px, py, 1, color))
	}
	for i := 1; i < len(values); i++ {
		x1, y1 := plot(i-1, values[i-1])
		x2, y2 := plot(i, values[i])
		if err := target.DrawLine(x1, y1, x2, y2, 1, color); err != nil {
			return fail("", err)
		}
	}
	return nil
}

func failIfErr(fail func(string, error) *ComponentError, err error) *ComponentError {
	if err != nil {
		return fail("", err)
	}
	return nil
}

func (r *Renderer) resolveColor(ctx context.Context, spec colorspec.Spec, scope resolver.Scope, def colorspec.RGB) (colorspec.RGB, error) {
	if spec.IsZero() {
		return def, nil
	}
	return spec.Resolve(ctx, r.res, scope)
}
