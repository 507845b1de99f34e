package render

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/imagesource"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// fakeTarget records draw calls and can fail selected operations.
type fakeTarget struct {
	w, h    int
	calls   []string
	cleared *colorspec.RGB
	pushes  int
	pushErr error
	failOps map[string]error
}

func newFakeTarget(w, h int) *fakeTarget {
	return &fakeTarget{w: w, h: h, failOps: map[string]error{}}
}

func (f *fakeTarget) op(name string) error {
	f.calls = append(f.calls, name)
	return f.failOps[name]
}

func (f *fakeTarget) Size() (int, int)        { return f.w, f.h }
func (f *fakeTarget) Clear(c colorspec.RGB)   { f.cleared = &c }
func (f *fakeTarget) DrawText(x, y int, text string, style TextStyle) error {
	return f.op("text")
}
func (f *fakeTarget) DrawRect(x, y, w, h int, c colorspec.RGB, filled bool, thickness int) error {
	return f.op("rect")
}
func (f *fakeTarget) DrawLine(x1, y1, x2, y2, thickness int, c colorspec.RGB) error {
	return f.op("line")
}
func (f *fakeTarget) DrawCircle(cx, cy, r int, c colorspec.RGB, filled bool, thickness int) error {
	return f.op("circle")
}
func (f *fakeTarget) DrawArc(cx, cy, r int, start, end float64, thickness int, c colorspec.RGB) error {
	return f.op("arc")
}
func (f *fakeTarget) DrawArrow(x1, y1, x2, y2, thickness, head int, c colorspec.RGB) error {
	return f.op("arrow")
}
func (f *fakeTarget) DrawProgressBar(x, y, w, h, percent int, fg, bg colorspec.RGB) error {
	return f.op("progress")
}
func (f *fakeTarget) DrawImage(x, y int, img image.Image) error {
	return f.op("image")
}
func (f *fakeTarget) Push(ctx context.Context) error {
	f.pushes++
	return f.pushErr
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newRenderer(res resolver.Resolver) *Renderer {
	images := imagesource.NewService(imagesource.PolicyStrict, nil, nil, quietLogger())
	return NewRenderer(res, images, quietLogger())
}

func mustPage(t *testing.T, raw string) *pages.Page {
	t.Helper()
	p, err := pages.ParsePage([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestRenderComplete(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"background": "#101010",
		"components": [
			{"type": "text", "x": 1, "y": 1, "text": "OK"},
			{"type": "rectangle", "x": 0, "y": 0, "width": 8, "height": 8}
		]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Equal(t, 2, result.Rendered)
	assert.Equal(t, []string{"text", "rect"}, target.calls)
	assert.Equal(t, 1, target.pushes)
	require.NotNil(t, target.cleared)
	assert.Equal(t, colorspec.RGB{R: 0x10, G: 0x10, B: 0x10}, *target.cleared)
}

func TestOutOfBoundsComponentSkippedSiblingsRender(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "rectangle", "x": 60, "y": 60, "width": 10, "height": 10},
			{"type": "text", "x": 0, "y": 0, "text": "still here"}
		]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, 1, result.Rendered)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"text"}, target.calls)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0].Err, ErrOutOfBounds)
	assert.Equal(t, 0, result.Errors[0].Index)
	assert.Equal(t, pages.TypeRectangle, result.Errors[0].Type)
	assert.Equal(t, 1, target.pushes)
}

func TestAllComponentsFailingFailsRenderWithoutPush(t *testing.T) {
	// Every dynamic field resolution fails; the render must not panic and
	// must report Failed with aggregated errors.
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "text", "x": "boom", "y": 0, "text": "a"},
			{"type": "circle", "x": 0, "y": 0, "radius": "boom"}
		]
	}`)

	res := resolver.Func(func(ctx context.Context, expr string, scope resolver.Scope) (interface{}, error) {
		return nil, fmt.Errorf("resolver exploded")
	})

	target := newFakeTarget(64, 64)
	result, err := newRenderer(res).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, 0, result.Rendered)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 0, target.pushes, "failed renders are not flushed")
}

func TestFieldResolutionFailureIsolatedToComponent(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "text", "x": 0, "y": 0, "text": "{{ broken }}"},
			{"type": "text", "x": 0, "y": 10, "text": "fine"}
		]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "text", result.Errors[0].Field)
}

func TestPageVariableFailureAbortsWholeRender(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"variables": [{"name": "temp", "value": "sensor.gone"}],
		"components": [{"type": "text", "x": 0, "y": 0, "text": "never drawn"}]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "variables.temp", result.Errors[0].Field)
	assert.Empty(t, target.calls)
}

func TestDisallowedImageSourceIsPartial(t *testing.T) {
	// Text plus an image whose URL the strict allowlist rejects. The
	// text survives, the image is skipped.
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "text", "x": 0, "y": 0, "text": "OK"},
			{"type": "image", "x": 0, "y": 0, "source": {"url": "http://bad"}}
		]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, []string{"text"}, target.calls)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "source", result.Errors[0].Field)
	assert.ErrorIs(t, result.Errors[0].Err, imagesource.ErrNotAllowed)
}

func TestZOrderOverridesDeclarationOrder(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "text", "x": 0, "y": 0, "text": "top", "z": 2},
			{"type": "rectangle", "x": 0, "y": 0, "width": 4, "height": 4},
			{"type": "line", "x": 0, "y": 0, "x2": 5, "y2": 5, "z": 2}
		]
	}`)

	target := newFakeTarget(64, 64)
	_, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	// Rectangle (z 0) paints first; the two z=2 components keep their
	// declaration order.
	assert.Equal(t, []string{"rect", "text", "line"}, target.calls)
}

func TestDispatchFailureIsolated(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "circle", "x": 10, "y": 10, "radius": 5},
			{"type": "text", "x": 0, "y": 0, "text": "ok"}
		]
	}`)

	target := newFakeTarget(64, 64)
	target.failOps["circle"] = fmt.Errorf("device rejected primitive")

	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, 1, result.Rendered)
}

func TestPushFailureFailsResult(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [{"type": "text", "x": 0, "y": 0, "text": "ok"}]
	}`)

	target := newFakeTarget(64, 64)
	target.pushErr = fmt.Errorf("device offline")

	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "push", result.Errors[len(result.Errors)-1].Field)
}

func TestRenderRejectsUnexpandedTemplateReference(t *testing.T) {
	page := &pages.Page{Kind: pages.KindTemplateReference, Name: "status"}
	_, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, newFakeTarget(8, 8))
	assert.Error(t, err)
}

func TestGraphPlotsSeries(t *testing.T) {
	page := mustPage(t, `{
		"kind": "components",
		"components": [
			{"type": "graph", "x": 0, "y": 0, "width": 32, "height": 16, "values": [1, 5, 3, 8]}
		]
	}`)

	target := newFakeTarget(64, 64)
	result, err := newRenderer(resolver.NewStatic(nil)).Render(context.Background(), page, nil, target)
	require.NoError(t, err)

	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Equal(t, []string{"line", "line", "line"}, target.calls)
}
