package render

import (
	"context"
	"image"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
)

// TextStyle carries the styling of one text draw call.
type TextStyle struct {
	Size   int
	Color  colorspec.RGB
	Align  string
	Scroll bool
}

// Text alignment values, shared with the page model so targets never see a
// value the parser did not accept.
const (
	AlignLeft   = pages.AlignLeft
	AlignCenter = pages.AlignCenter
	AlignRight  = pages.AlignRight
)

// Target is the abstract pixel buffer / device capability the renderer
// draws on. Coordinates are x-right, y-down with the origin at the top-left
// pixel. Implementations own the physical transport behind Push.
type Target interface {
	// Size returns the addressable width and height in pixels.
	Size() (width, height int)
	// Clear fills the whole buffer with one color.
	Clear(c colorspec.RGB)

	DrawText(x, y int, text string, style TextStyle) error
	DrawRect(x, y, width, height int, c colorspec.RGB, filled bool, thickness int) error
	DrawLine(x1, y1, x2, y2, thickness int, c colorspec.RGB) error
	DrawCircle(cx, cy, radius int, c colorspec.RGB, filled bool, thickness int) error
	DrawArc(cx, cy, radius int, startDeg, endDeg float64, thickness int, c colorspec.RGB) error
	DrawArrow(x1, y1, x2, y2, thickness, headSize int, c colorspec.RGB) error
	DrawProgressBar(x, y, width, height, percent int, fg, bg colorspec.RGB) error
	DrawImage(x, y int, img image.Image) error

	// Push flushes the buffer to the physical display. Writes are
	// best-effort and idempotent; a re-render simply overwrites.
	Push(ctx context.Context) error
}
