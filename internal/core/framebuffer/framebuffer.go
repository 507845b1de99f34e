// Package framebuffer implements the render target on an in-memory RGBA
// buffer. Shapes are rasterized with draw2d, text with a bitmap font face,
// and the finished frame is handed to a pluggable push function that owns
// the transport to the physical display.
package framebuffer

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/frostdev-ops/pma-display-go/internal/core/colorspec"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
)

// baseFontHeight is the pixel height of the built-in bitmap face. Larger
// requested sizes are produced by integer upscaling, which keeps glyph
// edges crisp on low-resolution panels.
const baseFontHeight = 13

// PushFunc delivers a finished frame to the physical display.
type PushFunc func(ctx context.Context, frame *image.RGBA) error

// Framebuffer is an in-memory render.Target.
type Framebuffer struct {
	width  int
	height int
	push   PushFunc
	logger *logrus.Logger

	mu  sync.Mutex
	img *image.RGBA
}

var _ render.Target = (*Framebuffer)(nil)

// New creates a framebuffer of the given dimensions. push may be nil for
// headless use; the frame is then only observable through Image.
func New(width, height int, push PushFunc, logger *logrus.Logger) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framebuffer dimensions must be positive, got %dx%d", width, height)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Framebuffer{
		width:  width,
		height: height,
		push:   push,
		logger: logger,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

// Size returns the buffer dimensions.
func (f *Framebuffer) Size() (int, int) {
	return f.width, f.height
}

// Image returns a copy of the current frame.
func (f *Framebuffer) Image() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := image.NewRGBA(f.img.Bounds())
	draw.Draw(out, out.Bounds(), f.img, image.Point{}, draw.Src)
	return out
}

// Clear fills the whole buffer with one color.
func (f *Framebuffer) Clear(c colorspec.RGB) {
	f.mu.Lock()
	defer f.mu.Unlock()
	draw.Draw(f.img, f.img.Bounds(), image.NewUniform(c.ToRGBA()), image.Point{}, draw.Src)
}

// DrawText renders text at (x, y) being the top-left corner of the first
// glyph. Alignment shifts the anchor: center and right align relative to x.
func (f *Framebuffer) DrawText(x, y int, text string, style render.TextStyle) error {
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	scale := 1
	if style.Size > baseFontHeight {
		scale = (style.Size + baseFontHeight - 1) / baseFontHeight
	}

	metrics := face.Metrics()
	d := &font.Drawer{
		Src:  image.NewUniform(style.Color.ToRGBA()),
		Face: face,
	}
	textWidth := d.MeasureString(text).Round()
	textHeight := metrics.Ascent.Round() + metrics.Descent.Round()

	// Render at native size, then integer-upscale if a larger size was
	// requested.
	tmp := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	d.Dst = tmp
	d.Dot = fixed.P(0, metrics.Ascent.Round())
	d.DrawString(text)

	var glyphs image.Image = tmp
	if scale > 1 {
		glyphs = imaging.Resize(tmp, textWidth*scale, textHeight*scale, imaging.NearestNeighbor)
	}

	drawX := x
	switch style.Align {
	case render.AlignCenter:
		drawX = x - textWidth*scale/2
	case render.AlignRight:
		drawX = x - textWidth*scale
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	bounds := glyphs.Bounds()
	dst := image.Rect(drawX, y, drawX+bounds.Dx(), y+bounds.Dy())
	draw.Draw(f.img, dst, glyphs, bounds.Min, draw.Over)
	return nil
}

// DrawRect draws a filled or outlined axis-aligned rectangle.
func (f *Framebuffer) DrawRect(x, y, width, height int, c colorspec.RGB, filled bool, thickness int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if filled {
		draw.Draw(f.img, image.Rect(x, y, x+width, y+height), image.NewUniform(c.ToRGBA()), image.Point{}, draw.Over)
		return nil
	}

	gc := f.newContext(c, thickness)
	gc.MoveTo(float64(x), float64(y))
	gc.LineTo(float64(x+width), float64(y))
	gc.LineTo(float64(x+width), float64(y+height))
	gc.LineTo(float64(x), float64(y+height))
	gc.Close()
	gc.Stroke()
	return nil
}

// DrawLine draws a straight line segment.
func (f *Framebuffer) DrawLine(x1, y1, x2, y2, thickness int, c colorspec.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	gc := f.newContext(c, thickness)
	gc.MoveTo(float64(x1), float64(y1))
	gc.LineTo(float64(x2), float64(y2))
	gc.Stroke()
	return nil
}

// DrawCircle draws a filled or outlined circle around (cx, cy).
func (f *Framebuffer) DrawCircle(cx, cy, radius int, c colorspec.RGB, filled bool, thickness int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	gc := f.newContext(c, thickness)
	gc.ArcTo(float64(cx), float64(cy), float64(radius), float64(radius), 0, 2*math.Pi)
	gc.Close()
	if filled {
		gc.Fill()
	} else {
		gc.Stroke()
	}
	return nil
}

// DrawArc strokes a circular arc from startDeg to endDeg, measured
// clockwise from the positive x axis to match the y-down coordinate
// system.
func (f *Framebuffer) DrawArc(cx, cy, radius int, startDeg, endDeg float64, thickness int, c colorspec.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := startDeg * math.Pi / 180
	sweep := (endDeg - startDeg) * math.Pi / 180

	gc := f.newContext(c, thickness)
	gc.ArcTo(float64(cx), float64(cy), float64(radius), float64(radius), start, sweep)
	gc.Stroke()
	return nil
}

// DrawArrow draws a line from (x1, y1) to (x2, y2) with a filled head at
// the far end.
func (f *Framebuffer) DrawArrow(x1, y1, x2, y2, thickness, headSize int, c colorspec.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	gc := f.newContext(c, thickness)
	gc.MoveTo(float64(x1), float64(y1))
	gc.LineTo(float64(x2), float64(y2))
	gc.Stroke()

	angle := math.Atan2(float64(y2-y1), float64(x2-x1))
	size := float64(headSize)
	if size <= 0 {
		size = 4
	}
	const spread = math.Pi / 6
	gc.MoveTo(float64(x2), float64(y2))
	gc.LineTo(float64(x2)-size*math.Cos(angle-spread), float64(y2)-size*math.Sin(angle-spread))
	gc.LineTo(float64(x2)-size*math.Cos(angle+spread), float64(y2)-size*math.Sin(angle+spread))
	gc.Close()
	gc.Fill()
	return nil
}

// DrawProgressBar draws a track with a fill proportional to percent. The
// caller clamps percent to [0, 100].
func (f *Framebuffer) DrawProgressBar(x, y, width, height, percent int, fg, bg colorspec.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	draw.Draw(f.img, image.Rect(x, y, x+width, y+height), image.NewUniform(bg.ToRGBA()), image.Point{}, draw.Over)
	fillWidth := width * percent / 100
	if fillWidth > 0 {
		draw.Draw(f.img, image.Rect(x, y, x+fillWidth, y+height), image.NewUniform(fg.ToRGBA()), image.Point{}, draw.Over)
	}
	return nil
}

// DrawImage composites a decoded image with its top-left corner at (x, y).
func (f *Framebuffer) DrawImage(x, y int, img image.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	bounds := img.Bounds()
	dst := image.Rect(x, y, x+bounds.Dx(), y+bounds.Dy())
	draw.Draw(f.img, dst, img, bounds.Min, draw.Over)
	return nil
}

// Push hands the current frame to the configured transport.
func (f *Framebuffer) Push(ctx context.Context) error {
	if f.push == nil {
		return nil
	}
	frame := f.Image()
	if err := f.push(ctx, frame); err != nil {
		return fmt.Errorf("failed to push frame: %w", err)
	}
	return nil
}

// newContext must be called with mu held.
func (f *Framebuffer) newContext(c colorspec.RGB, thickness int) *draw2dimg.GraphicContext {
	if thickness <= 0 {
		thickness = 1
	}
	gc := draw2dimg.NewGraphicContext(f.img)
	gc.SetStrokeColor(c.ToRGBA())
	gc.SetFillColor(c.ToRGBA())
	gc.SetLineWidth(float64(thickness))
	return gc
}
