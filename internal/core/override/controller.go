// Package override handles temporary page takeovers: an override preempts
// rotation for a bounded duration, after which rotation resumes if it was
// running when the override appeared and still is.
package override

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/frostdev-ops/pma-display-go/internal/core/rotation"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// DefaultDuration applies when a request does not carry its own.
const DefaultDuration = 30 * time.Second

// Request describes one override.
type Request struct {
	Page     *pages.Page
	Scope    resolver.Scope
	Duration time.Duration
}

// RenderFunc renders the override page on the controller's device.
type RenderFunc func(ctx context.Context, page *pages.Page, scope resolver.Scope) (*render.Result, error)

// Controller manages the override lifecycle for one display. A new override
// always wins: it cancels the active one and takes its place.
type Controller struct {
	device   string
	renderFn RenderFunc
	rot      *rotation.Controller
	logger   *logrus.Entry

	mu        sync.Mutex
	state     State
	timer     *time.Timer
	gen       uint64
	expiresAt time.Time
	resume    bool
}

// NewController creates an idle override controller. rot may be nil when
// the device has no rotation configured.
func NewController(device string, renderFn RenderFunc, rot *rotation.Controller, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		device:   device,
		renderFn: renderFn,
		rot:      rot,
		logger:   logger.WithField("device", device),
	}
}

// Show renders the override page and schedules its expiry. A failed render
// still occupies the override slot so rotation stays suppressed for the
// requested window; the render result carries the failure detail.
func (c *Controller) Show(ctx context.Context, req Request) (*render.Result, error) {
	if req.Page == nil {
		return nil, fmt.Errorf("override requires a page")
	}
	if err := req.Page.Validate(); err != nil {
		return nil, fmt.Errorf("override page: %w", err)
	}
	if req.Duration <= 0 {
		req.Duration = DefaultDuration
	}

	// Resume follows the rotation state at show time: a rotation that was
	// running gets ticked immediately on expiry, a stopped one stays
	// stopped. Captured here, before taking our own lock.
	resume := c.rot != nil && c.rot.State() == rotation.Running

	c.mu.Lock()
	// Last-wins: cancel the previous override's expiry outright. Its
	// resume preference dies with it.
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	g := c.gen
	c.state = Active
	c.resume = resume
	c.expiresAt = time.Now().Add(req.Duration)
	c.timer = time.AfterFunc(req.Duration, func() { c.expire(g) })
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"duration": req.Duration,
		"resume":   resume,
	}).Info("Override shown")

	return c.renderFn(ctx, req.Page, req.Scope)
}

// Cancel drops the active override without triggering the resume path.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.state = Idle
	c.mu.Unlock()

	c.logger.Info("Override cancelled")
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExpiresAt reports when the active override ends; zero when idle.
func (c *Controller) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return time.Time{}
	}
	return c.expiresAt
}

func (c *Controller) expire(g uint64) {
	c.mu.Lock()
	if g != c.gen || c.state != Active {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.timer = nil
	resume := c.resume
	c.mu.Unlock()

	c.logger.Info("Override expired")

	// The resume preference was captured when the override was shown; a
	// stopped rotation stays stopped (TickNow is a no-op then).
	if resume && c.rot != nil {
		c.rot.TickNow()
	}
}
