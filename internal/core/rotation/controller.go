// Package rotation drives timed cycling through a configured page list,
// evaluating per-page enable conditions and per-page durations.
package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// State of the controller.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Config is the rotation setup supplied by the host at start time. It is
// replaced wholesale on configuration reload, never mutated in place.
type Config struct {
	Enabled         bool
	DefaultDuration time.Duration
	Pages           []*pages.Page
	// Scope is the ambient variable scope handed to every evaluation.
	Scope resolver.Scope
}

// RenderFunc renders one page on the controller's device. The engine routes
// it through the per-device command queue.
type RenderFunc func(ctx context.Context, page *pages.Page, scope resolver.Scope) (*render.Result, error)

// Controller owns the rotation state for one display. All state mutation
// happens in its own tick path; other code interacts only through the
// request API.
type Controller struct {
	device   string
	res      resolver.Resolver
	renderFn RenderFunc
	logger   *logrus.Entry

	mu         sync.Mutex
	state      State
	cfg        Config
	holdFn     func() bool
	idx        int
	nextAt     time.Time
	lastErr    error
	timer      *time.Timer
	gen        uint64
	idleLogged bool
}

// NewController creates a stopped controller for one device.
func NewController(device string, res resolver.Resolver, renderFn RenderFunc, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		device:   device,
		res:      res,
		renderFn: renderFn,
		logger:   logger.WithField("device", device),
		idx:      -1,
	}
}

// SetHold installs a predicate consulted on every tick. While it reports
// true the display belongs to someone else (an active override): ticks
// reschedule without rendering so the foreign content stays on screen.
func (c *Controller) SetHold(fn func() bool) {
	c.mu.Lock()
	c.holdFn = fn
	c.mu.Unlock()
}

// Start transitions Stopped -> Running and performs the first tick
// synchronously. Restarting an already running controller replaces its
// configuration and invalidates any pending timer.
func (c *Controller) Start(cfg Config) error {
	if !cfg.Enabled {
		return fmt.Errorf("rotation config is disabled")
	}
	if len(cfg.Pages) == 0 {
		return fmt.Errorf("rotation requires a non-empty page list")
	}
	for i, p := range cfg.Pages {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("pages[%d]: %w", i, err)
		}
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = pages.DefaultDuration
	}

	c.mu.Lock()
	c.stopTimerLocked()
	c.state = Running
	c.cfg = cfg
	c.idx = -1
	c.idleLogged = false
	c.lastErr = nil
	c.gen++
	g := c.gen
	c.mu.Unlock()

	c.logger.WithField("pages", len(cfg.Pages)).Info("Rotation started")
	c.tick(g)
	return nil
}

// Stop cancels any pending timer and transitions to Stopped. It is
// synchronous and idempotent: once it returns, no further render is
// dispatched by this controller.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	c.state = Stopped
	c.stopTimerLocked()
	c.mu.Unlock()

	c.logger.Info("Rotation stopped")
}

// TickNow forces an immediate tick, used when an override expires so the
// display does not sit frozen until the natural timer fires.
func (c *Controller) TickNow() {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.gen++
	g := c.gen
	c.mu.Unlock()

	c.tick(g)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError exposes the most recent render failure for observability.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// NextTransition reports when the next page change is scheduled.
func (c *Controller) NextTransition() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextAt
}

// CurrentIndex returns the index of the page being shown, -1 before the
// first render.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx
}

// stopTimerLocked must be called with mu held. gen stays valid; callers
// that reschedule bump it themselves.
func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// tick advances the rotation once: scan forward from the page after the
// current one for the first enabled page, render it, and reschedule using
// that page's own duration.
func (c *Controller) tick(g uint64) {
	c.mu.Lock()
	if g != c.gen || c.state != Running {
		c.mu.Unlock()
		return
	}
	cfg := c.cfg
	startIdx := c.idx
	hold := c.holdFn
	c.mu.Unlock()

	if hold != nil && hold() {
		c.mu.Lock()
		if g == c.gen && c.state == Running {
			c.scheduleLocked(g, cfg.DefaultDuration)
		}
		c.mu.Unlock()
		return
	}

	ctx := context.Background()
	found := -1
	var page *pages.Page
	n := len(cfg.Pages)
	for i := 1; i <= n; i++ {
		idx := ((startIdx + i) % n + n) % n
		p := cfg.Pages[idx]
		enabled, err := p.IsEnabled(ctx, c.res, cfg.Scope)
		if err != nil {
			c.logger.WithError(err).WithField("page", idx).Warn("Enable condition failed, treating page as disabled")
			continue
		}
		if enabled {
			found = idx
			page = p
			break
		}
	}

	if found < 0 {
		c.mu.Lock()
		if g != c.gen || c.state != Running {
			c.mu.Unlock()
			return
		}
		if !c.idleLogged {
			c.idleLogged = true
			c.logger.Info("No active pages, leaving display untouched")
		}
		c.scheduleLocked(g, cfg.DefaultDuration)
		c.mu.Unlock()
		return
	}

	var scope resolver.Scope
	if cfg.Scope != nil {
		scope = cfg.Scope.Clone()
	}
	result, err := c.renderFn(ctx, page, scope)

	c.mu.Lock()
	if g != c.gen || c.state != Running {
		c.mu.Unlock()
		return
	}
	c.idx = found
	c.idleLogged = false
	switch {
	case err != nil:
		c.lastErr = err
		c.logger.WithError(err).WithField("page", found).Error("Rotation render failed")
	case result.Failed():
		c.lastErr = fmt.Errorf("render of page %d failed: %d errors", found, len(result.Errors))
		c.logger.WithFields(logrus.Fields{
			"page":   found,
			"errors": len(result.Errors),
		}).Error("Rotation render failed")
	default:
		c.lastErr = nil
	}

	// A failed render never stops rotation; the next tick advances as
	// scheduled.
	c.scheduleLocked(g, page.EffectiveDuration(cfg.DefaultDuration))
	c.mu.Unlock()
}

// scheduleLocked must be called with mu held and a still-current gen.
func (c *Controller) scheduleLocked(g uint64, d time.Duration) {
	c.nextAt = time.Now().Add(d)
	c.timer = time.AfterFunc(d, func() { c.tick(g) })
}
