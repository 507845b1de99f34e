// Package engine coordinates rendering across registered display targets:
// each target gets its own command queue, rotation controller, and override
// controller, so concurrent triggers serialize per device.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/devicequeue"
	"github.com/frostdev-ops/pma-display-go/internal/core/metrics"
	"github.com/frostdev-ops/pma-display-go/internal/core/override"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/frostdev-ops/pma-display-go/internal/core/rotation"
)

// TemplateExpander turns template-reference pages into renderable
// components pages. The page store implements it.
type TemplateExpander interface {
	Expand(ctx context.Context, p *pages.Page) (*pages.Page, error)
}

// EventFunc receives engine events for broadcast to connected clients.
type EventFunc func(event string, data map[string]interface{})

// Options tunes the engine.
type Options struct {
	// QueueWarnDepth is forwarded to each device queue.
	QueueWarnDepth int
}

// Service is the top-level rendering coordinator.
type Service struct {
	renderer  *render.Renderer
	res       resolver.Resolver
	templates TemplateExpander
	collector *metrics.Collector
	emit      EventFunc
	logger    *logrus.Logger
	opts      Options

	mu      sync.RWMutex
	targets map[string]*runtime
}

// runtime bundles the per-device machinery.
type runtime struct {
	name     string
	target   render.Target
	queue    *devicequeue.Queue
	rotation *rotation.Controller
	override *override.Controller
}

// NewService creates an engine with no targets. templates, collector, and
// emit may be nil.
func NewService(renderer *render.Renderer, res resolver.Resolver, templates TemplateExpander, collector *metrics.Collector, emit EventFunc, logger *logrus.Logger, opts Options) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		renderer:  renderer,
		res:       res,
		templates: templates,
		collector: collector,
		emit:      emit,
		logger:    logger,
		opts:      opts,
		targets:   make(map[string]*runtime),
	}
}

// AddTarget registers a display under a unique name and spins up its queue
// and controllers.
func (s *Service) AddTarget(name string, target render.Target) error {
	if name == "" {
		return fmt.Errorf("target name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[name]; exists {
		return fmt.Errorf("target %q already registered", name)
	}

	rt := &runtime{name: name, target: target}
	rt.queue = devicequeue.New(name, s.opts.QueueWarnDepth, s.logger, func(depth int) {
		if s.collector != nil {
			s.collector.SetQueueDepth(name, depth)
		}
	})
	rt.rotation = rotation.NewController(name, s.res, s.renderOn(rt), s.logger)
	rt.override = override.NewController(name, s.renderOn(rt), rt.rotation, s.logger)
	// An active override owns the display; rotation ticks reschedule
	// without painting until it expires.
	rt.rotation.SetHold(func() bool { return rt.override.State() == override.Active })
	s.targets[name] = rt

	s.logger.WithField("device", name).Info("Display target registered")
	return nil
}

// RemoveTarget stops a target's controllers, closes its queue, and drops
// it. Pending queue items fail with devicequeue.ErrClosed.
func (s *Service) RemoveTarget(name string) error {
	s.mu.Lock()
	rt, ok := s.targets[name]
	if ok {
		delete(s.targets, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("target %q not registered", name)
	}

	rt.rotation.Stop()
	rt.override.Cancel()
	rt.queue.Close()
	if s.collector != nil {
		s.collector.SetRotationRunning(name, false)
	}

	s.logger.WithField("device", name).Info("Display target removed")
	return nil
}

// Targets lists the registered target names.
func (s *Service) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	return names
}

// Close tears down every target.
func (s *Service) Close() {
	for _, name := range s.Targets() {
		_ = s.RemoveTarget(name)
	}
}

// renderOn builds the queued render function shared by rotation, override,
// and ad-hoc renders. The whole render, including the device push, runs as
// one queue item so buffer writes never interleave. The unnamed return type
// satisfies both controllers' RenderFunc types.
func (s *Service) renderOn(rt *runtime) func(ctx context.Context, p *pages.Page, scope resolver.Scope) (*render.Result, error) {
	return func(ctx context.Context, p *pages.Page, scope resolver.Scope) (*render.Result, error) {
		type resp struct {
			result *render.Result
			err    error
		}
		out := make(chan resp, 1)
		err := rt.queue.Do(ctx, func(qctx context.Context) error {
			result, renderErr := s.renderPage(qctx, rt, p, scope)
			out <- resp{result, renderErr}
			return renderErr
		})
		select {
		case r := <-out:
			return r.result, r.err
		default:
			// The wait was cut short (caller context or queue shutdown)
			// before the item ran.
			return nil, err
		}
	}
}

func (s *Service) renderPage(ctx context.Context, rt *runtime, p *pages.Page, scope resolver.Scope) (*render.Result, error) {
	if p.Kind == pages.KindTemplateReference {
		if s.templates == nil {
			return nil, fmt.Errorf("no template store configured, cannot expand %q", p.Name)
		}
		expanded, err := s.templates.Expand(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to expand template: %w", err)
		}
		p = expanded
	}

	start := time.Now()
	result, err := s.renderer.Render(ctx, p, scope, rt.target)
	if err != nil {
		return nil, err
	}

	if s.collector != nil {
		s.collector.RecordRender(rt.name, string(result.Outcome), result.Rendered, result.Skipped, time.Since(start))
	}
	if s.emit != nil {
		s.emit("render_complete", map[string]interface{}{
			"device":   rt.name,
			"page":     p.Name,
			"outcome":  string(result.Outcome),
			"rendered": result.Rendered,
			"skipped":  result.Skipped,
			"errors":   len(result.Errors),
		})
	}
	return result, nil
}

// RenderOnce renders one page on the named targets, or on every registered
// target when names is empty. Each target renders independently; the call
// errors only when no target succeeds.
func (s *Service) RenderOnce(ctx context.Context, p *pages.Page, scope resolver.Scope, names []string) (map[string]*render.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var rts []*runtime
	var missing []string
	if len(names) == 0 {
		for _, rt := range s.targets {
			rts = append(rts, rt)
		}
	} else {
		for _, name := range names {
			if rt, ok := s.targets[name]; ok {
				rts = append(rts, rt)
			} else {
				missing = append(missing, name)
			}
		}
	}
	s.mu.RUnlock()

	if len(rts) == 0 {
		if len(missing) > 0 {
			return nil, fmt.Errorf("unknown targets: %s", strings.Join(missing, ", "))
		}
		return nil, fmt.Errorf("no targets registered")
	}

	type outcome struct {
		name   string
		result *render.Result
		err    error
	}
	outcomes := make(chan outcome, len(rts))
	var wg sync.WaitGroup
	for _, rt := range rts {
		wg.Add(1)
		go func(rt *runtime) {
			defer wg.Done()
			result, err := s.renderOn(rt)(ctx, p, scope)
			outcomes <- outcome{name: rt.name, result: result, err: err}
		}(rt)
	}
	wg.Wait()
	close(outcomes)

	results := make(map[string]*render.Result, len(rts))
	var failed []string
	for o := range outcomes {
		results[o.name] = o.result
		if o.err != nil || (o.result != nil && o.result.Failed()) {
			failed = append(failed, o.name)
			s.logger.WithField("device", o.name).WithError(o.err).Warn("Render failed on target")
		}
	}
	for _, name := range missing {
		failed = append(failed, name)
	}

	if len(failed) == len(rts)+len(missing) {
		return results, fmt.Errorf("render failed on all targets: %s", strings.Join(failed, ", "))
	}
	return results, nil
}

// StartRotation starts or reconfigures rotation on one target.
func (s *Service) StartRotation(name string, cfg rotation.Config) error {
	rt, err := s.target(name)
	if err != nil {
		return err
	}
	if s.templates != nil {
		// Expand template references up front so rotation ticks render
		// concrete pages even if the store later becomes unavailable.
		expanded := make([]*pages.Page, len(cfg.Pages))
		for i, p := range cfg.Pages {
			ep, err := s.templates.Expand(context.Background(), p)
			if err != nil {
				return fmt.Errorf("pages[%d]: %w", i, err)
			}
			expanded[i] = ep
		}
		cfg.Pages = expanded
	}
	if err := rt.rotation.Start(cfg); err != nil {
		return err
	}
	if s.collector != nil {
		s.collector.SetRotationRunning(name, true)
	}
	if s.emit != nil {
		s.emit("rotation_started", map[string]interface{}{"device": name, "pages": len(cfg.Pages)})
	}
	return nil
}

// StopRotation stops rotation on one target.
func (s *Service) StopRotation(name string) error {
	rt, err := s.target(name)
	if err != nil {
		return err
	}
	rt.rotation.Stop()
	if s.collector != nil {
		s.collector.SetRotationRunning(name, false)
	}
	if s.emit != nil {
		s.emit("rotation_stopped", map[string]interface{}{"device": name})
	}
	return nil
}

// ShowOverride preempts rotation on one target with a temporary page.
func (s *Service) ShowOverride(ctx context.Context, name string, req override.Request) (*render.Result, error) {
	rt, err := s.target(name)
	if err != nil {
		return nil, err
	}
	if req.Page != nil && req.Page.Kind == pages.KindTemplateReference && s.templates != nil {
		expanded, err := s.templates.Expand(ctx, req.Page)
		if err != nil {
			return nil, fmt.Errorf("failed to expand template: %w", err)
		}
		req.Page = expanded
	}
	if s.collector != nil {
		s.collector.RecordOverride(name)
	}
	if s.emit != nil {
		s.emit("override_shown", map[string]interface{}{
			"device":   name,
			"duration": req.Duration.String(),
		})
	}
	return rt.override.Show(ctx, req)
}

// CancelOverride drops the active override on one target without resuming
// rotation early.
func (s *Service) CancelOverride(name string) error {
	rt, err := s.target(name)
	if err != nil {
		return err
	}
	rt.override.Cancel()
	return nil
}

// TargetStatus is a point-in-time snapshot of one target's machinery.
type TargetStatus struct {
	Name            string    `json:"name"`
	QueueDepth      int       `json:"queue_depth"`
	RotationState   string    `json:"rotation_state"`
	RotationPage    int       `json:"rotation_page"`
	NextTransition  time.Time `json:"next_transition,omitempty"`
	OverrideState   string    `json:"override_state"`
	OverrideExpires time.Time `json:"override_expires,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// Status reports the state of one target.
func (s *Service) Status(name string) (*TargetStatus, error) {
	rt, err := s.target(name)
	if err != nil {
		return nil, err
	}
	st := &TargetStatus{
		Name:            name,
		QueueDepth:      rt.queue.Depth(),
		RotationState:   rt.rotation.State().String(),
		RotationPage:    rt.rotation.CurrentIndex(),
		NextTransition:  rt.rotation.NextTransition(),
		OverrideState:   rt.override.State().String(),
		OverrideExpires: rt.override.ExpiresAt(),
	}
	if lastErr := rt.rotation.LastError(); lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st, nil
}

func (s *Service) target(name string) (*runtime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("target %q not registered", name)
	}
	return rt, nil
}
