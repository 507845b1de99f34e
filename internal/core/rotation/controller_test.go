package rotation

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func mustPage(t *testing.T, raw string) *pages.Page {
	t.Helper()
	p, err := pages.ParsePage([]byte(raw))
	require.NoError(t, err)
	return p
}

// renderRecorder captures which page each render call received.
type renderRecorder struct {
	mu    sync.Mutex
	names []string
	errs  map[string]error
}

func newRenderRecorder() *renderRecorder {
	return &renderRecorder{errs: map[string]error{}}
}

func (r *renderRecorder) fn(ctx context.Context, p *pages.Page, scope resolver.Scope) (*render.Result, error) {
	r.mu.Lock()
	r.names = append(r.names, p.Name)
	err := r.errs[p.Name]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &render.Result{Outcome: render.OutcomeComplete, Rendered: 1}, nil
}

func (r *renderRecorder) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func TestStartRendersFirstEnabledPageSynchronously(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
			mustPage(t, `{"kind": "components", "name": "b", "components": [{"type": "text", "x": 0, "y": 0, "text": "b"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	assert.Equal(t, Running, c.State())
	assert.Equal(t, []string{"a"}, rec.rendered())
	assert.Equal(t, 0, c.CurrentIndex())
	assert.True(t, c.NextTransition().After(time.Now()))
}

func TestStartValidatesConfig(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	assert.Error(t, c.Start(Config{Enabled: false}))
	assert.Error(t, c.Start(Config{Enabled: true}), "empty page list")
	assert.Equal(t, Stopped, c.State())
	assert.Empty(t, rec.rendered())
}

func TestDisabledPagesAreSkippedWithWrap(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(map[string]interface{}{
		"show_b": false,
	}), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
			mustPage(t, `{"kind": "components", "name": "b", "enabled": "show_b", "components": [{"type": "text", "x": 0, "y": 0, "text": "b"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	// Force two more ticks: b is disabled, so the scan wraps back to a
	// every time.
	c.TickNow()
	c.TickNow()

	assert.Equal(t, []string{"a", "a", "a"}, rec.rendered())
	assert.Equal(t, 0, c.CurrentIndex())
}

func TestEnableEvaluationFailureTreatedAsDisabled(t *testing.T) {
	rec := newRenderRecorder()
	res := resolver.Func(func(ctx context.Context, expr string, scope resolver.Scope) (interface{}, error) {
		if expr == "broken" {
			return nil, fmt.Errorf("no such entity")
		}
		return true, nil
	})
	c := NewController("display-1", res, rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "enabled": "broken", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
			mustPage(t, `{"kind": "components", "name": "b", "components": [{"type": "text", "x": 0, "y": 0, "text": "b"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	assert.Equal(t, []string{"b"}, rec.rendered())
}

func TestAllPagesDisabledLeavesDisplayUntouched(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(map[string]interface{}{
		"night_mode": false,
	}), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "enabled": "night_mode", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	assert.Empty(t, rec.rendered())
	assert.Equal(t, Running, c.State(), "idle rotation keeps polling")
	assert.True(t, c.NextTransition().After(time.Now()), "re-check scheduled")
}

func TestAllPagesDisabledLogsIdleMarkerOnce(t *testing.T) {
	log, hook := logrus.New(), newCountingHook()
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(map[string]interface{}{
		"night_mode": false,
	}), rec.fn, log)

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "enabled": "night_mode", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	// Three consecutive idle ticks produce exactly one marker line.
	c.TickNow()
	c.TickNow()

	assert.Empty(t, rec.rendered())
	assert.Equal(t, 1, hook.count("No active pages, leaving display untouched"))
}

func TestHeldTicksRescheduleWithoutRendering(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	var held bool
	c.SetHold(func() bool { return held })

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()
	assert.Equal(t, []string{"a"}, rec.rendered())

	held = true
	c.TickNow()
	c.TickNow()
	assert.Equal(t, []string{"a"}, rec.rendered(), "held ticks must not paint")
	assert.Equal(t, Running, c.State())
	assert.True(t, c.NextTransition().After(time.Now()), "held tick reschedules")

	held = false
	c.TickNow()
	assert.Equal(t, []string{"a", "a"}, rec.rendered())
}

func TestTicksAdvanceThroughPagesInOrder(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
			mustPage(t, `{"kind": "components", "name": "b", "components": [{"type": "text", "x": 0, "y": 0, "text": "b"}]}`),
			mustPage(t, `{"kind": "components", "name": "c", "components": [{"type": "text", "x": 0, "y": 0, "text": "c"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	c.TickNow()
	c.TickNow()
	c.TickNow()

	assert.Equal(t, []string{"a", "b", "c", "a"}, rec.rendered())
}

func TestPerPageDurationUsedForScheduling(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "quick", "duration": 0.02, "components": [{"type": "text", "x": 0, "y": 0, "text": "q"}]}`),
			mustPage(t, `{"kind": "components", "name": "slow", "duration": 3600, "components": [{"type": "text", "x": 0, "y": 0, "text": "s"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	// The first page's 20ms duration drives the advance to the second.
	assert.Eventually(t, func() bool {
		names := rec.rendered()
		return len(names) == 2 && names[1] == "slow"
	}, time.Second, 5*time.Millisecond)
}

func TestStopPreventsFurtherRenders(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: 10 * time.Millisecond,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "a", "components": [{"type": "text", "x": 0, "y": 0, "text": "a"}]}`),
		},
	})
	require.NoError(t, err)

	c.Stop()
	c.Stop() // idempotent
	assert.Equal(t, Stopped, c.State())

	before := len(rec.rendered())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(rec.rendered()))

	// TickNow on a stopped controller is a no-op.
	c.TickNow()
	assert.Equal(t, before, len(rec.rendered()))
}

func TestRenderFailureRecordedAndRotationContinues(t *testing.T) {
	rec := newRenderRecorder()
	rec.errs["bad"] = fmt.Errorf("device offline")
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	err := c.Start(Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "bad", "components": [{"type": "text", "x": 0, "y": 0, "text": "x"}]}`),
			mustPage(t, `{"kind": "components", "name": "good", "components": [{"type": "text", "x": 0, "y": 0, "text": "y"}]}`),
		},
	})
	require.NoError(t, err)
	defer c.Stop()

	require.Error(t, c.LastError())
	assert.Equal(t, Running, c.State())

	c.TickNow()
	assert.Equal(t, []string{"bad", "good"}, rec.rendered())
	assert.NoError(t, c.LastError())
}

func TestRestartReplacesConfiguration(t *testing.T) {
	rec := newRenderRecorder()
	c := NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())

	cfg := Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages: []*pages.Page{
			mustPage(t, `{"kind": "components", "name": "old", "components": [{"type": "text", "x": 0, "y": 0, "text": "o"}]}`),
		},
	}
	require.NoError(t, c.Start(cfg))

	cfg.Pages = []*pages.Page{
		mustPage(t, `{"kind": "components", "name": "new", "components": [{"type": "text", "x": 0, "y": 0, "text": "n"}]}`),
	}
	require.NoError(t, c.Start(cfg))
	defer c.Stop()

	assert.Equal(t, []string{"old", "new"}, rec.rendered())
}

type countingHook struct {
	mu      sync.Mutex
	entries []string
}

func newCountingHook() *countingHook { return &countingHook{} }

func (h *countingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *countingHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e.Message)
	return nil
}

func (h *countingHook) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.entries {
		if m == msg {
			n++
		}
	}
	return n
}
