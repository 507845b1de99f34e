package override

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/frostdev-ops/pma-display-go/internal/core/rotation"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func mustPage(t *testing.T, name string) *pages.Page {
	t.Helper()
	p, err := pages.ParsePage([]byte(`{
		"kind": "components",
		"name": "` + name + `",
		"components": [{"type": "text", "x": 0, "y": 0, "text": "x"}]
	}`))
	require.NoError(t, err)
	return p
}

type renderRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *renderRecorder) fn(ctx context.Context, p *pages.Page, scope resolver.Scope) (*render.Result, error) {
	r.mu.Lock()
	r.names = append(r.names, p.Name)
	r.mu.Unlock()
	return &render.Result{Outcome: render.OutcomeComplete, Rendered: 1}, nil
}

func (r *renderRecorder) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// startedRotation gives tests a running rotation whose renders are counted
// separately from override renders.
func startedRotation(t *testing.T, rec *renderRecorder) *rotation.Controller {
	t.Helper()
	rot := rotation.NewController("display-1", resolver.NewStatic(nil), rec.fn, quietLogger())
	require.NoError(t, rot.Start(rotation.Config{
		Enabled:         true,
		DefaultDuration: time.Hour,
		Pages:           []*pages.Page{mustPage(t, "rotated")},
	}))
	t.Cleanup(rot.Stop)
	return rot
}

func TestShowRendersAndExpires(t *testing.T) {
	rec := &renderRecorder{}
	c := NewController("display-1", rec.fn, nil, quietLogger())

	result, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "alert"),
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, render.OutcomeComplete, result.Outcome)
	assert.Equal(t, Active, c.State())
	assert.True(t, c.ExpiresAt().After(time.Now()))

	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.True(t, c.ExpiresAt().IsZero())
}

func TestExpiryResumesRunningRotation(t *testing.T) {
	rotRec := &renderRecorder{}
	rot := startedRotation(t, rotRec)

	ovRec := &renderRecorder{}
	c := NewController("display-1", ovRec.fn, rot, quietLogger())

	// Resume is captured from the rotation being Running at show time;
	// the request carries no flag.
	before := len(rotRec.rendered())
	_, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "alert"),
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(rotRec.rendered()) > before
	}, time.Second, 5*time.Millisecond, "expiry should tick the rotation immediately")
}

func TestExpiryIgnoresRotationStoppedAtShowTime(t *testing.T) {
	rotRec := &renderRecorder{}
	rot := rotation.NewController("display-1", resolver.NewStatic(nil), rotRec.fn, quietLogger())

	ovRec := &renderRecorder{}
	c := NewController("display-1", ovRec.fn, rot, quietLogger())

	_, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "alert"),
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rotRec.rendered(), "a rotation that was not running stays untouched")
}

func TestExpiryDoesNotRestartStoppedRotation(t *testing.T) {
	rotRec := &renderRecorder{}
	rot := startedRotation(t, rotRec)

	ovRec := &renderRecorder{}
	c := NewController("display-1", ovRec.fn, rot, quietLogger())

	_, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "alert"),
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	// Rotation is stopped while the override is active; expiry must not
	// revive it even though it was running at show time.
	rot.Stop()
	before := len(rotRec.rendered())

	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, rotation.Stopped, rot.State())
	assert.Equal(t, before, len(rotRec.rendered()))
}

func TestNewOverrideReplacesActiveOne(t *testing.T) {
	ovRec := &renderRecorder{}
	c := NewController("display-1", ovRec.fn, nil, quietLogger())

	_, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "first"),
		Duration: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.Show(context.Background(), Request{
		Page:     mustPage(t, "second"),
		Duration: 80 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, ovRec.rendered())

	// The first override's expiry must never fire: well past its 20ms
	// deadline the replacement is still active.
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, Active, c.State())

	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
}

func TestCancelSkipsResume(t *testing.T) {
	rotRec := &renderRecorder{}
	rot := startedRotation(t, rotRec)

	ovRec := &renderRecorder{}
	c := NewController("display-1", ovRec.fn, rot, quietLogger())

	_, err := c.Show(context.Background(), Request{
		Page:     mustPage(t, "alert"),
		Duration: time.Hour,
	})
	require.NoError(t, err)

	before := len(rotRec.rendered())
	c.Cancel()
	c.Cancel() // idempotent
	assert.Equal(t, Idle, c.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, len(rotRec.rendered()))
}

func TestShowRejectsMissingPage(t *testing.T) {
	c := NewController("display-1", (&renderRecorder{}).fn, nil, quietLogger())
	_, err := c.Show(context.Background(), Request{})
	assert.Error(t, err)
	assert.Equal(t, Idle, c.State())
}
