package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedResolver(now time.Time) *TimeWindowResolver {
	r := NewTimeWindowResolver()
	r.now = func() time.Time { return now }
	return r
}

func TestResolveDefaultWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	win := r.Resolve(0)
	assert.Equal(t, now, win.End)
	assert.Equal(t, now.Add(-24*time.Hour), win.Start)
	assert.Equal(t, 30, win.MessageCap)
}

func TestResolveNegativeHintFallsBackToDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	win := r.Resolve(-3 * time.Hour)
	assert.Equal(t, now.Add(-24*time.Hour), win.Start)
	assert.Equal(t, 30, win.MessageCap)
}

func TestResolveExplicitWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	win := r.Resolve(3 * time.Hour)
	assert.Equal(t, now.Add(-3*time.Hour), win.Start)
	assert.Equal(t, now, win.End)
	assert.Equal(t, 100, win.MessageCap)
}

func TestResolveClampsOversizedHint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(now)

	// 10 天收敛到 7 天而不是拒绝
	win := r.Resolve(240 * time.Hour)
	assert.Equal(t, now.Add(-168*time.Hour), win.Start)
	assert.Equal(t, 100, win.MessageCap)
}
