package viewport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cctvwall/cctvwall/config"
)

type countingTarget struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (c *countingTarget) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
}

func (c *countingTarget) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *countingTarget) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

var screen = Rect{Width: 1920, Height: 1080}

func TestIntersectionUsesMargin(t *testing.T) {
	inside := Rect{X: 100, Y: 100, Width: 320, Height: 180}
	assert.InDelta(t, 1.0, Intersection(inside, screen, 0), 1e-9)

	below := Rect{X: 100, Y: 1130, Width: 320, Height: 180}
	assert.Zero(t, Intersection(below, screen, 0))
	assert.InDelta(t, 50.0/180.0, Intersection(below, screen, 100), 1e-9)

	assert.Zero(t, Intersection(Rect{}, screen, 100))
}

func TestReportSignalForwardsChangesOnly(t *testing.T) {
	s := NewReportSignal()
	var got []Visibility
	s.Start(func(v Visibility) { got = append(got, v) })

	tile := Rect{X: 0, Y: 0, Width: 320, Height: 180}
	s.Report(tile, screen)
	s.Report(tile, screen)
	s.Report(Rect{X: 0, Y: 5000, Width: 320, Height: 180}, screen)
	s.Hide()

	assert.Len(t, got, 2)
	assert.True(t, got[0].Visible)
	assert.False(t, got[1].Visible)

	s.Stop()
	s.Report(tile, screen)
	assert.Len(t, got, 2)
}

func TestReportSignalThreshold(t *testing.T) {
	s := NewReportSignal()
	// 9% of the tile is inside the margin-expanded viewport
	v := s.Report(Rect{X: 0, Y: 1171, Width: 100, Height: 100}, screen)
	assert.False(t, v.Visible)
	assert.InDelta(t, 0.09, v.Ratio, 1e-9)

	v = s.Report(Rect{X: 0, Y: 1170, Width: 100, Height: 100}, screen)
	assert.True(t, v.Visible)
}

func TestContinuousGateTogglesTarget(t *testing.T) {
	signal := NewReportSignal()
	target := &countingTarget{}
	g := NewGate(signal, target, config.ViewportContinuous)
	g.Observe()
	g.Observe()

	visible := Rect{Width: 100, Height: 100}
	hidden := Rect{Y: 5000, Width: 100, Height: 100}

	signal.Report(hidden, screen)
	assert.False(t, g.Active())

	signal.Report(visible, screen)
	signal.Report(hidden, screen)
	signal.Report(visible, screen)

	starts, stops := target.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
	assert.True(t, g.Active())

	g.Close()
	g.Close()
	_, stops = target.counts()
	assert.Equal(t, 2, stops)

	signal.Report(hidden, screen)
	signal.Report(visible, screen)
	starts, _ = target.counts()
	assert.Equal(t, 2, starts)
}

func TestOnceGateStopsObserving(t *testing.T) {
	signal := NewReportSignal()
	target := &countingTarget{}
	g := NewGate(signal, target, config.ViewportOnce)
	g.Observe()

	signal.Report(Rect{Width: 100, Height: 100}, screen)
	signal.Report(Rect{Y: 5000, Width: 100, Height: 100}, screen)
	signal.Report(Rect{Width: 100, Height: 100}, screen)

	starts, stops := target.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)
	assert.True(t, g.Active())

	g.Close()
	_, stops = target.counts()
	assert.Equal(t, 1, stops)
}

func TestUnknownPolicyIsContinuous(t *testing.T) {
	g := NewGate(NewReportSignal(), &countingTarget{}, "sometimes")
	assert.Equal(t, config.ViewportContinuous, g.policy)
}
