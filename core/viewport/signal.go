package viewport

import (
	"sync"

	"github.com/cctvwall/cctvwall/config"
)

// Visibility is one observation of a tile.
type Visibility struct {
	Visible bool    `json:"visible"`
	Ratio   float64 `json:"ratio"`
}

// Signal reports tile visibility changes until stopped.
type Signal interface {
	Start(fn func(Visibility))
	Stop()
}

// ReportSignal turns tile and viewport geometry reported by a browser into
// visibility changes. Only changes are forwarded.
type ReportSignal struct {
	margin    float64
	threshold float64

	mu   sync.Mutex
	fn   func(Visibility)
	seen bool
	last bool
}

// NewReportSignal uses the default pre-load margin and visible threshold.
func NewReportSignal() *ReportSignal {
	return &ReportSignal{margin: config.RootMargin, threshold: config.VisibleThreshold}
}

// Start implements Signal.
func (s *ReportSignal) Start(fn func(Visibility)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.seen = false
}

// Stop implements Signal.
func (s *ReportSignal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = nil
}

// Report evaluates a geometry report.
func (s *ReportSignal) Report(tile, viewport Rect) Visibility {
	ratio := Intersection(tile, viewport, s.margin)
	v := Visibility{Visible: ratio > 0 && ratio >= s.threshold, Ratio: ratio}
	s.deliver(v)
	return v
}

// Hide reports the tile as gone, e.g. when its page closes.
func (s *ReportSignal) Hide() {
	s.deliver(Visibility{})
}

func (s *ReportSignal) deliver(v Visibility) {
	s.mu.Lock()
	fn := s.fn
	changed := !s.seen || s.last != v.Visible
	s.seen = true
	s.last = v.Visible
	s.mu.Unlock()

	if fn != nil && changed {
		fn(v)
	}
}
