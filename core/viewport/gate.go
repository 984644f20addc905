package viewport

import (
	"sync"

	"github.com/cctvwall/cctvwall/config"
)

// Target is what the gate activates, normally a stream session.
// Start and Stop must be idempotent.
type Target interface {
	Start()
	Stop()
}

// Gate activates a target while its tile is visible.
//
// With the continuous policy the target follows visibility both ways and
// off-screen tiles give their connections back. With the once policy the
// first visible report starts the target and observation ends.
type Gate struct {
	signal Signal
	target Target
	policy string

	mu        sync.Mutex
	observing bool
	active    bool
}

// NewGate creates a gate. Unknown policies fall back to continuous.
func NewGate(signal Signal, target Target, policy string) *Gate {
	if policy != config.ViewportOnce {
		policy = config.ViewportContinuous
	}
	return &Gate{signal: signal, target: target, policy: policy}
}

// Observe starts watching the signal.
func (g *Gate) Observe() {
	g.mu.Lock()
	if g.observing {
		g.mu.Unlock()
		return
	}
	g.observing = true
	g.mu.Unlock()

	g.signal.Start(g.handle)
}

// Active reports whether the gate has started the target.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *Gate) handle(v Visibility) {
	g.mu.Lock()
	if !g.observing {
		g.mu.Unlock()
		return
	}

	stopObserving := false
	switch {
	case v.Visible && !g.active:
		g.active = true
		g.target.Start()
		if g.policy == config.ViewportOnce {
			g.observing = false
			stopObserving = true
		}
	case !v.Visible && g.active && g.policy == config.ViewportContinuous:
		g.active = false
		g.target.Stop()
	}
	g.mu.Unlock()

	if stopObserving {
		g.signal.Stop()
	}
}

// Close stops observing and deactivates the target.
func (g *Gate) Close() {
	g.mu.Lock()
	wasObserving := g.observing
	g.observing = false
	active := g.active
	g.active = false
	g.mu.Unlock()

	if wasObserving {
		g.signal.Stop()
	}
	if active {
		g.target.Stop()
	}
}
