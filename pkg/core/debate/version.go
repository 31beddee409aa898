package debate

import "sync"

// VersionGuard is the per-room monotonic fencing counter. Every asynchronous
// unit of work captures the version active when it was issued; results are
// applied only while the captured version is still current, so work that
// outlives its turn is discarded instead of corrupting the next one.
type VersionGuard struct {
	mu       sync.Mutex
	versions map[string]int
}

// NewVersionGuard returns an empty guard. Unknown rooms report version 0.
func NewVersionGuard() *VersionGuard {
	return &VersionGuard{versions: make(map[string]int)}
}

// Current returns the room's active version.
func (g *VersionGuard) Current(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.versions[roomID]
}

// Advance increments the room's version and returns the new value. It is
// called exactly once per completed turn.
func (g *VersionGuard) Advance(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.versions[roomID]++
	return g.versions[roomID]
}

// IsCurrent reports whether captured still equals the room's version.
func (g *VersionGuard) IsCurrent(roomID string, captured int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.versions[roomID] == captured
}

// Drop forgets a room on teardown.
func (g *VersionGuard) Drop(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.versions, roomID)
}
