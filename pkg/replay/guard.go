package replay

// Guard tracks the highest counter committed per sender and rejects
// counters that do not move forward.
//
// Guard is not safe for concurrent use. Its owner must serialize
// Accept and Commit for one frame against every other frame.
type Guard struct {
	enabled bool
	last    map[uint8]uint32
}

// NewGuard creates an enabled guard with no recorded senders
func NewGuard() *Guard {
	return &Guard{
		enabled: true,
		last:    make(map[uint8]uint32),
	}
}

// Disabled creates a bypass guard: Accept always succeeds and Commit does nothing.
// Deployments that tolerate reordering trade replay protection for it.
func Disabled() *Guard {
	return &Guard{}
}

// Enabled reports whether the guard enforces counter ordering
func (g *Guard) Enabled() bool {
	return g.enabled
}

// Accept reports whether counter is acceptable for sender without recording it
func (g *Guard) Accept(sender uint8, counter uint32) bool {
	if !g.enabled {
		return true
	}

	last, ok := g.last[sender]
	return !ok || counter > last
}

// Commit records counter for sender. The stored value never decreases.
func (g *Guard) Commit(sender uint8, counter uint32) {
	if !g.enabled {
		return
	}

	if last, ok := g.last[sender]; ok && counter <= last {
		return
	}
	g.last[sender] = counter
}

// Last returns the last committed counter for sender
func (g *Guard) Last(sender uint8) (uint32, bool) {
	counter, ok := g.last[sender]
	return counter, ok
}

// Len returns the number of senders with a committed counter
func (g *Guard) Len() int {
	return len(g.last)
}
