// Package monitor - pool.go detects serving-pool transitions.
package monitor

// poolTracker compares the serving pool across consecutive records.
// It is a pure function of the record stream: no thresholds, cooldowns
// or maintenance logic live here.
//
// States: unknown (startup, current == ""), then stable on some pool.
// A TransitionEvent is emitted only when moving between two known pools.
type poolTracker struct {
	current  string
	previous string
}

// observe updates the tracker with the pool that served a record.
// Returns a transition event and true when the pool changed between two
// known pools. The first record ever seen establishes the pool and emits
// nothing (there is no valid "from").
func (p *poolTracker) observe(pool string) (TransitionEvent, bool) {
	if p.current == "" {
		p.current = pool
		return TransitionEvent{}, false
	}
	if pool == p.current {
		return TransitionEvent{}, false
	}
	p.previous = p.current
	p.current = pool
	return TransitionEvent{From: p.previous, To: p.current}, true
}

// CurrentPool returns the pool serving traffic as of the last record,
// or "" before the first record arrives.
func (e *Engine) CurrentPool() string { return e.pools.current }

// PreviousPool returns the pool that served traffic before the most
// recent transition, or "" if no transition has occurred.
func (e *Engine) PreviousPool() string { return e.pools.previous }
