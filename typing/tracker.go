// Package typing holds the ephemeral per-pair "is typing" state with a
// self-expiring TTL. The tracker runs on a clock.Clock so expiry is
// testable against a mock clock instead of wall time.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type pairKey struct {
	sender   string
	receiver string
}

type entry struct {
	timer *clock.Timer
	gen   uint64
}

// Tracker expires typing state that never received an explicit stop.
// The expire callback fires exactly once per activation, from the timer
// goroutine.
type Tracker struct {
	clock    clock.Clock
	ttl      time.Duration
	onExpire func(senderID, receiverID string)

	mu     sync.Mutex
	active map[pairKey]*entry
}

func NewTracker(clk clock.Clock, ttl time.Duration, onExpire func(senderID, receiverID string)) *Tracker {
	return &Tracker{
		clock:    clk,
		ttl:      ttl,
		onExpire: onExpire,
		active:   make(map[pairKey]*entry),
	}
}

// Start activates or refreshes typing state for the ordered pair.
// Returns true only on the none->active transition, so callers can emit
// the start broadcast once instead of on every keystroke.
func (t *Tracker) Start(senderID, receiverID string) (began bool) {
	k := pairKey{senderID, receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.active[k]; ok {
		// Refresh: stop the pending timer and arm a new one under a new
		// generation, so a fire that already left the old timer is ignored.
		e.timer.Stop()
		e.gen++
		gen := e.gen
		e.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(k, gen) })
		return false
	}

	e := &entry{gen: 1}
	e.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(k, 1) })
	t.active[k] = e
	return true
}

// Stop clears the state immediately. Returns whether the pair was active,
// so callers know whether a stopped-typing broadcast is due.
func (t *Tracker) Stop(senderID, receiverID string) (was bool) {
	k := pairKey{senderID, receiverID}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.active[k]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.active, k)
	return true
}

// Active reports whether the pair currently has typing state.
func (t *Tracker) Active(senderID, receiverID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[pairKey{senderID, receiverID}]
	return ok
}

func (t *Tracker) expire(k pairKey, gen uint64) {
	t.mu.Lock()
	e, ok := t.active[k]
	if !ok || e.gen != gen {
		// Stopped or refreshed while the fire was in flight.
		t.mu.Unlock()
		return
	}
	delete(t.active, k)
	t.mu.Unlock()

	t.onExpire(k.sender, k.receiver)
}
