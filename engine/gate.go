package engine

import "sync"

// gate admits request-path operations only while a round phase lasts.
// Closing it rejects new entrants and waits for everyone already inside,
// so a phase transition always sees a quiesced request path: every bet
// accepted during waiting is persisted before takeoff activates bets,
// and every cashout admitted during flight resolves before the crash
// pass claims the remaining bets.
type gate struct {
	mu        sync.Mutex
	accepting bool
	inflight  sync.WaitGroup
}

func newGate() *gate {
	return &gate{}
}

// enter admits the caller if the gate is open. Callers that get true
// must call exit when done.
func (g *gate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.accepting {
		return false
	}
	g.inflight.Add(1)
	return true
}

func (g *gate) exit() {
	g.inflight.Done()
}

// open starts admitting callers
func (g *gate) open() {
	g.mu.Lock()
	g.accepting = true
	g.mu.Unlock()
}

// close stops admitting callers and blocks until everyone inside leaves
func (g *gate) close() {
	g.mu.Lock()
	g.accepting = false
	g.mu.Unlock()

	g.inflight.Wait()
}
