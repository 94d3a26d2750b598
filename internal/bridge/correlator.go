package bridge

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Correlator matches asynchronous responses to pending requests by channel
// identifier. Channels are unpredictable per request, so two in-flight
// requests of the same operation can never have their responses
// cross-delivered.
//
// Correlator is safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan Response
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan Response)}
}

// NewChannel generates a fresh correlation channel identifier for op.
func NewChannel(op Op) string {
	return fmt.Sprintf("%s_%s", op, uuid.NewString())
}

// Register creates a pending entry for channel and returns the receive side.
// The entry is buffered so a dispatch never blocks the transport read loop.
func (c *Correlator) Register(channel string) <-chan Response {
	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[channel] = ch
	c.mu.Unlock()
	return ch
}

// Deregister removes the pending entry for channel. Safe to call after the
// entry has already been resolved or never existed.
func (c *Correlator) Deregister(channel string) {
	c.mu.Lock()
	delete(c.pending, channel)
	c.mu.Unlock()
}

// Dispatch delivers resp to its pending entry and removes it. It reports
// whether a listener was still registered; stale responses (listener already
// deregistered after timeout, or duplicate delivery) return false and are
// dropped by the caller.
func (c *Correlator) Dispatch(resp Response) bool {
	c.mu.Lock()
	ch, ok := c.pending[resp.Channel]
	if ok {
		delete(c.pending, resp.Channel)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// PendingCount returns the number of unresolved entries. Used by tests to
// verify that both resolution paths deregister their listeners.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
