// Package mock provides a scriptable in-memory implementation of
// [bridge.Caller] for unit tests. No transport or page world is involved.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/voxfill/voxfill/internal/bridge"
)

// Caller is a mock [bridge.Caller]. Script it per operation via Handle; every
// unscripted operation fails. Set a delay longer than the call's timeout to
// simulate a timed-out request.
type Caller struct {
	mu       sync.Mutex
	handlers map[bridge.Op]func(payload json.RawMessage) (any, error)
	delays   map[bridge.Op]time.Duration

	// CallCounts records how many times each operation was invoked.
	CallCounts map[bridge.Op]int

	// RecordedPayloads holds the marshalled payload of every call, in order.
	RecordedPayloads []json.RawMessage
}

var _ bridge.Caller = (*Caller)(nil)

// NewCaller creates an empty mock caller.
func NewCaller() *Caller {
	return &Caller{
		handlers:   make(map[bridge.Op]func(payload json.RawMessage) (any, error)),
		delays:     make(map[bridge.Op]time.Duration),
		CallCounts: make(map[bridge.Op]int),
	}
}

// Handle scripts op to run fn. The returned value is marshalled into the
// caller's result argument; a non-nil error fails the call.
func (c *Caller) Handle(op bridge.Op, fn func(payload json.RawMessage) (any, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[op] = fn
}

// HandleResult scripts op to always succeed with result.
func (c *Caller) HandleResult(op bridge.Op, result any) {
	c.Handle(op, func(json.RawMessage) (any, error) { return result, nil })
}

// HandleError scripts op to always fail with err.
func (c *Caller) HandleError(op bridge.Op, err error) {
	c.Handle(op, func(json.RawMessage) (any, error) { return nil, err })
}

// Delay makes op respond only after d; when d exceeds the call's timeout the
// call returns [bridge.ErrTimeout] like the real bus would.
func (c *Caller) Delay(op bridge.Op, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays[op] = d
}

// Call implements [bridge.Caller].
func (c *Caller) Call(ctx context.Context, op bridge.Op, payload any, timeout time.Duration, result any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}

	c.mu.Lock()
	c.CallCounts[op]++
	c.RecordedPayloads = append(c.RecordedPayloads, raw)
	fn, ok := c.handlers[op]
	delay := c.delays[op]
	c.mu.Unlock()

	if delay > timeout {
		return fmt.Errorf("%w: %s after %s", bridge.ErrTimeout, op, timeout)
	}
	if !ok {
		return &bridge.RemoteError{Op: op, Code: "not handled"}
	}

	out, err := fn(raw)
	if err != nil {
		return &bridge.RemoteError{Op: op, Code: err.Error()}
	}
	if result != nil && out != nil {
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, result); err != nil {
			return err
		}
	}
	return ctx.Err()
}
