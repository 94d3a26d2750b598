package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTimeout is returned by [Bus.Call] when no matching response arrives
// before the deadline. Pipeline callers treat it as a plain layer failure;
// the capability probe resolves it to "not eligible".
var ErrTimeout = errors.New("bridge: request timed out")

// ErrRemote wraps an error description sent back by the page world.
var ErrRemote = errors.New("bridge: remote error")

// RemoteError is a failure reported by the page world for one request. It
// unwraps to [ErrRemote] so callers can match broadly; well-known codes such
// as [ErrorPermissionDenied] are matched on Code.
type RemoteError struct {
	Op   Op
	Code string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: remote error: %s: %s", e.Op, e.Code)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// Transport delivers one envelope to the page world. Implementations are
// provided by wsbridge in production and by the mock package in tests.
type Transport interface {
	// Send writes req to the page world. It does not wait for a response.
	Send(ctx context.Context, req Request) error

	// SendNotice writes an uncorrelated UI notification to the page world.
	SendNotice(ctx context.Context, n Notice) error
}

// Caller is the narrow interface the pipelines depend on.
type Caller interface {
	// Call sends op with payload and waits for the correlated response, the
	// timeout, or ctx cancellation — whichever is first. On Success the
	// response's Result is unmarshalled into result (when non-nil).
	Call(ctx context.Context, op Op, payload any, timeout time.Duration, result any) error
}

// Bus couples a [Transport] with a [Correlator] into the request/response
// abstraction used by every pipeline. The transport's read loop must feed
// inbound responses to [Bus.Dispatch].
//
// Bus is safe for concurrent use; any number of requests may be in flight.
type Bus struct {
	transport Transport
	corr      *Correlator
}

var _ Caller = (*Bus)(nil)

// NewBus creates a Bus over the given transport.
func NewBus(t Transport) *Bus {
	return &Bus{transport: t, corr: NewCorrelator()}
}

// Call implements [Caller]. Every exit path deregisters the pending entry,
// so a response that loses the race against the timeout finds no listener
// and is dropped instead of corrupting a later request.
func (b *Bus) Call(ctx context.Context, op Op, payload any, timeout time.Duration, result any) error {
	if !op.IsValid() {
		return fmt.Errorf("bridge: unknown op %q", op)
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bridge: marshal %s payload: %w", op, err)
		}
		raw = data
	}

	channel := NewChannel(op)
	respCh := b.corr.Register(channel)
	defer b.corr.Deregister(channel)

	if err := b.transport.Send(ctx, Request{Op: op, Channel: channel, Payload: raw}); err != nil {
		return fmt.Errorf("bridge: send %s: %w", op, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if !resp.Success {
			return &RemoteError{Op: op, Code: resp.Error}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("bridge: unmarshal %s result: %w", op, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, op, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch routes an inbound response to its pending request. Stale
// responses are logged and dropped.
func (b *Bus) Dispatch(resp Response) {
	if !b.corr.Dispatch(resp) {
		slog.Debug("dropping stale bridge response", "channel", resp.Channel)
	}
}

// Notify sends an uncorrelated UI notification. Failures are logged, never
// propagated; a detached extension must not break a pipeline mid-flight.
func (b *Bus) Notify(ctx context.Context, n Notice) {
	if err := b.transport.SendNotice(ctx, n); err != nil {
		slog.Debug("bridge notice dropped", "kind", n.Kind, "error", err)
	}
}
