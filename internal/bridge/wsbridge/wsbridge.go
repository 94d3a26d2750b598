// Package wsbridge provides the WebSocket transport connecting the Voxfill
// agent to the browser extension. Text frames carry the JSON envelopes of the
// bridge protocol; binary frames carry raw Opus audio packets while a capture
// is active.
//
// A single extension connection is served at a time. A newly accepted
// connection replaces the previous one, which is closed; pending requests on
// the old connection fail by timeout, never by panic.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/internal/observe"
)

// writeLimit bounds outbound envelope size; audio payloads dominate, 32 MiB
// covers several minutes of Opus at voice bitrates.
const readLimit = 32 << 20

// Server accepts the extension connection and pumps envelopes between the
// socket and a [bridge.Bus]. It also implements [audio.Platform]; see
// capture.go.
type Server struct {
	bus     *bridge.Bus
	cmds    chan bridge.Command
	metrics *observe.Metrics

	mu      sync.Mutex
	conn    *websocket.Conn
	capture *capture // at most one active capture
}

// New creates a Server and its bus.
func New() *Server {
	s := &Server{
		cmds:    make(chan bridge.Command, 16),
		metrics: observe.DefaultMetrics(),
	}
	s.bus = bridge.NewBus(s)
	return s
}

// Bus returns the request/response bus backed by this transport.
func (s *Server) Bus() *bridge.Bus { return s.bus }

// Commands returns the stream of uncorrelated page→agent commands (user
// gestures, settings changes).
func (s *Server) Commands() <-chan bridge.Command { return s.cmds }

// Handler returns the HTTP handler that upgrades to the bridge WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The extension connects from its own origin; the socket is
			// loopback-only, enforced by the listen address.
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			slog.Warn("bridge accept failed", "error", err)
			return
		}
		conn.SetReadLimit(readLimit)

		s.attach(conn)
		s.readLoop(r.Context(), conn)
	})
}

// attach installs conn as the live connection, closing any previous one.
func (s *Server) attach(conn *websocket.Conn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		slog.Info("bridge reconnected, dropping previous connection")
		prev.Close(websocket.StatusPolicyViolation, "superseded")
	} else {
		s.metrics.ConnectedExtensions.Add(context.Background(), 1)
		slog.Info("bridge connected")
	}
}

// detach clears conn if it is still the live connection and tears down any
// capture that was fed by it.
func (s *Server) detach(conn *websocket.Conn) {
	s.mu.Lock()
	var cap *capture
	wasLive := s.conn == conn
	if wasLive {
		s.conn = nil
		cap = s.capture
		s.capture = nil
	}
	s.mu.Unlock()

	if cap != nil {
		cap.abandon()
	}
	if wasLive {
		s.metrics.ConnectedExtensions.Add(context.Background(), -1)
	}
	slog.Info("bridge disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.detach(conn)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Debug("bridge read ended", "error", err)
			}
			return
		}
		switch typ {
		case websocket.MessageBinary:
			s.routeAudio(data)
		case websocket.MessageText:
			s.routeText(data)
		}
	}
}

// routeText dispatches an inbound JSON frame: correlated responses go to the
// bus, commands go to the command stream, anything else is dropped.
func (s *Server) routeText(data []byte) {
	var probe struct {
		Channel string             `json:"channel"`
		Cmd     bridge.CommandKind `json:"cmd"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Warn("bridge received malformed frame", "error", err)
		return
	}

	switch {
	case probe.Channel != "":
		var resp bridge.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("bridge received malformed response", "error", err)
			return
		}
		s.metrics.RecordBridgeMessage(context.Background(), "response", "in")
		s.bus.Dispatch(resp)
	case probe.Cmd.IsValid():
		var cmd bridge.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			slog.Warn("bridge received malformed command", "error", err)
			return
		}
		s.metrics.RecordBridgeMessage(context.Background(), string(cmd.Kind), "in")
		select {
		case s.cmds <- cmd:
		default:
			// A wedged controller must not back-pressure the socket.
			slog.Warn("bridge command dropped, queue full", "cmd", cmd.Kind)
		}
	default:
		slog.Warn("bridge received unroutable frame")
	}
}

// routeAudio hands a binary Opus packet to the active capture, if any.
func (s *Server) routeAudio(packet []byte) {
	s.mu.Lock()
	cap := s.capture
	s.mu.Unlock()
	if cap != nil {
		cap.push(packet)
	}
}

// Send implements [bridge.Transport].
func (s *Server) Send(ctx context.Context, req bridge.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal request: %w", err)
	}
	s.metrics.RecordBridgeMessage(ctx, string(req.Op), "out")
	return s.write(ctx, data)
}

// SendNotice implements [bridge.Transport].
func (s *Server) SendNotice(ctx context.Context, n bridge.Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal notice: %w", err)
	}
	return s.write(ctx, data)
}

func (s *Server) write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("wsbridge: extension not connected")
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
