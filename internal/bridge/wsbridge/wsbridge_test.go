package wsbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxfill/voxfill/internal/bridge"
	"github.com/voxfill/voxfill/internal/bridge/wsbridge"
	"github.com/voxfill/voxfill/pkg/audio"
)

// dial spins up the bridge handler, connects a client to it, and waits until
// the server side has attached the connection.
func dial(t *testing.T, s *wsbridge.Server) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// Accept and attach race the dial's return; probe until the server can
	// write to us.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := s.SendNotice(ctx, bridge.Notice{Kind: bridge.NoticeBusy}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never attached the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Drain the probe notice.
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("drain probe notice: %v", err)
	}
	return conn
}

// answer reads correlated requests from conn and answers each with reply.
func answer(t *testing.T, conn *websocket.Conn, reply func(bridge.Request) bridge.Response) {
	t.Helper()
	go func() {
		ctx := context.Background()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req bridge.Request
			if err := json.Unmarshal(data, &req); err != nil || req.Channel == "" {
				continue
			}
			out, _ := json.Marshal(reply(req))
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}()
}

func TestServer_RequestResponseRoundTrip(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)
	answer(t, conn, func(req bridge.Request) bridge.Response {
		if req.Op != bridge.OpCheckEligibility {
			t.Errorf("op = %q, want %q", req.Op, bridge.OpCheckEligibility)
		}
		return bridge.Response{
			Channel: req.Channel,
			Success: true,
			Result:  json.RawMessage(`{"isEligible":true}`),
		}
	})

	var result bridge.EligibilityResult
	err := s.Bus().Call(context.Background(), bridge.OpCheckEligibility, nil, 2*time.Second, &result)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !result.IsEligible {
		t.Error("IsEligible = false, want true")
	}
}

func TestServer_CommandRouting(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)

	frame := []byte(`{"cmd":"toggle_record","formIndex":2}`)
	if err := conn.Write(context.Background(), websocket.MessageText, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cmd := <-s.Commands():
		if cmd.Kind != bridge.CmdToggleRecord {
			t.Errorf("kind = %q, want toggle_record", cmd.Kind)
		}
		if cmd.FormIndex != 2 {
			t.Errorf("formIndex = %d, want 2", cmd.FormIndex)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestServer_MalformedFramesAreIgnored(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)
	ctx := context.Background()

	for _, frame := range []string{"{not json", `{"cmd":"do_a_flip"}`, `{}`} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// The connection survives; a valid command still routes.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"cmd":"settings_updated"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cmd := <-s.Commands():
		if cmd.Kind != bridge.CmdSettingsUpdated {
			t.Errorf("kind = %q, want settings_updated", cmd.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command after malformed frames never arrived")
	}
}

func TestServer_SendNotice(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)
	ctx := context.Background()

	err := s.SendNotice(ctx, bridge.Notice{Kind: bridge.NoticeBound, Fields: []string{"name", "email"}})
	if err != nil {
		t.Fatalf("SendNotice() error: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var n bridge.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n.Kind != bridge.NoticeBound || len(n.Fields) != 2 {
		t.Errorf("notice = %+v, want bound with 2 fields", n)
	}
}

func TestServer_SendWithoutConnection(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	err := s.Send(context.Background(), bridge.Request{Op: bridge.OpPing, Channel: "ping_x"})
	if err == nil {
		t.Fatal("Send() should fail when no extension is connected")
	}
}

func TestServer_OpenCapturePermissionDenied(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)
	answer(t, conn, func(req bridge.Request) bridge.Response {
		return bridge.Response{Channel: req.Channel, Success: false, Error: bridge.ErrorPermissionDenied}
	})

	_, err := s.OpenCapture(context.Background(), audio.CaptureConfig{})
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("OpenCapture() error = %v, want ErrPermissionDenied", err)
	}
}

func TestServer_OpenCaptureAndClose(t *testing.T) {
	t.Parallel()

	s := wsbridge.New()
	conn := dial(t, s)
	answer(t, conn, func(req bridge.Request) bridge.Response {
		switch req.Op {
		case bridge.OpBeginCapture:
			var cr bridge.CaptureRequest
			if err := json.Unmarshal(req.Payload, &cr); err != nil || cr.SampleRate != 48000 {
				t.Errorf("begin_capture payload = %s", req.Payload)
			}
		case bridge.OpEndCapture:
		default:
			t.Errorf("unexpected op %q", req.Op)
		}
		return bridge.Response{Channel: req.Channel, Success: true}
	})

	cap, err := s.OpenCapture(context.Background(), audio.CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture() error: %v", err)
	}

	if err := cap.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	// Frames channel is closed by teardown.
	select {
	case _, ok := <-cap.Frames():
		if ok {
			t.Error("unexpected frame from a closed capture")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frames channel never closed")
	}
}
