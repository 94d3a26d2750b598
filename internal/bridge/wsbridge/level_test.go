package wsbridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxfill/voxfill/internal/bridge"
)

// attachClient dials the server's handler and waits until the connection is
// installed server-side, discarding the notice used to detect that.
func attachClient(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := s.SendNotice(ctx, bridge.Notice{Kind: bridge.NoticeBusy})
		cancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection never attached: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	readNotice(t, conn) // drain the attach probe

	return conn
}

// readNotice reads the next text frame and decodes it as a notice.
func readNotice(t *testing.T, conn *websocket.Conn) bridge.Notice {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var n bridge.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("unmarshal notice: %v", err)
	}
	return n
}

func TestCapture_LevelLoopForwardsMeterNotices(t *testing.T) {
	s := New()
	conn := attachClient(t, s)

	c := &capture{
		server: s,
		level:  make(chan float64, 8),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.levelLoop()

	c.level <- 0.5
	n := readNotice(t, conn)
	if n.Kind != bridge.NoticeLevel {
		t.Fatalf("Kind = %q, want %q", n.Kind, bridge.NoticeLevel)
	}
	if n.Level != 0.5 {
		t.Errorf("Level = %v, want 0.5", n.Level)
	}

	// A reading inside the throttle window is skipped; the next one after
	// the window goes through, so the client sees 0.25 next, not 0.9.
	c.level <- 0.9
	time.Sleep(levelNoticeInterval + 50*time.Millisecond)
	c.level <- 0.25
	n = readNotice(t, conn)
	if n.Kind != bridge.NoticeLevel || n.Level != 0.25 {
		t.Errorf("notice = %+v, want the post-throttle 0.25 reading", n)
	}

	close(c.level)
	c.wg.Wait()
}

func TestCapture_LevelLoopSurvivesDetachedExtension(t *testing.T) {
	s := New() // no connection attached

	c := &capture{
		server: s,
		level:  make(chan float64, 8),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.levelLoop()

	// Sends fail without a connection; the loop keeps draining so capture
	// teardown is never delayed by a missing meter.
	c.level <- 0.4
	close(c.level)

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("levelLoop did not exit after the level channel closed")
	}
}
