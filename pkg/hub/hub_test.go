package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/teslashibe/go-proctor/internal/log"
)

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu      sync.Mutex
	writes  []written
	closed  chan struct{}
	once    sync.Once
	written chan struct{}
}

type written struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{}), written: make(chan struct{}, 64)}
}

func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, written{kind, data})
	c.mu.Unlock()
	c.written <- struct{}{}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) waitWrites(t *testing.T, n int) []written {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for write %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]written(nil), c.writes...)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	h := New("status", nil)
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not run before Run")
	}
}

func TestBroadcast(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn := newFakeConn()
	client := NewClient(h, conn, NewJSONMessage([]byte(`{"hello":1}`)))
	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]int{"risk": 80}); err != nil {
		t.Fatal(err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	writes := conn.waitWrites(t, 3)
	if string(writes[0].data) != `{"hello":1}` {
		t.Errorf("initial message = %s", writes[0].data)
	}
	if writes[1].kind != websocket.TextMessage || string(writes[1].data) != `{"risk":80}` {
		t.Errorf("json message = %d %s", writes[1].kind, writes[1].data)
	}
	if writes[2].kind != websocket.BinaryMessage {
		t.Errorf("binary message type = %d", writes[2].kind)
	}
}

func TestClientDisconnect(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn := newFakeConn()
	client := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		client.Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHubStop(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	client := NewClient(h, conn)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, func() bool { return !h.IsRunning() })
	if h.ClientCount() != 0 {
		t.Error("clients should be dropped when the hub stops")
	}

	// Close frame is written when the hub closes the send channel.
	writes := conn.waitWrites(t, 1)
	if writes[0].kind != websocket.CloseMessage {
		t.Errorf("expected close frame, got %d", writes[0].kind)
	}

	if NewClient(h, newFakeConn()) != nil {
		t.Error("NewClient should fail on a stopped hub")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil) // not running
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{1})
	}
	if h.Dropped() != 300-256 {
		t.Errorf("Dropped = %d, want %d", h.Dropped(), 300-256)
	}
}
