package websocket

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool

	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8), done: make(chan struct{})}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return websocket.TextMessage, msg, nil
	case <-f.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) RemoteAddr() string                { return "127.0.0.1:5000" }

func (f *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.written))
	for _, raw := range f.written {
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startedHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(quietLogger())
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

type jobPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := startedHub(t)
	a, b := newFakeConn(), newFakeConn()
	require.NotNil(t, ServeWS(hub, a, "trace-a", quietLogger()))
	require.NotNil(t, ServeWS(hub, b, "", quietLogger()))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate("job", "download", "running", jobPayload{ID: "j1", Status: "running"})

	for _, conn := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return conn.count() == 2 }, time.Second, 5*time.Millisecond)
		msgs := conn.messages(t)
		assert.Equal(t, TypeConnection, msgs[0].Type)
		assert.Equal(t, "job", msgs[1].Type)
		assert.Equal(t, "download", msgs[1].Subtype)
		assert.Equal(t, "running", msgs[1].Action)
		assert.NotEmpty(t, msgs[1].Timestamp)
	}
	assert.Equal(t, "trace-a", a.messages(t)[0].TraceID)

	stats := hub.GetHubMetrics()
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, int64(2), stats["total_connections"])
}

func TestHub_SubscriptionFilter(t *testing.T) {
	hub := startedHub(t)
	conn := newFakeConn()
	client := ServeWS(hub, conn, "", quietLogger())
	require.NotNil(t, client)
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 5*time.Millisecond)

	conn.inbound <- []byte(`{"type":"subscribe","job_id":"wanted"}`)
	require.Eventually(t, func() bool { return client.wants("wanted") && !client.wants("other") },
		time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate("job", "download", "running", jobPayload{ID: "other"})
	hub.BroadcastUpdate("job", "download", "completed", jobPayload{ID: "wanted"})
	hub.BroadcastError("queue", "worker crashed")

	require.Eventually(t, func() bool { return conn.count() == 3 }, time.Second, 5*time.Millisecond)
	msgs := conn.messages(t)
	assert.Equal(t, "completed", msgs[1].Action)
	assert.Equal(t, TypeError, msgs[2].Type)

	conn.inbound <- []byte(`{"type":"unsubscribe"}`)
	require.Eventually(t, func() bool { return client.wants("other") }, time.Second, 5*time.Millisecond)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := startedHub(t)
	conn := newFakeConn()
	require.NotNil(t, ServeWS(hub, conn, "", quietLogger()))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Start()
	hub.Start()
	conn := newFakeConn()
	require.NotNil(t, ServeWS(hub, conn, "", quietLogger()))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	hub.Stop()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	assert.Nil(t, ServeWS(hub, newFakeConn(), "", quietLogger()))
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(quietLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.BroadcastUpdate("job_progress", "download", "running", jobPayload{ID: "j"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastUpdate blocked without a running hub")
	}
	assert.Equal(t, int64(10), hub.GetHubMetrics()["messages_dropped"])
}

func TestSubjectOf(t *testing.T) {
	assert.Equal(t, "abc", subjectOf(jobPayload{ID: "abc"}))
	assert.Equal(t, "abc", subjectOf(map[string]interface{}{"id": "abc"}))
	assert.Empty(t, subjectOf([]int{1, 2}))
	assert.Empty(t, subjectOf(nil))
	assert.Empty(t, subjectOf(func() {}))
}
