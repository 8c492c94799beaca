package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/rotawire/internal/proto"
)

// pushServer is a minimal /ws peer: it sends the handshake, records inbound
// frames and can push or hang up on demand.
type pushServer struct {
	mu       sync.Mutex
	tokens   []string
	received []proto.Envelope
	conns    []*websocket.Conn
}

func (s *pushServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "bad" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	s.mu.Lock()
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	ctx := r.Context()
	data, _ := json.Marshal(proto.ConnectedData{ConnectionID: "c-1"})
	if err := wsjson.Write(ctx, conn, proto.Envelope{Type: proto.TypeConnected, Data: data}); err != nil {
		return
	}

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, env)
		s.mu.Unlock()
	}
}

func (s *pushServer) inbound() []proto.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Envelope(nil), s.received...)
}

func (s *pushServer) push(t *testing.T, env proto.Envelope) {
	t.Helper()
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	require.NoError(t, wsjson.Write(context.Background(), conn, env))
}

func (s *pushServer) hangUp() {
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	conn.Close(websocket.StatusGoingAway, "restart")
}

func TestWebSocketTransportEndToEnd(t *testing.T) {
	srv := &pushServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ch := New(Config{Origin: ts.URL})

	var mu sync.Mutex
	var got []string
	ch.AddEventListener("schedule.update", func(data json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
	})

	// queued before connecting, drained after the handshake
	ch.Send("early", map[string]int{"n": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Connect(ctx, "tok123"))
	require.Eventually(t, ch.IsReady, 2*time.Second, 10*time.Millisecond)

	ch.JoinRoom("schedule:42")
	ch.Send("late", nil)

	require.Eventually(t, func() bool { return len(srv.inbound()) == 3 }, 2*time.Second, 10*time.Millisecond)
	in := srv.inbound()
	assert.Equal(t, "early", in[0].Type)
	assert.Equal(t, proto.TypeJoinRoom, in[1].Type)
	assert.JSONEq(t, `"schedule:42"`, string(in[1].Data))
	assert.Equal(t, "late", in[2].Type)
	srv.mu.Lock()
	assert.Equal(t, []string{"tok123"}, srv.tokens)
	srv.mu.Unlock()

	srv.push(t, proto.Envelope{Type: "schedule.update", Data: json.RawMessage(`{"id":7}`)})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.hangUp()
	require.Eventually(t, func() bool { return ch.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)

	ch.Disconnect()
}

func TestWebSocketTransportRejectedHandshake(t *testing.T) {
	ts := httptest.NewServer(&pushServer{})
	defer ts.Close()

	ch := New(Config{Origin: ts.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := ch.Connect(ctx, "bad")

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestWebSocketTransportGracefulDisconnect(t *testing.T) {
	srv := &pushServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ch := New(Config{Origin: ts.URL})

	var mu sync.Mutex
	var states []State
	ch.OnStateChange(func(ev StateEvent) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, ev.New)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Connect(ctx, "tok"))

	ch.Disconnect()
	assert.Equal(t, StateDisconnected, ch.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateOpen, StateClosing, StateDisconnected}, states)
}
