package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/proto"
)

func dialWS(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Envelope {
	t.Helper()

	var env proto.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	return env
}

func writeEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	env := proto.Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		env.Data = raw
	}
	require.NoError(t, wsjson.Write(ctx, conn, env))
}

func TestWebSocketHandshake(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-7")))

	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeConnected, env.Type)

	var hello proto.ConnectedData
	require.NoError(t, json.Unmarshal(env.Data, &hello))
	assert.NotEmpty(t, hello.ConnectionID)
	assert.Equal(t, "emp-7", hello.EmployeeID)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, srv.wsURL("bogus"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketJoinAndReceive(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-1")))
	readEnvelope(t, ctx, conn) // connected

	writeEnvelope(t, ctx, conn, proto.TypeJoinRoom, "schedule:42")
	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeRoomJoined, env.Type)
	assert.JSONEq(t, `{"room":"schedule:42"}`, string(env.Data))

	resp := srv.do(t, http.MethodPost, "/api/rooms/schedule:42/events", srv.token(t, "emp-2"), map[string]any{
		"type": "schedule.update",
		"data": map[string]any{"shift_id": 9},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	env = readEnvelope(t, ctx, conn)
	assert.Equal(t, "schedule.update", env.Type)
	assert.JSONEq(t, `{"shift_id":9}`, string(env.Data))

	writeEnvelope(t, ctx, conn, proto.TypeLeaveRoom, "schedule:42")
	env = readEnvelope(t, ctx, conn)
	assert.Equal(t, proto.TypeRoomLeft, env.Type)
}

func TestWebSocketNumericRoomID(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-1")))
	readEnvelope(t, ctx, conn)

	writeEnvelope(t, ctx, conn, proto.TypeJoinRoom, 42)
	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeRoomJoined, env.Type)
	assert.JSONEq(t, `{"room":"42"}`, string(env.Data))
}

func TestWebSocketPingPong(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-1")))
	readEnvelope(t, ctx, conn)

	writeEnvelope(t, ctx, conn, proto.TypePing, nil)
	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypePong, env.Type)

	var pong proto.PongData
	require.NoError(t, json.Unmarshal(env.Data, &pong))
	assert.NotZero(t, pong.TS)
}

func TestWebSocketErrors(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-1")))
	readEnvelope(t, ctx, conn)

	tests := []struct {
		name string
		send func()
		code string
	}{
		{
			name: "unknown type",
			send: func() { writeEnvelope(t, ctx, conn, "dance", nil) },
			code: "unknown_type",
		},
		{
			name: "malformed json",
			send: func() { require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json"))) },
			code: "bad_request",
		},
		{
			name: "join without room",
			send: func() { writeEnvelope(t, ctx, conn, proto.TypeJoinRoom, nil) },
			code: "bad_request",
		},
		{
			name: "leave unknown room",
			send: func() { writeEnvelope(t, ctx, conn, proto.TypeLeaveRoom, "ghost") },
			code: "not_in_room",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.send()
			env := readEnvelope(t, ctx, conn)
			require.Equal(t, proto.TypeError, env.Type)

			var perr proto.Error
			require.NoError(t, json.Unmarshal(env.Data, &perr))
			assert.Equal(t, tt.code, perr.Code)
		})
	}

	// the connection survives protocol errors
	writeEnvelope(t, ctx, conn, proto.TypePing, nil)
	assert.Equal(t, proto.TypePong, readEnvelope(t, ctx, conn).Type)
}

func TestWebSocketRateLimit(t *testing.T) {
	srv := startTestServer(t, func(cfg *config.Config) { cfg.WSRateLimit = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv.wsURL(srv.token(t, "emp-1")))
	readEnvelope(t, ctx, conn)

	for range 2 {
		writeEnvelope(t, ctx, conn, proto.TypePing, nil)
		require.Equal(t, proto.TypePong, readEnvelope(t, ctx, conn).Type)
	}

	writeEnvelope(t, ctx, conn, proto.TypePing, nil)
	env := readEnvelope(t, ctx, conn)
	require.Equal(t, proto.TypeError, env.Type)
	assert.Contains(t, string(env.Data), "rate_limited")
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	srv := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.wsURL(srv.token(t, "emp-1")), nil)
	require.NoError(t, err)
	readEnvelope(t, ctx, conn)

	writeEnvelope(t, ctx, conn, proto.TypeJoinRoom, "dept:1")
	readEnvelope(t, ctx, conn)

	stats, err := srv.hub.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Clients)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		stats, err := srv.hub.Stats(ctx)
		return err == nil && stats.Clients == 0 && stats.Rooms == 0
	}, 2*time.Second, 10*time.Millisecond)
}
