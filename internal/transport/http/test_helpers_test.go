package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/rotawire/internal/auth"
	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/store/sqlite"
)

const testSecret = "testsecret"

type testServer struct {
	*httptest.Server
	hub *core.Hub
	cfg config.Config
}

// startTestServer runs a hub, an in-memory event store and the router.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)

	hub := core.NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, st, &cfg, nil)
	ts := httptest.NewServer(server.Handler)

	t.Cleanup(func() {
		ts.Close()
		cancel()
		st.Close()
	})

	return &testServer{Server: ts, hub: hub, cfg: cfg}
}

func (s *testServer) wsURL(token string) string {
	return strings.Replace(s.URL, "http", "ws", 1) + "/ws?token=" + token
}

func (s *testServer) token(t *testing.T, employeeID string) string {
	t.Helper()

	token, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(s.cfg.JWTSecret),
		Issuer:   s.cfg.JWTIssuer,
		Audience: s.cfg.JWTAudience,
		TTL:      time.Hour,
	}, employeeID, "")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
