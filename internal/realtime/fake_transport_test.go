package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	url     string
	handler TransportHandler
	sent    [][]byte
	sendErr error
	closed  bool
	aborted bool
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
}

func (f *fakeTransport) open()              { f.handler.OnOpen() }
func (f *fakeTransport) fail(err error)     { f.handler.OnError(err) }
func (f *fakeTransport) drop(err error)     { f.handler.OnClose(err) }
func (f *fakeTransport) deliver(raw string) { f.handler.OnMessage([]byte(raw)) }
func (f *fakeTransport) handshake()         { f.deliver(`{"type":"connected","data":{"connection_id":"1"}}`) }

type sentFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (f *fakeTransport) frames(t *testing.T) []sentFrame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]sentFrame, 0, len(f.sent))
	for _, raw := range f.sent {
		var fr sentFrame
		require.NoError(t, json.Unmarshal(raw, &fr))
		out = append(out, fr)
	}
	return out
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) wasAborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

func (f *fakeTransport) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
}

func (d *fakeDialer) factory(url string, h TransportHandler) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTransport{url: url, handler: h}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

type harness struct {
	ch     *Channel
	clock  *clock.Mock
	dialer *fakeDialer
}

func newHarness(t *testing.T, origin string) *harness {
	t.Helper()

	mock := clock.NewMock()
	dialer := &fakeDialer{}
	ch := New(Config{
		Origin:    origin,
		Transport: dialer.factory,
		Clock:     mock,
	})
	return &harness{ch: ch, clock: mock, dialer: dialer}
}

// connectAsync starts Connect and waits until the transport has been requested.
func (h *harness) connectAsync(t *testing.T, token string) <-chan error {
	t.Helper()

	before := h.dialer.count()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.ch.Connect(t.Context(), token)
	}()
	require.Eventually(t, func() bool {
		return h.dialer.count() > before
	}, 2*time.Second, 5*time.Millisecond)
	return errCh
}

// open connects and opens the transport without the server handshake.
func (h *harness) open(t *testing.T) *fakeTransport {
	t.Helper()

	errCh := h.connectAsync(t, "tok")
	tr := h.dialer.last()
	tr.open()
	require.NoError(t, waitErr(t, errCh))
	return tr
}

// ready connects, opens and completes the handshake.
func (h *harness) ready(t *testing.T) *fakeTransport {
	t.Helper()

	tr := h.open(t)
	tr.handshake()
	require.True(t, h.ch.IsReady())
	return tr
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("connect did not return")
		return nil
	}
}
