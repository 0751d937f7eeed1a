package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"presencebridge/internal/gateway"
	"presencebridge/internal/player"
	"presencebridge/internal/presence"
	"presencebridge/internal/store"
)

type fakeBridge struct {
	mu     sync.Mutex
	events []player.EventKind
	err    error
	status presence.Status
}

func (f *fakeBridge) Submit(kind player.EventKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, kind)
	return nil
}

func (f *fakeBridge) Status() presence.Status {
	return f.status
}

func (f *fakeBridge) submitted() []player.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]player.EventKind(nil), f.events...)
}

type fakeGateway struct {
	state    gateway.State
	session  string
	seq      int64
	hasSeq   bool
	interval time.Duration
}

func (f fakeGateway) State() gateway.State             { return f.state }
func (f fakeGateway) SessionID() string                { return f.session }
func (f fakeGateway) Sequence() (int64, bool)          { return f.seq, f.hasSeq }
func (f fakeGateway) HeartbeatInterval() time.Duration { return f.interval }

type testEnv struct {
	srv    *Server
	store  *store.Store
	bridge *fakeBridge
	snap   *player.Snapshot
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	env := &testEnv{store: s, bridge: &fakeBridge{}, snap: player.NewSnapshot()}
	env.srv = NewServer(s, env.bridge, env.snap, opts...)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

var _ http.Handler = (*Server)(nil)
