package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"presencebridge/internal/config"
	"presencebridge/internal/notifier"
)

type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// fakeGateway completes the handshake and forwards every client frame.
func fakeGateway(t *testing.T) (url string, frames <-chan frame, dials *atomic.Int32) {
	t.Helper()
	ch := make(chan frame, 32)
	var n atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 60000}})
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				close(ch)
				return
			}
			if f.Op == 2 {
				conn.WriteJSON(map[string]any{"op": 0, "s": 1, "t": "READY", "d": map[string]any{"session_id": "sess-1"}})
			}
			ch <- f
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), ch, &n
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func testConfig(t *testing.T, gatewayURL string) config.Config {
	t.Helper()
	return config.Config{
		Gateway: config.GatewayConfig{
			URL:              gatewayURL,
			ApplicationID:    "1234",
			Token:            "tok",
			ActivityName:     "Kodi",
			ClientName:       "presencebridge",
			Device:           "kodi",
			UpdatesPerMinute: 600,
			UpdateBurst:      5,
		},
		Presence: config.PresenceConfig{
			LargeImageKey:  "kodi",
			LargeImageText: "Kodi",
			LookupAttempts: 2,
			LookupDelay:    10 * time.Millisecond,
		},
		HTTP:    config.HTTPConfig{Addr: freeAddr(t), EventsPerMinute: 120},
		Store:   config.StoreConfig{Path: ":memory:"},
		Logging: config.LoggingConfig{Level: "debug", Format: "json"},
	}
}

func nextOp(t *testing.T, frames <-chan frame, op int) frame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			require.True(t, ok, "gateway connection closed before op %d", op)
			if f.Op == op {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for op %d", op)
		}
	}
}

func TestRunMissingCredentialsNotifiesOnce(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer hook.Close()
	gwURL, _, dials := fakeGateway(t)

	cfg := testConfig(t, gwURL)
	cfg.Gateway.ApplicationID = ""
	cfg.Gateway.Token = ""
	cfg.Notifier.Channels = []notifier.Channel{{Name: "hook", Type: notifier.ChannelWebhook, URL: hook.URL}}

	core, logs := observer.New(zap.ErrorLevel)
	err := run(context.Background(), cfg, zap.New(core))

	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(0), dials.Load(), "gateway must not be dialed without credentials")
	assert.Equal(t, 1, logs.FilterMessage("gateway credentials missing, presence disabled").Len())
}

func TestRunMissingCredentialsWithoutChannelsLogsNotification(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/")
	cfg.Gateway.Token = ""

	core, logs := observer.New(zap.WarnLevel)
	require.NoError(t, run(context.Background(), cfg, zap.New(core)))

	entries := logs.FilterMessage(missingCredentials.Title).All()
	require.Len(t, entries, 1)
	assert.Equal(t, missingCredentials.Message, entries[0].ContextMap()["message"])
}

func TestRunMirrorsPlaybackAndClearsOnShutdown(t *testing.T) {
	gwURL, frames, _ := fakeGateway(t)
	cfg := testConfig(t, gwURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, zap.NewNop()) }()

	identify := nextOp(t, frames, 2)
	assert.Contains(t, string(identify.D), `"token":"tok"`)

	base := "http://" + cfg.HTTP.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st struct {
			Gateway struct {
				State string `json:"state"`
			} `json:"gateway"`
		}
		json.NewDecoder(resp.Body).Decode(&st)
		return st.Gateway.State == "ready"
	}, 3*time.Second, 20*time.Millisecond)

	body := `{"event":"started","metadata":{"video":{"media_type":"episode","show_title":"Show","year":2020,"season":1,"episode":3,"title":"Pilot"}}}`
	resp, err := http.Post(base+"/api/player/events", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	update := nextOp(t, frames, 3)
	assert.Contains(t, string(update.D), `"details":"Show (2020)"`)
	assert.Contains(t, string(update.D), `"state":"S01E03 | Pilot"`)

	cancel()
	cleared := nextOp(t, frames, 3)
	assert.Contains(t, string(cleared.D), `"activities":[]`)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunGatewayUnreachableStillServes(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.HTTP.Addr + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunServesConfiguredCORSOrigin(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/")
	cfg.HTTP.CORSOrigin = "http://kodi.local:8080"

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, zap.NewNop()) }()

	var origin string
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodOptions, "http://"+cfg.HTTP.Addr+"/api/player/events", nil)
		req.Header.Set("Origin", "http://kodi.local:8080")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		origin = resp.Header.Get("Access-Control-Allow-Origin")
		return resp.StatusCode == http.StatusNoContent
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "http://kodi.local:8080", origin)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunAppliesConfiguredEventLimit(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/")
	cfg.HTTP.EventsPerMinute = 1

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, cfg, zap.NewNop()) }()

	url := "http://" + cfg.HTTP.Addr + "/api/player/events"
	require.Eventually(t, func() bool {
		resp, err := http.Post(url, "application/json", bytes.NewBufferString(`{"event":"paused"}`))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusAccepted
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Post(url, "application/json", bytes.NewBufferString(`{"event":"paused"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
