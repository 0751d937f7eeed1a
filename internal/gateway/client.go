package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultURL is the presence gateway, protocol v9 with JSON encoding.
const DefaultURL = "wss://gateway.discord.gg/?v=9&encoding=json"

const defaultWriteTimeout = 10 * time.Second

var (
	ErrNotConnected = errors.New("gateway: not connected")
	ErrNotReady     = errors.New("gateway: session not ready")
)

// State is the handshake position of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateAwaitingHello
	StateIdentifying
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Config struct {
	URL           string
	Token         string
	ApplicationID string
	// ActivityName is the host application shown as the activity name.
	ActivityName string
	ClientName   string
	Device       string
}

type Client struct {
	cfg          Config
	log          *zap.Logger
	dialer       *websocket.Dialer
	limiter      *rate.Limiter
	now          func() time.Time
	writeTimeout time.Duration

	state       atomic.Int32
	seq         atomic.Int64 // -1 until a frame carries one
	heartbeatMs atomic.Int64
	sessionID   atomic.Pointer[string]

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	// gorilla allows a single concurrent writer
	writeMu sync.Mutex
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRateLimiter replaces the presence update budget. Pass
// rate.NewLimiter(rate.Inf, 0) to disable it.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ActivityName == "" {
		cfg.ActivityName = "Kodi"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "presencebridge"
	}
	if cfg.Device == "" {
		cfg.Device = "kodi"
	}
	done := make(chan struct{})
	close(done)
	c := &Client{
		cfg:          cfg,
		log:          zap.NewNop(),
		dialer:       websocket.DefaultDialer,
		limiter:      rate.NewLimiter(rate.Every(4*time.Second), 5),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		done:         done,
	}
	c.seq.Store(-1)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect opens the transport and starts the receive loop. It must not be
// called while a previous connection is still open.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.seq.Store(-1)
	c.heartbeatMs.Store(0)
	c.sessionID.Store(nil)
	c.setState(StateAwaitingHello)

	go c.readLoop(connCtx, cancel, conn, done)
	return nil
}

// Disconnect stops the heartbeat and closes the transport. Safe to call when
// never connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// UpdatePresence publishes a watching activity. Details and state are cut to
// MaxFieldLen characters.
func (c *Client) UpdatePresence(ctx context.Context, a Activity) error {
	if c.State() != StateReady {
		return ErrNotReady
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("presence rate limit: %w", err)
	}
	p := emptyPresence(c.now().UnixMilli())
	p.Activities = append(p.Activities, c.activity(a))
	return c.send(opPresenceUpdate, p)
}

// ClearPresence publishes an empty activity list.
func (c *Client) ClearPresence(ctx context.Context) error {
	if c.State() != StateReady {
		return ErrNotReady
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("presence rate limit: %w", err)
	}
	return c.send(opPresenceUpdate, emptyPresence(0))
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) SessionID() string {
	if id := c.sessionID.Load(); id != nil {
		return *id
	}
	return ""
}

// Sequence returns the last sequence number seen; ok is false until one arrives.
func (c *Client) Sequence() (seq int64, ok bool) {
	v := c.seq.Load()
	return v, v >= 0
}

func (c *Client) HeartbeatInterval() time.Duration {
	return time.Duration(c.heartbeatMs.Load()) * time.Millisecond
}

// Done is closed once the current transport has shut down.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug("gateway state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (c *Client) transition(from, to State) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.log.Debug("gateway state", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

func (c *Client) activity(a Activity) activityData {
	act := activityData{
		Name:              c.cfg.ActivityName,
		Type:              activityTypeWatching,
		StatusDisplayType: statusDisplayDetails,
		ApplicationID:     c.cfg.ApplicationID,
		Details:           truncate(a.Details, MaxFieldLen),
		State:             truncate(a.State, MaxFieldLen),
	}
	if a.LargeImageKey != "" {
		act.Assets = &assetsData{LargeImage: a.LargeImageKey, LargeText: a.LargeImageText}
	}
	return act
}

func (c *Client) identify() error {
	return c.send(opIdentify, identifyData{
		Token: c.cfg.Token,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: c.cfg.ClientName,
			Device:  c.cfg.Device,
		},
		Presence: emptyPresence(0),
	})
}

func (c *Client) send(op int, d any) error {
	data, err := json.Marshal(outboundFrame{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("encoding op %d: %w", op, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing op %d: %w", op, err)
	}
	return nil
}
