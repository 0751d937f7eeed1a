// Package presence turns player lifecycle events into presence updates.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"presencebridge/internal/gateway"
	"presencebridge/internal/player"
)

const (
	DefaultLookupAttempts = 5
	DefaultLookupDelay    = 300 * time.Millisecond
	defaultQueueSize      = 16
)

var ErrQueueFull = errors.New("presence: event queue full")

// Gateway is the part of the gateway client the bridge drives.
type Gateway interface {
	UpdatePresence(ctx context.Context, a gateway.Activity) error
	ClearPresence(ctx context.Context) error
}

// Status is the bridge's view of what is currently displayed.
type Status struct {
	Kind       string      `json:"kind"`
	Paused     bool        `json:"paused"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

type Bridge struct {
	gw   Gateway
	meta player.Metadata
	log  *zap.Logger

	attempts       int
	delay          time.Duration
	largeImageKey  string
	largeImageText string

	events chan player.EventKind

	// handleMu serializes callbacks; mu guards the playback context.
	handleMu sync.Mutex
	mu       sync.Mutex
	kind     Kind
	current  Descriptor
	paused   bool
}

type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithLookupRetry sets how many times metadata is queried after a start event
// and the pause between queries.
func WithLookupRetry(attempts int, delay time.Duration) Option {
	return func(b *Bridge) {
		if attempts > 0 {
			b.attempts = attempts
		}
		if delay >= 0 {
			b.delay = delay
		}
	}
}

func WithLargeImage(key, text string) Option {
	return func(b *Bridge) {
		b.largeImageKey = key
		b.largeImageText = text
	}
}

func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.events = make(chan player.EventKind, n)
		}
	}
}

func NewBridge(gw Gateway, meta player.Metadata, opts ...Option) *Bridge {
	b := &Bridge{
		gw:             gw,
		meta:           meta,
		log:            zap.NewNop(),
		attempts:       DefaultLookupAttempts,
		delay:          DefaultLookupDelay,
		largeImageKey:  "kodi",
		largeImageText: "Kodi",
		events:         make(chan player.EventKind, defaultQueueSize),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Submit queues an event for Run without blocking the caller.
func (b *Bridge) Submit(kind player.EventKind) error {
	select {
	case b.events <- kind:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run handles submitted events in arrival order until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-b.events:
			b.Handle(ctx, kind)
		}
	}
}

func (b *Bridge) Handle(ctx context.Context, kind player.EventKind) {
	switch kind {
	case player.EventStarted:
		b.OnPlaybackStarted(ctx)
	case player.EventStopped:
		b.OnPlaybackStopped(ctx)
	case player.EventPaused:
		b.OnPlaybackPaused(ctx)
	case player.EventResumed:
		b.OnPlaybackResumed(ctx)
	default:
		b.log.Warn("unknown playback event", zap.String("event", string(kind)))
	}
}

func (b *Bridge) OnPlaybackStarted(ctx context.Context) {
	b.handleMu.Lock()
	defer b.handleMu.Unlock()

	d, kind, ok := b.lookup(ctx)
	if !ok {
		b.log.Warn("no playback metadata, leaving presence unchanged", zap.Int("attempts", b.attempts))
		return
	}
	d.LargeImageKey = b.largeImageKey
	d.LargeImageText = b.largeImageText

	b.mu.Lock()
	b.kind, b.current, b.paused = kind, d, false
	b.mu.Unlock()

	b.log.Info("playback started",
		zap.Stringer("kind", kind),
		zap.String("details", d.Details),
		zap.String("state", d.State))
	b.publish(ctx, d)
}

func (b *Bridge) OnPlaybackStopped(ctx context.Context) {
	b.handleMu.Lock()
	defer b.handleMu.Unlock()

	b.mu.Lock()
	kind := b.kind
	b.kind, b.current, b.paused = KindNone, Descriptor{}, false
	b.mu.Unlock()

	if kind == KindNone {
		return
	}
	b.log.Info("playback stopped, clearing presence")
	if err := b.gw.ClearPresence(ctx); err != nil {
		b.logSendError("clearing presence", err)
	}
}

func (b *Bridge) OnPlaybackPaused(ctx context.Context) {
	b.handleMu.Lock()
	defer b.handleMu.Unlock()

	b.mu.Lock()
	kind, d := b.kind, b.current
	if kind != KindNone {
		b.paused = true
	}
	b.mu.Unlock()

	if kind == KindNone {
		return
	}
	b.log.Info("playback paused")
	b.publish(ctx, d.Paused())
}

func (b *Bridge) OnPlaybackResumed(ctx context.Context) {
	b.handleMu.Lock()
	defer b.handleMu.Unlock()

	b.mu.Lock()
	kind, d := b.kind, b.current
	b.paused = false
	b.mu.Unlock()

	if kind == KindNone {
		return
	}
	b.log.Info("playback resumed")
	b.publish(ctx, d)
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{Kind: b.kind.String(), Paused: b.paused}
	if b.kind != KindNone {
		d := b.current
		if b.paused {
			d = d.Paused()
		}
		st.Descriptor = &d
	}
	return st
}

func (b *Bridge) lookup(ctx context.Context) (Descriptor, Kind, bool) {
	for i := 0; i < b.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return Descriptor{}, KindNone, false
			case <-time.After(b.delay):
			}
		}
		if d, kind := b.classify(); kind != KindNone {
			return d, kind, true
		}
	}
	return Descriptor{}, KindNone, false
}

func (b *Bridge) classify() (Descriptor, Kind) {
	if b.meta.IsPlayingLiveTV() {
		live := b.meta.LiveInfo()
		program := firstNonEmpty(live.Program, b.meta.InfoLabel(player.LabelTitle))
		channel := firstNonEmpty(live.Channel, b.meta.InfoLabel(player.LabelChannelName))
		if program != "" || channel != "" {
			return liveDescriptor(program, channel), KindLive
		}
	}

	v, ok := b.meta.VideoInfo()
	if !ok {
		return Descriptor{}, KindNone
	}
	switch v.MediaType {
	case player.MediaTypeMovie:
		if v.Title != "" {
			return movieDescriptor(v), KindMovie
		}
	case player.MediaTypeEpisode:
		if v.ShowTitle != "" {
			return episodeDescriptor(v), KindEpisode
		}
	}
	return Descriptor{}, KindNone
}

func (b *Bridge) publish(ctx context.Context, d Descriptor) {
	if err := b.gw.UpdatePresence(ctx, d.Activity()); err != nil {
		b.logSendError("updating presence", err)
	}
}

func (b *Bridge) logSendError(msg string, err error) {
	if errors.Is(err, gateway.ErrNotReady) {
		b.log.Debug(msg+": gateway not ready, dropped", zap.Error(err))
		return
	}
	b.log.Warn(msg, zap.Error(err))
}
