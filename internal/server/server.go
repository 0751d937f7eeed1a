// Package server exposes the HTTP surface the media player pushes lifecycle
// events to, plus status and health endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"presencebridge/internal/gateway"
	"presencebridge/internal/player"
	"presencebridge/internal/presence"
)

// Bridge accepts playback events for asynchronous handling.
type Bridge interface {
	Submit(kind player.EventKind) error
	Status() presence.Status
}

// Snapshot is the metadata store the bridge reads from.
type Snapshot interface {
	Set(st player.State)
	Reset()
}

// GatewayStatus reports the live gateway session.
type GatewayStatus interface {
	State() gateway.State
	SessionID() string
	Sequence() (int64, bool)
	HeartbeatInterval() time.Duration
}

type Pinger interface {
	Ping() error
}

type Server struct {
	router      chi.Router
	store       Pinger
	bridge      Bridge
	snapshot    Snapshot
	gateway     GatewayStatus
	log         *zap.Logger
	eventsToken string
	corsOrigin  string
	limiter     *rateLimiter
}

func NewServer(store Pinger, bridge Bridge, snapshot Snapshot, opts ...Option) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		store:    store,
		bridge:   bridge,
		snapshot: snapshot,
		log:      zap.NewNop(),
		limiter:  newRateLimiter(defaultEventLimit, time.Minute),
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

type Option func(*Server)

func WithGateway(g GatewayStatus) Option {
	return func(s *Server) { s.gateway = g }
}

// WithEventsToken requires player requests to carry the bearer token.
func WithEventsToken(token string) Option {
	return func(s *Server) { s.eventsToken = token }
}

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEventLimit caps player requests per remote address per minute.
func WithEventLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.limiter.stop()
			s.limiter = newRateLimiter(perMinute, time.Minute)
		}
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.limiter.stop()
}
