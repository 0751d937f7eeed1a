package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"presencebridge/internal/player"
	"presencebridge/internal/presence"
)

var errTrailingData = errors.New("unexpected data after JSON body")

type playerEventRequest struct {
	Event    string        `json:"event"`
	Metadata *player.State `json:"metadata,omitempty"`
}

func (s *Server) handlePlayerEvent(w http.ResponseWriter, r *http.Request) {
	var req playerEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind, err := player.ParseEventKind(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A start replaces whatever the previous item left behind, so a start
	// without metadata waits for a later metadata push.
	switch {
	case req.Metadata != nil:
		s.snapshot.Set(*req.Metadata)
	case kind == player.EventStarted:
		s.snapshot.Reset()
	}

	if err := s.bridge.Submit(kind); err != nil {
		if errors.Is(err, presence.ErrQueueFull) {
			s.log.Warn("dropping player event", zap.String("event", string(kind)), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "event queue full")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event": string(kind)})
}

func (s *Server) handlePlayerMetadata(w http.ResponseWriter, r *http.Request) {
	var st player.State
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.snapshot.Set(st)
	w.WriteHeader(http.StatusNoContent)
}
