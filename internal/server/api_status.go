package server

import (
	"net/http"

	"presencebridge/internal/presence"
)

type gatewayStatus struct {
	State               string `json:"state"`
	SessionID           string `json:"session_id,omitempty"`
	Sequence            *int64 `json:"sequence"`
	HeartbeatIntervalMs int64  `json:"heartbeat_interval_ms"`
}

type statusResponse struct {
	Gateway  *gatewayStatus  `json:"gateway,omitempty"`
	Presence presence.Status `json:"presence"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Presence: s.bridge.Status()}
	if s.gateway != nil {
		gs := &gatewayStatus{
			State:               s.gateway.State().String(),
			SessionID:           s.gateway.SessionID(),
			HeartbeatIntervalMs: s.gateway.HeartbeatInterval().Milliseconds(),
		}
		if seq, ok := s.gateway.Sequence(); ok {
			gs.Sequence = &seq
		}
		resp.Gateway = gs
	}
	writeJSON(w, http.StatusOK, resp)
}
