package gateway

import (
	"encoding/json"
	"fmt"
)

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opHello          = 10
	opHeartbeatACK   = 11
)

const eventReady = "READY"

// MaxFieldLen is the longest details/state line the presence service accepts.
const MaxFieldLen = 128

const (
	activityTypeWatching = 3
	statusDisplayDetails = 2
	statusOnline         = "online"
)

// inboundFrame is a decoded server message. S is nil when the frame carries
// no sequence number.
type inboundFrame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  string          `json:"t"`
}

// outboundFrame keeps "d" even when nil so heartbeats encode as {"op":1,"d":null}.
type outboundFrame struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type readyData struct {
	SessionID string `json:"session_id"`
}

type identifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Properties identifyProperties `json:"properties"`
	Presence   presenceData       `json:"presence"`
}

type presenceData struct {
	Since      int64          `json:"since"`
	Activities []activityData `json:"activities"`
	Status     string         `json:"status"`
	AFK        bool           `json:"afk"`
}

type activityData struct {
	Name              string      `json:"name"`
	Type              int         `json:"type"`
	StatusDisplayType int         `json:"status_display_type"`
	ApplicationID     string      `json:"application_id"`
	Details           string      `json:"details"`
	State             string      `json:"state"`
	Assets            *assetsData `json:"assets,omitempty"`
}

type assetsData struct {
	LargeImage string `json:"large_image"`
	LargeText  string `json:"large_text,omitempty"`
}

// Activity is the two-line presence shown by the remote service.
type Activity struct {
	Details        string
	State          string
	LargeImageKey  string
	LargeImageText string
}

func decodeFrame(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return inboundFrame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

// truncate cuts s to at most n characters, counting runes rather than bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func emptyPresence(since int64) presenceData {
	return presenceData{
		Since:      since,
		Activities: []activityData{},
		Status:     statusOnline,
	}
}
