// Package player models the media player that reports playback lifecycle
// events and answers metadata queries about the item being played.
package player

import (
	"fmt"
	"strings"
)

type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
)

// VideoInfo mirrors the player's video info tag for the current item.
type VideoInfo struct {
	MediaType MediaType `json:"media_type"`
	Title     string    `json:"title"`
	Year      int       `json:"year,omitempty"`
	ShowTitle string    `json:"show_title,omitempty"`
	Season    int       `json:"season,omitempty"`
	Episode   int       `json:"episode,omitempty"`
	Genres    []string  `json:"genres,omitempty"`
}

// LiveInfo describes a live broadcast as reported by the player's PVR.
type LiveInfo struct {
	Program string `json:"program,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// Info label names used as fallbacks for live broadcasts.
const (
	LabelTitle       = "VideoPlayer.Title"
	LabelChannelName = "VideoPlayer.ChannelName"
)

// Metadata is the query side of the player.
type Metadata interface {
	VideoInfo() (VideoInfo, bool)
	IsPlayingLiveTV() bool
	LiveInfo() LiveInfo
	InfoLabel(name string) string
}

type EventKind string

const (
	EventStarted EventKind = "started"
	EventStopped EventKind = "stopped"
	EventPaused  EventKind = "paused"
	EventResumed EventKind = "resumed"
)

func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EventStarted, EventStopped, EventPaused, EventResumed:
		return k, nil
	}
	return "", fmt.Errorf("unknown playback event %q", s)
}
