package player

import (
	"maps"
	"slices"
	"sync"
)

// State is the metadata a player pushes alongside (or after) an event.
type State struct {
	Video  *VideoInfo        `json:"video,omitempty"`
	LiveTV bool              `json:"live_tv,omitempty"`
	Live   LiveInfo          `json:"live"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Snapshot holds the most recent State reported by the player and serves it
// through the Metadata interface.
type Snapshot struct {
	mu    sync.RWMutex
	state State
}

var _ Metadata = (*Snapshot)(nil)

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

func (s *Snapshot) Set(st State) {
	if st.Video != nil {
		v := *st.Video
		v.Genres = slices.Clone(v.Genres)
		st.Video = &v
	}
	st.Labels = maps.Clone(st.Labels)

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Snapshot) Reset() {
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()
}

func (s *Snapshot) VideoInfo() (VideoInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Video == nil {
		return VideoInfo{}, false
	}
	return *s.state.Video, true
}

func (s *Snapshot) IsPlayingLiveTV() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LiveTV
}

func (s *Snapshot) LiveInfo() LiveInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Live
}

func (s *Snapshot) InfoLabel(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Labels[name]
}
