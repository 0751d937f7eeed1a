package presence

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"presencebridge/internal/gateway"
	"presencebridge/internal/player"
)

// Kind is the classification of the item being played.
type Kind int

const (
	KindNone Kind = iota
	KindMovie
	KindEpisode
	KindLive
)

func (k Kind) String() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindEpisode:
		return "episode"
	case KindLive:
		return "live"
	}
	return "none"
}

const (
	MovieMarker  = "Movie"
	LiveFallback = "Live TV"
	PausedMarker = "(Paused)"
)

// Descriptor is the two-line presence derived from one playback item.
type Descriptor struct {
	Details        string `json:"details"`
	State          string `json:"state"`
	LargeImageKey  string `json:"large_image_key,omitempty"`
	LargeImageText string `json:"large_image_text,omitempty"`
}

func (d Descriptor) Activity() gateway.Activity {
	return gateway.Activity{
		Details:        d.Details,
		State:          d.State,
		LargeImageKey:  d.LargeImageKey,
		LargeImageText: d.LargeImageText,
	}
}

// Paused returns d with the paused marker appended to the state line. The
// state is shortened first so the marker survives the gateway's field limit.
func (d Descriptor) Paused() Descriptor {
	room := gateway.MaxFieldLen - utf8.RuneCountInString(" "+PausedMarker)
	if r := []rune(d.State); len(r) > room {
		d.State = string(r[:room])
	}
	d.State = strings.TrimSpace(d.State + " " + PausedMarker)
	return d
}

func movieDescriptor(v player.VideoInfo) Descriptor {
	state := MovieMarker
	for _, g := range v.Genres {
		if g = strings.TrimSpace(g); g != "" {
			state = g
			break
		}
	}
	return Descriptor{Details: withYear(v.Title, v.Year), State: state}
}

func episodeDescriptor(v player.VideoInfo) Descriptor {
	state := fmt.Sprintf("S%02dE%02d", v.Season, v.Episode)
	if v.Title != "" {
		state += " | " + v.Title
	}
	return Descriptor{Details: withYear(v.ShowTitle, v.Year), State: state}
}

func liveDescriptor(program, channel string) Descriptor {
	return Descriptor{
		Details: firstNonEmpty(program, LiveFallback),
		State:   firstNonEmpty(channel, LiveFallback),
	}
}

func withYear(title string, year int) string {
	if year <= 0 {
		return title
	}
	return fmt.Sprintf("%s (%d)", title, year)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
