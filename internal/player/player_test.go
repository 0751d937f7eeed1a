package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	for _, in := range []string{"started", "STOPPED", " paused ", "Resumed"} {
		_, err := ParseEventKind(in)
		assert.NoError(t, err, in)
	}
	k, err := ParseEventKind("Paused")
	require.NoError(t, err)
	assert.Equal(t, EventPaused, k)

	_, err = ParseEventKind("seeked")
	assert.Error(t, err)
}

func TestSnapshotEmpty(t *testing.T) {
	s := NewSnapshot()
	_, ok := s.VideoInfo()
	assert.False(t, ok)
	assert.False(t, s.IsPlayingLiveTV())
	assert.Equal(t, LiveInfo{}, s.LiveInfo())
	assert.Empty(t, s.InfoLabel(LabelTitle))
}

func TestSnapshotSetAndReset(t *testing.T) {
	s := NewSnapshot()
	genres := []string{"Action"}
	s.Set(State{
		Video:  &VideoInfo{MediaType: MediaTypeMovie, Title: "Heat", Year: 1995, Genres: genres},
		Labels: map[string]string{LabelTitle: "Heat"},
	})
	genres[0] = "Changed"

	v, ok := s.VideoInfo()
	require.True(t, ok)
	assert.Equal(t, "Heat", v.Title)
	assert.Equal(t, []string{"Action"}, v.Genres)
	assert.Equal(t, "Heat", s.InfoLabel(LabelTitle))

	s.Reset()
	_, ok = s.VideoInfo()
	assert.False(t, ok)
}
