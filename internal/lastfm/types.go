package lastfm

import (
	"time"

	"github.com/llehouerou/mpsd/internal/history"
)

// ScrobbleTrack contains track metadata for scrobbling.
type ScrobbleTrack struct {
	Artist      string
	Track       string
	Album       string
	AlbumArtist string
	Duration    time.Duration
	Timestamp   time.Time // When playback started
}

// trackFrom builds the scrobble payload for a recorded track. Placeholder
// names are sent as empty so Last.fm does not learn "Unknown Album".
func trackFrom(info history.TrackInfo, startedAt time.Time) ScrobbleTrack {
	t := ScrobbleTrack{
		Artist:      info.Artist,
		Track:       info.Title,
		Album:       info.Album,
		AlbumArtist: info.AlbumArtist,
		Duration:    time.Duration(info.Duration) * time.Second,
		Timestamp:   startedAt,
	}
	if t.Album == history.UnknownAlbum {
		t.Album = ""
	}
	if t.AlbumArtist == history.UnknownArtist {
		t.AlbumArtist = ""
	}
	return t
}

// scrobbleable reports whether a track of the given duration played for
// listened qualifies: at least 30 seconds long and played for half its
// length or four minutes, whichever is less.
func scrobbleable(duration, listened time.Duration) bool {
	if duration < 30*time.Second {
		return false
	}
	threshold := min(duration/2, 4*time.Minute)
	return listened >= threshold
}
