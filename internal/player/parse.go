package player

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"
)

func parseStatus(attrs mpd.Attrs) (Status, error) {
	var s Status
	switch attrs["state"] {
	case "play":
		s.State = Playing
	case "pause":
		s.State = Paused
	case "stop":
		s.State = Stopped
	default:
		return Status{}, fmt.Errorf("unknown playback state %q", attrs["state"])
	}
	s.Elapsed = parseElapsed(attrs)
	return s, nil
}

// parseElapsed reads the "elapsed:total" time field, falling back to the
// fractional elapsed field newer servers send.
func parseElapsed(attrs mpd.Attrs) int {
	if t := attrs["time"]; t != "" {
		head, _, _ := strings.Cut(t, ":")
		if n, err := strconv.Atoi(head); err == nil {
			return n
		}
	}
	return floatSeconds(attrs["elapsed"])
}

func parseSong(attrs mpd.Attrs, genres []string) Song {
	if len(attrs) == 0 {
		return Song{}
	}
	if len(genres) == 0 && attrs["Genre"] != "" {
		genres = []string{attrs["Genre"]}
	}

	duration := floatSeconds(attrs["duration"])
	if duration == 0 {
		duration, _ = strconv.Atoi(attrs["Time"])
	}

	return Song{
		ID:          attrs["Id"],
		Title:       attrs["Title"],
		Artist:      attrs["Artist"],
		Album:       attrs["Album"],
		AlbumArtist: attrs["AlbumArtist"],
		Genres:      genres,
		Track:       attrs["Track"],
		Date:        attrs["Date"],
		Duration:    duration,
	}
}

func floatSeconds(s string) int {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}
