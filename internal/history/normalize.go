package history

import (
	"strconv"
	"strings"
)

// Placeholders stored when the player reports no value.
const (
	UnknownArtist = "Unknown Artist"
	UnknownTrack  = "Unknown Track"
	UnknownAlbum  = "Unknown Album"
	UnknownGenre  = "Unknown"
)

// Metadata is track metadata as the player reported it. Empty means absent.
type Metadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genres      []string
	Track       string // "N" or "N/total"
	Date        string // "YYYY..." possibly followed by "-MM-DD"
	Duration    int
}

// TrackInfo is Metadata with every default applied, ready for ResolveTrack.
type TrackInfo struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Genre       string
	Number      int
	Year        int
	Duration    int
}

// Normalize applies the storage defaults to m.
func Normalize(m Metadata) TrackInfo {
	info := TrackInfo{
		Title:       orDefault(m.Title, UnknownTrack),
		Album:       orDefault(m.Album, UnknownAlbum),
		Artist:      m.Artist,
		AlbumArtist: m.AlbumArtist,
		Genre:       UnknownGenre,
		Number:      leadingInt(m.Track, "/"),
		Year:        leadingInt(m.Date, "-"),
		Duration:    max(m.Duration, 0),
	}

	switch {
	case info.Artist == "" && info.AlbumArtist == "":
		info.Artist = UnknownArtist
		info.AlbumArtist = UnknownArtist
	case info.AlbumArtist == "":
		info.AlbumArtist = info.Artist
	case info.Artist == "":
		info.Artist = info.AlbumArtist
	}

	// Only the first of several genres is kept.
	if len(m.Genres) > 0 && m.Genres[0] != "" {
		info.Genre = m.Genres[0]
	}

	return info
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// leadingInt parses the part of s before sep, or 0 when it is not a number.
func leadingInt(s, sep string) int {
	head, _, _ := strings.Cut(s, sep)
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}
