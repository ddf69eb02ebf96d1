// Package player exposes the remote player's playback state to the tracker.
package player

// State is the playback state reported by the player.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Status is one snapshot of the player status.
type Status struct {
	State   State
	Elapsed int // seconds into the current song
}

// Song is the metadata of the current song as reported by the player.
// Any field may be empty; defaults are applied by the history store.
type Song struct {
	ID          string // player-assigned, changes whenever the song changes
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genres      []string
	Track       string // "N" or "N/total"
	Date        string // "YYYY" or "YYYY-MM-DD"
	Duration    int    // seconds
}

// IsEmpty reports whether no song is loaded.
func (s Song) IsEmpty() bool {
	return s.ID == ""
}

// Adapter is a blocking session with the player. Implementations never
// retry; every error is classified with an errmsg.Kind.
type Adapter interface {
	Connect() error
	Authenticate() error
	Status() (Status, error)
	CurrentSong() (Song, error)
	Disconnect() error
}
