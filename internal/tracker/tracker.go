// Package tracker turns successive player snapshots into listens.
//
// A song becomes a listen once it has been playing for a configurable
// fraction of its duration. The listen is written when that threshold is
// crossed and its final duration is written when the song changes or
// playback stops.
package tracker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/player"
)

// Phase is the position of the tracker in a listen's life.
type Phase int

const (
	Idle      Phase = iota // nothing playing
	Timing                 // accumulating time toward the threshold
	Committed              // listen recorded, duration still open
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Timing:
		return "timing"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// State is everything the tracker carries from one poll to the next.
type State struct {
	Phase        Phase
	TrackID      string // player song id being timed or committed
	Total        int    // accumulated seconds
	OpenListen   string // timestamp of the open listen, "" when none
	OpenTrack    int64  // history id of the open listen's track
	CommitFailed bool   // no further commit for TrackID
}

// Recorder is the subset of the history store the tracker writes to.
type Recorder interface {
	ResolveTrack(info history.TrackInfo) (history.TrackIDs, error)
	RecordListenStart(trackID int64) (string, error)
	RecordListenDuration(trackID int64, timestamp string, total int) error
}

// Listen describes a committed or finalized listen to hooks.
type Listen struct {
	Timestamp string    // key of the listen row, written at commit
	StartedAt time.Time // when playback of the song began
	Track     history.TrackInfo
	Seconds   int
}

// Hook observes listens. Errors are logged and otherwise ignored.
type Hook interface {
	Committed(l Listen) error
	Finalized(l Listen) error
}

// Tracker applies polls to its State.
type Tracker struct {
	rec       Recorder
	interval  int
	threshold float64
	log       logrus.FieldLogger
	hooks     []Hook

	state State
	open  Listen
}

// New returns an idle tracker. interval is the poll period in seconds and
// threshold the fraction of a song's duration after which it is recorded.
func New(rec Recorder, interval int, threshold float64, log logrus.FieldLogger, hooks ...Hook) *Tracker {
	return &Tracker{
		rec:       rec,
		interval:  interval,
		threshold: threshold,
		log:       log,
		hooks:     hooks,
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	return t.state
}

// Poll advances the tracker with one player snapshot. song is only read
// when status reports playback. Persistence failures are logged; any other
// error is returned and should stop the caller.
func (t *Tracker) Poll(status player.Status, song player.Song) error {
	switch status.State {
	case player.Playing:
		return t.playing(status, song)
	case player.Stopped:
		err := t.finalize()
		t.state = State{}
		return err
	default:
		return nil
	}
}

// Flush finalizes the open listen, if any, and returns to Idle.
func (t *Tracker) Flush() error {
	err := t.finalize()
	t.state = State{}
	return err
}

func (t *Tracker) playing(status player.Status, song player.Song) error {
	if song.IsEmpty() {
		return nil
	}

	t.state.Total += t.interval

	if song.ID != t.state.TrackID {
		switch t.state.Phase {
		case Committed:
			if err := t.finalize(); err != nil {
				return err
			}
			t.state.Total = status.Elapsed
		case Timing:
			t.state.Total = status.Elapsed
		}
		t.state.TrackID = song.ID
		t.state.Phase = Timing
		t.state.CommitFailed = false
		t.log.WithFields(logrus.Fields{
			"id":     song.ID,
			"artist": song.Artist,
			"title":  song.Title,
		}).Debug("now playing")
	}

	if t.state.Phase != Timing || t.state.CommitFailed {
		return nil
	}
	if float64(t.state.Total) < t.threshold*float64(song.Duration) {
		return nil
	}
	return t.commit(song)
}

func (t *Tracker) commit(song player.Song) error {
	info := history.Normalize(history.Metadata{
		Title:       song.Title,
		Artist:      song.Artist,
		Album:       song.Album,
		AlbumArtist: song.AlbumArtist,
		Genres:      song.Genres,
		Track:       song.Track,
		Date:        song.Date,
		Duration:    song.Duration,
	})
	log := t.log.WithFields(logrus.Fields{
		"artist": info.Artist,
		"album":  info.Album,
		"title":  info.Title,
	})

	ids, err := t.rec.ResolveTrack(info)
	if err == nil {
		var ts string
		ts, err = t.rec.RecordListenStart(ids.Track)
		if err == nil {
			t.state.Phase = Committed
			t.state.OpenListen = ts
			t.state.OpenTrack = ids.Track
			t.open = Listen{
				Timestamp: ts,
				StartedAt: startedAt(ts, t.state.Total),
				Track:     info,
				Seconds:   t.state.Total,
			}
			log.WithField("track_id", ids.Track).Info("listen recorded")
			t.notify(Hook.Committed, t.open)
			return nil
		}
	}

	if errmsg.KindOf(err) != errmsg.KindPersistence {
		return err
	}
	t.state.CommitFailed = true
	log.WithError(err).Error("could not record listen")
	return nil
}

// finalize writes the duration of the open listen. It leaves the phase
// alone; callers move to the next state.
func (t *Tracker) finalize() error {
	if t.state.Phase != Committed {
		return nil
	}
	ts, trackID, total := t.state.OpenListen, t.state.OpenTrack, t.state.Total
	t.state.OpenListen, t.state.OpenTrack = "", 0
	l := t.open
	l.Seconds = total
	t.open = Listen{}

	log := t.log.WithFields(logrus.Fields{
		"listen": ts,
		"artist": l.Track.Artist,
		"title":  l.Track.Title,
		"total":  total,
	})
	if err := t.rec.RecordListenDuration(trackID, ts, total); err != nil {
		if errmsg.KindOf(err) != errmsg.KindPersistence {
			return err
		}
		log.WithError(err).Error("could not record listen duration")
		return nil
	}
	log.Debug("listen finalized")
	t.notify(Hook.Finalized, l)
	return nil
}

func (t *Tracker) notify(fn func(Hook, Listen) error, l Listen) {
	for _, h := range t.hooks {
		if err := fn(h, l); err != nil {
			t.log.WithError(err).Warn("listen hook failed")
		}
	}
}

// startedAt is when playback of the listen began: the commit timestamp
// less the seconds already played.
func startedAt(ts string, played int) time.Time {
	at, err := time.ParseInLocation(history.TimeLayout, ts, time.Local)
	if err != nil {
		return time.Time{}
	}
	return at.Add(-time.Duration(played) * time.Second)
}
