package lastfm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/tracker"
)

const (
	// RetryInterval is how often pending scrobbles are resubmitted.
	RetryInterval = 5 * time.Minute

	maxAttempts   = 10
	maxPendingAge = 14 * 24 * time.Hour
)

// API is the part of Client the scrobbler calls.
type API interface {
	UpdateNowPlaying(track ScrobbleTrack) error
	Scrobble(track ScrobbleTrack) error
}

// Queue persists scrobbles that could not be submitted.
type Queue interface {
	AddPendingScrobble(p history.PendingScrobble) error
	PendingScrobbles() ([]history.PendingScrobble, error)
	DeletePendingScrobble(id int64) error
	UpdatePendingScrobbleAttempt(id int64, errMsg string) error
	DeleteOldPendingScrobbles(maxAge time.Duration) error
}

// Scrobbler is a tracker hook sending listens to Last.fm.
type Scrobbler struct {
	api   API
	queue Queue
	log   logrus.FieldLogger
}

var _ tracker.Hook = (*Scrobbler)(nil)

// NewScrobbler returns a hook submitting through api and queueing failures
// in queue.
func NewScrobbler(api API, queue Queue, log logrus.FieldLogger) *Scrobbler {
	return &Scrobbler{api: api, queue: queue, log: log}
}

// Committed announces the listen as now playing. Failures are not retried.
func (s *Scrobbler) Committed(l tracker.Listen) error {
	if !submittable(l.Track) {
		return nil
	}
	return s.api.UpdateNowPlaying(trackFrom(l.Track, l.StartedAt))
}

// Finalized scrobbles the listen when it was played long enough. A failed
// submission is queued for RetryPending.
func (s *Scrobbler) Finalized(l tracker.Listen) error {
	if !submittable(l.Track) {
		return nil
	}
	track := trackFrom(l.Track, l.StartedAt)
	if !scrobbleable(track.Duration, time.Duration(l.Seconds)*time.Second) {
		return nil
	}

	err := s.api.Scrobble(track)
	if err == nil {
		s.log.WithFields(logrus.Fields{"artist": track.Artist, "title": track.Track}).Debug("scrobbled")
		return nil
	}

	s.log.WithError(err).WithField("title", track.Track).Info("scrobble failed, queued for retry")
	if qerr := s.queue.AddPendingScrobble(history.PendingScrobble{
		Artist:       track.Artist,
		Track:        track.Track,
		Album:        track.Album,
		AlbumArtist:  track.AlbumArtist,
		DurationSecs: int(track.Duration.Seconds()),
		Timestamp:    track.Timestamp,
	}); qerr != nil {
		return errors.Join(err, qerr)
	}
	return nil
}

// RetryResult counts the outcome of one RetryPending pass.
type RetryResult struct {
	Succeeded int
	Failed    int
}

// RetryPending resubmits queued scrobbles. Entries older than two weeks
// are dropped and entries that failed too often are left alone.
func (s *Scrobbler) RetryPending(ctx context.Context) (RetryResult, error) {
	var res RetryResult

	if err := s.queue.DeleteOldPendingScrobbles(maxPendingAge); err != nil {
		return res, err
	}
	pending, err := s.queue.PendingScrobbles()
	if err != nil {
		return res, err
	}

	for i := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		p := &pending[i]
		if p.Attempts >= maxAttempts {
			continue
		}

		err := s.api.Scrobble(ScrobbleTrack{
			Artist:      p.Artist,
			Track:       p.Track,
			Album:       p.Album,
			AlbumArtist: p.AlbumArtist,
			Duration:    time.Duration(p.DurationSecs) * time.Second,
			Timestamp:   p.Timestamp,
		})
		if err != nil {
			res.Failed++
			if uerr := s.queue.UpdatePendingScrobbleAttempt(p.ID, err.Error()); uerr != nil {
				return res, uerr
			}
			continue
		}
		res.Succeeded++
		if err := s.queue.DeletePendingScrobble(p.ID); err != nil {
			return res, fmt.Errorf("scrobbled %d: %w", p.ID, err)
		}
	}
	return res, nil
}

// Retry is RetryPending shaped for a periodic task: the outcome is logged.
func (s *Scrobbler) Retry(ctx context.Context) {
	res, err := s.RetryPending(ctx)
	if err != nil {
		s.log.WithError(err).Warn("retrying pending scrobbles")
		return
	}
	if res.Succeeded+res.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
		}).Info("retried pending scrobbles")
	}
}

func submittable(info history.TrackInfo) bool {
	return info.Artist != history.UnknownArtist && info.Title != history.UnknownTrack
}
