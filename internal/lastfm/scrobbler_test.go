package lastfm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/tracker"
)

type fakeAPI struct {
	nowPlaying []ScrobbleTrack
	scrobbled  []ScrobbleTrack
	err        error
}

func (f *fakeAPI) UpdateNowPlaying(track ScrobbleTrack) error {
	f.nowPlaying = append(f.nowPlaying, track)
	return f.err
}

func (f *fakeAPI) Scrobble(track ScrobbleTrack) error {
	if f.err != nil {
		return f.err
	}
	f.scrobbled = append(f.scrobbled, track)
	return nil
}

var started = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setupScrobbler(t *testing.T) (*Scrobbler, *fakeAPI, *history.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(started)
	store, err := history.Open(filepath.Join(t.TempDir(), "mpsd.db"), history.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := logtest.NewNullLogger()
	api := &fakeAPI{}
	return NewScrobbler(api, store, logger), api, store, clock
}

func listen(duration, seconds int) tracker.Listen {
	return tracker.Listen{
		Timestamp: "2024-05-01 12:00:00",
		StartedAt: started,
		Seconds:   seconds,
		Track: history.Normalize(history.Metadata{
			Title: "Karma Police", Artist: "Radiohead", Album: "OK Computer", Duration: duration,
		}),
	}
}

func TestScrobbleable(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		listened time.Duration
		want     bool
	}{
		{"too short track", 29 * time.Second, 29 * time.Second, false},
		{"half of short track", 60 * time.Second, 30 * time.Second, true},
		{"under half", 60 * time.Second, 29 * time.Second, false},
		{"long track capped at four minutes", 20 * time.Minute, 4 * time.Minute, true},
		{"long track under four minutes", 20 * time.Minute, 3 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrobbleable(tt.duration, tt.listened))
		})
	}
}

func TestTrackFrom_DropsPlaceholders(t *testing.T) {
	info := history.Normalize(history.Metadata{Title: "T", Artist: "A", Duration: 90})

	got := trackFrom(info, started)

	assert.Equal(t, ScrobbleTrack{
		Artist: "A", Track: "T", AlbumArtist: "A", Duration: 90 * time.Second, Timestamp: started,
	}, got)
}

func TestScrobbler_Committed(t *testing.T) {
	s, api, _, _ := setupScrobbler(t)

	require.NoError(t, s.Committed(listen(300, 60)))

	require.Len(t, api.nowPlaying, 1)
	assert.Equal(t, "Karma Police", api.nowPlaying[0].Track)
}

func TestScrobbler_FinalizedScrobblesWithStartTime(t *testing.T) {
	s, api, _, _ := setupScrobbler(t)

	require.NoError(t, s.Finalized(listen(300, 150)))

	require.Len(t, api.scrobbled, 1)
	assert.Equal(t, started, api.scrobbled[0].Timestamp)
	assert.Equal(t, "OK Computer", api.scrobbled[0].Album)
}

func TestScrobbler_FinalizedBelowThreshold(t *testing.T) {
	s, api, _, _ := setupScrobbler(t)

	require.NoError(t, s.Finalized(listen(300, 149)))

	assert.Empty(t, api.scrobbled)
}

func TestScrobbler_UnknownTrackNotSubmitted(t *testing.T) {
	s, api, _, _ := setupScrobbler(t)
	l := listen(300, 300)
	l.Track = history.Normalize(history.Metadata{Duration: 300})

	require.NoError(t, s.Committed(l))
	require.NoError(t, s.Finalized(l))

	assert.Empty(t, api.nowPlaying)
	assert.Empty(t, api.scrobbled)
}

func TestScrobbler_FailureQueued(t *testing.T) {
	s, api, store, _ := setupScrobbler(t)
	api.err = errors.New("service unavailable")

	require.NoError(t, s.Finalized(listen(300, 200)))

	pending, err := store.PendingScrobbles()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Radiohead", pending[0].Artist)
	assert.Equal(t, 300, pending[0].DurationSecs)
	assert.True(t, pending[0].Timestamp.Equal(started))
}

func TestScrobbler_RetryPending(t *testing.T) {
	s, api, store, _ := setupScrobbler(t)
	api.err = errors.New("offline")
	require.NoError(t, s.Finalized(listen(300, 200)))

	res, err := s.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Failed: 1}, res)

	pending, _ := store.PendingScrobbles()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "offline", pending[0].LastError)

	api.err = nil
	res, err = s.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Succeeded: 1}, res)
	require.Len(t, api.scrobbled, 1)

	pending, _ = store.PendingScrobbles()
	assert.Empty(t, pending)
}

func TestScrobbler_RetrySkipsExhausted(t *testing.T) {
	s, api, store, _ := setupScrobbler(t)
	require.NoError(t, store.AddPendingScrobble(history.PendingScrobble{Artist: "A", Track: "T", Timestamp: started}))
	pending, _ := store.PendingScrobbles()
	for range maxAttempts {
		require.NoError(t, store.UpdatePendingScrobbleAttempt(pending[0].ID, "nope"))
	}

	res, err := s.RetryPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, RetryResult{}, res)
	assert.Empty(t, api.scrobbled)
}

func TestScrobbler_RetryDropsOldEntries(t *testing.T) {
	s, api, store, clock := setupScrobbler(t)
	require.NoError(t, store.AddPendingScrobble(history.PendingScrobble{Artist: "A", Track: "T", Timestamp: started}))

	clock.Advance(15 * 24 * time.Hour)
	res, err := s.RetryPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, RetryResult{}, res)
	assert.Empty(t, api.scrobbled)
	pending, _ := store.PendingScrobbles()
	assert.Empty(t, pending)
}

type fakeAuth struct {
	token string
	err   error
}

func (f fakeAuth) GetToken() (string, error) { return f.token, f.err }

func (f fakeAuth) GetAuthURL(token string) string { return "https://example.test/auth?token=" + token }

func (f fakeAuth) GetSession(token string) (string, string, error) {
	return "listener", "key-" + token, nil
}
