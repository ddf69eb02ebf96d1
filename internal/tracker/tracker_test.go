package tracker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/history"
	"github.com/llehouerou/mpsd/internal/player"
)

type startCall struct {
	trackID int64
	ts      string
}

type durationCall struct {
	trackID int64
	ts      string
	total   int
}

// fakeRecorder records every call and hands out sequential ids and
// timestamps.
type fakeRecorder struct {
	resolved  []history.TrackInfo
	starts    []startCall
	durations []durationCall

	resolveErr  error
	startErr    error
	durationErr error

	ids map[string]int64
}

func (f *fakeRecorder) ResolveTrack(info history.TrackInfo) (history.TrackIDs, error) {
	f.resolved = append(f.resolved, info)
	if f.resolveErr != nil {
		return history.TrackIDs{}, f.resolveErr
	}
	if f.ids == nil {
		f.ids = make(map[string]int64)
	}
	key := info.Title + "\x00" + info.Album
	id, ok := f.ids[key]
	if !ok {
		id = int64(len(f.ids) + 1)
		f.ids[key] = id
	}
	return history.TrackIDs{Track: id}, nil
}

func (f *fakeRecorder) RecordListenStart(trackID int64) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	ts := fmt.Sprintf("2024-01-01 12:00:%02d", len(f.starts))
	f.starts = append(f.starts, startCall{trackID: trackID, ts: ts})
	return ts, nil
}

func (f *fakeRecorder) RecordListenDuration(trackID int64, ts string, total int) error {
	f.durations = append(f.durations, durationCall{trackID: trackID, ts: ts, total: total})
	return f.durationErr
}

type recordingHook struct {
	committed []Listen
	finalized []Listen
	err       error
}

func (h *recordingHook) Committed(l Listen) error {
	h.committed = append(h.committed, l)
	return h.err
}

func (h *recordingHook) Finalized(l Listen) error {
	h.finalized = append(h.finalized, l)
	return h.err
}

func song(id string, duration int) player.Song {
	return player.Song{ID: id, Title: "Title " + id, Artist: "Artist", Album: "Album", Duration: duration}
}

func playing(elapsed int) player.Status {
	return player.Status{State: player.Playing, Elapsed: elapsed}
}

var (
	stopped = player.Status{State: player.Stopped}
	paused  = player.Status{State: player.Paused}
)

func newTestTracker(threshold float64, hooks ...Hook) (*Tracker, *fakeRecorder, *logtest.Hook) {
	logger, logs := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := &fakeRecorder{}
	return New(rec, 1, threshold, logger, hooks...), rec, logs
}

// pollN polls n times with the same song, elapsed counting up from 1.
func pollN(t *testing.T, tr *Tracker, s player.Song, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, tr.Poll(playing(i), s))
	}
}

func TestPoll_CommitAndFinalizeScenario(t *testing.T) {
	tr, rec, _ := newTestTracker(0.2)
	a := song("1", 200)

	pollN(t, tr, a, 39)
	assert.Empty(t, rec.starts, "no commit before 20% of 200s")
	assert.Equal(t, Timing, tr.State().Phase)

	require.NoError(t, tr.Poll(playing(40), a))
	require.Len(t, rec.starts, 1, "commit on poll 40")
	assert.Equal(t, Committed, tr.State().Phase)
	assert.Equal(t, 40, tr.State().Total)

	for i := 41; i <= 119; i++ {
		require.NoError(t, tr.Poll(playing(i), a))
	}
	assert.Len(t, rec.starts, 1)

	require.NoError(t, tr.Poll(playing(0), song("2", 200)))
	require.Len(t, rec.durations, 1)
	assert.Equal(t, durationCall{trackID: rec.starts[0].trackID, ts: rec.starts[0].ts, total: 120}, rec.durations[0])

	st := tr.State()
	assert.Equal(t, Timing, st.Phase)
	assert.Equal(t, "2", st.TrackID)
	assert.Equal(t, 0, st.Total)
	assert.Empty(t, st.OpenListen)
	assert.Zero(t, st.OpenTrack)
}

func TestPoll_ThresholdMonotonic(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		duration  int
		commitAt  int
	}{
		{"zero threshold commits immediately", 0, 300, 1},
		{"half of 10s", 0.5, 10, 5},
		{"full duration", 1, 30, 30},
		{"unknown duration", 0.2, 0, 1},
		{"rounds up fractional seconds", 0.25, 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, rec, _ := newTestTracker(tt.threshold)
			s := song("7", tt.duration)

			for i := 1; i < tt.commitAt; i++ {
				require.NoError(t, tr.Poll(playing(i), s))
				require.Empty(t, rec.starts, "poll %d", i)
			}
			require.NoError(t, tr.Poll(playing(tt.commitAt), s))
			assert.Len(t, rec.starts, 1)
		})
	}
}

func TestPoll_NoDoubleCommit(t *testing.T) {
	tr, rec, _ := newTestTracker(0.1)
	s := song("1", 20)

	pollN(t, tr, s, 500)

	assert.Len(t, rec.starts, 1)
	assert.Len(t, rec.resolved, 1)
}

func TestPoll_FinalizeOnStop(t *testing.T) {
	tr, rec, _ := newTestTracker(0.2)
	s := song("1", 50)

	pollN(t, tr, s, 30)
	require.NoError(t, tr.Poll(stopped, player.Song{}))

	require.Len(t, rec.durations, 1)
	assert.Equal(t, 30, rec.durations[0].total)
	assert.Equal(t, State{}, tr.State())

	// A second stop has nothing to finalize.
	require.NoError(t, tr.Poll(stopped, player.Song{}))
	assert.Len(t, rec.durations, 1)
}

func TestPoll_StopBeforeThresholdResets(t *testing.T) {
	tr, rec, _ := newTestTracker(0.5)
	s := song("1", 100)

	pollN(t, tr, s, 10)
	require.NoError(t, tr.Poll(stopped, player.Song{}))

	assert.Empty(t, rec.starts)
	assert.Empty(t, rec.durations)
	assert.Equal(t, State{}, tr.State())
}

func TestPoll_PauseIsNoOp(t *testing.T) {
	tr, rec, _ := newTestTracker(0.2)
	s := song("1", 100)

	pollN(t, tr, s, 25)
	before := tr.State()

	for range 50 {
		require.NoError(t, tr.Poll(paused, player.Song{}))
	}

	assert.Equal(t, before, tr.State())
	assert.Len(t, rec.starts, 1)
	assert.Empty(t, rec.durations)
}

func TestPoll_SkipBeforeThresholdRestartsFromElapsed(t *testing.T) {
	tr, rec, _ := newTestTracker(0.5)

	pollN(t, tr, song("1", 100), 10)
	require.NoError(t, tr.Poll(playing(3), song("2", 10)))

	st := tr.State()
	assert.Equal(t, "2", st.TrackID)
	assert.Equal(t, 3, st.Total)
	assert.Empty(t, rec.durations)

	require.NoError(t, tr.Poll(playing(4), song("2", 10)))
	require.NoError(t, tr.Poll(playing(5), song("2", 10)))
	require.Len(t, rec.starts, 1)
	assert.Equal(t, "Title 2", rec.resolved[0].Title)
}

func TestPoll_EmptySongIDIgnored(t *testing.T) {
	tr, rec, _ := newTestTracker(0)

	require.NoError(t, tr.Poll(playing(5), player.Song{}))

	assert.Equal(t, State{}, tr.State())
	assert.Empty(t, rec.starts)
}

func TestPoll_CommitNormalizesMetadata(t *testing.T) {
	tr, rec, _ := newTestTracker(0)

	require.NoError(t, tr.Poll(playing(1), player.Song{
		ID: "9", Title: "T", AlbumArtist: "AA", Genres: []string{"Rock", "Alt"}, Track: "4/9", Date: "2010",
	}))

	require.Len(t, rec.resolved, 1)
	assert.Equal(t, history.TrackInfo{
		Title: "T", Artist: "AA", AlbumArtist: "AA", Album: history.UnknownAlbum,
		Genre: "Rock", Number: 4, Year: 2010,
	}, rec.resolved[0])
}

func TestPoll_PersistenceErrorOnCommitIsSwallowed(t *testing.T) {
	tr, rec, logs := newTestTracker(0.1)
	rec.startErr = errmsg.Persistence(errmsg.OpListenStart, history.ErrDuplicateListen)
	s := song("1", 10)

	pollN(t, tr, s, 5)

	assert.Len(t, rec.resolved, 1, "no retry for the same song")
	st := tr.State()
	assert.Equal(t, Timing, st.Phase)
	assert.True(t, st.CommitFailed)

	var errorsLogged int
	for _, e := range logs.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
			assert.Equal(t, "Title 1", e.Data["title"])
		}
	}
	assert.Equal(t, 1, errorsLogged)

	// A new song clears the failure.
	rec.startErr = nil
	require.NoError(t, tr.Poll(playing(1), song("2", 10)))
	assert.Len(t, rec.starts, 1)
	assert.False(t, tr.State().CommitFailed)
}

func TestPoll_PersistenceErrorOnFinalizeIsSwallowed(t *testing.T) {
	tr, rec, logs := newTestTracker(0)
	rec.durationErr = errmsg.Persistence(errmsg.OpListenDuration, errors.New("disk I/O error"))

	require.NoError(t, tr.Poll(playing(1), song("1", 10)))
	require.NoError(t, tr.Poll(stopped, player.Song{}))

	assert.Len(t, rec.durations, 1)
	assert.Equal(t, State{}, tr.State())
	require.NotNil(t, logs.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, logs.LastEntry().Level)
}

func TestPoll_FatalErrorReturned(t *testing.T) {
	tr, rec, _ := newTestTracker(0)
	boom := errors.New("boom")
	rec.resolveErr = boom

	err := tr.Poll(playing(1), song("1", 10))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, errmsg.KindFatal, errmsg.KindOf(err))
}

func TestFlush(t *testing.T) {
	tr, rec, _ := newTestTracker(0)

	require.NoError(t, tr.Flush())
	assert.Empty(t, rec.durations)

	pollN(t, tr, song("1", 10), 4)
	require.NoError(t, tr.Flush())

	require.Len(t, rec.durations, 1)
	assert.Equal(t, 4, rec.durations[0].total)
	assert.Equal(t, Idle, tr.State().Phase)
}

func TestHooks(t *testing.T) {
	hook := &recordingHook{}
	tr, _, _ := newTestTracker(0.5, hook)

	pollN(t, tr, song("1", 10), 8)
	require.NoError(t, tr.Poll(stopped, player.Song{}))

	require.Len(t, hook.committed, 1)
	assert.Equal(t, 5, hook.committed[0].Seconds)
	assert.Equal(t, "Title 1", hook.committed[0].Track.Title)
	assert.Equal(t, 2024, hook.committed[0].StartedAt.Year())

	require.Len(t, hook.finalized, 1)
	assert.Equal(t, 8, hook.finalized[0].Seconds)
	assert.Equal(t, hook.committed[0].Timestamp, hook.finalized[0].Timestamp)
}

func TestHooks_StartedAtIsPlaybackStart(t *testing.T) {
	hook := &recordingHook{}
	tr, _, _ := newTestTracker(0.2, hook)

	pollN(t, tr, song("1", 200), 40)
	require.Len(t, hook.committed, 1)
	committedAt, err := time.ParseInLocation(history.TimeLayout, hook.committed[0].Timestamp, time.Local)
	require.NoError(t, err)
	assert.Equal(t, committedAt.Add(-40*time.Second), hook.committed[0].StartedAt)

	// Joining a song mid-way counts the elapsed time as already played.
	require.NoError(t, tr.Poll(playing(30), song("2", 100)))
	require.Len(t, hook.finalized, 1)
	assert.Equal(t, hook.committed[0].StartedAt, hook.finalized[0].StartedAt)
	require.Len(t, hook.committed, 2)
	committedAt, err = time.ParseInLocation(history.TimeLayout, hook.committed[1].Timestamp, time.Local)
	require.NoError(t, err)
	assert.Equal(t, committedAt.Add(-30*time.Second), hook.committed[1].StartedAt)
}

func TestHooks_ErrorsOnlyLogged(t *testing.T) {
	hook := &recordingHook{err: errors.New("offline")}
	tr, rec, logs := newTestTracker(0, hook)

	require.NoError(t, tr.Poll(playing(1), song("1", 10)))

	assert.Len(t, rec.starts, 1)
	require.NotNil(t, logs.LastEntry())
	assert.Equal(t, logrus.WarnLevel, logs.LastEntry().Level)
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		p    Phase
		want string
	}{
		{Idle, "idle"},
		{Timing, "timing"},
		{Committed, "committed"},
		{Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
