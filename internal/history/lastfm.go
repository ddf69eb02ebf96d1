package history

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/mpsd/internal/db"
	"github.com/llehouerou/mpsd/internal/errmsg"
)

// LastfmSession represents a stored Last.fm session.
type LastfmSession struct {
	Username   string
	SessionKey string
	LinkedAt   time.Time
}

// PendingScrobble represents a scrobble queued for retry.
type PendingScrobble struct {
	ID           int64
	Artist       string
	Track        string
	Album        string
	AlbumArtist  string
	DurationSecs int
	Timestamp    time.Time
	Attempts     int
	LastError    string
	CreatedAt    time.Time
}

// LastfmSession returns the stored Last.fm session, or nil if not linked.
func (s *Store) LastfmSession() (*LastfmSession, error) {
	var username, sessionKey string
	var linkedAt int64

	err := s.db.QueryRow(`
		SELECT username, session_key, linked_at FROM lastfm_session WHERE id = 1
	`).Scan(&username, &sessionKey, &linkedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil session means not linked, not an error
	}
	if err != nil {
		return nil, errmsg.Persistence(errmsg.OpLastfmAuth, err)
	}

	return &LastfmSession{
		Username:   username,
		SessionKey: sessionKey,
		LinkedAt:   time.Unix(linkedAt, 0),
	}, nil
}

// SaveLastfmSession stores the Last.fm session after successful authentication.
func (s *Store) SaveLastfmSession(username, sessionKey string) error {
	_, err := s.db.Exec(`
		INSERT INTO lastfm_session (id, username, session_key, linked_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			session_key = excluded.session_key,
			linked_at = excluded.linked_at
	`, username, sessionKey, s.clock.Now().Unix())
	return errmsg.Persistence(errmsg.OpLastfmAuth, err)
}

// DeleteLastfmSession removes the stored Last.fm session (unlink).
func (s *Store) DeleteLastfmSession() error {
	_, err := s.db.Exec(`DELETE FROM lastfm_session WHERE id = 1`)
	return errmsg.Persistence(errmsg.OpLastfmAuth, err)
}

// AddPendingScrobble queues a scrobble for later submission.
func (s *Store) AddPendingScrobble(p PendingScrobble) error {
	_, err := s.db.Exec(`
		INSERT INTO lastfm_pending_scrobbles
		(artist, track, album, album_artist, duration_seconds, timestamp, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)
	`, p.Artist, p.Track, p.Album, p.AlbumArtist, p.DurationSecs, p.Timestamp.Unix(), s.clock.Now().Unix())
	return errmsg.Persistence(errmsg.OpScrobbleQueue, err)
}

// PendingScrobbles returns all pending scrobbles ordered by creation time.
func (s *Store) PendingScrobbles() ([]PendingScrobble, error) {
	rows, err := s.db.Query(`
		SELECT id, artist, track, album, album_artist, duration_seconds, timestamp, attempts, last_error, created_at
		FROM lastfm_pending_scrobbles
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, errmsg.Persistence(errmsg.OpScrobbleQueue, err)
	}
	defer rows.Close()

	var scrobbles []PendingScrobble
	for rows.Next() {
		var p PendingScrobble
		var album, albumArtist, lastError sql.NullString
		var timestamp, createdAt int64

		err := rows.Scan(
			&p.ID, &p.Artist, &p.Track, &album, &albumArtist, &p.DurationSecs,
			&timestamp, &p.Attempts, &lastError, &createdAt,
		)
		if err != nil {
			return nil, errmsg.Persistence(errmsg.OpScrobbleQueue, err)
		}

		p.Album = dbutil.NullStringValue(album)
		p.AlbumArtist = dbutil.NullStringValue(albumArtist)
		p.LastError = dbutil.NullStringValue(lastError)
		p.Timestamp = time.Unix(timestamp, 0)
		p.CreatedAt = time.Unix(createdAt, 0)

		scrobbles = append(scrobbles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errmsg.Persistence(errmsg.OpScrobbleQueue, err)
	}
	return scrobbles, nil
}

// DeletePendingScrobble removes a successfully submitted scrobble.
func (s *Store) DeletePendingScrobble(id int64) error {
	_, err := s.db.Exec(`DELETE FROM lastfm_pending_scrobbles WHERE id = ?`, id)
	return errmsg.Persistence(errmsg.OpScrobbleQueue, err)
}

// UpdatePendingScrobbleAttempt increments attempt count and sets error message.
func (s *Store) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE lastfm_pending_scrobbles
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	return errmsg.Persistence(errmsg.OpScrobbleQueue, err)
}

// DeleteOldPendingScrobbles removes pending scrobbles older than maxAge.
func (s *Store) DeleteOldPendingScrobbles(maxAge time.Duration) error {
	cutoff := s.clock.Now().Add(-maxAge).Unix()
	_, err := s.db.Exec(`DELETE FROM lastfm_pending_scrobbles WHERE created_at < ?`, cutoff)
	return errmsg.Persistence(errmsg.OpScrobbleQueue, err)
}
