package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	dbutil "github.com/llehouerou/mpsd/internal/db"
	"github.com/llehouerou/mpsd/internal/errmsg"
)

// TimeLayout is the format of listen timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// ErrDuplicateListen is returned when a listen for the same track was
// already recorded within the same second.
var ErrDuplicateListen = errors.New("listen already recorded for this second")

// Listen is one row of the listen log joined with its track names.
type Listen struct {
	Timestamp string
	PlayedAt  time.Time
	Seconds   int
	Title     string
	Artist    string
	Album     string
	Length    int
}

// RecordListenStart inserts a listen of trackID stamped with the current
// local time and a duration of 0. The timestamp identifies the listen for
// RecordListenDuration.
func (s *Store) RecordListenStart(trackID int64) (string, error) {
	ts := s.clock.Now().In(time.Local).Format(TimeLayout)

	_, err := s.db.Exec(`INSERT INTO listened (track, date, listentime) VALUES (?, ?, 0)`, trackID, ts)
	if err != nil {
		if dbutil.IsConstraint(err) {
			err = fmt.Errorf("%w: %w", ErrDuplicateListen, err)
		}
		return "", errmsg.Persistence(errmsg.OpListenStart, err)
	}
	return ts, nil
}

// RecordListenDuration stores the final listened time of the listen of
// trackID started at timestamp. A listen that does not exist is logged, not
// returned.
func (s *Store) RecordListenDuration(trackID int64, timestamp string, total int) error {
	result, err := s.db.Exec(`UPDATE listened SET listentime = ? WHERE track = ? AND date = ?`,
		total, trackID, timestamp)
	if err != nil {
		return errmsg.Persistence(errmsg.OpListenDuration, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errmsg.Persistence(errmsg.OpListenDuration, err)
	}
	if n == 0 {
		s.log.WithFields(logrus.Fields{"listen": timestamp, "track_id": trackID}).Warn("no listen to update")
	}
	return nil
}

// RecentListens returns up to limit listens, newest first.
func (s *Store) RecentListens(limit int) ([]Listen, error) {
	rows, err := s.db.Query(`
		SELECT l.date, l.listentime, t.title, t.length, ar.name, al.title
		FROM listened l
		JOIN track t ON t.id = l.track
		LEFT JOIN artist ar ON ar.id = t.artist
		LEFT JOIN album al ON al.id = t.album
		ORDER BY l.date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errmsg.Persistence(errmsg.OpRecentListens, err)
	}
	defer rows.Close()

	var listens []Listen
	for rows.Next() {
		var l Listen
		var artist, album sql.NullString
		if err := rows.Scan(&l.Timestamp, &l.Seconds, &l.Title, &l.Length, &artist, &album); err != nil {
			return nil, errmsg.Persistence(errmsg.OpRecentListens, err)
		}
		l.Artist = dbutil.NullStringValue(artist)
		l.Album = dbutil.NullStringValue(album)
		if t, err := time.ParseInLocation(TimeLayout, l.Timestamp, time.Local); err == nil {
			l.PlayedAt = t
		}
		listens = append(listens, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errmsg.Persistence(errmsg.OpRecentListens, err)
	}
	return listens, nil
}
