package history

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/mpsd/internal/errmsg"
)

// TrackIDs are the row ids ResolveTrack found or created.
type TrackIDs struct {
	Track       int64
	Album       int64
	Artist      int64
	AlbumArtist int64
}

// ResolveTrack looks up or inserts the artist, album artist, album and
// track rows for info, in that order. Each insert is committed on its own,
// so a failure midway can leave unreferenced rows behind.
//
// Albums are identified by title alone, across all artists.
func (s *Store) ResolveTrack(info TrackInfo) (TrackIDs, error) {
	var ids TrackIDs
	var err error

	ids.Artist, err = s.artistID(info.Artist)
	if err != nil {
		return TrackIDs{}, errmsg.Persistence(errmsg.OpResolveTrack, err)
	}

	if info.AlbumArtist == info.Artist {
		ids.AlbumArtist = ids.Artist
	} else {
		ids.AlbumArtist, err = s.artistID(info.AlbumArtist)
		if err != nil {
			return TrackIDs{}, errmsg.Persistence(errmsg.OpResolveTrack, err)
		}
	}

	ids.Album, err = s.lookupOrInsert(
		"album",
		`SELECT id FROM album WHERE title = ?`, []any{info.Album},
		`INSERT INTO album (title, date, artist) VALUES (?, ?, ?)`,
		[]any{info.Album, info.Year, ids.AlbumArtist},
	)
	if err != nil {
		return TrackIDs{}, errmsg.Persistence(errmsg.OpResolveTrack, err)
	}

	ids.Track, err = s.lookupOrInsert(
		"track",
		`SELECT id FROM track WHERE title = ? AND album = ?`, []any{info.Title, ids.Album},
		`INSERT INTO track (num, title, artist, length, genre, album) VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{info.Number, info.Title, ids.Artist, info.Duration, info.Genre, ids.Album},
	)
	if err != nil {
		return TrackIDs{}, errmsg.Persistence(errmsg.OpResolveTrack, err)
	}

	return ids, nil
}

func (s *Store) artistID(name string) (int64, error) {
	return s.lookupOrInsert(
		"artist",
		`SELECT id FROM artist WHERE name = ?`, []any{name},
		`INSERT INTO artist (name) VALUES (?)`, []any{name},
	)
}

func (s *Store) lookupOrInsert(table, query string, queryArgs []any, insert string, insertArgs []any) (int64, error) {
	var id int64
	err := s.db.QueryRow(query, queryArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("look up %s: %w", table, err)
	}

	result, err := s.db.Exec(insert, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}

	s.log.WithFields(logrus.Fields{"table": table, "id": id, "key": queryArgs[0]}).Debug("new row")
	return id, nil
}
