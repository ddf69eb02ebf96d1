package history

import (
	"database/sql"

	dbutil "github.com/llehouerou/mpsd/internal/db"
)

// createSchema creates the four history tables of a new database.
// Dates in listened are stored as "YYYY-MM-DD HH:MM:SS" local time.
func createSchema(db *sql.DB) error {
	return dbutil.WithTx(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			CREATE TABLE artist (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL UNIQUE
			);

			CREATE TABLE album (
				id INTEGER PRIMARY KEY,
				title TEXT NOT NULL UNIQUE,
				date INTEGER NOT NULL DEFAULT 0,
				artist INTEGER REFERENCES artist(id)
			);

			CREATE TABLE track (
				id INTEGER PRIMARY KEY,
				num INTEGER NOT NULL DEFAULT 0,
				title TEXT NOT NULL,
				artist INTEGER REFERENCES artist(id),
				length INTEGER NOT NULL DEFAULT 0,
				genre TEXT,
				album INTEGER REFERENCES album(id),
				UNIQUE (title, album)
			);

			CREATE TABLE listened (
				track INTEGER REFERENCES track(id),
				date TEXT NOT NULL,
				listentime INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (track, date)
			);

			CREATE INDEX idx_listened_date ON listened(date);
		`)
		return err
	})
}

// ensureAuxSchema creates the Last.fm tables. It runs on every open so
// databases created before scrobbling existed pick them up.
func ensureAuxSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lastfm_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			session_key TEXT NOT NULL,
			linked_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS lastfm_pending_scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT,
			album_artist TEXT,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}
