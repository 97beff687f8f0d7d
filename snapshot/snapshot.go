// Package snapshot persists universes in a SQLite database so that they
// survive restarts.
package snapshot

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/featureflag"
	"github.com/irk72ag/StarDrive/models"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const ErrTypeSnapshot = "snapshot_error"

const schema = `
CREATE TABLE IF NOT EXISTS universes (
	id INTEGER PRIMARY KEY,
	uuid TEXT NOT NULL,
	universe_size REAL NOT NULL,
	smallest_cell REAL NOT NULL,
	frame_duration INTEGER NOT NULL DEFAULT 0,
	flags TEXT NOT NULL DEFAULT '',
	frame INTEGER NOT NULL DEFAULT 0,
	objects BLOB NOT NULL,
	saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store saves and loads universe snapshots.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New("opening snapshot database failed").
			WithType(ErrTypeSnapshot).
			WithTag("path", path).
			Wrap(err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.New("initializing snapshot database failed").
				WithType(ErrTypeSnapshot).
				WithTag("path", path).
				Wrap(err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshots with the given ones.
func (s *Store) Save(ctx context.Context, snapshots []models.UniverseSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New("starting snapshot transaction failed").
			WithType(ErrTypeSnapshot).
			Wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM universes"); err != nil {
		return errors.New("clearing snapshots failed").
			WithType(ErrTypeSnapshot).
			Wrap(err)
	}

	for _, snap := range snapshots {
		objects, err := msgpack.Marshal(snap.Objects)
		if err != nil {
			return errors.New("encoding objects failed").
				WithType(ErrTypeSnapshot).
				WithTag("universe_id", snap.ID).
				Wrap(err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO universes (id, uuid, universe_size, smallest_cell, frame_duration, flags, frame, objects)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID,
			snap.UUID,
			snap.Config.UniverseSize,
			snap.Config.SmallestCell,
			int64(snap.Config.FrameDuration),
			strings.Join(snap.Config.Flags.Strings(), ","),
			int64(snap.Frame),
			objects,
		)
		if err != nil {
			return errors.New("saving snapshot failed").
				WithType(ErrTypeSnapshot).
				WithTag("universe_id", snap.ID).
				Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New("committing snapshots failed").
			WithType(ErrTypeSnapshot).
			Wrap(err)
	}
	return nil
}

// Load returns the stored snapshots ordered by universe id.
func (s *Store) Load(ctx context.Context) ([]models.UniverseSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uuid, universe_size, smallest_cell, frame_duration, flags, frame, objects
		FROM universes
		ORDER BY id`)
	if err != nil {
		return nil, errors.New("querying snapshots failed").
			WithType(ErrTypeSnapshot).
			Wrap(err)
	}
	defer rows.Close()

	var snapshots []models.UniverseSnapshot
	for rows.Next() {
		var (
			snap          models.UniverseSnapshot
			universeSize  float64
			smallestCell  float64
			frameDuration int64
			flags         string
			frame         int64
			objects       []byte
		)

		err := rows.Scan(
			&snap.ID,
			&snap.UUID,
			&universeSize,
			&smallestCell,
			&frameDuration,
			&flags,
			&frame,
			&objects,
		)
		if err != nil {
			return nil, errors.New("reading snapshot failed").
				WithType(ErrTypeSnapshot).
				Wrap(err)
		}

		if err := msgpack.Unmarshal(objects, &snap.Objects); err != nil {
			return nil, errors.New("decoding objects failed").
				WithType(ErrTypeSnapshot).
				WithTag("universe_id", snap.ID).
				Wrap(err)
		}

		snap.Frame = uint64(frame)
		snap.Config = models.UniverseConfig{
			UniverseSize:  float32(universeSize),
			SmallestCell:  float32(smallestCell),
			FrameDuration: time.Duration(frameDuration),
		}
		if flags != "" {
			snap.Config.Flags = featureflag.New(strings.Split(flags, ","))
		}

		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.New("iterating snapshots failed").
			WithType(ErrTypeSnapshot).
			Wrap(err)
	}
	return snapshots, nil
}

// RestoreAll loads the stored snapshots into universes. Snapshots that
// cannot be restored are logged and skipped.
func (s *Store) RestoreAll(ctx context.Context, universes *models.UniverseStore) (int, error) {
	snapshots, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, snap := range snapshots {
		if _, err := universes.Restore(snap); err != nil {
			logs.WithTag("universe_id", snap.ID).
				WithTag("universe_uuid", snap.UUID).
				Warn(errors.New("restoring universe failed").Wrap(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// SaveAll saves the snapshots of every universe of the store.
func (s *Store) SaveAll(ctx context.Context, universes *models.UniverseStore) error {
	start := time.Now()
	snapshots := universes.Snapshots()

	if err := s.Save(ctx, snapshots); err != nil {
		return err
	}

	logs.WithTag("universes", len(snapshots)).
		WithTag("duration", time.Since(start)).
		Debug("universes saved")
	return nil
}

// StartSaving saves the universes at every interval until ctx is done.
func (s *Store) StartSaving(ctx context.Context, universes *models.UniverseStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := s.SaveAll(ctx, universes); err != nil {
				logs.Warn(errors.New("saving universes failed").Wrap(err))
			}
		}
	}
}
