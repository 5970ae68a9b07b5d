// Package pbstore persists personal-best lap times keyed by (track,car) in
// an embedded SQL database, with a versioned migration ledger.
package pbstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Record is a single personal-best row.
type Record struct {
	Track      string
	Car        string
	LaptimeMs  int
	RecordedAt time.Time
}

// Store is a durable (track,car) -> lap time keyed store. It opens and
// closes a fresh *sql.DB per call, matching the upstream behavior of
// serializing through the storage engine's own locking rather than holding
// a long-lived connection across the process lifetime.
type Store struct {
	Logger zerolog.Logger

	path           string
	migrationsPath string
}

// migration is one named, ordered schema step.
type migration struct {
	version string
	sql     string
}

// builtinMigrations is applied in addition to any *.sql files found under
// migrationsPath, in filename order, with builtins always first.
var builtinMigrations = []migration{
	{
		version: "0001_initial",
		sql: `CREATE TABLE IF NOT EXISTS pb (
			track TEXT NOT NULL,
			car TEXT NOT NULL,
			laptime_ms INTEGER NOT NULL,
			date TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS pb_track_car ON pb(track, car);`,
	},
}

// NewStore opens (creating parent directories as needed) the database at
// path and applies any migrations not yet recorded in schema_migrations.
func NewStore(path, migrationsDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pbstore: failed to create data directory: %w", err)
	}
	s := &Store{Logger: logger, path: path, migrationsPath: migrationsDir}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() (*sql.DB, error) {
	return sql.Open("sqlite", s.path)
}

func (s *Store) migrate() error {
	db, err := s.open()
	if err != nil {
		return fmt.Errorf("pbstore: failed to open %s: %w", s.path, err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("pbstore: failed to create migration ledger: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("pbstore: failed to read migration ledger: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("pbstore: failed to scan migration ledger row: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("pbstore: failed to begin migration %s: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("pbstore: migration %s failed: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("pbstore: failed to record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("pbstore: failed to commit migration %s: %w", m.version, err)
		}
		s.Logger.Info().Msgf("pbstore: applied migration %s", m.version)
	}
	return nil
}

// loadMigrations returns the builtins plus any *.sql files under
// migrationsPath, sorted by filename so that later files can extend the
// schema in a predictable order.
func (s *Store) loadMigrations() ([]migration, error) {
	migrations := append([]migration(nil), builtinMigrations...)
	if s.migrationsPath == "" {
		return migrations, nil
	}
	entries, err := os.ReadDir(s.migrationsPath)
	if os.IsNotExist(err) {
		return migrations, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: failed to read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := name[:len(name)-len(filepath.Ext(name))]
		body, err := os.ReadFile(filepath.Join(s.migrationsPath, name))
		if err != nil {
			return nil, fmt.Errorf("pbstore: failed to read migration file %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: version, sql: string(body)})
	}
	return migrations, nil
}

// Load returns the personal best for (track,car), or nil if none exists.
func (s *Store) Load(track, car string) (*Record, error) {
	db, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("pbstore: failed to open %s: %w", s.path, err)
	}
	defer db.Close()

	row := db.QueryRow(`SELECT laptime_ms, date FROM pb WHERE track = ? AND car = ?`, track, car)
	var laptimeMs int
	var dateStr string
	if err := row.Scan(&laptimeMs, &dateStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pbstore: failed to load (%s,%s): %w", track, car, err)
	}
	recordedAt, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return nil, fmt.Errorf("pbstore: malformed date %q: %w", dateStr, err)
	}
	return &Record{Track: track, Car: car, LaptimeMs: laptimeMs, RecordedAt: recordedAt}, nil
}

// RecordLap upserts a lap time if it improves on (or creates) the stored
// best for (track,car). It rejects negative lap times outright. now lets
// callers (tests) pin the timestamp; a zero Time uses time.Now().UTC().
func (s *Store) RecordLap(track, car string, laptimeMs int, now time.Time) (Record, bool, error) {
	if laptimeMs < 0 {
		return Record{}, false, fmt.Errorf("pbstore: laptime_ms must be >= 0, got %d", laptimeMs)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	db, err := s.open()
	if err != nil {
		return Record{}, false, fmt.Errorf("pbstore: failed to open %s: %w", s.path, err)
	}
	defer db.Close()

	prior, err := s.Load(track, car)
	if err != nil {
		return Record{}, false, err
	}
	if prior != nil && laptimeMs >= prior.LaptimeMs {
		return *prior, false, nil
	}

	dateStr := now.Format(time.RFC3339)
	_, err = db.Exec(`
		INSERT INTO pb(track, car, laptime_ms, date) VALUES (?, ?, ?, ?)
		ON CONFLICT(track, car) DO UPDATE SET laptime_ms = excluded.laptime_ms, date = excluded.date
	`, track, car, laptimeMs, dateStr)
	if err != nil {
		return Record{}, false, fmt.Errorf("pbstore: failed to upsert (%s,%s): %w", track, car, err)
	}
	return Record{Track: track, Car: car, LaptimeMs: laptimeMs, RecordedAt: now}, true, nil
}

// Delete removes the personal best for (track,car), reporting whether a
// row was actually removed.
func (s *Store) Delete(track, car string) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, fmt.Errorf("pbstore: failed to open %s: %w", s.path, err)
	}
	defer db.Close()

	res, err := db.Exec(`DELETE FROM pb WHERE track = ? AND car = ?`, track, car)
	if err != nil {
		return false, fmt.Errorf("pbstore: failed to delete (%s,%s): %w", track, car, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pbstore: failed to count rows affected: %w", err)
	}
	return n > 0, nil
}
