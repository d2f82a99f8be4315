// Package registry keeps an offline SQLite index of external crate
// metadata (name, version, feature names) so feature references to
// crates outside the workspace can still be verified.
package registry

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/danmuck/cratectl/internal/semver"
)

// DB is an open registry index.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the index at path and applies migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry open failed: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry WAL mode failed: %w", err)
	}
	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS crates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			UNIQUE(name, version)
		)`,
		`CREATE TABLE IF NOT EXISTS features (
			crate_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			FOREIGN KEY (crate_id) REFERENCES crates(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crates_name ON crates(name)`,
		`CREATE INDEX IF NOT EXISTS idx_features_crate ON features(crate_id)`,
		`CREATE TABLE IF NOT EXISTS imports (
			id TEXT PRIMARY KEY,
			crates INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("registry migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put records one crate version and its feature names, replacing any
// previous entry for the same version.
func (d *DB) Put(crate, version string, features []string) error {
	if _, err := semver.ParseVersion(version); err != nil {
		return fmt.Errorf("registry put %s: %w", crate, err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("registry put failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO crates (name, version) VALUES (?, ?)`, crate, version,
	); err != nil {
		return fmt.Errorf("registry put failed: %w", err)
	}
	var id int64
	if err := tx.QueryRow(
		`SELECT id FROM crates WHERE name = ? AND version = ?`, crate, version,
	).Scan(&id); err != nil {
		return fmt.Errorf("registry put failed: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM features WHERE crate_id = ?`, id); err != nil {
		return fmt.Errorf("registry put failed: %w", err)
	}
	for _, feat := range features {
		if _, err := tx.Exec(`INSERT INTO features (crate_id, name) VALUES (?, ?)`, id, feat); err != nil {
			return fmt.Errorf("registry put failed: %w", err)
		}
	}
	return tx.Commit()
}

// Features returns the feature names of the highest indexed version
// of crate matching req. ok is false when no indexed version matches.
func (d *DB) Features(crate string, req semver.Req) ([]string, bool, error) {
	rows, err := d.db.Query(`SELECT id, version FROM crates WHERE name = ?`, crate)
	if err != nil {
		return nil, false, fmt.Errorf("registry query failed: %w", err)
	}
	defer rows.Close()

	var bestID int64
	var best semver.Version
	found := false
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, false, fmt.Errorf("registry scan failed: %w", err)
		}
		v, err := semver.ParseVersion(raw)
		if err != nil {
			continue // tolerate stale rows from older dumps
		}
		if !req.Matches(v) {
			continue
		}
		if !found || v.Compare(best) > 0 {
			bestID, best, found = id, v, true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("registry rows failed: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	featRows, err := d.db.Query(`SELECT name FROM features WHERE crate_id = ? ORDER BY name`, bestID)
	if err != nil {
		return nil, false, fmt.Errorf("registry query failed: %w", err)
	}
	defer featRows.Close()

	var feats []string
	for featRows.Next() {
		var name string
		if err := featRows.Scan(&name); err != nil {
			return nil, false, fmt.Errorf("registry scan failed: %w", err)
		}
		feats = append(feats, name)
	}
	return feats, true, featRows.Err()
}

// dumpEntry is one line of a registry dump: newline-delimited JSON.
type dumpEntry struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// ImportSummary describes one completed dump ingestion.
type ImportSummary struct {
	ID      string
	Crates  int
	Skipped int
	Elapsed time.Duration
}

// ImportDump ingests a newline-delimited JSON dump. Malformed lines
// are skipped and counted rather than aborting the import.
func (d *DB) ImportDump(r io.Reader) (ImportSummary, error) {
	start := time.Now()
	sum := ImportSummary{ID: uuid.NewString()}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry dumpEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			sum.Skipped++
			continue
		}
		if entry.Name == "" || entry.Version == "" {
			sum.Skipped++
			continue
		}
		if err := d.Put(entry.Name, entry.Version, entry.Features); err != nil {
			log.Warn().Err(err).Str("crate", entry.Name).Msg("dump entry rejected")
			sum.Skipped++
			continue
		}
		sum.Crates++
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("registry dump read failed: %w", err)
	}

	if _, err := d.db.Exec(`INSERT INTO imports (id, crates) VALUES (?, ?)`, sum.ID, sum.Crates); err != nil {
		return sum, fmt.Errorf("registry import record failed: %w", err)
	}
	sum.Elapsed = time.Since(start)
	log.Info().
		Str("import_id", sum.ID).
		Int("crates", sum.Crates).
		Int("skipped", sum.Skipped).
		Msg("registry dump imported")
	return sum, nil
}
