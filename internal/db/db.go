package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/stickerjar/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Init initializes the SQLite database at baseDir/stickerjar.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stickerjar.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create blobs subdirectory for the local blob store
	blobsDir := filepath.Join(baseDir, "blobs")
	if err := os.MkdirAll(blobsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}
	_ = os.Chmod(blobsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "stickerjar.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// BlobsDir returns the blob store root that Init creates under baseDir.
func BlobsDir(baseDir string) string {
	return filepath.Join(baseDir, "blobs")
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: live stickers, archived jars, per-user state
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS stickers (
		  id             TEXT PRIMARY KEY,
		  user_id        TEXT NOT NULL,
		  image_url      TEXT NOT NULL,
		  thumbnail_url  TEXT NOT NULL,
		  original_url   TEXT,
		  is_special     INTEGER NOT NULL DEFAULT 0,
		  is_food        INTEGER NOT NULL DEFAULT 0,
		  name           TEXT,
		  fun_fact       TEXT,
		  nutrition      TEXT,
		  aspect_ratio   REAL NOT NULL DEFAULT 0,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_stickers_user_created
		ON stickers(user_id, created_at, id);

		CREATE TABLE IF NOT EXISTS jars (
		  id             TEXT PRIMARY KEY,
		  user_id        TEXT NOT NULL,
		  screenshot_url TEXT NOT NULL,
		  report         TEXT,
		  stickers_json  TEXT NOT NULL,
		  sticker_count  INTEGER NOT NULL,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jars_user_created
		ON jars(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS users (
		  id              TEXT PRIMARY KEY,
		  jar_ids_json    TEXT NOT NULL DEFAULT '[]',
		  sticker_count   INTEGER NOT NULL DEFAULT 0,
		  last_archive_at INTEGER
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: tombstones so a late persist cannot resurrect an
	// archived sticker into the live jar
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS archived_stickers (
		  id      TEXT PRIMARY KEY,
		  jar_id  TEXT NOT NULL REFERENCES jars(id)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
