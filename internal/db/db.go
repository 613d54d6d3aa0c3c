package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clusters (
			name TEXT PRIMARY KEY,
			seed_addr TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notices (
			cluster_name TEXT PRIMARY KEY,
			invalid_end_time TEXT NOT NULL DEFAULT '',
			items_json TEXT NOT NULL,
			mail_to TEXT NOT NULL DEFAULT '',
			mail_from TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(cluster_name) REFERENCES clusters(name) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notification_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cluster_name TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			subject TEXT NOT NULL,
			last_error TEXT,
			created_ts DATETIME NOT NULL,
			sent_ts_nullable DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notification_events_cluster_ts ON notification_events(cluster_name, created_ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
