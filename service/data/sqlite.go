package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteService struct {
	conn *sql.DB
}

// NewSQLite stores every report as a JSON payload row tagged with its kind.
func NewSQLite(cfgsvc config.IService) (IService, error) {
	path := cfgsvc.GetSQLitePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data folder: %w", err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	svc := &sqliteService{conn: conn}
	if err := svc.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return svc, nil
}

func (svc *sqliteService) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_kind ON reports(kind);
	`

	_, err := svc.conn.Exec(query)
	return err
}

func (svc *sqliteService) NewError(err interface{}) error {
	rec := toErrorRecord(err)
	return svc.insert("errors", rec, rec.Timestamp)
}

func (svc *sqliteService) NewFramerStats(stats model.FramerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert("framer-stats", stats, stats.Timestamp)
}

func (svc *sqliteService) NewClassifierStats(stats model.ClassifierStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert("classifier-stats", stats, stats.Timestamp)
}

func (svc *sqliteService) NewDisplayStats(stats model.DisplayStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.insert("display-stats", stats, stats.Timestamp)
}

func (svc *sqliteService) Close() error {
	return svc.conn.Close()
}

func (svc *sqliteService) insert(kind string, entity interface{}, timestamp int64) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return err
	}

	_, err = svc.conn.Exec(
		`INSERT INTO reports (kind, payload, timestamp) VALUES (?, ?, ?)`,
		kind, string(payload), timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return nil
}

// count is used by tests.
func (svc *sqliteService) count(kind string) (int, error) {
	var n int
	err := svc.conn.QueryRow(`SELECT COUNT(*) FROM reports WHERE kind = ?`, kind).Scan(&n)
	return n, err
}
