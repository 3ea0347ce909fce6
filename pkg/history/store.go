// Package history keeps every published flight data report in a SQLite
// database so earlier weather and ATIS states can be reviewed.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HaDeSMonsta/get-flight-data/pkg/report"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one stored report.
type Entry struct {
	ID             int64     `json:"id"`
	FetchedAt      time.Time `json:"fetchedAt"`
	Departure      string    `json:"departure"`
	Arrival        string    `json:"arrival"`
	DepartureBlock string    `json:"departureBlock"`
	ArrivalBlock   string    `json:"arrivalBlock"`
	DepFlightRules string    `json:"depFlightRules"`
	ArrFlightRules string    `json:"arrFlightRules"`
}

// Store is a SQLite-backed report history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("History database ready", "path", path)
	return s, nil
}

func (s *Store) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at TEXT NOT NULL,
			departure TEXT NOT NULL,
			arrival TEXT NOT NULL,
			departure_block TEXT NOT NULL,
			arrival_block TEXT NOT NULL,
			dep_flight_rules TEXT,
			arr_flight_rules TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_reports_fetched_at ON reports(fetched_at)`); err != nil {
		return fmt.Errorf("failed to create fetched_at index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a published report.
func (s *Store) Record(ctx context.Context, rpt *report.FlightDataReport) error {
	if rpt == nil {
		return errors.New("nil report")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports
		(fetched_at, departure, arrival, departure_block, arrival_block, dep_flight_rules, arr_flight_rules)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rpt.FetchedAt.UTC().Format(timeLayout),
		rpt.Airports.Departure,
		rpt.Airports.Arrival,
		rpt.DepartureBlock,
		rpt.ArrivalBlock,
		rpt.Departure.Weather.FlightRules,
		rpt.Arrival.Weather.FlightRules,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// List returns the newest entries first. A non-positive limit means DefaultLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fetched_at, departure, arrival, departure_block, arrival_block, dep_flight_rules, arr_flight_rules
		FROM reports
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			fetchedAt string
			depRules  sql.NullString
			arrRules  sql.NullString
		)
		if err := rows.Scan(&e.ID, &fetchedAt, &e.Departure, &e.Arrival,
			&e.DepartureBlock, &e.ArrivalBlock, &depRules, &arrRules); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if e.FetchedAt, err = time.Parse(timeLayout, fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to parse fetched_at %q: %w", fetchedAt, err)
		}
		e.DepFlightRules = depRules.String
		e.ArrFlightRules = arrRules.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return entries, nil
}

// Prune deletes entries fetched before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE fetched_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}
