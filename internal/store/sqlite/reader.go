package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smatrader/internal/model"
)

// Reader provides read-only access to a journal for replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a journal database for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Points returns journaled price points with a timestamp after after,
// ordered by insertion for correct replay order. A zero after reads all.
func (r *Reader) Points(after time.Time) ([]model.PricePoint, error) {
	var afterNs int64
	if !after.IsZero() {
		afterNs = after.UnixNano()
	}
	rows, err := r.db.Query(`
		SELECT ts_ns, price, short_sma, long_sma
		FROM price_points
		WHERE ts_ns > ?
		ORDER BY id ASC
	`, afterNs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_points: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var tsNs int64
		if err := rows.Scan(&tsNs, &p.Price, &p.ShortSMA, &p.LongSMA); err != nil {
			return nil, fmt.Errorf("sqlite scan price_points: %w", err)
		}
		p.Timestamp = time.Unix(0, tsNs).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
