package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smatrader/internal/model"
)

// Journal is a write-mostly audit trail of price points and trades. It is
// never read back into a live tracker; the backtest tool replays it.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open opens (or creates) the journal database with WAL mode and schema.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_points (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_ns     INTEGER NOT NULL,
			price     REAL    NOT NULL,
			short_sma REAL    NOT NULL,
			long_sma  REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_price_points_ts ON price_points(ts_ns);

		CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id   TEXT    NOT NULL UNIQUE,
			seq        INTEGER NOT NULL,
			side       TEXT    NOT NULL,
			price      REAL    NOT NULL,
			qty        INTEGER NOT NULL,
			ts_ns      INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ns);
	`)
	return err
}

// RecordPoint persists one price point.
func (j *Journal) RecordPoint(ctx context.Context, p model.PricePoint) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO price_points (ts_ns, price, short_sma, long_sma) VALUES (?, ?, ?, ?)`,
		p.Timestamp.UnixNano(), p.Price, p.ShortSMA, p.LongSMA,
	)
	if err != nil {
		return fmt.Errorf("journal: insert point: %w", err)
	}
	return nil
}

// RecordTrade persists one trade.
func (j *Journal) RecordTrade(ctx context.Context, t model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (trade_id, seq, side, price, qty, ts_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Seq, string(t.Type), t.Price, t.Quantity, t.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: insert trade: %w", err)
	}
	return nil
}

// OnPoint implements model.Sink.
func (j *Journal) OnPoint(ctx context.Context, p model.PricePoint) error {
	return j.RecordPoint(ctx, p)
}

// OnTrade implements model.Sink.
func (j *Journal) OnTrade(ctx context.Context, t model.Trade) error {
	return j.RecordTrade(ctx, t)
}

// RecentTrades returns the last limit trades, newest first.
func (j *Journal) RecentTrades(limit int) ([]model.Trade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT trade_id, seq, side, price, qty, ts_ns
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var (
			t    model.Trade
			side string
			tsNs int64
		)
		if err := rows.Scan(&t.ID, &t.Seq, &side, &t.Price, &t.Quantity, &tsNs); err != nil {
			return nil, fmt.Errorf("journal: scan trade: %w", err)
		}
		t.Type = model.Signal(side)
		t.Timestamp = time.Unix(0, tsNs).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
