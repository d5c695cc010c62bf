package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database. Summary
// columns are stored alongside the full result as a JSON payload so that
// listings do not need to decode every result.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id            TEXT PRIMARY KEY,
	strategy      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	start_date    TEXT NOT NULL,
	end_date      TEXT NOT NULL,
	total_return  REAL NOT NULL,
	sharpe_ratio  REAL NOT NULL,
	max_drawdown  REAL NOT NULL,
	total_trades  INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	payload       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_strategy ON backtest_results(strategy);
CREATE INDEX IF NOT EXISTS idx_results_created ON backtest_results(created_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts a new backtest result.
func (s *SQLiteStore) SaveResult(ctx context.Context, res *domain.BacktestResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", res.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_results
			(id, strategy, symbol, timeframe, start_date, end_date,
			 total_return, sharpe_ratio, max_drawdown, total_trades,
			 created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.StrategyID,
		res.Symbol,
		string(res.Timeframe),
		res.Start.UTC().Format(time.RFC3339),
		res.End.UTC().Format(time.RFC3339),
		res.Metrics.TotalReturn,
		res.Metrics.SharpeRatio,
		res.Metrics.MaxDrawdown,
		res.Metrics.TotalTrades,
		res.CreatedAt.UTC().Format(time.RFC3339),
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting result %s: %w", res.ID, err)
	}
	return nil
}

// GetResult retrieves a full backtest result by its ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*domain.BacktestResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM backtest_results WHERE id = ?`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("result %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	var res domain.BacktestResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return &res, nil
}

// ListResults returns summaries of the most recent results, newest first.
// A non-positive limit returns all stored results.
func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]ResultSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded.
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, timeframe,
		       total_return, sharpe_ratio, max_drawdown, total_trades, created_at
		FROM backtest_results
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ResultSummary
	for rows.Next() {
		var (
			sum       ResultSummary
			tf        string
			createdAt string
		)
		if err := rows.Scan(
			&sum.ID, &sum.StrategyID, &sum.Symbol, &tf,
			&sum.TotalReturn, &sum.SharpeRatio, &sum.MaxDrawdown,
			&sum.TotalTrades, &createdAt,
		); err != nil {
			return nil, err
		}
		sum.Timeframe = domain.Timeframe(tf)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			sum.CreatedAt = ts
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
