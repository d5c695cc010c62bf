// Package store defines storage interfaces for persisting and retrieving
// candle series and backtest results.
package store

import (
	"context"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// CandleStore persists and retrieves OHLCV candle series per symbol and
// timeframe.
type CandleStore interface {
	// WriteCandles persists a batch of candles for the given symbol and
	// timeframe, merging with any previously stored data.
	WriteCandles(ctx context.Context, symbol string, tf domain.Timeframe, candles []domain.Candle) error

	// ReadCandles returns candles for the symbol and timeframe within
	// [start, end], ordered by timestamp.
	ReadCandles(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Candle, error)

	// ListSymbols returns all distinct symbols with stored candle data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ResultSummary is the lightweight listing view of a stored backtest result.
type ResultSummary struct {
	ID          string
	StrategyID  string
	Symbol      string
	Timeframe   domain.Timeframe
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	TotalTrades int
	CreatedAt   time.Time
}

// ResultStore persists and retrieves backtest results for later retrieval
// and reporting.
type ResultStore interface {
	// SaveResult inserts a new backtest result.
	SaveResult(ctx context.Context, res *domain.BacktestResult) error

	// GetResult retrieves a full result by its ID.
	GetResult(ctx context.Context, id string) (*domain.BacktestResult, error)

	// ListResults returns summaries of the most recent results, up to limit.
	ListResults(ctx context.Context, limit int) ([]ResultSummary, error)
}
