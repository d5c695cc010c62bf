package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

func makeCandles(start time.Time, n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		base := 100.0 + float64(i)
		candles[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      base,
			High:      base + 1,
			Low:       base - 1,
			Close:     base + 0.5,
			Volume:    1000,
		}
	}
	return candles
}

func TestParquetStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := makeCandles(start, 10)

	if err := s.WriteCandles(ctx, "sber", domain.TF1d, candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	got, err := s.ReadCandles(ctx, "sber", domain.TF1d, start, start.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != len(candles) {
		t.Fatalf("ReadCandles returned %d candles, want %d", len(got), len(candles))
	}
	for i, c := range got {
		if !c.Timestamp.Equal(candles[i].Timestamp) {
			t.Errorf("candle %d timestamp = %v, want %v", i, c.Timestamp, candles[i].Timestamp)
		}
		if c.Close != candles[i].Close {
			t.Errorf("candle %d close = %v, want %v", i, c.Close, candles[i].Close)
		}
	}
}

func TestParquetStoreMergeDedupe(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first := makeCandles(start, 5)
	if err := s.WriteCandles(ctx, "GAZP", domain.TF1d, first); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	// Overlapping write: last two candles repeated with corrected closes,
	// plus two new ones.
	second := makeCandles(start.Add(3*24*time.Hour), 4)
	for i := range second {
		second[i].Close = 999
	}
	if err := s.WriteCandles(ctx, "GAZP", domain.TF1d, second); err != nil {
		t.Fatalf("WriteCandles (second): %v", err)
	}

	got, err := s.ReadCandles(ctx, "GAZP", domain.TF1d, start, start.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("after merge got %d candles, want 7", len(got))
	}
	// Overlapped candles must hold the newer values.
	if got[3].Close != 999 {
		t.Errorf("overlapped candle close = %v, want 999", got[3].Close)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("candles not strictly increasing at %d", i)
		}
	}
}

func TestParquetStoreYearBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	start := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	candles := makeCandles(start, 6) // spans 2023 and 2024
	if err := s.WriteCandles(ctx, "LKOH", domain.TF1d, candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	got, err := s.ReadCandles(ctx, "LKOH", domain.TF1d, start, start.Add(10*24*time.Hour))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d candles across year boundary, want 6", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, sym := range []string{"sber", "GAZP"} {
		if err := s.WriteCandles(ctx, sym, domain.TF1d, makeCandles(start, 2)); err != nil {
			t.Fatalf("WriteCandles(%s): %v", sym, err)
		}
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "GAZP" || symbols[1] != "SBER" {
		t.Errorf("ListSymbols = %v, want [GAZP SBER]", symbols)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	res := &domain.BacktestResult{
		ID:             "res-1",
		StrategyID:     "ma_crossover",
		Params:         map[string]float64{"fast_period": 10, "slow_period": 30},
		Symbol:         "SBER",
		Timeframe:      domain.TF1h,
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		FinalEquity:    11500,
		Metrics: domain.Metrics{
			TotalReturn:  0.15,
			SharpeRatio:  1.2,
			MaxDrawdown:  0.08,
			TotalTrades:  12,
			ProfitFactor: domain.Undefined,
		},
		CreatedAt: time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SaveResult(ctx, res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := s.GetResult(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.StrategyID != res.StrategyID {
		t.Errorf("StrategyID = %q, want %q", got.StrategyID, res.StrategyID)
	}
	if got.Params["slow_period"] != 30 {
		t.Errorf("Params[slow_period] = %v, want 30", got.Params["slow_period"])
	}
	if got.Metrics.TotalReturn != 0.15 {
		t.Errorf("TotalReturn = %v, want 0.15", got.Metrics.TotalReturn)
	}
	if got.Metrics.ProfitFactor.Defined() {
		t.Errorf("ProfitFactor should round-trip as undefined, got %v", got.Metrics.ProfitFactor)
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, err := s.GetResult(context.Background(), "no-such-id"); err == nil {
		t.Error("GetResult should fail for a missing ID")
	}
}

func TestSQLiteStoreList(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		res := &domain.BacktestResult{
			ID:         string(rune('a' + i)),
			StrategyID: "mean_reversion",
			Symbol:     "GAZP",
			Timeframe:  domain.TF1d,
			Start:      base.AddDate(0, -6, 0),
			End:        base,
			Metrics:    domain.Metrics{TotalReturn: float64(i) * 0.1, TotalTrades: i},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveResult(ctx, res); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}

	summaries, err := s.ListResults(ctx, 2)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("ListResults returned %d rows, want 2", len(summaries))
	}
	// Newest first.
	if summaries[0].ID != "c" {
		t.Errorf("first summary ID = %q, want %q", summaries[0].ID, "c")
	}
	if summaries[0].Timeframe != domain.TF1d {
		t.Errorf("Timeframe = %q, want %q", summaries[0].Timeframe, domain.TF1d)
	}

	all, err := s.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListResults(0) returned %d rows, want 3", len(all))
	}
}
