package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/grigofil/mmvbtrade/internal/candles"
	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/strategy"
)

// waveSource generates a deterministic oscillating price series that produces
// crossover trades for any reasonable MA periods.
func waveSource(n int) *candles.SliceSource {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	series := make([]domain.Candle, n)
	for i := range series {
		price := 100 + 15*math.Sin(float64(i)/12)
		series[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles.NewSliceSource("wave", series)
}

func newRunner() *Runner {
	loader := candles.NewLoader(candles.NewCache(), nil)
	return NewRunner(loader, strategy.DefaultRegistry(), nil, nil)
}

func baseRequest() Request {
	return Request{
		StrategyID:     "ma_crossover",
		Symbol:         "SBER",
		Timeframe:      domain.TF1d,
		InitialCapital: 10000,
		SizePct:        1,
		Params:         map[string]float64{"fast_period": 5, "slow_period": 20},
	}
}

func TestRunnerRun(t *testing.T) {
	src := waveSource(300)
	res, err := newRunner().Run(context.Background(), baseRequest(), src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.ID == "" {
		t.Error("result has no ID")
	}
	if res.StrategyID != "ma_crossover" {
		t.Errorf("StrategyID = %q, want ma_crossover", res.StrategyID)
	}
	if len(res.EquityCurve) != 300 {
		t.Errorf("equity curve has %d points, want 300", len(res.EquityCurve))
	}
	if len(res.Drawdowns) != len(res.EquityCurve) {
		t.Errorf("drawdown series has %d points, want %d", len(res.Drawdowns), len(res.EquityCurve))
	}
	if len(res.Trades) == 0 {
		t.Error("oscillating series produced no trades")
	}
	if res.Metrics.TotalTrades != len(res.Trades) {
		t.Errorf("TotalTrades = %d, want %d", res.Metrics.TotalTrades, len(res.Trades))
	}

	// Defaults must be filled into the recorded parameters.
	if res.Params["overbought_level"] != 70 {
		t.Errorf("Params[overbought_level] = %v, want default 70", res.Params["overbought_level"])
	}

	// Reconciliation: final equity equals initial capital plus net trade P&L.
	var sum float64
	for _, tr := range res.Trades {
		sum += tr.NetPnL
	}
	if math.Abs(res.FinalEquity-(10000+sum)) > 1e-6 {
		t.Errorf("final equity %v does not reconcile with 10000 + %v", res.FinalEquity, sum)
	}
}

func TestRunnerStageErrors(t *testing.T) {
	src := waveSource(100)

	tests := []struct {
		name   string
		mutate func(*Request)
		stage  Stage
	}{
		{"unknown strategy", func(r *Request) { r.StrategyID = "nope" }, StageParameter},
		{"bad timeframe", func(r *Request) { r.Timeframe = "7m" }, StageParameter},
		{"zero capital", func(r *Request) { r.InitialCapital = 0 }, StageParameter},
		{"fast not below slow", func(r *Request) {
			r.Params = map[string]float64{"fast_period": 30, "slow_period": 30}
		}, StageParameter},
		{"inverted dates", func(r *Request) {
			r.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			r.End = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		}, StageParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := newRunner().Run(context.Background(), req, src)
			var re *RunError
			if !errors.As(err, &re) {
				t.Fatalf("Run = %v, want RunError", err)
			}
			if re.Stage != tt.stage {
				t.Errorf("stage = %v, want %v", re.Stage, tt.stage)
			}
		})
	}
}

func TestRunnerDataError(t *testing.T) {
	bad := candles.NewSliceSource("bad", []domain.Candle{
		{Timestamp: time.Now(), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
		{Timestamp: time.Now().Add(-time.Hour), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
	})

	_, err := newRunner().Run(context.Background(), baseRequest(), bad)
	var re *RunError
	if !errors.As(err, &re) {
		t.Fatalf("Run = %v, want RunError", err)
	}
	if re.Stage != StageData {
		t.Errorf("stage = %v, want data", re.Stage)
	}
	var de *domain.DataError
	if !errors.As(err, &de) {
		t.Errorf("RunError does not wrap the DataError: %v", err)
	}
}

func TestRunnerDeterminism(t *testing.T) {
	src := waveSource(250)
	runner := newRunner()
	req := baseRequest()

	a, err := runner.Run(context.Background(), req, src)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	b, err := runner.Run(context.Background(), req, src)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// Everything except the generated ID and creation time must match.
	a.ID, b.ID = "", ""
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Error("identical requests produced different results")
	}
}

func TestGridCombinations(t *testing.T) {
	g := Grid{"b": {1, 2}, "a": {3, 4}}
	combos := g.combinations()
	if len(combos) != 4 {
		t.Fatalf("got %d combinations, want 4", len(combos))
	}
	// Sorted parameter names make the expansion order deterministic: "a"
	// varies slowest.
	want := []map[string]float64{
		{"a": 3, "b": 1},
		{"a": 3, "b": 2},
		{"a": 4, "b": 1},
		{"a": 4, "b": 2},
	}
	for i, combo := range combos {
		for k, v := range want[i] {
			if combo[k] != v {
				t.Errorf("combo %d: %s = %v, want %v", i, k, combo[k], v)
			}
		}
	}
}

// Scenario C: sweep fast and slow MA periods; combinations with fast >= slow
// fail in isolation, the rest are ranked by Sharpe then total return.
func TestOptimizerSweep(t *testing.T) {
	src := waveSource(300)
	opt := NewOptimizer(newRunner(), 4, "sharpe_ratio", nil)

	req := baseRequest()
	req.Params = nil

	grid := Grid{
		"fast_period": {5, 10, 30},
		"slow_period": {20, 30},
	}
	res, err := opt.Optimize(context.Background(), req, src, grid)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if res.Cancelled {
		t.Error("sweep reported cancelled")
	}
	if len(res.Ranked)+len(res.Failures) != 6 {
		t.Fatalf("ranked %d + failed %d, want 6 total", len(res.Ranked), len(res.Failures))
	}
	if len(res.Failures) != 2 {
		t.Errorf("got %d failures, want 2 (fast >= slow)", len(res.Failures))
	}
	for _, f := range res.Failures {
		if f.Params["fast_period"] < f.Params["slow_period"] {
			t.Errorf("unexpected failure for valid combination %v: %s", f.Params, f.Reason)
		}
	}

	if res.Best == nil {
		t.Fatal("no best result")
	}
	if res.Best.Metrics.SharpeRatio != res.Ranked[0].Metrics.SharpeRatio {
		t.Error("best result does not match top ranked combination")
	}
	for i := 1; i < len(res.Ranked); i++ {
		prev, cur := res.Ranked[i-1].Metrics, res.Ranked[i].Metrics
		if cur.SharpeRatio > prev.SharpeRatio {
			t.Errorf("ranking violated at %d: %v after %v", i, cur.SharpeRatio, prev.SharpeRatio)
		}
		if cur.SharpeRatio == prev.SharpeRatio && cur.TotalReturn > prev.TotalReturn {
			t.Errorf("total-return tiebreak violated at %d", i)
		}
	}
}

func TestOptimizerDeterministicUnderParallelism(t *testing.T) {
	src := waveSource(300)
	req := baseRequest()
	req.Params = nil
	grid := Grid{
		"fast_period": {3, 5, 8, 10},
		"slow_period": {20, 30},
	}

	run := func(workers int) []int {
		opt := NewOptimizer(newRunner(), workers, "sharpe_ratio", nil)
		res, err := opt.Optimize(context.Background(), req, src, grid)
		if err != nil {
			t.Fatalf("Optimize: %v", err)
		}
		order := make([]int, len(res.Ranked))
		for i, c := range res.Ranked {
			order[i] = c.Index
		}
		return order
	}

	serial := run(1)
	parallel := run(8)
	if len(serial) != len(parallel) {
		t.Fatalf("serial ranked %d, parallel ranked %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("ranking differs between worker counts: %v vs %v", serial, parallel)
		}
	}
}

func TestOptimizerCancellation(t *testing.T) {
	src := waveSource(100)
	opt := NewOptimizer(newRunner(), 2, "sharpe_ratio", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := baseRequest()
	req.Params = nil
	res, err := opt.Optimize(ctx, req, src, Grid{"fast_period": {5, 6, 7}})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !res.Cancelled {
		t.Error("Cancelled flag not set on cancelled sweep")
	}
	if len(res.Ranked) != 0 {
		t.Errorf("got %d results after immediate cancel, want 0", len(res.Ranked))
	}
}

func TestOptimizerUnknownTargetMetric(t *testing.T) {
	src := waveSource(100)
	opt := NewOptimizer(newRunner(), 1, "coolness", nil)

	req := baseRequest()
	_, err := opt.Optimize(context.Background(), req, src, Grid{"fast_period": {5}})
	var ce *domain.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Optimize = %v, want ConfigurationError", err)
	}
}

func TestOptimizerEmptyGrid(t *testing.T) {
	src := waveSource(100)
	opt := NewOptimizer(newRunner(), 1, "sharpe_ratio", nil)

	_, err := opt.Optimize(context.Background(), baseRequest(), src, Grid{})
	var ce *domain.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Optimize = %v, want ConfigurationError", err)
	}
}
