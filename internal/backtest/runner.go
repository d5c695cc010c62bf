// Package backtest orchestrates full strategy evaluation runs: loading
// candles, building the strategy, simulating execution, computing metrics,
// and sweeping parameter grids.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grigofil/mmvbtrade/internal/candles"
	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/metrics"
	"github.com/grigofil/mmvbtrade/internal/sim"
	"github.com/grigofil/mmvbtrade/internal/store"
	"github.com/grigofil/mmvbtrade/internal/strategy"
)

// Stage identifies which phase of a run produced an error.
type Stage string

const (
	StageParameter  Stage = "parameter"
	StageData       Stage = "data"
	StageSimulation Stage = "simulation"
)

// RunError wraps a failure with the stage it occurred in.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Request describes one backtest run.
type Request struct {
	StrategyID     string
	Symbol         string
	Timeframe      domain.Timeframe
	Start          time.Time // zero means from the first candle
	End            time.Time // zero means to the last candle
	InitialCapital float64
	CommissionPct  float64
	SlippagePct    float64
	SizePct        float64
	StopLossPct    float64
	TakeProfitPct  float64
	MaxOrderSize   float64
	MaxLeverage    float64
	Params         map[string]float64
}

// Runner executes backtest requests end to end. The result store is optional;
// nil disables persistence.
type Runner struct {
	loader   *candles.Loader
	registry *strategy.Registry
	results  store.ResultStore
	logger   *slog.Logger
}

// NewRunner wires a Runner with its collaborators. A nil logger uses the
// default.
func NewRunner(loader *candles.Loader, registry *strategy.Registry, results store.ResultStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{loader: loader, registry: registry, results: results, logger: logger}
}

// Run executes one backtest: validate, load, simulate, measure, persist.
func (r *Runner) Run(ctx context.Context, req Request, src candles.Source) (*domain.BacktestResult, error) {
	if err := r.validate(req); err != nil {
		return nil, &RunError{Stage: StageParameter, Err: err}
	}

	strat, err := r.registry.Create(req.StrategyID, req.Params)
	if err != nil {
		return nil, &RunError{Stage: StageParameter, Err: err}
	}

	series, err := r.loader.Load(ctx, src, req.Timeframe)
	if err != nil {
		return nil, &RunError{Stage: StageData, Err: err}
	}
	series = clipSeries(series, req.Start, req.End)
	if len(series) == 0 {
		return nil, &RunError{
			Stage: StageData,
			Err:   &domain.DataError{Index: -1, Reason: "no candles in requested range"},
		}
	}

	simulator := sim.New(sim.Config{
		InitialCapital: req.InitialCapital,
		CommissionPct:  req.CommissionPct,
		SlippagePct:    req.SlippagePct,
		SizePct:        req.SizePct,
		StopLossPct:    req.StopLossPct,
		TakeProfitPct:  req.TakeProfitPct,
		MaxOrderSize:   req.MaxOrderSize,
		MaxLeverage:    req.MaxLeverage,
	}, r.logger)

	simRes, err := simulator.Run(series, strat)
	if err != nil {
		stage := StageSimulation
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			stage = StageParameter
		}
		return nil, &RunError{Stage: stage, Err: err}
	}

	m := metrics.Compute(simRes.EquityCurve, simRes.Trades, req.InitialCapital, req.Timeframe)

	res := &domain.BacktestResult{
		ID:             uuid.NewString(),
		StrategyID:     req.StrategyID,
		Params:         strategy.ApplyDefaults(strat.Schema(), req.Params),
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		Start:          series[0].Timestamp,
		End:            series[len(series)-1].Timestamp,
		InitialCapital: req.InitialCapital,
		CommissionPct:  req.CommissionPct,
		SlippagePct:    req.SlippagePct,
		FinalEquity:    simRes.FinalEquity,
		Metrics:        m,
		Trades:         simRes.Trades,
		EquityCurve:    simRes.EquityCurve,
		Drawdowns:      metrics.DrawdownSeries(simRes.EquityCurve),
		MonthlyReturns: metrics.MonthlyReturns(simRes.EquityCurve),
		CreatedAt:      time.Now().UTC(),
	}

	if r.results != nil {
		if err := r.results.SaveResult(ctx, res); err != nil {
			r.logger.Warn("failed to persist backtest result", "id", res.ID, "error", err)
		}
	}

	r.logger.Info("backtest complete",
		"strategy", req.StrategyID,
		"symbol", req.Symbol,
		"trades", m.TotalTrades,
		"total_return", m.TotalReturn)

	return res, nil
}

func (r *Runner) validate(req Request) error {
	if !req.Timeframe.Valid() {
		return &domain.ConfigurationError{Param: "timeframe", Reason: fmt.Sprintf("unknown timeframe %q", req.Timeframe)}
	}
	if req.InitialCapital <= 0 {
		return &domain.ConfigurationError{Param: "initial_capital", Reason: "must be positive"}
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.Start.Before(req.End) {
		return &domain.ConfigurationError{Param: "start_date", Reason: "start must precede end"}
	}
	return nil
}

// clipSeries trims a candle series to [start, end]; zero bounds are open.
func clipSeries(series []domain.Candle, start, end time.Time) []domain.Candle {
	lo := 0
	hi := len(series)
	if !start.IsZero() {
		for lo < hi && series[lo].Timestamp.Before(start) {
			lo++
		}
	}
	if !end.IsZero() {
		for hi > lo && series[hi-1].Timestamp.After(end) {
			hi--
		}
	}
	return series[lo:hi]
}
