package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/grigofil/mmvbtrade/internal/backtest"
	"github.com/grigofil/mmvbtrade/internal/candles"
	"github.com/grigofil/mmvbtrade/internal/config"
	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/store"
	"github.com/grigofil/mmvbtrade/internal/strategy"
	"github.com/grigofil/mmvbtrade/internal/util"
)

func main() {
	var (
		csvPath   = flag.String("csv", "", "load candles from a CSV file")
		jsonPath  = flag.String("json", "", "load candles from a JSON file")
		useStore  = flag.Bool("store", false, "load candles from the local parquet store")
		symbol    = flag.String("symbol", "", "instrument symbol")
		tfCode    = flag.String("timeframe", "1d", "candle timeframe (1m,5m,15m,30m,1h,4h,1d)")
		startDate = flag.String("start", "", "start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "end date (YYYY-MM-DD)")
		stratID   = flag.String("strategy", "ma_crossover", "strategy ID")
		gridStr   = flag.String("grid", "", "parameter grid, e.g. fast_period=5,10;slow_period=20,30")
		target    = flag.String("target", "", "target metric (defaults to config optimize.target_metric)")
		workers   = flag.Int("workers", 0, "worker pool size (defaults to config optimize.max_workers)")
		top       = flag.Int("top", 10, "number of ranked combinations to print")
	)
	flag.Parse()

	cfgPath := "config/mmvbtrade.yaml"
	if p := os.Getenv("MMVBTRADE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	tf, err := domain.ParseTimeframe(*tfCode)
	if err != nil {
		log.Fatalf("invalid timeframe: %v", err)
	}
	start, end := parseDates(*startDate, *endDate)

	grid, err := parseGrid(*gridStr)
	if err != nil {
		log.Fatalf("invalid grid: %v", err)
	}

	if *target == "" {
		*target = cfg.Optimize.TargetMetric
	}
	if *workers <= 0 {
		*workers = cfg.Optimize.MaxWorkers
	}

	src := buildSource(cfg, *csvPath, *jsonPath, *useStore, *symbol, tf, start, end)

	runner := backtest.NewRunner(
		candles.NewLoader(candles.NewCache(), logger),
		strategy.DefaultRegistry(),
		nil,
		logger,
	)
	opt := backtest.NewOptimizer(runner, *workers, *target, logger)

	req := backtest.Request{
		StrategyID:     *stratID,
		Symbol:         *symbol,
		Timeframe:      tf,
		Start:          start,
		End:            end,
		InitialCapital: cfg.Backtest.InitialCapital,
		CommissionPct:  cfg.Backtest.CommissionPct,
		SlippagePct:    cfg.Backtest.SlippagePct,
		SizePct:        cfg.Backtest.SizePct,
		StopLossPct:    cfg.Backtest.StopLossPct,
		TakeProfitPct:  cfg.Backtest.TakeProfitPct,
		MaxOrderSize:   cfg.Backtest.MaxOrderSize,
		MaxLeverage:    cfg.Backtest.MaxLeverage,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := opt.Optimize(ctx, req, src, grid)
	if err != nil {
		log.Fatalf("optimization failed: %v", err)
	}

	printLeaderboard(res, *target, *top)
}

func parseDates(start, end string) (time.Time, time.Time) {
	var s, e time.Time
	var err error
	if start != "" {
		s, err = time.Parse("2006-01-02", start)
		if err != nil {
			log.Fatalf("invalid start date: %v", err)
		}
	}
	if end != "" {
		e, err = time.Parse("2006-01-02", end)
		if err != nil {
			log.Fatalf("invalid end date: %v", err)
		}
	}
	return s, e
}

// parseGrid parses "fast_period=5,10;slow_period=20,30" into a Grid.
func parseGrid(s string) (backtest.Grid, error) {
	if s == "" {
		return nil, fmt.Errorf("a -grid is required")
	}
	grid := make(backtest.Grid)
	for _, part := range strings.Split(s, ";") {
		name, values, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("expected name=v1,v2,..., got %q", part)
		}
		for _, raw := range strings.Split(values, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", name, err)
			}
			grid[name] = append(grid[name], v)
		}
	}
	return grid, nil
}

func buildSource(cfg *config.Config, csvPath, jsonPath string, useStore bool, symbol string, tf domain.Timeframe, start, end time.Time) candles.Source {
	switch {
	case csvPath != "":
		return candles.NewCSVSource(csvPath)
	case jsonPath != "":
		return candles.NewJSONSource(jsonPath)
	case useStore:
		if symbol == "" || start.IsZero() || end.IsZero() {
			log.Fatal("-store requires -symbol, -start, and -end")
		}
		return candles.NewStoreSource(store.NewParquetStore(cfg.Storage.DataDir), symbol, tf, start, end)
	default:
		if symbol == "" || start.IsZero() || end.IsZero() {
			log.Fatal("remote fetch requires -symbol, -start, and -end")
		}
		return candles.NewAlpacaSource(cfg.Alpaca, symbol, tf, start, end)
	}
}

func printLeaderboard(res *backtest.OptimizationResult, target string, top int) {
	if res.Cancelled {
		fmt.Println("sweep cancelled; partial results:")
	}
	fmt.Printf("%-4s  %-40s  %-12s  %-12s  %-10s\n", "#", "parameters", target, "total_return", "trades")
	for i, c := range res.Ranked {
		if i >= top {
			break
		}
		value := "n/a"
		if v, err := metricDisplay(c.Metrics, target); err == nil {
			value = fmt.Sprintf("%.4f", v)
		}
		fmt.Printf("%-4d  %-40s  %-12s  %-12.2f  %-10d\n",
			i+1, formatParams(c.Params), value, c.Metrics.TotalReturn, c.Metrics.TotalTrades)
	}

	if len(res.Failures) > 0 {
		fmt.Printf("\n%d combination(s) failed:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Printf("  %s: %s\n", formatParams(f.Params), f.Reason)
		}
	}
	if res.Best != nil {
		fmt.Printf("\nbest result: %s\n", res.Best.ID)
	}
}

func metricDisplay(m domain.Metrics, target string) (float64, error) {
	switch target {
	case "sharpe_ratio":
		return m.SharpeRatio, nil
	case "sortino_ratio":
		return m.SortinoRatio, nil
	case "total_return":
		return m.TotalReturn, nil
	case "annualized_return":
		return m.AnnualizedReturn, nil
	case "win_rate":
		return m.WinRate, nil
	case "profit_factor":
		return float64(m.ProfitFactor), nil
	case "max_drawdown":
		return m.MaxDrawdown, nil
	}
	return 0, fmt.Errorf("unknown metric %s", target)
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, params[name])
	}
	return strings.Join(parts, " ")
}
