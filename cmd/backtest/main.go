package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
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
		paramStr  = flag.String("params", "", "strategy parameters, e.g. fast_period=5,slow_period=20")
		save      = flag.Bool("save", false, "persist the result to the sqlite store")
	)
	flag.Parse()

	cfg := loadConfig()
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	tf, err := domain.ParseTimeframe(*tfCode)
	if err != nil {
		log.Fatalf("invalid timeframe: %v", err)
	}
	start, end := parseDates(*startDate, *endDate)

	params, err := parseParams(*paramStr)
	if err != nil {
		log.Fatalf("invalid params: %v", err)
	}

	src := buildSource(cfg, *csvPath, *jsonPath, *useStore, *symbol, tf, start, end)

	var results store.ResultStore
	if *save {
		sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open result store: %v", err)
		}
		defer sqlite.Close()
		results = sqlite
	}

	runner := backtest.NewRunner(
		candles.NewLoader(candles.NewCache(), logger),
		strategy.DefaultRegistry(),
		results,
		logger,
	)

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
		Params:         params,
	}

	res, err := runner.Run(context.Background(), req, src)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printSummary(res)
}

func loadConfig() *config.Config {
	cfgPath := "config/mmvbtrade.yaml"
	if p := os.Getenv("MMVBTRADE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Default()
		}
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
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

func parseParams(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func buildSource(cfg *config.Config, csvPath, jsonPath string, useStore bool, symbol string, tf domain.Timeframe, start, end time.Time) candles.Source {
	switch {
	case csvPath != "":
		return candles.NewCSVSource(csvPath)
	case jsonPath != "":
		return candles.NewJSONSource(jsonPath)
	case useStore:
		if symbol == "" {
			log.Fatal("-store requires -symbol")
		}
		if start.IsZero() || end.IsZero() {
			log.Fatal("-store requires -start and -end")
		}
		return candles.NewStoreSource(store.NewParquetStore(cfg.Storage.DataDir), symbol, tf, start, end)
	default:
		if symbol == "" || start.IsZero() || end.IsZero() {
			log.Fatal("remote fetch requires -symbol, -start, and -end")
		}
		return candles.NewAlpacaSource(cfg.Alpaca, symbol, tf, start, end)
	}
}

func printSummary(res *domain.BacktestResult) {
	m := res.Metrics
	fmt.Printf("Backtest %s\n", res.ID)
	fmt.Printf("  strategy:          %s %v\n", res.StrategyID, res.Params)
	fmt.Printf("  symbol/timeframe:  %s %s\n", res.Symbol, res.Timeframe)
	fmt.Printf("  period:            %s .. %s\n",
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Printf("  initial capital:   %.2f\n", res.InitialCapital)
	fmt.Printf("  final equity:      %.2f\n", res.FinalEquity)
	fmt.Println()
	fmt.Printf("  total return:      %.2f%%\n", m.TotalReturn)
	fmt.Printf("  annualized return: %.2f%%\n", m.AnnualizedReturn)
	fmt.Printf("  sharpe ratio:      %.2f\n", m.SharpeRatio)
	fmt.Printf("  sortino ratio:     %.2f\n", m.SortinoRatio)
	fmt.Printf("  max drawdown:      %.2f%%\n", m.MaxDrawdown)
	fmt.Printf("  trades:            %d (win rate %.1f%%)\n", m.TotalTrades, m.WinRate)
	if m.ProfitFactor.Defined() {
		fmt.Printf("  profit factor:     %.2f\n", float64(m.ProfitFactor))
	} else {
		fmt.Printf("  profit factor:     n/a (no losing trades)\n")
	}
}
