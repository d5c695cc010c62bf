package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grigofil/mmvbtrade/internal/candles"
	"github.com/grigofil/mmvbtrade/internal/config"
	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/store"
	"github.com/grigofil/mmvbtrade/internal/util"
)

func main() {
	var (
		symbol    = flag.String("symbol", "", "instrument symbol to fetch")
		tfCode    = flag.String("timeframe", "1d", "candle timeframe (1m,5m,15m,30m,1h,4h,1d)")
		startDate = flag.String("start", "", "start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "end date (YYYY-MM-DD)")
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

	if *symbol == "" || *startDate == "" || *endDate == "" {
		log.Fatal("-symbol, -start, and -end are required")
	}
	tf, err := domain.ParseTimeframe(*tfCode)
	if err != nil {
		log.Fatalf("invalid timeframe: %v", err)
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := candles.NewAlpacaSource(cfg.Alpaca, *symbol, tf, start, end)
	series, err := src.Candles(ctx)
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	if err := candles.Validate(series); err != nil {
		log.Fatalf("fetched series is invalid: %v", err)
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	if err := pstore.WriteCandles(ctx, *symbol, tf, series); err != nil {
		log.Fatalf("write failed: %v", err)
	}

	slog.Info("candles stored",
		"symbol", *symbol,
		"timeframe", tf,
		"candles", len(series),
		"data_dir", cfg.Storage.DataDir)
}
