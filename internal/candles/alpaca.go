package candles

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/grigofil/mmvbtrade/internal/config"
	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/util"
)

var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches candles from the Alpaca market-data API. Requests are
// rate limited and retried with exponential backoff.
type AlpacaSource struct {
	client    *marketdata.Client
	limiter   *util.RateLimiter
	Symbol    string
	Timeframe domain.Timeframe
	Start     time.Time
	End       time.Time
}

// NewAlpacaSource creates a candle source for one symbol and time range
// against the Alpaca data API.
func NewAlpacaSource(cfg config.Alpaca, symbol string, tf domain.Timeframe, start, end time.Time) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
	})
	return &AlpacaSource{
		client:    client,
		limiter:   util.NewRateLimiter(200), // Alpaca free-tier data limit
		Symbol:    symbol,
		Timeframe: tf,
		Start:     start,
		End:       end,
	}
}

func (s *AlpacaSource) Key() string {
	return fmt.Sprintf("alpaca:%s:%s:%d:%d",
		s.Symbol, s.Timeframe, s.Start.Unix(), s.End.Unix())
}

// alpacaTimeFrame maps an engine timeframe to the Alpaca request timeframe.
func alpacaTimeFrame(tf domain.Timeframe) marketdata.TimeFrame {
	switch tf {
	case domain.TF1m:
		return marketdata.OneMin
	case domain.TF5m:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case domain.TF15m:
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case domain.TF30m:
		return marketdata.NewTimeFrame(30, marketdata.Min)
	case domain.TF1h:
		return marketdata.OneHour
	case domain.TF4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour)
	default:
		return marketdata.OneDay
	}
}

func (s *AlpacaSource) Candles(ctx context.Context) ([]domain.Candle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bars []marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		var err error
		bars, err = s.client.GetBars(s.Symbol, marketdata.GetBarsRequest{
			TimeFrame: alpacaTimeFrame(s.Timeframe),
			Start:     s.Start,
			End:       s.End,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars for %s: %w", s.Timeframe, s.Symbol, err)
	}

	out := make([]domain.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Candle{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return out, nil
}
