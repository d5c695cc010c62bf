package candles

import (
	"context"
	"fmt"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/store"
)

var _ Source = (*StoreSource)(nil)

// StoreSource reads candles previously persisted to a CandleStore.
type StoreSource struct {
	Store     store.CandleStore
	Symbol    string
	Timeframe domain.Timeframe
	Start     time.Time
	End       time.Time
}

// NewStoreSource reads one symbol and time range from a candle store.
func NewStoreSource(cs store.CandleStore, symbol string, tf domain.Timeframe, start, end time.Time) *StoreSource {
	return &StoreSource{Store: cs, Symbol: symbol, Timeframe: tf, Start: start, End: end}
}

func (s *StoreSource) Key() string {
	return fmt.Sprintf("store:%s:%s:%d:%d",
		s.Symbol, s.Timeframe, s.Start.Unix(), s.End.Unix())
}

func (s *StoreSource) Candles(ctx context.Context) ([]domain.Candle, error) {
	return s.Store.ReadCandles(ctx, s.Symbol, s.Timeframe, s.Start, s.End)
}
