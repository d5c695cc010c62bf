package strategy

import (
	"github.com/grigofil/mmvbtrade/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*MACrossover)(nil)

const maCrossoverRSIPeriod = 14

// MACrossover enters long when a fast simple moving average crosses above a
// slow one, and exits when it crosses back below. An RSI filter suppresses
// entries into overbought markets and exits out of oversold ones.
type MACrossover struct {
	fast       int
	slow       int
	overbought float64
	oversold   float64
}

// NewMACrossover builds a moving-average crossover strategy from a parameter
// map. The fast period must be strictly smaller than the slow period.
func NewMACrossover(params map[string]float64) (Strategy, error) {
	schema := maCrossoverSchema()
	if err := ValidateParams(schema, params); err != nil {
		return nil, err
	}
	p := ApplyDefaults(schema, params)

	fast := int(p["fast_period"])
	slow := int(p["slow_period"])
	if fast >= slow {
		return nil, &domain.ConfigurationError{
			Param:  "fast_period",
			Reason: "fast period must be smaller than slow period",
		}
	}

	return &MACrossover{
		fast:       fast,
		slow:       slow,
		overbought: p["overbought_level"],
		oversold:   p["oversold_level"],
	}, nil
}

func maCrossoverSchema() []ParamSpec {
	return []ParamSpec{
		{Name: "fast_period", Type: ParamInt, Min: 2, Max: 200, Default: 10},
		{Name: "slow_period", Type: ParamInt, Min: 3, Max: 500, Default: 30},
		{Name: "overbought_level", Type: ParamFloat, Min: 50, Max: 100, Default: 70},
		{Name: "oversold_level", Type: ParamFloat, Min: 0, Max: 50, Default: 30},
	}
}

func (s *MACrossover) ID() string { return "ma_crossover" }

func (s *MACrossover) Schema() []ParamSpec { return maCrossoverSchema() }

// WarmUp needs one candle beyond the slow period to detect a cross, and
// enough history for the RSI filter.
func (s *MACrossover) WarmUp() int {
	w := s.slow + 1
	if r := maCrossoverRSIPeriod + 1; r > w {
		w = r
	}
	return w
}

func (s *MACrossover) Evaluate(window []domain.Candle) domain.Signal {
	if len(window) < s.WarmUp() {
		return domain.Hold
	}
	prices := closes(window)
	prev := prices[:len(prices)-1]

	fastMA := sma(prices, s.fast)
	slowMA := sma(prices, s.slow)
	prevFast := sma(prev, s.fast)
	prevSlow := sma(prev, s.slow)
	r := rsi(prices, maCrossoverRSIPeriod)

	if fastMA > slowMA && prevFast <= prevSlow && r < s.overbought {
		return domain.Signal{Type: domain.SignalEnterLong}
	}
	if fastMA < slowMA && prevFast >= prevSlow && r > s.oversold {
		return domain.Signal{Type: domain.SignalExit}
	}
	return domain.Hold
}
