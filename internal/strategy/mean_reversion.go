package strategy

import (
	"github.com/grigofil/mmvbtrade/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*MeanReversion)(nil)

// MeanReversion enters long when price falls below the lower Bollinger band
// while the RSI confirms an oversold market, and exits when price rises above
// the upper band while the RSI confirms overbought.
type MeanReversion struct {
	lookback   int
	stdDevs    float64
	rsiPeriod  int
	oversold   float64
	overbought float64
}

// NewMeanReversion builds a Bollinger-band mean-reversion strategy from a
// parameter map.
func NewMeanReversion(params map[string]float64) (Strategy, error) {
	schema := meanReversionSchema()
	if err := ValidateParams(schema, params); err != nil {
		return nil, err
	}
	p := ApplyDefaults(schema, params)

	return &MeanReversion{
		lookback:   int(p["lookback_period"]),
		stdDevs:    p["std_dev"],
		rsiPeriod:  int(p["rsi_period"]),
		oversold:   p["oversold_threshold"],
		overbought: p["overbought_threshold"],
	}, nil
}

func meanReversionSchema() []ParamSpec {
	return []ParamSpec{
		{Name: "lookback_period", Type: ParamInt, Min: 5, Max: 200, Default: 20},
		{Name: "std_dev", Type: ParamFloat, Min: 0.5, Max: 5, Default: 2},
		{Name: "rsi_period", Type: ParamInt, Min: 2, Max: 100, Default: 14},
		{Name: "oversold_threshold", Type: ParamFloat, Min: 0, Max: 50, Default: 30},
		{Name: "overbought_threshold", Type: ParamFloat, Min: 50, Max: 100, Default: 70},
	}
}

func (s *MeanReversion) ID() string { return "mean_reversion" }

func (s *MeanReversion) Schema() []ParamSpec { return meanReversionSchema() }

func (s *MeanReversion) WarmUp() int {
	w := s.lookback
	if s.rsiPeriod > w {
		w = s.rsiPeriod
	}
	return w + 1
}

func (s *MeanReversion) Evaluate(window []domain.Candle) domain.Signal {
	if len(window) < s.WarmUp() {
		return domain.Hold
	}
	prices := closes(window)
	price := prices[len(prices)-1]

	mid := sma(prices, s.lookback)
	sd := stdDev(prices, s.lookback)
	upper := mid + s.stdDevs*sd
	lower := mid - s.stdDevs*sd
	r := rsi(prices, s.rsiPeriod)

	if price < lower && r < s.oversold {
		return domain.Signal{Type: domain.SignalEnterLong}
	}
	if price > upper && r > s.overbought {
		return domain.Signal{Type: domain.SignalExit}
	}
	return domain.Hold
}
