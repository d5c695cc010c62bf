package strategy

import (
	"github.com/montanaflynn/stats"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// closes extracts closing prices from a candle window.
func closes(window []domain.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

// sma returns the simple moving average of the last period values. The input
// must hold at least period values.
func sma(values []float64, period int) float64 {
	m, err := stats.Mean(values[len(values)-period:])
	if err != nil {
		return 0
	}
	return m
}

// stdDev returns the sample standard deviation of the last period values.
func stdDev(values []float64, period int) float64 {
	sd, err := stats.StandardDeviationSample(values[len(values)-period:])
	if err != nil {
		return 0
	}
	return sd
}

// rsi computes the relative strength index over the last period price
// changes, using a simple average of gains and losses. The input must hold at
// least period+1 values.
func rsi(values []float64, period int) float64 {
	deltas := values[len(values)-period-1:]

	var gains, losses float64
	for i := 1; i < len(deltas); i++ {
		change := deltas[i] - deltas[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
