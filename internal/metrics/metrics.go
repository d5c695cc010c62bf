// Package metrics derives risk and return statistics from a completed
// simulation: equity-curve analytics, drawdowns, monthly returns, and
// per-trade aggregates. All functions are pure.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// PeriodsPerYear returns the number of candle periods in one year for
// annualization. Daily candles assume 252 trading days; intraday timeframes
// assume a continuously traded market.
func PeriodsPerYear(tf domain.Timeframe) float64 {
	if tf == domain.TF1d {
		return 252
	}
	minutes := tf.Duration().Minutes()
	return 525600 / minutes
}

// Compute derives the full metric set from an equity curve and trade ledger.
// Percentages in the result are percent values (5.0 = 5%).
func Compute(curve []domain.EquityPoint, trades []domain.Trade, initialCapital float64, tf domain.Timeframe) domain.Metrics {
	var m domain.Metrics

	if len(curve) > 0 && initialCapital > 0 {
		final := curve[len(curve)-1].Equity
		m.TotalReturn = (final/initialCapital - 1) * 100
	}

	// Annualized return compounds the total return over elapsed calendar time.
	// Equity at or below zero has no compounding rate; report the full loss.
	if len(curve) >= 2 {
		days := curve[len(curve)-1].Time.Sub(curve[0].Time).Hours() / 24
		years := days / 365.25
		if years > 0 {
			if base := 1 + m.TotalReturn/100; base > 0 {
				m.AnnualizedReturn = (math.Pow(base, 1/years) - 1) * 100
			} else {
				m.AnnualizedReturn = -100
			}
		}
	}

	returns := periodReturns(curve)
	if len(returns) > 0 {
		ppy := PeriodsPerYear(tf)
		mean := stat.Mean(returns, nil)
		sd := 0.0
		if len(returns) > 1 {
			sd = stat.StdDev(returns, nil)
		}
		m.Volatility = sd * math.Sqrt(ppy)
		if sd > 0 {
			m.SharpeRatio = mean / sd * math.Sqrt(ppy)
		}

		downside := make([]float64, 0, len(returns))
		for _, r := range returns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if len(downside) > 1 {
			if dsd := stat.StdDev(downside, nil); dsd > 0 {
				m.SortinoRatio = mean / dsd * math.Sqrt(ppy)
			}
		}
	}

	m.MaxDrawdown = maxDrawdown(curve)
	tradeStats(&m, trades)
	return m
}

// periodReturns computes the percent change between successive equity points.
func periodReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curve[i].Equity/prev-1)*100)
	}
	return out
}

// maxDrawdown scans the curve once, tracking the running peak, and returns
// the deepest percentage decline as a positive number.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (1 - p.Equity/peak) * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// DrawdownSeries returns the percentage decline below the running equity peak
// at every point of the curve. Values are zero at a new peak and negative in
// a drawdown.
func DrawdownSeries(curve []domain.EquityPoint) []domain.DrawdownPoint {
	out := make([]domain.DrawdownPoint, 0, len(curve))
	var peak float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (p.Equity/peak - 1) * 100
		}
		out = append(out, domain.DrawdownPoint{Time: p.Time, Drawdown: dd})
	}
	return out
}

// MonthlyReturns buckets the equity curve by calendar month and returns the
// compounded return of each month, in percent. A month's return is measured
// against the last equity of the previous month.
func MonthlyReturns(curve []domain.EquityPoint) []domain.MonthlyReturn {
	if len(curve) == 0 {
		return nil
	}

	var out []domain.MonthlyReturn
	month := curve[0].Time.UTC().Format("2006-01")
	start := curve[0].Equity
	last := curve[0].Equity

	for _, p := range curve[1:] {
		pm := p.Time.UTC().Format("2006-01")
		if pm != month {
			out = append(out, domain.MonthlyReturn{Month: month, Return: monthReturn(start, last)})
			month = pm
			start = last
		}
		last = p.Equity
	}
	out = append(out, domain.MonthlyReturn{Month: month, Return: monthReturn(start, last)})
	return out
}

func monthReturn(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end/start - 1) * 100
}

// tradeStats fills in the per-trade aggregates. Trades with zero net P&L
// count as losers.
func tradeStats(m *domain.Metrics, trades []domain.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		m.ProfitFactor = domain.Undefined
		return
	}

	var (
		sumPct, winPct, lossPct float64
		grossProfit, grossLoss  float64
		streak                  int
	)
	for _, t := range trades {
		sumPct += t.ReturnPct
		if t.NetPnL > 0 {
			m.WinningTrades++
			winPct += t.ReturnPct
			grossProfit += t.NetPnL
			if t.ReturnPct > m.LargestWin {
				m.LargestWin = t.ReturnPct
			}
			if streak > 0 {
				streak++
			} else {
				streak = 1
			}
			if streak > m.MaxConsecWins {
				m.MaxConsecWins = streak
			}
		} else {
			m.LosingTrades++
			lossPct += t.ReturnPct
			grossLoss += -t.NetPnL
			if t.ReturnPct < m.LargestLoss {
				m.LargestLoss = t.ReturnPct
			}
			if streak < 0 {
				streak--
			} else {
				streak = -1
			}
			if -streak > m.MaxConsecLosses {
				m.MaxConsecLosses = -streak
			}
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(trades)) * 100
	m.AvgTrade = sumPct / float64(len(trades))
	if m.WinningTrades > 0 {
		m.AvgWin = winPct / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossPct / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = domain.Ratio(grossProfit / grossLoss)
	} else {
		m.ProfitFactor = domain.Undefined
	}
}
