// Package sim replays a strategy over a historical candle series, modelling
// fills, slippage, commission, and protective stops, and produces the trade
// ledger and per-candle equity curve.
package sim

import (
	"log/slog"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"
	"github.com/grigofil/mmvbtrade/internal/strategy"
)

// Config holds the execution and risk parameters for one simulated run.
// Percentages are fractions (0.001 = 0.1%).
type Config struct {
	InitialCapital float64
	CommissionPct  float64 // charged per fill on notional
	SlippagePct    float64 // applied adversely to entry and exit fills
	SizePct        float64 // fraction of equity committed per entry
	StopLossPct    float64 // 0 disables
	TakeProfitPct  float64 // 0 disables
	MaxOrderSize   float64 // units, 0 disables
	MaxLeverage    float64 // notional / equity cap, 0 disables
}

// Result is the raw output of one simulated run, before metrics.
type Result struct {
	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint
	FinalEquity float64
}

// Simulator executes strategies against candle series. It is stateless across
// runs and safe for concurrent use.
type Simulator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Simulator. A nil logger uses the default.
func New(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{cfg: cfg, logger: logger}
}

// validate rejects nonsensical cost and sizing settings up front.
func (s *Simulator) validate() error {
	c := s.cfg
	switch {
	case c.InitialCapital <= 0:
		return &domain.ConfigurationError{Param: "initial_capital", Reason: "must be positive"}
	case c.CommissionPct < 0:
		return &domain.ConfigurationError{Param: "commission_pct", Reason: "must be non-negative"}
	case c.SlippagePct < 0:
		return &domain.ConfigurationError{Param: "slippage_pct", Reason: "must be non-negative"}
	case c.SizePct <= 0 || c.SizePct > 1:
		return &domain.ConfigurationError{Param: "size_pct", Reason: "must be in (0, 1]"}
	case c.StopLossPct < 0 || c.StopLossPct >= 1:
		return &domain.ConfigurationError{Param: "stop_loss_pct", Reason: "must be in [0, 1)"}
	case c.TakeProfitPct < 0:
		return &domain.ConfigurationError{Param: "take_profit_pct", Reason: "must be non-negative"}
	case c.MaxOrderSize < 0:
		return &domain.ConfigurationError{Param: "max_order_size", Reason: "must be non-negative"}
	case c.MaxLeverage < 0:
		return &domain.ConfigurationError{Param: "max_leverage", Reason: "must be non-negative"}
	}
	return nil
}

// position is the mutable state of one open position.
type position struct {
	dir        domain.Direction
	entryTime  time.Time
	entryPrice float64
	size       float64 // units
	commission float64 // entry fill commission
	stop       float64 // 0 disables
	take       float64 // 0 disables
}

// run is the working state of one simulation.
type run struct {
	cfg    Config
	cash   float64
	pos    *position
	trades []domain.Trade
	curve  []domain.EquityPoint
}

// Run replays the strategy over the candle series and returns the completed
// trade ledger and equity curve. The series must already be validated; the
// caller owns the returned result.
func (s *Simulator) Run(candles []domain.Candle, strat strategy.Strategy) (*Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	warmUp := strat.WarmUp()
	if warmUp < 1 {
		warmUp = 1
	}
	if warmUp > len(candles) {
		return nil, &domain.ConfigurationError{
			Param:  "strategy",
			Reason: "warm-up period exceeds candle series length",
		}
	}

	r := &run{
		cfg:    s.cfg,
		cash:   s.cfg.InitialCapital,
		trades: []domain.Trade{},
		curve:  make([]domain.EquityPoint, 0, len(candles)),
	}

	last := len(candles) - 1
	for i, c := range candles {
		closedNow := false

		// Protective exits take precedence over the strategy signal, and
		// block re-entry for the remainder of this candle.
		if r.pos != nil {
			closedNow = r.checkStops(c)
		}

		if !closedNow && i >= warmUp-1 {
			sig := strat.Evaluate(candles[i+1-warmUp : i+1])
			if err := r.apply(sig, c, i); err != nil {
				return nil, err
			}
		}

		// Any position still open on the final candle is liquidated at the
		// last close like a normal signal exit.
		if i == last && r.pos != nil {
			r.close(c.Timestamp, r.exitFill(c.Close), domain.CloseEndOfData)
		}

		r.curve = append(r.curve, domain.EquityPoint{
			Time:   c.Timestamp,
			Equity: r.equity(c.Close),
		})
	}

	final := r.curve[len(r.curve)-1].Equity
	s.logger.Debug("simulation complete",
		"candles", len(candles),
		"trades", len(r.trades),
		"final_equity", final)

	return &Result{
		Trades:      r.trades,
		EquityCurve: r.curve,
		FinalEquity: final,
	}, nil
}

// apply executes a strategy signal against the current state.
func (r *run) apply(sig domain.Signal, c domain.Candle, i int) error {
	switch sig.Type {
	case domain.SignalEnterLong:
		if r.pos == nil {
			return r.open(domain.Long, sig, c, i)
		}
	case domain.SignalEnterShort:
		if r.pos == nil {
			return r.open(domain.Short, sig, c, i)
		}
	case domain.SignalExit:
		if r.pos != nil {
			r.close(c.Timestamp, r.exitFill(c.Close), domain.CloseSignal)
		}
	}
	return nil
}

// open enters a position at the candle close, adjusted adversely for
// slippage, with stop and take levels fixed from the entry fill.
func (r *run) open(dir domain.Direction, sig domain.Signal, c domain.Candle, i int) error {
	if r.pos != nil {
		return &domain.SimulationError{CandleIndex: i, Reason: "entry requested with a position already open"}
	}

	var fill float64
	if dir == domain.Long {
		fill = c.Close * (1 + r.cfg.SlippagePct)
	} else {
		fill = c.Close * (1 - r.cfg.SlippagePct)
	}

	equity := r.cash
	sizePct := r.cfg.SizePct
	if sig.Size > 0 && sig.Size <= 1 {
		sizePct = sig.Size
	}
	notional := equity * sizePct
	if r.cfg.MaxLeverage > 0 && notional > equity*r.cfg.MaxLeverage {
		notional = equity * r.cfg.MaxLeverage
	}
	units := notional / fill
	if r.cfg.MaxOrderSize > 0 && units > r.cfg.MaxOrderSize {
		units = r.cfg.MaxOrderSize
	}
	if units <= 0 {
		return nil
	}

	commission := units * fill * r.cfg.CommissionPct
	if dir == domain.Long {
		r.cash -= units*fill + commission
	} else {
		r.cash += units*fill - commission
	}

	pos := &position{
		dir:        dir,
		entryTime:  c.Timestamp,
		entryPrice: fill,
		size:       units,
		commission: commission,
	}
	if r.cfg.StopLossPct > 0 {
		if dir == domain.Long {
			pos.stop = fill * (1 - r.cfg.StopLossPct)
		} else {
			pos.stop = fill * (1 + r.cfg.StopLossPct)
		}
	}
	if r.cfg.TakeProfitPct > 0 {
		if dir == domain.Long {
			pos.take = fill * (1 + r.cfg.TakeProfitPct)
		} else {
			pos.take = fill * (1 - r.cfg.TakeProfitPct)
		}
	}
	r.pos = pos
	return nil
}

// checkStops closes the position if the candle's range breaches its stop or
// take level; the stop is resolved first when both lie inside the range.
// Stop and take fills execute at the level itself, without slippage.
func (r *run) checkStops(c domain.Candle) bool {
	p := r.pos
	if p.dir == domain.Long {
		if p.stop > 0 && c.Low <= p.stop {
			r.close(c.Timestamp, p.stop, domain.CloseStopLoss)
			return true
		}
		if p.take > 0 && c.High >= p.take {
			r.close(c.Timestamp, p.take, domain.CloseTakeProfit)
			return true
		}
	} else {
		if p.stop > 0 && c.High >= p.stop {
			r.close(c.Timestamp, p.stop, domain.CloseStopLoss)
			return true
		}
		if p.take > 0 && c.Low <= p.take {
			r.close(c.Timestamp, p.take, domain.CloseTakeProfit)
			return true
		}
	}
	return false
}

// exitFill adjusts a close price adversely for slippage on a signal or
// end-of-data exit.
func (r *run) exitFill(closePrice float64) float64 {
	if r.pos.dir == domain.Long {
		return closePrice * (1 - r.cfg.SlippagePct)
	}
	return closePrice * (1 + r.cfg.SlippagePct)
}

// close settles the open position at the given fill price and appends the
// completed trade to the ledger.
func (r *run) close(at time.Time, fill float64, reason domain.CloseReason) {
	p := r.pos
	commission := p.size * fill * r.cfg.CommissionPct

	var gross float64
	if p.dir == domain.Long {
		r.cash += p.size*fill - commission
		gross = p.size * (fill - p.entryPrice)
	} else {
		r.cash -= p.size*fill + commission
		gross = p.size * (p.entryPrice - fill)
	}
	net := gross - p.commission - commission

	r.trades = append(r.trades, domain.Trade{
		Direction:  p.dir,
		EntryTime:  p.entryTime,
		ExitTime:   at,
		EntryPrice: p.entryPrice,
		ExitPrice:  fill,
		Size:       p.size,
		GrossPnL:   gross,
		NetPnL:     net,
		ReturnPct:  net / (p.entryPrice * p.size) * 100,
		Holding:    at.Sub(p.entryTime),
		Reason:     reason,
	})
	r.pos = nil
}

// equity marks the account to market at the given close price.
func (r *run) equity(closePrice float64) float64 {
	if r.pos == nil {
		return r.cash
	}
	if r.pos.dir == domain.Long {
		return r.cash + r.pos.size*closePrice
	}
	return r.cash - r.pos.size*closePrice
}
