// Package domain defines the shared value types that flow through the
// backtesting engine: candles, signals, trades, equity samples, and the
// aggregated result records.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Timeframe
// ---------------------------------------------------------------------------

// Timeframe is a candle bucket size, one of a fixed enumerated set.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// ParseTimeframe converts a timeframe code ("1m", "5m", "15m", "30m", "1h",
// "4h", "1d") to a Timeframe. Unknown codes are rejected.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the wall-clock length of one candle bucket.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Valid reports whether tf is one of the supported timeframe codes.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

func (tf Timeframe) String() string { return string(tf) }

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Candle is one OHLCV record for a fixed time bucket. Candles are immutable
// once loaded; a series is an append-only sequence with strictly increasing
// timestamps.
type Candle struct {
	Timestamp time.Time `json:"time"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalType is a strategy's directive for the current candle.
type SignalType string

const (
	SignalHold       SignalType = "hold"
	SignalEnterLong  SignalType = "enter_long"
	SignalEnterShort SignalType = "enter_short"
	SignalExit       SignalType = "exit"
)

// Signal is emitted by a strategy for a single candle and consumed
// immediately by the simulator. Size is an optional sizing hint as a fraction
// of current equity; zero means "use the configured default".
type Signal struct {
	Type SignalType
	Size float64
}

// Hold is the neutral signal.
var Hold = Signal{Type: SignalHold}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// Direction is the side of a position or trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseSignal     CloseReason = "signal"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseEndOfData  CloseReason = "end_of_data"
)

// Trade is the immutable record of one completed position lifecycle.
// EntryPrice and ExitPrice are fill prices, already adjusted for slippage;
// NetPnL is net of commission on both fills.
type Trade struct {
	Direction  Direction     `json:"type"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Size       float64       `json:"size"` // units of the instrument
	GrossPnL   float64       `json:"gross_pnl"`
	NetPnL     float64       `json:"pnl"`
	ReturnPct  float64       `json:"pnl_percent"`
	Holding    time.Duration `json:"holding"`
	Reason     CloseReason   `json:"reason"`
}

// ---------------------------------------------------------------------------
// Equity curve
// ---------------------------------------------------------------------------

// EquityPoint is one mark-to-market sample of account value, taken once per
// candle whether or not a position is open.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// DrawdownPoint is the percentage decline below the running equity peak at
// one point in time. Zero at a new peak, negative otherwise.
type DrawdownPoint struct {
	Time     time.Time `json:"time"`
	Drawdown float64   `json:"drawdown"`
}

// MonthlyReturn is the equity-curve return over one calendar month,
// in percent. Month is formatted as "2006-01".
type MonthlyReturn struct {
	Month  string  `json:"month"`
	Return float64 `json:"return"`
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Ratio is a metric value that may be undefined; an all-winning trade ledger
// has an infinite profit factor. Non-finite values marshal as JSON null
// instead of breaking the encoder.
type Ratio float64

// Undefined is the sentinel for ratios whose denominator is empty.
var Undefined = Ratio(math.Inf(1))

// Defined reports whether the ratio holds a finite value.
func (r Ratio) Defined() bool {
	f := float64(r)
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// MarshalJSON renders non-finite ratios as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON maps null back to the undefined sentinel.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Undefined
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Metrics is the derived risk/return statistics of one backtest run.
// Percentages are expressed as percent (5.0 = 5%), not fractions.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     Ratio   `json:"profit_factor"`
	AvgTrade         float64 `json:"avg_trade"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	LargestWin       float64 `json:"largest_win"`
	LargestLoss      float64 `json:"largest_loss"`
	MaxConsecWins    int     `json:"max_consecutive_wins"`
	MaxConsecLosses  int     `json:"max_consecutive_losses"`
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// BacktestResult aggregates the inputs, outputs, and derived metrics of one
// backtest run. It is immutable once produced and identified by a generated
// ID used for later retrieval.
type BacktestResult struct {
	ID             string             `json:"id"`
	StrategyID     string             `json:"strategy"`
	Params         map[string]float64 `json:"parameters"`
	Symbol         string             `json:"symbol"`
	Timeframe      Timeframe          `json:"timeframe"`
	Start          time.Time          `json:"start_date"`
	End            time.Time          `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`
	CommissionPct  float64            `json:"commission_pct"`
	SlippagePct    float64            `json:"slippage_pct"`
	FinalEquity    float64            `json:"final_equity"`
	Metrics        Metrics            `json:"metrics"`
	Trades         []Trade            `json:"trades"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	Drawdowns      []DrawdownPoint    `json:"drawdowns"`
	MonthlyReturns []MonthlyReturn    `json:"monthly_returns"`
	CreatedAt      time.Time          `json:"created_at"`
}
