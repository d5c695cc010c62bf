package backtest

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/grigofil/mmvbtrade/internal/candles"
	"github.com/grigofil/mmvbtrade/internal/domain"
)

// Grid maps each parameter name to its explicit candidate values.
type Grid map[string][]float64

// combinations expands the grid into its full Cartesian product. Parameter
// names are visited in sorted order so the combination index is deterministic.
func (g Grid) combinations() []map[string]float64 {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		next := make([]map[string]float64, 0, len(combos)*len(g[name]))
		for _, base := range combos {
			for _, v := range g[name] {
				combo := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					combo[k] = bv
				}
				combo[name] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// ComboResult is one successfully evaluated parameter combination.
type ComboResult struct {
	Index   int
	Params  map[string]float64
	Metrics domain.Metrics
	Result  *domain.BacktestResult
}

// ComboFailure records a combination that could not be evaluated. Failures
// never abort the sweep.
type ComboFailure struct {
	Index  int
	Params map[string]float64
	Reason string
}

// OptimizationResult is the outcome of a parameter sweep: combinations ranked
// by the target metric, the failures, and the best full result.
type OptimizationResult struct {
	Ranked    []ComboResult
	Failures  []ComboFailure
	Best      *domain.BacktestResult
	Cancelled bool
}

// Optimizer sweeps a parameter grid with a bounded worker pool. The ranked
// output is deterministic regardless of worker scheduling.
type Optimizer struct {
	runner  *Runner
	workers int
	target  string
	logger  *slog.Logger
}

// NewOptimizer creates an Optimizer running at most workers combinations
// concurrently, ranking by the named target metric.
func NewOptimizer(runner *Runner, workers int, target string, logger *slog.Logger) *Optimizer {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{runner: runner, workers: workers, target: target, logger: logger}
}

// Optimize evaluates every grid combination against the shared candle source
// and returns the ranked results. Per-combination failures are recorded, not
// fatal. Cancelling the context stops dispatching new combinations; completed
// results are kept and the Cancelled flag is set.
func (o *Optimizer) Optimize(ctx context.Context, req Request, src candles.Source, grid Grid) (*OptimizationResult, error) {
	if len(grid) == 0 {
		return nil, &domain.ConfigurationError{Param: "grid", Reason: "no parameters to sweep"}
	}
	if _, err := metricValue(domain.Metrics{}, o.target); err != nil {
		return nil, err
	}

	combos := grid.combinations()

	// Warm the loader cache once so workers share one load instead of racing
	// the source.
	if _, err := o.runner.loader.Load(ctx, src, req.Timeframe); err != nil {
		return nil, &RunError{Stage: StageData, Err: err}
	}

	slots := make([]comboSlot, len(combos))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				slots[idx] = o.evaluate(ctx, req, src, combos[idx], idx)
			}
		}()
	}

	cancelled := false
dispatch:
	for idx := range combos {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	out := &OptimizationResult{Cancelled: cancelled}
	for _, s := range slots {
		if s.result != nil {
			out.Ranked = append(out.Ranked, *s.result)
		} else if s.failure != nil {
			out.Failures = append(out.Failures, *s.failure)
		}
	}

	o.rank(out.Ranked)
	if len(out.Ranked) > 0 {
		out.Best = out.Ranked[0].Result
	}

	o.logger.Info("optimization complete",
		"combinations", len(combos),
		"succeeded", len(out.Ranked),
		"failed", len(out.Failures),
		"cancelled", cancelled)

	return out, nil
}

// comboSlot holds the outcome of one combination, indexed by its position in
// the grid expansion.
type comboSlot struct {
	result  *ComboResult
	failure *ComboFailure
}

func (o *Optimizer) evaluate(ctx context.Context, req Request, src candles.Source, params map[string]float64, idx int) (s comboSlot) {
	merged := make(map[string]float64, len(req.Params)+len(params))
	for k, v := range req.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	comboReq := req
	comboReq.Params = merged

	res, err := o.runner.Run(ctx, comboReq, src)
	if err != nil {
		s.failure = &ComboFailure{Index: idx, Params: params, Reason: err.Error()}
		return s
	}
	s.result = &ComboResult{Index: idx, Params: params, Metrics: res.Metrics, Result: res}
	return s
}

// rank orders results by the target metric descending, then total return
// descending, then combination index ascending.
func (o *Optimizer) rank(results []ComboResult) {
	sort.SliceStable(results, func(i, j int) bool {
		vi, _ := metricValue(results[i].Metrics, o.target)
		vj, _ := metricValue(results[j].Metrics, o.target)
		if vi != vj {
			return vi > vj
		}
		if results[i].Metrics.TotalReturn != results[j].Metrics.TotalReturn {
			return results[i].Metrics.TotalReturn > results[j].Metrics.TotalReturn
		}
		return results[i].Index < results[j].Index
	})
}

// metricValue extracts a rankable value from a metric set. Higher is always
// better; drawdown is negated accordingly.
func metricValue(m domain.Metrics, name string) (float64, error) {
	switch name {
	case "sharpe_ratio":
		return m.SharpeRatio, nil
	case "sortino_ratio":
		return m.SortinoRatio, nil
	case "total_return":
		return m.TotalReturn, nil
	case "annualized_return":
		return m.AnnualizedReturn, nil
	case "win_rate":
		return m.WinRate, nil
	case "profit_factor":
		return float64(m.ProfitFactor), nil
	case "max_drawdown":
		return -m.MaxDrawdown, nil
	default:
		return 0, &domain.ConfigurationError{Param: "target_metric", Reason: "unknown metric " + name}
	}
}
