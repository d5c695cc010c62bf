// Package strategy defines the trading strategy interface, parameter schema
// validation, and a registry of strategy factories.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// Strategy evaluates a window of historical candles and emits a signal for
// the most recent one. Implementations must be deterministic and side-effect
// free: the same window always yields the same signal.
type Strategy interface {
	// ID returns the unique identifier for this strategy.
	ID() string

	// Schema describes the tunable parameters and their bounds.
	Schema() []ParamSpec

	// WarmUp returns the number of candles required before the strategy can
	// produce its first meaningful signal.
	WarmUp() int

	// Evaluate inspects the window (oldest first, current candle last) and
	// returns the signal for the current candle. The window always holds at
	// least WarmUp() candles.
	Evaluate(window []domain.Candle) domain.Signal
}

// ---------------------------------------------------------------------------
// Parameter schema
// ---------------------------------------------------------------------------

// ParamType distinguishes integer-valued parameters from real-valued ones.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
)

// ParamSpec declares one tunable strategy parameter.
type ParamSpec struct {
	Name    string
	Type    ParamType
	Min     float64
	Max     float64
	Default float64
}

// ApplyDefaults returns a copy of params with every parameter missing from
// the input filled in from the schema defaults.
func ApplyDefaults(schema []ParamSpec, params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(schema))
	for _, spec := range schema {
		out[spec.Name] = spec.Default
	}
	for name, v := range params {
		out[name] = v
	}
	return out
}

// ValidateParams checks every supplied parameter against the schema: the name
// must be declared, the value must lie within [Min, Max], and int parameters
// must hold whole numbers.
func ValidateParams(schema []ParamSpec, params map[string]float64) error {
	specs := make(map[string]ParamSpec, len(schema))
	for _, spec := range schema {
		specs[spec.Name] = spec
	}

	for name, v := range params {
		spec, ok := specs[name]
		if !ok {
			return &domain.ConfigurationError{Param: name, Reason: "unknown parameter"}
		}
		if v < spec.Min || v > spec.Max {
			return &domain.ConfigurationError{
				Param:  name,
				Reason: fmt.Sprintf("value %v outside [%v, %v]", v, spec.Min, spec.Max),
			}
		}
		if spec.Type == ParamInt && v != math.Trunc(v) {
			return &domain.ConfigurationError{
				Param:  name,
				Reason: fmt.Sprintf("value %v must be an integer", v),
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Factory builds a strategy instance from a parameter map. Parameters not
// present in the map take their schema defaults.
type Factory func(params map[string]float64) (Strategy, error)

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with all built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ma_crossover", NewMACrossover)
	r.Register("mean_reversion", NewMeanReversion)
	return r
}

// Register adds a factory under the given strategy ID.
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// Create builds a strategy by ID. An unknown ID is a ConfigurationError.
func (r *Registry) Create(id string, params map[string]float64) (Strategy, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, &domain.ConfigurationError{Param: "strategy", Reason: fmt.Sprintf("unknown strategy %q", id)}
	}
	return f(params)
}

// List returns a sorted slice of all registered strategy IDs.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
