package domain

import "fmt"

// DataError reports a problem with input candle data: empty series,
// non-monotonic timestamps, or malformed OHLCV values. Index is the position
// of the offending candle, or -1 when the error applies to the whole series.
type DataError struct {
	Index  int
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("data error: %s", e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("data error at candle %d (%s): %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("data error at candle %d: %s", e.Index, e.Reason)
}

// ConfigurationError reports invalid run parameters: unknown strategy IDs,
// out-of-range strategy parameters, or nonsensical cost settings.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// SimulationError reports an internal inconsistency detected while replaying
// a strategy over a candle series.
type SimulationError struct {
	CandleIndex int
	Reason      string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation error at candle %d: %s", e.CandleIndex, e.Reason)
}
