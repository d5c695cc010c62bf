// Package candles loads OHLCV candle series from files, remote APIs, and the
// local parquet store, validates them, and resamples them to coarser
// timeframes.
package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// Source provides a raw candle series. Key identifies the series for caching;
// two sources with the same key must yield the same candles.
type Source interface {
	Key() string
	Candles(ctx context.Context) ([]domain.Candle, error)
}

// ---------------------------------------------------------------------------
// SliceSource
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var _ Source = (*SliceSource)(nil)
var _ Source = (*JSONSource)(nil)

// SliceSource serves an in-memory candle slice. Used by tests and by callers
// that already hold a series.
type SliceSource struct {
	Name string
	Data []domain.Candle
}

// NewSliceSource wraps an in-memory candle series.
func NewSliceSource(name string, data []domain.Candle) *SliceSource {
	return &SliceSource{Name: name, Data: data}
}

func (s *SliceSource) Key() string { return "slice:" + s.Name }

// Candles returns a copy of the underlying slice.
func (s *SliceSource) Candles(_ context.Context) ([]domain.Candle, error) {
	out := make([]domain.Candle, len(s.Data))
	copy(out, s.Data)
	return out, nil
}

// ---------------------------------------------------------------------------
// JSONSource
// ---------------------------------------------------------------------------

// JSONSource reads candles from a JSON file holding an array of records with
// time/o/h/l/c/v fields.
type JSONSource struct {
	Path string
}

// NewJSONSource reads candles from the JSON file at path.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{Path: path}
}

func (s *JSONSource) Key() string { return "json:" + s.Path }

func (s *JSONSource) Candles(_ context.Context) ([]domain.Candle, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var out []domain.Candle
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path, err)
	}
	return out, nil
}
