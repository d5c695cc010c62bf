package candles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

func minuteCandles(start time.Time, n int) []domain.Candle {
	series := make([]domain.Candle, n)
	for i := range series {
		base := 100.0 + float64(i)
		series[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      base,
			High:      base + 2,
			Low:       base - 2,
			Close:     base + 1,
			Volume:    10,
		}
	}
	return series
}

func TestValidate(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	valid := minuteCandles(start, 5)

	if err := Validate(valid); err != nil {
		t.Fatalf("Validate on good series: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]domain.Candle)
		index   int
		field   string
	}{
		{"duplicate timestamp", func(s []domain.Candle) { s[2].Timestamp = s[1].Timestamp }, 2, "time"},
		{"out of order", func(s []domain.Candle) { s[3].Timestamp = s[0].Timestamp }, 3, "time"},
		{"zero price", func(s []domain.Candle) { s[1].Close = 0 }, 1, "close"},
		{"negative volume", func(s []domain.Candle) { s[4].Volume = -1 }, 4, "volume"},
		{"high below close", func(s []domain.Candle) { s[2].High = s[2].Close - 5 }, 2, "high"},
		{"low above open", func(s []domain.Candle) { s[2].Low = s[2].Open + 5 }, 2, "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := minuteCandles(start, 5)
			tt.mutate(series)
			err := Validate(series)
			var de *domain.DataError
			if !errors.As(err, &de) {
				t.Fatalf("Validate = %v, want DataError", err)
			}
			if de.Index != tt.index {
				t.Errorf("DataError.Index = %d, want %d", de.Index, tt.index)
			}
			if de.Field != tt.field {
				t.Errorf("DataError.Field = %q, want %q", de.Field, tt.field)
			}
		})
	}
}

func TestValidateEmpty(t *testing.T) {
	err := Validate(nil)
	var de *domain.DataError
	if !errors.As(err, &de) {
		t.Fatalf("Validate(nil) = %v, want DataError", err)
	}
	if de.Index != -1 {
		t.Errorf("DataError.Index = %d, want -1", de.Index)
	}
}

func TestResample(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	series := minuteCandles(start, 10) // 10:00 .. 10:09

	got := Resample(series, domain.TF5m)
	if len(got) != 2 {
		t.Fatalf("Resample produced %d candles, want 2", len(got))
	}

	first := got[0]
	if !first.Timestamp.Equal(start) {
		t.Errorf("first bucket time = %v, want %v", first.Timestamp, start)
	}
	if first.Open != series[0].Open {
		t.Errorf("first bucket open = %v, want %v", first.Open, series[0].Open)
	}
	if first.Close != series[4].Close {
		t.Errorf("first bucket close = %v, want %v", first.Close, series[4].Close)
	}
	if first.High != series[4].High {
		t.Errorf("first bucket high = %v, want %v", first.High, series[4].High)
	}
	if first.Low != series[0].Low {
		t.Errorf("first bucket low = %v, want %v", first.Low, series[0].Low)
	}
	if first.Volume != 50 {
		t.Errorf("first bucket volume = %v, want 50", first.Volume)
	}
}

func TestResampleSameGranularity(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	series := minuteCandles(start, 5)

	got := Resample(series, domain.TF1m)
	if len(got) != len(series) {
		t.Fatalf("Resample at native granularity produced %d candles, want %d", len(got), len(series))
	}
	for i := range got {
		if got[i] != series[i] {
			t.Errorf("candle %d changed during identity resample", i)
		}
	}
}

func TestResampleGap(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	series := minuteCandles(start, 3)
	// Gap: next candles land two 5m buckets later.
	series = append(series, minuteCandles(start.Add(12*time.Minute), 2)...)

	got := Resample(series, domain.TF5m)
	if len(got) != 2 {
		t.Fatalf("Resample with gap produced %d buckets, want 2", len(got))
	}
	if !got[1].Timestamp.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("second bucket time = %v, want %v", got[1].Timestamp, start.Add(10*time.Minute))
	}
}

func TestLoaderCache(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	src := NewSliceSource("test", minuteCandles(start, 10))

	cache := NewCache()
	loader := NewLoader(cache, nil)

	first, err := loader.Load(ctx, src, domain.TF5m)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache holds %d entries after first load, want 1", cache.Len())
	}

	// Mutating the source must not affect cached reloads.
	src.Data = nil
	second, err := loader.Load(ctx, src, domain.TF5m)
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached load returned %d candles, want %d", len(second), len(first))
	}

	// Mutating a returned slice must not poison the cache.
	second[0].Close = -1
	third, err := loader.Load(ctx, src, domain.TF5m)
	if err != nil {
		t.Fatalf("Load (cached, second hit): %v", err)
	}
	if third[0].Close == -1 {
		t.Error("cache entry was mutated through a returned slice")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("cache holds %d entries after Clear, want 0", cache.Len())
	}
}

func TestLoaderValidatesBeforeCaching(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	series := minuteCandles(start, 3)
	series[1].Timestamp = series[0].Timestamp

	cache := NewCache()
	loader := NewLoader(cache, nil)
	_, err := loader.Load(context.Background(), NewSliceSource("bad", series), domain.TF1m)

	var de *domain.DataError
	if !errors.As(err, &de) {
		t.Fatalf("Load = %v, want DataError", err)
	}
	if cache.Len() != 0 {
		t.Error("invalid series must not be cached")
	}
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := `time,open,high,low,close,volume
2024-05-01 10:00:00,100,102,99,101,500
2024-05-01 11:00:00,101,103,100,102,600
2024-05-02,102,104,101,103,700
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got, err := NewCSVSource(path).Candles(context.Background())
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("parsed %d candles, want 3", len(got))
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !got[0].Timestamp.Equal(want) {
		t.Errorf("first timestamp = %v, want %v", got[0].Timestamp, want)
	}
	if got[2].Close != 103 {
		t.Errorf("third close = %v, want 103", got[2].Close)
	}
}

func TestCSVSourceBadTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := `time,open,high,low,close,volume
not-a-time,100,102,99,101,500
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := NewCSVSource(path).Candles(context.Background())
	var de *domain.DataError
	if !errors.As(err, &de) {
		t.Fatalf("Candles = %v, want DataError", err)
	}
}

func TestJSONSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.json")
	content := `[
		{"time":"2024-05-01T10:00:00Z","o":100,"h":102,"l":99,"c":101,"v":500},
		{"time":"2024-05-01T11:00:00Z","o":101,"h":103,"l":100,"c":102,"v":600}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got, err := NewJSONSource(path).Candles(context.Background())
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d candles, want 2", len(got))
	}
	if got[1].Volume != 600 {
		t.Errorf("second volume = %v, want 600", got[1].Volume)
	}
}
