package candles

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

// Cache holds loaded candle series keyed by (source key, timeframe). It is
// safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]domain.Candle
}

// NewCache creates an empty candle cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]domain.Candle)}
}

func cacheKey(sourceKey string, tf domain.Timeframe) string {
	return sourceKey + "|" + string(tf)
}

func (c *Cache) get(key string) ([]domain.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series, ok := c.entries[key]
	return series, ok
}

func (c *Cache) put(key string, series []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = series
}

// Clear drops all cached series.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]domain.Candle)
}

// Len returns the number of cached series.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Loader produces validated candle series at a requested timeframe. Series
// fetched once are cached by (source key, timeframe); repeated loads return a
// fresh copy of the cached data.
type Loader struct {
	cache  *Cache
	logger *slog.Logger
}

// NewLoader creates a Loader with the given cache. A nil cache disables
// caching; a nil logger uses the default.
func NewLoader(cache *Cache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cache: cache, logger: logger}
}

// Load fetches candles from the source, validates them, and resamples them to
// the requested timeframe when the source data is finer grained. The returned
// slice is owned by the caller.
func (l *Loader) Load(ctx context.Context, src Source, tf domain.Timeframe) ([]domain.Candle, error) {
	if !tf.Valid() {
		return nil, &domain.ConfigurationError{Param: "timeframe", Reason: fmt.Sprintf("unknown timeframe %q", tf)}
	}

	key := cacheKey(src.Key(), tf)
	if l.cache != nil {
		if series, ok := l.cache.get(key); ok {
			l.logger.Debug("candle cache hit", "key", key, "candles", len(series))
			return copySeries(series), nil
		}
	}

	raw, err := src.Candles(ctx)
	if err != nil {
		return nil, err
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	series := Resample(raw, tf)

	if l.cache != nil {
		l.cache.put(key, copySeries(series))
		l.logger.Debug("candle cache store", "key", key, "candles", len(series))
	}
	return series, nil
}

func copySeries(series []domain.Candle) []domain.Candle {
	out := make([]domain.Candle, len(series))
	copy(out, series)
	return out
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks a candle series for structural soundness: non-empty,
// strictly increasing timestamps, positive prices, non-negative volume, and
// internally consistent OHLC bounds.
func Validate(series []domain.Candle) error {
	if len(series) == 0 {
		return &domain.DataError{Index: -1, Reason: "empty candle series"}
	}

	for i, c := range series {
		if i > 0 && !c.Timestamp.After(series[i-1].Timestamp) {
			return &domain.DataError{Index: i, Field: "time", Reason: "timestamps not strictly increasing"}
		}
		if c.Open <= 0 {
			return &domain.DataError{Index: i, Field: "open", Reason: "price must be positive"}
		}
		if c.High <= 0 {
			return &domain.DataError{Index: i, Field: "high", Reason: "price must be positive"}
		}
		if c.Low <= 0 {
			return &domain.DataError{Index: i, Field: "low", Reason: "price must be positive"}
		}
		if c.Close <= 0 {
			return &domain.DataError{Index: i, Field: "close", Reason: "price must be positive"}
		}
		if c.Volume < 0 {
			return &domain.DataError{Index: i, Field: "volume", Reason: "volume must be non-negative"}
		}
		if c.High < c.Open || c.High < c.Close {
			return &domain.DataError{Index: i, Field: "high", Reason: "high below open or close"}
		}
		if c.Low > c.Open || c.Low > c.Close {
			return &domain.DataError{Index: i, Field: "low", Reason: "low above open or close"}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resampling
// ---------------------------------------------------------------------------

// Resample aggregates a candle series into buckets of the target timeframe,
// aligned by truncating each timestamp to the bucket duration. Within a
// bucket: open is the first open, high the maximum high, low the minimum low,
// close the last close, and volume the sum. A series already at the target
// granularity passes through unchanged.
func Resample(series []domain.Candle, tf domain.Timeframe) []domain.Candle {
	if len(series) == 0 {
		return nil
	}

	d := tf.Duration()
	out := make([]domain.Candle, 0, len(series))

	cur := domain.Candle{Timestamp: series[0].Timestamp.Truncate(d)}
	open := false
	for _, c := range series {
		bucket := c.Timestamp.Truncate(d)
		if open && !bucket.Equal(cur.Timestamp) {
			out = append(out, cur)
			open = false
		}
		if !open {
			cur = domain.Candle{
				Timestamp: bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			open = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	out = append(out, cur)
	return out
}
