package candles

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/grigofil/mmvbtrade/internal/domain"
)

var _ Source = (*CSVSource)(nil)

// CSVSource reads candles from a CSV file with a header row of
// time,open,high,low,close,volume. Timestamps may be RFC 3339, a space
// separated date-time, or a bare date.
type CSVSource struct {
	Path string
}

// NewCSVSource reads candles from the CSV file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Key() string { return "csv:" + s.Path }

// csvCandle is the on-disk row layout.
type csvCandle struct {
	Time   string  `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseCSVTime(s string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func (s *CSVSource) Candles(_ context.Context) ([]domain.Candle, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*csvCandle
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.Path, err)
	}

	out := make([]domain.Candle, 0, len(rows))
	for i, r := range rows {
		ts, err := parseCSVTime(r.Time)
		if err != nil {
			return nil, &domain.DataError{Index: i, Field: "time", Reason: err.Error()}
		}
		out = append(out, domain.Candle{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return out, nil
}
