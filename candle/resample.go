package candle

import (
	"fmt"
	"sort"
	"time"
)

// resampleMinutes maps a target bucket timeframe to its width in minutes.
// Callers who backfilled at 1-minute resolution and want coarser local bars
// pick one of these as the Resample target.
var resampleMinutes = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240,
	"1d": 1440, "1w": 10080, "1M": 43200,
}

// Resample groups candles into coarser buckets of the given target
// timeframe (one of the keys in resampleMinutes) and returns one merged
// candle per bucket, ordered by OpenTime ascending. Input order does not
// matter; Resample sorts by OpenTime first.
func Resample(candles []Candle, target string) ([]Candle, error) {
	width, ok := resampleMinutes[target]
	if !ok {
		return nil, fmt.Errorf("candle: unsupported resample target %q", target)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime.Before(sorted[j].OpenTime) })

	bucketWidth := time.Duration(width) * time.Minute

	type bucket struct {
		start time.Time
		items []Candle
	}
	var buckets []*bucket
	index := make(map[int64]*bucket)

	for _, c := range sorted {
		start := c.OpenTime.Truncate(bucketWidth)
		key := start.UnixNano()
		b, ok := index[key]
		if !ok {
			b = &bucket{start: start}
			index[key] = b
			buckets = append(buckets, b)
		}
		b.items = append(b.items, c)
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].start.Before(buckets[j].start) })

	out := make([]Candle, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, mergeBucket(b.start, bucketWidth, b.items))
	}
	return out, nil
}

func mergeBucket(start time.Time, width time.Duration, items []Candle) Candle {
	merged := Candle{
		Symbol:    items[0].Symbol,
		Interval:  items[0].Interval,
		OpenTime:  start,
		CloseTime: start.Add(width),
		Open:      items[0].Open,
		Close:     items[len(items)-1].Close,
		High:      items[0].High,
		Low:       items[0].Low,
		IsClosed:  items[len(items)-1].IsClosed,
	}
	for _, it := range items {
		if it.High.GreaterThan(merged.High) {
			merged.High = it.High
		}
		if it.Low.LessThan(merged.Low) {
			merged.Low = it.Low
		}
		merged.Volume = merged.Volume.Add(it.Volume)
	}
	return merged
}
