package candle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mk(openTime int64, close string) Candle {
	return Candle{
		Symbol:   "NASDAQ:AAPL",
		Interval: "1",
		OpenTime: time.Unix(openTime, 0),
		Close:    decimal.RequireFromString(close),
		Open:     decimal.RequireFromString(close),
		High:     decimal.RequireFromString(close),
		Low:      decimal.RequireFromString(close),
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	base := []Candle{mk(100, "1.0"), mk(200, "2.0")}
	next := []Candle{mk(200, "2.5"), mk(300, "3.0")}

	out := Merge(base, next)
	assert.Len(t, out, 3)
	assert.True(t, out[0].OpenTime.Equal(time.Unix(100, 0)))
	assert.True(t, out[1].Close.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, out[2].OpenTime.Equal(time.Unix(300, 0)))
}

func TestQuoteSnapshotCloneIsIndependent(t *testing.T) {
	orig := QuoteSnapshot{Symbol: "X", Fields: map[string]interface{}{"lp": 1.0}}
	clone := orig.Clone()
	clone.Fields["lp"] = 2.0
	assert.Equal(t, 1.0, orig.Fields["lp"])
	assert.Equal(t, 2.0, clone.Fields["lp"])
}

func TestCandleValidateRequiresCloseTime(t *testing.T) {
	c := mk(100, "1.0")
	assert.Error(t, c.Validate())
	c.CloseTime = time.Unix(160, 0)
	assert.NoError(t, c.Validate())
}

func TestQuoteSnapshotValidateRequiresFields(t *testing.T) {
	assert.Error(t, QuoteSnapshot{Symbol: "X"}.Validate())
	assert.NoError(t, QuoteSnapshot{Symbol: "X", Fields: map[string]interface{}{}}.Validate())
}
