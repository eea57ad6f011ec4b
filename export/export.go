// Package export formats collected candles for callers who want to persist
// them — the data-export subsystem named as an out-of-scope collaborator in
// spec §1, supplemented here as a minimal JSON/CSV writer (ported from
// tvkit's save_json_file/save_csv_file without the Parquet/DataFrame path,
// which has no equivalent dependency in this module's stack).
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/haidl/tvstream/candle"
)

// WriteJSON serializes candles as a compact JSON array to w.
func WriteJSON(w io.Writer, candles []candle.Candle) error {
	enc := json.NewEncoder(w)
	return enc.Encode(candles)
}

var csvHeader = []string{"open_time", "close_time", "open", "high", "low", "close", "volume", "is_closed"}

// WriteCSV serializes candles as CSV with a fixed header to w.
func WriteCSV(w io.Writer, candles []candle.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.OpenTime.Unix(), 10),
			strconv.FormatInt(c.CloseTime.Unix(), 10),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			strconv.FormatBool(c.IsClosed),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
