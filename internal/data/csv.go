package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"noiseband/internal/bounds"
	"noiseband/internal/logger"
	"noiseband/internal/market"
)

// barTimeLayouts are the timestamp formats accepted in bar CSV files.
var barTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ReadBarsCSV loads bars from a CSV with header Datetime,Open,High,Low,Close.
// Rows with unparsable timestamps or numeric fields are dropped, not fatal;
// the dropped count is returned so callers can judge data quality.
func ReadBarsCSV(path string) ([]market.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("reading csv header: %w", err)
	}
	col := columnIndex(header)
	if col.time < 0 || col.open < 0 || col.close < 0 {
		return nil, 0, fmt.Errorf("csv %s: missing Datetime/Open/Close columns", path)
	}

	var bars []market.Bar
	dropped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dropped, err
		}
		bar, ok := parseBarRow(rec, col)
		if !ok {
			dropped++
			continue
		}
		bars = append(bars, bar)
	}
	if dropped > 0 {
		logger.Warnf("csv %s: dropped %d malformed rows", path, dropped)
	}
	market.SortBars(bars)
	return bars, dropped, nil
}

type columns struct {
	time, open, high, low, close int
}

func columnIndex(header []string) columns {
	col := columns{time: -1, open: -1, high: -1, low: -1, close: -1}
	for i, name := range header {
		switch name {
		case "Datetime", "datetime", "Time", "time":
			col.time = i
		case "Open", "open":
			col.open = i
		case "High", "high":
			col.high = i
		case "Low", "low":
			col.low = i
		case "Close", "close":
			col.close = i
		}
	}
	return col
}

func parseBarRow(rec []string, col columns) (market.Bar, bool) {
	get := func(i int) (float64, bool) {
		if i < 0 || i >= len(rec) {
			return 0, false
		}
		v, err := strconv.ParseFloat(rec[i], 64)
		return v, err == nil
	}
	if col.time >= len(rec) {
		return market.Bar{}, false
	}
	var ts time.Time
	var err error
	for _, layout := range barTimeLayouts {
		ts, err = time.Parse(layout, rec[col.time])
		if err == nil {
			break
		}
	}
	if err != nil {
		return market.Bar{}, false
	}
	o, okO := get(col.open)
	c, okC := get(col.close)
	if !okO || !okC {
		return market.Bar{}, false
	}
	// High/Low are optional in hand-rolled files; fall back to open/close
	// extremes so stop-loss checks stay conservative.
	h, okH := get(col.high)
	l, okL := get(col.low)
	if !okH {
		h = o
		if c > h {
			h = c
		}
	}
	if !okL {
		l = o
		if c < l {
			l = c
		}
	}
	return market.Bar{Time: ts.UTC(), Open: o, High: h, Low: l, Close: c}, true
}

// WriteBarsCSV writes bars with the same header ReadBarsCSV accepts.
func WriteBarsCSV(path string, bars []market.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"Datetime", "Open", "High", "Low", "Close"}); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			b.Time.UTC().Format(time.RFC3339),
			fmtFloat(b.Open), fmtFloat(b.High), fmtFloat(b.Low), fmtFloat(b.Close),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteDailyBoundsCSV writes the daily bound table.
func WriteDailyBoundsCSV(path string, list []bounds.DailyBound) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"Date", "Sigma", "UpperBound", "LowerBound"}); err != nil {
		return err
	}
	for _, b := range list {
		row := []string{
			b.Date.Format("2006-01-02"),
			fmtFloat(b.Sigma), fmtFloat(b.Upper), fmtFloat(b.Lower),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteBucketBoundsCSV writes the intraday bound table.
func WriteBucketBoundsCSV(path string, list []bounds.BucketBound) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"Time", "Sigma", "UpperBound", "LowerBound"}); err != nil {
		return err
	}
	for _, b := range list {
		row := []string{
			b.TimeOfDay.String(),
			fmtFloat(b.Sigma), fmtFloat(b.Upper), fmtFloat(b.Lower),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// ReadDailyBoundsCSV loads a previously written daily bound table. Malformed
// rows are dropped like in ReadBarsCSV, with the count returned and logged.
func ReadDailyBoundsCSV(path string) ([]bounds.DailyBound, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, 0, fmt.Errorf("reading csv header: %w", err)
	}
	var list []bounds.DailyBound
	dropped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dropped, err
		}
		if len(rec) < 4 {
			dropped++
			continue
		}
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			dropped++
			continue
		}
		sigma, err1 := strconv.ParseFloat(rec[1], 64)
		upper, err2 := strconv.ParseFloat(rec[2], 64)
		lower, err3 := strconv.ParseFloat(rec[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			dropped++
			continue
		}
		list = append(list, bounds.DailyBound{Date: date.UTC(), Sigma: sigma, Upper: upper, Lower: lower})
	}
	if dropped > 0 {
		logger.Warnf("csv %s: dropped %d malformed rows", path, dropped)
	}
	return list, dropped, nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
