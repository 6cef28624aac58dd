package loader

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// WeekColumn is the header name of the date column.
const WeekColumn = "week"

// excelEpoch is day zero of the 1900 date system as used by spreadsheet serials.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// parseRows converts raw string rows into WeeklyRecords. Row numbers in errors
// are 1-based and count the header, matching what a spreadsheet shows.
func parseRows(rows [][]string, layout string) ([]types.WeeklyRecord, error) {
	start := firstNonBlank(rows)
	if start < 0 {
		return nil, ErrNoData
	}

	idx, err := columnIndex(rows[start])
	if err != nil {
		return nil, err
	}

	out := make([]types.WeeklyRecord, 0, len(rows)-start-1)
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		line := i + 1

		weekCell := cell(row, idx[WeekColumn])
		week, err := parseWeek(weekCell, layout)
		if err != nil {
			return nil, goerr.Wrap(err, "parse week",
				goerr.V("row", line), goerr.V("column", WeekColumn), goerr.V("value", weekCell))
		}

		rec := types.WeeklyRecord{Week: week, Counts: make(map[types.Category]int, len(types.Categories))}
		for _, c := range types.Categories {
			v := cell(row, idx[string(c)])
			n, err := parseCount(v)
			if err != nil {
				return nil, goerr.Wrap(err, "parse count",
					goerr.V("row", line), goerr.V("column", string(c)), goerr.V("value", v))
			}
			rec.Counts[c] = n
		}
		out = append(out, rec)
	}
	return out, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	required := append([]string{WeekColumn}, categoryNames()...)
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, goerr.Wrap(ErrMissingColumn, "read header",
				goerr.V("column", name), goerr.V("header", header))
		}
	}
	return idx, nil
}

func categoryNames() []string {
	names := make([]string, len(types.Categories))
	for i, c := range types.Categories {
		names[i] = string(c)
	}
	return names
}

// compactLayout is the YYYYMMDD form some exports use for dates.
const compactLayout = "20060102"

// maxExcelSerial is 9999-12-31, the last date Excel can represent.
const maxExcelSerial = 2958465

// parseWeek accepts the configured layout, RFC3339, YYYYMMDD and Excel date
// serials. The result is always UTC.
func parseWeek(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, goerr.Wrap(ErrMalformedValue, "empty week")
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if len(s) == len(compactLayout) {
		if t, err := time.Parse(compactLayout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < maxExcelSerial+1 {
		days := math.Floor(serial)
		return excelEpoch.AddDate(0, 0, int(days)), nil
	}
	return time.Time{}, goerr.Wrap(ErrMalformedValue, "unrecognised date", goerr.V("layout", layout))
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, goerr.Wrap(ErrMalformedValue, "empty count")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, goerr.Wrap(ErrMalformedValue, "count is not an integer")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, goerr.Wrap(ErrMalformedValue, "count out of range")
	}
	return int(f), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstNonBlank(rows [][]string) int {
	for i, r := range rows {
		if !blank(r) {
			return i
		}
	}
	return -1
}
