// Package process turns raw downloaded spreadsheets into snapshots and owns
// the day's time series.
package process

import (
	"strconv"
	"strings"

	"oispurts/internal/fetch"
	"oispurts/internal/models"
	"oispurts/internal/sheet"
)

// symbolHeaders are substrings that identify the instrument column.
var symbolHeaders = []string{"SYMBOL", "STOCK", "SCRIP", "UNDERLYING", "NAME"}

// metricHeaders are substrings that identify numeric metric columns.
var metricHeaders = []string{"OI", "INTEREST", "VOLUME", "PRICE", "CHANGE", "VALUE", "TURNOVER"}

// ParseStats reports what filtering did to one parsed batch.
type ParseStats struct {
	TotalRows  int
	Dropped    int
	Duplicates int
}

// ParseSnapshot maps a raw sheet to a deduplicated snapshot. Rows missing a
// usable symbol are dropped and counted, not fatal. Duplicate rows for one
// normalized symbol collapse to a single record: the last-seen row's values
// win, keeping the first-seen position in the ordered snapshot.
func ParseSnapshot(raw *fetch.RawSnapshotFile) (models.Snapshot, ParseStats, error) {
	var stats ParseStats

	rows, err := sheet.Rows(raw.Content, raw.Format)
	if err != nil {
		return models.Snapshot{}, stats, &ParseError{Reason: err.Error()}
	}
	if len(rows) < 2 {
		return models.Snapshot{}, stats, &ParseError{Reason: "sheet has no data rows"}
	}

	header := rows[0]
	symbolCol, metricCols, err := mapColumns(header)
	if err != nil {
		return models.Snapshot{}, stats, err
	}

	snap := models.Snapshot{CapturedAt: raw.CapturedAt}
	index := make(map[string]int)

	for _, row := range rows[1:] {
		stats.TotalRows++
		if symbolCol >= len(row) {
			stats.Dropped++
			continue
		}
		symbol := models.NormalizeSymbol(row[symbolCol])
		if !usableSymbol(symbol) {
			stats.Dropped++
			continue
		}

		metrics := make(map[string]float64, len(metricCols))
		for col, name := range metricCols {
			if col >= len(row) {
				continue
			}
			if v, ok := parseNumber(row[col]); ok {
				metrics[name] = v
			}
		}

		rec := models.InstrumentRecord{
			Symbol:     symbol,
			Rank:       stats.TotalRows,
			Metrics:    metrics,
			CapturedAt: raw.CapturedAt,
		}

		if at, seen := index[symbol]; seen {
			stats.Duplicates++
			snap.Records[at] = rec
			continue
		}
		index[symbol] = len(snap.Records)
		snap.Records = append(snap.Records, rec)
	}

	if len(snap.Records) == 0 {
		return models.Snapshot{}, stats, ErrNoData
	}
	return snap, stats, nil
}

// mapColumns locates the symbol column and names the metric columns. A sheet
// without a recognizable symbol column or without any metric column is a
// schema mismatch.
func mapColumns(header []string) (int, map[int]string, error) {
	symbolCol := -1
	for i, h := range header {
		u := strings.ToUpper(strings.TrimSpace(h))
		for _, pat := range symbolHeaders {
			if strings.Contains(u, pat) {
				symbolCol = i
				break
			}
		}
		if symbolCol >= 0 {
			break
		}
	}
	if symbolCol < 0 {
		return 0, nil, &ParseError{Reason: "no symbol column in header"}
	}

	metricCols := make(map[int]string)
	for i, h := range header {
		if i == symbolCol {
			continue
		}
		u := strings.ToUpper(strings.TrimSpace(h))
		for _, pat := range metricHeaders {
			if strings.Contains(u, pat) {
				metricCols[i] = metricName(h)
				break
			}
		}
	}
	if len(metricCols) == 0 {
		return 0, nil, &ParseError{Reason: "no metric columns in header"}
	}
	return symbolCol, metricCols, nil
}

// metricName converts a header cell to a stable metric key, e.g.
// "Latest OI" -> "latest_oi", "% Change" -> "pct_change".
func metricName(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = strings.ReplaceAll(s, "%", "pct")
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// usableSymbol filters placeholder cells that show up in exported sheets.
func usableSymbol(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s {
	case "NAN", "NULL", "NONE", "NA", "N-A":
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false // all digits
}

// parseNumber reads a numeric cell, tolerating thousands separators and
// surrounding whitespace.
func parseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
