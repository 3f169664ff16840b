// File path: internal/rvtools/header.go
package rvtools

import (
	"strconv"
	"strings"
	"time"
)

// Table is one sheet's worth of rows with a resolved header. Parsers read
// cells through Value so column drift between RVTools releases stays
// contained here.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string

	index map[string]int
}

func newTable(sheet string, header []string, rows [][]string) *Table {
	t := &Table{Sheet: sheet, Header: header, Rows: rows}
	t.index = make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, exists := t.index[key]; !exists {
			t.index[key] = i
		}
	}
	return t
}

// Column resolves the first matching header alias to its index, -1 when the
// sheet has none of them.
func (t *Table) Column(aliases ...string) int {
	for _, alias := range aliases {
		if idx, ok := t.index[normalizeHeader(alias)]; ok {
			return idx
		}
	}
	return -1
}

// Has reports whether any alias resolves.
func (t *Table) Has(aliases ...string) bool { return t.Column(aliases...) >= 0 }

// Value reads a trimmed cell by header alias; empty when the column is
// absent or the row is short.
func (t *Table) Value(row []string, aliases ...string) string {
	idx := t.Column(aliases...)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizeHeader lowers, collapses whitespace, and strips the decorations
// RVTools sprinkles into column names ("# VMs", "Size MiB.", "In Use MB").
func normalizeHeader(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	lowered = strings.Trim(lowered, ".#")
	lowered = strings.TrimSpace(lowered)
	return strings.Join(strings.Fields(lowered), " ")
}

// parseInt accepts RVTools numeric cells: thousands separators in either
// locale convention, decimal tails truncated.
func parseInt(raw string) (int64, bool) {
	f, ok := parseFloat(raw)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func parseFloat(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56 with dot groups and a comma decimal
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			// 1,234.56 with comma groups and a dot decimal
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		// Ambiguous: treat a lone comma with exactly two trailing digits as
		// a decimal mark, otherwise as grouping.
		if len(cleaned)-lastComma == 3 && strings.Count(cleaned, ",") == 1 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "enabled", "on":
		return true
	}
	return false
}

var timeLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 3:04:05 PM",
	"2006/01/02",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// headerRow scans the first rows of a sheet for the row a parser recognizes
// as its header. RVTools keeps headers on row 1, but exports passed through
// other tooling sometimes gain title rows.
const headerScanLimit = 8

func locateHeader(rows [][]string, match func(header []string) bool) (int, []string) {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		if match(rows[i]) {
			return i, rows[i]
		}
	}
	return -1, nil
}
