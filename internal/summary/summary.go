// Package summary parses the per-year statistics table that accompanies the
// flood masks (water-detection thresholds and image counts).
package summary

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Placeholder is shown in place of unknown values.
const Placeholder = "N/A"

// Row holds one year's statistics. NaN marks a value that was missing or
// could not be parsed.
type Row struct {
	Year         int     `json:"year"`
	Mu           float64 `json:"mu"`
	Sigma        float64 `json:"sigma"`
	KValue       float64 `json:"k_value"`
	Threshold    float64 `json:"threshold"`
	DiffMin      float64 `json:"diff_min"`
	DiffMax      float64 `json:"diff_max"`
	ImagesBefore float64 `json:"imgs_before"`
	ImagesAfter  float64 `json:"imgs_after"`
}

// Table maps year to its summary row.
type Table map[int]Row

// Lookup returns the row for year.
func (t Table) Lookup(year int) (Row, bool) {
	r, ok := t[year]
	return r, ok
}

// Years returns the table's years in ascending order.
func (t Table) Years() []int {
	years := make([]int, 0, len(t))
	for y := range t {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// Known reports whether v holds a real value.
func Known(v float64) bool {
	return !math.IsNaN(v)
}

// Format renders v with prec decimals, or Placeholder when unknown.
func Format(v float64, prec int) string {
	if !Known(v) {
		return Placeholder
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Stats counts what Parse kept and dropped.
type Stats struct {
	Parsed        int
	Skipped       int
	UnknownFields int
}

var errNoYearColumn = errors.New("summary header has no year column")

// field setters keyed by canonical column name.
var setters = map[string]func(*Row, float64){
	"mu":          func(r *Row, v float64) { r.Mu = v },
	"sigma":       func(r *Row, v float64) { r.Sigma = v },
	"k_value":     func(r *Row, v float64) { r.KValue = v },
	"threshold":   func(r *Row, v float64) { r.Threshold = v },
	"diff_min":    func(r *Row, v float64) { r.DiffMin = v },
	"diff_max":    func(r *Row, v float64) { r.DiffMax = v },
	"imgs_before": func(r *Row, v float64) { r.ImagesBefore = v },
	"imgs_after":  func(r *Row, v float64) { r.ImagesAfter = v },
}

var aliases = map[string]string{
	"año":           "year",
	"k":             "k_value",
	"kvalue":        "k_value",
	"images_before": "imgs_before",
	"img_before":    "imgs_before",
	"n_before":      "imgs_before",
	"images_after":  "imgs_after",
	"img_after":     "imgs_after",
	"n_after":       "imgs_after",
}

// Parse reads a delimited table whose first non-empty line is the header.
// The delimiter is the most frequent of tab, semicolon and comma in that
// line. With a semicolon delimiter a decimal comma is accepted.
func Parse(r io.Reader) (Table, Stats, error) {
	br := bufio.NewReader(r)
	header, err := firstLine(br)
	if err != nil {
		return nil, Stats{}, err
	}
	delim := sniffDelimiter(header)

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header+"\n"), br))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	cols, err := cr.Read()
	if err != nil {
		return nil, Stats{}, err
	}
	yearCol := -1
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = canonical(c)
		if names[i] == "year" && yearCol < 0 {
			yearCol = i
		}
	}
	if yearCol < 0 {
		return nil, Stats{}, errNoYearColumn
	}

	table := make(Table)
	var stats Stats
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.Skipped++
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		row, unknown, ok := parseRow(rec, names, yearCol, delim == ';')
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Parsed++
		stats.UnknownFields += unknown
		table[row.Year] = row
	}
	return table, stats, nil
}

func parseRow(rec, names []string, yearCol int, decimalComma bool) (Row, int, bool) {
	if yearCol >= len(rec) {
		return Row{}, 0, false
	}
	year, ok := parseYear(rec[yearCol])
	if !ok {
		return Row{}, 0, false
	}

	nan := math.NaN()
	row := Row{
		Year: year, Mu: nan, Sigma: nan, KValue: nan, Threshold: nan,
		DiffMin: nan, DiffMax: nan, ImagesBefore: nan, ImagesAfter: nan,
	}
	seen := make(map[string]bool, len(setters))
	for i, name := range names {
		set, ok := setters[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if i < len(rec) {
			set(&row, parseValue(rec[i], decimalComma))
		}
	}

	unknown := 0
	for _, v := range []float64{row.Mu, row.Sigma, row.KValue, row.Threshold, row.DiffMin, row.DiffMax, row.ImagesBefore, row.ImagesAfter} {
		if !Known(v) {
			unknown++
		}
	}
	return row, unknown, true
}

func parseYear(s string) (int, bool) {
	v := parseValue(s, false)
	if !Known(v) || v != math.Trunc(v) || v <= 0 {
		return 0, false
	}
	return int(v), true
}

// parseValue returns NaN for empty, placeholder, or unparsable input.
func parseValue(s string, decimalComma bool) float64 {
	s = strings.TrimSpace(s)
	if decimalComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func canonical(header string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if a, ok := aliases[h]; ok {
		return a
	}
	return h
}

func sniffDelimiter(header string) rune {
	best, bestCount := ',', 0
	for _, d := range []rune{'\t', ';', ','} {
		if n := strings.Count(header, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func firstLine(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("summary table is empty")
			}
			return "", err
		}
	}
}

// ParseBytes is Parse over an in-memory payload.
func ParseBytes(data []byte) (Table, Stats, error) {
	return Parse(bytes.NewReader(data))
}
