package analytics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrMissingDateColumn = errors.New("csv has no date column")

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
}

const (
	colDate = iota
	colAccuracy
	colRelevance
	colHelpfulness
	colClarity
	colEngagement
	colSatisfaction
	colGroup
	colCount
)

var headerAliases = map[string]int{
	"date":         colDate,
	"day":          colDate,
	"accuracy":     colAccuracy,
	"acc":          colAccuracy,
	"relevance":    colRelevance,
	"helpfulness":  colHelpfulness,
	"helpful":      colHelpfulness,
	"clarity":      colClarity,
	"engagement":   colEngagement,
	"satisfaction": colSatisfaction,
	"csat":         colSatisfaction,
	"group":        colGroup,
	"group_name":   colGroup,
	"cohort":       colGroup,
}

// ParseOptions narrows which sheet rows are returned.
type ParseOptions struct {
	// Group keeps only rows whose group column matches, case-insensitively.
	// Ignored when the sheet has no group column.
	Group string
}

// ParseCSV reads the metrics sheet export. The first record is the header.
// Rows with an unparseable date are skipped and the last row wins for a
// repeated date. The result is sorted by date.
func ParseCSV(r io.Reader, opts ParseOptions) ([]DailyMetric, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := mapColumns(header)
	if columns[colDate] < 0 {
		return nil, ErrMissingDateColumn
	}
	filterGroup := opts.Group != "" && columns[colGroup] >= 0

	byDate := make(map[time.Time]DailyMetric)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		if filterGroup && !strings.EqualFold(cell(record, columns[colGroup]), strings.TrimSpace(opts.Group)) {
			continue
		}

		date, ok := parseDate(cell(record, columns[colDate]))
		if !ok {
			continue
		}

		m := DailyMetric{Date: date}
		for i, field := range m.scores() {
			*field = parseScore(cell(record, columns[colAccuracy+i]))
		}
		byDate[date] = m
	}

	rows := make([]DailyMetric, 0, len(byDate))
	for _, m := range byDate {
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func mapColumns(header []string) [colCount]int {
	var columns [colCount]int
	for i := range columns {
		columns[i] = -1
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		if col, ok := headerAliases[name]; ok && columns[col] < 0 {
			columns[col] = i
		}
	}
	return columns
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	return time.Time{}, false
}

// parseScore accepts "0.85", "85%" and blanks; anything unreadable is 0.
func parseScore(s string) float64 {
	if s == "" {
		return 0
	}
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
		scale = 100
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return clamp01(v / scale)
}
