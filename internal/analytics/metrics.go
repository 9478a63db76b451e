// Package analytics turns the metrics sheet export into a gap-free daily
// series for the dashboard charts.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format of DailyMetric.Date.
const DateLayout = time.DateOnly

// DailyMetric is one day of normalized quality scores. Every score lies in [0,1].
type DailyMetric struct {
	Date         time.Time `json:"date"`
	Accuracy     float64   `json:"accuracy"`
	Relevance    float64   `json:"relevance"`
	Helpfulness  float64   `json:"helpfulness"`
	Clarity      float64   `json:"clarity"`
	Engagement   float64   `json:"engagement"`
	Satisfaction float64   `json:"satisfaction"`
	IsSimulated  bool      `json:"is_simulated"`
}

type dailyMetricJSON struct {
	Date         string  `json:"date"`
	Accuracy     float64 `json:"accuracy"`
	Relevance    float64 `json:"relevance"`
	Helpfulness  float64 `json:"helpfulness"`
	Clarity      float64 `json:"clarity"`
	Engagement   float64 `json:"engagement"`
	Satisfaction float64 `json:"satisfaction"`
	IsSimulated  bool    `json:"is_simulated"`
}

func (m DailyMetric) MarshalJSON() ([]byte, error) {
	return json.Marshal(dailyMetricJSON{
		Date:         m.Date.Format(DateLayout),
		Accuracy:     m.Accuracy,
		Relevance:    m.Relevance,
		Helpfulness:  m.Helpfulness,
		Clarity:      m.Clarity,
		Engagement:   m.Engagement,
		Satisfaction: m.Satisfaction,
		IsSimulated:  m.IsSimulated,
	})
}

func (m *DailyMetric) UnmarshalJSON(data []byte) error {
	var raw dailyMetricJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("invalid metric date %q: %w", raw.Date, err)
	}
	*m = DailyMetric{
		Date:         date,
		Accuracy:     raw.Accuracy,
		Relevance:    raw.Relevance,
		Helpfulness:  raw.Helpfulness,
		Clarity:      raw.Clarity,
		Engagement:   raw.Engagement,
		Satisfaction: raw.Satisfaction,
		IsSimulated:  raw.IsSimulated,
	}
	return nil
}

// scores exposes the six metric fields in a fixed order.
func (m *DailyMetric) scores() [6]*float64 {
	return [6]*float64{&m.Accuracy, &m.Relevance, &m.Helpfulness, &m.Clarity, &m.Engagement, &m.Satisfaction}
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(day(b).Sub(day(a)).Hours() / 24)
}
