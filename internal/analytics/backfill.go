package analytics

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"

	"github.com/Gopher0727/ProfDash/utils"
)

// NoiseModel selects how a missing day is derived from its anchor row.
type NoiseModel string

const (
	// NoiseSimple adds uniform jitter.
	NoiseSimple NoiseModel = "simple"
	// NoiseImproved adds a sinusoidal weekly trend on top of the jitter.
	NoiseImproved NoiseModel = "improved"
	// NoiseRealistic decays linearly away from the anchor and damps weekends.
	NoiseRealistic NoiseModel = "realistic"
)

const (
	DefaultWindow         = 30
	DefaultJitter         = 0.05
	DefaultAmplitude      = 0.03
	DefaultDecay          = 0.004
	DefaultWeekendDamping = 0.9

	syntheticBaseMin = 0.55
	syntheticBaseMax = 0.85
)

// ParseNoiseModel validates a model name. An empty name selects NoiseImproved.
func ParseNoiseModel(s string) (NoiseModel, error) {
	switch m := NoiseModel(s); m {
	case "":
		return NoiseImproved, nil
	case NoiseSimple, NoiseImproved, NoiseRealistic:
		return m, nil
	default:
		return "", fmt.Errorf("unknown noise model %q", s)
	}
}

// Options configures Backfill and Synthesize. Zero values select defaults.
type Options struct {
	Window int
	Model  NoiseModel
	// End pins the last day of the window. Zero means the latest real date,
	// or today when there is no real data.
	End time.Time
	// Rand drives every random draw. Nil means a time-seeded source.
	Rand *rand.Rand

	Jitter         float64
	Amplitude      float64
	Decay          float64
	WeekendDamping float64
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Model == "" {
		o.Model = NoiseImproved
	}
	if o.Rand == nil {
		now := uint64(time.Now().UnixNano())
		o.Rand = rand.New(rand.NewPCG(now, now>>1))
	}
	if o.Jitter == 0 {
		o.Jitter = DefaultJitter
	}
	if o.Amplitude == 0 {
		o.Amplitude = DefaultAmplitude
	}
	if o.Decay == 0 {
		o.Decay = DefaultDecay
	}
	if o.WeekendDamping == 0 {
		o.WeekendDamping = DefaultWeekendDamping
	}
	return o
}

// Seed returns a generator whose stream depends only on key and the window
// end date, so a reload on the same day yields the same placeholder values.
func Seed(key string, end time.Time) *rand.Rand {
	h1, h2 := murmur3.Sum128([]byte(key + "|" + day(end).Format(DateLayout)))
	return rand.New(rand.NewPCG(h1, h2))
}

// Backfill returns exactly opts.Window rows ending at the latest real date.
// Real rows inside the window pass through unchanged; every other day is
// synthesized from the nearest preceding real row, or from the first real
// row for days before any data. With no usable real rows the window is
// fully synthetic.
func Backfill(real []DailyMetric, opts Options) []DailyMetric {
	opts = opts.withDefaults()

	rows := normalize(real)
	end := day(opts.End)
	if opts.End.IsZero() {
		if len(rows) == 0 {
			return Synthesize(time.Now(), opts)
		}
		end = rows[len(rows)-1].Date
	}

	// drop rows after the window, they cannot anchor anything inside it
	cut := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(end) })
	rows = rows[:cut]
	if len(rows) == 0 {
		return Synthesize(end, opts)
	}

	start := end.AddDate(0, 0, -(opts.Window - 1))
	present := bitset.New(uint(opts.Window))
	inWindow := make(map[uint]DailyMetric, opts.Window)
	for _, r := range rows {
		if r.Date.Before(start) {
			continue
		}
		pos := uint(daysBetween(start, r.Date))
		present.Set(pos)
		inWindow[pos] = r
	}

	out := make([]DailyMetric, opts.Window)
	for i := range opts.Window {
		pos := uint(i)
		if present.Test(pos) {
			out[i] = inWindow[pos]
			continue
		}

		date := start.AddDate(0, 0, i)
		anchor := anchorFor(rows, date)
		out[i] = perturb(anchor, date, utils.Abs(daysBetween(anchor.Date, date)), opts)
	}
	return out
}

// Synthesize builds a fully simulated window ending at end.
func Synthesize(end time.Time, opts Options) []DailyMetric {
	opts = opts.withDefaults()
	end = day(end)
	start := end.AddDate(0, 0, -(opts.Window - 1))

	base := DailyMetric{Date: start}
	for _, field := range base.scores() {
		*field = syntheticBaseMin + opts.Rand.Float64()*(syntheticBaseMax-syntheticBaseMin)
	}

	out := make([]DailyMetric, opts.Window)
	for i := range opts.Window {
		out[i] = perturb(base, start.AddDate(0, 0, i), i, opts)
	}
	return out
}

// normalize truncates dates to UTC days, sorts, and keeps the last row of
// any repeated date.
func normalize(real []DailyMetric) []DailyMetric {
	rows := make([]DailyMetric, len(real))
	for i, r := range real {
		r.Date = day(r.Date)
		rows[i] = r
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	out := rows[:0]
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// anchorFor returns the latest row strictly before date, falling back to the
// earliest row. rows must be sorted and non-empty.
func anchorFor(rows []DailyMetric, date time.Time) DailyMetric {
	idx := sort.Search(len(rows), func(i int) bool { return !rows[i].Date.Before(date) })
	if idx == 0 {
		return rows[0]
	}
	return rows[idx-1]
}

func perturb(anchor DailyMetric, date time.Time, daysSince int, opts Options) DailyMetric {
	out := anchor
	out.Date = date
	out.IsSimulated = true

	weekday := float64(date.Weekday())
	weekend := date.Weekday() == time.Saturday || date.Weekday() == time.Sunday

	for _, field := range out.scores() {
		jitter := (opts.Rand.Float64()*2 - 1) * opts.Jitter
		v := *field

		switch opts.Model {
		case NoiseSimple:
			v += jitter
		case NoiseRealistic:
			v = v - opts.Decay*float64(daysSince) + jitter
			if weekend {
				v *= opts.WeekendDamping
			}
		default:
			v += jitter + opts.Amplitude*math.Sin(2*math.Pi*weekday/7)
		}
		*field = clamp01(v)
	}
	return out
}
