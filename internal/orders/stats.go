package orders

import "time"

// StatsRange selects both the lookback window and the bucket granularity
// of a revenue series.
type StatsRange string

const (
	Range24h StatsRange = "24h"
	Range15d StatsRange = "15d"
	Range1y  StatsRange = "1y"
)

// NormalizeRange maps unrecognized values onto the 15-day series rather
// than erroring, so a stale client keeps getting a usable chart.
func NormalizeRange(s string) StatsRange {
	switch StatsRange(s) {
	case Range24h, Range1y:
		return StatsRange(s)
	default:
		return Range15d
	}
}

type StatsBucket struct {
	Bucket       time.Time `json:"bucket"`
	Label        string    `json:"label"`
	RevenueCents int64     `json:"revenue_cents"`
}

type granularity struct {
	trunc  string // date_trunc field
	window time.Duration
}

func (r StatsRange) granularity() granularity {
	switch r {
	case Range24h:
		return granularity{trunc: "hour", window: 24 * time.Hour}
	case Range1y:
		return granularity{trunc: "month", window: 365 * 24 * time.Hour}
	default:
		return granularity{trunc: "day", window: 15 * 24 * time.Hour}
	}
}

func (g granularity) truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g.trunc {
	case "hour":
		return t.Truncate(time.Hour)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func (g granularity) next(t time.Time) time.Time {
	switch g.trunc {
	case "hour":
		return t.Add(time.Hour)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func (g granularity) label(t time.Time) string {
	switch g.trunc {
	case "hour":
		return t.Format("15:00")
	case "month":
		return t.Format("Jan")
	default:
		return t.Format("Jan 02")
	}
}

// fillSeries builds a contiguous bucket series from truncate(now-window)
// through truncate(now), ascending, zero-filling buckets with no revenue.
func (r StatsRange) fillSeries(now time.Time, points map[time.Time]int64) []StatsBucket {
	g := r.granularity()
	from := g.truncate(now.Add(-g.window))
	to := g.truncate(now)

	out := []StatsBucket{}
	for t := from; !t.After(to); t = g.next(t) {
		out = append(out, StatsBucket{
			Bucket:       t,
			Label:        g.label(t),
			RevenueCents: points[t],
		})
	}
	return out
}
