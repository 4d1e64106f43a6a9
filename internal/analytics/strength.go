// Package analytics derives dashboard figures from fetched records.
// Everything here is pure: no I/O, and "now" is always passed in.
package analytics

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/2beens/fittrack/internal/fitness"
)

// OverloadIncrementKg is added to the last completed weight by Recommend.
const OverloadIncrementKg = 2.5

const maxTopLifts = 10

var parenSuffixRegex = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// OneRepMax estimates the one repetition maximum with the Brzycki formula.
// Outside 1..36 reps the weight is returned as is.
func OneRepMax(weightKg float64, reps int) float64 {
	if reps < 1 || reps > 36 {
		return weightKg
	}
	if reps == 1 {
		return weightKg
	}
	return weightKg / (1.0278 - 0.0278*float64(reps))
}

// NormalizeActivity strips a trailing parenthetical suffix,
// "Bench Press (machine)" becomes "Bench Press".
func NormalizeActivity(name string) string {
	return parenSuffixRegex.ReplaceAllString(name, "")
}

type ActivityMax struct {
	Activity string  `json:"activity"`
	WeightKg float64 `json:"maxWeightKg"`
}

// MaxWeightByActivity returns the heaviest weight per normalized activity,
// heaviest first, at most 10 entries.
func MaxWeightByActivity(records []fitness.TrainingRecord) []ActivityMax {
	activity2max := make(map[string]float64)
	for _, r := range records {
		if r.Activity == "" {
			continue
		}
		key := NormalizeActivity(r.Activity)
		if current, ok := activity2max[key]; !ok || r.WeightKg > current {
			activity2max[key] = r.WeightKg
		}
	}

	maxes := make([]ActivityMax, 0, len(activity2max))
	for activity, weight := range activity2max {
		maxes = append(maxes, ActivityMax{Activity: activity, WeightKg: weight})
	}
	sort.Slice(maxes, func(i, j int) bool {
		if maxes[i].WeightKg != maxes[j].WeightKg {
			return maxes[i].WeightKg > maxes[j].WeightKg
		}
		return maxes[i].Activity < maxes[j].Activity
	})

	if len(maxes) > maxTopLifts {
		maxes = maxes[:maxTopLifts]
	}
	return maxes
}

// Window is a trend range in days, WindowAll is unbounded.
type Window int

const (
	WindowAll Window = 0
	Window7   Window = 7
	Window30  Window = 30
	Window90  Window = 90
)

func ParseWindow(s string) (Window, error) {
	switch s {
	case "all", "":
		return WindowAll, nil
	case "7":
		return Window7, nil
	case "30":
		return Window30, nil
	case "90":
		return Window90, nil
	default:
		return WindowAll, fmt.Errorf("unknown trend window: %s", s)
	}
}

func (w Window) String() string {
	if w == WindowAll {
		return "all"
	}
	return fmt.Sprintf("%d", int(w))
}

// cutoff is the oldest instant inside the window. Record days are midnight
// UTC, so the day exactly w days back is only inside when now is midnight.
func (w Window) cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -int(w))
}

type TrendPoint struct {
	Date     string  `json:"date"`
	WeightKg float64 `json:"weightKg"`
	Reps     int     `json:"reps"`
	Sets     int     `json:"sets"`
}

type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// activityRecords returns the records of the normalized activity inside the
// window, oldest first. Records without a readable date only show up in the
// unbounded window, after the dated ones.
func activityRecords(records []fitness.TrainingRecord, activity string, window Window, now time.Time) []fitness.TrainingRecord {
	target := NormalizeActivity(activity)
	cutoff := window.cutoff(now)

	var matching []fitness.TrainingRecord
	for _, r := range records {
		if NormalizeActivity(r.Activity) != target {
			continue
		}
		if window != WindowAll {
			day := r.Day()
			if day.IsZero() || day.Before(cutoff) {
				continue
			}
		}
		matching = append(matching, r)
	}

	sort.SliceStable(matching, func(i, j int) bool {
		di, dj := matching[i].Day(), matching[j].Day()
		if di.IsZero() || dj.IsZero() {
			return !di.IsZero() && dj.IsZero()
		}
		return di.Before(dj)
	})
	return matching
}

// ActivityTrend is the weight and reps series of an activity.
func ActivityTrend(records []fitness.TrainingRecord, activity string, window Window, now time.Time) []TrendPoint {
	matching := activityRecords(records, activity, window, now)
	points := make([]TrendPoint, 0, len(matching))
	for _, r := range matching {
		points = append(points, TrendPoint{
			Date:     r.Date,
			WeightKg: r.WeightKg,
			Reps:     r.Reps,
			Sets:     r.Sets,
		})
	}
	return points
}

// OneRepMaxTrend is the estimated 1RM series of an activity.
func OneRepMaxTrend(records []fitness.TrainingRecord, activity string, window Window, now time.Time) []SeriesPoint {
	matching := activityRecords(records, activity, window, now)
	points := make([]SeriesPoint, 0, len(matching))
	for _, r := range matching {
		points = append(points, SeriesPoint{
			Date:  r.Date,
			Value: OneRepMax(r.WeightKg, r.Reps),
		})
	}
	return points
}

// TrendDelta is the change from the first to the last point in percent.
// It is undefined for less than two points or a first point of zero.
func TrendDelta(series []SeriesPoint) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	first := series[0].Value
	last := series[len(series)-1].Value
	if first == 0 {
		return 0, false
	}
	return (last - first) / first * 100, true
}

type Recommendation struct {
	Activity string  `json:"activity"`
	WeightKg float64 `json:"weightKg"`
	Sets     int     `json:"sets"`
	Reps     int     `json:"reps"`
	// date of the workout the recommendation is based on
	BasedOn string `json:"basedOn"`
}

// Recommend suggests the next workout of an activity: the sets and reps of
// the last completed one with a little more weight. Nil when the activity
// was never completed.
func Recommend(records []fitness.TrainingRecord, activity string) *Recommendation {
	target := NormalizeActivity(activity)

	var last *fitness.TrainingRecord
	for i := range records {
		r := records[i]
		if !r.Completed || NormalizeActivity(r.Activity) != target {
			continue
		}
		if last == nil || newer(r, *last) {
			last = &records[i]
		}
	}
	if last == nil {
		return nil
	}

	return &Recommendation{
		Activity: target,
		WeightKg: last.WeightKg + OverloadIncrementKg,
		Sets:     last.Sets,
		Reps:     last.Reps,
		BasedOn:  last.Date,
	}
}

func newer(a, b fitness.TrainingRecord) bool {
	da, db := a.Day(), b.Day()
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
