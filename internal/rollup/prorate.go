package rollup

import (
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// EffectiveCost computes the cost attributable to a leaf for the query
// window [queryStart, queryEnd], both inclusive. Priority order:
//
//  1. an attached cost override is prorated by daily rate over the overlap
//     of the override period and the query window;
//  2. otherwise a positive base cost with an observed activity window is
//     prorated the same way over the activity period;
//  3. otherwise the base cost is returned unmodified.
//
// All comparisons are at day granularity; time-of-day is discarded.
func EffectiveCost(leaf models.LeafRecord, queryStart, queryEnd time.Time) float64 {
	qs, qe := truncateDay(queryStart), truncateDay(queryEnd)

	if o := leaf.Override; o != nil {
		return prorate(o.Cost, truncateDay(o.Start), truncateDay(o.End), qs, qe)
	}
	if leaf.BaseCost > 0 && leaf.ActivityStart != nil && leaf.ActivityEnd != nil {
		return prorate(leaf.BaseCost, truncateDay(*leaf.ActivityStart), truncateDay(*leaf.ActivityEnd), qs, qe)
	}
	return leaf.BaseCost
}

// prorate apportions cost, defined over [periodStart, periodEnd], to the
// overlapping portion of [queryStart, queryEnd] at a flat daily rate.
// No overlap yields 0.
func prorate(cost float64, periodStart, periodEnd, queryStart, queryEnd time.Time) float64 {
	overlapStart := maxTime(periodStart, queryStart)
	overlapEnd := minTime(periodEnd, queryEnd)
	if overlapStart.After(overlapEnd) {
		return 0
	}

	periodDays := inclusiveDayCount(periodStart, periodEnd)
	overlapDays := inclusiveDayCount(overlapStart, overlapEnd)
	return SafeDivide(cost, float64(periodDays)) * float64(overlapDays)
}

// inclusiveDayCount counts calendar days spanned by [a, b] with both
// endpoints included: the same start and end date counts as 1 day. Both
// proration paths use this helper so the day convention cannot drift.
func inclusiveDayCount(a, b time.Time) int {
	return int(b.Sub(a)/(24*time.Hour)) + 1
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
