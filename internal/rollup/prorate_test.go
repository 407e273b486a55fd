package rollup

import (
	"math"
	"testing"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInclusiveDayCount(t *testing.T) {
	cases := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", date(2024, 1, 1), date(2024, 1, 1), 1},
		{"full january", date(2024, 1, 1), date(2024, 1, 31), 31},
		{"ten days", date(2024, 1, 1), date(2024, 1, 10), 10},
		{"across month boundary", date(2024, 1, 30), date(2024, 2, 2), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inclusiveDayCount(tc.a, tc.b); got != tc.want {
				t.Fatalf("inclusiveDayCount(%s, %s) = %d, want %d",
					tc.a.Format("2006-01-02"), tc.b.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestEffectiveCostOverride(t *testing.T) {
	leaf := models.LeafRecord{
		BaseCost: 9999, // must be ignored while an override is attached
		Override: &models.OverridePeriod{
			Cost:  310,
			Start: date(2024, 1, 1),
			End:   date(2024, 1, 31),
		},
	}

	cases := []struct {
		name   string
		qs, qe time.Time
		want   float64
	}{
		{"full overlap", date(2024, 1, 1), date(2024, 1, 31), 310},
		{"partial overlap", date(2024, 1, 1), date(2024, 1, 10), 100},
		{"no overlap", date(2024, 2, 1), date(2024, 2, 28), 0},
		{"window wider than override", date(2023, 12, 1), date(2024, 3, 1), 310},
		{"single day", date(2024, 1, 15), date(2024, 1, 15), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EffectiveCost(leaf, tc.qs, tc.qe)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("EffectiveCost = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEffectiveCostActivityWindow(t *testing.T) {
	start := date(2024, 1, 1)
	end := date(2024, 1, 20) // 20 active days
	leaf := models.LeafRecord{
		BaseCost:      200,
		ActivityStart: &start,
		ActivityEnd:   &end,
	}

	// Query covers half the activity period: 10 of 20 days.
	got := EffectiveCost(leaf, date(2024, 1, 11), date(2024, 1, 31))
	if math.Abs(got-100) > 1e-9 {
		t.Fatalf("EffectiveCost = %v, want 100", got)
	}

	// Activity entirely outside the window.
	if got := EffectiveCost(leaf, date(2024, 3, 1), date(2024, 3, 31)); got != 0 {
		t.Fatalf("EffectiveCost = %v, want 0 for disjoint activity", got)
	}
}

func TestEffectiveCostFallbacks(t *testing.T) {
	// No override, no activity window: base cost passes through untouched.
	leaf := models.LeafRecord{BaseCost: 75.5}
	if got := EffectiveCost(leaf, date(2024, 1, 1), date(2024, 1, 31)); got != 75.5 {
		t.Fatalf("EffectiveCost = %v, want 75.5", got)
	}

	// Zero base cost never enters the activity proration path.
	start, end := date(2024, 1, 1), date(2024, 1, 10)
	leaf = models.LeafRecord{BaseCost: 0, ActivityStart: &start, ActivityEnd: &end}
	if got := EffectiveCost(leaf, date(2024, 1, 1), date(2024, 1, 5)); got != 0 {
		t.Fatalf("EffectiveCost = %v, want 0", got)
	}
}

func TestEffectiveCostDiscardsTimeOfDay(t *testing.T) {
	leaf := models.LeafRecord{
		Override: &models.OverridePeriod{
			Cost:  310,
			Start: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 31, 0, 1, 0, 0, time.UTC),
		},
	}
	got := EffectiveCost(leaf,
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 1, 0, 0, 0, time.UTC))
	if math.Abs(got-310) > 1e-9 {
		t.Fatalf("EffectiveCost = %v, want 310 with time-of-day discarded", got)
	}
}

func TestEffectiveCostIsPure(t *testing.T) {
	leaf := models.LeafRecord{
		Override: &models.OverridePeriod{Cost: 310, Start: date(2024, 1, 1), End: date(2024, 1, 31)},
	}
	a := EffectiveCost(leaf, date(2024, 1, 1), date(2024, 1, 10))
	b := EffectiveCost(leaf, date(2024, 1, 1), date(2024, 1, 10))
	if a != b {
		t.Fatalf("repeated calls disagree: %v vs %v", a, b)
	}
}
