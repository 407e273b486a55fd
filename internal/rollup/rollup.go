// Package rollup implements the hierarchical performance rollup engine:
// cost proration over date windows, ratio derivation from additive
// counters, and variable-depth grouping by reporting dimension. The whole
// package is a pure, synchronous computation over rows already in memory;
// callers handle storage, caching and cancellation.
package rollup

import (
	"errors"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// ErrUnknownDisplayMode is the single input-validation failure the engine
// raises. Callers map it to a client error.
var ErrUnknownDisplayMode = errors.New("unknown display mode")

// Default query window when the caller supplies no dates: the 30 days up to
// today.
const defaultWindowDays = 30

// Filters select the rollup shape and window. Applied echoes the upstream
// row filters (status, network, ...) into the response metadata; the engine
// itself never filters rows.
type Filters struct {
	DisplayMode string
	StartDate   *time.Time
	EndDate     *time.Time
	Applied     map[string]string
}

// DateRange is the resolved query window, day-granular and inclusive.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Metadata describes one rollup response.
type Metadata struct {
	TotalRecords   int               `json:"total_records"`
	DateRange      DateRange         `json:"date_range"`
	FiltersApplied map[string]string `json:"filters_applied"`
}

// Response is the rollup envelope. Data holds []Node for tree modes and
// []Leaf for the flat "special" mode.
type Response struct {
	DisplayMode     string      `json:"display_mode"`
	HierarchyLevels []string    `json:"hierarchy_levels"`
	Data            interface{} `json:"data"`
	Metadata        Metadata    `json:"metadata"`
}

// Compute is the engine entry point: it validates the display mode,
// resolves the query window, prorates and derives every leaf, groups the
// result per the mode's level list and assembles the response. Inputs are
// never mutated; identical inputs produce identical output.
func Compute(records []models.LeafRecord, f Filters) (*Response, error) {
	return compute(records, f, time.Now().UTC())
}

func compute(records []models.LeafRecord, f Filters, now time.Time) (*Response, error) {
	levels, err := LevelsFor(f.DisplayMode)
	if err != nil {
		return nil, err
	}

	start, end := resolveWindow(f, now)

	leaves := make([]Leaf, 0, len(records))
	for _, r := range records {
		additive := r.Additive
		additive.Cost = EffectiveCost(r, start, end)
		leaves = append(leaves, Leaf{
			CampaignID:   r.CampaignID,
			CampaignName: r.CampaignName,
			Status:       r.Status,
			Network:      r.Network,
			Domain:       r.Domain,
			Placement:    r.Placement,
			Targeting:    r.Targeting,
			Special:      r.Special,
			Metrics:      Derive(additive),
		})
	}

	var data interface{}
	if len(levels) == 0 {
		data = leaves
	} else {
		data = buildHierarchy(leaves, levels, 0)
	}

	applied := f.Applied
	if applied == nil {
		applied = map[string]string{}
	}

	return &Response{
		DisplayMode:     f.DisplayMode,
		HierarchyLevels: levels,
		Data:            data,
		Metadata: Metadata{
			TotalRecords: len(records),
			DateRange: DateRange{
				Start: start.Format("2006-01-02"),
				End:   end.Format("2006-01-02"),
			},
			FiltersApplied: applied,
		},
	}, nil
}

// resolveWindow applies the documented defaults: end date is today, start
// date is 30 days before today, both at day granularity.
func resolveWindow(f Filters, now time.Time) (start, end time.Time) {
	today := truncateDay(now)
	if f.EndDate != nil {
		end = truncateDay(*f.EndDate)
	} else {
		end = today
	}
	if f.StartDate != nil {
		start = truncateDay(*f.StartDate)
	} else {
		start = today.AddDate(0, 0, -defaultWindowDays)
	}
	return start, end
}
