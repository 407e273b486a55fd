package models

import "time"

// Sentinel dimension values applied when a campaign has no mapping for a
// given level. Grouping falls back to these so every leaf lands in exactly
// one bucket per level.
const (
	DefaultNetwork   = "Unknown"
	DefaultDomain    = "Unknown"
	DefaultPlacement = "Standard"
	DefaultTargeting = "General"
	DefaultSpecial   = "Standard"
)

// AdditiveMetrics are the raw counters that are correct to sum across
// records and subtrees. Ratios are never stored here; they are derived from
// summed values at the point of use.
type AdditiveMetrics struct {
	Cost         float64 `json:"cost"`
	Revenue      float64 `json:"revenue"`
	Sales        int64   `json:"sales"`
	UniqueClicks int64   `json:"unique_clicks"`
	RawClicks    int64   `json:"raw_clicks"`
	ConfirmReg   int64   `json:"confirm_reg"`
	RawReg       int64   `json:"raw_reg"`
	LTRev        float64 `json:"ltrev"`
}

// Add accumulates other into a.
func (a *AdditiveMetrics) Add(other AdditiveMetrics) {
	a.Cost += other.Cost
	a.Revenue += other.Revenue
	a.Sales += other.Sales
	a.UniqueClicks += other.UniqueClicks
	a.RawClicks += other.RawClicks
	a.ConfirmReg += other.ConfirmReg
	a.RawReg += other.RawReg
	a.LTRev += other.LTRev
}

// OverridePeriod is the single applicable cost override attached to a leaf:
// the active override whose date range is relevant to the request. Selection
// happens in the storage layer; the rollup core only prorates it.
type OverridePeriod struct {
	Cost  float64   `json:"cost"`
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// LeafRecord is one campaign's flat performance row for a query window,
// fully assembled by the leaf service: dimension tags resolved, counters
// summed over the window, heuristic revenue attached, override selected.
// LeafRecords are immutable inputs to the rollup core.
type LeafRecord struct {
	CampaignID   int64          `json:"campaign_id"`
	CampaignName string         `json:"campaign_name"`
	Status       CampaignStatus `json:"status"`

	Network   string `json:"network"`
	Domain    string `json:"domain"`
	Placement string `json:"placement"`
	Targeting string `json:"targeting"`
	Special   string `json:"special"`

	BaseCost      float64         `json:"base_cost"`
	Override      *OverridePeriod `json:"override,omitempty"`
	ActivityStart *time.Time      `json:"activity_start,omitempty"`
	ActivityEnd   *time.Time      `json:"activity_end,omitempty"`

	Additive AdditiveMetrics `json:"additive"`
}

// HourlyRow is one hour of warehouse counters for a campaign.
type HourlyRow struct {
	CampaignID     int64 `json:"campaign_id"`
	UnixHour       int64 `json:"unix_hour"`
	Sessions       int64 `json:"sessions"`
	CreditCards    int64 `json:"credit_cards"`
	EmailAccounts  int64 `json:"email_accounts"`
	GoogleAccounts int64 `json:"google_accounts"`
	Registrations  int64 `json:"registrations"`
	TotalAccounts  int64 `json:"total_accounts"`
	ConvertedUsers int64 `json:"converted_users"`
}

// Time returns the start of the hour the row covers.
func (h HourlyRow) Time() time.Time {
	return time.Unix(h.UnixHour*3600, 0).UTC()
}

// PerformanceTotals are per-campaign counter sums over a query window.
type PerformanceTotals struct {
	Sessions       int64
	CreditCards    int64
	Registrations  int64
	ConvertedUsers int64
}

// ActivityWindow is the observed first/last hour with any data for a campaign.
type ActivityWindow struct {
	First time.Time
	Last  time.Time
}
