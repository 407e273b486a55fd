package models

import (
	"errors"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusPaused  CampaignStatus = "paused"
	CampaignStatusDeleted CampaignStatus = "deleted"
	CampaignStatusUnknown CampaignStatus = "unknown"
)

type CostStatus string

const (
	CostStatusEstimated  CostStatus = "estimated"
	CostStatusConfirmed  CostStatus = "confirmed"
	CostStatusAPISourced CostStatus = "api_sourced"
)

// Campaign is one row of the campaigns table, synced from the upstream
// tracker. Cost is the base (API-sourced or estimated) cost; manual entries
// live in CostOverride.
type Campaign struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Status     CampaignStatus `json:"status"`
	Cost       float64        `json:"cost"`
	CostStatus CostStatus     `json:"cost_status"`

	// Observed activity bounds, maintained by the sync pipeline from the
	// hourly performance data.
	FirstActivity *time.Time `json:"first_activity,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Campaign) Validate() error {
	if c.ID == 0 {
		return errors.New("id is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// CostOverride is a manually entered cost figure for a campaign, valid over
// an explicit date period. At most one override is active per campaign.
type CostOverride struct {
	ID         int64     `json:"id"`
	CampaignID int64     `json:"campaign_id"`
	Cost       float64   `json:"cost"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Reason     string    `json:"reason,omitempty"`
	SetBy      string    `json:"set_by"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (o *CostOverride) Validate() error {
	if o.CampaignID == 0 {
		return errors.New("campaign_id is required")
	}
	if o.Cost < 0 {
		return errors.New("cost must be >= 0")
	}
	if o.StartDate.IsZero() || o.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if o.EndDate.Before(o.StartDate) {
		return errors.New("end_date must not precede start_date")
	}
	return nil
}

// HierarchyMapping assigns a campaign its five reporting dimensions.
type HierarchyMapping struct {
	CampaignID int64     `json:"campaign_id"`
	Network    string    `json:"network"`
	Domain     string    `json:"domain"`
	Placement  string    `json:"placement"`
	Targeting  string    `json:"targeting"`
	Special    string    `json:"special"`
	Confidence float64   `json:"mapping_confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PatternType string

const (
	PatternExact      PatternType = "exact"
	PatternContains   PatternType = "contains"
	PatternStartsWith PatternType = "starts_with"
	PatternEndsWith   PatternType = "ends_with"
	PatternRegex      PatternType = "regex"
)

// HierarchyRule maps campaign names to dimension values. Rules are applied
// in priority order (highest first); a dimension already set by a higher
// priority rule is not overwritten.
type HierarchyRule struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Type      PatternType `json:"pattern_type"`
	Pattern   string      `json:"pattern_value"`
	Network   string      `json:"network,omitempty"`
	Domain    string      `json:"domain,omitempty"`
	Placement string      `json:"placement,omitempty"`
	Targeting string      `json:"targeting,omitempty"`
	Special   string      `json:"special,omitempty"`
	Priority  int         `json:"priority"`
	IsActive  bool        `json:"is_active"`
}

func (r *HierarchyRule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.Pattern == "" {
		return errors.New("pattern_value is required")
	}
	switch r.Type {
	case PatternExact, PatternContains, PatternStartsWith, PatternEndsWith, PatternRegex:
	default:
		return errors.New("unknown pattern_type")
	}
	return nil
}

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun records one execution of the ETL pipeline.
type SyncRun struct {
	ID               int64      `json:"id"`
	SyncType         string     `json:"sync_type"` // campaigns, metrics, full
	Status           SyncStatus `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsInserted  int        `json:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated"`
	APICalls         int        `json:"api_calls_made"`
	Error            string     `json:"error_message,omitempty"`
}

type ActivityType string

const (
	ActivitySync            ActivityType = "sync"
	ActivityHierarchyUpdate ActivityType = "hierarchy_update"
	ActivityStatusChange    ActivityType = "status_change"
	ActivityCostUpdate      ActivityType = "cost_update"
	ActivityCostDelete      ActivityType = "cost_delete"
)

// ActivityEntry is one row of the campaign activity feed.
type ActivityEntry struct {
	ID          int64        `json:"id"`
	CampaignID  int64        `json:"campaign_id"`
	Type        ActivityType `json:"activity_type"`
	Description string       `json:"description"`
	Source      string       `json:"source"` // etl, api, system
	CreatedAt   time.Time    `json:"created_at"`
}
