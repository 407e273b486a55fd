package storage

import (
	"context"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// =============================================
// CAMPAIGN REPOSITORY
// =============================================

// ListOptions narrows and pages campaign listings.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// CampaignRepo defines operations for campaign storage.
type CampaignRepo interface {
	List(ctx context.Context, opts ListOptions) ([]*models.Campaign, error)
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	Upsert(ctx context.Context, c *models.Campaign) error
	UpdateActivity(ctx context.Context, id int64, first, last time.Time) error
	Count(ctx context.Context, status string) (int, error)
}

// =============================================
// COST OVERRIDE REPOSITORY
// =============================================

// OverrideRepo defines operations for manual cost overrides. At most one
// override per campaign is active; Set deactivates any previous one.
type OverrideRepo interface {
	GetActive(ctx context.Context, campaignID int64) (*models.CostOverride, error)
	ListActive(ctx context.Context) (map[int64]*models.CostOverride, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]*models.CostOverride, error)
	Set(ctx context.Context, o *models.CostOverride) error
	Clear(ctx context.Context, campaignID int64) error
}

// =============================================
// HIERARCHY REPOSITORY
// =============================================

// HierarchyRepo defines operations for campaign hierarchy mappings.
type HierarchyRepo interface {
	GetAll(ctx context.Context) (map[int64]*models.HierarchyMapping, error)
	Get(ctx context.Context, campaignID int64) (*models.HierarchyMapping, error)
	Upsert(ctx context.Context, m *models.HierarchyMapping) error
}

// RuleRepo defines operations for hierarchy mapping rules.
type RuleRepo interface {
	ListActive(ctx context.Context) ([]*models.HierarchyRule, error)
	Add(ctx context.Context, r *models.HierarchyRule) error
}

// =============================================
// PERFORMANCE STORE
// =============================================

// PerformanceStore defines operations against the hourly performance
// warehouse.
type PerformanceStore interface {
	InsertHourly(ctx context.Context, rows []models.HourlyRow) error
	SumWindow(ctx context.Context, start, end time.Time) (map[int64]models.PerformanceTotals, error)
	ActivityBounds(ctx context.Context) (map[int64]models.ActivityWindow, error)
}

// =============================================
// SYNC LOG REPOSITORY
// =============================================

// SyncLogRepo defines operations for sync run bookkeeping.
type SyncLogRepo interface {
	Start(ctx context.Context, run *models.SyncRun) error
	Complete(ctx context.Context, run *models.SyncRun) error
	History(ctx context.Context, limit int) ([]*models.SyncRun, error)
}

// =============================================
// ACTIVITY LOG REPOSITORY
// =============================================

// ActivityRepo defines operations for the campaign activity audit trail.
type ActivityRepo interface {
	Log(ctx context.Context, e *models.ActivityEntry) error
	Recent(ctx context.Context, limit int) ([]*models.ActivityEntry, error)
	RecentByCampaign(ctx context.Context, campaignID int64, limit int) ([]*models.ActivityEntry, error)
}
