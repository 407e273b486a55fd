package warehouse

import (
	"context"
	"math"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"go.uber.org/zap"
)

// LeafFilter narrows which campaigns become leaf records.
type LeafFilter struct {
	Status  string
	Network string
	Domain  string
}

// LeafService assembles flat per-campaign leaf records for a query window:
// dimension tags from the hierarchy mappings, counters summed from the
// hourly store, estimated revenue attached, and the active cost override
// selected.
type LeafService struct {
	campaigns storage.CampaignRepo
	overrides storage.OverrideRepo
	hierarchy storage.HierarchyRepo
	perf      storage.PerformanceStore
	cfg       config.RollupConfig
	logger    *zap.Logger
}

func NewLeafService(
	campaigns storage.CampaignRepo,
	overrides storage.OverrideRepo,
	hierarchy storage.HierarchyRepo,
	perf storage.PerformanceStore,
	cfg config.RollupConfig,
	logger *zap.Logger,
) *LeafService {
	return &LeafService{
		campaigns: campaigns,
		overrides: overrides,
		hierarchy: hierarchy,
		perf:      perf,
		cfg:       cfg,
		logger:    logger,
	}
}

// BuildLeaves returns one leaf record per campaign that passes the filter.
// Campaigns with no counters in the window still appear: the dashboard shows
// spend even when a campaign produced nothing.
func (s *LeafService) BuildLeaves(ctx context.Context, start, end time.Time, filter LeafFilter) ([]models.LeafRecord, error) {
	campaigns, err := s.campaigns.List(ctx, storage.ListOptions{Status: filter.Status})
	if err != nil {
		return nil, err
	}

	mappings, err := s.hierarchy.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	totals, err := s.perf.SumWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	overrides, err := s.overrides.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	leaves := make([]models.LeafRecord, 0, len(campaigns))
	for _, c := range campaigns {
		if c.Status == models.CampaignStatusDeleted {
			continue
		}

		leaf := models.LeafRecord{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Status:       c.Status,
		}

		if m := mappings[c.ID]; m != nil {
			leaf.Network = m.Network
			leaf.Domain = m.Domain
			leaf.Placement = m.Placement
			leaf.Targeting = m.Targeting
			leaf.Special = m.Special
		}
		if filter.Network != "" && dimOrDefault(leaf.Network, models.DefaultNetwork) != filter.Network {
			continue
		}
		if filter.Domain != "" && dimOrDefault(leaf.Domain, models.DefaultDomain) != filter.Domain {
			continue
		}

		t := totals[c.ID]
		leaf.Additive = s.estimate(t)

		leaf.BaseCost = c.Cost
		if leaf.BaseCost == 0 && t.Sessions > 0 {
			leaf.BaseCost = float64(t.Sessions) * s.cfg.EstimatedCostPerSession
		}

		if o := overrides[c.ID]; o != nil {
			leaf.Override = &models.OverridePeriod{
				Cost:  o.Cost,
				Start: o.StartDate,
				End:   o.EndDate,
			}
		}

		leaf.ActivityStart = c.FirstActivity
		leaf.ActivityEnd = c.LastActivity

		leaves = append(leaves, leaf)
	}

	s.logger.Debug("built leaf records",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("leaves", len(leaves)),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	return leaves, nil
}

// estimate converts raw warehouse counters into the additive metric set.
// Sessions stand in for unique clicks; raw clicks and revenue are estimated
// from the configured rates because the tracker does not report them.
func (s *LeafService) estimate(t models.PerformanceTotals) models.AdditiveMetrics {
	revenue := float64(t.CreditCards) * s.cfg.RevenuePerSignup
	return models.AdditiveMetrics{
		Revenue:      revenue,
		LTRev:        revenue * s.cfg.LifetimeMultiplier,
		Sales:        t.ConvertedUsers,
		UniqueClicks: t.Sessions,
		RawClicks:    int64(math.Ceil(float64(t.Sessions) / s.cfg.ClickRate)),
		ConfirmReg:   t.CreditCards,
		RawReg:       t.Registrations,
	}
}

func dimOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
