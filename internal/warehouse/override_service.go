package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"go.uber.org/zap"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// OverrideService manages manual cost overrides. Every change lands in the
// activity feed so cost edits stay auditable.
type OverrideService struct {
	campaigns storage.CampaignRepo
	overrides storage.OverrideRepo
	activity  storage.ActivityRepo
	logger    *zap.Logger
}

func NewOverrideService(campaigns storage.CampaignRepo, overrides storage.OverrideRepo, activity storage.ActivityRepo, logger *zap.Logger) *OverrideService {
	return &OverrideService{
		campaigns: campaigns,
		overrides: overrides,
		activity:  activity,
		logger:    logger,
	}
}

// Active returns the campaign's active override, or nil.
func (s *OverrideService) Active(ctx context.Context, campaignID int64) (*models.CostOverride, error) {
	return s.overrides.GetActive(ctx, campaignID)
}

// History returns all overrides ever set for the campaign, newest first.
func (s *OverrideService) History(ctx context.Context, campaignID int64) ([]*models.CostOverride, error) {
	return s.overrides.ListByCampaign(ctx, campaignID)
}

// Set replaces the campaign's active override. The previous one is kept but
// deactivated.
func (s *OverrideService) Set(ctx context.Context, o *models.CostOverride) error {
	if err := o.Validate(); err != nil {
		return err
	}

	c, err := s.campaigns.GetByID(ctx, o.CampaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}

	if err := s.overrides.Set(ctx, o); err != nil {
		return err
	}

	_ = s.activity.Log(ctx, &models.ActivityEntry{
		CampaignID: o.CampaignID,
		Type:       models.ActivityCostUpdate,
		Description: fmt.Sprintf("cost override set to %.2f for %s to %s by %s",
			o.Cost, o.StartDate.Format("2006-01-02"), o.EndDate.Format("2006-01-02"), o.SetBy),
		Source: "api",
	})

	s.logger.Info("cost override set",
		zap.Int64("campaign_id", o.CampaignID),
		zap.Float64("cost", o.Cost),
		zap.String("set_by", o.SetBy),
	)

	return nil
}

// Clear deactivates the campaign's active override.
func (s *OverrideService) Clear(ctx context.Context, campaignID int64) error {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}

	if err := s.overrides.Clear(ctx, campaignID); err != nil {
		return err
	}

	_ = s.activity.Log(ctx, &models.ActivityEntry{
		CampaignID:  campaignID,
		Type:        models.ActivityCostDelete,
		Description: "cost override cleared",
		Source:      "api",
	})

	s.logger.Info("cost override cleared", zap.Int64("campaign_id", campaignID))
	return nil
}
