package warehouse

import (
	"context"

	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"go.uber.org/zap"
)

// CampaignService exposes read access to synced campaigns and the activity
// feed.
type CampaignService struct {
	campaigns storage.CampaignRepo
	activity  storage.ActivityRepo
	logger    *zap.Logger
}

func NewCampaignService(campaigns storage.CampaignRepo, activity storage.ActivityRepo, logger *zap.Logger) *CampaignService {
	return &CampaignService{campaigns: campaigns, activity: activity, logger: logger}
}

func (s *CampaignService) List(ctx context.Context, opts storage.ListOptions) ([]*models.Campaign, error) {
	return s.campaigns.List(ctx, opts)
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*models.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

func (s *CampaignService) Count(ctx context.Context, status string) (int, error) {
	return s.campaigns.Count(ctx, status)
}

func (s *CampaignService) RecentActivity(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	return s.activity.Recent(ctx, limit)
}

func (s *CampaignService) CampaignActivity(ctx context.Context, campaignID int64, limit int) ([]*models.ActivityEntry, error) {
	return s.activity.RecentByCampaign(ctx, campaignID, limit)
}
