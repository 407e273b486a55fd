package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"github.com/orchard9/campaign-warehouse/internal/warehouse"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fakeTracker struct {
	campaigns []models.Campaign
	hourly    []models.HourlyRow
	err       error
}

func (f *fakeTracker) FetchCampaigns(ctx context.Context) ([]models.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.campaigns, nil
}

func (f *fakeTracker) FetchHourly(ctx context.Context, start, end time.Time) ([]models.HourlyRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hourly, nil
}

type pipelineFixture struct {
	tracker   *fakeTracker
	campaigns *storage.MemoryCampaignRepo
	perf      *storage.MemoryPerformanceStore
	syncLog   *storage.MemorySyncLogRepo
	activity  *storage.MemoryActivityRepo
	mappings  *storage.MemoryHierarchyRepo
	pipeline  *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		tracker:   &fakeTracker{},
		campaigns: storage.NewMemoryCampaignRepo(),
		perf:      storage.NewMemoryPerformanceStore(),
		syncLog:   storage.NewMemorySyncLogRepo(),
		activity:  storage.NewMemoryActivityRepo(),
		mappings:  storage.NewMemoryHierarchyRepo(),
	}
	hierarchySvc := warehouse.NewHierarchyService(f.campaigns, f.mappings,
		storage.NewMemoryRuleRepo(), f.activity, "", nil, zap.NewNop())
	f.pipeline = NewPipeline(f.tracker, f.campaigns, f.perf, f.syncLog,
		f.activity, hierarchySvc, nil, zap.NewNop())
	return f
}

func TestRunFullSync(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	now := time.Now().UTC()
	f.tracker.campaigns = []models.Campaign{
		{ID: 1, Name: "facebook us", Status: models.CampaignStatusActive, Cost: 500},
		{ID: 2, Name: "tiktok q1", Status: models.CampaignStatusPaused},
	}
	f.tracker.hourly = []models.HourlyRow{
		{CampaignID: 1, UnixHour: now.Unix() / 3600, Sessions: 10, CreditCards: 1},
		{CampaignID: 1, UnixHour: now.Unix()/3600 - 1, Sessions: 5},
	}

	run, err := f.pipeline.RunFullSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.SyncStatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if run.RecordsInserted != 4 { // 2 campaigns + 2 hourly rows
		t.Fatalf("inserted = %d, want 4", run.RecordsInserted)
	}
	if run.EndTime == nil {
		t.Fatal("completed run has no end time")
	}

	c, _ := f.campaigns.GetByID(ctx, 1)
	if c == nil || c.Cost != 500 {
		t.Fatalf("campaign 1 = %+v", c)
	}
	if c.FirstActivity == nil || c.LastActivity == nil {
		t.Fatal("activity bounds were not refreshed")
	}
	if !c.FirstActivity.Before(*c.LastActivity) {
		t.Fatalf("bounds inverted: %v .. %v", c.FirstActivity, c.LastActivity)
	}

	// Hierarchy remap ran as part of the sync.
	if m, _ := f.mappings.Get(ctx, 1); m == nil {
		t.Fatal("campaign 1 has no hierarchy mapping after sync")
	}

	history, _ := f.syncLog.History(ctx, 10)
	if len(history) != 1 || history[0].Status != models.SyncStatusCompleted {
		t.Fatalf("sync log = %+v", history)
	}
}

func TestRunFullSyncUpdatesAndLogsStatusChange(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.tracker.campaigns = []models.Campaign{
		{ID: 1, Name: "c", Status: models.CampaignStatusActive},
	}
	if _, err := f.pipeline.RunFullSync(ctx); err != nil {
		t.Fatal(err)
	}

	f.tracker.campaigns[0].Status = models.CampaignStatusPaused
	run, err := f.pipeline.RunFullSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.RecordsUpdated != 1 {
		t.Fatalf("updated = %d, want 1", run.RecordsUpdated)
	}

	entries, _ := f.activity.RecentByCampaign(ctx, 1, 10)
	found := false
	for _, e := range entries {
		if e.Type == models.ActivityStatusChange {
			found = true
		}
	}
	if !found {
		t.Fatal("status change was not logged to the activity feed")
	}
}

func TestRunFullSyncPreservesConfirmedCost(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	f.campaigns.Upsert(ctx, &models.Campaign{
		ID: 1, Name: "c", Status: models.CampaignStatusActive,
		Cost: 750, CostStatus: models.CostStatusConfirmed,
	})
	f.tracker.campaigns = []models.Campaign{
		{ID: 1, Name: "c", Status: models.CampaignStatusActive, Cost: 0, CostStatus: models.CostStatusEstimated},
	}

	if _, err := f.pipeline.RunFullSync(ctx); err != nil {
		t.Fatal(err)
	}

	c, _ := f.campaigns.GetByID(ctx, 1)
	if c.Cost != 750 || c.CostStatus != models.CostStatusConfirmed {
		t.Fatalf("confirmed cost overwritten: %+v", c)
	}
}

func TestRunFullSyncLookbackOverlap(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	now := time.Now().UTC()
	f.tracker.campaigns = []models.Campaign{
		{ID: 1, Name: "c", Status: models.CampaignStatusActive},
	}
	f.tracker.hourly = []models.HourlyRow{
		{CampaignID: 1, UnixHour: now.Unix() / 3600, Sessions: 10, CreditCards: 1},
	}

	// Back-to-back syncs re-fetch the same lookback window; the repeated
	// hour must replace, not accumulate.
	if _, err := f.pipeline.RunFullSync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.RunFullSync(ctx); err != nil {
		t.Fatal(err)
	}

	totals, err := f.perf.SumWindow(ctx, now.AddDate(0, 0, -2), now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if totals[1].Sessions != 10 {
		t.Fatalf("sessions = %d after re-sync of the same hour, want 10", totals[1].Sessions)
	}
	if totals[1].CreditCards != 1 {
		t.Fatalf("credit_cards = %d after re-sync, want 1", totals[1].CreditCards)
	}
}

func TestRunFullSyncDropsBadHourlyRows(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()

	now := time.Now().UTC()
	f.tracker.campaigns = []models.Campaign{
		{ID: 1, Name: "c", Status: models.CampaignStatusActive},
	}
	f.tracker.hourly = []models.HourlyRow{
		{CampaignID: 1, UnixHour: now.Unix() / 3600, Sessions: 10},
		{CampaignID: 1, UnixHour: now.Unix()/3600 - 1, Sessions: -5},
		{CampaignID: 1, UnixHour: now.Unix()/3600 + 1000, Sessions: 3},
	}

	run, err := f.pipeline.RunFullSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 1 campaign + 1 valid row; the negative and future rows are dropped.
	if run.RecordsInserted != 2 {
		t.Fatalf("inserted = %d, want 2", run.RecordsInserted)
	}

	totals, _ := f.perf.SumWindow(ctx, now.AddDate(0, 0, -2), now.AddDate(0, 0, 2))
	if totals[1].Sessions != 10 {
		t.Fatalf("sessions = %d, want 10 from the single valid row", totals[1].Sessions)
	}
}

func TestRunFullSyncUpdatesActiveCampaignsGauge(t *testing.T) {
	ctx := context.Background()

	// promauto registers globally; one instance for this test binary.
	m := metrics.NewMetrics("etl_test")

	tracker := &fakeTracker{campaigns: []models.Campaign{
		{ID: 1, Name: "a", Status: models.CampaignStatusActive},
		{ID: 2, Name: "b", Status: models.CampaignStatusPaused},
	}}
	campaigns := storage.NewMemoryCampaignRepo()
	activity := storage.NewMemoryActivityRepo()
	hierarchySvc := warehouse.NewHierarchyService(campaigns, storage.NewMemoryHierarchyRepo(),
		storage.NewMemoryRuleRepo(), activity, "", nil, zap.NewNop())
	p := NewPipeline(tracker, campaigns, storage.NewMemoryPerformanceStore(),
		storage.NewMemorySyncLogRepo(), activity, hierarchySvc, m, zap.NewNop())

	if _, err := p.RunFullSync(ctx); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.ActiveCampaigns); got != 1 {
		t.Fatalf("active_campaigns = %v, want 1", got)
	}
}

func TestRunFullSyncFailure(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture()
	f.tracker.err = errors.New("upstream down")

	run, err := f.pipeline.RunFullSync(ctx)
	if err == nil {
		t.Fatal("expected error from failing tracker")
	}
	if run.Status != models.SyncStatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if run.Error == "" {
		t.Fatal("failed run carries no error message")
	}

	history, _ := f.syncLog.History(ctx, 10)
	if len(history) != 1 || history[0].Status != models.SyncStatusFailed {
		t.Fatalf("sync log = %+v", history)
	}
}
