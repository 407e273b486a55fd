package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"github.com/orchard9/campaign-warehouse/internal/warehouse"
	"go.uber.org/zap"
)

// DefaultLookback is how far back hourly counters are re-fetched on each
// sync. Late-arriving data upstream settles within a day or two.
const DefaultLookback = 48 * time.Hour

// Pipeline runs the sync: campaigns from the tracker into PostgreSQL, hourly
// counters into the performance store, activity bounds refreshed, hierarchy
// remapped.
type Pipeline struct {
	client    TrackerClient
	campaigns storage.CampaignRepo
	perf      storage.PerformanceStore
	syncLog   storage.SyncLogRepo
	activity  storage.ActivityRepo
	hierarchy *warehouse.HierarchyService
	metrics   *metrics.Metrics
	logger    *zap.Logger
	lookback  time.Duration
}

func NewPipeline(
	client TrackerClient,
	campaigns storage.CampaignRepo,
	perf storage.PerformanceStore,
	syncLog storage.SyncLogRepo,
	activity storage.ActivityRepo,
	hierarchy *warehouse.HierarchyService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		client:    client,
		campaigns: campaigns,
		perf:      perf,
		syncLog:   syncLog,
		activity:  activity,
		hierarchy: hierarchy,
		metrics:   m,
		logger:    logger,
		lookback:  DefaultLookback,
	}
}

// SetLookback overrides the hourly re-fetch window.
func (p *Pipeline) SetLookback(d time.Duration) {
	p.lookback = d
}

// RunFullSync executes one complete sync run and records it in the sync log.
// The returned run carries the final status and counters even when the run
// failed partway.
func (p *Pipeline) RunFullSync(ctx context.Context) (*models.SyncRun, error) {
	started := time.Now().UTC()
	runID := uuid.New().String()
	log := p.logger.With(zap.String("run_id", runID))

	run := &models.SyncRun{
		SyncType:  "full",
		Status:    models.SyncStatusRunning,
		StartTime: started,
	}
	if err := p.syncLog.Start(ctx, run); err != nil {
		return nil, err
	}

	log.Info("sync started", zap.Int64("sync_id", run.ID))

	err := p.run(ctx, run, log)

	end := time.Now().UTC()
	run.EndTime = &end
	if err != nil {
		run.Status = models.SyncStatusFailed
		run.Error = err.Error()
		log.Error("sync failed", zap.Error(err))
	} else {
		run.Status = models.SyncStatusCompleted
		log.Info("sync completed",
			zap.Int("processed", run.RecordsProcessed),
			zap.Int("inserted", run.RecordsInserted),
			zap.Int("updated", run.RecordsUpdated),
			zap.Duration("took", end.Sub(started)),
		)
	}

	if completeErr := p.syncLog.Complete(ctx, run); completeErr != nil {
		log.Error("failed to record sync completion", zap.Error(completeErr))
	}
	if p.metrics != nil {
		p.metrics.RecordSyncRun(run.SyncType, string(run.Status), end.Sub(started))
	}

	return run, err
}

func (p *Pipeline) run(ctx context.Context, run *models.SyncRun, log *zap.Logger) error {
	if resettable, ok := p.client.(interface{ Reset() }); ok {
		resettable.Reset()
	}
	defer func() {
		if counted, ok := p.client.(interface{ APICalls() int }); ok {
			run.APICalls = counted.APICalls()
		}
	}()

	if err := p.syncCampaigns(ctx, run, log); err != nil {
		return err
	}
	if p.metrics != nil {
		if n, err := p.campaigns.Count(ctx, string(models.CampaignStatusActive)); err == nil {
			p.metrics.ActiveCampaigns.Set(float64(n))
		}
	}
	if err := p.syncHourly(ctx, run, log); err != nil {
		return err
	}
	if err := p.refreshActivityBounds(ctx, log); err != nil {
		return err
	}

	remapped, err := p.hierarchy.Remap(ctx)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordSynced("mappings", remapped)
	}

	return nil
}

func (p *Pipeline) syncCampaigns(ctx context.Context, run *models.SyncRun, log *zap.Logger) error {
	fetched, err := p.client.FetchCampaigns(ctx)
	if err != nil {
		return err
	}

	for i := range fetched {
		c := &fetched[i]
		run.RecordsProcessed++

		existing, err := p.campaigns.GetByID(ctx, c.ID)
		if err != nil {
			return err
		}

		// API-sourced cost never overwrites a manually confirmed one.
		if existing != nil && existing.CostStatus == models.CostStatusConfirmed && c.Cost == 0 {
			c.Cost = existing.Cost
			c.CostStatus = existing.CostStatus
		}

		if err := p.campaigns.Upsert(ctx, c); err != nil {
			return err
		}

		if existing == nil {
			run.RecordsInserted++
			_ = p.activity.Log(ctx, &models.ActivityEntry{
				CampaignID:  c.ID,
				Type:        models.ActivitySync,
				Description: "campaign discovered",
				Source:      "etl",
			})
		} else {
			run.RecordsUpdated++
			if existing.Status != c.Status {
				_ = p.activity.Log(ctx, &models.ActivityEntry{
					CampaignID:  c.ID,
					Type:        models.ActivityStatusChange,
					Description: "status changed from " + string(existing.Status) + " to " + string(c.Status),
					Source:      "etl",
				})
			}
		}
	}

	if p.metrics != nil {
		p.metrics.RecordSynced("campaigns", len(fetched))
	}
	log.Debug("campaigns synced", zap.Int("count", len(fetched)))
	return nil
}

func (p *Pipeline) syncHourly(ctx context.Context, run *models.SyncRun, log *zap.Logger) error {
	end := time.Now().UTC()
	start := end.Add(-p.lookback)

	rows, err := p.client.FetchHourly(ctx, start, end)
	if err != nil {
		return err
	}
	rows = p.dropBadRows(rows, end, log)
	if len(rows) == 0 {
		log.Debug("no hourly rows in lookback window")
		return nil
	}

	if err := p.perf.InsertHourly(ctx, rows); err != nil {
		return err
	}

	run.RecordsProcessed += len(rows)
	run.RecordsInserted += len(rows)
	if p.metrics != nil {
		p.metrics.RecordSynced("hourly_rows", len(rows))
	}
	log.Debug("hourly rows inserted", zap.Int("count", len(rows)))
	return nil
}

// dropBadRows filters rows the upstream should never send: negative counters
// or hours in the future. Bad rows are logged and skipped, never inserted.
func (p *Pipeline) dropBadRows(rows []models.HourlyRow, end time.Time, log *zap.Logger) []models.HourlyRow {
	maxHour := end.Unix()/3600 + 1
	out := rows[:0]
	for _, row := range rows {
		switch {
		case row.Sessions < 0 || row.CreditCards < 0 || row.Registrations < 0 || row.ConvertedUsers < 0:
			log.Warn("dropping hourly row with negative counters",
				zap.Int64("campaign_id", row.CampaignID),
				zap.Int64("unix_hour", row.UnixHour),
			)
		case row.UnixHour > maxHour:
			log.Warn("dropping hourly row from the future",
				zap.Int64("campaign_id", row.CampaignID),
				zap.Int64("unix_hour", row.UnixHour),
			)
		default:
			out = append(out, row)
		}
	}
	return out
}

func (p *Pipeline) refreshActivityBounds(ctx context.Context, log *zap.Logger) error {
	bounds, err := p.perf.ActivityBounds(ctx)
	if err != nil {
		return err
	}
	for id, w := range bounds {
		if err := p.campaigns.UpdateActivity(ctx, id, w.First, w.Last); err != nil {
			return err
		}
	}
	log.Debug("activity bounds refreshed", zap.Int("campaigns", len(bounds)))
	return nil
}
