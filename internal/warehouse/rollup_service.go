package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/rollup"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultWindowDays = 30

// RollupRequest is one rollup query: the display mode, an optional date
// window, and optional leaf filters.
type RollupRequest struct {
	DisplayMode string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      string
	Network     string
	Domain      string
}

// RollupService serves rollup queries, caching marshaled responses in Redis.
// Caching the JSON bytes rather than the response struct keeps the cached
// and freshly computed paths byte-identical.
type RollupService struct {
	leaves  *LeafService
	cache   *redis.Client
	cfg     config.RollupConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRollupService(leaves *LeafService, cache *redis.Client, cfg config.RollupConfig, m *metrics.Metrics, logger *zap.Logger) *RollupService {
	return &RollupService{
		leaves:  leaves,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// RollupJSON computes the rollup for the request and returns the marshaled
// response body. Unknown display modes fail before any leaf work happens.
func (s *RollupService) RollupJSON(ctx context.Context, req RollupRequest) ([]byte, error) {
	started := time.Now()

	if _, err := rollup.LevelsFor(req.DisplayMode); err != nil {
		if s.metrics != nil {
			s.metrics.RecordRollup(req.DisplayMode, "invalid", 0, time.Since(started))
		}
		return nil, err
	}

	start, end := s.resolveWindow(req)
	key := s.cacheKey(req, start, end)

	if s.cache != nil {
		if body, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCache("hit")
				s.metrics.RecordRollup(req.DisplayMode, "ok", 0, time.Since(started))
			}
			return body, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCache("miss")
		}
	} else if s.metrics != nil {
		s.metrics.RecordCache("bypass")
	}

	records, err := s.leaves.BuildLeaves(ctx, start, end, LeafFilter{
		Status:  req.Status,
		Network: req.Network,
		Domain:  req.Domain,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRollup(req.DisplayMode, "error", 0, time.Since(started))
		}
		return nil, err
	}

	resp, err := rollup.Compute(records, rollup.Filters{
		DisplayMode: req.DisplayMode,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Applied:     s.appliedFilters(req),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRollup(req.DisplayMode, "error", len(records), time.Since(started))
		}
		return nil, err
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, body, s.cfg.CacheTTL).Err(); err != nil {
			s.logger.Warn("failed to cache rollup response", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRollup(req.DisplayMode, "ok", len(records), time.Since(started))
	}

	s.logger.Debug("rollup computed",
		zap.String("display_mode", req.DisplayMode),
		zap.Int("leaves", len(records)),
		zap.Duration("took", time.Since(started)),
	)

	return body, nil
}

// InvalidateCache drops all cached rollup responses. Called after writes
// that change what rollups would return (overrides, remaps, syncs).
func (s *RollupService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "rollup:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("failed to scan rollup cache keys", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := s.cache.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("failed to invalidate rollup cache", zap.Error(err))
		}
	}
}

func (s *RollupService) resolveWindow(req RollupRequest) (time.Time, time.Time) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	end := today
	if req.EndDate != nil {
		end = *req.EndDate
	}
	start := today.AddDate(0, 0, -defaultWindowDays)
	if req.StartDate != nil {
		start = *req.StartDate
	}
	return start, end
}

func (s *RollupService) cacheKey(req RollupRequest, start, end time.Time) string {
	return fmt.Sprintf("rollup:%s:%s:%s:%s:%s:%s",
		req.DisplayMode,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		req.Status, req.Network, req.Domain)
}

func (s *RollupService) appliedFilters(req RollupRequest) map[string]string {
	applied := map[string]string{}
	if req.Status != "" {
		applied["status"] = req.Status
	}
	if req.Network != "" {
		applied["network"] = req.Network
	}
	if req.Domain != "" {
		applied["domain"] = req.Domain
	}
	return applied
}
