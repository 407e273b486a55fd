package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orchard9/campaign-warehouse/internal/config"
	"github.com/orchard9/campaign-warehouse/internal/database"
	"github.com/orchard9/campaign-warehouse/internal/etl"
	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/middleware"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"github.com/orchard9/campaign-warehouse/internal/warehouse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	ClickHouse *database.ClickHouseDB
	Redis      *database.RedisDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// Tracker overrides the upstream client, used by tests.
	Tracker etl.TrackerClient
}

// Server wraps HTTP handlers and warehouse services.
type Server struct {
	rollupService    *warehouse.RollupService
	campaignService  *warehouse.CampaignService
	overrideService  *warehouse.OverrideService
	hierarchyService *warehouse.HierarchyService
	pipeline         *etl.Pipeline
	syncLog          storage.SyncLogRepo
	db               *database.PostgresDB
	ch               *database.ClickHouseDB
	redis            *database.RedisDB
	logger           *zap.Logger
	config           *config.Config
	metrics          *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
// Missing backends degrade to in-memory stores so the server always starts.
func NewServer(deps *Dependencies) http.Handler {
	var (
		campaignRepo  storage.CampaignRepo
		overrideRepo  storage.OverrideRepo
		hierarchyRepo storage.HierarchyRepo
		ruleRepo      storage.RuleRepo
		syncLogRepo   storage.SyncLogRepo
		activityRepo  storage.ActivityRepo
	)

	if deps.DB != nil {
		campaignRepo = storage.NewPostgresCampaignRepo(deps.DB.Pool)
		overrideRepo = storage.NewPostgresOverrideRepo(deps.DB.Pool)
		hierarchyRepo = storage.NewPostgresHierarchyRepo(deps.DB.Pool)
		ruleRepo = storage.NewPostgresRuleRepo(deps.DB.Pool)
		syncLogRepo = storage.NewPostgresSyncLogRepo(deps.DB.Pool)
		activityRepo = storage.NewPostgresActivityRepo(deps.DB.Pool)
	} else {
		campaignRepo = storage.NewMemoryCampaignRepo()
		overrideRepo = storage.NewMemoryOverrideRepo()
		hierarchyRepo = storage.NewMemoryHierarchyRepo()
		ruleRepo = storage.NewMemoryRuleRepo()
		syncLogRepo = storage.NewMemorySyncLogRepo()
		activityRepo = storage.NewMemoryActivityRepo()
	}

	var perfStore storage.PerformanceStore
	if deps.ClickHouse != nil {
		perfStore = storage.NewClickHousePerformanceStore(deps.ClickHouse.Conn)
	} else {
		perfStore = storage.NewMemoryPerformanceStore()
	}

	var cache *redis.Client
	if deps.Redis != nil {
		cache = deps.Redis.Client
	}

	leafSvc := warehouse.NewLeafService(campaignRepo, overrideRepo, hierarchyRepo, perfStore,
		deps.Config.Rollup, deps.Logger)
	rollupSvc := warehouse.NewRollupService(leafSvc, cache, deps.Config.Rollup, deps.Metrics, deps.Logger)
	campaignSvc := warehouse.NewCampaignService(campaignRepo, activityRepo, deps.Logger)
	overrideSvc := warehouse.NewOverrideService(campaignRepo, overrideRepo, activityRepo, deps.Logger)
	hierarchySvc := warehouse.NewHierarchyService(campaignRepo, hierarchyRepo, ruleRepo, activityRepo,
		deps.Config.Hierarchy.RulesFile, deps.Metrics, deps.Logger)

	tracker := deps.Tracker
	if tracker == nil {
		tracker = etl.NewHTTPTrackerClient(deps.Config.Upstream, deps.Metrics)
	}
	pipeline := etl.NewPipeline(tracker, campaignRepo, perfStore, syncLogRepo, activityRepo,
		hierarchySvc, deps.Metrics, deps.Logger)

	s := &Server{
		rollupService:    rollupSvc,
		campaignService:  campaignSvc,
		overrideService:  overrideSvc,
		hierarchyService: hierarchySvc,
		pipeline:         pipeline,
		syncLog:          syncLogRepo,
		db:               deps.DB,
		ch:               deps.ClickHouse,
		redis:            deps.Redis,
		logger:           deps.Logger,
		config:           deps.Config,
		metrics:          deps.Metrics,
	}

	recovery := middleware.NewRecoveryMiddleware(deps.Logger)
	logging := middleware.NewLoggingMiddleware(deps.Logger)
	auth := middleware.NewAuthMiddleware(deps.Config.Auth, deps.Logger)
	rateLimit := middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger)
	rateLimit.SetMetrics(deps.Metrics)
	if deps.Config.RateLimit.Enabled {
		go rateLimit.Janitor(time.Hour)
	}

	r := chi.NewRouter()
	r.Use(recovery.Handler)
	r.Use(logging.Handler)
	r.Use(rateLimit.Handler)
	r.Use(auth.Handler)

	r.Get("/health", s.handleHealth)

	if deps.Config.Metrics.Enabled {
		r.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rollup", s.handleRollup)

		// Management endpoints additionally get a per-IP bucket, so one
		// misbehaving client cannot drain the shared budget.
		r.Group(func(r chi.Router) {
			r.Use(rateLimit.HandlerPerIP)

			r.Get("/campaigns", s.handleListCampaigns)
			r.Get("/campaigns/{id}", s.handleGetCampaign)
			r.Get("/campaigns/{id}/activity", s.handleCampaignActivity)

			r.Get("/campaigns/{id}/cost-override", s.handleGetOverride)
			r.Put("/campaigns/{id}/cost-override", s.handleSetOverride)
			r.Delete("/campaigns/{id}/cost-override", s.handleClearOverride)

			r.Get("/hierarchy/rules", s.handleListRules)
			r.Post("/hierarchy/rules", s.handleAddRule)
			r.Post("/hierarchy/remap", s.handleRemap)

			r.Post("/sync", s.handleSync)
			r.Get("/sync/history", s.handleSyncHistory)

			r.Get("/activity", s.handleActivity)
		})
	})

	return r
}
