package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/rollup"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"github.com/orchard9/campaign-warehouse/internal/warehouse"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{}
	status := "ok"

	check := func(name string, health func(context.Context) error) {
		if health == nil {
			components[name] = "disabled"
			return
		}
		if err := health(ctx); err != nil {
			components[name] = "down"
			status = "degraded"
			return
		}
		components[name] = "ok"
	}

	if s.db != nil {
		check("postgres", s.db.Health)
	} else {
		components["postgres"] = "disabled"
	}
	if s.ch != nil {
		check("clickhouse", s.ch.Health)
	} else {
		components["clickhouse"] = "disabled"
	}
	if s.redis != nil {
		check("redis", s.redis.Health)
	} else {
		components["redis"] = "disabled"
	}

	// The health probe doubles as the pool-stats sampling point.
	if s.db != nil && s.metrics != nil {
		st := s.db.Stats()
		s.metrics.UpdateDBStats(int(st.IdleConns()), int(st.AcquiredConns()), int(st.TotalConns()))
	}

	s.jsonResponse(w, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// ---- Rollup ----

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode := q.Get("display_mode")
	if mode == "" {
		s.errorResponse(w, "display_mode is required", http.StatusBadRequest)
		return
	}

	start, ok := s.parseDate(w, q.Get("start_date"), "start_date")
	if !ok {
		return
	}
	end, ok := s.parseDate(w, q.Get("end_date"), "end_date")
	if !ok {
		return
	}

	body, err := s.rollupService.RollupJSON(r.Context(), warehouse.RollupRequest{
		DisplayMode: mode,
		StartDate:   start,
		EndDate:     end,
		Status:      q.Get("status"),
		Network:     q.Get("network"),
		Domain:      q.Get("domain"),
	})
	if err != nil {
		if errors.Is(err, rollup.ErrUnknownDisplayMode) {
			s.errorResponse(w, "unknown display_mode: "+mode, http.StatusBadRequest)
			return
		}
		s.logger.Error("rollup failed", zap.Error(err), zap.String("display_mode", mode))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// ---- Campaigns ----

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := intParam(q.Get("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := intParam(q.Get("offset"), 0)
	status := q.Get("status")

	list, err := s.campaignService.List(r.Context(), storage.ListOptions{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list campaigns", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	total, err := s.campaignService.Count(r.Context(), status)
	if err != nil {
		s.logger.Error("failed to count campaigns", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}

	if list == nil {
		list = []*models.Campaign{}
	}
	s.jsonResponse(w, map[string]interface{}{
		"campaigns": list,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	c, err := s.campaignService.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get campaign", zap.Error(err), zap.Int64("id", id))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if c == nil {
		s.errorResponse(w, "campaign not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, c)
}

func (s *Server) handleCampaignActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	limit := intParam(r.URL.Query().Get("limit"), defaultPageSize)

	entries, err := s.campaignService.CampaignActivity(r.Context(), id, limit)
	if err != nil {
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.ActivityEntry{}
	}
	s.jsonResponse(w, entries)
}

// ---- Cost Overrides ----

func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	active, err := s.overrideService.Active(r.Context(), id)
	if err != nil {
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	history, err := s.overrideService.History(r.Context(), id)
	if err != nil {
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*models.CostOverride{}
	}
	s.jsonResponse(w, map[string]interface{}{
		"active":  active,
		"history": history,
	})
}

type setOverrideRequest struct {
	Cost      float64 `json:"cost"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Reason    string  `json:"reason"`
	SetBy     string  `json:"set_by"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		s.errorResponse(w, "invalid start_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		s.errorResponse(w, "invalid end_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	o := &models.CostOverride{
		CampaignID: id,
		Cost:       req.Cost,
		StartDate:  start,
		EndDate:    end,
		Reason:     req.Reason,
		SetBy:      req.SetBy,
	}
	if err := s.overrideService.Set(r.Context(), o); err != nil {
		if errors.Is(err, warehouse.ErrCampaignNotFound) {
			s.errorResponse(w, "campaign not found", http.StatusNotFound)
			return
		}
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.rollupService.InvalidateCache(r.Context())
	s.jsonResponse(w, o)
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}

	if err := s.overrideService.Clear(r.Context(), id); err != nil {
		if errors.Is(err, warehouse.ErrCampaignNotFound) {
			s.errorResponse(w, "campaign not found", http.StatusNotFound)
			return
		}
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.rollupService.InvalidateCache(r.Context())
	s.jsonResponse(w, map[string]string{"status": "cleared"})
}

// ---- Hierarchy ----

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.hierarchyService.ActiveRules(r.Context())
	if err != nil {
		s.logger.Error("failed to list rules", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []*models.HierarchyRule{}
	}
	s.jsonResponse(w, rules)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule models.HierarchyRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.hierarchyService.AddRule(r.Context(), &rule); err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rule)
}

func (s *Server) handleRemap(w http.ResponseWriter, r *http.Request) {
	remapped, err := s.hierarchyService.Remap(r.Context())
	if err != nil {
		s.logger.Error("remap failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.rollupService.InvalidateCache(r.Context())
	s.jsonResponse(w, map[string]int{"remapped": remapped})
}

// ---- Sync ----

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	run, err := s.pipeline.RunFullSync(r.Context())
	if err != nil {
		// A persisted run still reports as an upstream failure; the run
		// record rides along in the error envelope for diagnostics.
		body := map[string]interface{}{"error": "sync failed: " + err.Error()}
		if run != nil {
			body["run"] = run
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	s.rollupService.InvalidateCache(r.Context())
	s.jsonResponse(w, run)
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), defaultPageSize)
	runs, err := s.syncLog.History(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}
	s.jsonResponse(w, runs)
}

// ---- Activity ----

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), defaultPageSize)
	entries, err := s.campaignService.RecentActivity(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.ActivityEntry{}
	}
	s.jsonResponse(w, entries)
}

// ---- Helpers ----

func (s *Server) campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, "invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// parseDate parses an optional YYYY-MM-DD query parameter. A malformed value
// writes a 400 and returns ok=false.
func (s *Server) parseDate(w http.ResponseWriter, value, name string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		s.errorResponse(w, "invalid "+name+", expected YYYY-MM-DD", http.StatusBadRequest)
		return nil, false
	}
	return &t, true
}

func intParam(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
