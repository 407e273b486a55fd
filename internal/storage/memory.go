package storage

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// In-memory implementations of the storage interfaces. They back the server
// when PostgreSQL or ClickHouse is unavailable and carry the unit tests.

// =============================================
// CAMPAIGNS
// =============================================

type MemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[int64]*models.Campaign
}

func NewMemoryCampaignRepo() *MemoryCampaignRepo {
	return &MemoryCampaignRepo{campaigns: make(map[int64]*models.Campaign)}
}

func (r *MemoryCampaignRepo) List(ctx context.Context, opts ListOptions) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		if opts.Status != "" && string(c.Status) != opts.Status {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if opts.Offset >= len(all) {
		return []*models.Campaign{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (r *MemoryCampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	if existing, ok := r.campaigns[c.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *MemoryCampaignRepo) UpdateActivity(ctx context.Context, id int64, first, last time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil
	}
	f, l := first, last
	c.FirstActivity = &f
	c.LastActivity = &l
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryCampaignRepo) Count(ctx context.Context, status string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if status == "" {
		return len(r.campaigns), nil
	}
	n := 0
	for _, c := range r.campaigns {
		if string(c.Status) == status {
			n++
		}
	}
	return n, nil
}

// =============================================
// COST OVERRIDES
// =============================================

type MemoryOverrideRepo struct {
	mu        sync.RWMutex
	nextID    int64
	overrides []*models.CostOverride
}

func NewMemoryOverrideRepo() *MemoryOverrideRepo {
	return &MemoryOverrideRepo{nextID: 1}
}

func (r *MemoryOverrideRepo) GetActive(ctx context.Context, campaignID int64) (*models.CostOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.overrides) - 1; i >= 0; i-- {
		o := r.overrides[i]
		if o.CampaignID == campaignID && o.IsActive {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryOverrideRepo) ListActive(ctx context.Context) (map[int64]*models.CostOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*models.CostOverride)
	for _, o := range r.overrides {
		if o.IsActive {
			cp := *o
			out[o.CampaignID] = &cp
		}
	}
	return out, nil
}

func (r *MemoryOverrideRepo) ListByCampaign(ctx context.Context, campaignID int64) ([]*models.CostOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.CostOverride
	for _, o := range r.overrides {
		if o.CampaignID == campaignID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryOverrideRepo) Set(ctx context.Context, o *models.CostOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prev := range r.overrides {
		if prev.CampaignID == o.CampaignID && prev.IsActive {
			prev.IsActive = false
			prev.UpdatedAt = time.Now().UTC()
		}
	}
	cp := *o
	cp.ID = r.nextID
	r.nextID++
	cp.IsActive = true
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.overrides = append(r.overrides, &cp)
	o.ID = cp.ID
	return nil
}

func (r *MemoryOverrideRepo) Clear(ctx context.Context, campaignID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.overrides {
		if o.CampaignID == campaignID && o.IsActive {
			o.IsActive = false
			o.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

// =============================================
// HIERARCHY MAPPINGS AND RULES
// =============================================

type MemoryHierarchyRepo struct {
	mu       sync.RWMutex
	mappings map[int64]*models.HierarchyMapping
}

func NewMemoryHierarchyRepo() *MemoryHierarchyRepo {
	return &MemoryHierarchyRepo{mappings: make(map[int64]*models.HierarchyMapping)}
}

func (r *MemoryHierarchyRepo) GetAll(ctx context.Context) (map[int64]*models.HierarchyMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*models.HierarchyMapping, len(r.mappings))
	for id, m := range r.mappings {
		cp := *m
		out[id] = &cp
	}
	return out, nil
}

func (r *MemoryHierarchyRepo) Get(ctx context.Context, campaignID int64) (*models.HierarchyMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.mappings[campaignID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryHierarchyRepo) Upsert(ctx context.Context, m *models.HierarchyMapping) error {
	if m == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.UpdatedAt = time.Now().UTC()
	r.mappings[m.CampaignID] = &cp
	return nil
}

type MemoryRuleRepo struct {
	mu     sync.RWMutex
	nextID int64
	rules  []*models.HierarchyRule
}

func NewMemoryRuleRepo() *MemoryRuleRepo {
	return &MemoryRuleRepo{nextID: 1}
}

func (r *MemoryRuleRepo) ListActive(ctx context.Context) ([]*models.HierarchyRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.HierarchyRule
	for _, rule := range r.rules {
		if rule.IsActive {
			cp := *rule
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r *MemoryRuleRepo) Add(ctx context.Context, rule *models.HierarchyRule) error {
	if rule.Type == models.PatternRegex {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	cp.ID = r.nextID
	r.nextID++
	r.rules = append(r.rules, &cp)
	rule.ID = cp.ID
	return nil
}

// =============================================
// PERFORMANCE STORE
// =============================================

// hourKey identifies one campaign-hour of counters.
type hourKey struct {
	campaignID int64
	unixHour   int64
}

// MemoryPerformanceStore keys rows by (campaign_id, unix_hour), so
// re-inserting an hour replaces it. Overlapping sync lookbacks never
// double-count, same as the ClickHouse store.
type MemoryPerformanceStore struct {
	mu   sync.RWMutex
	rows map[hourKey]models.HourlyRow
}

func NewMemoryPerformanceStore() *MemoryPerformanceStore {
	return &MemoryPerformanceStore{rows: make(map[hourKey]models.HourlyRow)}
}

func (s *MemoryPerformanceStore) InsertHourly(ctx context.Context, rows []models.HourlyRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows[hourKey{row.CampaignID, row.UnixHour}] = row
	}
	return nil
}

func (s *MemoryPerformanceStore) SumWindow(ctx context.Context, start, end time.Time) (map[int64]models.PerformanceTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Inclusive end date: hours anywhere inside the end day count.
	endOfDay := end.Add(23 * time.Hour)
	out := make(map[int64]models.PerformanceTotals)
	for _, row := range s.rows {
		ts := row.Time()
		if ts.Before(start) || ts.After(endOfDay) {
			continue
		}
		t := out[row.CampaignID]
		t.Sessions += row.Sessions
		t.CreditCards += row.CreditCards
		t.Registrations += row.Registrations
		t.ConvertedUsers += row.ConvertedUsers
		out[row.CampaignID] = t
	}
	return out, nil
}

func (s *MemoryPerformanceStore) ActivityBounds(ctx context.Context) (map[int64]models.ActivityWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.ActivityWindow)
	for _, row := range s.rows {
		ts := row.Time()
		w, ok := out[row.CampaignID]
		if !ok {
			out[row.CampaignID] = models.ActivityWindow{First: ts, Last: ts}
			continue
		}
		if ts.Before(w.First) {
			w.First = ts
		}
		if ts.After(w.Last) {
			w.Last = ts
		}
		out[row.CampaignID] = w
	}
	return out, nil
}

// =============================================
// SYNC LOG
// =============================================

type MemorySyncLogRepo struct {
	mu     sync.RWMutex
	nextID int64
	runs   []*models.SyncRun
}

func NewMemorySyncLogRepo() *MemorySyncLogRepo {
	return &MemorySyncLogRepo{nextID: 1}
}

func (r *MemorySyncLogRepo) Start(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	cp.ID = r.nextID
	r.nextID++
	r.runs = append(r.runs, &cp)
	run.ID = cp.ID
	return nil
}

func (r *MemorySyncLogRepo) Complete(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.ID == run.ID {
			cp := *run
			r.runs[i] = &cp
			return nil
		}
	}
	return nil
}

func (r *MemorySyncLogRepo) History(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.SyncRun, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *r.runs[i]
		out = append(out, &cp)
	}
	return out, nil
}

// =============================================
// ACTIVITY LOG
// =============================================

type MemoryActivityRepo struct {
	mu      sync.RWMutex
	nextID  int64
	entries []*models.ActivityEntry
}

func NewMemoryActivityRepo() *MemoryActivityRepo {
	return &MemoryActivityRepo{nextID: 1}
}

func (r *MemoryActivityRepo) Log(ctx context.Context, e *models.ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = r.nextID
	r.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, &cp)
	e.ID = cp.ID
	return nil
}

func (r *MemoryActivityRepo) Recent(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	return r.recent(0, limit)
}

func (r *MemoryActivityRepo) RecentByCampaign(ctx context.Context, campaignID int64, limit int) ([]*models.ActivityEntry, error) {
	return r.recent(campaignID, limit)
}

func (r *MemoryActivityRepo) recent(campaignID int64, limit int) ([]*models.ActivityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.ActivityEntry
	for i := len(r.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := r.entries[i]
		if campaignID != 0 && e.CampaignID != campaignID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
