package warehouse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"go.uber.org/zap"
)

type hierarchyFixture struct {
	campaigns *storage.MemoryCampaignRepo
	mappings  *storage.MemoryHierarchyRepo
	rules     *storage.MemoryRuleRepo
	activity  *storage.MemoryActivityRepo
}

func newHierarchyService(t *testing.T, rulesFile string) (*HierarchyService, *hierarchyFixture) {
	f := &hierarchyFixture{
		campaigns: storage.NewMemoryCampaignRepo(),
		mappings:  storage.NewMemoryHierarchyRepo(),
		rules:     storage.NewMemoryRuleRepo(),
		activity:  storage.NewMemoryActivityRepo(),
	}
	svc := NewHierarchyService(f.campaigns, f.mappings, f.rules, f.activity,
		rulesFile, nil, zap.NewNop())
	return svc, f
}

func TestRemapAppliesRules(t *testing.T) {
	ctx := context.Background()
	svc, f := newHierarchyService(t, "")

	f.campaigns.Upsert(ctx, &models.Campaign{ID: 1, Name: "facebook us mobile", Status: models.CampaignStatusActive})
	f.campaigns.Upsert(ctx, &models.Campaign{ID: 2, Name: "mystery", Status: models.CampaignStatusActive})

	f.rules.Add(ctx, &models.HierarchyRule{
		Name: "fb", Type: models.PatternContains, Pattern: "facebook",
		Network: "fb", Domain: "social", Priority: 100, IsActive: true,
	})

	n, err := svc.Remap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("remapped = %d, want 2", n)
	}

	m, _ := f.mappings.Get(ctx, 1)
	if m == nil || m.Network != "fb" || m.Domain != "social" {
		t.Fatalf("mapping for 1 = %+v", m)
	}
	m2, _ := f.mappings.Get(ctx, 2)
	if m2 == nil || m2.Network != models.DefaultNetwork {
		t.Fatalf("mapping for 2 = %+v, want sentinel fallback", m2)
	}
	if m2.Confidence != 0.1 {
		t.Fatalf("fallback confidence = %v, want 0.1", m2.Confidence)
	}

	entries, _ := f.activity.Recent(ctx, 10)
	if len(entries) != 2 || entries[0].Type != models.ActivityHierarchyUpdate {
		t.Fatalf("activity = %+v, want hierarchy_update entries", entries)
	}
}

func TestRemapSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, f := newHierarchyService(t, "")

	f.campaigns.Upsert(ctx, &models.Campaign{ID: 1, Name: "x", Status: models.CampaignStatusActive})

	if _, err := svc.Remap(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := svc.Remap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second remap changed %d mappings, want 0", n)
	}
}

func TestRulesFileLoading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - name: tiktok
    pattern_type: contains
    pattern_value: tiktok
    network: tiktok
    domain: social
    priority: 500
  - name: google exact
    pattern_type: exact
    pattern_value: google brand
    network: google
    priority: 900
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	svc, f := newHierarchyService(t, path)
	f.rules.Add(ctx, &models.HierarchyRule{
		Name: "db rule", Type: models.PatternContains, Pattern: "fb",
		Network: "fb", Priority: 700, IsActive: true,
	})

	rules, err := svc.ActiveRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want file + db = 3", len(rules))
	}
	// Combined set is ordered by priority descending.
	if rules[0].Name != "google exact" || rules[1].Name != "db rule" || rules[2].Name != "tiktok" {
		t.Fatalf("rule order = %s, %s, %s", rules[0].Name, rules[1].Name, rules[2].Name)
	}
}

func TestRulesFileMissingIsNotAnError(t *testing.T) {
	svc, _ := newHierarchyService(t, "/nonexistent/rules.yaml")
	rules, err := svc.ActiveRules(context.Background())
	if err != nil {
		t.Fatalf("missing rules file must not error, got %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("got %d rules, want 0", len(rules))
	}
}

func TestRulesFileInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - name: broken
    pattern_type: nonsense
    pattern_value: x
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, _ := newHierarchyService(t, path)
	if _, err := svc.ActiveRules(context.Background()); err == nil {
		t.Fatal("invalid pattern_type in rules file must fail")
	}
}

func TestAddRuleValidation(t *testing.T) {
	svc, _ := newHierarchyService(t, "")
	err := svc.AddRule(context.Background(), &models.HierarchyRule{
		Name: "bad", Type: "nope", Pattern: "x",
	})
	if err == nil {
		t.Fatal("unknown pattern type must fail validation")
	}
}
