package warehouse

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/orchard9/campaign-warehouse/internal/metrics"
	"github.com/orchard9/campaign-warehouse/internal/models"
	"github.com/orchard9/campaign-warehouse/internal/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// HierarchyService maintains the campaign-to-dimension mappings. Rules come
// from two places: a YAML file shipped with the deployment and rows added at
// runtime through the API. Both sets apply together, ordered by priority.
type HierarchyService struct {
	campaigns storage.CampaignRepo
	mappings  storage.HierarchyRepo
	rules     storage.RuleRepo
	activity  storage.ActivityRepo
	rulesFile string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewHierarchyService(
	campaigns storage.CampaignRepo,
	mappings storage.HierarchyRepo,
	rules storage.RuleRepo,
	activity storage.ActivityRepo,
	rulesFile string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HierarchyService {
	return &HierarchyService{
		campaigns: campaigns,
		mappings:  mappings,
		rules:     rules,
		activity:  activity,
		rulesFile: rulesFile,
		metrics:   m,
		logger:    logger,
	}
}

// ruleFile is the YAML schema of the rules file.
type ruleFile struct {
	Rules []struct {
		Name      string `yaml:"name"`
		Type      string `yaml:"pattern_type"`
		Pattern   string `yaml:"pattern_value"`
		Network   string `yaml:"network"`
		Domain    string `yaml:"domain"`
		Placement string `yaml:"placement"`
		Targeting string `yaml:"targeting"`
		Special   string `yaml:"special"`
		Priority  int    `yaml:"priority"`
	} `yaml:"rules"`
}

// loadFileRules parses the configured rules file. A missing file is not an
// error; deployments without one rely on DB rules alone.
func (s *HierarchyService) loadFileRules() ([]*models.HierarchyRule, error) {
	if s.rulesFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.rulesFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", s.rulesFile, err)
	}

	out := make([]*models.HierarchyRule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule := &models.HierarchyRule{
			Name:      r.Name,
			Type:      models.PatternType(r.Type),
			Pattern:   r.Pattern,
			Network:   r.Network,
			Domain:    r.Domain,
			Placement: r.Placement,
			Targeting: r.Targeting,
			Special:   r.Special,
			Priority:  r.Priority,
			IsActive:  true,
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule %q in %s: %w", r.Name, s.rulesFile, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// ActiveRules returns the combined rule set, highest priority first.
func (s *HierarchyService) ActiveRules(ctx context.Context) ([]*models.HierarchyRule, error) {
	dbRules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	fileRules, err := s.loadFileRules()
	if err != nil {
		return nil, err
	}

	all := append(fileRules, dbRules...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority > all[j].Priority })
	return all, nil
}

// AddRule validates and persists a runtime rule.
func (s *HierarchyService) AddRule(ctx context.Context, rule *models.HierarchyRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.rules.Add(ctx, rule)
}

// Mapping returns the stored mapping for a campaign, or nil.
func (s *HierarchyService) Mapping(ctx context.Context, campaignID int64) (*models.HierarchyMapping, error) {
	return s.mappings.Get(ctx, campaignID)
}

// Remap recomputes dimensions for every campaign from the current rule set
// and persists the results. Returns the number of campaigns remapped.
func (s *HierarchyService) Remap(ctx context.Context) (int, error) {
	rules, err := s.ActiveRules(ctx)
	if err != nil {
		return 0, err
	}

	campaigns, err := s.campaigns.List(ctx, storage.ListOptions{})
	if err != nil {
		return 0, err
	}

	existing, err := s.mappings.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	remapped := 0
	for _, c := range campaigns {
		m := MapCampaignName(c.Name, rules)
		m.CampaignID = c.ID

		prev := existing[c.ID]
		if prev != nil && sameDimensions(prev, &m) {
			continue
		}

		if err := s.mappings.Upsert(ctx, &m); err != nil {
			return remapped, fmt.Errorf("failed to store mapping for campaign %d: %w", c.ID, err)
		}
		remapped++

		source := "rule"
		if m.Confidence <= 0.1 {
			source = "fallback"
		}
		if s.metrics != nil {
			s.metrics.RecordMapping(source, m.Confidence)
		}

		if s.activity != nil {
			_ = s.activity.Log(ctx, &models.ActivityEntry{
				CampaignID:  c.ID,
				Type:        models.ActivityHierarchyUpdate,
				Description: fmt.Sprintf("hierarchy remapped to %s/%s/%s", m.Network, m.Domain, m.Placement),
				Source:      "system",
			})
		}
	}

	s.logger.Info("hierarchy remap completed",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("remapped", remapped),
		zap.Int("rules", len(rules)),
	)

	return remapped, nil
}

func sameDimensions(a, b *models.HierarchyMapping) bool {
	return a.Network == b.Network &&
		a.Domain == b.Domain &&
		a.Placement == b.Placement &&
		a.Targeting == b.Targeting &&
		a.Special == b.Special
}
