package warehouse

import (
	"testing"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

func rule(name string, typ models.PatternType, pattern string, priority int, dims models.HierarchyRule) *models.HierarchyRule {
	dims.Name = name
	dims.Type = typ
	dims.Pattern = pattern
	dims.Priority = priority
	dims.IsActive = true
	return &dims
}

func TestMapCampaignNameNoRules(t *testing.T) {
	m := MapCampaignName("mystery campaign", nil)

	if m.Network != models.DefaultNetwork || m.Domain != models.DefaultDomain {
		t.Fatalf("unmatched name got %s/%s, want sentinel defaults", m.Network, m.Domain)
	}
	if m.Placement != models.DefaultPlacement || m.Targeting != models.DefaultTargeting || m.Special != models.DefaultSpecial {
		t.Fatalf("unmatched name did not fall back on all dimensions: %+v", m)
	}
	if m.Confidence != 0.1 {
		t.Fatalf("confidence = %v, want 0.1 floor for unmatched", m.Confidence)
	}
}

func TestMapCampaignNameCaseInsensitive(t *testing.T) {
	rules := []*models.HierarchyRule{
		rule("fb", models.PatternContains, "FACEBOOK", 100, models.HierarchyRule{Network: "fb"}),
	}
	m := MapCampaignName("facebook us mobile", rules)
	if m.Network != "fb" {
		t.Fatalf("network = %q, want fb from case-insensitive match", m.Network)
	}
}

func TestMapCampaignNamePatternTypes(t *testing.T) {
	cases := []struct {
		name    string
		typ     models.PatternType
		pattern string
		input   string
		match   bool
	}{
		{"exact hit", models.PatternExact, "brand us", "Brand US", true},
		{"exact miss", models.PatternExact, "brand us", "brand usa", false},
		{"contains", models.PatternContains, "tiktok", "q3 tiktok push", true},
		{"starts_with hit", models.PatternStartsWith, "us_", "US_search_01", true},
		{"starts_with miss", models.PatternStartsWith, "us_", "eu_US_search", false},
		{"ends_with", models.PatternEndsWith, "_retarget", "fb_q1_retarget", true},
		{"regex", models.PatternRegex, `goog(le)?_\d+`, "Google_42 brand", true},
		{"regex invalid never matches", models.PatternRegex, `goog(`, "goog(", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := []*models.HierarchyRule{
				rule("r", tc.typ, tc.pattern, 100, models.HierarchyRule{Network: "hit"}),
			}
			m := MapCampaignName(tc.input, rules)
			got := m.Network == "hit"
			if got != tc.match {
				t.Fatalf("match = %v, want %v", got, tc.match)
			}
		})
	}
}

func TestMapCampaignNameHigherPriorityWins(t *testing.T) {
	// Rules arrive pre-sorted by priority descending.
	rules := []*models.HierarchyRule{
		rule("high", models.PatternContains, "facebook", 900, models.HierarchyRule{Network: "fb", Domain: "social"}),
		rule("low", models.PatternContains, "face", 10, models.HierarchyRule{Network: "other", Placement: "mobile"}),
	}
	m := MapCampaignName("facebook q2", rules)

	if m.Network != "fb" {
		t.Fatalf("network = %q, want fb (higher priority set it first)", m.Network)
	}
	// The lower rule still fills dimensions the higher one left unset.
	if m.Placement != "mobile" {
		t.Fatalf("placement = %q, want mobile filled by lower priority rule", m.Placement)
	}
	if m.Domain != "social" {
		t.Fatalf("domain = %q, want social", m.Domain)
	}
}

func TestMapCampaignNameConfidence(t *testing.T) {
	full := models.HierarchyRule{Network: "fb", Domain: "social", Placement: "mobile", Targeting: "broad", Special: "vip"}

	cases := []struct {
		name  string
		rules []*models.HierarchyRule
		input string
		want  float64
	}{
		{
			"exact high priority full mapping",
			[]*models.HierarchyRule{rule("r", models.PatternExact, "brand us", 950, full)},
			"brand us",
			0.5, // 0.2 base + 0.2 exact + 0.1 priority
		},
		{
			"three matches few defaults",
			[]*models.HierarchyRule{
				rule("a", models.PatternContains, "fb", 100, models.HierarchyRule{Network: "fb"}),
				rule("b", models.PatternContains, "social", 90, models.HierarchyRule{Domain: "social"}),
				rule("c", models.PatternContains, "mobile", 80, models.HierarchyRule{Placement: "mobile"}),
			},
			"fb social mobile",
			0.6,
		},
		{
			"single weak match mostly defaults",
			[]*models.HierarchyRule{rule("a", models.PatternContains, "fb", 100, models.HierarchyRule{Network: "fb"})},
			"fb something",
			0.1, // 0.2 base - 0.2 default penalty, clamped to floor
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := MapCampaignName(tc.input, tc.rules)
			if diff := m.Confidence - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("confidence = %v, want %v", m.Confidence, tc.want)
			}
		})
	}
}
