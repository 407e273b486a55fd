package warehouse

import (
	"regexp"
	"strings"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// The mapper turns a campaign name into the five reporting dimensions by
// applying the rule list in priority order. Matching is case-insensitive.
// A rule only fills dimensions that an earlier, higher-priority rule has not
// already set.

type matchResult struct {
	mapping     models.HierarchyMapping
	matches     int
	exactMatch  bool
	topPriority int
}

func matchRules(name string, rules []*models.HierarchyRule) matchResult {
	var res matchResult
	lower := strings.ToLower(name)

	for _, r := range rules {
		if !ruleMatches(lower, r) {
			continue
		}
		res.matches++
		if r.Type == models.PatternExact {
			res.exactMatch = true
		}
		if r.Priority > res.topPriority {
			res.topPriority = r.Priority
		}
		fillUnset(&res.mapping, r)
	}
	return res
}

func ruleMatches(lowerName string, r *models.HierarchyRule) bool {
	pattern := strings.ToLower(r.Pattern)
	switch r.Type {
	case models.PatternExact:
		return lowerName == pattern
	case models.PatternContains:
		return strings.Contains(lowerName, pattern)
	case models.PatternStartsWith:
		return strings.HasPrefix(lowerName, pattern)
	case models.PatternEndsWith:
		return strings.HasSuffix(lowerName, pattern)
	case models.PatternRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(lowerName)
	}
	return false
}

func fillUnset(m *models.HierarchyMapping, r *models.HierarchyRule) {
	if m.Network == "" && r.Network != "" {
		m.Network = r.Network
	}
	if m.Domain == "" && r.Domain != "" {
		m.Domain = r.Domain
	}
	if m.Placement == "" && r.Placement != "" {
		m.Placement = r.Placement
	}
	if m.Targeting == "" && r.Targeting != "" {
		m.Targeting = r.Targeting
	}
	if m.Special == "" && r.Special != "" {
		m.Special = r.Special
	}
}

// MapCampaignName maps a campaign name to its dimensions with a confidence
// score. Unset dimensions fall back to the sentinel values so every campaign
// lands in a bucket.
func MapCampaignName(name string, rules []*models.HierarchyRule) models.HierarchyMapping {
	res := matchRules(name, rules)
	m := res.mapping

	if m.Network == "" {
		m.Network = models.DefaultNetwork
	}
	if m.Domain == "" {
		m.Domain = models.DefaultDomain
	}
	if m.Placement == "" {
		m.Placement = models.DefaultPlacement
	}
	if m.Targeting == "" {
		m.Targeting = models.DefaultTargeting
	}
	if m.Special == "" {
		m.Special = models.DefaultSpecial
	}

	m.Confidence = confidence(res, m)
	return m
}

// confidence scores how trustworthy a mapping is. Unmatched names get the
// floor; exact matches and very high priority rules add a bonus; a mapping
// that is mostly sentinels loses one.
func confidence(res matchResult, m models.HierarchyMapping) float64 {
	if res.matches == 0 {
		return 0.1
	}

	score := float64(res.matches) * 0.2
	if score > 0.8 {
		score = 0.8
	}
	if res.exactMatch {
		score += 0.2
	}
	if res.topPriority >= 900 {
		score += 0.1
	}

	defaults := 0
	if m.Network == models.DefaultNetwork {
		defaults++
	}
	if m.Domain == models.DefaultDomain {
		defaults++
	}
	if m.Placement == models.DefaultPlacement {
		defaults++
	}
	if m.Targeting == models.DefaultTargeting {
		defaults++
	}
	if m.Special == models.DefaultSpecial {
		defaults++
	}
	if defaults >= 3 {
		score -= 0.2
	}

	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
