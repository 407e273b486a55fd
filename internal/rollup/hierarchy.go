package rollup

import (
	"fmt"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

// Hierarchy level names, in the order they can appear in a level list.
const (
	LevelNetwork   = "network"
	LevelDomain    = "domain"
	LevelPlacement = "placement"
	LevelTargeting = "targeting"
	LevelSpecial   = "special"
)

// displayModeLevels fixes the tree shape per display mode. The mode names
// the level the hierarchy is rooted at; "special" produces a flat leaf list.
var displayModeLevels = map[string][]string{
	"network":   {LevelNetwork, LevelDomain, LevelPlacement, LevelTargeting, LevelSpecial},
	"domain":    {LevelDomain, LevelPlacement, LevelTargeting, LevelSpecial},
	"placement": {LevelPlacement, LevelTargeting, LevelSpecial},
	"targeting": {LevelTargeting, LevelSpecial},
	"special":   {},
}

// LevelsFor resolves the ordered level list for a display mode, or
// ErrUnknownDisplayMode when the mode is not in the fixed table.
func LevelsFor(displayMode string) ([]string, error) {
	levels, ok := displayModeLevels[displayMode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisplayMode, displayMode)
	}
	return levels, nil
}

// Leaf is a leaf record after proration and derivation: the window-effective
// cost has replaced the raw cost and the derived ratios are attached.
type Leaf struct {
	CampaignID   int64                 `json:"campaign_id"`
	CampaignName string                `json:"campaign_name"`
	Status       models.CampaignStatus `json:"status"`

	Network   string `json:"network"`
	Domain    string `json:"domain"`
	Placement string `json:"placement"`
	Targeting string `json:"targeting"`
	Special   string `json:"special"`

	Metrics Metrics `json:"metrics"`
}

// dimension returns the leaf's value for a level, falling back to the
// level's sentinel when the value is empty.
func (l Leaf) dimension(level string) string {
	var v, def string
	switch level {
	case LevelNetwork:
		v, def = l.Network, models.DefaultNetwork
	case LevelDomain:
		v, def = l.Domain, models.DefaultDomain
	case LevelPlacement:
		v, def = l.Placement, models.DefaultPlacement
	case LevelTargeting:
		v, def = l.Targeting, models.DefaultTargeting
	case LevelSpecial:
		v, def = l.Special, models.DefaultSpecial
	}
	if v == "" {
		return def
	}
	return v
}

// Node is one aggregated group in the hierarchy. Non-terminal levels carry
// Children; the last level carries the group's leaves. The depth check in
// buildHierarchy decides which, never the shape of the data.
type Node struct {
	Name     string  `json:"name"`
	Level    string  `json:"level"`
	Metrics  Metrics `json:"metrics"`
	Children []Node  `json:"children,omitempty"`
	Leaves   []Leaf  `json:"records,omitempty"`
}

// buildHierarchy recursively partitions leaves by the level at depth,
// summing additive metrics per group and re-deriving ratios at every node.
// Node order follows first encounter in the input, so output is
// deterministic for a given input order. Recursion depth is bounded by the
// level list (at most 5).
func buildHierarchy(leaves []Leaf, levels []string, depth int) []Node {
	if depth >= len(levels) {
		return nil
	}
	level := levels[depth]

	var order []string
	groups := make(map[string][]Leaf)
	for _, l := range leaves {
		key := l.dimension(level)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], l)
	}

	nodes := make([]Node, 0, len(order))
	for _, key := range order {
		group := groups[key]

		var sum models.AdditiveMetrics
		for _, l := range group {
			sum.Add(l.Metrics.AdditiveMetrics)
		}

		node := Node{
			Name:    key,
			Level:   level,
			Metrics: Derive(sum),
		}
		if depth < len(levels)-1 {
			node.Children = buildHierarchy(group, levels, depth+1)
		} else {
			node.Leaves = group
		}
		nodes = append(nodes, node)
	}
	return nodes
}
