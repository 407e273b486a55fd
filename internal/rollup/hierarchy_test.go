package rollup

import (
	"testing"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

func leaf(id int64, network, domain, placement, targeting, special string, cost, revenue float64) Leaf {
	return Leaf{
		CampaignID: id,
		Network:    network,
		Domain:     domain,
		Placement:  placement,
		Targeting:  targeting,
		Special:    special,
		Metrics: Derive(models.AdditiveMetrics{
			Cost:    cost,
			Revenue: revenue,
			Sales:   1,
		}),
	}
}

func TestBuildHierarchyShape(t *testing.T) {
	leaves := []Leaf{
		leaf(1, "fb", "social", "mobile", "broad", "std", 100, 50),
		leaf(2, "fb", "social", "mobile", "narrow", "std", 200, 300),
		leaf(3, "fb", "social", "desktop", "broad", "std", 40, 10),
	}
	levels, err := LevelsFor("placement")
	if err != nil {
		t.Fatal(err)
	}

	nodes := buildHierarchy(leaves, levels, 0)
	if len(nodes) != 2 {
		t.Fatalf("got %d placement nodes, want 2", len(nodes))
	}
	for _, n := range nodes {
		if n.Level != LevelPlacement {
			t.Fatalf("depth-0 level = %q, want placement", n.Level)
		}
		if n.Leaves != nil {
			t.Fatal("depth-0 node carries leaves; they belong at the terminal level")
		}
		for _, child := range n.Children {
			if child.Level != LevelTargeting {
				t.Fatalf("depth-1 level = %q, want targeting", child.Level)
			}
			for _, grandchild := range child.Children {
				if grandchild.Level != LevelSpecial {
					t.Fatalf("depth-2 level = %q, want special", grandchild.Level)
				}
				if grandchild.Children != nil {
					t.Fatal("terminal node must not have children")
				}
				if len(grandchild.Leaves) == 0 {
					t.Fatal("terminal node must carry its leaf records")
				}
			}
		}
	}
}

func TestBuildHierarchyInsertionOrder(t *testing.T) {
	leaves := []Leaf{
		leaf(1, "tiktok", "", "", "", "", 1, 0),
		leaf(2, "fb", "", "", "", "", 1, 0),
		leaf(3, "tiktok", "", "", "", "", 1, 0),
		leaf(4, "google", "", "", "", "", 1, 0),
	}
	nodes := buildHierarchy(leaves, []string{LevelNetwork}, 0)

	want := []string{"tiktok", "fb", "google"}
	if len(nodes) != len(want) {
		t.Fatalf("got %d nodes, want %d", len(nodes), len(want))
	}
	for i, n := range nodes {
		if n.Name != want[i] {
			t.Fatalf("node[%d] = %q, want %q (first-encounter order)", i, n.Name, want[i])
		}
	}
}

func TestBuildHierarchySentinelFallback(t *testing.T) {
	leaves := []Leaf{
		leaf(1, "", "", "", "", "", 10, 0),
		leaf(2, "fb", "", "", "", "", 5, 0),
	}
	levels, _ := LevelsFor("network")
	nodes := buildHierarchy(leaves, levels, 0)

	if nodes[0].Name != models.DefaultNetwork {
		t.Fatalf("empty network grouped under %q, want %q", nodes[0].Name, models.DefaultNetwork)
	}
	// The sentinel leaf keeps falling back at every level below, too.
	child := nodes[0].Children[0]
	if child.Name != models.DefaultDomain {
		t.Fatalf("empty domain grouped under %q, want %q", child.Name, models.DefaultDomain)
	}
}

// Every node's additive totals must equal the sum over its direct children,
// recursively to the root.
func TestBuildHierarchyAssociativity(t *testing.T) {
	leaves := []Leaf{
		leaf(1, "fb", "social", "mobile", "broad", "std", 100, 50),
		leaf(2, "fb", "social", "mobile", "narrow", "std", 200, 300),
		leaf(3, "fb", "media", "desktop", "broad", "vip", 40, 10),
		leaf(4, "google", "search", "text", "intent", "std", 60, 90),
	}
	levels, _ := LevelsFor("network")
	nodes := buildHierarchy(leaves, levels, 0)

	var verify func(t *testing.T, n Node)
	verify = func(t *testing.T, n Node) {
		var sum models.AdditiveMetrics
		if n.Children != nil {
			for _, c := range n.Children {
				sum.Add(c.Metrics.AdditiveMetrics)
				verify(t, c)
			}
		} else {
			for _, l := range n.Leaves {
				sum.Add(l.Metrics.AdditiveMetrics)
			}
		}
		if sum != n.Metrics.AdditiveMetrics {
			t.Fatalf("node %s/%s totals %+v do not equal sum of children %+v",
				n.Level, n.Name, n.Metrics.AdditiveMetrics, sum)
		}
	}
	for _, n := range nodes {
		verify(t, n)
	}
}

func TestBuildHierarchyNodeRatiosRederived(t *testing.T) {
	leaves := []Leaf{
		leaf(1, "fb", "", "", "", "", 100, 50),
		leaf(2, "fb", "", "", "", "", 200, 300),
	}
	nodes := buildHierarchy(leaves, []string{LevelNetwork}, 0)

	want := Derive(models.AdditiveMetrics{Cost: 300, Revenue: 350, Sales: 2}).ROAS
	if nodes[0].Metrics.ROAS != want {
		t.Fatalf("node roas = %v, want %v (derived from summed totals)", nodes[0].Metrics.ROAS, want)
	}
}

func TestLevelsFor(t *testing.T) {
	for mode, wantLen := range map[string]int{
		"network": 5, "domain": 4, "placement": 3, "targeting": 2, "special": 0,
	} {
		levels, err := LevelsFor(mode)
		if err != nil {
			t.Fatalf("LevelsFor(%q): %v", mode, err)
		}
		if len(levels) != wantLen {
			t.Fatalf("LevelsFor(%q) has %d levels, want %d", mode, len(levels), wantLen)
		}
	}
	if _, err := LevelsFor("region"); err == nil {
		t.Fatal("LevelsFor(region) should fail")
	}
}
