package rollup

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/models"
)

func record(id int64, network string, cost float64, sessions int64) models.LeafRecord {
	return models.LeafRecord{
		CampaignID:   id,
		CampaignName: "campaign",
		Status:       models.CampaignStatusActive,
		Network:      network,
		BaseCost:     cost,
		Additive: models.AdditiveMetrics{
			Revenue:      100,
			UniqueClicks: sessions,
		},
	}
}

func TestComputeUnknownDisplayMode(t *testing.T) {
	resp, err := Compute([]models.LeafRecord{record(1, "fb", 10, 5)}, Filters{DisplayMode: "region"})
	if !errors.Is(err, ErrUnknownDisplayMode) {
		t.Fatalf("err = %v, want ErrUnknownDisplayMode", err)
	}
	if resp != nil {
		t.Fatal("response must be nil on validation failure")
	}
}

func TestComputeFlatMode(t *testing.T) {
	records := []models.LeafRecord{
		record(1, "fb", 10, 5),
		record(2, "google", 20, 8),
		record(3, "", 5, 2),
	}
	resp, err := Compute(records, Filters{DisplayMode: "special"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.HierarchyLevels) != 0 {
		t.Fatalf("hierarchy_levels = %v, want empty for flat mode", resp.HierarchyLevels)
	}
	leaves, ok := resp.Data.([]Leaf)
	if !ok {
		t.Fatalf("data is %T, want []Leaf", resp.Data)
	}
	if len(leaves) != len(records) {
		t.Fatalf("flat output has %d records, want %d", len(leaves), len(records))
	}
	if resp.Metadata.TotalRecords != len(records) {
		t.Fatalf("total_records = %d, want %d", resp.Metadata.TotalRecords, len(records))
	}
}

func TestComputeTreeMode(t *testing.T) {
	start := date(2024, 1, 1)
	end := date(2024, 1, 31)
	records := []models.LeafRecord{
		record(1, "fb", 100, 5),
		record(2, "fb", 50, 3),
		record(3, "google", 25, 1),
	}
	resp, err := Compute(records, Filters{
		DisplayMode: "network",
		StartDate:   &start,
		EndDate:     &end,
		Applied:     map[string]string{"status": "active"},
	})
	if err != nil {
		t.Fatal(err)
	}
	nodes, ok := resp.Data.([]Node)
	if !ok {
		t.Fatalf("data is %T, want []Node", resp.Data)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d network nodes, want 2", len(nodes))
	}
	if nodes[0].Name != "fb" || nodes[0].Metrics.Cost != 150 {
		t.Fatalf("fb node = %q cost %v, want fb/150", nodes[0].Name, nodes[0].Metrics.Cost)
	}
	if resp.Metadata.DateRange.Start != "2024-01-01" || resp.Metadata.DateRange.End != "2024-01-31" {
		t.Fatalf("date range = %+v", resp.Metadata.DateRange)
	}
	if resp.Metadata.FiltersApplied["status"] != "active" {
		t.Fatalf("filters_applied = %v", resp.Metadata.FiltersApplied)
	}
}

func TestComputeProratesBeforeGrouping(t *testing.T) {
	r := record(1, "fb", 0, 5)
	r.Override = &models.OverridePeriod{Cost: 310, Start: date(2024, 1, 1), End: date(2024, 1, 31)}
	start := date(2024, 1, 1)
	end := date(2024, 1, 10)

	resp, err := Compute([]models.LeafRecord{r}, Filters{
		DisplayMode: "network", StartDate: &start, EndDate: &end,
	})
	if err != nil {
		t.Fatal(err)
	}
	nodes := resp.Data.([]Node)
	if got := nodes[0].Metrics.Cost; got != 100 {
		t.Fatalf("node cost = %v, want 100 (prorated 310/31*10)", got)
	}
	if r.Override.Cost != 310 {
		t.Fatal("input record was mutated")
	}
}

func TestComputeDefaultWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC)
	resp, err := compute(nil, Filters{DisplayMode: "special"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.DateRange.End != "2024-06-15" {
		t.Fatalf("default end = %s, want today", resp.Metadata.DateRange.End)
	}
	if resp.Metadata.DateRange.Start != "2024-05-16" {
		t.Fatalf("default start = %s, want 30 days before today", resp.Metadata.DateRange.Start)
	}
}

func TestComputeIdempotent(t *testing.T) {
	start := date(2024, 1, 1)
	end := date(2024, 1, 31)
	records := []models.LeafRecord{
		record(1, "fb", 100, 5),
		record(2, "", 50, 3),
		record(3, "google", 25, 1),
	}
	f := Filters{DisplayMode: "domain", StartDate: &start, EndDate: &end}

	first, err := Compute(records, f)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compute(records, f)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatal("identical inputs produced different output")
	}
}
