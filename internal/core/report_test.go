package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"wardmap/internal/domain/model"
)

func sampleSummary() *model.RunSummary {
	return &model.RunSummary{
		WardsCRS:    "EPSG:2157",
		CountiesCRS: "EPSG:2157",
		CRSMatch:    true,
		Partition:   model.PartitionReport{LeftTotal: 3, Matched: 3},
		ByCounty: &model.Aggregate{
			Keys:  []string{"A", "B"},
			Sums:  map[string]int64{"A": 500, "B": 1500},
			Total: 2000,
			Extent: model.Extremes{
				MaxKey: "B", MaxValue: 1500, MaxTies: []string{"B"},
				MinKey: "A", MinValue: 500, MinTies: []string{"A"},
			},
		},
		ByWard: &model.Aggregate{
			Keys:  []string{"A1", "A2", "B1"},
			Sums:  map[string]int64{"A1": 200, "A2": 300, "B1": 1500},
			Total: 2000,
			Extent: model.Extremes{
				MaxKey: "B1", MaxValue: 1500, MaxTies: []string{"B1"},
				MinKey: "A1", MinValue: 200, MinTies: []string{"A1"},
			},
		},
		CountyStats: map[string]model.RegionStats{
			"A": {Name: "A", AreaKm2: 10, Density: 50, HasDensity: true},
			"B": {Name: "B", AreaKm2: 30, Density: 50, HasDensity: true},
		},
	}
}

func TestReporter_Print(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf).Print(sampleSummary())
	out := buf.String()

	assert.Contains(t, out, "CRS match: true (wards EPSG:2157, counties EPSG:2157)")
	assert.Contains(t, out, "Total Population by County:")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "2,000")
	assert.Contains(t, out, "Density (/km²)")
	assert.Contains(t, out, "County with the Highest Population: B\n")
	assert.Contains(t, out, "County with the Lowest Population: A\n")
	assert.Contains(t, out, "Total Population by Ward:")
	assert.Contains(t, out, "Ward with the Highest Population: B1\n")
	assert.Contains(t, out, "Ward with the Lowest Population: A1\n")
	assert.Contains(t, out, "Partition check: all 3 wards matched exactly one county")
}

func TestReporter_Ties(t *testing.T) {
	s := sampleSummary()
	s.ByWard = nil
	s.ByCounty.Extent.MaxTies = []string{"A", "B"}
	s.ByCounty.Extent.MaxKey = "A"

	var buf bytes.Buffer
	NewReporter(&buf).Print(s)
	assert.Contains(t, buf.String(), "County with the Highest Population: A (tied with B)")
	assert.NotContains(t, buf.String(), "Total Population by Ward:")
}

func TestReporter_PrintPartition(t *testing.T) {
	s := &model.RunSummary{
		Partition: model.PartitionReport{LeftTotal: 4, Matched: 3, Dropped: []int{3}, FanOut: []int{1}},
		Dropped:   []string{"X"},
		FannedOut: []string{"Border"},
	}

	var buf bytes.Buffer
	NewReporter(&buf).PrintPartition(s)

	assert.Equal(t, "Partition check: 3 of 4 wards matched\n"+
		"  no county: X\n"+
		"  several counties: Border\n", buf.String())
}
