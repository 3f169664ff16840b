// File path: internal/assessment/waves_test.go
package assessment

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
)

func TestPlanWavesBandsOrder(t *testing.T) {
	inv := &rvtools.Inventory{VMs: []rvtools.VM{
		{Name: "app-complex", MemoryMiB: 8192, ProvisionedMiB: 500 * 1024},
		{Name: "app-blocked", MemoryMiB: 4096},
		{Name: "app-simple", MemoryMiB: 2048, ProvisionedMiB: 100 * 1024},
		{Name: "app-moderate", MemoryMiB: 4096},
	}}
	scores := map[string]Score{
		"app-simple":   {VMName: "app-simple", Band: BandSimple},
		"app-moderate": {VMName: "app-moderate", Band: BandModerate},
		"app-complex":  {VMName: "app-complex", Band: BandComplex},
		"app-blocked":  {VMName: "app-blocked", Band: BandBlocker, HardBlock: true},
	}
	waves := PlanWaves(inv, scores, nil, WaveOptions{})
	if len(waves) != 4 {
		t.Fatalf("expected 4 waves, got %d", len(waves))
	}
	if waves[0].Number != 0 || waves[0].Label != "remediate-first" {
		t.Fatalf("held bucket should come first: %+v", waves[0])
	}
	if !reflect.DeepEqual(waves[0].VMNames, []string{"app-blocked"}) {
		t.Fatalf("held bucket members: %v", waves[0].VMNames)
	}
	if len(waves[0].Notes) == 0 {
		t.Fatalf("held bucket should explain itself")
	}
	wantOrder := [][]string{
		{"app-simple"},
		{"app-moderate"},
		{"app-complex"},
	}
	for i, want := range wantOrder {
		wave := waves[i+1]
		if wave.Number != i+1 {
			t.Fatalf("wave %d numbered %d", i+1, wave.Number)
		}
		if !reflect.DeepEqual(wave.VMNames, want) {
			t.Fatalf("wave %d members = %v, want %v", wave.Number, wave.VMNames, want)
		}
	}
	if waves[1].TotalMemoryMiB != 2048 || waves[1].TotalDiskMiB != 100*1024 {
		t.Fatalf("wave totals wrong: %+v", waves[1])
	}
	if waves[1].Bands[BandSimple] != 1 {
		t.Fatalf("band histogram wrong: %+v", waves[1].Bands)
	}
}

func TestPlanWavesAdjacencyAlignment(t *testing.T) {
	inv := &rvtools.Inventory{VMs: []rvtools.VM{
		{Name: "web-01", MemoryMiB: 2048},
		{Name: "db-01", MemoryMiB: 8192},
		{Name: "held-01", MemoryMiB: 4096},
	}}
	scores := map[string]Score{
		"web-01":  {VMName: "web-01", Band: BandSimple},
		"db-01":   {VMName: "db-01", Band: BandComplex},
		"held-01": {VMName: "held-01", Band: BandBlocker, HardBlock: true},
	}
	groups := []topology.Group{{ID: 1, VMNames: []string{"db-01", "held-01", "web-01"}}}
	waves := PlanWaves(inv, scores, groups, WaveOptions{})
	if len(waves) != 2 {
		t.Fatalf("expected held bucket plus one aligned wave, got %d: %+v", len(waves), waves)
	}
	if !reflect.DeepEqual(waves[0].VMNames, []string{"held-01"}) {
		t.Fatalf("blocked VM should stay held: %v", waves[0].VMNames)
	}
	aligned := waves[1]
	if !reflect.DeepEqual(aligned.VMNames, []string{"db-01", "web-01"}) {
		t.Fatalf("group should move together: %v", aligned.VMNames)
	}
	if aligned.Number != 1 {
		t.Fatalf("waves renumber sequentially, got %d", aligned.Number)
	}
	found := false
	for _, note := range aligned.Notes {
		if note == "aligned 2 network-adjacent VMs into one wave (group 1)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("alignment note missing: %v", aligned.Notes)
	}
}

func TestPlanWavesSplitsOversized(t *testing.T) {
	inv := &rvtools.Inventory{}
	scores := make(map[string]Score)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("vm-%02d", i)
		inv.VMs = append(inv.VMs, rvtools.VM{Name: name, MemoryMiB: 1024})
		scores[name] = Score{VMName: name, Band: BandSimple}
	}
	waves := PlanWaves(inv, scores, nil, WaveOptions{MaxWaveSize: 2})
	if len(waves) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(waves))
	}
	sizes := []int{2, 2, 1}
	for i, wave := range waves {
		if wave.Number != i+1 {
			t.Fatalf("part %d numbered %d", i, wave.Number)
		}
		if len(wave.VMNames) != sizes[i] {
			t.Fatalf("part %d size %d, want %d", i, len(wave.VMNames), sizes[i])
		}
		if len(wave.Notes) == 0 {
			t.Fatalf("split parts should note the split: %+v", wave)
		}
	}
}

func TestPlanWavesFilters(t *testing.T) {
	inv := &rvtools.Inventory{VMs: []rvtools.VM{
		{Name: "running-01", PowerState: "poweredOn"},
		{Name: "template-01", Template: true},
		{Name: "stopped-01", PowerState: "poweredOff"},
	}}
	scores := map[string]Score{
		"running-01":  {Band: BandSimple},
		"template-01": {Band: BandSimple},
		"stopped-01":  {Band: BandSimple},
	}

	waves := PlanWaves(inv, scores, nil, WaveOptions{})
	if len(waves) != 1 || !reflect.DeepEqual(waves[0].VMNames, []string{"running-01", "stopped-01"}) {
		t.Fatalf("templates should drop by default: %+v", waves)
	}

	waves = PlanWaves(inv, scores, nil, WaveOptions{ExcludePoweredOff: true})
	if len(waves) != 1 || !reflect.DeepEqual(waves[0].VMNames, []string{"running-01"}) {
		t.Fatalf("powered-off exclusion failed: %+v", waves)
	}

	waves = PlanWaves(inv, scores, nil, WaveOptions{IncludeTemplates: true})
	if len(waves) != 1 || len(waves[0].VMNames) != 3 {
		t.Fatalf("template inclusion failed: %+v", waves)
	}
}
