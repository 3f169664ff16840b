// File path: internal/assessment/complexity_test.go
package assessment

import (
	"testing"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

func TestScoreVMSimpleGuest(t *testing.T) {
	in := ScoreInput{
		VM: rvtools.VM{
			Name: "web-01", CPUs: 2, MemoryMiB: 4096, NICs: 1, Disks: 1,
			HWVersion: 17, PowerState: "poweredon", ToolsStatus: "toolsok",
		},
		Verdict: OSVerdict{Target: TargetROKS, Key: "rhel-8", Level: Supported},
		Target:  TargetROKS,
	}
	score := ScoreVM(in)
	if score.Total != 0 {
		t.Fatalf("clean VM should score 0, got %d (%+v)", score.Total, score.Drivers)
	}
	if score.Band != BandSimple {
		t.Fatalf("expected simple band, got %s", score.Band)
	}
	if score.HardBlock {
		t.Fatalf("clean VM should not hard block")
	}
}

func TestScoreVMAccumulatesDrivers(t *testing.T) {
	in := ScoreInput{
		VM: rvtools.VM{
			Name: "db-01", CPUs: 16, MemoryMiB: 128 * 1024, NICs: 4,
			HWVersion: 8, ToolsStatus: "toolsnotinstalled", PowerState: "poweredon",
		},
		Disks: []rvtools.Disk{
			{VMName: "db-01", CapacityMiB: 1024 * 1024},
			{VMName: "db-01", CapacityMiB: 2 * 1024 * 1024},
			{VMName: "db-01", CapacityMiB: 512 * 1024},
		},
		Snapshots: []rvtools.Snapshot{{VMName: "db-01"}},
		Verdict:   OSVerdict{Target: TargetROKS, Key: "windows-2012r2", Level: SupportedWithCaveats},
		Target:    TargetROKS,
	}
	score := ScoreVM(in)
	// os 12 + disk_count 4 + disk_size >2TiB 6 + nic 10 + memory 6 + vcpu 5 +
	// hardware 10 + tools 6 + snapshots 4 = 63
	if score.Total != 63 {
		t.Fatalf("expected total 63, got %d (%+v)", score.Total, score.Drivers)
	}
	if score.Band != BandComplex {
		t.Fatalf("expected complex band, got %s", score.Band)
	}
	if len(score.Drivers) == 0 {
		t.Fatalf("drivers should be recorded")
	}
	for i := 1; i < len(score.Drivers); i++ {
		if score.Drivers[i-1].Points < score.Drivers[i].Points {
			t.Fatalf("drivers not sorted by points: %+v", score.Drivers)
		}
	}
}

func TestScoreVMHardBlocks(t *testing.T) {
	in := ScoreInput{
		VM:      rvtools.VM{Name: "legacy-01", CPUs: 2, MemoryMiB: 4096},
		Verdict: OSVerdict{Target: TargetROKS, Key: "windows-2008", Level: Unsupported},
		Target:  TargetROKS,
	}
	score := ScoreVM(in)
	if !score.HardBlock {
		t.Fatalf("unsupported OS should hard block")
	}
	if score.Band != BandBlocker {
		t.Fatalf("hard block should pin blocker band, got %s", score.Band)
	}

	shared := ScoreInput{
		VM: rvtools.VM{Name: "cluster-01", CPUs: 4, MemoryMiB: 8192},
		Disks: []rvtools.Disk{
			{VMName: "cluster-01", CapacityMiB: 1024, RawDeviceMapping: true, SharedBus: "physical"},
		},
		Verdict: OSVerdict{Target: TargetROKS, Key: "rhel-8", Level: Supported},
		Target:  TargetROKS,
	}
	score = ScoreVM(shared)
	if !score.HardBlock {
		t.Fatalf("shared-bus RDM should hard block")
	}
	if len(score.Blockers) == 0 {
		t.Fatalf("blockers should carry reasons")
	}
}

func TestScoreVMCapsAtHundred(t *testing.T) {
	in := ScoreInput{
		VM: rvtools.VM{
			Name: "monster", CPUs: 64, MemoryMiB: 512 * 1024, NICs: 10,
			HWVersion: 7, ToolsStatus: "toolsnotinstalled", PowerState: "suspended",
			FTState: "running",
		},
		Disks: func() []rvtools.Disk {
			var disks []rvtools.Disk
			for i := 0; i < 12; i++ {
				disks = append(disks, rvtools.Disk{VMName: "monster", CapacityMiB: 1024 * 1024, RawDeviceMapping: i == 0})
			}
			return disks
		}(),
		Snapshots: make([]rvtools.Snapshot, 5),
		Verdict:   OSVerdict{Target: TargetROKS, Key: "windows-2008", Level: Unsupported},
		Target:    TargetROKS,
	}
	score := ScoreVM(in)
	if score.Total != 100 {
		t.Fatalf("total should cap at 100, got %d", score.Total)
	}
	if score.Band != BandBlocker {
		t.Fatalf("expected blocker, got %s", score.Band)
	}
}

func TestBandFor(t *testing.T) {
	cases := []struct {
		total int
		hard  bool
		want  Band
	}{
		{0, false, BandSimple},
		{24, false, BandSimple},
		{25, false, BandModerate},
		{49, false, BandModerate},
		{50, false, BandComplex},
		{74, false, BandComplex},
		{75, false, BandBlocker},
		{10, true, BandBlocker},
	}
	for _, tc := range cases {
		if got := BandFor(tc.total, tc.hard); got != tc.want {
			t.Fatalf("BandFor(%d, %v) = %s, want %s", tc.total, tc.hard, got, tc.want)
		}
	}
}

func TestWeightOverridesApply(t *testing.T) {
	weights := Weights{RDM: 40}
	in := ScoreInput{
		VM: rvtools.VM{Name: "rdm-vm", CPUs: 2, MemoryMiB: 2048},
		Disks: []rvtools.Disk{
			{VMName: "rdm-vm", CapacityMiB: 1024, RawDeviceMapping: true},
		},
		Verdict: OSVerdict{Target: TargetROKS, Key: "rhel-8", Level: Supported},
		Target:  TargetROKS,
	}
	score := ScoreVMWith(weights, in)
	if score.Total != 40 {
		t.Fatalf("override should apply, got %d", score.Total)
	}
}
