// File path: internal/targets/match_test.go
package targets

import (
	"errors"
	"testing"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

func TestMatchExactFit(t *testing.T) {
	catalog := NewCatalog()
	result, err := catalog.Match(Requirement{VCPUs: 2, MemoryMiB: 4096, Target: assessment.TargetVSI})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Profile.Name != "cx2-2x4" {
		t.Fatalf("expected exact fit cx2-2x4, got %s", result.Profile.Name)
	}
	if result.Score != 0 || result.VCPUHeadroom != 0 || result.MemoryHeadroomMiB != 0 {
		t.Fatalf("exact fit should have zero overshoot: %+v", result)
	}
}

func TestMatchPenalizesMemoryOvershoot(t *testing.T) {
	catalog := NewCatalog()

	// 8 vCPU / 16 GiB: cx2-8x16 fits exactly; bx2-8x32 doubles the memory.
	result, err := catalog.Match(Requirement{VCPUs: 8, MemoryMiB: 16 * 1024, Target: assessment.TargetVSI})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Profile.Name != "cx2-8x16" {
		t.Fatalf("expected cx2-8x16, got %s", result.Profile.Name)
	}

	// 2 vCPU / 8 GiB: the balanced shape beats burning memory on mx2-2x16
	// and beats burning vCPUs on cx2-4x8.
	result, err = catalog.Match(Requirement{VCPUs: 2, MemoryMiB: 8 * 1024, Target: assessment.TargetVSI})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Profile.Name != "bx2-2x8" {
		t.Fatalf("expected bx2-2x8, got %s", result.Profile.Name)
	}
}

func TestMatchHonorsTarget(t *testing.T) {
	catalog := NewCatalog()
	result, err := catalog.Match(Requirement{VCPUs: 2, MemoryMiB: 4096, Target: assessment.TargetROKS})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Profile.Name != "bx2.4x16" {
		t.Fatalf("smallest ROKS flavor expected, got %s", result.Profile.Name)
	}
	if !result.Profile.SupportsTarget(assessment.TargetROKS) {
		t.Fatalf("profile does not carry the requested target: %+v", result.Profile)
	}
}

func TestMatchNoProfile(t *testing.T) {
	catalog := NewCatalog()
	if _, err := catalog.Match(Requirement{VCPUs: 200, MemoryMiB: 4096, Target: assessment.TargetVSI}); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
	if _, err := catalog.Match(Requirement{VCPUs: 2, MemoryMiB: 1024 * 1024, Target: assessment.TargetVSI}); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("oversized memory should not fit, got %v", err)
	}
}

func TestMatchTieBreaksByName(t *testing.T) {
	catalog := NewCatalog()
	catalog.Replace([]Profile{
		profile("zz9-4x8", 4, 8, assessment.TargetVSI),
		profile("aa1-4x8", 4, 8, assessment.TargetVSI),
	})
	result, err := catalog.Match(Requirement{VCPUs: 4, MemoryMiB: 8 * 1024, Target: assessment.TargetVSI})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.Profile.Name != "aa1-4x8" {
		t.Fatalf("ties should break alphabetically, got %s", result.Profile.Name)
	}
}

func TestReplaceClearsCachedMatches(t *testing.T) {
	catalog := NewCatalog()
	req := Requirement{VCPUs: 2, MemoryMiB: 4096, Target: assessment.TargetVSI}
	first, err := catalog.Match(req)
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}
	if first.Profile.Name != "cx2-2x4" {
		t.Fatalf("seed match wrong: %s", first.Profile.Name)
	}

	catalog.Replace([]Profile{profile("bx2-48x192", 48, 192, assessment.TargetVSI)})
	second, err := catalog.Match(req)
	if err != nil {
		t.Fatalf("match after replace: %v", err)
	}
	if second.Profile.Name != "bx2-48x192" {
		t.Fatalf("cached match survived replace: %s", second.Profile.Name)
	}

	// An empty replace must not wipe the catalog.
	catalog.Replace(nil)
	if _, err := catalog.Match(req); err != nil {
		t.Fatalf("catalog lost after empty replace: %v", err)
	}
}

func TestProfilesSortedAndFiltered(t *testing.T) {
	catalog := NewCatalog()
	profiles := catalog.Profiles(assessment.TargetVSI)
	if len(profiles) == 0 {
		t.Fatalf("builtin VSI profiles missing")
	}
	for i, p := range profiles {
		if !p.SupportsTarget(assessment.TargetVSI) {
			t.Fatalf("profile %s leaked into VSI list", p.Name)
		}
		if i > 0 && profiles[i-1].VCPUs > p.VCPUs {
			t.Fatalf("profiles not sorted by vCPUs: %s before %s", profiles[i-1].Name, p.Name)
		}
	}
}

func TestForVM(t *testing.T) {
	vm := rvtools.VM{Name: "app-01", CPUs: 4, MemoryMiB: 16 * 1024}
	req := ForVM(vm, assessment.TargetVSI)
	if req.VCPUs != 4 || req.MemoryMiB != 16*1024 || req.Target != assessment.TargetVSI {
		t.Fatalf("requirement derived wrong: %+v", req)
	}
}
