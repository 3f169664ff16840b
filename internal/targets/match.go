// File path: internal/targets/match.go
package targets

import (
	"errors"
	"fmt"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// ErrNoProfile is returned when no profile on the target covers the
// requirement, i.e. the VM is larger than the largest available shape.
var ErrNoProfile = errors.New("targets: no profile fits requirement")

// Requirement is the resource ask for one VM.
type Requirement struct {
	VCPUs     int               `json:"vcpus"`
	MemoryMiB int64             `json:"memory_mib"`
	Target    assessment.Target `json:"target"`
}

// ForVM derives the requirement from an inventory record.
func ForVM(vm rvtools.VM, target assessment.Target) Requirement {
	return Requirement{VCPUs: vm.CPUs, MemoryMiB: vm.MemoryMiB, Target: target}
}

func (r Requirement) normalized() Requirement {
	if r.VCPUs <= 0 {
		r.VCPUs = 1
	}
	if r.MemoryMiB <= 0 {
		r.MemoryMiB = 1024
	}
	if r.Target == "" {
		r.Target = assessment.TargetROKS
	}
	return r
}

func (r Requirement) key() string {
	return fmt.Sprintf("%s|%d|%d", r.Target, r.VCPUs, r.MemoryMiB)
}

// MatchResult is the chosen profile with its fit metadata. Lower scores are
// tighter fits; zero means the profile matches the ask exactly.
type MatchResult struct {
	Profile           Profile `json:"profile"`
	Score             float64 `json:"score"`
	VCPUHeadroom      int     `json:"vcpu_headroom"`
	MemoryHeadroomMiB int64   `json:"memory_headroom_mib"`
}

// Match picks the tightest adequate profile. Every candidate must cover the
// vCPU and memory ask; the score penalizes overshoot with memory counting
// double so a 4 GiB VM does not land on a 128 GiB shape just because the
// vCPUs line up.
func (c *Catalog) Match(req Requirement) (MatchResult, error) {
	req = req.normalized()
	if cached, ok := c.cache.Get(req.key()); ok {
		return cached, nil
	}

	c.mu.RLock()
	var best MatchResult
	found := false
	for _, p := range c.profiles {
		if !p.SupportsTarget(req.Target) {
			continue
		}
		if p.VCPUs < req.VCPUs || p.MemoryMiB() < req.MemoryMiB {
			continue
		}
		vcpuOver := float64(p.VCPUs-req.VCPUs) / float64(req.VCPUs)
		memOver := float64(p.MemoryMiB()-req.MemoryMiB) / float64(req.MemoryMiB)
		candidate := MatchResult{
			Profile:           p,
			Score:             vcpuOver + 2*memOver,
			VCPUHeadroom:      p.VCPUs - req.VCPUs,
			MemoryHeadroomMiB: p.MemoryMiB() - req.MemoryMiB,
		}
		switch {
		case !found, candidate.Score < best.Score:
			best, found = candidate, true
		case candidate.Score == best.Score && candidate.Profile.Name < best.Profile.Name:
			best = candidate
		}
	}
	c.mu.RUnlock()

	if !found {
		return MatchResult{}, ErrNoProfile
	}
	c.cache.Set(req.key(), best)
	return best, nil
}
