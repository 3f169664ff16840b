// File path: internal/targets/catalog.go
package targets

import (
	"sort"
	"strings"
	"sync"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

// Profile is one IBM Cloud compute shape a VM can land on: a VPC instance
// profile for VSI targets, a worker-pool flavor for ROKS targets.
type Profile struct {
	Name          string              `json:"name"`
	Family        string              `json:"family"`
	VCPUs         int                 `json:"vcpus"`
	MemoryGiB     int                 `json:"memory_gib"`
	BandwidthGbps int                 `json:"bandwidth_gbps,omitempty"`
	Generation    int                 `json:"generation,omitempty"`
	Targets       []assessment.Target `json:"targets,omitempty"`
}

// MemoryMiB converts the catalog unit to the inventory unit.
func (p Profile) MemoryMiB() int64 { return int64(p.MemoryGiB) * 1024 }

func (p Profile) SupportsTarget(target assessment.Target) bool {
	for _, t := range p.Targets {
		if t == target {
			return true
		}
	}
	return false
}

func familyFor(name string) string {
	switch {
	case strings.HasPrefix(name, "cx"):
		return "compute"
	case strings.HasPrefix(name, "mx"):
		return "memory"
	}
	return "balanced"
}

func profile(name string, vcpus, memoryGiB int, targets ...assessment.Target) Profile {
	// VPC gen2 allots 2 Gbps per vCPU up to the 80 Gbps instance cap.
	bandwidth := vcpus * 2
	if bandwidth > 80 {
		bandwidth = 80
	}
	return Profile{
		Name:          name,
		Family:        familyFor(name),
		VCPUs:         vcpus,
		MemoryGiB:     memoryGiB,
		BandwidthGbps: bandwidth,
		Generation:    2,
		Targets:       targets,
	}
}

// builtinProfiles is the compiled-in catalog used until a live refresh from
// the VPC API replaces it. VSI profiles use dashed names, ROKS worker
// flavors dotted ones, matching how each service spells them.
func builtinProfiles() []Profile {
	vsi := assessment.TargetVSI
	roks := assessment.TargetROKS
	return []Profile{
		profile("bx2-2x8", 2, 8, vsi),
		profile("bx2-4x16", 4, 16, vsi),
		profile("bx2-8x32", 8, 32, vsi),
		profile("bx2-16x64", 16, 64, vsi),
		profile("bx2-32x128", 32, 128, vsi),
		profile("bx2-48x192", 48, 192, vsi),

		profile("cx2-2x4", 2, 4, vsi),
		profile("cx2-4x8", 4, 8, vsi),
		profile("cx2-8x16", 8, 16, vsi),
		profile("cx2-16x32", 16, 32, vsi),
		profile("cx2-32x64", 32, 64, vsi),
		profile("cx2-48x96", 48, 96, vsi),

		profile("mx2-2x16", 2, 16, vsi),
		profile("mx2-4x32", 4, 32, vsi),
		profile("mx2-8x64", 8, 64, vsi),
		profile("mx2-16x128", 16, 128, vsi),
		profile("mx2-32x256", 32, 256, vsi),
		profile("mx2-48x384", 48, 384, vsi),

		profile("bx2.4x16", 4, 16, roks),
		profile("bx2.8x32", 8, 32, roks),
		profile("bx2.16x64", 16, 64, roks),
		profile("bx2.32x128", 32, 128, roks),
		profile("bx2.48x192", 48, 192, roks),
		profile("cx2.16x32", 16, 32, roks),
		profile("cx2.32x64", 32, 64, roks),
		profile("mx2.4x32", 4, 32, roks),
		profile("mx2.8x64", 8, 64, roks),
		profile("mx2.16x128", 16, 128, roks),
		profile("mx2.32x256", 32, 256, roks),
	}
}

// Catalog holds the profile list and answers nearest-fit questions. Safe for
// concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	profiles []Profile
	cache    *matchCache
}

func NewCatalog() *Catalog {
	return &Catalog{
		profiles: builtinProfiles(),
		cache:    newMatchCache(matchCacheSize),
	}
}

// Profiles returns the shapes available on the target, smallest first.
func (c *Catalog) Profiles(target assessment.Target) []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Profile
	for _, p := range c.profiles {
		if p.SupportsTarget(target) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VCPUs != out[j].VCPUs {
			return out[i].VCPUs < out[j].VCPUs
		}
		if out[i].MemoryGiB != out[j].MemoryGiB {
			return out[i].MemoryGiB < out[j].MemoryGiB
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Lookup finds a profile by exact name.
func (c *Catalog) Lookup(name string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Replace installs a refreshed profile list and invalidates cached matches.
// An empty list is ignored so a failed live fetch cannot wipe the builtin
// catalog.
func (c *Catalog) Replace(profiles []Profile) {
	if len(profiles) == 0 {
		return
	}
	c.mu.Lock()
	c.profiles = append([]Profile(nil), profiles...)
	c.mu.Unlock()
	c.cache.Purge()
}
