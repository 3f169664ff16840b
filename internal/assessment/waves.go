// File path: internal/assessment/waves.go
package assessment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
)

// Wave is one ordered migration bucket. Wave 0 is the held bucket for
// blocker-band VMs that need remediation before any scheduling.
type Wave struct {
	Number         int          `json:"number"`
	Label          string       `json:"label"`
	VMNames        []string     `json:"vm_names"`
	TotalMemoryMiB int64        `json:"total_memory_mib"`
	TotalDiskMiB   int64        `json:"total_disk_mib"`
	Bands          map[Band]int `json:"bands,omitempty"`
	Notes          []string     `json:"notes,omitempty"`
}

// WaveOptions tunes wave planning.
type WaveOptions struct {
	MaxWaveSize       int  `json:"max_wave_size,omitempty"`
	IncludeTemplates  bool `json:"include_templates,omitempty"`
	ExcludePoweredOff bool `json:"exclude_powered_off,omitempty"`
}

const defaultMaxWaveSize = 25

func (o WaveOptions) normalized() WaveOptions {
	if o.MaxWaveSize <= 0 {
		o.MaxWaveSize = defaultMaxWaveSize
	}
	return o
}

func baseWaveFor(band Band) int {
	switch band {
	case BandSimple:
		return 1
	case BandModerate:
		return 2
	case BandComplex:
		return 3
	}
	return 0
}

// PlanWaves buckets VMs by complexity band, then aligns network-adjacent
// VMs into the latest wave any member landed in so dependent applications
// move together. Oversized waves split into sequenced parts. Output order
// and membership are deterministic for identical input.
func PlanWaves(inv *rvtools.Inventory, scores map[string]Score, groups []topology.Group, opts WaveOptions) []Wave {
	opts = opts.normalized()

	assigned := make(map[string]int)
	var candidates []rvtools.VM
	for _, vm := range inv.VMs {
		if !opts.IncludeTemplates && (vm.Template || vm.SRMPlaceholder) {
			continue
		}
		if opts.ExcludePoweredOff && strings.EqualFold(vm.PowerState, "poweredoff") {
			continue
		}
		candidates = append(candidates, vm)
		assigned[vm.Name] = baseWaveFor(scores[vm.Name].Band)
	}

	// Adjacency alignment: every schedulable member of a group moves to the
	// group's latest wave. Held VMs (wave 0) stay held.
	notes := make(map[int][]string)
	for _, group := range groups {
		target := 0
		var members []string
		for _, name := range group.VMNames {
			wave, ok := assigned[name]
			if !ok || wave == 0 {
				continue
			}
			members = append(members, name)
			if wave > target {
				target = wave
			}
		}
		if target == 0 || len(members) < 2 {
			continue
		}
		moved := false
		for _, name := range members {
			if assigned[name] != target {
				assigned[name] = target
				moved = true
			}
		}
		if moved {
			notes[target] = append(notes[target],
				fmt.Sprintf("aligned %d network-adjacent VMs into one wave (group %d)", len(members), group.ID))
		}
	}

	buckets := make(map[int][]rvtools.VM)
	for _, vm := range candidates {
		wave := assigned[vm.Name]
		buckets[wave] = append(buckets[wave], vm)
	}
	for wave := range buckets {
		sort.Slice(buckets[wave], func(i, j int) bool {
			return buckets[wave][i].Name < buckets[wave][j].Name
		})
	}

	var waves []Wave
	if held, ok := buckets[0]; ok && len(held) > 0 {
		wave := buildWave(inv, scores, held, 0, "remediate-first")
		wave.Notes = append(wave.Notes, "blocker findings must be resolved before these VMs can be scheduled")
		waves = append(waves, wave)
	}

	sequence := 1
	for _, base := range []int{1, 2, 3} {
		vms, ok := buckets[base]
		if !ok || len(vms) == 0 {
			continue
		}
		parts := chunkVMs(vms, opts.MaxWaveSize)
		for partIdx, part := range parts {
			label := fmt.Sprintf("wave-%d", sequence)
			wave := buildWave(inv, scores, part, sequence, label)
			if len(parts) > 1 {
				wave.Notes = append(wave.Notes, fmt.Sprintf("part %d of %d split from one band bucket", partIdx+1, len(parts)))
			}
			if partIdx == 0 {
				wave.Notes = append(wave.Notes, notes[base]...)
			}
			sort.Strings(wave.Notes)
			waves = append(waves, wave)
			sequence++
		}
	}
	return waves
}

func chunkVMs(vms []rvtools.VM, size int) [][]rvtools.VM {
	if size <= 0 || len(vms) <= size {
		return [][]rvtools.VM{vms}
	}
	var parts [][]rvtools.VM
	for start := 0; start < len(vms); start += size {
		end := start + size
		if end > len(vms) {
			end = len(vms)
		}
		parts = append(parts, vms[start:end])
	}
	return parts
}

func buildWave(inv *rvtools.Inventory, scores map[string]Score, vms []rvtools.VM, number int, label string) Wave {
	wave := Wave{Number: number, Label: label, Bands: make(map[Band]int)}
	for _, vm := range vms {
		wave.VMNames = append(wave.VMNames, vm.Name)
		wave.TotalMemoryMiB += vm.MemoryMiB
		wave.TotalDiskMiB += inv.TotalDiskMiB(vm)
		wave.Bands[scores[vm.Name].Band]++
	}
	return wave
}
