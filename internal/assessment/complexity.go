// File path: internal/assessment/complexity.go
package assessment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// Band classifies a complexity total into a migration difficulty bucket.
type Band string

const (
	BandSimple   Band = "simple"
	BandModerate Band = "moderate"
	BandComplex  Band = "complex"
	BandBlocker  Band = "blocker"
)

// Band thresholds over the 0-100 total.
const (
	moderateThreshold = 25
	complexThreshold  = 50
	blockerThreshold  = 75
	maxScore          = 100
)

// Driver is one scored factor with its contribution.
type Driver struct {
	Factor string `json:"factor"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// Score is the complexity result for one VM.
type Score struct {
	VMName    string   `json:"vm_name"`
	Total     int      `json:"total"`
	Band      Band     `json:"band"`
	HardBlock bool     `json:"hard_block,omitempty"`
	Blockers  []string `json:"blockers,omitempty"`
	Drivers   []Driver `json:"drivers,omitempty"`
}

// Weights holds the per-factor point values. Zero values fall back to the
// defaults so a partial override stays sane.
type Weights struct {
	OSCaveats     int `json:"os_caveats"`
	OSUnsupported int `json:"os_unsupported"`
	OSUnknown     int `json:"os_unknown"`

	DiskPerExtra int `json:"disk_per_extra"`
	DiskCap      int `json:"disk_cap"`
	DiskLarge    int `json:"disk_large"`
	DiskHuge     int `json:"disk_huge"`
	RDM          int `json:"rdm"`

	NICPerExtra int `json:"nic_per_extra"`
	NICCap      int `json:"nic_cap"`

	MemoryLarge int `json:"memory_large"`
	MemoryHuge  int `json:"memory_huge"`
	VCPULarge   int `json:"vcpu_large"`
	VCPUHuge    int `json:"vcpu_huge"`

	OldHardware   int `json:"old_hardware"`
	ToolsAbsent   int `json:"tools_absent"`
	Snapshots     int `json:"snapshots"`
	SnapshotsMany int `json:"snapshots_many"`
	FaultTolerant int `json:"fault_tolerant"`
	Suspended     int `json:"suspended"`
	EFISecureBoot int `json:"efi_secure_boot"`
}

// DefaultWeights returns the stock scoring table.
func DefaultWeights() Weights {
	return Weights{
		OSCaveats:     12,
		OSUnsupported: 35,
		OSUnknown:     18,
		DiskPerExtra:  4,
		DiskCap:       16,
		DiskLarge:     6,
		DiskHuge:      14,
		RDM:           25,
		NICPerExtra:   5,
		NICCap:        15,
		MemoryLarge:   6,
		MemoryHuge:    12,
		VCPULarge:     5,
		VCPUHuge:      10,
		OldHardware:   10,
		ToolsAbsent:   6,
		Snapshots:     4,
		SnapshotsMany: 8,
		FaultTolerant: 20,
		Suspended:     5,
		EFISecureBoot: 4,
	}
}

func (w Weights) normalized() Weights {
	defaults := DefaultWeights()
	if w.OSCaveats == 0 {
		w.OSCaveats = defaults.OSCaveats
	}
	if w.OSUnsupported == 0 {
		w.OSUnsupported = defaults.OSUnsupported
	}
	if w.OSUnknown == 0 {
		w.OSUnknown = defaults.OSUnknown
	}
	if w.DiskPerExtra == 0 {
		w.DiskPerExtra = defaults.DiskPerExtra
	}
	if w.DiskCap == 0 {
		w.DiskCap = defaults.DiskCap
	}
	if w.DiskLarge == 0 {
		w.DiskLarge = defaults.DiskLarge
	}
	if w.DiskHuge == 0 {
		w.DiskHuge = defaults.DiskHuge
	}
	if w.RDM == 0 {
		w.RDM = defaults.RDM
	}
	if w.NICPerExtra == 0 {
		w.NICPerExtra = defaults.NICPerExtra
	}
	if w.NICCap == 0 {
		w.NICCap = defaults.NICCap
	}
	if w.MemoryLarge == 0 {
		w.MemoryLarge = defaults.MemoryLarge
	}
	if w.MemoryHuge == 0 {
		w.MemoryHuge = defaults.MemoryHuge
	}
	if w.VCPULarge == 0 {
		w.VCPULarge = defaults.VCPULarge
	}
	if w.VCPUHuge == 0 {
		w.VCPUHuge = defaults.VCPUHuge
	}
	if w.OldHardware == 0 {
		w.OldHardware = defaults.OldHardware
	}
	if w.ToolsAbsent == 0 {
		w.ToolsAbsent = defaults.ToolsAbsent
	}
	if w.Snapshots == 0 {
		w.Snapshots = defaults.Snapshots
	}
	if w.SnapshotsMany == 0 {
		w.SnapshotsMany = defaults.SnapshotsMany
	}
	if w.FaultTolerant == 0 {
		w.FaultTolerant = defaults.FaultTolerant
	}
	if w.Suspended == 0 {
		w.Suspended = defaults.Suspended
	}
	if w.EFISecureBoot == 0 {
		w.EFISecureBoot = defaults.EFISecureBoot
	}
	return w
}

// ScoreInput carries everything the scorer reads for one VM.
type ScoreInput struct {
	VM        rvtools.VM
	Disks     []rvtools.Disk
	NICs      []rvtools.NIC
	Snapshots []rvtools.Snapshot
	Verdict   OSVerdict
	Target    Target
}

// ScoreVM scores one VM with the default weights.
func ScoreVM(in ScoreInput) Score {
	return ScoreVMWith(DefaultWeights(), in)
}

// ScoreVMWith computes the weighted complexity total for one VM. The result
// is deterministic for identical input: drivers sort by points descending,
// then factor name.
func ScoreVMWith(weights Weights, in ScoreInput) Score {
	w := weights.normalized()
	score := Score{VMName: in.VM.Name}
	add := func(factor string, points int, detail string) {
		if points <= 0 {
			return
		}
		score.Total += points
		score.Drivers = append(score.Drivers, Driver{Factor: factor, Points: points, Detail: detail})
	}
	block := func(reason string) {
		score.HardBlock = true
		score.Blockers = append(score.Blockers, reason)
	}

	switch in.Verdict.Level {
	case SupportedWithCaveats:
		add("os", w.OSCaveats, fmt.Sprintf("%s needs attention on %s", in.Verdict.Key, in.Target))
	case Unsupported:
		add("os", w.OSUnsupported, fmt.Sprintf("%s is unsupported on %s", in.Verdict.Key, in.Target))
		block(fmt.Sprintf("guest OS %s is unsupported on %s", in.Verdict.Key, in.Target))
	case UnknownSupport:
		add("os", w.OSUnknown, fmt.Sprintf("support for %s on %s is unknown", in.Verdict.Key, in.Target))
	}

	diskCount := len(in.Disks)
	if diskCount == 0 {
		diskCount = in.VM.Disks
	}
	if diskCount > 2 {
		points := (diskCount - 2) * w.DiskPerExtra
		if points > w.DiskCap {
			points = w.DiskCap
		}
		add("disk_count", points, fmt.Sprintf("%d virtual disks", diskCount))
	}

	var totalDiskMiB int64
	rdm := false
	sharedRDM := false
	for _, d := range in.Disks {
		totalDiskMiB += d.CapacityMiB
		if d.RawDeviceMapping {
			rdm = true
			if shared := strings.TrimSpace(d.SharedBus); shared != "" && shared != "nosharing" && shared != "none" {
				sharedRDM = true
			}
		}
	}
	if totalDiskMiB == 0 {
		totalDiskMiB = in.VM.ProvisionedMiB
	}
	switch {
	case totalDiskMiB > 10*1024*1024:
		add("disk_size", w.DiskHuge, fmt.Sprintf("%.1f TiB provisioned", float64(totalDiskMiB)/(1024*1024)))
	case totalDiskMiB > 2*1024*1024:
		add("disk_size", w.DiskLarge, fmt.Sprintf("%.1f TiB provisioned", float64(totalDiskMiB)/(1024*1024)))
	}
	if rdm {
		add("rdm", w.RDM, "raw device mappings present")
		if sharedRDM {
			block("shared-bus RDM cannot be migrated in place")
		}
	}

	nicCount := len(in.NICs)
	if nicCount == 0 {
		nicCount = in.VM.NICs
	}
	if nicCount > 2 {
		points := (nicCount - 2) * w.NICPerExtra
		if points > w.NICCap {
			points = w.NICCap
		}
		add("nic_count", points, fmt.Sprintf("%d network adapters", nicCount))
	}

	switch {
	case in.VM.MemoryMiB > 256*1024:
		add("memory", w.MemoryHuge, fmt.Sprintf("%d GiB memory", in.VM.MemoryMiB/1024))
	case in.VM.MemoryMiB > 64*1024:
		add("memory", w.MemoryLarge, fmt.Sprintf("%d GiB memory", in.VM.MemoryMiB/1024))
	}
	switch {
	case in.VM.CPUs > 32:
		add("vcpu", w.VCPUHuge, fmt.Sprintf("%d vCPUs", in.VM.CPUs))
	case in.VM.CPUs > 8:
		add("vcpu", w.VCPULarge, fmt.Sprintf("%d vCPUs", in.VM.CPUs))
	}

	if in.VM.HWVersion > 0 && in.VM.HWVersion < 10 {
		add("hardware_version", w.OldHardware, fmt.Sprintf("hardware version %d", in.VM.HWVersion))
	}

	if toolsMissing(in.VM.ToolsStatus) {
		add("tools", w.ToolsAbsent, "VMware Tools not running or absent")
	}

	if n := len(in.Snapshots); n > 0 {
		points := w.Snapshots
		if n > 3 {
			points = w.SnapshotsMany
		}
		add("snapshots", points, fmt.Sprintf("%d snapshots", n))
	}

	if ftActive(in.VM.FTState) {
		add("fault_tolerance", w.FaultTolerant, "fault tolerance enabled")
		block("fault tolerance must be disabled before migration")
	}

	if strings.EqualFold(in.VM.PowerState, "suspended") {
		add("power_state", w.Suspended, "VM is suspended")
	}

	if in.Target == TargetVSI && in.VM.BootMode == "efi" && in.VM.FirmwareSecure {
		add("secure_boot", w.EFISecureBoot, "EFI secure boot needs re-enrollment on VSI")
	}

	if score.Total > maxScore {
		score.Total = maxScore
	}
	sort.SliceStable(score.Drivers, func(i, j int) bool {
		if score.Drivers[i].Points != score.Drivers[j].Points {
			return score.Drivers[i].Points > score.Drivers[j].Points
		}
		return score.Drivers[i].Factor < score.Drivers[j].Factor
	})
	score.Band = BandFor(score.Total, score.HardBlock)
	return score
}

// BandFor maps a total to its band; hard blocks pin the band to blocker no
// matter the total.
func BandFor(total int, hardBlock bool) Band {
	if hardBlock {
		return BandBlocker
	}
	switch {
	case total < moderateThreshold:
		return BandSimple
	case total < complexThreshold:
		return BandModerate
	case total < blockerThreshold:
		return BandComplex
	}
	return BandBlocker
}

func toolsMissing(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "toolsok", "ok", "current", "toolsold", "guesttoolscurrent", "guesttoolsrunning":
		return false
	}
	return true
}

func ftActive(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "running", "enabled", "needsecondary", "starting":
		return true
	}
	return false
}

// StaleSnapshots filters snapshots older than the cutoff; used by the
// remediation rules.
func StaleSnapshots(snaps []rvtools.Snapshot, now time.Time, maxAge time.Duration) []rvtools.Snapshot {
	var stale []rvtools.Snapshot
	for _, s := range snaps {
		if s.Created.IsZero() {
			continue
		}
		if now.Sub(s.Created) > maxAge {
			stale = append(stale, s)
		}
	}
	return stale
}
