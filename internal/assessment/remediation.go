// File path: internal/assessment/remediation.go
package assessment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// Severity ranks a remediation item.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// RemediationItem is one action to take before (or during) migration.
type RemediationItem struct {
	VMName   string   `json:"vm_name"`
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Effort   string   `json:"effort,omitempty"`
}

// snapshotMaxAge is the age beyond which a snapshot blocks a clean cutover.
const snapshotMaxAge = 72 * time.Hour

// Remediations derives the action list for one VM from its records and
// verdicts. Items come back ordered by severity, then category.
func Remediations(inv *rvtools.Inventory, vm rvtools.VM, score Score, verdict OSVerdict, now time.Time) []RemediationItem {
	var items []RemediationItem
	add := func(severity Severity, category, effort, format string, args ...interface{}) {
		items = append(items, RemediationItem{
			VMName:   vm.Name,
			Severity: severity,
			Category: category,
			Message:  fmt.Sprintf(format, args...),
			Effort:   effort,
		})
	}

	switch verdict.Level {
	case Unsupported:
		if verdict.Replacement != "" {
			add(SeverityCritical, "os", "high", "guest OS %s is unsupported on %s; rebuild on %s", verdict.Key, verdict.Target, verdict.Replacement)
		} else {
			add(SeverityCritical, "os", "high", "guest OS %s is unsupported on %s", verdict.Key, verdict.Target)
		}
	case SupportedWithCaveats:
		for _, caveat := range verdict.Caveats {
			add(SeverityWarning, "os", "medium", "%s", caveat)
		}
	case UnknownSupport:
		add(SeverityWarning, "os", "low", "guest OS %q could not be classified; verify support manually", vm.GuestOS)
	}

	for _, disk := range inv.DisksFor(vm) {
		if disk.RawDeviceMapping {
			shared := strings.TrimSpace(disk.SharedBus)
			if shared != "" && shared != "nosharing" && shared != "none" {
				add(SeverityCritical, "storage", "high", "disk %s is a shared-bus RDM; re-platform the clustered workload before migrating", disk.Label)
			} else {
				add(SeverityCritical, "storage", "high", "disk %s is an RDM; convert to VMDK or detach before migration", disk.Label)
			}
		}
		if strings.Contains(disk.DiskMode, "independent") {
			add(SeverityWarning, "storage", "medium", "disk %s uses independent mode and is excluded from snapshots; confirm replication strategy", disk.Label)
		}
	}

	stale := StaleSnapshots(inv.SnapshotsFor(vm), now, snapshotMaxAge)
	if len(stale) > 0 {
		add(SeverityWarning, "snapshot", "low", "%d snapshot(s) older than %d hours; consolidate before cutover", len(stale), int(snapshotMaxAge.Hours()))
	}

	if toolsMissing(vm.ToolsStatus) {
		add(SeverityWarning, "tools", "low", "VMware Tools is %s; install or repair for a clean guest conversion", emptyAs(vm.ToolsStatus, "absent"))
	}

	if ftActive(vm.FTState) {
		add(SeverityCritical, "config", "medium", "fault tolerance is active; disable FT before migration")
	}

	if vm.HWVersion > 0 && vm.HWVersion < 10 {
		add(SeverityInfo, "config", "low", "hardware version %d predates virtual hardware 10; upgrade to modernize virtual devices", vm.HWVersion)
	}

	if !vm.CBTEnabled && score.Band != BandSimple {
		add(SeverityInfo, "config", "low", "changed block tracking is disabled; enabling it shortens warm-migration sync")
	}

	if strings.EqualFold(vm.PowerState, "suspended") {
		add(SeverityWarning, "config", "low", "VM is suspended; resume or power off before conversion")
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return severityRank(items[i].Severity) > severityRank(items[j].Severity)
		}
		return items[i].Category < items[j].Category
	})
	return items
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

func emptyAs(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
