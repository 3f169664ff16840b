// File path: internal/assessment/summary.go
package assessment

import (
	"sort"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// RiskEntry is one of the highest-scoring VMs surfaced on dashboards.
type RiskEntry struct {
	VMName  string `json:"vm_name"`
	Total   int    `json:"total"`
	Band    Band   `json:"band"`
	Leading string `json:"leading,omitempty"`
}

// Summary is the estate-level rollup of one assessment run.
type Summary struct {
	Target           Target               `json:"target"`
	VMCount          int                  `json:"vm_count"`
	TemplateCount    int                  `json:"template_count,omitempty"`
	PoweredOffCount  int                  `json:"powered_off_count,omitempty"`
	TotalVCPUs       int                  `json:"total_vcpus"`
	TotalMemoryMiB   int64                `json:"total_memory_mib"`
	TotalDiskMiB     int64                `json:"total_disk_mib"`
	Bands            map[Band]int         `json:"bands"`
	Support          map[SupportLevel]int `json:"support"`
	OSFamilies       map[string]int       `json:"os_families"`
	Clusters         map[string]int       `json:"clusters,omitempty"`
	TopRisks         []RiskEntry          `json:"top_risks,omitempty"`
	ReadinessPercent float64              `json:"readiness_percent"`
	RemediationLoad  map[Severity]int     `json:"remediation_load,omitempty"`
}

const topRiskLimit = 10

// Summarize rolls per-VM outputs up to estate level.
func Summarize(inv *rvtools.Inventory, target Target, scores map[string]Score, verdicts map[string]OSVerdict, remediations []RemediationItem) Summary {
	summary := Summary{
		Target:     target,
		Bands:      make(map[Band]int),
		Support:    make(map[SupportLevel]int),
		OSFamilies: make(map[string]int),
		Clusters:   make(map[string]int),
	}

	ready := 0
	for _, vm := range inv.VMs {
		if vm.Template || vm.SRMPlaceholder {
			summary.TemplateCount++
			continue
		}
		summary.VMCount++
		if strings.EqualFold(vm.PowerState, "poweredoff") {
			summary.PoweredOffCount++
		}
		summary.TotalVCPUs += vm.CPUs
		summary.TotalMemoryMiB += vm.MemoryMiB
		summary.TotalDiskMiB += inv.TotalDiskMiB(vm)
		if vm.Cluster != "" {
			summary.Clusters[vm.Cluster]++
		}

		score := scores[vm.Name]
		summary.Bands[score.Band]++
		if score.Band == BandSimple || score.Band == BandModerate {
			ready++
		}

		verdict := verdicts[vm.Name]
		summary.Support[verdict.Level]++
		summary.OSFamilies[FamilyOf(verdict.Key)]++
	}

	if summary.VMCount > 0 {
		summary.ReadinessPercent = float64(ready) / float64(summary.VMCount) * 100
	}

	risks := make([]RiskEntry, 0, len(scores))
	for _, score := range scores {
		entry := RiskEntry{VMName: score.VMName, Total: score.Total, Band: score.Band}
		if len(score.Drivers) > 0 {
			entry.Leading = score.Drivers[0].Detail
		}
		risks = append(risks, entry)
	}
	sort.SliceStable(risks, func(i, j int) bool {
		if risks[i].Total != risks[j].Total {
			return risks[i].Total > risks[j].Total
		}
		return risks[i].VMName < risks[j].VMName
	})
	if len(risks) > topRiskLimit {
		risks = risks[:topRiskLimit]
	}
	summary.TopRisks = risks

	if len(remediations) > 0 {
		summary.RemediationLoad = make(map[Severity]int)
		for _, item := range remediations {
			summary.RemediationLoad[item.Severity]++
		}
	}
	return summary
}

// FamilyOf folds a compatibility matrix key to its OS family
// ("windows-2019" -> "windows"). Empty keys fold to "other".
func FamilyOf(key string) string {
	if key == "" {
		return "other"
	}
	if dash := strings.Index(key, "-"); dash > 0 {
		return key[:dash]
	}
	return key
}
