// File path: internal/export/render.go
package export

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
)

// bandOrder fixes the render order for band breakdowns.
var bandOrder = []assessment.Band{
	assessment.BandSimple,
	assessment.BandModerate,
	assessment.BandComplex,
	assessment.BandBlocker,
}

// supportOrder fixes the render order for OS support breakdowns.
var supportOrder = []assessment.SupportLevel{
	assessment.Supported,
	assessment.SupportedWithCaveats,
	assessment.Unsupported,
	assessment.UnknownSupport,
}

func (r Report) scoreFor(name string) (assessment.Score, bool) {
	score, ok := r.Scores[name]
	return score, ok
}

func (r Report) verdictFor(name string) (assessment.OSVerdict, bool) {
	verdict, ok := r.Verdicts[name]
	return verdict, ok
}

func (r Report) costFor(name string) (cost.VMEstimate, bool) {
	if r.Costs == nil {
		return cost.VMEstimate{}, false
	}
	for _, est := range r.Costs.VMs {
		if est.VMName == name {
			return est, true
		}
	}
	return cost.VMEstimate{}, false
}

func formatGiB(miB int64) float64 {
	return float64(miB) / 1024
}

func formatUSD(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func waveTitle(w assessment.Wave) string {
	label := strings.TrimSpace(w.Label)
	if label == "" {
		return fmt.Sprintf("Wave %d", w.Number)
	}
	return fmt.Sprintf("Wave %d: %s", w.Number, label)
}

// insightParagraphs splits a narrative into renderable paragraphs.
func insightParagraphs(insight string) []string {
	var out []string
	for _, block := range strings.Split(insight, "\n\n") {
		block = strings.TrimSpace(strings.ReplaceAll(block, "\r\n", "\n"))
		if block == "" {
			continue
		}
		out = append(out, strings.Join(strings.Fields(block), " "))
	}
	return out
}
