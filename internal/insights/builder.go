// File path: internal/insights/builder.go
package insights

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
)

const (
	SectionSummary = "summary"
	SectionRisks   = "risks"
	SectionWaves   = "waves"
	SectionCosts   = "costs"
)

// Sections lists the narrative sections in report order.
var Sections = []string{SectionSummary, SectionRisks, SectionWaves, SectionCosts}

// ReportData is everything the narrative generator may draw on.
type ReportData struct {
	ReportID   string             `json:"report_id"`
	Assessment *assessment.Result `json:"assessment"`
	Estate     *cost.Estate       `json:"estate,omitempty"`
}

// Block is one titled context block handed to the drafting step.
type Block struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

const (
	defaultMaxBlocks     = 8
	defaultMaxBlockRunes = 1200
)

// Builder renders assessment output into compact context blocks. The block
// budget keeps prompts inside a sane token envelope no matter how large the
// estate is.
type Builder struct {
	maxBlocks     int
	maxBlockRunes int
}

type BuilderOption func(*Builder)

func WithMaxBlocks(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxBlocks = n
		}
	}
}

func WithBlockBudget(runes int) BuilderOption {
	return func(b *Builder) {
		if runes > 0 {
			b.maxBlockRunes = runes
		}
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{maxBlocks: defaultMaxBlocks, maxBlockRunes: defaultMaxBlockRunes}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Blocks assembles the context for one section.
func (b *Builder) Blocks(section string, data *ReportData) ([]Block, error) {
	if data == nil || data.Assessment == nil {
		return nil, errors.New("insights: assessment data required")
	}
	var blocks []Block
	switch section {
	case SectionSummary:
		blocks = b.summaryBlocks(data)
	case SectionRisks:
		blocks = b.riskBlocks(data)
	case SectionWaves:
		blocks = b.waveBlocks(data)
	case SectionCosts:
		blocks = b.costBlocks(data)
	default:
		return nil, fmt.Errorf("insights: unknown section %q", section)
	}
	if len(blocks) > b.maxBlocks {
		blocks = blocks[:b.maxBlocks]
	}
	for i := range blocks {
		blocks[i].Body = trimBlock(blocks[i].Body, b.maxBlockRunes)
	}
	return blocks, nil
}

func (b *Builder) summaryBlocks(data *ReportData) []Block {
	s := data.Assessment.Summary
	var overview strings.Builder
	fmt.Fprintf(&overview, "Target platform: %s\n", s.Target)
	fmt.Fprintf(&overview, "VMs assessed: %d (templates: %d, powered off: %d)\n", s.VMCount, s.TemplateCount, s.PoweredOffCount)
	fmt.Fprintf(&overview, "Footprint: %d vCPUs, %s memory, %s disk\n", s.TotalVCPUs, gib(s.TotalMemoryMiB), gib(s.TotalDiskMiB))
	fmt.Fprintf(&overview, "Migration-ready: %.1f%% of assessed VMs", s.ReadinessPercent)
	blocks := []Block{{Title: "Estate overview", Body: overview.String()}}

	var bands strings.Builder
	for _, band := range []assessment.Band{assessment.BandSimple, assessment.BandModerate, assessment.BandComplex, assessment.BandBlocker} {
		fmt.Fprintf(&bands, "%s: %d\n", band, s.Bands[band])
	}
	blocks = append(blocks, Block{Title: "Complexity bands", Body: bands.String()})

	var support strings.Builder
	for _, level := range []assessment.SupportLevel{assessment.Supported, assessment.SupportedWithCaveats, assessment.Unsupported, assessment.UnknownSupport} {
		fmt.Fprintf(&support, "%s: %d\n", level, s.Support[level])
	}
	if families := topCounts(s.OSFamilies, 8); families != "" {
		support.WriteString("OS families: " + families)
	}
	blocks = append(blocks, Block{Title: "Guest OS support", Body: support.String()})

	if clusters := topCounts(s.Clusters, 6); clusters != "" {
		blocks = append(blocks, Block{Title: "Source clusters", Body: clusters})
	}
	return blocks
}

func (b *Builder) riskBlocks(data *ReportData) []Block {
	res := data.Assessment
	var blocks []Block

	if len(res.Summary.TopRisks) > 0 {
		var risks strings.Builder
		for _, risk := range res.Summary.TopRisks {
			fmt.Fprintf(&risks, "%s: score %d (%s)", risk.VMName, risk.Total, risk.Band)
			if risk.Leading != "" {
				fmt.Fprintf(&risks, ", led by %s", risk.Leading)
			}
			risks.WriteString("\n")
		}
		blocks = append(blocks, Block{Title: "Highest-risk VMs", Body: risks.String()})
	}

	var blocked []string
	for name, score := range res.Scores {
		if score.HardBlock {
			blocked = append(blocked, name)
		}
	}
	sort.Strings(blocked)
	if len(blocked) > 0 {
		var detail strings.Builder
		for _, name := range blocked {
			fmt.Fprintf(&detail, "%s: %s\n", name, strings.Join(res.Scores[name].Blockers, "; "))
		}
		blocks = append(blocks, Block{Title: "Hard blockers", Body: detail.String()})
	}

	if len(res.Summary.RemediationLoad) > 0 {
		var load strings.Builder
		for _, sev := range []assessment.Severity{assessment.SeverityCritical, assessment.SeverityWarning, assessment.SeverityInfo} {
			if n := res.Summary.RemediationLoad[sev]; n > 0 {
				fmt.Fprintf(&load, "%s: %d\n", sev, n)
			}
		}
		blocks = append(blocks, Block{Title: "Remediation backlog", Body: load.String()})
	}

	var critical strings.Builder
	count := 0
	for _, item := range res.Remediations {
		if item.Severity != assessment.SeverityCritical {
			continue
		}
		fmt.Fprintf(&critical, "%s [%s]: %s\n", item.VMName, item.Category, item.Message)
		count++
		if count >= 10 {
			break
		}
	}
	if count > 0 {
		blocks = append(blocks, Block{Title: "Critical actions", Body: critical.String()})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, Block{Title: "Risks", Body: "No outstanding risks; every assessed VM is migration-ready."})
	}
	return blocks
}

func (b *Builder) waveBlocks(data *ReportData) []Block {
	waves := data.Assessment.Waves
	if len(waves) == 0 {
		return []Block{{Title: "Wave plan", Body: "No wave plan was produced for this report."}}
	}
	var plan strings.Builder
	for _, wave := range waves {
		fmt.Fprintf(&plan, "%s: %d VMs, %s memory, %s disk\n", wave.Label, len(wave.VMNames), gib(wave.TotalMemoryMiB), gib(wave.TotalDiskMiB))
	}
	blocks := []Block{{Title: "Wave plan", Body: plan.String()}}

	var notes strings.Builder
	for _, wave := range waves {
		for _, note := range wave.Notes {
			fmt.Fprintf(&notes, "%s: %s\n", wave.Label, note)
		}
	}
	if notes.Len() > 0 {
		blocks = append(blocks, Block{Title: "Planning notes", Body: notes.String()})
	}
	return blocks
}

func (b *Builder) costBlocks(data *ReportData) []Block {
	estate := data.Estate
	if estate == nil {
		return []Block{{Title: "Cost estimate", Body: "No cost estimate is available for this report."}}
	}

	var totals strings.Builder
	fmt.Fprintf(&totals, "Monthly estimate: %.2f %s\n", estate.TotalMonthlyUSD, estate.Currency)
	if estate.LowMonthlyUSD != estate.HighMonthlyUSD {
		fmt.Fprintf(&totals, "Range: %.2f to %.2f (static list prices widen the band)\n", estate.LowMonthlyUSD, estate.HighMonthlyUSD)
	}
	var srcParts []string
	for _, src := range []string{ibmcloud.SourceLive, ibmcloud.SourceCached, ibmcloud.SourceStatic} {
		if n := estate.Sources[src]; n > 0 {
			srcParts = append(srcParts, fmt.Sprintf("%s: %d", src, n))
		}
	}
	if len(srcParts) > 0 {
		fmt.Fprintf(&totals, "Quote sources: %s", strings.Join(srcParts, ", "))
	}
	blocks := []Block{{Title: "Cost estimate", Body: totals.String()}}

	if len(estate.Drivers) > 0 {
		var drivers strings.Builder
		for _, d := range estate.Drivers {
			fmt.Fprintf(&drivers, "%s (%s): %.2f/month\n", d.VMName, d.Profile, d.MonthlyUSD)
		}
		blocks = append(blocks, Block{Title: "Largest cost drivers", Body: drivers.String()})
	}
	if len(estate.ExcludedVMs) > 0 {
		var excluded strings.Builder
		for _, ex := range estate.ExcludedVMs {
			fmt.Fprintf(&excluded, "%s: %s\n", ex.VMName, ex.Reason)
		}
		blocks = append(blocks, Block{Title: "Excluded from estimate", Body: excluded.String()})
	}
	if estate.Incomplete {
		blocks = append(blocks, Block{Title: "Estimate gaps", Body: strings.Join(estate.Errors, "\n")})
	}
	return blocks
}

func gib(mib int64) string {
	if mib <= 0 {
		return "0 GiB"
	}
	return fmt.Sprintf("%.0f GiB", float64(mib)/1024)
}

func topCounts(counts map[string]int, limit int) string {
	if len(counts) == 0 {
		return ""
	}
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for name, count := range counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].count > pairs[j].count
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s (%d)", p.name, p.count))
	}
	return strings.Join(parts, ", ")
}

func trimBlock(text string, limit int) string {
	cleaned := strings.TrimSpace(text)
	if limit <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= limit {
		return cleaned
	}
	trimmed := strings.TrimSpace(string(runes[:limit]))
	if trimmed == "" {
		return cleaned
	}
	return trimmed + "..."
}
