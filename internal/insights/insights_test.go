// File path: internal/insights/insights_test.go
package insights

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
	"github.com/nicodishanthj/Peregrine_phase1/internal/llm"
	"github.com/nicodishanthj/Peregrine_phase1/internal/llm/providers"
)

type scriptedProvider struct {
	mu      sync.Mutex
	name    string
	replies []string
	calls   [][]llm.Message
}

func (p *scriptedProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, messages)
	if len(p.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return reply, nil
}

func (p *scriptedProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) chatCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func fixtureData() *ReportData {
	return &ReportData{
		ReportID: "rpt-1",
		Assessment: &assessment.Result{
			Target: assessment.TargetROKS,
			Scores: map[string]assessment.Score{
				"web-01": {VMName: "web-01", Band: assessment.BandSimple},
				"legacy-01": {
					VMName: "legacy-01", Total: 100, Band: assessment.BandBlocker,
					HardBlock: true, Blockers: []string{"guest OS windows-2003 is unsupported on roks"},
				},
			},
			Waves: []assessment.Wave{
				{Label: "remediate-first", VMNames: []string{"legacy-01"}, TotalMemoryMiB: 4096, Notes: []string{"1 VM held for remediation"}},
				{Number: 1, Label: "wave-1", VMNames: []string{"web-01"}, TotalMemoryMiB: 2048, TotalDiskMiB: 50 * 1024},
			},
			Remediations: []assessment.RemediationItem{
				{VMName: "legacy-01", Severity: assessment.SeverityCritical, Category: "os", Message: "guest OS windows-2003 is unsupported on roks; rebuild on windows-2019"},
			},
			Summary: assessment.Summary{
				Target:           assessment.TargetROKS,
				VMCount:          2,
				TotalVCPUs:       6,
				TotalMemoryMiB:   6144,
				TotalDiskMiB:     90 * 1024,
				Bands:            map[assessment.Band]int{assessment.BandSimple: 1, assessment.BandBlocker: 1},
				Support:          map[assessment.SupportLevel]int{assessment.Supported: 1, assessment.Unsupported: 1},
				OSFamilies:       map[string]int{"rhel-8": 1, "windows-2003": 1},
				TopRisks:         []assessment.RiskEntry{{VMName: "legacy-01", Total: 100, Band: assessment.BandBlocker, Leading: "os"}},
				ReadinessPercent: 50,
				RemediationLoad:  map[assessment.Severity]int{assessment.SeverityCritical: 1},
			},
		},
		Estate: &cost.Estate{
			Target:          assessment.TargetROKS,
			Currency:        "USD",
			TotalMonthlyUSD: 167.00,
			LowMonthlyUSD:   167.00,
			HighMonthlyUSD:  167.00,
			VMs: []cost.VMEstimate{
				{VMName: "web-01", Profile: "bx2.4x16", TotalMonthlyUSD: 167.00, PriceSource: ibmcloud.SourceLive},
			},
			ExcludedVMs: []cost.ExcludedVM{{VMName: "legacy-01", Reason: "guest OS unsupported"}},
			Drivers:     []cost.Driver{{VMName: "web-01", Profile: "bx2.4x16", MonthlyUSD: 167.00}},
			Sources:     map[string]int{ibmcloud.SourceLive: 1},
		},
	}
}

func TestBuilderBlocksPerSection(t *testing.T) {
	builder := NewBuilder()
	data := fixtureData()

	blocks, err := builder.Blocks(SectionSummary, data)
	if err != nil {
		t.Fatalf("summary blocks: %v", err)
	}
	joined := renderBlocks(blocks)
	for _, want := range []string{"Target platform: roks", "VMs assessed: 2", "Migration-ready: 50.0%", "blocker: 1"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("summary context missing %q:\n%s", want, joined)
		}
	}

	blocks, err = builder.Blocks(SectionRisks, data)
	if err != nil {
		t.Fatalf("risk blocks: %v", err)
	}
	joined = renderBlocks(blocks)
	for _, want := range []string{"legacy-01: score 100", "Hard blockers", "critical: 1", "rebuild on windows-2019"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("risk context missing %q:\n%s", want, joined)
		}
	}

	blocks, err = builder.Blocks(SectionWaves, data)
	if err != nil {
		t.Fatalf("wave blocks: %v", err)
	}
	joined = renderBlocks(blocks)
	for _, want := range []string{"remediate-first: 1 VMs", "wave-1: 1 VMs", "1 VM held for remediation"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("wave context missing %q:\n%s", want, joined)
		}
	}

	blocks, err = builder.Blocks(SectionCosts, data)
	if err != nil {
		t.Fatalf("cost blocks: %v", err)
	}
	joined = renderBlocks(blocks)
	for _, want := range []string{"Monthly estimate: 167.00 USD", "web-01 (bx2.4x16)", "legacy-01: guest OS unsupported"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("cost context missing %q:\n%s", want, joined)
		}
	}

	if _, err := builder.Blocks("bogus", data); err == nil {
		t.Fatal("expected error for unknown section")
	}
	if _, err := builder.Blocks(SectionSummary, nil); err == nil {
		t.Fatal("expected error for nil data")
	}
}

func TestBuilderTrimsOversizedBlocks(t *testing.T) {
	builder := NewBuilder(WithBlockBudget(40))
	data := fixtureData()
	blocks, err := builder.Blocks(SectionRisks, data)
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	for _, block := range blocks {
		if n := len([]rune(block.Body)); n > 43 {
			t.Fatalf("block %q not trimmed: %d runes", block.Title, n)
		}
	}
}

func TestRunnerLocalSectionIsDeterministic(t *testing.T) {
	runner := NewRunner(providers.NewLocalProvider())
	data := fixtureData()

	first, err := runner.Section(context.Background(), SectionSummary, data)
	if err != nil {
		t.Fatalf("section: %v", err)
	}
	if !strings.Contains(first, "Estate overview") || !strings.Contains(first, "VMs assessed: 2") {
		t.Fatalf("local narrative missing context:\n%s", first)
	}
	second, err := runner.Section(context.Background(), SectionSummary, fixtureData())
	if err != nil {
		t.Fatalf("section again: %v", err)
	}
	if first != second {
		t.Fatal("local narratives should be identical for identical data")
	}
}

func TestRunnerDraftsAndPolishesWithModelProvider(t *testing.T) {
	provider := &scriptedProvider{name: "fake", replies: []string{"draft text", "polished text"}}
	runner := NewRunner(provider)

	got, err := runner.Section(context.Background(), SectionSummary, fixtureData())
	if err != nil {
		t.Fatalf("section: %v", err)
	}
	if got != "polished text" {
		t.Fatalf("section = %q, want polished text", got)
	}
	if provider.chatCount() != 2 {
		t.Fatalf("chat calls = %d, want 2 (draft + polish)", provider.chatCount())
	}
	draftCall := provider.calls[0]
	if len(draftCall) != 2 || !strings.Contains(draftCall[1].Content, "Estate overview") {
		t.Fatalf("draft prompt missing context: %+v", draftCall)
	}
	polishCall := provider.calls[1]
	if !strings.Contains(polishCall[1].Content, "draft text") {
		t.Fatalf("polish prompt missing draft: %+v", polishCall)
	}
}

func TestRunnerCachesByReportFingerprint(t *testing.T) {
	provider := &scriptedProvider{name: "fake", replies: []string{"draft one", "final one", "draft two", "final two"}}
	runner := NewRunner(provider)

	if _, err := runner.Section(context.Background(), SectionSummary, fixtureData()); err != nil {
		t.Fatalf("first section: %v", err)
	}
	if _, err := runner.Section(context.Background(), SectionSummary, fixtureData()); err != nil {
		t.Fatalf("cached section: %v", err)
	}
	if provider.chatCount() != 2 {
		t.Fatalf("chat calls = %d, want 2 after cache hit", provider.chatCount())
	}

	changed := fixtureData()
	changed.Assessment.Summary.VMCount = 3
	if _, err := runner.Section(context.Background(), SectionSummary, changed); err != nil {
		t.Fatalf("changed section: %v", err)
	}
	if provider.chatCount() != 4 {
		t.Fatalf("chat calls = %d, want 4 after data change", provider.chatCount())
	}
}

func TestRunnerReportCoversAllSections(t *testing.T) {
	runner := NewRunner(providers.NewLocalProvider())
	report, err := runner.Report(context.Background(), fixtureData())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report) != len(Sections) {
		t.Fatalf("report has %d sections, want %d", len(report), len(Sections))
	}
	for _, section := range Sections {
		if strings.TrimSpace(report[section]) == "" {
			t.Fatalf("section %s is empty", section)
		}
	}
}
