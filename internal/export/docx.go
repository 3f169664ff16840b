// File path: internal/export/docx.go
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fumiama/go-docx"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

// DocxExporter renders the migration runbook: one section per wave with
// the member VM table and remediation checklist, preceded by the
// assessment narrative when one was generated.
type DocxExporter struct{}

func (DocxExporter) Format() string { return "docx" }

func (DocxExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func (e DocxExporter) Export(ctx context.Context, rep Report, w io.Writer) error {
	if err := rep.validate(); err != nil {
		return err
	}
	doc := docx.New().WithDefaultTheme()

	doc.AddParagraph().Justification("center").
		AddText("Migration Runbook").Size("40").Bold()
	doc.AddParagraph().Justification("center").
		AddText(fmt.Sprintf("Report %s from %s, target %s, generated %s",
			rep.ReportID, rep.SourceFile, rep.Target, rep.GeneratedAt.UTC().Format(time.RFC3339))).
		Size("20").Color("595959")

	if paras := insightParagraphs(rep.Insight); len(paras) > 0 {
		docxHeading(doc, "Assessment narrative")
		for _, para := range paras {
			doc.AddParagraph().AddText(para).Size("22")
		}
	}

	docxHeading(doc, "Estate overview")
	doc.AddParagraph().AddText(fmt.Sprintf(
		"%d VMs assessed against %s: %d vCPUs, %.0f GiB memory, %.0f GiB provisioned disk. Readiness %.1f%%.",
		rep.Summary.VMCount, rep.Target, rep.Summary.TotalVCPUs,
		formatGiB(rep.Summary.TotalMemoryMiB), formatGiB(rep.Summary.TotalDiskMiB),
		rep.Summary.ReadinessPercent)).Size("22")

	for _, wave := range rep.Waves {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		writeDocxWave(doc, rep, wave)
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write runbook: %w", err)
	}
	return nil
}

func docxHeading(doc *docx.Docx, text string) {
	doc.AddParagraph().AddText(text).Size("28").Bold().Color("213158")
}

func writeDocxWave(doc *docx.Docx, rep Report, wave assessment.Wave) {
	docxHeading(doc, waveTitle(wave))
	doc.AddParagraph().AddText(fmt.Sprintf("%d VMs, %.0f GiB memory, %.0f GiB disk.",
		len(wave.VMNames), formatGiB(wave.TotalMemoryMiB), formatGiB(wave.TotalDiskMiB))).Size("22")
	for _, note := range wave.Notes {
		doc.AddParagraph().AddText(note).Size("22").Italic()
	}

	if len(wave.VMNames) > 0 {
		table := doc.AddTable(len(wave.VMNames)+1, 5, 9000, nil)
		headers := []string{"VM", "Guest OS", "Band", "OS support", "Profile"}
		for i, header := range headers {
			table.TableRows[0].TableCells[i].AddParagraph().AddText(header).Bold()
		}
		for r, name := range wave.VMNames {
			vm, _ := rep.Inventory.VMByName(name)
			var band, support, profile string
			if score, ok := rep.scoreFor(name); ok {
				band = string(score.Band)
			}
			if verdict, ok := rep.verdictFor(name); ok {
				support = string(verdict.Level)
			}
			if est, ok := rep.costFor(name); ok {
				profile = est.Profile
			}
			cells := table.TableRows[r+1].TableCells
			for c, value := range []string{name, vm.GuestOS, band, support, profile} {
				cells[c].AddParagraph().AddText(value)
			}
		}
	}

	if checklist := remediationsFor(rep, wave.VMNames); len(checklist) > 0 {
		doc.AddParagraph().AddText("Remediation checklist").Size("24").Bold()
		for _, item := range checklist {
			doc.AddParagraph().AddText(fmt.Sprintf("[ ] %s: %s (%s)",
				item.VMName, item.Message, item.Severity)).Size("22")
		}
	}
}

// remediationsFor filters the report's remediation list to the wave
// members, preserving severity order.
func remediationsFor(rep Report, names []string) []assessment.RemediationItem {
	member := make(map[string]struct{}, len(names))
	for _, name := range names {
		member[name] = struct{}{}
	}
	var out []assessment.RemediationItem
	for _, item := range rep.Remediations {
		if _, ok := member[item.VMName]; ok {
			out = append(out, item)
		}
	}
	return out
}
