// File path: internal/export/pdf.go
package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

// PDFExporter renders the management report: cover block, estate summary,
// band and support breakdowns, top risks, wave schedule, and cost range.
// Landscape A4 keeps the tables readable.
type PDFExporter struct{}

func (PDFExporter) Format() string { return "pdf" }

func (PDFExporter) ContentType() string { return "application/pdf" }

func (e PDFExporter) Export(ctx context.Context, rep Report, w io.Writer) error {
	if err := rep.validate(); err != nil {
		return err
	}
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Migration assessment %s", rep.ReportID), false)
	pdf.SetMargins(12, 14, 12)
	pdf.SetAutoPageBreak(true, 16)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s  |  page %d of {nb}", rep.ReportID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	writePDFCover(pdf, rep)

	sections := []func(*fpdf.Fpdf, Report){
		writePDFSummary,
		writePDFBands,
		writePDFRisks,
		writePDFWaves,
	}
	if rep.Costs != nil {
		sections = append(sections, writePDFCosts)
	}
	if strings.TrimSpace(rep.Insight) != "" {
		sections = append(sections, writePDFInsight)
	}
	for _, section := range sections {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		section(pdf, rep)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func writePDFCover(pdf *fpdf.Fpdf, rep Report) {
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(33, 49, 88)
	pdf.CellFormat(0, 12, "VMware Migration Assessment", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(60, 60, 60)
	lines := []string{
		fmt.Sprintf("Report %s", rep.ReportID),
		fmt.Sprintf("Source %s", rep.SourceFile),
		fmt.Sprintf("Target %s", rep.Target),
		fmt.Sprintf("Generated %s", rep.GeneratedAt.UTC().Format(time.RFC3339)),
	}
	for _, line := range lines {
		pdf.CellFormat(0, 6.5, line, "", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
}

func pdfSectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(33, 49, 88)
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// pdfTable renders bordered rows with a filled header and alternating
// row shading.
type pdfTable struct {
	pdf    *fpdf.Fpdf
	widths []float64
	aligns []string
	shaded bool
}

func (t *pdfTable) header(cols ...string) {
	t.pdf.SetFont("Helvetica", "B", 9)
	t.pdf.SetFillColor(48, 84, 150)
	t.pdf.SetTextColor(255, 255, 255)
	for i, col := range cols {
		t.pdf.CellFormat(t.widths[i], 7, col, "1", 0, t.aligns[i], true, 0, "")
	}
	t.pdf.Ln(-1)
	t.pdf.SetTextColor(0, 0, 0)
	t.shaded = false
}

func (t *pdfTable) row(cells ...string) {
	t.pdf.SetFont("Helvetica", "", 9)
	if t.shaded {
		t.pdf.SetFillColor(237, 240, 247)
	} else {
		t.pdf.SetFillColor(255, 255, 255)
	}
	for i, cell := range cells {
		t.pdf.CellFormat(t.widths[i], 6.5, fitString(t.pdf, cell, t.widths[i]), "1", 0, t.aligns[i], true, 0, "")
	}
	t.pdf.Ln(-1)
	t.shaded = !t.shaded
}

// fitString clips a value so it fits the column instead of bleeding into
// the neighbour cell.
func fitString(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width-3 {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func writePDFSummary(pdf *fpdf.Fpdf, rep Report) {
	pdfSectionTitle(pdf, "Estate summary")
	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		fmt.Sprintf("%d VMs assessed (%d templates or placeholders excluded, %d powered off)",
			rep.Summary.VMCount, rep.Summary.TemplateCount, rep.Summary.PoweredOffCount),
		fmt.Sprintf("%d vCPUs, %.0f GiB memory, %.0f GiB provisioned disk",
			rep.Summary.TotalVCPUs, formatGiB(rep.Summary.TotalMemoryMiB), formatGiB(rep.Summary.TotalDiskMiB)),
		fmt.Sprintf("Readiness %.1f%% of VMs land in the simple or moderate bands", rep.Summary.ReadinessPercent),
	}
	for _, line := range lines {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
}

func writePDFBands(pdf *fpdf.Fpdf, rep Report) {
	pdfSectionTitle(pdf, "Complexity bands")
	table := &pdfTable{pdf: pdf, widths: []float64{40, 25, 25, 90}, aligns: []string{"L", "R", "R", "L"}}
	table.header("Band", "VMs", "Share", "OS support in band")
	total := 0
	for _, band := range bandOrder {
		total += rep.Summary.Bands[band]
	}
	for _, band := range bandOrder {
		count := rep.Summary.Bands[band]
		if count == 0 {
			continue
		}
		share := 0.0
		if total > 0 {
			share = float64(count) / float64(total) * 100
		}
		table.row(string(band), fmt.Sprintf("%d", count), fmt.Sprintf("%.1f%%", share), bandSupportNote(rep, band))
	}
}

// bandSupportNote summarises the OS support levels seen inside one band.
func bandSupportNote(rep Report, band assessment.Band) string {
	counts := make(map[assessment.SupportLevel]int)
	for name, score := range rep.Scores {
		if score.Band != band {
			continue
		}
		if verdict, ok := rep.Verdicts[name]; ok {
			counts[verdict.Level]++
		}
	}
	var parts []string
	for _, level := range supportOrder {
		if n := counts[level]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, supportShort(level)))
		}
	}
	return strings.Join(parts, ", ")
}

func supportShort(level assessment.SupportLevel) string {
	switch level {
	case assessment.SupportedWithCaveats:
		return "with caveats"
	case assessment.UnknownSupport:
		return "unknown"
	}
	return string(level)
}

func writePDFRisks(pdf *fpdf.Fpdf, rep Report) {
	if len(rep.Summary.TopRisks) == 0 {
		return
	}
	pdfSectionTitle(pdf, "Top migration risks")
	table := &pdfTable{pdf: pdf, widths: []float64{60, 20, 28, 140}, aligns: []string{"L", "R", "L", "L"}}
	table.header("VM", "Score", "Band", "Leading factor")
	for _, risk := range rep.Summary.TopRisks {
		table.row(risk.VMName, fmt.Sprintf("%d", risk.Total), string(risk.Band), risk.Leading)
	}
}

func writePDFWaves(pdf *fpdf.Fpdf, rep Report) {
	if len(rep.Waves) == 0 {
		return
	}
	pdfSectionTitle(pdf, "Migration waves")
	table := &pdfTable{pdf: pdf, widths: []float64{16, 42, 16, 26, 26, 122}, aligns: []string{"R", "L", "R", "R", "R", "L"}}
	table.header("Wave", "Label", "VMs", "Memory GiB", "Disk GiB", "Members")
	for _, wave := range rep.Waves {
		table.row(
			fmt.Sprintf("%d", wave.Number), wave.Label, fmt.Sprintf("%d", len(wave.VMNames)),
			fmt.Sprintf("%.0f", formatGiB(wave.TotalMemoryMiB)), fmt.Sprintf("%.0f", formatGiB(wave.TotalDiskMiB)),
			strings.Join(wave.VMNames, ", "),
		)
	}
}

func writePDFCosts(pdf *fpdf.Fpdf, rep Report) {
	pdfSectionTitle(pdf, "Monthly cost estimate")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Estate total %s USD per month (range %s to %s)",
		formatUSD(rep.Costs.TotalMonthlyUSD), formatUSD(rep.Costs.LowMonthlyUSD), formatUSD(rep.Costs.HighMonthlyUSD)),
		"", 1, "L", false, 0, "")
	if len(rep.Costs.ExcludedVMs) > 0 {
		pdf.CellFormat(0, 6, fmt.Sprintf("%d VMs excluded from the total pending remediation", len(rep.Costs.ExcludedVMs)),
			"", 1, "L", false, 0, "")
	}
	if rep.Costs.Incomplete {
		pdf.CellFormat(0, 6, "Estimate incomplete: some VMs could not be matched or priced", "", 1, "L", false, 0, "")
	}
}

func writePDFInsight(pdf *fpdf.Fpdf, rep Report) {
	pdfSectionTitle(pdf, "Assessment narrative")
	pdf.SetFont("Helvetica", "", 10)
	for _, para := range insightParagraphs(rep.Insight) {
		pdf.MultiCell(0, 5.5, para, "", "L", false)
		pdf.Ln(2)
	}
}
