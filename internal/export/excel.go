// File path: internal/export/excel.go
package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter renders the assessment workbook: Summary, VMs,
// Remediations, Waves, and (when estimates exist) Costs sheets.
type ExcelExporter struct{}

func (ExcelExporter) Format() string { return "xlsx" }

func (ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e ExcelExporter) Export(ctx context.Context, rep Report, w io.Writer) error {
	if err := rep.validate(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"305496"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("build header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, rep, headerStyle); err != nil {
		return err
	}

	type sheetBuilder struct {
		name  string
		build func(*excelize.File, Report, int) error
	}
	builders := []sheetBuilder{
		{"VMs", writeVMSheet},
		{"Remediations", writeRemediationSheet},
		{"Waves", writeWaveSheet},
	}
	if rep.Costs != nil {
		builders = append(builders, sheetBuilder{"Costs", writeCostSheet})
	}
	for _, b := range builders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := f.NewSheet(b.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", b.name, err)
		}
		if err := b.build(f, rep, headerStyle); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// tableHeader writes the header row, styles it, freezes it, and sizes the
// columns.
func tableHeader(f *excelize.File, sheet string, style int, widths []float64, headers ...interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("resolve %s header range: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("resolve %s column: %w", sheet, err)
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("size %s column %s: %w", sheet, col, err)
		}
	}
	return nil
}

func applyAutoFilter(f *excelize.File, sheet string, columns, rows int) error {
	if rows < 1 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(columns, rows+1)
	if err != nil {
		return fmt.Errorf("resolve %s filter range: %w", sheet, err)
	}
	if err := f.AutoFilter(sheet, "A1:"+last, nil); err != nil {
		return fmt.Errorf("filter %s: %w", sheet, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, rep Report, style int) error {
	const sheet = "Summary"
	rows := [][]interface{}{
		{"Report", rep.ReportID},
		{"Source file", rep.SourceFile},
		{"Target", string(rep.Target)},
		{"Generated", rep.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"VMs assessed", rep.Summary.VMCount},
		{"Templates and placeholders", rep.Summary.TemplateCount},
		{"Powered off", rep.Summary.PoweredOffCount},
		{"Total vCPUs", rep.Summary.TotalVCPUs},
		{"Total memory GiB", formatGiB(rep.Summary.TotalMemoryMiB)},
		{"Total disk GiB", formatGiB(rep.Summary.TotalDiskMiB)},
		{"Readiness percent", rep.Summary.ReadinessPercent},
	}
	if rep.Costs != nil {
		rows = append(rows, []interface{}{"Monthly estimate USD", rep.Costs.TotalMonthlyUSD})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Band", "VMs"})
	for _, band := range bandOrder {
		if count := rep.Summary.Bands[band]; count > 0 {
			rows = append(rows, []interface{}{string(band), count})
		}
	}
	rows = append(rows, []interface{}{}, []interface{}{"OS support", "VMs"})
	for _, level := range supportOrder {
		if count := rep.Summary.Support[level]; count > 0 {
			rows = append(rows, []interface{}{string(level), count})
		}
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return fmt.Errorf("size summary columns: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 40); err != nil {
		return fmt.Errorf("size summary columns: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", style); err != nil {
		return fmt.Errorf("style summary title: %w", err)
	}
	return nil
}

func writeVMSheet(f *excelize.File, rep Report, style int) error {
	const sheet = "VMs"
	widths := []float64{28, 16, 16, 12, 34, 8, 12, 12, 8, 10, 22, 14}
	if err := tableHeader(f, sheet, style, widths,
		"Name", "Cluster", "Host", "Power", "Guest OS", "vCPUs",
		"Memory GiB", "Disk GiB", "Score", "Band", "OS support", "Monthly USD"); err != nil {
		return err
	}
	vms := rep.sortedVMs()
	for i, vm := range vms {
		row := []interface{}{
			vm.Name, vm.Cluster, vm.Host, vm.PowerState, vm.GuestOS, vm.CPUs,
			formatGiB(vm.MemoryMiB), formatGiB(rep.Inventory.TotalDiskMiB(vm)),
		}
		if score, ok := rep.scoreFor(vm.Name); ok {
			row = append(row, score.Total, string(score.Band))
		} else {
			row = append(row, nil, nil)
		}
		if verdict, ok := rep.verdictFor(vm.Name); ok {
			row = append(row, string(verdict.Level))
		} else {
			row = append(row, nil)
		}
		if est, ok := rep.costFor(vm.Name); ok {
			row = append(row, est.TotalMonthlyUSD)
		} else {
			row = append(row, nil)
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write vm row %s: %w", vm.Name, err)
		}
	}
	return applyAutoFilter(f, sheet, 12, len(vms))
}

func writeRemediationSheet(f *excelize.File, rep Report, style int) error {
	const sheet = "Remediations"
	widths := []float64{28, 12, 16, 70, 10}
	if err := tableHeader(f, sheet, style, widths,
		"VM", "Severity", "Category", "Action", "Effort"); err != nil {
		return err
	}
	for i, item := range rep.Remediations {
		row := []interface{}{item.VMName, string(item.Severity), item.Category, item.Message, item.Effort}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write remediation row %d: %w", i+1, err)
		}
	}
	return applyAutoFilter(f, sheet, 5, len(rep.Remediations))
}

func writeWaveSheet(f *excelize.File, rep Report, style int) error {
	const sheet = "Waves"
	widths := []float64{8, 20, 8, 12, 12, 60, 40}
	if err := tableHeader(f, sheet, style, widths,
		"Wave", "Label", "VMs", "Memory GiB", "Disk GiB", "Members", "Notes"); err != nil {
		return err
	}
	for i, wave := range rep.Waves {
		row := []interface{}{
			wave.Number, wave.Label, len(wave.VMNames),
			formatGiB(wave.TotalMemoryMiB), formatGiB(wave.TotalDiskMiB),
			strings.Join(wave.VMNames, ", "), strings.Join(wave.Notes, "; "),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write wave row %d: %w", wave.Number, err)
		}
	}
	return applyAutoFilter(f, sheet, 7, len(rep.Waves))
}

func writeCostSheet(f *excelize.File, rep Report, style int) error {
	const sheet = "Costs"
	widths := []float64{28, 14, 14, 14, 14, 14, 12}
	if err := tableHeader(f, sheet, style, widths,
		"VM", "Profile", "Compute USD", "Storage USD", "License USD", "Monthly USD", "Source"); err != nil {
		return err
	}
	row := 2
	for _, est := range rep.Costs.VMs {
		values := []interface{}{
			est.VMName, est.Profile, est.ComputeMonthlyUSD, est.StorageMonthlyUSD,
			est.LicenseMonthlyUSD, est.TotalMonthlyUSD, est.PriceSource,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("write cost row %s: %w", est.VMName, err)
		}
		row++
	}
	total := []interface{}{
		"Estate total", "", "", "", "", rep.Costs.TotalMonthlyUSD,
		fmt.Sprintf("range %s to %s", formatUSD(rep.Costs.LowMonthlyUSD), formatUSD(rep.Costs.HighMonthlyUSD)),
	}
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &total); err != nil {
		return fmt.Errorf("write cost total: %w", err)
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), style); err != nil {
		return fmt.Errorf("style cost total: %w", err)
	}
	row++
	for _, excluded := range rep.Costs.ExcludedVMs {
		values := []interface{}{excluded.VMName, "excluded", excluded.Reason}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("write excluded row %s: %w", excluded.VMName, err)
		}
		row++
	}
	return nil
}
