// File path: internal/export/export.go
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// ErrUnknownFormat is returned by For when no exporter serves the format.
var ErrUnknownFormat = errors.New("export: unknown format")

// Report carries everything the artifact writers render: the parsed
// inventory plus the assessment outputs for one target. Costs and Insight
// are optional; writers skip their sections when absent.
type Report struct {
	ReportID     string
	SourceFile   string
	Target       assessment.Target
	GeneratedAt  time.Time
	Inventory    *rvtools.Inventory
	Scores       map[string]assessment.Score
	Verdicts     map[string]assessment.OSVerdict
	Remediations []assessment.RemediationItem
	Waves        []assessment.Wave
	Summary      assessment.Summary
	Costs        *cost.Estate
	Insight      string
}

// FromResult assembles a Report from one assessment run.
func FromResult(reportID, sourceFile string, inv *rvtools.Inventory, res *assessment.Result, costs *cost.Estate) Report {
	rep := Report{
		ReportID:   strings.TrimSpace(reportID),
		SourceFile: strings.TrimSpace(sourceFile),
		Inventory:  inv,
		Costs:      costs,
	}
	if res != nil {
		rep.Target = res.Target
		rep.GeneratedAt = res.GeneratedAt
		rep.Scores = res.Scores
		rep.Verdicts = res.Verdicts
		rep.Remediations = res.Remediations
		rep.Waves = res.Waves
		rep.Summary = res.Summary
	}
	if rep.GeneratedAt.IsZero() {
		rep.GeneratedAt = time.Now().UTC()
	}
	return rep
}

func (r Report) validate() error {
	if r.Inventory == nil || len(r.Inventory.VMs) == 0 {
		return errors.New("export: report has no inventory")
	}
	return nil
}

// sortedVMs returns the inventory VMs in stable name order.
func (r Report) sortedVMs() []rvtools.VM {
	vms := append([]rvtools.VM(nil), r.Inventory.VMs...)
	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms
}

// Exporter renders one Report into one artifact format.
type Exporter interface {
	Format() string
	ContentType() string
	Export(ctx context.Context, rep Report, w io.Writer) error
}

// Formats lists the supported artifact formats in render order.
func Formats() []string {
	return []string{"xlsx", "pdf", "docx", "mtv"}
}

// For resolves the exporter for a format name. Aliases cover the common
// spellings clients send.
func For(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "xlsx", "excel", "xls":
		return ExcelExporter{}, nil
	case "pdf":
		return PDFExporter{}, nil
	case "docx", "doc", "runbook":
		return DocxExporter{}, nil
	case "mtv", "yaml":
		return MTVExporter{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
