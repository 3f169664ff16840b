// File path: internal/export/mtv_exporter.go
package export

import (
	"context"
	"io"

	"github.com/nicodishanthj/Peregrine_phase1/internal/export/mtv"
)

// MTVExporter streams the combined forklift manifest document for every
// migratable wave. The workflow writes per-wave files through
// mtv.WriteBundle instead; this exporter serves direct downloads.
type MTVExporter struct{}

func (MTVExporter) Format() string { return "mtv" }

func (MTVExporter) ContentType() string { return "application/yaml" }

func (e MTVExporter) Export(ctx context.Context, rep Report, w io.Writer) error {
	if err := rep.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bundle, err := mtv.Generate(rep.Inventory, rep.Waves, mtv.Options{ReportID: rep.ReportID})
	if err != nil {
		return err
	}
	return bundle.Encode(w)
}
