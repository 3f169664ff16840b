// File path: internal/workflow/request.go
package workflow

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/export"
)

// Request describes one workflow to run for a report.
type Request struct {
	ReportID string `json:"report_id"`
	Target   string `json:"target"`

	// Export bundle controls.
	Formats         []string `json:"formats,omitempty"`
	IncludeInsights bool     `json:"include_insights,omitempty"`
	Namespace       string   `json:"namespace,omitempty"`
	StorageClass    string   `json:"storage_class,omitempty"`

	// WaveOptions override the planner defaults for this run only.
	WaveOptions *assessment.WaveOptions `json:"wave_options,omitempty"`

	// Flow selects the workflow kind: "assessment" (default) or "export".
	Flow string `json:"flow,omitempty"`

	kind   Kind
	target assessment.Target
}

func normalizeRequest(req Request) (Request, error) {
	req.ReportID = strings.TrimSpace(req.ReportID)
	if req.ReportID == "" {
		return Request{}, fmt.Errorf("report id required")
	}

	target, ok := assessment.ParseTarget(req.Target)
	if !ok {
		return Request{}, fmt.Errorf("unknown target %q", req.Target)
	}
	req.target = target
	req.Target = string(target)

	flowValue := strings.ToLower(strings.TrimSpace(req.Flow))
	kind, err := resolveWorkflowKind(flowValue)
	if err != nil {
		return Request{}, err
	}
	req.kind = kind
	req.Flow = flowValue

	req.Namespace = strings.TrimSpace(req.Namespace)
	req.StorageClass = strings.TrimSpace(req.StorageClass)

	if kind == KindExportBundle {
		formats := make([]string, 0, len(req.Formats))
		seen := make(map[string]struct{}, len(req.Formats))
		for _, format := range req.Formats {
			format = strings.ToLower(strings.TrimSpace(format))
			if format == "" {
				continue
			}
			exporter, err := export.For(format)
			if err != nil {
				return Request{}, fmt.Errorf("format %q: %w", format, err)
			}
			canonical := exporter.Format()
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			formats = append(formats, canonical)
		}
		if len(formats) == 0 {
			formats = export.Formats()
		}
		req.Formats = formats
	} else {
		req.Formats = nil
	}
	return req, nil
}

func resolveWorkflowKind(flow string) (Kind, error) {
	switch flow {
	case "", "assessment", "assess":
		return KindAssessment, nil
	case "export", "export-bundle", "exports":
		return KindExportBundle, nil
	default:
		return "", fmt.Errorf("unknown workflow flow %q", flow)
	}
}

func buildWorkflowSteps(kind Kind) []Step {
	switch kind {
	case KindExportBundle:
		return []Step{
			{Name: "Load Report Data", Status: StepPending},
			{Name: "Estimate Costs", Status: StepPending},
			{Name: "Compose Narrative", Status: StepPending},
			{Name: "Render Artifacts", Status: StepPending},
			{Name: "Package Bundle", Status: StepPending},
		}
	default:
		return []Step{
			{Name: "Load Inventory", Status: StepPending},
			{Name: "Assess Estate", Status: StepPending},
			{Name: "Estimate Costs", Status: StepPending},
			{Name: "Persist Catalog", Status: StepPending},
		}
	}
}
