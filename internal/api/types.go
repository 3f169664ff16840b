// File path: internal/api/types.go
package api

import (
	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
	"github.com/nicodishanthj/Peregrine_phase1/internal/workflow"
)

// uploadRequest is the JSON alternative to the multipart upload used by API
// clients that cannot stream form data. Content carries the workbook bytes
// base64 encoded.
type uploadRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
	Target   string `json:"target,omitempty"`
}

type uploadResponse struct {
	ReportID   string   `json:"report_id"`
	SourceFile string   `json:"source_file"`
	VMCount    int      `json:"vm_count"`
	Warnings   []string `json:"warnings,omitempty"`
	Workflow   string   `json:"workflow,omitempty"`
}

type reportSummaryEntry struct {
	catalog.Report
	State *workflow.State `json:"state,omitempty"`
}

type planRequest struct {
	Target  string                 `json:"target,omitempty"`
	Options assessment.WaveOptions `json:"options"`
}

type insightsRequest struct {
	ReportID string `json:"report_id"`
	Section  string `json:"section,omitempty"`
	Target   string `json:"target,omitempty"`
}

type exportRequest struct {
	ReportID        string                  `json:"report_id"`
	Target          string                  `json:"target,omitempty"`
	Formats         []string                `json:"formats,omitempty"`
	IncludeInsights bool                    `json:"include_insights,omitempty"`
	Namespace       string                  `json:"namespace,omitempty"`
	StorageClass    string                  `json:"storage_class,omitempty"`
	WaveOptions     *assessment.WaveOptions `json:"wave_options,omitempty"`
}

// vmDetail joins the catalog row with everything the assessment pipeline
// knows about one VM.
type vmDetail struct {
	Record       catalog.VMRecord             `json:"record"`
	Score        *assessment.Score            `json:"score,omitempty"`
	Verdict      *assessment.OSVerdict        `json:"verdict,omitempty"`
	Remediations []assessment.RemediationItem `json:"remediations,omitempty"`
	Neighbors    []topology.Neighbor          `json:"neighbors,omitempty"`
	Profile      *targets.MatchResult         `json:"profile,omitempty"`
	Estimate     *cost.VMEstimate             `json:"estimate,omitempty"`
}
