// File path: internal/catalog/catalog.go
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

var (
	// ErrReportNotFound is returned when a report id has no catalog row.
	ErrReportNotFound = errors.New("report not found in catalog")
	// ErrVMNotFound is returned when a VM name has no row under the report.
	ErrVMNotFound = errors.New("vm not found in catalog")
)

// ReportUpsert carries the catalog row for an uploaded estate report.
type ReportUpsert struct {
	ReportID   string
	SourceFile string
	UploadedAt time.Time
	VMCount    int
}

// Report represents a single report row returned from the catalog with
// aggregated assessment statistics derived from related tables.
type Report struct {
	ID         int64     `json:"id"`
	ReportID   string    `json:"report_id"`
	SourceFile string    `json:"source_file"`
	UploadedAt time.Time `json:"uploaded_at"`
	VMCount    int       `json:"vm_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	LastAssessedAt *time.Time `json:"last_assessed_at,omitempty"`
	Targets        []string   `json:"targets,omitempty"`
	AssessedVMs    int        `json:"assessed_vms"`
}

// AssessmentUpsert carries the verdict columns for one VM on one target.
type AssessmentUpsert struct {
	Target     string
	Score      int
	Band       string
	HardBlock  bool
	Support    string
	Caveats    string
	Profile    string
	MonthlyUSD float64
}

// VMUpsert carries one VM's inventory facts plus an optional assessment
// outcome for persistence. The set passed to BatchUpsertVMs is authoritative
// for the report: rows absent from it are pruned.
type VMUpsert struct {
	Name        string
	MoRef       string
	Cluster     string
	Host        string
	PowerState  string
	GuestOS     string
	OSFamily    string
	CPUs        int
	MemoryMiB   int64
	DiskMiB     int64
	Template    bool
	Fingerprint string

	Assessment *AssessmentUpsert
}

// VMRecord is a single VM row returned from the catalog with the assessment
// columns for the selected target joined in.
type VMRecord struct {
	ID          int64     `json:"id"`
	ReportID    string    `json:"report_id"`
	Name        string    `json:"name"`
	MoRef       string    `json:"moref,omitempty"`
	Cluster     string    `json:"cluster,omitempty"`
	Host        string    `json:"host,omitempty"`
	PowerState  string    `json:"power_state,omitempty"`
	GuestOS     string    `json:"guest_os,omitempty"`
	OSFamily    string    `json:"os_family,omitempty"`
	CPUs        int       `json:"cpus"`
	MemoryMiB   int64     `json:"memory_mib"`
	DiskMiB     int64     `json:"disk_mib"`
	Template    bool      `json:"template,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Target     string  `json:"target,omitempty"`
	Score      int     `json:"score"`
	Band       string  `json:"band,omitempty"`
	HardBlock  bool    `json:"hard_block,omitempty"`
	Support    string  `json:"support,omitempty"`
	Caveats    string  `json:"caveats,omitempty"`
	Profile    string  `json:"profile,omitempty"`
	MonthlyUSD float64 `json:"monthly_usd,omitempty"`
}

// QueryOptions control how VM rows are filtered when listing from the
// catalog. ReportID is required; all other fields are optional. When Target
// is empty the most recently assessed target per VM is joined.
type QueryOptions struct {
	ReportID string
	Target   string

	Bands      []string
	Support    []string
	Clusters   []string
	OSFamilies []string

	NamePattern string

	Sort string

	Limit  int
	Offset int
}

// VMPage represents a paginated response from the catalog.
type VMPage struct {
	VMs    []VMRecord `json:"vms"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
}

// BandCount aggregates VM counts per complexity band.
type BandCount struct {
	Target string `json:"target"`
	Band   string `json:"band"`
	Count  int    `json:"count"`
}

// SupportCount aggregates VM counts per OS support level.
type SupportCount struct {
	Target string `json:"target"`
	Level  string `json:"level"`
	Count  int    `json:"count"`
}

// ClusterStat aggregates the footprint of one source cluster.
type ClusterStat struct {
	Cluster        string `json:"cluster"`
	VMCount        int    `json:"vm_count"`
	TotalCPUs      int    `json:"total_cpus"`
	TotalMemoryMiB int64  `json:"total_memory_mib"`
	TotalDiskMiB   int64  `json:"total_disk_mib"`
}

// ChangeEvent captures one audited change for a report.
type ChangeEvent struct {
	ID        int64     `json:"id"`
	ReportID  string    `json:"report_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Store exposes assessment catalog operations backed by a persistent data
// store.
type Store interface {
	UpsertReport(ctx context.Context, rep ReportUpsert) error
	ListReports(ctx context.Context) ([]Report, error)
	GetReport(ctx context.Context, reportID string) (Report, error)
	DeleteReport(ctx context.Context, reportID string) error

	BatchUpsertVMs(ctx context.Context, reportID string, vms []VMUpsert) error
	QueryVMs(ctx context.Context, opts QueryOptions) (VMPage, error)
	StreamVMs(ctx context.Context, opts QueryOptions, fn func(VMRecord) error) error
	VMByName(ctx context.Context, reportID, name string) (VMRecord, error)

	BandDistribution(ctx context.Context, reportID, target string) ([]BandCount, error)
	OSSupportBreakdown(ctx context.Context, reportID, target string) ([]SupportCount, error)
	ClusterRollup(ctx context.Context, reportID string) ([]ClusterStat, error)

	SaveWaves(ctx context.Context, reportID string, waves []assessment.Wave) error
	WavesForReport(ctx context.Context, reportID string) ([]assessment.Wave, error)
	SaveRemediations(ctx context.Context, reportID string, items []assessment.RemediationItem) error
	RemediationsForReport(ctx context.Context, reportID string) ([]assessment.RemediationItem, error)

	RecordAudit(ctx context.Context, reportID, action, detail string) error
	ChangeHistory(ctx context.Context, reportID string, limit int) ([]ChangeEvent, error)
}
