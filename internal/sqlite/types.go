// File path: internal/sqlite/types.go
package sqlite

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
)

// vmJoinRow is the scan target for VM queries with the assessment columns
// joined in. Assessment columns are nullable because a VM may not have been
// assessed for the selected target yet.
type vmJoinRow struct {
	ID          int64          `db:"id"`
	ReportID    string         `db:"report_id"`
	Name        string         `db:"name"`
	MoRef       sql.NullString `db:"moref"`
	Cluster     sql.NullString `db:"cluster"`
	Host        sql.NullString `db:"host"`
	PowerState  sql.NullString `db:"power_state"`
	GuestOS     sql.NullString `db:"guest_os"`
	OSFamily    sql.NullString `db:"os_family"`
	CPUs        int            `db:"cpus"`
	MemoryMiB   int64          `db:"memory_mib"`
	DiskMiB     int64          `db:"disk_mib"`
	Template    bool           `db:"template"`
	Fingerprint sql.NullString `db:"fingerprint"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`

	Target     sql.NullString  `db:"target"`
	Score      sql.NullInt64   `db:"score"`
	Band       sql.NullString  `db:"band"`
	HardBlock  sql.NullBool    `db:"hard_block"`
	Support    sql.NullString  `db:"support"`
	Caveats    sql.NullString  `db:"caveats"`
	Profile    sql.NullString  `db:"profile"`
	MonthlyUSD sql.NullFloat64 `db:"monthly_usd"`
}

func (r vmJoinRow) record() catalog.VMRecord {
	rec := catalog.VMRecord{
		ID:        r.ID,
		ReportID:  r.ReportID,
		Name:      r.Name,
		CPUs:      r.CPUs,
		MemoryMiB: r.MemoryMiB,
		DiskMiB:   r.DiskMiB,
		Template:  r.Template,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	rec.MoRef = r.MoRef.String
	rec.Cluster = r.Cluster.String
	rec.Host = r.Host.String
	rec.PowerState = r.PowerState.String
	rec.GuestOS = r.GuestOS.String
	rec.OSFamily = r.OSFamily.String
	rec.Fingerprint = r.Fingerprint.String
	rec.Target = r.Target.String
	rec.Score = int(r.Score.Int64)
	rec.Band = r.Band.String
	rec.HardBlock = r.HardBlock.Bool
	rec.Support = r.Support.String
	rec.Caveats = r.Caveats.String
	rec.Profile = r.Profile.String
	rec.MonthlyUSD = r.MonthlyUSD.Float64
	return rec
}

// reportAggRow is the scan target for report rows with the assessment
// aggregates joined in. Aggregated datetimes come back without a declared
// column type, so last_assessed_at is scanned as text and parsed.
type reportAggRow struct {
	ID           int64          `db:"id"`
	ReportID     string         `db:"report_id"`
	SourceFile   sql.NullString `db:"source_file"`
	UploadedAt   sql.NullTime   `db:"uploaded_at"`
	VMCount      int            `db:"vm_count"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastAssessed sql.NullString `db:"last_assessed_at"`
	Targets      sql.NullString `db:"targets"`
	AssessedVMs  int            `db:"assessed_vms"`
}

func (r reportAggRow) record() catalog.Report {
	rec := catalog.Report{
		ID:          r.ID,
		ReportID:    r.ReportID,
		VMCount:     r.VMCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		AssessedVMs: r.AssessedVMs,
	}
	rec.SourceFile = r.SourceFile.String
	if r.UploadedAt.Valid {
		rec.UploadedAt = r.UploadedAt.Time
	}
	if r.LastAssessed.Valid {
		if ts, ok := parseTimestamp(r.LastAssessed.String); ok {
			rec.LastAssessedAt = &ts
		}
	}
	if r.Targets.Valid {
		parts := strings.Split(r.Targets.String, ",")
		seen := make(map[string]struct{}, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			rec.Targets = append(rec.Targets, p)
		}
		if len(rec.Targets) > 1 {
			sort.Strings(rec.Targets)
		}
	}
	return rec
}

// waveRow mirrors one waves table row; bands and notes hold JSON payloads.
type waveRow struct {
	ID        int64          `db:"id"`
	Number    int            `db:"number"`
	Label     string         `db:"label"`
	MemoryMiB int64          `db:"memory_mib"`
	DiskMiB   int64          `db:"disk_mib"`
	Bands     sql.NullString `db:"bands"`
	Notes     sql.NullString `db:"notes"`
}

// remediationRow mirrors one remediations table row.
type remediationRow struct {
	VMName   string         `db:"vm_name"`
	Severity string         `db:"severity"`
	Category string         `db:"category"`
	Message  string         `db:"message"`
	Effort   sql.NullString `db:"effort"`
}

// parseTimestamp decodes the text forms sqlite hands back for datetime
// expressions: the driver's write format and CURRENT_TIMESTAMP.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
