// File path: internal/sqlite/stats.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
)

// BandDistribution aggregates VM counts per complexity band using the
// pre-computed catalog view. Target narrows the result when non-empty.
func (s *Store) BandDistribution(ctx context.Context, reportID, target string) ([]catalog.BandCount, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	query := `SELECT target, band, vm_count FROM band_distribution_view WHERE report_id = ?`
	args := []interface{}{reportID}
	if target = strings.TrimSpace(target); target != "" {
		query += ` AND target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY target, vm_count DESC, band`
	rows := []struct {
		Target string `db:"target"`
		Band   string `db:"band"`
		Count  int    `db:"vm_count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("band distribution: %w", err)
	}
	out := make([]catalog.BandCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, catalog.BandCount{Target: row.Target, Band: row.Band, Count: row.Count})
	}
	return out, nil
}

// OSSupportBreakdown aggregates VM counts per OS support level.
func (s *Store) OSSupportBreakdown(ctx context.Context, reportID, target string) ([]catalog.SupportCount, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	query := `SELECT target, support, vm_count FROM os_support_view WHERE report_id = ?`
	args := []interface{}{reportID}
	if target = strings.TrimSpace(target); target != "" {
		query += ` AND target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY target, vm_count DESC, support`
	rows := []struct {
		Target  string `db:"target"`
		Support string `db:"support"`
		Count   int    `db:"vm_count"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("os support breakdown: %w", err)
	}
	out := make([]catalog.SupportCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, catalog.SupportCount{Target: row.Target, Level: row.Support, Count: row.Count})
	}
	return out, nil
}

// ClusterRollup summarises the source-cluster footprint for a report.
func (s *Store) ClusterRollup(ctx context.Context, reportID string) ([]catalog.ClusterStat, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	rows := []struct {
		Cluster   string `db:"cluster"`
		VMCount   int    `db:"vm_count"`
		CPUs      int    `db:"total_cpus"`
		MemoryMiB int64  `db:"total_memory_mib"`
		DiskMiB   int64  `db:"total_disk_mib"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT cluster, vm_count, total_cpus, total_memory_mib, total_disk_mib
FROM cluster_rollup_view
WHERE report_id = ?
ORDER BY vm_count DESC, cluster`, reportID); err != nil {
		return nil, fmt.Errorf("cluster rollup: %w", err)
	}
	out := make([]catalog.ClusterStat, 0, len(rows))
	for _, row := range rows {
		out = append(out, catalog.ClusterStat{
			Cluster:        row.Cluster,
			VMCount:        row.VMCount,
			TotalCPUs:      row.CPUs,
			TotalMemoryMiB: row.MemoryMiB,
			TotalDiskMiB:   row.DiskMiB,
		})
	}
	return out, nil
}

// RecordAudit appends one audit entry for a report.
func (s *Store) RecordAudit(ctx context.Context, reportID, action, detail string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("audit action required")
	}
	return recordAudit(ctx, s.db, strings.TrimSpace(reportID), action, detail)
}

// ChangeHistory returns the most recent change events for a report.
func (s *Store) ChangeHistory(ctx context.Context, reportID string, limit int) ([]catalog.ChangeEvent, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows := []struct {
		ID        int64          `db:"id"`
		ReportID  string         `db:"report_id"`
		Action    string         `db:"action"`
		Detail    sql.NullString `db:"detail"`
		CreatedAt time.Time      `db:"created_at"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT id, report_id, action, detail, created_at
FROM report_change_history
WHERE report_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, reportID, limit); err != nil {
		return nil, fmt.Errorf("change history: %w", err)
	}
	out := make([]catalog.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, catalog.ChangeEvent{
			ID:        row.ID,
			ReportID:  row.ReportID,
			Action:    row.Action,
			Detail:    row.Detail.String,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
