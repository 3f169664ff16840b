// File path: internal/sqlite/reports.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
)

var errNilStore = errors.New("sqlite store not initialised")

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

// reportAggQuery joins each report row with its assessment aggregates.
const reportAggQuery = `
SELECT
        r.id,
        r.report_id,
        r.source_file,
        r.uploaded_at,
        r.vm_count,
        r.created_at,
        r.updated_at,
        MAX(a.updated_at) AS last_assessed_at,
        GROUP_CONCAT(DISTINCT a.target) AS targets,
        COUNT(DISTINCT a.vm_id) AS assessed_vms
FROM reports r
LEFT JOIN vms v ON v.report_id = r.id
LEFT JOIN assessments a ON a.vm_id = v.id`

// UpsertReport implements catalog.Store by inserting or refreshing the
// header row for an uploaded report.
func (s *Store) UpsertReport(ctx context.Context, rep catalog.ReportUpsert) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	reportID := strings.TrimSpace(rep.ReportID)
	if reportID == "" {
		return fmt.Errorf("report id required")
	}
	uploaded := rep.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO reports(report_id, source_file, uploaded_at, vm_count)
VALUES (?, NULLIF(?, ''), ?, ?)
ON CONFLICT(report_id) DO UPDATE SET
        source_file=excluded.source_file,
        uploaded_at=excluded.uploaded_at,
        vm_count=excluded.vm_count,
        updated_at=CURRENT_TIMESTAMP`,
			reportID, rep.SourceFile, uploaded, rep.VMCount); err != nil {
			return fmt.Errorf("upsert report %s: %w", reportID, err)
		}
		return recordAudit(ctx, tx, reportID, "report_saved", rep.SourceFile)
	})
}

// ListReports returns every catalog report, newest upload first.
func (s *Store) ListReports(ctx context.Context) ([]catalog.Report, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := reportAggQuery + `
GROUP BY r.id
ORDER BY r.uploaded_at DESC, r.report_id`
	rows := []reportAggRow{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	reports := make([]catalog.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, row.record())
	}
	return reports, nil
}

// GetReport returns a single report with its assessment aggregates.
func (s *Store) GetReport(ctx context.Context, reportID string) (catalog.Report, error) {
	if err := s.ensureReady(); err != nil {
		return catalog.Report{}, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return catalog.Report{}, fmt.Errorf("report id required")
	}
	query := reportAggQuery + `
WHERE r.report_id = ?
GROUP BY r.id`
	var row reportAggRow
	if err := s.db.GetContext(ctx, &row, query, reportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Report{}, fmt.Errorf("%w: %s", catalog.ErrReportNotFound, reportID)
		}
		return catalog.Report{}, fmt.Errorf("select report %s: %w", reportID, err)
	}
	return row.record(), nil
}

// DeleteReport removes a report and, through the schema cascades, its VM,
// assessment, wave, and remediation rows.
func (s *Store) DeleteReport(ctx context.Context, reportID string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return fmt.Errorf("report id required")
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		rowID, err := reportRowID(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, rowID); err != nil {
			return fmt.Errorf("delete report %s: %w", reportID, err)
		}
		return recordAudit(ctx, tx, reportID, "report_deleted", "")
	})
}

func reportRowID(ctx context.Context, tx *sqlx.Tx, reportID string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM reports WHERE report_id = ?`, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", catalog.ErrReportNotFound, reportID)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup report %s: %w", reportID, err)
	}
	return id, nil
}
