// File path: internal/sqlite/plans.go
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

// SaveWaves implements catalog.Store by replacing the report's stored wave
// plan in a single transaction.
func (s *Store) SaveWaves(ctx context.Context, reportID string, waves []assessment.Wave) error {
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM waves WHERE report_id = ?`, rowID); err != nil {
			return fmt.Errorf("clear waves: %w", err)
		}
		members := 0
		for _, wave := range waves {
			bands, err := encodeBands(wave.Bands)
			if err != nil {
				return err
			}
			notes, err := encodeStrings(wave.Notes)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `
INSERT INTO waves(report_id, number, label, memory_mib, disk_mib, bands, notes)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
				rowID, wave.Number, wave.Label, wave.TotalMemoryMiB, wave.TotalDiskMiB, bands, notes)
			if err != nil {
				return fmt.Errorf("insert wave %d: %w", wave.Number, err)
			}
			waveID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("wave id: %w", err)
			}
			for idx, name := range wave.VMNames {
				if _, err := tx.ExecContext(ctx, `INSERT INTO wave_members(wave_id, vm_name, sequence) VALUES (?, ?, ?)`,
					waveID, name, idx); err != nil {
					return fmt.Errorf("insert wave member %s: %w", name, err)
				}
				members++
			}
		}
		return recordAudit(ctx, tx, reportID, "waves_planned", fmt.Sprintf("%d waves covering %d vms", len(waves), members))
	})
}

// WavesForReport returns the stored wave plan ordered by wave number.
func (s *Store) WavesForReport(ctx context.Context, reportID string) ([]assessment.Wave, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	rows := []waveRow{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT w.id, w.number, w.label, w.memory_mib, w.disk_mib, w.bands, w.notes
FROM waves w
INNER JOIN reports r ON r.id = w.report_id
WHERE r.report_id = ?
ORDER BY w.number`, reportID); err != nil {
		return nil, fmt.Errorf("select waves: %w", err)
	}
	waves := make([]assessment.Wave, 0, len(rows))
	for _, row := range rows {
		wave := assessment.Wave{
			Number:         row.Number,
			Label:          row.Label,
			TotalMemoryMiB: row.MemoryMiB,
			TotalDiskMiB:   row.DiskMiB,
		}
		if row.Bands.Valid && row.Bands.String != "" {
			if err := json.Unmarshal([]byte(row.Bands.String), &wave.Bands); err != nil {
				return nil, fmt.Errorf("decode wave %d bands: %w", row.Number, err)
			}
		}
		if row.Notes.Valid && row.Notes.String != "" {
			if err := json.Unmarshal([]byte(row.Notes.String), &wave.Notes); err != nil {
				return nil, fmt.Errorf("decode wave %d notes: %w", row.Number, err)
			}
		}
		names := []string{}
		if err := s.db.SelectContext(ctx, &names, `SELECT vm_name FROM wave_members WHERE wave_id = ? ORDER BY sequence`, row.ID); err != nil {
			return nil, fmt.Errorf("select wave members: %w", err)
		}
		if len(names) > 0 {
			wave.VMNames = names
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

// SaveRemediations implements catalog.Store by replacing the report's stored
// remediation list.
func (s *Store) SaveRemediations(ctx context.Context, reportID string, items []assessment.RemediationItem) error {
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM remediations WHERE report_id = ?`, rowID); err != nil {
			return fmt.Errorf("clear remediations: %w", err)
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO remediations(report_id, vm_name, severity, category, message, effort)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
				rowID, item.VMName, string(item.Severity), item.Category, item.Message, item.Effort); err != nil {
				return fmt.Errorf("insert remediation for %s: %w", item.VMName, err)
			}
		}
		return nil
	})
}

// RemediationsForReport returns stored remediation items, critical first.
func (s *Store) RemediationsForReport(ctx context.Context, reportID string) ([]assessment.RemediationItem, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, fmt.Errorf("report id required")
	}
	rows := []remediationRow{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT rem.vm_name, rem.severity, rem.category, rem.message, rem.effort
FROM remediations rem
INNER JOIN reports r ON r.id = rem.report_id
WHERE r.report_id = ?
ORDER BY CASE rem.severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END,
        rem.vm_name, rem.category`, reportID); err != nil {
		return nil, fmt.Errorf("select remediations: %w", err)
	}
	items := make([]assessment.RemediationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, assessment.RemediationItem{
			VMName:   row.VMName,
			Severity: assessment.Severity(row.Severity),
			Category: row.Category,
			Message:  row.Message,
			Effort:   row.Effort.String,
		})
	}
	return items, nil
}

func encodeBands(bands map[assessment.Band]int) (string, error) {
	if len(bands) == 0 {
		return "", nil
	}
	data, err := json.Marshal(bands)
	if err != nil {
		return "", fmt.Errorf("encode bands: %w", err)
	}
	return string(data), nil
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode notes: %w", err)
	}
	return string(data), nil
}
