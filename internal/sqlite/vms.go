// File path: internal/sqlite/vms.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
)

// vmSortColumns whitelists the ORDER BY clause per sort key.
var vmSortColumns = map[string]string{
	"":       "v.name",
	"name":   "v.name",
	"score":  "a.score DESC, v.name",
	"memory": "v.memory_mib DESC, v.name",
	"disk":   "v.disk_mib DESC, v.name",
	"cost":   "a.monthly_usd DESC, v.name",
}

// latestAssessmentJoin picks the most recently updated assessment per VM
// when no target filter narrows the join.
const latestAssessmentJoin = `LEFT JOIN assessments a ON a.vm_id = v.id AND a.id = (
        SELECT a2.id FROM assessments a2
        WHERE a2.vm_id = v.id
        ORDER BY a2.updated_at DESC, a2.id DESC
        LIMIT 1)`

const vmSelectColumns = `
        v.id,
        r.report_id,
        v.name,
        v.moref,
        v.cluster,
        v.host,
        v.power_state,
        v.guest_os,
        v.os_family,
        v.cpus,
        v.memory_mib,
        v.disk_mib,
        v.template,
        v.fingerprint,
        v.created_at,
        v.updated_at,
        a.target,
        a.score,
        a.band,
        a.hard_block,
        a.support,
        a.caveats,
        a.profile,
        a.monthly_usd`

// BatchUpsertVMs implements catalog.Store by reconciling the report's VM
// rows against the provided set inside a single transaction. New rows and
// fingerprint changes are recorded in the audit log; rows absent from the
// set are pruned.
func (s *Store) BatchUpsertVMs(ctx context.Context, reportID string, vms []catalog.VMUpsert) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return fmt.Errorf("report id required")
	}
	if len(vms) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		rowID, err := reportRowID(ctx, tx, reportID)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(vms))
		for _, vm := range vms {
			name := strings.TrimSpace(vm.Name)
			if name == "" {
				return fmt.Errorf("vm name required")
			}
			names = append(names, name)
			if err := upsertVM(ctx, tx, rowID, reportID, name, vm); err != nil {
				return err
			}
		}
		return pruneVMs(ctx, tx, rowID, names)
	})
}

func upsertVM(ctx context.Context, tx *sqlx.Tx, rowID int64, reportID, name string, vm catalog.VMUpsert) error {
	var existing struct {
		ID          int64          `db:"id"`
		Fingerprint sql.NullString `db:"fingerprint"`
	}
	err := tx.GetContext(ctx, &existing, `SELECT id, fingerprint FROM vms WHERE report_id = ? AND name = ?`, rowID, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup vm %s: %w", name, err)
	}
	_, execErr := tx.ExecContext(ctx, `
INSERT INTO vms(report_id, name, moref, cluster, host, power_state, guest_os, os_family,
                cpus, memory_mib, disk_mib, template, fingerprint, updated_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''),
        ?, ?, ?, ?, NULLIF(?, ''), CURRENT_TIMESTAMP)
ON CONFLICT(report_id, name) DO UPDATE SET
        moref=excluded.moref,
        cluster=excluded.cluster,
        host=excluded.host,
        power_state=excluded.power_state,
        guest_os=excluded.guest_os,
        os_family=excluded.os_family,
        cpus=excluded.cpus,
        memory_mib=excluded.memory_mib,
        disk_mib=excluded.disk_mib,
        template=excluded.template,
        fingerprint=excluded.fingerprint,
        updated_at=CURRENT_TIMESTAMP`,
		rowID, name, vm.MoRef, vm.Cluster, vm.Host, vm.PowerState, vm.GuestOS, vm.OSFamily,
		vm.CPUs, vm.MemoryMiB, vm.DiskMiB, vm.Template, vm.Fingerprint)
	if execErr != nil {
		return fmt.Errorf("upsert vm %s: %w", name, execErr)
	}
	vmID := existing.ID
	if vmID == 0 {
		if err := tx.GetContext(ctx, &vmID, `SELECT id FROM vms WHERE report_id = ? AND name = ?`, rowID, name); err != nil {
			return fmt.Errorf("lookup vm id: %w", err)
		}
		if err := recordAudit(ctx, tx, reportID, "vm_added", name); err != nil {
			return err
		}
	} else if previous := existing.Fingerprint.String; vm.Fingerprint != "" && previous != vm.Fingerprint {
		detail := fmt.Sprintf("%s fingerprint %s -> %s", name, shortFingerprint(previous), shortFingerprint(vm.Fingerprint))
		if err := recordAudit(ctx, tx, reportID, "vm_changed", detail); err != nil {
			return err
		}
	}
	if vm.Assessment != nil {
		if err := upsertAssessment(ctx, tx, vmID, name, *vm.Assessment); err != nil {
			return err
		}
	}
	return nil
}

func upsertAssessment(ctx context.Context, tx *sqlx.Tx, vmID int64, name string, a catalog.AssessmentUpsert) error {
	target := strings.TrimSpace(a.Target)
	if target == "" {
		return fmt.Errorf("assessment target required for vm %s", name)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO assessments(vm_id, target, score, band, hard_block, support, caveats, profile, monthly_usd, updated_at)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, CURRENT_TIMESTAMP)
ON CONFLICT(vm_id, target) DO UPDATE SET
        score=excluded.score,
        band=excluded.band,
        hard_block=excluded.hard_block,
        support=excluded.support,
        caveats=excluded.caveats,
        profile=excluded.profile,
        monthly_usd=excluded.monthly_usd,
        updated_at=CURRENT_TIMESTAMP`,
		vmID, target, a.Score, a.Band, a.HardBlock, a.Support, a.Caveats, a.Profile, a.MonthlyUSD); err != nil {
		return fmt.Errorf("upsert assessment %s/%s: %w", name, target, err)
	}
	return nil
}

func pruneVMs(ctx context.Context, tx *sqlx.Tx, rowID int64, names []string) error {
	query, args, err := sqlx.In(`DELETE FROM vms WHERE report_id = ? AND name NOT IN (?)`, rowID, names)
	if err != nil {
		return fmt.Errorf("build vm prune: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune vms: %w", err)
	}
	return nil
}

// QueryVMs implements catalog.Store by returning a filtered page of VM rows
// with the assessment for the selected target joined in.
func (s *Store) QueryVMs(ctx context.Context, opts catalog.QueryOptions) (catalog.VMPage, error) {
	if err := s.ensureReady(); err != nil {
		return catalog.VMPage{}, err
	}
	if strings.TrimSpace(opts.ReportID) == "" {
		return catalog.VMPage{}, fmt.Errorf("report id required")
	}
	orderBy, ok := vmSortColumns[strings.ToLower(strings.TrimSpace(opts.Sort))]
	if !ok {
		return catalog.VMPage{}, fmt.Errorf("unknown sort %q", opts.Sort)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	join := latestAssessmentJoin
	args := []interface{}{}
	if target := strings.TrimSpace(opts.Target); target != "" {
		join = `LEFT JOIN assessments a ON a.vm_id = v.id AND a.target = ?`
		args = append(args, target)
	}

	filters := []string{"r.report_id = ?"}
	args = append(args, opts.ReportID)

	if len(opts.Bands) > 0 {
		q, qArgs, err := sqlx.In("a.band IN (?)", opts.Bands)
		if err != nil {
			return catalog.VMPage{}, fmt.Errorf("band filter: %w", err)
		}
		filters = append(filters, q)
		args = append(args, qArgs...)
	}
	if len(opts.Support) > 0 {
		q, qArgs, err := sqlx.In("a.support IN (?)", opts.Support)
		if err != nil {
			return catalog.VMPage{}, fmt.Errorf("support filter: %w", err)
		}
		filters = append(filters, q)
		args = append(args, qArgs...)
	}
	if len(opts.Clusters) > 0 {
		q, qArgs, err := sqlx.In("v.cluster IN (?)", opts.Clusters)
		if err != nil {
			return catalog.VMPage{}, fmt.Errorf("cluster filter: %w", err)
		}
		filters = append(filters, q)
		args = append(args, qArgs...)
	}
	if len(opts.OSFamilies) > 0 {
		q, qArgs, err := sqlx.In("v.os_family IN (?)", opts.OSFamilies)
		if err != nil {
			return catalog.VMPage{}, fmt.Errorf("os family filter: %w", err)
		}
		filters = append(filters, q)
		args = append(args, qArgs...)
	}
	if opts.NamePattern != "" {
		filters = append(filters, "v.name LIKE ?")
		args = append(args, opts.NamePattern)
	}

	query := fmt.Sprintf(`
SELECT%s,
        COUNT(*) OVER() AS total_rows
FROM vms v
INNER JOIN reports r ON r.id = v.report_id
%s
WHERE %s
ORDER BY %s
LIMIT ? OFFSET ?`, vmSelectColumns, join, strings.Join(filters, " AND "), orderBy)
	args = append(args, limit, offset)

	records := []struct {
		vmJoinRow
		TotalRows int `db:"total_rows"`
	}{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return catalog.VMPage{}, fmt.Errorf("query vms: %w", err)
	}

	page := catalog.VMPage{Limit: limit, Offset: offset}
	for _, rec := range records {
		page.VMs = append(page.VMs, rec.record())
		page.Total = rec.TotalRows
	}
	return page, nil
}

// StreamVMs streams VM results through the provided callback.
func (s *Store) StreamVMs(ctx context.Context, opts catalog.QueryOptions, fn func(catalog.VMRecord) error) error {
	pageSize := opts.Limit
	if pageSize <= 0 {
		pageSize = 256
	}
	offset := opts.Offset
	for {
		pageOpts := opts
		pageOpts.Limit = pageSize
		pageOpts.Offset = offset
		page, err := s.QueryVMs(ctx, pageOpts)
		if err != nil {
			return err
		}
		if len(page.VMs) == 0 {
			return nil
		}
		for _, rec := range page.VMs {
			if err := fn(rec); err != nil {
				return err
			}
		}
		offset += len(page.VMs)
		if offset >= page.Total {
			return nil
		}
	}
}

// VMByName returns a single VM row with its most recent assessment.
func (s *Store) VMByName(ctx context.Context, reportID, name string) (catalog.VMRecord, error) {
	if err := s.ensureReady(); err != nil {
		return catalog.VMRecord{}, err
	}
	reportID = strings.TrimSpace(reportID)
	name = strings.TrimSpace(name)
	if reportID == "" || name == "" {
		return catalog.VMRecord{}, fmt.Errorf("report id and vm name required")
	}
	query := fmt.Sprintf(`
SELECT%s
FROM vms v
INNER JOIN reports r ON r.id = v.report_id
%s
WHERE r.report_id = ? AND v.name = ?`, vmSelectColumns, latestAssessmentJoin)
	var row vmJoinRow
	if err := s.db.GetContext(ctx, &row, query, reportID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.VMRecord{}, fmt.Errorf("%w: %s/%s", catalog.ErrVMNotFound, reportID, name)
		}
		return catalog.VMRecord{}, fmt.Errorf("select vm %s: %w", name, err)
	}
	return row.record(), nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func recordAudit(ctx context.Context, ex sqlx.ExecerContext, reportID, action, detail string) error {
	if _, err := ex.ExecContext(ctx, `INSERT INTO audit_log(report_id, action, detail) VALUES (?, ?, NULLIF(?, ''))`,
		reportID, action, detail); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func shortFingerprint(fp string) string {
	if fp == "" {
		return "none"
	}
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
