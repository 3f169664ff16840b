// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{Path: filepath.Join(t.TempDir(), "catalog.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedReport(t *testing.T, store *Store, reportID string) {
	t.Helper()
	err := store.UpsertReport(context.Background(), catalog.ReportUpsert{
		ReportID:   reportID,
		SourceFile: "rvtools-prod.xlsx",
		UploadedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		VMCount:    3,
	})
	if err != nil {
		t.Fatalf("upsert report: %v", err)
	}
}

func sampleVMs() []catalog.VMUpsert {
	return []catalog.VMUpsert{
		{
			Name:        "web-01",
			MoRef:       "vm-101",
			Cluster:     "prod-a",
			Host:        "esx-01",
			PowerState:  "poweredOn",
			GuestOS:     "Microsoft Windows Server 2019",
			OSFamily:    "windows",
			CPUs:        4,
			MemoryMiB:   16384,
			DiskMiB:     102400,
			Fingerprint: "fp-web-a",
			Assessment: &catalog.AssessmentUpsert{
				Target:     "roks",
				Score:      12,
				Band:       "simple",
				Support:    "supported",
				Profile:    "bx2.4x16",
				MonthlyUSD: 167.00,
			},
		},
		{
			Name:        "db-01",
			MoRef:       "vm-102",
			Cluster:     "prod-a",
			Host:        "esx-02",
			PowerState:  "poweredOn",
			GuestOS:     "Red Hat Enterprise Linux 8",
			OSFamily:    "rhel",
			CPUs:        8,
			MemoryMiB:   32768,
			DiskMiB:     512000,
			Fingerprint: "fp-db-a",
			Assessment: &catalog.AssessmentUpsert{
				Target:     "roks",
				Score:      55,
				Band:       "moderate",
				Support:    "supported_with_caveats",
				Caveats:    "shared bus disks need review",
				Profile:    "bx2.8x32",
				MonthlyUSD: 258.5,
			},
		},
		{
			Name:        "legacy-01",
			MoRef:       "vm-103",
			PowerState:  "poweredOff",
			GuestOS:     "Microsoft Windows Server 2003",
			OSFamily:    "windows",
			CPUs:        2,
			MemoryMiB:   4096,
			DiskMiB:     40960,
			Fingerprint: "fp-legacy-a",
			Assessment: &catalog.AssessmentUpsert{
				Target:    "roks",
				Score:     100,
				Band:      "blocker",
				HardBlock: true,
				Support:   "unsupported",
			},
		},
	}
}

func seedEstate(t *testing.T, store *Store, reportID string) {
	t.Helper()
	seedReport(t, store, reportID)
	if err := store.BatchUpsertVMs(context.Background(), reportID, sampleVMs()); err != nil {
		t.Fatalf("upsert vms: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := OpenWithConfig(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUpsertReportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedReport(t, store, "rpt-1")

	got, err := store.GetReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.ReportID != "rpt-1" || got.SourceFile != "rvtools-prod.xlsx" || got.VMCount != 3 {
		t.Fatalf("unexpected report: %+v", got)
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !got.UploadedAt.Equal(want) {
		t.Fatalf("uploaded at: got %v want %v", got.UploadedAt, want)
	}
	if got.AssessedVMs != 0 || got.LastAssessedAt != nil {
		t.Fatalf("expected no assessment aggregates: %+v", got)
	}

	err = store.UpsertReport(ctx, catalog.ReportUpsert{
		ReportID:   "rpt-1",
		SourceFile: "rvtools-prod-v2.xlsx",
		UploadedAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		VMCount:    5,
	})
	if err != nil {
		t.Fatalf("re-upsert report: %v", err)
	}
	got, err = store.GetReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("get refreshed report: %v", err)
	}
	if got.SourceFile != "rvtools-prod-v2.xlsx" || got.VMCount != 5 {
		t.Fatalf("header not refreshed: %+v", got)
	}
	reports, err := store.ListReports(ctx)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
}

func TestGetReportMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetReport(context.Background(), "ghost"); !errors.Is(err, catalog.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestBatchUpsertAndQueryVMs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	page, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1"})
	if err != nil {
		t.Fatalf("query vms: %v", err)
	}
	if page.Total != 3 || len(page.VMs) != 3 {
		t.Fatalf("expected 3 vms, got total=%d len=%d", page.Total, len(page.VMs))
	}
	names := []string{page.VMs[0].Name, page.VMs[1].Name, page.VMs[2].Name}
	if !reflect.DeepEqual(names, []string{"db-01", "legacy-01", "web-01"}) {
		t.Fatalf("unexpected name order: %v", names)
	}
	web := page.VMs[2]
	if web.Cluster != "prod-a" || web.CPUs != 4 || web.MemoryMiB != 16384 {
		t.Fatalf("unexpected web-01 row: %+v", web)
	}
	if web.Target != "roks" || web.Band != "simple" || web.Profile != "bx2.4x16" || web.MonthlyUSD != 167.00 {
		t.Fatalf("unexpected web-01 assessment: %+v", web)
	}
}

func TestQueryVMsFiltersAndSort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	page, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Bands: []string{"blocker"}})
	if err != nil {
		t.Fatalf("band filter: %v", err)
	}
	if page.Total != 1 || page.VMs[0].Name != "legacy-01" || !page.VMs[0].HardBlock {
		t.Fatalf("unexpected blocker page: %+v", page)
	}

	page, err = store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Clusters: []string{"prod-a"}})
	if err != nil {
		t.Fatalf("cluster filter: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 clustered vms, got %d", page.Total)
	}

	page, err = store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", NamePattern: "web%"})
	if err != nil {
		t.Fatalf("name filter: %v", err)
	}
	if page.Total != 1 || page.VMs[0].Name != "web-01" {
		t.Fatalf("unexpected name page: %+v", page)
	}

	page, err = store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Sort: "score"})
	if err != nil {
		t.Fatalf("score sort: %v", err)
	}
	if page.VMs[0].Name != "legacy-01" || page.VMs[2].Name != "web-01" {
		t.Fatalf("unexpected score order: %+v", page.VMs)
	}

	if _, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Sort: "drop table"}); err == nil {
		t.Fatal("expected error for unknown sort")
	}
}

func TestQueryVMsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	page, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if page.Total != 3 || len(page.VMs) != 2 {
		t.Fatalf("unexpected first page: total=%d len=%d", page.Total, len(page.VMs))
	}
	page, err = store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if page.Total != 3 || len(page.VMs) != 1 || page.VMs[0].Name != "web-01" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestStreamVMsWalksAllPages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	var names []string
	err := store.StreamVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1", Limit: 2}, func(rec catalog.VMRecord) error {
		names = append(names, rec.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("stream vms: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"db-01", "legacy-01", "web-01"}) {
		t.Fatalf("unexpected streamed names: %v", names)
	}
}

func TestReuploadVersioningAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	update := []catalog.VMUpsert{sampleVMs()[0], sampleVMs()[2]}
	update[0].Fingerprint = "fp-web-b"
	update[0].Assessment = &catalog.AssessmentUpsert{
		Target:     "vsi",
		Score:      20,
		Band:       "simple",
		Support:    "supported",
		Profile:    "bx2-4x16",
		MonthlyUSD: 279.25,
	}
	if err := store.BatchUpsertVMs(ctx, "rpt-1", update); err != nil {
		t.Fatalf("re-upsert vms: %v", err)
	}

	page, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1"})
	if err != nil {
		t.Fatalf("query after prune: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected db-01 pruned, got total=%d", page.Total)
	}
	for _, rec := range page.VMs {
		if rec.Name == "db-01" {
			t.Fatal("db-01 should have been pruned")
		}
	}

	web, err := store.VMByName(ctx, "rpt-1", "web-01")
	if err != nil {
		t.Fatalf("vm by name: %v", err)
	}
	if web.Fingerprint != "fp-web-b" {
		t.Fatalf("fingerprint not refreshed: %+v", web)
	}
	if web.Target != "vsi" || web.Profile != "bx2-4x16" {
		t.Fatalf("expected latest assessment joined: %+v", web)
	}

	events, err := store.ChangeHistory(ctx, "rpt-1", 10)
	if err != nil {
		t.Fatalf("change history: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected change events")
	}
	if events[0].Action != "vm_changed" || !strings.Contains(events[0].Detail, "web-01 fingerprint") {
		t.Fatalf("unexpected latest event: %+v", events[0])
	}
	added := 0
	for _, ev := range events {
		if ev.Action == "vm_added" {
			added++
		}
	}
	if added != 3 {
		t.Fatalf("expected 3 vm_added events, got %d", added)
	}
}

func TestVMByNameMissing(t *testing.T) {
	store := newTestStore(t)
	seedReport(t, store, "rpt-1")
	if _, err := store.VMByName(context.Background(), "rpt-1", "ghost"); !errors.Is(err, catalog.ErrVMNotFound) {
		t.Fatalf("expected ErrVMNotFound, got %v", err)
	}
}

func TestSaveWavesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	waves := []assessment.Wave{
		{
			Number:         0,
			Label:          "remediate-first",
			VMNames:        []string{"legacy-01"},
			TotalMemoryMiB: 4096,
			TotalDiskMiB:   40960,
			Bands:          map[assessment.Band]int{assessment.BandBlocker: 1},
			Notes:          []string{"1 VM held for remediation"},
		},
		{
			Number:         1,
			Label:          "wave-1",
			VMNames:        []string{"web-01", "db-01"},
			TotalMemoryMiB: 49152,
			TotalDiskMiB:   614400,
			Bands:          map[assessment.Band]int{assessment.BandSimple: 1, assessment.BandModerate: 1},
		},
	}
	if err := store.SaveWaves(ctx, "rpt-1", waves); err != nil {
		t.Fatalf("save waves: %v", err)
	}
	got, err := store.WavesForReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("load waves: %v", err)
	}
	if !reflect.DeepEqual(got, waves) {
		t.Fatalf("wave round trip mismatch:\n got %+v\nwant %+v", got, waves)
	}

	// Replanning replaces, never appends.
	if err := store.SaveWaves(ctx, "rpt-1", waves[1:]); err != nil {
		t.Fatalf("replan waves: %v", err)
	}
	got, err = store.WavesForReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("reload waves: %v", err)
	}
	if len(got) != 1 || got[0].Label != "wave-1" {
		t.Fatalf("expected single replanned wave, got %+v", got)
	}
}

func TestSaveRemediationsOrdersBySeverity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	items := []assessment.RemediationItem{
		{VMName: "web-01", Severity: assessment.SeverityInfo, Category: "tools", Message: "upgrade VMware Tools"},
		{VMName: "legacy-01", Severity: assessment.SeverityCritical, Category: "os", Message: "rebuild on windows-2019", Effort: "high"},
		{VMName: "db-01", Severity: assessment.SeverityWarning, Category: "storage", Message: "review shared bus disks"},
	}
	if err := store.SaveRemediations(ctx, "rpt-1", items); err != nil {
		t.Fatalf("save remediations: %v", err)
	}
	got, err := store.RemediationsForReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("load remediations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0].Severity != assessment.SeverityCritical || got[0].VMName != "legacy-01" || got[0].Effort != "high" {
		t.Fatalf("unexpected first item: %+v", got[0])
	}
	if got[1].Severity != assessment.SeverityWarning || got[2].Severity != assessment.SeverityInfo {
		t.Fatalf("unexpected severity order: %+v", got)
	}
}

func TestBandAndSupportViews(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	bands, err := store.BandDistribution(ctx, "rpt-1", "roks")
	if err != nil {
		t.Fatalf("band distribution: %v", err)
	}
	counts := map[string]int{}
	for _, band := range bands {
		if band.Target != "roks" {
			t.Fatalf("unexpected target: %+v", band)
		}
		counts[band.Band] = band.Count
	}
	want := map[string]int{"simple": 1, "moderate": 1, "blocker": 1}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("band counts: got %v want %v", counts, want)
	}

	support, err := store.OSSupportBreakdown(ctx, "rpt-1", "roks")
	if err != nil {
		t.Fatalf("support breakdown: %v", err)
	}
	levels := map[string]int{}
	for _, s := range support {
		levels[s.Level] = s.Count
	}
	wantLevels := map[string]int{"supported": 1, "supported_with_caveats": 1, "unsupported": 1}
	if !reflect.DeepEqual(levels, wantLevels) {
		t.Fatalf("support counts: got %v want %v", levels, wantLevels)
	}
}

func TestClusterRollupGroupsUnclustered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	stats, err := store.ClusterRollup(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("cluster rollup: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 clusters, got %+v", stats)
	}
	if stats[0].Cluster != "prod-a" || stats[0].VMCount != 2 || stats[0].TotalCPUs != 12 || stats[0].TotalMemoryMiB != 49152 {
		t.Fatalf("unexpected prod-a rollup: %+v", stats[0])
	}
	if stats[1].Cluster != "unclustered" || stats[1].VMCount != 1 {
		t.Fatalf("unexpected unclustered rollup: %+v", stats[1])
	}
}

func TestListReportsAggregatesTargets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")

	update := sampleVMs()[:1]
	update[0].Assessment = &catalog.AssessmentUpsert{Target: "vsi", Score: 20, Band: "simple", Support: "supported"}
	if err := store.BatchUpsertVMs(ctx, "rpt-1", append(update, sampleVMs()[1:]...)); err != nil {
		t.Fatalf("second target upsert: %v", err)
	}

	got, err := store.GetReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if !reflect.DeepEqual(got.Targets, []string{"roks", "vsi"}) {
		t.Fatalf("unexpected targets: %v", got.Targets)
	}
	if got.AssessedVMs != 3 {
		t.Fatalf("expected 3 assessed vms, got %d", got.AssessedVMs)
	}
	if got.LastAssessedAt == nil || got.LastAssessedAt.IsZero() {
		t.Fatalf("expected last assessed timestamp, got %+v", got.LastAssessedAt)
	}
}

func TestDeleteReportCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEstate(t, store, "rpt-1")
	if err := store.SaveWaves(ctx, "rpt-1", []assessment.Wave{{Number: 1, Label: "wave-1", VMNames: []string{"web-01"}}}); err != nil {
		t.Fatalf("save waves: %v", err)
	}

	if err := store.DeleteReport(ctx, "rpt-1"); err != nil {
		t.Fatalf("delete report: %v", err)
	}
	if _, err := store.GetReport(ctx, "rpt-1"); !errors.Is(err, catalog.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
	if err := store.DeleteReport(ctx, "rpt-1"); !errors.Is(err, catalog.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound on second delete, got %v", err)
	}
	page, err := store.QueryVMs(ctx, catalog.QueryOptions{ReportID: "rpt-1"})
	if err != nil {
		t.Fatalf("query after delete: %v", err)
	}
	if page.Total != 0 || len(page.VMs) != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
	waves, err := store.WavesForReport(ctx, "rpt-1")
	if err != nil {
		t.Fatalf("waves after delete: %v", err)
	}
	if len(waves) != 0 {
		t.Fatalf("expected no waves, got %+v", waves)
	}
}

func TestRecordAuditAndHistoryLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedReport(t, store, "rpt-1")

	for _, action := range []string{"assessment_completed", "export_completed", "insight_generated"} {
		if err := store.RecordAudit(ctx, "rpt-1", action, "run 1"); err != nil {
			t.Fatalf("record audit: %v", err)
		}
	}
	events, err := store.ChangeHistory(ctx, "rpt-1", 2)
	if err != nil {
		t.Fatalf("change history: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected limited history, got %d", len(events))
	}
	if events[0].Action != "insight_generated" {
		t.Fatalf("unexpected newest event: %+v", events[0])
	}
	if err := store.RecordAudit(ctx, "rpt-1", "", "detail"); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SQLITE_CONFIG_FILE", "")
	t.Setenv("SQLITE_PATH", "/tmp/catalog.db")
	t.Setenv("SQLITE_MAX_OPEN_CONNS", "4")
	t.Setenv("SQLITE_MAX_IDLE_CONNS", "")
	t.Setenv("SQLITE_CONN_MAX_LIFETIME", "")
	t.Setenv("SQLITE_CONN_MAX_IDLE_TIME", "")
	t.Setenv("SQLITE_BUSY_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Path != "/tmp/catalog.db" {
		t.Fatalf("path: got %q", cfg.Path)
	}
	if cfg.MaxOpenConns != 4 || cfg.MaxIdleConns != 4 {
		t.Fatalf("conns: got open=%d idle=%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.BusyTimeout != 2*time.Second {
		t.Fatalf("busy timeout: got %v", cfg.BusyTimeout)
	}
	if cfg.ConnMaxLifetime != 15*time.Minute || cfg.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("lifetime defaults: got %v / %v", cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime)
	}
}
