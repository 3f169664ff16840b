// File path: internal/workflow/manager_test.go
package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
)

type fakeCatalog struct {
	mu           sync.Mutex
	reports      map[string]catalog.ReportUpsert
	vms          map[string][]catalog.VMUpsert
	waves        map[string][]assessment.Wave
	remediations map[string][]assessment.RemediationItem
	audits       []string

	// When set, BatchUpsertVMs blocks until the channel closes.
	gate chan struct{}
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		reports:      make(map[string]catalog.ReportUpsert),
		vms:          make(map[string][]catalog.VMUpsert),
		waves:        make(map[string][]assessment.Wave),
		remediations: make(map[string][]assessment.RemediationItem),
	}
}

func (f *fakeCatalog) UpsertReport(ctx context.Context, rep catalog.ReportUpsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[rep.ReportID] = rep
	return nil
}

func (f *fakeCatalog) ListReports(ctx context.Context) ([]catalog.Report, error) {
	return nil, nil
}

func (f *fakeCatalog) GetReport(ctx context.Context, reportID string) (catalog.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[reportID]; !ok {
		return catalog.Report{}, catalog.ErrReportNotFound
	}
	return catalog.Report{ReportID: reportID}, nil
}

func (f *fakeCatalog) DeleteReport(ctx context.Context, reportID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reports, reportID)
	delete(f.vms, reportID)
	return nil
}

func (f *fakeCatalog) BatchUpsertVMs(ctx context.Context, reportID string, vms []catalog.VMUpsert) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vms[reportID] = append([]catalog.VMUpsert(nil), vms...)
	return nil
}

func (f *fakeCatalog) QueryVMs(ctx context.Context, opts catalog.QueryOptions) (catalog.VMPage, error) {
	return catalog.VMPage{}, nil
}

func (f *fakeCatalog) StreamVMs(ctx context.Context, opts catalog.QueryOptions, fn func(catalog.VMRecord) error) error {
	return nil
}

func (f *fakeCatalog) VMByName(ctx context.Context, reportID, name string) (catalog.VMRecord, error) {
	return catalog.VMRecord{}, catalog.ErrVMNotFound
}

func (f *fakeCatalog) BandDistribution(ctx context.Context, reportID, target string) ([]catalog.BandCount, error) {
	return nil, nil
}

func (f *fakeCatalog) OSSupportBreakdown(ctx context.Context, reportID, target string) ([]catalog.SupportCount, error) {
	return nil, nil
}

func (f *fakeCatalog) ClusterRollup(ctx context.Context, reportID string) ([]catalog.ClusterStat, error) {
	return nil, nil
}

func (f *fakeCatalog) SaveWaves(ctx context.Context, reportID string, waves []assessment.Wave) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waves[reportID] = append([]assessment.Wave(nil), waves...)
	return nil
}

func (f *fakeCatalog) WavesForReport(ctx context.Context, reportID string) ([]assessment.Wave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assessment.Wave(nil), f.waves[reportID]...), nil
}

func (f *fakeCatalog) SaveRemediations(ctx context.Context, reportID string, items []assessment.RemediationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remediations[reportID] = append([]assessment.RemediationItem(nil), items...)
	return nil
}

func (f *fakeCatalog) RemediationsForReport(ctx context.Context, reportID string) ([]assessment.RemediationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assessment.RemediationItem(nil), f.remediations[reportID]...), nil
}

func (f *fakeCatalog) RecordAudit(ctx context.Context, reportID, action, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, reportID+":"+action)
	return nil
}

func (f *fakeCatalog) ChangeHistory(ctx context.Context, reportID string, limit int) ([]catalog.ChangeEvent, error) {
	return nil, nil
}

func seedInventory() *rvtools.Inventory {
	return &rvtools.Inventory{
		SourceName: "estate.xlsx",
		SheetNames: []string{"vInfo", "vDisk", "vNetwork"},
		ParsedAt:   time.Date(2026, 4, 7, 10, 0, 0, 0, time.UTC),
		VMs: []rvtools.VM{
			{Name: "web-01", MoRef: "vm-1", PowerState: "poweredOn", GuestOS: "Ubuntu Linux (64-bit)", CPUs: 2, MemoryMiB: 4096, Cluster: "prod", Host: "esx-01", ProvisionedMiB: 51200, HWVersion: 17, ToolsStatus: "toolsOk"},
			{Name: "db-01", MoRef: "vm-2", PowerState: "poweredOn", GuestOS: "Microsoft Windows Server 2019 (64-bit)", CPUs: 8, MemoryMiB: 32768, Cluster: "prod", Host: "esx-02", ProvisionedMiB: 204800, HWVersion: 17, ToolsStatus: "toolsOk"},
			{Name: "batch-01", MoRef: "vm-3", PowerState: "poweredOff", GuestOS: "Red Hat Enterprise Linux 8 (64-bit)", CPUs: 4, MemoryMiB: 8192, Cluster: "dev", Host: "esx-03", ProvisionedMiB: 102400, HWVersion: 15, ToolsStatus: "toolsOk"},
		},
		Disks: []rvtools.Disk{
			{VMName: "web-01", VMMoRef: "vm-1", Label: "Hard disk 1", CapacityMiB: 51200, Datastore: "ds-prod"},
			{VMName: "db-01", VMMoRef: "vm-2", Label: "Hard disk 1", CapacityMiB: 204800, Datastore: "ds-prod"},
			{VMName: "batch-01", VMMoRef: "vm-3", Label: "Hard disk 1", CapacityMiB: 102400, Datastore: "ds-dev"},
		},
		NICs: []rvtools.NIC{
			{VMName: "web-01", VMMoRef: "vm-1", Network: "prod-net", Connected: true},
			{VMName: "db-01", VMMoRef: "vm-2", Network: "prod-net", Connected: true},
		},
	}
}

func newTestManager(t *testing.T, cat catalog.Store) *Manager {
	t.Helper()
	store, err := inventory.NewStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("new inventory store: %v", err)
	}
	meta := inventory.Meta{ReportID: "rpt-1", SourceFile: "estate.xlsx", UploadedAt: time.Date(2026, 4, 7, 10, 0, 0, 0, time.UTC)}
	if err := store.SaveInventory(context.Background(), meta, seedInventory()); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	pricing, err := ibmcloud.New(context.Background(), ibmcloud.Config{Region: "us-south"})
	if err != nil {
		t.Fatalf("new pricing client: %v", err)
	}
	t.Cleanup(func() { pricing.Close() })
	estimator := cost.NewEstimator(targets.NewCatalog(), pricing, "us-south")
	return NewManager(store, cat, assessment.NewAssessor(), estimator, nil, filepath.Join(t.TempDir(), "artifacts"))
}

func waitForDone(t *testing.T, mgr *Manager, reportID string) State {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		state := mgr.Status(reportID)
		if !state.Running && state.Status != "idle" {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow for %s did not finish", reportID)
	return State{}
}

func TestStartValidatesRequest(t *testing.T) {
	mgr := newTestManager(t, newFakeCatalog())
	if err := mgr.Start(Request{}); err == nil {
		t.Fatal("expected error for missing report id")
	}
	if err := mgr.Start(Request{ReportID: "rpt-1", Target: "azure"}); err == nil {
		t.Fatal("expected error for unknown target")
	}
	if err := mgr.Start(Request{ReportID: "rpt-1", Flow: "mystery"}); err == nil {
		t.Fatal("expected error for unknown flow")
	}
	if err := mgr.Start(Request{ReportID: "rpt-1", Flow: "export", Formats: []string{"csv"}}); err == nil {
		t.Fatal("expected error for unknown export format")
	}
}

func TestAssessmentWorkflowPersistsCatalog(t *testing.T) {
	cat := newFakeCatalog()
	mgr := newTestManager(t, cat)

	if err := mgr.Start(Request{ReportID: "rpt-1", Target: "roks"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	state := waitForDone(t, mgr, "rpt-1")
	if state.Status != "completed" {
		t.Fatalf("status = %q (error %q), want completed", state.Status, state.Error)
	}
	for _, step := range state.Steps {
		if step.Status != StepCompleted {
			t.Fatalf("step %q finished %q: %s", step.Name, step.Status, step.Message)
		}
	}
	if state.Summary == nil || state.Summary.VMCount != 3 {
		t.Fatalf("summary not captured: %+v", state.Summary)
	}

	cat.mu.Lock()
	defer cat.mu.Unlock()
	if rep, ok := cat.reports["rpt-1"]; !ok || rep.VMCount != 3 {
		t.Fatalf("report row not persisted: %+v", cat.reports)
	}
	rows := cat.vms["rpt-1"]
	if len(rows) != 3 {
		t.Fatalf("vm rows = %d, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Assessment == nil {
			t.Fatalf("vm %s missing assessment columns", row.Name)
		}
		if row.Assessment.Target != "roks" {
			t.Fatalf("vm %s target = %q", row.Name, row.Assessment.Target)
		}
		if row.Assessment.Profile == "" || row.Assessment.MonthlyUSD <= 0 {
			t.Fatalf("vm %s missing cost columns: %+v", row.Name, row.Assessment)
		}
	}
	if len(cat.waves["rpt-1"]) == 0 {
		t.Fatal("waves not persisted")
	}
	if len(cat.audits) == 0 {
		t.Fatal("audit event not recorded")
	}
}

func TestStartWhileRunningReturnsErr(t *testing.T) {
	cat := newFakeCatalog()
	cat.gate = make(chan struct{})
	mgr := newTestManager(t, cat)

	if err := mgr.Start(Request{ReportID: "rpt-1"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	// The run is now blocked inside catalog persistence.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Status("rpt-1").Running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := mgr.Start(Request{ReportID: "rpt-1"}); !errors.Is(err, ErrWorkflowRunning) {
		t.Fatalf("second start = %v, want ErrWorkflowRunning", err)
	}
	close(cat.gate)
	state := waitForDone(t, mgr, "rpt-1")
	if state.Status != "completed" {
		t.Fatalf("status after release = %q", state.Status)
	}
}

func TestStopLifecycle(t *testing.T) {
	cat := newFakeCatalog()
	cat.gate = make(chan struct{})
	mgr := newTestManager(t, cat)

	if err := mgr.Stop("unknown"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("stop unknown = %v, want ErrWorkflowNotFound", err)
	}
	if err := mgr.Start(Request{ReportID: "rpt-1"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	if err := mgr.Stop("rpt-1"); err != nil {
		t.Fatalf("stop running workflow: %v", err)
	}
	state := waitForDone(t, mgr, "rpt-1")
	if state.Status != "canceled" {
		t.Fatalf("status = %q, want canceled", state.Status)
	}
	if err := mgr.Stop("rpt-1"); !errors.Is(err, ErrWorkflowNotRunning) {
		t.Fatalf("stop finished workflow = %v, want ErrWorkflowNotRunning", err)
	}
	close(cat.gate)
}

func TestStatusIdleForUnknownReport(t *testing.T) {
	mgr := newTestManager(t, newFakeCatalog())
	state := mgr.Status("never-ran")
	if state.Status != "idle" || state.Running {
		t.Fatalf("unexpected idle state: %+v", state)
	}
	if state.Request.ReportID != "never-ran" {
		t.Fatalf("request id not echoed: %+v", state.Request)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	cat := newFakeCatalog()
	store, err := inventory.NewStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("new inventory store: %v", err)
	}
	if err := store.SaveInventory(context.Background(), inventory.Meta{ReportID: "rpt-1", SourceFile: "estate.xlsx"}, seedInventory()); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	artifactRoot := filepath.Join(t.TempDir(), "artifacts")

	mgr := NewManager(store, cat, assessment.NewAssessor(), nil, nil, artifactRoot)
	if err := mgr.Start(Request{ReportID: "rpt-1"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	waitForDone(t, mgr, "rpt-1")

	reloaded := NewManager(store, cat, assessment.NewAssessor(), nil, nil, artifactRoot)
	state := reloaded.Status("rpt-1")
	if state.Status != "completed" {
		t.Fatalf("restored status = %q, want completed", state.Status)
	}
	if state.Running {
		t.Fatal("restored state should not be running")
	}
	states := reloaded.ReportStates()
	if _, ok := states["rpt-1"]; !ok {
		t.Fatalf("report missing from states: %v", states)
	}

	reloaded.DropHistory("rpt-1")
	if got := reloaded.Status("rpt-1"); got.Status != "idle" {
		t.Fatalf("status after drop = %q, want idle", got.Status)
	}
}

func TestEstimatorSkippedWhenAbsent(t *testing.T) {
	cat := newFakeCatalog()
	store, err := inventory.NewStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("new inventory store: %v", err)
	}
	if err := store.SaveInventory(context.Background(), inventory.Meta{ReportID: "rpt-1"}, seedInventory()); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	mgr := NewManager(store, cat, assessment.NewAssessor(), nil, nil, filepath.Join(t.TempDir(), "artifacts"))
	if err := mgr.Start(Request{ReportID: "rpt-1"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	state := waitForDone(t, mgr, "rpt-1")
	if state.Status != "completed" {
		t.Fatalf("status = %q (error %q)", state.Status, state.Error)
	}
	var costStep *Step
	for i := range state.Steps {
		if state.Steps[i].Name == "Estimate Costs" {
			costStep = &state.Steps[i]
		}
	}
	if costStep == nil || costStep.Status != StepSkipped {
		t.Fatalf("cost step = %+v, want skipped", costStep)
	}
}

func TestAssessmentFailsForMissingReport(t *testing.T) {
	mgr := newTestManager(t, newFakeCatalog())
	if err := mgr.Start(Request{ReportID: "rpt-ghost"}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	state := waitForDone(t, mgr, "rpt-ghost")
	if state.Status != "error" {
		t.Fatalf("status = %q, want error", state.Status)
	}
	if state.Error == "" {
		t.Fatal("expected error message in state")
	}
	if state.Steps[0].Status != StepError {
		t.Fatalf("load step = %q, want error", state.Steps[0].Status)
	}
}
