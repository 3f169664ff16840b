// File path: internal/assessment/assessment.go
package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common/telemetry"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
)

// ErrEmptyInventory is returned when an assessment is requested for an
// inventory without VMs.
var ErrEmptyInventory = errors.New("assessment: inventory has no VMs")

// Result is one full assessment of an inventory against one target.
type Result struct {
	Target       Target               `json:"target"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Scores       map[string]Score     `json:"scores"`
	Verdicts     map[string]OSVerdict `json:"verdicts"`
	Remediations []RemediationItem    `json:"remediations,omitempty"`
	Waves        []Wave               `json:"waves,omitempty"`
	Summary      Summary              `json:"summary"`
}

// Assessor runs the rule pipeline. The zero value is not usable; construct
// with NewAssessor.
type Assessor struct {
	weights  Weights
	waveOpts WaveOptions
	topo     *topology.Service
	now      func() time.Time
}

type AssessorOption func(*Assessor)

func WithWeights(w Weights) AssessorOption {
	return func(a *Assessor) { a.weights = w }
}

func WithWaveOptions(opts WaveOptions) AssessorOption {
	return func(a *Assessor) { a.waveOpts = opts }
}

// WithTopology shares an adjacency service owned by the caller; the
// assessor refreshes it on every run.
func WithTopology(svc *topology.Service) AssessorOption {
	return func(a *Assessor) { a.topo = svc }
}

func WithClock(now func() time.Time) AssessorOption {
	return func(a *Assessor) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAssessor(opts ...AssessorOption) *Assessor {
	a := &Assessor{
		weights: DefaultWeights(),
		topo:    topology.NewService(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// WaveOptions returns the planner defaults currently in effect.
func (a *Assessor) WaveOptions() WaveOptions { return a.waveOpts.normalized() }

// Assess runs the full pipeline: verdicts, scores, remediations, adjacency
// groups, waves, and the estate summary.
func (a *Assessor) Assess(ctx context.Context, inv *rvtools.Inventory, target Target) (*Result, error) {
	if inv == nil || len(inv.VMs) == 0 {
		return nil, ErrEmptyInventory
	}
	ctx, end := telemetry.StartSpan(ctx, "assessment.assess")
	defer end()

	now := a.now().UTC()
	result := &Result{
		Target:      target,
		GeneratedAt: now,
		Scores:      make(map[string]Score, len(inv.VMs)),
		Verdicts:    make(map[string]OSVerdict, len(inv.VMs)),
	}

	for _, vm := range inv.VMs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		verdict := EvaluateGuest(vm.GuestOS, target)
		tools, ok := inv.ToolsFor(vm)
		if ok && vm.ToolsStatus == "" {
			vm.ToolsStatus = tools.Status
		}
		score := ScoreVMWith(a.weights, ScoreInput{
			VM:        vm,
			Disks:     inv.DisksFor(vm),
			NICs:      inv.NICsFor(vm),
			Snapshots: inv.SnapshotsFor(vm),
			Verdict:   verdict,
			Target:    target,
		})
		result.Verdicts[vm.Name] = verdict
		result.Scores[vm.Name] = score
		result.Remediations = append(result.Remediations, Remediations(inv, vm, score, verdict, now)...)
	}

	a.topo.Refresh(inv)
	groups, err := a.topo.Groups(ctx)
	if err != nil {
		return nil, err
	}
	result.Waves = PlanWaves(inv, result.Scores, groups, a.waveOpts)
	result.Summary = Summarize(inv, target, result.Scores, result.Verdicts, result.Remediations)

	telemetry.RecordAssessment(len(inv.VMs))
	common.Logger().Info("assessment: run complete",
		"target", string(target), "vms", len(inv.VMs),
		"blockers", result.Summary.Bands[BandBlocker], "waves", len(result.Waves))
	return result, nil
}

// Replan recomputes waves only, for interactive what-if planning.
func (a *Assessor) Replan(ctx context.Context, inv *rvtools.Inventory, scores map[string]Score, opts WaveOptions) ([]Wave, error) {
	if inv == nil || len(inv.VMs) == 0 {
		return nil, ErrEmptyInventory
	}
	a.topo.Refresh(inv)
	groups, err := a.topo.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return PlanWaves(inv, scores, groups, opts.normalized()), nil
}
