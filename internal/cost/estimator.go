// File path: internal/cost/estimator.go
package cost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
)

// ErrEmptyInventory is returned when an estimate is requested for an
// inventory without VMs.
var ErrEmptyInventory = errors.New("cost: inventory has no VMs")

const (
	hoursPerMonth = 730

	// Windows Server license list price per vCPU-hour, billed on VSI where
	// the OS license is brought by the platform. ROKS subscription pricing
	// covers guest licensing differently, so no uplift there.
	windowsVCPUHourlyUSD = 0.0414

	// staticRangeSpread widens the estimate when any quote came from the
	// compiled-in price table instead of the live catalog.
	staticRangeSpread = 0.12

	driverLimit = 5
)

// VMEstimate is the monthly cost picture for one VM on one target.
type VMEstimate struct {
	VMName            string  `json:"vm_name"`
	Profile           string  `json:"profile"`
	ComputeMonthlyUSD float64 `json:"compute_monthly_usd"`
	StorageMonthlyUSD float64 `json:"storage_monthly_usd"`
	LicenseMonthlyUSD float64 `json:"license_monthly_usd,omitempty"`
	TotalMonthlyUSD   float64 `json:"total_monthly_usd"`
	StorageGiB        int64   `json:"storage_gib"`
	PriceSource       string  `json:"price_source"`
}

// ExcludedVM names a VM left out of the estate total and why.
type ExcludedVM struct {
	VMName string `json:"vm_name"`
	Reason string `json:"reason"`
}

// Driver is one of the largest per-VM contributions to the monthly total.
type Driver struct {
	VMName     string  `json:"vm_name"`
	Profile    string  `json:"profile"`
	MonthlyUSD float64 `json:"monthly_usd"`
}

// Estate is the rolled-up estimate for one inventory and target.
type Estate struct {
	Target          assessment.Target `json:"target"`
	Currency        string            `json:"currency"`
	TotalMonthlyUSD float64           `json:"total_monthly_usd"`
	LowMonthlyUSD   float64           `json:"low_monthly_usd"`
	HighMonthlyUSD  float64           `json:"high_monthly_usd"`
	VMs             []VMEstimate      `json:"vms,omitempty"`
	ExcludedVMs     []ExcludedVM      `json:"excluded_vms,omitempty"`
	Drivers         []Driver          `json:"drivers,omitempty"`
	Sources         map[string]int    `json:"sources,omitempty"`
	Incomplete      bool              `json:"incomplete,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
}

// Estimator combines profile matching with pricing lookups. Estimates never
// invent numbers: a VM that cannot be matched or priced marks the estate
// incomplete instead of contributing a guess.
type Estimator struct {
	catalog *targets.Catalog
	pricing ibmcloud.Service
	region  string
}

func NewEstimator(catalog *targets.Catalog, pricing ibmcloud.Service, region string) *Estimator {
	return &Estimator{catalog: catalog, pricing: pricing, region: region}
}

// EstimateVM prices one VM: profile match, compute quote, storage from the
// provisioned footprint, and the Windows license uplift on VSI.
func (e *Estimator) EstimateVM(ctx context.Context, vm rvtools.VM, target assessment.Target) (VMEstimate, error) {
	match, err := e.catalog.Match(targets.ForVM(vm, target))
	if err != nil {
		return VMEstimate{}, fmt.Errorf("match %s: %w", vm.Name, err)
	}

	var price ibmcloud.Price
	if target == assessment.TargetROKS {
		price, err = e.pricing.ROKSWorkerPrice(ctx, match.Profile.Name, e.region)
	} else {
		price, err = e.pricing.VSIPrice(ctx, match.Profile.Name, e.region)
	}
	if err != nil {
		return VMEstimate{}, fmt.Errorf("price %s: %w", match.Profile.Name, err)
	}

	storageGiB := (vm.ProvisionedMiB + 1023) / 1024
	est := VMEstimate{
		VMName:            vm.Name,
		Profile:           match.Profile.Name,
		ComputeMonthlyUSD: roundUSD(price.MonthlyUSD),
		StorageMonthlyUSD: roundUSD(float64(storageGiB) * ibmcloud.StorageMonthlyPerGiB(target == assessment.TargetROKS)),
		StorageGiB:        storageGiB,
		PriceSource:       price.Source,
	}
	if target == assessment.TargetVSI && strings.HasPrefix(assessment.NormalizeGuestOS(vm.GuestOS), "windows") {
		vcpus := vm.CPUs
		if vcpus < 1 {
			vcpus = 1
		}
		est.LicenseMonthlyUSD = roundUSD(windowsVCPUHourlyUSD * float64(vcpus) * hoursPerMonth)
	}
	est.TotalMonthlyUSD = roundUSD(est.ComputeMonthlyUSD + est.StorageMonthlyUSD + est.LicenseMonthlyUSD)
	return est, nil
}

// EstimateEstate sums per-VM estimates across the inventory. Blocker-band
// VMs are excluded with their reasons; templates are skipped outright.
func (e *Estimator) EstimateEstate(ctx context.Context, inv *rvtools.Inventory, scores map[string]assessment.Score, target assessment.Target) (*Estate, error) {
	if inv == nil || len(inv.VMs) == 0 {
		return nil, ErrEmptyInventory
	}
	estate := &Estate{Target: target, Currency: "USD", Sources: make(map[string]int)}

	for _, vm := range inv.VMs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if vm.Template || vm.SRMPlaceholder {
			continue
		}
		if score, ok := scores[vm.Name]; ok && score.Band == assessment.BandBlocker {
			reason := "complexity blockers must be remediated before migration"
			if len(score.Blockers) > 0 {
				reason = strings.Join(score.Blockers, "; ")
			}
			estate.ExcludedVMs = append(estate.ExcludedVMs, ExcludedVM{VMName: vm.Name, Reason: reason})
			continue
		}

		sized := vm
		if diskMiB := inv.TotalDiskMiB(vm); diskMiB > 0 {
			sized.ProvisionedMiB = diskMiB
		}
		est, err := e.EstimateVM(ctx, sized, target)
		if err != nil {
			estate.Incomplete = true
			estate.Errors = append(estate.Errors, fmt.Sprintf("%s: %v", vm.Name, err))
			continue
		}
		estate.VMs = append(estate.VMs, est)
		estate.Sources[est.PriceSource]++
		estate.TotalMonthlyUSD += est.TotalMonthlyUSD
	}

	estate.TotalMonthlyUSD = roundUSD(estate.TotalMonthlyUSD)
	estate.LowMonthlyUSD = estate.TotalMonthlyUSD
	estate.HighMonthlyUSD = estate.TotalMonthlyUSD
	if estate.Sources[ibmcloud.SourceStatic] > 0 {
		estate.LowMonthlyUSD = roundUSD(estate.TotalMonthlyUSD * (1 - staticRangeSpread))
		estate.HighMonthlyUSD = roundUSD(estate.TotalMonthlyUSD * (1 + staticRangeSpread))
	}

	ranked := make([]VMEstimate, len(estate.VMs))
	copy(ranked, estate.VMs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalMonthlyUSD != ranked[j].TotalMonthlyUSD {
			return ranked[i].TotalMonthlyUSD > ranked[j].TotalMonthlyUSD
		}
		return ranked[i].VMName < ranked[j].VMName
	})
	for i, est := range ranked {
		if i >= driverLimit {
			break
		}
		estate.Drivers = append(estate.Drivers, Driver{
			VMName:     est.VMName,
			Profile:    est.Profile,
			MonthlyUSD: est.TotalMonthlyUSD,
		})
	}

	common.Logger().Info("cost: estate estimated",
		"target", string(target), "vms", len(estate.VMs),
		"excluded", len(estate.ExcludedVMs), "incomplete", estate.Incomplete,
		"monthly_usd", estate.TotalMonthlyUSD)
	return estate, nil
}

func roundUSD(v float64) float64 {
	return math.Round(v*100) / 100
}
