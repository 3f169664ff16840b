// File path: internal/export/mtv/mtv.go

// Package mtv emits Migration Toolkit for Virtualization manifests
// (forklift.konveyor.io/v1beta1) from a planned estate: one Plan,
// NetworkMap, StorageMap, and Migration per wave.
package mtv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// APIVersion is the forklift CRD group/version every manifest declares.
const APIVersion = "forklift.konveyor.io/v1beta1"

// ErrNoWaves is returned when no wave carries a migratable VM.
var ErrNoWaves = errors.New("mtv: no migratable waves")

// Options tune manifest generation. Zero values fall back to the
// defaults documented on each field.
type Options struct {
	// ReportID prefixes every manifest name. Defaults to "estate".
	ReportID string
	// Namespace is where the manifests themselves live. Defaults to
	// "openshift-mtv".
	Namespace string
	// TargetNamespace receives the migrated VMs. Defaults to
	// "vms-<report>".
	TargetNamespace string
	// SourceProvider and TargetProvider name the registered forklift
	// providers. Defaults: "vmware" and "host".
	SourceProvider string
	TargetProvider string
	// StorageClass backs every datastore mapping. Defaults to the IBM
	// Cloud VPC block tier "ibmc-vpc-block-10iops-tier".
	StorageClass string
	// NetworkType selects the destination network kind: "pod" or
	// "multus". Defaults to "pod".
	NetworkType string
	// NetworkNamespace holds the network attachment definitions for
	// multus mappings. Defaults to Namespace.
	NetworkNamespace string
	// IncludeHeld also emits a bundle for the held remediation wave.
	IncludeHeld bool
}

func (o Options) normalized() Options {
	if strings.TrimSpace(o.ReportID) == "" {
		o.ReportID = "estate"
	}
	if strings.TrimSpace(o.Namespace) == "" {
		o.Namespace = "openshift-mtv"
	}
	if strings.TrimSpace(o.TargetNamespace) == "" {
		o.TargetNamespace = Sanitize("vms-" + o.ReportID)
	}
	if strings.TrimSpace(o.SourceProvider) == "" {
		o.SourceProvider = "vmware"
	}
	if strings.TrimSpace(o.TargetProvider) == "" {
		o.TargetProvider = "host"
	}
	if strings.TrimSpace(o.StorageClass) == "" {
		o.StorageClass = "ibmc-vpc-block-10iops-tier"
	}
	if o.NetworkType != "multus" {
		o.NetworkType = "pod"
	}
	if strings.TrimSpace(o.NetworkNamespace) == "" {
		o.NetworkNamespace = o.Namespace
	}
	return o
}

// Metadata is the object header every manifest carries.
type Metadata struct {
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace,omitempty"`
	Labels    map[string]string `yaml:"labels,omitempty"`
}

// Ref points at another object by name and namespace.
type Ref struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace,omitempty"`
}

// ProviderPair names the source and destination providers.
type ProviderPair struct {
	Source      Ref `yaml:"source"`
	Destination Ref `yaml:"destination"`
}

// Plan is the forklift migration plan for one wave.
type Plan struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       PlanSpec `yaml:"spec"`
}

type PlanSpec struct {
	Provider        ProviderPair `yaml:"provider"`
	Map             PlanMaps     `yaml:"map"`
	TargetNamespace string       `yaml:"targetNamespace"`
	Warm            bool         `yaml:"warm"`
	VMs             []PlanVM     `yaml:"vms"`
}

type PlanMaps struct {
	Network Ref `yaml:"network"`
	Storage Ref `yaml:"storage"`
}

// PlanVM identifies one VM to migrate, by vSphere managed object
// reference when the export carried one.
type PlanVM struct {
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name,omitempty"`
}

// NetworkMap maps source port groups to destination networks.
type NetworkMap struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   Metadata       `yaml:"metadata"`
	Spec       NetworkMapSpec `yaml:"spec"`
}

type NetworkMapSpec struct {
	Provider ProviderPair   `yaml:"provider"`
	Map      []NetworkEntry `yaml:"map"`
}

type NetworkEntry struct {
	Source      NetworkSource      `yaml:"source"`
	Destination NetworkDestination `yaml:"destination"`
}

type NetworkSource struct {
	Name string `yaml:"name"`
}

type NetworkDestination struct {
	Type      string `yaml:"type"`
	Name      string `yaml:"name,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// StorageMap maps source datastores to destination storage classes.
type StorageMap struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   Metadata       `yaml:"metadata"`
	Spec       StorageMapSpec `yaml:"spec"`
}

type StorageMapSpec struct {
	Provider ProviderPair   `yaml:"provider"`
	Map      []StorageEntry `yaml:"map"`
}

type StorageEntry struct {
	Source      StorageSource      `yaml:"source"`
	Destination StorageDestination `yaml:"destination"`
}

type StorageSource struct {
	Name string `yaml:"name"`
}

type StorageDestination struct {
	StorageClass string `yaml:"storageClass"`
}

// Migration starts the plan.
type Migration struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Metadata   Metadata      `yaml:"metadata"`
	Spec       MigrationSpec `yaml:"spec"`
}

type MigrationSpec struct {
	Plan Ref `yaml:"plan"`
}

// WaveBundle holds the four manifests for one wave.
type WaveBundle struct {
	Number     int
	Name       string
	Plan       Plan
	NetworkMap NetworkMap
	StorageMap StorageMap
	Migration  Migration
}

// documents returns the manifests in apply order: maps before the plan
// that references them, migration last.
func (wb WaveBundle) documents() []interface{} {
	return []interface{}{wb.NetworkMap, wb.StorageMap, wb.Plan, wb.Migration}
}

// Bundle is the full manifest set for one report.
type Bundle struct {
	ReportID string
	Waves    []WaveBundle
}

// Generate builds one WaveBundle per migratable wave. The held
// remediation wave (number zero) is skipped unless IncludeHeld is set:
// its members are blocked and must not reach a migration plan.
func Generate(inv *rvtools.Inventory, waves []assessment.Wave, opts Options) (*Bundle, error) {
	if inv == nil {
		return nil, errors.New("mtv: inventory required")
	}
	opts = opts.normalized()
	bundle := &Bundle{ReportID: opts.ReportID}
	for _, wave := range waves {
		if wave.Number == 0 && !opts.IncludeHeld {
			continue
		}
		if len(wave.VMNames) == 0 {
			continue
		}
		bundle.Waves = append(bundle.Waves, buildWave(inv, wave, opts))
	}
	if len(bundle.Waves) == 0 {
		return nil, ErrNoWaves
	}
	return bundle, nil
}

func buildWave(inv *rvtools.Inventory, wave assessment.Wave, opts Options) WaveBundle {
	base := Sanitize(fmt.Sprintf("%s-wave-%d", opts.ReportID, wave.Number))
	labels := map[string]string{
		"report": Sanitize(opts.ReportID),
		"wave":   strconv.Itoa(wave.Number),
	}
	providers := ProviderPair{
		Source:      Ref{Name: opts.SourceProvider, Namespace: opts.Namespace},
		Destination: Ref{Name: opts.TargetProvider, Namespace: opts.Namespace},
	}
	meta := func(suffix string) Metadata {
		return Metadata{
			Name:      Sanitize(base + "-" + suffix),
			Namespace: opts.Namespace,
			Labels:    labels,
		}
	}

	var planVMs []PlanVM
	networks := make(map[string]struct{})
	datastores := make(map[string]struct{})
	for _, name := range wave.VMNames {
		vm, ok := inv.VMByName(name)
		if !ok {
			vm = rvtools.VM{Name: name}
		}
		entry := PlanVM{Name: vm.Name}
		if vm.MoRef != "" {
			entry.ID = vm.MoRef
		}
		planVMs = append(planVMs, entry)
		for _, nic := range inv.NICsFor(vm) {
			if net := strings.TrimSpace(nic.Network); net != "" {
				networks[net] = struct{}{}
			}
		}
		for _, disk := range inv.DisksFor(vm) {
			if ds := strings.TrimSpace(disk.Datastore); ds != "" {
				datastores[ds] = struct{}{}
			}
		}
	}

	networkMap := NetworkMap{
		APIVersion: APIVersion,
		Kind:       "NetworkMap",
		Metadata:   meta("network-map"),
		Spec:       NetworkMapSpec{Provider: providers},
	}
	for _, net := range sortedKeys(networks) {
		dest := NetworkDestination{Type: opts.NetworkType}
		if opts.NetworkType == "multus" {
			dest.Name = Sanitize(net)
			dest.Namespace = opts.NetworkNamespace
		}
		networkMap.Spec.Map = append(networkMap.Spec.Map, NetworkEntry{
			Source:      NetworkSource{Name: net},
			Destination: dest,
		})
	}

	storageMap := StorageMap{
		APIVersion: APIVersion,
		Kind:       "StorageMap",
		Metadata:   meta("storage-map"),
		Spec:       StorageMapSpec{Provider: providers},
	}
	for _, ds := range sortedKeys(datastores) {
		storageMap.Spec.Map = append(storageMap.Spec.Map, StorageEntry{
			Source:      StorageSource{Name: ds},
			Destination: StorageDestination{StorageClass: opts.StorageClass},
		})
	}

	plan := Plan{
		APIVersion: APIVersion,
		Kind:       "Plan",
		Metadata:   meta("plan"),
		Spec: PlanSpec{
			Provider: providers,
			Map: PlanMaps{
				Network: Ref{Name: networkMap.Metadata.Name, Namespace: opts.Namespace},
				Storage: Ref{Name: storageMap.Metadata.Name, Namespace: opts.Namespace},
			},
			TargetNamespace: opts.TargetNamespace,
			VMs:             planVMs,
		},
	}

	migration := Migration{
		APIVersion: APIVersion,
		Kind:       "Migration",
		Metadata:   meta("migration"),
		Spec:       MigrationSpec{Plan: Ref{Name: plan.Metadata.Name, Namespace: opts.Namespace}},
	}

	return WaveBundle{
		Number:     wave.Number,
		Name:       base,
		Plan:       plan,
		NetworkMap: networkMap,
		StorageMap: storageMap,
		Migration:  migration,
	}
}

// Encode streams every manifest as one multi-document YAML.
func (b *Bundle) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, wave := range b.Waves {
		for _, doc := range wave.documents() {
			if err := enc.Encode(doc); err != nil {
				return fmt.Errorf("encode %s manifests: %w", wave.Name, err)
			}
		}
	}
	return enc.Close()
}

// WriteBundle writes wave-<n>/{networkmap,storagemap,plan,migration}.yaml
// under dir plus a combined all.yaml, returning the written paths.
func (b *Bundle) WriteBundle(ctx context.Context, dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("mtv: bundle directory required")
	}
	var written []string
	for _, wave := range b.Waves {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		waveDir := filepath.Join(dir, fmt.Sprintf("wave-%d", wave.Number))
		if err := os.MkdirAll(waveDir, 0o755); err != nil {
			return nil, fmt.Errorf("create wave directory: %w", err)
		}
		files := []struct {
			name string
			doc  interface{}
		}{
			{"networkmap.yaml", wave.NetworkMap},
			{"storagemap.yaml", wave.StorageMap},
			{"plan.yaml", wave.Plan},
			{"migration.yaml", wave.Migration},
		}
		for _, file := range files {
			path := filepath.Join(waveDir, file.name)
			if err := writeYAMLFile(path, file.doc); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
	}
	combined := filepath.Join(dir, "all.yaml")
	f, err := os.OpenFile(combined, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create combined manifest: %w", err)
	}
	if err := b.Encode(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close combined manifest: %w", err)
	}
	return append(written, combined), nil
}

func writeYAMLFile(path string, doc interface{}) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Sanitize folds a free-form name into an RFC 1123 label: lower-case
// alphanumerics and dashes, at most 63 characters, alphanumeric at both
// ends.
func Sanitize(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
			}
			lastDash = true
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if len(cleaned) > 63 {
		cleaned = strings.Trim(cleaned[:63], "-")
	}
	if cleaned == "" {
		return "estate"
	}
	return cleaned
}
