// File path: internal/export/mtv/mtv_test.go
package mtv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

func planInventory() *rvtools.Inventory {
	return &rvtools.Inventory{
		VMs: []rvtools.VM{
			{Name: "web-01", MoRef: "vm-101", GuestOS: "Ubuntu Linux (64-bit)"},
			{Name: "db-01", MoRef: "vm-102", GuestOS: "Microsoft Windows Server 2019 (64-bit)"},
		},
		Disks: []rvtools.Disk{
			{VMName: "web-01", VMMoRef: "vm-101", Label: "Hard disk 1", CapacityMiB: 51200, Datastore: "ds-prod"},
			{VMName: "db-01", VMMoRef: "vm-102", Label: "Hard disk 1", CapacityMiB: 204800, Datastore: "ds-dev"},
		},
		NICs: []rvtools.NIC{
			{VMName: "web-01", VMMoRef: "vm-101", Network: "prod-net", Connected: true},
			{VMName: "db-01", VMMoRef: "vm-102", Network: "lab-net", Connected: true},
		},
	}
}

func planWaves() []assessment.Wave {
	return []assessment.Wave{
		{Number: 0, Label: "Held for remediation", VMNames: []string{"db-01"}},
		{Number: 1, Label: "Wave 1", VMNames: []string{"web-01", "db-01"}},
		{Number: 2, Label: "Wave 2"},
	}
}

func TestGenerateBuildsWaveManifests(t *testing.T) {
	bundle, err := Generate(planInventory(), planWaves(), Options{ReportID: "rpt-one"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(bundle.Waves) != 1 {
		t.Fatalf("expected one migratable wave, got %d", len(bundle.Waves))
	}
	wb := bundle.Waves[0]
	if wb.Number != 1 || wb.Name != "rpt-one-wave-1" {
		t.Fatalf("unexpected wave bundle %d %q", wb.Number, wb.Name)
	}

	plan := wb.Plan
	if plan.Kind != "Plan" || plan.APIVersion != APIVersion {
		t.Fatalf("plan header %q %q", plan.Kind, plan.APIVersion)
	}
	if plan.Metadata.Name != "rpt-one-wave-1-plan" {
		t.Fatalf("plan name %q", plan.Metadata.Name)
	}
	if plan.Metadata.Namespace != "openshift-mtv" {
		t.Fatalf("plan namespace %q", plan.Metadata.Namespace)
	}
	if plan.Metadata.Labels["report"] != "rpt-one" || plan.Metadata.Labels["wave"] != "1" {
		t.Fatalf("plan labels %v", plan.Metadata.Labels)
	}
	if plan.Spec.TargetNamespace != "vms-rpt-one" {
		t.Fatalf("target namespace %q", plan.Spec.TargetNamespace)
	}
	if plan.Spec.Provider.Source.Name != "vmware" || plan.Spec.Provider.Destination.Name != "host" {
		t.Fatalf("providers %+v", plan.Spec.Provider)
	}
	if len(plan.Spec.VMs) != 2 {
		t.Fatalf("plan vms %+v", plan.Spec.VMs)
	}
	if plan.Spec.VMs[0].ID != "vm-101" || plan.Spec.VMs[0].Name != "web-01" {
		t.Fatalf("plan vm entry %+v", plan.Spec.VMs[0])
	}
	if plan.Spec.Map.Network.Name != wb.NetworkMap.Metadata.Name {
		t.Fatalf("plan references network map %q, have %q", plan.Spec.Map.Network.Name, wb.NetworkMap.Metadata.Name)
	}
	if plan.Spec.Map.Storage.Name != wb.StorageMap.Metadata.Name {
		t.Fatalf("plan references storage map %q, have %q", plan.Spec.Map.Storage.Name, wb.StorageMap.Metadata.Name)
	}

	if wb.NetworkMap.Kind != "NetworkMap" {
		t.Fatalf("network map kind %q", wb.NetworkMap.Kind)
	}
	nets := wb.NetworkMap.Spec.Map
	if len(nets) != 2 || nets[0].Source.Name != "lab-net" || nets[1].Source.Name != "prod-net" {
		t.Fatalf("network entries not sorted: %+v", nets)
	}
	for _, entry := range nets {
		if entry.Destination.Type != "pod" || entry.Destination.Name != "" {
			t.Fatalf("pod destination should carry no name: %+v", entry.Destination)
		}
	}

	if wb.StorageMap.Kind != "StorageMap" {
		t.Fatalf("storage map kind %q", wb.StorageMap.Kind)
	}
	stores := wb.StorageMap.Spec.Map
	if len(stores) != 2 || stores[0].Source.Name != "ds-dev" || stores[1].Source.Name != "ds-prod" {
		t.Fatalf("storage entries not sorted: %+v", stores)
	}
	for _, entry := range stores {
		if entry.Destination.StorageClass != "ibmc-vpc-block-10iops-tier" {
			t.Fatalf("storage class %q", entry.Destination.StorageClass)
		}
	}

	if wb.Migration.Kind != "Migration" {
		t.Fatalf("migration kind %q", wb.Migration.Kind)
	}
	if wb.Migration.Spec.Plan.Name != plan.Metadata.Name {
		t.Fatalf("migration references plan %q", wb.Migration.Spec.Plan.Name)
	}
}

func TestGenerateIncludesHeldWaveOnRequest(t *testing.T) {
	bundle, err := Generate(planInventory(), planWaves(), Options{ReportID: "rpt-one", IncludeHeld: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(bundle.Waves) != 2 {
		t.Fatalf("expected held plus wave one, got %d", len(bundle.Waves))
	}
	if bundle.Waves[0].Number != 0 {
		t.Fatalf("first bundle should be the held wave, got %d", bundle.Waves[0].Number)
	}
}

func TestGenerateNoMigratableWaves(t *testing.T) {
	waves := []assessment.Wave{
		{Number: 0, Label: "Held for remediation", VMNames: []string{"db-01"}},
		{Number: 3, Label: "Wave 3"},
	}
	if _, err := Generate(planInventory(), waves, Options{}); !errors.Is(err, ErrNoWaves) {
		t.Fatalf("expected ErrNoWaves, got %v", err)
	}
	if _, err := Generate(nil, planWaves(), Options{}); err == nil {
		t.Fatal("expected error for nil inventory")
	}
}

func TestGenerateMultusNetworkMapping(t *testing.T) {
	opts := Options{ReportID: "rpt-one", NetworkType: "multus", NetworkNamespace: "nad-namespace"}
	bundle, err := Generate(planInventory(), planWaves(), opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, entry := range bundle.Waves[0].NetworkMap.Spec.Map {
		if entry.Destination.Type != "multus" {
			t.Fatalf("destination type %q", entry.Destination.Type)
		}
		if entry.Destination.Namespace != "nad-namespace" {
			t.Fatalf("destination namespace %q", entry.Destination.Namespace)
		}
		if entry.Destination.Name != Sanitize(entry.Source.Name) {
			t.Fatalf("destination name %q for source %q", entry.Destination.Name, entry.Source.Name)
		}
	}

	fallback, err := Generate(planInventory(), planWaves(), Options{NetworkType: "calico"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := fallback.Waves[0].NetworkMap.Spec.Map[0].Destination.Type; got != "pod" {
		t.Fatalf("unknown network type should fall back to pod, got %q", got)
	}
}

func TestGenerateKeepsUnknownVMsByName(t *testing.T) {
	waves := []assessment.Wave{{Number: 1, VMNames: []string{"ghost-9"}}}
	bundle, err := Generate(planInventory(), waves, Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	vms := bundle.Waves[0].Plan.Spec.VMs
	if len(vms) != 1 || vms[0].Name != "ghost-9" || vms[0].ID != "" {
		t.Fatalf("unexpected plan vms %+v", vms)
	}
}

func TestEncodeStreamsAllDocuments(t *testing.T) {
	bundle, err := Generate(planInventory(), planWaves(), Options{ReportID: "rpt-one", IncludeHeld: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var buf bytes.Buffer
	if err := bundle.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf.Bytes()))
	docs := 0
	for {
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decode document %d: %v", docs, err)
		}
		if doc["apiVersion"] != APIVersion {
			t.Fatalf("document %d apiVersion %v", docs, doc["apiVersion"])
		}
		docs++
	}
	if docs != 8 {
		t.Fatalf("expected 8 documents for two waves, got %d", docs)
	}
}

func TestWriteBundleLayout(t *testing.T) {
	bundle, err := Generate(planInventory(), planWaves(), Options{ReportID: "rpt-one"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	dir := t.TempDir()
	written, err := bundle.WriteBundle(context.Background(), dir)
	if err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if len(written) != 5 {
		t.Fatalf("expected four wave files plus all.yaml, got %v", written)
	}
	for _, name := range []string{"networkmap.yaml", "storagemap.yaml", "plan.yaml", "migration.yaml"} {
		path := filepath.Join(dir, "wave-1", name)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "wave-1", "plan.yaml"))
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.Kind != "Plan" || plan.APIVersion != APIVersion {
		t.Fatalf("plan round trip %q %q", plan.Kind, plan.APIVersion)
	}
	if plan.Spec.TargetNamespace != "vms-rpt-one" {
		t.Fatalf("plan target namespace %q", plan.Spec.TargetNamespace)
	}

	combined, err := os.ReadFile(filepath.Join(dir, "all.yaml"))
	if err != nil {
		t.Fatalf("read combined manifest: %v", err)
	}
	if !strings.Contains(string(combined), "kind: Migration") {
		t.Fatal("combined manifest missing migration document")
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bundle.WriteBundle(canceled, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := bundle.WriteBundle(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Prod Estate 2024!", "prod-estate-2024"},
		{"--Web__Tier--", "web-tier"},
		{"UPPER.case", "upper-case"},
		{"", "estate"},
		{"???", "estate"},
		{strings.Repeat("a", 70), strings.Repeat("a", 63)},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
