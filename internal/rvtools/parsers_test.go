// File path: internal/rvtools/parsers_test.go
package rvtools

import (
	"context"
	"strings"
	"testing"
)

func TestVInfoParserReadsCoreColumns(t *testing.T) {
	header := []string{"VM", "Powerstate", "Template", "SRM Placeholder", "CPUs", "Memory", "NICs", "Disks", "Provisioned MiB", "In Use MiB", "HW version", "Firmware", "OS according to the configuration file", "Host", "Cluster", "Datacenter", "Primary IP Address", "VM ID"}
	rows := [][]string{
		{"app-db-01", "poweredOn", "False", "False", "8", "32768", "2", "3", "512000", "204800", "vmx-19", "efi", "Red Hat Enterprise Linux 8 (64-bit)", "esx-01", "prod-cluster", "dc-east", "10.0.0.5, 10.0.1.5", "vm-1001"},
		{"", "poweredOff", "", "", "2", "4096", "1", "1", "", "", "", "", "", "", "", "", "", ""},
	}
	inv := &Inventory{}
	parser := &vInfoParser{}
	if err := parser.Parse(context.Background(), newTable("vInfo", header, rows), inv); err != nil {
		t.Fatalf("parse vInfo: %v", err)
	}
	if len(inv.VMs) != 1 {
		t.Fatalf("expected 1 VM (blank name skipped), got %d", len(inv.VMs))
	}
	vm := inv.VMs[0]
	if vm.Name != "app-db-01" || vm.MoRef != "vm-1001" {
		t.Fatalf("unexpected identity: %+v", vm)
	}
	if vm.CPUs != 8 || vm.MemoryMiB != 32768 || vm.NICs != 2 || vm.Disks != 3 {
		t.Fatalf("unexpected sizing: %+v", vm)
	}
	if vm.HWVersion != 19 {
		t.Fatalf("expected hw version 19, got %d", vm.HWVersion)
	}
	if vm.BootMode != "efi" {
		t.Fatalf("expected efi boot mode, got %q", vm.BootMode)
	}
	if len(vm.IPAddresses) != 2 || vm.IPAddresses[1] != "10.0.1.5" {
		t.Fatalf("unexpected addresses: %v", vm.IPAddresses)
	}
	if vm.PowerState != "poweredon" {
		t.Fatalf("expected lowered power state, got %q", vm.PowerState)
	}
}

func TestVInfoParserAcceptsLegacyMBColumns(t *testing.T) {
	header := []string{"VM", "Powerstate", "CPUs", "Memory MB", "Provisioned MB", "In Use MB"}
	rows := [][]string{{"legacy-vm", "poweredOn", "4", "8,192", "102,400", "51,200"}}
	inv := &Inventory{}
	if err := (&vInfoParser{}).Parse(context.Background(), newTable("vInfo", header, rows), inv); err != nil {
		t.Fatalf("parse vInfo: %v", err)
	}
	vm := inv.VMs[0]
	if vm.MemoryMiB != 8192 {
		t.Fatalf("expected 8192 MiB, got %d", vm.MemoryMiB)
	}
	if vm.ProvisionedMiB != 102400 {
		t.Fatalf("expected provisioned 102400, got %d", vm.ProvisionedMiB)
	}
}

func TestVDiskParserDetectsRDMAndDatastore(t *testing.T) {
	header := []string{"VM", "VM ID", "Disk", "Capacity MiB", "Thin", "Raw", "Path", "Disk Mode"}
	rows := [][]string{
		{"app-db-01", "vm-1001", "Hard disk 1", "102400", "True", "False", "[ds-gold-01] app-db-01/app-db-01.vmdk", "persistent"},
		{"app-db-01", "vm-1001", "Hard disk 2", "409600", "False", "True", "[ds-gold-01] app-db-01/app-db-01_1.vmdk", "independent_persistent"},
	}
	inv := &Inventory{}
	if err := (&vDiskParser{}).Parse(context.Background(), newTable("vDisk", header, rows), inv); err != nil {
		t.Fatalf("parse vDisk: %v", err)
	}
	if len(inv.Disks) != 2 {
		t.Fatalf("expected 2 disks, got %d", len(inv.Disks))
	}
	if inv.Disks[0].Datastore != "ds-gold-01" {
		t.Fatalf("datastore not extracted from path: %+v", inv.Disks[0])
	}
	if !inv.Disks[0].Thin || inv.Disks[0].RawDeviceMapping {
		t.Fatalf("disk 1 flags wrong: %+v", inv.Disks[0])
	}
	if !inv.Disks[1].RawDeviceMapping {
		t.Fatalf("disk 2 should be RDM: %+v", inv.Disks[1])
	}
}

func TestVSnapshotParserParsesTimestamps(t *testing.T) {
	header := []string{"VM", "Name", "Date / time", "Size MiB (vmsn)", "Quiesced"}
	rows := [][]string{
		{"app-db-01", "pre-patch", "2024/11/02 03:15:00", "2048", "False"},
		{"app-db-01", "broken-date", "someday", "128", "False"},
	}
	inv := &Inventory{}
	if err := (&vSnapshotParser{}).Parse(context.Background(), newTable("vSnapshot", header, rows), inv); err != nil {
		t.Fatalf("parse vSnapshot: %v", err)
	}
	if len(inv.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(inv.Snapshots))
	}
	if inv.Snapshots[0].Created.IsZero() {
		t.Fatalf("first snapshot timestamp should parse")
	}
	if !inv.Snapshots[1].Created.IsZero() {
		t.Fatalf("second snapshot timestamp should stay zero")
	}
	if len(inv.Warnings) == 0 || !strings.Contains(inv.Warnings[0], "unparseable timestamp") {
		t.Fatalf("expected a warning for the broken date, got %v", inv.Warnings)
	}
}

func TestParseFloatLocales(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1024", 1024},
		{"12,50", 12.50},
		{"1,234,567", 1234567},
	}
	for _, tc := range cases {
		got, ok := parseFloat(tc.raw)
		if !ok {
			t.Fatalf("parseFloat(%q) failed", tc.raw)
		}
		if got != tc.want {
			t.Fatalf("parseFloat(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if _, ok := parseFloat(""); ok {
		t.Fatalf("empty string should not parse")
	}
}

func TestInventoryJoinsAcrossSheets(t *testing.T) {
	inv := &Inventory{
		VMs: []VM{{Name: "web-01", MoRef: "vm-1"}, {Name: "web-02"}},
		Disks: []Disk{
			{VMName: "web-01", VMMoRef: "vm-1", CapacityMiB: 100},
			{VMName: "WEB-02", CapacityMiB: 200},
		},
		NICs: []NIC{{VMName: "web-01", VMMoRef: "vm-1", Network: "prod-net"}},
	}
	disks := inv.DisksFor(inv.VMs[0])
	if len(disks) != 1 || disks[0].CapacityMiB != 100 {
		t.Fatalf("moref join failed: %+v", disks)
	}
	disks = inv.DisksFor(inv.VMs[1])
	if len(disks) != 1 || disks[0].CapacityMiB != 200 {
		t.Fatalf("case-insensitive name join failed: %+v", disks)
	}
	if got := inv.TotalDiskMiB(inv.VMs[0]); got != 100 {
		t.Fatalf("TotalDiskMiB = %d, want 100", got)
	}
}

func TestHeaderMatchingIsCaseAndSpacingTolerant(t *testing.T) {
	table := newTable("sheet", []string{"  VM ", "memory", "# VMs"}, nil)
	if table.Column("vm") != 0 {
		t.Fatalf("vm column not found")
	}
	if table.Column("Memory") != 1 {
		t.Fatalf("memory column not found")
	}
	if table.Column("VMs") != 2 {
		t.Fatalf("# VMs alias not resolved")
	}
	if table.Column("missing") != -1 {
		t.Fatalf("missing column should be -1")
	}
}
