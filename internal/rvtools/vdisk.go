// File path: internal/rvtools/vdisk.go
package rvtools

import (
	"context"
	"strings"
)

type vDiskParser struct{}

func (p *vDiskParser) Name() string { return "vDisk" }

func (p *vDiskParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vDisk") {
		return headerHas(header, "VM", "VM Name")
	}
	return headerHas(header, "VM") && headerHas(header, "Disk") && headerHas(header, "Capacity MiB", "Capacity MB")
}

func (p *vDiskParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		vmName := table.Value(row, "VM", "VM Name")
		if vmName == "" {
			continue
		}
		disk := Disk{
			VMName:     vmName,
			VMMoRef:    table.Value(row, "VM ID", "Object ID"),
			Label:      table.Value(row, "Disk", "Label"),
			Thin:       parseBool(table.Value(row, "Thin", "Thin Provisioned")),
			DiskMode:   strings.ToLower(table.Value(row, "Disk Mode")),
			Controller: table.Value(row, "Controller", "SCSI Controller"),
			Path:       table.Value(row, "Path", "Disk Path"),
			SharedBus:  strings.ToLower(table.Value(row, "Shared Bus", "Sharing mode", "Sharing")),
		}
		if v, ok := parseInt(table.Value(row, "Capacity MiB", "Capacity MB")); ok {
			disk.CapacityMiB = v
		} else {
			inv.warnf("vDisk row %d: %s disk %q has no capacity", i+1, vmName, disk.Label)
		}

		raw := strings.ToLower(table.Value(row, "Raw", "RDM"))
		disk.RawDeviceMapping = parseBool(raw) || strings.Contains(strings.ToLower(disk.Path), "rdm")
		if !disk.RawDeviceMapping {
			// Raw Comp. Mode is only populated for RDM disks.
			disk.RawDeviceMapping = table.Value(row, "Raw Comp. Mode", "Raw Compatibility Mode") != ""
		}

		if disk.Datastore = table.Value(row, "Datastore"); disk.Datastore == "" {
			disk.Datastore = datastoreFromPath(disk.Path)
		}
		inv.Disks = append(inv.Disks, disk)
	}
	return nil
}

// datastoreFromPath extracts the datastore from a "[ds1] vm/vm.vmdk" path.
func datastoreFromPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "[") {
		return ""
	}
	end := strings.Index(trimmed, "]")
	if end <= 1 {
		return ""
	}
	return strings.TrimSpace(trimmed[1:end])
}
