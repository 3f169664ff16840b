// File path: internal/rvtools/vinfo.go
package rvtools

import (
	"context"
	"strings"
)

type vInfoParser struct{}

func (p *vInfoParser) Name() string { return "vInfo" }

func (p *vInfoParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vInfo") {
		return headerHas(header, "VM", "VM Name")
	}
	return headerHas(header, "VM") && headerHas(header, "Powerstate") && headerHas(header, "CPUs")
}

func (p *vInfoParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := table.Value(row, "VM", "VM Name", "Name")
		if name == "" {
			continue
		}
		vm := VM{
			Name:            name,
			MoRef:           table.Value(row, "VM ID", "Object ID", "MoRef"),
			UUID:            table.Value(row, "VM UUID", "SMBIOS UUID", "UUID"),
			PowerState:      strings.ToLower(table.Value(row, "Powerstate", "Power state", "Power")),
			ConnectionState: strings.ToLower(table.Value(row, "Connection state")),
			Template:        parseBool(table.Value(row, "Template")),
			SRMPlaceholder:  parseBool(table.Value(row, "SRM Placeholder")),
			Host:            table.Value(row, "Host"),
			Cluster:         table.Value(row, "Cluster"),
			Datacenter:      table.Value(row, "Datacenter"),
			ResourcePool:    table.Value(row, "Resource pool"),
			Folder:          table.Value(row, "Folder"),
			Annotation:      table.Value(row, "Annotation"),
			FTState:         strings.ToLower(table.Value(row, "FT State", "Fault Tolerance State")),
			CBTEnabled:      parseBool(table.Value(row, "CBT", "Changed Block Tracking")),
		}

		vm.GuestOSFull = table.Value(row, "OS according to the configuration file", "OS according to the VMware Tools", "Guest OS", "OS")
		if vm.GuestOSFull == "" {
			vm.GuestOSFull = table.Value(row, "OS according to the VMware Tools")
		}
		vm.GuestOS = vm.GuestOSFull

		if v, ok := parseInt(table.Value(row, "CPUs", "CPU", "vCPUs")); ok {
			vm.CPUs = int(v)
		}
		if v, ok := parseInt(table.Value(row, "Memory", "Memory MiB", "Memory MB")); ok {
			vm.MemoryMiB = v
		}
		if v, ok := parseInt(table.Value(row, "NICs", "# NICs")); ok {
			vm.NICs = int(v)
		}
		if v, ok := parseInt(table.Value(row, "Disks", "# Disks")); ok {
			vm.Disks = int(v)
		}
		if v, ok := parseInt(table.Value(row, "Provisioned MiB", "Provisioned MB")); ok {
			vm.ProvisionedMiB = v
		}
		if v, ok := parseInt(table.Value(row, "In Use MiB", "In Use MB")); ok {
			vm.InUseMiB = v
		}
		vm.HWVersion = parseHWVersion(table.Value(row, "HW version", "Hardware version", "Version"))

		firmware := strings.ToLower(table.Value(row, "Firmware"))
		switch {
		case strings.Contains(firmware, "efi"):
			vm.BootMode = "efi"
		case strings.Contains(firmware, "bios"):
			vm.BootMode = "bios"
		}
		vm.FirmwareSecure = parseBool(table.Value(row, "Secure Boot", "EFI Secure boot"))

		if ip := table.Value(row, "Primary IP Address", "IP Address"); ip != "" {
			for _, part := range strings.Split(ip, ",") {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					vm.IPAddresses = append(vm.IPAddresses, trimmed)
				}
			}
		}

		if vm.CPUs == 0 && vm.MemoryMiB == 0 {
			inv.warnf("vInfo row %d: %s has no CPU or memory figures", i+1, name)
		}
		inv.VMs = append(inv.VMs, vm)
	}
	return nil
}

// parseHWVersion accepts both "vmx-19" and plain "19".
func parseHWVersion(raw string) int {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "vmx-")
	cleaned = strings.TrimPrefix(cleaned, "v")
	if v, ok := parseInt(cleaned); ok {
		return int(v)
	}
	return 0
}
