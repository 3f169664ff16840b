// File path: internal/rvtools/types.go
package rvtools

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// VM is one vInfo row: the identity and sizing facts of a virtual machine.
type VM struct {
	Name            string   `json:"name"`
	MoRef           string   `json:"moref,omitempty"`
	UUID            string   `json:"uuid,omitempty"`
	PowerState      string   `json:"power_state,omitempty"`
	ConnectionState string   `json:"connection_state,omitempty"`
	Template        bool     `json:"template,omitempty"`
	SRMPlaceholder  bool     `json:"srm_placeholder,omitempty"`
	GuestOS         string   `json:"guest_os,omitempty"`
	GuestOSFull     string   `json:"guest_os_full,omitempty"`
	CPUs            int      `json:"cpus"`
	MemoryMiB       int64    `json:"memory_mib"`
	NICs            int      `json:"nics"`
	Disks           int      `json:"disks"`
	ProvisionedMiB  int64    `json:"provisioned_mib,omitempty"`
	InUseMiB        int64    `json:"in_use_mib,omitempty"`
	HWVersion       int      `json:"hw_version,omitempty"`
	BootMode        string   `json:"boot_mode,omitempty"`
	FirmwareSecure  bool     `json:"firmware_secure,omitempty"`
	CBTEnabled      bool     `json:"cbt_enabled,omitempty"`
	FTState         string   `json:"ft_state,omitempty"`
	ToolsStatus     string   `json:"tools_status,omitempty"`
	ToolsVersion    string   `json:"tools_version,omitempty"`
	IPAddresses     []string `json:"ip_addresses,omitempty"`
	Host            string   `json:"host,omitempty"`
	Cluster         string   `json:"cluster,omitempty"`
	Datacenter      string   `json:"datacenter,omitempty"`
	ResourcePool    string   `json:"resource_pool,omitempty"`
	Folder          string   `json:"folder,omitempty"`
	Annotation      string   `json:"annotation,omitempty"`
}

// Key returns the join key used to correlate rows across sheets: the MoRef
// when the export carries one, the VM name otherwise.
func (v VM) Key() string {
	if v.MoRef != "" {
		return v.MoRef
	}
	return v.Name
}

// Fingerprint identifies a VM configuration for change detection across
// re-uploads of the same estate.
func (v VM) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%d|%d|%d|%s",
		v.Name, v.MoRef, v.GuestOS, v.CPUs, v.MemoryMiB, v.NICs, v.Disks, v.HWVersion, v.PowerState)
	return hex.EncodeToString(h.Sum(nil))
}

// Disk is one vDisk row.
type Disk struct {
	VMName           string `json:"vm_name"`
	VMMoRef          string `json:"vm_moref,omitempty"`
	Label            string `json:"label,omitempty"`
	CapacityMiB      int64  `json:"capacity_mib"`
	Thin             bool   `json:"thin,omitempty"`
	RawDeviceMapping bool   `json:"raw_device_mapping,omitempty"`
	SharedBus        string `json:"shared_bus,omitempty"`
	DiskMode         string `json:"disk_mode,omitempty"`
	Controller       string `json:"controller,omitempty"`
	Datastore        string `json:"datastore,omitempty"`
	Path             string `json:"path,omitempty"`
}

// NIC is one vNetwork row.
type NIC struct {
	VMName     string `json:"vm_name"`
	VMMoRef    string `json:"vm_moref,omitempty"`
	Adapter    string `json:"adapter,omitempty"`
	Network    string `json:"network,omitempty"`
	Switch     string `json:"switch,omitempty"`
	Connected  bool   `json:"connected,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// Host is one vHost row.
type Host struct {
	Name           string `json:"name"`
	Cluster        string `json:"cluster,omitempty"`
	Datacenter     string `json:"datacenter,omitempty"`
	Vendor         string `json:"vendor,omitempty"`
	Model          string `json:"model,omitempty"`
	CPUModel       string `json:"cpu_model,omitempty"`
	Sockets        int    `json:"sockets,omitempty"`
	CoresPerSocket int    `json:"cores_per_socket,omitempty"`
	CPUMhz         int    `json:"cpu_mhz,omitempty"`
	MemoryMiB      int64  `json:"memory_mib,omitempty"`
	ESXVersion     string `json:"esx_version,omitempty"`
	NumVMs         int    `json:"num_vms,omitempty"`
}

// Cluster is one vCluster row.
type Cluster struct {
	Name           string `json:"name"`
	Datacenter     string `json:"datacenter,omitempty"`
	NumHosts       int    `json:"num_hosts,omitempty"`
	EffectiveHosts int    `json:"effective_hosts,omitempty"`
	TotalCPUMhz    int64  `json:"total_cpu_mhz,omitempty"`
	TotalMemoryMiB int64  `json:"total_memory_mib,omitempty"`
	HAEnabled      bool   `json:"ha_enabled,omitempty"`
	DRSEnabled     bool   `json:"drs_enabled,omitempty"`
	VMCount        int    `json:"vm_count,omitempty"`
}

// Datastore is one vDatastore row.
type Datastore struct {
	Name           string `json:"name"`
	Type           string `json:"type,omitempty"`
	CapacityMiB    int64  `json:"capacity_mib,omitempty"`
	ProvisionedMiB int64  `json:"provisioned_mib,omitempty"`
	FreeMiB        int64  `json:"free_mib,omitempty"`
	Hosts          int    `json:"hosts,omitempty"`
	VMs            int    `json:"vms,omitempty"`
	Accessible     bool   `json:"accessible,omitempty"`
}

// ToolsInfo is one vTools row.
type ToolsInfo struct {
	VMName        string `json:"vm_name"`
	VMMoRef       string `json:"vm_moref,omitempty"`
	Status        string `json:"status,omitempty"`
	Version       string `json:"version,omitempty"`
	UpgradePolicy string `json:"upgrade_policy,omitempty"`
	SyncTime      bool   `json:"sync_time,omitempty"`
}

// Snapshot is one vSnapshot row.
type Snapshot struct {
	VMName      string    `json:"vm_name"`
	VMMoRef     string    `json:"vm_moref,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	SizeMiB     int64     `json:"size_mib,omitempty"`
	Quiesced    bool      `json:"quiesced,omitempty"`
}

// Inventory aggregates every parsed sheet of one RVTools export.
type Inventory struct {
	SourceName string      `json:"source_name,omitempty"`
	SheetNames []string    `json:"sheet_names,omitempty"`
	ParsedAt   time.Time   `json:"parsed_at,omitempty"`
	VMs        []VM        `json:"vms,omitempty"`
	Disks      []Disk      `json:"disks,omitempty"`
	NICs       []NIC       `json:"nics,omitempty"`
	Hosts      []Host      `json:"hosts,omitempty"`
	Clusters   []Cluster   `json:"clusters,omitempty"`
	Datastores []Datastore `json:"datastores,omitempty"`
	Tools      []ToolsInfo `json:"tools,omitempty"`
	Snapshots  []Snapshot  `json:"snapshots,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Counts summarizes record volumes per sheet.
type Counts struct {
	VMs        int `json:"vms"`
	Disks      int `json:"disks"`
	NICs       int `json:"nics"`
	Hosts      int `json:"hosts"`
	Clusters   int `json:"clusters"`
	Datastores int `json:"datastores"`
	Tools      int `json:"tools"`
	Snapshots  int `json:"snapshots"`
}

func (inv *Inventory) Counts() Counts {
	return Counts{
		VMs:        len(inv.VMs),
		Disks:      len(inv.Disks),
		NICs:       len(inv.NICs),
		Hosts:      len(inv.Hosts),
		Clusters:   len(inv.Clusters),
		Datastores: len(inv.Datastores),
		Tools:      len(inv.Tools),
		Snapshots:  len(inv.Snapshots),
	}
}

func (inv *Inventory) warnf(format string, args ...interface{}) {
	inv.Warnings = append(inv.Warnings, fmt.Sprintf(format, args...))
}

// VMByName finds a VM by exact name, then by case-insensitive name.
func (inv *Inventory) VMByName(name string) (VM, bool) {
	for _, vm := range inv.VMs {
		if vm.Name == name {
			return vm, true
		}
	}
	lowered := strings.ToLower(name)
	for _, vm := range inv.VMs {
		if strings.ToLower(vm.Name) == lowered {
			return vm, true
		}
	}
	return VM{}, false
}

// DisksFor returns the vDisk rows belonging to the VM, matched on MoRef
// when both sides carry one, otherwise on name.
func (inv *Inventory) DisksFor(vm VM) []Disk {
	var out []Disk
	for _, d := range inv.Disks {
		if matchesVM(vm, d.VMMoRef, d.VMName) {
			out = append(out, d)
		}
	}
	return out
}

func (inv *Inventory) NICsFor(vm VM) []NIC {
	var out []NIC
	for _, n := range inv.NICs {
		if matchesVM(vm, n.VMMoRef, n.VMName) {
			out = append(out, n)
		}
	}
	return out
}

func (inv *Inventory) SnapshotsFor(vm VM) []Snapshot {
	var out []Snapshot
	for _, s := range inv.Snapshots {
		if matchesVM(vm, s.VMMoRef, s.VMName) {
			out = append(out, s)
		}
	}
	return out
}

func (inv *Inventory) ToolsFor(vm VM) (ToolsInfo, bool) {
	for _, t := range inv.Tools {
		if matchesVM(vm, t.VMMoRef, t.VMName) {
			return t, true
		}
	}
	return ToolsInfo{}, false
}

func matchesVM(vm VM, moref, name string) bool {
	if vm.MoRef != "" && moref != "" {
		return vm.MoRef == moref
	}
	return strings.EqualFold(vm.Name, name)
}

// TotalDiskMiB sums provisioned disk capacity for the VM, preferring vDisk
// rows and falling back to the vInfo provisioned column.
func (inv *Inventory) TotalDiskMiB(vm VM) int64 {
	var total int64
	for _, d := range inv.DisksFor(vm) {
		total += d.CapacityMiB
	}
	if total == 0 {
		total = vm.ProvisionedMiB
	}
	return total
}
