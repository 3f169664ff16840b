// File path: internal/rvtools/vhost.go
package rvtools

import "context"

type vHostParser struct{}

func (p *vHostParser) Name() string { return "vHost" }

func (p *vHostParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vHost") {
		return headerHas(header, "Host", "Name")
	}
	return headerHas(header, "Host") && headerHas(header, "ESX Version") && headerHas(header, "Vendor")
}

func (p *vHostParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := table.Value(row, "Host", "Name")
		if name == "" {
			continue
		}
		host := Host{
			Name:       name,
			Cluster:    table.Value(row, "Cluster"),
			Datacenter: table.Value(row, "Datacenter"),
			Vendor:     table.Value(row, "Vendor"),
			Model:      table.Value(row, "Model"),
			CPUModel:   table.Value(row, "CPU Model", "Processor Type"),
			ESXVersion: table.Value(row, "ESX Version", "ESXi Version"),
		}
		if v, ok := parseInt(table.Value(row, "# CPU", "CPUs", "Sockets")); ok {
			host.Sockets = int(v)
		}
		if v, ok := parseInt(table.Value(row, "Cores per CPU", "Cores per Socket")); ok {
			host.CoresPerSocket = int(v)
		}
		if v, ok := parseInt(table.Value(row, "Speed", "CPU MHz", "Speed MHz")); ok {
			host.CPUMhz = int(v)
		}
		if v, ok := parseInt(table.Value(row, "# Memory", "Memory", "Memory MiB")); ok {
			host.MemoryMiB = v
		}
		if v, ok := parseInt(table.Value(row, "# VMs", "VMs")); ok {
			host.NumVMs = int(v)
		}
		inv.Hosts = append(inv.Hosts, host)
	}
	return nil
}
