// File path: internal/rvtools/vcluster.go
package rvtools

import "context"

type vClusterParser struct{}

func (p *vClusterParser) Name() string { return "vCluster" }

func (p *vClusterParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vCluster") {
		return headerHas(header, "Name", "Cluster")
	}
	return headerHas(header, "Name") && headerHas(header, "NumHosts", "# Hosts") && headerHas(header, "HA enabled")
}

func (p *vClusterParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := table.Value(row, "Name", "Cluster")
		if name == "" {
			continue
		}
		cluster := Cluster{
			Name:       name,
			Datacenter: table.Value(row, "Datacenter"),
			HAEnabled:  parseBool(table.Value(row, "HA enabled")),
			DRSEnabled: parseBool(table.Value(row, "DRS enabled")),
		}
		if v, ok := parseInt(table.Value(row, "NumHosts", "# Hosts", "Hosts")); ok {
			cluster.NumHosts = int(v)
		}
		if v, ok := parseInt(table.Value(row, "NumEffectiveHosts", "Effective Hosts")); ok {
			cluster.EffectiveHosts = int(v)
		}
		if v, ok := parseInt(table.Value(row, "TotalCpu", "Total CPU MHz")); ok {
			cluster.TotalCPUMhz = v
		}
		if v, ok := parseInt(table.Value(row, "TotalMemory", "Total Memory", "Total Memory MiB")); ok {
			cluster.TotalMemoryMiB = v
		}
		if v, ok := parseInt(table.Value(row, "VM Count", "# VMs", "VMs")); ok {
			cluster.VMCount = int(v)
		}
		inv.Clusters = append(inv.Clusters, cluster)
	}
	return nil
}
