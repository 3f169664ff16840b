// File path: internal/rvtools/vdatastore.go
package rvtools

import "context"

type vDatastoreParser struct{}

func (p *vDatastoreParser) Name() string { return "vDatastore" }

func (p *vDatastoreParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vDatastore") {
		return headerHas(header, "Name", "Datastore")
	}
	return headerHas(header, "Name") && headerHas(header, "Capacity MiB", "Capacity MB") && headerHas(header, "Free MiB", "Free MB")
}

func (p *vDatastoreParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := table.Value(row, "Name", "Datastore")
		if name == "" {
			continue
		}
		ds := Datastore{
			Name:       name,
			Type:       table.Value(row, "Type"),
			Accessible: parseBool(table.Value(row, "Accessible")),
		}
		if v, ok := parseInt(table.Value(row, "Capacity MiB", "Capacity MB")); ok {
			ds.CapacityMiB = v
		} else {
			inv.warnf("vDatastore row %d: %s has no capacity figure", i+1, name)
		}
		if v, ok := parseInt(table.Value(row, "Provisioned MiB", "Provisioned MB")); ok {
			ds.ProvisionedMiB = v
		}
		if v, ok := parseInt(table.Value(row, "Free MiB", "Free MB")); ok {
			ds.FreeMiB = v
		}
		if v, ok := parseInt(table.Value(row, "# Hosts", "Hosts")); ok {
			ds.Hosts = int(v)
		}
		if v, ok := parseInt(table.Value(row, "# VMs", "VMs")); ok {
			ds.VMs = int(v)
		}
		inv.Datastores = append(inv.Datastores, ds)
	}
	return nil
}
