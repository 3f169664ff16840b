// File path: internal/rvtools/vsnapshot.go
package rvtools

import "context"

type vSnapshotParser struct{}

func (p *vSnapshotParser) Name() string { return "vSnapshot" }

func (p *vSnapshotParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vSnapshot") {
		return headerHas(header, "VM", "VM Name")
	}
	return headerHas(header, "VM") && headerHas(header, "Date / time", "Date/time", "Created") && headerHas(header, "Quiesced")
}

func (p *vSnapshotParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		vmName := table.Value(row, "VM", "VM Name")
		if vmName == "" {
			continue
		}
		snap := Snapshot{
			VMName:      vmName,
			VMMoRef:     table.Value(row, "VM ID", "Object ID"),
			Name:        table.Value(row, "Name", "Snapshot"),
			Description: table.Value(row, "Description"),
			Quiesced:    parseBool(table.Value(row, "Quiesced")),
		}
		if ts, ok := parseTime(table.Value(row, "Date / time", "Date/time", "Created")); ok {
			snap.Created = ts
		} else {
			inv.warnf("vSnapshot row %d: unparseable timestamp for %s", i+1, vmName)
		}
		if v, ok := parseInt(table.Value(row, "Size MiB (vmsn)", "Size MiB", "Size MB")); ok {
			snap.SizeMiB = v
		}
		inv.Snapshots = append(inv.Snapshots, snap)
	}
	return nil
}
