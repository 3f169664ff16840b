// File path: internal/rvtools/vtools.go
package rvtools

import (
	"context"
	"strings"
)

type vToolsParser struct{}

func (p *vToolsParser) Name() string { return "vTools" }

func (p *vToolsParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vTools") {
		return headerHas(header, "VM", "VM Name")
	}
	return headerHas(header, "VM") && headerHas(header, "Tools", "Tools Status") && headerHas(header, "Upgrade Policy", "Tools upgrade policy")
}

func (p *vToolsParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		vmName := table.Value(row, "VM", "VM Name")
		if vmName == "" {
			continue
		}
		info := ToolsInfo{
			VMName:        vmName,
			VMMoRef:       table.Value(row, "VM ID", "Object ID"),
			Status:        strings.ToLower(table.Value(row, "Tools", "Tools Status")),
			Version:       table.Value(row, "Tools Version", "Version"),
			UpgradePolicy: strings.ToLower(table.Value(row, "Upgrade Policy", "Tools upgrade policy")),
			SyncTime:      parseBool(table.Value(row, "Sync Time", "Tools sync time")),
		}
		inv.Tools = append(inv.Tools, info)
	}
	return nil
}
