// File path: internal/rvtools/vnetwork.go
package rvtools

import "context"

type vNetworkParser struct{}

func (p *vNetworkParser) Name() string { return "vNetwork" }

func (p *vNetworkParser) Match(sheet string, header []string) bool {
	if sheetNamed(sheet, "vNetwork") {
		return headerHas(header, "VM", "VM Name")
	}
	return headerHas(header, "VM") && headerHas(header, "Network") && headerHas(header, "Mac Address", "MAC Address")
}

func (p *vNetworkParser) Parse(ctx context.Context, table *Table, inv *Inventory) error {
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		vmName := table.Value(row, "VM", "VM Name")
		if vmName == "" {
			continue
		}
		nic := NIC{
			VMName:     vmName,
			VMMoRef:    table.Value(row, "VM ID", "Object ID"),
			Adapter:    table.Value(row, "Adapter", "Adapter Type"),
			Network:    table.Value(row, "Network", "Port Group"),
			Switch:     table.Value(row, "Switch", "vSwitch"),
			Connected:  parseBool(table.Value(row, "Connected")),
			MACAddress: table.Value(row, "Mac Address", "MAC Address"),
			IPAddress:  table.Value(row, "IP Address", "IPv4 Address"),
		}
		inv.NICs = append(inv.NICs, nic)
	}
	return nil
}
