// File path: internal/rvtools/registry.go
package rvtools

import (
	"context"
	"strings"
)

// SheetParser recognizes one RVTools sheet type and folds its rows into the
// inventory. Match sees the sheet name and a candidate header row so parsers
// keep working when tabs are renamed or exported individually.
type SheetParser interface {
	Name() string
	Match(sheet string, header []string) bool
	Parse(ctx context.Context, table *Table, inv *Inventory) error
}

func defaultParsers() []SheetParser {
	return []SheetParser{
		&vInfoParser{},
		&vDiskParser{},
		&vNetworkParser{},
		&vHostParser{},
		&vClusterParser{},
		&vDatastoreParser{},
		&vToolsParser{},
		&vSnapshotParser{},
	}
}

// sheetNamed reports whether the tab name matches the canonical RVTools tab,
// tolerating case and suffixes like "vInfo (2)".
func sheetNamed(sheet, canonical string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(sheet))
	return strings.HasPrefix(trimmed, strings.ToLower(canonical))
}

func headerHas(header []string, aliases ...string) bool {
	for _, cell := range header {
		key := normalizeHeader(cell)
		for _, alias := range aliases {
			if key == normalizeHeader(alias) {
				return true
			}
		}
	}
	return false
}
