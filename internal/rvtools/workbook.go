// File path: internal/rvtools/workbook.go
package rvtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common/telemetry"
)

// ErrNoInventorySheet is returned when a workbook carries no recognizable
// vInfo sheet; nothing downstream can work without VM identity rows.
var ErrNoInventorySheet = errors.New("rvtools: workbook has no vInfo sheet")

// Reader drives the sheet parser registry over a workbook.
type Reader struct {
	parsers []SheetParser
}

func NewReader() *Reader {
	return &Reader{parsers: defaultParsers()}
}

// ParseWorkbook reads an RVTools export and aggregates every recognized
// sheet into an Inventory. Unknown sheets are skipped with a warning; row
// level oddities are collected as warnings rather than failing the upload.
func ParseWorkbook(ctx context.Context, r io.Reader, name string) (*Inventory, error) {
	return NewReader().Parse(ctx, r, name)
}

func (rd *Reader) Parse(ctx context.Context, r io.Reader, name string) (*Inventory, error) {
	if len(rd.parsers) == 0 {
		return nil, errors.New("rvtools: no parsers configured")
	}
	if err := telemetry.CheckMemoryBudget("rvtools"); err != nil {
		return nil, err
	}
	ctx, end := telemetry.StartSpan(ctx, "rvtools.parse")
	started := time.Now()
	defer end()

	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer book.Close()

	logger := common.Logger()
	inv := &Inventory{SourceName: name, ParsedAt: time.Now().UTC()}
	totalRows := 0
	vInfoSeen := false

	for _, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		inv.SheetNames = append(inv.SheetNames, sheet)
		if len(rows) == 0 {
			inv.warnf("sheet %q is empty", sheet)
			continue
		}

		matched := false
		for _, parser := range rd.parsers {
			headerIdx, header := locateHeader(rows, func(candidate []string) bool {
				return parser.Match(sheet, candidate)
			})
			if headerIdx < 0 {
				continue
			}
			table := newTable(sheet, header, rows[headerIdx+1:])
			if err := parser.Parse(ctx, table, inv); err != nil {
				return nil, fmt.Errorf("parse sheet %s with %s: %w", sheet, parser.Name(), err)
			}
			matched = true
			totalRows += len(table.Rows)
			if parser.Name() == "vInfo" {
				vInfoSeen = true
			}
			break
		}
		if !matched {
			inv.warnf("sheet %q: no parser recognized it; skipped", sheet)
		}
	}

	if !vInfoSeen {
		return nil, ErrNoInventorySheet
	}
	telemetry.RecordWorkbookParse(totalRows, time.Since(started))
	logger.Info("rvtools: workbook parsed",
		"source", name, "sheets", len(inv.SheetNames), "vms", len(inv.VMs),
		"rows", totalRows, "warnings", len(inv.Warnings))
	return inv, nil
}
