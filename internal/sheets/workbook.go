package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"
)

// WorkbookGateway reads and appends rows in a local .xlsx file. Each sheet of
// the workbook is one table; TableRef.SpreadsheetID is ignored and the sheet
// name comes from TableRef.Range. The file is reopened on every call so rows
// appended by another process are visible.
type WorkbookGateway struct {
	path string
	mu   sync.Mutex
}

// NewWorkbookGateway creates a gateway over the workbook at path.
func NewWorkbookGateway(path string) *WorkbookGateway {
	return &WorkbookGateway{path: path}
}

// ReadTable implements Gateway.
func (g *WorkbookGateway) ReadTable(ctx context.Context, table TableRef) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := excelize.OpenFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", g.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(table.SheetName())
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", table.SheetName(), err)
	}
	return rows, nil
}

// AppendRow implements Gateway. The sheet is created if it does not exist.
func (g *WorkbookGateway) AppendRow(ctx context.Context, table TableRef, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := excelize.OpenFile(g.path)
	if err != nil {
		return fmt.Errorf("opening workbook %s: %w", g.path, err)
	}
	defer f.Close()

	sheet := table.SheetName()
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("looking up sheet %q: %w", sheet, err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %q: %w", sheet, err)
		}
	}

	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	cell, err := excelize.CoordinatesToCellName(1, len(existing)+1)
	if err != nil {
		return err
	}
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row to %q: %w", sheet, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("saving workbook %s: %w", g.path, err)
	}
	return nil
}

// CreateWorkbook writes a new workbook at path with one sheet per entry of
// tables, each holding the given rows. Used by greetctl to scaffold a local
// data file.
func CreateWorkbook(path string, tables map[string][][]string, order []string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		for r, row := range tables[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			values := make([]any, len(row))
			for j, v := range row {
				values[j] = v
			}
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}
