// Package sheets is the tabular data gateway: read whole tables and append
// single rows. Rows are plain string slices; interpreting them is the caller's
// concern. Two implementations exist: Google Sheets for production runs and a
// local .xlsx workbook for development and the operator CLI.
package sheets

import (
	"context"
	"strings"
	"sync"
)

// TableRef addresses one logical table.
type TableRef struct {
	SpreadsheetID string
	Range         string
}

// SheetName returns the sheet part of Range ("Log!A:F" -> "Log").
func (t TableRef) SheetName() string {
	name, _, _ := strings.Cut(t.Range, "!")
	return name
}

// Gateway reads and appends table rows.
type Gateway interface {
	// ReadTable returns every row in the table. Row 0 may be a header.
	ReadTable(ctx context.Context, table TableRef) ([][]string, error)
	// AppendRow adds row after the last non-empty row of the table.
	AppendRow(ctx context.Context, table TableRef, row []string) error
}

// MemoryGateway keeps tables in memory, keyed by SpreadsheetID and Range.
// Used for dry runs and tests.
type MemoryGateway struct {
	mu     sync.Mutex
	tables map[TableRef][][]string
	errs   map[TableRef]error
}

// NewMemoryGateway creates an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		tables: make(map[TableRef][][]string),
		errs:   make(map[TableRef]error),
	}
}

// Set replaces the rows of table.
func (g *MemoryGateway) Set(table TableRef, rows [][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tables[table] = copyRows(rows)
}

// FailWith makes every subsequent call against table return err. A nil err
// clears the failure.
func (g *MemoryGateway) FailWith(table TableRef, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.errs, table)
		return
	}
	g.errs[table] = err
}

// Rows returns a copy of the rows of table.
func (g *MemoryGateway) Rows(table TableRef) [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyRows(g.tables[table])
}

// ReadTable implements Gateway.
func (g *MemoryGateway) ReadTable(ctx context.Context, table TableRef) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[table]; err != nil {
		return nil, err
	}
	return copyRows(g.tables[table]), nil
}

// AppendRow implements Gateway.
func (g *MemoryGateway) AppendRow(ctx context.Context, table TableRef, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[table]; err != nil {
		return err
	}
	g.tables[table] = append(g.tables[table], append([]string(nil), row...))
	return nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
