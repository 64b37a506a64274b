package sheets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkbook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greetings.xlsx")
	err := CreateWorkbook(path, map[string][][]string{
		"roster": {
			{"id", "name", "email", "birth", "hire"},
			{"1", "Jane Doe", "jane@x.com", "1990-03-10", "2019-03-10"},
		},
		"send_log": {
			{"id", "occasion", "date", "email", "status", "time"},
		},
	}, []string{"roster", "send_log"})
	require.NoError(t, err)
	return path
}

func TestWorkbookGateway_ReadTable(t *testing.T) {
	g := NewWorkbookGateway(newTestWorkbook(t))

	rows, err := g.ReadTable(context.Background(), TableRef{Range: "roster"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "Jane Doe", "jane@x.com", "1990-03-10", "2019-03-10"}, rows[1])
}

func TestWorkbookGateway_AppendRowThenRead(t *testing.T) {
	g := NewWorkbookGateway(newTestWorkbook(t))
	ctx := context.Background()
	log := TableRef{Range: "send_log!A:F"}

	row := []string{"id-1", "bday", "2024-03-10", "jane@x.com", "yes", "10:45:00"}
	require.NoError(t, g.AppendRow(ctx, log, row))
	require.NoError(t, g.AppendRow(ctx, log, row))

	rows, err := g.ReadTable(ctx, log)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, row, rows[2])
}

func TestWorkbookGateway_AppendCreatesMissingSheet(t *testing.T) {
	g := NewWorkbookGateway(newTestWorkbook(t))
	ctx := context.Background()

	require.NoError(t, g.AppendRow(ctx, TableRef{Range: "audit"}, []string{"a", "b"}))

	rows, err := g.ReadTable(ctx, TableRef{Range: "audit"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}

func TestWorkbookGateway_Errors(t *testing.T) {
	_, err := NewWorkbookGateway(filepath.Join(t.TempDir(), "missing.xlsx")).
		ReadTable(context.Background(), TableRef{Range: "roster"})
	assert.Error(t, err)

	_, err = NewWorkbookGateway(newTestWorkbook(t)).
		ReadTable(context.Background(), TableRef{Range: "nope"})
	assert.Error(t, err)
}

func TestMemoryGateway(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	ref := TableRef{SpreadsheetID: "s", Range: "Sheet1"}

	g.Set(ref, [][]string{{"h"}})
	require.NoError(t, g.AppendRow(ctx, ref, []string{"r1"}))

	rows, err := g.ReadTable(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h"}, {"r1"}}, rows)

	rows[0][0] = "mutated"
	assert.Equal(t, "h", g.Rows(ref)[0][0])

	g.FailWith(ref, assert.AnError)
	_, err = g.ReadTable(ctx, ref)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, g.AppendRow(ctx, ref, nil), assert.AnError)

	g.FailWith(ref, nil)
	_, err = g.ReadTable(ctx, ref)
	assert.NoError(t, err)
}
