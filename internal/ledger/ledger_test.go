package ledger

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"greetbot/internal/sheets"
	"greetbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logTable = sheets.TableRef{SpreadsheetID: "log", Range: "Sheet1!A:F"}

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newTestSheetLedger(t *testing.T, gw sheets.Gateway) *SheetLedger {
	t.Helper()
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	fixed := time.Date(2024, time.March, 10, 5, 15, 30, 0, time.UTC)
	n := 0
	return NewSheetLedger(gw, logTable, ist, nil,
		WithClock(func() time.Time { return fixed }),
		WithIDFunc(func() string { n++; return "id-test-" + strconv.Itoa(n) }),
	)
}

func TestSheetLedger_RecordRowFormat(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	l := newTestSheetLedger(t, gw)

	require.NoError(t, l.Record(context.Background(), "jane@x.com", "bday", mustDate(t, "2024-03-10")))

	assert.Equal(t, [][]string{
		{"id-test-1", "bday", "2024-03-10", "jane@x.com", "yes", "10:45:30 IST"},
	}, gw.Rows(logTable))
}

func TestSheetLedger_WasSent(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	gw.Set(logTable, [][]string{
		{"id", "occasion", "date", "email", "status", "time"},
		{"id-1", "bday", "2024-03-10", "Jane@X.com", "yes", "10:45:00 IST"},
		{"id-2", "festival-Diwali", "2024-11-01", "raj@x.com", "no"},
		{"id-3", "workanni", "2024-03-10"},
	})
	l := newTestSheetLedger(t, gw)
	ctx := context.Background()
	day := mustDate(t, "2024-03-10")

	tests := []struct {
		name  string
		email string
		key   string
		date  types.Date
		want  bool
	}{
		{"exact triple", "jane@x.com", "bday", day, true},
		{"other key", "jane@x.com", "workanni", day, false},
		{"other day", "jane@x.com", "bday", mustDate(t, "2025-03-10"), false},
		{"status not yes", "raj@x.com", "festival-Diwali", mustDate(t, "2024-11-01"), false},
		{"unknown email", "ann@x.com", "bday", day, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.WasSent(ctx, tt.email, tt.key, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSheetLedger_SeesRowsAppendedElsewhere(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	l := newTestSheetLedger(t, gw)
	ctx := context.Background()
	day := mustDate(t, "2024-03-10")

	sent, err := l.WasSent(ctx, "jane@x.com", "bday", day)
	require.NoError(t, err)
	require.False(t, sent)

	// Another process appends after this ledger was created.
	require.NoError(t, gw.AppendRow(ctx, logTable, []string{"id-x", "bday", "2024-03-10", "jane@x.com", "yes", ""}))

	sent, err = l.WasSent(ctx, "jane@x.com", "bday", day)
	require.NoError(t, err)
	assert.True(t, sent)
}

// Two overlapping runs both check before either records. Both see "not sent"
// and both would deliver: the ledger does not close this gap.
func TestSheetLedger_CheckThenActRaceIsNotGuarded(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	runA := newTestSheetLedger(t, gw)
	runB := newTestSheetLedger(t, gw)
	ctx := context.Background()
	day := mustDate(t, "2024-03-10")

	sentA, err := runA.WasSent(ctx, "jane@x.com", "bday", day)
	require.NoError(t, err)
	sentB, err := runB.WasSent(ctx, "jane@x.com", "bday", day)
	require.NoError(t, err)
	assert.False(t, sentA)
	assert.False(t, sentB)

	require.NoError(t, runA.Record(ctx, "jane@x.com", "bday", day))
	require.NoError(t, runB.Record(ctx, "jane@x.com", "bday", day))

	entries, err := runA.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "duplicate entry produced by overlapping runs")
}

func TestSheetLedger_GatewayErrors(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	gw.FailWith(logTable, errors.New("quota"))
	l := newTestSheetLedger(t, gw)
	ctx := context.Background()

	_, err := l.WasSent(ctx, "jane@x.com", "bday", mustDate(t, "2024-03-10"))
	assert.Equal(t, types.ErrCodeLedgerRead, types.CodeOf(err))

	err = l.Record(ctx, "jane@x.com", "bday", mustDate(t, "2024-03-10"))
	assert.Equal(t, types.ErrCodeLedgerWrite, types.CodeOf(err))
}

func TestSheetLedger_DefaultIDs(t *testing.T) {
	gw := sheets.NewMemoryGateway()
	l := NewSheetLedger(gw, logTable, nil, nil)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "a@x.com", "bday", mustDate(t, "2024-03-10")))
	require.NoError(t, l.Record(ctx, "b@x.com", "bday", mustDate(t, "2024-03-10")))

	rows := gw.Rows(logTable)
	require.Len(t, rows, 2)
	assert.Regexp(t, `^id-[0-9a-f-]{36}$`, rows[0][0])
	assert.NotEqual(t, rows[0][0], rows[1][0])
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2} UTC$`, rows[0][5])
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	day := mustDate(t, "2024-03-10")
	l := NewMemoryLedger(types.SendLogEntry{OccasionKey: "bday", Date: day, RecipientEmail: "old@x.com", Status: types.SendStatusYes})

	sent, err := l.WasSent(ctx, "old@x.com", "bday", day)
	require.NoError(t, err)
	assert.True(t, sent)

	require.NoError(t, l.Record(ctx, "new@x.com", "custom-1", day))
	sent, err = l.WasSent(ctx, "NEW@x.com", "custom-1", day)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, l.Entries(), 2)
}

func TestParseSendLog(t *testing.T) {
	got := ParseSendLog([][]string{
		{"id", "occasion", "date", "email", "status"},
		{"id-1", "bday", "2024-03-10", "jane@x.com", "yes"},
		{"id-2"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].SentAtLocalTime)
}
