package ledger

import (
	"context"
	"log/slog"
	"time"

	"greetbot/internal/sheets"
	"greetbot/internal/types"

	"github.com/google/uuid"
)

// Send log columns.
const (
	colID = iota
	colOccasionKey
	colDate
	colEmail
	colStatus
	colSentAt
	logWidth
)

// sentAtLayout is the local wall-clock time written with every entry.
const sentAtLayout = "15:04:05 MST"

// SheetLedger stores entries in the send-log table. Every WasSent re-reads
// the table so entries appended by other processes since the run started are
// seen.
type SheetLedger struct {
	gw     sheets.Gateway
	table  sheets.TableRef
	loc    *time.Location
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// SheetLedgerOption configures a SheetLedger.
type SheetLedgerOption func(*SheetLedger)

// WithClock overrides the time source used for sent-at timestamps.
func WithClock(now func() time.Time) SheetLedgerOption {
	return func(l *SheetLedger) { l.now = now }
}

// WithIDFunc overrides entry id generation.
func WithIDFunc(fn func() string) SheetLedgerOption {
	return func(l *SheetLedger) { l.newID = fn }
}

// NewSheetLedger creates a ledger over table. Sent-at times are rendered in
// loc (UTC when nil).
func NewSheetLedger(gw sheets.Gateway, table sheets.TableRef, loc *time.Location, logger *slog.Logger, opts ...SheetLedgerOption) *SheetLedger {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &SheetLedger{
		gw:     gw,
		table:  table,
		loc:    loc,
		now:    time.Now,
		newID:  func() string { return "id-" + uuid.NewString() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WasSent implements Ledger.
func (l *SheetLedger) WasSent(ctx context.Context, email, occasionKey string, date types.Date) (bool, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if Matches(e, email, occasionKey, date) {
			return true, nil
		}
	}
	return false, nil
}

// Record implements Ledger.
func (l *SheetLedger) Record(ctx context.Context, email, occasionKey string, date types.Date) error {
	row := make([]string, logWidth)
	row[colID] = l.newID()
	row[colOccasionKey] = occasionKey
	row[colDate] = date.String()
	row[colEmail] = email
	row[colStatus] = types.SendStatusYes
	row[colSentAt] = l.now().In(l.loc).Format(sentAtLayout)

	if err := l.gw.AppendRow(ctx, l.table, row); err != nil {
		return types.NewAppError(types.ErrCodeLedgerWrite, "failed to append send log entry", err)
	}
	l.logger.DebugContext(ctx, "send log entry appended",
		"entry_id", row[colID],
		"occasion_key", occasionKey,
		"date", row[colDate],
	)
	return nil
}

// Entries reads and parses the whole send log.
func (l *SheetLedger) Entries(ctx context.Context) ([]types.SendLogEntry, error) {
	rows, err := l.gw.ReadTable(ctx, l.table)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeLedgerRead, "failed to read send log", err)
	}
	return ParseSendLog(rows), nil
}

// ParseSendLog converts send-log rows. Rows whose date column does not parse,
// including a header row, are ignored.
func ParseSendLog(rows [][]string) []types.SendLogEntry {
	out := make([]types.SendLogEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) <= colStatus {
			continue
		}
		d, err := types.ParseDate(row[colDate])
		if err != nil {
			continue
		}
		e := types.SendLogEntry{
			ID:             row[colID],
			OccasionKey:    row[colOccasionKey],
			Date:           d,
			RecipientEmail: row[colEmail],
			Status:         row[colStatus],
		}
		if len(row) > colSentAt {
			e.SentAtLocalTime = row[colSentAt]
		}
		out = append(out, e)
	}
	return out
}
