// Package ledger is the send-once record. A recipient is notified at most
// once per occasion key per day as long as runs do not overlap: WasSent is
// consulted immediately before a send and Record immediately after it
// succeeds.
//
// Nothing locks the gap between WasSent and Record. Two runs that overlap can
// both see "not sent" and both deliver. Cross-run exclusion belongs to the
// caller (see the run lock in cmd/dispatcher).
package ledger

import (
	"context"
	"strings"
	"sync"

	"greetbot/internal/types"
)

// Ledger answers and records send-once questions.
type Ledger interface {
	// WasSent reports whether a "yes" entry exists for the triple.
	WasSent(ctx context.Context, email, occasionKey string, date types.Date) (bool, error)
	// Record appends a "yes" entry for the triple.
	Record(ctx context.Context, email, occasionKey string, date types.Date) error
}

// Matches reports whether e is a successful send for the triple. Emails
// compare case-insensitively.
func Matches(e types.SendLogEntry, email, occasionKey string, date types.Date) bool {
	return e.Status == types.SendStatusYes &&
		e.OccasionKey == occasionKey &&
		e.Date == date &&
		strings.EqualFold(strings.TrimSpace(e.RecipientEmail), strings.TrimSpace(email))
}

// MemoryLedger keeps entries in process memory. Used for dry runs and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []types.SendLogEntry
}

// NewMemoryLedger creates a ledger pre-seeded with entries.
func NewMemoryLedger(entries ...types.SendLogEntry) *MemoryLedger {
	return &MemoryLedger{entries: append([]types.SendLogEntry(nil), entries...)}
}

// WasSent implements Ledger.
func (l *MemoryLedger) WasSent(_ context.Context, email, occasionKey string, date types.Date) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if Matches(e, email, occasionKey, date) {
			return true, nil
		}
	}
	return false, nil
}

// Record implements Ledger.
func (l *MemoryLedger) Record(_ context.Context, email, occasionKey string, date types.Date) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, types.SendLogEntry{
		OccasionKey:    occasionKey,
		Date:           date,
		RecipientEmail: email,
		Status:         types.SendStatusYes,
	})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (l *MemoryLedger) Entries() []types.SendLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.SendLogEntry(nil), l.entries...)
}
