// Package festivals reads festival dates from an iCalendar (.ics) file, so a
// published holiday calendar can feed the festival cycle alongside the
// festival sheet.
package festivals

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"greetbot/internal/types"

	"github.com/emersion/go-ical"
)

// ICSFile loads festivals from a calendar file on every call.
type ICSFile struct {
	path   string
	loc    *time.Location
	logger *slog.Logger
}

// NewICSFile creates a source for the calendar at path. Timed events are
// converted to a calendar date in loc.
func NewICSFile(path string, loc *time.Location, logger *slog.Logger) *ICSFile {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ICSFile{path: path, loc: loc, logger: logger}
}

// Festivals opens and parses the file.
func (s *ICSFile) Festivals(ctx context.Context) ([]types.FestivalEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening festival calendar: %w", err)
	}
	defer f.Close()

	festivals, err := Parse(f, s.loc)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "festival calendar loaded", "path", s.path, "count", len(festivals))
	return festivals, nil
}

// Parse reads every VEVENT of every calendar in r. SUMMARY becomes the
// festival name and DTSTART its date. Events without either are skipped.
func Parse(r io.Reader, loc *time.Location) ([]types.FestivalEntry, error) {
	dec := ical.NewDecoder(r)

	var out []types.FestivalEntry
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding festival calendar: %w", err)
		}

		for _, event := range cal.Events() {
			name, err := event.Props.Text(ical.PropSummary)
			if err != nil || strings.TrimSpace(name) == "" {
				continue
			}
			start, err := event.DateTimeStart(loc)
			if err != nil {
				continue
			}
			out = append(out, types.FestivalEntry{
				Name: strings.TrimSpace(name),
				Date: types.NewDate(start.In(loc)),
			})
		}
	}
	return out, nil
}
