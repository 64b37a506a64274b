// Package roster turns raw table rows into the domain model. Row 0 of every
// table is a header. Short rows are padded; a bad cell disables only the row
// (or the single occasion) it belongs to and is logged, never failing the
// whole table. Only gateway failures are DataLoadErrors.
package roster

import (
	"context"
	"log/slog"
	"strings"

	"greetbot/internal/sheets"
	"greetbot/internal/types"
)

// Table names used in DataLoadError and logs.
const (
	TableRoster    = "roster"
	TableFestivals = "festivals"
	TableCustom    = "custom"
)

// Column positions.
const (
	colRosterID = iota
	colRosterName
	colRosterEmail
	colRosterBirth
	colRosterHire
	rosterWidth
)

const (
	colFestivalName = iota
	colFestivalDate
	festivalWidth
)

const (
	colCustomID = iota
	colCustomDate
	colCustomSubject
	colCustomBody
	customWidth
)

// Tables addresses the three read-only tables.
type Tables struct {
	Roster    sheets.TableRef
	Festivals sheets.TableRef
	Custom    sheets.TableRef
}

// FestivalSource supplies festival rows from somewhere other than the
// festival table (an iCalendar file, for instance).
type FestivalSource interface {
	Festivals(ctx context.Context) ([]types.FestivalEntry, error)
}

// Loader reads and parses the roster, festival and custom-message tables.
// Every call reads fresh; nothing is cached across calls.
type Loader struct {
	gw     sheets.Gateway
	tables Tables
	extra  []FestivalSource
	logger *slog.Logger
}

// NewLoader creates a Loader. extra festival sources are merged after the
// festival table.
func NewLoader(gw sheets.Gateway, tables Tables, logger *slog.Logger, extra ...FestivalSource) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{gw: gw, tables: tables, extra: extra, logger: logger}
}

// Roster loads all roster entries, including those without an email.
func (l *Loader) Roster(ctx context.Context) ([]types.RosterEntry, error) {
	rows, err := l.gw.ReadTable(ctx, l.tables.Roster)
	if err != nil {
		return nil, &types.DataLoadError{Table: TableRoster, Err: err}
	}
	return ParseRoster(ctx, rows, l.logger), nil
}

// Festivals loads the festival table plus every extra source.
func (l *Loader) Festivals(ctx context.Context) ([]types.FestivalEntry, error) {
	rows, err := l.gw.ReadTable(ctx, l.tables.Festivals)
	if err != nil {
		return nil, &types.DataLoadError{Table: TableFestivals, Err: err}
	}
	festivals := ParseFestivals(ctx, rows, l.logger)

	for _, src := range l.extra {
		more, err := src.Festivals(ctx)
		if err != nil {
			return nil, &types.DataLoadError{Table: TableFestivals, Err: err}
		}
		festivals = append(festivals, more...)
	}
	return festivals, nil
}

// CustomMessages loads the custom-message table.
func (l *Loader) CustomMessages(ctx context.Context) ([]types.CustomMessage, error) {
	rows, err := l.gw.ReadTable(ctx, l.tables.Custom)
	if err != nil {
		return nil, &types.DataLoadError{Table: TableCustom, Err: err}
	}
	return ParseCustomMessages(ctx, rows, l.logger), nil
}

// ParseRoster converts roster rows. An unparseable birth or hire date leaves
// that field zero, which disables only that occasion for the entry.
func ParseRoster(ctx context.Context, rows [][]string, logger *slog.Logger) []types.RosterEntry {
	var out []types.RosterEntry
	for i, raw := range dataRows(rows) {
		row := normalize(raw, rosterWidth)
		if isBlank(row) {
			continue
		}
		entry := types.RosterEntry{
			ID:       row[colRosterID],
			FullName: row[colRosterName],
			Email:    row[colRosterEmail],
		}

		if cell := row[colRosterBirth]; cell != "" {
			md, err := types.ParseMonthDay(cell)
			if err != nil {
				warnRow(ctx, logger, TableRoster, i, types.ErrCodeDataMalformedRow, "birth date ignored", err)
			} else {
				entry.BirthDate = md
			}
		}
		if cell := row[colRosterHire]; cell != "" {
			d, err := types.ParseDate(cell)
			if err != nil {
				warnRow(ctx, logger, TableRoster, i, types.ErrCodeDataMalformedRow, "hire date ignored", err)
			} else {
				entry.HireDate = d
			}
		}
		out = append(out, entry)
	}
	return out
}

// ParseFestivals converts festival rows. Rows without a name or with a bad
// date are dropped.
func ParseFestivals(ctx context.Context, rows [][]string, logger *slog.Logger) []types.FestivalEntry {
	var out []types.FestivalEntry
	for i, raw := range dataRows(rows) {
		row := normalize(raw, festivalWidth)
		if isBlank(row) {
			continue
		}
		name := row[colFestivalName]
		if name == "" {
			warnRow(ctx, logger, TableFestivals, i, types.ErrCodeValidationMissingField, "festival without name dropped", nil)
			continue
		}
		d, err := types.ParseDate(row[colFestivalDate])
		if err != nil {
			warnRow(ctx, logger, TableFestivals, i, types.ErrCodeDataMalformedRow, "festival dropped", err)
			continue
		}
		out = append(out, types.FestivalEntry{Name: name, Date: d})
	}
	return out
}

// ParseCustomMessages converts custom-message rows. Rows without an id have
// no stable occasion key and are dropped, as are rows with a bad send date.
// Templates are kept verbatim.
func ParseCustomMessages(ctx context.Context, rows [][]string, logger *slog.Logger) []types.CustomMessage {
	var out []types.CustomMessage
	for i, raw := range dataRows(rows) {
		row := normalize(raw, customWidth)
		if isBlank(row) {
			continue
		}
		id := row[colCustomID]
		if id == "" {
			warnRow(ctx, logger, TableCustom, i, types.ErrCodeValidationMissingField, "custom message without id dropped", nil)
			continue
		}
		d, err := types.ParseDate(row[colCustomDate])
		if err != nil {
			warnRow(ctx, logger, TableCustom, i, types.ErrCodeDataMalformedRow, "custom message dropped", err)
			continue
		}
		out = append(out, types.CustomMessage{
			ID:              id,
			SendDate:        d,
			SubjectTemplate: raw0(raw, colCustomSubject),
			BodyTemplate:    raw0(raw, colCustomBody),
		})
	}
	return out
}

func dataRows(rows [][]string) [][]string {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

// normalize pads row to width and trims every cell.
func normalize(row []string, width int) []string {
	out := make([]string, max(width, len(row)))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// raw0 returns the untrimmed cell at i, or "".
func raw0(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// warnRow logs a row-level problem with its error code. sheet_row is 1-based
// and counts the header, matching what an operator sees in the spreadsheet.
func warnRow(ctx context.Context, logger *slog.Logger, table string, dataIndex int, code types.ErrorCode, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"table", table, "sheet_row", dataIndex + 2, "error_code", string(code)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.WarnContext(ctx, msg, attrs...)
}
