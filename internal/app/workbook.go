package app

import (
	"greetbot/internal/roster"
	"greetbot/internal/sheets"
)

// WorkbookSheets is the sheet order of a scaffolded workbook.
var WorkbookSheets = []string{roster.TableRoster, roster.TableFestivals, roster.TableCustom, SendLogTable}

// workbookHeaders are the header rows written by InitWorkbook.
var workbookHeaders = map[string][]string{
	roster.TableRoster:    {"id", "name", "email", "date_of_birth", "date_of_joining"},
	roster.TableFestivals: {"festival", "date"},
	roster.TableCustom:    {"id", "date", "subject", "body"},
	SendLogTable:          {"id", "occasion", "date", "email", "status", "sent_at"},
}

// InitWorkbook creates a workbook at path with header rows and the given
// data rows appended below each header.
func InitWorkbook(path string, rows map[string][][]string) error {
	tables := make(map[string][][]string, len(WorkbookSheets))
	for _, name := range WorkbookSheets {
		tables[name] = append([][]string{workbookHeaders[name]}, rows[name]...)
	}
	return sheets.CreateWorkbook(path, tables, WorkbookSheets)
}
