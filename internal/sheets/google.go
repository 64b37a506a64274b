package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"greetbot/internal/types"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// valueInputRaw stores appended cells exactly as given, so "2024-03-10" stays
// text instead of becoming a spreadsheet date serial.
const valueInputRaw = "RAW"

// SheetsGateway talks to the Google Sheets values API.
type SheetsGateway struct {
	svc *gsheets.Service
}

// NewSheetsGateway authenticates with a service account JSON key.
func NewSheetsGateway(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*SheetsGateway, error) {
	all := append([]option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheets.SpreadsheetsScope),
	}, opts...)
	return newSheetsGateway(ctx, all...)
}

func newSheetsGateway(ctx context.Context, opts ...option.ClientOption) (*SheetsGateway, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &SheetsGateway{svc: svc}, nil
}

// ReadTable implements Gateway. Every cell is rendered with fmt's %v, which
// is what the formatted-value response holds anyway.
func (g *SheetsGateway) ReadTable(ctx context.Context, table TableRef) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(table.SpreadsheetID, table.Range).Context(ctx).Do()
	if err != nil {
		return nil, mapSheetsError(err, "read", table)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			if cell != nil {
				row[j] = fmt.Sprint(cell)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// AppendRow implements Gateway.
func (g *SheetsGateway) AppendRow(ctx context.Context, table TableRef, row []string) error {
	cells := make([]any, len(row))
	for i, c := range row {
		cells[i] = c
	}
	_, err := g.svc.Spreadsheets.Values.
		Append(table.SpreadsheetID, table.Range, &gsheets.ValueRange{Values: [][]any{cells}}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return mapSheetsError(err, "append", table)
	}
	return nil
}

// mapSheetsError converts googleapi failures into AppErrors with upstream
// codes. Other errors (transport, context) are wrapped unchanged.
func mapSheetsError(err error, op string, table TableRef) error {
	msg := fmt.Sprintf("sheets %s %s (%s)", op, table.Range, table.SpreadsheetID)

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	code := types.ErrCodeUpstreamUnavailable
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		code = types.ErrCodeUpstreamRateLimited
	case http.StatusNotFound, http.StatusBadRequest:
		code = types.ErrCodeDataLoad
	}
	return types.NewAppErrorWithDetails(code, msg, err, map[string]any{
		"status": apiErr.Code,
	})
}
