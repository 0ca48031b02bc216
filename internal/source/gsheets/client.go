package gsheets

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// readRange covers the first sheet; the header row selects the column.
const readRange = "Sheet1"

// Client reads an entity column from, and appends result rows to, a
// Google Sheet via a service-account credential.
type Client struct {
	svc *sheets.Service
}

func New(ctx context.Context, credentialsJSON []byte, opts ...option.ClientOption) (*Client, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("service-account credentials JSON is required")
	}
	all := append([]option.ClientOption{
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	}, opts...)
	svc, err := sheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// SpreadsheetID extracts the spreadsheet ID from a sheet URL of the form
// https://docs.google.com/spreadsheets/d/<id>/edit...
func SpreadsheetID(sheetURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(sheetURL))
	if err != nil {
		return "", fmt.Errorf("parse sheet URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "d" && i+1 < len(parts) && strings.TrimSpace(parts[i+1]) != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("sheet URL %q has no /d/<id> segment", sheetURL)
}

// ReadColumn returns the values of the named column, in row order.
func (c *Client) ReadColumn(ctx context.Context, spreadsheetID, column string) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet values: %w", err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("no data found in sheet")
	}

	colIdx := columnIndex(resp.Values[0], column)
	if colIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", column)
	}

	var entities []string
	for _, row := range resp.Values[1:] {
		entities = append(entities, stringCell(row, colIdx))
	}
	return entities, nil
}

// AppendRows appends data rows (no header) to the sheet with RAW input.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID string, rows [][]string) error {
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cell)
		}
		values = append(values, cells)
	}

	_, err := c.svc.Spreadsheets.Values.
		Append(spreadsheetID, readRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sheet rows: %w", err)
	}
	return nil
}

func columnIndex(header []any, column string) int {
	for i, cell := range header {
		if strings.EqualFold(strings.TrimSpace(fmt.Sprint(cell)), strings.TrimSpace(column)) {
			return i
		}
	}
	return -1
}

func stringCell(row []any, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return fmt.Sprint(row[idx])
}
