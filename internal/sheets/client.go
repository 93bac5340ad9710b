// Package sheets mirrors hours data into a Google Sheets spreadsheet through
// the Sheets REST API v4.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4"

// APIError is a non-2xx answer of the Sheets API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets API error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Client is an authenticated Sheets API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client sending requests through httpClient, which must
// attach credentials. An empty baseURL selects the public API.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimSuffix(baseURL, "/")}
}

type gridProperties struct {
	FrozenRowCount int `json:"frozenRowCount,omitempty"`
}

type sheetProperties struct {
	SheetID        int             `json:"sheetId"`
	Title          string          `json:"title"`
	GridProperties *gridProperties `json:"gridProperties,omitempty"`
}

type sheet struct {
	Properties sheetProperties `json:"properties"`
}

type spreadsheet struct {
	SpreadsheetID  string `json:"spreadsheetId,omitempty"`
	SpreadsheetURL string `json:"spreadsheetUrl,omitempty"`
	Properties     struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []sheet `json:"sheets,omitempty"`
}

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

type color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// headerFormat is the blue background with bold white text used for header rows.
var headerFormat = map[string]any{
	"backgroundColor": color{Red: 0.26, Green: 0.52, Blue: 0.96},
	"textFormat": map[string]any{
		"foregroundColor": color{Red: 1, Green: 1, Blue: 1},
		"bold":            true,
	},
}

// CreateSpreadsheet creates a spreadsheet with one sheet per region and
// returns its id.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	var req spreadsheet
	req.Properties.Title = title
	for _, r := range tabular.Regions {
		s := sheet{Properties: sheetProperties{SheetID: r.SheetID, Title: r.Title}}
		if r.SheetID == tabular.TimeEntries.SheetID {
			s.Properties.GridProperties = &gridProperties{FrozenRowCount: 1}
		}
		req.Sheets = append(req.Sheets, s)
	}

	var resp spreadsheet
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/spreadsheets", req, &resp); err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}
	if resp.SpreadsheetID == "" {
		return "", fmt.Errorf("creating spreadsheet: response carries no spreadsheetId")
	}
	return resp.SpreadsheetID, nil
}

// ClearValues blanks the cells of an A1 range.
func (c *Client) ClearValues(ctx context.Context, id, a1 string) error {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:clear", c.baseURL, url.PathEscape(id), url.PathEscape(a1))
	if err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, nil); err != nil {
		return fmt.Errorf("clearing %s: %w", a1, err)
	}
	return nil
}

// UpdateValues writes rows into an A1 range as raw values.
func (c *Client) UpdateValues(ctx context.Context, id, a1 string, rows [][]any) error {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueInputOption=RAW", c.baseURL, url.PathEscape(id), url.PathEscape(a1))
	body := valueRange{Range: a1, MajorDimension: "ROWS", Values: rows}
	if err := c.do(ctx, http.MethodPut, endpoint, body, nil); err != nil {
		return fmt.Errorf("writing %s: %w", a1, err)
	}
	return nil
}

// FormatHeaderRow styles the first row of a sheet.
func (c *Client) FormatHeaderRow(ctx context.Context, id string, sheetID int) error {
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"repeatCell": map[string]any{
					"range": map[string]any{
						"sheetId":       sheetID,
						"startRowIndex": 0,
						"endRowIndex":   1,
					},
					"cell":   map[string]any{"userEnteredFormat": headerFormat},
					"fields": "userEnteredFormat(backgroundColor,textFormat)",
				},
			},
		},
	}
	endpoint := fmt.Sprintf("%s/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("formatting header of sheet %d: %w", sheetID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets API request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding sheets response: %w", err)
	}
	return nil
}

// Spreadsheet is a tabular.Target backed by one spreadsheet.
type Spreadsheet struct {
	client *Client
	id     string
}

// Open returns the spreadsheet with the given id.
func (c *Client) Open(id string) *Spreadsheet {
	return &Spreadsheet{client: c, id: id}
}

func (s *Spreadsheet) ID() string { return s.id }

// URL is the browser address of the spreadsheet.
func (s *Spreadsheet) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + s.id
}

func (s *Spreadsheet) Clear(ctx context.Context, rng tabular.Range) error {
	return s.client.ClearValues(ctx, s.id, rng.A1())
}

func (s *Spreadsheet) Write(ctx context.Context, rng tabular.Range, rows [][]any) error {
	return s.client.UpdateValues(ctx, s.id, rng.A1(), rows)
}

func (s *Spreadsheet) FormatHeader(ctx context.Context, region tabular.Region) error {
	return s.client.FormatHeaderRow(ctx, s.id, region.SheetID)
}
