package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/Tiliavir/hours-tracker/internal/tabular"
)

// Connector signs in to Google and opens spreadsheets. It implements
// syncer.Connector.
type Connector struct {
	ClientID     string
	ClientSecret string
	Title        string
	TokenPath    string
	// Interactive allows the device code flow when no token is stored.
	Interactive bool
	// Prompt receives sign-in instructions and warnings.
	Prompt io.Writer
	// HTTPClient is the base client under the OAuth2 transport. Default http.DefaultClient.
	HTTPClient *http.Client
	// BaseURL overrides the Sheets API endpoint.
	BaseURL string
	// TokenSource bypasses the stored token and the device flow.
	TokenSource oauth2.TokenSource

	client *Client
}

// Initialize loads or obtains a token. Without a token and outside
// interactive mode it succeeds but leaves the connector signed out.
func (c *Connector) Initialize(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	if c.Prompt == nil {
		c.Prompt = io.Discard
	}
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	ts := c.TokenSource
	if ts == nil {
		if c.ClientID == "" {
			return errors.New("Google API credentials not configured (set sheets.client_id in ~/.hours/config.json)")
		}
		cfg := oauth2Config(c.ClientID, c.ClientSecret)
		tok, err := getToken(ctx, cfg, c.TokenPath, c.Interactive, c.Prompt)
		if errors.Is(err, ErrNotSignedIn) {
			return nil
		}
		if err != nil {
			return err
		}
		ts = &savingTokenSource{ts: cfg.TokenSource(ctx, tok), path: c.TokenPath, last: tok.AccessToken}
	}

	c.client = NewClient(oauth2.NewClient(ctx, ts), c.BaseURL)
	return nil
}

// IsSignedIn reports whether Initialize obtained credentials.
func (c *Connector) IsSignedIn() bool { return c.client != nil }

// SetupTarget creates the spreadsheet with header rows and returns its id.
func (c *Connector) SetupTarget(ctx context.Context) (string, error) {
	if c.client == nil {
		return "", ErrNotSignedIn
	}
	title := c.Title
	if title == "" {
		title = "Hours Tracker"
	}
	id, err := c.client.CreateSpreadsheet(ctx, title)
	if err != nil {
		return "", err
	}

	for _, r := range []tabular.Region{tabular.TimeEntries, tabular.Workplaces} {
		header := make([]any, 0, r.Columns())
		for _, h := range r.Header {
			header = append(header, h)
		}
		if err := c.client.UpdateValues(ctx, id, tabular.From(r, 1).Bounded(1).A1(), [][]any{header}); err != nil {
			return "", fmt.Errorf("setting up headers: %w", err)
		}
	}
	if err := c.client.FormatHeaderRow(ctx, id, tabular.TimeEntries.SheetID); err != nil {
		return "", fmt.Errorf("setting up headers: %w", err)
	}
	return id, nil
}

// Open returns the spreadsheet with the given id.
func (c *Connector) Open(_ context.Context, id string) (tabular.Target, error) {
	if c.client == nil {
		return nil, ErrNotSignedIn
	}
	return c.client.Open(id), nil
}
