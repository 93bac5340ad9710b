package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// ErrNotSignedIn is returned when no usable token exists and the device flow
// is not allowed.
var ErrNotSignedIn = errors.New("not signed in to Google (run: hours sheets connect)")

// drive.file limits access to spreadsheets created by this application.
var requiredScopes = []string{
	"https://www.googleapis.com/auth/drive.file",
}

const (
	googleDeviceAuthURL = "https://oauth2.googleapis.com/device/code"
	googleTokenURL      = "https://oauth2.googleapis.com/token"
)

// TokenFilePath returns the path of the stored token under base, normally ~/.hours.
func TokenFilePath(base string) string {
	return filepath.Join(base, "auth", "google_tokens.json")
}

// oauth2Config returns the oauth2.Config for Google using the provided client
// credentials.
func oauth2Config(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       requiredScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: googleDeviceAuthURL,
			TokenURL:      googleTokenURL,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// loadToken loads a previously saved token from disk. A missing file yields
// a nil token.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file (delete %s to re-authenticate): %w", path, err)
	}
	return &tok, nil
}

// saveToken persists a token to disk.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving token file: %w", err)
	}
	return nil
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ts   oauth2.TokenSource
	path string
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		// Best-effort save; ignore errors.
		_ = saveToken(s.path, tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}

// getToken loads the saved token, refreshing it when expired. Without a
// usable token it runs the device code flow if interactive is set and
// returns ErrNotSignedIn otherwise. Instructions for the user go to prompt.
func getToken(ctx context.Context, cfg *oauth2.Config, path string, interactive bool, prompt io.Writer) (*oauth2.Token, error) {
	tok, err := loadToken(path)
	if err != nil {
		// Corrupt token: warn and re-auth.
		fmt.Fprintf(prompt, "Warning: %v\n", err)
		tok = nil
	}

	if tok != nil && tok.Valid() {
		return tok, nil
	}

	// Try to refresh.
	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := cfg.TokenSource(ctx, tok).Token()
		if err == nil {
			if err2 := saveToken(path, refreshed); err2 != nil {
				fmt.Fprintf(prompt, "Warning: could not save refreshed token: %v\n", err2)
			}
			return refreshed, nil
		}
		fmt.Fprintf(prompt, "Token refresh failed (%v), re-authenticating...\n", err)
	}

	if !interactive {
		return nil, ErrNotSignedIn
	}

	// Device code flow.
	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	fmt.Fprintln(prompt)
	fmt.Fprintln(prompt, "To sign in to Google, use a web browser to open the page:")
	fmt.Fprintf(prompt, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(prompt, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(prompt)

	newTok, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}

	if err := saveToken(path, newTok); err != nil {
		fmt.Fprintf(prompt, "Warning: could not save token: %v\n", err)
	}
	return newTok, nil
}
