package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration for hours, stored in ~/.hours/config.json.
// The file supports single-line // comments for documentation purposes.
type Config struct {
	Sheets SheetsConfig `json:"sheets"`
	Cache  CacheConfig  `json:"cache"`
	Log    LogConfig    `json:"log"`
}

// SheetsConfig selects and configures the spreadsheet sync target.
type SheetsConfig struct {
	// Target is "google" for Google Sheets or "excel" for a local workbook.
	Target string `json:"target"`
	// ClientID and ClientSecret identify the Google OAuth client (type "TVs and
	// Limited Input devices") used for the device code flow.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// Title is the name of the spreadsheet created on connect.
	Title string `json:"title"`
	// Workbook is the .xlsx path used when Target is "excel". Empty = ~/.hours/hours-tracker.xlsx.
	Workbook string `json:"workbook"`
}

// CacheConfig configures the offline cache served by `hours serve`.
type CacheConfig struct {
	// Origin is the base URL of the hosted application shell.
	Origin string `json:"origin"`
	// Listen is the local address of the server.
	Listen string `json:"listen"`
	// Manifest optionally points to a YAML asset manifest replacing the built-in one.
	Manifest string `json:"manifest"`
	// Dir holds cache generations on disk. Empty = ~/.hours/cache.
	Dir string `json:"dir"`
	// SyncInterval is how often pending background sync tags are retried.
	SyncInterval Duration `json:"sync_interval"`
	// PeriodicSync is the interval of the periodic "daily-sync" tag. 0 disables it.
	PeriodicSync Duration `json:"periodic_sync"`
	// AllowedOrigins are extra browser origins allowed to call /api.
	AllowedOrigins []string `json:"allowed_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Duration is a time.Duration written as a string like "5m" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\": %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

const (
	// DefaultTarget syncs to Google Sheets.
	DefaultTarget = "google"
	// DefaultTitle is the spreadsheet title used when none is configured.
	DefaultTitle = "Hours Tracker"
	// DefaultOrigin is where the application shell is served from during development.
	DefaultOrigin = "http://localhost:8080"
	// DefaultListen is the local address of `hours serve`.
	DefaultListen = "127.0.0.1:8787"
	// DefaultSyncInterval is the retry interval for pending background sync tags.
	DefaultSyncInterval = Duration(time.Minute)
	// DefaultPeriodicSync is the interval of the periodic sync tag.
	DefaultPeriodicSync = Duration(24 * time.Hour)
)

// defaultConfig returns a Config pre-filled with sensible defaults.
func defaultConfig() Config {
	return Config{
		Sheets: SheetsConfig{
			Target: DefaultTarget,
			Title:  DefaultTitle,
		},
		Cache: CacheConfig{
			Origin:       DefaultOrigin,
			Listen:       DefaultListen,
			SyncInterval: DefaultSyncInterval,
			PeriodicSync: DefaultPeriodicSync,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// hours configuration – ~/.hours/config.json
//
// All settings are optional; the defaults below work for local-only use.
// Spreadsheet sync needs either a Google OAuth client or target "excel".
{
  // ── Spreadsheet sync ─────────────────────────────────────────────────────
  "sheets": {
    // "google" mirrors to Google Sheets, "excel" to a local .xlsx workbook.
    "target": "google",

    // Google OAuth client of type "TVs and Limited Input devices".
    // Create one at https://console.cloud.google.com/apis/credentials.
    "client_id": "",
    "client_secret": "",

    // Title of the spreadsheet created by: hours sheets connect
    "title": "Hours Tracker",

    // Workbook path for the "excel" target. Empty = ~/.hours/hours-tracker.xlsx
    "workbook": ""
  },

  // ── Offline server (hours serve) ─────────────────────────────────────────
  "cache": {
    // Base URL of the hosted application shell.
    "origin": "http://localhost:8080",
    "listen": "127.0.0.1:8787",

    // Optional YAML asset manifest replacing the built-in asset list.
    "manifest": "",

    // Retry interval for pending background sync and the periodic sync interval.
    "sync_interval": "1m0s",
    "periodic_sync": "24h0m0s",

    // Extra browser origins allowed to call /api (CORS).
    "allowed_origins": []
  },

  // ── Logging ──────────────────────────────────────────────────────────────
  "log": {
    // debug, info, warn or error
    "level": "info",
    // text or json
    "format": "text",
    // Optional rotating log file.
    "file": "",
    "max_size_mb": 10,
    "max_backups": 3,
    "max_age_days": 28
  }
}
`

// FilePath returns the path to ~/.hours/config.json.
func FilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".hours", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Load reads ~/.hours/config.json, creating it with annotated defaults on
// first run.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return defaultConfig(), err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, creating it with annotated defaults when
// missing. The returned warning-worthy error for a failed first-run write is
// swallowed; parse errors are returned along with the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
		return defaultConfig(), nil
	}
	if err != nil {
		return defaultConfig(), fmt.Errorf("reading config file %s: %w", path, err)
	}

	cleaned := stripLineComments(data)
	var cfg Config
	if err := json.Unmarshal(cleaned, &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
	}

	// Fill zero-value fields with built-in defaults so callers always get
	// a usable Config even if the user only partially fills in the file.
	def := defaultConfig()
	if cfg.Sheets.Target == "" {
		cfg.Sheets.Target = def.Sheets.Target
	}
	if cfg.Sheets.Title == "" {
		cfg.Sheets.Title = def.Sheets.Title
	}
	if cfg.Cache.Origin == "" {
		cfg.Cache.Origin = def.Cache.Origin
	}
	if cfg.Cache.Listen == "" {
		cfg.Cache.Listen = def.Cache.Listen
	}
	if cfg.Cache.SyncInterval <= 0 {
		cfg.Cache.SyncInterval = def.Cache.SyncInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	return cfg, nil
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
