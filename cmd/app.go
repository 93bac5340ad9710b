package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/hours-tracker/internal/config"
	"github.com/Tiliavir/hours-tracker/internal/logger"
	"github.com/Tiliavir/hours-tracker/internal/sheets"
	"github.com/Tiliavir/hours-tracker/internal/storage"
	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/syncer"
	"github.com/Tiliavir/hours-tracker/internal/tabular"
	"github.com/Tiliavir/hours-tracker/internal/workbook"
)

// app bundles what a command needs: configuration, logger, the entity store
// and the sync coordinator.
type app struct {
	cfg    config.Config
	base   string
	log    *slog.Logger
	closer io.Closer
	store  *store.Store
	sync   *syncer.Coordinator
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader
	now    func() time.Time
}

// newApp loads the configuration and opens the store below the data
// directory. Informational logging is on for long-running commands or with
// --verbose.
func newApp(cmd *cobra.Command, longRunning bool) (*app, error) {
	base := dataDir
	var (
		cfg config.Config
		err error
	)
	if base == "" {
		if base, err = storage.BaseDir(); err != nil {
			return nil, storageError(err)
		}
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFile(filepath.Join(base, "config.json"))
	}
	if err != nil {
		return nil, userError(err)
	}

	level := cfg.Log.Level
	if !longRunning && !verbose && strings.EqualFold(level, "info") {
		level = "warn"
	}
	log, closer, err := logger.New(logger.Config{
		Level:      level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, userError(fmt.Errorf("configuring logging: %w", err))
	}

	return &app{
		cfg:    cfg,
		base:   base,
		log:    log,
		closer: closer,
		store:  store.Open(storage.NewFile(filepath.Join(base, "data")), store.WithLogger(log)),
		sync:   syncer.New(syncer.WithLogger(log)),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		in:     bufio.NewReader(cmd.InOrStdin()),
		now:    time.Now,
	}, nil
}

func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		fmt.Fprintln(a.errOut, "Warning: closing log file:", err)
	}
}

// confirm asks a yes/no question. Anything but y or yes, including end of
// input, is a no.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.out, "%s [y/N]: ", question)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// warn reports a failed persist. The change itself stays in effect.
func (a *app) warn(err error) {
	fmt.Fprintf(a.errOut, "Warning: %v (the change is kept for this session only)\n", err)
}

// checkStore turns a storage warning into a printed warning and passes every
// other error through.
func (a *app) checkStore(err error) error {
	if err == nil {
		return nil
	}
	if store.IsStorageWarning(err) {
		a.warn(err)
		return nil
	}
	return err
}

func (a *app) workbookPath() string {
	if a.cfg.Sheets.Workbook != "" {
		return a.cfg.Sheets.Workbook
	}
	return filepath.Join(a.base, "hours-tracker.xlsx")
}

// connector returns the connector of the configured sync target. httpClient
// is the base client for Google API calls; nil means http.DefaultClient.
func (a *app) connector(interactive bool, httpClient *http.Client) (syncer.Connector, error) {
	switch strings.ToLower(a.cfg.Sheets.Target) {
	case "excel":
		return &workbook.Connector{Path: a.workbookPath()}, nil
	case "google", "":
		return &sheets.Connector{
			ClientID:     a.cfg.Sheets.ClientID,
			ClientSecret: a.cfg.Sheets.ClientSecret,
			Title:        a.cfg.Sheets.Title,
			TokenPath:    sheets.TokenFilePath(a.base),
			Interactive:  interactive,
			Prompt:       a.errOut,
			HTTPClient:   httpClient,
		}, nil
	default:
		return nil, userError(fmt.Errorf("unknown sheets target %q (want google or excel)", a.cfg.Sheets.Target))
	}
}

// connect attaches the sync target, creating it when no usable id is cached.
func (a *app) connect(ctx context.Context, interactive bool, httpClient *http.Client) (tabular.Target, error) {
	conn, err := a.connector(interactive, httpClient)
	if err != nil {
		return nil, err
	}

	id := a.store.SpreadsheetID()
	if _, ok := conn.(*workbook.Connector); ok && id != "" {
		// The cached id is only reused while it still names the configured workbook.
		if _, statErr := os.Stat(id); id != a.workbookPath() || statErr != nil {
			id = ""
		}
	}

	target, newID, err := syncer.Connect(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if newID != id {
		if err := a.store.SetSpreadsheetID(newID); err != nil {
			a.warn(err)
		}
	}
	a.sync.Attach(target)
	return target, nil
}

// push mirrors the store into the attached target.
func (a *app) push(ctx context.Context) error {
	return a.sync.PushSnapshot(ctx, a.store.Entries(), a.store.Workplaces())
}

// autoSync pushes after a change when a target has been connected before.
// Failures are reported but never fail the command.
func (a *app) autoSync(ctx context.Context) {
	if a.store.SpreadsheetID() == "" {
		return
	}
	if _, err := a.connect(ctx, false, nil); err != nil {
		var nc *syncer.NotConnectedError
		if !errors.As(err, &nc) {
			fmt.Fprintln(a.errOut, "Warning: sync skipped:", err)
		}
		return
	}
	if err := a.push(ctx); err != nil {
		fmt.Fprintln(a.errOut, "Warning: sync failed:", err)
		return
	}
	fmt.Fprintln(a.out, "Synced to spreadsheet.")
}
