package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/hours-tracker/internal/cache"
	"github.com/Tiliavir/hours-tracker/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline-first local server",
	Long: `Run a local server that answers the JSON API under /api and proxies
every other request to the configured application origin through the offline
cache. Pending spreadsheet syncs are retried in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, 127.0.0.1:8787)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest := cache.DefaultManifest()
	if a.cfg.Cache.Manifest != "" {
		if manifest, err = cache.LoadManifest(a.cfg.Cache.Manifest); err != nil {
			return userError(err)
		}
	}
	dir := a.cfg.Cache.Dir
	if dir == "" {
		dir = filepath.Join(a.base, "cache")
	}
	mgr, err := cache.New(a.cfg.Cache.Origin, manifest, cache.NewDiskStorage(dir), cache.WithLogger(a.log))
	if err != nil {
		return userError(err)
	}

	// The in-process session runs the syncs that background sync tags request.
	session := mgr.Clients().Connect()

	if err := mgr.Install(ctx); err != nil {
		a.log.Warn("offline cache not installed, requests go to the network", "err", err)
	} else if err := mgr.Activate(ctx); err != nil {
		a.log.Warn("offline cache not activated", "err", err)
	}

	if a.store.SpreadsheetID() != "" {
		// Google API calls pass through the manager, which never caches them.
		if _, err := a.connect(ctx, false, &http.Client{Transport: mgr}); err != nil {
			a.log.Warn("sync target not connected", "err", err)
		} else {
			mgr.RegisterSync(cache.TagSyncData)
		}
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	origins := append([]string{a.cfg.Cache.Origin}, a.cfg.Cache.AllowedOrigins...)
	srv := server.New(server.Config{
		Store:          a.store,
		Sync:           a.sync,
		Cache:          mgr,
		Logger:         a.log,
		AllowedOrigins: origins,
	})

	addr := serveListen
	if addr == "" {
		addr = a.cfg.Cache.Listen
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("server listening", "addr", addr, "origin", a.cfg.Cache.Origin)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		srv.RunSession(gctx, session)
		return nil
	})
	g.Go(func() error {
		err := mgr.RunScheduler(gctx, time.Duration(a.cfg.Cache.SyncInterval), time.Duration(a.cfg.Cache.PeriodicSync))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down server")
		return httpSrv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(a.out, "Serving on http://%s (Ctrl+C to stop)\n", addr)
	if err := g.Wait(); err != nil {
		return userError(err)
	}
	return nil
}
