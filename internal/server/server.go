// Package server exposes the store, the aggregation engine and the sync
// coordinator over HTTP, and sends every other request through the cache
// manager.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tiliavir/hours-tracker/internal/cache"
	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/syncer"
)

// Config wires the server to its collaborators. Cache is optional; without
// it unmatched paths answer 404.
type Config struct {
	Store          *store.Store
	Sync           *syncer.Coordinator
	Cache          *cache.Manager
	Logger         *slog.Logger
	AllowedOrigins []string
	Now            func() time.Time
}

// Server is the HTTP front of hours serve.
type Server struct {
	store  *store.Store
	sync   *syncer.Coordinator
	cache  *cache.Manager
	log    *slog.Logger
	now    func() time.Time
	engine *gin.Engine
}

// New builds the gin engine and its routes.
func New(cfg Config) *Server {
	s := &Server{
		store: cfg.Store,
		sync:  cfg.Sync,
		cache: cfg.Cache,
		log:   cfg.Logger,
		now:   cfg.Now,
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", headerStorageWarning},
			AllowCredentials: true,
		}))
	}

	api := r.Group("/api")
	{
		api.GET("/workplaces", s.listWorkplaces)
		api.POST("/workplaces", s.addWorkplace)
		api.DELETE("/workplaces/:id", s.removeWorkplace)

		api.GET("/entries", s.listEntries)
		api.POST("/entries", s.logEntry)
		api.DELETE("/entries/:id", s.removeEntry)

		api.GET("/summary", s.monthlySummary)
		api.GET("/summary/all", s.breakdown)

		api.GET("/export", s.export)
		api.DELETE("/data", s.clearAll)

		api.GET("/sync", s.syncStatus)
		api.POST("/sync", s.pushSync)
	}

	sw := r.Group("/_sw")
	{
		sw.GET("/events", s.events)
		sw.POST("/message", s.message)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.cache != nil {
		r.NoRoute(gin.WrapH(s.cache))
	} else {
		r.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		})
	}

	s.engine = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Sync pushes the current store contents to the attached target.
func (s *Server) Sync(ctx context.Context) error {
	return s.sync.PushSnapshot(ctx, s.store.Entries(), s.store.Workplaces())
}

// RunSession consumes the messages posted to client and runs a sync for
// every background sync request. It returns when the session disconnects or
// ctx is done.
func (s *Server) RunSession(ctx context.Context, client *cache.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			if msg.Type != cache.MsgBackgroundSync || msg.Action != cache.ActionSyncData {
				continue
			}
			if err := s.Sync(ctx); err != nil {
				s.log.Warn("background sync failed", "err", err)
				continue
			}
			s.log.Info("background sync completed")
		}
	}
}
