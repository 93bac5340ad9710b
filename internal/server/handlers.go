package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Tiliavir/hours-tracker/internal/store"
	"github.com/Tiliavir/hours-tracker/internal/summary"
	"github.com/Tiliavir/hours-tracker/internal/syncer"
	"github.com/Tiliavir/hours-tracker/internal/timecalc"
)

// headerStorageWarning is set when a mutation succeeded in memory but could
// not be persisted.
const headerStorageWarning = "X-Storage-Warning"

const defaultRecent = 10

type workplaceRequest struct {
	Name       string          `json:"name"`
	HourlyRate decimal.Decimal `json:"hourlyRate"`
}

type workplaceView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	HourlyRate decimal.Decimal `json:"hourlyRate"`
	TotalHours decimal.Decimal `json:"totalHours"`
}

type entryRequest struct {
	Date      string          `json:"date"`
	Workplace string          `json:"workplace"`
	Hours     decimal.Decimal `json:"hours"`
	Notes     string          `json:"notes"`
	Replace   bool            `json:"replace"`
}

type attemptView struct {
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type syncView struct {
	Connected   bool         `json:"connected"`
	LastAttempt *attemptView `json:"lastAttempt,omitempty"`
	Pending     []string     `json:"pending,omitempty"`
}

func (s *Server) listWorkplaces(c *gin.Context) {
	totals := summary.WorkplaceTotals(s.store.Entries(), s.store.Workplaces())
	out := make([]workplaceView, 0, len(totals))
	for _, t := range totals {
		out = append(out, workplaceView{
			ID:         t.Workplace.ID,
			Name:       t.Workplace.Name,
			HourlyRate: t.Workplace.HourlyRate,
			TotalHours: t.Hours,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) addWorkplace(c *gin.Context) {
	var req workplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := s.store.AddWorkplace(req.Name, req.HourlyRate)
	if !s.accept(c, err) {
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) removeWorkplace(c *gin.Context) {
	err := s.store.RemoveWorkplace(c.Param("id"), confirmed(c, "confirm"))
	if !s.accept(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listEntries(c *gin.Context) {
	n := defaultRecent
	if v := c.Query("limit"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
	}
	c.JSON(http.StatusOK, s.store.ListRecent(n))
}

func (s *Server) logEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Date == "" {
		req.Date = timecalc.Today(s.now())
	}
	e, err := s.store.LogEntry(store.EntryInput{
		Date:      req.Date,
		Workplace: req.Workplace,
		Hours:     req.Hours,
		Notes:     req.Notes,
	}, req.Replace)
	if !s.accept(c, err) {
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) removeEntry(c *gin.Context) {
	err := s.store.RemoveEntry(c.Param("id"), confirmed(c, "confirm"))
	if !s.accept(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) monthlySummary(c *gin.Context) {
	month := c.DefaultQuery("month", timecalc.CurrentMonth(s.now()))
	sum, err := summary.Monthly(s.store.Entries(), s.store.Workplaces(), month)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) breakdown(c *gin.Context) {
	c.JSON(http.StatusOK, summary.Breakdown(s.store.Entries(), s.store.Workplaces()))
}

func (s *Server) export(c *gin.Context) {
	now := s.now()
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ExportFileName(now)))
	c.JSON(http.StatusOK, s.store.Export(now))
}

func (s *Server) clearAll(c *gin.Context) {
	err := s.store.ClearAll(store.ClearConfirmation{
		Confirmed:   confirmed(c, "confirm"),
		Reconfirmed: confirmed(c, "reconfirm"),
	})
	if !s.accept(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) syncStatus(c *gin.Context) {
	view := syncView{Connected: s.sync.Connected()}
	if a, ok := s.sync.LastAttempt(); ok {
		view.LastAttempt = &attemptView{At: a.At}
		if a.Err != nil {
			view.LastAttempt.Error = a.Err.Error()
		}
	}
	if s.cache != nil {
		view.Pending = s.cache.PendingSyncs()
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) pushSync(c *gin.Context) {
	if err := s.Sync(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	a, _ := s.sync.LastAttempt()
	c.JSON(http.StatusOK, gin.H{"syncedAt": a.At})
}

// ExportFileName is the download name of an export taken at now.
func ExportFileName(now time.Time) string {
	return "hours-tracker-export-" + timecalc.Today(now) + ".json"
}

func confirmed(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

// accept reports whether the request may proceed after a store call. A
// storage warning is logged and surfaced as a header; any other error is
// written as the response.
func (s *Server) accept(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	if store.IsStorageWarning(err) {
		s.log.Warn("change kept in memory only", "err", err)
		c.Header(headerStorageWarning, err.Error())
		return true
	}
	s.fail(c, err)
	return false
}

func (s *Server) fail(c *gin.Context, err error) {
	var (
		validation   *store.ValidationError
		conflict     *store.ConflictError
		notConnected *syncer.NotConnectedError
		syncErr      *syncer.SyncError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "existing": conflict.Existing})
	case errors.Is(err, store.ErrConfirmationRequired):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, summary.ErrNoEntries):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, summary.ErrInvalidMonth):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notConnected):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case errors.Is(err, syncer.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &syncErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "step": syncErr.Step})
	default:
		s.log.Error("request failed", "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
