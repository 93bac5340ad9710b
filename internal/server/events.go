package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tiliavir/hours-tracker/internal/cache"
)

// events streams the messages posted to a new client session as
// server-sent events. The first event, "ready", carries the session id.
func (s *Server) events(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache manager not running"})
		return
	}
	clients := s.cache.Clients()
	client := clients.Connect()
	defer clients.Disconnect(client.ID)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"client": client.ID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-client.Messages():
			if !ok {
				return false
			}
			c.SSEvent("message", msg)
			return true
		}
	})
}

// message handles a message posted by a client session.
func (s *Server) message(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache manager not running"})
		return
	}
	var msg cache.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cache.HandleMessage(c.Request.Context(), msg); err != nil {
		if errors.Is(err, cache.ErrUnknownMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.log.Error("client message failed", "type", msg.Type, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}
