package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func NewHandler(store StateLoader, version string) *Handler {
	return &Handler{
		store:   store,
		version: version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	data, err := os.ReadFile(h.store.FeedPath())
	if errors.Is(err, os.ErrNotExist) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to read feed", "path", h.store.FeedPath(), "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Feed-Size", strconv.Itoa(len(data)))
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	state, err := h.store.Load()
	if err != nil {
		slog.Error("Failed to load history", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}

	stats := gin.H{
		"history":   len(state.Records),
		"feed_path": h.store.FeedPath(),
	}

	if len(state.Records) > 0 {
		newest := state.Records[0]
		stats["newest"] = gin.H{
			"id":       newest.ID,
			"title":    newest.Title(),
			"filed_at": newest.FiledAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, stats)
}
