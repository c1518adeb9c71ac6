package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/config"
)

// statusChannels is a read-only view over C1 (§6.1: "/status/... the
// monitoring UI and JSON endpoints... read-only over C1/C3"): every
// configured channel, enabled or not, with its priority, disabled reason if force-disabled,
// and its runtime reliability stats.
func (h *handler) statusChannels(c *gin.Context) {
	channels := config.SortedByPriority(h.d.CfgReg.AllChannels())
	rows := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		stats := h.d.CfgReg.Stats(ch.ID)
		rows = append(rows, gin.H{
			"id":              ch.ID,
			"name":            ch.Name,
			"provider":        ch.Provider,
			"model_name":      ch.ModelName,
			"priority":        ch.Priority,
			"enabled":         ch.Enabled,
			"disabled_reason": ch.DisabledReason(),
			"health_score":    stats.HealthScore,
			"total_requests":  stats.TotalRequests,
			"total_failures":  stats.TotalFailures,
			"last_latency_ms": stats.LastLatencyMS,
		})
	}
	c.JSON(http.StatusOK, gin.H{"channels": rows})
}

// statusBlacklist is the read-only view over C3: every live (channel,
// model) blacklist entry.
func (h *handler) statusBlacklist(c *gin.Context) {
	entries := h.d.BL.AllEntries()
	rows := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, gin.H{
			"channel_id":      e.ChannelID,
			"model":           e.Model,
			"error_type":      e.ErrorType,
			"error_code":      e.ErrorCode,
			"blacklisted_at":  e.BlacklistedAt,
			"expires_at":      e.ExpiresAt,
			"failure_count":   e.FailureCount,
			"is_permanent":    e.IsPermanent,
			"backoff_seconds": e.BackoffSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"blacklist": rows})
}

// statusUsage reports one day's aggregated usage (§6.4); defaults to today
// (UTC, YYYYMMDD) when no ?date= query param is given.
func (h *handler) statusUsage(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("20060102")
	}
	if h.d.Tracker == nil {
		c.JSON(http.StatusOK, gin.H{"date": date, "total_requests": 0})
		return
	}
	stats, err := h.d.Tracker.ReadDailyStats(date)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "usage_read_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}
