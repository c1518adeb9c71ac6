package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/middleware"
)

// adminListChannels mutates nothing; it is the admin-scoped twin of
// statusChannels that also exposes each channel's base_url and tags, which
// the unauthenticated /status surface does not return; api keys are not
// included (§6.1).
func (h *handler) adminListChannels(c *gin.Context) {
	channels := config.SortedByPriority(h.d.CfgReg.AllChannels())
	rows := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, gin.H{
			"id":         ch.ID,
			"name":       ch.Name,
			"provider":   ch.Provider,
			"base_url":   ch.BaseURL,
			"model_name": ch.ModelName,
			"priority":   ch.Priority,
			"enabled":    ch.Enabled,
			"tags":       ch.Tags,
		})
	}
	c.JSON(http.StatusOK, gin.H{"channels": rows})
}

// adminSetChannelEnabled mutates C1 (§6.1: "/admin/... mutates C1 and C3").
func (h *handler) adminSetChannelEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := h.d.CfgReg.SetChannelEnabled(id, enabled); err != nil {
			writeError(c, http.StatusNotFound, "channel_not_found", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
	}
}

func (h *handler) adminSetChannelPriority(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		Priority int `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := h.d.CfgReg.SetChannelPriority(id, body.Priority); err != nil {
		writeError(c, http.StatusNotFound, "channel_not_found", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "priority": body.Priority})
}

// adminClearBlacklist mutates C3: clears a permanent (auth-failure) entry,
// the one kind the failover loop itself can never reinstate (§8 invariant
// 2: "only admin clears auth bans").
func (h *handler) adminClearBlacklist(c *gin.Context) {
	channelID := c.Param("channelID")
	model := c.Param("model")
	if cleared := h.d.BL.ClearPermanent(channelID, model); !cleared {
		writeError(c, http.StatusNotFound, "entry_not_found", "no permanent blacklist entry for that channel/model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "model": model, "cleared": true})
}

// adminLegacyUsage serves the optional SQL mirror's aggregation queries
// (§6.4's "legacy" relational schema) when configured; 404 otherwise since
// there is nothing to query.
func (h *handler) adminLegacyUsage(c *gin.Context) {
	if h.d.Legacy == nil {
		writeError(c, http.StatusNotFound, "legacy_store_disabled", "the optional relational usage mirror is not configured")
		return
	}

	rows, err := h.d.Legacy.Recent(100)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "legacy_query_failed", err.Error())
		return
	}

	channelID := c.Query("channel_id")
	var totalForChannel float64
	if channelID != "" {
		totalForChannel, err = h.d.Legacy.TotalCostByChannel(channelID)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "legacy_query_failed", err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"recent": rows, "channel_id": channelID, "total_cost": totalForChannel})
}

// adminIssueToken mints a short-lived admin JWT from the configured
// static admin_token (middleware.IssueAdminJWT), letting an operator hand
// out a bounded-lifetime credential instead of the permanent one.
func (h *handler) adminIssueToken(c *gin.Context) {
	cfg := h.d.CfgReg.AuthConfig()
	token, err := middleware.IssueAdminJWT(cfg.Admin.AdminToken)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "token_issue_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": 24 * 3600})
}
