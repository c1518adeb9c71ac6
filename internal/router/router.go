// Package router wires C1-C13 onto a gin.Engine implementing §6.1's HTTP
// ingress surface: the three chat-completion dialects (OpenAI, Anthropic,
// Gemini), model listing, the read-only status surface, and the
// admin-token-protected control surface. Grounded on the teacher's
// router/*.go (relay/main/dashboard/router groupings) and main.go's engine
// assembly, generalized from one ingress dialect to three sharing one
// dispatcher.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/songquanpeng/smart-router-gateway/internal/blacklist"
	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
	"github.com/songquanpeng/smart-router-gateway/internal/legacydb"
	"github.com/songquanpeng/smart-router-gateway/internal/middleware"
	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
	"github.com/songquanpeng/smart-router-gateway/internal/session"
	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

// Deps bundles every component New needs to mount routes; all fields are
// required except Legacy, which is nil when the optional relational mirror
// (§6.4) was not configured.
type Deps struct {
	CfgReg     *config.Registry
	MetaReg    *modelmeta.Registry
	BL         *blacklist.Manager
	Dispatcher *dispatcher.Dispatcher
	Sessions   *session.Manager
	Tracker    *usage.Tracker
	Legacy     *legacydb.Store
	StartedAt  time.Time
}

// New assembles the gateway's gin.Engine: global middleware first
// (RequestID, Recovery, CORS, AccessLog), then the per-dialect chat routes
// and the model listing behind APIKeyAuth, the unauthenticated status reads,
// and the admin-token-gated control surface.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.CORS(), middleware.AccessLog())

	h := &handler{d: d}

	chat := r.Group("/")
	chat.Use(middleware.APIKeyAuth(d.CfgReg, d.Sessions))
	chat.POST("/v1/chat/completions", h.chatCompletions)
	chat.POST("/v1/messages", h.anthropicMessages)
	chat.POST("/v1/models/:modelAction", h.geminiGenerateContent)
	chat.POST("/v1beta/models/:modelAction", h.geminiGenerateContent)
	chat.GET("/v1/models", h.listModels)

	status := r.Group("/status")
	status.GET("/channels", h.statusChannels)
	status.GET("/blacklist", h.statusBlacklist)
	status.GET("/usage", h.statusUsage)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(d.CfgReg))
	admin.GET("/channels", h.adminListChannels)
	admin.POST("/channels/:id/enable", h.adminSetChannelEnabled(true))
	admin.POST("/channels/:id/disable", h.adminSetChannelEnabled(false))
	admin.PUT("/channels/:id/priority", h.adminSetChannelPriority)
	admin.DELETE("/blacklist/:channelID/:model", h.adminClearBlacklist)
	admin.GET("/legacy/usage", h.adminLegacyUsage)
	admin.POST("/token", h.adminIssueToken)
	admin.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type handler struct {
	d Deps
}
