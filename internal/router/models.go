package router

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/modelmeta"
)

// modelEntry is one row of the GET /v1/models union (§6.1).
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Kind    string `json:"smart_ai_router_kind"` // "concrete" | "tag" | "auto"
	OwnedBy string `json:"owned_by,omitempty"`
}

// listModels returns every concrete model a channel declares plus every
// virtual selector the client could address: "tag:<t>" for each tag
// discoverable across the channel pool, and "auto:<strategy>" for each
// configured scoring strategy (§4.6, §6.1).
func (h *handler) listModels(c *gin.Context) {
	channels := h.d.CfgReg.EnabledChannels()

	seenModel := make(map[string]bool)
	seenTag := make(map[string]bool)
	var entries []modelEntry

	for _, ch := range channels {
		if ch.ModelName != "" && !seenModel[ch.ModelName] {
			seenModel[ch.ModelName] = true
			entries = append(entries, modelEntry{ID: ch.ModelName, Object: "model", Kind: "concrete", OwnedBy: ch.Provider})
		}
		tags := modelmeta.DeriveTags(ch.ModelName)
		for _, t := range ch.Tags {
			tags[t] = true
		}
		for t := range tags {
			if !seenTag[t] {
				seenTag[t] = true
				entries = append(entries, modelEntry{ID: "tag:" + t, Object: "model", Kind: "tag"})
			}
		}
	}

	for _, strategy := range h.d.CfgReg.StrategyNames() {
		entries = append(entries, modelEntry{ID: "auto:" + strategy, Object: "model", Kind: "auto"})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": entries})
}
