package router

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/songquanpeng/smart-router-gateway/internal/dispatcher"
)

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	})
}

// dispatchErrorStatus maps a dispatcher-level failure onto the §6.1 status
// codes for /v1/chat/completions and the other two dialects (they share
// the same dispatcher so the same mapping applies). tagSelector is true
// when the client's model string used the "tag:" prefix, since that is the
// one case §6.1 asks for 404 rather than 503.
func dispatchErrorStatus(err error, tagSelector bool) (int, string) {
	switch {
	case errorsIsNoChannels(err):
		if tagSelector {
			return http.StatusNotFound, "tag_not_found"
		}
		return http.StatusServiceUnavailable, "no_channels"
	case errorsIsAllFailed(err):
		return http.StatusServiceUnavailable, "all_channels_failed"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

func errorsIsNoChannels(err error) bool {
	return errors.Is(err, dispatcher.ErrNoChannels)
}

func errorsIsAllFailed(err error) bool {
	return errors.Is(err, dispatcher.ErrAllChannelsFailed)
}

func readBody(c *gin.Context) ([]byte, error) {
	defer c.Request.Body.Close()
	return io.ReadAll(c.Request.Body)
}
