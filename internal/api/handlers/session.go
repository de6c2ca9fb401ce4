package handlers

import (
	"net/http"

	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/akkalaj75/hostelhub-v40/pkg/logger"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *service.SessionService
	presence *service.PresenceService
}

func NewSessionHandler(sessions *service.SessionService, presence *service.PresenceService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		presence: presence,
	}
}

// GetSession 현재 매칭 상태와 접속자 수
func (h *SessionHandler) GetSession(c *gin.Context) {
	resp := gin.H{
		"session": h.sessions.Context().Snapshot(),
	}

	if h.presence != nil {
		live, err := h.presence.LiveCount(c.Request.Context())
		if err != nil {
			logger.Warn("Failed to count live users", "error", err)
		} else {
			resp["liveUsers"] = live
		}
	}

	c.JSON(http.StatusOK, resp)
}
