package handlers

import (
	"errors"
	"net/http"

	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	sessions *service.SessionService
}

func NewMediaHandler(sessions *service.SessionService) *MediaHandler {
	return &MediaHandler{
		sessions: sessions,
	}
}

// ToggleAudio 마이크 송신 켜기/끄기
func (h *MediaHandler) ToggleAudio(c *gin.Context) {
	enabled, err := h.sessions.ToggleAudio()
	writeToggle(c, "audio", enabled, err)
}

// ToggleVideo 카메라 송신 켜기/끄기
func (h *MediaHandler) ToggleVideo(c *gin.Context) {
	enabled, err := h.sessions.ToggleVideo()
	writeToggle(c, "video", enabled, err)
}

func writeToggle(c *gin.Context, kind string, enabled bool, err error) {
	if err != nil {
		if errors.Is(err, service.ErrNoMedia) {
			c.JSON(http.StatusConflict, gin.H{"error": "No " + kind + " track in this session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle " + kind})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		kind: enabled,
	})
}
