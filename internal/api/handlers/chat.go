package handlers

import (
	"errors"
	"net/http"

	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/gin-gonic/gin"
)

// SendMessageRequest 채팅 전송 요청
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type ChatHandler struct {
	sessions *service.SessionService
}

func NewChatHandler(sessions *service.SessionService) *ChatHandler {
	return &ChatHandler{
		sessions: sessions,
	}
}

// SendMessage 현재 상대에게 메시지 전송
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	line, err := h.sessions.SendMessage(c.Request.Context(), req.Text)
	if err != nil {
		var blocked *service.BlockedError
		switch {
		case errors.As(err, &blocked):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  blocked.UserMessage(),
				"reason": blocked.Reason,
			})
		case errors.Is(err, service.ErrNotConnected):
			c.JSON(http.StatusConflict, gin.H{"error": "Not connected to a stranger"})
		case errors.Is(err, service.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "You're sending messages too fast"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": line,
	})
}

// Transcript 현재 세션 대화 기록 (format=text이면 저장용 텍스트)
func (h *ChatHandler) Transcript(c *gin.Context) {
	lines := h.sessions.Context().Transcript()

	if c.Query("format") == "text" {
		c.Header("Content-Disposition", `attachment; filename="chat.txt"`)
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		if err := service.WriteTranscript(c.Writer, lines); err != nil {
			_ = c.Error(err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lines": lines,
		"total": len(lines),
	})
}
