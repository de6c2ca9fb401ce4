package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/gin-gonic/gin"
)

// FindMatchRequest 매칭 시작 요청
type FindMatchRequest struct {
	Gender    string          `json:"gender" binding:"required"`
	College   string          `json:"college"`
	CommType  models.CommType `json:"commType" binding:"required"`
	Interests []string        `json:"interests"`
}

type MatchHandler struct {
	sessions *service.SessionService
}

func NewMatchHandler(sessions *service.SessionService) *MatchHandler {
	return &MatchHandler{
		sessions: sessions,
	}
}

// StartMatch 검색 시작 (진행 상황과 결과는 WebSocket 이벤트로 전달)
func (h *MatchHandler) StartMatch(c *gin.Context) {
	var req FindMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	err := h.sessions.StartSearch(models.Preferences{
		Gender:    req.Gender,
		College:   req.College,
		CommType:  req.CommType,
		Interests: req.Interests,
	})
	if err != nil {
		writePreferenceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Finding match...",
	})
}

// Skip 현재 상대를 건너뛰고 다시 검색
func (h *MatchHandler) Skip(c *gin.Context) {
	// 요청이 끊겨도 정리는 끝까지 진행
	if err := h.sessions.Skip(context.WithoutCancel(c.Request.Context())); err != nil {
		writeSkipError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Finding match...",
	})
}

// End 검색이나 세션 종료
func (h *MatchHandler) End(c *gin.Context) {
	h.sessions.End(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, gin.H{
		"message": "Session ended",
	})
}

func writeSkipError(c *gin.Context, err error) {
	var cooldown *service.CooldownError
	switch {
	case errors.Is(err, service.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "Not connected to a stranger"})
	case errors.As(err, &cooldown):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(cooldown.Wait.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":           err.Error(),
			"cooldownSeconds": cooldown.Interval.Seconds(),
		})
	default:
		writePreferenceError(c, err)
	}
}

func writePreferenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCommType),
		errors.Is(err, service.ErrTooManyInterests),
		errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start search"})
	}
}
