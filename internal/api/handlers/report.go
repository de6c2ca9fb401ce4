package handlers

import (
	"errors"
	"net/http"

	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/gin-gonic/gin"
)

// CreateReportRequest 신고 요청
type CreateReportRequest struct {
	Reason  string `json:"reason" binding:"required"`
	Details string `json:"details"`
}

// BlockRequest 차단 요청
type BlockRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type ReportHandler struct {
	reports *service.ReportService
	sc      *session.Context
}

func NewReportHandler(reports *service.ReportService, sc *session.Context) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		sc:      sc,
	}
}

// CreateReport 현재 상대 신고
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	report, err := h.reports.Report(c.Request.Context(), h.sc, req.Reason, req.Details)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveMatch):
			c.JSON(http.StatusConflict, gin.H{"error": "No active match to report"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit report"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"report": report,
	})
}

// ListBlocks 차단 목록 조회
func (h *ReportHandler) ListBlocks(c *gin.Context) {
	blocked, err := h.reports.Blocked(c.Request.Context(), h.sc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get blocked users",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"blocked": blocked,
		"total":   len(blocked),
	})
}

// Block 사용자 차단
func (h *ReportHandler) Block(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.reports.Block(c.Request.Context(), h.sc, req.UserID); err != nil {
		writeBlockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User blocked",
	})
}

// Unblock 차단 해제
func (h *ReportHandler) Unblock(c *gin.Context) {
	if err := h.reports.Unblock(c.Request.Context(), h.sc, c.Param("userId")); err != nil {
		writeBlockError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User unblocked",
	})
}

func writeBlockError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrSelfTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blocked users"})
	}
}
