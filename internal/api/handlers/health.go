package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck 로컬 API 동작 확인
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "hostelhub-client",
	})
}
