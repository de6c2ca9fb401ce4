package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWriteSkipError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantCode   int
		retryAfter string
	}{
		{"not connected", service.ErrNotConnected, http.StatusConflict, ""},
		{"cooldown", &service.CooldownError{Wait: 1200 * time.Millisecond, Interval: 2 * time.Second}, http.StatusTooManyRequests, "2"},
		{"missing preferences", fmt.Errorf("%w: no preferences", service.ErrInvalidInput), http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			writeSkipError(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			if tt.retryAfter != "" {
				assert.Contains(t, w.Body.String(), `"cooldownSeconds":2`)
			}
		})
	}
}
