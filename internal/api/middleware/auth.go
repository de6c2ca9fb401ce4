package middleware

import (
	"net/http"
	"strings"

	jwtutil "github.com/akkalaj75/hostelhub-v40/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// Auth JWT 인증 미들웨어
// WebSocket은 헤더를 붙일 수 없으므로 token 쿼리 파라미터도 받는다
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set("userId", claims.UserID)
		c.Next()
	}
}

// bearerToken "Bearer <token>" 헤더 또는 token 쿼리
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
