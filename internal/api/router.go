package api

import (
	"github.com/akkalaj75/hostelhub-v40/internal/api/handlers"
	"github.com/akkalaj75/hostelhub-v40/internal/api/middleware"
	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/akkalaj75/hostelhub-v40/internal/websocket"
	jwtutil "github.com/akkalaj75/hostelhub-v40/pkg/jwt"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// apiRateLimit 로컬 API 요청 한도 (RateLimiter 윈도우 기준)
const apiRateLimit = 120

// Deps 라우터가 사용하는 서비스 묶음
type Deps struct {
	Sessions *service.SessionService
	Reports  *service.ReportService
	Presence *service.PresenceService
	Hub      *websocket.Hub
	JWT      *jwtutil.JWTManager
	Limiter  ratelimit.Limiter
}

// SetupRouter 로컬 제어 API 라우터 설정
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Handler 초기화
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Presence)
	matchHandler := handlers.NewMatchHandler(deps.Sessions)
	chatHandler := handlers.NewChatHandler(deps.Sessions)
	reportHandler := handlers.NewReportHandler(deps.Reports, deps.Sessions.Context())
	mediaHandler := handlers.NewMediaHandler(deps.Sessions)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(deps.JWT))
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimit(deps.Limiter, apiRateLimit, nil))
	}
	{
		// WebSocket endpoint
		v1.GET("/ws", wsHandler.HandleWebSocket)

		v1.GET("/session", sessionHandler.GetSession)

		// Match routes
		match := v1.Group("/match")
		{
			match.POST("", matchHandler.StartMatch)
			match.POST("/skip", matchHandler.Skip)
			match.POST("/end", matchHandler.End)
		}

		// Chat routes
		chat := v1.Group("/chat")
		{
			chat.POST("/messages", chatHandler.SendMessage)
			chat.GET("/transcript", chatHandler.Transcript)
		}

		// Report / block routes
		v1.POST("/reports", reportHandler.CreateReport)
		blocks := v1.Group("/blocks")
		{
			blocks.GET("", reportHandler.ListBlocks)
			blocks.POST("", reportHandler.Block)
			blocks.DELETE("/:userId", reportHandler.Unblock)
		}

		// Media routes
		media := v1.Group("/media")
		{
			media.POST("/audio/toggle", mediaHandler.ToggleAudio)
			media.POST("/video/toggle", mediaHandler.ToggleVideo)
		}
	}

	return router
}
