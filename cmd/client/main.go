package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/api"
	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/rtc"
	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/akkalaj75/hostelhub-v40/internal/websocket"
	"github.com/akkalaj75/hostelhub-v40/pkg/distributed"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
	jwtutil "github.com/akkalaj75/hostelhub-v40/pkg/jwt"
	"github.com/akkalaj75/hostelhub-v40/pkg/logger"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.help {
		fmt.Fprintln(os.Stderr, "hostelhub-client: anonymous stranger matching client")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
		return nil
	}
	if opts.configFile != "" {
		os.Setenv("CONFIG_FILE", opts.configFile)
	}

	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting HostelHub client",
		"userId", cfg.UserID,
		"store", cfg.StoreBackend,
		"env", cfg.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// 문서 저장소 연결
	var (
		store       docstore.Store
		redisClient *redis.Client
	)
	switch cfg.StoreBackend {
	case "redis":
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		store = docstore.NewRedisStore(redisClient, cfg.StorePrefix, logger.Named("docstore"))
		logger.Info("Redis connection established", "url", cfg.RedisURL)
	default:
		store = docstore.NewMemoryStore(clock)
		logger.Warn("Using in-process store, only clients in this process can match")
	}
	defer store.Close()

	// Repository 초기화
	waitingRepo := repository.NewWaitingRepository(store)
	callRepo := repository.NewCallRepository(store)
	userRepo := repository.NewUserRepository(store)
	reportRepo := repository.NewReportRepository(store)
	presenceRepo := repository.NewPresenceRepository(store)

	// 채팅 도배 방지: redis가 있으면 프로세스 간 공유
	var chatLimiter ratelimit.Limiter
	var jobLocker gocron.Locker
	if redisClient != nil {
		chatLimiter = ratelimit.NewRedisWindowLimiter(redisClient, cfg.StorePrefix+"ratelimit:chat:", cfg.ChatRateLimit, cfg.ChatRateWindow)
		lockManager := distributed.NewRedisLockManager(redisClient, cfg.StorePrefix+"lock:")
		jobLocker = distributed.NewJobLocker(lockManager, cfg.PresenceInterval)
	} else {
		memLimiter := ratelimit.NewRateLimiter(int64(cfg.ChatRateLimit), cfg.ChatRateWindow, clock)
		defer memLimiter.Stop()
		chatLimiter = memLimiter
	}
	apiLimiter := ratelimit.NewRateLimiter(120, time.Minute, clock)
	defer apiLimiter.Stop()

	// WebSocket Hub 시작
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(logger.Named("websocket"))
	go hub.Run(hubCtx)

	// Service 초기화
	sc := session.NewContext(cfg.UserID)
	queueService := service.NewQueueService(waitingRepo, cfg.MaxInterests, clock, logger.Named("queue"))
	matchmakingService := service.NewMatchmakingService(queueService, waitingRepo, callRepo, service.MatchConfig{
		Timeout:        cfg.MatchTimeout,
		MaxAttempts:    cfg.MaxMatchAttempts,
		CandidateLimit: cfg.CandidateLimit,
		CleanupDelay:   cfg.ClaimCleanupDelay,
	}, clock, logger.Named("matchmaking"))
	chatService := service.NewChatService(callRepo, chatLimiter, cfg.MaxMessageLength, clock, logger.Named("chat"))
	teardown := session.NewTeardown(waitingRepo, callRepo, cfg.BatchDeleteSize, logger.Named("teardown"))
	reportService := service.NewReportService(userRepo, reportRepo, clock, logger.Named("report"))
	presenceService := service.NewPresenceService(presenceRepo, waitingRepo, cfg.UserID, service.PresenceConfig{
		Interval: cfg.PresenceInterval,
		StaleAge: cfg.StaleEntryAge,
	}, jobLocker, clock, logger.Named("presence"))

	sessionService := service.NewSessionService(
		sc,
		matchmakingService,
		chatService,
		teardown,
		callRepo,
		rtc.NewSyntheticSource(clock, logger.Named("media")),
		rtc.NewPionFactory(cfg.ICEServers),
		ratelimit.NewCooldown(cfg.SkipCooldown, clock),
		hub,
		service.SessionConfig{
			MaxInterests:      cfg.MaxInterests,
			ConnectionTimeout: cfg.ConnectionTimeout,
			ReconnectDelay:    cfg.ReconnectDelay,
			MaxReconnects:     cfg.MaxMatchRetries,
			MediaAttempts:     cfg.MediaAttempts,
			StatsInterval:     cfg.StatsInterval,
		},
		clock,
		logger.Named("session"),
	)

	if err := reportService.LoadBlocked(ctx, sc); err != nil {
		logger.Warn("Failed to load blocked users", "error", err)
	}
	if err := presenceService.Start(ctx); err != nil {
		return err
	}
	if err := presenceService.WatchLive(ctx, hub); err != nil {
		logger.Warn("Failed to watch live users", "error", err)
	}

	// 로컬 제어 API 토큰
	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	token, err := jwtManager.Generate(cfg.UserID)
	if err != nil {
		return fmt.Errorf("failed to issue control token: %w", err)
	}

	router := api.SetupRouter(cfg, api.Deps{
		Sessions: sessionService,
		Reports:  reportService,
		Presence: presenceService,
		Hub:      hub,
		JWT:      jwtManager,
		Limiter:  apiLimiter,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Control API listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	fmt.Printf("Control API: http://%s/api/v1\n", cfg.ListenAddr)
	fmt.Printf("Token: %s\n", token)

	if opts.find {
		if err := sessionService.StartSearch(opts.preferences()); err != nil {
			logger.Error("Failed to start search", "error", err)
		}
	}

	// Graceful shutdown 대기
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("Control API failed", "error", err)
	}

	logger.Info("Shutting down client...")

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionService.End(shutdownCtx)
	if err := presenceService.Stop(shutdownCtx); err != nil {
		logger.Warn("Presence shutdown incomplete", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Client exited")
	return nil
}

// connectRedis URL로 연결 후 PING 확인
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
