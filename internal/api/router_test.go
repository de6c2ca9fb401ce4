package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/service"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/akkalaj75/hostelhub-v40/internal/websocket"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
	jwtutil "github.com/akkalaj75/hostelhub-v40/pkg/jwt"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testAPI struct {
	router   *gin.Engine
	token    string
	store    *docstore.MemoryStore
	sessions *service.SessionService
}

func newTestAPI(t *testing.T, limiter ratelimit.Limiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.UserID = "alice"
	logger := zap.NewNop()
	store := docstore.NewMemoryStore(nil)
	waiting := repository.NewWaitingRepository(store)
	calls := repository.NewCallRepository(store)

	chatLimiter := ratelimit.NewRateLimiter(int64(cfg.ChatRateLimit), cfg.ChatRateWindow, nil)
	t.Cleanup(chatLimiter.Stop)

	hub := websocket.NewHub(logger)
	sc := session.NewContext(cfg.UserID)
	engine := service.NewMatchmakingService(
		service.NewQueueService(waiting, cfg.MaxInterests, nil, logger),
		waiting, calls, service.MatchConfig{Timeout: time.Second}, nil, logger)
	sessions := service.NewSessionService(
		sc, engine,
		service.NewChatService(calls, chatLimiter, cfg.MaxMessageLength, nil, logger),
		session.NewTeardown(waiting, calls, cfg.BatchDeleteSize, logger),
		calls, nil, nil,
		ratelimit.NewCooldown(cfg.SkipCooldown, nil),
		hub,
		service.SessionConfig{MaxInterests: cfg.MaxInterests},
		nil, logger,
	)
	presence := service.NewPresenceService(repository.NewPresenceRepository(store), waiting, cfg.UserID,
		service.PresenceConfig{}, nil, nil, logger)
	reports := service.NewReportService(repository.NewUserRepository(store), repository.NewReportRepository(store), nil, logger)

	jwtManager := jwtutil.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.Generate(cfg.UserID)
	require.NoError(t, err)

	router := SetupRouter(cfg, Deps{
		Sessions: sessions,
		Reports:  reports,
		Presence: presence,
		Hub:      hub,
		JWT:      jwtManager,
		Limiter:  limiter,
	})
	return &testAPI{router: router, token: token, store: store, sessions: sessions}
}

func (a *testAPI) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_Auth(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/session", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/session?token="+api.token, nil)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Session(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/api/v1/session", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	sess := body["session"].(map[string]any)
	assert.Equal(t, "alice", sess["userId"])
	assert.Equal(t, "idle", sess["state"])
	assert.EqualValues(t, 0, body["liveUsers"])
}

func TestRouter_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"match without body", http.MethodPost, "/api/v1/match", nil, http.StatusBadRequest},
		{"bad comm type", http.MethodPost, "/api/v1/match", map[string]any{"gender": "female", "commType": "fax"}, http.StatusBadRequest},
		{"too many interests", http.MethodPost, "/api/v1/match", map[string]any{
			"gender": "female", "commType": "chat", "interests": []string{"aa", "bb", "cc", "dd", "ee", "ff"},
		}, http.StatusBadRequest},
		{"skip while idle", http.MethodPost, "/api/v1/match/skip", nil, http.StatusConflict},
		{"chat while idle", http.MethodPost, "/api/v1/chat/messages", map[string]string{"text": "hi"}, http.StatusConflict},
		{"report while idle", http.MethodPost, "/api/v1/reports", map[string]string{"reason": "spam"}, http.StatusConflict},
		{"toggle audio without media", http.MethodPost, "/api/v1/media/audio/toggle", nil, http.StatusConflict},
		{"toggle video without media", http.MethodPost, "/api/v1/media/video/toggle", nil, http.StatusConflict},
		{"end while idle", http.MethodPost, "/api/v1/match/end", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(tt.method, tt.path, tt.body, true)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRouter_Blocks(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodPost, "/api/v1/blocks", map[string]string{"userId": "troll"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/api/v1/blocks", map[string]string{"userId": "alice"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/blocks", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"troll"}, decode(t, w)["blocked"])

	w = api.do(http.MethodDelete, "/api/v1/blocks/troll", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/blocks", nil, true)
	assert.EqualValues(t, 0, decode(t, w)["total"])
}

func TestRouter_Transcript(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/api/v1/chat/transcript", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["total"])

	w = api.do(http.MethodGet, "/api/v1/chat/transcript?format=text", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, w.Body.String())
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(2, time.Minute, nil)
	t.Cleanup(limiter.Stop)
	api := newTestAPI(t, limiter)

	for i := 0; i < 2; i++ {
		w := api.do(http.MethodGet, "/api/v1/session", nil, true)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := api.do(http.MethodGet, "/api/v1/session", nil, true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRouter_EndFinishesAfterClientDisconnect(t *testing.T) {
	api := newTestAPI(t, nil)
	ctx := context.Background()
	calls := repository.NewCallRepository(api.store)

	require.NoError(t, api.store.Set(ctx, "calls/alice_bob", map[string]any{"status": "connected"}))
	_, err := calls.AddMessage(ctx, "alice_bob", models.ChatMessage{Text: "hi", From: "bob", Timestamp: 1})
	require.NoError(t, err)
	api.sessions.Context().SetMatch(&models.Match{CallID: "alice_bob", RemoteUserID: "bob"})

	reqCtx, cancel := context.WithCancel(ctx)
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match/end", nil).WithContext(reqCtx)
	req.Header.Set("Authorization", "Bearer "+api.token)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	call, err := calls.Get(ctx, "alice_bob")
	require.NoError(t, err)
	assert.Nil(t, call)
	msgs, err := api.store.Query(ctx, docstore.Query{Collection: "calls/alice_bob/messages"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
