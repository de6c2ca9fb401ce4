package websocket

import (
	"context"
	"sync"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"go.uber.org/zap"
)

// stickyEvents 새로 연결된 UI에 마지막 값을 바로 보내는 이벤트
var stickyEvents = map[models.EventType]bool{
	models.EventState:        true,
	models.EventLiveUsers:    true,
	models.EventStrangerInfo: true,
}

// Hub WebSocket 연결 관리 및 세션 이벤트 브로드캐스트
//
// models.Notifier를 구현하므로 서비스에 그대로 주입된다.
type Hub struct {
	clients map[*Client]struct{}
	last    map[models.EventType]models.Event
	mu      sync.RWMutex

	// 브로드캐스트 채널
	broadcast chan models.Event

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		last:       make(map[models.EventType]models.Event),
		broadcast:  make(chan models.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run ctx가 끝날 때까지 Hub 실행, 종료 시 모든 연결을 닫는다
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.broadcast:
			h.broadcastEvent(ev)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// registerClient 클라이언트 등록 후 마지막 상태 재전송
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	for _, ev := range h.last {
		select {
		case client.send <- ev:
		default:
		}
	}
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient 클라이언트 해제
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))
	}
}

// broadcastEvent 모든 UI에 이벤트 전송
func (h *Hub) broadcastEvent(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if stickyEvents[ev.Type] {
		h.last[ev.Type] = ev
	}
	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			// 채널이 가득 찬 경우 연결 해제
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("userId", client.userID))
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Notify models.Notifier 구현 (버퍼가 가득 차면 이벤트를 버린다)
func (h *Hub) Notify(ev models.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("Event dropped, hub busy", zap.String("type", string(ev.Type)))
	}
}

// ClientCount 연결된 UI 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
