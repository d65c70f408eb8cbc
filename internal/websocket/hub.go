package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
)

// AllSites is the room receiving every site's events.
const AllSites = "*"

// ClientMessage 클라이언트로부터 받은 메시지
type ClientMessage struct {
	Type string `json:"type"` // subscribe, unsubscribe
	Site string `json:"site"`
}

// Client WebSocket 클라이언트
type Client struct {
	Hub           *Hub
	Conn          *Conn
	Operator      string
	Send          chan []byte
	Sites         map[string]bool // 구독 중인 사이트
	mu            sync.RWMutex
	MessageCount  int       // 최근 1초간 받은 메시지 수
	LastResetTime time.Time // 마지막 카운터 리셋 시간
	RateMu        sync.Mutex
}

// NewClient creates a client subscribed to the given sites.
func NewClient(hub *Hub, conn *Conn, operator string, sites ...string) *Client {
	c := &Client{
		Hub:      hub,
		Conn:     conn,
		Operator: operator,
		Send:     make(chan []byte, 256),
		Sites:    make(map[string]bool),
	}
	for _, s := range sites {
		c.Sites[s] = true
	}
	return c
}

// Hub fans scrape run events out to subscribed WebSocket clients. It
// implements scraper.Observer.
type Hub struct {
	clients map[*Client]bool

	// 사이트별 구독 클라이언트
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage 브로드캐스트 메시지
type BroadcastMessage struct {
	Site    string
	Message []byte
}

var _ scraper.Observer = (*Hub)(nil)

// NewHub Hub 생성
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 1024),
	}
}

// Run Hub 실행 (ctx 종료 시 반환)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			client.mu.RLock()
			for site := range client.Sites {
				h.join(client, site)
			}
			client.mu.RUnlock()
			total := len(h.clients)
			h.mu.Unlock()
			logger.Info("WebSocket client registered", map[string]interface{}{
				"operator": client.Operator,
				"clients":  total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.remove(client)
			}
			remaining := len(h.clients)
			h.mu.Unlock()
			logger.Info("WebSocket client unregistered", map[string]interface{}{
				"operator": client.Operator,
				"clients":  remaining,
			})

		case message := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Client, 0)
			for client := range h.rooms[message.Site] {
				targets = append(targets, client)
			}
			for client := range h.rooms[AllSites] {
				if !h.rooms[message.Site][client] {
					targets = append(targets, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range targets {
				select {
				case client.Send <- message.Message:
				default:
					// Send 채널이 막혀있음 - 비동기로 정리
					go h.Unregister(client)
					logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
						"operator": client.Operator,
					})
				}
			}
		}
	}
}

// join requires h.mu held.
func (h *Hub) join(client *Client, site string) {
	if _, ok := h.rooms[site]; !ok {
		h.rooms[site] = make(map[*Client]bool)
	}
	h.rooms[site][client] = true
}

// remove requires h.mu held.
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	for site, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, site)
		}
	}
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.remove(client)
	}
}

// Subscribe 사이트 구독 추가
func (h *Hub) Subscribe(client *Client, site string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	client.mu.Lock()
	client.Sites[site] = true
	client.mu.Unlock()
	h.join(client, site)
}

// Unsubscribe 사이트 구독 해제
func (h *Hub) Unsubscribe(client *Client, site string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.mu.Lock()
	delete(client.Sites, site)
	client.mu.Unlock()
	if members, ok := h.rooms[site]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, site)
		}
	}
}

// OnEvent queues a run event for the site's subscribers. It never blocks the
// scrape run: events are dropped when the hub is saturated.
func (h *Hub) OnEvent(event scraper.RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal run event", err, nil)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{Site: event.Site, Message: data}:
	default:
		logger.Warn("Broadcast channel full, event dropped", map[string]interface{}{
			"site": event.Site,
			"type": event.Type,
		})
	}
}

// Register 클라이언트 등록
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 클라이언트 등록 해제
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribers 사이트 구독자 수 (AllSites 구독자 제외)
func (h *Hub) Subscribers(site string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[site])
}

// HandleClientMessage 클라이언트 메시지 처리
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	// Rate limiting 체크
	client.RateMu.Lock()
	now := time.Now()
	if now.Sub(client.LastResetTime) >= time.Second {
		client.MessageCount = 0
		client.LastResetTime = now
	}
	client.MessageCount++
	count := client.MessageCount
	client.RateMu.Unlock()

	if count > maxMessagesPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"operator": client.Operator,
			"count":    count,
		})
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("Failed to parse client message", map[string]interface{}{
			"operator": client.Operator,
			"error":    err.Error(),
		})
		return
	}
	if msg.Site == "" {
		return
	}

	switch msg.Type {
	case "subscribe":
		h.Subscribe(client, msg.Site)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Site)
	default:
		logger.Debug("Unknown client message type", map[string]interface{}{
			"operator": client.Operator,
			"type":     msg.Type,
		})
	}
}
