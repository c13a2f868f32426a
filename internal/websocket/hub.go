package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
)

// ClientMessage is a message received from a connected client.
type ClientMessage struct {
	Type string `json:"type"` // ping
}

// Client is one websocket session. A user may hold several.
type Client struct {
	Hub           *Hub
	Conn          *Conn
	UserID        uint
	Role          model.UserRole
	Send          chan []byte
	MessageCount  int       // messages received in the current second
	LastResetTime time.Time // start of the current rate window
	RateMu        sync.Mutex
}

// NewClient builds a client with a buffered send queue.
func NewClient(hub *Hub, conn *Conn, userID uint, role model.UserRole) *Client {
	return &Client{
		Hub:           hub,
		Conn:          conn,
		UserID:        userID,
		Role:          role,
		Send:          make(chan []byte, 256),
		LastResetTime: time.Now(),
	}
}

// Hub tracks connected sessions by user and fans out pushed messages.
type Hub struct {
	clients map[uint][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage targets either one user or every session with one of
// the given roles.
type BroadcastMessage struct {
	UserID  uint
	Roles   []model.UserRole
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 1024),
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			sessions := len(h.clients[client.UserID])
			h.mu.Unlock()
			logger.Info("WebSocket client registered", map[string]interface{}{
				"user_id":        client.UserID,
				"role":           client.Role,
				"total_sessions": sessions,
			})

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientList, ok := h.clients[client.UserID]
	if !ok {
		return
	}

	remaining := make([]*Client, 0, len(clientList))
	found := false
	for _, c := range clientList {
		if c == client {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if !found {
		return
	}

	if len(remaining) == 0 {
		delete(h.clients, client.UserID)
	} else {
		h.clients[client.UserID] = remaining
	}
	close(client.Send)

	logger.Info("WebSocket client unregistered", map[string]interface{}{
		"user_id":            client.UserID,
		"remaining_sessions": len(remaining),
	})
}

func (h *Hub) deliver(message *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets []*Client
	if message.UserID != 0 {
		targets = h.clients[message.UserID]
	} else {
		for _, clientList := range h.clients {
			for _, c := range clientList {
				if hasRole(c.Role, message.Roles) {
					targets = append(targets, c)
				}
			}
		}
	}

	for _, client := range targets {
		select {
		case client.Send <- message.Message:
		default:
			go h.Unregister(client)
			logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
				"user_id": client.UserID,
			})
		}
	}
}

func hasRole(role model.UserRole, roles []model.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// SendToUser queues message for every session of userID. Messages for
// offline users are dropped; the inbox keeps the durable copy.
func (h *Hub) SendToUser(userID uint, message interface{}) error {
	return h.enqueue(&BroadcastMessage{UserID: userID}, message)
}

// SendToRoles queues message for every session whose role is in roles.
func (h *Hub) SendToRoles(roles []model.UserRole, message interface{}) error {
	return h.enqueue(&BroadcastMessage{Roles: roles}, message)
}

func (h *Hub) enqueue(target *BroadcastMessage, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal message", err, nil)
		return err
	}
	target.Message = data

	select {
	case h.broadcast <- target:
	default:
		logger.Warn("Broadcast channel full, message dropped", map[string]interface{}{
			"user_id": target.UserID,
		})
	}
	return nil
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// IsUserOnline reports whether userID has at least one open session.
func (h *Hub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// HandleClientMessage answers pings and enforces the per-client rate limit.
// It reports false once the client exceeds the limit; the session should end.
func (h *Hub) HandleClientMessage(client *Client, message []byte) bool {
	client.RateMu.Lock()
	now := time.Now()
	if now.Sub(client.LastResetTime) >= time.Second {
		client.MessageCount = 0
		client.LastResetTime = now
	}
	client.MessageCount++
	count := client.MessageCount
	client.RateMu.Unlock()

	if count > maxInboundPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"user_id": client.UserID,
			"count":   count,
		})
		return false
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Debug("Ignoring unparseable client message", map[string]interface{}{
			"user_id": client.UserID,
			"error":   err.Error(),
		})
		return true
	}

	if msg.Type == "ping" {
		if err := h.SendToUser(client.UserID, map[string]string{"type": "pong"}); err != nil {
			logger.Warn("Failed to answer ping", map[string]interface{}{
				"user_id": client.UserID,
			})
		}
	}
	return true
}
