package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/util"
	"aibot/backend/pkg/logger"
	"aibot/backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 256
)

// Client represents a connected user over WebSocket
type Client struct {
	Hub    *WSHub
	Conn   *websocket.Conn
	UserID string
	Send   chan []byte
}

// WSHub tracks WebSocket connections per user and bridges Redis
// notifications published by NotificationService onto them.
type WSHub struct {
	clients    map[*Client]bool
	userConns  map[string][]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	redis    *redis.Client
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWSHub(redisClient *redis.Client, allowedOrigins []string) *WSHub {
	h := &WSHub{
		clients:    make(map[*Client]bool),
		userConns:  make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		redis:      redisClient,
		log:        logger.GetLogger().Component("ws_hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows same-host requests, requests without an Origin
// header and the configured origins. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return strings.HasSuffix(origin, "://"+r.Host)
	}
}

// Run owns the connection maps until ctx is done
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.userConns[client.UserID] = append(h.userConns[client.UserID], client)
			h.mu.Unlock()
			h.log.Infof("WS Client registered: UserID=%s", client.UserID)

		case client := <-h.unregister:
			h.remove(client)
			h.log.Infof("WS Client unregistered: UserID=%s", client.UserID)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
			}
			h.clients = make(map[*Client]bool)
			h.userConns = make(map[string][]*Client)
			h.mu.Unlock()
			return
		}
	}
}

func (h *WSHub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)

	conns := h.userConns[client.UserID]
	for i, c := range conns {
		if c == client {
			h.userConns[client.UserID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.userConns[client.UserID]) == 0 {
		delete(h.userConns, client.UserID)
	}
}

// ConnectedUsers returns how many distinct users hold a connection
func (h *WSHub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns)
}

// Broadcast sends a raw message to every connected client
func (h *WSHub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// slow client; its write pump will catch up or time out
		}
	}
}

// SendToUser sends a raw message to all active connections for a specific user
func (h *WSHub) SendToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userConns[userID] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// StartPubSubListener bridges the broadcast channel and every user channel to WS
func (h *WSHub) StartPubSubListener(ctx context.Context) {
	broadcastKey := redis.GetWSBroadcastKey()
	userPrefix := redis.GetWSUserKey("")

	pubsub := h.redis.PSubscribe(ctx, broadcastKey, redis.GetWSUserKey("*"))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.route(msg.Channel, []byte(msg.Payload), broadcastKey, userPrefix)
		}
	}
}

func (h *WSHub) route(channel string, payload []byte, broadcastKey, userPrefix string) {
	// only forward well-formed envelopes
	var wsMsg model.WSMessage
	if err := json.Unmarshal(payload, &wsMsg); err != nil {
		h.log.Warnf("Dropping malformed WS payload on %s: %v", channel, err)
		return
	}

	switch {
	case channel == broadcastKey:
		h.Broadcast(payload)
	case strings.HasPrefix(channel, userPrefix) && len(channel) > len(userPrefix):
		h.SendToUser(channel[len(userPrefix):], payload)
	}
}

// ReadPump drains the client so control frames get processed
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Errorf("WS error: %v", err)
			}
			return
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS handles WebSocket upgrade requests
func (h *WSHub) ServeWS(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		util.SendError(c, util.ErrUnauthorized("User not authenticated"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		Hub:    h,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, wsSendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
