package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/pose"
	"YOGA_TRAINER/posecoach/internal/services"
	"YOGA_TRAINER/posecoach/internal/session"
)

// Inbound message types.
const (
	MsgStartSession = "START_SESSION"
	MsgStopSession  = "STOP_SESSION"
	MsgFrame        = "FRAME"
	MsgUnload       = "UNLOAD"
	MsgBenefits     = "BENEFITS"
	MsgPing         = "PING"
)

const (
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Language string `json:"language"`
}

type framePayload struct {
	Image     string    `json:"image"`
	Landmarks []float64 `json:"landmarks"`
	Timestamp int64     `json:"timestamp"`
}

type benefitsPayload struct {
	PoseName string `json:"pose_name"`
	Language string `json:"language"`
}

// HubAssistant is the part of the assist backend the hub calls directly.
type HubAssistant interface {
	SpeakWelcome(ctx context.Context, language string) error
	Benefits(ctx context.Context, label, traditionalName, language string) (models.PoseBenefits, error)
}

// SessionFactory builds the controller for one connection. events
// receives everything the controller reports.
type SessionFactory func(userID int, events session.EventSink) *session.Controller

type HubConfig struct {
	RequireAuth    bool
	Language       string
	RequestTimeout time.Duration
	MaxMessageSize int64
	AllowedOrigin  string
}

// SessionHub owns the websocket connections; each connection drives its
// own session controller.
type SessionHub struct {
	cfg        HubConfig
	newSession SessionFactory
	auth       *AuthSessions
	assistant  HubAssistant
	metrics    *services.Metrics
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	hub      *SessionHub
	conn     *websocket.Conn
	clientID string
	userID   int
	authed   bool
	ctrl     *session.Controller
	send     chan WebSocketMessage
	done     chan struct{}
	once     sync.Once
}

func NewSessionHub(cfg HubConfig, factory SessionFactory, auth *AuthSessions, assistant HubAssistant, metrics *services.Metrics) *SessionHub {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 10 << 20
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if metrics == nil {
		metrics = services.GetMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &SessionHub{
		cfg:        cfg,
		newSession: factory,
		auth:       auth,
		assistant:  assistant,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		clients:    make(map[string]*wsClient),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *SessionHub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.cfg.AllowedOrigin
}

func (h *SessionHub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *SessionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		h.metrics.IncrementWebSocketErrors()
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = "client-" + uuid.NewString()
	}
	userID, authed := h.auth.UserID(r)

	c := &wsClient{
		hub:      h,
		conn:     conn,
		clientID: clientID,
		userID:   userID,
		authed:   authed,
		send:     make(chan WebSocketMessage, sendBuffer),
		done:     make(chan struct{}),
	}
	c.ctrl = h.newSession(userID, c)

	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client id in use"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	log.Printf("WebSocket client connected: %s (user %d)", clientID, userID)

	go c.writePump()

	c.Emit("WELCOME", map[string]interface{}{
		"message":       "Connected to pose session server",
		"version":       "1.0",
		"authenticated": authed,
	})
	if h.assistant != nil {
		go func() {
			ctx, cancel := context.WithTimeout(h.ctx, h.cfg.RequestTimeout)
			defer cancel()
			if err := h.assistant.SpeakWelcome(ctx, h.cfg.Language); err != nil {
				log.Printf("Welcome message failed: %v", err)
			}
		}()
	}

	c.readPump()
	c.close()
}

func (h *SessionHub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.clients[c.clientID]; taken {
		return false
	}
	h.clients[c.clientID] = c
	h.metrics.IncrementWebSocketConnections()
	h.metrics.SetActiveClients(len(h.clients))
	return true
}

func (h *SessionHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.clientID] == c {
		delete(h.clients, c.clientID)
		h.metrics.DecrementWebSocketConnections()
		h.metrics.SetActiveClients(len(h.clients))
	}
}

// Close stops every live session, flushing holds in progress, and closes
// all connections.
func (h *SessionHub) Close(ctx context.Context) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.ctrl.Active() {
			if _, err := c.ctrl.Stop(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
				log.Printf("Stopping session of %s: %v", c.clientID, err)
			}
		}
		c.conn.Close()
		log.Printf("Closed connection for client: %s", c.clientID)
	}
	h.cancel()
}

// Emit implements session.EventSink. It never blocks: a full buffer drops
// the message.
func (c *wsClient) Emit(eventType string, payload interface{}) {
	msg := WebSocketMessage{
		Type:      eventType,
		Payload:   payload,
		ClientID:  c.clientID,
		Timestamp: time.Now().Unix(),
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.hub.metrics.IncrementWebSocketErrors()
		log.Printf("Dropping %s for %s: send buffer full", eventType, c.clientID)
	}
}

func (c *wsClient) emitError(msg string) {
	c.Emit("ERROR", map[string]string{"error": msg})
}

// close unloads a session left running, as a closed page would.
func (c *wsClient) close() {
	c.once.Do(func() {
		if c.ctrl.Active() {
			c.ctrl.Unload()
		}
		close(c.done)
		c.hub.unregister(c)
		c.conn.Close()
		log.Printf("WebSocket client disconnected: %s", c.clientID)
	})
}

func (c *wsClient) readPump() {
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", c.clientID, err)
				c.hub.metrics.IncrementWebSocketErrors()
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.metrics.IncrementWebSocketMessages()

		if done := c.handle(msg); done {
			return
		}
	}
}

// handle processes one inbound message and reports whether the
// connection should be closed.
func (c *wsClient) handle(msg inboundMessage) bool {
	switch msg.Type {
	case MsgPing:
		c.Emit("PONG", nil)

	case MsgStartSession:
		if c.hub.cfg.RequireAuth && !c.authed {
			c.emitError("login required")
			return false
		}
		var p startPayload
		if len(msg.Payload) > 0 {
			json.Unmarshal(msg.Payload, &p)
		}
		if _, err := c.ctrl.Start(c.hub.ctx, c.userID, p.Language); err != nil {
			c.emitError(err.Error())
		}

	case MsgFrame:
		frame, err := decodeFrame(msg.Payload)
		if err != nil {
			c.hub.metrics.IncrementWebSocketErrors()
			c.emitError(err.Error())
			return false
		}
		c.ctrl.PushFrame(frame)

	case MsgStopSession:
		ctx, cancel := context.WithTimeout(c.hub.ctx, c.hub.cfg.RequestTimeout)
		_, err := c.ctrl.Stop(ctx)
		cancel()
		if err != nil {
			c.emitError(err.Error())
		}

	case MsgUnload:
		c.ctrl.Unload()
		return true

	case MsgBenefits:
		var p benefitsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.PoseName == "" {
			c.emitError("pose_name required")
			return false
		}
		if c.hub.assistant == nil {
			c.emitError("benefits unavailable")
			return false
		}
		if p.Language == "" {
			p.Language = c.hub.cfg.Language
		}
		go c.benefits(p)

	default:
		log.Printf("Unknown message type: %s", msg.Type)
		c.emitError("unknown message type " + msg.Type)
	}
	return false
}

func (c *wsClient) benefits(p benefitsPayload) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, c.hub.cfg.RequestTimeout)
	defer cancel()
	b, err := c.hub.assistant.Benefits(ctx, p.PoseName, pose.TraditionalName(p.PoseName), p.Language)
	if err != nil {
		log.Printf("Benefits for %s failed: %v", p.PoseName, err)
		c.emitError("benefits unavailable")
		return
	}
	c.Emit(MsgBenefits, b)
}

func decodeFrame(raw json.RawMessage) (models.Frame, error) {
	var p framePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Frame{}, errors.New("invalid frame payload")
	}
	image := p.Image
	if i := strings.Index(image, ","); i >= 0 && strings.HasPrefix(image, "data:") {
		image = image[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil || len(data) == 0 {
		return models.Frame{}, errors.New("frame image must be non-empty base64")
	}
	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	return models.Frame{Data: data, Landmarks: p.Landmarks, Timestamp: ts}, nil
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.metrics.IncrementWebSocketErrors()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
