package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"macrosynergy/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 256
)

// Client message types.
const (
	ClientHeartbeat   = "heartbeat"
	ClientSubscribe   = "subscribe"
	ClientUnsubscribe = "unsubscribe"
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

type clientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	logger      *slog.Logger

	subMu         sync.RWMutex
	subscriptions map[string]bool

	messagesSent     int64
	messagesReceived int64
}

// NewClient creates a client for conn. traceID may be empty.
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
	)
	if traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            id,
		traceID:       traceID,
		remoteAddr:    conn.RemoteAddr(),
		connectedAt:   time.Now(),
		logger:        logger,
		subscriptions: make(map[string]bool),
	}
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

// wants reports whether a message about subject should reach this client.
// Clients without subscriptions receive everything; messages without a
// subject reach every client.
func (c *Client) wants(subject string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subscriptions) == 0 || subject == "" {
		return true
	}
	return c.subscriptions[subject]
}

// Subscribe narrows the feed to jobID (in addition to earlier subscriptions).
func (c *Client) Subscribe(jobID string) {
	c.subMu.Lock()
	c.subscriptions[jobID] = true
	c.subMu.Unlock()
}

// Unsubscribe removes jobID. An empty jobID clears every subscription.
func (c *Client) Unsubscribe(jobID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if jobID == "" {
		c.subscriptions = make(map[string]bool)
		return
	}
	delete(c.subscriptions, jobID)
}

func (c *Client) handle(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("Ignoring malformed client message", slog.String("error", err.Error()))
		return
	}
	switch msg.Type {
	case ClientHeartbeat:
		c.logger.Debug("Heartbeat received")
	case ClientSubscribe:
		if msg.JobID != "" {
			c.Subscribe(msg.JobID)
			c.logger.Debug("Subscribed", slog.String("job_id", msg.JobID))
		}
	case ClientUnsubscribe:
		c.Unsubscribe(msg.JobID)
	default:
		c.logger.Debug("Unknown client message", slog.String("type", msg.Type))
	}
}

// ReadPump pumps messages from the websocket connection to the client.
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.context(), "WebSocket client disconnected (readPump)",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived))
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.context(), "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			return
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.messagesReceived++
		c.handle(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.InfoContext(c.context(), "WebSocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent))
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.context(), "Error writing message to WebSocket",
					slog.String("error", err.Error()))
				return
			}
			c.messagesSent++
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.context(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// ServeWS registers a client for conn and starts its pumps. It returns nil
// when the hub has already stopped.
func ServeWS(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, traceID, logger)
	if !hub.Register(client) {
		conn.Close()
		return nil
	}
	go client.WritePump()
	go client.ReadPump()
	return client
}
