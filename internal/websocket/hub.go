// Package websocket pushes job lifecycle and progress events to browser
// clients. A Hub fans messages out to registered clients; each client may
// narrow its feed to specific job IDs.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"macrosynergy/internal/infrastructure"
)

// Message types sent by the server.
const (
	TypeConnection = "connection"
	TypeError      = "error"
)

const broadcastBuffer = 256

// Message is the envelope of every server message.
type Message struct {
	Type      string      `json:"type"`
	Subtype   string      `json:"subtype,omitempty"`
	Action    string      `json:"action,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

type outbound struct {
	payload   []byte
	eventType string
	subjectID string
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *hubMetrics

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Call Start before broadcasting.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    newHubMetrics(),
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background. Repeated calls are no-ops.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := client.context()
			h.metrics.connected(ctx)
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			welcome, err := encode(TypeConnection, "", "connected", map[string]interface{}{
				"client_id": client.id,
				"message":   "Connected to macrosynergy job feed",
			}, client.traceID)
			if err == nil {
				select {
				case client.send <- welcome:
				default:
					h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full")
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				ctx := client.context()
				h.metrics.disconnected(ctx, time.Since(client.connectedAt))
				h.logger.InfoContext(ctx, "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(msg.subjectID) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	ctx := context.Background()
	for _, client := range clients {
		select {
		case client.send <- msg.payload:
			h.metrics.sent(ctx, msg.eventType, len(msg.payload))
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			h.mu.Lock()
			if h.clients[client] {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.metrics.dropped(ctx, "client_buffer_full")
			h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
}

func encode(eventType, subtype, action string, data interface{}, traceID string) ([]byte, error) {
	return json.Marshal(Message{
		Type:      eventType,
		Subtype:   subtype,
		Action:    action,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
	})
}

// subjectOf returns the "id" field of a JSON object payload, if any.
func subjectOf(data interface{}) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return probe.ID
}

// BroadcastUpdate queues a message for all interested clients. It never
// blocks: when the queue is full the message is dropped.
func (h *Hub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, subtype, action, data, "")
}

// BroadcastUpdateWithTrace is BroadcastUpdate with a trace ID in the envelope.
func (h *Hub) BroadcastUpdateWithTrace(eventType, subtype, action string, data interface{}, traceID string) {
	payload, err := encode(eventType, subtype, action, data, traceID)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", eventType))
		return
	}

	select {
	case h.broadcast <- outbound{payload: payload, eventType: eventType, subjectID: subjectOf(data)}:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.dropped(context.Background(), "hub_queue_full")
		h.logger.Warn("Broadcast queue full, dropping message", slog.String("message_type", eventType))
	}
}

// BroadcastError sends an error event to every client.
func (h *Hub) BroadcastError(code, message string) {
	h.BroadcastUpdate(TypeError, code, "", map[string]interface{}{"message": message})
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetHubMetrics returns current hub counters.
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
		"broadcast_queue":   len(h.broadcast),
	}
}
