package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"macrosynergy/internal/config"
	"macrosynergy/internal/middleware"
	ws "macrosynergy/internal/websocket"
)

// WebSocketHandler upgrades connections and registers them with the hub.
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	origins  map[string]struct{}
	logger   *slog.Logger
}

// NewWebSocketHandler creates a handler accepting the given origins.
// Requests without an Origin header are always accepted.
func NewWebSocketHandler(hub *ws.Hub, cfg config.WebSocketConfig, allowedOrigins []string,
	logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:     hub,
		origins: make(map[string]struct{}, len(allowedOrigins)),
		logger:  logger.With(slog.String("handler", "websocket")),
	}
	for _, o := range allowedOrigins {
		h.origins[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins["*"]; ok {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	h.logger.WarnContext(r.Context(), "websocket origin not allowed",
		slog.String("origin", origin))
	return false
}

// ServeHTTP handles GET /ws
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := middleware.GetRequestID(ctx)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	client := ws.ServeWS(h.hub, ws.NewConnectionWrapper(conn), traceID, h.logger)
	if client == nil {
		h.logger.WarnContext(ctx, "websocket hub stopped, connection closed")
		return
	}
	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("client_id", client.ID()),
		slog.String("remote_addr", r.RemoteAddr))
}
