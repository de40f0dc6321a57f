package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamHandler pushes route updates to websocket clients.
type StreamHandler struct {
	explorer Explorer
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(e Explorer) *StreamHandler {
	return &StreamHandler{
		explorer: e,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP sends the current routes, then one JSON route record per change.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := h.explorer.Subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	slog.Debug("Stream client connected", "remote", remote)
	defer slog.Debug("Stream client disconnected", "remote", remote)

	// The read loop handles control frames and notices when the client goes away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, route := range h.explorer.Routes(0) {
		if err := writeFrame(conn, route); err != nil {
			return
		}
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeFrame(conn, u); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(v)
}
