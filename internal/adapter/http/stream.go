package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/fanout"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// streamMessages upgrades to a WebSocket and pushes every zone message
// published after the connection opens. Clients only ever receive; anything
// they send is discarded.
func (h *handler) streamMessages(w http.ResponseWriter, r *http.Request) {
	audience := domain.Audience(r.URL.Query().Get("audience"))
	if audience == "" {
		audience = domain.AudienceCitizens
	}
	msgs, stop, err := h.router.Listen(chi.URLParam(r, "district"), audience)
	if errors.Is(err, fanout.ErrStreamingDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer stop()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "request_id", requestIDFrom(r.Context()), "error", err)
		return
	}
	defer conn.Close()

	// The hijacked connection keeps the server's read deadline; replace it
	// with the pong-driven one.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
