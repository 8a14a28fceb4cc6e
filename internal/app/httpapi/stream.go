package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers authenticate with the access_token query parameter, and CORS
	// does not apply to websockets; any origin holding a valid token may
	// connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// notificationStream pushes the caller's new notifications over a websocket
// until either side closes it.
func (h *handler) notificationStream(w http.ResponseWriter, r *http.Request) {
	userID := actorFrom(r).ID
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.WithContext(r.Context()).WithError(err).Debug("notification stream upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.app.Notifications.Hub().Subscribe(userID)
	defer sub.Close()

	log := h.log.WithContext(r.Context())
	log.Debug("notification stream opened")

	// The read loop only services control frames; it ends when the client
	// goes away.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Debug("notification stream closed by client")
			return
		case <-r.Context().Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				log.WithError(err).Debug("notification stream write failed")
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
