package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// WebSocketService streams payment session updates to the app
type WebSocketService struct {
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// SessionReader re-reads the streamed session.
type SessionReader func(ctx context.Context) (*models.PaymentSession, error)

// NewWebSocketService creates a new WebSocket service. An empty or "*"
// origin list accepts any origin.
func NewWebSocketService(allowedOrigins []string) *WebSocketService {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return &WebSocketService{
		pingPeriod: wsPingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// StreamSession upgrades the request and relays session events until the
// session is resolved, the client disconnects or events closes. On every
// ping tick the session is re-read through reload, so a missed event still
// ends the stream. cancel is always called before returning.
func (s *WebSocketService) StreamSession(c *gin.Context, session *models.PaymentSession, events <-chan models.SessionEvent, reload SessionReader, cancel func()) {
	defer cancel()
	log := logging.Ctx(c.Request.Context()).With().Str("session_id", session.ID).Logger()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	closed := make(chan struct{})
	go readPump(conn, closed)

	write := func(msg WebSocketMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed")
			return false
		}
		return true
	}

	if !write(WebSocketMessage{Type: "session", SessionID: session.ID, Data: session}) {
		return
	}
	if session.State.IsTerminal() {
		closeNormally(conn)
		return
	}

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				closeNormally(conn)
				return
			}
			if !write(WebSocketMessage{Type: "state", SessionID: event.SessionID, Data: event}) {
				return
			}
			if event.State.IsTerminal() {
				closeNormally(conn)
				return
			}
		case <-ticker.C:
			if reload != nil {
				current, err := reload(c.Request.Context())
				if err != nil {
					log.Warn().Err(err).Msg("Failed to re-read payment session")
				} else if current.State.IsTerminal() {
					event := models.SessionEvent{SessionID: current.ID, State: current.State, At: current.UpdatedAt}
					write(WebSocketMessage{Type: "state", SessionID: current.ID, Data: event})
					closeNormally(conn)
					return
				}
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// readPump drains client frames so control messages are processed, and
// signals when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
