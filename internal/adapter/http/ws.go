package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	watchBuffer    = 16
	msgSnapshot    = "snapshot"
	msgTransition  = "transition"
	closeCompleted = "transaction settled"
)

// wsMessage is the envelope pushed to watchers
type wsMessage struct {
	Type        string                  `json:"type"`
	Transaction *transactionResponse    `json:"transaction,omitempty"`
	Event       *domain.TransitionEvent `json:"event,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed[origin]
		},
	}
}

// handleWatch streams the transitions of one transaction until it settles
// or the client goes away
func (s *Server) handleWatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if s.deps.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transition stream unavailable"})
		return
	}

	// Subscribe before reading the snapshot so no transition falls in between
	events, cancel := s.deps.Events.Subscribe(watchBuffer)
	defer cancel()

	tx, err := s.deps.Reconciler.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err, "failed to load transaction")
		return
	}

	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "transaction_id", id, "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("transaction_id", id)
	log.Debug("watcher connected")

	snapshot := s.toTransactionResponse(tx)
	if err := writeJSON(conn, wsMessage{Type: msgSnapshot, Transaction: &snapshot}); err != nil {
		return
	}
	if tx.Status.IsTerminal() {
		closeConn(conn, closeCompleted)
		return
	}

	// The read side only exists to notice the client leaving and to answer pongs
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("watcher read failed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.TransactionID != id {
				continue
			}
			if err := writeJSON(conn, wsMessage{Type: msgTransition, Event: &event}); err != nil {
				log.Debug("watcher write failed", "error", err)
				return
			}
			if event.To.IsTerminal() {
				closeConn(conn, closeCompleted)
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func closeConn(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}
