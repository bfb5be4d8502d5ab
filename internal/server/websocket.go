package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"camview/internal/constants"
	"camview/internal/security"
)

// wsSink adapts a websocket connection to hub.Sink.
type wsSink struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *wsSink) Send(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(constants.WSWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSink) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	if !s.ConnLimiter.TryConnect(clientIP) {
		s.AuditLogger.LogConnectionLimit(clientIP)
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}
	defer s.ConnLimiter.Disconnect(clientIP)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "ip", clientIP, "error", err)
		return
	}
	conn.SetReadLimit(int64(constants.MaxWSMessageSize))

	sub := s.Hub.Subscribe(&wsSink{conn: conn})
	defer s.Hub.Unsubscribe(sub)
	s.log.Info("🔌 Viewer connected", "ip", clientIP, "viewers", s.Hub.Count())

	// Viewers never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.log.Info("🔌 Viewer disconnected", "ip", clientIP)
}
