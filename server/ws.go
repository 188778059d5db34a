package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

// wsSubscriber delivers relay events to one websocket connection. Send never
// blocks; events that do not fit the buffer are dropped.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSubscriber(conn *websocket.Conn, buffer int) *wsSubscriber {
	if buffer <= 0 {
		buffer = 256
	}
	return &wsSubscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *wsSubscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// closeWith sends a close frame and closes the connection. Only valid before
// the pumps start.
func (s *wsSubscriber) closeWith(code int, reason string) {
	s.stop()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// readPump discards inbound frames and returns when the peer goes away.
func (s *wsSubscriber) readPump() {
	defer func() {
		s.stop()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", slog.String("subscriber", s.id), slog.Any("err", err))
			}
			return
		}
	}
}

// writePump is the only writer of the connection.
func (s *wsSubscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("websocket write error", slog.String("subscriber", s.id), slog.Any("err", err))
				s.stop()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.stop()
				return
			}
		}
	}
}
