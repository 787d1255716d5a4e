package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duochat/event"
)

var (
	errChannelFull   = errors.New("send queue full")
	errChannelClosed = errors.New("channel closed")
)

const maxFrameSize = 64 * 1024

// wsChannel adapts one websocket connection to the event.Channel
// contract. Send never blocks: frames queue onto a buffered channel the
// write pump drains, and a saturated queue drops the frame rather than
// stalling the relay.
type wsChannel struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsChannel) Send(ev event.Event) error {
	payload, err := event.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errChannelClosed
	case c.send <- payload:
		return nil
	default:
		eventsDropped.Inc()
		return errChannelFull
	}
}

func (c *wsChannel) close() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userID, ok := s.tokens.lookup(token)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := &wsChannel{
		conn: conn,
		send: make(chan []byte, s.config.SendQueueSize),
		done: make(chan struct{}),
	}

	connectionsActive.Inc()
	s.log.Info("live channel opened",
		zap.String("user", userID),
		zap.String("remote", conn.RemoteAddr().String()))

	go s.writePump(ch)
	s.readPump(userID, ch)

	ch.close()
	s.engine.Disconnect(ch)
	conn.Close()
	connectionsActive.Dec()
	s.log.Info("live channel closed", zap.String("user", userID))
}

func (s *Server) readPump(userID string, ch *wsChannel) {
	conn := ch.conn
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read error", zap.String("user", userID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var frame event.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Debug("malformed frame", zap.String("user", userID), zap.Error(err))
			continue
		}

		s.dispatch(userID, ch, frame)
	}
}

func (s *Server) writePump(ch *wsChannel) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-ch.send:
			ch.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := ch.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			ch.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ch.done:
			ch.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			ch.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// dispatch routes one client frame into the relay engine. The sender
// identity always comes from the authenticated token, never from the
// payload. Live frames have no error channel: failures are logged and
// the frame is dropped.
func (s *Server) dispatch(userID string, ch *wsChannel, frame event.Frame) {
	switch frame.Event {
	case "user-online":
		s.engine.Announce(userID, ch)

	case "join_chat":
		if key, ok := decodeString(frame.Data); ok {
			s.engine.JoinRoom(ch, key)
		}

	case "leave_chat":
		if key, ok := decodeString(frame.Data); ok {
			s.engine.LeaveRoom(ch, key)
		}

	case "typing-start", "typing-stop":
		var p struct {
			ReceiverID string `json:"receiverId"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ReceiverID == "" {
			return
		}
		if frame.Event == "typing-start" {
			s.engine.TypingStart(userID, p.ReceiverID)
		} else {
			s.engine.TypingStop(userID, p.ReceiverID)
		}

	case "send-message":
		var p struct {
			ReceiverID string `json:"receiverId"`
			Content    string `json:"content"`
			FileURL    string `json:"fileUrl"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return
		}
		if _, err := s.engine.SendMessage(userID, p.ReceiverID, p.Content, p.FileURL); err != nil {
			s.log.Debug("send-message frame rejected",
				zap.String("user", userID), zap.Error(err))
			return
		}
		messagesRelayed.Inc()

	case "read-ack":
		var p struct {
			SenderID string `json:"senderId"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.SenderID == "" {
			return
		}
		if err := s.engine.MarkRead(userID, p.SenderID); err != nil {
			s.log.Debug("read-ack frame rejected",
				zap.String("user", userID), zap.Error(err))
		}

	default:
		s.log.Debug("unknown frame", zap.String("event", frame.Event))
	}
}

// decodeString accepts a bare JSON string payload (the room identifier
// frames carry the key directly rather than an object).
func decodeString(data json.RawMessage) (string, bool) {
	var v string
	if err := json.Unmarshal(data, &v); err != nil || v == "" {
		return "", false
	}
	return v, true
}
