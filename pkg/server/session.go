package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"go-cabin-simulator/pkg/cabin"
)

// ClientMessage is sent by the page over the WebSocket.
// 메시지 타입 정의
type ClientMessage struct {
	Action string `json:"action"`
	Floor  int    `json:"floor,omitempty"`
}

// ServerMessage is pushed to the page over the WebSocket.
type ServerMessage struct {
	Type  string        `json:"type"`
	State *StateMessage `json:"state,omitempty"`
	Event *EventMessage `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

// subscriberBuffer bounds how far a slow client may lag before transitions drop.
const subscriberBuffer = 64

// Session manages one WebSocket connection against the shared cabin.
// Session은 공유 캐빈에 대한 WebSocket 연결 하나를 관리합니다.
type Session struct {
	conn   *websocket.Conn
	server *Server
	mu     sync.Mutex // serializes writes
	done   chan struct{}
	logger *slog.Logger
}

func newSession(conn *websocket.Conn, server *Server) *Session {
	return &Session{
		conn:   conn,
		server: server,
		done:   make(chan struct{}),
		logger: server.logger.With("remote_addr", conn.RemoteAddr().String()),
	}
}

// HandleMessages runs the read loop until the client goes away.
func (s *Session) HandleMessages() {
	s.logger.Info("Session started")

	events, unsubscribe := s.server.driver.Subscribe(subscriberBuffer)
	defer func() {
		close(s.done)
		unsubscribe()
		_ = s.conn.Close()
		s.logger.Info("Session ended")
	}()

	go s.eventListener(events)
	s.sendState()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Warn("Failed to parse message", "error", err)
			continue
		}

		s.handleAction(msg)
	}
}

func (s *Session) handleAction(msg ClientMessage) {
	s.logger.Debug("Action received", "action", msg.Action, "floor", msg.Floor)

	driver := s.server.driver
	var err error
	switch msg.Action {
	case "pressFloor":
		floor := msg.Floor
		if !s.server.validFloor(&floor) {
			s.logger.Warn("Rejected floor press via WS", "floor", floor)
			s.writeJSON(ServerMessage{Type: "error", Error: "Invalid floor"})
			return
		}
		_, err = driver.PressFloor(floor)
	case "pressOpen":
		_, err = driver.PressOpenDoor()
	case "pressClose":
		_, err = driver.PressCloseDoor()
	case "getState":
	default:
		s.writeJSON(ServerMessage{Type: "error", Error: "Unknown action " + msg.Action})
		return
	}

	if err != nil {
		s.writeJSON(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	s.sendState()
}

func (s *Session) eventListener(events <-chan cabin.Transition) {
	for {
		select {
		case <-s.done:
			return
		case t, ok := <-events:
			if !ok {
				return
			}
			ev := toEventMessage(t)
			s.writeJSON(ServerMessage{Type: "event", Event: &ev})
			s.sendState()
		}
	}
}

func (s *Session) sendState() {
	state := toStateMessage(s.server.driver.State())
	s.writeJSON(ServerMessage{Type: "state", State: &state})
}

func (s *Session) writeJSON(msg ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Error("Failed to write JSON message", "error", err)
	}
}
