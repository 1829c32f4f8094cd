// Package server exposes a cabin Driver over JSON HTTP endpoints and a WebSocket stream.
// 이 패키지는 Driver를 HTTP API와 WebSocket으로 노출합니다.
package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"go-cabin-simulator/pkg/cabin"
)

// StateMessage is the transport form of cabin.Snapshot.
type StateMessage struct {
	State           string  `json:"state"`
	Floor           int     `json:"floor"`
	NextFloor       *int    `json:"next_floor"`
	PendingRequests []int   `json:"pending_requests"`
	CurrentTime     float64 `json:"current_time"` // ms
}

// EventMessage is the transport form of cabin.Transition.
type EventMessage struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Floor     int     `json:"floor"`
	At        float64 `json:"at"` // ms
	Cause     string  `json:"cause"`
	Timestamp string  `json:"timestamp"`
}

// ConfigMessage describes the cabin for the page.
type ConfigMessage struct {
	MaxFloor            int     `json:"max_floor"`
	TravelDurationMs    float64 `json:"travel_duration_ms"`
	DoorOpenDurationMs  float64 `json:"door_open_duration_ms"`
	DoorCloseDurationMs float64 `json:"door_close_duration_ms"`
	TravelPerFloor      bool    `json:"travel_per_floor"`
}

type errorMessage struct {
	Error string `json:"error"`
}

type pressFloorRequest struct {
	Floor *int `json:"floor"`
}

// Server routes HTTP requests to a Driver.
type Server struct {
	driver   *cabin.Driver
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New builds the handler tree. static may be nil to skip serving the page.
func New(driver *cabin.Driver, static fs.FS) *Server {
	s := &Server{
		driver: driver,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		logger: slog.Default().With("component", "server"),
	}

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/forecast", s.handleForecast)
	s.mux.HandleFunc("POST /api/press_floor", s.handlePressFloor)
	s.mux.HandleFunc("POST /api/open_door", s.handleOpenDoor)
	s.mux.HandleFunc("POST /api/close_door", s.handleCloseDoor)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	if static != nil {
		s.mux.Handle("/", http.FileServer(http.FS(static)))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateMessage(s.driver.State()))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toConfigMessage(s.driver.Config()))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ahead, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ahead < 0 {
		writeJSON(w, http.StatusBadRequest, errorMessage{Error: "Invalid ms"})
		return
	}
	snap, err := s.driver.Forecast(time.Duration(ahead) * time.Millisecond)
	if err != nil {
		s.logger.Error("Forecast failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorMessage{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toStateMessage(snap))
}

func (s *Server) handlePressFloor(w http.ResponseWriter, r *http.Request) {
	var req pressFloorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !s.validFloor(req.Floor) {
		s.logger.Warn("Rejected floor press", "error", err)
		writeJSON(w, http.StatusBadRequest, errorMessage{Error: "Invalid floor"})
		return
	}
	s.respond(w, func() (cabin.Snapshot, error) { return s.driver.PressFloor(*req.Floor) })
}

func (s *Server) handleOpenDoor(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.driver.PressOpenDoor)
}

func (s *Server) handleCloseDoor(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.driver.PressCloseDoor)
}

func (s *Server) respond(w http.ResponseWriter, press func() (cabin.Snapshot, error)) {
	snap, err := press()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cabin.ErrFloorOutOfRange) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorMessage{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toStateMessage(snap))
}

// validFloor checks bounds before an event is built; the controller never sees out-of-range floors.
func (s *Server) validFloor(floor *int) bool {
	return floor != nil && *floor >= 0 && *floor <= s.driver.Config().MaxFloor
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	session := newSession(conn, s)
	session.HandleMessages()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func toStateMessage(s cabin.Snapshot) StateMessage {
	return StateMessage{
		State:           s.State.String(),
		Floor:           s.Floor,
		NextFloor:       s.NextFloor,
		PendingRequests: s.Pending,
		CurrentTime:     millis(s.CurrentTime),
	}
}

func toEventMessage(t cabin.Transition) EventMessage {
	return EventMessage{
		From:      t.From.String(),
		To:        t.To.String(),
		Floor:     t.Floor,
		At:        millis(t.At),
		Cause:     t.Origin.String(),
		Timestamp: t.Stamp.Format("15:04:05"),
	}
}

func toConfigMessage(c cabin.Config) ConfigMessage {
	return ConfigMessage{
		MaxFloor:            c.MaxFloor,
		TravelDurationMs:    millis(c.TravelDuration),
		DoorOpenDurationMs:  millis(c.DoorOpenDuration),
		DoorCloseDurationMs: millis(c.DoorMoveDuration),
		TravelPerFloor:      c.TravelPerFloor,
	}
}
