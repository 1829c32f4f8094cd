package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"

	"go-cabin-simulator/pkg/cabin"
)

// fakeClock is read from handler goroutines.
type fakeClock struct {
	now atomic.Int64
}

func (f *fakeClock) Now() time.Duration { return time.Duration(f.now.Load()) }

func (f *fakeClock) Set(d time.Duration) { f.now.Store(int64(d)) }

func newTestServer(t *testing.T) (*httptest.Server, *fakeClock) {
	t.Helper()
	ctrl, err := cabin.New(cabin.Config{
		MaxFloor:         5,
		TravelDuration:   2 * time.Second,
		DoorOpenDuration: 3 * time.Second,
		DoorMoveDuration: time.Second,
	})
	if err != nil {
		t.Fatalf("cabin.New failed: %v", err)
	}
	clock := &fakeClock{}
	driver := cabin.NewDriver(ctrl, cabin.DriverConfig{ID: "test", Clock: clock.Now})
	static := fstest.MapFS{"index.html": {Data: []byte("<html>cabin</html>")}}

	ts := httptest.NewServer(New(driver, static))
	t.Cleanup(ts.Close)
	return ts, clock
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	return resp
}

func TestServer_State(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := get(t, ts.URL+"/api/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	state := decode[StateMessage](t, resp)
	if state.State != "Stationary" || state.Floor != 0 || state.NextFloor != nil {
		t.Errorf("Unexpected initial state: %+v", state)
	}
	if state.PendingRequests == nil || len(state.PendingRequests) != 0 {
		t.Errorf("Expected empty pending list, got %v", state.PendingRequests)
	}
}

func TestServer_PressFloor(t *testing.T) {
	ts, clock := newTestServer(t)

	resp := post(t, ts.URL+"/api/press_floor", `{"floor": 3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	state := decode[StateMessage](t, resp)
	if state.State != "In Motion" || state.NextFloor == nil || *state.NextFloor != 3 {
		t.Fatalf("Expected motion to 3, got %+v", state)
	}

	clock.Set(500 * time.Millisecond)
	state = decode[StateMessage](t, post(t, ts.URL+"/api/press_floor", `{"floor": 1}`))
	if len(state.PendingRequests) != 1 || state.PendingRequests[0] != 1 {
		t.Errorf("Expected [1] pending, got %v", state.PendingRequests)
	}
	if state.CurrentTime != 500 {
		t.Errorf("Expected current_time 500, got %v", state.CurrentTime)
	}
}

func TestServer_PressFloorInvalid(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, body := range []string{`{"floor": 6}`, `{"floor": -1}`, `{}`, `not json`} {
		resp := post(t, ts.URL+"/api/press_floor", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, resp.StatusCode)
		}
		msg := decode[errorMessage](t, resp)
		if msg.Error != "Invalid floor" {
			t.Errorf("Body %q: unexpected error %q", body, msg.Error)
		}
	}

	state := decode[StateMessage](t, get(t, ts.URL+"/api/state"))
	if state.State != "Stationary" || len(state.PendingRequests) != 0 {
		t.Errorf("Invalid presses changed state: %+v", state)
	}
}

func TestServer_Doors(t *testing.T) {
	ts, clock := newTestServer(t)

	state := decode[StateMessage](t, post(t, ts.URL+"/api/open_door", ""))
	if state.State != "Door Opening" {
		t.Fatalf("Expected Door Opening, got %s", state.State)
	}

	clock.Set(time.Second)
	state = decode[StateMessage](t, post(t, ts.URL+"/api/close_door", ""))
	// Opening completes on this event; the close press is not seen while opening.
	if state.State != "Door Open" {
		t.Fatalf("Expected Door Open, got %s", state.State)
	}

	clock.Set(1100 * time.Millisecond)
	state = decode[StateMessage](t, post(t, ts.URL+"/api/close_door", ""))
	if state.State != "Door Closing" {
		t.Errorf("Expected Door Closing, got %s", state.State)
	}
}

func TestServer_Forecast(t *testing.T) {
	ts, _ := newTestServer(t)
	post(t, ts.URL+"/api/press_floor", `{"floor": 2}`).Body.Close()

	state := decode[StateMessage](t, get(t, ts.URL+"/api/forecast?ms=2500"))
	if state.State != "Door Opening" || state.Floor != 2 {
		t.Errorf("Unexpected forecast: %+v", state)
	}

	live := decode[StateMessage](t, get(t, ts.URL+"/api/state"))
	if live.State != "In Motion" {
		t.Errorf("Forecast changed live state: %+v", live)
	}

	for _, q := range []string{"", "?ms=abc", "?ms=-5"} {
		resp := get(t, ts.URL+"/api/forecast"+q)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Query %q: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestServer_ConfigAndStatic(t *testing.T) {
	ts, _ := newTestServer(t)

	cfg := decode[ConfigMessage](t, get(t, ts.URL+"/api/config"))
	if cfg.MaxFloor != 5 || cfg.TravelDurationMs != 2000 || cfg.DoorOpenDurationMs != 3000 || cfg.DoorCloseDurationMs != 1000 {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	resp := get(t, ts.URL+"/")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected page served, got %d", resp.StatusCode)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestServer_WebSocket(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	initial := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "state" })
	if initial.State.State != "Stationary" {
		t.Errorf("Expected Stationary on connect, got %s", initial.State.State)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "pressFloor", Floor: 4}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	ev := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "event" })
	if ev.Event.From != "Stationary" || ev.Event.To != "In Motion" || ev.Event.Cause != "FloorPress" {
		t.Errorf("Unexpected transition: %+v", ev.Event)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "pressFloor", Floor: 9}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	errMsg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "error" })
	if errMsg.Error != "Invalid floor" {
		t.Errorf("Unexpected error message %q", errMsg.Error)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "getState"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	st := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "state" })
	if st.State.State != "In Motion" || st.State.NextFloor == nil || *st.State.NextFloor != 4 {
		t.Errorf("Unexpected state: %+v", st.State)
	}
}
