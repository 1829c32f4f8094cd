package cabin

import (
	"errors"
	"fmt"
	"time"
)

// --- Domain Entities & Value Objects ---

// State is the operational phase of the cabin.
// State는 캐빈의 운행 단계를 나타냅니다.
type State int

const (
	Stationary  State = iota // 정지 (문 닫힘)
	InMotion                 // 이동 중
	DoorOpening              // 문 열리는 중
	DoorOpen                 // 문 열림
	DoorClosing              // 문 닫히는 중
)

func (s State) String() string {
	switch s {
	case Stationary:
		return "Stationary"
	case InMotion:
		return "In Motion"
	case DoorOpening:
		return "Door Opening"
	case DoorOpen:
		return "Door Open"
	case DoorClosing:
		return "Door Closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= Stationary && s <= DoorClosing
}

// MarshalText encodes the state as its display name.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid cabin state %d", int(s))
	}
	return []byte(s.String()), nil
}

// EventKind discriminates the Event union.
// EventKind는 이벤트의 종류를 구분합니다.
type EventKind int

const (
	Tick           EventKind = iota // 시간 경과만 알림
	FloorPress                      // 층 버튼
	OpenDoorPress                   // 열림 버튼
	CloseDoorPress                  // 닫힘 버튼
)

func (k EventKind) String() string {
	switch k {
	case Tick:
		return "Tick"
	case FloorPress:
		return "FloorPress"
	case OpenDoorPress:
		return "OpenDoorPress"
	case CloseDoorPress:
		return "CloseDoorPress"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a single timestamped input to the controller.
// Time is an offset on a monotonic timeline chosen by the caller, not a
// wall-clock reading. Floor is only meaningful for FloorPress.
type Event struct {
	Kind  EventKind
	Time  time.Duration
	Floor int
}

// NewTick returns a time-advance event.
func NewTick(at time.Duration) Event {
	return Event{Kind: Tick, Time: at}
}

// NewFloorPress returns a floor button event.
func NewFloorPress(at time.Duration, floor int) Event {
	return Event{Kind: FloorPress, Time: at, Floor: floor}
}

// NewOpenDoorPress returns an open-door button event.
func NewOpenDoorPress(at time.Duration) Event {
	return Event{Kind: OpenDoorPress, Time: at}
}

// NewCloseDoorPress returns a close-door button event.
func NewCloseDoorPress(at time.Duration) Event {
	return Event{Kind: CloseDoorPress, Time: at}
}

// Config holds immutable configuration parameters.
// Config는 생성 시 설정되며, 런타임 중에 변경되지 않습니다.
type Config struct {
	MaxFloor         int           // 최고 층 (최저 층은 0)
	TravelDuration   time.Duration // 한 번의 이동 시간
	DoorOpenDuration time.Duration // 문 열림 유지 시간 (자동 닫힘까지)
	DoorMoveDuration time.Duration // 문 열림/닫힘 동작 시간

	// TravelPerFloor scales a trip by the number of floors crossed.
	// When false every trip lasts exactly TravelDuration.
	TravelPerFloor bool
}

// Validate rejects configurations the controller cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxFloor < 0:
		return fmt.Errorf("%w: MaxFloor (%d) < 0", ErrInvalidConfig, c.MaxFloor)
	case c.TravelDuration <= 0:
		return fmt.Errorf("%w: TravelDuration (%s) must be positive", ErrInvalidConfig, c.TravelDuration)
	case c.DoorOpenDuration <= 0:
		return fmt.Errorf("%w: DoorOpenDuration (%s) must be positive", ErrInvalidConfig, c.DoorOpenDuration)
	case c.DoorMoveDuration <= 0:
		return fmt.Errorf("%w: DoorMoveDuration (%s) must be positive", ErrInvalidConfig, c.DoorMoveDuration)
	}
	return nil
}

// Snapshot is a read-only view of the controller.
// Snapshot은 컨트롤러 상태의 읽기 전용 복사본입니다.
type Snapshot struct {
	State       State
	Floor       int
	NextFloor   *int // non-nil only while InMotion
	Pending     []int
	CurrentTime time.Duration
}

var (
	ErrInvalidConfig   = errors.New("invalid cabin config")
	ErrTimeRegression  = errors.New("event time went backwards")
	ErrFloorOutOfRange = errors.New("floor out of range")
	ErrUnknownEvent    = errors.New("unknown event kind")
)
