// Package cabin implements a discrete-event state machine for a single elevator cabin.
// 이 패키지는 타임스탬프 이벤트로 구동되는 단일 엘리베이터 캐빈 상태 머신을 구현합니다.
// 실제 시간을 사용하지 않으며, 모든 타이밍은 이벤트의 Time 필드에서 계산됩니다.
package cabin

import (
	"fmt"
	"sort"
	"time"

	"github.com/tiendc/go-deepcopy"
)

const noFloor = -1

// machine is the mutable part of the controller.
// Fields are exported so the whole value can be deep-copied by Clone.
type machine struct {
	State       State
	Floor       int
	NextFloor   int          // noFloor unless InMotion
	Pending     map[int]bool // set of requested floors
	DoorOpenAt  time.Duration
	DoorCloseAt time.Duration
	TravelStart time.Duration
	TravelFor   time.Duration
	Now         time.Duration
}

// Controller owns the cabin state and its transition logic.
// No mutex, No channel, No time.Now: callers serialize Update and Snapshot.
type Controller struct {
	cfg Config
	rt  machine
}

// New validates cfg and returns a controller resting at floor 0.
// 잘못된 설정이 감지되면 즉시 에러를 반환합니다 (Fail Fast).
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg: cfg,
		rt: machine{
			State:     Stationary,
			NextFloor: noFloor,
			Pending:   make(map[int]bool),
		},
	}, nil
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// Update advances the clock to ev.Time and applies one transition step.
// A rejected event leaves the controller unchanged.
func (c *Controller) Update(ev Event) error {
	if err := c.check(ev); err != nil {
		return err
	}
	c.rt.Now = ev.Time

	switch c.rt.State {
	case Stationary:
		c.onStationary(ev)
	case InMotion:
		c.onInMotion(ev)
	case DoorOpening:
		c.onDoorOpening(ev)
	case DoorOpen:
		c.onDoorOpen(ev)
	case DoorClosing:
		c.onDoorClosing(ev)
	default:
		panic(fmt.Sprintf("cabin: unhandled state %v", c.rt.State))
	}
	return nil
}

func (c *Controller) check(ev Event) error {
	if ev.Time < c.rt.Now {
		return fmt.Errorf("%w: %s < %s", ErrTimeRegression, ev.Time, c.rt.Now)
	}
	switch ev.Kind {
	case Tick, OpenDoorPress, CloseDoorPress:
		return nil
	case FloorPress:
		if ev.Floor < 0 || ev.Floor > c.cfg.MaxFloor {
			return fmt.Errorf("%w: %d not in [0, %d]", ErrFloorOutOfRange, ev.Floor, c.cfg.MaxFloor)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnknownEvent, ev.Kind)
}

func (c *Controller) onStationary(ev Event) {
	switch {
	case ev.Kind == OpenDoorPress:
		c.openDoor()
		return
	case ev.Kind == FloorPress && ev.Floor == c.rt.Floor:
		c.openDoor()
		return
	case ev.Kind == FloorPress:
		c.request(ev.Floor)
	}

	if len(c.rt.Pending) > 0 {
		c.startMoving()
	}
}

func (c *Controller) onInMotion(ev Event) {
	// A press for the destination is served on arrival.
	if ev.Kind == FloorPress && ev.Floor != c.rt.NextFloor {
		c.request(ev.Floor)
	}

	if c.since(c.rt.TravelStart) >= c.rt.TravelFor {
		c.rt.Floor = c.rt.NextFloor
		c.rt.NextFloor = noFloor
		c.openDoor()
	}
}

func (c *Controller) onDoorOpening(ev Event) {
	if ev.Kind == FloorPress && ev.Floor != c.rt.Floor {
		c.request(ev.Floor)
	}

	if c.since(c.rt.DoorOpenAt) >= c.cfg.DoorMoveDuration {
		// DoorOpenAt now marks the start of the dwell.
		c.rt.State = DoorOpen
		c.rt.DoorOpenAt = c.rt.Now
	}
}

func (c *Controller) onDoorOpen(ev Event) {
	switch {
	case ev.Kind == CloseDoorPress:
		c.closeDoor()
		return
	case ev.Kind == OpenDoorPress, ev.Kind == FloorPress && ev.Floor == c.rt.Floor:
		c.rt.DoorOpenAt = c.rt.Now
	case ev.Kind == FloorPress:
		c.request(ev.Floor)
	}

	if c.since(c.rt.DoorOpenAt) >= c.cfg.DoorOpenDuration {
		c.closeDoor()
	}
}

func (c *Controller) onDoorClosing(ev Event) {
	switch {
	case ev.Kind == OpenDoorPress, ev.Kind == FloorPress && ev.Floor == c.rt.Floor:
		// Safety reopen.
		c.openDoor()
		return
	case ev.Kind == FloorPress:
		c.request(ev.Floor)
	}

	if c.since(c.rt.DoorCloseAt) >= c.cfg.DoorMoveDuration {
		if len(c.rt.Pending) > 0 {
			c.startMoving()
		} else {
			c.rt.State = Stationary
		}
	}
}

func (c *Controller) since(start time.Duration) time.Duration {
	return c.rt.Now - start
}

func (c *Controller) request(floor int) {
	if c.rt.Pending == nil {
		c.rt.Pending = make(map[int]bool)
	}
	c.rt.Pending[floor] = true
}

func (c *Controller) openDoor() {
	c.rt.DoorOpenAt = c.rt.Now
	c.rt.State = DoorOpening
}

func (c *Controller) closeDoor() {
	c.rt.DoorCloseAt = c.rt.Now
	c.rt.State = DoorClosing
}

// startMoving dispatches the nearest pending request.
func (c *Controller) startMoving() {
	target, ok := c.nearest()
	if !ok {
		return
	}
	delete(c.rt.Pending, target)

	travel := c.cfg.TravelDuration
	if c.cfg.TravelPerFloor {
		travel *= time.Duration(abs(target - c.rt.Floor))
	}

	c.rt.NextFloor = target
	c.rt.TravelStart = c.rt.Now
	c.rt.TravelFor = travel
	c.rt.State = InMotion
}

// nearest picks the pending floor closest to the cabin; ties go to the lower floor.
func (c *Controller) nearest() (int, bool) {
	target := noFloor
	minDist := 0
	for f := range c.rt.Pending {
		dist := abs(f - c.rt.Floor)
		if target == noFloor || dist < minDist || (dist == minDist && f < target) {
			target = f
			minDist = dist
		}
	}
	return target, target != noFloor
}

// Snapshot returns a copy of the observable state.
// Snapshot은 관찰 가능한 상태의 복사본을 반환합니다. (부작용 없음)
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:       c.rt.State,
		Floor:       c.rt.Floor,
		Pending:     make([]int, 0, len(c.rt.Pending)),
		CurrentTime: c.rt.Now,
	}
	if c.rt.State == InMotion {
		next := c.rt.NextFloor
		s.NextFloor = &next
	}
	for f := range c.rt.Pending {
		s.Pending = append(s.Pending, f)
	}
	sort.Ints(s.Pending)
	return s
}

// Clone returns an independent copy of the controller.
func (c *Controller) Clone() (*Controller, error) {
	dup := &Controller{cfg: c.cfg}
	if err := deepcopy.Copy(&dup.rt, &c.rt); err != nil {
		return nil, fmt.Errorf("clone cabin: %w", err)
	}
	return dup, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
