package cabin

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock returns the current offset on a monotonic timeline.
type Clock func() time.Duration

// MonotonicClock returns a Clock measuring elapsed time since the call.
// time.Since uses the monotonic reading, so wall-clock jumps do not leak in.
func MonotonicClock() Clock {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// Transition carries a state or floor change observed by the Driver.
// Transition은 Driver가 관찰한 상태/층 변화 정보를 담고 있습니다.
type Transition struct {
	From   State
	To     State
	Floor  int
	At     time.Duration
	Stamp  time.Time
	Origin EventKind
}

// DriverConfig holds the Driver parameters.
type DriverConfig struct {
	ID           string
	TickInterval time.Duration // Tick 이벤트 주기 (기본 100ms)
	Clock        Clock         // nil이면 MonotonicClock
}

// Driver serializes access to a Controller and feeds it Tick events.
// Driver는 모든 상태 변경을 Mutex로 보호하며, 변경 사항은 구독 채널로 전파됩니다.
type Driver struct {
	mu   sync.Mutex
	ctrl *Controller
	cfg  DriverConfig

	// --- Observability ---
	logger            *slog.Logger
	subs              map[int]chan Transition
	nextSub           int
	droppedEventCount uint64
}

// NewDriver wraps ctrl. The Driver takes ownership; ctrl must not be used directly afterwards.
func NewDriver(ctrl *Controller, cfg DriverConfig) *Driver {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = MonotonicClock()
	}
	d := &Driver{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: slog.Default().With("id", cfg.ID),
		subs:   make(map[int]chan Transition),
	}

	c := ctrl.Config()
	d.logger.Info("Cabin driver initialized",
		"max_floor", c.MaxFloor,
		"travel", c.TravelDuration,
		"door_open", c.DoorOpenDuration,
		"door_move", c.DoorMoveDuration,
		"tick", cfg.TickInterval,
	)
	return d
}

// Config returns the controller configuration.
func (d *Driver) Config() Config {
	return d.ctrl.Config()
}

// PressFloor delivers a floor button press.
func (d *Driver) PressFloor(floor int) (Snapshot, error) {
	return d.deliver(FloorPress, floor)
}

// PressOpenDoor delivers an open-door button press.
func (d *Driver) PressOpenDoor() (Snapshot, error) {
	return d.deliver(OpenDoorPress, 0)
}

// PressCloseDoor delivers a close-door button press.
func (d *Driver) PressCloseDoor() (Snapshot, error) {
	return d.deliver(CloseDoorPress, 0)
}

// Tick delivers a time-advance event.
func (d *Driver) Tick() (Snapshot, error) {
	return d.deliver(Tick, 0)
}

// State returns the current snapshot.
func (d *Driver) State() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl.Snapshot()
}

// DroppedEventCount returns how many transitions were dropped on full subscriber channels.
// DroppedEventCount는 버퍼 오버플로우로 버려진 이벤트 수를 반환합니다.
func (d *Driver) DroppedEventCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.droppedEventCount
}

// Forecast reports where the cabin will be after ahead elapses with no further input.
// The live controller is not touched.
func (d *Driver) Forecast(ahead time.Duration) (Snapshot, error) {
	d.mu.Lock()
	sim, err := d.ctrl.Clone()
	d.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	now := sim.Snapshot().CurrentTime
	end := now + ahead
	for t := now + d.cfg.TickInterval; t < end; t += d.cfg.TickInterval {
		if err := sim.Update(NewTick(t)); err != nil {
			return Snapshot{}, err
		}
	}
	if err := sim.Update(NewTick(end)); err != nil {
		return Snapshot{}, err
	}
	return sim.Snapshot(), nil
}

// Subscribe registers a transition listener with the given buffer size.
// The returned func unsubscribes and closes the channel.
func (d *Driver) Subscribe(buffer int) (<-chan Transition, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	ch := make(chan Transition, buffer)
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
			close(ch)
		})
	}
}

// Run feeds Tick events until ctx is cancelled.
// Run은 컨텍스트가 취소될 때까지 주기적으로 Tick 이벤트를 전달합니다.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("Cabin Engine Started")

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Engine Stopping (Context Cancelled)")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Tick(); err != nil {
				// Only a clock going backwards gets here.
				d.logger.Error("Tick rejected", "error", err)
				return err
			}
		}
	}
}

func (d *Driver) deliver(kind EventKind, floor int) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := d.ctrl.Snapshot()
	ev := Event{Kind: kind, Time: d.cfg.Clock(), Floor: floor}
	if err := d.ctrl.Update(ev); err != nil {
		d.logger.Warn("Event rejected", "kind", kind, "floor", floor, "error", err)
		return before, err
	}
	after := d.ctrl.Snapshot()

	if kind != Tick {
		d.logger.Debug("Event applied", "kind", kind, "floor", floor, "state", after.State)
	}
	if after.State != before.State || after.Floor != before.Floor {
		d.logger.Info("State changed", "from", before.State, "to", after.State, "floor", after.Floor)
		d.publish(Transition{
			From:   before.State,
			To:     after.State,
			Floor:  after.Floor,
			At:     after.CurrentTime,
			Stamp:  time.Now(),
			Origin: kind,
		})
	}
	return after, nil
}

// publish sends to every subscriber without blocking. Caller holds d.mu.
// 채널이 가득 차면 이벤트를 버리고 메트릭을 증가시킵니다.
func (d *Driver) publish(t Transition) {
	for _, ch := range d.subs {
		select {
		case ch <- t:
		default:
			d.droppedEventCount++
			if d.droppedEventCount%100 == 1 {
				d.logger.Error("Event Channel Saturated", "dropped", d.droppedEventCount, "to", t.To)
			}
		}
	}
}
