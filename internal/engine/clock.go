package engine

import (
	"errors"
	"math"
)

var ErrInvalidSpeed = errors.New("speed must be positive")

type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateEnded      State = "ended"
)

// maxTimeMs bounds virtual time while the duration is unknown. Every whole
// millisecond below it is exact in a float64.
const maxTimeMs = 1 << 53

type (
	TimeListener  func(timeMs int64)
	StateListener func(prev, next State)
)

// Clock owns virtual match time and the play/pause/stop state machine.
// Listeners are called synchronously, in registration order, and must not
// call back into the clock.
type Clock struct {
	state      State
	timeMs     float64
	durationMs int64 // 0 while unknown
	speed      float64

	hasWallRef bool
	lastWallMs float64

	onTime  []TimeListener
	onState []StateListener
}

func NewClock(durationMs int64) *Clock {
	return &Clock{
		state:      StateNotStarted,
		durationMs: max(durationMs, 0),
		speed:      1,
	}
}

func (c *Clock) State() State { return c.state }

// TimeMs is the current virtual time, truncated to whole milliseconds.
func (c *Clock) TimeMs() int64 { return int64(math.Floor(c.timeMs)) }

func (c *Clock) DurationMs() int64 { return c.durationMs }

func (c *Clock) Speed() float64 { return c.speed }

func (c *Clock) OnTimeChanged(fn TimeListener) { c.onTime = append(c.onTime, fn) }

func (c *Clock) OnStateChanged(fn StateListener) { c.onState = append(c.onState, fn) }

// SetDuration updates the match length. Running past a shorter duration ends
// playback on the next tick.
func (c *Clock) SetDuration(ms int64) { c.durationMs = max(ms, 0) }

func (c *Clock) SetSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return ErrInvalidSpeed
	}
	c.speed = speed
	return nil
}

func (c *Clock) Start() {
	switch c.state {
	case StateRunning:
		return
	case StateEnded:
		if c.durationMs > 0 && c.timeMs >= float64(c.durationMs) {
			c.setTime(0)
		}
	}
	c.hasWallRef = false
	c.setState(StateRunning)
}

func (c *Clock) Pause() {
	if c.state != StateRunning {
		return
	}
	c.setState(StatePaused)
}

func (c *Clock) Stop() {
	c.setState(StateEnded)
}

// Seek jumps to targetMs. An explicit pause survives the seek, any other
// state resumes playback.
func (c *Clock) Seek(targetMs int64) {
	wasPaused := c.state == StatePaused

	t := float64(max(targetMs, 0))
	if c.durationMs > 0 {
		t = math.Min(t, float64(c.durationMs))
	}
	c.hasWallRef = false
	c.setTime(t)

	if !wasPaused {
		c.setState(StateRunning)
	}
}

// ResetWallReference makes the next tick only record the wall clock, so time
// spent frozen is not played back.
func (c *Clock) ResetWallReference() { c.hasWallRef = false }

// Tick advances virtual time by the wall clock delta since the previous tick
// times the speed. The first tick after entering Running only records the
// wall reference.
func (c *Clock) Tick(nowWallMs float64) {
	if c.state != StateRunning {
		return
	}
	if !c.hasWallRef {
		c.hasWallRef = true
		c.lastWallMs = nowWallMs
		return
	}

	delta := (nowWallMs - c.lastWallMs) * c.speed
	c.lastWallMs = nowWallMs
	if delta <= 0 {
		return
	}

	next := c.timeMs + delta
	if c.durationMs > 0 && next >= float64(c.durationMs) {
		c.setTime(float64(c.durationMs))
		c.setState(StateEnded)
		return
	}
	c.setTime(next)
}

func (c *Clock) setTime(t float64) {
	c.timeMs = math.Min(t, maxTimeMs)
	now := c.TimeMs()
	for _, fn := range c.onTime {
		fn(now)
	}
}

func (c *Clock) setState(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.hasWallRef = false
	for _, fn := range c.onState {
		fn(prev, next)
	}
}
