package pose

import (
	"context"
	"sync"
	"time"
)

type LossState int

const (
	Tracking LossState = iota
	Lost
)

func (s LossState) String() string {
	if s == Lost {
		return "LOST"
	}
	return "TRACKING"
}

// LossMonitor gives the tracker a grace period when the classifier stops
// producing poses. If tracking does not come back before the grace timer
// fires, the current hold is resolved (stable holds only) and dropped.
//
// Lost, Recovered and Cancel must be called with locker held. The timer
// callback acquires locker itself.
type LossMonitor struct {
	clock   Clock
	grace   time.Duration
	locker  sync.Locker
	tracker *Tracker
	handler *Handler

	state     LossState
	lostSince time.Time
	timer     Timer
	gen       uint64
	ctx       context.Context

	// OnExpire runs under locker after an expired hold was resolved and reset.
	OnExpire func(Resolution)
}

func NewLossMonitor(clock Clock, grace time.Duration, locker sync.Locker, tracker *Tracker, handler *Handler) *LossMonitor {
	if clock == nil {
		clock = SystemClock{}
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &LossMonitor{
		clock:   clock,
		grace:   grace,
		locker:  locker,
		tracker: tracker,
		handler: handler,
	}
}

func (m *LossMonitor) State() LossState { return m.state }

// LostSince is the time tracking was lost, zero while tracking.
func (m *LossMonitor) LostSince() time.Time { return m.lostSince }

// Lost records a failed or empty classification. It reports true only on
// the TRACKING to LOST edge; repeated calls keep the original timer.
func (m *LossMonitor) Lost(ctx context.Context, now time.Time) bool {
	if m.state == Lost {
		return false
	}
	m.state = Lost
	m.lostSince = now
	m.ctx = ctx
	m.gen++
	gen := m.gen
	m.timer = m.clock.AfterFunc(m.grace, func() { m.expire(gen) })
	return true
}

// Recovered cancels the grace timer and keeps the current hold untouched.
// It reports true if the monitor was in the LOST state.
func (m *LossMonitor) Recovered() bool {
	if m.state != Lost {
		return false
	}
	m.stop()
	return true
}

// Cancel stops any pending grace timer without resolving the hold.
func (m *LossMonitor) Cancel() {
	m.stop()
}

func (m *LossMonitor) stop() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.state = Tracking
	m.lostSince = time.Time{}
	m.ctx = nil
}

func (m *LossMonitor) expire(gen uint64) {
	m.locker.Lock()
	defer m.locker.Unlock()

	if gen != m.gen || m.state != Lost {
		return
	}
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res := m.handler.ResolveHold(ctx, m.tracker, m.clock.Now(), true)
	m.tracker.Reset()
	m.timer = nil
	m.stop()

	if m.OnExpire != nil {
		m.OnExpire(res)
	}
}
