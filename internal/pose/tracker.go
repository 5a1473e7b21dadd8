package pose

import "time"

// HoldState is the mutable belief about the pose currently held.
// ConfidenceReadings is non-empty whenever CurrentLabel is set.
type HoldState struct {
	CurrentLabel       string
	HoldStartedAt      time.Time
	ConfidenceReadings []float64
	IsStable           bool
	LastLoggedLabel    string
}

// Tracker accumulates duration and confidence statistics for the held pose.
type Tracker struct {
	state HoldState
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// State returns a copy of the current hold state.
func (t *Tracker) State() HoldState {
	s := t.state
	s.ConfidenceReadings = append([]float64(nil), t.state.ConfidenceReadings...)
	return s
}

func (t *Tracker) CurrentLabel() string { return t.state.CurrentLabel }

func (t *Tracker) LastLoggedLabel() string { return t.state.LastLoggedLabel }

func (t *Tracker) IsStable() bool { return t.state.IsStable }

// HasHold reports whether a pose is currently believed held.
func (t *Tracker) HasHold() bool { return t.state.CurrentLabel != "" }

func (t *Tracker) Start(label string, confidence float64, now time.Time) {
	t.state.CurrentLabel = label
	t.state.HoldStartedAt = now
	t.state.ConfidenceReadings = []float64{confidence}
	t.state.IsStable = false
}

// Continue records another reading for the held pose and marks the hold
// stable once it has lasted MinHoldSeconds. It is a no-op without a hold.
func (t *Tracker) Continue(confidence float64, now time.Time) {
	if !t.HasHold() {
		return
	}
	t.state.ConfidenceReadings = append(t.state.ConfidenceReadings, confidence)
	if !t.state.IsStable && t.Duration(now) >= MinHoldSeconds {
		t.state.IsStable = true
	}
}

// Duration is the whole number of seconds the current pose has been held.
func (t *Tracker) Duration(now time.Time) int {
	if !t.HasHold() || t.state.HoldStartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(t.state.HoldStartedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Second)
}

func (t *Tracker) AverageConfidence() float64 {
	n := len(t.state.ConfidenceReadings)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, c := range t.state.ConfidenceReadings {
		sum += c
	}
	return sum / float64(n)
}

// HasQualifyingReading reports whether any reading of the hold met the
// threshold. A hold whose confidence peaked once and then sagged still counts.
func (t *Tracker) HasQualifyingReading() bool {
	for _, c := range t.state.ConfidenceReadings {
		if Accept(c) {
			return true
		}
	}
	return false
}

func (t *Tracker) MarkLogged(label string) {
	t.state.LastLoggedLabel = label
}

// Reset drops the current hold but remembers the last logged label.
func (t *Tracker) Reset() {
	last := t.state.LastLoggedLabel
	t.state = HoldState{LastLoggedLabel: last}
}

// FullReset clears everything. Only used when a session starts.
func (t *Tracker) FullReset() {
	t.state = HoldState{}
}
