package pose

import "time"

type Verdict int

const (
	AcceptFirst Verdict = iota
	ContinueSame
	StartStabilization
	RestartStabilization
	Wait
	RejectUnstable
	AcceptAfterStabilization
)

var verdictNames = map[Verdict]string{
	AcceptFirst:              "ACCEPT_FIRST",
	ContinueSame:             "CONTINUE_SAME",
	StartStabilization:       "START_STABILIZATION",
	RestartStabilization:     "RESTART_STABILIZATION",
	Wait:                     "WAIT",
	RejectUnstable:           "REJECT_UNSTABLE",
	AcceptAfterStabilization: "ACCEPT_AFTER_STABILIZATION",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "UNKNOWN"
}

// Accepted reports whether the verdict lets the observation through.
func (v Verdict) Accepted() bool {
	return v == AcceptFirst || v == ContinueSame || v == AcceptAfterStabilization
}

// StabilizationState holds the rolling buffer and the candidate label.
// PendingLabel is set if and only if PendingSince is set.
type StabilizationState struct {
	ConfidenceBuffer []float64
	PendingLabel     string
	PendingSince     time.Time
}

// Stabilizer suppresses single-frame flicker between two labels with a
// short confirmation window and a rolling confidence buffer.
type Stabilizer struct {
	window time.Duration
	size   int
	state  StabilizationState
}

func NewStabilizer() *Stabilizer {
	return &Stabilizer{window: StabilizationWindow, size: StabilizationBuffer}
}

func (s *Stabilizer) State() StabilizationState {
	st := s.state
	st.ConfidenceBuffer = append([]float64(nil), s.state.ConfidenceBuffer...)
	return st
}

// AddToBuffer appends a reading and evicts the oldest beyond the buffer size.
func (s *Stabilizer) AddToBuffer(confidence float64) {
	s.state.ConfidenceBuffer = append(s.state.ConfidenceBuffer, confidence)
	if over := len(s.state.ConfidenceBuffer) - s.size; over > 0 {
		s.state.ConfidenceBuffer = s.state.ConfidenceBuffer[over:]
	}
}

// IsBufferStable is true only with a full buffer whose every entry meets threshold.
func (s *Stabilizer) IsBufferStable(threshold float64) bool {
	if len(s.state.ConfidenceBuffer) < s.size {
		return false
	}
	for _, c := range s.state.ConfidenceBuffer {
		if c < threshold {
			return false
		}
	}
	return true
}

// Check decides whether newLabel may replace currentLabel. An empty
// currentLabel means no pose is held.
func (s *Stabilizer) Check(newLabel string, confidence float64, now time.Time, currentLabel string) Verdict {
	s.AddToBuffer(confidence)

	if currentLabel == "" {
		return AcceptFirst
	}
	if newLabel == currentLabel {
		return ContinueSame
	}
	if s.state.PendingLabel == "" {
		s.begin(newLabel, now)
		return StartStabilization
	}
	if s.state.PendingLabel != newLabel {
		s.begin(newLabel, now)
		return RestartStabilization
	}
	if now.Sub(s.state.PendingSince) < s.window {
		return Wait
	}
	if !s.IsBufferStable(MinConfidenceForLogging) {
		s.clearPending()
		return RejectUnstable
	}
	s.clearPending()
	return AcceptAfterStabilization
}

// Reset clears the buffer and any pending candidate.
func (s *Stabilizer) Reset() {
	s.state = StabilizationState{}
}

// Seed resets the stabilizer and starts its buffer with one reading,
// used when the tracker advances to a new hold.
func (s *Stabilizer) Seed(confidence float64) {
	s.Reset()
	s.AddToBuffer(confidence)
}

func (s *Stabilizer) begin(label string, now time.Time) {
	s.state.PendingLabel = label
	s.state.PendingSince = now
}

func (s *Stabilizer) clearPending() {
	s.state.PendingLabel = ""
	s.state.PendingSince = time.Time{}
}
