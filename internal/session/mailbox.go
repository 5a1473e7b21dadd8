package session

import (
	"sync"

	"YOGA_TRAINER/posecoach/internal/models"
)

// FrameMailbox is a single-slot buffer between the camera feed and the
// capture loop. A newer frame overwrites an unconsumed one.
type FrameMailbox struct {
	mu    sync.Mutex
	frame *models.Frame
	drops uint64
	seq   int32
}

func NewFrameMailbox() *FrameMailbox {
	return &FrameMailbox{}
}

// Put stores frame, replacing any frame the loop has not taken yet.
func (m *FrameMailbox) Put(frame models.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frame != nil {
		m.drops++
	}
	m.seq++
	if frame.SequenceNumber == 0 {
		frame.SequenceNumber = m.seq
	}
	m.frame = &frame
}

// Take returns the latest frame and empties the slot.
func (m *FrameMailbox) Take() (models.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frame == nil {
		return models.Frame{}, false
	}
	f := *m.frame
	m.frame = nil
	return f, true
}

// Drops is the number of frames overwritten before the loop took them.
func (m *FrameMailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

func (m *FrameMailbox) Clear() {
	m.mu.Lock()
	m.frame = nil
	m.mu.Unlock()
}
