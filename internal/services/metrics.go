package services

import (
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	totalFrames    atomic.Int64
	totalErrors    atomic.Int64
	totalLatency   atomic.Int64
	activeClients  atomic.Int32
	activeSessions atomic.Int32
	lastFrameTime  atomic.Int64

	trackingLosses atomic.Int64
	droppedCycles  atomic.Int64
	holdsPersisted atomic.Int64
	holdsSkipped   atomic.Int64
	persistErrors  atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64

	startedAt time.Time
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

func (m *Metrics) IncrementFrames() {
	m.totalFrames.Add(1)
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
}

func (m *Metrics) SetActiveClients(count int) {
	m.activeClients.Store(int32(count))
}

func (m *Metrics) AddActiveSessions(delta int) {
	m.activeSessions.Add(int32(delta))
}

func (m *Metrics) IncrementTrackingLosses() {
	m.trackingLosses.Add(1)
}

func (m *Metrics) IncrementDroppedCycles() {
	m.droppedCycles.Add(1)
}

// RecordHold counts the outcome of one resolved hold.
func (m *Metrics) RecordHold(persisted bool, err error) {
	if persisted {
		m.holdsPersisted.Add(1)
		return
	}
	m.holdsSkipped.Add(1)
	if err != nil {
		m.persistErrors.Add(1)
	}
}

func (m *Metrics) GetTotalFrames() int64 {
	return m.totalFrames.Load()
}

func (m *Metrics) GetTotalErrors() int64 {
	return m.totalErrors.Load()
}

func (m *Metrics) GetAvgLatency() float64 {
	frames := m.totalFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(frames)
}

func (m *Metrics) GetActiveClients() int {
	return int(m.activeClients.Load())
}

func (m *Metrics) GetActiveSessions() int {
	return int(m.activeSessions.Load())
}

func (m *Metrics) GetLastFrameTime() int64 {
	return m.lastFrameTime.Load()
}

func (m *Metrics) GetHoldsPersisted() int64 {
	return m.holdsPersisted.Load()
}

func (m *Metrics) GetHoldsSkipped() int64 {
	return m.holdsSkipped.Load()
}

func (m *Metrics) GetTrackingLosses() int64 {
	return m.trackingLosses.Load()
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

// DecrementWebSocketConnections decrements WebSocket connection count
func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

// GetWebSocketConnections returns current WebSocket connections
func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

// IncrementWebSocketMessages increments WebSocket message count
func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

// IncrementWebSocketErrors increments WebSocket error count
func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// Snapshot returns every counter keyed the way /api/metrics reports them.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"total_frames":      m.totalFrames.Load(),
		"total_errors":      m.totalErrors.Load(),
		"avg_latency_ms":    m.GetAvgLatency(),
		"active_clients":    m.activeClients.Load(),
		"active_sessions":   m.activeSessions.Load(),
		"last_frame_time":   m.lastFrameTime.Load(),
		"tracking_losses":   m.trackingLosses.Load(),
		"dropped_cycles":    m.droppedCycles.Load(),
		"holds_persisted":   m.holdsPersisted.Load(),
		"holds_skipped":     m.holdsSkipped.Load(),
		"persist_errors":    m.persistErrors.Load(),
		"system_uptime_sec": int64(m.Uptime().Seconds()),
		"websocket": map[string]interface{}{
			"connections": m.wsConnections.Load(),
			"messages":    m.wsMessages.Load(),
			"errors":      m.wsErrors.Load(),
		},
	}
}
