package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/pose"
	"YOGA_TRAINER/posecoach/internal/pose/posetest"
	"YOGA_TRAINER/posecoach/internal/services"
	"YOGA_TRAINER/posecoach/internal/session"
)

var t0 = time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)

type result struct {
	obs models.PoseObservation
	err error
}

type scriptedClassifier struct {
	mu      sync.Mutex
	results []result
	gate    chan struct{}
	entered chan struct{}
}

func (c *scriptedClassifier) push(label string, conf float64) {
	c.mu.Lock()
	c.results = append(c.results, result{obs: models.PoseObservation{Label: label, Confidence: conf}})
	c.mu.Unlock()
}

func (c *scriptedClassifier) fail(err error) {
	c.mu.Lock()
	c.results = append(c.results, result{err: err})
	c.mu.Unlock()
}

func (c *scriptedClassifier) Classify(ctx context.Context, _ models.Frame) (models.PoseObservation, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return models.PoseObservation{}, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return models.PoseObservation{}, services.ErrNoPose
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r.obs, r.err
}

type activityLog struct {
	mu      sync.Mutex
	entries []models.PoseLogEntry
	err     error
}

func (a *activityLog) LogActivity(_ context.Context, e models.PoseLogEntry) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if a.err != nil {
		return "", a.err
	}
	return "act-1", nil
}

func (a *activityLog) logged() []models.PoseLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.PoseLogEntry(nil), a.entries...)
}

type beacon struct {
	sent []models.PoseLogEntry
}

func (b *beacon) Send(e models.PoseLogEntry) bool {
	b.sent = append(b.sent, e)
	return true
}

type emitted struct {
	kind    string
	payload interface{}
}

type eventLog struct {
	mu     sync.Mutex
	events []emitted
}

func (l *eventLog) Emit(kind string, payload interface{}) {
	l.mu.Lock()
	l.events = append(l.events, emitted{kind, payload})
	l.mu.Unlock()
}

func (l *eventLog) ofKind(kind string) []interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []interface{}
	for _, e := range l.events {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

type assistant struct {
	mu       sync.Mutex
	spoken   []string
	fetched  []string
	measured int
}

func (a *assistant) Instructions(_ context.Context, label, _ string) (models.Instructions, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetched = append(a.fetched, label)
	return models.Instructions{Instructions: []string{"breathe"}}, nil
}

func (a *assistant) SpeakPose(_ context.Context, name, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spoken = append(a.spoken, name)
	return nil
}

func (a *assistant) BodyMeasurements(context.Context, string, []float64) (models.BodyMeasurements, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.measured++
	return models.BodyMeasurements{}, errors.New("measurement backend down")
}

func (a *assistant) calls() (spoken, fetched []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.spoken...), append([]string(nil), a.fetched...)
}

type fixture struct {
	clock      *posetest.Clock
	classifier *scriptedClassifier
	activities *activityLog
	beacon     *beacon
	events     *eventLog
	assistant  *assistant
	metrics    *services.Metrics
	ctrl       *session.Controller
}

func newFixture(t *testing.T, mutate func(*session.Config)) *fixture {
	t.Helper()
	f := &fixture{
		clock:      posetest.NewClock(t0),
		classifier: &scriptedClassifier{},
		activities: &activityLog{},
		beacon:     &beacon{},
		events:     &eventLog{},
		assistant:  &assistant{},
		metrics:    services.NewMetrics(),
	}
	cfg := session.DefaultConfig()
	cfg.CaptureInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	f.ctrl = session.NewController(cfg, session.Deps{
		Classifier: f.classifier,
		Activities: f.activities,
		Beacon:     f.beacon,
		Assistant:  f.assistant,
		Events:     f.events,
		Metrics:    f.metrics,
		Clock:      f.clock,
	})
	_, err := f.ctrl.Start(context.Background(), 7, "en")
	require.NoError(t, err)
	return f
}

// step advances the clock by d, then runs one cycle on a fresh frame.
func (f *fixture) step(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	f.ctrl.PushFrame(models.Frame{Data: []byte{0xff}})
	require.NoError(t, f.ctrl.RunCycle(context.Background()))
}

func TestController_PersistsHoldOnTransition(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.90)
	f.classifier.push("Tree", 0.92)
	f.classifier.push("Warrior_I", 0.88)
	f.step(t, 0)
	f.step(t, 1500*time.Millisecond)
	f.step(t, 1500*time.Millisecond)

	logged := f.activities.logged()
	require.Len(t, logged, 1)
	assert.Equal(t, "Tree", logged[0].PoseLabel)
	assert.Equal(t, 3, logged[0].DurationSeconds)
	assert.InDelta(t, 0.91, logged[0].ConfidenceAverage, 1e-9)
	assert.Equal(t, f.ctrl.Snapshot().Session.ID, logged[0].SessionID)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "Warrior_I", snap.Hold.CurrentLabel)
	assert.Equal(t, "Tree", snap.Hold.LastLoggedLabel)

	holds := f.events.ofKind(session.EventHoldResolved)
	require.Len(t, holds, 1)
	n := holds[0].(models.HoldNotification)
	assert.True(t, n.Persisted)
	assert.Equal(t, 91, n.ConfidencePercent)
	assert.Equal(t, int64(1), f.metrics.GetHoldsPersisted())
}

func TestController_DisplayEveryCycle(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.60)
	f.classifier.push("Tree", 0.875)
	f.step(t, 0)
	f.step(t, time.Second)

	displays := f.events.ofKind(session.EventDisplay)
	require.Len(t, displays, 2)
	assert.Equal(t, models.DisplayUpdate{Label: "Tree", ConfidencePercent: 60, IsAboveThreshold: false}, displays[0])
	assert.Equal(t, models.DisplayUpdate{Label: "Tree", ConfidencePercent: 88, IsAboveThreshold: true}, displays[1])

	// the low reading never started a hold
	snap := f.ctrl.Snapshot()
	assert.Equal(t, "Tree", snap.Hold.CurrentLabel)
	assert.Equal(t, t0.Add(time.Second), snap.Hold.HoldStartedAt)
}

func TestController_AnnouncesOncePerLabelEntry(t *testing.T) {
	f := newFixture(t, nil)

	for _, l := range []string{"Tree", "Tree", "Tree", "Cobra", "Tree"} {
		f.classifier.push(l, 0.9)
	}
	for i := 0; i < 5; i++ {
		f.step(t, time.Second)
	}

	announced := f.events.ofKind(session.EventPoseAnnounced)
	require.Len(t, announced, 3)
	assert.Equal(t, "Tree", announced[0].(models.Announcement).Label)
	assert.Equal(t, "Cobra", announced[1].(models.Announcement).Label)
	assert.Equal(t, "Tree", announced[2].(models.Announcement).Label)

	assert.Eventually(t, func() bool {
		spoken, fetched := f.assistant.calls()
		return len(spoken) == 3 && len(fetched) == 1
	}, time.Second, 5*time.Millisecond)
	_, fetched := f.assistant.calls()
	assert.Equal(t, []string{"Tree"}, fetched)
}

func TestController_TrackingLossGraceExpiry(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 4; i++ {
		f.classifier.push("Warrior_I", 0.9)
	}
	for i := 0; i < 4; i++ {
		f.step(t, 1500*time.Millisecond)
	}
	f.classifier.fail(services.ErrNoPose)
	f.step(t, 500*time.Millisecond)
	require.Equal(t, pose.Lost, f.ctrl.Snapshot().Tracking)
	require.Len(t, f.events.ofKind(session.EventTrackingLost), 1)

	// a second failure does not restart the timer
	f.classifier.fail(services.ErrNoPose)
	f.step(t, time.Second)
	require.Len(t, f.events.ofKind(session.EventTrackingLost), 1)

	f.clock.Advance(2 * time.Second)

	logged := f.activities.logged()
	require.Len(t, logged, 1)
	assert.Equal(t, "Warrior_I", logged[0].PoseLabel)
	assert.Equal(t, 8, logged[0].DurationSeconds)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, pose.Tracking, snap.Tracking)
	assert.Empty(t, snap.Hold.CurrentLabel)
	assert.Equal(t, "Warrior_I", snap.Hold.LastLoggedLabel)
	assert.Len(t, f.events.ofKind(session.EventHoldReset), 1)
	assert.Equal(t, int64(1), f.metrics.GetTrackingLosses())
}

func TestController_TrackingRecoveredKeepsHold(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.9)
	f.classifier.fail(errors.New("inference timeout"))
	f.classifier.push("Tree", 0.9)
	f.step(t, 0)
	f.step(t, time.Second)
	f.step(t, time.Second)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, pose.Tracking, snap.Tracking)
	assert.Equal(t, "Tree", snap.Hold.CurrentLabel)
	assert.Equal(t, t0, snap.Hold.HoldStartedAt)
	assert.Len(t, f.events.ofKind(session.EventTrackingRecovered), 1)

	f.clock.Advance(10 * time.Second)
	assert.Empty(t, f.activities.logged())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestController_StopFlushesHold(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Cobra", 0.9)
	f.classifier.push("Cobra", 0.9)
	f.step(t, 0)
	f.step(t, time.Second)
	f.clock.Advance(1500 * time.Millisecond)

	summary, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Final.Persisted)
	assert.Equal(t, 1, summary.LoggedPoses)
	assert.Equal(t, 1, summary.UniquePoses)
	assert.Equal(t, 2, summary.TotalDetections)

	logged := f.activities.logged()
	require.Len(t, logged, 1)
	assert.Equal(t, 2, logged[0].DurationSeconds)

	assert.False(t, f.ctrl.Active())
	assert.Empty(t, f.ctrl.Snapshot().Hold.CurrentLabel)
	assert.Len(t, f.events.ofKind(session.EventSessionStopped), 1)

	_, err = f.ctrl.Stop(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestController_StopSkipsShortHold(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Cobra", 0.9)
	f.step(t, 0)
	f.clock.Advance(time.Second)

	summary, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Final.Persisted)
	assert.Equal(t, pose.ReasonRapidTransition, summary.Final.SkipReason)
	assert.Empty(t, f.activities.logged())
}

func TestController_StopCancelsGraceTimer(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.9)
	f.classifier.fail(services.ErrNoPose)
	f.step(t, 0)
	f.step(t, 500*time.Millisecond)
	require.Equal(t, 1, f.clock.Pending())

	_, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.clock.Pending())

	f.clock.Advance(5 * time.Second)
	assert.Empty(t, f.events.ofKind(session.EventHoldReset))
}

func TestController_UnloadSendsBeacon(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.9)
	f.classifier.push("Tree", 0.95)
	f.step(t, 0)
	f.step(t, 2*time.Second)
	f.clock.Advance(time.Second)

	f.ctrl.Unload()

	require.Len(t, f.beacon.sent, 1)
	assert.Equal(t, "Tree", f.beacon.sent[0].PoseLabel)
	assert.Equal(t, 3, f.beacon.sent[0].DurationSeconds)
	assert.Empty(t, f.activities.logged())
	assert.False(t, f.ctrl.Active())
}

func TestController_UnloadSkipsDuplicate(t *testing.T) {
	f := newFixture(t, nil)

	f.classifier.push("Tree", 0.9)
	f.classifier.push("Tree", 0.9)
	f.classifier.fail(services.ErrNoPose)
	f.step(t, 0)
	f.step(t, 2*time.Second)
	f.step(t, 500*time.Millisecond)
	f.clock.Advance(3 * time.Second)
	require.Len(t, f.activities.logged(), 1)

	// the same pose is picked up again after the grace reset
	f.classifier.push("Tree", 0.9)
	f.classifier.push("Tree", 0.9)
	f.step(t, 500*time.Millisecond)
	f.step(t, 2*time.Second)
	f.clock.Advance(time.Second)

	f.ctrl.Unload()
	assert.Empty(t, f.beacon.sent)
	assert.False(t, f.ctrl.Active())
}

func TestController_PersistFailureNotMarked(t *testing.T) {
	f := newFixture(t, nil)
	f.activities.err = errors.New("backend down")

	f.classifier.push("Tree", 0.9)
	f.classifier.push("Cobra", 0.9)
	f.step(t, 0)
	f.step(t, 3*time.Second)

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Hold.LastLoggedLabel)
	assert.Equal(t, 0, snap.LoggedPoses)

	holds := f.events.ofKind(session.EventHoldResolved)
	require.Len(t, holds, 1)
	assert.Equal(t, pose.ReasonPersistFailed, holds[0].(models.HoldNotification).SkipReason)
}

func TestController_StartTwice(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ctrl.Start(context.Background(), 7, "en")
	assert.ErrorIs(t, err, session.ErrSessionActive)
}

func TestController_RunCycleWithoutFrame(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.ctrl.RunCycle(context.Background()), session.ErrNoFrame)

	_, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	f.ctrl.PushFrame(models.Frame{})
	assert.ErrorIs(t, f.ctrl.RunCycle(context.Background()), session.ErrNoSession)
}

func TestController_StaleCycleDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.gate = make(chan struct{})
	f.classifier.entered = make(chan struct{}, 1)
	f.classifier.push("Tree", 0.9)

	f.ctrl.PushFrame(models.Frame{})
	done := make(chan error, 1)
	go func() { done <- f.ctrl.RunCycle(context.Background()) }()
	<-f.classifier.entered

	// the cycle is blocked in the classifier, a concurrent one is dropped
	f.ctrl.PushFrame(models.Frame{})
	assert.ErrorIs(t, f.ctrl.RunCycle(context.Background()), session.ErrCycleInFlight)

	_, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	close(f.classifier.gate)
	require.NoError(t, <-done)

	assert.Empty(t, f.events.ofKind(session.EventDisplay))
	assert.Empty(t, f.activities.logged())
}

func TestController_StabilizationDelaysTransition(t *testing.T) {
	f := newFixture(t, func(cfg *session.Config) { cfg.Stabilization = true })

	f.classifier.push("Tree", 0.9)
	f.classifier.push("Tree", 0.9)
	f.classifier.push("Cobra", 0.9)
	f.classifier.push("Cobra", 0.9)
	f.step(t, 0)
	f.step(t, 1500*time.Millisecond)
	f.step(t, 1500*time.Millisecond)

	// the first Cobra only opens a stabilization window
	assert.Equal(t, "Tree", f.ctrl.Snapshot().Hold.CurrentLabel)
	assert.Equal(t, "Cobra", f.ctrl.Snapshot().Stabilizing.PendingLabel)
	assert.Empty(t, f.activities.logged())

	f.step(t, 1500*time.Millisecond)
	assert.Equal(t, "Cobra", f.ctrl.Snapshot().Hold.CurrentLabel)
	logged := f.activities.logged()
	require.Len(t, logged, 1)
	assert.Equal(t, "Tree", logged[0].PoseLabel)
	assert.Equal(t, 4, logged[0].DurationSeconds)
}

func TestController_RestartAfterStop(t *testing.T) {
	f := newFixture(t, nil)
	first := f.ctrl.Snapshot().Session.ID

	_, err := f.ctrl.Stop(context.Background())
	require.NoError(t, err)
	s, err := f.ctrl.Start(context.Background(), 7, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, s.ID)
	assert.Equal(t, "en", s.Language)
	assert.Equal(t, 1, f.metrics.GetActiveSessions())
}
