// Package session drives one live pose-training session: it pulls the
// latest camera frame on a fixed interval, classifies it, feeds the pose
// state machine and reports display updates and resolved holds.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"YOGA_TRAINER/posecoach/internal/models"
	"YOGA_TRAINER/posecoach/internal/pose"
	"YOGA_TRAINER/posecoach/internal/services"
)

var (
	ErrSessionActive = errors.New("session already active")
	ErrNoSession     = errors.New("no active session")
	ErrCycleInFlight = errors.New("capture cycle already in flight")
	ErrNoFrame       = errors.New("no frame captured")
)

// Event types pushed to the UI.
const (
	EventSessionStarted    = "SESSION_STARTED"
	EventSessionStopped    = "SESSION_STOPPED"
	EventDisplay           = "DISPLAY"
	EventHoldResolved      = "HOLD_RESOLVED"
	EventTrackingLost      = "TRACKING_LOST"
	EventTrackingRecovered = "TRACKING_RECOVERED"
	EventHoldReset         = "HOLD_RESET"
	EventPoseAnnounced     = "POSE_ANNOUNCED"
	EventInstructions      = "INSTRUCTIONS"
	EventMeasurements      = "MEASUREMENTS"
)

type Classifier interface {
	Classify(ctx context.Context, frame models.Frame) (models.PoseObservation, error)
}

type ActivitySink interface {
	LogActivity(ctx context.Context, entry models.PoseLogEntry) (string, error)
}

// Beacon delivers an entry without waiting for, or reporting, the outcome.
type Beacon interface {
	Send(entry models.PoseLogEntry) bool
}

// Assistant is the auxiliary backend. Every failure is swallowed.
type Assistant interface {
	Instructions(ctx context.Context, label, language string) (models.Instructions, error)
	SpeakPose(ctx context.Context, traditionalName, language string) error
	BodyMeasurements(ctx context.Context, label string, landmarks []float64) (models.BodyMeasurements, error)
}

type SessionRecorder interface {
	CreateSession(ctx context.Context, s models.YogaSession) error
	EndSession(ctx context.Context, id string, summary models.SessionSummary) error
}

// EventSink receives UI events. Emit is called with the controller lock
// held and must not block.
type EventSink interface {
	Emit(eventType string, payload interface{})
}

type Config struct {
	CaptureInterval  time.Duration
	GracePeriod      time.Duration
	ConfirmationTime time.Duration
	RequestTimeout   time.Duration
	Stabilization    bool
	Language         string
}

func DefaultConfig() Config {
	return Config{
		CaptureInterval:  1500 * time.Millisecond,
		GracePeriod:      pose.DefaultGracePeriod,
		ConfirmationTime: 1500 * time.Millisecond,
		RequestTimeout:   5 * time.Second,
		Language:         "en",
	}
}

type Deps struct {
	Classifier Classifier
	Activities ActivitySink
	Beacon     Beacon
	Assistant  Assistant
	Sessions   SessionRecorder
	Events     EventSink
	Metrics    *services.Metrics
	Clock      pose.Clock
}

// Session identifies one camera-on to camera-off interval.
type Session struct {
	ID        string
	StartedAt time.Time
	UserID    int
	Language  string
}

type Summary struct {
	SessionID       string
	DurationSeconds int
	UniquePoses     int
	LoggedPoses     int
	TotalDetections int
	Final           pose.Resolution
}

// Snapshot is a read-only view used by health checks and tests.
type Snapshot struct {
	Active       bool
	Session      Session
	Hold         pose.HoldState
	Stabilizing  pose.StabilizationState
	Tracking     pose.LossState
	FrameDrops   uint64
	Detections   int
	LoggedPoses  int
	LastAnnounce string
}

// Controller owns the state of at most one session at a time. Every
// mutation of the tracker, stabilizer and loss monitor happens under mu.
type Controller struct {
	cfg  Config
	deps Deps

	frames   *FrameMailbox
	inFlight atomic.Bool

	mu         sync.Mutex
	tracker    *pose.Tracker
	stabilizer *pose.Stabilizer
	handler    *pose.Handler
	monitor    *pose.LossMonitor
	announcer  *announcer

	session  *Session
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	detections int
	labels     map[string]struct{}
	logged     int
}

func NewController(cfg Config, deps Deps) *Controller {
	def := DefaultConfig()
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.ConfirmationTime <= 0 {
		cfg.ConfirmationTime = def.ConfirmationTime
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if deps.Clock == nil {
		deps.Clock = pose.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = services.NewMetrics()
	}
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}

	c := &Controller{
		cfg:        cfg,
		deps:       deps,
		frames:     NewFrameMailbox(),
		tracker:    pose.NewTracker(),
		stabilizer: pose.NewStabilizer(),
		announcer:  newAnnouncer(cfg.ConfirmationTime),
		labels:     make(map[string]struct{}),
	}
	c.handler = pose.NewHandler(c.persist)
	c.monitor = pose.NewLossMonitor(deps.Clock, cfg.GracePeriod, &c.mu, c.tracker, c.handler)
	c.monitor.OnExpire = c.onGraceExpired
	return c
}

// PushFrame hands the latest camera frame to the capture loop.
func (c *Controller) PushFrame(frame models.Frame) {
	c.frames.Put(frame)
}

// Start begins a new session for userID and launches the capture loop.
// A non-positive CaptureInterval leaves cycles to RunCycle callers.
func (c *Controller) Start(parent context.Context, userID int, language string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return Session{}, ErrSessionActive
	}
	if language == "" {
		language = c.cfg.Language
	}

	c.tracker.FullReset()
	c.stabilizer.Reset()
	c.announcer.reset()
	c.monitor.Cancel()
	c.frames.Clear()
	c.detections = 0
	c.logged = 0
	c.labels = make(map[string]struct{})

	s := Session{
		ID:        uuid.NewString(),
		StartedAt: c.deps.Clock.Now(),
		UserID:    userID,
		Language:  language,
	}
	c.session = &s
	c.gen++
	c.ctx, c.cancel = context.WithCancel(parent)

	if c.deps.Sessions != nil {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
		err := c.deps.Sessions.CreateSession(ctx, models.YogaSession{
			ID:        s.ID,
			UserID:    s.UserID,
			StartedAt: s.StartedAt,
			Status:    "active",
		})
		cancel()
		if err != nil {
			log.Printf("Session %s: could not record start: %v", s.ID, err)
		}
	}

	c.deps.Metrics.AddActiveSessions(1)
	c.deps.Events.Emit(EventSessionStarted, map[string]interface{}{
		"session_id": s.ID,
		"started_at": s.StartedAt,
	})
	log.Printf("Session %s started for user %d", s.ID, userID)

	c.loopDone = nil
	if c.cfg.CaptureInterval > 0 {
		done := make(chan struct{})
		c.loopDone = done
		go c.loop(c.ctx, done)
	}
	return s, nil
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.CaptureInterval)
	defer ticker.Stop()

	c.runLoopCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runLoopCycle(ctx)
		}
	}
}

func (c *Controller) runLoopCycle(ctx context.Context) {
	err := c.RunCycle(ctx)
	if err != nil && !errors.Is(err, ErrNoFrame) && !errors.Is(err, ErrNoSession) {
		log.Printf("Capture cycle: %v", err)
	}
}

// RunCycle classifies the latest frame and applies the result. Only one
// cycle runs at a time; an overlapping call is dropped with ErrCycleInFlight.
func (c *Controller) RunCycle(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.deps.Metrics.IncrementDroppedCycles()
		return ErrCycleInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	active := c.session != nil
	gen := c.gen
	c.mu.Unlock()
	if !active {
		return ErrNoSession
	}

	frame, ok := c.frames.Take()
	if !ok {
		return ErrNoFrame
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	started := time.Now()
	obs, err := c.deps.Classifier.Classify(reqCtx, frame)
	cancel()
	c.deps.Metrics.RecordLatency(time.Since(started))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.gen != gen {
		return nil
	}
	if err != nil {
		c.deps.Metrics.IncrementErrors()
		c.trackingLost(err)
		return nil
	}
	c.deps.Metrics.IncrementFrames()
	c.observe(obs, frame)
	return nil
}

func (c *Controller) trackingLost(cause error) {
	now := c.deps.Clock.Now()
	if !c.monitor.Lost(c.ctx, now) {
		return
	}
	c.deps.Metrics.IncrementTrackingLosses()
	log.Printf("Session %s: tracking lost: %v", c.session.ID, cause)
	c.deps.Events.Emit(EventTrackingLost, map[string]interface{}{
		"label":       c.tracker.CurrentLabel(),
		"grace_ms":    c.cfg.GracePeriod.Milliseconds(),
		"lost_since":  now,
		"hold_stable": c.tracker.IsStable(),
	})
}

func (c *Controller) observe(obs models.PoseObservation, frame models.Frame) {
	now := c.deps.Clock.Now()

	if c.monitor.Recovered() {
		c.deps.Events.Emit(EventTrackingRecovered, map[string]interface{}{
			"label": c.tracker.CurrentLabel(),
		})
	}

	c.detections++
	above := pose.Accept(obs.Confidence)
	if above {
		c.labels[obs.Label] = struct{}{}
	}

	ev := c.decide(obs, now)
	res := c.handler.Handle(c.ctx, ev, c.tracker, now)
	switch ev.Kind {
	case pose.StartNewPose:
		c.stabilizer.Seed(ev.Confidence)
	case pose.Transition:
		c.stabilizer.Seed(ev.NewConfidence)
		c.reportResolution(res)
	}

	c.deps.Events.Emit(EventDisplay, models.DisplayUpdate{
		Label:             obs.Label,
		ConfidencePercent: pose.ConfidencePercent(obs.Confidence),
		IsAboveThreshold:  above,
	})

	if above {
		c.announce(obs.Label, frame, now)
	}
}

// decide returns the event the handler should apply. With stabilization
// enabled, a label change only goes through once the stabilizer accepts it.
func (c *Controller) decide(obs models.PoseObservation, now time.Time) pose.Event {
	ev := pose.Detect(obs.Label, obs.Confidence, c.tracker, now)
	if !c.cfg.Stabilization || ev.Kind == pose.Ignore {
		return ev
	}
	v := c.stabilizer.Check(obs.Label, obs.Confidence, now, c.tracker.CurrentLabel())
	if v.Accepted() {
		return ev
	}
	return pose.Event{Kind: pose.Ignore, Reason: pose.ReasonStabilizing, Label: obs.Label, Confidence: obs.Confidence}
}

func (c *Controller) announce(label string, frame models.Frame, now time.Time) {
	announce, instruct := c.announcer.observe(label, now)
	s := *c.session
	ctx := c.ctx

	if announce {
		name := pose.TraditionalName(label)
		c.deps.Events.Emit(EventPoseAnnounced, models.Announcement{Label: label, TraditionalName: name})
		if c.deps.Assistant != nil {
			go c.auxiliary(ctx, "speak_feedback", func(ctx context.Context) error {
				return c.deps.Assistant.SpeakPose(ctx, name, s.Language)
			})
		}
	}
	if instruct && c.deps.Assistant != nil {
		go c.auxiliary(ctx, "get_instructions", func(ctx context.Context) error {
			ins, err := c.deps.Assistant.Instructions(ctx, label, s.Language)
			if err != nil {
				return err
			}
			ins.Label = label
			c.emitIfCurrent(s.ID, EventInstructions, ins)
			return nil
		})
	}
	if len(frame.Landmarks) > 0 && c.deps.Assistant != nil {
		landmarks := frame.Landmarks
		go c.auxiliary(ctx, "get_body_measurements", func(ctx context.Context) error {
			m, err := c.deps.Assistant.BodyMeasurements(ctx, label, landmarks)
			if err != nil {
				return err
			}
			c.emitIfCurrent(s.ID, EventMeasurements, m)
			return nil
		})
	}
}

func (c *Controller) auxiliary(parent context.Context, name string, call func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.RequestTimeout)
	defer cancel()
	if err := call(ctx); err != nil && parent.Err() == nil {
		log.Printf("Auxiliary %s failed: %v", name, err)
	}
}

func (c *Controller) emitIfCurrent(sessionID, eventType string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ID != sessionID {
		return
	}
	c.deps.Events.Emit(eventType, payload)
}

// persist is the handler's PersistFunc. It runs with mu held.
func (c *Controller) persist(ctx context.Context, hold pose.HoldSummary) error {
	if c.session == nil {
		return ErrNoSession
	}
	if c.deps.Activities == nil {
		return fmt.Errorf("no activity sink configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	id, err := c.deps.Activities.LogActivity(ctx, c.entry(hold))
	if err != nil {
		log.Printf("Session %s: logging %s failed: %v", c.session.ID, hold.Label, err)
		return err
	}
	c.logged++
	log.Printf("Session %s: logged %s (%ds, %d%%) as %s", c.session.ID, hold.Label,
		hold.DurationSeconds, pose.ConfidencePercent(hold.ConfidenceAverage), id)
	return nil
}

func (c *Controller) entry(hold pose.HoldSummary) models.PoseLogEntry {
	return models.PoseLogEntry{
		PoseLabel:         hold.Label,
		ConfidenceAverage: hold.ConfidenceAverage,
		DurationSeconds:   hold.DurationSeconds,
		SessionID:         c.session.ID,
		Timestamp:         c.deps.Clock.Now(),
	}
}

func (c *Controller) reportResolution(res pose.Resolution) {
	if !res.Resolved {
		return
	}
	c.deps.Metrics.RecordHold(res.Persisted, res.Err)
	c.deps.Events.Emit(EventHoldResolved, models.HoldNotification{
		Label:             res.Hold.Label,
		DurationSeconds:   res.Hold.DurationSeconds,
		ConfidencePercent: pose.ConfidencePercent(res.Hold.ConfidenceAverage),
		Persisted:         res.Persisted,
		SkipReason:        res.SkipReason,
	})
}

// onGraceExpired runs under mu from the loss monitor's timer.
func (c *Controller) onGraceExpired(res pose.Resolution) {
	if c.session == nil {
		return
	}
	c.stabilizer.Reset()
	c.reportResolution(res)
	c.deps.Events.Emit(EventHoldReset, map[string]interface{}{
		"session_id": c.session.ID,
		"reason":     "tracking_lost",
	})
}

// Stop ends the session: the loop and timers are cancelled, the hold in
// progress is flushed under the usual rules (stability not required) and
// the session state is torn down.
func (c *Controller) Stop(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return Summary{}, ErrNoSession
	}
	s := *c.session
	c.gen++
	c.monitor.Cancel()

	now := c.deps.Clock.Now()
	final := c.handler.ResolveHold(ctx, c.tracker, now, false)
	c.reportResolution(final)

	summary := Summary{
		SessionID:       s.ID,
		DurationSeconds: int(now.Sub(s.StartedAt) / time.Second),
		UniquePoses:     len(c.labels),
		LoggedPoses:     c.logged,
		TotalDetections: c.detections,
		Final:           final,
	}
	c.deps.Events.Emit(EventSessionStopped, map[string]interface{}{
		"session_id":       s.ID,
		"duration_seconds": summary.DurationSeconds,
		"unique_poses":     summary.UniquePoses,
		"logged_poses":     summary.LoggedPoses,
		"total_detections": summary.TotalDetections,
	})
	done := c.teardown()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	if c.deps.Sessions != nil {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		err := c.deps.Sessions.EndSession(rctx, s.ID, models.SessionSummary{
			UniquePoses:     summary.UniquePoses,
			LoggedPoses:     summary.LoggedPoses,
			TotalDetections: summary.TotalDetections,
			EndedAt:         now,
		})
		cancel()
		if err != nil {
			log.Printf("Session %s: could not record end: %v", s.ID, err)
		}
	}
	log.Printf("Session %s stopped after %ds, %d poses logged", s.ID, summary.DurationSeconds, summary.LoggedPoses)
	return summary, nil
}

// Unload is the page-unload path: the hold in progress, if it qualifies,
// is handed to the beacon and nothing waits for the outcome.
func (c *Controller) Unload() {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	s := *c.session
	c.gen++
	c.monitor.Cancel()

	now := c.deps.Clock.Now()
	sent := false
	if c.tracker.HasHold() && c.deps.Beacon != nil {
		hold := pose.HoldSummary{
			Label:             c.tracker.CurrentLabel(),
			DurationSeconds:   c.tracker.Duration(now),
			ConfidenceAverage: c.tracker.AverageConfidence(),
		}
		if pose.Qualify(c.tracker, hold) == "" {
			sent = c.deps.Beacon.Send(c.entry(hold))
		}
	}
	summary := models.SessionSummary{
		UniquePoses:     len(c.labels),
		LoggedPoses:     c.logged,
		TotalDetections: c.detections,
		EndedAt:         now,
	}
	c.teardown()
	c.mu.Unlock()

	if c.deps.Sessions != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			defer cancel()
			if err := c.deps.Sessions.EndSession(ctx, s.ID, summary); err != nil {
				log.Printf("Session %s: could not record unload: %v", s.ID, err)
			}
		}()
	}
	log.Printf("Session %s unloaded (beacon sent: %v)", s.ID, sent)
}

// teardown clears session state and cancels the loop. Caller holds mu.
func (c *Controller) teardown() chan struct{} {
	c.session = nil
	c.tracker.FullReset()
	c.stabilizer.Reset()
	c.announcer.reset()
	c.frames.Clear()
	c.deps.Metrics.AddActiveSessions(-1)
	if c.cancel != nil {
		c.cancel()
	}
	done := c.loopDone
	c.loopDone = nil
	return done
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Active:       c.session != nil,
		Hold:         c.tracker.State(),
		Stabilizing:  c.stabilizer.State(),
		Tracking:     c.monitor.State(),
		FrameDrops:   c.frames.Drops(),
		Detections:   c.detections,
		LoggedPoses:  c.logged,
		LastAnnounce: c.announcer.lastAnnounced,
	}
	if c.session != nil {
		snap.Session = *c.session
	}
	return snap
}

type discardEvents struct{}

func (discardEvents) Emit(string, interface{}) {}
