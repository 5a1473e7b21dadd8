package pose

import (
	"context"
	"time"
)

type TransitionKind int

const (
	Ignore TransitionKind = iota
	StartNewPose
	Transition
	Continue
)

func (k TransitionKind) String() string {
	switch k {
	case Ignore:
		return "IGNORE"
	case StartNewPose:
		return "START_NEW_POSE"
	case Transition:
		return "TRANSITION"
	case Continue:
		return "CONTINUE"
	}
	return "UNKNOWN"
}

// Skip reasons reported when an outgoing hold is not persisted.
const (
	ReasonLowConfidence   = "low_confidence"
	ReasonRapidTransition = "rapid_transition"
	ReasonDuplicate       = "duplicate"
	ReasonNotStable       = "not_stable"
	ReasonPersistFailed   = "persist_failed"
	ReasonStabilizing     = "stabilizing"
)

// Event is the classified effect of one accepted observation.
type Event struct {
	Kind       TransitionKind
	Reason     string
	Label      string
	Confidence float64
	Duration   int

	// Transition only.
	From                  string
	To                    string
	PreviousDuration      int
	PreviousConfidenceAvg float64
	NewConfidence         float64
}

// Detect classifies an observation against the tracker without mutating it.
func Detect(label string, confidence float64, tracker *Tracker, now time.Time) Event {
	if !Accept(confidence) {
		return Event{Kind: Ignore, Reason: ReasonLowConfidence, Label: label, Confidence: confidence}
	}
	if !tracker.HasHold() {
		return Event{Kind: StartNewPose, Label: label, Confidence: confidence}
	}
	if label != tracker.CurrentLabel() {
		return Event{
			Kind:                  Transition,
			From:                  tracker.CurrentLabel(),
			To:                    label,
			PreviousDuration:      tracker.Duration(now),
			PreviousConfidenceAvg: tracker.AverageConfidence(),
			NewConfidence:         confidence,
		}
	}
	return Event{Kind: Continue, Label: label, Confidence: confidence, Duration: tracker.Duration(now)}
}

// HoldSummary is what gets persisted for a completed hold.
type HoldSummary struct {
	Label             string
	DurationSeconds   int
	ConfidenceAverage float64
}

// PersistFunc stores a completed hold. A nil error means it was stored.
type PersistFunc func(ctx context.Context, hold HoldSummary) error

// Resolution describes what happened to an outgoing hold.
type Resolution struct {
	Resolved   bool
	Hold       HoldSummary
	Persisted  bool
	SkipReason string
	Err        error
}

// Handler applies transition events to a tracker and decides persistence.
type Handler struct {
	persist PersistFunc
}

func NewHandler(persist PersistFunc) *Handler {
	return &Handler{persist: persist}
}

// Handle mutates tracker according to ev. For a Transition the outgoing hold
// is resolved first and the tracker always advances to ev.To afterwards.
func (h *Handler) Handle(ctx context.Context, ev Event, tracker *Tracker, now time.Time) Resolution {
	switch ev.Kind {
	case StartNewPose:
		tracker.Start(ev.Label, ev.Confidence, now)
	case Continue:
		tracker.Continue(ev.Confidence, now)
	case Transition:
		hold := HoldSummary{
			Label:             ev.From,
			DurationSeconds:   ev.PreviousDuration,
			ConfidenceAverage: ev.PreviousConfidenceAvg,
		}
		res := h.evaluate(ctx, tracker, hold)
		tracker.Start(ev.To, ev.NewConfidence, now)
		return res
	}
	return Resolution{}
}

// ResolveHold applies the outgoing-hold rules to the hold currently in
// tracker without advancing it. With requireStable the hold must have been
// marked stable at some point. The caller decides whether to reset afterwards.
func (h *Handler) ResolveHold(ctx context.Context, tracker *Tracker, now time.Time, requireStable bool) Resolution {
	if !tracker.HasHold() {
		return Resolution{}
	}
	hold := HoldSummary{
		Label:             tracker.CurrentLabel(),
		DurationSeconds:   tracker.Duration(now),
		ConfidenceAverage: tracker.AverageConfidence(),
	}
	if requireStable && !tracker.IsStable() {
		return Resolution{Resolved: true, Hold: hold, SkipReason: ReasonNotStable}
	}
	return h.evaluate(ctx, tracker, hold)
}

// Qualify returns the skip reason for hold, or "" when it may be persisted.
func Qualify(tracker *Tracker, hold HoldSummary) string {
	switch {
	case !tracker.HasQualifyingReading():
		return ReasonLowConfidence
	case hold.DurationSeconds < MinHoldSeconds:
		return ReasonRapidTransition
	case hold.Label == tracker.LastLoggedLabel():
		return ReasonDuplicate
	}
	return ""
}

func (h *Handler) evaluate(ctx context.Context, tracker *Tracker, hold HoldSummary) Resolution {
	res := Resolution{Resolved: true, Hold: hold}
	if reason := Qualify(tracker, hold); reason != "" {
		res.SkipReason = reason
		return res
	}
	if h.persist == nil {
		res.SkipReason = ReasonPersistFailed
		return res
	}
	if err := h.persist(ctx, hold); err != nil {
		res.SkipReason = ReasonPersistFailed
		res.Err = err
		return res
	}
	tracker.MarkLogged(hold.Label)
	res.Persisted = true
	return res
}
