// Package pose turns a noisy stream of per-frame pose classifications
// into pose holds that are logged at most once each.
//
// Nothing in this package is safe for concurrent use. The session
// controller serializes every call and hands its lock to the
// tracking-loss monitor so timer callbacks join the same critical section.
package pose

import "time"

const (
	// MinConfidenceForLogging is the single threshold used for display,
	// announcement, detection gating and hold qualification.
	MinConfidenceForLogging = 0.85

	// MinHoldSeconds is the shortest hold, in whole seconds, that may be persisted.
	MinHoldSeconds = 2

	StabilizationWindow = 1000 * time.Millisecond
	StabilizationBuffer = 3

	DefaultGracePeriod = 3000 * time.Millisecond
)

// Accept reports whether a single reading clears MinConfidenceForLogging.
func Accept(confidence float64) bool {
	return confidence >= MinConfidenceForLogging
}

// ConfidencePercent rounds a [0,1] confidence to a whole percentage.
func ConfidencePercent(confidence float64) int {
	return int(confidence*100 + 0.5)
}
