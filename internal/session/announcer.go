package session

import "time"

// announcer decides when a displayed pose is announced and when its
// instructions are fetched. Both happen at most once per entry into a label.
type announcer struct {
	confirmation time.Duration

	lastAnnounced string
	confirmLabel  string
	confirmSince  time.Time
	instructed    string
}

func newAnnouncer(confirmation time.Duration) *announcer {
	return &announcer{confirmation: confirmation}
}

func (a *announcer) reset() {
	*a = announcer{confirmation: a.confirmation}
}

// observe records a displayed (above threshold) detection.
func (a *announcer) observe(label string, now time.Time) (announce, instruct bool) {
	if label != a.lastAnnounced {
		a.lastAnnounced = label
		announce = true
	}

	if label != a.confirmLabel {
		a.confirmLabel = label
		a.confirmSince = now
		a.instructed = ""
		return announce, false
	}
	if a.instructed != label && now.Sub(a.confirmSince) >= a.confirmation {
		a.instructed = label
		instruct = true
	}
	return announce, instruct
}
