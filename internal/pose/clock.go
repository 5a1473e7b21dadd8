package pose

import "time"

// Timer is the part of *time.Timer the monitor needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and delayed callbacks so tests can drive both.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
