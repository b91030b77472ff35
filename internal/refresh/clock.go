package refresh

import "time"

// Clock creates the timers the supervisor waits on.
// Tests substitute a fake to observe and skip waits.
type Clock interface {
	NewTimer(d time.Duration) Timer
	Now() time.Time
}

// Timer is the subset of *time.Timer the supervisor needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realClock struct{}

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }
func (realClock) Now() time.Time                 { return time.Now() }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
