package session

// TickResult describes what a tick did to the timer.
type TickResult struct {
	// Applied is false for ticks that were ignored (paused or stale).
	Applied bool
	// Expired is true exactly once per arming, on the tick that reached zero.
	Expired bool
}

// Timer is the countdown for the current question. It only moves when ticks
// tagged with the capture it was armed for arrive.
type Timer struct {
	limit     int
	remaining int
	owner     CaptureID
	running   bool
	expired   bool
}

// NewTimer returns a paused timer at limit.
func NewTimer(limit int) *Timer {
	t := &Timer{}
	t.Reset(limit)
	return t
}

// Reset sets the remaining time to limit and stops ticking.
func (t *Timer) Reset(limit int) {
	if limit < 0 {
		limit = 0
	}
	t.limit = limit
	t.remaining = limit
	t.owner = 0
	t.running = false
	t.expired = false
}

// Start arms the timer for capture id. An exhausted timer is refilled first
// so a re-recording gets the full allowance.
func (t *Timer) Start(id CaptureID) {
	if t.remaining == 0 {
		t.Reset(t.limit)
	}
	t.owner = id
	t.running = true
	t.expired = false
}

// Pause stops ticking and keeps the remaining time.
func (t *Timer) Pause() {
	t.running = false
}

// Tick decrements by one second if the timer is running for id.
func (t *Timer) Tick(id CaptureID) TickResult {
	if !t.running || id != t.owner {
		return TickResult{}
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.running = false
		if !t.expired {
			t.expired = true
			return TickResult{Applied: true, Expired: true}
		}
	}
	return TickResult{Applied: true}
}

// Remaining returns the seconds left, never negative.
func (t *Timer) Remaining() int { return t.remaining }

// Limit returns the allotted seconds the timer was last reset to.
func (t *Timer) Limit() int { return t.limit }

// Running reports whether ticks are currently applied.
func (t *Timer) Running() bool { return t.running }
