package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock. Tick channels are unbuffered, so Tick
// returns only once the consumer has received the tick.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	afters  []chan time.Time
}

// NewFake returns a Fake clock set at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time), stop: make(chan struct{})}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) After(time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := make(chan time.Time, 1)
	f.afters = append(f.afters, c)
	return c
}

// Advance moves the clock forward without firing anything.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Tick delivers one tick on the most recent running ticker. It reports false
// when no ticker is running or the consumer does not receive within a second.
func (f *Fake) Tick() bool {
	f.mu.Lock()
	f.now = f.now.Add(time.Second)
	now := f.now
	var t *fakeTicker
	for i := len(f.tickers) - 1; i >= 0; i-- {
		if !f.tickers[i].stopped() {
			t = f.tickers[i]
			break
		}
	}
	f.mu.Unlock()

	if t == nil {
		return false
	}
	select {
	case t.c <- now:
		return true
	case <-t.stop:
		return false
	case <-time.After(time.Second):
		return false
	}
}

// Running reports how many tickers have not been stopped.
func (f *Fake) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

// FireAfters fires every pending After channel and returns how many fired.
func (f *Fake) FireAfters() int {
	f.mu.Lock()
	pending := f.afters
	f.afters = nil
	now := f.now
	f.mu.Unlock()

	for _, c := range pending {
		c <- now
	}
	return len(pending)
}

// PendingAfters reports how many After channels are waiting to fire.
func (f *Fake) PendingAfters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.afters)
}

type fakeTicker struct {
	c    chan time.Time
	once sync.Once
	stop chan struct{}
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *fakeTicker) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
