package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/pedroql/mvflow/internal/bus"
)

// ErrTickerRunning is returned by Start on a running Ticker.
var ErrTickerRunning = errors.New("ticker already running")

// Tick is one ticker pulse. N counts pulses since the ticker was created.
type Tick struct {
	N  int64
	At time.Time
}

// Ticker broadcasts Ticks at a fixed interval between Start and Stop.
//
// Each engine instance owns its Ticker; there is no process-wide ticker.
// Subscribers get the newest Tick only when they fall behind.
type Ticker struct {
	interval     time.Duration
	initialDelay time.Duration
	clock        clockz.Clock
	bus          *bus.Bus[Tick]

	mu      sync.Mutex
	n       int64
	cancel  context.CancelFunc
	stopped chan struct{}
}

// TickerOption configures a Ticker.
type TickerOption func(*Ticker)

// WithClock sets the clock. Use clockz.NewFakeClock() in tests.
func WithClock(c clockz.Clock) TickerOption {
	return func(t *Ticker) {
		t.clock = c
	}
}

// WithInitialDelay delays the first Tick. By default it fires on Start.
func WithInitialDelay(d time.Duration) TickerOption {
	return func(t *Ticker) {
		t.initialDelay = d
	}
}

// NewTicker creates a stopped Ticker.
func NewTicker(interval time.Duration, opts ...TickerOption) *Ticker {
	t := &Ticker{
		interval: interval,
		clock:    clockz.RealClock,
		bus:      bus.New[Tick](bus.Conflate()),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins ticking until Stop is called or ctx ends. Either way the
// Ticker can be started again afterwards.
func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return ErrTickerRunning
	}

	tctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.stopped = make(chan struct{})
	go t.run(tctx, t.stopped)
	return nil
}

// Stop halts the Ticker and waits for its goroutine. Safe to call when stopped.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, stopped := t.cancel, t.stopped
	t.cancel, t.stopped = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Close stops the Ticker and ends every subscription.
func (t *Ticker) Close() {
	t.Stop()
	t.bus.Close()
}

// Running reports whether the Ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Subscribe returns Ticks published from now on.
func (t *Ticker) Subscribe(ctx context.Context) <-chan Tick {
	return t.bus.Subscribe(ctx).C()
}

func (t *Ticker) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	defer t.release(stopped)

	delay := t.initialDelay
	if delay <= 0 {
		t.fire(t.clock.Now())
		delay = t.interval
	}

	timer := t.clock.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-timer.C():
			t.fire(at)
			timer.Reset(t.interval)
		}
	}
}

// release marks the Ticker stopped when run ends because its Start context
// did, so Running reports false and Start may be called again.
func (t *Ticker) release(stopped chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped != stopped {
		return
	}
	t.cancel()
	t.cancel, t.stopped = nil, nil
}

func (t *Ticker) fire(at time.Time) {
	t.mu.Lock()
	t.n++
	n := t.n
	t.mu.Unlock()

	t.bus.Offer(Tick{N: n, At: at})
}
