package player

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultRuntimeTimeout bounds how long a Loader waits for the runtime.
const DefaultRuntimeTimeout = 15 * time.Second

// ErrRuntimeTimeout is returned when the runtime did not become ready in time.
var ErrRuntimeTimeout = errors.New("player: runtime load timed out")

type attempt struct {
	done chan struct{}
	err  error
}

// Loader is a memoized "runtime ready" future. The first Wait starts the
// load; every waiter observes the same result. A failed load stays failed
// until Reload.
type Loader struct {
	load    func(ctx context.Context) error
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	cur *attempt
	wg  sync.WaitGroup
}

// NewLoader wraps load, which must block until the runtime is ready or ctx ends.
func NewLoader(load func(ctx context.Context) error, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultRuntimeTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &Loader{load: load, timeout: timeout, base: base, cancel: cancel}
}

// Wait blocks until the runtime is ready, the load fails, or ctx ends. A
// cancelled waiter does not cancel the shared load.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	if l.cur == nil {
		l.cur = &attempt{done: make(chan struct{})}
		l.wg.Add(1)
		go l.run(l.cur)
	}
	a := l.cur
	l.mu.Unlock()

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) run(a *attempt) {
	defer l.wg.Done()
	ctx, cancel := context.WithTimeout(l.base, l.timeout)
	defer cancel()

	err := l.load(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrRuntimeTimeout
	}
	a.err = err
	close(a.done)
}

// Ready reports whether a load has completed successfully.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	a := l.cur
	l.mu.Unlock()
	if a == nil {
		return false
	}
	select {
	case <-a.done:
		return a.err == nil
	default:
		return false
	}
}

// Reload discards a failed result so the next Wait loads again. It reports
// whether the loader was re-armed; pending and successful loads are kept.
func (l *Loader) Reload() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return false
	}
	select {
	case <-l.cur.done:
		if l.cur.err == nil {
			return false
		}
		l.cur = nil
		return true
	default:
		return false
	}
}

// Close cancels an in-flight load and waits for it to return.
func (l *Loader) Close() {
	l.cancel()
	l.wg.Wait()
}
