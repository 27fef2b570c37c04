package player

import "sync"

// UnloadSignal is the page-unload notification of a viewing session.
type UnloadSignal interface {
	Register(fn func()) (deregister func())
}

// Unload is an UnloadSignal that fires at most once.
type Unload struct {
	mu    sync.Mutex
	fired bool
	next  int
	fns   map[int]func()
}

func NewUnload() *Unload {
	return &Unload{fns: make(map[int]func())}
}

func (u *Unload) Register(fn func()) (deregister func()) {
	u.mu.Lock()
	id := u.next
	u.next++
	u.fns[id] = fn
	u.mu.Unlock()

	return func() {
		u.mu.Lock()
		delete(u.fns, id)
		u.mu.Unlock()
	}
}

// Fire runs every registered listener once. Later calls are no-ops.
func (u *Unload) Fire() bool {
	u.mu.Lock()
	if u.fired {
		u.mu.Unlock()
		return false
	}
	u.fired = true
	fns := make([]func(), 0, len(u.fns))
	for _, fn := range u.fns {
		fns = append(fns, fn)
	}
	u.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true
}

// Listeners returns the number of registered listeners.
func (u *Unload) Listeners() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.fns)
}
