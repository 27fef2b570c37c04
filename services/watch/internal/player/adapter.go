package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
)

// Runtime is the embeddable player runtime. Ready blocks until the runtime
// can construct players.
type Runtime interface {
	Ready(ctx context.Context) error
	NewPlayer(videoID string, vars PlayerVars, events Events) (Handle, error)
}

// Reloader is implemented by runtimes that can retry a failed load.
type Reloader interface {
	Reload() bool
}

// Saver receives progress samples.
type Saver interface {
	SaveProgress(ctx context.Context, currentTime, duration float64)
}

type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
	StatusClosed      Status = "closed"
)

// Reasons reported with StatusUnavailable.
const (
	ReasonInvalidSource  = "invalid_source"
	ReasonRuntimeTimeout = "runtime_timeout"
	ReasonRuntimeFailed  = "runtime_failed"
	ReasonPlayerError    = "player_error"
)

// ErrClosed is returned by Mount after Close.
var ErrClosed = errors.New("player: adapter closed")

type Config struct {
	Source    string
	MovieID   string
	StartTime float64
	Strategy  Strategy
	Runtime   Runtime
	Unload    UnloadSignal
	Saver     Saver
	Logger    *zap.Logger
}

// Adapter owns exactly one player instance for one viewing session.
type Adapter struct {
	videoID  string
	movieID  string
	strategy Strategy
	runtime  Runtime
	unload   UnloadSignal
	saver    Saver
	log      *zap.Logger

	mu         sync.Mutex
	status     Status
	reason     string
	start      float64
	handle     Handle
	ready      bool
	lastState  State
	deregister func()
	stopTick   chan struct{}
	tickWG     sync.WaitGroup
	mounting   bool
	closed     bool
	lastSample time.Time
}

// NewAdapter validates the source. An unparseable source leaves the adapter
// unavailable and no player is ever constructed.
func NewAdapter(cfg Config) *Adapter {
	a := &Adapter{
		movieID:   cfg.MovieID,
		strategy:  cfg.Strategy,
		runtime:   cfg.Runtime,
		unload:    cfg.Unload,
		saver:     cfg.Saver,
		log:       logging.OrNop(cfg.Logger).With(zap.String("movie_id", cfg.MovieID)),
		status:    StatusIdle,
		start:     cfg.StartTime,
		lastState: StateUnstarted,
	}
	if a.strategy == nil {
		a.strategy = Periodic{}
	}
	id, err := ParseVideoID(cfg.Source)
	if err != nil {
		a.status = StatusUnavailable
		a.reason = ReasonInvalidSource
		a.log.Info("player: unavailable", zap.String("reason", ReasonInvalidSource))
		return a
	}
	a.videoID = id
	return a
}

func (a *Adapter) VideoID() string { return a.videoID }

// Status returns the presentational state and, when unavailable, the reason.
func (a *Adapter) Status() (Status, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.reason
}

// StartTime returns the currently requested start offset.
func (a *Adapter) StartTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.start
}

// LastState returns the most recent play state the player reported.
func (a *Adapter) LastState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastState
}

// Mount registers the unload listener, waits for the runtime and constructs
// the player. It returns ErrInvalidSource without touching the runtime when
// the source could not be parsed.
func (a *Adapter) Mount(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.reason == ReasonInvalidSource {
		a.mu.Unlock()
		return ErrInvalidSource
	}
	if a.handle != nil || a.mounting {
		a.mu.Unlock()
		return nil
	}
	a.mounting = true
	if a.deregister == nil && a.unload != nil {
		a.deregister = a.unload.Register(a.onUnload)
	}
	a.status, a.reason = StatusLoading, ""
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.mounting = false
		a.mu.Unlock()
	}()

	if err := a.runtime.Ready(ctx); err != nil {
		reason := ReasonRuntimeFailed
		if errors.Is(err, ErrRuntimeTimeout) {
			reason = ReasonRuntimeTimeout
		}
		a.setUnavailable(reason)
		return fmt.Errorf("player runtime: %w", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	vars := DefaultPlayerVars(a.start)
	a.mu.Unlock()

	h, err := a.runtime.NewPlayer(a.videoID, vars, Events{
		OnReady:       a.onReady,
		OnStateChange: a.onStateChange,
		OnError:       a.onError,
	})
	if err != nil {
		a.setUnavailable(ReasonRuntimeFailed)
		return fmt.Errorf("construct player: %w", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		// Closed while constructing: release the player we just made.
		if derr := h.Destroy(); derr != nil {
			a.log.Debug("player: destroy after close", zap.Error(derr))
		}
		return ErrClosed
	}
	a.handle = h
	// Ready fired from inside NewPlayer, before the handle was stored.
	start, pending := a.start, a.ready
	a.mu.Unlock()

	if pending && start > 0 {
		a.seek(h, start)
	}
	return nil
}

// Retry re-arms a runtime that failed to load and mounts again.
func (a *Adapter) Retry(ctx context.Context) error {
	a.mu.Lock()
	reason := a.reason
	a.mu.Unlock()
	if reason != ReasonRuntimeTimeout && reason != ReasonRuntimeFailed {
		return fmt.Errorf("player: nothing to retry (status reason %q)", reason)
	}
	if r, ok := a.runtime.(Reloader); ok {
		r.Reload()
	}
	return a.Mount(ctx)
}

func (a *Adapter) setUnavailable(reason string) {
	a.mu.Lock()
	if !a.closed {
		a.status, a.reason = StatusUnavailable, reason
	}
	a.mu.Unlock()
	a.log.Warn("player: unavailable", zap.String("reason", reason))
}

func (a *Adapter) onReady() {
	a.mu.Lock()
	if a.closed || a.ready {
		a.mu.Unlock()
		return
	}
	a.ready = true
	a.status, a.reason = StatusReady, ""
	h, start := a.handle, a.start
	interval := time.Duration(0)
	if t, ok := a.strategy.(Ticker); ok {
		interval = t.TickInterval()
		a.stopTick = make(chan struct{})
		a.tickWG.Add(1)
		go a.tick(interval, a.stopTick)
	}
	a.mu.Unlock()

	if start > 0 && h != nil {
		a.seek(h, start)
	}
	a.log.Debug("player: ready", zap.Float64("start", start), zap.Duration("sample_interval", interval))
}

func (a *Adapter) onStateChange(s State) {
	a.mu.Lock()
	a.lastState = s
	a.mu.Unlock()
}

func (a *Adapter) onError(code int) {
	a.log.Warn("player: embed error", zap.Int("code", code))
	a.setUnavailable(ReasonPlayerError)
}

func (a *Adapter) onUnload() {
	a.sample(context.Background(), EventUnload)
}

// SetStartTime changes the requested offset. A live player is re-seeked in
// place; otherwise the offset applies when the player becomes ready.
func (a *Adapter) SetStartTime(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	a.mu.Lock()
	a.start = seconds
	h, live := a.handle, a.ready && !a.closed
	a.mu.Unlock()

	if live && h != nil {
		a.seek(h, seconds)
	}
}

func (a *Adapter) seek(h Handle, seconds float64) {
	if err := h.SeekTo(seconds, true); err != nil {
		a.log.Debug("player: seek failed", zap.Float64("seconds", seconds), zap.Error(err))
	}
}

func (a *Adapter) tick(interval time.Duration, stop <-chan struct{}) {
	defer a.tickWG.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			a.sample(context.Background(), EventTick)
		}
	}
}

// sample reads the player and forwards a save. Any read failure, the ended
// state and unknown time or duration skip the sample.
func (a *Adapter) sample(ctx context.Context, kind EventKind) {
	now := time.Now()
	if !a.strategy.ShouldSampleNow(Event{Kind: kind, At: now}) {
		return
	}
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h == nil || a.saver == nil {
		return
	}

	st, err := h.State()
	if err != nil {
		a.log.Debug("player: skip sample", zap.Stringer("event", kind), zap.Error(err))
		return
	}
	if st == StateEnded {
		return
	}
	ct, err := h.CurrentTime()
	if err != nil {
		a.log.Debug("player: skip sample", zap.Stringer("event", kind), zap.Error(err))
		return
	}
	d, err := h.Duration()
	if err != nil {
		a.log.Debug("player: skip sample", zap.Stringer("event", kind), zap.Error(err))
		return
	}
	if !(ct > 0) || !(d > 0) || math.IsInf(ct, 0) || math.IsInf(d, 0) {
		return
	}

	a.saver.SaveProgress(ctx, ct, d)
	a.mu.Lock()
	a.lastSample = now
	a.mu.Unlock()
}

// LastSample returns when a sample was last forwarded to the saver.
func (a *Adapter) LastSample() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSample
}

// Close tears the player down: stop sampling, take a final sample, destroy
// the player and deregister the unload listener. Every step runs even if an
// earlier one fails. Calling Close again is a no-op.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stop := a.stopTick
	a.stopTick = nil
	a.mu.Unlock()

	var errs []error
	errs = append(errs, a.guard("stop ticker", func() error {
		if stop != nil {
			close(stop)
		}
		a.tickWG.Wait()
		return nil
	}))
	errs = append(errs, a.guard("final save", func() error {
		a.sample(ctx, EventUnmount)
		return nil
	}))

	a.mu.Lock()
	a.ready = false
	h := a.handle
	a.handle = nil
	dereg := a.deregister
	a.deregister = nil
	a.status, a.reason = StatusClosed, ""
	a.mu.Unlock()

	errs = append(errs, a.guard("destroy", func() error {
		if h == nil {
			return nil
		}
		return h.Destroy()
	}))
	errs = append(errs, a.guard("deregister unload", func() error {
		if dereg != nil {
			dereg()
		}
		return nil
	}))
	return errors.Join(errs...)
}

// guard runs one teardown step, converting a panic into an error.
func (a *Adapter) guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("player: %s panicked: %v", step, r)
		}
		if err != nil {
			a.log.Warn("player: teardown step failed", zap.String("step", step), zap.Error(err))
		}
	}()
	return fn()
}
