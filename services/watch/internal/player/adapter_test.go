package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeHandle struct {
	mu        sync.Mutex
	current   float64
	duration  float64
	state     State
	seeks     []float64
	destroyed int
	failReads bool
}

func (h *fakeHandle) SeekTo(seconds float64, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed > 0 {
		return ErrDestroyed
	}
	h.seeks = append(h.seeks, seconds)
	h.current = seconds
	return nil
}

func (h *fakeHandle) CurrentTime() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed > 0 {
		return 0, ErrDestroyed
	}
	if h.failReads {
		return 0, ErrNotReady
	}
	return h.current, nil
}

func (h *fakeHandle) Duration() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed > 0 {
		return 0, ErrDestroyed
	}
	return h.duration, nil
}

func (h *fakeHandle) State() (State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed > 0 {
		return 0, ErrDestroyed
	}
	return h.state, nil
}

func (h *fakeHandle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed++
	return nil
}

func (h *fakeHandle) set(current, duration float64, st State) {
	h.mu.Lock()
	h.current, h.duration, h.state = current, duration, st
	h.mu.Unlock()
}

func (h *fakeHandle) seekLog() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.seeks...)
}

type fakeRuntime struct {
	readyErr error
	handle   *fakeHandle

	mu      sync.Mutex
	created int
	vars    PlayerVars
	events  Events
}

func (r *fakeRuntime) Ready(context.Context) error { return r.readyErr }

func (r *fakeRuntime) NewPlayer(_ string, vars PlayerVars, ev Events) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	r.vars = vars
	r.events = ev
	return r.handle, nil
}

func (r *fakeRuntime) fireReady() {
	r.mu.Lock()
	ev := r.events
	r.mu.Unlock()
	ev.OnReady()
}

type saveLog struct {
	mu    sync.Mutex
	saves [][2]float64
}

func (s *saveLog) SaveProgress(_ context.Context, ct, d float64) {
	s.mu.Lock()
	s.saves = append(s.saves, [2]float64{ct, d})
	s.mu.Unlock()
}

func (s *saveLog) all() [][2]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]float64(nil), s.saves...)
}

const testSource = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func newTestAdapter(rt Runtime, strategy Strategy, start float64) (*Adapter, *Unload, *saveLog) {
	u := NewUnload()
	saves := &saveLog{}
	a := NewAdapter(Config{
		Source:    testSource,
		MovieID:   "m1",
		StartTime: start,
		Strategy:  strategy,
		Runtime:   rt,
		Unload:    u,
		Saver:     saves,
	})
	return a, u, saves
}

func TestAdapter_InvalidSourceNeverConstructs(t *testing.T) {
	rt := &fakeRuntime{handle: &fakeHandle{}}
	a := NewAdapter(Config{Source: "not a video", Runtime: rt, Unload: NewUnload()})

	if err := a.Mount(context.Background()); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("Mount err = %v", err)
	}
	if st, reason := a.Status(); st != StatusUnavailable || reason != ReasonInvalidSource {
		t.Fatalf("Status = %s %s", st, reason)
	}
	if rt.created != 0 {
		t.Fatal("player constructed for an invalid source")
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestAdapter_RuntimeTimeoutIsUnavailable(t *testing.T) {
	rt := &fakeRuntime{readyErr: ErrRuntimeTimeout, handle: &fakeHandle{}}
	a, u, _ := newTestAdapter(rt, Boundary{}, 0)

	if err := a.Mount(context.Background()); !errors.Is(err, ErrRuntimeTimeout) {
		t.Fatalf("Mount err = %v", err)
	}
	if st, reason := a.Status(); st != StatusUnavailable || reason != ReasonRuntimeTimeout {
		t.Fatalf("Status = %s %s", st, reason)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if u.Listeners() != 0 {
		t.Fatal("unload listener leaked")
	}
}

func TestAdapter_ConstructsWithStartAndSeeksOnReady(t *testing.T) {
	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, u, _ := newTestAdapter(rt, Boundary{}, 300)

	if err := a.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if rt.vars.Start != 300 || rt.vars.Autoplay != 1 || rt.vars.Rel != 0 || rt.vars.ModestBranding != 1 {
		t.Fatalf("vars = %+v", rt.vars)
	}
	if u.Listeners() != 1 {
		t.Fatalf("Listeners = %d, want exactly 1", u.Listeners())
	}
	// A second mount is a no-op.
	if err := a.Mount(context.Background()); err != nil || rt.created != 1 || u.Listeners() != 1 {
		t.Fatalf("second Mount: err %v created %d listeners %d", err, rt.created, u.Listeners())
	}

	rt.fireReady()
	if got := h.seekLog(); len(got) != 1 || got[0] != 300 {
		t.Fatalf("seeks = %v, want [300]", got)
	}
	if st, _ := a.Status(); st != StatusReady {
		t.Fatalf("Status = %s", st)
	}
	_ = a.Close(context.Background())
}

// eagerRuntime reports ready from inside NewPlayer, the way a remote
// browser can when it drains the create command quickly.
type eagerRuntime struct {
	handle *fakeHandle
}

func (r *eagerRuntime) Ready(context.Context) error { return nil }

func (r *eagerRuntime) NewPlayer(_ string, _ PlayerVars, ev Events) (Handle, error) {
	ev.OnReady()
	return r.handle, nil
}

func TestAdapter_ReadyBeforeHandleStillSeeks(t *testing.T) {
	h := &fakeHandle{}
	a, _, _ := newTestAdapter(&eagerRuntime{handle: h}, Boundary{}, 300)

	if err := a.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if st, _ := a.Status(); st != StatusReady {
		t.Fatalf("Status = %s", st)
	}
	if got := h.seekLog(); len(got) != 1 || got[0] != 300 {
		t.Fatalf("seeks = %v, want [300]", got)
	}
	_ = a.Close(context.Background())
}

func TestAdapter_ReadyBeforeHandleZeroStart(t *testing.T) {
	h := &fakeHandle{}
	a, _, _ := newTestAdapter(&eagerRuntime{handle: h}, Boundary{}, 0)

	if err := a.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := h.seekLog(); len(got) != 0 {
		t.Fatalf("seeked with zero start: %v", got)
	}
	_ = a.Close(context.Background())
}

func TestAdapter_SetStartTimeReseeksLivePlayer(t *testing.T) {
	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, _, _ := newTestAdapter(rt, Boundary{}, 0)
	_ = a.Mount(context.Background())
	rt.fireReady()

	if got := h.seekLog(); len(got) != 0 {
		t.Fatalf("seeked with zero start: %v", got)
	}
	a.SetStartTime(300)
	if got := h.seekLog(); len(got) != 1 || got[0] != 300 {
		t.Fatalf("seeks = %v", got)
	}
	if rt.created != 1 {
		t.Fatal("player recreated on start time change")
	}
	_ = a.Close(context.Background())
}

func TestAdapter_SetStartTimeBeforeReady(t *testing.T) {
	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, _, _ := newTestAdapter(rt, Boundary{}, 0)
	_ = a.Mount(context.Background())

	a.SetStartTime(120)
	if got := h.seekLog(); len(got) != 0 {
		t.Fatalf("seeked before ready: %v", got)
	}
	rt.fireReady()
	if got := h.seekLog(); len(got) != 1 || got[0] != 120 {
		t.Fatalf("seeks = %v", got)
	}
	_ = a.Close(context.Background())
}

func TestAdapter_TeardownSave(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, u, saves := newTestAdapter(rt, Periodic{Interval: time.Hour}, 0)
	_ = a.Mount(context.Background())
	rt.fireReady()
	h.set(400, 1200, StatePlaying)

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := saves.all()
	if len(got) != 1 || got[0] != [2]float64{400, 1200} {
		t.Fatalf("saves = %v, want one final save of 400/1200", got)
	}
	if h.destroyed != 1 {
		t.Fatalf("destroyed %d times", h.destroyed)
	}
	if u.Listeners() != 0 {
		t.Fatal("unload listener not deregistered")
	}

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if h.destroyed != 1 || len(saves.all()) != 1 {
		t.Fatal("second Close was not a no-op")
	}
	if st, _ := a.Status(); st != StatusClosed {
		t.Fatalf("Status = %s", st)
	}
}

func TestAdapter_SkipsEndedAndUnknown(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		duration float64
		state    State
		fail     bool
	}{
		{"ended", 1190, 1200, StateEnded, false},
		{"unknown duration", 400, 0, StatePlaying, false},
		{"unknown time", 0, 1200, StateUnstarted, false},
		{"read error", 400, 1200, StatePlaying, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &fakeHandle{failReads: tc.fail}
			rt := &fakeRuntime{handle: h}
			a, _, saves := newTestAdapter(rt, Boundary{}, 0)
			_ = a.Mount(context.Background())
			rt.fireReady()
			h.set(tc.current, tc.duration, tc.state)

			if err := a.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if got := saves.all(); len(got) != 0 {
				t.Fatalf("saves = %v, want none", got)
			}
			if h.destroyed != 1 {
				t.Fatal("player not destroyed")
			}
		})
	}
}

func TestAdapter_PeriodicSampling(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, _, saves := newTestAdapter(rt, Periodic{Interval: 5 * time.Millisecond}, 0)
	_ = a.Mount(context.Background())
	h.set(60, 600, StatePlaying)
	rt.fireReady()

	deadline := time.Now().Add(2 * time.Second)
	for len(saves.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(saves.all()) < 2 {
		t.Fatal("periodic sampling produced fewer than two saves")
	}
	_ = a.Close(context.Background())
	n := len(saves.all())
	time.Sleep(20 * time.Millisecond)
	if len(saves.all()) != n {
		t.Fatal("sampling continued after Close")
	}
}

func TestAdapter_BoundaryDoesNotTick(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := &fakeHandle{}
	rt := &fakeRuntime{handle: h}
	a, u, saves := newTestAdapter(rt, Boundary{}, 0)
	_ = a.Mount(context.Background())
	h.set(60, 600, StatePlaying)
	rt.fireReady()

	time.Sleep(20 * time.Millisecond)
	if len(saves.all()) != 0 {
		t.Fatal("boundary strategy sampled without a boundary event")
	}
	u.Fire()
	if got := saves.all(); len(got) != 1 || got[0] != [2]float64{60, 600} {
		t.Fatalf("saves after unload = %v", got)
	}
	_ = a.Close(context.Background())
}

type panickyHandle struct{ fakeHandle }

func (p *panickyHandle) Destroy() error { panic("embed gone") }

func TestAdapter_CloseStepsAreIndependent(t *testing.T) {
	h := &panickyHandle{}
	rt := &fakeRuntime{}
	u := NewUnload()
	saves := &saveLog{}
	a := NewAdapter(Config{Source: testSource, Runtime: &panickyRuntime{fakeRuntime: rt, h: h}, Unload: u, Saver: saves, Strategy: Boundary{}})
	_ = a.Mount(context.Background())
	h.set(400, 1200, StatePlaying)

	err := a.Close(context.Background())
	if err == nil {
		t.Fatal("expected the destroy failure to be reported")
	}
	if u.Listeners() != 0 {
		t.Fatal("unload listener kept after a failing destroy")
	}
	if len(saves.all()) != 1 {
		t.Fatal("final save skipped")
	}
}

type panickyRuntime struct {
	*fakeRuntime
	h *panickyHandle
}

func (r *panickyRuntime) NewPlayer(string, PlayerVars, Events) (Handle, error) {
	return r.h, nil
}

type reloadingRuntime struct {
	fakeRuntime
	reloads int
}

func (r *reloadingRuntime) Reload() bool {
	r.reloads++
	r.readyErr = nil
	return true
}

func TestAdapter_Retry(t *testing.T) {
	rt := &reloadingRuntime{fakeRuntime: fakeRuntime{readyErr: ErrRuntimeTimeout, handle: &fakeHandle{}}}
	a, u, _ := newTestAdapter(rt, Boundary{}, 0)

	if err := a.Mount(context.Background()); err == nil {
		t.Fatal("expected timeout")
	}
	if err := a.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if rt.reloads != 1 || rt.created != 1 {
		t.Fatalf("reloads %d created %d", rt.reloads, rt.created)
	}
	if u.Listeners() != 1 {
		t.Fatalf("Listeners = %d after retry", u.Listeners())
	}
	if err := a.Retry(context.Background()); err == nil {
		t.Fatal("Retry on a healthy adapter should fail")
	}
	_ = a.Close(context.Background())
}
