package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/movieon/services/watch/internal/player"
)

// Browser event types accepted by RemoteRuntime.Apply.
const (
	EventAPIReady = "api_ready"
	EventReady    = "ready"
	EventState    = "state"
	EventProgress = "progress"
	EventError    = "error"
)

// BrowserEvent is reported by the page hosting the real embed. Any event may
// carry a fresh reading of the player.
type BrowserEvent struct {
	Type        string   `json:"type"`
	State       *int     `json:"state,omitempty"`
	CurrentTime *float64 `json:"current_time,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	Code        int      `json:"code,omitempty"`
}

// Command types queued for the browser.
const (
	CommandCreate  = "create"
	CommandSeek    = "seek"
	CommandDestroy = "destroy"
)

// Command is an instruction for the page hosting the embed.
type Command struct {
	Type           string             `json:"type"`
	VideoID        string             `json:"video_id,omitempty"`
	EmbedURL       string             `json:"embed_url,omitempty"`
	PlayerVars     *player.PlayerVars `json:"player_vars,omitempty"`
	Seconds        float64            `json:"seconds,omitempty"`
	AllowSeekAhead bool               `json:"allow_seek_ahead,omitempty"`
}

// RemoteRuntime is a player.Runtime whose players live in the viewer's
// browser. Readiness resolves when the page reports api_ready; handles mirror
// the state the page reports and queue commands back to it.
type RemoteRuntime struct {
	loader   *player.Loader
	apiReady chan struct{}
	once     sync.Once

	mu       sync.Mutex
	handle   *RemoteHandle
	events   player.Events
	commands []Command
}

func NewRemoteRuntime(timeout time.Duration) *RemoteRuntime {
	r := &RemoteRuntime{apiReady: make(chan struct{})}
	r.loader = player.NewLoader(func(ctx context.Context) error {
		select {
		case <-r.apiReady:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, timeout)
	return r
}

func (r *RemoteRuntime) Ready(ctx context.Context) error {
	return r.loader.Wait(ctx)
}

// Reload re-arms a runtime whose load failed.
func (r *RemoteRuntime) Reload() bool {
	return r.loader.Reload()
}

func (r *RemoteRuntime) NewPlayer(videoID string, vars player.PlayerVars, events player.Events) (player.Handle, error) {
	h := &RemoteHandle{rt: r, state: player.StateUnstarted}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handle = h
	r.events = events
	v := vars
	r.commands = append(r.commands, Command{
		Type:       CommandCreate,
		VideoID:    videoID,
		EmbedURL:   player.EmbedURL(videoID, vars),
		PlayerVars: &v,
	})
	return h, nil
}

// Apply mirrors a browser event and dispatches player callbacks.
func (r *RemoteRuntime) Apply(ev BrowserEvent) {
	if ev.Type == EventAPIReady {
		r.once.Do(func() { close(r.apiReady) })
	}

	r.mu.Lock()
	h, events := r.handle, r.events
	r.mu.Unlock()
	if h == nil {
		return
	}
	h.mirror(ev)

	switch ev.Type {
	case EventReady:
		h.markReady()
		if events.OnReady != nil {
			events.OnReady()
		}
	case EventState:
		if ev.State != nil && events.OnStateChange != nil {
			events.OnStateChange(player.State(*ev.State))
		}
	case EventError:
		if events.OnError != nil {
			events.OnError(ev.Code)
		}
	}
}

func (r *RemoteRuntime) enqueue(c Command) {
	r.mu.Lock()
	r.commands = append(r.commands, c)
	r.mu.Unlock()
}

// Drain returns and clears the queued commands.
func (r *RemoteRuntime) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.commands
	r.commands = nil
	return out
}

func (r *RemoteRuntime) Close() {
	r.loader.Close()
}

// RemoteHandle mirrors one browser player.
type RemoteHandle struct {
	rt *RemoteRuntime

	mu        sync.Mutex
	ready     bool
	destroyed bool
	current   float64
	duration  float64
	hasTime   bool
	state     player.State
}

func (h *RemoteHandle) mirror(ev BrowserEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	if ev.CurrentTime != nil && finite(*ev.CurrentTime) {
		h.current = *ev.CurrentTime
		h.hasTime = true
	}
	if ev.Duration != nil && finite(*ev.Duration) {
		h.duration = *ev.Duration
	}
	if ev.State != nil {
		if s := player.State(*ev.State); s.Valid() {
			h.state = s
		}
	}
}

func (h *RemoteHandle) markReady() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
}

func (h *RemoteHandle) check() error {
	if h.destroyed {
		return player.ErrDestroyed
	}
	if !h.ready {
		return player.ErrNotReady
	}
	return nil
}

func (h *RemoteHandle) SeekTo(seconds float64, allowSeekAhead bool) error {
	h.mu.Lock()
	if err := h.check(); err != nil {
		h.mu.Unlock()
		return err
	}
	h.current = seconds
	h.hasTime = true
	h.mu.Unlock()

	h.rt.enqueue(Command{Type: CommandSeek, Seconds: seconds, AllowSeekAhead: allowSeekAhead})
	return nil
}

func (h *RemoteHandle) CurrentTime() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return 0, err
	}
	if !h.hasTime {
		return 0, player.ErrNotReady
	}
	return h.current, nil
}

func (h *RemoteHandle) Duration() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.duration, nil
}

func (h *RemoteHandle) State() (player.State, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return player.StateUnstarted, err
	}
	return h.state, nil
}

func (h *RemoteHandle) Destroy() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.mu.Unlock()

	h.rt.enqueue(Command{Type: CommandDestroy})
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
