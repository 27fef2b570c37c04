package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
)

// ChangeKind identifies what produced a Change.
type ChangeKind int

const (
	Loaded ChangeKind = iota + 1
	Saved
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Loaded:
		return "loaded"
	case Saved:
		return "saved"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change is pushed to subscribers whenever the observable progress changes.
// Available is false when no resumable record exists.
type Change struct {
	Kind      ChangeKind
	MovieID   string
	Progress  WatchProgress
	Available bool
}

type phase int

const (
	phaseLoading phase = iota + 1
	phaseLoaded
)

// Controller binds a Store to one viewing session.
type Controller struct {
	store *Store
	log   *zap.Logger

	mu      sync.Mutex
	phases  map[string]phase
	movieID string
	current WatchProgress
	has     bool
	subs    map[int]func(Change)
	nextSub int
}

func NewController(store *Store, log *zap.Logger) *Controller {
	return &Controller{
		store:  store,
		log:    logging.OrNop(log),
		phases: make(map[string]phase),
		subs:   make(map[int]func(Change)),
	}
}

// Initialize loads progress for movieID and binds the controller to it.
// Repeated calls for a movie that is loading or loaded are rejected and
// return false; Reset re-arms a movie id.
func (c *Controller) Initialize(ctx context.Context, movieID string) bool {
	c.mu.Lock()
	if _, seen := c.phases[movieID]; seen {
		c.mu.Unlock()
		c.log.Debug("progress: duplicate initialize ignored", zap.String("movie_id", movieID))
		return false
	}
	c.phases[movieID] = phaseLoading
	c.mu.Unlock()

	p, ok := c.store.Load(ctx, movieID)

	c.mu.Lock()
	if c.phases[movieID] != phaseLoading {
		// Reset while loading.
		c.mu.Unlock()
		return false
	}
	c.phases[movieID] = phaseLoaded
	c.movieID = movieID
	c.current, c.has = p, ok
	ch := Change{Kind: Loaded, MovieID: movieID, Progress: p, Available: ok}
	subs := c.subscribers()
	c.mu.Unlock()

	notify(subs, ch)
	return true
}

// SaveProgress forwards a sample to the store. Samples taken before
// Initialize are dropped.
func (c *Controller) SaveProgress(ctx context.Context, currentTime, duration float64) {
	c.mu.Lock()
	movieID := c.movieID
	c.mu.Unlock()
	if movieID == "" {
		return
	}

	rec, ok := c.store.save(ctx, movieID, currentTime, duration)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.movieID != movieID {
		c.mu.Unlock()
		return
	}
	c.current, c.has = rec, true
	ch := Change{Kind: Saved, MovieID: movieID, Progress: rec, Available: !rec.Finished()}
	subs := c.subscribers()
	c.mu.Unlock()

	notify(subs, ch)
}

// ClearProgress removes the stored record for the bound movie.
func (c *Controller) ClearProgress(ctx context.Context) {
	c.mu.Lock()
	movieID := c.movieID
	c.mu.Unlock()
	if movieID == "" {
		return
	}

	c.store.Clear(ctx, movieID)

	c.mu.Lock()
	if c.movieID == movieID {
		c.current, c.has = WatchProgress{}, false
	}
	subs := c.subscribers()
	c.mu.Unlock()

	notify(subs, Change{Kind: Cleared, MovieID: movieID})
}

// Progress returns the cached record when it is resumable.
func (c *Controller) Progress() (WatchProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has || c.current.Finished() {
		return WatchProgress{}, false
	}
	return c.current, true
}

// MovieID returns the movie the controller is bound to.
func (c *Controller) MovieID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.movieID
}

// Subscribe registers fn for every Change. fn runs synchronously on the
// goroutine that caused the change, after the controller lock is released.
func (c *Controller) Subscribe(fn func(Change)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Reset forgets movieID so a later Initialize loads it again.
func (c *Controller) Reset(movieID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.phases, movieID)
	if c.movieID == movieID {
		c.movieID = ""
		c.current, c.has = WatchProgress{}, false
	}
}

func (c *Controller) subscribers() []func(Change) {
	out := make([]func(Change), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Change), ch Change) {
	for _, fn := range subs {
		fn(ch)
	}
}
