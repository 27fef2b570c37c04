// Package session composes progress tracking, resume negotiation and the
// player adapter into viewing sessions. A session is one mounted player
// view: opening it mounts, closing it (or idle reaping) unmounts.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/analytics"
	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/catalog"
	"github.com/example/movieon/services/watch/internal/player"
	"github.com/example/movieon/services/watch/internal/progress"
	"github.com/example/movieon/services/watch/internal/resume"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionClosed   = errors.New("session: closed")
	ErrUnknownChoice   = errors.New("session: unknown choice")
	ErrNothingToReload = errors.New("session: player runtime did not fail")
)

type Options struct {
	ID             string
	ProfileID      string
	Movie          catalog.Movie
	Store          *progress.Store
	Strategy       player.Strategy
	RuntimeTimeout time.Duration
	Analytics      *analytics.Publisher
	Logger         *zap.Logger
	Now            func() time.Time
}

type Session struct {
	id        string
	profileID string
	movie     catalog.Movie

	ctrl    *progress.Controller
	neg     *resume.Negotiation
	rt      *RemoteRuntime
	unload  *player.Unload
	adapter *player.Adapter
	ap      *analytics.Publisher
	log     *zap.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	detach func()

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
	openedAt time.Time
}

// Open mounts a viewing session: it loads progress for the movie, offers
// the resume choice when there is one, and starts waiting for the browser's
// player runtime in the background.
func Open(ctx context.Context, opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logging.OrNop(opts.Logger).With(
		zap.String("session_id", opts.ID),
		zap.String("movie_id", opts.Movie.ID),
	)

	ctrl := progress.NewController(opts.Store, log)
	neg := resume.New(ctrl, log)
	rt := NewRemoteRuntime(opts.RuntimeTimeout)
	unload := player.NewUnload()
	adapter := player.NewAdapter(player.Config{
		Source:   opts.Movie.VideoURL,
		MovieID:  opts.Movie.ID,
		Strategy: opts.Strategy,
		Runtime:  rt,
		Unload:   unload,
		Saver:    ctrl,
		Logger:   log,
	})

	mctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        opts.ID,
		profileID: opts.ProfileID,
		movie:     opts.Movie,
		ctrl:      ctrl,
		neg:       neg,
		rt:        rt,
		unload:    unload,
		adapter:   adapter,
		ap:        opts.Analytics,
		log:       log,
		now:       now,
		ctx:       mctx,
		cancel:    cancel,
		lastSeen:  now(),
		openedAt:  now(),
	}

	s.detach = neg.Attach(ctrl)
	ctrl.Initialize(ctx, opts.Movie.ID)

	if st, reason := adapter.Status(); st == player.StatusUnavailable {
		s.publishUnavailable(reason)
	} else {
		s.mountAsync(adapter.Mount)
	}
	return s
}

// mountAsync runs mount in the background unless the session is closed.
// The closed check and wg.Add share s.mu with Close so no mount is added
// once Close has started waiting.
func (s *Session) mountAsync(mount func(context.Context) error) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		err := mount(s.ctx)
		if err == nil || errors.Is(err, player.ErrClosed) || s.ctx.Err() != nil {
			return
		}
		_, reason := s.adapter.Status()
		s.log.Warn("session: player mount failed", zap.String("reason", reason), zap.Error(err))
		s.publishUnavailable(reason)
	}()
	return true
}

func (s *Session) publishUnavailable(reason string) {
	s.ap.Publish(analytics.SubjectPlayerUnavailable, "player_unavailable", s.profileID, map[string]any{
		"movie_id":   s.movie.ID,
		"session_id": s.id,
		"reason":     reason,
	})
}

func (s *Session) ID() string           { return s.id }
func (s *Session) ProfileID() string    { return s.profileID }
func (s *Session) Movie() catalog.Movie { return s.movie }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// LastSeen is when the browser last interacted with the session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// HandleEvent applies a browser event and returns the commands queued for it.
func (s *Session) HandleEvent(ev BrowserEvent) ([]Command, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	s.touch()
	s.rt.Apply(ev)
	return s.rt.Drain(), nil
}

// Commands drains the commands queued since the browser last heard from the
// session. The page polls it while the player is being created.
func (s *Session) Commands() ([]Command, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	s.touch()
	return s.rt.Drain(), nil
}

// Decide applies the viewer's resume choice and moves the player to the
// resulting start offset.
func (s *Session) Decide(ctx context.Context, choice resume.Choice) (resume.Decision, []Command, error) {
	if s.isClosed() {
		return resume.Decision{}, nil, ErrSessionClosed
	}
	s.touch()

	var (
		d   resume.Decision
		err error
	)
	switch choice {
	case resume.ChoiceResume:
		d, err = s.neg.Resume()
	case resume.ChoiceRestart:
		d, err = s.neg.Restart(ctx)
	default:
		return resume.Decision{}, nil, fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
	}
	if err != nil {
		return resume.Decision{}, nil, err
	}

	s.adapter.SetStartTime(d.StartAt)
	s.ap.Publish(analytics.SubjectResumeDecided, "resume_decided", s.profileID, map[string]any{
		"movie_id": s.movie.ID,
		"choice":   string(d.Choice),
		"start_at": d.StartAt,
	})
	return d, s.rt.Drain(), nil
}

// Unload forwards the page-unload signal. It fires at most once per session.
func (s *Session) Unload() bool {
	s.touch()
	return s.unload.Fire()
}

// Reload retries a player whose runtime failed to load.
func (s *Session) Reload() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	st, reason := s.adapter.Status()
	if st != player.StatusUnavailable || (reason != player.ReasonRuntimeTimeout && reason != player.ReasonRuntimeFailed) {
		return ErrNothingToReload
	}
	s.touch()
	if !s.mountAsync(s.adapter.Retry) {
		return ErrSessionClosed
	}
	return nil
}

// Close unmounts the session: background mounting stops, the adapter takes
// its final sample and releases the player. Later calls are no-ops.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	opened := s.openedAt
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	err := s.adapter.Close(ctx)
	s.detach()
	s.rt.Close()

	s.ap.Publish(analytics.SubjectSessionClosed, "session_closed", s.profileID, map[string]any{
		"movie_id":    s.movie.ID,
		"session_id":  s.id,
		"duration_ms": s.now().Sub(opened).Milliseconds(),
	})
	return err
}

type PlayerView struct {
	Status    player.Status `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	VideoID   string        `json:"video_id,omitempty"`
	EmbedURL  string        `json:"embed_url,omitempty"`
	StartTime float64       `json:"start_time"`
	State     string        `json:"state"`
}

type ResumeView struct {
	State    string           `json:"state"`
	Prompt   *resume.Prompt   `json:"prompt,omitempty"`
	Decision *resume.Decision `json:"decision,omitempty"`
}

// View is the JSON snapshot of a session.
type View struct {
	ID       string                  `json:"id"`
	MovieID  string                  `json:"movie_id"`
	Title    string                  `json:"title,omitempty"`
	Player   PlayerView              `json:"player"`
	Resume   ResumeView              `json:"resume"`
	Progress *progress.WatchProgress `json:"progress,omitempty"`
	LastSeen time.Time               `json:"last_seen"`
}

func (s *Session) View() View {
	st, reason := s.adapter.Status()
	start := s.adapter.StartTime()
	pv := PlayerView{
		Status:    st,
		Reason:    reason,
		VideoID:   s.adapter.VideoID(),
		StartTime: start,
		State:     s.adapter.LastState().String(),
	}
	if pv.VideoID != "" {
		pv.EmbedURL = player.EmbedURL(pv.VideoID, player.DefaultPlayerVars(start))
	}

	rv := ResumeView{State: s.neg.State().String()}
	if p, ok := s.neg.Prompt(); ok {
		rv.Prompt = &p
	}
	if d, ok := s.neg.Decision(); ok {
		rv.Decision = &d
	}

	v := View{
		ID:       s.id,
		MovieID:  s.movie.ID,
		Title:    s.movie.Title,
		Player:   pv,
		Resume:   rv,
		LastSeen: s.LastSeen(),
	}
	if p, ok := s.ctrl.Progress(); ok {
		v.Progress = &p
	}
	return v
}
