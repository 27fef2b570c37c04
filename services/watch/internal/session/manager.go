package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/analytics"
	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/catalog"
	"github.com/example/movieon/services/watch/internal/kv"
	"github.com/example/movieon/services/watch/internal/library"
	"github.com/example/movieon/services/watch/internal/player"
	"github.com/example/movieon/services/watch/internal/progress"
)

// DefaultIdleTTL is how long a session may go without browser traffic
// before it is reaped.
const DefaultIdleTTL = 30 * time.Minute

// ErrInvalidRequest is returned when an open request names no movie.
var ErrInvalidRequest = errors.New("session: movie_id, slug or video_url is required")

type Config struct {
	Strategy       player.Strategy
	RuntimeTimeout time.Duration
	IdleTTL        time.Duration
	MaxEntries     int
}

// OpenRequest names the movie to watch. Slug or MovieID resolve through the
// catalog; VideoURL bypasses it.
type OpenRequest struct {
	MovieID  string `json:"movie_id"`
	Slug     string `json:"slug"`
	VideoURL string `json:"video_url"`
	Title    string `json:"title"`
}

// Manager owns every open session and the per-profile stores.
type Manager struct {
	base    kv.Storage
	catalog catalog.Source
	cfg     Config
	ap      *analytics.Publisher
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(base kv.Storage, src catalog.Source, cfg Config, ap *analytics.Publisher, log *zap.Logger) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Strategy == nil {
		cfg.Strategy = player.Periodic{}
	}
	return &Manager{
		base:     base,
		catalog:  src,
		cfg:      cfg,
		ap:       ap,
		log:      logging.OrNop(log),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Store returns the progress store of profileID.
func (m *Manager) Store(profileID string) *progress.Store {
	return progress.NewStore(kv.Namespace(m.base, profileID), m.log, progress.WithMaxEntries(m.cfg.MaxEntries))
}

// Library returns the history and watch-later lists of profileID.
func (m *Manager) Library(profileID string) *library.Library {
	return library.New(kv.Namespace(m.base, profileID), m.log)
}

// Open resolves the movie and mounts a new session for profileID. Movies
// resolved through the catalog are recorded in the profile's watch history.
func (m *Manager) Open(ctx context.Context, profileID string, req OpenRequest) (*Session, error) {
	movie, fromCatalog, err := m.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if fromCatalog {
		m.Library(profileID).AddToHistory(ctx, library.Item{
			ID:        movie.ID,
			Title:     movie.Title,
			Slug:      movie.Slug,
			PosterURL: movie.PosterURL,
			Rating:    movie.Rating,
		})
	}

	s := Open(ctx, Options{
		ID:             uuid.NewString(),
		ProfileID:      profileID,
		Movie:          movie,
		Store:          m.Store(profileID),
		Strategy:       m.cfg.Strategy,
		RuntimeTimeout: m.cfg.RuntimeTimeout,
		Analytics:      m.ap,
		Logger:         m.log,
		Now:            m.now,
	})

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.ap.Publish(analytics.SubjectSessionOpened, "session_opened", profileID, map[string]any{
		"movie_id":   movie.ID,
		"session_id": s.ID(),
	})
	m.log.Info("session opened", zap.String("session_id", s.ID()), zap.String("movie_id", movie.ID))
	return s, nil
}

func (m *Manager) resolve(ctx context.Context, req OpenRequest) (catalog.Movie, bool, error) {
	req.MovieID = strings.TrimSpace(req.MovieID)
	req.Slug = strings.TrimSpace(req.Slug)
	req.VideoURL = strings.TrimSpace(req.VideoURL)

	if req.VideoURL != "" {
		if req.MovieID == "" {
			return catalog.Movie{}, false, ErrInvalidRequest
		}
		return catalog.Movie{ID: req.MovieID, Title: req.Title, VideoURL: req.VideoURL}, false, nil
	}
	if m.catalog == nil || (req.Slug == "" && req.MovieID == "") {
		return catalog.Movie{}, false, ErrInvalidRequest
	}

	var (
		movie catalog.Movie
		err   error
	)
	if req.Slug != "" {
		movie, err = m.catalog.MovieBySlug(ctx, req.Slug)
	} else {
		movie, err = m.catalog.MovieByID(ctx, req.MovieID)
	}
	if err != nil {
		return catalog.Movie{}, false, err
	}
	return movie, true, nil
}

// Get returns the session id owned by profileID.
func (m *Manager) Get(profileID, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.ProfileID() != profileID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close unmounts and forgets a session.
func (m *Manager) Close(ctx context.Context, profileID, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.ProfileID() != profileID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	return s.Close(ctx)
}

// Reap closes sessions idle for longer than the idle TTL and returns how
// many were closed.
func (m *Manager) Reap(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		if err := s.Close(ctx); err != nil {
			m.log.Warn("session: close on reap failed", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		m.log.Info("sessions reaped", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run reaps idle sessions until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Reap(ctx)
		}
	}
}

// Shutdown closes every session so each takes its final sample.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.log.Info("sessions closed on shutdown", zap.Int("count", len(all)))
	return errors.Join(errs...)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
