// Package progress persists per-movie playback positions and binds them to a
// viewing session.
//
// The whole collection lives under one storage key as a JSON object keyed by
// movie id. Every operation is fail-soft: storage and decoding errors are
// logged and degrade to "no progress" or "write skipped".
package progress

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/kv"
)

const (
	// StorageKey is the key the collection is stored under.
	StorageKey = "movie-watch-progress"
	// MinWatchTime is the minimum position, in seconds, worth persisting.
	MinWatchTime = 30.0
	// MaxPercentage marks a record as finished; finished records are never surfaced.
	MaxPercentage = 95.0
	// DefaultMaxEntries bounds the collection size.
	DefaultMaxEntries = 200
)

// WatchProgress is the last known playback position for one movie.
type WatchProgress struct {
	MovieID     string    `json:"movieId"`
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	Percentage  float64   `json:"percentage"`
	LastWatched time.Time `json:"lastWatched"`
}

// Finished reports whether the record is past MaxPercentage.
func (p WatchProgress) Finished() bool {
	return p.Percentage >= MaxPercentage
}

func (p WatchProgress) valid() bool {
	return p.Duration > 0 && p.CurrentTime >= 0 && !math.IsNaN(p.Percentage)
}

// Collection is the persisted mapping of movie id to progress.
type Collection map[string]WatchProgress

// Store reads and writes the progress collection in a kv.Storage.
type Store struct {
	kv         kv.Storage
	log        *zap.Logger
	now        func() time.Time
	maxEntries int
}

type Option func(*Store)

// WithClock overrides the time source used to stamp LastWatched.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxEntries bounds the number of records kept. Values <= 0 keep the default.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func NewStore(storage kv.Storage, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		kv:         storage,
		log:        logging.OrNop(log),
		now:        time.Now,
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the record for movieID. Missing, corrupt, malformed and
// finished records all report absence.
func (s *Store) Load(ctx context.Context, movieID string) (WatchProgress, bool) {
	all, ok := s.read(ctx)
	if !ok {
		return WatchProgress{}, false
	}
	p, ok := all[movieID]
	if !ok || !p.valid() || p.Finished() {
		return WatchProgress{}, false
	}
	return p, true
}

// Save records a position for movieID and reports whether a write happened.
// Positions below MinWatchTime and unknown durations are ignored.
func (s *Store) Save(ctx context.Context, movieID string, currentTime, duration float64) bool {
	_, ok := s.save(ctx, movieID, currentTime, duration)
	return ok
}

func (s *Store) save(ctx context.Context, movieID string, currentTime, duration float64) (WatchProgress, bool) {
	if movieID == "" || !finite(currentTime) || !finite(duration) {
		return WatchProgress{}, false
	}
	if currentTime < MinWatchTime || duration <= 0 {
		return WatchProgress{}, false
	}

	rec := WatchProgress{
		MovieID:     movieID,
		CurrentTime: currentTime,
		Duration:    duration,
		Percentage:  currentTime / duration * 100,
		LastWatched: s.now().UTC().Truncate(time.Millisecond),
	}

	// A corrupt collection is replaced rather than blocking every future save.
	all, _ := s.read(ctx)
	if all == nil {
		all = Collection{}
	}
	all[movieID] = rec
	s.trim(all)

	if !s.write(ctx, all) {
		return WatchProgress{}, false
	}
	return rec, true
}

// Clear removes the record for movieID. It is a no-op when the record or
// the collection is missing, or when the collection cannot be decoded.
func (s *Store) Clear(ctx context.Context, movieID string) {
	all, ok := s.read(ctx)
	if !ok {
		return
	}
	if _, ok := all[movieID]; !ok {
		return
	}
	delete(all, movieID)
	s.write(ctx, all)
}

// List returns the unfinished records, most recently watched first.
func (s *Store) List(ctx context.Context) []WatchProgress {
	all, ok := s.read(ctx)
	if !ok {
		return nil
	}
	out := make([]WatchProgress, 0, len(all))
	for _, p := range all {
		if p.valid() && !p.Finished() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastWatched.Equal(out[j].LastWatched) {
			return out[i].MovieID < out[j].MovieID
		}
		return out[i].LastWatched.After(out[j].LastWatched)
	})
	return out
}

// trim drops the oldest records until the collection fits maxEntries.
func (s *Store) trim(all Collection) {
	excess := len(all) - s.maxEntries
	if excess <= 0 {
		return
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := all[ids[i]].LastWatched, all[ids[j]].LastWatched
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	for _, id := range ids[:excess] {
		delete(all, id)
	}
	s.log.Debug("progress: trimmed collection", zap.Int("dropped", excess))
}

// read returns the decoded collection. ok is false when the key is missing,
// unreadable or corrupt.
func (s *Store) read(ctx context.Context) (Collection, bool) {
	raw, found, err := s.kv.GetItem(ctx, StorageKey)
	if err != nil {
		s.log.Warn("progress: read failed", zap.Error(err))
		return nil, false
	}
	if !found || raw == "" {
		return nil, false
	}
	var all Collection
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		s.log.Warn("progress: corrupt collection", zap.Error(err))
		return nil, false
	}
	if all == nil {
		return nil, false
	}
	return all, true
}

func (s *Store) write(ctx context.Context, all Collection) bool {
	data, err := json.Marshal(all)
	if err != nil {
		s.log.Warn("progress: encode failed", zap.Error(err))
		return false
	}
	if err := s.kv.SetItem(ctx, StorageKey, string(data)); err != nil {
		s.log.Warn("progress: write failed", zap.Error(err))
		return false
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
