// Package catalog is the read-only boundary to the movie catalog. The watch
// subsystem only needs a movie id and its video reference; title, slug,
// poster and rating feed the library lists.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("catalog: movie not found")

type Movie struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	VideoURL  string   `json:"video_url,omitempty"`
	PosterURL string   `json:"poster_url,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

// Source resolves movies by slug or id.
type Source interface {
	MovieBySlug(ctx context.Context, slug string) (Movie, error)
	MovieByID(ctx context.Context, id string) (Movie, error)
}

// MemorySource is a fixed in-memory catalog for development and tests.
type MemorySource struct {
	mu     sync.RWMutex
	byID   map[string]Movie
	bySlug map[string]string
}

func NewMemorySource(movies ...Movie) *MemorySource {
	s := &MemorySource{byID: make(map[string]Movie), bySlug: make(map[string]string)}
	for _, m := range movies {
		s.Put(m)
	}
	return s
}

func (s *MemorySource) Put(m Movie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.ID] = m
	if m.Slug != "" {
		s.bySlug[strings.ToLower(m.Slug)] = m.ID
	}
}

func (s *MemorySource) MovieBySlug(_ context.Context, slug string) (Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Movie{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemorySource) MovieByID(_ context.Context, id string) (Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Movie{}, ErrNotFound
	}
	return m, nil
}
