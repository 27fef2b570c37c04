package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const movieColumns = `id::text, COALESCE(slug, ''), title, COALESCE(video_url, ''), COALESCE(poster_url, ''), rating_average`

// PostgresSource reads the movie table.
type PostgresSource struct {
	db *pgxpool.Pool
}

func NewPostgresSource(db *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) MovieBySlug(ctx context.Context, slug string) (Movie, error) {
	return s.one(ctx, `SELECT `+movieColumns+` FROM movie WHERE slug = $1`, strings.TrimSpace(slug))
}

func (s *PostgresSource) MovieByID(ctx context.Context, id string) (Movie, error) {
	return s.one(ctx, `SELECT `+movieColumns+` FROM movie WHERE id::text = $1`, strings.TrimSpace(id))
}

func (s *PostgresSource) one(ctx context.Context, q, arg string) (Movie, error) {
	var m Movie
	err := s.db.QueryRow(ctx, q, arg).Scan(&m.ID, &m.Slug, &m.Title, &m.VideoURL, &m.PosterURL, &m.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movie{}, ErrNotFound
		}
		return Movie{}, fmt.Errorf("catalog query: %w", err)
	}
	return m, nil
}
