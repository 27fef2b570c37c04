// Package library keeps a viewer's watch history and watch-later list in the
// same key-value storage as watch progress. Both lists are independent of
// the progress collection: clearing them never touches progress.
package library

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/kv"
)

const (
	HistoryKey    = "movieon_watch_history"
	WatchLaterKey = "movieon_watch_later"
	// MaxHistory caps the watch history length.
	MaxHistory = 50
)

// Item is a movie entry in either list. AddedAt is serialized as watchedAt
// in the history and savedAt in watch later.
type Item struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	PosterURL string   `json:"posterUrl,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

type HistoryItem struct {
	Item
	WatchedAt time.Time `json:"watchedAt"`
}

type WatchLaterItem struct {
	Item
	SavedAt time.Time `json:"savedAt"`
}

// Library reads and writes both lists. Storage failures are logged and
// degrade to empty lists or skipped writes.
type Library struct {
	kv  kv.Storage
	log *zap.Logger
	now func() time.Time
}

func New(storage kv.Storage, log *zap.Logger) *Library {
	return &Library{kv: storage, log: logging.OrNop(log), now: time.Now}
}

// History returns the watch history, newest first.
func (l *Library) History(ctx context.Context) []HistoryItem {
	var out []HistoryItem
	if !l.read(ctx, HistoryKey, &out) {
		return nil
	}
	return out
}

// AddToHistory moves item to the front of the history, dropping any earlier
// entry with the same id and anything past MaxHistory.
func (l *Library) AddToHistory(ctx context.Context, item Item) {
	if strings.TrimSpace(item.ID) == "" {
		return
	}
	next := []HistoryItem{{Item: item, WatchedAt: l.stamp()}}
	for _, h := range l.History(ctx) {
		if h.ID != item.ID {
			next = append(next, h)
		}
	}
	if len(next) > MaxHistory {
		next = next[:MaxHistory]
	}
	l.write(ctx, HistoryKey, next)
}

func (l *Library) RemoveFromHistory(ctx context.Context, id string) {
	cur := l.History(ctx)
	next := make([]HistoryItem, 0, len(cur))
	for _, h := range cur {
		if h.ID != id {
			next = append(next, h)
		}
	}
	l.write(ctx, HistoryKey, next)
}

func (l *Library) ClearHistory(ctx context.Context) {
	l.remove(ctx, HistoryKey)
}

// WatchLater returns the watch-later list, most recently saved first.
func (l *Library) WatchLater(ctx context.Context) []WatchLaterItem {
	var out []WatchLaterItem
	if !l.read(ctx, WatchLaterKey, &out) {
		return nil
	}
	return out
}

// AddToWatchLater saves item and reports whether it was added. An item that
// is already saved is left in place and reports false.
func (l *Library) AddToWatchLater(ctx context.Context, item Item) bool {
	if strings.TrimSpace(item.ID) == "" {
		return false
	}
	cur := l.WatchLater(ctx)
	for _, w := range cur {
		if w.ID == item.ID {
			return false
		}
	}
	next := append([]WatchLaterItem{{Item: item, SavedAt: l.stamp()}}, cur...)
	return l.write(ctx, WatchLaterKey, next)
}

func (l *Library) RemoveFromWatchLater(ctx context.Context, id string) {
	cur := l.WatchLater(ctx)
	next := make([]WatchLaterItem, 0, len(cur))
	for _, w := range cur {
		if w.ID != id {
			next = append(next, w)
		}
	}
	l.write(ctx, WatchLaterKey, next)
}

func (l *Library) InWatchLater(ctx context.Context, id string) bool {
	for _, w := range l.WatchLater(ctx) {
		if w.ID == id {
			return true
		}
	}
	return false
}

func (l *Library) ClearWatchLater(ctx context.Context) {
	l.remove(ctx, WatchLaterKey)
}

func (l *Library) stamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

func (l *Library) read(ctx context.Context, key string, dst any) bool {
	raw, ok, err := l.kv.GetItem(ctx, key)
	if err != nil {
		l.log.Warn("library: read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		l.log.Warn("library: corrupt list", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (l *Library) write(ctx context.Context, key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		l.log.Warn("library: encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := l.kv.SetItem(ctx, key, string(data)); err != nil {
		l.log.Warn("library: write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (l *Library) remove(ctx context.Context, key string) {
	if err := l.kv.RemoveItem(ctx, key); err != nil {
		l.log.Warn("library: clear failed", zap.String("key", key), zap.Error(err))
	}
}
