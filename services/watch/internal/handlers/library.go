package handlers

import (
	"net/http"
	"strings"

	"github.com/example/movieon/internal/platform/api"
	"github.com/example/movieon/internal/platform/httpserver"
	"github.com/example/movieon/services/watch/internal/library"
)

// decodeItem reads a library item and requires its id.
func decodeItem(w http.ResponseWriter, r *http.Request, rid string) (library.Item, bool) {
	var item library.Item
	if !decodeJSON(w, r, rid, &item) {
		return library.Item{}, false
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		api.BadRequest(w, "INVALID_ITEM", "id is required", rid, nil)
		return library.Item{}, false
	}
	return item, true
}

func ListHistory(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, list(p.Library(pid).History(r.Context())))
	}
}

func AddHistory(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		item, ok := decodeItem(w, r, rid)
		if !ok {
			return
		}
		lib := p.Library(pid)
		lib.AddToHistory(r.Context(), item)
		api.WriteJSON(w, http.StatusOK, list(lib.History(r.Context())))
	}
}

func RemoveHistory(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		p.Library(pid).RemoveFromHistory(r.Context(), pathParam(r, "movie_id"))
		api.NoContent(w)
	}
}

func ClearHistory(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		p.Library(pid).ClearHistory(r.Context())
		api.NoContent(w)
	}
}

func ListWatchLater(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, list(p.Library(pid).WatchLater(r.Context())))
	}
}

// AddWatchLater answers 201 for a new entry and 200 when the movie was
// already saved.
func AddWatchLater(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		item, ok := decodeItem(w, r, rid)
		if !ok {
			return
		}
		status := http.StatusOK
		added := p.Library(pid).AddToWatchLater(r.Context(), item)
		if added {
			status = http.StatusCreated
		}
		api.WriteJSON(w, status, map[string]bool{"added": added})
	}
}

func InWatchLater(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		saved := p.Library(pid).InWatchLater(r.Context(), pathParam(r, "movie_id"))
		api.WriteJSON(w, http.StatusOK, map[string]bool{"saved": saved})
	}
}

func RemoveWatchLater(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		p.Library(pid).RemoveFromWatchLater(r.Context(), pathParam(r, "movie_id"))
		api.NoContent(w)
	}
}

func ClearWatchLater(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		p.Library(pid).ClearWatchLater(r.Context())
		api.NoContent(w)
	}
}
