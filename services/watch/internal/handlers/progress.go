package handlers

import (
	"net/http"

	"github.com/example/movieon/internal/platform/api"
	"github.com/example/movieon/internal/platform/httpserver"
	"github.com/example/movieon/services/watch/internal/library"
	"github.com/example/movieon/services/watch/internal/progress"
	"github.com/example/movieon/services/watch/internal/worker"
)

// Profiles hands out the per-profile stores. *session.Manager implements it.
type Profiles interface {
	Store(profileID string) *progress.Store
	Library(profileID string) *library.Library
}

type saveProgressRequest struct {
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	ClientTsMs  int64   `json:"client_ts_ms"`
}

type saveProgressResponse struct {
	Saved    bool                    `json:"saved"`
	Progress *progress.WatchProgress `json:"progress,omitempty"`
}

func ListProgress(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		api.WriteJSON(w, http.StatusOK, list(p.Store(pid).List(r.Context())))
	}
}

func GetProgress(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		rec, found := p.Store(pid).Load(r.Context(), pathParam(r, "movie_id"))
		if !found {
			api.NotFound(w, "PROGRESS_NOT_FOUND", "No resumable progress", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// SaveProgress records a position. With async writes enabled the sample is
// published for the progress consumer and the handler answers 202.
func SaveProgress(p Profiles, publisher *worker.EventPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		var req saveProgressRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		movieID := pathParam(r, "movie_id")

		if publisher.Enabled() {
			eventID, err := publisher.PublishProgress(worker.ProgressEvent{
				ProfileID:   pid,
				MovieID:     movieID,
				CurrentTime: req.CurrentTime,
				Duration:    req.Duration,
				ClientTsMs:  req.ClientTsMs,
			})
			if err != nil {
				api.Unavailable(w, "EVENT_PUBLISH_FAILED", "failed to publish event", rid)
				return
			}
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		store := p.Store(pid)
		resp := saveProgressResponse{Saved: store.Save(r.Context(), movieID, req.CurrentTime, req.Duration)}
		if resp.Saved {
			if rec, found := store.Load(r.Context(), movieID); found {
				resp.Progress = &rec
			}
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

func ClearProgress(p Profiles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		p.Store(pid).Clear(r.Context(), pathParam(r, "movie_id"))
		api.NoContent(w)
	}
}
