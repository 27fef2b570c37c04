package handlers

import (
	"errors"
	"net/http"

	"github.com/example/movieon/internal/platform/api"
	"github.com/example/movieon/services/watch/internal/catalog"
	"github.com/example/movieon/services/watch/internal/resume"
	"github.com/example/movieon/services/watch/internal/session"
)

func writeSessionError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
	case errors.Is(err, catalog.ErrNotFound):
		api.NotFound(w, "MOVIE_NOT_FOUND", "Movie not found", rid)
	case errors.Is(err, session.ErrInvalidRequest):
		api.BadRequest(w, "INVALID_REQUEST", err.Error(), rid, nil)
	case errors.Is(err, session.ErrUnknownChoice):
		api.BadRequest(w, "INVALID_CHOICE", "choice must be resume or restart", rid, nil)
	case errors.Is(err, session.ErrSessionClosed):
		api.Conflict(w, "SESSION_CLOSED", "Session is closed", rid, nil)
	case errors.Is(err, resume.ErrNoPendingChoice):
		api.Conflict(w, "NO_PENDING_CHOICE", "No resume choice is pending", rid, nil)
	case errors.Is(err, session.ErrNothingToReload):
		api.Conflict(w, "NOTHING_TO_RELOAD", "Player runtime did not fail", rid, nil)
	default:
		api.Internal(w, rid)
	}
}
