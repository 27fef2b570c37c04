package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/api"
	"github.com/example/movieon/internal/platform/httpserver"
	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/services/watch/internal/resume"
	"github.com/example/movieon/services/watch/internal/session"
)

type commandsResponse struct {
	Commands []session.Command `json:"commands"`
}

type decisionRequest struct {
	Choice resume.Choice `json:"choice"`
}

type decisionResponse struct {
	Decision resume.Decision   `json:"decision"`
	Commands []session.Command `json:"commands"`
}

func commands(c []session.Command) []session.Command {
	if c == nil {
		return []session.Command{}
	}
	return c
}

func OpenSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	log = logging.OrNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		var req session.OpenRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		s, err := m.Open(r.Context(), pid, req)
		if err != nil {
			log.Debug("open session", zap.String("request_id", rid), zap.Error(err))
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, s.View())
	}
}

func GetSession(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, s.View())
	}
}

// SessionEvents applies one browser player event and returns the commands
// the browser must run next.
func SessionEvents(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		var ev session.BrowserEvent
		if !decodeJSON(w, r, rid, &ev) {
			return
		}
		if ev.Type == "" {
			api.BadRequest(w, "INVALID_EVENT", "type is required", rid, nil)
			return
		}
		cmds, err := s.HandleEvent(ev)
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, commandsResponse{Commands: commands(cmds)})
	}
}

// SessionCommands returns the commands queued for the browser.
func SessionCommands(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		cmds, err := s.Commands()
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, commandsResponse{Commands: commands(cmds)})
	}
}

func SessionDecision(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		var req decisionRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		d, cmds, err := s.Decide(r.Context(), req.Choice)
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, decisionResponse{Decision: d, Commands: commands(cmds)})
	}
}

// SessionUnload forwards the page-unload signal. Browsers send it with
// sendBeacon, so the body is ignored.
func SessionUnload(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]bool{"fired": s.Unload()})
	}
}

func SessionReload(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		s, err := m.Get(pid, pathParam(r, "session_id"))
		if err != nil {
			writeSessionError(w, rid, err)
			return
		}
		if err := s.Reload(); err != nil {
			writeSessionError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusAccepted, s.View())
	}
}

func CloseSession(m *session.Manager, log *zap.Logger) http.HandlerFunc {
	log = logging.OrNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pid, ok := viewer(w, r, rid)
		if !ok {
			return
		}
		id := pathParam(r, "session_id")
		err := m.Close(r.Context(), pid, id)
		if errors.Is(err, session.ErrSessionNotFound) {
			writeSessionError(w, rid, err)
			return
		}
		if err != nil {
			// The session is already gone; only its teardown misbehaved.
			log.Warn("close session", zap.String("session_id", id), zap.Error(err))
		}
		api.NoContent(w)
	}
}
