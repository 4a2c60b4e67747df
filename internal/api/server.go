// Package api serves the AORTA resource API over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/aorta/internal/access"
	"github.com/ppiankov/aorta/internal/lifecycle"
	"github.com/ppiankov/aorta/internal/logging"
	"github.com/ppiankov/aorta/internal/models"
	"github.com/ppiankov/aorta/internal/session"
)

// BasePath prefixes every route.
const BasePath = "/aorta/api"

// Options tunes the server.
type Options struct {
	Sessions      session.Store
	Logger        *slog.Logger
	BodyLimit     int64
	RateLimit     int
	RateWindow    time.Duration
	SecureCookies bool
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Set it only behind a proxy that overwrites them.
	TrustProxy bool
}

// Server routes requests to the access gate and the lifecycle manager.
type Server struct {
	gate     *access.Gate
	manager  *lifecycle.Manager
	sessions session.Store
	logger   *slog.Logger
	opts     Options
}

// NewServer creates a server.
func NewServer(gate *access.Gate, manager *lifecycle.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		gate:     gate,
		manager:  manager,
		sessions: opts.Sessions,
		logger:   logger.With("component", "api"),
		opts:     opts,
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(s.logger))
	r.Use(SecurityHeaders)
	r.Use(RateLimit(s.opts.RateLimit, s.opts.RateWindow, s.logger))
	r.Use(BodySizeLimit(s.opts.BodyLimit))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, s.logger, models.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, s.logger, access.ErrUnknownOperation)
	})

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/health", s.health)

		r.Post("/sessions", s.login)
		r.Delete("/sessions/current", s.logout)

		r.Get("/jobs/mine", s.myJobs)
		r.Post("/orders/{id}/assign", s.assign)
		r.Post("/jobs/{id}/complete", s.complete)

		r.Get("/{type}", s.list)
		r.Post("/{type}", s.create)
		r.Get("/{type}/{id}", s.read)
		r.Post("/{type}/{id}", s.create)
		r.Put("/{type}/{id}", s.replace)
		r.Delete("/{type}/{id}", s.remove)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if _, err := s.authorize(r, t, models.OpSee); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	entries, err := s.manager.List(r.Context(), t)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if _, err := s.authorize(r, t, models.OpSee); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	data, err := s.manager.Read(r.Context(), t, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	contentType := "application/json"
	if t == models.TypeDigest {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	user, err := s.authorize(r, t, models.OpCreate)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		id = r.URL.Query().Get("id")
	}

	if t == models.TypeDigest {
		html, err := s.manager.CreateDigest(r.Context(), id)
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(html)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	created, err := s.manager.Create(r.Context(), t, id, body, user.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": created})
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if t != models.TypeUser && t != models.TypeReport {
		writeError(w, r, s.logger, errNotReplaceable)
		return
	}
	user, err := s.authorize(r, t, models.OpCreate)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if t == models.TypeUser {
		_, err = s.manager.ReplaceUser(r.Context(), id, body)
	} else {
		_, err = s.manager.ReplaceReport(r.Context(), id, body, user.ID)
	}
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if _, err := s.authorize(r, t, models.OpRemove); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := s.manager.Remove(r.Context(), t, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	Tester string `json:"tester"`
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	user, err := s.authorize(r, models.TypeJob, models.OpCreate)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	job, err := s.manager.Assign(r.Context(), chi.URLParam(r, "id"), user.ID, req.Tester)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// CompleteRequest is the body of a job completion.
type CompleteRequest struct {
	Reports []json.RawMessage `json:"reports"`
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	user, err := s.authorize(r, models.TypeReport, models.OpCreate)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	var req CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	reports, err := s.manager.CompleteJob(r.Context(), chi.URLParam(r, "id"), user.ID, req.Reports)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	ids := make([]string, 0, len(reports))
	for _, report := range reports {
		ids = append(ids, report.ID)
	}
	writeJSON(w, http.StatusCreated, map[string][]string{"reports": ids})
}

func (s *Server) myJobs(w http.ResponseWriter, r *http.Request) {
	user, err := s.authorizeRole(r, models.RoleTest)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	jobs, err := s.manager.ListAssignedJobs(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// SessionResponse is returned by a successful login.
type SessionResponse struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, r, s.logger, errors.New("sessions are not configured"))
		return
	}

	identity, secret := credentialsOf(r)
	user, err := s.gate.Authenticate(identity, secret)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	sess, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/aorta",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("session created", "identity", user.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{ID: sess.ID, Identity: sess.Identity, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDOf(r); id != "" && s.sessions != nil {
		if err := s.sessions.Delete(r.Context(), id); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/aorta",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
