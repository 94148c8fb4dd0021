package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/ics"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/pipeline"
)

// calendarTTL bounds how stale a served feed may be before it is rebuilt.
const calendarTTL = 30 * time.Second

// Builder produces the current calendar. *pipeline.Runner implements it.
type Builder interface {
	Build(ctx context.Context) (pipeline.Result, error)
	Last() (pipeline.Result, bool)
}

// Server exposes the task calendar over HTTP:
//
//	/health        liveness, never authenticated
//	/calendar.ics  the feed, for calendar app subscriptions
//	/api/tasks     the feed decoded back into tasks, as JSON
type Server struct {
	cfg     *config.Config
	builder Builder
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, builder Builder) *Server {
	s := &Server{
		cfg:     cfg,
		builder: builder,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped with basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="taskcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// current returns the last built calendar while it is fresh, rebuilding it
// otherwise.
func (s *Server) current(ctx context.Context) (pipeline.Result, error) {
	if res, ok := s.builder.Last(); ok && s.now().Sub(res.BuiltAt) < calendarTTL {
		return res, nil
	}
	return s.builder.Build(ctx)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res, err := s.current(r.Context())
	if err != nil {
		appLog.Error("calendar build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Last-Modified", res.BuiltAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(res.Calendar))
}

// tasksResponse is the JSON response shape for /api/tasks.
type tasksResponse struct {
	Tasks   []model.Task `json:"tasks"`
	Events  int          `json:"events"`
	BuiltAt time.Time    `json:"built_at"`
}

// handleTasks serves the feed as the decoder reads it back, which is what a
// subscribing calendar will see.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	res, err := s.current(r.Context())
	if err != nil {
		appLog.Error("calendar build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}

	tasks, err := ics.Decode(res.Calendar)
	if err != nil {
		appLog.Error("calendar decode failed", err)
		writeError(w, http.StatusInternalServerError, "failed to decode calendar")
		return
	}

	writeJSON(w, http.StatusOK, tasksResponse{
		Tasks:   tasks,
		Events:  res.Events,
		BuiltAt: res.BuiltAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
