// Package server exposes relay sessions over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jllopis/relay/pkg/coordinator"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/session"
)

// maxRequestBodySize bounds request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Server serves the session API.
type Server struct {
	manager *coordinator.Manager
	catalog *handoff.Catalog
	hub     *Hub
	logger  *slog.Logger
	router  chi.Router
}

// New builds the router. hub may be nil, in which case the websocket route
// answers 404; when set it should also be installed as the manager's sink.
func New(manager *coordinator.Manager, catalog *handoff.Catalog, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		catalog: catalog,
		hub:     hub,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Post("/consult", s.consult)
		r.Get("/pipelines/{domain}", s.pipeline)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.startSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/plan", s.getPlan)
				r.Post("/modify", s.modifySession)
				r.Get("/ws", s.streamSession)
			})
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down relay server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req session.Request
	if err := decode(r, &req); err != nil {
		s.error(w, err)
		return
	}
	view, err := s.manager.Start(r.Context(), req)
	if err != nil && view.ID == "" {
		s.error(w, err)
		return
	}
	// A FAILED session is still a created resource; its view explains the failure.
	JSON(w, http.StatusCreated, view)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"sessions": s.manager.Sessions()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.error(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.manager.Plan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.error(w, err)
		return
	}
	JSON(w, http.StatusOK, plan)
}

// modifyRequest carries either a replacement request, a stage to rerun
// from, or both. From wins when set.
type modifyRequest struct {
	Request *session.Request `json:"request,omitempty"`
	From    string           `json:"from,omitempty"`
}

func (s *Server) modifySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body modifyRequest
	if err := decode(r, &body); err != nil {
		s.error(w, err)
		return
	}

	var (
		view session.View
		err  error
	)
	switch {
	case body.From != "":
		view, err = s.manager.Handoff(r.Context(), id, body.From)
	case body.Request != nil:
		view, err = s.manager.Modify(r.Context(), id, *body.Request)
	default:
		err = errors.Validation("request", "modify needs a request or a from stage")
	}
	if err != nil {
		s.error(w, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

type consultRequest struct {
	Query string `json:"query"`
}

func (s *Server) consult(w http.ResponseWriter, r *http.Request) {
	var body consultRequest
	if err := decode(r, &body); err != nil {
		s.error(w, err)
		return
	}
	res, err := s.manager.Consult(r.Context(), body.Query)
	if err != nil {
		s.error(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, s.manager.Stats())
}

func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(chi.URLParam(r, "domain"))
	if err != nil {
		s.error(w, err)
		return
	}
	switch r.URL.Query().Get("format") {
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, handoff.ToMermaid(p))
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		_, _ = io.WriteString(w, handoff.ToDot(p))
	default:
		JSON(w, http.StatusOK, p)
	}
}

func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	id := chi.URLParam(r, "id")
	view, err := s.manager.View(r.Context(), id)
	if err != nil {
		s.error(w, err)
		return
	}
	s.hub.Serve(w, r, id, view)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		return errors.New(errors.CodeValidation, "malformed request body", err).WithContext("field", "body")
	}
	return nil
}

func (s *Server) error(w http.ResponseWriter, err error) {
	re := errors.AsRelayError(err)
	status := re.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", re.Code, "error", err)
	}
	JSON(w, status, map[string]any{"error": re})
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}
