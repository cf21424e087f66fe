// Package serve exposes search, source health and cache maintenance over HTTP.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lepinkainen/folio/internal/catalog"
	folioerrors "github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/fallback"
	"github.com/lepinkainen/folio/internal/health"
)

const shutdownTimeout = 10 * time.Second

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, req fallback.Request) (*fallback.Response, error)
}

// HealthReporter reports source health.
type HealthReporter interface {
	Snapshot() []health.SourceHealth
	Overall() health.Status
}

// CacheInvalidator drops cached responses of one source.
type CacheInvalidator interface {
	InvalidateSource(source string) int
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  health.Status         `json:"status"`
	Sources []health.SourceHealth `json:"sources"`
}

// InvalidateResponse is the body of DELETE /api/v1/cache/{source}.
type InvalidateResponse struct {
	Source  string `json:"source"`
	Removed int    `json:"removed"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Server is the folio HTTP API.
type Server struct {
	searcher Searcher
	health   HealthReporter
	cache    CacheInvalidator
	pageSize int
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and error logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultPageSize sets the page size used when a request has none.
func WithDefaultPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewServer builds the API router.
func NewServer(searcher Searcher, hr HealthReporter, ci CacheInvalidator, opts ...Option) *Server {
	s := &Server{
		searcher: searcher,
		health:   hr,
		cache:    ci,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/health", s.handleHealth)
		r.Delete("/cache/{source}", s.handleInvalidate)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSearchRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseSearchRequest(r *http.Request) (fallback.Request, error) {
	v := r.URL.Query()
	req := fallback.Request{
		ID:        middleware.GetReqID(r.Context()),
		Query:     v.Get("q"),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
		Filters: catalog.Filters{
			Category:         v.Get("category"),
			PhysicalLocation: v.Get("physicalLocation"),
		},
	}

	var err error
	if req.IncludeExternal, err = boolParam(v.Get("includeExternal")); err != nil {
		return req, folioerrors.NewValidationError("includeExternal", "must be true or false")
	}
	if req.Page, err = intParam(v.Get("page")); err != nil {
		return req, folioerrors.NewValidationError("page", "must be an integer")
	}
	if req.Size, err = intParam(v.Get("size")); err != nil {
		return req, folioerrors.NewValidationError("size", "must be an integer")
	}
	if req.Size == 0 {
		req.Size = s.pageSize
	}
	if req.Filters.YearFrom, err = intParam(v.Get("yearFrom")); err != nil {
		return req, folioerrors.NewValidationError("yearFrom", "must be an integer")
	}
	if req.Filters.YearTo, err = intParam(v.Get("yearTo")); err != nil {
		return req, folioerrors.NewValidationError("yearTo", "must be an integer")
	}
	if raw := v.Get("minRating"); raw != "" {
		req.Filters.MinRating, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(req.Filters.MinRating) || math.IsInf(req.Filters.MinRating, 0) {
			return req, folioerrors.NewValidationError("minRating", "must be a number")
		}
	}
	return req, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.health.Overall()
	code := http.StatusOK
	if status == health.StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Sources: s.health.Snapshot()})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	removed := s.cache.InvalidateSource(source)
	s.logger.Info("Cache invalidated", "source", source, "removed", removed)
	writeJSON(w, http.StatusOK, InvalidateResponse{Source: source, Removed: removed})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *folioerrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Message, Field: vErr.Field})
	case errors.Is(err, context.Canceled):
		// client is gone
		w.WriteHeader(http.StatusServiceUnavailable)
	case errors.Is(err, catalog.ErrUnavailable):
		s.logger.Error("Catalog unavailable", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "catalog unavailable"})
	default:
		s.logger.Error("Search failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
