// Package api exposes the tracking state over HTTP and pushes render
// frames to websocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/ads-radar/internal/app"
	"github.com/unklstewy/ads-radar/internal/export"
	"github.com/unklstewy/ads-radar/internal/poller"
	"github.com/unklstewy/ads-radar/pkg/config"
	"github.com/unklstewy/ads-radar/pkg/tracking"
)

// Server serves the REST API and the websocket feed.
type Server struct {
	router chi.Router
	app    *app.App
	hub    *Hub
	cfg    config.ServerConfig
	source string
	log    *slog.Logger
	now    func() time.Time
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Config config.ServerConfig

	// Source names the data source in exports
	Source string

	// Hub serves /api/v1/ws; nil disables the endpoint
	Hub *Hub

	Logger *slog.Logger
	Clock  func() time.Time
}

// NewServer builds the router for a.
func NewServer(a *app.App, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		router: chi.NewRouter(),
		app:    a,
		hub:    opts.Hub,
		cfg:    opts.Config,
		source: opts.Source,
		log:    opts.Logger.With(slog.String("component", "api")),
		now:    opts.Clock,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket upgrade needs the raw connection
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			// Aircraft endpoints
			r.Get("/aircraft", s.handleGetAircraft)
			r.Get("/aircraft/{id}", s.handleGetAircraftByID)
			r.Get("/aircraft/{id}/trail", s.handleGetTrail)

			// Filter endpoints
			r.Get("/filter", s.handleGetFilter)
			r.Put("/filter", s.handlePutFilter)
			r.Patch("/filter", s.handlePatchFilter)

			// Selection endpoints
			r.Post("/selection/{id}", s.handleSelect)
			r.Delete("/selection", s.handleClearSelection)

			// Poller endpoints
			r.Get("/stats", s.handleGetStats)
			r.Post("/poller/pause", s.handlePause)
			r.Post("/poller/resume", s.handleResume)
			r.Post("/poller/poll", s.handlePollNow)

			r.Get("/export", s.handleExport)
		})
	})
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// ListenAndServe serves on the configured address until ctx is done,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:        net.JoinHostPort(s.cfg.Host, s.cfg.Port),
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", slog.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("shutting down server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"aircraft": s.app.Store().Len(),
	})
}

// handleGetAircraft returns the filtered view, or every record with ?all=true.
func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	store := s.app.Store()
	fs := s.app.Filter()

	var aircraft interface{}
	var count int
	if r.URL.Query().Get("all") == "true" {
		recs := store.Records()
		aircraft, count = recs, len(recs)
	} else {
		recs := store.View(fs)
		aircraft, count = recs, len(recs)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"aircraft": aircraft,
		"count":    count,
		"stats":    store.Stats(),
		"filter":   fs,
		"selected": store.Selected(),
	})
}

func (s *Server) handleGetAircraftByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.app.Store().Get(id)
	if !ok {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trail, ok := s.app.Store().Trail(id)
	if !ok {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"trail": trail,
	})
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.app.Filter())
}

var errInvertedBand = errors.New("minAltitude must not exceed maxAltitude")

func (s *Server) handlePutFilter(w http.ResponseWriter, r *http.Request) {
	fs := tracking.DefaultFilterState()
	if err := json.NewDecoder(r.Body).Decode(&fs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if fs.MinAltitude > fs.MaxAltitude {
		http.Error(w, errInvertedBand.Error(), http.StatusBadRequest)
		return
	}

	s.app.SetFilter(fs)
	respondJSON(w, http.StatusOK, fs)
}

// filterPatch carries the fields of a partial filter update.
type filterPatch struct {
	ShowCivilian *bool    `json:"showCivilian"`
	ShowMilitary *bool    `json:"showMilitary"`
	MinAltitude  *float64 `json:"minAltitude"`
	MaxAltitude  *float64 `json:"maxAltitude"`
	Search       *string  `json:"search"`
}

func (p filterPatch) apply(fs *tracking.FilterState) {
	if p.ShowCivilian != nil {
		fs.ShowCivilian = *p.ShowCivilian
	}
	if p.ShowMilitary != nil {
		fs.ShowMilitary = *p.ShowMilitary
	}
	if p.MinAltitude != nil {
		fs.MinAltitude = *p.MinAltitude
	}
	if p.MaxAltitude != nil {
		fs.MaxAltitude = *p.MaxAltitude
	}
	if p.Search != nil {
		fs.Search = *p.Search
	}
}

func (s *Server) handlePatchFilter(w http.ResponseWriter, r *http.Request) {
	var patch filterPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fs, err := s.app.TryUpdateFilter(func(fs *tracking.FilterState) error {
		patch.apply(fs)
		if fs.MinAltitude > fs.MaxAltitude {
			return errInvertedBand
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, fs)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.app.Select(id) {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"selected": id})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.app.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"aircraft": s.app.Store().Stats(),
		"filter":   s.app.Filter(),
	}
	if p := s.app.Poller(); p != nil {
		resp["poller"] = p.Status()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	p := s.app.Poller()
	if p == nil {
		http.Error(w, "Poller not running", http.StatusServiceUnavailable)
		return
	}
	s.app.SetVisible(false)
	respondJSON(w, http.StatusOK, p.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	p := s.app.Poller()
	if p == nil {
		http.Error(w, "Poller not running", http.StatusServiceUnavailable)
		return
	}
	s.app.SetVisible(true)
	respondJSON(w, http.StatusOK, p.Status())
}

// handlePollNow requests an immediate poll. Polls inside the minimum
// interval are refused rather than queued.
func (s *Server) handlePollNow(w http.ResponseWriter, r *http.Request) {
	p := s.app.Poller()
	if p == nil {
		http.Error(w, "Poller not running", http.StatusServiceUnavailable)
		return
	}

	res, err := p.PollNow(r.Context())
	switch {
	case errors.Is(err, poller.ErrSkipped):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case errors.Is(err, poller.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		s.log.Warn("manual poll failed", slog.Any("error", err))
		http.Error(w, "Poll failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleExport streams a snapshot as JSON, or msgpack+zstd with
// ?format=msgpack.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := export.Take(s.app.Store(), s.source, s.now())

	format := export.FormatJSON
	contentType := "application/json"
	filename := "snapshot.json"
	if r.URL.Query().Get("format") == "msgpack" {
		format = export.FormatMsgpackZstd
		contentType = "application/zstd"
		filename = "snapshot.msgpack.zst"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Encode(w, format, snap); err != nil {
		s.log.Error("export failed", slog.Any("error", err))
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
