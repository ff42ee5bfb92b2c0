package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clipvault/internal/cache"
	"clipvault/internal/logger"
	"clipvault/internal/service"
	"clipvault/internal/storage"
	"clipvault/pkg/types"
)

type Server struct {
	svc    *service.ClipboardService
	icons  *cache.IconCache
	hub    *Hub
	srv    *http.Server
	pid    *pidFile
	config Config
	log    *logger.Logger
}

type Config struct {
	Port int
}

// New builds the server. icons may be nil, in which case the icon
// endpoint always reports not-yet-available.
func New(svc *service.ClipboardService, icons *cache.IconCache, config Config, log *logger.Logger) *Server {
	s := &Server{
		svc:    svc,
		icons:  icons,
		hub:    newHub(log),
		config: config,
		log:    log,
	}
	svc.RegisterHandler(s.hub)
	return s
}

func (s *Server) Start() error {
	pid, err := newPIDFile()
	if err != nil {
		return err
	}
	if old, err := pid.read(); err == nil && old != 0 && old != os.Getpid() && isRunning(old) {
		return fmt.Errorf("another instance is already running (pid %d)", old)
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	s.pid = pid

	go s.hub.run()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/status", s.handleStatus)
	r.Get("/ws", s.serveWs)
	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", s.handleListEntries)
		r.Delete("/entries", s.handleClearEntries)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)
		r.Get("/entries/{id}/thumbnail", s.handleThumbnail)
		r.Post("/entries/{id}/copy", s.handleCopyEntry)
		r.Post("/entries/{id}/favorite", s.handleToggleFavorite)
		r.Get("/apps/{bundleID}/icon", s.handleAppIcon)
	})

	addr := fmt.Sprintf("127.0.0.1:%d", s.config.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: r,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("http server on %s: %w", addr, err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = s.pid.remove()
		return err
	case <-time.After(100 * time.Millisecond):
		s.log.Info().Str("addr", addr).Msg("http server listening")
		return nil
	}
}

func (s *Server) Stop() error {
	if s.pid != nil {
		_ = s.pid.remove()
	}
	s.hub.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Snapshot(r.Context(), storage.Filter{Limit: 1})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "ok",
		"time":       time.Now().Format(time.RFC3339),
		"addr":       s.srv.Addr,
		"count":      view.Count,
		"totalBytes": view.TotalBytes,
	})
}

// parseFilter maps the query string onto a storage filter. Unknown or
// malformed parameters fall back to defaults rather than failing the
// request.
func parseFilter(r *http.Request) storage.Filter {
	q := r.URL.Query()
	filter := storage.Filter{Limit: 50}

	switch q.Get("kind") {
	case "text":
		filter.Kind = types.KindText
	case "url":
		filter.Kind = types.KindURL
	case "image":
		filter.Kind = types.KindImage
	}
	if q.Get("favorites") == "true" {
		filter.FavoritesOnly = true
	}
	filter.Search = q.Get("q")
	if window := q.Get("window"); window != "" {
		if d, err := time.ParseDuration(window); err == nil && d > 0 {
			filter.Since = time.Now().Add(-d)
		}
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}
	return filter
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Snapshot(r.Context(), parseFilter(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Thumbnail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "thumbnail not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

func (s *Server) handleCopyEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CopyEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ToggleFavorite(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAppIcon serves the cached application icon for a bundle ID. A
// cache miss answers 404 immediately while the fetch proceeds in the
// background; clients retry later.
func (s *Server) handleAppIcon(w http.ResponseWriter, r *http.Request) {
	if s.icons == nil {
		http.Error(w, "icon not available", http.StatusNotFound)
		return
	}
	data, ok := s.icons.Get(r.Context(), chi.URLParam(r, "bundleID"))
	if !ok {
		http.Error(w, "icon not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
