// Package api provides the HTTP API over one theory engine.
// GET endpoints report state; POST endpoints evaluate spectra and the
// likelihood and are rate limited per client.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LBJ-Wade/GSKY/internal/cosmo"
	"github.com/LBJ-Wade/GSKY/internal/gskyerr"
	"github.com/LBJ-Wade/GSKY/internal/like"
	"github.com/LBJ-Wade/GSKY/internal/persistence"
	"github.com/LBJ-Wade/GSKY/internal/sacc"
	"github.com/LBJ-Wade/GSKY/internal/theory"
)

const maxRunsListed = 100

// Server serves one engine over HTTP. The engine is not safe for concurrent
// use; every handler touching it holds mu.
type Server struct {
	Engine  *theory.Engine
	Data    *sacc.DataSet   // nil disables /loglike
	Like    *like.Gaussian  // built from Data
	DB      *persistence.DB // nil disables run recording
	Limiter *RateLimiter    // nil disables rate limiting
	Port    int

	mu sync.Mutex
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/tracers", s.handleTracers)
	mux.HandleFunc("/api/v1/params", s.handleParams)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunDetail)
	mux.HandleFunc("/api/v1/cls", s.limited(s.handleCls))
	mux.HandleFunc("/api/v1/loglike", s.limited(s.handleLogLike))
	mux.Handle("/metrics", promhttp.Handler())

	return corsMiddleware(mux)
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.Limiter == nil {
		return next
	}
	return RateLimitMiddleware(s.Limiter, next)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr,
		"data_points", s.dataLen(), "recording", s.DB != nil)

	if s.Limiter != nil {
		go func() {
			t := time.NewTicker(time.Hour)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					s.Limiter.cleanup(time.Hour)
				}
			}
		}()
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("HTTP API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) dataLen() int {
	if s.Data == nil {
		return 0
	}
	return len(s.Data.Points)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
		"http://localhost:8888": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.mu.Lock()
	status := map[string]any{
		"name":        "gsky",
		"stamp":       s.Engine.Stamp(),
		"cosmology":   s.Engine.Cosmology().Params(),
		"tracers":     len(s.Engine.Tracers()),
		"data_points": s.dataLen(),
		"recording":   s.DB != nil,
	}
	s.mu.Unlock()
	writeJSON(w, status)
}

func (s *Server) handleTracers(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.mu.Lock()
	names := s.Engine.Tracers()
	s.mu.Unlock()
	writeJSON(w, map[string]any{"tracers": names})
}

// handleParams reports the parameters in force (GET) or merges new ones
// into the engine (POST).
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method == http.MethodPost {
		var delta theory.Params
		if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.Engine.SetParams(delta); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("parameters updated over API", "keys", len(delta))
	}
	writeJSON(w, map[string]any{
		"stamp":  s.Engine.Stamp(),
		"params": s.Engine.Params(),
	})
}

type clsRequest struct {
	Tracer1 string    `json:"tracer1"`
	Tracer2 string    `json:"tracer2"`
	Ells    []float64 `json:"ells"`
}

func (s *Server) handleCls(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req clsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Tracer1 == "" || req.Tracer2 == "" || len(req.Ells) == 0 {
		http.Error(w, "tracer1, tracer2 and ells are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cls, err := s.Engine.AngularCl(req.Tracer1, req.Tracer2, req.Ells)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{
		"tracer1": req.Tracer1,
		"tracer2": req.Tracer2,
		"ells":    req.Ells,
		"cls":     cls,
		"stamp":   s.Engine.Stamp(),
	}
	if id := s.record(&persistence.Run{
		Kind:    "cls",
		Spectra: []persistence.Spectrum{{Tracer1: req.Tracer1, Tracer2: req.Tracer2, Ells: req.Ells, Cls: cls}},
	}); id != "" {
		resp["run_id"] = id
	}
	writeJSON(w, resp)
}

type logLikeRequest struct {
	Cosmology *cosmo.Params `json:"cosmology,omitempty"`
	Params    theory.Params `json:"params,omitempty"`
}

// handleLogLike optionally moves the engine to a new cosmology and
// parameter point, then evaluates the likelihood of the loaded data set.
// The new point stays in force for later requests.
func (s *Server) handleLogLike(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.Data == nil || s.Like == nil {
		http.Error(w, "no data set loaded", http.StatusServiceUnavailable)
		return
	}
	var req logLikeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.moveTo(req); err != nil {
		writeError(w, err)
		return
	}

	vec, err := s.Data.TheoryVector(s.Engine)
	if err != nil {
		writeError(w, err)
		return
	}
	lnL, err := s.Like.LogLikelihood(vec)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{
		"loglike": lnL,
		"stamp":   s.Engine.Stamp(),
	}
	if id := s.record(&persistence.Run{Kind: "loglike", LogLike: &lnL}); id != "" {
		resp["run_id"] = id
	}
	writeJSON(w, resp)
}

// moveTo applies the requested cosmology and parameters in one rebuild, so
// a rejected request leaves the engine untouched. Callers hold mu.
func (s *Server) moveTo(req logLikeRequest) error {
	if req.Cosmology == nil {
		if len(req.Params) == 0 {
			return nil
		}
		return s.Engine.SetParams(req.Params)
	}
	cos, err := cosmo.New(*req.Cosmology)
	if err != nil {
		return err
	}
	merged := s.Engine.Params()
	if _, ok := req.Params["massdef"]; ok {
		delete(merged, "mass_def")
	}
	maps.Copy(merged, req.Params)
	return s.Engine.Reconfigure(cos, merged)
}

// record stores run with the engine's current configuration and returns its
// ID, or "" when recording is off or fails. Callers hold mu.
func (s *Server) record(run *persistence.Run) string {
	if s.DB == nil {
		return ""
	}
	run.Stamp = s.Engine.Stamp()
	run.Cosmology = s.Engine.Cosmology().Params()
	run.Params = s.Engine.Params()
	id, err := s.DB.SaveRun(run)
	if err != nil {
		slog.Error("failed to record run", "kind", run.Kind, "error", err)
		return ""
	}
	return id
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.DB == nil {
		http.Error(w, "run recording disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsListed)
	}
	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.DB == nil {
		http.Error(w, "run recording disabled", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}
	run, err := s.DB.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, run)
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch gskyerr.CodeOf(err) {
	case gskyerr.CodeConfigInvalid, gskyerr.CodeDataInvalid:
		status = http.StatusBadRequest
	case gskyerr.CodeUnknownTracer:
		status = http.StatusNotFound
	case gskyerr.CodeUnsupportedCombination:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  gskyerr.CodeOf(err),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
