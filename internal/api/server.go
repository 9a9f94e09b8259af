package api

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stage"
)

// StageRunner runs one stage of a run. skipped reports a reused artifact.
type StageRunner func(ctx context.Context, runID, stage string, force bool) (result any, skipped bool, err error)

// ArtifactLoader returns the persisted artifact of one stage of a run.
type ArtifactLoader func(ctx context.Context, runID, stage string) (any, error)

// VersionProber connects to the backend of one side and returns its version.
type VersionProber func(ctx context.Context, side config.Side) (string, error)

type Server struct {
	runStage     StageRunner
	loadArtifact ArtifactLoader
	version      VersionProber
	metrics      http.Handler
	stageTimeout time.Duration
}

type stageRequest struct {
	Force bool `json:"force"`
}

// NewServer returns the loopback-only control API. metrics may be nil.
func NewServer(run StageRunner, load ArtifactLoader, version VersionProber, metrics http.Handler, stageTimeout time.Duration) http.Handler {
	if stageTimeout <= 0 {
		stageTimeout = 6 * time.Hour
	}
	s := &Server{
		runStage:     run,
		loadArtifact: load,
		version:      version,
		metrics:      metrics,
		stageTimeout: stageTimeout,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/backends/{side}/version", s.handleBackendVersion)
	mux.HandleFunc("/api/v1/runs/{run}/stages/{stage}", s.handleStage)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return withLocalOnly(withCORS(mux))
}

func isAllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsLoopbackAddr reports whether a listen address binds only loopback.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func withLocalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		ip := net.ParseIP(host)
		if err != nil || ip == nil || !ip.IsLoopback() {
			writeRequestError(w, r, http.StatusForbidden, "loopback only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !isAllowedOrigin(origin) {
			writeRequestError(w, r, http.StatusForbidden, "origin not allowed")
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBackendVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	side := config.Side(r.PathValue("side"))
	if side != config.Left && side != config.Right {
		writeRequestError(w, r, http.StatusNotFound, "unknown side "+string(side))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	version, err := s.version(ctx, side)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"side":    side,
		"version": version,
	})
}

func knownStage(name string) bool {
	for _, s := range stage.Stages {
		if s == name {
			return true
		}
	}
	return false
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	runID := strings.TrimSpace(r.PathValue("run"))
	name := r.PathValue("stage")
	if runID == "" {
		writeRequestError(w, r, http.StatusBadRequest, "run is required")
		return
	}
	if !knownStage(name) {
		writeRequestError(w, r, http.StatusNotFound, "unknown stage "+name)
		return
	}

	if r.Method == http.MethodGet {
		v, err := s.loadArtifact(r.Context(), runID, name)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, v)
		return
	}

	var req stageRequest
	if r.ContentLength != 0 && !readJSONOrWriteError(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.stageTimeout)
	defer cancel()
	start := time.Now()
	v, skipped, err := s.runStage(ctx, runID, name, req.Force)
	if err != nil {
		logger.With("run", runID, "stage", name).Errorw("stage request failed", "error", err)
		writeFailure(w, r, err)
		return
	}
	logger.With("run", runID, "stage", name).Infow("stage request done", "skipped", skipped, "elapsed", time.Since(start))
	writeData(w, r, http.StatusOK, map[string]any{
		"stage":    name,
		"skipped":  skipped,
		"artifact": v,
	})
}
