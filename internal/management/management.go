// Package management provides a lightweight HTTP API for runtime inspection
// of the running redaction engine: health/status, JSON and Prometheus
// metrics, and calibrator import/export.
//
// Endpoints:
//
//	GET  /status              - engine health, uptime, active toggles
//	GET  /metrics              - JSON metrics snapshot
//	GET  /metrics/prometheus   - Prometheus text exposition
//	GET  /calibrator           - export the fitted calibrator as JSON
//	POST /calibrator           - import a calibrator JSON blob
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinical-nlp/redact-engine/internal/calibrate"
	"github.com/clinical-nlp/redact-engine/internal/engine"
	"github.com/clinical-nlp/redact-engine/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg        *engine.Config
	startTime  time.Time
	token      string // bearer token for auth; empty = no auth
	metrics    *metrics.Metrics
	calibrator *calibrate.Calibrator // nil until fitted or imported
}

// New creates a management server over cfg's engine configuration. m may be
// nil (metrics endpoint then reports unavailable). calibrator may be nil;
// it is typically wired after the engine fits or loads one.
func New(cfg *engine.Config, m *metrics.Metrics, calibrator *calibrate.Calibrator) *Server {
	s := &Server{
		cfg:        cfg,
		startTime:  time.Now(),
		token:      cfg.ManagementToken,
		metrics:    m,
		calibrator: calibrator,
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.Handle("/metrics/prometheus", promhttp.Handler())
	mux.HandleFunc("/calibrator", s.handleCalibrator)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured via
// REDACT_MANAGEMENT_TOKEN (engine.Config.ManagementToken); an empty token
// disables auth entirely.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
		Toggles struct {
			DFAPreScan     bool   `json:"dfaPreScan"`
			ParallelRunner bool   `json:"parallelRunner"`
			SemanticCache  bool   `json:"semanticCache"`
			GlobalContext  bool   `json:"globalContext"`
			Plugins        bool   `json:"plugins"`
			ReasonerModel  string `json:"reasonerModel"`
		} `json:"toggles"`
		CalibratorFitted bool `json:"calibratorFitted"`
	}

	resp := response{Status: "running", Uptime: time.Since(s.startTime).Round(time.Second).String()}
	resp.Toggles.DFAPreScan = s.cfg.EnableDFAPreScan
	resp.Toggles.ParallelRunner = s.cfg.EnableParallelRunner
	resp.Toggles.SemanticCache = s.cfg.EnableSemanticCache
	resp.Toggles.GlobalContext = s.cfg.EnableGlobalContext
	resp.Toggles.Plugins = s.cfg.EnablePlugins
	resp.Toggles.ReasonerModel = s.cfg.ReasonerModelName
	resp.CalibratorFitted = s.calibrator != nil

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleCalibrator(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.calibrator == nil {
			http.Error(w, "no calibrator fitted or imported", http.StatusNotFound)
			return
		}
		data, err := json.Marshal(s.calibrator)
		if err != nil {
			http.Error(w, fmt.Sprintf("marshal error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data) //nolint:errcheck
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 5<<20)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}
		c := &calibrate.Calibrator{}
		if err := json.Unmarshal(data, c); err != nil {
			http.Error(w, fmt.Sprintf("invalid calibrator JSON: %v", err), http.StatusBadRequest)
			return
		}
		s.calibrator = c
		log.Printf("[MANAGEMENT] Calibrator imported (%d bytes)", len(data))
		writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
	default:
		http.Error(w, "GET or POST only", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	log.Printf("[MANAGEMENT] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
