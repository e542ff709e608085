// Package service exposes the redaction engine over HTTP/2 cleartext
// (h2c), adapted from the teacher's TLS-terminating internal/mitm server
// (internal/mitm/mitm.go's http2.Server{} configuration) with the TLS
// handshake and dynamic CA removed: this server has no certificate-minting
// role, only request/response redaction.
package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/clinical-nlp/redact-engine/internal/engine"
	"github.com/clinical-nlp/redact-engine/internal/policy"
)

// Server serves POST /redact over h2c, backed by one Engine.
type Server struct {
	eng  *engine.Engine
	addr string
	srv  *http.Server
}

// New builds a Server listening on addr (host:port).
func New(eng *engine.Engine, addr string) *Server {
	s := &Server{eng: eng, addr: addr}

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		MaxReadFrameSize:     1 << 20,
		IdleTimeout:          90 * time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/redact", s.handleRedact)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           requestIDMiddleware(h2c.NewHandler(mux, h2s)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// requestIDMiddleware assigns every request a trace identifier, reusing one
// supplied by an upstream load balancer (X-Request-ID) rather than always
// minting a fresh one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(withRequestID(r.Context(), id))
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type redactRequest struct {
	Text   string         `json:"text"`
	Policy *policy.Policy `json:"policy"`
}

type redactResponse struct {
	RedactedText string        `json:"redactedText"`
	SpanCount    int           `json:"spanCount"`
	Report       engine.Report `json:"report"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Policy != nil && req.Policy.SessionID == "" {
		req.Policy.SessionID = requestIDFromContext(r.Context())
	}

	redacted, spans, report, err := s.eng.Redact(r.Context(), req.Text, req.Policy)
	if err != nil {
		log.Printf("[SERVICE] request %s: redact error: %v", requestIDFromContext(r.Context()), err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}) //nolint:errcheck
		return
	}

	writeJSON(w, http.StatusOK, redactResponse{
		RedactedText: redacted,
		SpanCount:    len(spans),
		Report:       report,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVICE] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	log.Printf("[SERVICE] Listening on %s (h2c)", s.addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
