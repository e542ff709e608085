package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinical-nlp/redact-engine/internal/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := &engine.Config{
		LogLevel:             "error",
		EnableDFAPreScan:     true,
		EnableParallelRunner: true,
		RunnerWorkers:        1,
		TimeoutBaseMs:        50,
		TimeoutPerKBMs:       5,
		TimeoutMinMs:         25,
		TimeoutMaxMs:         2000,
		SpanPoolCapacity:     64,
	}
	eng, err := engine.New(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	return eng
}

func TestHandleRedact_RedactsSubmittedText(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	body := strings.NewReader(`{"text":"contact 123-45-6789 for the file"}`)
	resp, err := http.Post(srv.URL+"/redact", "application/json", body)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out redactResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if strings.Contains(out.RedactedText, "123-45-6789") {
		t.Errorf("expected the SSN to be redacted, got %q", out.RedactedText)
	}
}

func TestHandleRedact_RejectsNonPost(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/redact")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestHandleRedact_RejectsMalformedBody(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/redact", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", resp.StatusCode)
	}
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequestIDMiddleware_GeneratesIDWhenAbsent(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID response header")
	}
}

func TestRequestIDMiddleware_ReusesSuppliedID(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	srv := httptest.NewServer(s.srv.Handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	req.Header.Set("X-Request-ID", "fixed-id-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "fixed-id-123" {
		t.Errorf("expected the supplied request ID to be echoed back, got %q", got)
	}
}

func TestServer_ShutdownSucceedsOnUnstartedServer(t *testing.T) {
	s := New(testEngine(t), "127.0.0.1:0")
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("expected Shutdown to succeed on an unstarted server, got %v", err)
	}
}
