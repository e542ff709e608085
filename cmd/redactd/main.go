// Command redactd is the long-running PHI redaction service.
//
// It exposes the redaction engine over HTTP/2 cleartext (h2c) on
// REDACT_SERVICE_PORT, and a separate management API (status, metrics,
// calibrator import/export) on REDACT_MANAGEMENT_PORT.
//
// Usage:
//
//	./redactd
//
//	# Custom ports
//	REDACT_SERVICE_PORT=9443 REDACT_MANAGEMENT_PORT=9081 ./redactd
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinical-nlp/redact-engine/internal/calibrate"
	"github.com/clinical-nlp/redact-engine/internal/engine"
	"github.com/clinical-nlp/redact-engine/internal/management"
	"github.com/clinical-nlp/redact-engine/internal/metrics"
	"github.com/clinical-nlp/redact-engine/internal/service"
)

func main() {
	cfg := engine.Load()

	printBanner(cfg)

	m := metrics.New(prometheus.DefaultRegisterer)

	var calibrator *calibrate.Calibrator
	if cfg.CalibratorPath != "" {
		if data, err := os.ReadFile(cfg.CalibratorPath); err == nil {
			calibrator = calibrate.New(calibrate.MethodPlatt)
			if err := calibrator.UnmarshalJSON(data); err != nil {
				log.Printf("[REDACTD] Warning: could not parse %s: %v", cfg.CalibratorPath, err)
			} else {
				log.Printf("[REDACTD] Loaded calibrator from %s", cfg.CalibratorPath)
			}
		}
	}

	eng, err := engine.New(cfg, nil, nil, m)
	if err != nil {
		log.Fatalf("[REDACTD] Fatal: could not build engine: %v", err)
	}

	mgmt := management.New(cfg, m, calibrator)
	go func() {
		if err := mgmt.ListenAndServe(); err != nil {
			log.Fatalf("[MANAGEMENT] Fatal: %v", err)
		}
	}()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.ServicePort)
	srv := service.New(eng, addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("[REDACTD] Shutting down…")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[REDACTD] Shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[REDACTD] Fatal: %v", err)
	}
}

func printBanner(cfg *engine.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          PHI Redaction Service  (Go)                 ║
╚══════════════════════════════════════════════════════╝
  Service port    : %d
  Management port : %d
  DFA pre-scan    : %v
  Parallel runner : %v
  Semantic cache  : %v
  Reasoner model  : %s

  Redact text:
    curl -X POST http://localhost:%d/redact -d '{"text":"..."}'

  Check status:
    curl http://localhost:%d/status
`, cfg.ServicePort, cfg.ManagementPort,
		cfg.EnableDFAPreScan, cfg.EnableParallelRunner, cfg.EnableSemanticCache,
		cfg.ReasonerModelName,
		cfg.ServicePort, cfg.ManagementPort)
}
