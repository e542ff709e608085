// Command redact runs the redaction pipeline once over a file or stdin and
// prints the redacted text plus an execution report to stdout.
//
// Usage:
//
//	redact -in note.txt -policy policy.json
//	cat note.txt | redact
//
// Exit codes: 0 success, 1 malformed policy, 2 I/O error, 3 pipeline
// failure, 4 cancelled.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinical-nlp/redact-engine/internal/engine"
	"github.com/clinical-nlp/redact-engine/internal/policy"
)

const (
	exitSuccess   = 0
	exitPolicy    = 1
	exitIO        = 2
	exitPipeline  = 3
	exitCancelled = 4
)

type cliOutput struct {
	RedactedText string        `json:"redactedText"`
	SpanCount    int           `json:"spanCount"`
	Report       engine.Report `json:"report"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inPath     = flag.String("in", "", "input file (default: stdin)")
		policyPath = flag.String("policy", "", "policy JSON file (default: all filters enabled)")
		reportOnly = flag.Bool("report-only", false, "print only the JSON report, not the redacted text")
	)
	flag.Parse()

	pol, err := loadPolicy(*policyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redact: malformed policy: %v\n", err)
		return exitPolicy
	}

	text, err := loadInput(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redact: I/O error: %v\n", err)
		return exitIO
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := engine.Load()
	eng, err := engine.New(cfg, nil, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redact: could not build engine: %v\n", err)
		return exitPipeline
	}

	redacted, spans, report, err := eng.Redact(ctx, text, pol)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "redact: cancelled")
			return exitCancelled
		}
		fmt.Fprintf(os.Stderr, "redact: pipeline failure: %v\n", err)
		return exitPipeline
	}

	out := cliOutput{RedactedText: redacted, SpanCount: len(spans), Report: report}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if *reportOnly {
		if err := enc.Encode(out.Report); err != nil {
			fmt.Fprintf(os.Stderr, "redact: encode error: %v\n", err)
			return exitIO
		}
		return exitSuccess
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "redact: encode error: %v\n", err)
		return exitIO
	}
	return exitSuccess
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pol policy.Policy
	if err := json.Unmarshal(data, &pol); err != nil {
		return nil, err
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return &pol, nil
}

func loadInput(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
