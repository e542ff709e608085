// Package engine wires every pipeline stage into the single entry point
// spec.md §2 describes: Redact(ctx, text, policy) -> redacted text, applied
// spans, and an execution report.
package engine

import (
	"encoding/json"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/clinical-nlp/redact-engine/internal/detect"
)

// ReasonerModel selects how the cross-type constraint reasoner computes its
// Nearby relation (spec.md §6: "select Datalog vs imperative reasoner").
type ReasonerModel int

const (
	// ReasonerDatalog queries the embedded Prolog engine (internal/reason's
	// Run), matching the spec's description of the reasoner as a Datalog
	// evaluation over detected/nearby facts.
	ReasonerDatalog ReasonerModel = iota
	// ReasonerImperative computes the same Nearby relation directly in Go
	// (internal/reason's RunImperative), for environments where embedding
	// a Prolog interpreter is undesirable.
	ReasonerImperative
)

// Config holds every layered setting and environment toggle the engine
// needs to run. Settings are layered the way the teacher's config package
// does: defaults -> engine-config.json -> environment variables (env vars
// win).
type Config struct {
	LogLevel string `json:"logLevel"`

	ManagementPort  int    `json:"managementPort"`
	ServicePort     int    `json:"servicePort"`
	ManagementToken string `json:"-"` // bearer token for the management API; empty disables auth

	// Environment toggles (spec.md §6). All default to safe, documented
	// values: every stage on except the global-context modifier, Datalog
	// reasoner, sequential fallback available but not selected by default.
	EnableDFAPreScan      bool `json:"enableDfaPreScan"`
	EnableParallelRunner  bool `json:"enableParallelRunner"`
	EnableSemanticCache   bool `json:"enableSemanticCache"`
	EnableGlobalContext   bool `json:"enableGlobalContext"`
	EnablePlugins         bool `json:"enablePlugins"`
	ReasonerModel         ReasonerModel `json:"-"`
	ReasonerModelName     string        `json:"reasonerModel"` // "datalog" | "imperative"

	RunnerWorkers int `json:"runnerWorkers"` // <=0 selects min(4, cores-1)

	TimeoutBaseMs  int `json:"timeoutBaseMs"`
	TimeoutPerKBMs int `json:"timeoutPerKbMs"`
	TimeoutMinMs   int `json:"timeoutMinMs"`
	TimeoutMaxMs   int `json:"timeoutMaxMs"`

	CachePath        string `json:"cachePath"` // empty = in-memory only
	CacheCapacity    int    `json:"cacheCapacity"`
	CacheTTLHours    int    `json:"cacheTtlHours"`
	CalibratorPath   string `json:"calibratorPath"` // empty = uncalibrated passthrough

	SpanPoolCapacity int `json:"spanPoolCapacity"`
}

// Load returns a Config with defaults overridden by engine-config.json and
// then by environment variables, mirroring the teacher's config.Load.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "engine-config.json")
	loadEnv(cfg)
	cfg.ReasonerModel = parseReasonerModel(cfg.ReasonerModelName)
	return cfg
}

func defaults() *Config {
	return &Config{
		LogLevel:            "info",
		ManagementPort:      8081,
		ServicePort:         8443,
		EnableDFAPreScan:    true,
		EnableParallelRunner: true,
		EnableSemanticCache: true,
		EnableGlobalContext: false,
		EnablePlugins:       true,
		ReasonerModelName:   "datalog",
		RunnerWorkers:       0,
		TimeoutBaseMs:       50,
		TimeoutPerKBMs:      5,
		TimeoutMinMs:        25,
		TimeoutMaxMs:        2000,
		CachePath:           "",
		CacheCapacity:       1000,
		CacheTTLHours:       24,
		CalibratorPath:      "",
		SpanPoolCapacity:    10_000,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
		return
	}
	log.Printf("[CONFIG] Loaded %s", path)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("REDACT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDACT_MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("REDACT_SERVICE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ServicePort = n
		}
	}
	setBoolEnv("REDACT_ENABLE_DFA", &cfg.EnableDFAPreScan)
	setBoolEnv("REDACT_ENABLE_PARALLEL_RUNNER", &cfg.EnableParallelRunner)
	setBoolEnv("REDACT_ENABLE_SEMANTIC_CACHE", &cfg.EnableSemanticCache)
	setBoolEnv("REDACT_ENABLE_GLOBAL_CONTEXT", &cfg.EnableGlobalContext)
	setBoolEnv("REDACT_ENABLE_PLUGINS", &cfg.EnablePlugins)
	if v := os.Getenv("REDACT_REASONER_MODEL"); v != "" {
		cfg.ReasonerModelName = v
	}
	if v := os.Getenv("REDACT_RUNNER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RunnerWorkers = n
		}
	}
	if v := os.Getenv("REDACT_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("REDACT_CALIBRATOR_PATH"); v != "" {
		cfg.CalibratorPath = v
	}
	if v := os.Getenv("REDACT_MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
}

func setBoolEnv(name string, dst *bool) {
	v := os.Getenv(name)
	switch v {
	case "true":
		*dst = true
	case "false":
		*dst = false
	}
}

func parseReasonerModel(name string) ReasonerModel {
	if name == "imperative" {
		return ReasonerImperative
	}
	return ReasonerDatalog
}

// TimeoutPolicy derives the runner's detect.TimeoutPolicy from Config.
func (c *Config) TimeoutPolicy() detect.TimeoutPolicy {
	return detect.TimeoutPolicy{
		Base:  time.Duration(c.TimeoutBaseMs) * time.Millisecond,
		PerKB: time.Duration(c.TimeoutPerKBMs) * time.Millisecond,
		Min:   time.Duration(c.TimeoutMinMs) * time.Millisecond,
		Max:   time.Duration(c.TimeoutMaxMs) * time.Millisecond,
	}
}

// ExecutionModel returns the runner's scheduling mode for this config.
func (c *Config) ExecutionModel() detect.ExecutionModel {
	if c.EnableParallelRunner {
		return detect.Parallel
	}
	return detect.Sequential
}

// Workers returns the resolved worker count, applying the teacher's
// min(4, cores-1) convention when unset.
func (c *Config) Workers() int {
	if c.RunnerWorkers > 0 {
		return c.RunnerWorkers
	}
	w := runtime.NumCPU() - 1
	if w > 4 {
		w = 4
	}
	if w < 1 {
		w = 1
	}
	return w
}
