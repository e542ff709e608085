// Package policy describes what the engine should do with each PHI type:
// whether its detector is enabled, what replacement token (if any) to force,
// and request-scoped limits (spec.md §6).
package policy

import (
	"fmt"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// Identifier configures handling for a single PHI filter type.
type Identifier struct {
	Enabled     bool           `json:"enabled"`
	Replacement string         `json:"replacement,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Limits bounds per-request resource usage.
type Limits struct {
	MaxInputBytes    int `json:"maxInputBytes,omitempty"`
	MaxSpansPerType  int `json:"maxSpansPerType,omitempty"`
	DetectorTimeoutMs int `json:"detectorTimeoutMs,omitempty"`
}

// Policy is the caller-supplied configuration for one redact() call.
type Policy struct {
	Identifiers map[span.FilterType]Identifier `json:"identifiers"`
	Limits      Limits                          `json:"limits,omitempty"`

	// SessionID scopes token stability (spec.md §6): identical (TYPE, text)
	// within a session always maps to the same token.
	SessionID string `json:"sessionId,omitempty"`
}

// Enabled reports whether the given filter type's detector should run.
// Absence from Identifiers means enabled-by-default, matching the teacher's
// config convention of additive overrides.
func (p *Policy) Enabled(t span.FilterType) bool {
	if p == nil || p.Identifiers == nil {
		return true
	}
	id, ok := p.Identifiers[t]
	if !ok {
		return true
	}
	return id.Enabled
}

// ReplacementFor returns the policy-supplied fixed replacement for t, if any.
func (p *Policy) ReplacementFor(t span.FilterType) (string, bool) {
	if p == nil || p.Identifiers == nil {
		return "", false
	}
	id, ok := p.Identifiers[t]
	if !ok || id.Replacement == "" {
		return "", false
	}
	return id.Replacement, true
}

// Validate rejects a policy that names an unknown filter type, a
// configuration error that must be surfaced to the caller with no
// redaction performed. No other policy field is checked.
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	for t := range p.Identifiers {
		if !knownType(t) {
			return fmt.Errorf("policy: unknown filter type %q", t)
		}
	}
	return nil
}

func knownType(t span.FilterType) bool {
	switch t {
	case span.TypeName, span.TypeSSN, span.TypePhone, span.TypeEmail, span.TypeDate,
		span.TypeAge, span.TypeMRN, span.TypeAddress, span.TypeZipcode, span.TypeIP,
		span.TypeURL, span.TypeFax, span.TypeAccount, span.TypeCreditCard, span.TypeLicense,
		span.TypePassport, span.TypeDevice, span.TypeVehicle, span.TypeBiometric,
		span.TypeHealthPlan, span.TypeNPI, span.TypeProviderName, span.TypeCustom:
		return true
	}
	return false
}

// Default returns a Policy with every built-in filter type enabled and no
// limits, suitable for tests and as the CLI's implicit default.
func Default() *Policy {
	return &Policy{Identifiers: map[span.FilterType]Identifier{}}
}
