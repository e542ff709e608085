// Package detectors provides concrete, swappable implementations of the
// detect.Detector contract for the PHI categories spec.md §3 names. The
// specification treats detector content as pluggable (§1 Non-goals); these
// exist so the engine is runnable and testable end to end, adapted from the
// teacher's own regex pattern table (internal/anonymizer/anonymizer.go's
// compilePatterns).
package detectors

import (
	"context"
	"regexp"

	"github.com/clinical-nlp/redact-engine/internal/detect"
	"github.com/clinical-nlp/redact-engine/internal/span"
)

// regexDetector is a single-pattern detector: the bulk of the reference
// leaves, mirroring the teacher's pattern{re, piiType, confidence} table.
type regexDetector struct {
	name       string
	filterType span.FilterType
	priority   int
	confidence float64
	re         *regexp.Regexp
}

func (d *regexDetector) Name() string           { return d.name }
func (d *regexDetector) Type() span.FilterType  { return d.filterType }
func (d *regexDetector) Priority() int          { return d.priority }

func (d *regexDetector) Detect(_ context.Context, text string, _ map[string]any) ([]detect.Match, error) {
	locs := d.re.FindAllStringIndex(text, -1)
	if locs == nil {
		return nil, nil
	}
	matches := make([]detect.Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, detect.Match{
			ByteStart:  loc[0],
			ByteEnd:    loc[1],
			Confidence: d.confidence,
			Pattern:    d.name,
		})
	}
	return matches, nil
}

// newRegex panics on an invalid pattern — these are fixed, compile-time
// constants, so a bad pattern is a programming error, not a runtime one.
func newRegex(name string, t span.FilterType, priority int, confidence float64, expr string) *regexDetector {
	return &regexDetector{name: name, filterType: t, priority: priority, confidence: confidence, re: regexp.MustCompile(expr)}
}

// Default returns the reference detectors for the structurally-detectable
// PHI types (spec.md §3): one per type, except IP, which has separate IPv6
// and IPv4 leaves. Confidence bands follow the teacher's convention:
// 0.90+ unambiguous format, 0.70-0.89 moderately specific, below 0.70 broad
// and relying on downstream confidence/whitelist stages to filter noise.
func Default() []detect.Detector {
	return []detect.Detector{
		newRegex("email", span.TypeEmail, 80, 0.95,
			`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),

		// titled-name catches the common "Dr./Mr./Mrs./Ms./Prof. Surname"
		// shape; whitelist.personIndicatorGuard expects exactly this
		// title-prefixed form when deciding whether a structure phrase
		// overrides a person indicator.
		newRegex("titled-name", span.TypeName, 75, 0.75,
			`\b(?:Dr|Mr|Mrs|Ms|Prof)\.\s+[A-Z][A-Za-z'\-]+(?:\s+[A-Z][A-Za-z'\-]+){0,2}`),

		newRegex("ssn", span.TypeSSN, 85, 0.85,
			`\b(?:\d{3}-\d{2}-\d{4}|\d{9})\b`),

		newRegex("credit-card", span.TypeCreditCard, 80, 0.85,
			`\b(?:\d{4}[\-\s]?){3}\d{4}\b`),

		newRegex("street-address", span.TypeAddress, 70, 0.75,
			`(?i)\d+\s+[A-Za-z0-9\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl)\b`),

		newRegex("ipv6", span.TypeIP, 75, 0.85,
			`(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}`+
				`|(?:[0-9a-fA-F]{1,4}:){1,7}:`+
				`|(?:[0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}`+
				`|(?:[0-9a-fA-F]{1,4}:){1,5}(?::[0-9a-fA-F]{1,4}){1,2}`+
				`|(?:[0-9a-fA-F]{1,4}:){1,4}(?::[0-9a-fA-F]{1,4}){1,3}`+
				`|(?:[0-9a-fA-F]{1,4}:){1,3}(?::[0-9a-fA-F]{1,4}){1,4}`+
				`|(?:[0-9a-fA-F]{1,4}:){1,2}(?::[0-9a-fA-F]{1,4}){1,5}`+
				`|[0-9a-fA-F]{1,4}:(?::[0-9a-fA-F]{1,4}){1,6}`+
				`|:(?::[0-9a-fA-F]{1,4}){1,7}`),

		newRegex("ipv4", span.TypeIP, 60, 0.70,
			`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),

		newRegex("url", span.TypeURL, 65, 0.80,
			`\bhttps?://[^\s<>"']+`),

		newRegex("phone", span.TypePhone, 55, 0.65,
			`(\+?1?[\-.\s]?)?\(?([0-9]{3})\)?[\-.\s]?([0-9]{3})[\-.\s]?([0-9]{4})`),

		newRegex("fax", span.TypeFax, 50, 0.55,
			`(?i)fax[\s:]*(\+?1?[\-.\s]?)?\(?([0-9]{3})\)?[\-.\s]?([0-9]{3})[\-.\s]?([0-9]{4})`),

		newRegex("zipcode", span.TypeZipcode, 30, 0.40,
			`\b\d{5}(?:-\d{4})?\b`),

		newRegex("date", span.TypeDate, 60, 0.75,
			`\b(?:\d{1,2}[\-/]\d{1,2}[\-/]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`),

		newRegex("age-over-89", span.TypeAge, 65, 0.70,
			`\b(?:9[0-9]|1[0-9]{2})\s*(?:years?[\s\-]old|yo|y\.?o\.?)\b`),

		newRegex("mrn", span.TypeMRN, 70, 0.60,
			`(?i)\b(?:mrn|medical record(?: number)?)[\s#:]*([A-Z0-9\-]{5,})`),

		newRegex("account-number", span.TypeAccount, 55, 0.60,
			`(?i)\baccount(?:\s+(?:number|no|#))[\s:]*([A-Z0-9\-]{4,})`),

		newRegex("license-number", span.TypeLicense, 55, 0.60,
			`(?i)\blicense(?:\s+(?:number|no|#))[\s:]*([A-Z0-9\-]{4,})`),

		newRegex("passport-number", span.TypePassport, 60, 0.65,
			`(?i)\bpassport(?:\s+(?:number|no|#))?[\s:]*([A-Z][0-9]{8})`),

		newRegex("health-plan-id", span.TypeHealthPlan, 55, 0.55,
			`(?i)\b(?:health plan|member id|plan id)[\s#:]*([A-Z0-9\-]{5,})`),

		newRegex("npi", span.TypeNPI, 65, 0.70,
			`(?i)\bnpi[\s#:]*([0-9]{10})\b`),

		newRegex("vehicle-vin", span.TypeVehicle, 60, 0.70,
			`\b[A-HJ-NPR-Z0-9]{17}\b`),

		newRegex("device-identifier", span.TypeDevice, 50, 0.50,
			`(?i)\b(?:device|serial)(?:\s+(?:id|number|no|#))[\s:]*([A-Z0-9\-]{5,})`),
	}
}
