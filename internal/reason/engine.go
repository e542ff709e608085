// Package reason implements the Cross-Type Constraint Reasoner (spec.md
// §4.6): Datalog-style facts over detected spans, joined through a Prolog
// interpreter, with the EXCLUSIVE/SUPPORTIVE rule table applied in Go over
// the join results.
package reason

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ichiban/prolog"

	"github.com/clinical-nlp/redact-engine/internal/span"
)

// NearbyWindowChars is the distance within which two spans are considered
// Nearby (spec.md §4.6: "within a 200-char window").
const NearbyWindowChars = 200

// Engine wraps an ichiban/prolog interpreter holding one request's
// detected/1 and nearby/2 facts. Which pairs are nearby is read back with a
// Prolog query; type matching, SameText grouping and rule strength
// application happen in Go, where the regex context-gate and floating
// point arithmetic are far more natural than encoding them as clauses.
type Engine struct {
	interp *prolog.Interpreter
	rules  []Rule
}

// NewEngine builds a Prolog interpreter with no facts loaded yet.
func NewEngine(rules []Rule) *Engine {
	return &Engine{interp: prolog.New(nil, nil), rules: rules}
}

type fact struct {
	id1, id2 string
	dist     int
}

// loadFacts asserts detected/1 and nearby/2 clauses for one request's
// spans. Span identity is encoded as an atom s<index> since Prolog atoms
// must be lowercase; the index maps back to the Go-side slice.
func (e *Engine) loadFacts(spans []*span.Span) error {
	var b strings.Builder
	for i := range spans {
		fmt.Fprintf(&b, "detected(s%d).\n", i)
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if nearby(spans[i], spans[j]) {
				fmt.Fprintf(&b, "nearby(s%d, s%d).\n", i, j)
			}
		}
	}
	return e.interp.Exec(b.String())
}

func nearby(a, b *span.Span) bool {
	dist := b.CharacterStart - a.CharacterEnd
	if dist < 0 {
		dist = a.CharacterStart - b.CharacterEnd
	}
	return dist <= NearbyWindowChars
}

// nearbyPairs queries the loaded Prolog facts for every asserted Nearby
// pair, returning their span indices.
func (e *Engine) nearbyPairs(ctx context.Context) ([][2]int, error) {
	sols, err := e.interp.QueryContext(ctx, "nearby(S1, S2).")
	if err != nil {
		return nil, err
	}
	defer sols.Close()

	var pairs [][2]int
	for sols.Next() {
		var result struct {
			S1 string
			S2 string
		}
		if err := sols.Scan(&result); err != nil {
			continue
		}
		i, ok1 := indexOfAtom(result.S1)
		j, ok2 := indexOfAtom(result.S2)
		if ok1 && ok2 {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs, sols.Err()
}

func indexOfAtom(atom string) (int, bool) {
	atom = strings.TrimPrefix(atom, "s")
	n := 0
	for _, r := range atom {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if atom == "" {
		return 0, false
	}
	return n, true
}

var (
	ruleContextCacheMu sync.RWMutex
	ruleContextCache   = map[string]*regexp.Regexp{}
)

// contextRegexp compiles and caches a rule's context-gate pattern. Requests
// are served concurrently (internal/service handles them on the HTTP
// server's own goroutines), so the shared compilation cache must be
// synchronized rather than a bare map (spec.md §9's warning against global
// mutable singletons applies equally to process-wide caches like this one).
func contextRegexp(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	ruleContextCacheMu.RLock()
	re, ok := ruleContextCache[pattern]
	ruleContextCacheMu.RUnlock()
	if ok {
		return re
	}

	ruleContextCacheMu.Lock()
	defer ruleContextCacheMu.Unlock()
	if re, ok := ruleContextCache[pattern]; ok {
		return re
	}
	re = regexp.MustCompile(pattern)
	ruleContextCache[pattern] = re
	return re
}
