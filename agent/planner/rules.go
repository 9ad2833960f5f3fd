package planner

import (
	"regexp"
	"strings"

	planx "github.com/wiroonsak/accountiq/agent/plan"
)

// Keyword signal sets for the deterministic classifier. The LLM-backed
// classifier may refine confidence and rationale, but the observable plan
// shape must be reproducible from these signals alone.
var (
	structuredSignals = []string{
		"sales", "revenue", "opportunit", "pipeline", "deal",
		"amount", "quota", "forecast", "metric", "count",
		"how many", "how much", "total", "data",
	}

	graphSignals = []string{
		"relationship", "contact", "connection", "who knows",
		"works with", "introduc", "network", "document",
		"connected", "knows",
	}

	greetingSignals = []string{
		"hello", "hi ", "hey", "good morning", "good afternoon",
		"thank", "how are you", "bye",
	}
)

var (
	quotedNameRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	// "for Acme Corp", "about Globex", "at Initech" — capitalized runs
	// after a preposition.
	prepositionNameRe = regexp.MustCompile(`(?:for|about|at|with|of) ((?:[A-Z][\w&.-]*)(?: (?:[A-Z][\w&.-]*|&))*)`)
)

func hasSignal(query string, signals []string) bool {
	lowered := strings.ToLower(query)
	for _, s := range signals {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}

func isGreeting(query string) bool {
	lowered := strings.ToLower(strings.TrimSpace(query)) + " "
	for _, s := range greetingSignals {
		if strings.HasPrefix(lowered, s) {
			return true
		}
	}
	return false
}

// extractAccountNames pulls candidate account names from the query text:
// quoted strings first, then capitalized runs after prepositions.
// Order is deterministic and duplicates are dropped.
func extractAccountNames(query string) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	}

	for _, m := range quotedNameRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	for _, m := range prepositionNameRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	return names
}

// classifyByRules is the deterministic fallback classifier. Hybrid wins
// whenever both structured and graph signals are present.
func classifyByRules(query string) classification {
	structured := hasSignal(query, structuredSignals)
	graph := hasSignal(query, graphSignals)

	switch {
	case structured && graph:
		return classification{
			Type:       planx.TypeHybrid,
			Confidence: 0.9,
			Rationale:  "query carries both quantitative and relationship signals",
		}
	case structured:
		return classification{
			Type:       planx.TypeStructuredOnly,
			Confidence: 0.85,
			Rationale:  "query mentions quantitative business metrics",
		}
	case graph:
		return classification{
			Type:       planx.TypeGraphOnly,
			Confidence: 0.85,
			Rationale:  "query mentions relationships or contacts",
		}
	case isGreeting(query):
		return classification{
			Type:       planx.TypeNoTool,
			Confidence: 0.95,
			Rationale:  "greeting or small talk",
		}
	default:
		return classification{
			Type:       planx.TypeNoTool,
			Confidence: 0.6,
			Rationale:  "no data-agent signal detected",
		}
	}
}
