package canary

import "strings"

// runbookRules maps failure-reason substrings to operator runbooks. A reason
// may match several rules; duplicates are collapsed by URL.
var runbookRules = []struct {
	match   string
	runbook Runbook
}{
	{"latency", Runbook{Title: "High latency triage", URL: "https://runbooks.canaryops.dev/slo/latency"}},
	{"error rate", Runbook{Title: "Elevated error rate", URL: "https://runbooks.canaryops.dev/slo/error-rate"}},
	{"readiness", Runbook{Title: "Readiness probe failures", URL: "https://runbooks.canaryops.dev/slo/readiness"}},
	{"tampered", Runbook{Title: "Integrity tamper response", URL: "https://runbooks.canaryops.dev/integrity/tamper"}},
	{"policy_changed", Runbook{Title: "Integrity policy drift", URL: "https://runbooks.canaryops.dev/integrity/policy-drift"}},
	{"integrity", Runbook{Title: "Deployment integrity failures", URL: "https://runbooks.canaryops.dev/integrity/general"}},
	{"internal error", Runbook{Title: "Canary gate internal errors", URL: "https://runbooks.canaryops.dev/gate/internal-error"}},
}

// matchRunbooks maps each failure reason to zero-or-more runbook entries by
// substring matching on the reason text.
func matchRunbooks(reasons []string) []Runbook {
	seen := make(map[string]struct{})
	out := make([]Runbook, 0, len(reasons))
	for _, reason := range reasons {
		lower := strings.ToLower(reason)
		for _, rule := range runbookRules {
			if !strings.Contains(lower, rule.match) {
				continue
			}
			if _, dup := seen[rule.runbook.URL]; dup {
				continue
			}
			seen[rule.runbook.URL] = struct{}{}
			out = append(out, rule.runbook)
		}
	}
	return out
}
