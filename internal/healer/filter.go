package healer

import (
	"regexp"
	"strconv"
	"strings"

	"testforge/internal/executor"
	"testforge/internal/plan"
)

// observedStatusRe parses the fixed assertion message emitted by the
// generated testutil package.
var observedStatusRe = regexp.MustCompile(`expected status (\d+), got (\d+)`)

// observedStatus recovers the status the API actually returned from a
// failing test's output. Returns 0 when the failure did not reach the
// status assertion (panic, request error, compile-adjacent failure).
func observedStatus(output string) int {
	m := observedStatusRe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	got, err := strconv.Atoi(m[2])
	if err != nil {
		return 0
	}
	return got
}

// classifyFailures runs the deterministic pre-filter: failing
// negative/edge tests that observed an error status are false positives
// and are excluded; negative tests that observed a success status are
// suspected API defects, excluded from fixing and flagged. Everything
// else is a genuine failure worth diagnosing.
func classifyFailures(result *executor.ExecutionResult, p *plan.TestPlan, reflection *Reflection) []executor.TestDetail {
	var genuine []executor.TestDetail

	for _, detail := range result.FailedDetails() {
		item, ok := p.ItemByName(detail.Name)
		if !ok || !item.Category.ExpectsError() {
			genuine = append(genuine, detail)
			continue
		}

		switch got := observedStatus(detail.Output); {
		case got >= 400 && got <= 599:
			reflection.FalsePositives = append(reflection.FalsePositives, detail.Name)
		case got >= 200 && got <= 299:
			reflection.SuspectedDefects = append(reflection.SuspectedDefects, detail.Name)
		default:
			// The test broke before asserting; still a code problem.
			genuine = append(genuine, detail)
		}
	}
	return genuine
}

// requireStatusRe extracts asserted status codes from generated test
// code.
var requireStatusRe = regexp.MustCompile(`RequireStatus\(\s*t\s*,\s*\w+\s*,\s*(\d{3})\s*\)`)

// weakenedNegatives returns the names of negative/edge plan items whose
// test function, as rewritten by the fix, asserts a 2xx status. The
// fixed content is a full file replacement, so each named function is
// scanned in isolation.
func weakenedNegatives(fixContent string, p *plan.TestPlan) []string {
	var weakened []string
	for _, item := range p.Items {
		if !item.Category.ExpectsError() {
			continue
		}
		body := functionBody(fixContent, item.Name)
		if body == "" {
			continue
		}
		for _, m := range requireStatusRe.FindAllStringSubmatch(body, -1) {
			status, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if status >= 200 && status <= 299 {
				weakened = append(weakened, item.Name)
				break
			}
		}
	}
	return weakened
}

// unassertedNegatives returns the names of negative/edge plan items
// whose rewritten test function no longer asserts an error status
// through the RequireStatus helper. A raw StatusCode comparison would
// sidestep both the fixed assertion message the pre-filter parses and
// the weakening scan above, so the helper is mandatory.
func unassertedNegatives(fixContent string, p *plan.TestPlan) []string {
	var missing []string
	for _, item := range p.Items {
		if !item.Category.ExpectsError() {
			continue
		}
		body := functionBody(fixContent, item.Name)
		if body == "" {
			continue
		}
		asserted := false
		for _, m := range requireStatusRe.FindAllStringSubmatch(body, -1) {
			status, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if status >= 400 && status <= 599 {
				asserted = true
				break
			}
		}
		if !asserted {
			missing = append(missing, item.Name)
		}
	}
	return missing
}

// functionBody extracts the source of one top-level function, "" when
// the function is not in the file. Boundaries are the next top-level
// func declaration or end of file; generated tests have no nested
// function literals that declare funcs at column zero.
func functionBody(source, name string) string {
	marker := "func " + name + "("
	start := strings.Index(source, marker)
	if start == -1 {
		return ""
	}
	rest := source[start+len(marker):]
	if end := strings.Index(rest, "\nfunc "); end != -1 {
		rest = rest[:end]
	}
	return rest
}
