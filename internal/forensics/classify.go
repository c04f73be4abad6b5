package forensics

import (
	"strings"

	"job-forensics/internal/models"
)

// classifierRule pairs an error category with the substrings that select it.
type classifierRule struct {
	category string
	tokens   []string
}

// classifierRules is evaluated in order; the first matching rule wins. Order
// matters because messages carry multiple tokens ("connection timeout" must
// classify as timeout, not network).
var classifierRules = []classifierRule{
	{models.ErrCategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{models.ErrCategoryNetwork, []string{"connection", "network", "refused", "unreachable", "dns", "broken pipe", "reset by peer"}},
	{models.ErrCategoryValidation, []string{"validation", "invalid", "malformed", "schema", "missing required"}},
	{models.ErrCategoryResource, []string{"out of memory", "oom", "disk", "no space", "resource", "quota", "gpu"}},
	{models.ErrCategoryExternalAPI, []string{"api error", "upstream", "rate limit", "502", "503", "bad gateway", "service unavailable"}},
}

// CategorizeError maps a free-text error message onto the closed category
// set. Message text is adversarial and unstructured; this is case-insensitive
// first-match substring heuristics, nothing more.
func CategorizeError(message string) string {
	if message == "" {
		return models.ErrCategoryUnknown
	}
	lower := strings.ToLower(message)
	for _, rule := range classifierRules {
		for _, token := range rule.tokens {
			if strings.Contains(lower, token) {
				return rule.category
			}
		}
	}
	return models.ErrCategoryUnknown
}
