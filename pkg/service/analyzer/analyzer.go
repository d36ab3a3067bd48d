// Package analyzer extracts keywords and classifies decision intent of free text
// with a fixed rule set.
package analyzer

import (
	"regexp"
	"slices"
	"strings"

	"github.com/secmon-lab/synapse/pkg/domain/types"
)

var (
	quotedPattern      = regexp.MustCompile(`'([^']*)'`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)
)

// ExtractKeywords returns the single-quoted phrases and whole capitalized words of
// text, de-duplicated and sorted. Terms keep their original case; use
// NormalizeTerm before storing them.
func ExtractKeywords(text string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range capitalizedPattern.FindAllString(text, -1) {
		add(m)
	}

	slices.Sort(keywords)
	return keywords
}

// NormalizeTerm converts a keyword into the form stored on Keyword nodes.
func NormalizeTerm(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// NormalizeTerms normalizes and de-duplicates keywords, dropping blanks.
func NormalizeTerms(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		term := NormalizeTerm(k)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	slices.Sort(terms)
	return terms
}

// Decision is the classified intent of a text
type Decision struct {
	Type      types.DecisionType
	Reasoning string
}

type decisionRule struct {
	needles  []string
	decision Decision
}

// First match wins. "confirmed and resolved" is Triage.
var decisionRules = []decisionRule{
	{
		needles:  []string{"confirm", "looks like", "root cause"},
		decision: Decision{Type: types.DecisionTriage, Reasoning: "Identifying root cause."},
	},
	{
		needles:  []string{"pinging", "@", "escalate"},
		decision: Decision{Type: types.DecisionEscalation, Reasoning: "Involving another team member."},
	},
	{
		needles:  []string{"applying", "resolved", "fixed"},
		decision: Decision{Type: types.DecisionResolution, Reasoning: "Implementing a fix."},
	},
}

var defaultDecision = Decision{Type: types.DecisionDiscussion, Reasoning: "General comment."}

// ClassifyDecision applies the decision rules to the lowercased text. It never fails.
func ClassifyDecision(text string) Decision {
	lower := strings.ToLower(text)
	for _, rule := range decisionRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.decision
			}
		}
	}
	return defaultDecision
}
