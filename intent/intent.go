// Package intent classifies questions so that every pipeline stage agrees on
// what counts as a comparison, funding or trend question.
package intent

import (
	"regexp"
	"strings"
)

var (
	comparisonTerms = []string{
		"compare", "comparison", "versus", "vs", "against", "relative to",
		"compared to", "benchmark", "how does", "performance of", "stack up",
	}
	fundingTerms        = []string{"funding", "investment", "money", "financial", "trend"}
	trendTerms          = []string{"trend", "over time", "growth"}
	narrativeTrendTerms = []string{"trend", "over time", "growth", "evolution", "development", "history"}
	statisticsTerms     = []string{"funding", "amount"}
)

// vsWord keeps "vs" from matching inside words such as "canvas".
var vsWord = regexp.MustCompile(`\bvs\.?\b`)

func containsAny(q string, terms []string) bool {
	q = strings.ToLower(q)
	for _, t := range terms {
		if t == "vs" {
			if vsWord.MatchString(q) {
				return true
			}
			continue
		}
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

// IsComparison reports whether the question asks to compare companies.
func IsComparison(q string) bool { return containsAny(q, comparisonTerms) }

// IsFunding reports whether the question is about funding. Repair only makes
// ex:hasFunding required for these questions.
func IsFunding(q string) bool { return containsAny(q, fundingTerms) }

// IsTrend reports whether the aggregator should bucket rows by year.
func IsTrend(q string) bool { return containsAny(q, trendTerms) }

// IsNarrativeTrend reports whether the narrative should use the trend prompt.
func IsNarrativeTrend(q string) bool { return containsAny(q, narrativeTrendTerms) }

// WantsStatistics reports whether the aggregator should compute funding
// statistics.
func WantsStatistics(q string) bool { return containsAny(q, statisticsTerms) }
