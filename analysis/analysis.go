// Package analysis summarises query results before they are narrated:
// per-year funding trends, funding statistics and company-versus-market
// comparisons.
package analysis

import (
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/intent"
)

// PreviewSize is the number of rows kept in Summary.Preview.
const PreviewSize = 10

// Summary is the aggregator's view of a result set.
type Summary struct {
	TotalResults int              `json:"total_results"`
	Summary      string           `json:"summary"`
	Preview      []executor.Row   `json:"data"`
	Trend        *TrendAnalysis   `json:"trend_analysis,omitempty"`
	Funding      *FundingAnalysis `json:"funding_analysis,omitempty"`
}

// Aggregate summarises rows for question. Trend analysis runs for trend
// questions and funding statistics for questions about funding or amounts.
// Rows with missing values still count towards TotalResults.
func Aggregate(rows []executor.Row, question string) *Summary {
	s := &Summary{
		TotalResults: len(rows),
		Summary:      "Query executed successfully",
		Preview:      head(rows, PreviewSize),
	}
	if intent.IsTrend(question) {
		s.Trend = Trend(rows)
	}
	if intent.WantsStatistics(question) && hasColumn(rows, "amount") {
		s.Funding = Funding(rows)
	}
	return s
}

func head(rows []executor.Row, n int) []executor.Row {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func hasColumn(rows []executor.Row, name string) bool {
	for _, r := range rows {
		if _, ok := r[name]; ok {
			return true
		}
	}
	return false
}
