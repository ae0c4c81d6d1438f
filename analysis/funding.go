package analysis

import (
	"fmt"
	"sort"

	"github.com/brunobiangulo/fundgraph/executor"
)

// FundingStats summarises the round amounts of a result set.
type FundingStats struct {
	TotalFunding       float64  `json:"total_funding"`
	AverageFunding     float64  `json:"average_funding"`
	MedianFunding      float64  `json:"median_funding"`
	MaxFunding         float64  `json:"max_funding"`
	MinFunding         float64  `json:"min_funding"`
	NumberOfRounds     int      `json:"number_of_rounds"`
	Top3RoundsSum      *float64 `json:"top_3_rounds_sum,omitempty"`
	ConcentrationRatio *float64 `json:"concentration_ratio,omitempty"`
}

// FundingAnalysis is the funding section of a Summary.
type FundingAnalysis struct {
	Statistics *FundingStats `json:"statistics,omitempty"`
	Insights   []string      `json:"insights"`
}

// Funding computes statistics over every parsable amount. Unparsable
// amounts are skipped.
func Funding(rows []executor.Row) *FundingAnalysis {
	var amounts []float64
	for _, r := range rows {
		if a, ok := r.Amount().Float(); ok {
			amounts = append(amounts, a)
		}
	}
	fa := &FundingAnalysis{}
	if len(amounts) == 0 {
		fa.Insights = append(fa.Insights, "No valid funding amounts found in the data")
		return fa
	}

	sorted := append([]float64(nil), amounts...)
	sort.Float64s(sorted)
	total := 0.0
	for _, a := range amounts {
		total += a
	}
	n := len(sorted)
	st := &FundingStats{
		TotalFunding:   total,
		AverageFunding: total / float64(n),
		MedianFunding:  sorted[n/2],
		MaxFunding:     sorted[n-1],
		MinFunding:     sorted[0],
		NumberOfRounds: n,
	}
	fa.Statistics = st

	if n >= 3 && total > 0 {
		top := sorted[n-1] + sorted[n-2] + sorted[n-3]
		ratio := top / total
		st.Top3RoundsSum = &top
		st.ConcentrationRatio = &ratio
		if ratio > 0.5 {
			fa.Insights = append(fa.Insights, fmt.Sprintf("Funding is highly concentrated: top 3 rounds account for %.1f%% of total funding", ratio*100))
		} else {
			fa.Insights = append(fa.Insights, fmt.Sprintf("Funding is well distributed: top 3 rounds account for only %.1f%% of total funding", ratio*100))
		}
	}

	fa.Insights = append(fa.Insights, sizeBand(st.AverageFunding))
	return fa
}

func sizeBand(avg float64) string {
	switch {
	case avg > 50e6:
		return "Very large average round size, indicating mature/late-stage market"
	case avg > 10e6:
		return "Large average round size, indicating growth-stage market"
	case avg > 1e6:
		return "Moderate average round size, indicating early-stage market"
	default:
		return "Small average round size, indicating seed/angel-stage market"
	}
}
