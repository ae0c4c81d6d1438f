package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/brunobiangulo/fundgraph/executor"
)

var (
	earlyStages = []string{"Seed", "Angel", "Pre-Seed"}
	lateStages  = []string{"Series C", "Series D", "Late Stage", "Growth"}
)

// YearBucket aggregates the funding rounds of one year.
type YearBucket struct {
	TotalFunding   float64        `json:"total_funding"`
	FundingRounds  int            `json:"funding_rounds"`
	CompaniesCount int            `json:"companies_count"`
	AvgRoundSize   float64        `json:"avg_round_size"`
	Phases         map[string]int `json:"phases"`

	companies map[string]struct{}
}

// TrendAnalysis describes how funding evolves year over year.
type TrendAnalysis struct {
	Years         []string               `json:"years"`
	YearlyTrends  map[string]*YearBucket `json:"yearly_trends"`
	GrowthMetrics map[string]float64     `json:"growth_metrics"`
	Insights      []string               `json:"insights"`
	Maturity      string                 `json:"maturity,omitempty"`
}

// Trend buckets rows by the year of their date column and derives growth
// rates between consecutive years. Gaps in the data become insights.
func Trend(rows []executor.Row) *TrendAnalysis {
	t := &TrendAnalysis{
		YearlyTrends:  map[string]*YearBucket{},
		GrowthMetrics: map[string]float64{},
	}
	if !hasColumn(rows, executor.DateColumn) {
		t.Insights = append(t.Insights, "No date information available for proper trend analysis")
		return t
	}

	for _, r := range rows {
		year, ok := r.Date().Year()
		if !ok {
			continue
		}
		b := t.YearlyTrends[year]
		if b == nil {
			b = &YearBucket{Phases: map[string]int{}, companies: map[string]struct{}{}}
			t.YearlyTrends[year] = b
		}
		if amount, ok := r.Amount().Float(); ok {
			b.TotalFunding += amount
		}
		b.FundingRounds++
		if c := r.Company(); !c.Null && c.String != "" {
			b.companies[c.String] = struct{}{}
		}
		if p := r.Phase(); !p.Null && p.String != "" {
			b.Phases[p.String]++
		}
	}
	if len(t.YearlyTrends) == 0 {
		t.Insights = append(t.Insights, "Could not organize data by year for trend analysis")
		return t
	}

	for y, b := range t.YearlyTrends {
		t.Years = append(t.Years, y)
		b.CompaniesCount = len(b.companies)
		if b.FundingRounds > 0 && b.TotalFunding > 0 {
			b.AvgRoundSize = b.TotalFunding / float64(b.FundingRounds)
		}
	}
	sort.Strings(t.Years)

	if len(t.Years) < 2 {
		return t
	}
	t.growth()
	if len(t.Years) >= 3 {
		t.acceleration()
		t.stageShift()
	}
	return t
}

// Growth returns the percentage change from prev to curr, and false when
// prev is not positive.
func Growth(prev, curr float64) (float64, bool) {
	if prev <= 0 {
		return 0, false
	}
	return (curr - prev) / prev * 100, true
}

func (t *TrendAnalysis) growth() {
	var funding, rounds []float64
	for i := 1; i < len(t.Years); i++ {
		py, cy := t.Years[i-1], t.Years[i]
		p, c := t.YearlyTrends[py], t.YearlyTrends[cy]
		key := py + "-" + cy

		if g, ok := Growth(p.TotalFunding, c.TotalFunding); ok {
			funding = append(funding, g)
			t.GrowthMetrics[key+"_funding"] = g
		}
		if g, ok := Growth(float64(p.FundingRounds), float64(c.FundingRounds)); ok {
			rounds = append(rounds, g)
			t.GrowthMetrics[key+"_rounds"] = g
		}
		if g, ok := Growth(float64(p.CompaniesCount), float64(c.CompaniesCount)); ok {
			t.GrowthMetrics[key+"_companies"] = g
		}
	}

	if len(funding) > 0 {
		avg := mean(funding)
		t.GrowthMetrics["avg_annual_funding_growth"] = avg
		if avg > 0 {
			t.Insights = append(t.Insights, fmt.Sprintf("Funding is growing at an average rate of %.1f%% per year", avg))
		} else {
			t.Insights = append(t.Insights, fmt.Sprintf("Funding is decreasing at an average rate of %.1f%% per year", math.Abs(avg)))
		}
	}
	if len(rounds) > 0 {
		avg := mean(rounds)
		t.GrowthMetrics["avg_annual_rounds_growth"] = avg
		if avg > 0 {
			t.Insights = append(t.Insights, fmt.Sprintf("Number of funding rounds is growing at an average rate of %.1f%% per year", avg))
		} else {
			t.Insights = append(t.Insights, fmt.Sprintf("Number of funding rounds is decreasing at an average rate of %.1f%% per year", math.Abs(avg)))
		}
	}
}

// acceleration compares the last two growth rates of the three most recent
// years.
func (t *TrendAnalysis) acceleration() {
	recent := t.Years[len(t.Years)-3:]
	f0 := t.YearlyTrends[recent[0]].TotalFunding
	f1 := t.YearlyTrends[recent[1]].TotalFunding
	f2 := t.YearlyTrends[recent[2]].TotalFunding
	if f0 <= 0 || f1 <= 0 {
		return
	}
	if (f2-f1)/f1 > (f1-f0)/f0 {
		t.Insights = append(t.Insights, "Funding growth is accelerating in recent years")
		t.Maturity = "accelerating growth"
	} else {
		t.Insights = append(t.Insights, "Funding growth is decelerating in recent years")
		t.Maturity = "decelerating growth"
	}
}

// stageShift compares early- and late-stage round counts between the first
// and the last year.
func (t *TrendAnalysis) stageShift() {
	first := t.YearlyTrends[t.Years[0]]
	last := t.YearlyTrends[t.Years[len(t.Years)-1]]
	e0, l0 := countPhases(first, earlyStages), countPhases(first, lateStages)
	e1, l1 := countPhases(last, earlyStages), countPhases(last, lateStages)
	if e0 == 0 || l0 == 0 || e1 == 0 || l1 == 0 {
		return
	}
	early := float64(e1-e0) / float64(e0)
	late := float64(l1-l0) / float64(l0)
	if late > early {
		t.Insights = append(t.Insights, "The industry is maturing with more late-stage funding rounds")
	} else {
		t.Insights = append(t.Insights, "The industry continues to see strong early-stage investment activity")
	}
}

func countPhases(b *YearBucket, phases []string) int {
	n := 0
	for _, p := range phases {
		n += b.Phases[p]
	}
	return n
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// YearTrend is one year of a yearly summary.
type YearTrend struct {
	Year                 string  `json:"year"`
	FundingRounds        int     `json:"funding_rounds"`
	TotalFunding         float64 `json:"total_funding"`
	TotalFundingMillions float64 `json:"total_funding_millions"`
	CompaniesCount       int     `json:"companies_count"`
}

// YearlySummary counts rounds, funding and companies per year over all
// rows with a four-digit year, sorted by year.
func YearlySummary(rows []executor.Row) []YearTrend {
	type acc struct {
		rounds    int
		funding   float64
		companies map[string]struct{}
	}
	byYear := map[string]*acc{}
	for _, r := range rows {
		year, ok := r.Date().Year()
		if !ok {
			continue
		}
		a := byYear[year]
		if a == nil {
			a = &acc{companies: map[string]struct{}{}}
			byYear[year] = a
		}
		a.rounds++
		if amount, ok := r.Amount().Float(); ok {
			a.funding += amount
		}
		if c := r.Get("company_name"); !c.Null && c.String != "" {
			a.companies[c.String] = struct{}{}
		}
	}

	out := make([]YearTrend, 0, len(byYear))
	for year, a := range byYear {
		out = append(out, YearTrend{
			Year:                 year,
			FundingRounds:        a.rounds,
			TotalFunding:         a.funding,
			TotalFundingMillions: a.funding / 1e6,
			CompaniesCount:       len(a.companies),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
