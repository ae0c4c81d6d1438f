package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/graph"
)

// IndustryQuery returns the query that lists every funding round of the
// startups in industry, ordered by date.
func IndustryQuery(industry string) string {
	return `PREFIX ex: <http://example.org/ontology#>
PREFIX res: <http://example.org/resource/>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>

SELECT ?company_name ?date ?amount ?phase
WHERE {
  ?company a ex:Startup .
  ?company ex:name ?company_name .
  ?company ex:hasIndustry ?industry .
  ?industry ex:name "` + graph.EscapeString(industry) + `" .
  ?company ex:hasFunding ?funding .
  OPTIONAL {
    ?funding ex:round_date ?date .
  }
  OPTIONAL {
    ?funding ex:amount ?amount .
  }
  OPTIONAL {
    ?funding ex:phase ?phase .
  }
}
ORDER BY ?date`
}

// FundingRound is one round of a compared company.
type FundingRound struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date,omitempty"`
	Phase  string  `json:"phase,omitempty"`
}

// CompanyProfile gathers what the result rows say about one company.
type CompanyProfile struct {
	Industry      string         `json:"industry,omitempty"`
	FundingRounds []FundingRound `json:"funding_rounds"`
	TotalFunding  float64        `json:"total_funding"`
	Location      string         `json:"location,omitempty"`
}

// MarketTrend describes the funding history of a whole industry.
type MarketTrend struct {
	YearlyTrends   []YearTrend `json:"yearly_trends"`
	TotalCompanies int         `json:"total_companies"`
	TotalFunding   float64     `json:"total_funding"`
	AvgRoundSize   float64     `json:"avg_round_size"`
}

// Comparison is the payload narrated for comparison questions.
type Comparison struct {
	Companies    map[string]*CompanyProfile `json:"companies"`
	MarketTrends map[string]*MarketTrend    `json:"market_trends"`
	Insights     []string                   `json:"insights,omitempty"`
}

// Compare groups rows by company for the requested names and builds a
// market trend for each industry those companies belong to. Market queries
// that fail are noted as insights.
func Compare(ctx context.Context, names []string, rows []executor.Row, runner executor.Runner) *Comparison {
	c := &Comparison{
		Companies:    map[string]*CompanyProfile{},
		MarketTrends: map[string]*MarketTrend{},
	}
	var industries []string

	for _, r := range rows {
		name := r.Get("company_name")
		if name.Null || !requested(names, name.String) {
			continue
		}
		p := c.Companies[name.String]
		if p == nil {
			p = &CompanyProfile{FundingRounds: []FundingRound{}}
			c.Companies[name.String] = p
		}
		if ind := r.Industry(); !ind.Null && ind.String != "" {
			p.Industry = ind.String
		}
		if amount, ok := r.Amount().Float(); ok {
			round := FundingRound{Amount: amount}
			if d := r.Date(); !d.Null {
				round.Date = d.String
			}
			if ph := r.Phase(); !ph.Null {
				round.Phase = ph.String
			}
			p.FundingRounds = append(p.FundingRounds, round)
			p.TotalFunding += amount
		}
		if loc := r.Location(); !loc.Null && loc.String != "" {
			p.Location = loc.String
		}
	}

	for _, name := range names {
		for key, p := range c.Companies {
			if strings.EqualFold(key, name) && p.Industry != "" && !contains(industries, p.Industry) {
				industries = append(industries, p.Industry)
			}
		}
	}

	for _, ind := range industries {
		res := runner.Run(ctx, IndustryQuery(ind))
		if f, ok := res.(*executor.Failure); ok {
			slog.Warn("analysis: market trend query failed", "industry", ind, "error", f.Err)
			c.Insights = append(c.Insights, fmt.Sprintf("Market data for %s is unavailable", ind))
			continue
		}
		c.MarketTrends[ind] = marketTrend(executor.RowsOf(res))
	}
	return c
}

func marketTrend(rows []executor.Row) *MarketTrend {
	m := &MarketTrend{YearlyTrends: YearlySummary(rows)}
	companies := map[string]struct{}{}
	for _, r := range rows {
		if c := r.Get("company_name"); !c.Null {
			companies[c.String] = struct{}{}
		}
	}
	m.TotalCompanies = len(companies)

	rounds := 0
	for _, y := range m.YearlyTrends {
		m.TotalFunding += y.TotalFunding
		rounds += y.FundingRounds
	}
	if rounds > 0 {
		m.AvgRoundSize = m.TotalFunding / float64(rounds)
	}
	return m
}

func requested(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
