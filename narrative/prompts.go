package narrative

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunobiangulo/fundgraph/analysis"
	"github.com/brunobiangulo/fundgraph/executor"
)

const (
	standardLimit = 20
	trendSample   = 10
)

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func limit(rows []executor.Row, n int) []executor.Row {
	if len(rows) > n {
		return rows[:n]
	}
	if rows == nil {
		return []executor.Row{}
	}
	return rows
}

func comparisonPrompt(question, query string, c *analysis.Comparison) string {
	return fmt.Sprintf(`The query below retrieved the companies named in the question. Their data has been grouped per company and set against the funding history of their industries.

Query:
`+"```sparql\n%s\n```"+`

1. COMPANIES:
`+"```json\n%s\n```"+`

2. INDUSTRY TRENDS:
`+"```json\n%s\n```"+`

Write a comparative analysis that answers the question: %q

Cover:
1. each company's funding history against its industry's yearly trend
2. whether each company raises more or less than the industry average round
3. when the companies raised relative to the industry's strong and weak years
4. anything unusual about a company compared with its market

Base every statement on the figures above.`,
		query, toJSON(c.Companies), toJSON(c.MarketTrends), question)
}

func trendPrompt(question, query string, rows []executor.Row, years []analysis.YearTrend) string {
	first, last := years[0].Year, years[len(years)-1].Year
	return fmt.Sprintf(`The query below returned %d records.

Query:
`+"```sparql\n%s\n```"+`

Yearly summary computed over ALL %d records:
`+"```json\n%s\n```"+`

First %d records:
`+"```json\n%s\n```"+`

Analyse these results to answer the question: %q

For the trend:
1. describe how funding, round counts and company counts move from %s to %s
2. compute growth rates between consecutive years
3. point out sharp changes or anomalies
4. explain what this says about the industry, with weight on the last three to five years

The yearly summary covers every record, not only the sample.`,
		len(rows), query, len(rows), toJSON(years), trendSample, toJSON(limit(rows, trendSample)), question, first, last)
}

func standardPrompt(question, query string, rows []executor.Row, intro string) string {
	if intro == "" {
		intro = "The query below returned the following results."
	}
	return fmt.Sprintf(`%s

Query:
`+"```sparql\n%s\n```"+`

Results (at most the first %d):
`+"```json\n%s\n```"+`

Total number of results: %d

Analyse these results to answer the question: %q

If the question is about a trend, describe the pattern over time, compute growth rates between periods and point out anomalies.

Notes:
- the funding date column is "date"; some rounds have no date, amount or phase
- amounts are whole CHF

Use only the results above. If they cannot support a conclusion, say what is missing.`,
		intro, query, standardLimit, toJSON(limit(rows, standardLimit)), len(rows), question)
}

func failurePrompt(question, query string, err error) string {
	return fmt.Sprintf(`The query below could not be executed.

Query:
`+"```sparql\n%s\n```"+`

Error: %s

Explain to the user, in plain words, that no data could be retrieved for the question %q and what about the question may have caused it. Do not invent figures.`,
		query, strings.TrimSpace(err.Error()), question)
}
