package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/sparql"
)

// Check names reported in TestResult.Checks and Report.CheckMetrics.
const (
	CheckFundingRequired  = "funding_required"
	CheckLocationOptional = "location_optional"
	CheckIndustryLiteral  = "industry_literal"
	CheckMinRows          = "min_rows"
	CheckComparison       = "comparison"
	CheckShape            = "shape"
	CheckFacts            = "facts"
)

// CheckResult is the outcome of one expectation.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// checkQuery runs the structural expectations against the executed query.
// An unparseable query fails every requested structural check.
func checkQuery(query string, exp Expectation) []CheckResult {
	var names []string
	if exp.FundingRequired {
		names = append(names, CheckFundingRequired)
	}
	if exp.LocationOptional {
		names = append(names, CheckLocationOptional)
	}
	if exp.IndustryLiteral != "" {
		names = append(names, CheckIndustryLiteral)
	}
	if len(names) == 0 {
		return nil
	}

	q, err := sparql.Parse(query)
	if err != nil {
		out := make([]CheckResult, len(names))
		for i, n := range names {
			out[i] = CheckResult{Name: n, Detail: "query does not parse: " + err.Error()}
		}
		return out
	}

	var out []CheckResult
	for _, n := range names {
		switch n {
		case CheckFundingRequired:
			ok := requiredPredicate(q.Where, graph.PropHasFunding)
			out = append(out, CheckResult{Name: n, Passed: ok, Detail: detail(ok, "ex:hasFunding is optional or missing")})
		case CheckLocationOptional:
			ok := !requiredPredicate(q.Where, graph.PropHasLocation)
			out = append(out, CheckResult{Name: n, Passed: ok, Detail: detail(ok, "ex:hasLocation is required")})
		case CheckIndustryLiteral:
			ok := hasLiteral(q.Where, exp.IndustryLiteral)
			out = append(out, CheckResult{Name: n, Passed: ok, Detail: detail(ok, fmt.Sprintf("literal %q not in query", exp.IndustryLiteral))})
		}
	}
	return out
}

func detail(ok bool, msg string) string {
	if ok {
		return ""
	}
	return msg
}

// requiredPredicate reports whether a triple pattern with predicate p occurs
// outside OPTIONAL and MINUS.
func requiredPredicate(g *sparql.Group, p graph.Term) bool {
	found := false
	sparql.Walk(g, func(el sparql.Element) bool {
		switch e := el.(type) {
		case *sparql.Optional, *sparql.Minus:
			return false
		case *sparql.TriplePattern:
			if e.P.Term == p {
				found = true
			}
		}
		return true
	})
	return found
}

// hasLiteral reports whether lit appears as a literal in a triple pattern,
// FILTER, BIND or VALUES block anywhere in g.
func hasLiteral(g *sparql.Group, lit string) bool {
	found := false
	sparql.Walk(g, func(el sparql.Element) bool {
		switch e := el.(type) {
		case *sparql.TriplePattern:
			found = found || isLiteral(e.S, lit) || isLiteral(e.O, lit)
		case *sparql.Filter:
			found = found || exprHasLiteral(e.Expr, lit)
		case *sparql.Bind:
			found = found || exprHasLiteral(e.Expr, lit)
		case *sparql.Values:
			for _, row := range e.Rows {
				for _, n := range row {
					found = found || isLiteral(n, lit)
				}
			}
		}
		return !found
	})
	return found
}

func isLiteral(n sparql.Node, lit string) bool {
	return n.Term.IsLiteral() && n.Term.Value == lit
}

func exprHasLiteral(e sparql.Expr, lit string) bool {
	switch x := e.(type) {
	case *sparql.TermExpr:
		return isLiteral(x.Node, lit)
	case *sparql.BinaryExpr:
		return exprHasLiteral(x.Left, lit) || exprHasLiteral(x.Right, lit)
	case *sparql.UnaryExpr:
		return exprHasLiteral(x.X, lit)
	case *sparql.CallExpr:
		for _, a := range x.Args {
			if exprHasLiteral(a, lit) {
				return true
			}
		}
	case *sparql.InExpr:
		if exprHasLiteral(x.X, lit) {
			return true
		}
		for _, a := range x.List {
			if exprHasLiteral(a, lit) {
				return true
			}
		}
	case *sparql.ExistsExpr:
		return hasLiteral(x.Group, lit)
	}
	return false
}

// normalizeLLMText normalizes Unicode characters commonly inserted by LLMs
// so that substring matching works reliably. Handles:
//   - Unicode whitespace → ASCII space (U+202F, U+00A0, etc.)
//   - Unicode hyphens → ASCII hyphen (U+2011, U+2010, U+2012, U+2013, U+2014)
//   - Strips zero-width characters (U+200B, U+200C, U+200D, U+FEFF)
//   - Apostrophe separators → removed, so "1'000'000" matches "1000000"
func normalizeLLMText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte('-')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
			// strip zero-width characters
		case r == '\'' || r == '\u2019':
			// Swiss thousands separator
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// computeAccuracy checks if expected facts appear in the narrative.
// Each fact may contain pipe-separated alternatives (e.g. "4 million|4'000'000"),
// where matching any alternative counts as a hit for that fact.
func computeAccuracy(text string, expectedFacts []string) float64 {
	if text == "" || len(expectedFacts) == 0 {
		return 0
	}

	normalized := normalizeLLMText(strings.ToLower(text))
	// Collapse spaces so "5%" matches "5 %"
	spaceless := strings.ReplaceAll(normalized, " ", "")
	// Strip hyphens too so "life-sciences" matches "life sciences"
	hyphenless := strings.ReplaceAll(spaceless, "-", "")
	found := 0
	for _, fact := range expectedFacts {
		for _, alt := range strings.Split(fact, "|") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			normAlt := normalizeLLMText(strings.ToLower(alt))
			normAltNoSpace := strings.ReplaceAll(normAlt, " ", "")
			normAltNoHyphen := strings.ReplaceAll(normAltNoSpace, "-", "")
			if strings.Contains(normalized, normAlt) ||
				strings.Contains(spaceless, normAltNoSpace) ||
				strings.Contains(hyphenless, normAltNoHyphen) {
				found++
				break
			}
		}
	}

	return float64(found) / float64(len(expectedFacts))
}

// computeAccuracyLLM uses an LLM judge to semantically evaluate whether each
// expected fact is covered by the narrative. All facts are batched into a
// single call.
func computeAccuracyLLM(ctx context.Context, judge llm.Provider, model, text string, expectedFacts []string) (float64, error) {
	if text == "" || len(expectedFacts) == 0 {
		return 0, nil
	}

	var factsBuilder strings.Builder
	for i, fact := range expectedFacts {
		alternatives := strings.Split(fact, "|")
		fmt.Fprintf(&factsBuilder, "%d. %s", i+1, strings.TrimSpace(alternatives[0]))
		var alts []string
		for _, a := range alternatives[1:] {
			if a = strings.TrimSpace(a); a != "" {
				alts = append(alts, a)
			}
		}
		if len(alts) > 0 {
			fmt.Fprintf(&factsBuilder, " (alternatives: %s)", strings.Join(alts, ", "))
		}
		factsBuilder.WriteByte('\n')
	}

	prompt := fmt.Sprintf(`You are an evaluation judge for a startup funding analyst. Determine which expected facts are semantically covered by the analysis.

A fact is "covered" if the analysis conveys the same core information, even if paraphrased or summarized.
A fact is NOT covered if the analysis contradicts it, omits it entirely, or gets key details (amounts, names, years) wrong.

Analysis:
%s

Expected Facts:
%s
Respond with JSON only: {"covered": [true, false, ...]} with one boolean per fact, in order.`, text, factsBuilder.String())

	resp, err := judge.Chat(ctx, llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{llm.User(prompt)},
	})
	if err != nil {
		return 0, fmt.Errorf("judge LLM call failed: %w", err)
	}

	var result struct {
		Covered []bool `json:"covered"`
	}
	if err := json.Unmarshal([]byte(jsonObject(resp.Content)), &result); err != nil {
		return 0, fmt.Errorf("judge response parse error: %w (response: %s)", err, truncate(resp.Content, 200))
	}

	if len(result.Covered) != len(expectedFacts) {
		slog.Warn("judge returned wrong number of booleans",
			"expected", len(expectedFacts),
			"got", len(result.Covered))
		if len(result.Covered) > len(expectedFacts) {
			result.Covered = result.Covered[:len(expectedFacts)]
		}
	}

	covered := 0
	for _, c := range result.Covered {
		if c {
			covered++
		}
	}
	return float64(covered) / float64(len(expectedFacts)), nil
}

// jsonObject trims anything outside the outermost braces, such as a code
// fence around the judge's reply.
func jsonObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
