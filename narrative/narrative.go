// Package narrative asks the LLM to explain query results in the context of
// the session's conversation.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/fundgraph/analysis"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/intent"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/session"
)

// Prompt shapes reported in Output.Shape.
const (
	ShapeComparison = "comparison"
	ShapeTrend      = "trend"
	ShapeStandard   = "standard"
	ShapeFallback   = "fallback"
	ShapeFailure    = "failure"
)

// Input is everything the composer narrates over.
type Input struct {
	Question string
	Query    string
	Result   executor.Result
	// Comparison is set for comparison questions with named companies.
	Comparison *analysis.Comparison
	// Industries are the canonical industries the query was scoped to; the
	// first one drives the missing-date fallback.
	Industries []string
	// Runner executes the fallback query.
	Runner executor.Runner
}

// Output is the narration and the data it was based on. Query and Rows
// differ from the input when the fallback replaced them.
type Output struct {
	Text     string
	Shape    string
	Query    string
	Rows     []executor.Row
	Fallback bool
	Usage    llm.Usage
}

// Config tunes the narration call.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Composer writes the analysis text.
type Composer struct {
	chat llm.Provider
	cfg  Config
}

// New returns a composer backed by chat.
func New(chat llm.Provider, cfg Config) *Composer {
	return &Composer{chat: chat, cfg: cfg}
}

// Compose selects a prompt, appends it and the reply to h, and returns the
// reply verbatim.
func (c *Composer) Compose(ctx context.Context, h *session.History, in Input) (*Output, error) {
	out := &Output{Query: in.Query}
	var prompt string

	switch res := in.Result.(type) {
	case *executor.Failure:
		out.Shape = ShapeFailure
		prompt = failurePrompt(in.Question, in.Query, res.Err)
	case *executor.Rows:
		out.Rows = res.Rows
		prompt = c.rowsPrompt(ctx, in, out)
	default:
		return nil, fmt.Errorf("narrative: unexpected result %T", in.Result)
	}

	h.Append(llm.User(prompt))
	start := time.Now()
	resp, err := c.chat.Chat(ctx, llm.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    h.Messages(),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("composing analysis: %w", err)
	}
	out.Usage.Add(resp)
	out.Text = resp.Content
	h.Append(llm.Assistant(resp.Content))

	slog.Info("narrative: analysis composed",
		"shape", out.Shape, "rows", len(out.Rows), "fallback", out.Fallback,
		"tokens", resp.TotalTokens, "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (c *Composer) rowsPrompt(ctx context.Context, in Input, out *Output) string {
	if in.Comparison != nil {
		out.Shape = ShapeComparison
		return comparisonPrompt(in.Question, in.Query, in.Comparison)
	}

	if rows, query, ok := c.fallback(ctx, in, out.Rows); ok {
		out.Shape = ShapeFallback
		out.Fallback = true
		out.Rows = rows
		out.Query = query
		intro := fmt.Sprintf("A direct query for %s funding data returned the following results.", in.Industries[0])
		return standardPrompt(in.Question, query, rows, intro)
	}

	if intent.IsNarrativeTrend(in.Question) && hasColumn(out.Rows, "amount") {
		if years := analysis.YearlySummary(out.Rows); len(years) > 0 {
			out.Shape = ShapeTrend
			return trendPrompt(in.Question, in.Query, out.Rows, years)
		}
	}

	out.Shape = ShapeStandard
	return standardPrompt(in.Question, in.Query, out.Rows, "")
}

// fallback reruns a funding question as a direct industry query when the
// generated query returned rows whose dates are all missing.
func (c *Composer) fallback(ctx context.Context, in Input, rows []executor.Row) ([]executor.Row, string, bool) {
	if !intent.IsFunding(in.Question) || len(rows) == 0 || len(in.Industries) == 0 || in.Runner == nil {
		return nil, "", false
	}
	if !hasColumn(rows, executor.DateColumn) {
		return nil, "", false
	}
	for _, r := range limit(rows, standardLimit) {
		if !r.Date().Null {
			return nil, "", false
		}
	}

	query := analysis.IndustryQuery(in.Industries[0])
	slog.Info("narrative: no funding dates in results, trying direct industry query", "industry", in.Industries[0])
	direct := executor.RowsOf(in.Runner.Run(ctx, query))
	for _, r := range direct {
		if !r.Date().Null {
			slog.Info("narrative: direct query found dated rounds", "rows", len(direct))
			return direct, query, true
		}
	}
	return nil, "", false
}

func hasColumn(rows []executor.Row, name string) bool {
	for _, r := range rows {
		if _, ok := r[name]; ok {
			return true
		}
	}
	return false
}
