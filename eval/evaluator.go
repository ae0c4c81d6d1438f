// Package eval runs datasets of questions through the ask pipeline and
// scores the repaired queries, the executed rows and the narrative.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/session"
)

// Asker is the part of fundgraph.Engine the evaluator drives.
type Asker interface {
	Ask(ctx context.Context, sess *session.History, question string, opts ...fundgraph.AskOption) (*fundgraph.Response, error)
	NewSession() *session.History
}

// Evaluator runs evaluation test sets against a fundgraph engine.
type Evaluator struct {
	engine     Asker
	judgeLLM   llm.Provider
	judgeModel string
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(engine Asker) *Evaluator {
	return &Evaluator{engine: engine}
}

// SetJudge configures an LLM judge for semantic accuracy evaluation.
// When set, fact accuracy is computed via LLM instead of verbatim substring
// matching.
func (e *Evaluator) SetJudge(provider llm.Provider, model string) {
	e.judgeLLM = provider
	e.judgeModel = model
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                      `json:"dataset"`
	Difficulty      string                      `json:"difficulty,omitempty"`
	TotalTests      int                         `json:"total_tests"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	Errors          int                         `json:"errors"`
	Metrics         AggregateMetrics            `json:"metrics"`
	CheckMetrics    map[string]CheckMetrics     `json:"check_metrics"`
	CategoryMetrics map[string]AggregateMetrics `json:"category_metrics,omitempty"`
	Results         []TestResult                `json:"results"`
	RunTime         time.Duration               `json:"run_time"`
	TokenUsage      TokenUsage                  `json:"token_usage"`
}

// TokenUsage aggregates LLM token consumption across an evaluation run.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AggregateMetrics holds averaged metrics across tests that ran without
// error.
type AggregateMetrics struct {
	Tests             int     `json:"tests"`
	PassRate          float64 `json:"pass_rate"`
	AvgAccuracy       float64 `json:"avg_accuracy"`
	AvgStrictAccuracy float64 `json:"avg_strict_accuracy"`
	AvgRows           float64 `json:"avg_rows"`
	AvgRepairs        float64 `json:"avg_repairs"`
	FallbackRate      float64 `json:"fallback_rate"`
	AvgElapsedMs      float64 `json:"avg_elapsed_ms"`
}

// CheckMetrics counts one check across the run.
type CheckMetrics struct {
	Passed   int     `json:"passed"`
	Total    int     `json:"total"`
	PassRate float64 `json:"pass_rate"`
}

// TestResult holds the result of a single test case with full diagnostics.
type TestResult struct {
	Question       string        `json:"question"`
	ExpectedFacts  []string      `json:"expected_facts,omitempty"`
	Category       string        `json:"category,omitempty"`
	Explanation    string        `json:"explanation,omitempty"`
	SessionID      string        `json:"session_id"`
	Query          string        `json:"query,omitempty"`
	Repairs        []string      `json:"repairs,omitempty"`
	Shape          string        `json:"shape,omitempty"`
	Fallback       bool          `json:"fallback,omitempty"`
	Rows           int           `json:"rows"`
	Answer         string        `json:"answer"`
	Accuracy       float64       `json:"accuracy"`
	StrictAccuracy float64       `json:"strict_accuracy"`
	Checks         []CheckResult `json:"checks"`
	Passed         bool          `json:"passed"`
	Error          string        `json:"error,omitempty"`

	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	ElapsedMs        int64 `json:"elapsed_ms"`
}

// Run executes every test of the dataset in order. Cases sharing a Session
// key reuse one history; every other case gets a fresh one.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset, opts ...fundgraph.AskOption) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		Difficulty:      dataset.Difficulty,
		TotalTests:      len(dataset.Tests),
		CheckMetrics:    make(map[string]CheckMetrics),
		CategoryMetrics: make(map[string]AggregateMetrics),
	}

	sessions := make(map[string]*session.History)
	overall := &accumulator{}
	byCategory := make(map[string]*accumulator)

	for i, test := range dataset.Tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess := sessions[test.Session]
		if sess == nil {
			sess = e.engine.NewSession()
			if test.Session != "" {
				sessions[test.Session] = sess
			}
		}

		result := e.runTest(ctx, sess, test, opts...)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			status = "ERROR"
		}

		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"shape", result.Shape,
			"rows", result.Rows,
			"repairs", len(result.Repairs),
			"accuracy", fmt.Sprintf("%.2f", result.Accuracy),
			"tokens", result.TotalTokens,
			"elapsed_ms", result.ElapsedMs,
			"question", truncate(test.Question, 80))

		// Accumulate token usage regardless of pass/fail/error
		report.TokenUsage.PromptTokens += result.PromptTokens
		report.TokenUsage.CompletionTokens += result.CompletionTokens
		report.TokenUsage.TotalTokens += result.TotalTokens

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		for _, c := range result.Checks {
			m := report.CheckMetrics[c.Name]
			m.Total++
			if c.Passed {
				m.Passed++
			}
			report.CheckMetrics[c.Name] = m
		}

		// Error results are excluded from metric averages; they contribute
		// all zeros.
		if result.Error != "" {
			report.Errors++
			continue
		}
		overall.add(result)
		cat := test.Category
		if cat == "" {
			cat = "uncategorized"
		}
		if byCategory[cat] == nil {
			byCategory[cat] = &accumulator{}
		}
		byCategory[cat].add(result)
	}

	for name, m := range report.CheckMetrics {
		m.PassRate = passRate(m.Passed, m.Total)
		report.CheckMetrics[name] = m
	}
	report.Metrics = overall.metrics()
	for cat, acc := range byCategory {
		report.CategoryMetrics[cat] = acc.metrics()
	}

	report.RunTime = time.Since(start)
	return report, nil
}

func (e *Evaluator) runTest(ctx context.Context, sess *session.History, test TestCase, opts ...fundgraph.AskOption) TestResult {
	testStart := time.Now()
	result := TestResult{
		Question:      test.Question,
		ExpectedFacts: test.ExpectedFacts,
		Category:      test.Category,
		Explanation:   test.Explanation,
		SessionID:     sess.ID,
	}

	resp, err := e.engine.Ask(ctx, sess, test.Question, opts...)
	if err != nil {
		result.Error = err.Error()
		result.ElapsedMs = time.Since(testStart).Milliseconds()
		return result
	}

	result.Query = resp.Query
	result.Repairs = resp.Repairs
	result.Shape = resp.Shape
	result.Fallback = resp.Fallback
	result.Rows = resp.TotalResults
	result.Answer = resp.LLMAnalysis
	result.PromptTokens = resp.PromptTokens
	result.CompletionTokens = resp.CompletionTokens
	result.TotalTokens = resp.TotalTokens
	result.Error = resp.Error

	exp := test.Expect
	result.Checks = checkQuery(resp.Query, exp)
	if exp.MinRows > 0 {
		ok := resp.TotalResults >= exp.MinRows
		result.Checks = append(result.Checks, CheckResult{
			Name: CheckMinRows, Passed: ok,
			Detail: detail(ok, fmt.Sprintf("%d rows, want at least %d", resp.TotalResults, exp.MinRows)),
		})
	}
	if exp.Comparison {
		ok := resp.IsComparison && resp.ComparisonData != nil
		result.Checks = append(result.Checks, CheckResult{
			Name: CheckComparison, Passed: ok,
			Detail: detail(ok, "no comparison data"),
		})
	}
	if exp.Shape != "" {
		ok := resp.Shape == exp.Shape
		result.Checks = append(result.Checks, CheckResult{
			Name: CheckShape, Passed: ok,
			Detail: detail(ok, fmt.Sprintf("shape %q, want %q", resp.Shape, exp.Shape)),
		})
	}

	if len(test.ExpectedFacts) > 0 {
		// Always compute strict (verbatim) accuracy
		strictAcc := computeAccuracy(resp.LLMAnalysis, test.ExpectedFacts)
		result.StrictAccuracy = strictAcc
		result.Accuracy = strictAcc

		if e.judgeLLM != nil {
			llmAcc, err := computeAccuracyLLM(ctx, e.judgeLLM, e.judgeModel, resp.LLMAnalysis, test.ExpectedFacts)
			if err != nil {
				slog.Warn("judge LLM failed, falling back to strict accuracy",
					"error", err,
					"question", truncate(test.Question, 60))
			} else {
				result.Accuracy = llmAcc
			}
		}

		ok := result.Accuracy >= 0.5
		result.Checks = append(result.Checks, CheckResult{
			Name: CheckFacts, Passed: ok,
			Detail: detail(ok, fmt.Sprintf("accuracy %.2f", result.Accuracy)),
		})
	}

	result.Passed = result.Error == ""
	for _, c := range result.Checks {
		result.Passed = result.Passed && c.Passed
	}

	result.ElapsedMs = time.Since(testStart).Milliseconds()
	return result
}

// accumulator sums per-test values for AggregateMetrics.
type accumulator struct {
	n, passed, fallbacks, facts           int
	accuracy, strict, rows, repairs, msec float64
}

func (a *accumulator) add(r TestResult) {
	a.n++
	if r.Passed {
		a.passed++
	}
	if r.Fallback {
		a.fallbacks++
	}
	if len(r.ExpectedFacts) > 0 {
		a.facts++
		a.accuracy += r.Accuracy
		a.strict += r.StrictAccuracy
	}
	a.rows += float64(r.Rows)
	a.repairs += float64(len(r.Repairs))
	a.msec += float64(r.ElapsedMs)
}

func (a *accumulator) metrics() AggregateMetrics {
	m := AggregateMetrics{Tests: a.n}
	if a.n == 0 {
		return m
	}
	n := float64(a.n)
	m.PassRate = passRate(a.passed, a.n)
	m.FallbackRate = passRate(a.fallbacks, a.n)
	m.AvgRows = a.rows / n
	m.AvgRepairs = a.repairs / n
	m.AvgElapsedMs = a.msec / n
	if a.facts > 0 {
		m.AvgAccuracy = a.accuracy / float64(a.facts)
		m.AvgStrictAccuracy = a.strict / float64(a.facts)
	}
	return m
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	if r.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", r.Difficulty)
	}
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d | Errors: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed, r.Errors)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Pass rate:       %.1f%%\n", r.Metrics.PassRate)
	fmt.Fprintf(&b, "  Accuracy:        %.2f\n", r.Metrics.AvgAccuracy)
	if r.Metrics.AvgStrictAccuracy != r.Metrics.AvgAccuracy {
		fmt.Fprintf(&b, "  Strict Accuracy: %.2f\n", r.Metrics.AvgStrictAccuracy)
	}
	fmt.Fprintf(&b, "  Rows:            %.1f\n", r.Metrics.AvgRows)
	fmt.Fprintf(&b, "  Repairs:         %.2f\n", r.Metrics.AvgRepairs)
	fmt.Fprintf(&b, "  Fallback rate:   %.1f%%\n\n", r.Metrics.FallbackRate)

	if len(r.CheckMetrics) > 0 {
		names := make([]string, 0, len(r.CheckMetrics))
		for name := range r.CheckMetrics {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(&b, "Checks:\n")
		for _, name := range names {
			m := r.CheckMetrics[name]
			fmt.Fprintf(&b, "  %-18s %d/%d (%.1f%%)\n", name, m.Passed, m.Total, m.PassRate)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "Token Usage:\n")
	fmt.Fprintf(&b, "  Prompt:     %d\n", r.TokenUsage.PromptTokens)
	fmt.Fprintf(&b, "  Completion: %d\n", r.TokenUsage.CompletionTokens)
	fmt.Fprintf(&b, "  Total:      %d\n\n", r.TokenUsage.TotalTokens)

	// Per-category breakdown (sorted for deterministic output)
	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] n=%d Pass=%.1f%% Acc=%.2f Rows=%.1f Fallback=%.1f%%\n",
				cat, m.Tests, m.PassRate, m.AvgAccuracy, m.AvgRows, m.FallbackRate)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, res.Question)
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
		}
		fmt.Fprintf(&b, "  Shape=%s Rows=%d Repairs=%s  (%dms)\n",
			res.Shape, res.Rows, strings.Join(res.Repairs, ","), res.ElapsedMs)
		for _, c := range res.Checks {
			if !c.Passed {
				fmt.Fprintf(&b, "  - %s: %s\n", c.Name, c.Detail)
			}
		}
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
