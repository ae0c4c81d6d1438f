// Package synth turns a natural-language question into a candidate SPARQL
// query by asking the LLM within the session's conversation.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/brunobiangulo/fundgraph/industry"
	"github.com/brunobiangulo/fundgraph/intent"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/session"
)

// ErrNoQueryFound is returned when the model's reply contains no query.
var ErrNoQueryFound = errors.New("fundgraph: no SPARQL query found in model reply")

// Candidate is the query proposed for a question, before repair.
type Candidate struct {
	Query        string    `json:"query"`
	IsComparison bool      `json:"is_comparison"`
	Companies    []string  `json:"companies,omitempty"`
	Raw          string    `json:"raw"`
	Usage        llm.Usage `json:"usage"`
}

// Config tunes the generation calls.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Synthesizer generates candidate queries.
type Synthesizer struct {
	chat llm.Provider
	cfg  Config
}

// New creates a synthesizer backed by chat.
func New(chat llm.Provider, cfg Config) *Synthesizer {
	return &Synthesizer{chat: chat, cfg: cfg}
}

// Synthesize asks the model for a query answering question. The prompts and
// replies are appended to h. When the reply holds no query, a corrective
// message is appended and ErrNoQueryFound is returned together with the
// partial candidate.
func (s *Synthesizer) Synthesize(ctx context.Context, h *session.History, question string) (*Candidate, error) {
	c := &Candidate{IsComparison: intent.IsComparison(question)}

	if c.IsComparison {
		c.Companies = QuotedNames(question)
		if len(c.Companies) == 0 {
			names, err := s.extractCompanies(ctx, h, question, &c.Usage)
			if err != nil {
				return c, err
			}
			c.Companies = names
		}
	}

	var instruction string
	if c.IsComparison && len(c.Companies) > 0 {
		instruction = comparisonInstruction(c.Companies)
	} else {
		instruction = standardInstruction(question)
	}

	h.Append(llm.User(instruction))
	start := time.Now()
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    h.Messages(),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return c, fmt.Errorf("generating query: %w", err)
	}
	c.Usage.Add(resp)
	c.Raw = resp.Content
	h.Append(llm.Assistant(resp.Content))

	slog.Info("synth: query generated",
		"comparison", c.IsComparison, "companies", len(c.Companies),
		"tokens", resp.TotalTokens, "elapsed", time.Since(start).Round(time.Millisecond))

	q, ok := ExtractQuery(resp.Content)
	if !ok {
		h.Append(llm.User(session.NoQueryFeedback))
		slog.Warn("synth: reply contained no query", "reply_len", len(resp.Content))
		return c, ErrNoQueryFound
	}
	c.Query = q
	return c, nil
}

// extractCompanies makes the secondary call that pulls company names out of
// an unquoted comparison question.
func (s *Synthesizer) extractCompanies(ctx context.Context, h *session.History, question string, u *llm.Usage) ([]string, error) {
	prompt := fmt.Sprintf(extractionPrompt, question)
	h.Append(llm.User(prompt))
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    h.Messages(),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting company names: %w", err)
	}
	u.Add(resp)
	h.Append(llm.Assistant(resp.Content))

	names := ParseNameList(resp.Content)
	slog.Debug("synth: extracted companies", "names", names)
	return names, nil
}

var quoted = regexp.MustCompile(`"([^"]+)"`)

// QuotedNames returns the double-quoted substrings of q in order.
func QuotedNames(q string) []string {
	var out []string
	for _, m := range quoted.FindAllStringSubmatch(q, -1) {
		if name := strings.TrimSpace(m[1]); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ParseNameList parses a comma-separated reply. "NONE" yields no names.
func ParseNameList(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(reply, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"'`+"`")
		if name != "" && !strings.EqualFold(name, "none") {
			out = append(out, name)
		}
	}
	return out
}

var (
	sparqlFence  = regexp.MustCompile("(?is)```sparql\\s*(.*?)```")
	genericFence = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_-]*\\n)?(.*?)```")
)

// ExtractQuery pulls the query out of a model reply: a sparql-tagged fence
// first, then any fence, then the raw text if it looks like a query.
func ExtractQuery(reply string) (string, bool) {
	if m := sparqlFence.FindStringSubmatch(reply); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return q, true
		}
	}
	if m := genericFence.FindStringSubmatch(reply); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return q, true
		}
	}
	lower := strings.ToLower(reply)
	if strings.Contains(lower, "prefix") || strings.Contains(lower, "select") {
		return strings.TrimSpace(reply), true
	}
	return "", false
}

const extractionPrompt = `From the question below, list only the company names it mentions.

Question: %s

Reply with the names separated by commas and nothing else, or with NONE if no company is named.`

func standardInstruction(question string) string {
	labels := make([]string, 0, len(industry.Canonical()))
	for _, l := range industry.Canonical() {
		labels = append(labels, `"`+l+`"`)
	}
	return fmt.Sprintf(`QUESTION: %s

Write the SPARQL query for this question.
1. Output the query only, no analysis or commentary.
2. Declare every PREFIX you use.
3. For trend questions select the dates of the funding rounds so they can be analysed over time.
4. Industry names are case-sensitive and must be one of: %s.
5. Keep ?company ex:hasFunding ?funding required and put ex:round_date, ex:amount and ex:phase each in its own OPTIONAL block.

SPARQL QUERY:`, question, strings.Join(labels, ", "))
}

func comparisonInstruction(names []string) string {
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = `"` + strings.ReplaceAll(n, `"`, `\"`) + `"`
	}
	return fmt.Sprintf(`Retrieve all data for these companies: %s

Select for each company its name as ?company_name, its industry, every funding round with amount, date and phase, and its location.
Restrict the companies with a VALUES clause:

VALUES ?company_name { %s }

Keep ?company ex:hasFunding ?funding required and put each funding property and the location in its own OPTIONAL block. Output the query only.`,
		strings.Join(names, ", "), strings.Join(values, " "))
}
