// Package fundgraph answers natural-language questions about Swiss startup
// funding by having an LLM write SPARQL against an RDF graph of companies and
// funding rounds, repairing and executing that query, aggregating the rows
// and narrating them back.
package fundgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brunobiangulo/fundgraph/analysis"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/industry"
	"github.com/brunobiangulo/fundgraph/ingest"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/metrics"
	"github.com/brunobiangulo/fundgraph/narrative"
	"github.com/brunobiangulo/fundgraph/parser"
	"github.com/brunobiangulo/fundgraph/registry"
	"github.com/brunobiangulo/fundgraph/repair"
	"github.com/brunobiangulo/fundgraph/session"
	"github.com/brunobiangulo/fundgraph/store"
	"github.com/brunobiangulo/fundgraph/synth"
)

// Engine is the main entry point for asking questions of the funding graph.
type Engine interface {
	// Ask turns a question into SPARQL, repairs and runs it, and narrates
	// the rows. A nil session starts a fresh one. Only LLM unavailability
	// and unexpected failures are returned as errors; a reply without a
	// query is reported in Response.Error.
	Ask(ctx context.Context, sess *session.History, question string, opts ...AskOption) (*Response, error)

	// NewSession returns a history seeded with the system prompt.
	NewSession() *session.History

	// Run executes a raw SPARQL query against the loaded graph.
	Run(ctx context.Context, query string) executor.Result

	// Ingest converts the companies and deals spreadsheets into a graph,
	// replaces the stored graph with it and reloads.
	Ingest(ctx context.Context, companiesPath, dealsPath string, opts ...IngestOption) (*ingest.Stats, error)

	// Reload replaces the in-memory graph with the stored one.
	Reload(ctx context.Context) error

	// Describe returns the neighbourhood of a company in the graph.
	Describe(ctx context.Context, company string, depth int) (*graph.Neighbourhood, error)

	// RegistryReport summarizes the commercial-registry extract of a company.
	RegistryReport(ctx context.Context, company string) (*registry.Report, error)

	// Industries returns the canonical industry labels.
	Industries() []string

	// GraphStats describes the loaded graph.
	GraphStats() graph.Stats

	// RecentQueries returns the n most recent logged questions.
	RecentQueries(ctx context.Context, n int) ([]store.QueryLog, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Response is the envelope returned for one question.
type Response struct {
	SessionID      string               `json:"session_id"`
	Question       string               `json:"question"`
	Query          string               `json:"query"`
	RawResults     []executor.Row       `json:"raw_results"`
	TotalResults   int                  `json:"total_results"`
	LLMAnalysis    string               `json:"llm_analysis"`
	IsComparison   bool                 `json:"is_comparison"`
	ComparisonData *analysis.Comparison `json:"comparison_data,omitempty"`
	Analysis       *analysis.Summary    `json:"analysis,omitempty"`
	Repairs        []string             `json:"repairs,omitempty"`
	Industries     []string             `json:"industries,omitempty"`
	Shape          string               `json:"shape,omitempty"`
	Fallback       bool                 `json:"fallback,omitempty"`
	Error          string               `json:"error,omitempty"`

	ModelUsed        string `json:"model_used"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ElapsedMs        int64  `json:"elapsed_ms"`
}

// noQueryMessage is the user-visible text for ErrNoQueryFound.
const noQueryMessage = "No valid SPARQL query found in the model response"

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	chat    llm.Provider
	graph   *graph.Graph
	reg     prometheus.Registerer
	metrics *metrics.Metrics
	fetcher registry.Fetcher
}

// WithProvider uses p for chat instead of building one from Config.Chat.
// Calls through p are still bounded by Config.Chat.Timeout.
func WithProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.chat = p }
}

// WithGraph starts the engine on g instead of loading the stored graph.
func WithGraph(g *graph.Graph) Option {
	return func(o *engineOptions) { o.graph = g }
}

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.reg = reg }
}

// WithMetrics records into an existing metrics set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithRegistryFetcher overrides the registry document source.
func WithRegistryFetcher(f registry.Fetcher) Option {
	return func(o *engineOptions) { o.fetcher = f }
}

// AskOption configures a single question.
type AskOption func(*askOptions)

type askOptions struct {
	model       string
	temperature float64
	maxTokens   int
}

// WithModel overrides the chat model for this question.
func WithModel(model string) AskOption {
	return func(o *askOptions) { o.model = model }
}

// WithTemperature overrides the sampling temperature for this question.
func WithTemperature(t float64) AskOption {
	return func(o *askOptions) { o.temperature = t }
}

// WithMaxTokens overrides the completion budget for this question.
func WithMaxTokens(n int) AskOption {
	return func(o *askOptions) { o.maxTokens = n }
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	sheets     ingest.Config
	turtlePath string
}

// WithSheets overrides the sheet names read from the two workbooks.
func WithSheets(companies, deals string) IngestOption {
	return func(o *ingestOptions) {
		o.sheets = ingest.Config{CompaniesSheet: companies, DealsSheet: deals}
	}
}

// WithTurtleExport also writes the converted graph to path as Turtle.
func WithTurtleExport(path string) IngestOption {
	return func(o *ingestOptions) { o.turtlePath = path }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	chat     llm.Provider
	metrics  *metrics.Metrics
	parsers  *parser.Registry
	repairer *repair.Repairer
	registry *registry.Service

	mu    sync.RWMutex
	graph *graph.Graph
	exec  *executor.Executor
}

// New creates a new fundgraph engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	var o engineOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.chat == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chat := o.chat
	if chat == nil {
		chat, err = llm.NewProvider(cfg.Chat.provider())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: creating chat provider: %v", ErrInvalidConfig, err)
		}
	} else {
		chat = llm.WithTimeout(chat, cfg.Chat.Timeout)
	}

	m := o.metrics
	if m == nil && o.reg != nil {
		m = metrics.New(o.reg)
	}
	chat = metrics.Instrument(chat, m)

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = registry.DirFetcher{Dir: cfg.RegistryDir}
	}

	e := &engine{
		cfg:      cfg,
		store:    s,
		chat:     chat,
		metrics:  m,
		parsers:  parser.NewRegistry(),
		repairer: repair.New(industry.NewResolver(cfg.ExtraIndustryAliases)),
		registry: registry.NewService(registry.NewDirectory(cfg.RegistryUIDs), fetcher, chat, registry.Config{
			Model:       cfg.Chat.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}),
	}

	g := o.graph
	if g == nil {
		g, err = e.initialGraph(context.Background())
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	e.setGraph(g)

	slog.Info("engine: ready",
		"db", cfg.resolveDBPath(), "provider", cfg.Chat.Provider, "model", cfg.Chat.Model,
		"triples", g.Len())
	return e, nil
}

// initialGraph loads the stored graph, importing cfg.GraphFile into an empty
// store first.
func (e *engine) initialGraph(ctx context.Context) (*graph.Graph, error) {
	n, err := e.store.TripleCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting stored triples: %w", err)
	}
	if n == 0 && e.cfg.GraphFile != "" {
		g, err := graph.LoadTurtleFile(e.cfg.GraphFile)
		if err != nil {
			return nil, fmt.Errorf("importing %s: %w", e.cfg.GraphFile, err)
		}
		run := store.IngestRun{CompaniesPath: e.cfg.GraphFile, DealsPath: e.cfg.GraphFile}
		if err := e.store.ReplaceTriples(ctx, g.Triples(), run); err != nil {
			return nil, fmt.Errorf("storing imported graph: %w", err)
		}
		slog.Info("engine: imported turtle graph", "path", e.cfg.GraphFile, "triples", g.Len())
		return g, nil
	}
	g, err := e.store.LoadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}
	return g, nil
}

func (e *engine) setGraph(g *graph.Graph) {
	var opts []executor.Option
	if e.cfg.QueryTimeout > 0 {
		opts = append(opts, executor.WithTimeout(e.cfg.QueryTimeout))
	}
	ex := executor.New(g, opts...)

	e.mu.Lock()
	e.graph, e.exec = g, ex
	e.mu.Unlock()
	e.metrics.GraphLoaded(g.Len())
}

func (e *engine) current() (*graph.Graph, *executor.Executor) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph, e.exec
}

func (e *engine) NewSession() *session.History {
	return session.New()
}

// Run executes query against the current graph. It also serves as the
// executor.Runner for comparison and fallback queries.
func (e *engine) Run(ctx context.Context, query string) executor.Result {
	_, ex := e.current()
	start := time.Now()
	res := ex.Run(ctx, query)
	_, failed := res.(*executor.Failure)
	e.metrics.Query(time.Since(start), failed)
	return res
}

func (e *engine) Ask(ctx context.Context, h *session.History, question string, opts ...AskOption) (*Response, error) {
	start := time.Now()
	o := askOptions{
		model:       e.cfg.Chat.Model,
		temperature: e.cfg.Temperature,
		maxTokens:   e.cfg.MaxTokens,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if h == nil {
		h = e.NewSession()
	}

	resp := &Response{SessionID: h.ID, Question: question, ModelUsed: o.model}
	var usage llm.Usage

	// Step 1: synthesize a query.
	cand, err := synth.New(e.chat, synth.Config{
		Model: o.model, Temperature: o.temperature, MaxTokens: o.maxTokens,
	}).Synthesize(ctx, h, question)
	if cand != nil {
		usage.Merge(cand.Usage)
		resp.IsComparison = cand.IsComparison
	}
	if err != nil {
		if errors.Is(err, synth.ErrNoQueryFound) {
			resp.Error = noQueryMessage
			resp.LLMAnalysis = cand.Raw
			e.finish(ctx, resp, usage, start, metrics.OutcomeNoQuery)
			return resp, nil
		}
		return nil, e.askError(err)
	}

	// Step 2: repair. An unparsable query is executed unchanged so the
	// failure is narrated.
	rep, err := e.repairer.Repair(cand.Query, question)
	if err != nil {
		slog.Warn("ask: repair skipped", "error", err)
	} else if len(rep.Rules) > 0 {
		slog.Info("ask: query repaired", "rules", rep.Rules, "industries", rep.Industries)
	}
	e.metrics.Repairs(rep.Rules)
	resp.Query = rep.Query
	resp.Repairs = rep.Rules
	resp.Industries = rep.Industries

	// Step 3: execute.
	result := e.Run(ctx, rep.Query)

	// Step 4: comparison profiles and market trends.
	if rows := executor.RowsOf(result); cand.IsComparison && len(cand.Companies) > 0 && rows != nil {
		resp.ComparisonData = analysis.Compare(ctx, cand.Companies, rows, e)
	}

	// Step 5: narrate.
	out, err := narrative.New(e.chat, narrative.Config{
		Model: o.model, Temperature: o.temperature, MaxTokens: o.maxTokens,
	}).Compose(ctx, h, narrative.Input{
		Question:   question,
		Query:      rep.Query,
		Result:     result,
		Comparison: resp.ComparisonData,
		Industries: rep.Industries,
		Runner:     e,
	})
	if err != nil {
		return nil, e.askError(err)
	}
	usage.Merge(out.Usage)

	resp.Query = out.Query
	resp.LLMAnalysis = out.Text
	resp.Shape = out.Shape
	resp.Fallback = out.Fallback
	resp.RawResults = out.Rows
	if resp.RawResults == nil {
		resp.RawResults = []executor.Row{}
	}
	resp.TotalResults = len(out.Rows)

	outcome := metrics.OutcomeAnswered
	if f, ok := result.(*executor.Failure); ok {
		resp.Error = f.Error()
		outcome = metrics.OutcomeExecFailed
	} else {
		// Step 6: statistics over the final rows.
		resp.Analysis = analysis.Aggregate(out.Rows, question)
	}

	e.finish(ctx, resp, usage, start, outcome)
	return resp, nil
}

// askError maps a fatal pipeline error to the root sentinels.
func (e *engine) askError(err error) error {
	if errors.Is(err, llm.ErrUnavailable) {
		e.metrics.Question(metrics.OutcomeUnavailable)
		return fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	e.metrics.Question(metrics.OutcomeError)
	return err
}

// finish fills the token counts, records metrics and writes the query log.
func (e *engine) finish(ctx context.Context, resp *Response, usage llm.Usage, start time.Time, outcome string) {
	resp.PromptTokens = usage.PromptTokens
	resp.CompletionTokens = usage.CompletionTokens
	resp.TotalTokens = usage.TotalTokens
	resp.ElapsedMs = time.Since(start).Milliseconds()
	e.metrics.Question(outcome)

	slog.Info("ask: complete",
		"session", resp.SessionID, "outcome", outcome, "rows", resp.TotalResults,
		"repairs", len(resp.Repairs), "fallback", resp.Fallback,
		"tokens", resp.TotalTokens, "elapsed_ms", resp.ElapsedMs)

	if !e.cfg.LogQueries {
		return
	}
	if err := e.store.LogQuery(ctx, store.QueryLog{
		SessionID:        resp.SessionID,
		Question:         resp.Question,
		Query:            resp.Query,
		TotalResults:     resp.TotalResults,
		Repairs:          resp.Repairs,
		Error:            resp.Error,
		Fallback:         resp.Fallback,
		ModelUsed:        resp.ModelUsed,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}); err != nil {
		slog.Warn("ask: query log write failed", "error", err)
	}
}

func (e *engine) Ingest(ctx context.Context, companiesPath, dealsPath string, opts ...IngestOption) (*ingest.Stats, error) {
	o := ingestOptions{sheets: e.cfg.Ingest}
	for _, fn := range opts {
		fn(&o)
	}

	start := time.Now()
	slog.Info("ingest: starting", "companies", companiesPath, "deals", dealsPath)

	g, stats, err := ingest.New(e.parsers, o.sheets).Convert(ctx, companiesPath, dealsPath)
	if err != nil {
		return nil, fmt.Errorf("converting spreadsheets: %w", err)
	}
	if g.Len() == 0 {
		return stats, fmt.Errorf("%w: no statements converted from %s and %s", ErrGraphEmpty, companiesPath, dealsPath)
	}

	if err := e.store.ReplaceTriples(ctx, g.Triples(), store.IngestRun{
		CompaniesPath: companiesPath,
		DealsPath:     dealsPath,
		Stats:         stats,
	}); err != nil {
		return stats, fmt.Errorf("storing graph: %w", err)
	}

	if o.turtlePath != "" {
		if err := g.SaveTurtleFile(o.turtlePath); err != nil {
			return stats, fmt.Errorf("writing turtle: %w", err)
		}
		slog.Info("ingest: turtle written", "path", o.turtlePath)
	}

	if err := e.Reload(ctx); err != nil {
		return stats, err
	}
	e.metrics.Ingested(stats.Triples)

	slog.Info("ingest: complete",
		"companies", stats.Companies, "deals", stats.Deals, "triples", stats.Triples,
		"skipped", stats.SkippedRows, "warnings", len(stats.Warnings),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stats, nil
}

func (e *engine) Reload(ctx context.Context) error {
	g, err := e.store.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	e.setGraph(g)
	slog.Info("engine: graph reloaded", "triples", g.Len())
	return nil
}

func (e *engine) Describe(ctx context.Context, company string, depth int) (*graph.Neighbourhood, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, _ := e.current()
	if g.Len() == 0 {
		return nil, ErrGraphEmpty
	}

	var root graph.Term
	if found := g.FindByName(company, graph.ClassStartup); len(found) > 0 {
		root = found[0]
	} else if iri := ingest.StartupIRI(company); len(g.Match(iri, graph.RDFType, graph.ClassStartup)) > 0 {
		root = iri
	} else {
		return nil, fmt.Errorf("%w: %q is not in the graph", ErrCompanyNotFound, company)
	}
	return g.Traverse(root, depth)
}

func (e *engine) RegistryReport(ctx context.Context, company string) (*registry.Report, error) {
	r, err := e.registry.Report(ctx, company)
	if errors.Is(err, llm.ErrUnavailable) {
		return nil, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	return r, err
}

func (e *engine) Industries() []string {
	return industry.Canonical()
}

func (e *engine) GraphStats() graph.Stats {
	g, _ := e.current()
	return g.Stats()
}

func (e *engine) RecentQueries(ctx context.Context, n int) ([]store.QueryLog, error) {
	if n <= 0 {
		n = 20
	}
	return e.store.RecentQueries(ctx, n)
}

func (e *engine) Store() *store.Store {
	return e.store
}

func (e *engine) Close() error {
	return e.store.Close()
}
