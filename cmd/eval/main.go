// Command eval runs evaluation suites against a fundgraph engine.
//
// Built-in dataset over an existing database:
//
//	go run ./cmd/eval --db ./fundgraph.db --config fundgraph.yaml
//
// Fresh ingest, custom dataset and an LLM judge:
//
//	go run ./cmd/eval \
//	  --companies ./data/companies.xlsx --deals ./data/deals.xlsx \
//	  --dataset ./evals/cases.yaml \
//	  --judge-provider gemini --judge-model gemini-2.0-flash-lite
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/eval"
	"github.com/brunobiangulo/fundgraph/llm"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to config file (YAML or JSON)")
		dbPath        = flag.String("db", "", "Path to SQLite database (default: inside run directory when ingesting, else from config)")
		companies     = flag.String("companies", "", "Companies spreadsheet to ingest before the run")
		deals         = flag.String("deals", "", "Deals spreadsheet to ingest before the run")
		datasetPath   = flag.String("dataset", "", "Path to a YAML/JSON dataset (default: built-in startup dataset)")
		outputFile    = flag.String("output", "", "Path to write JSON report (default: inside run directory)")
		chatModel     = flag.String("model", "", "Chat model override for every question")
		maxTests      = flag.Int("max-tests", 0, "Max tests to run (0=all)")
		judgeProvider = flag.String("judge-provider", "", "LLM provider for accuracy judge (enables LLM-as-judge; e.g., gemini)")
		judgeModel    = flag.String("judge-model", "", "Judge LLM model name (e.g., gemini-2.0-flash-lite)")
		judgeAPIKey   = flag.String("judge-api-key", "", "Judge provider API key (default: from env)")
	)
	flag.Parse()

	if (*companies == "") != (*deals == "") {
		log.Fatal("--companies and --deals must be given together")
	}

	cfg, err := fundgraph.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// --- Run artifact directory ---
	runDir := createRunDir()
	fmt.Fprintf(os.Stderr, "Run directory: %s\n", runDir)

	// Setup log tee: write to both stderr and eval.log
	logFile := setupLogTee(runDir)
	defer logFile.Close()

	switch {
	case *dbPath != "":
		cfg.DBPath = *dbPath
	case *companies != "":
		cfg.DBPath = filepath.Join(runDir, "fundgraph.db")
	}
	cfg.LogQueries = false

	dataset := eval.StartupDataset()
	if *datasetPath != "" {
		if dataset, err = eval.LoadDataset(*datasetPath); err != nil {
			log.Fatalf("loading dataset: %v", err)
		}
	}
	if *maxTests > 0 && len(dataset.Tests) > *maxTests {
		dataset.Tests = dataset.Tests[:*maxTests]
	}

	meta := map[string]any{
		"git_commit":     gitCommit(),
		"go_version":     runtime.Version(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"dataset":        dataset.Name,
		"tests":          len(dataset.Tests),
		"chat_provider":  cfg.Chat.Provider,
		"chat_model":     cfg.Chat.Model,
		"temperature":    cfg.Temperature,
		"query_timeout":  cfg.QueryTimeout.String(),
		"db_path":        cfg.DBPath,
		"judge_provider": *judgeProvider,
		"judge_model":    *judgeModel,
	}
	if *chatModel != "" {
		meta["chat_model"] = *chatModel
	}
	writeJSON(filepath.Join(runDir, "metadata.json"), meta)

	ctx := context.Background()
	totalStart := time.Now()

	fmt.Fprintf(os.Stderr, "Creating engine...\n")
	engine, err := fundgraph.New(cfg)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer engine.Close()

	if *companies != "" {
		fmt.Fprintf(os.Stderr, "Ingesting %s and %s\n", *companies, *deals)
		ingestStart := time.Now()
		stats, err := engine.Ingest(ctx, *companies, *deals)
		if err != nil {
			log.Fatalf("ingesting: %v", err)
		}
		meta["ingest"] = stats
		meta["ingest_ms"] = time.Since(ingestStart).Milliseconds()
		fmt.Fprintf(os.Stderr, "Ingested %d companies, %d deals (%d triples) in %s\n",
			stats.Companies, stats.Deals, stats.Triples, time.Since(ingestStart).Round(time.Millisecond))
	}
	if engine.GraphStats().Triples == 0 {
		log.Fatal("graph is empty: pass --companies/--deals or --db pointing to an ingested database")
	}

	evaluator := eval.NewEvaluator(engine)
	if *judgeProvider != "" {
		judge, err := llm.NewProvider(llm.Config{
			Provider: *judgeProvider,
			Model:    *judgeModel,
			APIKey:   judgeKey(*judgeProvider, *judgeAPIKey),
		})
		if err != nil {
			log.Fatalf("creating judge: %v", err)
		}
		evaluator.SetJudge(judge, *judgeModel)
		fmt.Fprintf(os.Stderr, "LLM judge enabled: %s/%s\n", *judgeProvider, *judgeModel)
	}

	var opts []fundgraph.AskOption
	if *chatModel != "" {
		opts = append(opts, fundgraph.WithModel(*chatModel))
	}

	fmt.Fprintf(os.Stderr, "\nRunning %s (%d tests)...\n", dataset.Name, len(dataset.Tests))
	report, err := evaluator.Run(ctx, dataset, opts...)
	if err != nil {
		log.Fatalf("running eval: %v", err)
	}
	fmt.Println(eval.FormatReport(report))

	meta["total_ms"] = time.Since(totalStart).Milliseconds()
	meta["passed"] = report.Passed
	meta["failed"] = report.Failed
	meta["token_usage"] = report.TokenUsage
	writeJSON(filepath.Join(runDir, "metadata.json"), meta)

	reportPath := filepath.Join(runDir, "report.json")
	writeJSON(reportPath, report)
	fmt.Fprintf(os.Stderr, "Report written to %s\n", reportPath)
	if *outputFile != "" {
		writeJSON(*outputFile, report)
	}
}

// judgeKey resolves the judge API key from the flag or well-known env vars.
func judgeKey(provider, flagKey string) string {
	if flagKey != "" {
		return flagKey
	}
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "gemini", "googleai":
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "xai":
		return os.Getenv("XAI_API_KEY")
	}
	return ""
}

// createRunDir creates evals/runs/<timestamp>/ and returns its path.
func createRunDir() string {
	ts := time.Now().Format("2006-01-02_15-04-05")
	dir := filepath.Join("evals", "runs", ts)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("creating run directory: %v", err)
	}
	return dir
}

// setupLogTee configures slog to write to both stderr and eval.log in the run dir.
func setupLogTee(runDir string) *os.File {
	logPath := filepath.Join(runDir, "eval.log")
	f, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("creating log file: %v", err)
	}
	w := io.MultiWriter(os.Stderr, f)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	return f
}

// gitCommit returns the current git HEAD short hash, or "unknown".
func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// writeJSON marshals v to indented JSON and writes it to path.
func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshaling JSON for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("writing %s: %v", path, err)
	}
}
