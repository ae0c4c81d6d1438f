// Command fundgraph asks questions of a startup-funding graph from the
// terminal and manages its ingestion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/fundgraph"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(fundgraph.New).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// engineFactory builds an engine from the loaded config.
type engineFactory func(cfg fundgraph.Config, opts ...fundgraph.Option) (fundgraph.Engine, error)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg       fundgraph.Config
	newEngine engineFactory
	engine    fundgraph.Engine
}

// open builds the engine on first use.
func (a *app) open() (fundgraph.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	e, err := a.newEngine(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.engine = e
	return e, nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	err := a.engine.Close()
	a.engine = nil
	return err
}

func newRootCmd(newEngine engineFactory) *cobra.Command {
	a := &app{newEngine: newEngine}

	root := &cobra.Command{
		Use:   "fundgraph",
		Short: "Ask questions about Swiss startup funding in plain language",
		Long: `fundgraph turns questions into SPARQL over a graph of startups,
industries, locations and funding rounds, repairs the query, runs it and
narrates the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := fundgraph.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.dbPath != "" {
				cfg.DBPath = a.dbPath
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a.cfg = cfg

			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			})))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Path to SQLite database (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newAskCmd(a),
		newIngestCmd(a),
		newSPARQLCmd(a),
		newDescribeCmd(a),
		newRegistryCmd(a),
		newIndustriesCmd(),
		newQueriesCmd(a),
	)
	return root
}
