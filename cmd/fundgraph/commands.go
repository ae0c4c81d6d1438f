package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/industry"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		model     string
		showQuery bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question, or start an interactive session when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			var opts []fundgraph.AskOption
			if model != "" {
				opts = append(opts, fundgraph.WithModel(model))
			}

			out := cmd.OutOrStdout()
			sess := e.NewSession()
			ask := func(q string) error {
				resp, err := e.Ask(cmd.Context(), sess, q, opts...)
				if err != nil {
					return err
				}
				printResponse(out, resp, showQuery)
				return nil
			}

			if len(args) > 0 {
				return ask(strings.Join(args, " "))
			}

			fmt.Fprintln(out, `Ask about startups and their funding. Type "exit" to quit.`)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				q := strings.TrimSpace(scanner.Text())
				switch strings.ToLower(q) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if err := ask(q); err != nil {
					// An unavailable model ends one turn, not the session.
					if errors.Is(err, fundgraph.ErrLLMUnavailable) {
						fmt.Fprintf(out, "error: %v\n\n", err)
						continue
					}
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Chat model override")
	cmd.Flags().BoolVar(&showQuery, "show-query", false, "Print the executed SPARQL query")
	return cmd
}

func printResponse(w io.Writer, resp *fundgraph.Response, showQuery bool) {
	if showQuery && resp.Query != "" {
		fmt.Fprintf(w, "%s\n\n", resp.Query)
	}
	if resp.Error != "" {
		fmt.Fprintf(w, "error: %s\n", resp.Error)
	}
	if resp.LLMAnalysis != "" {
		fmt.Fprintln(w, resp.LLMAnalysis)
	}
	meta := []string{fmt.Sprintf("%d rows", resp.TotalResults)}
	if resp.Shape != "" {
		meta = append(meta, resp.Shape)
	}
	if resp.Fallback {
		meta = append(meta, "fallback")
	}
	if len(resp.Repairs) > 0 {
		meta = append(meta, "repairs: "+strings.Join(resp.Repairs, ", "))
	}
	fmt.Fprintf(w, "(%s)\n\n", strings.Join(meta, "; "))
}

func newIngestCmd(a *app) *cobra.Command {
	var companiesSheet, dealsSheet, turtle string
	cmd := &cobra.Command{
		Use:   "ingest <companies> <deals>",
		Short: "Convert the companies and deals spreadsheets into the graph",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			var opts []fundgraph.IngestOption
			if companiesSheet != "" || dealsSheet != "" {
				opts = append(opts, fundgraph.WithSheets(companiesSheet, dealsSheet))
			}
			if turtle != "" {
				opts = append(opts, fundgraph.WithTurtleExport(turtle))
			}
			stats, err := e.Ingest(cmd.Context(), args[0], args[1], opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d companies and %d deals (%d triples)\n",
				stats.Companies, stats.Deals, stats.Triples)
			return nil
		},
	}
	cmd.Flags().StringVar(&companiesSheet, "companies-sheet", "", "Sheet name in the companies workbook")
	cmd.Flags().StringVar(&dealsSheet, "deals-sheet", "", "Sheet name in the deals workbook")
	cmd.Flags().StringVar(&turtle, "turtle", "", "Also write the graph to this Turtle file")
	return cmd
}

func newSPARQLCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sparql [query]",
		Short: "Run a raw SPARQL SELECT query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				query = string(data)
			case len(args) == 1:
				query = args[0]
			default:
				return errors.New("a query argument or --file is required")
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			switch res := e.Run(cmd.Context(), query).(type) {
			case *executor.Failure:
				return res
			case *executor.Rows:
				printRows(cmd.OutOrStdout(), res)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	return cmd
}

func printRows(w io.Writer, res *executor.Rows) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Vars, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(res.Vars))
		for i, v := range res.Vars {
			if val, ok := row[v]; ok && !val.Null {
				cells[i] = val.String
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

func newDescribeCmd(a *app) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "describe <company>",
		Short: "Print the graph neighbourhood of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 1 || depth > 5 {
				return errors.New("--depth must be between 1 and 5")
			}
			e, err := a.open()
			if err != nil {
				return err
			}
			hood, err := e.Describe(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), hood)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "Traversal depth (1-5)")
	return cmd
}

func newRegistryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "registry <company>",
		Short: "Summarize the commercial-registry extract of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			report, err := e.RegistryReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\n%s\n", report.Company, report.UID, report.Summary)
			return nil
		},
	}
}

func newIndustriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "industries",
		Short: "List the canonical industry labels",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, label := range industry.Canonical() {
				fmt.Fprintln(cmd.OutOrStdout(), label)
			}
		},
	}
}

func newQueriesCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show recently logged questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			entries, err := e.RecentQueries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tROWS\tQUESTION")
			for _, q := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", q.ID, q.CreatedAt, q.TotalResults, q.Question)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
