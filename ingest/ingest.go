// Package ingest converts the startup and deal tables into the funding
// knowledge graph.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/parser"
)

// Column names of the companies table.
const (
	ColTitle      = "Title"
	ColYear       = "Year"
	ColHighlights = "Highlights"
	ColIndustry   = "Industry"
	ColCanton     = "Canton"
	ColCity       = "City"
)

// Column names of the deals table.
const (
	ColCompany      = "Company"
	ColPhase        = "Phase"
	ColType         = "Type"
	ColAmount       = "Amount"
	ColConfidential = "Amount confidential"
	ColValuation    = "Valuation"
	ColDate         = "Date of the funding round"
	ColInvestors    = "Investors"
)

// dateLayouts are tried in order; month-first wins over day-first for
// ambiguous dates. Single-digit days and months are accepted.
var dateLayouts = []string{"2006-01-02", "1/2/2006", "2/1/2006"}

var (
	unsafeRe    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	nonAmountRe = regexp.MustCompile(`[^\d.]`)
)

// Stats counts what a conversion produced and skipped.
type Stats struct {
	Companies      int      `json:"companies"`
	Deals          int      `json:"deals"`
	Triples        int      `json:"triples"`
	SkippedRows    int      `json:"skipped_rows"`
	Confidential   int      `json:"confidential_amounts"`
	UnparsedDates  int      `json:"unparsed_dates"`
	UnparsedValues int      `json:"unparsed_values"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (s *Stats) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Config selects worksheets for spreadsheet inputs. Empty means the first
// sheet.
type Config struct {
	CompaniesSheet string `json:"companies_sheet" yaml:"companies_sheet"`
	DealsSheet     string `json:"deals_sheet" yaml:"deals_sheet"`
}

// Converter reads the two input tables and builds triples from them.
type Converter struct {
	readers *parser.Registry
	cfg     Config
}

// New returns a converter using the given reader registry. A nil registry
// uses parser.NewRegistry.
func New(readers *parser.Registry, cfg Config) *Converter {
	if readers == nil {
		readers = parser.NewRegistry()
	}
	return &Converter{readers: readers, cfg: cfg}
}

// Convert reads both tables concurrently and converts them.
func (c *Converter) Convert(ctx context.Context, companiesPath, dealsPath string) (*graph.Graph, *Stats, error) {
	var companies, deals *parser.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.readers.Read(gctx, companiesPath, c.cfg.CompaniesSheet)
		if err != nil {
			return fmt.Errorf("reading companies %s: %w", companiesPath, err)
		}
		companies = t
		return nil
	})
	g.Go(func() error {
		t, err := c.readers.Read(gctx, dealsPath, c.cfg.DealsSheet)
		if err != nil {
			return fmt.Errorf("reading deals %s: %w", dealsPath, err)
		}
		deals = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	slog.Info("ingest: tables loaded", "companies", len(companies.Rows), "deals", len(deals.Rows))
	gr, st := ConvertTables(companies, deals)
	slog.Info("ingest: conversion complete",
		"triples", st.Triples, "companies", st.Companies, "deals", st.Deals,
		"skipped", st.SkippedRows, "warnings", len(st.Warnings))
	return gr, st, nil
}

// ConvertTables builds the graph from already-read tables.
func ConvertTables(companies, deals *parser.Table) (*graph.Graph, *Stats) {
	g := graph.New()
	st := &Stats{}
	if companies != nil {
		for _, rec := range companies.Records() {
			addCompany(g, st, rec)
		}
	}
	if deals != nil {
		for _, rec := range deals.Records() {
			addDeal(g, st, rec)
		}
	}
	st.Triples = g.Len()
	return g, st
}

// URISafe replaces every character outside [a-zA-Z0-9_-] with '_'.
func URISafe(s string) string { return unsafeRe.ReplaceAllString(s, "_") }

// StartupIRI returns the resource IRI of a startup by name.
func StartupIRI(name string) graph.Term { return graph.Res(URISafe(name)) }

func addCompany(g *graph.Graph, st *Stats, rec parser.Record) {
	name := cell(rec, ColTitle)
	if name == "" {
		st.SkippedRows++
		return
	}
	st.Companies++
	s := StartupIRI(name)
	g.Add(graph.Triple{S: s, P: graph.RDFType, O: graph.ClassStartup})
	g.Add(graph.Triple{S: s, P: graph.PropName, O: graph.Literal(name)})

	if y := cell(rec, ColYear); y != "" {
		if f, err := strconv.ParseFloat(y, 64); err == nil {
			g.Add(graph.Triple{S: s, P: graph.PropFoundedIn, O: graph.Typed(strconv.Itoa(int(f)), graph.XSDInteger)})
		} else {
			st.UnparsedValues++
			st.warn("%s: unparsable year %q", name, y)
		}
	}
	if h := cell(rec, ColHighlights); h != "" {
		g.Add(graph.Triple{S: s, P: graph.PropHighlights, O: graph.Literal(h)})
	}
	if ind := cell(rec, ColIndustry); ind != "" {
		n := named(g, "industry-", ind, graph.ClassIndustry)
		g.Add(graph.Triple{S: s, P: graph.PropHasIndustry, O: n})
	}
	if canton := cell(rec, ColCanton); canton != "" {
		cn := named(g, "canton-", canton, graph.ClassCanton)
		g.Add(graph.Triple{S: s, P: graph.PropHasLocation, O: cn})
		if city := cell(rec, ColCity); city != "" {
			ct := named(g, "city-", city, graph.ClassCity)
			g.Add(graph.Triple{S: ct, P: graph.PropPartOf, O: cn})
			g.Add(graph.Triple{S: s, P: graph.PropHasLocation, O: ct})
		}
	}
}

func addDeal(g *graph.Graph, st *Stats, rec parser.Record) {
	company := cell(rec, ColCompany)
	if company == "" {
		st.SkippedRows++
		return
	}
	st.Deals++
	ev := g.NewBlank()
	g.Add(graph.Triple{S: ev, P: graph.RDFType, O: graph.ClassFundingEvent})
	g.Add(graph.Triple{S: StartupIRI(company), P: graph.PropHasFunding, O: ev})

	if v := cell(rec, ColPhase); v != "" {
		g.Add(graph.Triple{S: ev, P: graph.PropPhase, O: graph.Literal(v)})
	}
	if v := cell(rec, ColType); v != "" {
		g.Add(graph.Triple{S: ev, P: graph.PropType, O: graph.Literal(v)})
	}

	if raw := cell(rec, ColAmount); raw != "" {
		if strings.EqualFold(cell(rec, ColConfidential), "yes") {
			st.Confidential++
		} else if amount, ok := ParseAmount(raw); ok {
			g.Add(graph.Triple{S: ev, P: graph.PropAmount, O: decimal(amount)})
		} else {
			st.UnparsedValues++
			st.warn("%s: could not convert amount %q", company, raw)
		}
	}

	if raw := cell(rec, ColValuation); raw != "" {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err == nil {
			g.Add(graph.Triple{S: ev, P: graph.PropValuation, O: decimal(v)})
		} else {
			st.UnparsedValues++
		}
	}

	if raw := cell(rec, ColDate); raw != "" {
		if d, ok := ParseDate(raw); ok {
			g.Add(graph.Triple{S: ev, P: graph.PropRoundDate, O: graph.Typed(d, graph.XSDDate)})
		} else {
			st.UnparsedDates++
			st.warn("%s: unparsable funding date %q", company, raw)
		}
	}

	if inv := cell(rec, ColInvestors); inv != "" && inv != "n.a." {
		n := named(g, "investor-", inv, graph.ClassInvestor)
		g.Add(graph.Triple{S: ev, P: graph.PropInvestor, O: n})
	}
}

// ParseAmount strips everything but digits and dots and scales the value from
// millions to units.
func ParseAmount(raw string) (float64, bool) {
	clean := nonAmountRe.ReplaceAllString(raw, "")
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v * 1_000_000, true
}

// ParseDate normalises a funding date to YYYY-MM-DD.
func ParseDate(raw string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// named adds a typed, named resource node and returns it.
func named(g *graph.Graph, prefix, name string, class graph.Term) graph.Term {
	n := graph.Res(prefix + URISafe(name))
	g.Add(graph.Triple{S: n, P: graph.RDFType, O: class})
	g.Add(graph.Triple{S: n, P: graph.PropName, O: graph.Literal(name)})
	return n
}

func decimal(v float64) graph.Term {
	return graph.Typed(strconv.FormatFloat(v, 'f', -1, 64), graph.XSDDecimal)
}

// cell reads a column by exact header, then case-insensitively.
func cell(rec parser.Record, name string) string {
	if v, ok := rec[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range rec {
		if strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
