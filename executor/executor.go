// Package executor runs SPARQL queries against the in-memory graph and turns
// the solutions into canonical rows.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/sparql"
)

// ErrQueryExecution is wrapped by every Failure.
var ErrQueryExecution = errors.New("fundgraph: query execution failed")

// DateColumn is the canonical name of the funding date column.
const DateColumn = "date"

// dateAliases are renamed to DateColumn when no date column exists.
var dateAliases = []string{"round_date", "funding_date", "fundingDate"}

// Result is either *Rows or *Failure.
type Result interface{ isResult() }

// Rows is a successful result.
type Rows struct {
	Vars []string `json:"vars"`
	Rows []Row    `json:"rows"`
}

// Failure is a query that could not be parsed or evaluated.
type Failure struct {
	Err error
}

func (*Rows) isResult()    {}
func (*Failure) isResult() {}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// RowsOf returns the rows of r, or nil for a failure.
func RowsOf(r Result) []Row {
	if rs, ok := r.(*Rows); ok {
		return rs.Rows
	}
	return nil
}

// Runner runs a query. *Executor implements it.
type Runner interface {
	Run(ctx context.Context, query string) Result
}

// Executor evaluates queries against one dataset.
type Executor struct {
	ds      sparql.Dataset
	timeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// New returns an executor over ds.
func New(ds sparql.Dataset, opts ...Option) *Executor {
	e := &Executor{ds: ds}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run parses and evaluates query. It never panics; evaluation panics are
// reported as a Failure.
func (e *Executor) Run(ctx context.Context, query string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor: panic during evaluation", "panic", r)
			res = &Failure{Err: fmt.Errorf("%w: panic: %v", ErrQueryExecution, r)}
		}
	}()

	q, err := sparql.Parse(query)
	if err != nil {
		return &Failure{Err: fmt.Errorf("%w: %w", ErrQueryExecution, err)}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	sol, err := sparql.Evaluate(ctx, q, e.ds)
	if err != nil {
		return &Failure{Err: fmt.Errorf("%w: %w", ErrQueryExecution, err)}
	}
	rows := Canonicalize(sol)
	slog.Debug("executor: query evaluated",
		"rows", len(rows.Rows), "elapsed", time.Since(start).Round(time.Microsecond))
	return rows
}

// Canonicalize converts solutions to rows: missing bindings become Null,
// numbers are rendered canonically and the date column is renamed.
func Canonicalize(sol *sparql.Solutions) *Rows {
	vars := append([]string(nil), sol.Vars...)
	rename := dateRename(vars)
	for i, v := range vars {
		if v == rename {
			vars[i] = DateColumn
		}
	}

	out := &Rows{Vars: vars, Rows: make([]Row, 0, len(sol.Rows))}
	for _, b := range sol.Rows {
		row := make(Row, len(vars))
		for i, v := range sol.Vars {
			t, ok := b[v]
			if !ok {
				row[vars[i]] = Null
				continue
			}
			row[vars[i]] = Str(lexical(t))
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func dateRename(vars []string) string {
	for _, v := range vars {
		if v == DateColumn {
			return ""
		}
	}
	for _, alias := range dateAliases {
		for _, v := range vars {
			if v == alias {
				return alias
			}
		}
	}
	return ""
}

// lexical renders a term as a row string. Integral numbers lose their
// fraction, so 1000000.0 becomes 1000000.
func lexical(t graph.Term) string {
	switch t.Kind {
	case graph.KindBlank:
		return "_:" + t.Value
	case graph.KindLiteral:
		if graph.IsNumericType(t.Datatype) {
			return canonicalNumber(t.Value)
		}
	}
	return t.Value
}

func canonicalNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
