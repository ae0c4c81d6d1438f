package sparql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
)

// Dataset is the triple source a query is evaluated against. *graph.Graph
// satisfies it.
type Dataset interface {
	Match(s, p, o graph.Term) []graph.Triple
}

// Binding maps variable names to terms. Unbound variables are absent.
type Binding map[string]graph.Term

func (b Binding) clone() Binding {
	out := make(Binding, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// compatible reports whether two bindings agree on every shared variable.
func compatible(a, b Binding) bool {
	for k, v := range a {
		if w, ok := b[k]; ok && w != v {
			return false
		}
	}
	return true
}

func sharesVar(a, b Binding) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// Solutions is the result of a SELECT query.
type Solutions struct {
	Vars []string
	Rows []Binding
}

// errEval marks an expression that could not be evaluated (unbound variable,
// type error). Filters treat it as false and BIND leaves the variable unbound.
var errEval = errors.New("sparql: expression error")

type evaluator struct {
	ctx context.Context
	ds  Dataset
	// group holds the solutions of the current group while aggregate
	// expressions are evaluated.
	group []Binding
}

// Evaluate runs q against ds.
func Evaluate(ctx context.Context, q *Query, ds Dataset) (*Solutions, error) {
	if q == nil || q.Where == nil {
		return nil, errors.New("sparql: empty query")
	}
	ev := &evaluator{ctx: ctx, ds: ds}

	rows, err := ev.evalGroup(q.Where, []Binding{{}})
	if err != nil {
		return nil, err
	}

	var keys [][]graph.Term
	if q.isAggregate() {
		rows, keys, err = ev.aggregate(q, rows)
		if err != nil {
			return nil, err
		}
	} else {
		for _, row := range rows {
			for _, p := range q.Projection {
				if p.Expr == nil {
					continue
				}
				if v, err := ev.eval(p.Expr, row); err == nil {
					row[p.Var] = v
				}
			}
		}
		keys = make([][]graph.Term, len(rows))
		for i, row := range rows {
			keys[i] = ev.orderKeys(q.OrderBy, row)
		}
	}

	if len(q.OrderBy) > 0 {
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			ka, kb := keys[idx[a]], keys[idx[b]]
			for i, cond := range q.OrderBy {
				c := orderCompare(ka[i], kb[i])
				if c == 0 {
					continue
				}
				if cond.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		sorted := make([]Binding, len(rows))
		for i, j := range idx {
			sorted[i] = rows[j]
		}
		rows = sorted
	}

	sol := &Solutions{}
	if q.Star {
		sol.Vars = q.Vars()
	} else {
		for _, p := range q.Projection {
			sol.Vars = append(sol.Vars, p.Var)
		}
	}

	seen := map[string]bool{}
	for _, row := range rows {
		out := make(Binding, len(sol.Vars))
		for _, v := range sol.Vars {
			if t, ok := row[v]; ok {
				out[v] = t
			}
		}
		if q.Distinct || q.Reduced {
			k := rowKey(sol.Vars, out)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		sol.Rows = append(sol.Rows, out)
	}

	if q.Offset > 0 {
		if q.Offset >= len(sol.Rows) {
			sol.Rows = nil
		} else {
			sol.Rows = sol.Rows[q.Offset:]
		}
	}
	if q.Limit >= 0 && q.Limit < len(sol.Rows) {
		sol.Rows = sol.Rows[:q.Limit]
	}
	return sol, nil
}

func (q *Query) isAggregate() bool {
	if len(q.GroupBy) > 0 || len(q.Having) > 0 {
		return true
	}
	for _, p := range q.Projection {
		if p.Expr != nil && containsAggregate(p.Expr) {
			return true
		}
	}
	for _, o := range q.OrderBy {
		if containsAggregate(o.Expr) {
			return true
		}
	}
	return false
}

func rowKey(vars []string, b Binding) string {
	var sb strings.Builder
	for _, v := range vars {
		sb.WriteString(b[v].String())
		sb.WriteByte(0)
	}
	return sb.String()
}

func (ev *evaluator) orderKeys(conds []OrderCond, row Binding) []graph.Term {
	keys := make([]graph.Term, len(conds))
	for i, c := range conds {
		if v, err := ev.eval(c.Expr, row); err == nil {
			keys[i] = v
		}
	}
	return keys
}

// evalGroup extends each input solution with the matches of g. Nested
// groups, OPTIONAL and UNION branches are evaluated with the outer bindings
// substituted. FILTERs apply to the whole group regardless of position.
func (ev *evaluator) evalGroup(g *Group, input []Binding) ([]Binding, error) {
	rows := input
	var filters []Expr

	for _, el := range g.Elements {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		switch e := el.(type) {
		case *TriplePattern:
			rows = ev.join(rows, e)

		case *Optional:
			var out []Binding
			for _, row := range rows {
				ext, err := ev.evalGroup(e.Group, []Binding{row})
				if err != nil {
					return nil, err
				}
				if len(ext) == 0 {
					out = append(out, row)
				} else {
					out = append(out, ext...)
				}
			}
			rows = out

		case *Union:
			var out []Binding
			for _, branch := range e.Groups {
				ext, err := ev.evalGroup(branch, rows)
				if err != nil {
					return nil, err
				}
				out = append(out, ext...)
			}
			rows = out

		case *Minus:
			removed, err := ev.evalGroup(e.Group, []Binding{{}})
			if err != nil {
				return nil, err
			}
			var out []Binding
			for _, row := range rows {
				keep := true
				for _, m := range removed {
					if sharesVar(row, m) && compatible(row, m) {
						keep = false
						break
					}
				}
				if keep {
					out = append(out, row)
				}
			}
			rows = out

		case *Group:
			ext, err := ev.evalGroup(e, rows)
			if err != nil {
				return nil, err
			}
			rows = ext

		case *Filter:
			filters = append(filters, e.Expr)

		case *Bind:
			out := make([]Binding, 0, len(rows))
			for _, row := range rows {
				next := row.clone()
				if v, err := ev.eval(e.Expr, row); err == nil {
					next[e.Var] = v
				}
				out = append(out, next)
			}
			rows = out

		case *Values:
			var out []Binding
			for _, row := range rows {
				for _, data := range e.Rows {
					cand := Binding{}
					for i, n := range data {
						if !n.IsZero() {
							cand[e.Vars[i]] = n.Term
						}
					}
					if !compatible(row, cand) {
						continue
					}
					next := row.clone()
					for k, v := range cand {
						next[k] = v
					}
					out = append(out, next)
				}
			}
			rows = out

		default:
			return nil, fmt.Errorf("sparql: unsupported pattern %T", el)
		}
		if len(rows) == 0 {
			break
		}
	}

	if len(filters) == 0 {
		return rows, nil
	}
	out := rows[:0:0]
	for _, row := range rows {
		keep := true
		for _, f := range filters {
			ok, err := ev.ebv(f, row)
			if err != nil || !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// join extends every row with the matches of a single triple pattern.
func (ev *evaluator) join(rows []Binding, tp *TriplePattern) []Binding {
	var out []Binding
	for _, row := range rows {
		s := resolveNode(tp.S, row)
		p := resolveNode(tp.P, row)
		o := resolveNode(tp.O, row)
		for _, t := range ev.ds.Match(s, p, o) {
			next := row.clone()
			if bindNode(next, tp.S, t.S) && bindNode(next, tp.P, t.P) && bindNode(next, tp.O, t.O) {
				out = append(out, next)
			}
		}
	}
	return out
}

func resolveNode(n Node, row Binding) graph.Term {
	if n.Var == "" {
		return n.Term
	}
	return row[n.Var]
}

// bindNode binds a variable position to the matched term. It fails when the
// same variable appears twice in a pattern with different values.
func bindNode(row Binding, n Node, t graph.Term) bool {
	if n.Var == "" {
		return true
	}
	if cur, ok := row[n.Var]; ok {
		return cur == t
	}
	row[n.Var] = t
	return true
}

// orderCompare orders terms for ORDER BY: unbound first, then blank nodes,
// IRIs and literals. Numbers compare numerically, other literals by their
// lexical form, which orders ISO dates chronologically.
func orderCompare(a, b graph.Term) int {
	rank := func(t graph.Term) int {
		switch t.Kind {
		case graph.KindNone:
			return 0
		case graph.KindBlank:
			return 1
		case graph.KindIRI:
			return 2
		default:
			return 3
		}
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra - rb
	}
	if fa, ok := numericValue(a); ok {
		if fb, ok := numericValue(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a.Value, b.Value)
}
