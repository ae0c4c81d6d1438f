package sparql

import (
	"sort"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
)

// aggregate partitions rows by the GROUP BY keys and computes one solution
// per group. It returns the grouped rows and their ORDER BY keys.
func (ev *evaluator) aggregate(q *Query, rows []Binding) ([]Binding, [][]graph.Term, error) {
	type bucket struct {
		key  Binding
		rows []Binding
	}
	var buckets []*bucket

	if len(q.GroupBy) == 0 {
		buckets = []*bucket{{key: Binding{}, rows: rows}}
	} else {
		index := map[string]*bucket{}
		for _, row := range rows {
			key := Binding{}
			var sb strings.Builder
			for _, cond := range q.GroupBy {
				v, err := ev.eval(cond.Expr, row)
				if err == nil {
					switch {
					case cond.Var != "":
						key[cond.Var] = v
					default:
						if ve, ok := cond.Expr.(*VarExpr); ok {
							key[ve.Name] = v
						}
					}
				}
				sb.WriteString(v.String())
				sb.WriteByte(0)
			}
			k := sb.String()
			b, ok := index[k]
			if !ok {
				b = &bucket{key: key}
				index[k] = b
				buckets = append(buckets, b)
			}
			b.rows = append(b.rows, row)
		}
	}

	var out []Binding
	var keys [][]graph.Term
	for _, b := range buckets {
		if err := ev.ctx.Err(); err != nil {
			return nil, nil, err
		}
		gev := &evaluator{ctx: ev.ctx, ds: ev.ds, group: b.rows}
		row := b.key.clone()
		for _, p := range q.Projection {
			if p.Expr == nil {
				continue
			}
			if v, err := gev.eval(p.Expr, row); err == nil {
				row[p.Var] = v
			}
		}
		keep := true
		for _, h := range q.Having {
			ok, err := gev.ebv(h, row)
			if err != nil || !ok {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}
		out = append(out, row)
		keys = append(keys, gev.orderKeys(q.OrderBy, row))
	}
	return out, keys, nil
}

// evalAggregate computes an aggregate over the current group.
func (ev *evaluator) evalAggregate(c *CallExpr) (graph.Term, error) {
	if ev.group == nil {
		// An empty group still has aggregates: COUNT is 0, SUM is 0.
		ev.group = []Binding{}
	}
	inner := &evaluator{ctx: ev.ctx, ds: ev.ds}

	if c.Star {
		if !c.Distinct {
			return intTerm(len(ev.group)), nil
		}
		seen := map[string]bool{}
		for _, row := range ev.group {
			seen[bindingKey(row)] = true
		}
		return intTerm(len(seen)), nil
	}
	if len(c.Args) != 1 {
		return graph.Term{}, errEval
	}

	var values []graph.Term
	seen := map[graph.Term]bool{}
	for _, row := range ev.group {
		v, err := inner.eval(c.Args[0], row)
		if err != nil {
			continue
		}
		if c.Distinct {
			if seen[v] {
				continue
			}
			seen[v] = true
		}
		values = append(values, v)
	}

	switch c.Name {
	case "COUNT":
		return intTerm(len(values)), nil

	case "SUM", "AVG":
		sum, n := 0.0, 0
		dt := graph.XSDInteger
		for _, v := range values {
			f, ok := numericValue(v)
			if !ok {
				continue
			}
			sum += f
			n++
			dt = arithmeticType(dt, v.Datatype)
		}
		if c.Name == "SUM" {
			return numTerm(sum, dt), nil
		}
		if n == 0 {
			return intTerm(0), nil
		}
		if dt == graph.XSDInteger {
			dt = graph.XSDDecimal
		}
		return numTerm(sum/float64(n), dt), nil

	case "MIN", "MAX":
		if len(values) == 0 {
			return graph.Term{}, errEval
		}
		best := values[0]
		for _, v := range values[1:] {
			cmp := orderCompare(v, best)
			if (c.Name == "MIN" && cmp < 0) || (c.Name == "MAX" && cmp > 0) {
				best = v
			}
		}
		return best, nil

	case "SAMPLE":
		if len(values) == 0 {
			return graph.Term{}, errEval
		}
		return values[0], nil

	case "GROUP_CONCAT":
		sep := " "
		if c.HasSep {
			sep = c.Separator
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			if v.IsBlank() {
				continue
			}
			parts = append(parts, v.Value)
		}
		return graph.Literal(strings.Join(parts, sep)), nil
	}
	return graph.Term{}, errEval
}

func bindingKey(b Binding) string {
	vars := make([]string, 0, len(b))
	for k := range b {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	var sb strings.Builder
	for _, v := range vars {
		sb.WriteString(v)
		sb.WriteByte('=')
		sb.WriteString(b[v].String())
		sb.WriteByte(0)
	}
	return sb.String()
}
