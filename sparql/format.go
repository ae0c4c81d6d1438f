package sparql

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
)

// Format renders q in canonical form. Formatting a query parsed from the
// output of Format yields the same text.
func Format(q *Query) string {
	var b strings.Builder

	for _, p := range q.Prefixes {
		b.WriteString("PREFIX " + p.Name + ": <" + p.IRI + ">\n")
	}
	if len(q.Prefixes) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("SELECT ")
	switch {
	case q.Distinct:
		b.WriteString("DISTINCT ")
	case q.Reduced:
		b.WriteString("REDUCED ")
	}
	if q.Star {
		b.WriteString("*")
	} else {
		parts := make([]string, len(q.Projection))
		for i, p := range q.Projection {
			if p.Expr == nil {
				parts[i] = "?" + p.Var
			} else {
				parts[i] = "(" + formatExpr(p.Expr, true) + " AS ?" + p.Var + ")"
			}
		}
		b.WriteString(strings.Join(parts, " "))
	}
	b.WriteString("\nWHERE {\n")
	writeGroup(&b, q.Where, 1)
	b.WriteString("}")

	if len(q.GroupBy) > 0 {
		parts := make([]string, len(q.GroupBy))
		for i, c := range q.GroupBy {
			switch {
			case c.Var != "":
				parts[i] = "(" + formatExpr(c.Expr, true) + " AS ?" + c.Var + ")"
			default:
				parts[i] = formatCondition(c.Expr)
			}
		}
		b.WriteString("\nGROUP BY " + strings.Join(parts, " "))
	}
	if len(q.Having) > 0 {
		parts := make([]string, len(q.Having))
		for i, e := range q.Having {
			parts[i] = formatCondition(e)
		}
		b.WriteString("\nHAVING " + strings.Join(parts, " "))
	}
	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, c := range q.OrderBy {
			if c.Desc {
				parts[i] = "DESC(" + formatExpr(c.Expr, true) + ")"
			} else {
				parts[i] = formatCondition(c.Expr)
			}
		}
		b.WriteString("\nORDER BY " + strings.Join(parts, " "))
	}
	if q.Limit >= 0 {
		b.WriteString("\nLIMIT " + strconv.Itoa(q.Limit))
	}
	if q.Offset >= 0 {
		b.WriteString("\nOFFSET " + strconv.Itoa(q.Offset))
	}
	return b.String()
}

// formatCondition renders an ORDER BY, GROUP BY or HAVING key, which must be
// a variable, a call, or a bracketed expression.
func formatCondition(e Expr) string {
	switch x := e.(type) {
	case *VarExpr:
		return "?" + x.Name
	case *CallExpr:
		return formatExpr(x, true)
	case *ExistsExpr:
		return "(" + formatExpr(x, true) + ")"
	}
	return "(" + formatExpr(e, true) + ")"
}

func writeGroup(b *strings.Builder, g *Group, depth int) {
	if g == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, el := range g.Elements {
		b.WriteString(indent)
		switch e := el.(type) {
		case *TriplePattern:
			b.WriteString(formatNode(e.S) + " " + formatNode(e.P) + " " + formatNode(e.O) + " .")
		case *Optional:
			b.WriteString("OPTIONAL {\n")
			writeGroup(b, e.Group, depth+1)
			b.WriteString(indent + "}")
		case *Minus:
			b.WriteString("MINUS {\n")
			writeGroup(b, e.Group, depth+1)
			b.WriteString(indent + "}")
		case *Union:
			for i, sub := range e.Groups {
				if i > 0 {
					b.WriteString(" UNION ")
				}
				b.WriteString("{\n")
				writeGroup(b, sub, depth+1)
				b.WriteString(indent + "}")
			}
		case *Group:
			b.WriteString("{\n")
			writeGroup(b, e, depth+1)
			b.WriteString(indent + "}")
		case *Filter:
			b.WriteString("FILTER(" + formatExpr(e.Expr, true) + ")")
		case *Bind:
			b.WriteString("BIND(" + formatExpr(e.Expr, true) + " AS ?" + e.Var + ")")
		case *Values:
			b.WriteString(formatValues(e))
		}
		b.WriteString("\n")
	}
}

// inlineGroup renders a group on a single line, as used inside EXISTS.
func inlineGroup(g *Group) string {
	if g == nil || len(g.Elements) == 0 {
		return "{ }"
	}
	parts := make([]string, 0, len(g.Elements))
	for _, el := range g.Elements {
		switch e := el.(type) {
		case *TriplePattern:
			parts = append(parts, formatNode(e.S)+" "+formatNode(e.P)+" "+formatNode(e.O)+" .")
		case *Optional:
			parts = append(parts, "OPTIONAL "+inlineGroup(e.Group))
		case *Minus:
			parts = append(parts, "MINUS "+inlineGroup(e.Group))
		case *Union:
			subs := make([]string, len(e.Groups))
			for i, sub := range e.Groups {
				subs[i] = inlineGroup(sub)
			}
			parts = append(parts, strings.Join(subs, " UNION "))
		case *Group:
			parts = append(parts, inlineGroup(e))
		case *Filter:
			parts = append(parts, "FILTER("+formatExpr(e.Expr, true)+")")
		case *Bind:
			parts = append(parts, "BIND("+formatExpr(e.Expr, true)+" AS ?"+e.Var+")")
		case *Values:
			parts = append(parts, formatValues(e))
		}
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

func formatValues(v *Values) string {
	var b strings.Builder
	b.WriteString("VALUES ")
	single := len(v.Vars) == 1
	if single {
		b.WriteString("?" + v.Vars[0])
	} else {
		vars := make([]string, len(v.Vars))
		for i, name := range v.Vars {
			vars[i] = "?" + name
		}
		b.WriteString("(" + strings.Join(vars, " ") + ")")
	}
	b.WriteString(" {")
	for _, row := range v.Rows {
		vals := make([]string, len(row))
		for i, n := range row {
			if n.IsZero() {
				vals[i] = "UNDEF"
			} else {
				vals[i] = formatNode(n)
			}
		}
		if single {
			b.WriteString(" " + strings.Join(vals, " "))
		} else {
			b.WriteString(" (" + strings.Join(vals, " ") + ")")
		}
	}
	b.WriteString(" }")
	return b.String()
}

var (
	bareInteger = regexp.MustCompile(`^[+-]?[0-9]+$`)
	bareDecimal = regexp.MustCompile(`^[+-]?[0-9]*\.[0-9]+$`)
	bareDouble  = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)[eE][+-]?[0-9]+$`)
)

func formatNode(n Node) string {
	if n.Var != "" {
		return "?" + n.Var
	}
	if n.A {
		return "a"
	}
	t := n.Term
	switch t.Kind {
	case graph.KindIRI:
		if n.PName != "" {
			return n.PName
		}
		return "<" + t.Value + ">"
	case graph.KindBlank:
		return "_:" + t.Value
	case graph.KindLiteral:
		switch t.Datatype {
		case graph.XSDInteger:
			if bareInteger.MatchString(t.Value) {
				return t.Value
			}
		case graph.XSDDecimal:
			if bareDecimal.MatchString(t.Value) {
				return t.Value
			}
		case graph.XSDDouble:
			if bareDouble.MatchString(t.Value) {
				return t.Value
			}
		case graph.XSDBoolean:
			if t.Value == "true" || t.Value == "false" {
				return t.Value
			}
		}
		s := `"` + graph.EscapeString(t.Value) + `"`
		switch {
		case t.Lang != "":
			return s + "@" + t.Lang
		case t.Datatype == "":
			return s
		case n.DTName != "":
			return s + "^^" + n.DTName
		default:
			return s + "^^<" + t.Datatype + ">"
		}
	}
	return ""
}

// formatExpr renders an expression. Binary expressions below the top level
// are parenthesised so the output never depends on operator precedence.
func formatExpr(e Expr, top bool) string {
	switch x := e.(type) {
	case *VarExpr:
		return "?" + x.Name
	case *TermExpr:
		return formatNode(x.Node)
	case *BinaryExpr:
		s := formatExpr(x.Left, false) + " " + x.Op + " " + formatExpr(x.Right, false)
		if top {
			return s
		}
		return "(" + s + ")"
	case *UnaryExpr:
		return x.Op + formatExpr(x.X, false)
	case *CallExpr:
		if x.Star {
			if x.Distinct {
				return x.Name + "(DISTINCT *)"
			}
			return x.Name + "(*)"
		}
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = formatExpr(a, true)
		}
		s := x.Name + "("
		if x.Distinct {
			s += "DISTINCT "
		}
		s += strings.Join(args, ", ")
		if x.HasSep {
			s += `; SEPARATOR="` + graph.EscapeString(x.Separator) + `"`
		}
		return s + ")"
	case *InExpr:
		items := make([]string, len(x.List))
		for i, a := range x.List {
			items[i] = formatExpr(a, true)
		}
		op := " IN ("
		if x.Not {
			op = " NOT IN ("
		}
		s := formatExpr(x.X, false) + op + strings.Join(items, ", ") + ")"
		if top {
			return s
		}
		return "(" + s + ")"
	case *ExistsExpr:
		if x.Not {
			return "NOT EXISTS " + inlineGroup(x.Group)
		}
		return "EXISTS " + inlineGroup(x.Group)
	}
	return ""
}
