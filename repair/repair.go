// Package repair rewrites generated queries into the shape the graph needs:
// canonical industry names, current property names, optional locations and
// required funding links.
package repair

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/industry"
	"github.com/brunobiangulo/fundgraph/intent"
	"github.com/brunobiangulo/fundgraph/sparql"
)

// Rule names reported in Result.Rules.
const (
	RuleIndustryLiteral  = "industry_literal"
	RulePropertyAlias    = "property_alias"
	RuleLocationOptional = "location_optional"
	RuleFundingRequired  = "funding_required"
)

// Result is the outcome of a repair.
type Result struct {
	Query      string   `json:"query"`
	Rules      []string `json:"rules,omitempty"`
	Industries []string `json:"industries,omitempty"`
}

// propertyAliases maps legacy or hallucinated property names to the ones
// the graph uses.
var propertyAliases = map[string]string{
	graph.NSEx + "date":      graph.NSEx + "round_date",
	graph.NSEx + "locatedIn": graph.NSEx + "hasLocation",
	graph.NSEx + "foun_date": graph.NSEx + "foundedIn",
}

// Repairer applies the rewrite rules.
type Repairer struct {
	resolver *industry.Resolver
}

// New returns a Repairer that normalises industry names with r. A nil r
// uses the default alias table.
func New(r *industry.Resolver) *Repairer {
	if r == nil {
		r = industry.NewResolver(nil)
	}
	return &Repairer{resolver: r}
}

var defaultRepairer = New(nil)

// Repair rewrites query using the default alias table.
func Repair(query, question string) (Result, error) {
	return defaultRepairer.Repair(query, question)
}

// Repair parses query, applies the rules in order and formats the result.
// Repairing the output again yields the same text. When query does not parse
// the error is returned together with a Result holding query unchanged.
func (r *Repairer) Repair(query, question string) (Result, error) {
	q, err := sparql.Parse(query)
	if err != nil {
		slog.Debug("repair: query does not parse, leaving it unchanged", "error", err)
		return Result{Query: query}, fmt.Errorf("parsing query: %w", err)
	}

	var res Result
	fired := func(rule string, ok bool) {
		if ok {
			res.Rules = append(res.Rules, rule)
		}
	}

	changed, industries := r.normalizeIndustries(q)
	res.Industries = industries
	fired(RuleIndustryLiteral, changed)
	fired(RulePropertyAlias, aliasProperties(q))
	fired(RuleLocationOptional, optionalLocations(q.Where))
	if intent.IsFunding(question) {
		fired(RuleFundingRequired, requireFunding(q, q.Where))
	}

	res.Query = sparql.Format(q)
	if len(res.Rules) > 0 {
		slog.Info("repair: query rewritten", "rules", strings.Join(res.Rules, ","))
	}
	return res, nil
}

// normalizeIndustries resolves every industry literal and replaces the
// unresolved spelling throughout the query.
func (r *Repairer) normalizeIndustries(q *sparql.Query) (bool, []string) {
	var candidates []string
	seen := map[string]bool{}
	add := func(n sparql.Node) {
		if !isPlainString(n) || seen[n.Term.Value] {
			return
		}
		seen[n.Term.Value] = true
		candidates = append(candidates, n.Term.Value)
	}

	sparql.Walk(q.Where, func(el sparql.Element) bool {
		switch e := el.(type) {
		case *sparql.TriplePattern:
			if e.S.IsVar() && isIndustryVar(e.S.Var) && e.P.Term == graph.PropName {
				add(e.O)
			}
		case *sparql.Filter:
			eachEquality(e.Expr, func(v string, n sparql.Node) {
				if isIndustryVar(v) {
					add(n)
				}
			})
		}
		return true
	})

	var (
		changed  bool
		resolved []string
	)
	for _, old := range candidates {
		canon := r.resolver.Resolve(old)
		if !contains(resolved, canon) {
			resolved = append(resolved, canon)
		}
		if canon == old {
			continue
		}
		changed = true
		eachNode(q, func(n *sparql.Node) {
			if isPlainString(*n) && n.Term.Value == old {
				n.Term = graph.Literal(canon)
			}
		})
	}
	return changed, resolved
}

func isIndustryVar(name string) bool {
	return strings.Contains(strings.ToLower(name), "industry")
}

func isPlainString(n sparql.Node) bool {
	return !n.IsVar() && n.Term.IsLiteral() && n.Term.Datatype == "" && n.Term.Lang == ""
}

// eachEquality calls fn for every ?var = "literal" comparison in e, in
// either operand order, looking through && and || connectives.
func eachEquality(e sparql.Expr, fn func(string, sparql.Node)) {
	b, ok := e.(*sparql.BinaryExpr)
	if !ok {
		return
	}
	switch b.Op {
	case "&&", "||":
		eachEquality(b.Left, fn)
		eachEquality(b.Right, fn)
	case "=":
		v, lok := b.Left.(*sparql.VarExpr)
		t, rok := b.Right.(*sparql.TermExpr)
		if !lok || !rok {
			v, lok = b.Right.(*sparql.VarExpr)
			t, rok = b.Left.(*sparql.TermExpr)
		}
		if lok && rok {
			fn(v.Name, t.Node)
		}
	}
}

func aliasProperties(q *sparql.Query) bool {
	changed := false
	eachNode(q, func(n *sparql.Node) {
		if n.IsVar() || !n.Term.IsIRI() {
			return
		}
		to, ok := propertyAliases[n.Term.Value]
		if !ok {
			return
		}
		changed = true
		n.Term = graph.IRI(to)
		if prefix, _, found := strings.Cut(n.PName, ":"); found {
			n.PName = prefix + ":" + strings.TrimPrefix(to, graph.NSEx)
		}
	})
	return changed
}

// optionalLocations wraps required ?s ex:hasLocation ?loc patterns, and the
// pattern on ?loc that immediately follows, in OPTIONAL. Groups already
// inside OPTIONAL or MINUS are left alone.
func optionalLocations(g *sparql.Group) bool {
	if g == nil {
		return false
	}
	changed := false
	var out []sparql.Element
	for i := 0; i < len(g.Elements); i++ {
		switch e := g.Elements[i].(type) {
		case *sparql.TriplePattern:
			if e.P.Term != graph.PropHasLocation || !e.S.IsVar() || !e.O.IsVar() {
				break
			}
			inner := []sparql.Element{e}
			if i+1 < len(g.Elements) {
				if next, ok := g.Elements[i+1].(*sparql.TriplePattern); ok && next.S.Var == e.O.Var {
					inner = append(inner, next)
					i++
				}
			}
			out = append(out, &sparql.Optional{Group: &sparql.Group{Elements: inner}})
			changed = true
			continue
		case *sparql.Group:
			changed = optionalLocations(e) || changed
		case *sparql.Union:
			for _, sub := range e.Groups {
				changed = optionalLocations(sub) || changed
			}
		}
		out = append(out, g.Elements[i])
	}
	g.Elements = out
	return changed
}

// fundingProps are the funding properties split into their own OPTIONAL
// blocks, with the variable used when the old block had none.
var fundingProps = []struct {
	prop        graph.Term
	local, dflt string
}{
	{graph.PropRoundDate, "round_date", "date"},
	{graph.PropAmount, "amount", "amount"},
	{graph.PropPhase, "phase", "phase"},
}

// requireFunding replaces every OPTIONAL holding ?s ex:hasFunding ?f in g
// with the required link followed by one OPTIONAL per funding property.
// Links nested inside another OPTIONAL stay where they are: making them
// required would only be relative to the enclosing block. Blocks carried
// over from a split are checked again so one pass reaches a fixed point.
func requireFunding(q *sparql.Query, g *sparql.Group) bool {
	if g == nil {
		return false
	}
	changed := false
	var out []sparql.Element
	queue := append([]sparql.Element(nil), g.Elements...)
	for len(queue) > 0 {
		el := queue[0]
		queue = queue[1:]
		switch e := el.(type) {
		case *sparql.Optional:
			if link := fundingLink(e.Group); link != nil {
				siblings := append(append([]sparql.Element(nil), out...), queue...)
				queue = append(splitFunding(q, e, link, siblings), queue...)
				changed = true
				continue
			}
		case *sparql.Group:
			changed = requireFunding(q, e) || changed
		case *sparql.Union:
			for _, sub := range e.Groups {
				changed = requireFunding(q, sub) || changed
			}
		}
		out = append(out, el)
	}
	g.Elements = out
	return changed
}

func fundingLink(g *sparql.Group) *sparql.TriplePattern {
	for _, el := range g.Elements {
		if tp, ok := el.(*sparql.TriplePattern); ok && tp.P.Term == graph.PropHasFunding && tp.O.IsVar() {
			return tp
		}
	}
	return nil
}

// propOptional reports whether el is OPTIONAL { ?fvar <funding prop> ?v }
// and returns the property and variable.
func propOptional(el sparql.Element, fvar string) (graph.Term, string, bool) {
	opt, ok := el.(*sparql.Optional)
	if !ok || len(opt.Group.Elements) != 1 {
		return graph.Term{}, "", false
	}
	tp, ok := opt.Group.Elements[0].(*sparql.TriplePattern)
	if !ok || tp.S.Var != fvar || !tp.O.IsVar() || !isFundingProp(tp.P.Term) {
		return graph.Term{}, "", false
	}
	return tp.P.Term, tp.O.Var, true
}

// splitFunding rewrites one funding OPTIONAL. Funding properties of ?f keep
// their variables. Properties with no pattern get a variable not used
// elsewhere in the query, unless a sibling already holds their OPTIONAL.
// The remaining patterns are carried over in one OPTIONAL per connected
// chain, so a hop never runs with its subject unbound. FILTERs stay with
// the chain that binds all their variables, or else apply to the group
// that now holds the link.
func splitFunding(q *sparql.Query, old *sparql.Optional, link *sparql.TriplePattern, siblings []sparql.Element) []sparql.Element {
	fvar := link.O.Var
	vars := map[graph.Term]string{}
	var rest []sparql.Element
	var filters []*sparql.Filter
	for _, el := range old.Group.Elements {
		if el == sparql.Element(link) {
			continue
		}
		if tp, ok := el.(*sparql.TriplePattern); ok && tp.S.Var == fvar && tp.O.IsVar() && isFundingProp(tp.P.Term) {
			if _, dup := vars[tp.P.Term]; !dup {
				vars[tp.P.Term] = tp.O.Var
				continue
			}
		}
		if prop, v, ok := propOptional(el, fvar); ok {
			if _, dup := vars[prop]; !dup {
				vars[prop] = v
				continue
			}
		}
		if f, ok := el.(*sparql.Filter); ok {
			filters = append(filters, f)
			continue
		}
		rest = append(rest, el)
	}

	used := boundOutside(q, old)
	for v := range elementVars(old.Group) {
		used[v] = true
	}
	present := map[graph.Term]bool{}
	for _, el := range siblings {
		if prop, _, ok := propOptional(el, fvar); ok {
			present[prop] = true
		}
		// Siblings produced by an earlier split are not in q.Where yet.
		for v := range elementVars(el) {
			used[v] = true
		}
	}

	out := []sparql.Element{link}
	for _, fp := range fundingProps {
		v, ok := vars[fp.prop]
		if !ok {
			if present[fp.prop] {
				continue
			}
			v = freshVar(used, fp.dflt, fp.local)
			used[v] = true
		}
		out = append(out, &sparql.Optional{Group: &sparql.Group{Elements: []sparql.Element{
			&sparql.TriplePattern{
				S: sparql.VarNode(fvar),
				P: sparql.IRINode(fp.prop.Value, exPName(q, fp.local)),
				O: sparql.VarNode(v),
			},
		}}})
	}

	linkVars := map[string]bool{fvar: true}
	if link.S.IsVar() {
		linkVars[link.S.Var] = true
	}
	chains := connectedChains(rest, linkVars)
	var groupFilters []sparql.Element
	for _, f := range filters {
		if c := chainFor(chains, exprVars(f.Expr)); c != nil {
			c.filters = append(c.filters, f)
			continue
		}
		groupFilters = append(groupFilters, f)
	}
	for _, c := range chains {
		if len(c.elements) == 1 && len(c.filters) == 0 {
			if opt, ok := c.elements[0].(*sparql.Optional); ok {
				out = append(out, opt)
				continue
			}
		}
		out = append(out, &sparql.Optional{Group: &sparql.Group{Elements: append(c.elements, c.filters...)}})
	}
	return append(out, groupFilters...)
}

// chain is a set of carried-over patterns linked by variables other than
// the funding link's own.
type chain struct {
	elements []sparql.Element
	filters  []sparql.Element
	vars     map[string]bool
}

func connectedChains(els []sparql.Element, linkVars map[string]bool) []*chain {
	var chains []*chain
	for _, el := range els {
		vs := map[string]bool{}
		for v := range elementVars(el) {
			if !linkVars[v] {
				vs[v] = true
			}
		}
		merged := &chain{vars: vs}
		var kept []*chain
		for _, c := range chains {
			if sharesAny(c.vars, vs) {
				merged.elements = append(merged.elements, c.elements...)
				for v := range c.vars {
					merged.vars[v] = true
				}
				continue
			}
			kept = append(kept, c)
		}
		merged.elements = append(merged.elements, el)
		chains = append(kept, merged)
	}
	// Restore source order of the chains and of their elements.
	pos := map[sparql.Element]int{}
	for i, el := range els {
		pos[el] = i
	}
	for _, c := range chains {
		slices.SortFunc(c.elements, func(a, b sparql.Element) int { return pos[a] - pos[b] })
	}
	slices.SortFunc(chains, func(a, b *chain) int { return pos[a.elements[0]] - pos[b.elements[0]] })
	return chains
}

// chainFor returns the chain binding every variable of vs, or nil.
func chainFor(chains []*chain, vs map[string]bool) *chain {
	if len(vs) == 0 {
		return nil
	}
	for _, c := range chains {
		all := true
		for v := range vs {
			if !c.vars[v] {
				all = false
				break
			}
		}
		if all {
			return c
		}
	}
	return nil
}

func sharesAny(a, b map[string]bool) bool {
	for v := range b {
		if a[v] {
			return true
		}
	}
	return false
}

// elementVars returns the variables an element mentions, nested groups
// included.
func elementVars(el sparql.Element) map[string]bool {
	vs := map[string]bool{}
	g := &sparql.Group{Elements: []sparql.Element{el}}
	sparql.Walk(g, func(e sparql.Element) bool {
		switch x := e.(type) {
		case *sparql.TriplePattern:
			for _, n := range []sparql.Node{x.S, x.P, x.O} {
				if n.IsVar() {
					vs[n.Var] = true
				}
			}
		case *sparql.Bind:
			vs[x.Var] = true
			for v := range exprVars(x.Expr) {
				vs[v] = true
			}
		case *sparql.Filter:
			for v := range exprVars(x.Expr) {
				vs[v] = true
			}
		case *sparql.Values:
			for _, v := range x.Vars {
				vs[v] = true
			}
		}
		return true
	})
	return vs
}

func exprVars(e sparql.Expr) map[string]bool {
	vs := map[string]bool{}
	var visit func(sparql.Expr)
	visit = func(e sparql.Expr) {
		switch x := e.(type) {
		case *sparql.VarExpr:
			vs[x.Name] = true
		case *sparql.BinaryExpr:
			visit(x.Left)
			visit(x.Right)
		case *sparql.UnaryExpr:
			visit(x.X)
		case *sparql.CallExpr:
			for _, a := range x.Args {
				visit(a)
			}
		case *sparql.InExpr:
			visit(x.X)
			for _, a := range x.List {
				visit(a)
			}
		case *sparql.ExistsExpr:
			for v := range elementVars(x.Group) {
				vs[v] = true
			}
		}
	}
	visit(e)
	return vs
}

// boundOutside returns the variables bound by patterns, BIND or VALUES
// anywhere in the WHERE clause except inside skip.
func boundOutside(q *sparql.Query, skip *sparql.Optional) map[string]bool {
	vs := map[string]bool{}
	sparql.Walk(q.Where, func(el sparql.Element) bool {
		switch x := el.(type) {
		case *sparql.Optional:
			return x != skip
		case *sparql.TriplePattern:
			for _, n := range []sparql.Node{x.S, x.P, x.O} {
				if n.IsVar() {
					vs[n.Var] = true
				}
			}
		case *sparql.Bind:
			vs[x.Var] = true
		case *sparql.Values:
			for _, v := range x.Vars {
				vs[v] = true
			}
		}
		return true
	})
	return vs
}

// freshVar returns the first of the candidate names not in used, falling
// back to a numbered form of the first.
func freshVar(used map[string]bool, names ...string) string {
	for _, n := range names {
		if !used[n] {
			return n
		}
	}
	for i := 2; ; i++ {
		if n := fmt.Sprintf("%s_%d", names[0], i); !used[n] {
			return n
		}
	}
}

func isFundingProp(t graph.Term) bool {
	for _, fp := range fundingProps {
		if fp.prop == t {
			return true
		}
	}
	return false
}

// exPName returns the prefixed name for an ontology term, or "" to write the
// full IRI when no prefix maps to the ontology namespace.
func exPName(q *sparql.Query, local string) string {
	ex := ""
	for _, p := range q.Prefixes {
		if p.IRI == graph.NSEx {
			ex = p.Name
			break
		}
	}
	if ex == "" {
		declared := false
		for _, p := range q.Prefixes {
			if p.Name == "ex" {
				declared = true
			}
		}
		if declared || sparql.DefaultPrefixes["ex"] != graph.NSEx {
			return ""
		}
		ex = "ex"
	}
	return ex + ":" + local
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
