package sparql

import "github.com/brunobiangulo/fundgraph/graph"

// Query is a parsed SELECT query.
type Query struct {
	Prefixes   []Prefix
	Distinct   bool
	Reduced    bool
	Star       bool
	Projection []Projection
	Where      *Group
	GroupBy    []Projection
	Having     []Expr
	OrderBy    []OrderCond
	Limit      int // -1 when absent
	Offset     int // -1 when absent
}

// Prefix is a PREFIX declaration.
type Prefix struct {
	Name string // without the trailing colon
	IRI  string
}

// Projection is a projected variable, optionally computed from an expression.
// GROUP BY conditions reuse the same shape: a bare expression has Var "".
type Projection struct {
	Var  string
	Expr Expr
}

// OrderCond is one ORDER BY key.
type OrderCond struct {
	Expr Expr
	Desc bool
}

// Group is a { ... } group graph pattern. Elements keep source order, which
// matters both for evaluation and for the repair rules that look at the
// pattern immediately following another.
type Group struct {
	Elements []Element
}

// Element is a member of a group: a triple pattern, OPTIONAL, UNION, MINUS,
// FILTER, BIND, VALUES or a nested group.
type Element interface{ element() }

// TriplePattern is a single subject-predicate-object pattern.
type TriplePattern struct {
	S, P, O Node
}

// Optional is OPTIONAL { ... }.
type Optional struct{ Group *Group }

// Union is { ... } UNION { ... } [UNION ...].
type Union struct{ Groups []*Group }

// Minus is MINUS { ... }.
type Minus struct{ Group *Group }

// Filter is FILTER(expr).
type Filter struct{ Expr Expr }

// Bind is BIND(expr AS ?var).
type Bind struct {
	Expr Expr
	Var  string
}

// Values is an inline VALUES data block. A zero Node in a row is UNDEF.
type Values struct {
	Vars []string
	Rows [][]Node
}

func (*TriplePattern) element() {}
func (*Optional) element()      {}
func (*Union) element()         {}
func (*Minus) element()         {}
func (*Filter) element()        {}
func (*Bind) element()          {}
func (*Values) element()        {}
func (*Group) element()         {}

// Node is a position in a triple pattern or a constant in an expression:
// either a variable or a concrete term. PName keeps the prefixed form the
// query author wrote so that formatting reproduces it.
type Node struct {
	Var    string
	Term   graph.Term
	PName  string // "ex:round_date" for IRIs written in prefixed form
	DTName string // prefixed form of a literal's datatype, e.g. "xsd:date"
	A      bool   // written as the 'a' keyword
}

// IsVar reports whether the node is a variable.
func (n Node) IsVar() bool { return n.Var != "" }

// IsZero reports whether the node is empty (UNDEF in VALUES).
func (n Node) IsZero() bool { return n.Var == "" && n.Term.IsZero() }

// VarNode returns a variable node.
func VarNode(name string) Node { return Node{Var: name} }

// IRINode returns an IRI node. If pname is non-empty it is used when
// formatting.
func IRINode(iri, pname string) Node { return Node{Term: graph.IRI(iri), PName: pname} }

// LiteralNode returns a plain string literal node.
func LiteralNode(s string) Node { return Node{Term: graph.Literal(s)} }

// Expr is a FILTER/BIND/projection expression.
type Expr interface{ expr() }

// VarExpr references a variable.
type VarExpr struct{ Name string }

// TermExpr is a constant.
type TermExpr struct{ Node Node }

// BinaryExpr is a binary operator: || && = != < > <= >= + - * /
type BinaryExpr struct {
	Op          string
	Left, Right Expr
}

// UnaryExpr is ! - or +.
type UnaryExpr struct {
	Op string
	X  Expr
}

// CallExpr is a builtin, aggregate, or IRI function (cast) call.
type CallExpr struct {
	Name      string // upper-cased builtin name, or the written form of an IRI function
	IRI       string // set for IRI functions such as xsd:integer
	Args      []Expr
	Distinct  bool   // aggregate DISTINCT
	Star      bool   // COUNT(*)
	Separator string // GROUP_CONCAT separator; "" means default
	HasSep    bool
}

// InExpr is X [NOT] IN (list).
type InExpr struct {
	X    Expr
	List []Expr
	Not  bool
}

// ExistsExpr is [NOT] EXISTS { ... }.
type ExistsExpr struct {
	Group *Group
	Not   bool
}

func (*VarExpr) expr()    {}
func (*TermExpr) expr()   {}
func (*BinaryExpr) expr() {}
func (*UnaryExpr) expr()  {}
func (*CallExpr) expr()   {}
func (*InExpr) expr()     {}
func (*ExistsExpr) expr() {}

var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"SAMPLE": true, "GROUP_CONCAT": true,
}

// IsAggregate reports whether the call is an aggregate function.
func (c *CallExpr) IsAggregate() bool { return c.IRI == "" && aggregateNames[c.Name] }

// Walk visits every element of g depth-first, including elements nested in
// OPTIONAL, UNION, MINUS and sub-groups. Returning false from fn stops the
// descent into that element's children.
func Walk(g *Group, fn func(Element) bool) {
	if g == nil {
		return
	}
	for _, el := range g.Elements {
		if !fn(el) {
			continue
		}
		switch e := el.(type) {
		case *Optional:
			Walk(e.Group, fn)
		case *Minus:
			Walk(e.Group, fn)
		case *Union:
			for _, sub := range e.Groups {
				Walk(sub, fn)
			}
		case *Group:
			Walk(e, fn)
		}
	}
}

// containsAggregate reports whether an expression uses an aggregate.
func containsAggregate(e Expr) bool {
	switch x := e.(type) {
	case *CallExpr:
		if x.IsAggregate() {
			return true
		}
		for _, a := range x.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case *BinaryExpr:
		return containsAggregate(x.Left) || containsAggregate(x.Right)
	case *UnaryExpr:
		return containsAggregate(x.X)
	case *InExpr:
		if containsAggregate(x.X) {
			return true
		}
		for _, a := range x.List {
			if containsAggregate(a) {
				return true
			}
		}
	}
	return false
}

// Vars returns the variables in the order they first appear in the WHERE
// clause, which is the column order for SELECT *.
func (q *Query) Vars() []string {
	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	Walk(q.Where, func(el Element) bool {
		switch e := el.(type) {
		case *TriplePattern:
			add(e.S.Var)
			add(e.P.Var)
			add(e.O.Var)
		case *Bind:
			add(e.Var)
		case *Values:
			for _, v := range e.Vars {
				add(v)
			}
		case *Minus:
			return false
		}
		return true
	})
	return out
}
