package sparql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
)

// DefaultPrefixes are resolved when a query uses one of these prefixes
// without declaring it. The graph is always published with these bindings.
var DefaultPrefixes = map[string]string{
	"ex":   graph.NSEx,
	"res":  graph.NSRes,
	"rdf":  graph.NSRDF,
	"rdfs": graph.NSRDFS,
	"xsd":  graph.NSXSD,
}

var builtinNames = map[string]bool{
	"STR": true, "LANG": true, "LANGMATCHES": true, "DATATYPE": true, "BOUND": true,
	"IRI": true, "URI": true, "ABS": true, "CEIL": true, "FLOOR": true, "ROUND": true,
	"CONCAT": true, "STRLEN": true, "UCASE": true, "LCASE": true, "CONTAINS": true,
	"STRSTARTS": true, "STRENDS": true, "STRBEFORE": true, "STRAFTER": true,
	"SUBSTR": true, "REPLACE": true, "REGEX": true, "YEAR": true, "MONTH": true,
	"DAY": true, "COALESCE": true, "IF": true, "ISIRI": true, "ISURI": true,
	"ISBLANK": true, "ISLITERAL": true, "ISNUMERIC": true, "SAMETERM": true,
	"STRDT": true, "STRLANG": true,
}

// Parse parses a SELECT query.
func Parse(src string) (*Query, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, declared: map[string]string{}}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

type parser struct {
	toks     []token
	i        int
	declared map[string]string
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(off int) token {
	if p.i+off < len(p.toks) {
		return p.toks[p.i+off]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().is(kind, text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if !p.accept(kind, text) {
		return p.errorf("expected %q, found %s", text, describe(p.peek()))
	}
	return nil
}

func (p *parser) word(w string) bool { return p.peek().is(tokWord, w) }

func (p *parser) punct(s string) bool { return p.peek().is(tokPunct, s) }

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of query"
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{Limit: -1, Offset: -1}

	for {
		switch {
		case p.word("PREFIX"):
			p.advance()
			name := p.advance()
			if name.kind != tokPName || !strings.HasSuffix(name.text, ":") {
				return nil, p.errorf("expected prefix name after PREFIX")
			}
			iri := p.advance()
			if iri.kind != tokIRI {
				return nil, p.errorf("expected IRI for prefix %s", name.text)
			}
			prefix := strings.TrimSuffix(name.text, ":")
			p.declared[prefix] = iri.text
			q.Prefixes = append(q.Prefixes, Prefix{Name: prefix, IRI: iri.text})
			continue
		case p.word("BASE"):
			p.advance()
			if p.advance().kind != tokIRI {
				return nil, p.errorf("expected IRI after BASE")
			}
			continue
		}
		break
	}

	if !p.word("SELECT") {
		if t := p.peek(); t.kind == tokWord {
			return nil, p.errorf("unsupported query form %s", strings.ToUpper(t.text))
		}
		return nil, p.errorf("expected SELECT, found %s", describe(p.peek()))
	}
	p.advance()

	if p.accept(tokWord, "DISTINCT") {
		q.Distinct = true
	} else if p.accept(tokWord, "REDUCED") {
		q.Reduced = true
	}

	if p.accept(tokPunct, "*") {
		q.Star = true
	} else {
		for {
			if t := p.peek(); t.kind == tokVar {
				p.advance()
				q.Projection = append(q.Projection, Projection{Var: t.text})
				continue
			}
			if p.punct("(") {
				p.advance()
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expect(tokWord, "AS"); err != nil {
					return nil, err
				}
				v := p.advance()
				if v.kind != tokVar {
					return nil, p.errorf("expected variable after AS")
				}
				if err := p.expect(tokPunct, ")"); err != nil {
					return nil, err
				}
				q.Projection = append(q.Projection, Projection{Var: v.text, Expr: e})
				continue
			}
			break
		}
		if len(q.Projection) == 0 {
			return nil, p.errorf("SELECT needs at least one variable or *")
		}
	}

	if p.word("FROM") {
		return nil, p.errorf("FROM clauses are not supported")
	}

	p.accept(tokWord, "WHERE")
	where, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	q.Where = where

	if err := p.parseModifiers(q); err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf("unexpected %s after end of query", describe(t))
	}
	return q, nil
}

func (p *parser) parseModifiers(q *Query) error {
	if p.word("GROUP") {
		p.advance()
		if err := p.expect(tokWord, "BY"); err != nil {
			return err
		}
		for {
			cond, ok, err := p.parseGroupCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			q.GroupBy = append(q.GroupBy, cond)
		}
		if len(q.GroupBy) == 0 {
			return p.errorf("GROUP BY needs at least one condition")
		}
	}

	if p.accept(tokWord, "HAVING") {
		for p.punct("(") || p.isCallStart() {
			e, err := p.parseConstraint()
			if err != nil {
				return err
			}
			q.Having = append(q.Having, e)
		}
		if len(q.Having) == 0 {
			return p.errorf("HAVING needs at least one constraint")
		}
	}

	if p.word("ORDER") {
		p.advance()
		if err := p.expect(tokWord, "BY"); err != nil {
			return err
		}
		for {
			cond, ok, err := p.parseOrderCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			q.OrderBy = append(q.OrderBy, cond)
		}
		if len(q.OrderBy) == 0 {
			return p.errorf("ORDER BY needs at least one condition")
		}
	}

	for p.word("LIMIT") || p.word("OFFSET") {
		kw := strings.ToUpper(p.advance().text)
		t := p.advance()
		if t.kind != tokInteger {
			return p.errorf("expected integer after %s", kw)
		}
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return p.errorf("invalid %s value %q", kw, t.text)
		}
		if kw == "LIMIT" {
			q.Limit = n
		} else {
			q.Offset = n
		}
	}
	return nil
}

func (p *parser) parseGroupCondition() (Projection, bool, error) {
	t := p.peek()
	switch {
	case t.kind == tokVar:
		p.advance()
		return Projection{Expr: &VarExpr{Name: t.text}}, true, nil
	case t.is(tokPunct, "("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return Projection{}, false, err
		}
		cond := Projection{Expr: e}
		if p.accept(tokWord, "AS") {
			v := p.advance()
			if v.kind != tokVar {
				return Projection{}, false, p.errorf("expected variable after AS")
			}
			cond.Var = v.text
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return Projection{}, false, err
		}
		return cond, true, nil
	case p.isCallStart():
		e, err := p.parsePrimary()
		if err != nil {
			return Projection{}, false, err
		}
		return Projection{Expr: e}, true, nil
	}
	return Projection{}, false, nil
}

func (p *parser) parseOrderCondition() (OrderCond, bool, error) {
	t := p.peek()
	switch {
	case t.is(tokWord, "ASC") || t.is(tokWord, "DESC"):
		p.advance()
		if !p.punct("(") {
			return OrderCond{}, false, p.errorf("expected ( after %s", strings.ToUpper(t.text))
		}
		e, err := p.parseBracketted()
		if err != nil {
			return OrderCond{}, false, err
		}
		return OrderCond{Expr: e, Desc: strings.EqualFold(t.text, "DESC")}, true, nil
	case t.kind == tokVar:
		p.advance()
		return OrderCond{Expr: &VarExpr{Name: t.text}}, true, nil
	case t.is(tokPunct, "("), p.isCallStart():
		e, err := p.parseConstraint()
		if err != nil {
			return OrderCond{}, false, err
		}
		return OrderCond{Expr: e}, true, nil
	}
	return OrderCond{}, false, nil
}

// isCallStart reports whether the next tokens begin a builtin or IRI
// function call.
func (p *parser) isCallStart() bool {
	t := p.peek()
	next := p.peekAt(1)
	switch t.kind {
	case tokWord:
		name := strings.ToUpper(t.text)
		if name == "NOT" || name == "EXISTS" {
			return true
		}
		return (builtinNames[name] || aggregateNames[name]) && next.is(tokPunct, "(")
	case tokPName, tokIRI:
		return next.is(tokPunct, "(")
	}
	return false
}

func (p *parser) parseGroup() (*Group, error) {
	if err := p.expect(tokPunct, "{"); err != nil {
		return nil, err
	}
	g := &Group{}
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return nil, p.errorf("unterminated group: missing }")
		case t.is(tokPunct, "}"):
			p.advance()
			return g, nil
		case t.is(tokPunct, "."):
			p.advance()
		case t.is(tokWord, "OPTIONAL"):
			p.advance()
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, &Optional{Group: sub})
		case t.is(tokWord, "MINUS"):
			p.advance()
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, &Minus{Group: sub})
		case t.is(tokWord, "FILTER"):
			p.advance()
			e, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, &Filter{Expr: e})
		case t.is(tokWord, "BIND"):
			p.advance()
			b, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, b)
		case t.is(tokWord, "VALUES"):
			p.advance()
			v, err := p.parseValues()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, v)
		case t.is(tokWord, "GRAPH"), t.is(tokWord, "SERVICE"):
			return nil, p.errorf("%s patterns are not supported", strings.ToUpper(t.text))
		case t.is(tokPunct, "{"):
			if p.peekAt(1).is(tokWord, "SELECT") {
				return nil, p.errorf("sub-queries are not supported")
			}
			first, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			if !p.word("UNION") {
				g.Elements = append(g.Elements, first)
				continue
			}
			u := &Union{Groups: []*Group{first}}
			for p.accept(tokWord, "UNION") {
				next, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				u.Groups = append(u.Groups, next)
			}
			g.Elements = append(g.Elements, u)
		default:
			patterns, err := p.parseTriplesSameSubject()
			if err != nil {
				return nil, err
			}
			for _, tp := range patterns {
				g.Elements = append(g.Elements, tp)
			}
			if !p.punct(".") && !p.punct("}") && !p.isGroupKeyword() {
				return nil, p.errorf("expected . or } after triple pattern, found %s", describe(p.peek()))
			}
		}
	}
}

func (p *parser) isGroupKeyword() bool {
	for _, kw := range []string{"OPTIONAL", "FILTER", "BIND", "VALUES", "MINUS"} {
		if p.word(kw) {
			return true
		}
	}
	return p.punct("{")
}

func (p *parser) parseBind() (*Bind, error) {
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokWord, "AS"); err != nil {
		return nil, err
	}
	v := p.advance()
	if v.kind != tokVar {
		return nil, p.errorf("expected variable after AS")
	}
	if err := p.expect(tokPunct, ")"); err != nil {
		return nil, err
	}
	return &Bind{Expr: e, Var: v.text}, nil
}

func (p *parser) parseValues() (*Values, error) {
	v := &Values{}
	single := false
	if t := p.peek(); t.kind == tokVar {
		p.advance()
		v.Vars = []string{t.text}
		single = true
	} else {
		if err := p.expect(tokPunct, "("); err != nil {
			return nil, err
		}
		for p.peek().kind == tokVar {
			v.Vars = append(v.Vars, p.advance().text)
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
	}

	if err := p.expect(tokPunct, "{"); err != nil {
		return nil, err
	}
	for !p.accept(tokPunct, "}") {
		if single {
			n, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			v.Rows = append(v.Rows, []Node{n})
			continue
		}
		if err := p.expect(tokPunct, "("); err != nil {
			return nil, err
		}
		var row []Node
		for !p.accept(tokPunct, ")") {
			n, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			row = append(row, n)
		}
		if len(row) != len(v.Vars) {
			return nil, p.errorf("VALUES row has %d values, want %d", len(row), len(v.Vars))
		}
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

func (p *parser) parseDataValue() (Node, error) {
	if p.accept(tokWord, "UNDEF") {
		return Node{}, nil
	}
	if p.peek().kind == tokVar {
		return Node{}, p.errorf("variables are not allowed in VALUES data")
	}
	return p.parseTerm()
}

func (p *parser) parseTriplesSameSubject() ([]*TriplePattern, error) {
	subj, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if subj.Term.IsLiteral() {
		return nil, p.errorf("literal cannot be a subject")
	}

	var out []*TriplePattern
	for {
		verb, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			obj, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			out = append(out, &TriplePattern{S: subj, P: verb, O: obj})
			if !p.accept(tokPunct, ",") {
				break
			}
		}
		if !p.accept(tokPunct, ";") {
			return out, nil
		}
		for p.accept(tokPunct, ";") {
		}
		if p.punct(".") || p.punct("}") {
			return out, nil
		}
	}
}

func (p *parser) parseVerb() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokWord:
		if t.text == "a" {
			p.advance()
			return Node{Term: graph.RDFType, A: true}, nil
		}
	case tokVar:
		p.advance()
		return VarNode(t.text), nil
	case tokIRI, tokPName:
		return p.parseTerm()
	}
	return Node{}, p.errorf("expected predicate, found %s", describe(t))
}

// parseTerm parses a variable, IRI, prefixed name or literal.
func (p *parser) parseTerm() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokVar:
		p.advance()
		return VarNode(t.text), nil
	case tokIRI:
		p.advance()
		return Node{Term: graph.IRI(t.text)}, nil
	case tokPName:
		p.advance()
		if strings.HasPrefix(t.text, "_:") {
			return Node{}, p.errorf("blank nodes are not supported in patterns")
		}
		iri, err := p.resolve(t)
		if err != nil {
			return Node{}, err
		}
		return Node{Term: graph.IRI(iri), PName: t.text}, nil
	case tokString:
		p.advance()
		return p.parseLiteralSuffix(t.text)
	case tokInteger, tokDecimal, tokDouble:
		p.advance()
		return numberNode(t, ""), nil
	case tokPunct:
		if (t.text == "-" || t.text == "+") && isNumberTok(p.peekAt(1)) {
			p.advance()
			n := p.advance()
			sign := ""
			if t.text == "-" {
				sign = "-"
			}
			return numberNode(n, sign), nil
		}
		if t.text == "[" {
			return Node{}, p.errorf("blank nodes are not supported in patterns")
		}
	case tokWord:
		switch strings.ToLower(t.text) {
		case "true", "false":
			p.advance()
			return Node{Term: graph.Typed(strings.ToLower(t.text), graph.XSDBoolean)}, nil
		}
	}
	return Node{}, p.errorf("expected term, found %s", describe(t))
}

func (p *parser) parseLiteralSuffix(lex string) (Node, error) {
	if t := p.peek(); t.kind == tokLangTag {
		p.advance()
		return Node{Term: graph.LangLiteral(lex, t.text)}, nil
	}
	if p.accept(tokPunct, "^^") {
		dt := p.advance()
		switch dt.kind {
		case tokIRI:
			return Node{Term: graph.Typed(lex, dt.text)}, nil
		case tokPName:
			iri, err := p.resolve(dt)
			if err != nil {
				return Node{}, err
			}
			n := Node{Term: graph.Typed(lex, iri)}
			if n.Term.Datatype != "" {
				n.DTName = dt.text
			}
			return n, nil
		default:
			return Node{}, p.errorf("expected datatype after ^^")
		}
	}
	return Node{Term: graph.Literal(lex)}, nil
}

func isNumberTok(t token) bool {
	return t.kind == tokInteger || t.kind == tokDecimal || t.kind == tokDouble
}

func numberNode(t token, sign string) Node {
	dt := graph.XSDInteger
	switch t.kind {
	case tokDecimal:
		dt = graph.XSDDecimal
	case tokDouble:
		dt = graph.XSDDouble
	}
	return Node{Term: graph.Typed(sign+t.text, dt)}
}

func (p *parser) resolve(t token) (string, error) {
	prefix, local, _ := strings.Cut(t.text, ":")
	if ns, ok := p.declared[prefix]; ok {
		return ns + local, nil
	}
	if ns, ok := DefaultPrefixes[prefix]; ok {
		return ns + local, nil
	}
	return "", &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("undeclared prefix %q", prefix)}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *parser) parseConstraint() (Expr, error) {
	if p.punct("(") {
		return p.parseBracketted()
	}
	if p.isCallStart() {
		return p.parsePrimary()
	}
	return nil, p.errorf("expected constraint, found %s", describe(p.peek()))
}

func (p *parser) parseBracketted() (Expr, error) {
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokPunct, ")"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokPunct, "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.accept(tokPunct, "&&") {
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokPunct {
		switch t.text {
		case "=", "!=", "<", ">", "<=", ">=":
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &BinaryExpr{Op: t.text, Left: left, Right: right}, nil
		}
	}
	not := false
	if p.word("NOT") && p.peekAt(1).is(tokWord, "IN") {
		p.advance()
		not = true
	}
	if p.accept(tokWord, "IN") {
		list, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return &InExpr{X: left, List: list, Not: not}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.punct("+") || p.punct("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.punct("*") || p.punct("/") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	for _, op := range []string{"!", "-", "+"} {
		if p.punct(op) {
			p.advance()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &UnaryExpr{Op: op, X: x}, nil
		}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokPunct:
		if t.text == "(" {
			return p.parseBracketted()
		}
	case tokVar:
		p.advance()
		return &VarExpr{Name: t.text}, nil
	case tokString, tokInteger, tokDecimal, tokDouble:
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &TermExpr{Node: n}, nil
	case tokIRI, tokPName:
		if p.peekAt(1).is(tokPunct, "(") {
			p.advance()
			iri := t.text
			name := "<" + t.text + ">"
			if t.kind == tokPName {
				resolved, err := p.resolve(t)
				if err != nil {
					return nil, err
				}
				iri, name = resolved, t.text
			}
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &CallExpr{Name: name, IRI: iri, Args: args}, nil
		}
		n, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &TermExpr{Node: n}, nil
	case tokWord:
		name := strings.ToUpper(t.text)
		switch {
		case name == "TRUE" || name == "FALSE":
			n, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return &TermExpr{Node: n}, nil
		case name == "EXISTS":
			p.advance()
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			return &ExistsExpr{Group: g}, nil
		case name == "NOT" && p.peekAt(1).is(tokWord, "EXISTS"):
			p.advance()
			p.advance()
			g, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			return &ExistsExpr{Group: g, Not: true}, nil
		case aggregateNames[name]:
			return p.parseAggregate(name)
		case builtinNames[name]:
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			if name == "BOUND" {
				if len(args) != 1 {
					return nil, p.errorf("BOUND takes one variable")
				}
				if _, ok := args[0].(*VarExpr); !ok {
					return nil, p.errorf("BOUND takes a variable")
				}
			}
			return &CallExpr{Name: name, Args: args}, nil
		default:
			if p.peekAt(1).is(tokPunct, "(") {
				return nil, p.errorf("unknown function %s", t.text)
			}
		}
	}
	return nil, p.errorf("unexpected %s in expression", describe(t))
}

func (p *parser) parseArgList() ([]Expr, error) {
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	var args []Expr
	if p.accept(tokPunct, ")") {
		return args, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.accept(tokPunct, ")") {
			return args, nil
		}
		if err := p.expect(tokPunct, ","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseAggregate(name string) (Expr, error) {
	p.advance()
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	call := &CallExpr{Name: name}
	if p.accept(tokWord, "DISTINCT") {
		call.Distinct = true
	}
	if name == "COUNT" && p.accept(tokPunct, "*") {
		call.Star = true
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = []Expr{e}
	}
	if name == "GROUP_CONCAT" && p.accept(tokPunct, ";") {
		if err := p.expect(tokWord, "SEPARATOR"); err != nil {
			return nil, err
		}
		if err := p.expect(tokPunct, "="); err != nil {
			return nil, err
		}
		sep := p.advance()
		if sep.kind != tokString {
			return nil, p.errorf("expected string separator")
		}
		call.Separator = sep.text
		call.HasSep = true
	}
	if err := p.expect(tokPunct, ")"); err != nil {
		return nil, err
	}
	return call, nil
}
