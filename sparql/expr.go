package sparql

import (
	"math"
	"strconv"
	"strings"

	"github.com/brunobiangulo/fundgraph/graph"
)

var (
	trueTerm  = graph.Typed("true", graph.XSDBoolean)
	falseTerm = graph.Typed("false", graph.XSDBoolean)
)

func boolTerm(b bool) graph.Term {
	if b {
		return trueTerm
	}
	return falseTerm
}

func (ev *evaluator) eval(e Expr, row Binding) (graph.Term, error) {
	switch x := e.(type) {
	case *VarExpr:
		if t, ok := row[x.Name]; ok {
			return t, nil
		}
		return graph.Term{}, errEval

	case *TermExpr:
		return x.Node.Term, nil

	case *BinaryExpr:
		return ev.evalBinary(x, row)

	case *UnaryExpr:
		switch x.Op {
		case "!":
			b, err := ev.ebv(x.X, row)
			if err != nil {
				return graph.Term{}, err
			}
			return boolTerm(!b), nil
		case "-", "+":
			v, err := ev.eval(x.X, row)
			if err != nil {
				return graph.Term{}, err
			}
			f, ok := numericValue(v)
			if !ok {
				return graph.Term{}, errEval
			}
			if x.Op == "-" {
				f = -f
			}
			return numTerm(f, v.Datatype), nil
		}

	case *CallExpr:
		if x.IsAggregate() {
			return ev.evalAggregate(x)
		}
		return ev.call(x, row)

	case *InExpr:
		v, err := ev.eval(x.X, row)
		if err != nil {
			return graph.Term{}, err
		}
		found := false
		for _, item := range x.List {
			w, err := ev.eval(item, row)
			if err != nil {
				continue
			}
			if eq, err := equalTerms(v, w); err == nil && eq {
				found = true
				break
			}
		}
		return boolTerm(found != x.Not), nil

	case *ExistsExpr:
		sub := &evaluator{ctx: ev.ctx, ds: ev.ds}
		rows, err := sub.evalGroup(x.Group, []Binding{row})
		if err != nil {
			return graph.Term{}, err
		}
		return boolTerm((len(rows) > 0) != x.Not), nil
	}
	return graph.Term{}, errEval
}

func (ev *evaluator) evalBinary(x *BinaryExpr, row Binding) (graph.Term, error) {
	switch x.Op {
	case "||":
		lb, lerr := ev.ebv(x.Left, row)
		if lerr == nil && lb {
			return trueTerm, nil
		}
		rb, rerr := ev.ebv(x.Right, row)
		if rerr == nil && rb {
			return trueTerm, nil
		}
		if lerr != nil || rerr != nil {
			return graph.Term{}, errEval
		}
		return falseTerm, nil
	case "&&":
		lb, lerr := ev.ebv(x.Left, row)
		if lerr == nil && !lb {
			return falseTerm, nil
		}
		rb, rerr := ev.ebv(x.Right, row)
		if rerr == nil && !rb {
			return falseTerm, nil
		}
		if lerr != nil || rerr != nil {
			return graph.Term{}, errEval
		}
		return trueTerm, nil
	}

	l, err := ev.eval(x.Left, row)
	if err != nil {
		return graph.Term{}, err
	}
	r, err := ev.eval(x.Right, row)
	if err != nil {
		return graph.Term{}, err
	}

	switch x.Op {
	case "=", "!=":
		eq, err := equalTerms(l, r)
		if err != nil {
			return graph.Term{}, err
		}
		return boolTerm(eq == (x.Op == "=")), nil
	case "<", ">", "<=", ">=":
		c, err := compareValues(l, r)
		if err != nil {
			return graph.Term{}, err
		}
		switch x.Op {
		case "<":
			return boolTerm(c < 0), nil
		case ">":
			return boolTerm(c > 0), nil
		case "<=":
			return boolTerm(c <= 0), nil
		default:
			return boolTerm(c >= 0), nil
		}
	case "+", "-", "*", "/":
		a, ok1 := numericValue(l)
		b, ok2 := numericValue(r)
		if !ok1 || !ok2 {
			return graph.Term{}, errEval
		}
		dt := arithmeticType(l.Datatype, r.Datatype)
		var f float64
		switch x.Op {
		case "+":
			f = a + b
		case "-":
			f = a - b
		case "*":
			f = a * b
		case "/":
			if b == 0 && dt != graph.XSDDouble {
				return graph.Term{}, errEval
			}
			f = a / b
			if dt == graph.XSDInteger {
				dt = graph.XSDDecimal
			}
		}
		return numTerm(f, dt), nil
	}
	return graph.Term{}, errEval
}

// ebv computes the effective boolean value of an expression.
func (ev *evaluator) ebv(e Expr, row Binding) (bool, error) {
	v, err := ev.eval(e, row)
	if err != nil {
		return false, err
	}
	return effectiveBool(v)
}

func effectiveBool(v graph.Term) (bool, error) {
	if !v.IsLiteral() {
		return false, errEval
	}
	switch {
	case v.Datatype == graph.XSDBoolean:
		return v.Value == "true" || v.Value == "1", nil
	case graph.IsNumericType(v.Datatype):
		f, ok := numericValue(v)
		if !ok {
			return false, nil
		}
		return f != 0 && !math.IsNaN(f), nil
	case v.Datatype == "" || v.Lang != "":
		return v.Value != "", nil
	}
	return false, errEval
}

// numericValue returns the value of a numeric literal.
func numericValue(t graph.Term) (float64, bool) {
	if !t.IsLiteral() || !graph.IsNumericType(t.Datatype) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isIntegerType(dt string) bool {
	return dt != "" && graph.IsNumericType(dt) &&
		dt != graph.XSDDecimal && dt != graph.XSDDouble && dt != graph.XSDFloat
}

// arithmeticType is the datatype of a numeric operation's result under the
// usual promotion integer < decimal < float < double.
func arithmeticType(a, b string) string {
	rank := func(dt string) int {
		switch {
		case dt == graph.XSDDouble:
			return 3
		case dt == graph.XSDFloat:
			return 2
		case dt == graph.XSDDecimal:
			return 1
		default:
			return 0
		}
	}
	switch max(rank(a), rank(b)) {
	case 3:
		return graph.XSDDouble
	case 2:
		return graph.XSDFloat
	case 1:
		return graph.XSDDecimal
	}
	return graph.XSDInteger
}

// numTerm builds a numeric literal. Integer results use the integer lexical
// form; everything else the shortest decimal representation.
func numTerm(f float64, dt string) graph.Term {
	if dt == "" || !graph.IsNumericType(dt) {
		dt = graph.XSDDecimal
	}
	if isIntegerType(dt) {
		return graph.Typed(strconv.FormatInt(int64(f), 10), graph.XSDInteger)
	}
	return graph.Typed(strconv.FormatFloat(f, 'f', -1, 64), dt)
}

// equalTerms implements the = operator. Numbers compare by value, other
// literals by lexical form, datatype and language, resources by identity.
func equalTerms(a, b graph.Term) (bool, error) {
	if a.IsZero() || b.IsZero() {
		return false, errEval
	}
	if fa, ok := numericValue(a); ok {
		if fb, ok := numericValue(b); ok {
			return fa == fb, nil
		}
	}
	if a.Datatype == graph.XSDBoolean && b.Datatype == graph.XSDBoolean {
		ba, _ := effectiveBool(a)
		bb, _ := effectiveBool(b)
		return ba == bb, nil
	}
	return a == b, nil
}

// compareValues orders two values for < and friends. Numbers compare
// numerically; strings, dates and other literals of the same kind compare
// lexically.
func compareValues(a, b graph.Term) (int, error) {
	if !a.IsLiteral() || !b.IsLiteral() {
		return 0, errEval
	}
	if fa, ok := numericValue(a); ok {
		fb, ok := numericValue(b)
		if !ok {
			return 0, errEval
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	if graph.IsNumericType(b.Datatype) {
		return 0, errEval
	}
	if !comparableKinds(a.Datatype, b.Datatype) {
		return 0, errEval
	}
	return strings.Compare(a.Value, b.Value), nil
}

func comparableKinds(a, b string) bool {
	if a == b {
		return true
	}
	dateish := func(dt string) bool {
		return dt == graph.XSDDate || dt == graph.XSDDateTime
	}
	switch {
	case dateish(a) && dateish(b):
		return true
	case a == "" && dateish(b), b == "" && dateish(a):
		// "2020-01-01" against an xsd:date, as generated queries often write it
		return true
	}
	return false
}
