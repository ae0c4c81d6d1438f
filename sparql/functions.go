package sparql

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/brunobiangulo/fundgraph/graph"
)

// regexCache holds compiled REGEX/REPLACE patterns keyed by flags and source.
var regexCache sync.Map

func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	key := flags + "\x00" + pattern
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}
	var prefix string
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			prefix += string(f)
		case 'x', 'q':
			// no equivalent in RE2; ignored
		default:
			return nil, errEval
		}
	}
	src := pattern
	if prefix != "" {
		src = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, errEval
	}
	regexCache.Store(key, re)
	return re, nil
}

var datePrefix = regexp.MustCompile(`^(-?\d{4})(?:-(\d{2})(?:-(\d{2}))?)?`)

// dateParts extracts year, month and day from a date-like literal. Plain
// strings are accepted when they start with an ISO date.
func dateParts(t graph.Term) (year, month, day int, err error) {
	if !t.IsLiteral() {
		return 0, 0, 0, errEval
	}
	switch t.Datatype {
	case "", graph.XSDDate, graph.XSDDateTime, graph.XSDGYear, graph.NSXSD + "gYearMonth":
	default:
		return 0, 0, 0, errEval
	}
	m := datePrefix.FindStringSubmatch(strings.TrimSpace(t.Value))
	if m == nil {
		return 0, 0, 0, errEval
	}
	year, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		month, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
	}
	return year, month, day, nil
}

// stringArg returns the lexical form of a literal argument.
func stringArg(t graph.Term) (string, error) {
	if !t.IsLiteral() {
		return "", errEval
	}
	return t.Value, nil
}

// withValue returns a literal of the same kind as t carrying a new lexical form.
func withValue(t graph.Term, v string) graph.Term {
	out := t
	out.Value = v
	return out
}

func intTerm(n int) graph.Term { return graph.Typed(strconv.Itoa(n), graph.XSDInteger) }

func (ev *evaluator) call(c *CallExpr, row Binding) (graph.Term, error) {
	if c.IRI != "" {
		return ev.cast(c, row)
	}

	// functions with lazy argument evaluation
	switch c.Name {
	case "BOUND":
		v, ok := c.Args[0].(*VarExpr)
		if !ok {
			return graph.Term{}, errEval
		}
		_, bound := row[v.Name]
		return boolTerm(bound), nil
	case "COALESCE":
		for _, a := range c.Args {
			if v, err := ev.eval(a, row); err == nil {
				return v, nil
			}
		}
		return graph.Term{}, errEval
	case "IF":
		if len(c.Args) != 3 {
			return graph.Term{}, errEval
		}
		cond, err := ev.ebv(c.Args[0], row)
		if err != nil {
			return graph.Term{}, err
		}
		if cond {
			return ev.eval(c.Args[1], row)
		}
		return ev.eval(c.Args[2], row)
	}

	args := make([]graph.Term, len(c.Args))
	for i, a := range c.Args {
		v, err := ev.eval(a, row)
		if err != nil {
			return graph.Term{}, err
		}
		args[i] = v
	}
	arity := func(min, max int) bool { return len(args) >= min && len(args) <= max }

	switch c.Name {
	case "STR":
		if !arity(1, 1) || args[0].IsBlank() {
			return graph.Term{}, errEval
		}
		return graph.Literal(args[0].Value), nil

	case "LANG":
		if !arity(1, 1) || !args[0].IsLiteral() {
			return graph.Term{}, errEval
		}
		return graph.Literal(args[0].Lang), nil

	case "LANGMATCHES":
		if !arity(2, 2) {
			return graph.Term{}, errEval
		}
		tag, rng := strings.ToLower(args[0].Value), strings.ToLower(args[1].Value)
		if rng == "*" {
			return boolTerm(tag != ""), nil
		}
		return boolTerm(tag == rng || strings.HasPrefix(tag, rng+"-")), nil

	case "DATATYPE":
		if !arity(1, 1) || !args[0].IsLiteral() {
			return graph.Term{}, errEval
		}
		switch {
		case args[0].Lang != "":
			return graph.IRI(graph.RDFLangString), nil
		case args[0].Datatype == "":
			return graph.IRI(graph.XSDString), nil
		}
		return graph.IRI(args[0].Datatype), nil

	case "IRI", "URI":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		return graph.IRI(args[0].Value), nil

	case "ABS", "CEIL", "FLOOR", "ROUND":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		f, ok := numericValue(args[0])
		if !ok {
			return graph.Term{}, errEval
		}
		switch c.Name {
		case "ABS":
			f = math.Abs(f)
		case "CEIL":
			f = math.Ceil(f)
		case "FLOOR":
			f = math.Floor(f)
		case "ROUND":
			f = math.Floor(f + 0.5)
		}
		return numTerm(f, args[0].Datatype), nil

	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			s, err := stringArg(a)
			if err != nil {
				return graph.Term{}, err
			}
			b.WriteString(s)
		}
		return graph.Literal(b.String()), nil

	case "STRLEN":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		return intTerm(utf8.RuneCountInString(s)), nil

	case "UCASE", "LCASE":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		if c.Name == "UCASE" {
			return withValue(args[0], strings.ToUpper(s)), nil
		}
		return withValue(args[0], strings.ToLower(s)), nil

	case "CONTAINS", "STRSTARTS", "STRENDS", "STRBEFORE", "STRAFTER":
		if !arity(2, 2) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		sub, err := stringArg(args[1])
		if err != nil {
			return graph.Term{}, err
		}
		switch c.Name {
		case "CONTAINS":
			return boolTerm(strings.Contains(s, sub)), nil
		case "STRSTARTS":
			return boolTerm(strings.HasPrefix(s, sub)), nil
		case "STRENDS":
			return boolTerm(strings.HasSuffix(s, sub)), nil
		case "STRBEFORE":
			before, _, found := strings.Cut(s, sub)
			if !found {
				return graph.Literal(""), nil
			}
			return withValue(args[0], before), nil
		default:
			_, after, found := strings.Cut(s, sub)
			if !found {
				return graph.Literal(""), nil
			}
			return withValue(args[0], after), nil
		}

	case "SUBSTR":
		if !arity(2, 3) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		runes := []rune(s)
		startF, ok := numericValue(args[1])
		if !ok {
			return graph.Term{}, errEval
		}
		start := int(math.Round(startF)) - 1
		end := len(runes)
		if len(args) == 3 {
			n, ok := numericValue(args[2])
			if !ok {
				return graph.Term{}, errEval
			}
			end = start + int(math.Round(n))
		}
		start = max(start, 0)
		end = min(end, len(runes))
		if start >= end {
			return withValue(args[0], ""), nil
		}
		return withValue(args[0], string(runes[start:end])), nil

	case "REGEX":
		if !arity(2, 3) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		flags := ""
		if len(args) == 3 {
			flags = args[2].Value
		}
		re, err := compileRegex(args[1].Value, flags)
		if err != nil {
			return graph.Term{}, err
		}
		return boolTerm(re.MatchString(s)), nil

	case "REPLACE":
		if !arity(3, 4) {
			return graph.Term{}, errEval
		}
		s, err := stringArg(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		flags := ""
		if len(args) == 4 {
			flags = args[3].Value
		}
		re, err := compileRegex(args[1].Value, flags)
		if err != nil {
			return graph.Term{}, err
		}
		return withValue(args[0], re.ReplaceAllString(s, args[2].Value)), nil

	case "YEAR", "MONTH", "DAY":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		y, m, d, err := dateParts(args[0])
		if err != nil {
			return graph.Term{}, err
		}
		switch c.Name {
		case "YEAR":
			return intTerm(y), nil
		case "MONTH":
			if m == 0 {
				return graph.Term{}, errEval
			}
			return intTerm(m), nil
		default:
			if d == 0 {
				return graph.Term{}, errEval
			}
			return intTerm(d), nil
		}

	case "ISIRI", "ISURI":
		return boolTerm(arity(1, 1) && args[0].IsIRI()), nil
	case "ISBLANK":
		return boolTerm(arity(1, 1) && args[0].IsBlank()), nil
	case "ISLITERAL":
		return boolTerm(arity(1, 1) && args[0].IsLiteral()), nil
	case "ISNUMERIC":
		if !arity(1, 1) {
			return graph.Term{}, errEval
		}
		_, ok := numericValue(args[0])
		return boolTerm(ok), nil

	case "SAMETERM":
		if !arity(2, 2) {
			return graph.Term{}, errEval
		}
		return boolTerm(args[0] == args[1]), nil

	case "STRDT":
		if !arity(2, 2) || !args[1].IsIRI() {
			return graph.Term{}, errEval
		}
		return graph.Typed(args[0].Value, args[1].Value), nil

	case "STRLANG":
		if !arity(2, 2) {
			return graph.Term{}, errEval
		}
		return graph.LangLiteral(args[0].Value, args[1].Value), nil
	}
	return graph.Term{}, errEval
}

// cast implements the XSD constructor functions, e.g. xsd:integer(?amount).
func (ev *evaluator) cast(c *CallExpr, row Binding) (graph.Term, error) {
	if len(c.Args) != 1 {
		return graph.Term{}, errEval
	}
	v, err := ev.eval(c.Args[0], row)
	if err != nil {
		return graph.Term{}, err
	}
	if v.IsBlank() {
		return graph.Term{}, errEval
	}
	lex := strings.TrimSpace(v.Value)

	switch c.IRI {
	case graph.XSDString:
		return graph.Literal(v.Value), nil
	case graph.XSDInteger, graph.XSDInt, graph.XSDLong:
		f, err := strconv.ParseFloat(lex, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return graph.Term{}, errEval
		}
		return graph.Typed(strconv.FormatInt(int64(f), 10), c.IRI), nil
	case graph.XSDDecimal, graph.XSDDouble, graph.XSDFloat:
		f, err := strconv.ParseFloat(lex, 64)
		if err != nil {
			return graph.Term{}, errEval
		}
		return numTerm(f, c.IRI), nil
	case graph.XSDBoolean:
		switch strings.ToLower(lex) {
		case "true", "1":
			return trueTerm, nil
		case "false", "0":
			return falseTerm, nil
		}
		if f, ok := numericValue(v); ok {
			return boolTerm(f != 0), nil
		}
		return graph.Term{}, errEval
	case graph.XSDDate, graph.XSDDateTime, graph.XSDGYear:
		if _, _, _, err := dateParts(graph.Literal(lex)); err != nil {
			return graph.Term{}, err
		}
		return graph.Typed(lex, c.IRI), nil
	}
	return graph.Term{}, errEval
}
