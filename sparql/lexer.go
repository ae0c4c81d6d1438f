package sparql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI           // <http://...>
	tokPName         // ex:name, ex:, :local
	tokVar           // ?x or $x
	tokString        // "..." or '...'
	tokLangTag       // @en
	tokInteger
	tokDecimal
	tokDouble
	tokWord // keywords, builtin names, 'a', true/false
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokIRI:
		return "IRI"
	case tokPName:
		return "prefixed name"
	case tokVar:
		return "variable"
	case tokString:
		return "string"
	case tokLangTag:
		return "language tag"
	case tokInteger, tokDecimal, tokDouble:
		return "number"
	case tokWord:
		return "keyword"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string // decoded value: IRI without brackets, var without '?', unescaped string
	pos  int
}

func (t token) is(kind tokenKind, text string) bool {
	if t.kind != kind {
		return false
	}
	if kind == tokWord {
		return strings.EqualFold(t.text, text)
	}
	return t.text == text
}

// SyntaxError reports a malformed query with the byte offset where parsing
// stopped.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sparql: syntax error at offset %d: %s", e.Pos, e.Msg)
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		lx.toks = append(lx.toks, tok)
		if tok.kind == tokEOF {
			return lx.toks, nil
		}
	}
}

func (lx *lexer) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: lx.pos, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) peekByte(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lx.pos++
		default:
			return
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpaceAndComments()
	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := lx.src[lx.pos]
	switch {
	case c == '<':
		if iri, ok := lx.scanIRI(); ok {
			return token{kind: tokIRI, text: iri, pos: start}, nil
		}
		if lx.peekByte(1) == '=' {
			lx.pos += 2
			return token{kind: tokPunct, text: "<=", pos: start}, nil
		}
		lx.pos++
		return token{kind: tokPunct, text: "<", pos: start}, nil

	case c == '?' || c == '$':
		lx.pos++
		name := lx.scanWhile(func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) })
		if name == "" {
			return token{}, lx.errorf("empty variable name")
		}
		return token{kind: tokVar, text: name, pos: start}, nil

	case c == '"' || c == '\'':
		s, err := lx.scanString(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil

	case c == '@':
		lx.pos++
		tag := lx.scanWhile(func(r rune) bool { return r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) })
		if tag == "" {
			return token{}, lx.errorf("empty language tag")
		}
		return token{kind: tokLangTag, text: tag, pos: start}, nil

	case isDigit(c) || (c == '.' && isDigit(lx.peekByte(1))):
		return lx.scanNumber(), nil

	case c == ':':
		lx.pos++
		local := lx.scanLocal()
		return token{kind: tokPName, text: ":" + local, pos: start}, nil

	case isNameStart(c):
		word := lx.scanName()
		if lx.peekByte(0) == ':' {
			lx.pos++
			local := lx.scanLocal()
			return token{kind: tokPName, text: word + ":" + local, pos: start}, nil
		}
		return token{kind: tokWord, text: word, pos: start}, nil
	}

	for _, op := range []string{"^^", "&&", "||", "!=", ">=", "<="} {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			return token{kind: tokPunct, text: op, pos: start}, nil
		}
	}
	if strings.ContainsRune("{}().;,*=<>!+-/[]|^", rune(c)) {
		lx.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.pos:])
	return token{}, lx.errorf("unexpected character %q", r)
}

// scanIRI consumes <...> when the bracketed text is a valid IRI reference.
// Otherwise the '<' is an operator and nothing is consumed.
func (lx *lexer) scanIRI() (string, bool) {
	end := lx.pos + 1
	for end < len(lx.src) {
		c := lx.src[end]
		if c == '>' {
			iri := lx.src[lx.pos+1 : end]
			lx.pos = end + 1
			return iri, true
		}
		if c <= ' ' || strings.IndexByte("<\"{}|^`\\", c) >= 0 {
			return "", false
		}
		end++
	}
	return "", false
}

func (lx *lexer) scanString(quote byte) (string, error) {
	long := strings.HasPrefix(lx.src[lx.pos:], strings.Repeat(string(quote), 3))
	if long {
		lx.pos += 3
	} else {
		lx.pos++
	}

	var b strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case long && strings.HasPrefix(lx.src[lx.pos:], strings.Repeat(string(quote), 3)):
			lx.pos += 3
			return b.String(), nil
		case !long && c == quote:
			lx.pos++
			return b.String(), nil
		case !long && (c == '\n' || c == '\r'):
			return "", lx.errorf("newline in string literal")
		case c == '\\':
			if lx.pos+1 >= len(lx.src) {
				return "", lx.errorf("unterminated escape")
			}
			esc := lx.src[lx.pos+1]
			lx.pos += 2
			switch esc {
			case 't':
				b.WriteByte('\t')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '"', '\'', '\\':
				b.WriteByte(esc)
			default:
				return "", lx.errorf("invalid escape \\%c", esc)
			}
		default:
			b.WriteByte(c)
			lx.pos++
		}
	}
	return "", lx.errorf("unterminated string literal")
}

func (lx *lexer) scanNumber() token {
	start := lx.pos
	kind := tokInteger
	for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
		lx.pos++
	}
	if lx.peekByte(0) == '.' && isDigit(lx.peekByte(1)) {
		kind = tokDecimal
		lx.pos++
		for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
			lx.pos++
		}
	}
	if c := lx.peekByte(0); c == 'e' || c == 'E' {
		save := lx.pos
		lx.pos++
		if c := lx.peekByte(0); c == '+' || c == '-' {
			lx.pos++
		}
		if isDigit(lx.peekByte(0)) {
			kind = tokDouble
			for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
				lx.pos++
			}
		} else {
			lx.pos = save
		}
	}
	return token{kind: kind, text: lx.src[start:lx.pos], pos: start}
}

func (lx *lexer) scanName() string {
	return lx.scanWhile(func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}

// scanLocal reads the local part of a prefixed name. Dots are allowed inside
// but never as the last character, so "ex:name ." ends the triple correctly.
func (lx *lexer) scanLocal() string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if r == '_' || r == '-' || r == ':' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			lx.pos += size
			continue
		}
		if r == '.' {
			nr, _ := utf8.DecodeRuneInString(lx.src[lx.pos+1:])
			if lx.pos+1 < len(lx.src) && (nr == '_' || nr == '-' || unicode.IsLetter(nr) || unicode.IsDigit(nr)) {
				lx.pos += size
				continue
			}
		}
		break
	}
	return lx.src[start:lx.pos]
}

func (lx *lexer) scanWhile(ok func(rune) bool) string {
	start := lx.pos
	for lx.pos < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[lx.pos:])
		if !ok(r) {
			break
		}
		lx.pos += size
	}
	return lx.src[start:lx.pos]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}
