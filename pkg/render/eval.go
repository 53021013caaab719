package render

import (
	"fmt"
	"strconv"
	"strings"
)

// eval resolves a template expression against the variable environment.
// Expressions cover what recipe templates actually use: literals, variable
// references, attribute and index lookups, data.get with an optional
// default, and a small set of filters.
func (e *env) eval(expr string) (any, error) {
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{env: e, toks: toks, expr: expr}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected %q in expression %q", p.peek().text, expr)
	}
	return v, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '\'' || c == '"':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				return nil, fmt.Errorf("unterminated string in expression %q", s)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+j]})
			i += j + 2
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		case strings.IndexByte(".[](),|", c) >= 0:
			toks = append(toks, token{tokPunct, string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in expression %q", string(c), s)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

type parser struct {
	env  *env
	toks []token
	pos  int
	expr string
}

func (p *parser) done() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) peek() token {
	if p.done() {
		return token{tokPunct, ""}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(text string) error {
	if t := p.next(); t.text != text {
		return fmt.Errorf("expected %q, found %q in expression %q", text, t.text, p.expr)
	}
	return nil
}

func (p *parser) parseExpr() (any, error) {
	v, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().text == "|" {
		p.next()
		name := p.next()
		if name.kind != tokIdent {
			return nil, fmt.Errorf("expected filter name after '|' in expression %q", p.expr)
		}
		var args []any
		if !p.done() && p.peek().text == "(" {
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		v, err = applyFilter(name.text, v, args)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (p *parser) parsePrimary() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return p.parsePostfix(t.text)
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q in expression %q", t.text, p.expr)
			}
			return f, nil
		}
		n, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q in expression %q", t.text, p.expr)
		}
		return n, nil
	case tokIdent:
		v, ok := p.env.vars[t.text]
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", t.text)
		}
		return p.parsePostfix(v)
	}
	return nil, fmt.Errorf("unexpected %q in expression %q", t.text, p.expr)
}

func (p *parser) parsePostfix(v any) (any, error) {
	for !p.done() {
		switch p.peek().text {
		case ".":
			p.next()
			attr := p.next()
			if attr.kind != tokIdent {
				return nil, fmt.Errorf("expected attribute name after '.' in expression %q", p.expr)
			}
			if attr.text == "get" && !p.done() && p.peek().text == "(" {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				got, err := p.callGet(v, args)
				if err != nil {
					return nil, err
				}
				v = got
				continue
			}
			got, err := p.lookup(v, attr.text)
			if err != nil {
				return nil, err
			}
			v = got
		case "[":
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			got, err := p.index(v, key)
			if err != nil {
				return nil, err
			}
			v = got
		default:
			return v, nil
		}
	}
	return v, nil
}

func (p *parser) parseArgs() ([]any, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []any
	if p.peek().text == ")" {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch t := p.next(); t.text {
		case ",":
		case ")":
			return args, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' in expression %q, found %q", p.expr, t.text)
		}
	}
}

// callGet implements data.get(key) and data.get(key, default). Without a
// default, a missing key is an error.
func (p *parser) callGet(v any, args []any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("get() on %s in expression %q", typeName(v), p.expr)
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("get() takes 1 or 2 arguments, got %d in expression %q", len(args), p.expr)
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("get() key must be a string in expression %q", p.expr)
	}
	if got, ok := m[key]; ok {
		return got, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return nil, fmt.Errorf("key %q not found", key)
}

func (p *parser) lookup(v any, key string) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot access %q on %s in expression %q", key, typeName(v), p.expr)
	}
	got, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return got, nil
}

func (p *parser) index(v, key any) (any, error) {
	switch c := v.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string in expression %q", p.expr)
		}
		got, ok := c[k]
		if !ok {
			return nil, fmt.Errorf("key %q not found", k)
		}
		return got, nil
	case []any:
		i, ok := key.(int)
		if !ok {
			return nil, fmt.Errorf("list index must be an integer in expression %q", p.expr)
		}
		if i < 0 || i >= len(c) {
			return nil, fmt.Errorf("list index %d out of range in expression %q", i, p.expr)
		}
		return c[i], nil
	}
	return nil, fmt.Errorf("cannot index %s in expression %q", typeName(v), p.expr)
}

func applyFilter(name string, v any, args []any) (any, error) {
	switch name {
	case "lower":
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("filter lower: %w", err)
		}
		return strings.ToLower(s), nil
	case "upper":
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("filter upper: %w", err)
		}
		return strings.ToUpper(s), nil
	case "trim":
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("filter trim: %w", err)
		}
		return strings.TrimSpace(s), nil
	case "replace":
		if len(args) != 2 {
			return nil, fmt.Errorf("filter replace takes 2 arguments, got %d", len(args))
		}
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("filter replace: %w", err)
		}
		oldStr, ok1 := args[0].(string)
		newStr, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("filter replace arguments must be strings")
		}
		return strings.ReplaceAll(s, oldStr, newStr), nil
	case "join":
		sep := ", "
		if len(args) == 1 {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("filter join separator must be a string")
			}
			sep = s
		} else if len(args) > 1 {
			return nil, fmt.Errorf("filter join takes at most 1 argument, got %d", len(args))
		}
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("filter join requires a list, got %s", typeName(v))
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, err := stringify(item)
			if err != nil {
				return nil, fmt.Errorf("filter join: %w", err)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep), nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

// stringify renders a scalar value into manifest text.
func stringify(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int:
		return strconv.Itoa(s), nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	}
	return "", fmt.Errorf("cannot render %s as text", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case int, float64:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "a mapping"
	}
	return fmt.Sprintf("%T", v)
}
