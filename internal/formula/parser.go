package formula

import "strconv"

// maxDepth bounds expression nesting so hostile input cannot exhaust the stack.
const maxDepth = 200

// binary operator precedence levels, lowest first.
var precedence = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

// parse builds an expression tree from a whitelisted token stream.
func parse(toks []token) (Node, error) {
	p := &parser{toks: toks}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, newSyntaxError(t.pos, t.text, "unexpected token after end of expression")
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		if t.kind == tokEOF {
			return t, newSyntaxError(t.pos, "", "expected %s, found end of formula", what)
		}
		return t, newSyntaxError(t.pos, t.text, "expected %s", what)
	}
	return t, nil
}

// expression := or ('?' expression ':' expression)?
func (p *parser) expression() (Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		t := p.peek()
		return nil, newSyntaxError(t.pos, t.text, "expression nested too deeply")
	}

	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuest {
		return cond, nil
	}
	p.next()
	then, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, "':' in conditional expression"); err != nil {
		return nil, err
	}
	els, err := p.expression()
	if err != nil {
		return nil, err
	}
	return Ternary{Cond: cond, Then: then, Else: els}, nil
}

// binary parses left-associative operators at the given precedence level.
func (p *parser) binary(level int) (Node, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || !contains(precedence[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: t.text, Left: left, Right: right}
	}
}

// unary := ('+' | '-') unary | primary
func (p *parser) unary() (Node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.next()
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, newSyntaxError(t.pos, t.text, "expression nested too deeply")
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: t.text, Operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, newSyntaxError(t.pos, t.text, "invalid number")
		}
		return NumberLiteral{Value: v, Text: t.text}, nil

	case tokIdent:
		if ch, ok := channelIndex(t.text); ok {
			if p.peek().kind == tokLParen {
				return nil, newSyntaxError(t.pos, t.text, "%s is not a function", t.text)
			}
			return Variable{Channel: ch}, nil
		}
		if fn, ok := library[t.text]; ok {
			return p.call(t, fn)
		}
		// B and T never survive expansion.
		return nil, newSyntaxError(t.pos, t.text, "unexpected identifier")

	case tokLParen:
		n, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return n, nil

	case tokLBrack:
		elems, err := p.list(tokRBrack, "']'")
		if err != nil {
			return nil, err
		}
		if len(elems) == 0 {
			return nil, newSyntaxError(t.pos, t.text, "empty array")
		}
		return ArrayLiteral{Elems: elems}, nil

	case tokEOF:
		return nil, newSyntaxError(t.pos, "", "unexpected end of formula")

	default:
		return nil, newSyntaxError(t.pos, t.text, "unexpected token")
	}
}

func (p *parser) call(name token, fn *Func) (Node, error) {
	if _, err := p.expect(tokLParen, "'(' after "+fn.Name); err != nil {
		return nil, err
	}
	args, err := p.list(tokRParen, "')'")
	if err != nil {
		return nil, err
	}
	if !fn.accepts(len(args)) {
		return nil, newSyntaxError(name.pos, name.text, "%s does not accept %d argument(s)", fn.Name, len(args))
	}
	return FunctionCall{Func: fn, Args: args}, nil
}

// list parses a comma-separated expression list up to and including the
// closing token.
func (p *parser) list(closing tokenKind, what string) ([]Node, error) {
	var out []Node
	if p.peek().kind == closing {
		p.next()
		return out, nil
	}
	for {
		n, err := p.expression()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case closing:
			return out, nil
		case tokEOF:
			return nil, newSyntaxError(t.pos, "", "expected %s, found end of formula", what)
		default:
			return nil, newSyntaxError(t.pos, t.text, "expected ',' or %s", what)
		}
	}
}

func contains(ops []string, op string) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
