package formula

import (
	"math"
	"strings"
)

// Channels are the eight scalar inputs of a formula. Color channels are
// premultiplied by their own layer's alpha; AB and AS are straight.
type Channels struct {
	RB, GB, BB, AB float64
	RS, GS, BS, AS float64
}

// Output is the normalised result of one evaluation. Every value is finite
// and within [0,1]. A is meaningful only when HasAlpha is set; otherwise the
// caller supplies its default alpha.
type Output struct {
	R, G, B, A float64
	HasAlpha   bool
}

// Evaluator is the per-pixel call contract consumed by the compositor.
type Evaluator interface {
	Eval(Channels) Output
}

// EvaluatorFunc adapts an ordinary function to Evaluator.
type EvaluatorFunc func(Channels) Output

// Eval calls f and normalises its output.
func (f EvaluatorFunc) Eval(c Channels) Output {
	out := f(c)
	out.R, out.G, out.B = Clamp01(out.R), Clamp01(out.G), Clamp01(out.B)
	if out.HasAlpha {
		out.A = Clamp01(out.A)
	} else {
		out.A = 0
	}
	return out
}

// Engine is a compiled formula. It is immutable and safe for concurrent use.
type Engine struct {
	source string
	root   Node
	arity  int
}

// Compile validates and compiles formula text into an Engine.
//
// Compile fails with EMPTY_EXPRESSION for blank text, DISALLOWED_TOKEN for any
// character or identifier outside the whitelist, SYNTAX_ERROR for malformed
// expressions and INVALID_RETURN_ARITY when a result is not a 3- or 4-element
// array. An Engine that compiled never fails when evaluated.
func Compile(text string) (*Engine, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, newEmptyError()
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	root, err := parse(expandVectors(toks))
	if err != nil {
		return nil, err
	}
	arity, err := checkResult(root)
	if err != nil {
		return nil, err
	}
	return &Engine{source: src, root: root, arity: arity}, nil
}

// MustCompile is like Compile but panics on error. Intended for formulas
// that are constants in the program.
func MustCompile(text string) *Engine {
	e, err := Compile(text)
	if err != nil {
		panic("formula: MustCompile(" + text + "): " + err.Error())
	}
	return e
}

// Source returns the trimmed formula text as written.
func (e *Engine) Source() string { return e.source }

// String returns the canonical, fully parenthesised form of the compiled
// (vector-expanded) formula.
func (e *Engine) String() string { return e.root.String() }

// Root returns the expression tree.
func (e *Engine) Root() Node { return e.root }

// Arity returns 3 or 4 when every result branch has that many outputs, and 0
// when a conditional mixes 3- and 4-element results.
func (e *Engine) Arity() int { return e.arity }

// Eval evaluates the formula for one pixel.
func (e *Engine) Eval(c Channels) Output {
	env := [8]float64{c.RB, c.GB, c.BB, c.AB, c.RS, c.GS, c.BS, c.AS}
	arr := result(e.root, &env)

	var vals [4]float64
	for i, n := range arr.Elems {
		vals[i] = Clamp01(scalar(n, &env))
	}
	out := Output{R: vals[0], G: vals[1], B: vals[2]}
	if len(arr.Elems) == 4 {
		out.A = vals[3]
		out.HasAlpha = true
	}
	return out
}

// Clamp01 maps non-finite values to 0 and clamps the rest to [0,1].
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// checkResult verifies the shape of every result the tree can produce and
// returns the common arity (0 when branches disagree).
func checkResult(n Node) (int, error) {
	switch n := n.(type) {
	case ArrayLiteral:
		for _, el := range n.Elems {
			if err := checkScalar(el); err != nil {
				return 0, err
			}
		}
		if len(n.Elems) != 3 && len(n.Elems) != 4 {
			return 0, newArityError(-1, len(n.Elems))
		}
		return len(n.Elems), nil
	case Ternary:
		if err := checkScalar(n.Cond); err != nil {
			return 0, err
		}
		a, err := checkResult(n.Then)
		if err != nil {
			return 0, err
		}
		b, err := checkResult(n.Else)
		if err != nil {
			return 0, err
		}
		if a != b {
			return 0, nil
		}
		return a, nil
	default:
		if err := checkScalar(n); err != nil {
			return 0, err
		}
		return 0, newArityError(-1, -1)
	}
}

// checkScalar rejects array literals outside result position.
func checkScalar(n Node) error {
	switch n := n.(type) {
	case ArrayLiteral:
		return newSyntaxError(-1, "", "array %s used as a number", n.String())
	case NumberLiteral, Variable:
		return nil
	case FunctionCall:
		for _, a := range n.Args {
			if err := checkScalar(a); err != nil {
				return err
			}
		}
		return nil
	case UnaryOp:
		return checkScalar(n.Operand)
	case BinaryOp:
		if err := checkScalar(n.Left); err != nil {
			return err
		}
		return checkScalar(n.Right)
	case Ternary:
		for _, c := range []Node{n.Cond, n.Then, n.Else} {
			if err := checkScalar(c); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// result walks conditionals in result position down to an array literal.
// checkResult guarantees the walk always ends on one.
func result(n Node, env *[8]float64) ArrayLiteral {
	for {
		switch v := n.(type) {
		case ArrayLiteral:
			return v
		case Ternary:
			if truthy(scalar(v.Cond, env)) {
				n = v.Then
			} else {
				n = v.Else
			}
		default:
			return ArrayLiteral{}
		}
	}
}

func scalar(n Node, env *[8]float64) float64 {
	switch n := n.(type) {
	case NumberLiteral:
		return n.Value
	case Variable:
		return env[n.Channel]
	case UnaryOp:
		v := scalar(n.Operand, env)
		if n.Op == "-" {
			return -v
		}
		return v
	case BinaryOp:
		return binaryOp(n, env)
	case Ternary:
		if truthy(scalar(n.Cond, env)) {
			return scalar(n.Then, env)
		}
		return scalar(n.Else, env)
	case FunctionCall:
		var buf [4]float64
		args := buf[:0]
		for _, a := range n.Args {
			args = append(args, scalar(a, env))
		}
		return n.Func.Call(args)
	}
	return math.NaN()
}

func binaryOp(n BinaryOp, env *[8]float64) float64 {
	l := scalar(n.Left, env)
	switch n.Op {
	case "&&":
		if !truthy(l) {
			return l
		}
		return scalar(n.Right, env)
	case "||":
		if truthy(l) {
			return l
		}
		return scalar(n.Right, env)
	}

	r := scalar(n.Right, env)
	switch n.Op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		return l / r
	case "%":
		return math.Mod(l, r)
	case "<":
		return boolNum(l < r)
	case "<=":
		return boolNum(l <= r)
	case ">":
		return boolNum(l > r)
	case ">=":
		return boolNum(l >= r)
	case "==":
		return boolNum(l == r)
	case "!=":
		return boolNum(l != r)
	}
	return math.NaN()
}

func truthy(v float64) bool { return v != 0 && !math.IsNaN(v) }

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
