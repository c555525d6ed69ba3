package formula

import "strings"

// Channel indexes the evaluation environment.
type Channel int

const (
	ChanRB Channel = iota
	ChanGB
	ChanBB
	ChanAB
	ChanRS
	ChanGS
	ChanBS
	ChanAS
)

// String returns the formula name of the channel.
func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "?"
	}
	return channelNames[c]
}

// Node is a sealed interface over expression tree nodes.
// Only NumberLiteral, Variable, FunctionCall, UnaryOp, BinaryOp, Ternary and
// ArrayLiteral implement it.
type Node interface {
	node()
	String() string
}

// NumberLiteral is a decimal constant.
type NumberLiteral struct {
	Value float64
	Text  string
}

// Variable references one of the eight channel scalars.
type Variable struct {
	Channel Channel
}

// FunctionCall invokes a library function.
type FunctionCall struct {
	Func *Func
	Args []Node
}

// UnaryOp is a prefix + or -.
type UnaryOp struct {
	Op      string
	Operand Node
}

// BinaryOp is an infix arithmetic, comparison or logical operator.
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

// Ternary is cond ? then : else.
type Ternary struct {
	Cond Node
	Then Node
	Else Node
}

// ArrayLiteral is the [r, g, b] or [r, g, b, a] result form.
type ArrayLiteral struct {
	Elems []Node
}

func (NumberLiteral) node() {}
func (Variable) node()      {}
func (FunctionCall) node()  {}
func (UnaryOp) node()       {}
func (BinaryOp) node()      {}
func (Ternary) node()       {}
func (ArrayLiteral) node()  {}

func (n NumberLiteral) String() string { return n.Text }

func (n Variable) String() string { return n.Channel.String() }

func (n FunctionCall) String() string {
	return n.Func.Name + "(" + joinNodes(n.Args) + ")"
}

func (n UnaryOp) String() string { return "(" + n.Op + n.Operand.String() + ")" }

func (n BinaryOp) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

func (n Ternary) String() string {
	return "(" + n.Cond.String() + " ? " + n.Then.String() + " : " + n.Else.String() + ")"
}

func (n ArrayLiteral) String() string { return "[" + joinNodes(n.Elems) + "]" }

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
