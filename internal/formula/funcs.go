package formula

import (
	"math"
	"sort"
)

// Func is a pure numeric function callable from formulas.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Call    func(args []float64) float64
}

// accepts reports whether the function can be called with n arguments.
func (f *Func) accepts(n int) bool {
	if n < f.MinArgs {
		return false
	}
	return f.MaxArgs < 0 || n <= f.MaxArgs
}

// library is the closed set of functions available to formulas.
// It is never mutated after package initialisation.
var library = map[string]*Func{
	"abs":        unary("abs", math.Abs),
	"min":        {Name: "min", MinArgs: 1, MaxArgs: -1, Call: minOf},
	"max":        {Name: "max", MinArgs: 1, MaxArgs: -1, Call: maxOf},
	"floor":      unary("floor", math.Floor),
	"ceil":       unary("ceil", math.Ceil),
	"round":      unary("round", Round),
	"sqrt":       unary("sqrt", math.Sqrt),
	"pow":        binary("pow", math.Pow),
	"exp":        unary("exp", math.Exp),
	"log":        unary("log", math.Log),
	"clamp":      {Name: "clamp", MinArgs: 1, MaxArgs: 3, Call: clampArgs},
	"mix":        ternary("mix", Mix),
	"step":       binary("step", Step),
	"smoothstep": ternary("smoothstep", Smoothstep),
	"lum":        ternary("lum", Lum),
	"saturate":   unary("saturate", Saturate),
}

// Lookup returns the library function with the given name.
func Lookup(name string) (*Func, bool) {
	f, ok := library[name]
	return f, ok
}

// FunctionNames returns the library function names in sorted order.
func FunctionNames() []string {
	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unary(name string, fn func(float64) float64) *Func {
	return &Func{Name: name, MinArgs: 1, MaxArgs: 1, Call: func(a []float64) float64 { return fn(a[0]) }}
}

func binary(name string, fn func(float64, float64) float64) *Func {
	return &Func{Name: name, MinArgs: 2, MaxArgs: 2, Call: func(a []float64) float64 { return fn(a[0], a[1]) }}
}

func ternary(name string, fn func(float64, float64, float64) float64) *Func {
	return &Func{Name: name, MinArgs: 3, MaxArgs: 3, Call: func(a []float64) float64 { return fn(a[0], a[1], a[2]) }}
}

// Round rounds half toward positive infinity, so Round(-0.5) is 0.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Clamp returns min(hi, max(lo, x)). NaN propagates.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || math.IsNaN(lo) || math.IsNaN(hi) {
		return math.NaN()
	}
	return math.Min(hi, math.Max(lo, x))
}

// Mix linearly interpolates between a and b.
func Mix(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

// Step returns 0 when x < edge and 1 otherwise.
func Step(edge, x float64) float64 {
	if x < edge {
		return 0
	}
	return 1
}

// Smoothstep is the Hermite interpolation between e0 and e1.
func Smoothstep(e0, e1, x float64) float64 {
	t := Clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

// Lum returns the Rec. 601 luma of an RGB triple.
func Lum(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// Saturate clamps x to [0,1].
func Saturate(x float64) float64 {
	return Clamp(x, 0, 1)
}

func clampArgs(a []float64) float64 {
	lo, hi := 0.0, 1.0
	if len(a) > 1 {
		lo = a[1]
	}
	if len(a) > 2 {
		hi = a[2]
	}
	return Clamp(a[0], lo, hi)
}

func minOf(a []float64) float64 {
	out := a[0]
	for _, v := range a[1:] {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(a []float64) float64 {
	out := a[0]
	for _, v := range a[1:] {
		out = math.Max(out, v)
	}
	return out
}
