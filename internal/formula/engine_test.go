package formula

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Compile: accepted formulas
// =============================================================================

func TestCompileValid(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		arity   int
	}{
		{"normal", "[rs, gs, bs]", 3},
		{"multiply", "[rb*rs, gb*gs, bb*bs]", 3},
		{"screen", "[rb + rs - rb*rs, gb + gs - gb*gs, bb + bs - bb*bs]", 3},
		{"overlay", "[rb<0.5?2*rb*rs:1-2*(1-rb)*(1-rs), gb<0.5?2*gb*gs:1-2*(1-gb)*(1-gs), bb<0.5?2*bb*bs:1-2*(1-bb)*(1-bs)]", 3},
		{"vector add", "B+T", 4},
		{"vector alone", "B", 4},
		{"vector over", "T + B*(1-as)", 4},
		{"clamp variants", "[clamp(rs), clamp(gs, 0.2), clamp(bs, 0, 0.5), saturate(as)]", 4},
		{"variadic min max", "[min(rb, rs, 0.3), max(gb, gs), lum(rb, gb, bb), 1]", 4},
		{"shaping", "[smoothstep(0, 1, rb), step(0.5, gb), floor(bb*4)/4]", 3},
		{"unary", "[-rb + 1, +gb, round(bb), ceil(ab)]", 4},
		{"transcendental", "[sqrt(rs), pow(gs, 2.2), exp(bs) - 1, log(1 + as)]", 4},
		{"comparison and logic", "[rb % 0.5, gb == gs, bb != bs, rb <= rs && gb >= gs || bb]", 4},
		{"parenthesised result", "([rs, gs, bs])", 3},
		{"conditional result", "ab > 0.5 ? [rb, gb, bb] : [rs, gs, bs]", 3},
		{"mixed conditional result", "ab > 0.5 ? [rb, gb, bb] : [rs, gs, bs, as]", 0},
		{"surrounding whitespace", "\n\t [rs, gs, bs] \n", 3},
		{"decimal literals", "[0.25, 10.125, 3]", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.arity, e.Arity())
		})
	}
}

// =============================================================================
// Compile: rejected formulas
// =============================================================================

func TestCompileEmpty(t *testing.T) {
	for _, s := range []string{"", "   ", "\n\t"} {
		_, err := Compile(s)
		require.Error(t, err)
		assert.True(t, IsEmptyExpression(err), "Compile(%q) = %v", s, err)
	}
}

func TestCompileDisallowedToken(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		token   string
	}{
		{"property access", "[rb.x, gb, bb]", "."},
		{"assignment", "[rb=1, gb, bb]", "="},
		{"unknown identifier", "[rs, gs, foo]", "foo"},
		{"global object", "Math.max(1)", "Math"},
		{"statement separator", "[rs, gs, bs]; 1", ";"},
		{"string literal", "['a', gs, bs]", "'"},
		{"glued channel names", "[rbgb, gs, bs]", "rbgb"},
		{"exponent literal", "[1e3, gs, bs]", "e3"},
		{"dangling decimal point", "[1., gs, bs]", "."},
		{"logical not", "[!rb, gs, bs]", "!"},
		{"single ampersand", "[rb & gb, gs, bs]", "&"},
		{"single pipe", "[rb | gb, gs, bs]", "|"},
		{"dollar", "[$, gs, bs]", "$"},
		{"proto", "[__proto__, gs, bs]", "__proto__"},
		{"this", "this", "this"},
		{"lowercase vector", "b+t", "b"},
		{"vector member", "B.r", "."},
		{"non ascii", "[rs, gs, bs]×2", "×"},
		{"comment", "[rs, gs, bs] // x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.formula)
			require.Error(t, err)
			assert.True(t, IsDisallowedToken(err), "got %v", err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.token, ce.Token)
		})
	}
}

func TestCompileDisallowedTokenPosition(t *testing.T) {
	_, err := Compile("[rs, gs, bs] + foo")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeDisallowedToken, ce.Code)
	assert.Equal(t, 15, ce.Pos)
	assert.Equal(t, "foo", ce.Token)
}

func TestCompileSyntaxError(t *testing.T) {
	tests := []struct {
		name    string
		formula string
	}{
		{"unterminated array", "[rs, gs"},
		{"missing commas", "[rs gs bs]"},
		{"no arguments", "[clamp(), gs, bs]"},
		{"too few arguments", "[pow(rs), gs, bs]"},
		{"too many arguments", "[abs(rs, gs), gs, bs]"},
		{"channel called", "[rb(1), gb, bb]"},
		{"function as value", "[abs, gb, bb]"},
		{"dangling operator", "[rs, gs, bs] +"},
		{"missing ternary branch", "[rb > 0.5 ? rs, gs, bs]"},
		{"nested array", "[[rs], gs, bs]"},
		{"array in arithmetic", "[rs, gs, bs] * 2"},
		{"empty array", "[]"},
		{"empty parens", "()"},
		{"unbalanced paren", "[(rs, gs, bs]"},
		{"trailing tokens", "[rs, gs, bs] [rb, gb, bb]"},
		{"trailing comma", "[rs, gs, bs,]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.formula)
			require.Error(t, err)
			assert.True(t, IsSyntaxError(err), "got %v", err)
		})
	}
}

func TestCompileDeepNesting(t *testing.T) {
	deep := ""
	for i := 0; i < 5000; i++ {
		deep += "("
	}
	_, err := Compile("[" + deep + "rs, gs, bs]")
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
}

func TestCompileInvalidReturnArity(t *testing.T) {
	tests := []struct {
		name    string
		formula string
	}{
		{"scalar", "rs + rb"},
		{"scalar function", "lum(rs, gs, bs)"},
		{"two values", "[rs, gs]"},
		{"five values", "[rb, gb, bb, ab, rs]"},
		{"scalar branch", "ab > 0 ? [rs, gs, bs] : rs"},
		{"one value", "[rs]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.formula)
			require.Error(t, err)
			assert.True(t, IsInvalidReturnArity(err), "got %v", err)
		})
	}
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("nope") })
	assert.NotPanics(t, func() { MustCompile("B") })
}

// =============================================================================
// Evaluation
// =============================================================================

func sampleChannels(r *rand.Rand) Channels {
	return Channels{
		RB: r.Float64(), GB: r.Float64(), BB: r.Float64(), AB: r.Float64(),
		RS: r.Float64(), GS: r.Float64(), BS: r.Float64(), AS: r.Float64(),
	}
}

func TestEvalPassThroughBlend(t *testing.T) {
	e := MustCompile("[rs, gs, bs]")
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		c := sampleChannels(rng)
		out := e.Eval(c)
		assert.Equal(t, c.RS, out.R)
		assert.Equal(t, c.GS, out.G)
		assert.Equal(t, c.BS, out.B)
		assert.False(t, out.HasAlpha)
	}
}

func TestEvalVectorEquivalence(t *testing.T) {
	vector := MustCompile("B+T")
	scalar := MustCompile("[rb+rs, gb+gs, bb+bs, ab+as]")
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		c := sampleChannels(rng)
		require.Equal(t, scalar.Eval(c), vector.Eval(c), "inputs %+v", c)
	}

	// Corners of the unit cube, where sums exceed 1 before clamping.
	ones := Channels{RB: 1, GB: 1, BB: 1, AB: 1, RS: 1, GS: 1, BS: 1, AS: 1}
	assert.Equal(t, Output{R: 1, G: 1, B: 1, A: 1, HasAlpha: true}, vector.Eval(ones))
	assert.Equal(t, scalar.Eval(Channels{}), vector.Eval(Channels{}))
}

func TestEvalWordBoundaryExpansion(t *testing.T) {
	// bb is the base blue scalar and must not be touched by B expansion.
	e := MustCompile("bb + B*0")
	out := e.Eval(Channels{RB: 0.9, GB: 0.8, BB: 0.25, AB: 0.7})
	assert.Equal(t, Output{R: 0.25, G: 0.25, B: 0.25, A: 0.25, HasAlpha: true}, out)
}

func TestEvalNormalisesOutputs(t *testing.T) {
	e := MustCompile("[rs/0, -gs, 2, log(0)]")
	out := e.Eval(Channels{RS: 0.5, GS: 0.5})
	assert.Equal(t, Output{R: 0, G: 0, B: 1, A: 0, HasAlpha: true}, out)

	nan := MustCompile("[0/0, sqrt(0-1), 0.5]")
	assert.Equal(t, Output{R: 0, G: 0, B: 0.5}, nan.Eval(Channels{}))
}

func TestEvalConditionals(t *testing.T) {
	e := MustCompile("rb ? [1, 1, 1] : [0, 0, 0, 0]")
	assert.Equal(t, Output{HasAlpha: true}, e.Eval(Channels{}))
	assert.Equal(t, Output{R: 1, G: 1, B: 1}, e.Eval(Channels{RB: 0.1}))

	// NaN conditions are false.
	nan := MustCompile("(rb/rb) ? [1, 1, 1] : [0, 0, 0]")
	assert.Equal(t, Output{}, nan.Eval(Channels{}))
}

func TestEvalLogicalOperatorsReturnOperands(t *testing.T) {
	e := MustCompile("[rb || 0.25, rb && 0.75, 0]")
	assert.Equal(t, Output{R: 0.25, G: 0, B: 0}, e.Eval(Channels{}))
	assert.Equal(t, Output{R: 0.5, G: 0.75, B: 0}, e.Eval(Channels{RB: 0.5}))
}

func TestEvalArithmetic(t *testing.T) {
	e := MustCompile("[0.75 % 0.5, 1 - 2 * 0.25, (1 - 0.5) / 2, 0.5 < 0.75]")
	assert.Equal(t, Output{R: 0.25, G: 0.5, B: 0.25, A: 1, HasAlpha: true}, e.Eval(Channels{}))

	cmp := MustCompile("[rb == rs, rb != rs, rb >= rs, rb <= rs]")
	assert.Equal(t, Output{R: 1, G: 0, B: 1, A: 1, HasAlpha: true}, cmp.Eval(Channels{RB: 0.5, RS: 0.5}))
}

func TestEngineConcurrentUse(t *testing.T) {
	e := MustCompile("[rb*rs, gb*gs, bb*bs]")
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 1000; i++ {
				c := sampleChannels(rng)
				out := e.Eval(c)
				assert.InDelta(t, c.RB*c.RS, out.R, 1e-12)
			}
		}(int64(g))
	}
	wg.Wait()
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{-0.5, 0},
		{1.5, 1},
		{0, 0},
		{1, 1},
		{0.3, 0.3},
	}
	for _, tt := range tests {
		got := Clamp01(tt.in)
		assert.Equal(t, tt.want, got, "Clamp01(%v)", tt.in)
		assert.Equal(t, got, Clamp01(got), "Clamp01 must be idempotent")
	}
}

func TestEvaluatorFuncNormalises(t *testing.T) {
	f := EvaluatorFunc(func(c Channels) Output {
		return Output{R: math.Inf(1), G: -1, B: 0.5, A: 7}
	})
	assert.Equal(t, Output{R: 0, G: 0, B: 0.5, A: 0}, f.Eval(Channels{}))
}

// =============================================================================
// Canonical form and expansion
// =============================================================================

func TestCanonicalGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name    string
		formula string
	}{
		{"vector_add", "B+T"},
		{"vector_mix", "mix(B, T, 0.5)"},
		{"vector_over", "B * (1 - as) + T"},
		{"vector_negate", "-B + T"},
		{"scalar_overlay", "[rb<0.5?2*rb*rs:1-2*(1-rb)*(1-rs), gb<0.5?2*gb*gs:1-2*(1-gb)*(1-gs), bb<0.5?2*bb*bs:1-2*(1-bb)*(1-bs)]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.formula)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(e.String()))
		})
	}
}

func TestExpand(t *testing.T) {
	got, err := Expand("B+T")
	require.NoError(t, err)
	assert.Equal(t, "[ rb + rs , gb + gs , bb + bs , ab + as ]", got)

	got, err = Expand("bb+B")
	require.NoError(t, err)
	assert.Equal(t, "[ bb + rb , bb + gb , bb + bb , bb + ab ]", got)

	got, err = Expand("  [rs, gs, bs] ")
	require.NoError(t, err)
	assert.Equal(t, "[ rs , gs , bs ]", got)

	_, err = Expand("")
	assert.True(t, IsEmptyExpression(err))

	_, err = Expand("B + x")
	assert.True(t, IsDisallowedToken(err))
}

func TestSourceIsTrimmed(t *testing.T) {
	e := MustCompile("  B+T\n")
	assert.Equal(t, "B+T", e.Source())
}
