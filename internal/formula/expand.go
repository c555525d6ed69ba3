package formula

import "strings"

// vectorChannels maps B and T to their per-channel scalar names, indexed by
// output channel r, g, b, a.
var vectorChannels = map[string][4]string{
	vectorBase:  {"rb", "gb", "bb", "ab"},
	vectorBlend: {"rs", "gs", "bs", "as"},
}

// hasVector reports whether toks contain a standalone B or T identifier.
func hasVector(toks []token) bool {
	for _, t := range toks {
		if t.kind == tokIdent && (t.text == vectorBase || t.text == vectorBlend) {
			return true
		}
	}
	return false
}

// expandVectors rewrites a vector formula into a four-element array literal,
// one copy of the expression per output channel with B and T substituted.
// Token positions keep pointing into the source text so errors still
// reference what the user typed. Formulas without B or T are returned as-is.
func expandVectors(toks []token) []token {
	if !hasVector(toks) {
		return toks
	}
	body := toks[:len(toks)-1] // drop EOF
	eof := toks[len(toks)-1]

	out := make([]token, 0, 4*len(body)+6)
	out = append(out, token{kind: tokLBrack, text: "[", pos: 0})
	for ch := 0; ch < 4; ch++ {
		if ch > 0 {
			out = append(out, token{kind: tokComma, text: ",", pos: eof.pos})
		}
		for _, t := range body {
			if names, ok := vectorChannels[t.text]; ok && t.kind == tokIdent {
				t.text = names[ch]
			}
			out = append(out, t)
		}
	}
	out = append(out, token{kind: tokRBrack, text: "]", pos: eof.pos}, eof)
	return out
}

// Expand returns the formula text after vector expansion, with tokens joined
// by single spaces. It applies the same whitelist as Compile.
func Expand(text string) (string, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return "", newEmptyError()
	}
	toks, err := tokenize(src)
	if err != nil {
		return "", err
	}
	toks = expandVectors(toks)

	var b strings.Builder
	for i, t := range toks {
		if t.kind == tokEOF {
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String(), nil
}
