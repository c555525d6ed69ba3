package formula

import (
	"strings"
	"unicode/utf8"
)

// tokenKind classifies a lexical token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp     // + - * / % < <= > >= == != && ||
	tokLParen // (
	tokRParen // )
	tokLBrack // [
	tokRBrack // ]
	tokComma  // ,
	tokQuest  // ?
	tokColon  // :
)

// token is one lexeme of a formula. Pos is a byte offset into the source text.
type token struct {
	kind tokenKind
	text string
	pos  int
}

// Channel names bound in every formula, in evaluation-environment order.
var channelNames = [...]string{"rb", "gb", "bb", "ab", "rs", "gs", "bs", "as"}

// Vector shorthands for the base and blend layers.
const (
	vectorBase  = "B"
	vectorBlend = "T"
)

// allowedIdent reports whether name is a whitelisted identifier.
func allowedIdent(name string) bool {
	if name == vectorBase || name == vectorBlend {
		return true
	}
	if _, ok := channelIndex(name); ok {
		return true
	}
	_, ok := library[name]
	return ok
}

func channelIndex(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// tokenize splits src into tokens and enforces the whitelist. Any character
// or identifier outside the whitelist fails with DISALLOWED_TOKEN.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				if i+1 >= len(src) || !isDigit(src[i+1]) {
					return nil, newDisallowedError(i, ".")
				}
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			name := src[start:i]
			if !allowedIdent(name) {
				return nil, newDisallowedError(start, name)
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})

		case strings.IndexByte("+-*/%", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++

		case c == '<' || c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokOp, text: src[i : i+2], pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
				i++
			}

		case c == '=' || c == '!' || c == '&' || c == '|':
			// Only the doubled/compound forms exist: ==, !=, &&, ||.
			second := byte('=')
			if c == '&' || c == '|' {
				second = c
			}
			if i+1 >= len(src) || src[i+1] != second {
				return nil, newDisallowedError(i, string(c))
			}
			toks = append(toks, token{kind: tokOp, text: src[i : i+2], pos: i})
			i += 2

		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBrack, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBrack, text: "]", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '?':
			toks = append(toks, token{kind: tokQuest, text: "?", pos: i})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: i})
			i++

		default:
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, newDisallowedError(i, string(r))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
