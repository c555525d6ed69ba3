// Package formula compiles user-authored blend formulas into Engines.
//
// A formula is a short numeric expression over eight channel scalars:
//
//	rb gb bb ab   base layer (color premultiplied by ab, alpha straight)
//	rs gs bs as   blend layer (color premultiplied by as, alpha straight)
//
// The result must be an array literal of three or four elements, [r, g, b] or
// [r, g, b, a]. Formulas that use the vector shorthands B (base) and T (blend)
// are expanded once per output channel, so "B+T" compiles to
// [rb+rs, gb+gs, bb+bs, ab+as].
//
// # Trust Boundary
//
// Compilation is a tokenizer, a recursive-descent parser and a tree
// interpreter. Only the eight channel names, B, T and the functions in Library
// are valid identifiers; anything else fails with DISALLOWED_TOKEN before the
// parser runs. No code is generated and nothing outside the channel
// environment is reachable from a formula.
//
// # Evaluation
//
// Engine.Eval never fails. Shape errors are rejected at compile time; numeric
// anomalies are normalised: non-finite outputs become 0 and every output is
// clamped to [0,1].
package formula
