// Package api serves formula compilation, compositing and the preset
// collection over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	POST   /v1/compile              {"formula": "..."}
//	POST   /v1/composite            multipart: formula, base, blend [, offsets, canvas size]
//	GET    /v1/formulas
//	POST   /v1/formulas             {"name": "...", "expr": "..."}
//	DELETE /v1/formulas/{id}
//	GET    /v1/formulas/export
//	POST   /v1/formulas/import      exported collection JSON
//
// Errors are JSON objects with an "error" message and, where one applies,
// a machine-readable "code".
package api
