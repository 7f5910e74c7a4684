package dsl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ParseError reports malformed DSL source, carrying the underlying HCL
// diagnostics with their source positions.
type ParseError struct {
	Diags hcl.Diagnostics
}

func (e *ParseError) Error() string {
	if len(e.Diags) == 0 {
		return "parse error"
	}
	d := e.Diags[0]
	if d.Subject != nil {
		return fmt.Sprintf("parse error at %s: %s", d.Subject, d.Summary)
	}
	return "parse error: " + d.Summary
}

func (e *ParseError) Unwrap() error { return e.Diags }

// parseErrorf builds a ParseError for a translation failure at rng.
func parseErrorf(rng hcl.Range, format string, args ...any) error {
	return &ParseError{Diags: hcl.Diagnostics{&hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf(format, args...),
		Subject:  &rng,
	}}}
}

// ReductionError reports an expression that cannot be reduced to an
// evaluable form: an unresolved name, a condition that does not fold to a
// constant, or a call to an undefined function.
type ReductionError struct {
	Expr   string
	Reason string
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("cannot reduce %q: %s", e.Expr, e.Reason)
}

func reductionErrorf(e Expr, format string, args ...any) error {
	return &ReductionError{Expr: e.String(), Reason: fmt.Sprintf(format, args...)}
}
