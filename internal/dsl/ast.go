// Package dsl implements the contract definition language: a closed set
// of expression variants, an HCL-based front end, compile-time reduction
// in a namespace, and numeric evaluation against simulated market data.
package dsl

import (
	"fmt"
	"strings"
)

// BinaryOp enumerates the binary operators of the language.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpLT
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	}
	return "?"
}

// Expr is one node of the expression tree. The set of implementations is
// closed; reduction and evaluation switch exhaustively over it.
type Expr interface {
	// String renders the expression as parseable DSL source.
	String() string
	isExpr()
}

// Constant wraps a literal value.
type Constant struct {
	Value Value
}

// Name is a reference to a bound variable (a function parameter during
// stubbing, never present after reduction).
type Name struct {
	Ident string
}

// Unary is arithmetic negation.
type Unary struct {
	X Expr
}

// Binary applies a BinaryOp to two operands.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

// Conditional selects one of two arms. The condition must fold to a
// constant during reduction; compile-time selection is what bounds
// recursive definitions.
type Conditional struct {
	Cond, Then, Else Expr
}

// Max is the elementwise maximum of two values.
type Max struct {
	Left, Right Expr
}

// Min is the elementwise minimum of two values.
type Min struct {
	Left, Right Expr
}

// Choice values both alternatives independently and takes the per-path
// better of the two. Used to express early-exercise optionality.
type Choice struct {
	Left, Right Expr
}

// Market is the simulated price of a named market at the effective
// present time.
type Market struct {
	Name Expr
}

// Wait fixes the effective present time of Body to Time and discounts the
// result back to the evaluation present time.
type Wait struct {
	Time, Body Expr
}

// Fixing fixes the effective present time of Body to Time without
// discounting.
type Fixing struct {
	Time, Body Expr
}

// Settlement discounts Body from Time back to the evaluation present time.
type Settlement struct {
	Time, Body Expr
}

// Call invokes a user-defined function. Calls are deferral boundaries:
// the stub generator replaces them with Stub references and registers the
// callee as its own graph node.
type Call struct {
	Func string
	Args []Expr
}

// Stub references the result of another call in the dependency graph.
type Stub struct {
	ID string
}

func (*Constant) isExpr()    {}
func (*Name) isExpr()        {}
func (*Unary) isExpr()       {}
func (*Binary) isExpr()      {}
func (*Conditional) isExpr() {}
func (*Max) isExpr()         {}
func (*Min) isExpr()         {}
func (*Choice) isExpr()      {}
func (*Market) isExpr()      {}
func (*Wait) isExpr()        {}
func (*Fixing) isExpr()      {}
func (*Settlement) isExpr()  {}
func (*Call) isExpr()        {}
func (*Stub) isExpr()        {}

func (e *Constant) String() string { return e.Value.String() }
func (e *Name) String() string     { return e.Ident }
func (e *Unary) String() string    { return "-" + e.X.String() }

func (e *Binary) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e *Conditional) String() string {
	return "(" + e.Cond.String() + " ? " + e.Then.String() + " : " + e.Else.String() + ")"
}

func (e *Max) String() string        { return "max(" + e.Left.String() + ", " + e.Right.String() + ")" }
func (e *Min) String() string        { return "min(" + e.Left.String() + ", " + e.Right.String() + ")" }
func (e *Choice) String() string     { return "choice(" + e.Left.String() + ", " + e.Right.String() + ")" }
func (e *Market) String() string     { return "market(" + e.Name.String() + ")" }
func (e *Wait) String() string       { return "wait(" + e.Time.String() + ", " + e.Body.String() + ")" }
func (e *Fixing) String() string     { return "fixing(" + e.Time.String() + ", " + e.Body.String() + ")" }
func (e *Settlement) String() string {
	return "settlement(" + e.Time.String() + ", " + e.Body.String() + ")"
}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Func + "(" + strings.Join(args, ", ") + ")"
}

func (e *Stub) String() string { return fmt.Sprintf("stub(%q)", e.ID) }

// FunctionDef is one user-defined function of a module.
type FunctionDef struct {
	Name   string
	Params []string
	Body   Expr
}

// Module is a parsed contract specification: user function definitions
// plus one or more root expressions.
type Module struct {
	Defs map[string]*FunctionDef
	Body []Expr
}

// Walk calls fn for e and every sub-expression of e, depth-first. If fn
// returns false the node's children are not visited.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Unary:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Conditional:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Max:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Min:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Choice:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Market:
		Walk(n.Name, fn)
	case *Wait:
		Walk(n.Time, fn)
		Walk(n.Body, fn)
	case *Fixing:
		Walk(n.Time, fn)
		Walk(n.Body, fn)
	case *Settlement:
		Walk(n.Time, fn)
		Walk(n.Body, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}
