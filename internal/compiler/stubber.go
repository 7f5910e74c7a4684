// Package compiler expands a parsed contract module into a finite,
// deduplicated dependency graph of stubbed calls and registers it.
//
// Every call to a user-defined function is a deferral boundary: instead
// of inlining the callee, the compiler computes its deterministic call id
// from (function name, bound argument values, effective present time),
// replaces the call site with a stub reference, and schedules the callee
// for its own expansion. Structurally identical sub-evaluations collapse
// onto one node, which keeps recursive definitions finite.
package compiler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/dsl"
	"github.com/contactsonle/quantdsl/internal/model"
)

// DefaultMaxCalls bounds graph expansion. The termination precondition
// (recursion strictly advances toward a horizon) is a property of the DSL
// program, not something the generator can prove, so runaway expansion is
// cut off here instead of trusted away.
const DefaultMaxCalls = 100_000

type stubber struct {
	defs     map[string]*dsl.FunctionDef
	queue    []pendingCall
	seen     map[uuid.UUID]bool
	maxCalls int
	rootID   uuid.UUID
}

// pendingCall is one discovered-but-not-yet-expanded graph node.
type pendingCall struct {
	id          uuid.UUID
	def         *dsl.FunctionDef // nil for the root expression
	expr        dsl.Expr
	locals      dsl.Namespace
	presentTime *time.Time
}

// GenerateStubbedCalls expands the module's root expression into the
// complete set of stubbed calls. The root call carries rootID (the owning
// contract specification id); every other id is derived deterministically
// from its stubbing context.
func GenerateStubbedCalls(ctx context.Context, rootID uuid.UUID, mod *dsl.Module, maxCalls int) ([]model.StubbedCall, error) {
	logger := ctxlog.FromContext(ctx)
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}

	s := &stubber{
		defs:     mod.Defs,
		seen:     map[uuid.UUID]bool{rootID: true},
		maxCalls: maxCalls,
		rootID:   rootID,
	}
	s.queue = append(s.queue, pendingCall{
		id:     rootID,
		expr:   mod.Body[0],
		locals: dsl.Namespace{},
	})

	var stubs []model.StubbedCall
	for len(s.queue) > 0 {
		pc := s.queue[0]
		s.queue = s.queue[1:]

		if len(stubs) >= s.maxCalls {
			return nil, &model.GraphIntegrityError{
				GraphID: rootID,
				Reason:  "stubbed call limit exceeded; recursion does not appear to terminate",
			}
		}

		expr := pc.expr
		locals := pc.locals
		if pc.def != nil {
			expr = pc.def.Body
		}

		var deps []uuid.UUID
		residual, err := s.reduce(expr, locals, pc.presentTime, &deps)
		if err != nil {
			return nil, err
		}

		stubs = append(stubs, model.StubbedCall{
			CallID:               pc.id,
			DSLSource:            residual.String(),
			EffectivePresentTime: pc.presentTime,
			Dependencies:         deps,
		})
	}

	logger.Debug("stub generation complete.", "root_id", rootID, "call_count", len(stubs))
	return stubs, nil
}

// reduce walks an expression in a local namespace, folding what it can,
// replacing user-function calls with stub references, and recording the
// resulting dependencies. presentTime is the effective present time of
// the surrounding call; fixing and wait move it forward for their bodies.
func (s *stubber) reduce(e dsl.Expr, locals dsl.Namespace, presentTime *time.Time, deps *[]uuid.UUID) (dsl.Expr, error) {
	switch n := e.(type) {
	case *dsl.Constant, *dsl.Stub:
		return e, nil

	case *dsl.Name:
		v, ok := locals[n.Ident]
		if !ok {
			return nil, &dsl.ReductionError{Expr: n.String(), Reason: "unresolved name " + n.Ident}
		}
		return &dsl.Constant{Value: v}, nil

	case *dsl.Unary:
		x, err := s.reduce(n.X, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return foldReduced(&dsl.Unary{X: x}, locals)

	case *dsl.Binary:
		left, err := s.reduce(n.Left, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		right, err := s.reduce(n.Right, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return foldReduced(&dsl.Binary{Op: n.Op, Left: left, Right: right}, locals)

	case *dsl.Conditional:
		cond, err := s.reduce(n.Cond, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		c, ok := cond.(*dsl.Constant)
		if !ok || c.Value.Kind != dsl.KindBool {
			return nil, &dsl.ReductionError{
				Expr:   n.String(),
				Reason: "condition does not reduce to a constant bool; recursion cannot be bounded",
			}
		}
		if c.Value.Bool {
			return s.reduce(n.Then, locals, presentTime, deps)
		}
		return s.reduce(n.Else, locals, presentTime, deps)

	case *dsl.Max:
		left, right, err := s.reducePair(n.Left, n.Right, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Max{Left: left, Right: right}, nil

	case *dsl.Min:
		left, right, err := s.reducePair(n.Left, n.Right, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Min{Left: left, Right: right}, nil

	case *dsl.Choice:
		left, right, err := s.reducePair(n.Left, n.Right, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Choice{Left: left, Right: right}, nil

	case *dsl.Market:
		name, err := s.reduce(n.Name, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Market{Name: name}, nil

	case *dsl.Wait:
		t, body, err := s.reduceTimed(n.Time, n.Body, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Wait{Time: t, Body: body}, nil

	case *dsl.Fixing:
		t, body, err := s.reduceTimed(n.Time, n.Body, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Fixing{Time: t, Body: body}, nil

	case *dsl.Settlement:
		t, err := s.reduceDate(n.Time, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		body, err := s.reduce(n.Body, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		return &dsl.Settlement{Time: t, Body: body}, nil

	case *dsl.Call:
		return s.stubCall(n, locals, presentTime, deps)
	}

	return nil, &dsl.ReductionError{Expr: e.String(), Reason: "unknown expression variant"}
}

func (s *stubber) reducePair(a, b dsl.Expr, locals dsl.Namespace, presentTime *time.Time, deps *[]uuid.UUID) (dsl.Expr, dsl.Expr, error) {
	ra, err := s.reduce(a, locals, presentTime, deps)
	if err != nil {
		return nil, nil, err
	}
	rb, err := s.reduce(b, locals, presentTime, deps)
	if err != nil {
		return nil, nil, err
	}
	return ra, rb, nil
}

// reduceTimed reduces a (time, body) pair where the time expression moves
// the effective present time for the body's sub-graph.
func (s *stubber) reduceTimed(timeExpr, body dsl.Expr, locals dsl.Namespace, presentTime *time.Time, deps *[]uuid.UUID) (dsl.Expr, dsl.Expr, error) {
	t, err := s.reduceDate(timeExpr, locals, presentTime, deps)
	if err != nil {
		return nil, nil, err
	}
	fixed := t.Value.Date
	reducedBody, err := s.reduce(body, locals, &fixed, deps)
	if err != nil {
		return nil, nil, err
	}
	return t, reducedBody, nil
}

// reduceDate reduces a time argument and requires it to fold to a date.
func (s *stubber) reduceDate(e dsl.Expr, locals dsl.Namespace, presentTime *time.Time, deps *[]uuid.UUID) (*dsl.Constant, error) {
	reduced, err := s.reduce(e, locals, presentTime, deps)
	if err != nil {
		return nil, err
	}
	c, ok := reduced.(*dsl.Constant)
	if !ok || c.Value.Kind != dsl.KindDate {
		return nil, &dsl.ReductionError{Expr: e.String(), Reason: "time argument does not reduce to a date"}
	}
	return c, nil
}

// stubCall registers a user-function call as a graph node and replaces
// the call site with a stub reference to it.
func (s *stubber) stubCall(call *dsl.Call, locals dsl.Namespace, presentTime *time.Time, deps *[]uuid.UUID) (dsl.Expr, error) {
	def, ok := s.defs[call.Func]
	if !ok {
		return nil, &dsl.ReductionError{Expr: call.String(), Reason: "call to undefined function " + call.Func}
	}
	if len(call.Args) != len(def.Params) {
		return nil, &dsl.ReductionError{
			Expr:   call.String(),
			Reason: "wrong argument count for " + def.Name,
		}
	}

	args := make(dsl.Namespace, len(def.Params))
	encoded := make([]string, len(call.Args))
	for i, arg := range call.Args {
		reduced, err := s.reduce(arg, locals, presentTime, deps)
		if err != nil {
			return nil, err
		}
		c, ok := reduced.(*dsl.Constant)
		if !ok {
			return nil, &dsl.ReductionError{
				Expr:   arg.String(),
				Reason: "argument does not reduce to a constant",
			}
		}
		args[def.Params[i]] = c.Value
		encoded[i] = c.Value.String()
	}

	callID := model.ComputeCallID(def.Name, encoded, presentTime)
	if !s.seen[callID] {
		s.seen[callID] = true
		s.queue = append(s.queue, pendingCall{
			id:          callID,
			def:         def,
			locals:      args,
			presentTime: presentTime,
		})
	}
	// The same memoized call may be referenced more than once within one
	// caller; record the dependency edge once.
	for _, d := range *deps {
		if d == callID {
			return &dsl.Stub{ID: callID.String()}, nil
		}
	}
	*deps = append(*deps, callID)
	return &dsl.Stub{ID: callID.String()}, nil
}

// foldReduced lets dsl.Reduce fold arithmetic whose operands came out
// constant; anything non-constant is returned unchanged.
func foldReduced(e dsl.Expr, locals dsl.Namespace) (dsl.Expr, error) {
	switch n := e.(type) {
	case *dsl.Unary:
		if _, ok := n.X.(*dsl.Constant); ok {
			return dsl.Reduce(n, locals)
		}
	case *dsl.Binary:
		_, lok := n.Left.(*dsl.Constant)
		_, rok := n.Right.(*dsl.Constant)
		if lok && rok {
			return dsl.Reduce(n, locals)
		}
	}
	return e, nil
}
