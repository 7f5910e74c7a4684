package dsl

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// PriceLookup resolves the simulated price vector of a market at a given
// time within one market simulation.
type PriceLookup interface {
	Price(ctx context.Context, simulationID uuid.UUID, marketName string, t time.Time) ([]float64, error)
}

// EvalContext is the numeric evaluation context for one call: the
// simulated-price lookup, the owning simulation, the continuously
// compounded annual interest rate, the effective present time, and the
// simulation's first configured market (the default when an operator
// needs a market but none is explicit).
type EvalContext struct {
	Prices          PriceLookup
	SimulationID    uuid.UUID
	InterestRate    float64
	PresentTime     time.Time
	FirstMarketName string
}

// YearFraction is the ACT/365 day-count fraction between two dates.
func YearFraction(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / 365
}

// DiscountFactor discounts from time "to" back to time "from" at a
// continuously compounded annual rate.
func DiscountFactor(rate float64, from, to time.Time) float64 {
	return math.Exp(-rate * YearFraction(from, to))
}

// Evaluate computes the numeric value of a fully reduced expression. Any
// remaining Name, Call, or Stub node means reduction was skipped or
// incomplete and is reported as a reduction error.
func Evaluate(ctx context.Context, e Expr, ec EvalContext) (Value, error) {
	switch n := e.(type) {
	case *Constant:
		return n.Value, nil

	case *Unary:
		x, err := Evaluate(ctx, n.X, ec)
		if err != nil {
			return Value{}, err
		}
		return Neg(x)

	case *Binary:
		left, err := Evaluate(ctx, n.Left, ec)
		if err != nil {
			return Value{}, err
		}
		right, err := Evaluate(ctx, n.Right, ec)
		if err != nil {
			return Value{}, err
		}
		return applyBinary(n.Op, left, right)

	case *Conditional:
		cond, err := Evaluate(ctx, n.Cond, ec)
		if err != nil {
			return Value{}, err
		}
		if cond.Kind != KindBool {
			return Value{}, reductionErrorf(n, "condition is not a bool")
		}
		if cond.Bool {
			return Evaluate(ctx, n.Then, ec)
		}
		return Evaluate(ctx, n.Else, ec)

	case *Max:
		left, right, err := evalPair(ctx, n.Left, n.Right, ec)
		if err != nil {
			return Value{}, err
		}
		return MaxValue(left, right)

	case *Min:
		left, right, err := evalPair(ctx, n.Left, n.Right, ec)
		if err != nil {
			return Value{}, err
		}
		return MinValue(left, right)

	case *Choice:
		// Both alternatives are valued independently; the per-path
		// better of the two is the value of holding the choice.
		left, right, err := evalPair(ctx, n.Left, n.Right, ec)
		if err != nil {
			return Value{}, err
		}
		return MaxValue(left, right)

	case *Market:
		name, err := marketName(ctx, n, ec)
		if err != nil {
			return Value{}, err
		}
		paths, err := ec.Prices.Price(ctx, ec.SimulationID, name, ec.PresentTime)
		if err != nil {
			return Value{}, err
		}
		return Vector(paths), nil

	case *Wait:
		t, err := evalDate(ctx, n, n.Time, ec)
		if err != nil {
			return Value{}, err
		}
		inner := ec
		inner.PresentTime = t
		v, err := Evaluate(ctx, n.Body, inner)
		if err != nil {
			return Value{}, err
		}
		return Mul(v, Number(DiscountFactor(ec.InterestRate, ec.PresentTime, t)))

	case *Fixing:
		t, err := evalDate(ctx, n, n.Time, ec)
		if err != nil {
			return Value{}, err
		}
		inner := ec
		inner.PresentTime = t
		return Evaluate(ctx, n.Body, inner)

	case *Settlement:
		t, err := evalDate(ctx, n, n.Time, ec)
		if err != nil {
			return Value{}, err
		}
		v, err := Evaluate(ctx, n.Body, ec)
		if err != nil {
			return Value{}, err
		}
		return Mul(v, Number(DiscountFactor(ec.InterestRate, ec.PresentTime, t)))

	case *Name:
		return Value{}, reductionErrorf(n, "unresolved name %q", n.Ident)
	case *Call:
		return Value{}, reductionErrorf(n, "unreduced call to %q", n.Func)
	case *Stub:
		return Value{}, reductionErrorf(n, "unresolved stubbed call %q", n.ID)
	}

	return Value{}, reductionErrorf(e, "unknown expression variant")
}

func evalPair(ctx context.Context, a, b Expr, ec EvalContext) (Value, Value, error) {
	left, err := Evaluate(ctx, a, ec)
	if err != nil {
		return Value{}, Value{}, err
	}
	right, err := Evaluate(ctx, b, ec)
	if err != nil {
		return Value{}, Value{}, err
	}
	return left, right, nil
}

func evalDate(ctx context.Context, parent Expr, e Expr, ec EvalContext) (time.Time, error) {
	v, err := Evaluate(ctx, e, ec)
	if err != nil {
		return time.Time{}, err
	}
	if v.Kind != KindDate {
		return time.Time{}, reductionErrorf(parent, "time argument is not a date (got %s)", v.Kind)
	}
	return v.Date, nil
}

func marketName(ctx context.Context, m *Market, ec EvalContext) (string, error) {
	v, err := Evaluate(ctx, m.Name, ec)
	if err != nil {
		return "", err
	}
	if v.Kind != KindString || v.Str == "" {
		if ec.FirstMarketName != "" {
			return ec.FirstMarketName, nil
		}
		return "", reductionErrorf(m, "market name is not a string and no default market is configured")
	}
	return v.Str, nil
}
