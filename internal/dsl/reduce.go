package dsl

// Namespace binds names (function parameters or stubbed call ids) to
// constant values during reduction.
type Namespace map[string]Value

// Reduce substitutes bound names, folds constant sub-expressions, and
// selects conditional arms. The result contains no Name, Call, or Stub
// nodes and no Conditional nodes; what remains is evaluable against a
// market simulation.
//
// The stub generator performs its own reduction (it must intercept Call
// nodes); Reduce is the evaluator's version, where the only bindings are
// dependency results keyed by stub id and any remaining deferral boundary
// is an error.
func Reduce(e Expr, locals Namespace) (Expr, error) {
	switch n := e.(type) {
	case *Constant:
		return n, nil

	case *Name:
		v, ok := locals[n.Ident]
		if !ok {
			return nil, reductionErrorf(n, "unresolved name %q", n.Ident)
		}
		return &Constant{Value: v}, nil

	case *Stub:
		v, ok := locals[n.ID]
		if !ok {
			return nil, reductionErrorf(n, "unresolved stubbed call %q", n.ID)
		}
		return &Constant{Value: v}, nil

	case *Unary:
		x, err := Reduce(n.X, locals)
		if err != nil {
			return nil, err
		}
		if c, ok := x.(*Constant); ok {
			v, err := Neg(c.Value)
			if err != nil {
				return nil, reductionErrorf(n, "%v", err)
			}
			return &Constant{Value: v}, nil
		}
		return &Unary{X: x}, nil

	case *Binary:
		left, err := Reduce(n.Left, locals)
		if err != nil {
			return nil, err
		}
		right, err := Reduce(n.Right, locals)
		if err != nil {
			return nil, err
		}
		lc, lok := left.(*Constant)
		rc, rok := right.(*Constant)
		if lok && rok {
			v, err := applyBinary(n.Op, lc.Value, rc.Value)
			if err != nil {
				return nil, reductionErrorf(n, "%v", err)
			}
			return &Constant{Value: v}, nil
		}
		return &Binary{Op: n.Op, Left: left, Right: right}, nil

	case *Conditional:
		cond, err := Reduce(n.Cond, locals)
		if err != nil {
			return nil, err
		}
		c, ok := cond.(*Constant)
		if !ok || c.Value.Kind != KindBool {
			return nil, reductionErrorf(n, "condition does not reduce to a constant bool")
		}
		if c.Value.Bool {
			return Reduce(n.Then, locals)
		}
		return Reduce(n.Else, locals)

	case *Max:
		left, right, err := reducePair(n.Left, n.Right, locals)
		if err != nil {
			return nil, err
		}
		return &Max{Left: left, Right: right}, nil

	case *Min:
		left, right, err := reducePair(n.Left, n.Right, locals)
		if err != nil {
			return nil, err
		}
		return &Min{Left: left, Right: right}, nil

	case *Choice:
		left, right, err := reducePair(n.Left, n.Right, locals)
		if err != nil {
			return nil, err
		}
		return &Choice{Left: left, Right: right}, nil

	case *Market:
		name, err := Reduce(n.Name, locals)
		if err != nil {
			return nil, err
		}
		return &Market{Name: name}, nil

	case *Wait:
		t, body, err := reducePair(n.Time, n.Body, locals)
		if err != nil {
			return nil, err
		}
		return &Wait{Time: t, Body: body}, nil

	case *Fixing:
		t, body, err := reducePair(n.Time, n.Body, locals)
		if err != nil {
			return nil, err
		}
		return &Fixing{Time: t, Body: body}, nil

	case *Settlement:
		t, body, err := reducePair(n.Time, n.Body, locals)
		if err != nil {
			return nil, err
		}
		return &Settlement{Time: t, Body: body}, nil

	case *Call:
		return nil, reductionErrorf(n, "call to undefined function %q", n.Func)
	}

	return nil, reductionErrorf(e, "unknown expression variant")
}

func reducePair(a, b Expr, locals Namespace) (Expr, Expr, error) {
	ra, err := Reduce(a, locals)
	if err != nil {
		return nil, nil, err
	}
	rb, err := Reduce(b, locals)
	if err != nil {
		return nil, nil, err
	}
	return ra, rb, nil
}

// applyBinary folds a binary operator over two constant values.
func applyBinary(op BinaryOp, a, b Value) (Value, error) {
	switch op {
	case OpAdd:
		return Add(a, b)
	case OpSub:
		return Sub(a, b)
	case OpMul:
		return Mul(a, b)
	case OpDiv:
		return Div(a, b)
	default:
		return Compare(op, a, b)
	}
}
