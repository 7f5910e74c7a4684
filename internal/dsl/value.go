package dsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind enumerates the kinds a DSL value can take.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindBool
	KindString
	KindDate
	KindDuration
	KindVector
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindDuration:
		return "duration"
	case KindVector:
		return "vector"
	}
	return "unknown"
}

// Duration is a calendar offset used to step evaluation times forward.
type Duration struct {
	Months int `json:"months"`
	Days   int `json:"days"`
}

// Value is a DSL runtime value: a scalar number, a bool, a string, a
// calendar date, a calendar duration, or a per-path vector of numbers.
type Value struct {
	Kind ValueKind `json:"kind"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
	Str  string    `json:"str,omitempty"`
	Date time.Time `json:"date,omitempty"`
	Dur  Duration  `json:"dur,omitempty"`
	Vec  []float64 `json:"vec,omitempty"`
}

func Number(f float64) Value      { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Date(t time.Time) Value      { return Value{Kind: KindDate, Date: t.UTC()} }
func Days(n int) Value            { return Value{Kind: KindDuration, Dur: Duration{Days: n}} }
func Months(n int) Value          { return Value{Kind: KindDuration, Dur: Duration{Months: n}} }
func Vector(v []float64) Value    { return Value{Kind: KindVector, Vec: v} }

// Scalar reports the numeric value when the value is a plain number.
func (v Value) Scalar() (float64, bool) {
	if v.Kind == KindNumber {
		return v.Num, true
	}
	return 0, false
}

// Mean is the per-path mean for vectors, or the number itself for scalars.
func (v Value) Mean() float64 {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindVector:
		if len(v.Vec) == 0 {
			return 0
		}
		sum := 0.0
		for _, x := range v.Vec {
			sum += x
		}
		return sum / float64(len(v.Vec))
	}
	return math.NaN()
}

// String renders a value as DSL source, so rendered residual expressions
// round-trip through the parser.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return strconv.Quote(v.Str)
	case KindDate:
		return `date("` + v.Date.UTC().Format("2006-01-02") + `")`
	case KindDuration:
		switch {
		case v.Dur.Months != 0 && v.Dur.Days != 0:
			return fmt.Sprintf("(months(%d) + days(%d))", v.Dur.Months, v.Dur.Days)
		case v.Dur.Months != 0:
			return fmt.Sprintf("months(%d)", v.Dur.Months)
		default:
			return fmt.Sprintf("days(%d)", v.Dur.Days)
		}
	case KindVector:
		parts := make([]string, len(v.Vec))
		for i, x := range v.Vec {
			parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

// broadcast applies f elementwise over two numeric values, promoting
// scalars against vectors. Vector lengths must agree.
func broadcast(a, b Value, f func(x, y float64) float64) (Value, error) {
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		return Number(f(a.Num, b.Num)), nil
	case a.Kind == KindVector && b.Kind == KindNumber:
		out := make([]float64, len(a.Vec))
		for i, x := range a.Vec {
			out[i] = f(x, b.Num)
		}
		return Vector(out), nil
	case a.Kind == KindNumber && b.Kind == KindVector:
		out := make([]float64, len(b.Vec))
		for i, y := range b.Vec {
			out[i] = f(a.Num, y)
		}
		return Vector(out), nil
	case a.Kind == KindVector && b.Kind == KindVector:
		if len(a.Vec) != len(b.Vec) {
			return Value{}, fmt.Errorf("vector length mismatch: %d vs %d", len(a.Vec), len(b.Vec))
		}
		out := make([]float64, len(a.Vec))
		for i := range a.Vec {
			out[i] = f(a.Vec[i], b.Vec[i])
		}
		return Vector(out), nil
	}
	return Value{}, fmt.Errorf("operands must be numeric, got %s and %s", a.Kind, b.Kind)
}

// Add implements "+" for numbers/vectors, date + duration, and
// duration + duration.
func Add(a, b Value) (Value, error) {
	switch {
	case a.Kind == KindDate && b.Kind == KindDuration:
		return Date(a.Date.AddDate(0, b.Dur.Months, b.Dur.Days)), nil
	case a.Kind == KindDuration && b.Kind == KindDate:
		return Date(b.Date.AddDate(0, a.Dur.Months, a.Dur.Days)), nil
	case a.Kind == KindDuration && b.Kind == KindDuration:
		return Value{Kind: KindDuration, Dur: Duration{
			Months: a.Dur.Months + b.Dur.Months,
			Days:   a.Dur.Days + b.Dur.Days,
		}}, nil
	}
	return broadcast(a, b, func(x, y float64) float64 { return x + y })
}

// Sub implements "-" for numbers/vectors and date - duration.
func Sub(a, b Value) (Value, error) {
	if a.Kind == KindDate && b.Kind == KindDuration {
		return Date(a.Date.AddDate(0, -b.Dur.Months, -b.Dur.Days)), nil
	}
	return broadcast(a, b, func(x, y float64) float64 { return x - y })
}

func Mul(a, b Value) (Value, error) {
	return broadcast(a, b, func(x, y float64) float64 { return x * y })
}

func Div(a, b Value) (Value, error) {
	return broadcast(a, b, func(x, y float64) float64 { return x / y })
}

// Neg negates a number or vector.
func Neg(a Value) (Value, error) {
	switch a.Kind {
	case KindNumber:
		return Number(-a.Num), nil
	case KindVector:
		out := make([]float64, len(a.Vec))
		for i, x := range a.Vec {
			out[i] = -x
		}
		return Vector(out), nil
	}
	return Value{}, fmt.Errorf("cannot negate %s", a.Kind)
}

// MaxValue is the elementwise maximum of two numeric values.
func MaxValue(a, b Value) (Value, error) {
	return broadcast(a, b, math.Max)
}

// MinValue is the elementwise minimum of two numeric values.
func MinValue(a, b Value) (Value, error) {
	return broadcast(a, b, math.Min)
}

// Compare applies a comparison operator to two values of matching kind.
// Numbers compare numerically, dates chronologically, strings
// lexicographically. Vectors do not compare; comparisons exist to steer
// compile-time reduction, which is scalar by construction.
func Compare(op BinaryOp, a, b Value) (Value, error) {
	var c int
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		switch {
		case a.Num < b.Num:
			c = -1
		case a.Num > b.Num:
			c = 1
		}
	case a.Kind == KindDate && b.Kind == KindDate:
		switch {
		case a.Date.Before(b.Date):
			c = -1
		case a.Date.After(b.Date):
			c = 1
		}
	case a.Kind == KindString && b.Kind == KindString:
		c = strings.Compare(a.Str, b.Str)
	default:
		return Value{}, fmt.Errorf("cannot compare %s with %s", a.Kind, b.Kind)
	}

	switch op {
	case OpLT:
		return Bool(c < 0), nil
	case OpLE:
		return Bool(c <= 0), nil
	case OpGT:
		return Bool(c > 0), nil
	case OpGE:
		return Bool(c >= 0), nil
	case OpEQ:
		return Bool(c == 0), nil
	case OpNE:
		return Bool(c != 0), nil
	}
	return Value{}, fmt.Errorf("not a comparison operator: %v", op)
}
