package dsl

import (
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Parse parses a contract specification in HCL native syntax into a
// Module. Top-level "def" blocks define user functions; top-level
// attributes are the module's root expressions in declaration order.
// Graph compilation values the first root expression only; later roots
// are parsed and retained but not evaluated.
func Parse(filename string, src []byte) (*Module, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &ParseError{Diags: diags}
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, parseErrorf(hcl.Range{Filename: filename}, "unexpected body type")
	}

	mod := &Module{Defs: make(map[string]*FunctionDef)}

	for _, block := range body.Blocks {
		if block.Type != "def" {
			return nil, parseErrorf(block.TypeRange, "unsupported block type %q, expected \"def\"", block.Type)
		}
		if len(block.Labels) != 1 {
			return nil, parseErrorf(block.TypeRange, "def block requires exactly one label (the function name)")
		}
		def, err := parseDef(block)
		if err != nil {
			return nil, err
		}
		if _, exists := mod.Defs[def.Name]; exists {
			return nil, parseErrorf(block.TypeRange, "duplicate definition of function %q", def.Name)
		}
		mod.Defs[def.Name] = def
	}

	// hclsyntax exposes attributes as a map; recover declaration order
	// from source positions.
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	for _, attr := range attrs {
		expr, err := translate(attr.Expr)
		if err != nil {
			return nil, err
		}
		mod.Body = append(mod.Body, expr)
	}

	if len(mod.Body) == 0 {
		return nil, parseErrorf(hcl.Range{Filename: filename}, "module has no root expression")
	}
	return mod, nil
}

// ParseExpression parses a single expression, as stored in a call
// requirement's residual DSL source.
func ParseExpression(src string) (Expr, error) {
	syn, diags := hclsyntax.ParseExpression([]byte(src), "<residual>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &ParseError{Diags: diags}
	}
	return translate(syn)
}

func parseDef(block *hclsyntax.Block) (*FunctionDef, error) {
	def := &FunctionDef{Name: block.Labels[0]}

	for name, attr := range block.Body.Attributes {
		switch name {
		case "params":
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, &ParseError{Diags: diags}
			}
			if !val.CanIterateElements() {
				return nil, parseErrorf(attr.SrcRange, "params must be a list of parameter names")
			}
			for it := val.ElementIterator(); it.Next(); {
				_, elem := it.Element()
				if elem.Type() != cty.String {
					return nil, parseErrorf(attr.SrcRange, "params must be a list of strings")
				}
				def.Params = append(def.Params, elem.AsString())
			}
		case "body":
			expr, err := translate(attr.Expr)
			if err != nil {
				return nil, err
			}
			def.Body = expr
		default:
			return nil, parseErrorf(attr.NameRange, "unsupported attribute %q in def block", name)
		}
	}
	if len(block.Body.Blocks) > 0 {
		return nil, parseErrorf(block.Body.Blocks[0].TypeRange, "def blocks cannot contain nested blocks")
	}
	if def.Body == nil {
		return nil, parseErrorf(block.TypeRange, "def %q is missing a body attribute", def.Name)
	}
	return def, nil
}

// translate converts an hclsyntax expression tree into the DSL's closed
// variant set.
func translate(syn hclsyntax.Expression) (Expr, error) {
	switch e := syn.(type) {
	case *hclsyntax.LiteralValueExpr:
		return literal(e.Val, e.Range())

	case *hclsyntax.TemplateExpr:
		// Plain string literals arrive as single-part templates.
		if len(e.Parts) == 1 {
			if lit, ok := e.Parts[0].(*hclsyntax.LiteralValueExpr); ok {
				return literal(lit.Val, e.Range())
			}
		}
		return nil, parseErrorf(e.Range(), "string interpolation is not part of the contract language")

	case *hclsyntax.ParenthesesExpr:
		return translate(e.Expression)

	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) != 1 {
			return nil, parseErrorf(e.Range(), "attribute access is not part of the contract language")
		}
		return &Name{Ident: e.Traversal.RootName()}, nil

	case *hclsyntax.UnaryOpExpr:
		if e.Op != hclsyntax.OpNegate {
			return nil, parseErrorf(e.Range(), "unsupported unary operator")
		}
		x, err := translate(e.Val)
		if err != nil {
			return nil, err
		}
		return &Unary{X: x}, nil

	case *hclsyntax.BinaryOpExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			return nil, parseErrorf(e.Range(), "unsupported binary operator")
		}
		left, err := translate(e.LHS)
		if err != nil {
			return nil, err
		}
		right, err := translate(e.RHS)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil

	case *hclsyntax.ConditionalExpr:
		cond, err := translate(e.Condition)
		if err != nil {
			return nil, err
		}
		then, err := translate(e.TrueResult)
		if err != nil {
			return nil, err
		}
		els, err := translate(e.FalseResult)
		if err != nil {
			return nil, err
		}
		return &Conditional{Cond: cond, Then: then, Else: els}, nil

	case *hclsyntax.FunctionCallExpr:
		return translateCall(e)
	}

	return nil, parseErrorf(syn.Range(), "unsupported expression construct")
}

var binaryOps = map[*hclsyntax.Operation]BinaryOp{
	hclsyntax.OpAdd:                OpAdd,
	hclsyntax.OpSubtract:           OpSub,
	hclsyntax.OpMultiply:           OpMul,
	hclsyntax.OpDivide:             OpDiv,
	hclsyntax.OpLessThan:           OpLT,
	hclsyntax.OpLessThanOrEqual:    OpLE,
	hclsyntax.OpGreaterThan:        OpGT,
	hclsyntax.OpGreaterThanOrEqual: OpGE,
	hclsyntax.OpEqual:              OpEQ,
	hclsyntax.OpNotEqual:           OpNE,
}

func literal(v cty.Value, rng hcl.Range) (Expr, error) {
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return &Constant{Value: Number(f)}, nil
	case cty.String:
		return &Constant{Value: String(v.AsString())}, nil
	case cty.Bool:
		return &Constant{Value: Bool(v.True())}, nil
	}
	return nil, parseErrorf(rng, "unsupported literal type %s", v.Type().FriendlyName())
}

func translateCall(e *hclsyntax.FunctionCallExpr) (Expr, error) {
	args := make([]Expr, len(e.Args))
	for i, a := range e.Args {
		arg, err := translate(a)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	arity := func(n int) error {
		if len(args) != n {
			return parseErrorf(e.Range(), "%s expects %d argument(s), got %d", e.Name, n, len(args))
		}
		return nil
	}

	switch e.Name {
	case "max":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Max{Left: args[0], Right: args[1]}, nil
	case "min":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Min{Left: args[0], Right: args[1]}, nil
	case "choice":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Choice{Left: args[0], Right: args[1]}, nil
	case "wait":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Wait{Time: args[0], Body: args[1]}, nil
	case "fixing":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Fixing{Time: args[0], Body: args[1]}, nil
	case "settlement":
		if err := arity(2); err != nil {
			return nil, err
		}
		return &Settlement{Time: args[0], Body: args[1]}, nil
	case "market":
		if err := arity(1); err != nil {
			return nil, err
		}
		return &Market{Name: args[0]}, nil
	case "date":
		if err := arity(1); err != nil {
			return nil, err
		}
		c, ok := args[0].(*Constant)
		if !ok || c.Value.Kind != KindString {
			return nil, parseErrorf(e.Range(), "date expects a string literal")
		}
		t, err := parseDate(c.Value.Str)
		if err != nil {
			return nil, parseErrorf(e.Range(), "invalid date %q", c.Value.Str)
		}
		return &Constant{Value: Date(t)}, nil
	case "days", "months":
		if err := arity(1); err != nil {
			return nil, err
		}
		c, ok := args[0].(*Constant)
		if !ok || c.Value.Kind != KindNumber {
			return nil, parseErrorf(e.Range(), "%s expects a number literal", e.Name)
		}
		n := int(c.Value.Num)
		if e.Name == "days" {
			return &Constant{Value: Days(n)}, nil
		}
		return &Constant{Value: Months(n)}, nil
	case "stub":
		if err := arity(1); err != nil {
			return nil, err
		}
		c, ok := args[0].(*Constant)
		if !ok || c.Value.Kind != KindString {
			return nil, parseErrorf(e.Range(), "stub expects a string literal id")
		}
		return &Stub{ID: c.Value.Str}, nil
	}

	// Anything else is a user-defined function call, a deferral boundary.
	return &Call{Func: e.Name, Args: args}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
