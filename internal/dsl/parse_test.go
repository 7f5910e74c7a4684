package dsl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModule(t *testing.T) {
	src := `
def "option" {
  params = ["t", "strike"]
  body   = max(market("GAS") - strike, 0)
}

value = option(date("2026-09-01"), 9)
`
	mod, err := Parse("contract.qdsl", []byte(src))
	require.NoError(t, err)

	require.Len(t, mod.Defs, 1)
	def := mod.Defs["option"]
	require.NotNil(t, def)
	assert.Equal(t, []string{"t", "strike"}, def.Params)
	require.IsType(t, &Max{}, def.Body)

	require.Len(t, mod.Body, 1)
	call, ok := mod.Body[0].(*Call)
	require.True(t, ok)
	assert.Equal(t, "option", call.Func)
	require.Len(t, call.Args, 2)

	date, ok := call.Args[0].(*Constant)
	require.True(t, ok)
	assert.Equal(t, KindDate, date.Value.Kind)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), date.Value.Date)
}

func TestParseRootExpressionOrder(t *testing.T) {
	src := "first = 1\nsecond = 2\n"
	mod, err := Parse("contract.qdsl", []byte(src))
	require.NoError(t, err)
	require.Len(t, mod.Body, 2)
	assert.Equal(t, "1", mod.Body[0].String())
	assert.Equal(t, "2", mod.Body[1].String())
}

func TestParseErrors(t *testing.T) {
	t.Run("malformed source carries position", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("value = (1 +"))
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		require.NotEmpty(t, perr.Diags)
	})

	t.Run("empty module", func(t *testing.T) {
		_, err := Parse("empty.qdsl", []byte(""))
		assert.ErrorContains(t, err, "no root expression")
	})

	t.Run("unknown block type", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("thing \"x\" {\n}\nvalue = 1\n"))
		assert.ErrorContains(t, err, "unsupported block type")
	})

	t.Run("def without body", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("def \"f\" {\n  params = []\n}\nvalue = 1\n"))
		assert.ErrorContains(t, err, "missing a body")
	})

	t.Run("duplicate def", func(t *testing.T) {
		src := "def \"f\" {\n  body = 1\n}\ndef \"f\" {\n  body = 2\n}\nvalue = f()\n"
		_, err := Parse("bad.qdsl", []byte(src))
		assert.ErrorContains(t, err, "duplicate definition")
	})

	t.Run("interpolation rejected", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("value = market(\"${x}\")\n"))
		assert.ErrorContains(t, err, "interpolation")
	})

	t.Run("date requires string literal", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("value = date(42)\n"))
		assert.ErrorContains(t, err, "date expects a string literal")
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("value = date(\"not-a-date\")\n"))
		assert.ErrorContains(t, err, "invalid date")
	})

	t.Run("builtin arity", func(t *testing.T) {
		_, err := Parse("bad.qdsl", []byte("value = wait(date(\"2026-01-01\"))\n"))
		assert.ErrorContains(t, err, "expects 2 argument(s)")
	})
}

func TestParseExpressionRoundTrip(t *testing.T) {
	sources := []string{
		`(1 + 2)`,
		`max((market("GAS") - 9), 0)`,
		`choice((market("GAS") - 9), fixing(date("2026-03-02"), stub("8ad414b1-5c8f-4798-b37b-66f27cea25ed")))`,
		`wait(date("2026-01-31"), (100 * 2))`,
		`settlement(date("2026-06-30"), market("NBP"))`,
		`-(3 / 2)`,
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			expr, err := ParseExpression(src)
			require.NoError(t, err)
			rendered := expr.String()
			again, err := ParseExpression(rendered)
			require.NoError(t, err)
			assert.Equal(t, rendered, again.String())
		})
	}
}

func TestParseConditionalAndComparisons(t *testing.T) {
	expr, err := ParseExpression(`date("2026-01-01") < date("2026-02-01") ? 1 : 2`)
	require.NoError(t, err)
	cond, ok := expr.(*Conditional)
	require.True(t, ok)
	cmp, ok := cond.Cond.(*Binary)
	require.True(t, ok)
	assert.Equal(t, OpLT, cmp.Op)
}
