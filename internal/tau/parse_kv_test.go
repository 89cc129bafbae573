package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKV_PlainEquality(t *testing.T) {
	e, err := ParseKV("EventID: 4624")
	require.NoError(t, err)
	f, ok := e.(FieldExpr)
	require.True(t, ok)
	assert.Equal(t, "EventID", f.Path)
	eq, ok := f.Match.(Equal)
	require.True(t, ok)
	n, _ := eq.Value.AsInt64()
	assert.Equal(t, int64(4624), n)
}

func TestParseKV_ModifierChain(t *testing.T) {
	e, err := ParseKV("CommandLine|contains|i: mimikatz")
	require.NoError(t, err)
	f := e.(FieldExpr)
	c, ok := f.Match.(Contains)
	require.True(t, ok)
	assert.True(t, c.CI)
	assert.Equal(t, "mimikatz", c.Text)
}

func TestParseKV_BracketedListBuildsIn(t *testing.T) {
	e, err := ParseKV("EventID: [4624, 4625]")
	require.NoError(t, err)
	f := e.(FieldExpr)
	in, ok := f.Match.(In)
	require.True(t, ok)
	require.Len(t, in.Set, 2)
}

func TestParseKV_QuotedValueBypassesCoercion(t *testing.T) {
	e, err := ParseKV(`Status: "true"`)
	require.NoError(t, err)
	f := e.(FieldExpr)
	eq := f.Match.(Equal)
	s, ok := eq.Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "true", s)
}

func TestParseKV_BoolAndFloatCoercion(t *testing.T) {
	e, err := ParseKV("Elevated: true")
	require.NoError(t, err)
	b, ok := e.(FieldExpr).Match.(Equal).Value.AsBool()
	require.True(t, ok)
	assert.True(t, b)

	e2, err := ParseKV("Score: 3.5")
	require.NoError(t, err)
	f2, ok := e2.(FieldExpr).Match.(Equal).Value.AsFloat64()
	require.True(t, ok)
	assert.Equal(t, 3.5, f2)
}

func TestParseKV_MissingColonErrors(t *testing.T) {
	_, err := ParseKV("EventID 4624")
	assert.Error(t, err)
}

func TestParseKV_EmptyFieldNameErrors(t *testing.T) {
	_, err := ParseKV(": 4624")
	assert.Error(t, err)
}

func TestParseKV_UnknownModifierErrors(t *testing.T) {
	_, err := ParseKV("EventID|bogus: 1")
	assert.Error(t, err)
}
