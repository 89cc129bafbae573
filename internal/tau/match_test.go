package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/chainsaw/internal/value"
)

func TestBuildMatch_NoModifierIsEqual(t *testing.T) {
	m, err := BuildMatch(nil, []value.Value{value.Int(4624)}, false)
	require.NoError(t, err)
	eq, ok := m.(Equal)
	require.True(t, ok)
	n, _ := eq.Value.AsInt64()
	assert.Equal(t, int64(4624), n)
}

func TestBuildMatch_UnmodifiedListPrefersIn(t *testing.T) {
	m, err := BuildMatch(nil, []value.Value{value.Int(1), value.Int(2)}, true)
	require.NoError(t, err)
	_, ok := m.(In)
	assert.True(t, ok, "kv-style unmodified list should build In, not OneOf")
}

func TestBuildMatch_UnmodifiedListWithoutPreferSetBuildsOneOf(t *testing.T) {
	m, err := BuildMatch(nil, []value.Value{value.Int(1), value.Int(2)}, false)
	require.NoError(t, err)
	_, ok := m.(OneOf)
	assert.True(t, ok, "sigma-style translation always asks for OneOf")
}

func TestBuildMatch_ContainsAllBuildsAllOf(t *testing.T) {
	m, err := BuildMatch([]string{"contains", "all"}, []value.Value{value.String(" -enc "), value.String(" -nop ")}, false)
	require.NoError(t, err)
	all, ok := m.(AllOf)
	require.True(t, ok)
	require.Len(t, all.Matches, 2)

	doc := value.String("powershell -nop -enc AAA")
	assert.True(t, evalMatch(all, doc))
	assert.False(t, evalMatch(all, value.String("powershell -enc AAA")))
}

func TestBuildMatch_ConflictingModifiersError(t *testing.T) {
	_, err := BuildMatch([]string{"contains", "startswith"}, []value.Value{value.String("x")}, false)
	assert.Error(t, err)
}

func TestBuildMatch_UnknownModifierErrors(t *testing.T) {
	_, err := BuildMatch([]string{"bogus"}, []value.Value{value.String("x")}, false)
	assert.Error(t, err)
}

func TestBuildMatch_RegexCaseInsensitive(t *testing.T) {
	m, err := BuildMatch([]string{"re", "i"}, []value.Value{value.String("^mimikatz$")}, false)
	require.NoError(t, err)
	assert.True(t, evalMatch(m, value.String("MimiKatz")))
	assert.False(t, evalMatch(m, value.String("not-it")))
}

func TestBuildMatch_MalformedRegexErrors(t *testing.T) {
	_, err := BuildMatch([]string{"re"}, []value.Value{value.String("(unclosed")}, false)
	assert.Error(t, err)
}

func TestBuildMatch_NumericComparators(t *testing.T) {
	gt, err := BuildMatch([]string{"gt"}, []value.Value{value.Int(10)}, false)
	require.NoError(t, err)
	assert.True(t, evalMatch(gt, value.Int(11)))
	assert.False(t, evalMatch(gt, value.Int(10)))

	le, err := BuildMatch([]string{"lte"}, []value.Value{value.Int(10)}, false)
	require.NoError(t, err)
	assert.True(t, evalMatch(le, value.Int(10)))
	assert.True(t, evalMatch(le, value.String("9")), "numeric comparator coerces a numeric string")
}

func TestEvalEqual_StringLiteralComparesByCanonicalForm(t *testing.T) {
	m := Equal{Value: value.String("1")}
	assert.True(t, evalMatch(m, value.Int(1)))
	assert.False(t, evalMatch(m, value.Int(2)))
}

func TestEvalEqual_CrossKindNumeric(t *testing.T) {
	m := Equal{Value: value.Int(5)}
	assert.True(t, evalMatch(m, value.Uint(5)))
	assert.True(t, evalMatch(m, value.Float(5.0)))
	assert.False(t, evalMatch(m, value.Float(5.1)))
}

func TestEvalMatch_In(t *testing.T) {
	m := In{Set: []value.Value{value.Int(1), value.Int(2), value.Int(3)}}
	assert.True(t, evalMatch(m, value.Int(2)))
	assert.False(t, evalMatch(m, value.Int(4)))
}
