package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/triagelabs/chainsaw/internal/value"
)

func mustDetectionNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func TestParseDetection_SingleSelectionFieldMap(t *testing.T) {
	n := mustDetectionNode(t, `
selection:
  EventID: 4624
  LogonType: 3
condition: selection
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	assert.Equal(t, FilterDetection, f.Kind)
	require.NotEmpty(t, f.Identifiers, "Filter.Identifiers carries the raw selections before optimisation inlines them")

	optimized := f.Optimize()
	assert.Empty(t, optimized.Identifiers)

	match := doc(
		value.Field{Key: "EventID", Val: value.Int(4624)},
		value.Field{Key: "LogonType", Val: value.Int(3)},
	)
	nomatch := doc(
		value.Field{Key: "EventID", Val: value.Int(4624)},
		value.Field{Key: "LogonType", Val: value.Int(2)},
	)
	assert.True(t, Solve(optimized.Expression, match, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, nomatch, IdentityResolver))
}

func TestParseDetection_ListValuedFieldBuildsOneOf(t *testing.T) {
	n := mustDetectionNode(t, `
selection:
  EventID:
    - 4624
    - 4625
condition: selection
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	fe := f.Identifiers["selection"].(FieldExpr)
	_, ok := fe.Match.(OneOf)
	assert.True(t, ok, "sigma list values must build OneOf, never In")
}

func TestParseDetection_SequenceOfScalarsIsKeywordSearch(t *testing.T) {
	n := mustDetectionNode(t, `
keywords:
  - mimikatz
  - procdump
condition: keywords
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	optimized := f.Optimize()

	hit := doc(value.Field{Key: "CommandLine", Val: value.String("run procdump.exe -ma lsass.exe")})
	miss := doc(value.Field{Key: "CommandLine", Val: value.String("whoami")})
	assert.True(t, Solve(optimized.Expression, hit, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, miss, IdentityResolver))
}

func TestParseDetection_AndOrNotParens(t *testing.T) {
	n := mustDetectionNode(t, `
sel1:
  EventID: 1
sel2:
  EventID: 2
sel3:
  User: SYSTEM
condition: (sel1 or sel2) and not sel3
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	optimized := f.Optimize()

	match := doc(value.Field{Key: "EventID", Val: value.Int(1)}, value.Field{Key: "User", Val: value.String("bob")})
	excludedBySel3 := doc(value.Field{Key: "EventID", Val: value.Int(1)}, value.Field{Key: "User", Val: value.String("SYSTEM")})
	neitherSel := doc(value.Field{Key: "EventID", Val: value.Int(9)}, value.Field{Key: "User", Val: value.String("bob")})

	assert.True(t, Solve(optimized.Expression, match, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, excludedBySel3, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, neitherSel, IdentityResolver))
}

func TestParseDetection_OneOfGlobExpansion(t *testing.T) {
	n := mustDetectionNode(t, `
filter_main:
  EventID: 1
filter_optional_a:
  User: a
filter_optional_b:
  User: b
condition: filter_main and 1 of filter_optional_*
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	optimized := f.Optimize()

	a := doc(value.Field{Key: "EventID", Val: value.Int(1)}, value.Field{Key: "User", Val: value.String("a")})
	neither := doc(value.Field{Key: "EventID", Val: value.Int(1)}, value.Field{Key: "User", Val: value.String("z")})
	assert.True(t, Solve(optimized.Expression, a, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, neither, IdentityResolver))
}

func TestParseDetection_AllOfThem(t *testing.T) {
	n := mustDetectionNode(t, `
sel1:
  a: 1
sel2:
  b: 2
condition: all of them
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	optimized := f.Optimize()

	both := doc(value.Field{Key: "a", Val: value.Int(1)}, value.Field{Key: "b", Val: value.Int(2)})
	onlyOne := doc(value.Field{Key: "a", Val: value.Int(1)})
	assert.True(t, Solve(optimized.Expression, both, IdentityResolver))
	assert.False(t, Solve(optimized.Expression, onlyOne, IdentityResolver))
}

func TestParseDetection_OfGlobMatchingNothingIsLoadError(t *testing.T) {
	n := mustDetectionNode(t, `
sel1:
  a: 1
condition: 1 of filter_*
`)
	_, err := ParseDetection(n)
	assert.Error(t, err, "a glob target matching zero identifiers must fail to load, not silently evaluate false")
}

func TestParseDetection_UnresolvedIdentifierErrors(t *testing.T) {
	n := mustDetectionNode(t, `
sel1:
  a: 1
condition: sel1 and sel2
`)
	_, err := ParseDetection(n)
	assert.Error(t, err)
}

func TestParseDetection_UnsupportedAggregationIsHardFailure(t *testing.T) {
	n := mustDetectionNode(t, `
sel1:
  a: 1
condition: sel1 | count() > 5
`)
	_, err := ParseDetection(n)
	assert.Error(t, err)

	n2 := mustDetectionNode(t, `
sel1:
  a: 1
condition: sel1 | near sel1
`)
	_, err = ParseDetection(n2)
	assert.Error(t, err)
}

func TestParseDetection_FieldModifierOnSelectionKey(t *testing.T) {
	n := mustDetectionNode(t, `
selection:
  CommandLine|contains: mimikatz
condition: selection
`)
	f, err := ParseDetection(n)
	require.NoError(t, err)
	fe := f.Identifiers["selection"].(FieldExpr)
	c, ok := fe.Match.(Contains)
	require.True(t, ok)
	assert.True(t, c.CI, "sigma text comparisons default to case-insensitive")
}

func TestParseDetection_MissingConditionErrors(t *testing.T) {
	n := mustDetectionNode(t, `
selection:
  a: 1
`)
	_, err := ParseDetection(n)
	assert.Error(t, err)
}

func TestParseDetection_NotAMappingErrors(t *testing.T) {
	n := mustDetectionNode(t, `[1, 2, 3]`)
	_, err := ParseDetection(n)
	assert.Error(t, err)
}
