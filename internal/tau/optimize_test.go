package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/chainsaw/internal/value"
)

func TestCoalesce_InlinesIdentifierAndClearsNothingItself(t *testing.T) {
	ids := map[string]Expr{
		"sel": FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
	}
	out := Coalesce(Identifier{Name: "sel"}, ids)
	f, ok := out.(FieldExpr)
	require.True(t, ok)
	assert.Equal(t, "a", f.Path)
}

func TestCoalesce_UnboundIdentifierBecomesFalse(t *testing.T) {
	out := Coalesce(Identifier{Name: "missing"}, map[string]Expr{})
	b, ok := out.(Boolean)
	require.True(t, ok)
	assert.False(t, b.Value)
}

func TestCoalesce_SelfReferenceDoesNotLoop(t *testing.T) {
	ids := map[string]Expr{"a": Identifier{Name: "a"}}
	out := Coalesce(Identifier{Name: "a"}, ids)
	b, ok := out.(Boolean)
	require.True(t, ok)
	assert.False(t, b.Value)
}

func TestShake_FalseConjunctCollapsesAnd(t *testing.T) {
	e := Group{Op: And, Children: []Expr{
		Boolean{Value: true},
		Boolean{Value: false},
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
	}}
	out := Shake(e)
	b, ok := out.(Boolean)
	require.True(t, ok)
	assert.False(t, b.Value)
}

func TestShake_TrueDisjunctCollapsesOr(t *testing.T) {
	e := Group{Op: Or, Children: []Expr{
		Boolean{Value: false},
		Boolean{Value: true},
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
	}}
	out := Shake(e)
	b, ok := out.(Boolean)
	require.True(t, ok)
	assert.True(t, b.Value)
}

func TestShake_DropsUnitElementsAndFlattensNestedSameOp(t *testing.T) {
	inner := Group{Op: And, Children: []Expr{
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
		FieldExpr{Path: "b", Match: Equal{Value: value.Int(2)}},
	}}
	e := Group{Op: And, Children: []Expr{Boolean{Value: true}, inner}}
	out := Shake(e)
	g, ok := out.(Group)
	require.True(t, ok)
	assert.Equal(t, And, g.Op)
	require.Len(t, g.Children, 2, "nested And flattens into the parent And, dropping the true unit")
}

func TestShake_SingleChildCollapsesToChild(t *testing.T) {
	e := Group{Op: And, Children: []Expr{FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}}}}
	out := Shake(e)
	_, isField := out.(FieldExpr)
	assert.True(t, isField)
}

func TestShake_EmptyGroupsReduceToUnit(t *testing.T) {
	and, ok := Shake(Group{Op: And}).(Boolean)
	require.True(t, ok)
	assert.True(t, and.Value)

	or, ok := Shake(Group{Op: Or}).(Boolean)
	require.True(t, ok)
	assert.False(t, or.Value)
}

func TestRewrite_DoubleNegationCollapses(t *testing.T) {
	inner := FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}}
	out := Rewrite(Negate{Child: Negate{Child: inner}})
	f, ok := out.(FieldExpr)
	require.True(t, ok)
	assert.Equal(t, "a", f.Path)
}

func TestRewrite_DeMorganPushesNegationInward(t *testing.T) {
	a := FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}}
	b := FieldExpr{Path: "b", Match: Equal{Value: value.Int(2)}}
	out := Rewrite(Negate{Child: Group{Op: And, Children: []Expr{a, b}}})
	g, ok := out.(Group)
	require.True(t, ok)
	assert.Equal(t, Or, g.Op)
	require.Len(t, g.Children, 2)
	for _, c := range g.Children {
		_, isNegate := c.(Negate)
		assert.True(t, isNegate)
	}
}

func TestMatrix_FusesSiblingEqualsUnderOrIntoOneOf(t *testing.T) {
	e := Group{Op: Or, Children: []Expr{
		FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(1)}},
		FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(2)}},
	}}
	out := Matrix(e)
	g, ok := out.(Group)
	require.True(t, ok)
	require.Len(t, g.Children, 1)
	f, ok := g.Children[0].(FieldExpr)
	require.True(t, ok)
	oneOf, ok := f.Match.(OneOf)
	require.True(t, ok)
	assert.Len(t, oneOf.Matches, 2)
}

func TestMatrix_FusesSiblingEqualsUnderAndIntoAllOf(t *testing.T) {
	e := Group{Op: And, Children: []Expr{
		FieldExpr{Path: "CommandLine", Match: Contains{Text: "-enc"}},
		FieldExpr{Path: "CommandLine", Match: Contains{Text: "-nop"}},
	}}
	out := Matrix(e)
	g := out.(Group)
	require.Len(t, g.Children, 1)
	f := g.Children[0].(FieldExpr)
	allOf, ok := f.Match.(AllOf)
	require.True(t, ok)
	assert.Len(t, allOf.Matches, 2)
}

func TestMatrix_DoesNotFuseDifferentPathsOrKinds(t *testing.T) {
	e := Group{Op: Or, Children: []Expr{
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
		FieldExpr{Path: "b", Match: Equal{Value: value.Int(2)}},
		FieldExpr{Path: "a", Match: Contains{Text: "x"}},
	}}
	out := Matrix(e).(Group)
	assert.Len(t, out.Children, 3, "different path or different match kind must not fuse")
}

func TestOptimize_IsIdempotent(t *testing.T) {
	ids := map[string]Expr{
		"sel1": FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(1)}},
		"sel2": FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(2)}},
	}
	raw := Negate{Child: Group{Op: Or, Children: []Expr{
		Identifier{Name: "sel1"},
		Identifier{Name: "sel2"},
	}}}

	once := Optimize(raw, ids)
	twice := Optimize(once, nil)
	assert.Equal(t, once, twice)
}

func TestOptimize_PreservesSemantics(t *testing.T) {
	ids := map[string]Expr{
		"sel1": FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(1)}},
		"sel2": FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(2)}},
	}
	raw := Negate{Child: Group{Op: Or, Children: []Expr{
		Identifier{Name: "sel1"},
		Identifier{Name: "sel2"},
	}}}
	optimized := Optimize(raw, ids)

	for _, id := range []int64{1, 2, 3} {
		d := doc(value.Field{Key: "EventID", Val: value.Int(id)})
		unoptimized := Negate{Child: Group{Op: Or, Children: []Expr{
			FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(1)}},
			FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(2)}},
		}}}
		assert.Equal(t,
			Solve(unoptimized, d, IdentityResolver),
			Solve(optimized, d, IdentityResolver),
			"id=%d", id,
		)
	}
}
