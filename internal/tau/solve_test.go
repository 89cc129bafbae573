package tau

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/triagelabs/chainsaw/internal/value"
)

func doc(fields ...value.Field) value.Value { return value.Object(fields) }

func TestSolve_GroupAndShortCircuits(t *testing.T) {
	d := doc(value.Field{Key: "a", Val: value.Int(1)})
	e := Group{Op: And, Children: []Expr{
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
		FieldExpr{Path: "missing", Match: Equal{Value: value.Int(1)}},
	}}
	assert.False(t, Solve(e, d, IdentityResolver))
}

func TestSolve_EmptyGroupUnits(t *testing.T) {
	assert.True(t, Solve(Group{Op: And}, value.Null, IdentityResolver))
	assert.False(t, Solve(Group{Op: Or}, value.Null, IdentityResolver))
}

func TestSolve_GroupOr(t *testing.T) {
	d := doc(value.Field{Key: "a", Val: value.Int(2)})
	e := Group{Op: Or, Children: []Expr{
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(1)}},
		FieldExpr{Path: "a", Match: Equal{Value: value.Int(2)}},
	}}
	assert.True(t, Solve(e, d, IdentityResolver))
}

func TestSolve_Negate(t *testing.T) {
	d := doc(value.Field{Key: "a", Val: value.Int(1)})
	e := Negate{Child: FieldExpr{Path: "a", Match: Equal{Value: value.Int(2)}}}
	assert.True(t, Solve(e, d, IdentityResolver))
}

func TestSolve_FieldAbsentIsFalseForEveryMatchKind(t *testing.T) {
	d := doc(value.Field{Key: "a", Val: value.Int(1)})
	assert.False(t, Solve(FieldExpr{Path: "b", Match: Equal{Value: value.Int(1)}}, d, IdentityResolver))
	assert.False(t, Solve(FieldExpr{Path: "b", Match: Contains{Text: "x"}}, d, IdentityResolver))
}

func TestSolve_MissingIsTrueOnAbsentOrNull(t *testing.T) {
	d := doc(
		value.Field{Key: "a", Val: value.Int(1)},
		value.Field{Key: "n", Val: value.Null},
	)
	assert.True(t, Solve(Missing{Path: "gone"}, d, IdentityResolver))
	assert.True(t, Solve(Missing{Path: "n"}, d, IdentityResolver))
	assert.False(t, Solve(Missing{Path: "a"}, d, IdentityResolver))
}

func TestSolve_NestedOverArrayMatchesAnyElement(t *testing.T) {
	d := doc(value.Field{Key: "items", Val: value.Array([]value.Value{
		doc(value.Field{Key: "x", Val: value.Int(1)}),
		doc(value.Field{Key: "x", Val: value.Int(2)}),
	})})
	e := Nested{Path: "items", Inner: FieldExpr{Path: "x", Match: Equal{Value: value.Int(2)}}}
	assert.True(t, Solve(e, d, IdentityResolver))

	e2 := Nested{Path: "items", Inner: FieldExpr{Path: "x", Match: Equal{Value: value.Int(9)}}}
	assert.False(t, Solve(e2, d, IdentityResolver))
}

func TestSolve_NestedOverObjectEvaluatesOnce(t *testing.T) {
	d := doc(value.Field{Key: "sub", Val: doc(value.Field{Key: "x", Val: value.Int(1)})})
	e := Nested{Path: "sub", Inner: FieldExpr{Path: "x", Match: Equal{Value: value.Int(1)}}}
	assert.True(t, Solve(e, d, IdentityResolver))
}

func TestSolve_NestedOverScalarIsFalse(t *testing.T) {
	d := doc(value.Field{Key: "sub", Val: value.Int(1)})
	e := Nested{Path: "sub", Inner: Boolean{Value: true}}
	assert.False(t, Solve(e, d, IdentityResolver))
}

func TestSolve_SearchMatchesWholeDocumentJSON(t *testing.T) {
	d := doc(value.Field{Key: "CommandLine", Val: value.String("whoami /priv")})
	e := SearchExpr{M: Contains{Text: "mimikatz"}}
	assert.False(t, Solve(e, d, IdentityResolver))

	d2 := doc(value.Field{Key: "CommandLine", Val: value.String("mimikatz.exe")})
	assert.True(t, Solve(e, d2, IdentityResolver))
}

func TestSolve_CastTruthiness(t *testing.T) {
	d := doc(
		value.Field{Key: "zero", Val: value.Int(0)},
		value.Field{Key: "one", Val: value.Int(1)},
		value.Field{Key: "empty", Val: value.String("")},
	)
	assert.False(t, Solve(Cast{Path: "zero"}, d, IdentityResolver))
	assert.True(t, Solve(Cast{Path: "one"}, d, IdentityResolver))
	assert.False(t, Solve(Cast{Path: "empty"}, d, IdentityResolver))
	assert.False(t, Solve(Cast{Path: "absent"}, d, IdentityResolver))
}

func TestSolve_ResolverMapsLogicalNamesToDottedPaths(t *testing.T) {
	d := doc(value.Field{Key: "Event", Val: doc(value.Field{Key: "System", Val: doc(
		value.Field{Key: "EventID", Val: value.Int(4624)},
	)})})
	resolve := func(path string) string {
		if path == "EventID" {
			return "Event.System.EventID"
		}
		return path
	}
	e := FieldExpr{Path: "EventID", Match: Equal{Value: value.Int(4624)}}
	assert.True(t, Solve(e, d, resolve))
}

func TestSolve_IdentifierWithoutCoalesceIsFalse(t *testing.T) {
	assert.False(t, Solve(Identifier{Name: "sel"}, value.Null, IdentityResolver))
}

func TestSolve_NestedOverNullIsFalseBeforeNullExpr(t *testing.T) {
	d := doc(value.Field{Key: "sub", Val: value.Null})
	e := Nested{Path: "sub", Inner: NullExpr{}}
	assert.False(t, Solve(e, d, IdentityResolver), "Nested over a non-object/array is false before Inner ever runs")
}
