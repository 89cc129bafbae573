package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_DedupesKeepingFirstPositionLastValue(t *testing.T) {
	v := Object([]Field{
		{Key: "a", Val: Int(1)},
		{Key: "b", Val: Int(2)},
		{Key: "a", Val: Int(3)},
	})
	fields, ok := v.AsObject()
	require.True(t, ok)
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	got, _ := fields[0].Val.AsInt64()
	assert.Equal(t, int64(3), got)
	assert.Equal(t, "b", fields[1].Key)
}

func TestWithField_UpdatesInPlaceOrAppends(t *testing.T) {
	v := Object([]Field{{Key: "a", Val: Int(1)}})
	v2 := v.WithField("a", Int(9))
	v3 := v2.WithField("b", String("x"))

	fields, _ := v3.AsObject()
	require.Len(t, fields, 2)
	a, _ := fields[0].Val.AsInt64()
	assert.Equal(t, int64(9), a)

	// v itself is untouched (copy-on-write).
	orig, _ := v.AsObject()
	require.Len(t, orig, 1)
}

func TestGet_DescendsObjectsOnlyByDottedPath(t *testing.T) {
	v := Object([]Field{
		{Key: "a", Val: Object([]Field{
			{Key: "b", Val: Object([]Field{
				{Key: "c", Val: Int(42)},
			})},
		})},
	})

	got, ok := v.Get("a.b.c")
	require.True(t, ok)
	n, _ := got.AsInt64()
	assert.Equal(t, int64(42), n)

	_, ok = v.Get("a.b.missing")
	assert.False(t, ok)

	_, ok = v.Get("a.b.c.d")
	assert.False(t, ok, "descending past a scalar must fail")
}

func TestGet_DoesNotIndexArrays(t *testing.T) {
	v := Object([]Field{
		{Key: "items", Val: Array([]Value{Int(1), Int(2)})},
	})
	_, ok := v.Get("items.0")
	assert.False(t, ok)
}

func TestEqual_CrossKindNumeric(t *testing.T) {
	assert.True(t, Equal(Int(5), Uint(5)))
	assert.True(t, Equal(Int(5), Float(5.0)))
	assert.False(t, Equal(Int(5), Float(5.1)))
	assert.False(t, Equal(Int(5), String("5")))
}

func TestEqual_ObjectsIgnoreFieldOrder(t *testing.T) {
	a := Object([]Field{{Key: "x", Val: Int(1)}, {Key: "y", Val: Int(2)}})
	b := Object([]Field{{Key: "y", Val: Int(2)}, {Key: "x", Val: Int(1)}})
	assert.True(t, Equal(a, b))
}

func TestEqual_ArraysAreOrderSensitive(t *testing.T) {
	a := Array([]Value{Int(1), Int(2)})
	b := Array([]Value{Int(2), Int(1)})
	assert.False(t, Equal(a, b))
}

func TestToJSON_PreservesFieldOrder(t *testing.T) {
	v := Object([]Field{
		{Key: "z", Val: Int(1)},
		{Key: "a", Val: Int(2)},
	})
	assert.Equal(t, `{"z":1,"a":2}`, v.ToJSON(false))
}

func TestToJSON_EscapesControlCharacters(t *testing.T) {
	v := String("line1\nline2\ttab\"quote")
	assert.Equal(t, `"line1\nline2\ttab\"quote"`, v.ToJSON(false))
}

func TestToJSON_Pretty(t *testing.T) {
	v := Object([]Field{{Key: "a", Val: Array([]Value{Int(1), Int(2)})}})
	got := v.ToJSON(true)
	assert.Contains(t, got, "\n")
	assert.Contains(t, got, "  \"a\"")
}

func TestString_CanonicalScalarForm(t *testing.T) {
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "3.5", Float(3.5).String())
	assert.Equal(t, "hello", String("hello").String())
}

func TestAsInt64_CoercesFloatAndUint(t *testing.T) {
	i, ok := Float(7.0).AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(7), i)

	i, ok = Float(7.9).AsInt64()
	require.True(t, ok, "float coercion truncates rather than rejecting")
	assert.Equal(t, int64(7), i)

	i, ok = Uint(3).AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(3), i)
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, Null.IsNull())
	assert.True(t, Int(1).IsNumber())
	assert.True(t, Float(1).IsNumber())
	assert.True(t, Uint(1).IsNumber())
	assert.False(t, String("1").IsNumber())
}
