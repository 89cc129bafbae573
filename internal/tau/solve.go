package tau

import "github.com/triagelabs/chainsaw/internal/value"

// Resolver maps an unqualified logical field name to the dotted path it
// lives at for one Hunt's active mapping. Solve never special-cases a
// dot in the path itself; whether a given path bypasses the mapping is a
// decision the mapping layer's Resolver implementation makes.
type Resolver func(path string) string

// IdentityResolver passes every path through unchanged, for callers with
// no mapping layer in play (search -t, and most tests).
func IdentityResolver(path string) string { return path }

// Solve evaluates expr against doc, threading every field path reference
// through resolve. expr must already have been through Optimize (or at
// least Coalesce): an Identifier node reaching Solve evaluates false.
func Solve(expr Expr, doc value.Value, resolve Resolver) bool {
	switch e := expr.(type) {
	case Boolean:
		return e.Value
	case Cast:
		v, ok := doc.Get(resolve(e.Path))
		return ok && truthy(v)
	case FieldExpr:
		v, ok := doc.Get(resolve(e.Path))
		if !ok {
			return false
		}
		return evalMatch(e.Match, v)
	case Identifier:
		return false
	case Group:
		return solveGroup(e, doc, resolve)
	case Negate:
		return !Solve(e.Child, doc, resolve)
	case Nested:
		return solveNested(e, doc, resolve)
	case SearchExpr:
		return evalMatch(e.M, value.String(doc.ToJSON(false)))
	case NullExpr:
		return doc.IsNull()
	case Missing:
		v, ok := doc.Get(resolve(e.Path))
		return !ok || v.IsNull()
	default:
		return false
	}
}

func solveGroup(g Group, doc value.Value, resolve Resolver) bool {
	switch g.Op {
	case And:
		for _, c := range g.Children {
			if !Solve(c, doc, resolve) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range g.Children {
			if Solve(c, doc, resolve) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// solveNested rebases path as the root for Inner. Per §4.3, an Array root
// is satisfied if ANY element satisfies Inner; an Object root is
// evaluated once, directly. Field paths inside Inner are resolved against
// the rebased root with no further mapping indirection, since the
// original path names only make sense relative to the unmapped document
// shape the mapping itself was built against.
func solveNested(n Nested, doc value.Value, resolve Resolver) bool {
	v, ok := doc.Get(resolve(n.Path))
	if !ok {
		return false
	}
	switch {
	case v.IsArray():
		arr, _ := v.AsArray()
		for _, el := range arr {
			if Solve(n.Inner, el, IdentityResolver) {
				return true
			}
		}
		return false
	case v.IsObject():
		return Solve(n.Inner, v, IdentityResolver)
	default:
		return false
	}
}

func truthy(v value.Value) bool {
	switch {
	case v.IsNull():
		return false
	case v.IsBool():
		b, _ := v.AsBool()
		return b
	case v.IsNumber():
		f, _ := v.AsFloat64()
		return f != 0
	case v.IsString():
		s, _ := v.AsString()
		return s != ""
	case v.IsArray():
		arr, _ := v.AsArray()
		return len(arr) != 0
	case v.IsObject():
		obj, _ := v.AsObject()
		return len(obj) != 0
	default:
		return false
	}
}
