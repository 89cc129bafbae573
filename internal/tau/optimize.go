package tau

import "reflect"

// Optimize applies the four passes in the fixed order coalesce → shake →
// rewrite → matrix, and repeats that round until a round leaves the tree
// unchanged. identifiers is only consulted by coalesce; a nil map is fine
// for an already-coalesced or native Expression filter.
//
// Two properties hold for this pipeline: idempotence
// (Optimize(Optimize(e, ids), nil) == Optimize(e, ids)), because the
// result is a fixed point of the round, and semantic preservation (Solve
// agrees on e and Optimize(e, ids) for every document). None of the passes
// mutates a document or depends on one; they are pure AST-to-AST
// rewrites, so semantic preservation reduces to each pass individually
// preserving Solve's result, which the pass comments below argue for at
// each rewrite site.
func Optimize(expr Expr, identifiers map[string]Expr) Expr {
	for {
		next := Matrix(Rewrite(Shake(Coalesce(expr, identifiers))))
		if reflect.DeepEqual(next, expr) {
			return next
		}
		expr = next
	}
}

// Coalesce inlines every Identifier(n) with the expression bound to n in
// identifiers, recursively, so that no Identifier survives into the
// expression Solve eventually runs. An identifier with no binding, or one
// that would recurse into itself, resolves to Boolean(false) rather than
// panicking or looping — the rule loader is expected to have already
// rejected unresolved/cyclic identifier references at load time, so this
// is a defensive fallback, not the primary error path.
func Coalesce(expr Expr, identifiers map[string]Expr) Expr {
	return coalesceRec(expr, identifiers, map[string]bool{})
}

func coalesceRec(expr Expr, ids map[string]Expr, visiting map[string]bool) Expr {
	switch e := expr.(type) {
	case Identifier:
		if visiting[e.Name] {
			return Boolean{Value: false}
		}
		bound, ok := ids[e.Name]
		if !ok {
			return Boolean{Value: false}
		}
		visiting[e.Name] = true
		out := coalesceRec(bound, ids, visiting)
		delete(visiting, e.Name)
		return out
	case Group:
		children := make([]Expr, len(e.Children))
		for i, c := range e.Children {
			children[i] = coalesceRec(c, ids, visiting)
		}
		return Group{Op: e.Op, Children: children}
	case Negate:
		return Negate{Child: coalesceRec(e.Child, ids, visiting)}
	case Nested:
		return Nested{Path: e.Path, Inner: coalesceRec(e.Inner, ids, visiting)}
	default:
		return expr
	}
}

// Shake removes dead code and folds constants: a false conjunct collapses
// its whole And to false (and dually for Or); true/false unit elements
// are dropped; a Group nested directly inside a Group of the same
// operator is flattened one level (associativity); a Group left with one
// child reduces to that child, and an empty Group reduces to its
// operator's unit (true for And, false for Or).
func Shake(expr Expr) Expr {
	switch e := expr.(type) {
	case Group:
		flat := make([]Expr, 0, len(e.Children))
		for _, c := range e.Children {
			sc := Shake(c)
			if g, ok := sc.(Group); ok && g.Op == e.Op {
				flat = append(flat, g.Children...)
				continue
			}
			flat = append(flat, sc)
		}

		out := make([]Expr, 0, len(flat))
		for _, c := range flat {
			b, ok := c.(Boolean)
			if !ok {
				out = append(out, c)
				continue
			}
			switch e.Op {
			case And:
				if !b.Value {
					return Boolean{Value: false}
				}
			case Or:
				if b.Value {
					return Boolean{Value: true}
				}
			}
			// Drop the unit element (true in And, false in Or).
		}

		if len(out) == 0 {
			return Boolean{Value: e.Op == And}
		}
		if len(out) == 1 {
			return out[0]
		}
		return Group{Op: e.Op, Children: out}
	case Negate:
		return Negate{Child: Shake(e.Child)}
	case Nested:
		return Nested{Path: e.Path, Inner: Shake(e.Inner)}
	default:
		return expr
	}
}

// Rewrite canonicalises negation: Negate(Negate(x)) collapses to x, and
// Negate(Group(op, xs)) pushes inward by De Morgan into
// Group(dual(op), [Negate(x) for x in xs]) — safe because each child
// appears exactly once in the result, so no subtree is duplicated. Negate
// of any other node is left alone; there is no De Morgan form for it.
func Rewrite(expr Expr) Expr {
	switch e := expr.(type) {
	case Negate:
		child := Rewrite(e.Child)
		if inner, ok := child.(Negate); ok {
			return inner.Child
		}
		if g, ok := child.(Group); ok {
			dual := Or
			if g.Op == Or {
				dual = And
			}
			negChildren := make([]Expr, len(g.Children))
			for i, c := range g.Children {
				negChildren[i] = Negate{Child: c}
			}
			return Group{Op: dual, Children: negChildren}
		}
		return Negate{Child: child}
	case Group:
		children := make([]Expr, len(e.Children))
		for i, c := range e.Children {
			children[i] = Rewrite(c)
		}
		return Group{Op: e.Op, Children: children}
	case Nested:
		return Nested{Path: e.Path, Inner: Rewrite(e.Inner)}
	default:
		return expr
	}
}

// Matrix fuses sibling FieldExpr predicates that share both a path and a
// combinable Match kind (same concrete kind, same case-folding regime)
// into one FieldExpr carrying a OneOf (under an Or parent) or AllOf
// (under an And parent) of the original matches. Composite Match kinds
// (OneOf/AllOf/In) and predicates under different paths are left
// untouched, and a lone predicate at a path is never wrapped.
func Matrix(expr Expr) Expr {
	switch e := expr.(type) {
	case Group:
		children := make([]Expr, len(e.Children))
		for i, c := range e.Children {
			children[i] = Matrix(c)
		}
		return Group{Op: e.Op, Children: fuseByPath(e.Op, children)}
	case Negate:
		return Negate{Child: Matrix(e.Child)}
	case Nested:
		return Nested{Path: e.Path, Inner: Matrix(e.Inner)}
	default:
		return expr
	}
}

type fuseKey struct {
	path string
	kind string
	ci   bool
}

func fuseByPath(op Op, children []Expr) []Expr {
	var order []fuseKey
	groups := make(map[fuseKey][]Match)
	others := make([]Expr, 0, len(children))

	for _, c := range children {
		f, ok := c.(FieldExpr)
		if !ok {
			others = append(others, c)
			continue
		}
		key, ok := fuseKeyOf(f.Path, f.Match)
		if !ok {
			others = append(others, c)
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f.Match)
	}

	out := make([]Expr, 0, len(others)+len(order))
	for _, key := range order {
		matches := groups[key]
		if len(matches) == 1 {
			out = append(out, FieldExpr{Path: key.path, Match: matches[0]})
			continue
		}
		if op == Or {
			out = append(out, FieldExpr{Path: key.path, Match: OneOf{Matches: matches}})
		} else {
			out = append(out, FieldExpr{Path: key.path, Match: AllOf{Matches: matches}})
		}
	}
	return append(out, others...)
}

// fuseKeyOf reports the combinability key for m, and whether m is
// eligible for fusion at all. Composite kinds are excluded: fusing a
// OneOf/AllOf/In with a sibling would require flattening decisions this
// pass does not make.
func fuseKeyOf(path string, m Match) (fuseKey, bool) {
	switch mm := m.(type) {
	case Equal:
		return fuseKey{path, "equal", mm.CI}, true
	case Contains:
		return fuseKey{path, "contains", mm.CI}, true
	case StartsWith:
		return fuseKey{path, "startswith", mm.CI}, true
	case EndsWith:
		return fuseKey{path, "endswith", mm.CI}, true
	case Regex:
		return fuseKey{path, "regex", false}, true
	case Gt:
		return fuseKey{path, "gt", false}, true
	case Ge:
		return fuseKey{path, "ge", false}, true
	case Lt:
		return fuseKey{path, "lt", false}, true
	case Le:
		return fuseKey{path, "le", false}, true
	default:
		return fuseKey{}, false
	}
}
