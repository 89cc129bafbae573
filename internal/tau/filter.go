package tau

// FilterKind distinguishes a Sigma-style Detection filter (an expression
// over anonymous identifiers, plus the identifiers map coalesce consumes)
// from a native Chainsaw Expression filter (a complete expression with no
// identifiers at all).
type FilterKind int

const (
	FilterDetection FilterKind = iota
	FilterExpression
)

// Filter is what a rule's filter node parses into.
type Filter struct {
	Kind        FilterKind
	Expression  Expr
	Identifiers map[string]Expr
}

// Optimize runs the four fixed-order passes over f's expression. Per the
// Detection invariant, Identifiers is always empty afterward: coalesce is
// the only pass that reads it, and it is the first of the four.
func (f Filter) Optimize() Filter {
	return Filter{
		Kind:       f.Kind,
		Expression: Optimize(f.Expression, f.Identifiers),
	}
}
