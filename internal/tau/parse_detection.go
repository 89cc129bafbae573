package tau

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/triagelabs/chainsaw/internal/value"
)

// ParseDetection parses a Sigma-style detection mapping node (the value
// of a rule document's "detection" key) into a Detection Filter: one
// anonymous identifier per selection block plus the condition string
// compiled into an expression that references them by name. Selection
// and condition keys are walked in file order so that, combined with a
// loader that visits rule files in a fixed order, the resulting AST is
// deterministic before the optimiser ever sees it.
func ParseDetection(node *yaml.Node) (Filter, error) {
	node = resolveAlias(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return Filter{}, fmt.Errorf("tau: detection must be a mapping")
	}

	identifiers := make(map[string]Expr)
	var conditionNode *yaml.Node
	var names []string

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := resolveAlias(node.Content[i+1])
		name := key.Value
		if name == "condition" {
			conditionNode = val
			continue
		}
		expr, err := parseSelection(val)
		if err != nil {
			return Filter{}, fmt.Errorf("tau: selection %q: %w", name, err)
		}
		identifiers[name] = expr
		names = append(names, name)
	}

	if conditionNode == nil {
		return Filter{}, fmt.Errorf("tau: detection missing condition")
	}
	expr, err := parseCondition(conditionNode.Value, names)
	if err != nil {
		return Filter{}, fmt.Errorf("tau: condition %q: %w", conditionNode.Value, err)
	}

	return Filter{Kind: FilterDetection, Expression: expr, Identifiers: identifiers}, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// parseSelection turns one selection block into an expression. A mapping
// is a conjunction of its field predicates; a sequence of mappings is a
// disjunction of sub-selections; a sequence of scalars is a keyword list
// matched against the whole document's serialised form (the common
// Sigma "list of raw strings" selection shape).
func parseSelection(val *yaml.Node) (Expr, error) {
	val = resolveAlias(val)
	if val == nil {
		return nil, fmt.Errorf("selection node is empty")
	}
	switch val.Kind {
	case yaml.MappingNode:
		return parseFieldMapSelection(val)
	case yaml.SequenceNode:
		return parseSequenceSelection(val)
	default:
		return nil, fmt.Errorf("selection must be a mapping or sequence")
	}
}

// ParseFieldMap compiles a plain field:value mapping node (no "condition"
// key, no named selections) into a single Group(And, ...) expression. This
// is the native Chainsaw dialect's equivalent of a Sigma selection block
// doubling as the whole filter.
func ParseFieldMap(node *yaml.Node) (Expr, error) {
	return parseFieldMapSelection(resolveAlias(node))
}

func parseFieldMapSelection(val *yaml.Node) (Expr, error) {
	var children []Expr
	for i := 0; i+1 < len(val.Content); i += 2 {
		keyNode := val.Content[i]
		valNode := resolveAlias(val.Content[i+1])
		field, mods := splitFieldModifiers(keyNode.Value)
		mods = withDefaultCaseInsensitive(mods)
		vals, err := yamlScalarOrListValues(valNode)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		m, err := BuildMatch(mods, vals, false)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		children = append(children, FieldExpr{Path: field, Match: m})
	}
	if len(children) == 0 {
		return Boolean{Value: true}, nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group{Op: And, Children: children}, nil
}

func parseSequenceSelection(val *yaml.Node) (Expr, error) {
	allScalar := true
	for _, c := range val.Content {
		if resolveAlias(c).Kind != yaml.ScalarNode {
			allScalar = false
			break
		}
	}

	var children []Expr
	if allScalar {
		for _, c := range val.Content {
			c = resolveAlias(c)
			children = append(children, SearchExpr{M: Contains{Text: c.Value, CI: true}})
		}
	} else {
		for _, c := range val.Content {
			sub, err := parseSelection(resolveAlias(c))
			if err != nil {
				return nil, err
			}
			children = append(children, sub)
		}
	}
	if len(children) == 0 {
		return Boolean{Value: false}, nil
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group{Op: Or, Children: children}, nil
}

func splitFieldModifiers(key string) (string, []string) {
	parts := strings.Split(key, "|")
	return parts[0], parts[1:]
}

// withDefaultCaseInsensitive adds the "i" modifier when a selection's
// field key doesn't already specify a case sensitivity, since Sigma text
// comparisons are case-insensitive by default. Idempotent: a key that
// already carries "i" is returned unchanged.
func withDefaultCaseInsensitive(mods []string) []string {
	for _, m := range mods {
		if strings.EqualFold(m, "i") {
			return mods
		}
	}
	return append(append([]string{}, mods...), "i")
}

// yamlScalarOrListValues converts a field value node into one or more
// literal Values: a sequence yields one value per element, anything else
// a single value.
func yamlScalarOrListValues(n *yaml.Node) ([]value.Value, error) {
	if n == nil {
		return nil, fmt.Errorf("missing value")
	}
	if n.Kind == yaml.SequenceNode {
		vals := make([]value.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlScalarValue(resolveAlias(c))
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	v, err := yamlScalarValue(n)
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}

func yamlScalarValue(n *yaml.Node) (value.Value, error) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return value.Null, fmt.Errorf("expected a scalar value")
	}
	switch n.Tag {
	case "!!null":
		return value.Null, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return value.Null, err
		}
		return value.Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return value.Null, err
		}
		return value.Int(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return value.Null, err
		}
		return value.Float(f), nil
	default:
		return scalarValue(n.Value), nil
	}
}

// parseCondition compiles a Sigma condition string into an expression
// over the given identifier names. Supported grammar: identifier
// references, "and"/"or"/"not", parentheses, and the "1 of X"/"all of X"
// quantifiers where X is "them" or a glob pattern expanded against names
// at parse time. Any aggregation operator Sigma supports but this engine
// does not ("| count", "| near", time windows) is a documented load
// failure rather than a silent no-op.
func parseCondition(text string, names []string) (Expr, error) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "|") || strings.Contains(lower, "count(") || strings.Contains(lower, "near(") {
		return nil, fmt.Errorf("unsupported sigma aggregation operator")
	}
	p := &condParser{toks: tokenizeCondition(text), names: names}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected token %q", p.peek())
	}
	return expr, nil
}

func tokenizeCondition(text string) []string {
	text = strings.ReplaceAll(text, "(", " ( ")
	text = strings.ReplaceAll(text, ")", " ) ")
	return strings.Fields(text)
}

type condParser struct {
	toks  []string
	pos   int
	names []string
}

func (p *condParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *condParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Expr{left}
	for strings.EqualFold(p.peek(), "or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group{Op: Or, Children: children}, nil
}

func (p *condParser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []Expr{left}
	for strings.EqualFold(p.peek(), "and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Group{Op: And, Children: children}, nil
}

func (p *condParser) parseNot() (Expr, error) {
	if strings.EqualFold(p.peek(), "not") {
		p.next()
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Negate{Child: child}, nil
	}
	return p.parseAtom()
}

func (p *condParser) parseAtom() (Expr, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of condition")
	case tok == "(":
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("missing closing ')'")
		}
		p.next()
		return expr, nil
	case tok == "1" || strings.EqualFold(tok, "all"):
		return p.parseOfExpr()
	}
	p.next()
	if !containsName(p.names, tok) {
		return nil, fmt.Errorf("unresolved identifier %q", tok)
	}
	return Identifier{Name: tok}, nil
}

func (p *condParser) parseOfExpr() (Expr, error) {
	quant := p.next() // "1" or "all"
	ofTok := p.next()
	if !strings.EqualFold(ofTok, "of") {
		return nil, fmt.Errorf("expected 'of' after %q", quant)
	}
	target := p.next()
	if target == "" {
		return nil, fmt.Errorf("expected a target after 'of'")
	}

	var matched []string
	if strings.EqualFold(target, "them") {
		matched = append(matched, p.names...)
	} else {
		for _, n := range p.names {
			if ok, _ := filepath.Match(target, n); ok {
				matched = append(matched, n)
			}
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%q matches no identifiers", target)
	}

	children := make([]Expr, len(matched))
	for i, n := range matched {
		children[i] = Identifier{Name: n}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	op := Or
	if strings.EqualFold(quant, "all") {
		op = And
	}
	return Group{Op: op, Children: children}, nil
}

func containsName(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}
