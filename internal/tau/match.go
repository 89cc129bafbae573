package tau

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/triagelabs/chainsaw/internal/value"
)

// Match is an atomic field-value predicate, the leaf evalMatch applies to
// one resolved Value. Like Expr, it is a closed sum dispatched by type
// switch rather than a visitor method.
type Match interface {
	matchNode()
}

// Equal compares by chainsaw's cross-kind value equality, except when
// Value is a string: a string rule literal always compares against the
// document value's canonical string form, so `field: "1"` matches an
// integer 1 exactly as `field: 1` would.
type Equal struct {
	Value value.Value
	CI    bool
}

type Contains struct {
	Text string
	CI   bool
}

type StartsWith struct {
	Text string
	CI   bool
}

type EndsWith struct {
	Text string
	CI   bool
}

// Regex holds both the source pattern (for lint output) and the compiled
// form the evaluator actually runs, built once at parse time.
type Regex struct {
	Pattern  string
	Compiled *regexp.Regexp
}

type Gt struct{ Num float64 }
type Ge struct{ Num float64 }
type Lt struct{ Num float64 }
type Le struct{ Num float64 }

// In matches when the resolved value equals any member of Set. Produced
// directly for an unmodified field value given as a literal list (see
// BuildMatch); the Sigma translation path instead builds the equivalent
// OneOf(Equal, ...) per its own stated semantics in ParseDetection.
type In struct {
	Set []value.Value
	CI  bool
}

// OneOf is true iff any child Match matches; AllOf iff every child does.
// The matrix optimisation pass produces these when fusing sibling Field
// predicates that share a path.
type OneOf struct{ Matches []Match }
type AllOf struct{ Matches []Match }

func (Equal) matchNode()      {}
func (Contains) matchNode()   {}
func (StartsWith) matchNode() {}
func (EndsWith) matchNode()   {}
func (Regex) matchNode()      {}
func (Gt) matchNode()         {}
func (Ge) matchNode()         {}
func (Lt) matchNode()         {}
func (Le) matchNode()         {}
func (In) matchNode()         {}
func (OneOf) matchNode()      {}
func (AllOf) matchNode()      {}

func evalMatch(m Match, v value.Value) bool {
	switch mm := m.(type) {
	case Equal:
		return evalEqual(mm, v)
	case Contains:
		return textCompare(v.String(), mm.Text, mm.CI, strings.Contains)
	case StartsWith:
		return textCompare(v.String(), mm.Text, mm.CI, strings.HasPrefix)
	case EndsWith:
		return textCompare(v.String(), mm.Text, mm.CI, strings.HasSuffix)
	case Regex:
		return mm.Compiled != nil && mm.Compiled.MatchString(v.String())
	case Gt:
		n, ok := numOf(v)
		return ok && n > mm.Num
	case Ge:
		n, ok := numOf(v)
		return ok && n >= mm.Num
	case Lt:
		n, ok := numOf(v)
		return ok && n < mm.Num
	case Le:
		n, ok := numOf(v)
		return ok && n <= mm.Num
	case In:
		for _, want := range mm.Set {
			if evalEqual(Equal{Value: want, CI: mm.CI}, v) {
				return true
			}
		}
		return false
	case OneOf:
		for _, sub := range mm.Matches {
			if evalMatch(sub, v) {
				return true
			}
		}
		return false
	case AllOf:
		for _, sub := range mm.Matches {
			if !evalMatch(sub, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func textCompare(haystack, needle string, ci bool, f func(string, string) bool) bool {
	if ci {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	return f(haystack, needle)
}

func evalEqual(m Equal, v value.Value) bool {
	if m.Value.IsString() {
		if m.CI {
			return strings.EqualFold(v.String(), m.Value.String())
		}
		return v.String() == m.Value.String()
	}
	return value.Equal(v, m.Value)
}

func numOf(v value.Value) (float64, bool) {
	if n, ok := v.AsFloat64(); ok {
		return n, true
	}
	if s, ok := v.AsString(); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// BuildMatch builds a Match from a parsed modifier set and the literal
// value(s) a rule attached to one field. vals always has at least one
// element; a scalar field value is a one-element slice. Modifiers other
// than "i" and "all" are mutually exclusive with one another; their
// absence defaults to Equal. preferSet controls how an unmodified,
// multi-valued literal list is represented: the kv parser (where such a
// list has no other dialect meaning) prefers the tighter In form, while
// the Sigma selection translator always asks for OneOf per its documented
// semantics.
func BuildMatch(mods []string, vals []value.Value, preferSet bool) (Match, error) {
	var ci, all, re, contains, startswith, endswith, gt, ge, lt, le bool
	for _, mod := range mods {
		switch strings.ToLower(mod) {
		case "i":
			ci = true
		case "all":
			all = true
		case "re":
			re = true
		case "contains":
			contains = true
		case "startswith":
			startswith = true
		case "endswith":
			endswith = true
		case "gt":
			gt = true
		case "gte", "ge":
			ge = true
		case "lt":
			lt = true
		case "lte", "le":
			le = true
		default:
			return nil, fmt.Errorf("unknown modifier %q", mod)
		}
	}
	exclusive := 0
	for _, b := range []bool{re, contains, startswith, endswith, gt, ge, lt, le} {
		if b {
			exclusive++
		}
	}
	if exclusive > 1 {
		return nil, fmt.Errorf("conflicting modifiers in %v", mods)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("match requires at least one value")
	}

	build := func(v value.Value) (Match, error) {
		switch {
		case re:
			pattern := v.String()
			if ci {
				pattern = "(?i)" + pattern
			}
			compiled, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("malformed regex %q: %w", v.String(), err)
			}
			return Regex{Pattern: v.String(), Compiled: compiled}, nil
		case contains:
			return Contains{Text: v.String(), CI: ci}, nil
		case startswith:
			return StartsWith{Text: v.String(), CI: ci}, nil
		case endswith:
			return EndsWith{Text: v.String(), CI: ci}, nil
		case gt, ge, lt, le:
			n, ok := numOf(v)
			if !ok {
				return nil, fmt.Errorf("modifier requires a numeric value, got %q", v.String())
			}
			switch {
			case gt:
				return Gt{Num: n}, nil
			case ge:
				return Ge{Num: n}, nil
			case lt:
				return Lt{Num: n}, nil
			default:
				return Le{Num: n}, nil
			}
		default:
			return Equal{Value: v, CI: ci}, nil
		}
	}

	if len(vals) == 1 && !all {
		return build(vals[0])
	}

	// An unmodified equality list is representable directly as a set.
	if preferSet && !all && !re && !contains && !startswith && !endswith && !gt && !ge && !lt && !le {
		return In{Set: vals, CI: ci}, nil
	}

	subs := make([]Match, 0, len(vals))
	for _, v := range vals {
		m, err := build(v)
		if err != nil {
			return nil, err
		}
		subs = append(subs, m)
	}
	if all {
		return AllOf{Matches: subs}, nil
	}
	return OneOf{Matches: subs}, nil
}
