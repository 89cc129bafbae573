package tau

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/triagelabs/chainsaw/internal/value"
)

// ParseKV parses one "key: value" or "key|modifier|...: value" line, the
// form search -t accepts. The result is always a single atomic FieldExpr;
// a kv filter has no identifiers and nothing to coalesce.
func ParseKV(text string) (Expr, error) {
	idx := strings.Index(text, ":")
	if idx < 0 {
		return nil, fmt.Errorf("tau: kv filter %q: missing ':'", text)
	}
	left := strings.TrimSpace(text[:idx])
	right := strings.TrimSpace(text[idx+1:])
	if left == "" {
		return nil, fmt.Errorf("tau: kv filter %q: empty field name", text)
	}

	parts := strings.Split(left, "|")
	field := parts[0]
	mods := parts[1:]

	vals, err := parseKVValues(right)
	if err != nil {
		return nil, fmt.Errorf("tau: kv filter %q: %w", text, err)
	}

	m, err := BuildMatch(mods, vals, true)
	if err != nil {
		return nil, fmt.Errorf("tau: kv filter %q: %w", text, err)
	}
	return FieldExpr{Path: field, Match: m}, nil
}

// parseKVValues splits right into one or more literal values. A
// bracketed, comma-separated form ("[a, b, c]") yields multiple values;
// anything else is a single scalar.
func parseKVValues(text string) ([]value.Value, error) {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		inner := strings.TrimSpace(text[1 : len(text)-1])
		if inner == "" {
			return nil, fmt.Errorf("empty value list")
		}
		parts := strings.Split(inner, ",")
		vals := make([]value.Value, 0, len(parts))
		for _, p := range parts {
			vals = append(vals, scalarValue(strings.TrimSpace(p)))
		}
		return vals, nil
	}
	return []value.Value{scalarValue(text)}, nil
}

// scalarValue coerces raw rule/CLI text to bool/int/float where it parses
// cleanly, and leaves it as a string otherwise. A quoted string is always
// taken literally, bypassing coercion.
func scalarValue(text string) value.Value {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return value.String(text[1 : len(text)-1])
	}
	switch strings.ToLower(text) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return value.Int(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Float(f)
	}
	return value.String(text)
}
