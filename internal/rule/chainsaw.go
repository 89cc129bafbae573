package rule

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/triagelabs/chainsaw/internal/tau"
)

type chainsawYAML struct {
	Title      string    `yaml:"title"`
	Name       string    `yaml:"name"`
	ID         string    `yaml:"id"`
	Level      string    `yaml:"level"`
	Status     string    `yaml:"status"`
	Authors    []string  `yaml:"authors"`
	Tags       []string  `yaml:"tags"`
	References []string  `yaml:"references"`
	Kind       string    `yaml:"kind"`
	Timestamp  string    `yaml:"timestamp"`
	Aggregate  string    `yaml:"aggregate"`
	Fields     []fieldYAML `yaml:"fields"`
	Filter     yaml.Node `yaml:"filter"`
}

type fieldYAML struct {
	Name string `yaml:"name"`
	To   string `yaml:"to"`
	From string `yaml:"from"`
}

// LoadChainsaw parses one native Chainsaw rule file. One rule per file.
func LoadChainsaw(path string) (Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rule{}, err
	}
	var doc chainsawYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Rule{}, fmt.Errorf("%s: %w", path, err)
	}

	name := doc.Title
	if name == "" {
		name = doc.Name
	}

	filter, err := parseChainsawFilter(&doc.Filter)
	if err != nil {
		return Rule{}, fmt.Errorf("%s: filter: %w", path, err)
	}

	fields := make([]FieldExtraction, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		to := f.To
		if to == "" {
			to = f.From
		}
		fields = append(fields, FieldExtraction{Name: f.Name, To: to})
	}

	r := Rule{
		Name:       name,
		Kind:       KindChainsaw,
		RuleKind:   doc.Kind,
		ID:         doc.ID,
		Level:      normalizeLevel(doc.Level),
		Status:     doc.Status,
		Authors:    doc.Authors,
		Tags:       doc.Tags,
		References: doc.References,
		Aggregate:  doc.Aggregate,
		Timestamp:  doc.Timestamp,
		Fields:     fields,
		Filter:     filter,
		SourceFile: path,
	}
	if err := r.validate(); err != nil {
		return Rule{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// parseChainsawFilter accepts any of the filter node shapes a native
// Chainsaw rule may use: a selections+condition mapping (identical to
// the Sigma detection shape) becomes a Filter::Detection; a plain
// field:value mapping with no "condition" key becomes a Filter::Expression
// built as their conjunction; a bare scalar "key: value" / "key|mods: value"
// line is parsed the same way the search -t flag is.
func parseChainsawFilter(node *yaml.Node) (tau.Filter, error) {
	n := node
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n == nil || n.Kind == 0 {
		return tau.Filter{}, fmt.Errorf("missing filter")
	}

	switch n.Kind {
	case yaml.MappingNode:
		if hasConditionKey(n) {
			return tau.ParseDetection(n)
		}
		expr, err := tau.ParseFieldMap(n)
		if err != nil {
			return tau.Filter{}, err
		}
		return tau.Filter{Kind: tau.FilterExpression, Expression: expr}, nil
	case yaml.ScalarNode:
		expr, err := tau.ParseKV(n.Value)
		if err != nil {
			return tau.Filter{}, err
		}
		return tau.Filter{Kind: tau.FilterExpression, Expression: expr}, nil
	default:
		return tau.Filter{}, fmt.Errorf("filter must be a mapping or a scalar expression")
	}
}

func hasConditionKey(n *yaml.Node) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "condition" {
			return true
		}
	}
	return false
}
