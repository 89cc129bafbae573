package rule

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/triagelabs/chainsaw/internal/tau"
)

type sigmaYAML struct {
	Title         string   `yaml:"title"`
	ID            string   `yaml:"id"`
	Status        string   `yaml:"status"`
	Level         string   `yaml:"level"`
	Author        string   `yaml:"author"`
	Tags          []string `yaml:"tags"`
	References    []string `yaml:"references"`
	LogSource     struct {
		Category string `yaml:"category"`
		Product  string `yaml:"product"`
		Service  string `yaml:"service"`
	} `yaml:"logsource"`
	Detection yaml.Node `yaml:"detection"`
}

// LoadSigma parses every YAML document in a Sigma rule file (multi-document
// files are common upstream, one logical rule per "---" separated block).
func LoadSigma(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rules []Rule
	dec := yaml.NewDecoder(bufio.NewReader(bytes.NewReader(data)))
	for i := 0; ; i++ {
		var doc sigmaYAML
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%s: document %d: %w", path, i, err)
		}

		filter, err := tau.ParseDetection(&doc.Detection)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i, err)
		}

		ruleKind := doc.LogSource.Service
		if ruleKind == "" {
			ruleKind = doc.LogSource.Product
		}
		if ruleKind == "" {
			ruleKind = doc.LogSource.Category
		}

		var authors []string
		if doc.Author != "" {
			authors = []string{doc.Author}
		}

		r := Rule{
			Name:       doc.Title,
			Kind:       KindSigma,
			RuleKind:   ruleKind,
			ID:         doc.ID,
			Level:      normalizeLevel(doc.Level),
			Status:     doc.Status,
			Authors:    authors,
			Tags:       doc.Tags,
			References: doc.References,
			Filter:     filter,
			SourceFile: path,
		}
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
