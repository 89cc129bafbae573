// Package lint implements the rule linter: attempt to load
// every rule file under a path, report failures without aborting the
// walk, and optionally render each Detection filter's optimised tau tree
// as YAML for inspection.
package lint

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/triagelabs/chainsaw/internal/rule"
	"github.com/triagelabs/chainsaw/internal/tau"
)

// FileResult is the outcome of attempting to load one rule file.
type FileResult struct {
	Path  string
	Rules []rule.Rule
	Err   error

	// TauYAML holds one rendered optimised expression per successfully
	// loaded Detection-kind rule, set only when Lint was called with
	// renderTau. A Filter::Expression rule instead gets a Warning.
	TauYAML  []string
	Warnings []string
}

// Summary tallies counts for the final "Validated N detection rules out
// of M" line.
type Summary struct {
	Count  int
	Failed int
}

func (s Summary) String() string {
	return fmt.Sprintf("Validated %d detection rules out of %d", s.Count, s.Count+s.Failed)
}

// Lint walks path for rule files under the given dialect, attempting to
// load each one independently: a malformed file increments Failed and
// contributes exactly one FileResult with a non-nil Err, but never stops
// the walk from continuing to the next file. When renderTau is set, each
// successfully loaded Filter::Detection rule's expression is run through
// the four optimisation passes and rendered as YAML; a Filter::Expression
// rule gets a warning instead, since tau has no visual form for a bare
// expression filter.
func Lint(kind rule.Kind, path string, renderTau bool) ([]FileResult, Summary) {
	files, err := rule.WalkFiles(path)
	if err != nil {
		return []FileResult{{Path: path, Err: err}}, Summary{Failed: 1}
	}

	var results []FileResult
	var summary Summary
	for _, f := range files {
		rules, err := rule.LoadFile(kind, f)
		if err != nil {
			summary.Failed++
			results = append(results, FileResult{Path: f, Err: err})
			continue
		}
		summary.Count += len(rules)

		fr := FileResult{Path: f, Rules: rules}
		if renderTau {
			for _, r := range rules {
				switch r.Filter.Kind {
				case tau.FilterDetection:
					optimized := r.Filter.Optimize()
					out, err := renderExpression(optimized.Expression)
					if err != nil {
						fr.Warnings = append(fr.Warnings, fmt.Sprintf("%s: render failed: %v", r.Name, err))
						continue
					}
					fr.TauYAML = append(fr.TauYAML, out)
				case tau.FilterExpression:
					fr.Warnings = append(fr.Warnings, "tau does not support visual representation of expressions")
				}
			}
		}
		results = append(results, fr)
	}
	return results, summary
}

// renderExpression marshals an optimised expression tree to YAML using
// its natural Go struct shape; this is a diagnostic dump for rule
// authors, not a format tau itself ever re-parses.
func renderExpression(expr tau.Expr) (string, error) {
	out, err := yaml.Marshal(expr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FailureLines formats the stderr lines the CLI prints for each failed
// file: "[!] <filename>: <error>".
func FailureLines(results []FileResult) []string {
	var out []string
	for _, r := range results {
		if r.Err != nil {
			out = append(out, fmt.Sprintf("[!] %s: %v", r.Path, r.Err))
		}
	}
	return out
}
