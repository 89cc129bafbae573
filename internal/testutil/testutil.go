// Package testutil collects small fixture builders, grounded on
// kraklabs-cie's internal/testing/helpers.go pattern of t.Helper()
// constructors that register their own cleanup. No test in this tree
// imports it: package-level unit tests keep their own local, narrower
// helpers the way the teacher's internal/analyzer tests do.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFile writes body to path, creating parent directories as needed.
func WriteFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// TempRuleFile writes a minimal Chainsaw-dialect detection rule under a
// fresh temp directory and returns its path.
func TempRuleFile(t *testing.T, name, ruleKind, filterYAML string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name+".yaml")
	body := "title: " + name + "\nkind: " + ruleKind + "\nfilter:\n" + indent(filterYAML, "  ") + "\n"
	WriteFile(t, path, body)
	return path
}

// TempJSONLFile writes one JSON object per line under a fresh temp
// directory and returns its path.
func TempJSONLFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.jsonl")
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	WriteFile(t, path, body)
	return path
}

func indent(s, prefix string) string {
	out := ""
	for _, line := range splitLines(s) {
		out += prefix + line + "\n"
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
