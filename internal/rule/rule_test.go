package rule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/chainsaw/internal/tau"
	"github.com/triagelabs/chainsaw/internal/value"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadChainsaw_PlainFieldMapFilterBecomesExpression(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "logon.yaml", `
title: Suspicious Logon
level: high
kind: evtx
filter:
  EventID: 4624
  LogonType: 3
`)
	r, err := LoadChainsaw(path)
	require.NoError(t, err)
	assert.Equal(t, "Suspicious Logon", r.Name)
	assert.Equal(t, LevelHigh, r.Level)
	assert.Equal(t, tau.FilterExpression, r.Filter.Kind)

	optimized := r.Filter.Optimize()
	d := value.Object([]value.Field{
		{Key: "EventID", Val: value.Int(4624)},
		{Key: "LogonType", Val: value.Int(3)},
	})
	assert.True(t, tau.Solve(optimized.Expression, d, tau.IdentityResolver))
}

func TestLoadChainsaw_DetectionStyleFilterWithCondition(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "detect.yaml", `
name: Mimikatz Command Line
level: critical
filter:
  selection:
    CommandLine|contains: mimikatz
  condition: selection
`)
	r, err := LoadChainsaw(path)
	require.NoError(t, err)
	assert.Equal(t, tau.FilterDetection, r.Filter.Kind)
	assert.NotEmpty(t, r.Filter.Identifiers)
}

func TestLoadChainsaw_ScalarFilterParsedAsKV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kv.yaml", `
name: Plain KV
filter: "EventID: 1"
`)
	r, err := LoadChainsaw(path)
	require.NoError(t, err)
	optimized := r.Filter.Optimize()
	d := value.Object([]value.Field{{Key: "EventID", Val: value.Int(1)}})
	assert.True(t, tau.Solve(optimized.Expression, d, tau.IdentityResolver))
}

func TestLoadChainsaw_MissingTitleIsLoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "untitled.yaml", `
filter: "EventID: 1"
`)
	_, err := LoadChainsaw(path)
	assert.Error(t, err)
}

func TestLoadChainsaw_MalformedYAMLIsLoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "title: [unterminated\n")
	_, err := LoadChainsaw(path)
	assert.Error(t, err)
}

func TestLoadSigma_MultiDocumentFileProducesMultipleRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "multi.yaml", `
title: First Rule
logsource:
  service: security
detection:
  selection:
    EventID: 4624
  condition: selection
---
title: Second Rule
logsource:
  service: security
detection:
  selection:
    EventID: 4625
  condition: selection
`)
	rules, err := LoadSigma(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "First Rule", rules[0].Name)
	assert.Equal(t, "Second Rule", rules[1].Name)
	assert.Equal(t, "security", rules[0].RuleKind)
}

func TestWalkFiles_SortsAndSkipsUnderscorePrefixed(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, dir, "b.yaml", "title: B\nfilter: \"a: 1\"\n")
	writeFile(t, dir, "a.yaml", "title: A\nfilter: \"a: 1\"\n")
	writeFile(t, dir, "_disabled.yaml", "title: D\nfilter: \"a: 1\"\n")
	writeFile(t, sub, "c.yaml", "title: C\nfilter: \"a: 1\"\n")
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	files, err := WalkFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.yaml"), files[1])
	assert.Equal(t, filepath.Join(sub, "c.yaml"), files[2])
}

func TestLoadDir_AbortsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", "title: Good\nfilter: \"a: 1\"\n")
	writeFile(t, dir, "bad.yaml", "title: [broken\n")

	_, err := LoadDir(KindChainsaw, dir)
	assert.Error(t, err)
}

func TestLoadDir_KindMismatchIsLoadErrorNotSkip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sigma.yaml", `
title: Sigma Rule
detection:
  selection:
    EventID: 1
  condition: selection
`)
	_, err := LoadDir(KindChainsaw, dir)
	assert.Error(t, err, "a sigma-shaped file has no top-level filter and must fail to load under the chainsaw dialect")
}
