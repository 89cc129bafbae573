package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/chainsaw/internal/datetime"
)

func writeJSONL(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.jsonl")
	body := ""
	for _, l := range lines {
		body += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSearchFile_SeedScenario1_LiteralMatch(t *testing.T) {
	path := writeJSONL(t,
		`{"CommandLine":"whoami /priv"}`,
		`{"CommandLine":"mimikatz.exe sekurlsa::logonpasswords"}`,
		`{"CommandLine":"ipconfig /all"}`,
	)
	s, err := Builder{Regexes: []string{"mimikatz"}}.Build()
	require.NoError(t, err)
	results, err := s.SearchFile(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchFile_EmptyFiltersMatchEveryDocument(t *testing.T) {
	path := writeJSONL(t, `{"a":1}`, `{"a":2}`, `{"a":3}`)
	s, err := Builder{}.Build()
	require.NoError(t, err)
	results, err := s.SearchFile(path)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchFile_MultipleRegexesANDedByDefault(t *testing.T) {
	path := writeJSONL(t,
		`{"CommandLine":"powershell -nop -enc AAAA"}`,
		`{"CommandLine":"powershell -enc AAAA"}`,
	)
	s, err := Builder{Regexes: []string{"-nop", "-enc"}}.Build()
	require.NoError(t, err)
	results, err := s.SearchFile(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchFile_MatchAnyORsRegexes(t *testing.T) {
	path := writeJSONL(t,
		`{"CommandLine":"a"}`,
		`{"CommandLine":"b"}`,
		`{"CommandLine":"c"}`,
	)
	s, err := Builder{Regexes: []string{"^a$", "^b$"}, MatchAny: true}.Build()
	require.NoError(t, err)
	results, err := s.SearchFile(path)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchFile_TauFilterAppliesBeforeRegex(t *testing.T) {
	path := writeJSONL(t, `{"x":1,"y":"abc"}`, `{"x":2,"y":"abc"}`)
	s, err := Builder{TauFilters: []string{"x: 1"}, Regexes: []string{"abc"}}.Build()
	require.NoError(t, err)
	results, err := s.SearchFile(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestBuild_InvalidRegexFailsBeforeAnyFileOpens(t *testing.T) {
	_, err := Builder{Regexes: []string{"(unclosed"}}.Build()
	assert.Error(t, err)
}

func TestSearchFile_TimeWindowExcludesStrictEndpoints(t *testing.T) {
	from, _ := datetime.Parse("2024-01-01T00:00:00Z")
	to, _ := datetime.Parse("2024-01-02T00:00:00Z")
	s, err := Builder{From: &from, To: &to}.Build()
	require.NoError(t, err)

	assert.True(t, s.excludedByWindow(&from))
	assert.True(t, s.excludedByWindow(&to))
	mid, _ := datetime.Parse("2024-01-01T12:00:00Z")
	assert.False(t, s.excludedByWindow(&mid))
}

func TestNormalizeForSearch_CollapsesFourBackslashesToTwo(t *testing.T) {
	in := `C:\\\\Windows\\\\System32`
	out := NormalizeForSearch(in)
	assert.Equal(t, `C:\\Windows\\System32`, out)
}
