package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestWalk_RegularFileIncludedDirectly(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.evtx")
	touch(t, f)

	files, err := Walk([]string{f}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{f}, files)
}

func TestWalk_DirectoryRecursesSortedLexicographically(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "z.evtx"))
	touch(t, filepath.Join(dir, "a.evtx"))
	touch(t, filepath.Join(dir, "sub", "m.evtx"))

	files, err := Walk([]string{dir}, Options{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.evtx"), files[0])
	assert.Equal(t, filepath.Join(dir, "sub", "m.evtx"), files[1])
	assert.Equal(t, filepath.Join(dir, "z.evtx"), files[2])
}

func TestWalk_ExtensionAllowListFilters(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.evtx"))
	touch(t, filepath.Join(dir, "b.json"))

	files, err := Walk([]string{dir}, Options{Extensions: map[string]bool{"evtx": true}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "a.evtx"), files[0])
}

func TestWalk_MissingPathWithoutSkipErrorsAborts(t *testing.T) {
	_, err := Walk([]string{filepath.Join(t.TempDir(), "nope")}, Options{})
	assert.Error(t, err)
}

func TestWalk_MissingPathWithSkipErrorsContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.evtx")
	touch(t, good)
	missing := filepath.Join(dir, "nope")

	files, err := Walk([]string{missing, good}, Options{SkipErrors: true})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, files)
}

func TestWalk_DeterministicAcrossRepeatedCalls(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"c.evtx", "a.evtx", "b.evtx"} {
		touch(t, filepath.Join(dir, n))
	}
	first, err := Walk([]string{dir}, Options{})
	require.NoError(t, err)
	second, err := Walk([]string{dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
