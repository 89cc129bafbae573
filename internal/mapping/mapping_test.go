package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_ResolveBypassesDottedNames(t *testing.T) {
	m := Mapping{Fields: map[string]string{"EventID": "Event.System.EventID"}}
	assert.Equal(t, "Event.System.EventID", m.Resolve("EventID"))
	assert.Equal(t, "Some.Already.Qualified", m.Resolve("Some.Already.Qualified"))
	assert.Equal(t, "Unknown", m.Resolve("Unknown"), "an unmapped logical name passes through unchanged")
}

func TestLoad_RejectsMissingFieldsOrKind(t *testing.T) {
	dir := t.TempDir()

	noFields := filepath.Join(dir, "nofields.yaml")
	require.NoError(t, os.WriteFile(noFields, []byte("name: x\nkind: evtx\n"), 0o644))
	_, err := Load(noFields)
	assert.Error(t, err)

	noKind := filepath.Join(dir, "nokind.yaml")
	require.NoError(t, os.WriteFile(noKind, []byte("name: x\nfields:\n  EventID: Event.System.EventID\n"), 0o644))
	_, err = Load(noKind)
	assert.Error(t, err)
}

func TestLoad_DefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: evtx\nfields:\n  EventID: Event.System.EventID\n"), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sysmon", m.Name)
	assert.Equal(t, KindEVTX, m.Kind)
}

func TestLoadDir_SkipsUnderscorePrefixedAndNonYAML(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("a.yaml", "kind: evtx\nfields:\n  EventID: Event.System.EventID\n")
	write("_disabled.yaml", "kind: evtx\nfields:\n  EventID: Event.System.EventID\n")
	write("notes.txt", "not yaml")

	ms, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "a", ms[0].Name)
}

func TestLoadDir_MissingDirectoryIsNotAnError(t *testing.T) {
	ms, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err)
	assert.Nil(t, ms)
}

func TestLoadDir_SortedDeterministically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"z.yaml", "a.yaml", "m.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("kind: evtx\nfields:\n  X: Y\n"), 0o644))
	}
	ms, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{ms[0].Name, ms[1].Name, ms[2].Name})
}

func TestExtensions_UnionsAndNormalises(t *testing.T) {
	ms := []Mapping{
		{Extensions: []string{"evtx", ".EVTX"}},
		{Extensions: []string{"json"}},
	}
	assert.Equal(t, []string{".evtx", ".json"}, Extensions(ms))
}
