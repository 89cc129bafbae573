package analyse

import (
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/value"
)

func docWithFields(fields map[string]any) document.Document {
	vfields := make([]value.Field, 0, len(fields))
	for k, v := range fields {
		switch typed := v.(type) {
		case uint64:
			vfields = append(vfields, value.Field{Key: k, Val: value.Uint(typed)})
		case string:
			vfields = append(vfields, value.Field{Key: k, Val: value.String(typed)})
		}
	}
	return document.Document{Data: value.Object(vfields)}
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2+2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return append(out, 0, 0)
}

func filetimeBytes(ft uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, ft)
	return b
}

// a FILETIME for 2020-01-01T00:00:00Z, computed independently of the
// production conversion so the round trip below is a real check.
const filetime2020 uint64 = 132223104000000000

func TestFileTimeToDateTime_KnownEpoch(t *testing.T) {
	dt := fileTimeToDateTime(filetime2020)
	require.NotNil(t, dt)
	assert.Equal(t, 2020, dt.Year)
	assert.Equal(t, 1, dt.Month)
	assert.Equal(t, 1, dt.Day)
}

func TestScanUTF16Path_RecognisesDriveLetterPath(t *testing.T) {
	buf := utf16le(`C:\Windows\System32\cmd.exe`)
	s, consumed, ok := scanUTF16Path(buf)
	require.True(t, ok)
	assert.Equal(t, `C:\Windows\System32\cmd.exe`, s)
	assert.Equal(t, len(buf), consumed)
}

func TestScanUTF16Path_RejectsNonPathText(t *testing.T) {
	buf := utf16le("just some plain text")
	_, _, ok := scanUTF16Path(buf)
	assert.False(t, ok)
}

func TestParseShimcacheBlob_RecoversPathAndTimestamp(t *testing.T) {
	var raw []byte
	raw = append(raw, make([]byte, 16)...) // unrelated header bytes
	raw = append(raw, filetimeBytes(filetime2020)...)
	raw = append(raw, utf16le(`C:\Windows\System32\evil.exe`)...)

	entries := parseShimcacheBlob(raw)
	require.Len(t, entries, 1)
	assert.Equal(t, `C:\Windows\System32\evil.exe`, entries[0].Path)
	require.NotNil(t, entries[0].LastModified)
	assert.Equal(t, 2020, entries[0].LastModified.Year)
}

func TestParseShimcacheBlob_NoPathsYieldsEmpty(t *testing.T) {
	raw := make([]byte, 64)
	entries := parseShimcacheBlob(raw)
	assert.Empty(t, entries)
}

func TestWriteShimcacheCSV_HeaderAndRows(t *testing.T) {
	dt := fileTimeToDateTime(filetime2020)
	var sb strings.Builder
	err := WriteShimcacheCSV(&sb, []ShimcacheEntry{{Path: `C:\a.exe`, LastModified: dt}})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(sb.String(), "\r\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "path,last_modified,smuggled,smuggled_why", lines[0])
	assert.Contains(t, lines[1], `C:\a.exe`)
}

func TestParseShimcacheBlob_FlagsRTLOSmuggledPath(t *testing.T) {
	path := "C:\\Users\\a\\invoice\u202egnp.exe"
	raw := utf16le(path)
	entries := parseShimcacheBlob(raw)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Smuggled)
	assert.Contains(t, entries[0].SmuggledWhy, "bidi-override")
}

func TestScanASCIIIdentifier_FindsExeSuffixedRun(t *testing.T) {
	raw := append([]byte{0, 0, 0}, []byte("notepad.exe")...)
	raw = append(raw, 0, 0)
	s, ok := scanASCIIIdentifier(raw)
	require.True(t, ok)
	assert.Equal(t, "notepad.exe", s)
}

func TestFirstPlausibleFiletime_SkipsZeroAndImplausibleValues(t *testing.T) {
	raw := make([]byte, 24)
	copy(raw[16:24], filetimeBytes(filetime2020))
	ft, ok := firstPlausibleFiletime(raw)
	require.True(t, ok)
	assert.Equal(t, filetime2020, ft)
}

func TestSrumEntryFromDocument_RecoversApplicationNameAndTimestamp(t *testing.T) {
	var raw []byte
	raw = append(raw, filetimeBytes(filetime2020)...)
	raw = append(raw, utf16le(`C:\Program Files\App\app.exe`)...)
	hexStr := make([]byte, len(raw)*2)
	const hexDigits = "0123456789abcdef"
	for i, b := range raw {
		hexStr[i*2] = hexDigits[b>>4]
		hexStr[i*2+1] = hexDigits[b&0xf]
	}

	doc := docWithFields(map[string]any{
		"Page":   uint64(3),
		"Slot":   uint64(7),
		"RawHex": string(hexStr),
	})
	entry := srumEntryFromDocument(doc)
	assert.Equal(t, uint64(3), entry.Page)
	assert.Equal(t, uint64(7), entry.Slot)
	assert.Equal(t, `C:\Program Files\App\app.exe`, entry.ApplicationName)
	require.NotNil(t, entry.Timestamp)
	assert.Equal(t, 2020, entry.Timestamp.Year)
}

func TestSrumEntryFromDocument_FlagsHomoglyphApplicationName(t *testing.T) {
	var raw []byte
	raw = append(raw, utf16le("C:\\Users\\a\\"+"\u0441md.exe")...) // Cyrillic 'с' in place of 'c'
	hexStr := make([]byte, len(raw)*2)
	const hexDigits = "0123456789abcdef"
	for i, b := range raw {
		hexStr[i*2] = hexDigits[b>>4]
		hexStr[i*2+1] = hexDigits[b&0xf]
	}
	doc := docWithFields(map[string]any{"Page": uint64(1), "Slot": uint64(1), "RawHex": string(hexStr)})
	entry := srumEntryFromDocument(doc)
	assert.True(t, entry.Smuggled)
	assert.Contains(t, entry.SmuggledWhy, "homoglyph")
}

func TestWriteSRUMJSON_ProducesArray(t *testing.T) {
	var sb strings.Builder
	err := WriteSRUMJSON(&sb, []SRUMEntry{{Page: 1, Slot: 2, ApplicationName: "x.exe"}})
	require.NoError(t, err)
	assert.Contains(t, sb.String(), `"application_name": "x.exe"`)
}
