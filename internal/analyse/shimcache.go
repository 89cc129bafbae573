// Package analyse implements the shimcache and SRUM analysers: narrow,
// format-aware consumers that sit on top of the
// reduced-fidelity hive and ESE readers and recover what can honestly be
// recovered from the raw bytes those readers expose, without attempting
// a full AppCompatCache/SRUM catalog decode.
package analyse

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/reader"
)

// ShimcacheEntry is one recovered AppCompatCache entry: an executable
// path and, where a plausible adjacent FILETIME was found, its last
// modified time. Smuggled is set when the path itself contains a
// Unicode smuggling indicator (an RTLO override, a homoglyph, a
// zero-width character) - a cached execution path is exactly where an
// extension-spoofing RTLO trick would otherwise go unnoticed.
type ShimcacheEntry struct {
	Path         string
	LastModified *datetime.DateTime
	Smuggled     bool
	SmuggledWhy  string
}

// AnalyseShimcache opens hivePath as a registry hive, locates the
// AppCompatCache value under ...\Session Manager\AppCompatCache, and
// recovers as many entries from it as the byte layout allows. A hive
// with no AppCompatCache value produces an empty, non-error result.
func AnalyseShimcache(hivePath string, skipErrors bool) ([]ShimcacheEntry, error) {
	raw, err := findAppCompatCacheBlob(hivePath, skipErrors)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return parseShimcacheBlob(raw), nil
}

func findAppCompatCacheBlob(hivePath string, skipErrors bool) ([]byte, error) {
	r, err := reader.Open(hivePath, false, skipErrors)
	if err != nil {
		return nil, fmt.Errorf("analyse(shimcache): open %s: %w", hivePath, err)
	}
	defer r.Close()

	var doc document.Document
	for r.Next(&doc) {
		path, _ := doc.Data.Get("Path")
		name, _ := doc.Data.Get("Name")
		nameStr, _ := name.AsString()
		pathStr, _ := path.AsString()
		if !strings.EqualFold(nameStr, "AppCompatCache") {
			continue
		}
		if !strings.Contains(strings.ToLower(pathStr), "appcompatcache") {
			continue
		}
		val, ok := doc.Data.Get("Value")
		if !ok {
			continue
		}
		hexStr, ok := val.AsString()
		if !ok {
			continue
		}
		raw, err := hex.DecodeString(hexStr)
		if err != nil {
			continue
		}
		return raw, nil
	}
	if !skipErrors {
		if err := r.LastError(); err != nil {
			return nil, fmt.Errorf("analyse(shimcache): %s: %w", hivePath, err)
		}
	}
	return nil, nil
}

// parseShimcacheBlob recovers entries heuristically: it scans for
// null-terminated UTF-16LE strings that look like a Windows path
// (contain a backslash and a drive letter or UNC prefix), and for each
// one found, checks the 8 bytes immediately preceding it for a
// plausible FILETIME (a value whose decoded year falls between 1990 and
// 2100). Shimcache entry layout varies across Windows versions and
// embeds the entry count and per-entry lengths in a header this decoder
// does not parse, so this recovers candidate entries rather than an
// exact, ordered reproduction of the original cache.
func parseShimcacheBlob(raw []byte) []ShimcacheEntry {
	var out []ShimcacheEntry
	i := 0
	for i+4 <= len(raw) {
		s, consumed, ok := scanUTF16Path(raw[i:])
		if !ok {
			i++
			continue
		}
		entry := ShimcacheEntry{Path: s}
		if ft, ok := plausibleFiletimeBefore(raw, i); ok {
			entry.LastModified = fileTimeToDateTime(ft)
		}
		if anomalies := scanPathAnomalies(s); len(anomalies) > 0 {
			entry.Smuggled = true
			entry.SmuggledWhy = describePathAnomalies(anomalies)
		}
		out = append(out, entry)
		i += consumed
	}
	return out
}

// scanUTF16Path looks for a run of UTF-16LE code units starting at
// buf[0] that forms a plausible path (no C0 control characters, contains
// a backslash, terminated by a double-null). Returns the decoded string
// and the number of bytes consumed, including the terminator. BMP code
// units outside ASCII are accepted rather than rejected outright: a
// homoglyph or RTLO substitution in a cached execution path is exactly
// the kind of entry the Unicode scanner downstream needs to see, not a
// reason to discard the candidate.
func scanUTF16Path(buf []byte) (string, int, bool) {
	var runes []rune
	i := 0
	for i+1 < len(buf) {
		lo, hi := buf[i], buf[i+1]
		if lo == 0 && hi == 0 {
			i += 2
			break
		}
		u := uint16(hi)<<8 | uint16(lo)
		if u >= 0xD800 && u <= 0xDFFF {
			return "", 0, false // surrogate half: treat as binary noise, not a path
		}
		if u < 0x20 {
			return "", 0, false
		}
		runes = append(runes, rune(u))
		i += 2
		if len(runes) > 260 {
			return "", 0, false
		}
	}
	if len(runes) < 5 {
		return "", 0, false
	}
	s := string(runes)
	if !strings.Contains(s, `\`) {
		return "", 0, false
	}
	if !looksLikeWindowsPath(s) {
		return "", 0, false
	}
	return s, i, true
}

func looksLikeWindowsPath(s string) bool {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, `\\`) {
		return true
	}
	if len(s) >= 3 && s[1] == ':' && s[2] == '\\' {
		return true
	}
	return false
}

// plausibleFiletimeBefore reads the 8 bytes ending at raw[end] (i.e.
// raw[end-8:end]) as a little-endian FILETIME and reports whether it
// decodes to a year in [1990, 2100].
func plausibleFiletimeBefore(raw []byte, end int) (uint64, bool) {
	if end-8 < 0 {
		return 0, false
	}
	ft := leUint64(raw[end-8 : end])
	if ft == 0 {
		return 0, false
	}
	dt := fileTimeToDateTime(ft)
	if dt == nil {
		return 0, false
	}
	if dt.Year < 1990 || dt.Year > 2100 {
		return 0, false
	}
	return ft, true
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// WriteShimcacheCSV writes entries as a CSV timeline:
// path,last_modified,smuggled,smuggled_why.
func WriteShimcacheCSV(w io.Writer, entries []ShimcacheEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "last_modified", "smuggled", "smuggled_why"}); err != nil {
		return err
	}
	for _, e := range entries {
		ts := ""
		if e.LastModified != nil {
			ts = e.LastModified.String()
		}
		smuggled := ""
		if e.Smuggled {
			smuggled = "true"
		}
		if err := cw.Write([]string{e.Path, ts, smuggled, e.SmuggledWhy}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
