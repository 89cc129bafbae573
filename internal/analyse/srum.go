package analyse

import (
	"fmt"
	"io"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/reader"
	"github.com/triagelabs/chainsaw/internal/render"
	"github.com/triagelabs/chainsaw/internal/value"
)

// SRUMEntry is one recovered record from a System Resource Usage
// Monitor database: the page/slot it was read from (so a reader can
// cross-reference the raw ESE dump), a best-effort application name
// recovered from the record bytes, and a best-effort timestamp.
type SRUMEntry struct {
	Page            uint64
	Slot            uint64
	ApplicationName string
	Timestamp       *datetime.DateTime
	RawHex          string
	Smuggled        bool
	SmuggledWhy     string
}

// AnalyseSRUM opens path (a SRUDB.dat-style ESE database) and recovers
// one SRUMEntry per raw record the ESE tag-array reader exposes. Because
// the reader does not resolve the MSysObjects catalog, column identity
// is unknown: ApplicationName and Timestamp are populated only when a
// plausible embedded string/FILETIME is found in the record, and RawHex
// always carries the complete record for the caller to inspect further.
func AnalyseSRUM(path string, skipErrors bool) ([]SRUMEntry, error) {
	r, err := reader.Open(path, false, skipErrors)
	if err != nil {
		return nil, fmt.Errorf("analyse(srum): open %s: %w", path, err)
	}
	defer r.Close()

	var out []SRUMEntry
	var doc document.Document
	for r.Next(&doc) {
		out = append(out, srumEntryFromDocument(doc))
	}
	if !skipErrors {
		if err := r.LastError(); err != nil {
			return nil, fmt.Errorf("analyse(srum): %s: %w", path, err)
		}
	}
	return out, nil
}

func srumEntryFromDocument(doc document.Document) SRUMEntry {
	page, _ := getUint(doc.Data, "Page")
	slot, _ := getUint(doc.Data, "Slot")
	hexStr, _ := getString(doc.Data, "RawHex")

	entry := SRUMEntry{Page: page, Slot: slot, RawHex: hexStr}

	if raw, err := decodeHex(hexStr); err == nil {
		for i := 0; i+4 <= len(raw); i++ {
			if s, _, ok := scanUTF16Path(raw[i:]); ok {
				entry.ApplicationName = s
				break
			}
		}
		if entry.ApplicationName == "" {
			if s, ok := scanASCIIIdentifier(raw); ok {
				entry.ApplicationName = s
			}
		}
		if ft, ok := firstPlausibleFiletime(raw); ok {
			entry.Timestamp = fileTimeToDateTime(ft)
		}
	}
	if entry.ApplicationName != "" {
		if anomalies := scanPathAnomalies(entry.ApplicationName); len(anomalies) > 0 {
			entry.Smuggled = true
			entry.SmuggledWhy = describePathAnomalies(anomalies)
		}
	}
	return entry
}

func getUint(v value.Value, key string) (uint64, bool) {
	f, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return f.AsUint64()
}

func getString(v value.Value, key string) (string, bool) {
	f, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return f.AsString()
}

func decodeHex(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", c)
	}
}

// scanASCIIIdentifier looks for the first run of 4+ printable ASCII
// bytes ending in ".exe" (the shape of a SRUM application identifier),
// since not every record embeds a UTF-16 path.
func scanASCIIIdentifier(raw []byte) (string, bool) {
	start := -1
	for i := 0; i <= len(raw); i++ {
		printable := i < len(raw) && raw[i] >= 0x20 && raw[i] <= 0x7e
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			run := string(raw[start:i])
			if len(run) >= 4 && hasSuffixFold(run, ".exe") {
				return run, true
			}
			start = -1
		}
	}
	return "", false
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// firstPlausibleFiletime scans every 8-byte-aligned offset for a
// little-endian value that decodes to a year in [1990, 2100].
func firstPlausibleFiletime(raw []byte) (uint64, bool) {
	for i := 0; i+8 <= len(raw); i += 8 {
		v := leUint64(raw[i : i+8])
		if v == 0 {
			continue
		}
		dt := fileTimeToDateTime(v)
		if dt != nil && dt.Year >= 1990 && dt.Year <= 2100 {
			return v, true
		}
	}
	return 0, false
}

type srumRow struct{ e SRUMEntry }

func (r srumRow) TimestampForSort() *datetime.DateTime { return r.e.Timestamp }

func (r srumRow) JSONValue() value.Value {
	obj := value.NewObject().
		WithField("page", value.Uint(r.e.Page)).
		WithField("slot", value.Uint(r.e.Slot)).
		WithField("raw_hex", value.String(r.e.RawHex))
	if r.e.ApplicationName != "" {
		obj = obj.WithField("application_name", value.String(r.e.ApplicationName))
	}
	if r.e.Timestamp != nil {
		obj = obj.WithField("timestamp", value.String(r.e.Timestamp.String()))
	}
	if r.e.Smuggled {
		obj = obj.WithField("smuggled", value.Bool(true)).WithField("smuggled_why", value.String(r.e.SmuggledWhy))
	}
	return obj
}

func (r srumRow) Columns() []string {
	ts := ""
	if r.e.Timestamp != nil {
		ts = r.e.Timestamp.String()
	}
	return []string{fmt.Sprintf("%d", r.e.Page), fmt.Sprintf("%d", r.e.Slot), r.e.ApplicationName, ts}
}

// WriteSRUMJSON writes entries as the standard JSON-array document form.
func WriteSRUMJSON(w io.Writer, entries []SRUMEntry) error {
	rows := make([]render.Row, len(entries))
	for i, e := range entries {
		rows[i] = srumRow{e}
	}
	return render.JSONArray(w, rows)
}
