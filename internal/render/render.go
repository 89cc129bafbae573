// Package render implements the Table/JSON/JSONL/YAML-ish output
// contracts shared by the hunt, search, and dump commands.
// Every writer here emits UTF-8 without a BOM and LF line endings
// regardless of host, and JSON output is produced incrementally rather
// than buffered into one giant in-memory document.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/value"
)

// Row is anything the renderers can turn into an output record: a JSON
// value (for JSON/JSONL/YAML-ish) and a fixed ordered set of named
// columns (for the Table renderer).
type Row interface {
	JSONValue() value.Value
	Columns() []string
	TimestampForSort() *datetime.DateTime
}

// JSONArray writes rows as one pretty-printed JSON array, 2-space
// indented, built incrementally: "[", a comma-separated sequence of
// pretty sub-documents, then "]". An empty rows slice still produces a
// well-formed "[]".
func JSONArray(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}
	for i, r := range rows {
		body := r.JSONValue().ToJSON(true)
		indented := indentBlock(body, "  ")
		if _, err := io.WriteString(w, indented); err != nil {
			return err
		}
		if i < len(rows)-1 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// JSONLines writes one compact JSON object per line, no trailing comma.
func JSONLines(w io.Writer, rows []Row) error {
	for _, r := range rows {
		if _, err := io.WriteString(w, r.JSONValue().ToJSON(false)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// YAMLish writes the default human view: a "---" separator before each
// pretty-printed JSON document. This intentionally is not valid YAML —
// it matches the upstream tool's own "yaml-ish" format.
func YAMLish(w io.Writer, rows []Row) error {
	for _, r := range rows {
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
		if _, err := io.WriteString(w, r.JSONValue().ToJSON(true)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// TableOptions configures the fixed-column Table renderer.
type TableOptions struct {
	Headers     []string
	ColumnWidth int // 0 means use DefaultColumnWidth
	Full        bool
}

const DefaultColumnWidth = 30

// Table writes rows sorted stably by (timestamp, then insertion order —
// callers that need source/record_id/hunt_id tiebreaks must pre-sort
// rows themselves) into a fixed-width, tab-aligned table. Cells longer
// than the configured width are ellipsis-truncated unless Full is set.
func Table(w io.Writer, rows []Row, opts TableOptions) error {
	width := opts.ColumnWidth
	if width <= 0 {
		width = DefaultColumnWidth
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareTimestamps(sorted[i].TimestampForSort(), sorted[j].TimestampForSort()) < 0
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(opts.Headers, "\t"))
	for _, r := range sorted {
		cols := r.Columns()
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = truncate(c, width, opts.Full)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func truncate(s string, width int, full bool) string {
	if full || len([]rune(s)) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

func compareTimestamps(a, b *datetime.DateTime) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func indentBlock(body, prefix string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if l == "" {
			continue
		}
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
