package reader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/triagelabs/chainsaw/internal/document"
)

// jsonlReader decodes one JSON object per line, the newline-delimited
// sibling of the array-based JSON reader.
type jsonlReader struct {
	f          *os.File
	scanner    *bufio.Scanner
	skipErrors bool
	lastErr    error
	recordID   uint64
}

func newJSONLReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &jsonlReader{f: f, scanner: scanner, skipErrors: skipErrors}, nil
}

func (r *jsonlReader) Next(doc *document.Document) bool {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		v, err := decodeValue(dec)
		if err != nil {
			if r.skipErrors {
				r.lastErr = fmt.Errorf("reader(jsonl): line %d: %w", r.recordID+1, err)
				continue
			}
			r.lastErr = fmt.Errorf("reader(jsonl): line %d: %w", r.recordID+1, err)
			return false
		}
		r.recordID++
		id := r.recordID
		doc.Data = v
		doc.RecordID = &id
		doc.Timestamp = nil
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.lastErr = fmt.Errorf("reader(jsonl): %w", err)
	}
	return false
}

func (r *jsonlReader) LastError() error { return r.lastErr }
func (r *jsonlReader) Close() error     { return r.f.Close() }
