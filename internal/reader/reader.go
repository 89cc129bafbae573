// Package reader implements a uniform artefact-opening contract:
// dispatch by file extension to a format-specific backend that
// yields a lazy, source-ordered sequence of documents.
package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/triagelabs/chainsaw/internal/document"
)

// Reader is the uniform contract every format backend implements.
// Next reports whether a document was produced into doc; when skipErrors
// was set at Open time, a per-record decode failure is recorded and
// retrievable via LastError without aborting iteration.
type Reader interface {
	Next(doc *document.Document) bool
	LastError() error
	Close() error
}

// Factory constructs a Reader for an already-opened file path.
type Factory func(path string, skipErrors bool) (Reader, error)

// registry maps a lower-cased, dot-less extension to its backend factory.
// "" is the key used for extensionless registry hive files.
var registry = map[string]Factory{
	"json":  newJSONReader,
	"jsonl": newJSONLReader,
	"xml":   newXMLReader,
	"evtx":  newEVTXReader,
	"hve":   newHiveReader,
	"":      newHiveReader,
	"dat":   newESEReader,
	"edb":   newESEReader,
	"mft":   newMFTReader,
}

// Extensions returns the set of extensions (without leading dot, lower
// case, "" meaning extensionless) understood by the reader framework.
// Discovery unions this with the mapping-declared set.
func Extensions() map[string]bool {
	out := make(map[string]bool, len(registry))
	for ext := range registry {
		out[ext] = true
	}
	return out
}

// Open dispatches to the format-specific backend selected by path's
// extension. loadUnknown=false rejects unrecognised extensions before any
// bytes are read.
func Open(path string, loadUnknown, skipErrors bool) (Reader, error) {
	ext := extensionOf(path)
	factory, ok := registry[ext]
	if !ok {
		if !loadUnknown {
			return nil, fmt.Errorf("reader: unsupported extension %q for %s", ext, path)
		}
		factory = newJSONLReader
	}
	r, err := factory(path, skipErrors)
	if err != nil {
		return nil, err
	}
	return sourceReader{Reader: r, path: path}, nil
}

// sourceReader stamps every document with the path it was read from.
type sourceReader struct {
	Reader
	path string
}

func (s sourceReader) Next(doc *document.Document) bool {
	if !s.Reader.Next(doc) {
		return false
	}
	doc.Source = s.path
	return true
}

func extensionOf(path string) string {
	ext := filepath.Ext(path)
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return ext
}
