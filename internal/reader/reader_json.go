package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/value"
)

// jsonReader decodes a top-level JSON array (or a single object, treated
// as a one-element array) into one Document per array element, preserving
// source field order via token-level decoding (encoding/json's map[string]any
// path would lose it).
type jsonReader struct {
	f          *os.File
	dec        *json.Decoder
	skipErrors bool
	lastErr    error
	recordID   uint64
	started    bool
	singleObj  bool
	done       bool
}

func newJSONReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	dec := json.NewDecoder(f)
	dec.UseNumber()
	return &jsonReader{f: f, dec: dec, skipErrors: skipErrors}, nil
}

func (r *jsonReader) Next(doc *document.Document) bool {
	if r.done {
		return false
	}

	if !r.started {
		r.started = true
		tok, err := r.dec.Token()
		if err == io.EOF {
			r.done = true
			return false
		}
		if err != nil {
			r.fail(err)
			return false
		}
		delim, ok := tok.(json.Delim)
		switch {
		case ok && delim == '[':
			// array root: fall through to per-element decode below
		case ok && delim == '{':
			v, err := decodeObjectBody(r.dec)
			if err != nil {
				r.fail(err)
				return false
			}
			r.singleObj = true
			r.done = true
			r.recordID++
			id := r.recordID
			doc.Data = v
			doc.RecordID = &id
			return true
		default:
			r.fail(fmt.Errorf("unexpected top-level token %v", tok))
			return false
		}
	}

	if r.singleObj || !r.dec.More() {
		r.done = true
		return false
	}

	v, err := decodeValue(r.dec)
	if err != nil {
		if r.skipErrors {
			r.lastErr = fmt.Errorf("reader(json): decode record: %w", err)
			return r.Next(doc)
		}
		r.fail(err)
		return false
	}

	r.recordID++
	id := r.recordID
	doc.Data = v
	doc.RecordID = &id
	doc.Timestamp = nil
	return true
}

func (r *jsonReader) fail(err error) {
	r.lastErr = fmt.Errorf("reader(json): %w", err)
	r.done = true
}

func (r *jsonReader) LastError() error { return r.lastErr }

func (r *jsonReader) Close() error { return r.f.Close() }

// decodeValue decodes exactly one JSON value from dec, preserving object
// key order.
func decodeValue(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Null, err
	}
	return decodeValueFromToken(tok, dec)
}

func decodeValueFromToken(tok json.Token, dec *json.Decoder) (value.Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObjectBody(dec)
		case '[':
			return decodeArrayBody(dec)
		default:
			return value.Null, fmt.Errorf("reader(json): unexpected delimiter %v", t)
		}
	case nil:
		return value.Null, nil
	case bool:
		return value.Bool(t), nil
	case string:
		return value.String(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return value.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return value.Null, err
		}
		return value.Float(f), nil
	default:
		return value.Null, fmt.Errorf("reader(json): unsupported token %T", tok)
	}
}

// decodeObjectBody decodes the contents of a JSON object after its opening
// '{' has already been consumed.
func decodeObjectBody(dec *json.Decoder) (value.Value, error) {
	var fields []value.Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return value.Null, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return value.Null, fmt.Errorf("reader(json): non-string object key %v", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return value.Null, err
		}
		fields = append(fields, value.Field{Key: key, Val: v})
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return value.Null, err
	}
	return value.Object(fields), nil
}

// decodeArrayBody decodes the contents of a JSON array after its opening
// '[' has already been consumed.
func decodeArrayBody(dec *json.Decoder) (value.Value, error) {
	var elems []value.Value
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return value.Null, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return value.Null, err
	}
	return value.Array(elems), nil
}
