package reader

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/triagelabs/chainsaw/internal/document"
)

// xmlReader decodes a generic XML export. Each direct child element of the
// document root becomes one Document (mirroring how a JSON array's
// elements each become one Document); a root with no children yields the
// root itself as the sole record.
type xmlReader struct {
	f          *os.File
	skipErrors bool
	lastErr    error
	recordID   uint64
	records    []*xmlElement
	pos        int
}

func newXMLReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	r := &xmlReader{f: f, skipErrors: skipErrors}

	dec := xml.NewDecoder(f)
	root, err := decodeXMLElement(dec)
	if err != nil && err != io.EOF {
		if !skipErrors {
			_ = f.Close()
			return nil, fmt.Errorf("reader(xml): %w", err)
		}
		r.lastErr = fmt.Errorf("reader(xml): %w", err)
	}
	if root != nil {
		if len(root.Children) > 0 {
			r.records = root.Children
		} else {
			r.records = []*xmlElement{root}
		}
	}
	return r, nil
}

func (r *xmlReader) Next(doc *document.Document) bool {
	if r.pos >= len(r.records) {
		return false
	}
	el := r.records[r.pos]
	r.pos++
	r.recordID++
	id := r.recordID
	doc.Data = elementToValue(el)
	doc.RecordID = &id
	doc.Timestamp = nil
	return true
}

func (r *xmlReader) LastError() error { return r.lastErr }
func (r *xmlReader) Close() error     { return r.f.Close() }

// decodeXMLElement reads the first top-level element from dec into an
// xmlElement tree.
func decodeXMLElement(dec *xml.Decoder) (*xmlElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return buildXMLElement(dec, start)
		}
	}
}

func buildXMLElement(dec *xml.Decoder, start xml.StartElement) (*xmlElement, error) {
	el := &xmlElement{Name: start.Name.Local}
	for _, a := range start.Attr {
		el.Attrs = append(el.Attrs, xmlAttr{Name: a.Name.Local, Value: a.Value})
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", start.Name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildXMLElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			el.Text = strings.TrimSpace(text.String())
			return el, nil
		}
	}
}
