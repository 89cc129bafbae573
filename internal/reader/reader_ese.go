package reader

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/value"
)

// eseReader walks the page/tag-array structure of an Extensible Storage
// Engine database (the format behind SRUDB.dat and Windows Search). A
// conforming decode of ESE requires resolving the MSysObjects/
// MSysColumns catalog, fixed/variable/tagged column layouts, and
// separated long-value trees - squarely the kind of bit-level forensic
// format decoding this tool leaves to dedicated carvers. This
// reader instead walks every data page's tag array (a structure whose
// layout is fixed regardless of the catalog) and yields one Document
// per raw record blob, addressed by page and slot; the shimcache/SRUM
// analysers, which already know the specific record shapes they
// consume, interpret those bytes themselves rather than going through
// a general column decode here.
type eseReader struct {
	f          *os.File
	data       []byte
	skipErrors bool
	lastErr    error
	pageSize   int
	pageCount  int
	curPage    int
	curTags    []eseTag
	curTagIdx  int
	recordID   uint64
}

type eseTag struct {
	offset int
	size   int
}

const (
	eseSignature    = 0x89abcdef
	eseHeaderPageNo = 0
)

func newESEReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	data, err := readFileFully(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reader(ese): %w", err)
	}
	if len(data) < 256 {
		_ = f.Close()
		return nil, fmt.Errorf("reader(ese): %s: too small", path)
	}
	sig := binary.LittleEndian.Uint32(data[4:8])
	if sig != eseSignature {
		_ = f.Close()
		return nil, fmt.Errorf("reader(ese): %s: missing ESE signature", path)
	}
	pageSize := 4096
	if len(data) >= 240 {
		if v := binary.LittleEndian.Uint32(data[236:240]); v >= 2048 && v <= 32768 && v&(v-1) == 0 {
			pageSize = int(v)
		}
	}

	r := &eseReader{
		f:          f,
		data:       data,
		skipErrors: skipErrors,
		pageSize:   pageSize,
		pageCount:  len(data) / pageSize,
		curPage:    1, // page 0 is the database header, page 1 the shadow header
	}
	return r, nil
}

func (r *eseReader) Next(doc *document.Document) bool {
	for {
		if r.curTagIdx >= len(r.curTags) {
			r.curPage++
			if r.curPage >= r.pageCount {
				return false
			}
			tags, err := r.readPageTags(r.curPage)
			if err != nil {
				r.lastErr = fmt.Errorf("reader(ese): page %d: %w", r.curPage, err)
				if r.skipErrors {
					r.curTags = nil
					r.curTagIdx = 0
					continue
				}
				return false
			}
			r.curTags = tags
			r.curTagIdx = 0
			continue
		}

		tag := r.curTags[r.curTagIdx]
		r.curTagIdx++
		if tag.size == 0 {
			continue
		}

		base := r.curPage * r.pageSize
		start := base + tag.offset
		end := start + tag.size
		if start < 0 || end > len(r.data) || end < start {
			continue
		}
		raw := r.data[start:end]

		r.recordID++
		id := r.recordID
		doc.Data = value.Object([]value.Field{
			{Key: "Page", Val: value.Uint(uint64(r.curPage))},
			{Key: "Slot", Val: value.Uint(uint64(r.curTagIdx - 1))},
			{Key: "Size", Val: value.Uint(uint64(len(raw)))},
			{Key: "RawHex", Val: value.String(hexString(raw))},
		})
		doc.RecordID = &id
		doc.Timestamp = nil
		return true
	}
}

func (r *eseReader) LastError() error { return r.lastErr }
func (r *eseReader) Close() error     { return r.f.Close() }

// readPageTags decodes a page's tag array: two little-endian u16s per
// entry (value offset, value size; the low 13 bits of each carry the
// number and the top 3 bits are flags), counted down from the end of the
// page. The tag count is read from the page header at offset 36; a count
// of zero or one above pageSize/4 marks the page as not populated and
// yields no tags. There is no fallback for other header layouts.
func (r *eseReader) readPageTags(page int) ([]eseTag, error) {
	base := page * r.pageSize
	if base+r.pageSize > len(r.data) {
		return nil, fmt.Errorf("page out of bounds")
	}
	pageBytes := r.data[base : base+r.pageSize]
	if len(pageBytes) < 40 {
		return nil, fmt.Errorf("page too small")
	}

	avail := int(binary.LittleEndian.Uint16(pageBytes[36:38]))
	if avail <= 0 || avail > (r.pageSize/4) {
		return nil, nil // not a populated leaf/data page; skip
	}

	var tags []eseTag
	for i := 0; i < avail; i++ {
		entryOff := r.pageSize - (i+1)*4
		if entryOff < 0 {
			break
		}
		valOff := binary.LittleEndian.Uint16(pageBytes[entryOff : entryOff+2])
		valSizeRaw := binary.LittleEndian.Uint16(pageBytes[entryOff+2 : entryOff+4])
		size := int(valSizeRaw & 0x1fff) // low 13 bits; top bits are flags
		offset := int(valOff & 0x1fff)
		tags = append(tags, eseTag{offset: offset, size: size})
	}
	return tags, nil
}
