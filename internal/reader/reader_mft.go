package reader

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/value"
)

// mftReader walks an NTFS $MFT image's fixed-size (1024-byte, the
// overwhelmingly common case) FILE records, decoding the
// $STANDARD_INFORMATION and $FILE_NAME attributes. Non-resident
// attributes, the update sequence array fixup, and attributes beyond
// these two are not decoded (the non-goal on bit-level forensic format
// decoding): a record whose attributes can't be walked is skipped
// rather than aborting the file.
type mftReader struct {
	f          *os.File
	data       []byte
	skipErrors bool
	lastErr    error
	recordSize int
	pos        int
	recordID   uint64
}

const mftDefaultRecordSize = 1024

func newMFTReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	data, err := readFileFully(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reader(mft): %w", err)
	}
	if len(data) < mftDefaultRecordSize || string(data[0:4]) != "FILE" {
		_ = f.Close()
		return nil, fmt.Errorf("reader(mft): %s: missing FILE magic", path)
	}
	return &mftReader{f: f, data: data, skipErrors: skipErrors, recordSize: mftDefaultRecordSize}, nil
}

func (r *mftReader) Next(doc *document.Document) bool {
	for r.pos+r.recordSize <= len(r.data) {
		rec := r.data[r.pos : r.pos+r.recordSize]
		r.pos += r.recordSize
		r.recordID++

		if string(rec[0:4]) != "FILE" {
			continue // unused/unallocated slot
		}
		v, ts, err := decodeMFTRecord(rec, r.recordID)
		if err != nil {
			r.lastErr = fmt.Errorf("reader(mft): record %d: %w", r.recordID, err)
			if r.skipErrors {
				continue
			}
			return false
		}
		id := r.recordID
		doc.Data = v
		doc.RecordID = &id
		doc.Timestamp = ts
		return true
	}
	return false
}

func (r *mftReader) LastError() error { return r.lastErr }
func (r *mftReader) Close() error     { return r.f.Close() }

func decodeMFTRecord(rec []byte, recordID uint64) (value.Value, *datetime.DateTime, error) {
	if len(rec) < 48 {
		return value.Null, nil, fmt.Errorf("record too small")
	}
	attrOffset := int(binary.LittleEndian.Uint16(rec[20:22]))
	flags := binary.LittleEndian.Uint16(rec[22:24])
	sequenceNumber := binary.LittleEndian.Uint16(rec[16:18])

	inUse := flags&0x0001 != 0
	isDir := flags&0x0002 != 0

	var stdInfo value.Value
	var names []value.Value
	var ts *datetime.DateTime

	off := attrOffset
	for off+8 <= len(rec) {
		attrType := binary.LittleEndian.Uint32(rec[off : off+4])
		if attrType == 0xffffffff {
			break
		}
		attrLen := int(binary.LittleEndian.Uint32(rec[off+4 : off+8]))
		if attrLen <= 0 || off+attrLen > len(rec) {
			break
		}
		nonResident := rec[off+8]
		if nonResident == 0 && off+24 <= len(rec) {
			contentLen := int(binary.LittleEndian.Uint32(rec[off+16 : off+20]))
			contentOff := int(binary.LittleEndian.Uint16(rec[off+20 : off+22]))
			if off+contentOff+contentLen <= len(rec) {
				content := rec[off+contentOff : off+contentOff+contentLen]
				switch attrType {
				case 0x10: // $STANDARD_INFORMATION
					si, siTS := decodeStandardInformation(content)
					stdInfo = si
					if siTS != nil {
						ts = siTS
					}
				case 0x30: // $FILE_NAME
					if fn, ok := decodeFileName(content); ok {
						names = append(names, fn)
					}
				}
			}
		}
		off += attrLen
	}

	fields := []value.Field{
		{Key: "RecordNumber", Val: value.Uint(recordID - 1)},
		{Key: "SequenceNumber", Val: value.Uint(uint64(sequenceNumber))},
		{Key: "InUse", Val: value.Bool(inUse)},
		{Key: "IsDirectory", Val: value.Bool(isDir)},
	}
	if stdInfo.Kind() != value.KindNull {
		fields = append(fields, value.Field{Key: "StandardInformation", Val: stdInfo})
	}
	if len(names) > 0 {
		fields = append(fields, value.Field{Key: "FileNames", Val: value.Array(names)})
	}
	return value.Object(fields), ts, nil
}

func decodeStandardInformation(c []byte) (value.Value, *datetime.DateTime) {
	if len(c) < 36 {
		return value.Null, nil
	}
	created := binary.LittleEndian.Uint64(c[0:8])
	modified := binary.LittleEndian.Uint64(c[8:16])
	mftModified := binary.LittleEndian.Uint64(c[16:24])
	accessed := binary.LittleEndian.Uint64(c[24:32])
	attrs := binary.LittleEndian.Uint32(c[32:36])

	fields := []value.Field{
		{Key: "CreationTime", Val: filetimeString(created)},
		{Key: "ModifiedTime", Val: filetimeString(modified)},
		{Key: "MFTModifiedTime", Val: filetimeString(mftModified)},
		{Key: "AccessedTime", Val: filetimeString(accessed)},
		{Key: "FileAttributes", Val: value.Uint(uint64(attrs))},
	}
	return value.Object(fields), fileTimeToDateTime(modified)
}

func decodeFileName(c []byte) (value.Value, bool) {
	if len(c) < 66 {
		return value.Null, false
	}
	parentRef := binary.LittleEndian.Uint64(c[0:8])
	created := binary.LittleEndian.Uint64(c[8:16])
	modified := binary.LittleEndian.Uint64(c[16:24])
	accessed := binary.LittleEndian.Uint64(c[32:40])
	allocSize := binary.LittleEndian.Uint64(c[40:48])
	realSize := binary.LittleEndian.Uint64(c[48:56])
	nameLen := int(c[64])
	namespace := c[65]
	if 66+nameLen*2 > len(c) {
		return value.Null, false
	}
	name := utf16ToString(c[66 : 66+nameLen*2])

	fields := []value.Field{
		{Key: "Name", Val: value.String(name)},
		{Key: "Namespace", Val: fileNamespace(namespace)},
		{Key: "ParentRecordNumber", Val: value.Uint(parentRef & 0x0000ffffffffffff)},
		{Key: "CreationTime", Val: filetimeString(created)},
		{Key: "ModifiedTime", Val: filetimeString(modified)},
		{Key: "AccessedTime", Val: filetimeString(accessed)},
		{Key: "AllocatedSize", Val: value.Uint(allocSize)},
		{Key: "RealSize", Val: value.Uint(realSize)},
	}
	return value.Object(fields), true
}

func fileNamespace(n byte) value.Value {
	switch n {
	case 0:
		return value.String("POSIX")
	case 1:
		return value.String("Win32")
	case 2:
		return value.String("DOS")
	case 3:
		return value.String("Win32AndDos")
	default:
		return value.String("Unknown")
	}
}

func filetimeString(ft uint64) value.Value {
	dt := fileTimeToDateTime(ft)
	if dt == nil {
		return value.Null
	}
	return value.String(dt.String())
}
