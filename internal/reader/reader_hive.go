package reader

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/value"
)

// hiveReader walks a Windows Registry hive (REGF format) and yields one
// Document per value cell, each carrying the full key path it lives
// under. Per the non-goal on bit-level forensic format decoding, this
// walks the common nk/vk/lf/lh/li/ri cell shapes (covering the layout
// every modern hive uses) and treats anything else - security
// descriptors, big-data value cells, classnames - as opaque: a value
// that can't be decoded is skipped rather than aborting the walk.
type hiveReader struct {
	f          *os.File
	data       []byte
	skipErrors bool
	lastErr    error

	queue []hiveValueRef
	pos   int
	seq   uint64
}

type hiveValueRef struct {
	keyPath string
	cellOff int // absolute file offset of the vk cell's size field
}

const hiveBinsStart = 0x1000

func newHiveReader(path string, skipErrors bool) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	data, err := readFileFully(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reader(hive): %w", err)
	}
	if len(data) < hiveBinsStart+4 || string(data[0:4]) != "regf" {
		_ = f.Close()
		return nil, fmt.Errorf("reader(hive): %s: missing regf magic", path)
	}

	r := &hiveReader{f: f, data: data, skipErrors: skipErrors}
	rootOffset := int(binary.LittleEndian.Uint32(data[0x24:0x28]))
	if err := r.collectValues(hiveBinsStart+rootOffset, ""); err != nil {
		r.lastErr = fmt.Errorf("reader(hive): %w", err)
	}
	return r, nil
}

func (r *hiveReader) Next(doc *document.Document) bool {
	for r.pos < len(r.queue) {
		ref := r.queue[r.pos]
		r.pos++
		v, name, err := r.decodeValueCell(ref.cellOff)
		if err != nil {
			r.lastErr = fmt.Errorf("reader(hive): key %s: %w", ref.keyPath, err)
			if r.skipErrors {
				continue
			}
			return false
		}
		r.seq++
		id := r.seq
		doc.Data = value.Object([]value.Field{
			{Key: "Path", Val: value.String(ref.keyPath)},
			{Key: "Name", Val: value.String(name)},
			{Key: "Value", Val: v},
		})
		doc.RecordID = &id
		doc.Timestamp = nil
		return true
	}
	return false
}

func (r *hiveReader) LastError() error { return r.lastErr }
func (r *hiveReader) Close() error     { return r.f.Close() }

// cellData returns the data of the cell whose size field starts at
// absolute offset off (signed size, negative meaning allocated).
func (r *hiveReader) cellData(off int) ([]byte, error) {
	if off < 0 || off+4 > len(r.data) {
		return nil, fmt.Errorf("cell offset %#x out of bounds", off)
	}
	size := int32(binary.LittleEndian.Uint32(r.data[off : off+4]))
	if size >= 0 {
		return nil, fmt.Errorf("cell at %#x is unallocated", off)
	}
	n := int(-size)
	if n < 4 || off+n > len(r.data) {
		return nil, fmt.Errorf("cell at %#x has invalid size %d", off, n)
	}
	return r.data[off+4 : off+n], nil
}

// collectValues recursively walks key node cells, appending a
// hiveValueRef for every value found under keyOff, named by its full
// backslash-joined path from the root.
func (r *hiveReader) collectValues(keyOff int, parentPath string) error {
	cell, err := r.cellData(keyOff)
	if err != nil {
		return err
	}
	if len(cell) < 76 || string(cell[0:2]) != "nk" {
		return fmt.Errorf("offset %#x: not an nk cell", keyOff)
	}

	nameLen := int(binary.LittleEndian.Uint16(cell[72:74]))
	asciiName := binary.LittleEndian.Uint16(cell[2:4])&0x0020 != 0
	nameBytes := cell[76:]
	if nameLen > len(nameBytes) {
		nameLen = len(nameBytes)
	}
	nameBytes = nameBytes[:nameLen]
	var name string
	if asciiName {
		name = string(nameBytes)
	} else {
		name = utf16ToString(nameBytes)
	}

	path := name
	if parentPath != "" {
		path = parentPath + "\\" + name
	}

	valueCount := int(binary.LittleEndian.Uint32(cell[36:40]))
	valueListOffset := int32(binary.LittleEndian.Uint32(cell[40:44]))
	if valueCount > 0 && valueListOffset != -1 {
		listCell, err := r.cellData(hiveBinsStart + int(valueListOffset))
		if err == nil {
			for i := 0; i < valueCount && (i+1)*4 <= len(listCell); i++ {
				vOff := int32(binary.LittleEndian.Uint32(listCell[i*4 : i*4+4]))
				if vOff >= 0 {
					r.queue = append(r.queue, hiveValueRef{keyPath: path, cellOff: hiveBinsStart + int(vOff)})
				}
			}
		}
	}

	subkeyCount := int(binary.LittleEndian.Uint32(cell[20:24]))
	subkeyListOffset := int32(binary.LittleEndian.Uint32(cell[28:32]))
	if subkeyCount > 0 && subkeyListOffset != -1 {
		offsets, err := r.resolveSubkeyOffsets(hiveBinsStart + int(subkeyListOffset))
		if err == nil {
			for _, off := range offsets {
				_ = r.collectValues(off, path)
			}
		}
	}
	return nil
}

// resolveSubkeyOffsets expands an lf/lh/li/ri subkey index cell into the
// absolute offsets of its nk children, recursing through ri index roots.
func (r *hiveReader) resolveSubkeyOffsets(listOff int) ([]int, error) {
	cell, err := r.cellData(listOff)
	if err != nil {
		return nil, err
	}
	if len(cell) < 4 {
		return nil, fmt.Errorf("subkey list too small")
	}
	sig := string(cell[0:2])
	count := int(binary.LittleEndian.Uint16(cell[2:4]))

	switch sig {
	case "lf", "lh":
		var out []int
		for i := 0; i < count; i++ {
			entryOff := 4 + i*8
			if entryOff+4 > len(cell) {
				break
			}
			off := int32(binary.LittleEndian.Uint32(cell[entryOff : entryOff+4]))
			out = append(out, hiveBinsStart+int(off))
		}
		return out, nil
	case "li":
		var out []int
		for i := 0; i < count; i++ {
			entryOff := 4 + i*4
			if entryOff+4 > len(cell) {
				break
			}
			off := int32(binary.LittleEndian.Uint32(cell[entryOff : entryOff+4]))
			out = append(out, hiveBinsStart+int(off))
		}
		return out, nil
	case "ri":
		var out []int
		for i := 0; i < count; i++ {
			entryOff := 4 + i*4
			if entryOff+4 > len(cell) {
				break
			}
			off := int32(binary.LittleEndian.Uint32(cell[entryOff : entryOff+4]))
			sub, err := r.resolveSubkeyOffsets(hiveBinsStart + int(off))
			if err == nil {
				out = append(out, sub...)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported subkey list signature %q", sig)
	}
}

// Registry value types (winnt.h REG_* constants).
const (
	regNone      = 0
	regSZ        = 1
	regExpandSZ  = 2
	regBinary    = 3
	regDWord     = 4
	regDWordBE   = 5
	regLink      = 6
	regMultiSZ   = 7
	regResList   = 8
	regFullResDe = 9
	regQWord     = 11
)

// decodeValueCell decodes a vk cell's name and data.
func (r *hiveReader) decodeValueCell(off int) (value.Value, string, error) {
	cell, err := r.cellData(off)
	if err != nil {
		return value.Null, "", err
	}
	if len(cell) < 20 || string(cell[0:2]) != "vk" {
		return value.Null, "", fmt.Errorf("offset %#x: not a vk cell", off)
	}

	nameLen := int(binary.LittleEndian.Uint16(cell[2:4]))
	dataLenRaw := binary.LittleEndian.Uint32(cell[4:8])
	inline := dataLenRaw&0x80000000 != 0
	dataLen := int(dataLenRaw &^ 0x80000000)
	dataOffset := int32(binary.LittleEndian.Uint32(cell[8:12]))
	valueType := binary.LittleEndian.Uint32(cell[12:16])
	flags := binary.LittleEndian.Uint16(cell[16:18])
	asciiName := flags&0x0001 != 0

	var name string
	if len(cell) >= 20+nameLen {
		nameBytes := cell[20 : 20+nameLen]
		if asciiName {
			name = string(nameBytes)
		} else {
			name = utf16ToString(nameBytes)
		}
	}
	if name == "" {
		name = "(default)"
	}

	var raw []byte
	if inline {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(dataOffset))
		if dataLen > 4 {
			dataLen = 4
		}
		raw = buf[:dataLen]
	} else {
		d, err := r.cellData(hiveBinsStart + int(dataOffset))
		if err != nil {
			return value.Null, name, err
		}
		if dataLen > len(d) {
			dataLen = len(d)
		}
		raw = d[:dataLen]
	}

	return decodeRegistryValue(valueType, raw), name, nil
}

func decodeRegistryValue(valueType uint32, raw []byte) value.Value {
	switch valueType {
	case regSZ, regExpandSZ, regLink:
		return value.String(strings.TrimRight(utf16ToString(raw), "\x00"))
	case regMultiSZ:
		s := utf16ToString(raw)
		parts := strings.Split(strings.TrimRight(s, "\x00"), "\x00")
		arr := make([]value.Value, len(parts))
		for i, p := range parts {
			arr[i] = value.String(p)
		}
		return value.Array(arr)
	case regDWord:
		if len(raw) >= 4 {
			return value.Uint(uint64(binary.LittleEndian.Uint32(raw)))
		}
	case regDWordBE:
		if len(raw) >= 4 {
			return value.Uint(uint64(binary.BigEndian.Uint32(raw)))
		}
	case regQWord:
		if len(raw) >= 8 {
			return value.Uint(binary.LittleEndian.Uint64(raw))
		}
	case regNone, regBinary, regResList, regFullResDe:
		return value.String(hexString(raw))
	}
	return value.String(hexString(raw))
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
