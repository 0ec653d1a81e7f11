package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/mickamy/stdb-go/bsatn"
)

// Row list framing tags.
const (
	rowSizeFixed  = 0 // every row spans the same u16 number of bytes
	rowSizeOffset = 1 // explicit u64 start offsets, one per row
)

// RowList is a zero-copy view over the concatenated row payloads of one
// table. Data and the offset table alias the frame the list was decoded
// from; individual offsets are read on demand rather than parsed up front.
type RowList struct {
	fixed   bool
	stride  uint16
	count   uint32 // offset framing only
	offsets []byte // raw little-endian u64s, count*8 bytes
	Data    []byte
}

// NewFixedRowList builds a fixed-stride row list over data.
func NewFixedRowList(stride uint16, data []byte) RowList {
	return RowList{fixed: true, stride: stride, Data: data}
}

// NewOffsetRowList builds an offset-table row list from parsed offsets.
func NewOffsetRowList(offsets []uint64, data []byte) RowList {
	raw := make([]byte, 0, len(offsets)*8)
	for _, off := range offsets {
		raw = binary.LittleEndian.AppendUint64(raw, off)
	}
	return RowList{count: uint32(len(offsets)), offsets: raw, Data: data}
}

// Len returns the number of rows in the list.
func (l RowList) Len() int {
	if l.fixed {
		if l.stride == 0 || len(l.Data) == 0 {
			return 0
		}
		return len(l.Data) / int(l.stride)
	}
	return int(l.count)
}

// Row returns the payload of row i as a subslice of Data.
func (l RowList) Row(i int) ([]byte, error) {
	if i < 0 || i >= l.Len() {
		return nil, fmt.Errorf("wire: row index %d out of range (%d rows)", i, l.Len())
	}
	if l.fixed {
		start := i * int(l.stride)
		return l.Data[start : start+int(l.stride)], nil
	}
	start := binary.LittleEndian.Uint64(l.offsets[i*8:])
	end := uint64(len(l.Data))
	if i+1 < int(l.count) {
		end = binary.LittleEndian.Uint64(l.offsets[(i+1)*8:])
	}
	if start > end || end > uint64(len(l.Data)) {
		return nil, fmt.Errorf("wire: row %d offsets [%d, %d) exceed %d data bytes: %w",
			i, start, end, len(l.Data), bsatn.ErrOverflow)
	}
	return l.Data[start:end], nil
}

// decodeRowList reads a row_list: a size_hint sum followed by the raw
// rows_data bytes. Both legs alias the decoder's buffer.
func decodeRowList(d *bsatn.Decoder) (RowList, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return RowList{}, err
	}
	var l RowList
	switch tag {
	case rowSizeFixed:
		l.fixed = true
		if l.stride, err = d.ReadU16(); err != nil {
			return RowList{}, err
		}
	case rowSizeOffset:
		if l.count, err = d.ReadU32(); err != nil {
			return RowList{}, err
		}
		if l.offsets, err = d.ReadRaw(int(l.count) * 8); err != nil {
			return RowList{}, err
		}
	default:
		return RowList{}, fmt.Errorf("%w: %d", ErrUnknownRowSizeHint, tag)
	}
	if l.Data, err = d.ReadBytes(); err != nil {
		return RowList{}, err
	}
	return l, nil
}
