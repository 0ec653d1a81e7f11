package bsatn

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decoder is a cursor over a byte slice. Each read advances the cursor by
// exactly the number of bytes the value occupies. The decoder never copies
// the underlying buffer for primitive reads. ReadString and DecodeValue
// return owned copies; ReadBytes and ReadRaw alias the buffer.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// take advances the cursor past n bytes and returns them as a subslice of
// the underlying buffer.
func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrBufferTooShort
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	}
	return false, ErrInvalidBool
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadU128() (U128, error) {
	b, err := d.take(16)
	if err != nil {
		return U128{}, err
	}
	return U128{
		Lo: binary.LittleEndian.Uint64(b[:8]),
		Hi: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

func (d *Decoder) ReadU256() (U256, error) {
	b, err := d.take(32)
	if err != nil {
		return U256{}, err
	}
	var v U256
	copy(v[:], b)
	return v, nil
}

func (d *Decoder) ReadI8() (int8, error) {
	v, err := d.ReadU8()
	return int8(v), err
}

func (d *Decoder) ReadI16() (int16, error) {
	v, err := d.ReadU16()
	return int16(v), err
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

func (d *Decoder) ReadI128() (I128, error) {
	v, err := d.ReadU128()
	return I128(v), err
}

func (d *Decoder) ReadI256() (I256, error) {
	v, err := d.ReadU256()
	return I256(v), err
}

func (d *Decoder) ReadF32() (float32, error) {
	v, err := d.ReadU32()
	return math.Float32frombits(v), err
}

func (d *Decoder) ReadF64() (float64, error) {
	v, err := d.ReadU64()
	return math.Float64frombits(v), err
}

// ReadString reads a u32 length prefix and that many raw bytes. The result
// is an owned copy; the bytes are not validated as UTF-8.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes reads a u32 length prefix and that many raw bytes. The result
// aliases the decoder's buffer; callers that retain it past the buffer's
// lifetime must copy.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	return d.take(int(n))
}

// ReadRaw reads exactly n bytes without a prefix, aliasing the buffer.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	return d.take(n)
}

// DecodeValue decodes one value of type t, recursing into composites.
// Returned strings and byte slices are owned copies, so a decoded value
// never aliases the input buffer.
func (d *Decoder) DecodeValue(t *Type) (Value, error) {
	switch t.Kind {
	case KindBool:
		v, err := d.ReadBool()
		return Bool(v), err
	case KindU8:
		v, err := d.ReadU8()
		return U8(v), err
	case KindU16:
		v, err := d.ReadU16()
		return U16(v), err
	case KindU32:
		v, err := d.ReadU32()
		return U32(v), err
	case KindU64:
		v, err := d.ReadU64()
		return U64(v), err
	case KindU128:
		v, err := d.ReadU128()
		return v, err
	case KindU256:
		v, err := d.ReadU256()
		return v, err
	case KindI8:
		v, err := d.ReadI8()
		return I8(v), err
	case KindI16:
		v, err := d.ReadI16()
		return I16(v), err
	case KindI32:
		v, err := d.ReadI32()
		return I32(v), err
	case KindI64:
		v, err := d.ReadI64()
		return I64(v), err
	case KindI128:
		v, err := d.ReadI128()
		return v, err
	case KindI256:
		v, err := d.ReadI256()
		return v, err
	case KindF32:
		v, err := d.ReadF32()
		return F32(v), err
	case KindF64:
		v, err := d.ReadF64()
		return F64(v), err
	case KindString:
		v, err := d.ReadString()
		return String(v), err
	case KindBytes:
		b, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		owned := make([]byte, len(b))
		copy(owned, b)
		return Bytes(owned), nil
	case KindArray:
		n, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		// Cap the pre-allocation by the remaining bytes so a corrupt count
		// cannot force a huge allocation before the first element fails.
		arr := make(Array, 0, min(int(n), d.Remaining()))
		for i := uint32(0); i < n; i++ {
			el, err := d.DecodeValue(t.Elem)
			if err != nil {
				return nil, err
			}
			arr = append(arr, el)
		}
		return arr, nil
	case KindOption:
		tag, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			inner, err := d.DecodeValue(t.Elem)
			if err != nil {
				return nil, err
			}
			return Some(inner), nil
		case 1:
			return NoneValue, nil
		}
		return nil, ErrInvalidOptionTag
	case KindProduct:
		p := make(Product, 0, len(t.Columns))
		for _, col := range t.Columns {
			v, err := d.DecodeValue(col.Type)
			if err != nil {
				return nil, err
			}
			p = append(p, Field{Name: col.Name, Value: v})
		}
		return p, nil
	case KindSum:
		tag, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(t.Columns) {
			return nil, ErrInvalidSumTag
		}
		v, err := d.DecodeValue(t.Columns[tag].Type)
		if err != nil {
			return nil, err
		}
		return Sum{Tag: tag, Value: v}, nil
	case KindRef:
		return nil, ErrUnresolvedRef
	}
	return nil, fmt.Errorf("bsatn: cannot decode kind %s", t.Kind)
}

// Decode is a convenience wrapper decoding a single value of type t from
// buf, requiring the value to consume the entire buffer.
func Decode(t *Type, buf []byte) (Value, error) {
	d := NewDecoder(buf)
	v, err := d.DecodeValue(t)
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("bsatn: %d trailing bytes after value", d.Remaining())
	}
	return v, nil
}
