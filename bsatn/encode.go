package bsatn

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoder builds a BSATN byte stream with append-only typed writes.
// The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded buffer and takes ownership of it: the encoder
// is reset to empty and can be reused.
func (e *Encoder) Bytes() []byte {
	b := e.buf
	e.buf = nil
	return b
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 0x01)
	} else {
		e.buf = append(e.buf, 0x00)
	}
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteU128 writes the low half first: the value is little-endian at the
// 64-bit limb level as well as within each limb.
func (e *Encoder) WriteU128(v U128) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v.Lo)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v.Hi)
}

// WriteU256 copies the 32 bytes verbatim; endianness is the caller's.
func (e *Encoder) WriteU256(v U256) {
	e.buf = append(e.buf, v[:]...)
}

func (e *Encoder) WriteI8(v int8) {
	e.buf = append(e.buf, byte(v))
}

func (e *Encoder) WriteI16(v int16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v))
}

func (e *Encoder) WriteI32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *Encoder) WriteI64(v int64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
}

func (e *Encoder) WriteI128(v I128) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v.Lo)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v.Hi)
}

func (e *Encoder) WriteI256(v I256) {
	e.buf = append(e.buf, v[:]...)
}

func (e *Encoder) WriteF32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

func (e *Encoder) WriteF64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// WriteString writes a u32 length prefix followed by the raw bytes.
func (e *Encoder) WriteString(v string) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// WriteBytes writes a u32 length prefix followed by the raw bytes.
func (e *Encoder) WriteBytes(v []byte) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(v)))
	e.buf = append(e.buf, v...)
}

// WriteRaw appends bytes without any prefix.
func (e *Encoder) WriteRaw(v []byte) {
	e.buf = append(e.buf, v...)
}

// EncodeValue appends the BSATN encoding of v, dispatching on its runtime
// case. Products encode as the bare concatenation of their fields; options
// as a presence byte; sums as a tag byte followed by the variant payload.
func (e *Encoder) EncodeValue(v Value) error {
	switch v := v.(type) {
	case Bool:
		e.WriteBool(bool(v))
	case U8:
		e.WriteU8(uint8(v))
	case U16:
		e.WriteU16(uint16(v))
	case U32:
		e.WriteU32(uint32(v))
	case U64:
		e.WriteU64(uint64(v))
	case U128:
		e.WriteU128(v)
	case U256:
		e.WriteU256(v)
	case I8:
		e.WriteI8(int8(v))
	case I16:
		e.WriteI16(int16(v))
	case I32:
		e.WriteI32(int32(v))
	case I64:
		e.WriteI64(int64(v))
	case I128:
		e.WriteI128(v)
	case I256:
		e.WriteI256(v)
	case F32:
		e.WriteF32(float32(v))
	case F64:
		e.WriteF64(float64(v))
	case String:
		e.WriteString(string(v))
	case Bytes:
		e.WriteBytes(v)
	case Array:
		e.WriteU32(uint32(len(v)))
		for _, el := range v {
			if err := e.EncodeValue(el); err != nil {
				return err
			}
		}
	case Option:
		if v.None() {
			e.WriteU8(1)
		} else {
			e.WriteU8(0)
			if err := e.EncodeValue(v.Value); err != nil {
				return err
			}
		}
	case Product:
		for _, f := range v {
			if err := e.EncodeValue(f.Value); err != nil {
				return err
			}
		}
	case Sum:
		e.WriteU8(v.Tag)
		if v.Value == nil {
			return fmt.Errorf("bsatn: sum tag %d has nil payload", v.Tag)
		}
		if err := e.EncodeValue(v.Value); err != nil {
			return err
		}
	case nil:
		return fmt.Errorf("bsatn: cannot encode nil value")
	default:
		return fmt.Errorf("bsatn: cannot encode value of kind %s", v.Kind())
	}
	return nil
}

// Encode is a convenience wrapper encoding a single value into a fresh
// buffer.
func Encode(v Value) ([]byte, error) {
	var e Encoder
	if err := e.EncodeValue(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
