package row

import (
	"fmt"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/schema"
)

// EncodeValue appends the BSATN encoding of v checked against the expected
// type t. Unlike Encoder.EncodeValue, which trusts the value's runtime
// case, this path verifies each carrier against the schema before writing.
func EncodeValue(e *bsatn.Encoder, t *bsatn.Type, v bsatn.Value) error {
	switch t.Kind {
	case bsatn.KindBool, bsatn.KindU8, bsatn.KindU16, bsatn.KindU32,
		bsatn.KindU64, bsatn.KindU128, bsatn.KindU256,
		bsatn.KindI8, bsatn.KindI16, bsatn.KindI32, bsatn.KindI64,
		bsatn.KindI128, bsatn.KindI256,
		bsatn.KindF32, bsatn.KindF64, bsatn.KindString, bsatn.KindBytes:
		if v == nil || v.Kind() != t.Kind {
			return mismatch(t, v)
		}
		return e.EncodeValue(v)
	case bsatn.KindArray:
		arr, ok := v.(bsatn.Array)
		if !ok {
			return mismatch(t, v)
		}
		e.WriteU32(uint32(len(arr)))
		for i, el := range arr {
			if err := EncodeValue(e, t.Elem, el); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	case bsatn.KindOption:
		opt, ok := v.(bsatn.Option)
		if !ok {
			return mismatch(t, v)
		}
		if opt.None() {
			e.WriteU8(1)
			return nil
		}
		e.WriteU8(0)
		return EncodeValue(e, t.Elem, opt.Value)
	case bsatn.KindProduct:
		p, ok := v.(bsatn.Product)
		if !ok {
			return mismatch(t, v)
		}
		return encodeProduct(e, t.Columns, p)
	case bsatn.KindSum:
		s, ok := v.(bsatn.Sum)
		if !ok {
			return mismatch(t, v)
		}
		if int(s.Tag) >= len(t.Columns) {
			return fmt.Errorf("%w: sum tag %d of %d variants", bsatn.ErrInvalidSumTag, s.Tag, len(t.Columns))
		}
		e.WriteU8(s.Tag)
		return EncodeValue(e, t.Columns[s.Tag].Type, s.Value)
	case bsatn.KindRef:
		return bsatn.ErrUnresolvedRef
	}
	return fmt.Errorf("row: cannot encode kind %s", t.Kind)
}

// encodeProduct writes fields in column declaration order, resolving each
// column by name against the supplied field list. A column with no name
// falls back to its position.
func encodeProduct(e *bsatn.Encoder, cols []bsatn.Column, fields bsatn.Product) error {
	for i, col := range cols {
		var v bsatn.Value
		if col.Name != "" {
			fv, ok := fields.Field(col.Name)
			if !ok {
				return fmt.Errorf("%w: %q", ErrMissingField, col.Name)
			}
			v = fv
		} else {
			if i >= len(fields) {
				return fmt.Errorf("%w: positional field %d", ErrMissingField, i)
			}
			v = fields[i].Value
		}
		if err := EncodeValue(e, col.Type, v); err != nil {
			return fmt.Errorf("field %q: %w", col.Name, err)
		}
	}
	return nil
}

// EncodeRow encodes a full row against a table's columns.
func EncodeRow(cols []bsatn.Column, r bsatn.Product) ([]byte, error) {
	var e bsatn.Encoder
	if err := encodeProduct(&e, cols, r); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeReducerArgs encodes fields as the argument tuple of red: the
// product encoding over the reducer's parameter columns.
func EncodeReducerArgs(red *schema.Reducer, fields bsatn.Product) ([]byte, error) {
	var e bsatn.Encoder
	if err := encodeProduct(&e, red.Params, fields); err != nil {
		return nil, fmt.Errorf("reducer %q: %w", red.Name, err)
	}
	return e.Bytes(), nil
}

func mismatch(t *bsatn.Type, v bsatn.Value) error {
	if v == nil {
		return fmt.Errorf("%w: nil value for %s", ErrTypeMismatch, t.Kind)
	}
	return fmt.Errorf("%w: %s value for %s", ErrTypeMismatch, v.Kind(), t.Kind)
}
