package bsatn_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/mickamy/stdb-go/bsatn"
)

func TestPrimitiveFrame(t *testing.T) {
	t.Parallel()

	var e bsatn.Encoder
	e.WriteU32(0xDEADBEEF)
	e.WriteI32(-100000)
	got := e.Bytes()

	want := []byte{0xEF, 0xBE, 0xAD, 0xDE, 0x60, 0x79, 0xFE, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}

	d := bsatn.NewDecoder(got)
	u, err := d.ReadU32()
	if err != nil {
		t.Fatalf("read u32: %v", err)
	}
	if u != 0xDEADBEEF {
		t.Fatalf("got %#x, want 0xDEADBEEF", u)
	}
	i, err := d.ReadI32()
	if err != nil {
		t.Fatalf("read i32: %v", err)
	}
	if i != -100000 {
		t.Fatalf("got %d, want -100000", i)
	}
	if d.Remaining() != 0 {
		t.Fatalf("got %d remaining bytes, want 0", d.Remaining())
	}
}

func TestU32LittleEndian(t *testing.T) {
	t.Parallel()

	for _, n := range []uint32{0, 1, 0x1234, 0xFFFFFFFF, 0x80000000} {
		var e bsatn.Encoder
		e.WriteU32(n)
		b := e.Bytes()
		if len(b) != 4 {
			t.Fatalf("got %d bytes, want 4", len(b))
		}
		back := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		if back != n {
			t.Fatalf("got %#x, want %#x", back, n)
		}
	}
}

func TestStringFraming(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "a", "hello world", "héllo"} {
		var e bsatn.Encoder
		e.WriteString(s)
		b := e.Bytes()
		if len(b) != 4+len(s) {
			t.Fatalf("%q: got %d bytes, want %d", s, len(b), 4+len(s))
		}
		d := bsatn.NewDecoder(b)
		n, err := d.ReadU32()
		if err != nil {
			t.Fatalf("read length: %v", err)
		}
		if int(n) != len(s) {
			t.Fatalf("%q: got length %d, want %d", s, n, len(s))
		}
	}
}

func TestEmptyStringAndArray(t *testing.T) {
	t.Parallel()

	zero := []byte{0, 0, 0, 0}

	b, err := bsatn.Encode(bsatn.String(""))
	if err != nil {
		t.Fatalf("encode empty string: %v", err)
	}
	if !bytes.Equal(b, zero) {
		t.Fatalf("empty string: got % X, want % X", b, zero)
	}

	b, err = bsatn.Encode(bsatn.Array{})
	if err != nil {
		t.Fatalf("encode empty array: %v", err)
	}
	if !bytes.Equal(b, zero) {
		t.Fatalf("empty array: got % X, want % X", b, zero)
	}
}

func TestOptionWireFormat(t *testing.T) {
	t.Parallel()

	typ := bsatn.OptionType(bsatn.TypeU64)

	some, err := bsatn.Encode(bsatn.Some(bsatn.U64(42)))
	if err != nil {
		t.Fatalf("encode some: %v", err)
	}
	want := []byte{0x00, 0x2A, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(some, want) {
		t.Fatalf("some(42): got % X, want % X", some, want)
	}

	none, err := bsatn.Encode(bsatn.NoneValue)
	if err != nil {
		t.Fatalf("encode none: %v", err)
	}
	if !bytes.Equal(none, []byte{0x01}) {
		t.Fatalf("none: got % X, want 01", none)
	}

	for _, b := range [][]byte{some, none} {
		v, err := bsatn.Decode(typ, b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, err := bsatn.Encode(v); err != nil {
			t.Fatalf("re-encode: %v", err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	maxU128 := bsatn.U128{Lo: ^uint64(0), Hi: ^uint64(0)}
	minI128 := bsatn.I128{Lo: 0, Hi: 1 << 63}
	var maxU256 bsatn.U256
	for i := range maxU256 {
		maxU256[i] = 0xFF
	}

	tests := []struct {
		name string
		typ  *bsatn.Type
		val  bsatn.Value
	}{
		{"bool true", bsatn.TypeBool, bsatn.Bool(true)},
		{"bool false", bsatn.TypeBool, bsatn.Bool(false)},
		{"u8 zero", bsatn.TypeU8, bsatn.U8(0)},
		{"u8 max", bsatn.TypeU8, bsatn.U8(255)},
		{"i8 min", bsatn.TypeI8, bsatn.I8(-128)},
		{"i8 max", bsatn.TypeI8, bsatn.I8(127)},
		{"u16", bsatn.TypeU16, bsatn.U16(0xBEEF)},
		{"i16", bsatn.TypeI16, bsatn.I16(-2)},
		{"u32", bsatn.TypeU32, bsatn.U32(0xDEADBEEF)},
		{"i32", bsatn.TypeI32, bsatn.I32(-100000)},
		{"u64", bsatn.TypeU64, bsatn.U64(1 << 63)},
		{"i64", bsatn.TypeI64, bsatn.I64(-1)},
		{"u128 max", bsatn.TypeU128, maxU128},
		{"i128 min", bsatn.TypeI128, minI128},
		{"u256 max", bsatn.TypeU256, maxU256},
		{"i256", bsatn.TypeI256, bsatn.I256{1, 2, 3}},
		{"f32", bsatn.TypeF32, bsatn.F32(3.5)},
		{"f64", bsatn.TypeF64, bsatn.F64(-0.125)},
		{"string", bsatn.TypeString, bsatn.String("hello")},
		{"bytes", bsatn.TypeBytes, bsatn.Bytes{0x00, 0xFF, 0x7F}},
		{
			"array of u32",
			bsatn.ArrayType(bsatn.TypeU32),
			bsatn.Array{bsatn.U32(1), bsatn.U32(2), bsatn.U32(3)},
		},
		{
			"nested array",
			bsatn.ArrayType(bsatn.ArrayType(bsatn.TypeU8)),
			bsatn.Array{bsatn.Array{bsatn.U8(1)}, bsatn.Array{}},
		},
		{
			"option some",
			bsatn.OptionType(bsatn.TypeString),
			bsatn.Some(bsatn.String("x")),
		},
		{
			"option none",
			bsatn.OptionType(bsatn.TypeString),
			bsatn.NoneValue,
		},
		{
			"product",
			bsatn.ProductType(
				bsatn.Column{Name: "id", Type: bsatn.TypeU32},
				bsatn.Column{Name: "name", Type: bsatn.TypeString},
			),
			bsatn.Product{
				{Name: "id", Value: bsatn.U32(7)},
				{Name: "name", Value: bsatn.String("alice")},
			},
		},
		{
			"sum",
			bsatn.SumType(
				bsatn.Column{Name: "a", Type: bsatn.TypeU8},
				bsatn.Column{Name: "b", Type: bsatn.TypeString},
			),
			bsatn.Sum{Tag: 1, Value: bsatn.String("b-side")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt := tt
			t.Parallel()

			enc, err := bsatn.Encode(tt.val)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := bsatn.Decode(tt.typ, enc)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.val) {
				t.Fatalf("got %#v, want %#v", got, tt.val)
			}

			// Re-encoding the decoded value must reproduce the bytes.
			enc2, err := bsatn.Encode(got)
			if err != nil {
				t.Fatalf("re-encode: %v", err)
			}
			if !bytes.Equal(enc, enc2) {
				t.Fatalf("re-encode differs: % X vs % X", enc, enc2)
			}
		})
	}
}

func TestProductIsBareConcatenation(t *testing.T) {
	t.Parallel()

	p := bsatn.Product{
		{Name: "a", Value: bsatn.U16(0x0102)},
		{Name: "b", Value: bsatn.String("hi")},
	}
	enc, err := bsatn.Encode(p)
	if err != nil {
		t.Fatalf("encode product: %v", err)
	}

	var e bsatn.Encoder
	e.WriteU16(0x0102)
	e.WriteString("hi")
	if !bytes.Equal(enc, e.Bytes()) {
		t.Fatal("product encoding is not the concatenation of its fields")
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  *bsatn.Type
		buf  []byte
		want error
	}{
		{"short u32", bsatn.TypeU32, []byte{1, 2}, bsatn.ErrBufferTooShort},
		{"short string body", bsatn.TypeString, []byte{5, 0, 0, 0, 'a'}, bsatn.ErrBufferTooShort},
		{"bad bool", bsatn.TypeBool, []byte{0x02}, bsatn.ErrInvalidBool},
		{"bad option tag", bsatn.OptionType(bsatn.TypeU8), []byte{0x02}, bsatn.ErrInvalidOptionTag},
		{
			"bad sum tag",
			bsatn.SumType(bsatn.Column{Name: "only", Type: bsatn.TypeU8}),
			[]byte{0x01, 0x00},
			bsatn.ErrInvalidSumTag,
		},
		{"unresolved ref", bsatn.RefType(0), []byte{0x00}, bsatn.ErrUnresolvedRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt := tt
			t.Parallel()
			_, err := bsatn.Decode(tt.typ, tt.buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeAdvancesExactly(t *testing.T) {
	t.Parallel()

	var e bsatn.Encoder
	e.WriteString("ab")
	e.WriteU8(9)
	buf := e.Bytes()

	d := bsatn.NewDecoder(buf)
	if _, err := d.DecodeValue(bsatn.TypeString); err != nil {
		t.Fatalf("decode string: %v", err)
	}
	if d.Remaining() != 1 {
		t.Fatalf("got %d remaining, want 1", d.Remaining())
	}
	v, err := d.ReadU8()
	if err != nil || v != 9 {
		t.Fatalf("got (%d, %v), want (9, nil)", v, err)
	}
}

func TestEncoderBytesTakesOwnership(t *testing.T) {
	t.Parallel()

	var e bsatn.Encoder
	e.WriteU8(1)
	first := e.Bytes()
	if e.Len() != 0 {
		t.Fatalf("got len %d after Bytes, want 0", e.Len())
	}
	e.WriteU8(2)
	second := e.Bytes()
	if first[0] != 1 || second[0] != 2 {
		t.Fatal("buffers are shared between Bytes calls")
	}
}

func TestHasRef(t *testing.T) {
	t.Parallel()

	plain := bsatn.ProductType(bsatn.Column{Name: "x", Type: bsatn.TypeU8})
	if plain.HasRef() {
		t.Fatal("plain product reported a ref")
	}
	nested := bsatn.ArrayType(bsatn.OptionType(bsatn.RefType(3)))
	if !nested.HasRef() {
		t.Fatal("nested ref not reported")
	}
}
