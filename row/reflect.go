package row

import (
	"fmt"
	"reflect"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/wire"
)

// DecodeRowsInto decodes every row of list into dest, which must be a
// pointer to a slice of structs whose fields positionally match cols. The
// slice is replaced, not appended to.
func DecodeRowsInto(list wire.RowList, cols []bsatn.Column, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("row: dest must be a pointer to a slice, got %T", dest)
	}
	elem := dv.Elem().Type().Elem()

	n := list.Len()
	out := reflect.MakeSlice(dv.Elem().Type(), 0, n)
	for i := 0; i < n; i++ {
		payload, err := list.Row(i)
		if err != nil {
			return err
		}
		r, err := DecodeRow(payload, cols)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		ev := reflect.New(elem).Elem()
		if err := assignRow(r, ev); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		out = reflect.Append(out, ev)
	}
	dv.Elem().Set(out)
	return nil
}

// RowsInto copies already-decoded rows into dest, a pointer to a slice of
// structs whose fields positionally match the rows' columns.
func RowsInto(rows []bsatn.Product, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("row: dest must be a pointer to a slice, got %T", dest)
	}
	elem := dv.Elem().Type().Elem()
	out := reflect.MakeSlice(dv.Elem().Type(), 0, len(rows))
	for i, r := range rows {
		ev := reflect.New(elem).Elem()
		if err := assignRow(r, ev); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		out = reflect.Append(out, ev)
	}
	dv.Elem().Set(out)
	return nil
}

// RowInto copies a decoded row into a struct whose fields positionally
// match the row's columns.
func RowInto(r bsatn.Product, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("row: dest must be a pointer to a struct, got %T", dest)
	}
	return assignRow(r, dv.Elem())
}

func assignRow(r bsatn.Product, sv reflect.Value) error {
	if sv.NumField() != len(r) {
		return fmt.Errorf("row: struct %s has %d fields, row has %d columns",
			sv.Type(), sv.NumField(), len(r))
	}
	for i, f := range r {
		if err := assign(f.Value, sv.Field(i)); err != nil {
			return fmt.Errorf("column %q: %w", f.Name, err)
		}
	}
	return nil
}

func assign(v bsatn.Value, rv reflect.Value) error {
	// Exact carrier types (U128, U256, nested bsatn values) assign
	// directly.
	cv := reflect.ValueOf(v)
	if cv.Type().AssignableTo(rv.Type()) {
		rv.Set(cv)
		return nil
	}

	switch v := v.(type) {
	case bsatn.Bool:
		if rv.Kind() != reflect.Bool {
			return assignErr(v, rv)
		}
		rv.SetBool(bool(v))
	case bsatn.U8, bsatn.U16, bsatn.U32, bsatn.U64:
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			rv.SetUint(cv.Uint())
		default:
			return assignErr(v, rv)
		}
	case bsatn.I8, bsatn.I16, bsatn.I32, bsatn.I64:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			rv.SetInt(cv.Int())
		default:
			return assignErr(v, rv)
		}
	case bsatn.F32, bsatn.F64:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			rv.SetFloat(cv.Float())
		default:
			return assignErr(v, rv)
		}
	case bsatn.String:
		if rv.Kind() != reflect.String {
			return assignErr(v, rv)
		}
		rv.SetString(string(v))
	case bsatn.Bytes:
		if rv.Type() != reflect.TypeOf([]byte(nil)) {
			return assignErr(v, rv)
		}
		b := make([]byte, len(v))
		copy(b, v)
		rv.SetBytes(b)
	case bsatn.Array:
		if rv.Kind() != reflect.Slice {
			return assignErr(v, rv)
		}
		out := reflect.MakeSlice(rv.Type(), 0, len(v))
		for _, el := range v {
			ev := reflect.New(rv.Type().Elem()).Elem()
			if err := assign(el, ev); err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		rv.Set(out)
	case bsatn.Option:
		if rv.Kind() != reflect.Pointer {
			return assignErr(v, rv)
		}
		if v.None() {
			rv.SetZero()
			return nil
		}
		pv := reflect.New(rv.Type().Elem())
		if err := assign(v.Value, pv.Elem()); err != nil {
			return err
		}
		rv.Set(pv)
	case bsatn.Product:
		if rv.Kind() != reflect.Struct {
			return assignErr(v, rv)
		}
		return assignRow(v, rv)
	default:
		return assignErr(v, rv)
	}
	return nil
}

func assignErr(v bsatn.Value, rv reflect.Value) error {
	return fmt.Errorf("%w: cannot assign %s to %s", ErrTypeMismatch, v.Kind(), rv.Type())
}
