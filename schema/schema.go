// Package schema models the database schema descriptor: tables, reducers,
// and a typespace of algebraic types with every reference resolved at load
// time.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mickamy/stdb-go/bsatn"
)

var (
	// ErrUnknownType is returned when a descriptor names a type kind this
	// package does not know.
	ErrUnknownType = errors.New("schema: unknown type kind")
	// ErrInvalidTypeRef is returned when a ref points outside the
	// typespace or forms a cycle.
	ErrInvalidTypeRef = errors.New("schema: invalid type ref")
	// ErrMissingField is returned when a descriptor omits a required field.
	ErrMissingField = errors.New("schema: missing field")
)

// Table describes one subscribable table.
type Table struct {
	Name string
	// Columns in declaration order; row payloads decode positionally
	// against this list.
	Columns []bsatn.Column
	// PrimaryKey holds indices into Columns, in declaration order. Empty
	// means the table has no declared primary key.
	PrimaryKey []int
}

// Reducer describes one callable server-side procedure.
type Reducer struct {
	Name   string
	Params []bsatn.Column
}

// Schema is the parsed, fully resolved schema descriptor.
type Schema struct {
	Tables   []Table
	Reducers []Reducer

	tablesByName   map[string]*Table
	reducersByName map[string]*Reducer
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tablesByName[name]
	return t, ok
}

// Reducer returns the reducer with the given name.
func (s *Schema) Reducer(name string) (*Reducer, bool) {
	r, ok := s.reducersByName[name]
	return r, ok
}

// JSON descriptor shapes for the version-9 schema endpoint.

type typeJSON struct {
	Kind    string       `json:"kind"`
	Elem    *typeJSON    `json:"elem,omitempty"`
	Columns []columnJSON `json:"columns,omitempty"`
	Ref     *int         `json:"ref,omitempty"`
}

type columnJSON struct {
	Name string    `json:"name"`
	Type *typeJSON `json:"type"`
}

type tableJSON struct {
	Name       string       `json:"name"`
	Columns    []columnJSON `json:"columns"`
	PrimaryKey []int        `json:"primary_key"`
}

type reducerJSON struct {
	Name   string       `json:"name"`
	Params []columnJSON `json:"params"`
}

type schemaJSON struct {
	Typespace []*typeJSON   `json:"typespace"`
	Tables    []tableJSON   `json:"tables"`
	Reducers  []reducerJSON `json:"reducers"`
}

// Parse loads a JSON schema descriptor and resolves every type reference
// against the typespace. The returned schema contains no ref types.
func Parse(data []byte) (*Schema, error) {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: invalid json: %w", err)
	}
	return build(raw)
}

func build(raw schemaJSON) (*Schema, error) {
	r := resolver{space: raw.Typespace, resolved: make([]*bsatn.Type, len(raw.Typespace)), visiting: make([]bool, len(raw.Typespace))}

	s := &Schema{
		tablesByName:   make(map[string]*Table, len(raw.Tables)),
		reducersByName: make(map[string]*Reducer, len(raw.Reducers)),
	}

	seenTables := make(map[string]bool, len(raw.Tables))
	for _, tj := range raw.Tables {
		if tj.Name == "" {
			return nil, fmt.Errorf("%w: table name", ErrMissingField)
		}
		if seenTables[tj.Name] {
			return nil, fmt.Errorf("schema: duplicate table %q", tj.Name)
		}
		seenTables[tj.Name] = true
		cols, err := r.columns(tj.Columns)
		if err != nil {
			return nil, fmt.Errorf("schema: table %q: %w", tj.Name, err)
		}
		for _, idx := range tj.PrimaryKey {
			if idx < 0 || idx >= len(cols) {
				return nil, fmt.Errorf("schema: table %q: primary key index %d out of range", tj.Name, idx)
			}
		}
		s.Tables = append(s.Tables, Table{Name: tj.Name, Columns: cols, PrimaryKey: tj.PrimaryKey})
	}
	for i := range s.Tables {
		s.tablesByName[s.Tables[i].Name] = &s.Tables[i]
	}

	seenReducers := make(map[string]bool, len(raw.Reducers))
	for _, rj := range raw.Reducers {
		if rj.Name == "" {
			return nil, fmt.Errorf("%w: reducer name", ErrMissingField)
		}
		if seenReducers[rj.Name] {
			return nil, fmt.Errorf("schema: duplicate reducer %q", rj.Name)
		}
		seenReducers[rj.Name] = true
		params, err := r.columns(rj.Params)
		if err != nil {
			return nil, fmt.Errorf("schema: reducer %q: %w", rj.Name, err)
		}
		s.Reducers = append(s.Reducers, Reducer{Name: rj.Name, Params: params})
	}
	for i := range s.Reducers {
		s.reducersByName[s.Reducers[i].Name] = &s.Reducers[i]
	}

	return s, nil
}

// resolver expands typeJSON nodes into bsatn types, memoizing typespace
// entries and rejecting cyclic refs.
type resolver struct {
	space    []*typeJSON
	resolved []*bsatn.Type
	visiting []bool
}

var kindNames = map[string]*bsatn.Type{
	"bool":   bsatn.TypeBool,
	"u8":     bsatn.TypeU8,
	"u16":    bsatn.TypeU16,
	"u32":    bsatn.TypeU32,
	"u64":    bsatn.TypeU64,
	"u128":   bsatn.TypeU128,
	"u256":   bsatn.TypeU256,
	"i8":     bsatn.TypeI8,
	"i16":    bsatn.TypeI16,
	"i32":    bsatn.TypeI32,
	"i64":    bsatn.TypeI64,
	"i128":   bsatn.TypeI128,
	"i256":   bsatn.TypeI256,
	"f32":    bsatn.TypeF32,
	"f64":    bsatn.TypeF64,
	"string": bsatn.TypeString,
	"bytes":  bsatn.TypeBytes,
}

func (r *resolver) resolve(tj *typeJSON) (*bsatn.Type, error) {
	if tj == nil {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}
	if prim, ok := kindNames[tj.Kind]; ok {
		return prim, nil
	}
	switch tj.Kind {
	case "array":
		elem, err := r.resolve(tj.Elem)
		if err != nil {
			return nil, err
		}
		return bsatn.ArrayType(elem), nil
	case "option":
		elem, err := r.resolve(tj.Elem)
		if err != nil {
			return nil, err
		}
		return bsatn.OptionType(elem), nil
	case "product":
		cols, err := r.columns(tj.Columns)
		if err != nil {
			return nil, err
		}
		return bsatn.ProductType(cols...), nil
	case "sum":
		cols, err := r.columns(tj.Columns)
		if err != nil {
			return nil, err
		}
		return bsatn.SumType(cols...), nil
	case "ref":
		if tj.Ref == nil {
			return nil, fmt.Errorf("%w: ref index", ErrMissingField)
		}
		return r.deref(*tj.Ref)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, tj.Kind)
}

func (r *resolver) deref(idx int) (*bsatn.Type, error) {
	if idx < 0 || idx >= len(r.space) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrInvalidTypeRef, idx, len(r.space))
	}
	if r.resolved[idx] != nil {
		return r.resolved[idx], nil
	}
	if r.visiting[idx] {
		return nil, fmt.Errorf("%w: cycle through index %d", ErrInvalidTypeRef, idx)
	}
	r.visiting[idx] = true
	t, err := r.resolve(r.space[idx])
	r.visiting[idx] = false
	if err != nil {
		return nil, err
	}
	r.resolved[idx] = t
	return t, nil
}

func (r *resolver) columns(cols []columnJSON) ([]bsatn.Column, error) {
	out := make([]bsatn.Column, 0, len(cols))
	for _, c := range cols {
		t, err := r.resolve(c.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, bsatn.Column{Name: c.Name, Type: t})
	}
	return out, nil
}
