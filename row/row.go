// Package row converts between raw row payloads and typed values using a
// table's column list. Decoding is strict: every row must consume its
// payload exactly, and a failure anywhere yields no rows at all.
package row

import (
	"errors"
	"fmt"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/wire"
)

var (
	// ErrTypeMismatch is returned when a value's carrier does not match
	// the expected algebraic type.
	ErrTypeMismatch = errors.New("row: type mismatch")
	// ErrMissingField is returned when a product encoding cannot find a
	// named field in the supplied field list.
	ErrMissingField = errors.New("row: missing field")
	// ErrTrailingBytes is returned when a row payload is longer than its
	// columns decode to.
	ErrTrailingBytes = errors.New("row: trailing bytes after row")
)

// DecodeRows materializes every row of list against cols. Each row gets a
// fresh decoder over its payload and must be consumed exactly. On error no
// rows are returned: either the whole list decodes or none of it does.
func DecodeRows(list wire.RowList, cols []bsatn.Column) ([]bsatn.Product, error) {
	n := list.Len()
	if n == 0 {
		return nil, nil
	}
	rows := make([]bsatn.Product, 0, n)
	for i := 0; i < n; i++ {
		payload, err := list.Row(i)
		if err != nil {
			return nil, err
		}
		r, err := DecodeRow(payload, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// DecodeRow decodes a single row payload against cols, requiring the
// payload to be consumed exactly.
func DecodeRow(payload []byte, cols []bsatn.Column) (bsatn.Product, error) {
	d := bsatn.NewDecoder(payload)
	r := make(bsatn.Product, 0, len(cols))
	for _, col := range cols {
		v, err := d.DecodeValue(col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		r = append(r, bsatn.Field{Name: col.Name, Value: v})
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, d.Remaining())
	}
	return r, nil
}
