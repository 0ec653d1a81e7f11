// Package cache maintains the client-side mirror of the subscribed view:
// a per-table keyed store driven by server transactions, collapsing a
// delete and insert at the same primary key into a single update event.
package cache

import (
	"fmt"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/row"
	"github.com/mickamy/stdb-go/schema"
	"github.com/mickamy/stdb-go/wire"
)

// ChangeKind classifies one emitted change.
type ChangeKind int

const (
	Insert ChangeKind = iota
	Delete
	Update
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "Insert"
	case Delete:
		return "Delete"
	case Update:
		return "Update"
	}
	return fmt.Sprintf("UnknownChange(%d)", int(k))
}

// Change is one row event emitted by the cache. Row points at the cached
// row for Insert and Update; OldRow carries the prior row for Update and
// the removed row for Delete.
type Change struct {
	Kind   ChangeKind
	Table  string
	Row    bsatn.Product
	OldRow bsatn.Product
}

// tableStore holds the live rows of one table keyed by their encoded
// primary key bytes.
type tableStore struct {
	rows    map[string]bsatn.Product
	table   *schema.Table
	pkCols  []bsatn.Column
	pkIdx   []int
	keyless bool // no declared primary key: the whole row is the key
}

func newTableStore(t *schema.Table) *tableStore {
	ts := &tableStore{
		rows:    make(map[string]bsatn.Product),
		table:   t,
		pkIdx:   t.PrimaryKey,
		keyless: len(t.PrimaryKey) == 0,
	}
	for _, idx := range t.PrimaryKey {
		ts.pkCols = append(ts.pkCols, t.Columns[idx])
	}
	return ts
}

// key encodes the primary key of r: the PK column values in declaration
// order, concatenated. Tables without a primary key use the whole row, so
// the store degrades to a set.
func (ts *tableStore) key(r bsatn.Product) (string, error) {
	var e bsatn.Encoder
	if ts.keyless {
		for _, f := range r {
			if err := e.EncodeValue(f.Value); err != nil {
				return "", err
			}
		}
		return string(e.Bytes()), nil
	}
	for _, idx := range ts.pkIdx {
		if err := e.EncodeValue(r[idx].Value); err != nil {
			return "", err
		}
	}
	return string(e.Bytes()), nil
}

// Cache is the keyed store over every table in the schema. It is not
// locked: all access must come from the single consumer driving the
// connection.
type Cache struct {
	schema *schema.Schema
	tables map[string]*tableStore
}

// New builds an empty cache over s.
func New(s *schema.Schema) *Cache {
	c := &Cache{schema: s, tables: make(map[string]*tableStore, len(s.Tables))}
	for i := range s.Tables {
		t := &s.Tables[i]
		c.tables[t.Name] = newTableStore(t)
	}
	return c
}

// Count returns the number of cached rows in table.
func (c *Cache) Count(table string) int {
	ts, ok := c.tables[table]
	if !ok {
		return 0
	}
	return len(ts.rows)
}

// All returns a fresh slice of every cached row in table. The slice is
// owned by the caller; the rows themselves are shared with the cache and
// must be treated as read-only.
func (c *Cache) All(table string) []bsatn.Product {
	ts, ok := c.tables[table]
	if !ok {
		return nil
	}
	out := make([]bsatn.Product, 0, len(ts.rows))
	for _, r := range ts.rows {
		out = append(out, r)
	}
	return out
}

// Find returns the cached row whose primary key columns encode to the
// same bytes as pk. For a single-column primary key pass the bare value;
// for a composite key pass a Product of the key values in order.
func (c *Cache) Find(table string, pk bsatn.Value) (bsatn.Product, bool) {
	ts, ok := c.tables[table]
	if !ok || ts.keyless {
		return nil, false
	}
	var e bsatn.Encoder
	if p, ok := pk.(bsatn.Product); ok && len(ts.pkIdx) > 1 {
		for _, f := range p {
			if err := e.EncodeValue(f.Value); err != nil {
				return nil, false
			}
		}
	} else if err := e.EncodeValue(pk); err != nil {
		return nil, false
	}
	r, ok := ts.rows[string(e.Bytes())]
	return r, ok
}

// ApplySubscribeApplied decodes and inserts the initial rows of a new
// query set, emitting one Insert change per row. Tables the schema does
// not know are skipped.
func (c *Cache) ApplySubscribeApplied(rows []wire.TableRows) ([]Change, error) {
	var changes []Change
	for _, tr := range rows {
		ts, ok := c.tables[tr.TableName]
		if !ok {
			continue
		}
		decoded, err := row.DecodeRows(tr.Rows, ts.table.Columns)
		if err != nil {
			return nil, fmt.Errorf("cache: table %q: %w", tr.TableName, err)
		}
		for _, r := range decoded {
			k, err := ts.key(r)
			if err != nil {
				return nil, fmt.Errorf("cache: table %q: %w", tr.TableName, err)
			}
			ts.rows[k] = r
			changes = append(changes, Change{Kind: Insert, Table: tr.TableName, Row: r})
		}
	}
	return changes, nil
}

// ApplyTransactionUpdate applies one transaction's row changes and
// returns the ordered change list: inserts and updates in the server's
// insert order, then unmatched deletes in their arrival order.
//
// Each persistent block is all-or-nothing: both of its row lists are fully
// decoded before the store is touched, so a decode error leaves that block
// unapplied. Everything applied before the failing block stays applied,
// including earlier blocks of the same table update. The accumulated
// changes are discarded on error; callers should treat the connection as
// poisoned and disconnect.
func (c *Cache) ApplyTransactionUpdate(updates []wire.QuerySetUpdate) ([]Change, error) {
	var changes []Change
	for _, qsu := range updates {
		for _, tu := range qsu.Tables {
			ts, ok := c.tables[tu.TableName]
			if !ok {
				continue
			}
			var err error
			changes, err = ts.applyTableUpdate(tu, changes)
			if err != nil {
				return nil, fmt.Errorf("cache: table %q: %w", tu.TableName, err)
			}
		}
	}
	return changes, nil
}

func (ts *tableStore) applyTableUpdate(tu wire.TableUpdate, changes []Change) ([]Change, error) {
	for _, block := range tu.Rows {
		if block.Transient {
			// Event rows bypass the cache; the raw payload reaches the
			// application through the message, not the change stream.
			continue
		}

		// Decode both lists before touching the store.
		deletes, err := row.DecodeRows(block.Deletes, ts.table.Columns)
		if err != nil {
			return nil, err
		}
		inserts, err := row.DecodeRows(block.Inserts, ts.table.Columns)
		if err != nil {
			return nil, err
		}

		deleteKeys := make([]string, len(deletes))
		insertKeys := make([]string, len(inserts))
		for i, r := range deletes {
			if deleteKeys[i], err = ts.key(r); err != nil {
				return nil, err
			}
		}
		for i, r := range inserts {
			if insertKeys[i], err = ts.key(r); err != nil {
				return nil, err
			}
		}

		// Scratch: deleted key -> old row, remembering arrival order so
		// leftover deletes are emitted deterministically. The old row is
		// the cached entry when one exists; an unmatched delete keeps the
		// decoded row and degrades to a plain delete (or the old side of
		// an update) downstream.
		scratch := make(map[string]bsatn.Product, len(deletes))
		order := make([]string, 0, len(deletes))
		for i, r := range deletes {
			k := deleteKeys[i]
			old, live := ts.rows[k]
			if !live {
				old = r
			}
			delete(ts.rows, k)
			if _, seen := scratch[k]; !seen {
				order = append(order, k)
			}
			scratch[k] = old
		}

		for i, r := range inserts {
			k := insertKeys[i]
			if old, matched := scratch[k]; matched {
				delete(scratch, k)
				ts.rows[k] = r
				changes = append(changes, Change{Kind: Update, Table: tu.TableName, Row: r, OldRow: old})
			} else {
				ts.rows[k] = r
				changes = append(changes, Change{Kind: Insert, Table: tu.TableName, Row: r})
			}
		}

		for _, k := range order {
			old, remaining := scratch[k]
			if !remaining {
				continue
			}
			changes = append(changes, Change{Kind: Delete, Table: tu.TableName, OldRow: old})
		}
	}
	return changes, nil
}
