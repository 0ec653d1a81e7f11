// Package codegen turns a schema descriptor into Go source: one struct
// per table whose fields positionally match the columns, plus typed
// accessors over the client cache.
package codegen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/schema"
)

// Generate emits the accessor source for s in the given package.
func Generate(s *schema.Schema, pkg string) ([]byte, error) {
	if pkg == "" {
		pkg = "tables"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "// Code generated by stdb-codegen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	fmt.Fprintf(&b, "import (\n")
	fmt.Fprintf(&b, "\t\"github.com/mickamy/stdb-go/bsatn\"\n")
	fmt.Fprintf(&b, "\t\"github.com/mickamy/stdb-go/client\"\n")
	fmt.Fprintf(&b, ")\n\n")
	// Not every schema exercises both imports.
	fmt.Fprintf(&b, "var (\n\t_ bsatn.Value\n\t_ *client.Client\n)\n\n")

	for i := range s.Tables {
		if err := generateTable(&b, &s.Tables[i]); err != nil {
			return nil, err
		}
	}

	src, err := format.Source(b.Bytes())
	if err != nil {
		return nil, fmt.Errorf("codegen: format: %w", err)
	}
	return src, nil
}

func generateTable(b *bytes.Buffer, t *schema.Table) error {
	name, err := exported(t.Name)
	if err != nil {
		return fmt.Errorf("codegen: table %q: %w", t.Name, err)
	}
	structName := name + "Row"

	fmt.Fprintf(b, "// %s mirrors one row of the %q table.\n", structName, t.Name)
	fmt.Fprintf(b, "type %s struct {\n", structName)
	for i, col := range t.Columns {
		field, err := fieldName(col.Name, i)
		if err != nil {
			return fmt.Errorf("codegen: table %q column %d: %w", t.Name, i, err)
		}
		fmt.Fprintf(b, "\t%s %s\n", field, goType(col.Type))
	}
	fmt.Fprintf(b, "}\n\n")

	fmt.Fprintf(b, "// All%s snapshots the %q table.\n", name, t.Name)
	fmt.Fprintf(b, "func All%s(c *client.Client) ([]%s, error) {\n", name, structName)
	fmt.Fprintf(b, "\tvar out []%s\n", structName)
	fmt.Fprintf(b, "\tif err := c.GetTyped(%q, &out); err != nil {\n", t.Name)
	fmt.Fprintf(b, "\t\treturn nil, err\n\t}\n")
	fmt.Fprintf(b, "\treturn out, nil\n}\n\n")

	fmt.Fprintf(b, "// Count%s returns the cached row count of the %q table.\n", name, t.Name)
	fmt.Fprintf(b, "func Count%s(c *client.Client) int {\n", name)
	fmt.Fprintf(b, "\treturn c.Count(%q)\n}\n\n", t.Name)

	// A single-column primary key of a primitive type gets a typed finder.
	if len(t.PrimaryKey) == 1 {
		col := t.Columns[t.PrimaryKey[0]]
		if wrap, argType, ok := pkWrapper(col.Type); ok {
			fmt.Fprintf(b, "// Find%s looks up a %q row by its primary key.\n", name, t.Name)
			fmt.Fprintf(b, "func Find%s(c *client.Client, key %s) (%s, bool, error) {\n", name, argType, structName)
			fmt.Fprintf(b, "\tvar row %s\n", structName)
			fmt.Fprintf(b, "\tok, err := c.FindTyped(%q, %s, &row)\n", t.Name, fmt.Sprintf(wrap, "key"))
			fmt.Fprintf(b, "\treturn row, ok, err\n}\n\n")
		}
	}
	return nil
}

// goType maps an algebraic type onto the Go type the reflect decoder
// accepts for it.
func goType(t *bsatn.Type) string {
	switch t.Kind {
	case bsatn.KindBool:
		return "bool"
	case bsatn.KindU8:
		return "uint8"
	case bsatn.KindU16:
		return "uint16"
	case bsatn.KindU32:
		return "uint32"
	case bsatn.KindU64:
		return "uint64"
	case bsatn.KindU128:
		return "bsatn.U128"
	case bsatn.KindU256:
		return "bsatn.U256"
	case bsatn.KindI8:
		return "int8"
	case bsatn.KindI16:
		return "int16"
	case bsatn.KindI32:
		return "int32"
	case bsatn.KindI64:
		return "int64"
	case bsatn.KindI128:
		return "bsatn.I128"
	case bsatn.KindI256:
		return "bsatn.I256"
	case bsatn.KindF32:
		return "float32"
	case bsatn.KindF64:
		return "float64"
	case bsatn.KindString:
		return "string"
	case bsatn.KindBytes:
		return "[]byte"
	case bsatn.KindArray:
		return "[]" + goType(t.Elem)
	case bsatn.KindOption:
		return "*" + goType(t.Elem)
	case bsatn.KindProduct:
		return "bsatn.Product"
	case bsatn.KindSum:
		return "bsatn.Sum"
	}
	return "bsatn.Value"
}

// pkWrapper returns a format string wrapping a Go key expression into the
// bsatn value for the column type, plus the Go argument type.
func pkWrapper(t *bsatn.Type) (wrap, argType string, ok bool) {
	switch t.Kind {
	case bsatn.KindBool:
		return "bsatn.Bool(%s)", "bool", true
	case bsatn.KindU8:
		return "bsatn.U8(%s)", "uint8", true
	case bsatn.KindU16:
		return "bsatn.U16(%s)", "uint16", true
	case bsatn.KindU32:
		return "bsatn.U32(%s)", "uint32", true
	case bsatn.KindU64:
		return "bsatn.U64(%s)", "uint64", true
	case bsatn.KindI8:
		return "bsatn.I8(%s)", "int8", true
	case bsatn.KindI16:
		return "bsatn.I16(%s)", "int16", true
	case bsatn.KindI32:
		return "bsatn.I32(%s)", "int32", true
	case bsatn.KindI64:
		return "bsatn.I64(%s)", "int64", true
	case bsatn.KindString:
		return "bsatn.String(%s)", "string", true
	case bsatn.KindU128:
		return "%s", "bsatn.U128", true
	case bsatn.KindU256:
		return "%s", "bsatn.U256", true
	case bsatn.KindI128:
		return "%s", "bsatn.I128", true
	case bsatn.KindI256:
		return "%s", "bsatn.I256", true
	}
	return "", "", false
}

// initialisms are schema-name segments rendered all-caps in Go.
var initialisms = map[string]string{
	"id": "ID", "url": "URL", "uri": "URI", "uuid": "UUID",
	"api": "API", "http": "HTTP", "sql": "SQL", "ip": "IP",
}

// exported turns a snake_case schema name into an exported Go identifier.
func exported(name string) (string, error) {
	if name == "" || !utf8.ValidString(name) {
		return "", bsatn.ErrInvalidUTF8
	}
	var b strings.Builder
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	}) {
		if up, ok := initialisms[strings.ToLower(seg)]; ok {
			b.WriteString(up)
			continue
		}
		r, size := utf8.DecodeRuneInString(seg)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(seg[size:])
	}
	out := b.String()
	if out == "" || !unicode.IsLetter([]rune(out)[0]) {
		return "", fmt.Errorf("codegen: name %q yields no Go identifier", name)
	}
	return out, nil
}

func fieldName(name string, idx int) (string, error) {
	if name == "" {
		return fmt.Sprintf("Field%d", idx), nil
	}
	return exported(name)
}
