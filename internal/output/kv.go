package output

import (
	"bytes"
	"fmt"

	"github.com/mattn/go-runewidth"
)

// Builder formats key/value pairs with the keys right aligned at the colon:
//
//	      a key : value1
//	another key : value2
//	       key3 : value3
type Builder struct {
	indent int
	rows   []kvRow
}

type kvRow struct {
	key, value string
	newline    bool
}

// NewBuilder creates an empty key/value builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetIndent sets extra columns added in front of the longest key.
func (b *Builder) SetIndent(indent int) *Builder {
	b.indent = indent
	return b
}

// Add appends a key/value pair.
func (b *Builder) Add(key, value string) *Builder {
	b.rows = append(b.rows, kvRow{key: key, value: value})
	return b
}

// Addf appends a key with a formatted value.
func (b *Builder) Addf(key, format string, args ...interface{}) *Builder {
	return b.Add(key, fmt.Sprintf(format, args...))
}

// AddNonEmpty appends the pair only when value is not empty.
func (b *Builder) AddNonEmpty(key, value string) *Builder {
	if value == "" {
		return b
	}
	return b.Add(key, value)
}

// AddNewline appends an empty line.
func (b *Builder) AddNewline() *Builder {
	b.rows = append(b.rows, kvRow{newline: true})
	return b
}

// End renders the rows into a new buffer.
func (b *Builder) End() *bytes.Buffer {
	maxLen := 0
	for _, row := range b.rows {
		if row.newline {
			continue
		}
		if w := runewidth.StringWidth(row.key); w > maxLen {
			maxLen = w
		}
	}
	maxLen += b.indent

	out := &bytes.Buffer{}
	for _, row := range b.rows {
		if row.newline {
			out.WriteString("\n")
			continue
		}
		fmt.Fprintf(out, "%s : %s\n", runewidth.FillLeft(row.key, maxLen), row.value)
	}
	return out
}

// String renders the rows.
func (b *Builder) String() string {
	return b.End().String()
}
