// =============================================================================
// OPT Observatory ETL - Shared Types
// =============================================================================
//
// This package contains the columnar table model shared by every stage of the
// pipeline. Types defined here are used by:
//   - csvparser  (builds tables from delimited files)
//   - dedupe     (resolves duplicate columns)
//   - cleaner    (field-level transforms)
//   - processor  (year combination and cleaning)
//   - csvwriter  (serializes tables)
//   - loader     (reads cleaned output back)
//
// TABLES ARE VALUES:
//   Every stage returns a new *Table. Column buffers that a stage does not
//   touch are shared between the input and the output table, so a stage costs
//   a new index mapping rather than a copy of the data. Nothing mutates a
//   column after it has been placed in a table.
//
// =============================================================================

package types

import (
	"fmt"
)

// =============================================================================
// SEMANTIC KINDS
// =============================================================================

// Kind is the semantic type tag of a column. It is decided once during schema
// reconciliation and carried through every later stage.
type Kind int

const (
	// KindText is free text. The default for every column.
	KindText Kind = iota

	// KindDate is a date column, parsed and re-emitted as YYYY-MM-DD.
	KindDate

	// KindZip is a postal code. Always string-typed so leading zeros survive.
	KindZip
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindZip:
		return "zip"
	default:
		return "text"
	}
}

// =============================================================================
// COLUMN
// =============================================================================

// Column is one named vector of string values with an explicit missing mask.
type Column struct {
	// Name is the canonical output name of the column.
	Name string

	// Source is the raw header the data came from. Two columns with the same
	// Name but different Source are distinct columns (for example the
	// irreconcilable members of a duplicate group).
	Source string

	// Kind is the semantic type tag.
	Kind Kind

	// Values holds the cell values. Values[i] is meaningless when Null[i].
	Values []string

	// Null marks missing cells.
	Null []bool
}

// NewColumn creates a column from values and a missing mask.
// A nil mask means no value is missing.
func NewColumn(name, source string, kind Kind, values []string, null []bool) *Column {
	if null == nil {
		null = make([]bool, len(values))
	}
	return &Column{
		Name:   name,
		Source: source,
		Kind:   kind,
		Values: values,
		Null:   null,
	}
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	return c.Null[i]
}

// Value returns the value at row i and whether it is present.
func (c *Column) Value(i int) (string, bool) {
	if c.Null[i] {
		return "", false
	}
	return c.Values[i], true
}

// NullCount returns the number of missing cells.
func (c *Column) NullCount() int {
	n := 0
	for _, null := range c.Null {
		if null {
			n++
		}
	}
	return n
}

// Renamed returns a copy of the column header with a new name.
// The value buffers are shared.
func (c *Column) Renamed(name string) *Column {
	out := *c
	out.Name = name
	return &out
}

// WithKind returns a copy of the column header with a new kind.
// The value buffers are shared.
func (c *Column) WithKind(kind Kind) *Column {
	out := *c
	out.Kind = kind
	return &out
}

// WithData returns a column with the same header and new value buffers.
func (c *Column) WithData(values []string, null []bool) *Column {
	return NewColumn(c.Name, c.Source, c.Kind, values, null)
}

// Take returns a new column holding only the given rows, in the given order.
func (c *Column) Take(rows []int) *Column {
	values := make([]string, len(rows))
	null := make([]bool, len(rows))
	for i, r := range rows {
		values[i] = c.Values[r]
		null[i] = c.Null[r]
	}
	return c.WithData(values, null)
}

// =============================================================================
// TABLE
// =============================================================================

// Table is an ordered set of equal-length columns.
type Table struct {
	columns []*Column
	rows    int
}

// NewTable builds a table from columns. All columns must have the same length
// and no two columns may share a Name.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{columns: columns}
	seen := make(map[string]bool, len(columns))

	for i, col := range columns {
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), t.rows)
		}
		if len(col.Null) != col.Len() {
			return nil, fmt.Errorf("column %q has a missing mask of length %d for %d values", col.Name, len(col.Null), col.Len())
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = true
	}

	return t, nil
}

// EmptyTable returns a table with no columns and the given number of rows.
// Appending a column to it requires a column of that length.
func EmptyTable(rows int) *Table {
	return &Table{rows: rows}
}

// MustTable is NewTable for callers that construct tables from columns they
// already know to be consistent. It panics on error.
func MustTable(columns ...*Column) *Table {
	t, err := NewTable(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	return t.rows
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	if i := t.Index(name); i >= 0 {
		return t.columns[i]
	}
	return nil
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, col := range t.columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Replace returns a table with the column of the same name swapped for col.
// If no column has that name, col is appended.
func (t *Table) Replace(col *Column) (*Table, error) {
	columns := make([]*Column, len(t.columns), len(t.columns)+1)
	copy(columns, t.columns)

	if i := t.Index(col.Name); i >= 0 {
		columns[i] = col
	} else {
		columns = append(columns, col)
	}

	if len(t.columns) == 0 && t.rows == 0 {
		return NewTable(columns...)
	}
	if col.Len() != t.rows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), t.rows)
	}
	return &Table{columns: columns, rows: t.rows}, nil
}

// Select returns a table holding only the named columns, in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	columns := make([]*Column, 0, len(names))
	for _, name := range names {
		col := t.Column(name)
		if col == nil {
			return nil, fmt.Errorf("column %q not found", name)
		}
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return EmptyTable(t.rows), nil
	}
	return NewTable(columns...)
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}

	columns := make([]*Column, 0, len(t.columns))
	for _, col := range t.columns {
		if !drop[col.Name] {
			columns = append(columns, col)
		}
	}

	return &Table{columns: columns, rows: t.rows}
}

// Take returns a table holding only the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	columns := make([]*Column, len(t.columns))
	for i, col := range t.columns {
		columns[i] = col.Take(rows)
	}
	return &Table{columns: columns, rows: len(rows)}
}

// Filter returns a table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == t.rows {
		return t
	}
	return t.Take(rows)
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n >= t.rows {
		return t
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// Row returns the values of row i in column order. Missing cells are "".
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.columns))
	for j, col := range t.columns {
		if !col.Null[i] {
			out[j] = col.Values[i]
		}
	}
	return out
}

// =============================================================================
// CONCATENATION
// =============================================================================

// Concat appends tables row-wise in the given order.
//
// The output column set is the union of the input column sets, in first-seen
// order. Rows that come from a table lacking a column are missing in that
// column. The kind and source of each output column come from its first
// occurrence.
func Concat(tables ...*Table) *Table {
	var order []*Column
	index := make(map[string]int)
	total := 0

	for _, t := range tables {
		if t == nil {
			continue
		}
		total += t.rows
		for _, col := range t.columns {
			if _, ok := index[col.Name]; !ok {
				index[col.Name] = len(order)
				order = append(order, col)
			}
		}
	}

	columns := make([]*Column, len(order))
	for i, proto := range order {
		values := make([]string, 0, total)
		null := make([]bool, 0, total)

		for _, t := range tables {
			if t == nil {
				continue
			}
			col := t.Column(proto.Name)
			if col == nil {
				values = append(values, make([]string, t.rows)...)
				for r := 0; r < t.rows; r++ {
					null = append(null, true)
				}
				continue
			}
			values = append(values, col.Values...)
			null = append(null, col.Null...)
		}

		columns[i] = NewColumn(proto.Name, proto.Source, proto.Kind, values, null)
	}

	return &Table{columns: columns, rows: total}
}
