package processor

import (
	"strconv"
	"strings"

	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// nullCell is the row key entry of a missing cell. A present cell is written
// as its byte length, ':' and the value, so no value can produce it.
const nullCell = "-;"

// DropDuplicateRows removes every row that equals an earlier row in every
// column; a missing cell equals only another missing cell. The first
// occurrence is kept.
//
// RETURNS:
//   - The table without duplicates, the input table itself when none exist.
//   - The number of rows removed.
func DropDuplicateRows(t *types.Table) (*types.Table, int) {
	if t.Rows() < 2 || t.Width() == 0 {
		return t, 0
	}

	cols := t.Columns()
	seen := make(map[string]struct{}, t.Rows())
	var key strings.Builder

	out := t.Filter(func(row int) bool {
		key.Reset()
		for _, col := range cols {
			if col.Null[row] {
				key.WriteString(nullCell)
				continue
			}
			v := col.Values[row]
			key.WriteString(strconv.Itoa(len(v)))
			key.WriteByte(':')
			key.WriteString(v)
		}

		k := key.String()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})

	return out, t.Rows() - out.Rows()
}

// DropCPT removes the rows whose CPT column equals marker, ignoring case and
// surrounding space. A table without the column is returned unchanged.
func DropCPT(t *types.Table, column, marker string) (*types.Table, int) {
	col := t.Column(column)
	if col == nil {
		return t, 0
	}

	out := t.Filter(func(row int) bool {
		return col.Null[row] || !isCPT(col.Values[row], marker)
	})
	return out, t.Rows() - out.Rows()
}
