// =============================================================================
// OPT Observatory ETL - Field Cleaners
// =============================================================================
//
// This module provides the field-level transformations of the clean stage.
// Each cleaner is a pure function over one column: values in, a new column of
// equal length out. Only the ZIP padder reads a second column.
//
// CLEANERS:
//   - Text normalizer: lower-case, trim, collapse whitespace, strip
//     punctuation, re-collapse, re-trim
//   - State expander: abbreviation lookup on state columns
//   - ZIP padder: restores leading zeros for configured states
//   - Date parser/validator (dates.go): ordered formats, ISO output, cutoff
//     window for one designated column
//
// MISSING VALUES:
//   A missing cell stays missing through every cleaner. A present cell that a
//   cleaner reduces to the empty string becomes missing.
//
// =============================================================================

package cleaner

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// ZipWidth is the width ZIP codes are padded to.
const ZipWidth = 5

// =============================================================================
// CLEANER KINDS
// =============================================================================

// Kind selects the cleaner applied by CleanColumn.
type Kind int

const (
	// Text applies the text normalizer.
	Text Kind = iota

	// State applies the text normalizer, then the state expander.
	State

	// Date applies the date parser/validator.
	Date
)

// String returns the cleaner name.
func (k Kind) String() string {
	switch k {
	case State:
		return "state"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// KindsFor returns the cleaners that apply to a column under the rules, in the
// order they run. ZIP columns get none here; they are padded by PadZips, which
// needs the paired state column. A set-aside duplicate ("COUNTRY...5") gets
// the cleaners of its group.
func KindsFor(col *types.Column, rules *config.Rules) []Kind {
	switch col.Kind {
	case types.KindDate:
		return []Kind{Date}
	case types.KindZip:
		return nil
	}

	name := schema.Normalize(col.Name)
	if rules.IsStateColumn(name) {
		return []Kind{State}
	}
	if _, ok := rules.TextColumns[name]; ok {
		return []Kind{Text}
	}
	return nil
}

// =============================================================================
// STATISTICS
// =============================================================================

// ColumnStats summarizes one cleaner applied to one column.
type ColumnStats struct {
	// Column is the canonical column name.
	Column string

	// Cleaner is the cleaner that ran.
	Cleaner Kind

	// Present is the number of non-missing input values.
	Present int

	// Changed is the number of present values the cleaner rewrote or
	// nullified.
	Changed int

	// Dates is set for the date cleaner.
	Dates *DateStats
}

// CleanColumn applies one cleaner to a column.
//
// PARAMETERS:
//   - col: The column to clean.
//   - kind: The cleaner to apply.
//   - rules: The immutable rule set.
//
// RETURNS:
//   - A new column of equal length.
//   - Statistics for the column.
func CleanColumn(col *types.Column, kind Kind, rules *config.Rules) (*types.Column, ColumnStats) {
	stats := ColumnStats{Column: col.Name, Cleaner: kind, Present: col.Len() - col.NullCount()}

	var out *types.Column
	switch kind {
	case State:
		out = ExpandStates(NormalizeText(col), rules.StateNames)
	case Date:
		var cutoff *Cutoff
		if col.Name == rules.CutoffColumn {
			cutoff = &Cutoff{Historic: rules.HistoricCutoff, Future: rules.FutureCutoff}
		}
		var ds DateStats
		out, ds = ParseDates(col, rules.DateLayouts, cutoff)
		stats.Dates = &ds
	default:
		out = NormalizeText(col)
	}

	stats.Changed = countChanged(col, out)
	return out, stats
}

func countChanged(before, after *types.Column) int {
	n := 0
	for i := 0; i < before.Len(); i++ {
		if before.Null[i] {
			continue
		}
		if after.Null[i] || after.Values[i] != before.Values[i] {
			n++
		}
	}
	return n
}

// =============================================================================
// TEXT NORMALIZER
// =============================================================================

// NormalizeText returns the column with every present value normalized by
// NormalizeValue.
func NormalizeText(col *types.Column) *types.Column {
	values := make([]string, col.Len())
	null := make([]bool, col.Len())

	for i := 0; i < col.Len(); i++ {
		if col.Null[i] {
			null[i] = true
			continue
		}
		v := NormalizeValue(col.Values[i])
		values[i] = v
		null[i] = v == ""
	}

	return col.WithData(values, null)
}

// NormalizeValue lower-cases a value, strips punctuation and symbols, and
// collapses whitespace runs to one space. Compatibility forms are folded
// first, so full-width and ligature characters compare equal to their plain
// forms.
//
// Example: "  ACME,  Inc. " -> "acme inc"
func NormalizeValue(s string) string {
	s = norm.NFKC.String(s)
	s = collapseSpace(strings.ToLower(s))

	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)

	return collapseSpace(s)
}

// collapseSpace trims s and collapses internal whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// STATE EXPANDER
// =============================================================================

// ExpandStates replaces abbreviations with full state names. The lookup is on
// the lower-cased value; unmapped values pass through unchanged.
func ExpandStates(col *types.Column, names map[string]string) *types.Column {
	values := make([]string, col.Len())
	null := make([]bool, col.Len())
	copy(null, col.Null)

	for i := 0; i < col.Len(); i++ {
		if col.Null[i] {
			continue
		}
		v := col.Values[i]
		if full, ok := names[strings.ToLower(strings.TrimSpace(v))]; ok {
			v = full
		}
		values[i] = v
	}

	return col.WithData(values, null)
}

// =============================================================================
// ZIP PADDER
// =============================================================================

// PadZips left-pads ZIP codes with "0" to ZipWidth where the ZIP is present
// and shorter than ZipWidth and the paired state, lower-cased and trimmed, is
// in fixStates.
//
// RETURNS:
//   - The padded ZIP column, still string-typed.
//   - The number of values padded.
func PadZips(zip, state *types.Column, fixStates map[string]struct{}) (*types.Column, int) {
	values := make([]string, zip.Len())
	copy(values, zip.Values)
	null := make([]bool, zip.Len())
	copy(null, zip.Null)

	padded := 0
	for i := 0; i < zip.Len(); i++ {
		if zip.Null[i] || state.Null[i] || len(values[i]) >= ZipWidth {
			continue
		}
		if _, ok := fixStates[strings.ToLower(strings.TrimSpace(state.Values[i]))]; !ok {
			continue
		}
		values[i] = PadLeft(values[i], ZipWidth, '0')
		padded++
	}

	return zip.WithData(values, null), padded
}

// PadLeft pads a string with a character on the left to reach the target length.
func PadLeft(s string, length int, padChar rune) string {
	if len(s) >= length {
		return s
	}
	padding := make([]rune, length-len(s))
	for i := range padding {
		padding[i] = padChar
	}
	return string(padding) + s
}
