// =============================================================================
// OPT Observatory ETL - Header Reconciler
// =============================================================================
//
// Reduces one file's raw header row to its FileStructure: the ordered,
// deduplicated list of canonical field names that file contributes.
//
// RECONCILIATION STEPS:
//   1. Drop every header the ExclusionSet excludes (multi-form matching).
//   2. Group the remaining headers by the canonical name of their base name.
//      "Country" and "Country...5" share a group, and so do "Employer City"
//      and "Employer_City".
//   3. Keep the first header of each group, in first-seen order.
//
// The grouping here is for structural comparison only. Which duplicate's data
// survives is decided later, on loaded data, by the dedupe package.
//
// =============================================================================

package schema

import (
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// =============================================================================
// FILE STRUCTURE
// =============================================================================

// FileStructure is the canonical shape of one source file.
type FileStructure struct {
	// Source identifies the file (usually its base name).
	Source string

	// Fields are the canonical field names in first-seen order.
	// An empty slice is a valid structure.
	Fields []string

	// Groups holds, for each entry of Fields, every raw header position that
	// reconciled to it. Groups[i][0] is the header that defined Fields[i].
	Groups [][]int

	// Excluded are the raw headers dropped by the ExclusionSet.
	Excluded []string

	// Headers is the raw header row the structure was built from.
	Headers []string
}

// Len returns the number of canonical fields.
func (fs FileStructure) Len() int {
	return len(fs.Fields)
}

// Set returns the canonical field names as a set.
func (fs FileStructure) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(fs.Fields))
	for _, f := range fs.Fields {
		set[f] = struct{}{}
	}
	return set
}

// Duplicates returns the groups with more than one raw header, keyed by
// canonical name.
func (fs FileStructure) Duplicates() map[string][]string {
	out := make(map[string][]string)
	for i, group := range fs.Groups {
		if len(group) < 2 {
			continue
		}
		raws := make([]string, len(group))
		for j, pos := range group {
			raws[j] = fs.Headers[pos]
		}
		out[fs.Fields[i]] = raws
	}
	return out
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile builds the FileStructure for one file's raw headers.
//
// PARAMETERS:
//   - source: An identifier for the file, carried into the structure.
//   - raw: The header row as it appears in the file.
//   - ex: The exclusion set. A nil set excludes nothing.
//
// RETURNS:
//   - The FileStructure. Reconcile never fails: a file whose every column is
//     excluded produces an empty but valid structure.
func Reconcile(source string, raw []string, ex *ExclusionSet) FileStructure {
	fs := FileStructure{
		Source:  source,
		Fields:  []string{},
		Headers: raw,
	}

	position := make(map[string]int)

	for i, header := range raw {
		if ex.Excludes(header) {
			fs.Excluded = append(fs.Excluded, header)
			continue
		}

		name := Normalize(header)
		if at, ok := position[name]; ok {
			fs.Groups[at] = append(fs.Groups[at], i)
			continue
		}

		position[name] = len(fs.Fields)
		fs.Fields = append(fs.Fields, name)
		fs.Groups = append(fs.Groups, []int{i})
	}

	return fs
}

// =============================================================================
// KIND ASSIGNMENT
// =============================================================================

// KindOf returns the semantic kind of a canonical field name.
// Names present in neither set are text.
func KindOf(name string, dates, zips map[string]struct{}) types.Kind {
	if _, ok := zips[name]; ok {
		return types.KindZip
	}
	if _, ok := dates[name]; ok {
		return types.KindDate
	}
	return types.KindText
}
