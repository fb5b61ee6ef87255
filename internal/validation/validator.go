// =============================================================================
// OPT Observatory ETL - Consistency Validator
// =============================================================================
//
// This module compares the FileStructures of a group of files and fails loudly
// when they disagree. A group is either:
//   - every source file inside one raw year directory, or
//   - every yearly output file inside one output directory.
//
// COMPARISON:
//   The first structure is the reference. Every other structure is compared to
//   it by set membership of canonical field names; order is irrelevant.
//
// ERROR HANDLING:
//   - Any mismatch is fatal for the group. Silently combining files with
//     different schemas would corrupt or truncate data.
//   - The error carries, per mismatched file, the column count, the fields
//     missing relative to the reference, and the extra fields.
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// FileDiff describes how one file's structure differs from the reference.
type FileDiff struct {
	// Source is the file identifier.
	Source string

	// ColumnCount is the number of canonical fields in the file.
	ColumnCount int

	// Missing are fields present in the reference but absent from the file,
	// in reference order.
	Missing []string

	// Extra are fields present in the file but absent from the reference,
	// in file order.
	Extra []string
}

// SchemaMismatchError is returned when a group of files does not share one
// structure.
type SchemaMismatchError struct {
	// Group names the compared group (a year label or a directory).
	Group string

	// Reference is the source of the structure everything was compared to.
	Reference string

	// ReferenceCount is the number of fields in the reference structure.
	ReferenceCount int

	// Diffs has one entry per mismatched file.
	Diffs []FileDiff
}

// Error implements the error interface.
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: %d file(s) differ from reference %s",
		e.Group, len(e.Diffs), e.Reference)
}

// Detail returns a multi-line report of every difference.
func (e *SchemaMismatchError) Detail() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Schema mismatch in %s\n", e.Group)
	fmt.Fprintf(&b, "Reference: %s (%d columns)\n", e.Reference, e.ReferenceCount)

	for _, d := range e.Diffs {
		fmt.Fprintf(&b, "\n%s (%d columns)\n", d.Source, d.ColumnCount)
		if len(d.Missing) > 0 {
			fmt.Fprintf(&b, "  missing: %s\n", strings.Join(d.Missing, ", "))
		}
		if len(d.Extra) > 0 {
			fmt.Fprintf(&b, "  extra:   %s\n", strings.Join(d.Extra, ", "))
		}
	}

	return b.String()
}

// Mismatched returns the sources of every mismatched file, sorted.
func (e *SchemaMismatchError) Mismatched() []string {
	out := make([]string, len(e.Diffs))
	for i, d := range e.Diffs {
		out[i] = d.Source
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// ValidateConsistency checks that every structure has the same field set as
// the first one.
//
// PARAMETERS:
//   - group: A label for the compared group, used in the error.
//   - structures: One structure per file, in processing order.
//
// RETURNS:
//   - nil when every structure matches the reference (including when all are
//     empty, or when fewer than two structures are given).
//   - A *SchemaMismatchError otherwise.
func ValidateConsistency(group string, structures []schema.FileStructure) error {
	if len(structures) < 2 {
		return nil
	}

	ref := structures[0]
	refSet := ref.Set()

	var diffs []FileDiff
	for _, fs := range structures[1:] {
		d := Diff(ref, fs)
		if len(d.Missing) == 0 && len(d.Extra) == 0 {
			continue
		}
		diffs = append(diffs, d)
	}

	if len(diffs) == 0 {
		return nil
	}

	return &SchemaMismatchError{
		Group:          group,
		Reference:      ref.Source,
		ReferenceCount: len(refSet),
		Diffs:          diffs,
	}
}

// Diff compares one structure against a reference.
func Diff(ref, fs schema.FileStructure) FileDiff {
	refSet := ref.Set()
	set := fs.Set()

	d := FileDiff{
		Source:      fs.Source,
		ColumnCount: len(set),
	}

	for _, name := range ref.Fields {
		if _, ok := set[name]; !ok {
			d.Missing = append(d.Missing, name)
		}
	}
	for _, name := range fs.Fields {
		if _, ok := refSet[name]; !ok {
			d.Extra = append(d.Extra, name)
		}
	}

	return d
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats schema mismatches for display or logging.
//
// PARAMETERS:
//   - errs: The mismatches to format.
//
// RETURNS:
//   - A formatted string containing all mismatches.
func FormatErrors(errs []*SchemaMismatchError) string {
	if len(errs) == 0 {
		return "No schema mismatches."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d mismatch(es):\n\n", len(errs)))

	for i, err := range errs {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Detail()))
	}

	return builder.String()
}

// WriteErrorLog writes schema mismatches to a log file.
//
// PARAMETERS:
//   - errs: The mismatches to write.
//   - filePath: The path to the output file.
//
// RETURNS:
//   - An error if writing fails.
func WriteErrorLog(errs []*SchemaMismatchError, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	writer.WriteString(FormatErrors(errs))

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush error log: %w", err)
	}
	return nil
}
