// =============================================================================
// OPT Observatory ETL - Column Normalizer
// =============================================================================
//
// Maps a raw, messy header string to a canonical field name.
//
// NORMALIZATION ORDER (fixed, every step applies):
//   1. Strip a trailing duplicate-column suffix ("..." followed by digits).
//      The result is the base name.
//   2. Trim leading and trailing whitespace.
//   3. Remove '&' and '\'' characters.
//   4. Replace '.' and '-' with '_'.
//   5. Collapse whitespace runs, together with any underscores touching them,
//      to a single '_'. "A - B" and "A.B" therefore both become "A_B".
//   6. Upper-case.
//
// EXAMPLES:
//   "Employer City"        -> "EMPLOYER_CITY"
//   "Student's Edu. Level" -> "STUDENTS_EDU_LEVEL"
//   "Program-Start-Date"   -> "PROGRAM_START_DATE"
//   "Country...5"          -> "COUNTRY"
//
// =============================================================================

package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// space is the class of runes unicode.IsSpace accepts. RE2's \s is ASCII only.
const space = `[\s\v\x{85}\p{Z}]`

var (
	// duplicateSuffix matches export artifacts like "Country...5".
	duplicateSuffix = regexp.MustCompile(`\.\.\.\d+` + space + `*$`)

	// whitespaceRun matches a whitespace run plus any underscores touching it.
	whitespaceRun = regexp.MustCompile(`_*` + space + `+[\s\v\x{85}\p{Z}_]*`)

	removeChars  = strings.NewReplacer("&", "", "'", "")
	replaceChars = strings.NewReplacer(".", "_", "-", "_")
)

// BaseName strips the duplicate-column suffix from a raw header.
// Nothing else about the header changes.
func BaseName(raw string) string {
	return duplicateSuffix.ReplaceAllString(raw, "")
}

// HasDuplicateSuffix reports whether the raw header carries a duplicate-column
// suffix.
func HasDuplicateSuffix(raw string) bool {
	return duplicateSuffix.MatchString(raw)
}

// Normalize returns the canonical field name for a raw header.
// Normalize is idempotent.
func Normalize(raw string) string {
	return normalizeBody(BaseName(raw))
}

// NormalizeDistinct normalizes a raw header but keeps its duplicate-column
// suffix ("Country...5" -> "COUNTRY...5"). It names columns that survive next
// to their group's canonical column; Normalize and Reconcile still fold such a
// name back into the group.
func NormalizeDistinct(raw string) string {
	base := BaseName(raw)
	return normalizeBody(base) + strings.TrimSpace(strings.TrimPrefix(raw, base))
}

// DuplicateName returns name with the duplicate-column suffix for position n.
func DuplicateName(name string, n int) string {
	return fmt.Sprintf("%s...%d", name, n)
}

// normalizeBody applies steps 2 through 6.
func normalizeBody(s string) string {
	s = strings.TrimSpace(s)
	s = removeChars.Replace(s)
	s = replaceChars.Replace(s)
	s = whitespaceRun.ReplaceAllString(s, "_")
	return strings.ToUpper(s)
}
