// =============================================================================
// OPT Observatory ETL - Duplicate-Column Resolver
// =============================================================================
//
// Within one loaded file, several raw columns can reconcile to the same
// canonical name ("Country", "Country...5", "Country...9"). This module decides
// which column's data to keep.
//
// DECISION PROCEDURE (members in original left-to-right file order):
//   1. Exact match. If every other member equals the first member row for row
//      (both missing, or both present and string-equal), keep the first member
//      and discard the rest.
//   2. Otherwise, one pairwise pass. The first member is the candidate. For
//      each later member:
//        a. similarity = rows where both are present and equal
//                        / rows where at least one is present
//           Rows where both are missing count for neither side. A zero
//           denominator gives similarity 1.
//        b. similarity > threshold: keep whichever of candidate and member has
//           fewer missing values (a tie keeps the candidate). The winner is the
//           candidate for the rest of the pass.
//        c. similarity <= threshold: the member is set aside. Both survive and
//           the pair is flagged for manual review. The candidate is unchanged.
//
// ORDER:
//   The pass is a sequential reduction and is not associative when members sit
//   close to the threshold. The order is always the original column position
//   in the file.
//
// =============================================================================

package dedupe

import (
	"sort"

	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// DefaultThreshold is the strict similarity bound above which two columns are
// merged.
const DefaultThreshold = 0.95

// =============================================================================
// RESULT TYPES
// =============================================================================

// Decision is the rationale recorded for a resolved group.
type Decision int

const (
	// Trivial groups have zero or one member.
	Trivial Decision = iota

	// Identical groups had every member exactly equal to the first.
	Identical

	// SimilarityResolved groups collapsed to one column by similarity.
	SimilarityResolved

	// Irreconcilable groups kept more than one column, flagged for review.
	Irreconcilable
)

// String returns the decision name used in logs and reports.
func (d Decision) String() string {
	switch d {
	case Identical:
		return "identical"
	case SimilarityResolved:
		return "similarity-resolved"
	case Irreconcilable:
		return "irreconcilable"
	default:
		return "trivial"
	}
}

// Merge records one similarity merge.
type Merge struct {
	Winner     string
	Loser      string
	Similarity float64
}

// ReviewPair records two columns that were too different to merge. Both were
// kept.
type ReviewPair struct {
	// Name is the canonical name of the group.
	Name string

	// Candidate is the raw header of the column kept under the canonical name
	// at the time of the comparison.
	Candidate string

	// Member is the raw header of the column that was set aside.
	Member string

	// Similarity is the measured similarity.
	Similarity float64
}

// Resolution is the outcome of resolving one group.
type Resolution struct {
	// Name is the canonical name of the group.
	Name string

	// Kept are the surviving columns in original file order. The chosen
	// column carries Name; set-aside columns carry Name plus a duplicate
	// suffix ("COUNTRY...5"), so they still reconcile to the group.
	Kept []*types.Column

	// Decision is the rationale.
	Decision Decision

	// Discarded are the raw headers of the dropped columns.
	Discarded []string

	// Merges lists every similarity merge, in pass order.
	Merges []Merge

	// Review lists every pair flagged for manual review, in pass order.
	Review []ReviewPair
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver resolves duplicate-column groups with a configurable threshold.
type Resolver struct {
	// Threshold is the strict lower bound for a similarity merge.
	Threshold float64
}

// NewResolver creates a Resolver. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{Threshold: threshold}
}

// Resolve resolves a group with DefaultThreshold. The canonical name of the
// group is taken from the first member's Name.
func Resolve(group []*types.Column) Resolution {
	return NewResolver(DefaultThreshold).Resolve(group)
}

// Resolve resolves one group of columns sharing a canonical name.
//
// PARAMETERS:
//   - group: The members in original file order. Every member must have the
//     same length.
//
// RETURNS:
//   - The Resolution. Empty and single-member groups are returned unchanged
//     with a Trivial decision.
func (r *Resolver) Resolve(group []*types.Column) Resolution {
	if len(group) == 0 {
		return Resolution{Decision: Trivial}
	}

	name := group[0].Name
	res := Resolution{Name: name}

	if len(group) == 1 {
		res.Decision = Trivial
		res.Kept = []*types.Column{group[0]}
		return res
	}

	// Step 1: exact match against the first member.
	if allExact(group) {
		res.Decision = Identical
		res.Kept = []*types.Column{group[0].Renamed(name)}
		for _, col := range group[1:] {
			res.Discarded = append(res.Discarded, col.Source)
		}
		return res
	}

	// Step 2: pairwise pass against the current candidate.
	candidate := 0
	var setAside []int

	for i := 1; i < len(group); i++ {
		sim := Similarity(group[candidate], group[i])

		if sim > r.Threshold {
			winner, loser := candidate, i
			if group[i].NullCount() < group[candidate].NullCount() {
				winner, loser = i, candidate
			}
			res.Merges = append(res.Merges, Merge{
				Winner:     group[winner].Source,
				Loser:      group[loser].Source,
				Similarity: sim,
			})
			res.Discarded = append(res.Discarded, group[loser].Source)
			candidate = winner
			continue
		}

		res.Review = append(res.Review, ReviewPair{
			Name:       name,
			Candidate:  group[candidate].Source,
			Member:     group[i].Source,
			Similarity: sim,
		})
		setAside = append(setAside, i)
	}

	if len(setAside) == 0 {
		res.Decision = SimilarityResolved
		res.Kept = []*types.Column{group[candidate].Renamed(name)}
		return res
	}

	res.Decision = Irreconcilable
	res.Kept = keepInOrder(name, group, candidate, setAside)
	return res
}

// keepInOrder names the survivors and returns them in original file order.
func keepInOrder(name string, group []*types.Column, candidate int, setAside []int) []*types.Column {
	positions := append([]int{candidate}, setAside...)
	sort.Ints(positions)

	taken := map[string]bool{name: true}
	kept := make([]*types.Column, 0, len(positions))

	for _, pos := range positions {
		col := group[pos]
		if pos == candidate {
			kept = append(kept, col.Renamed(name))
			continue
		}

		distinct := schema.NormalizeDistinct(col.Source)
		if !schema.HasDuplicateSuffix(distinct) {
			distinct = schema.DuplicateName(name, pos+1)
		}
		for n := pos + 1; taken[distinct]; n++ {
			distinct = schema.DuplicateName(name, n)
		}
		taken[distinct] = true
		kept = append(kept, col.Renamed(distinct))
	}

	return kept
}

// =============================================================================
// COMPARISONS
// =============================================================================

// ExactMatch reports whether two columns are equal at every row: both missing,
// or both present and string-equal.
func ExactMatch(a, b *types.Column) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if a.Null[i] != b.Null[i] {
			return false
		}
		if !a.Null[i] && a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// Similarity returns the fraction of informative rows on which two columns
// agree. A row is informative when at least one side is present; it agrees
// when both sides are present and equal. With no informative rows the columns
// are fully similar.
func Similarity(a, b *types.Column) float64 {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}

	agree, informative := 0, 0
	for i := 0; i < n; i++ {
		if a.Null[i] && b.Null[i] {
			continue
		}
		informative++
		if !a.Null[i] && !b.Null[i] && a.Values[i] == b.Values[i] {
			agree++
		}
	}

	if informative == 0 {
		return 1
	}
	return float64(agree) / float64(informative)
}

func allExact(group []*types.Column) bool {
	for _, col := range group[1:] {
		if !ExactMatch(group[0], col) {
			return false
		}
	}
	return true
}
