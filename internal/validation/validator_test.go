package validation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
)

func structure(source string, fields ...string) schema.FileStructure {
	if fields == nil {
		fields = []string{}
	}
	return schema.FileStructure{Source: source, Fields: fields}
}

func TestValidateConsistency_Identical(t *testing.T) {
	err := ValidateConsistency("2020", []schema.FileStructure{
		structure("a.csv", "COUNTRY", "EMPLOYER_CITY"),
		structure("b.csv", "EMPLOYER_CITY", "COUNTRY"),
	})
	assert.NoError(t, err)
}

func TestValidateConsistency_SingleAndEmpty(t *testing.T) {
	assert.NoError(t, ValidateConsistency("2020", nil))
	assert.NoError(t, ValidateConsistency("2020", []schema.FileStructure{structure("a.csv", "X")}))
	assert.NoError(t, ValidateConsistency("2020", []schema.FileStructure{
		structure("a.csv"),
		structure("b.csv"),
	}))
}

func TestValidateConsistency_EmptyVersusNonEmpty(t *testing.T) {
	err := ValidateConsistency("2020", []schema.FileStructure{
		structure("a.csv"),
		structure("b.csv", "X"),
	})

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{"X"}, mismatch.Diffs[0].Extra)
	assert.Empty(t, mismatch.Diffs[0].Missing)
}

func TestValidateConsistency_ReportsDiff(t *testing.T) {
	err := ValidateConsistency("2021", []schema.FileStructure{
		structure("a.csv", "A", "B", "C"),
		structure("b.csv", "A", "B", "C"),
		structure("c.csv", "A", "D"),
	})

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))

	assert.Equal(t, "2021", mismatch.Group)
	assert.Equal(t, "a.csv", mismatch.Reference)
	assert.Equal(t, 3, mismatch.ReferenceCount)
	require.Len(t, mismatch.Diffs, 1)

	d := mismatch.Diffs[0]
	assert.Equal(t, "c.csv", d.Source)
	assert.Equal(t, 2, d.ColumnCount)
	assert.Equal(t, []string{"B", "C"}, d.Missing)
	assert.Equal(t, []string{"D"}, d.Extra)

	assert.Contains(t, mismatch.Detail(), "missing: B, C")
	assert.Contains(t, mismatch.Detail(), "extra:   D")
}

func TestValidateConsistency_SwappingReferenceIsSymmetric(t *testing.T) {
	a := structure("a.csv", "A", "B")
	b := structure("b.csv", "A", "C")

	err1 := ValidateConsistency("g", []schema.FileStructure{a, b})
	err2 := ValidateConsistency("g", []schema.FileStructure{b, a})

	var m1, m2 *SchemaMismatchError
	require.True(t, errors.As(err1, &m1))
	require.True(t, errors.As(err2, &m2))

	// The same pair is flagged either way; only the direction flips.
	assert.Equal(t, m1.Diffs[0].Missing, m2.Diffs[0].Extra)
	assert.Equal(t, m1.Diffs[0].Extra, m2.Diffs[0].Missing)
	assert.ElementsMatch(t,
		[]string{m1.Reference, m1.Diffs[0].Source},
		[]string{m2.Reference, m2.Diffs[0].Source},
	)
}

func TestFormatErrors(t *testing.T) {
	assert.Equal(t, "No schema mismatches.", FormatErrors(nil))

	err := &SchemaMismatchError{Group: "cleaned", Reference: "a", Diffs: []FileDiff{{Source: "b", Missing: []string{"X"}}}}
	out := FormatErrors([]*SchemaMismatchError{err})
	assert.Contains(t, out, "1 mismatch(es)")
	assert.Contains(t, out, "missing: X")
}

func TestWriteErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mismatch.txt")
	err := &SchemaMismatchError{Group: "2020", Reference: "a", Diffs: []FileDiff{{Source: "b", Extra: []string{"Y"}}}}

	require.NoError(t, WriteErrorLog([]*SchemaMismatchError{err}, path))

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "extra:   Y")
}
