package schema

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

func TestNormalize_Examples(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Employer City", "EMPLOYER_CITY"},
		{"Student's Edu. Level", "STUDENTS_EDU_LEVEL"},
		{"Program-Start-Date", "PROGRAM_START_DATE"},
		{"Country...5", "COUNTRY"},
		{"  Campus Zip Code  ", "CAMPUS_ZIP_CODE"},
		{"A - B", "A_B"},
		{"A.B", "A_B"},
		{"R&D Budget", "RD_BUDGET"},
		{"Employer_City", "EMPLOYER_CITY"},
		{"Employer\u00a0City", "EMPLOYER_CITY"},
		{"Employer\u2028 _City", "EMPLOYER_CITY"},
		{"Country...5\u00a0", "COUNTRY"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Employer City",
		"Student's Edu. Level",
		"Program-Start-Date",
		"Country...5",
		"A...3...4",
		"A ...3",
		"'...5",
		"A...'5",
		"A...5&",
		"  mixed \t whitespace\n here ",
		"trailing -",
		"__under__scored__",
		"Date.of.Birth...4",
		"ALREADY_CANONICAL",
		"ünïcödé field",
		"'\u00a0&",
		"a_\u2028&",
		"\u0085x\u3000y\v",
		"x\u00a0...2",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}

	alphabet := []string{"a", "Z", "5", " ", "\t", "\u00a0", "\u2028", "\u0085", "\u3000", "&", "'", ".", "-", "_", "...3"}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		var b strings.Builder
		for n := rng.Intn(8); n >= 0; n-- {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		in := b.String()
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "Country", BaseName("Country...5"))
	assert.Equal(t, "Country", BaseName("Country...12 "))
	assert.Equal(t, "Country..", BaseName("Country.."))
	assert.Equal(t, "Country", BaseName("Country"))
	assert.True(t, HasDuplicateSuffix("X...7"))
	assert.False(t, HasDuplicateSuffix("X.7"))
}

func TestNormalizeDistinct(t *testing.T) {
	assert.Equal(t, "COUNTRY...5", NormalizeDistinct("Country...5"))
	assert.Equal(t, "COUNTRY", NormalizeDistinct("Country"))
	assert.Equal(t, "COUNTRY", Normalize(NormalizeDistinct("Country...5")))
}

func TestExclusionSet_MultiForm(t *testing.T) {
	ex := NewExclusionSet([]string{"Date_of_Birth"})

	for _, raw := range []string{"date_of_birth", "Date.of.Birth...4", "DATE_OF_BIRTH", "Date of Birth"} {
		assert.True(t, ex.Excludes(raw), "expected %q excluded", raw)
	}
	assert.False(t, ex.Excludes("Date of Entry"))
}

func TestExclusionSet_Patterns(t *testing.T) {
	ex := NewExclusionSet([]string{"*_SSN", "Internal*"})

	assert.True(t, ex.Excludes("Student SSN"))
	assert.True(t, ex.Excludes("STUDENT_SSN...2"))
	assert.True(t, ex.Excludes("Internal Notes"))
	assert.False(t, ex.Excludes("SSN Issued"))
}

func TestExclusionSet_StarCrossesSlash(t *testing.T) {
	ex := NewExclusionSet([]string{"*FEES", "Visa/*"})

	assert.True(t, ex.Excludes("Tuition/Fees"))
	assert.True(t, ex.Excludes("Tuition / Fees...3"))
	assert.True(t, ex.Excludes("Visa/Status/Code"))
	assert.False(t, ex.Excludes("Fees Waived"))
}

func TestExclusionSet_ClassesAndEscapes(t *testing.T) {
	ex := NewExclusionSet([]string{"Code[0-9]", "Flag[!AB]", `Rate\*`, "Bad[", "Z[z-a]"})

	assert.True(t, ex.Excludes("Code7"))
	assert.False(t, ex.Excludes("CodeX"))
	assert.True(t, ex.Excludes("FlagC"))
	assert.False(t, ex.Excludes("FlagA"))
	assert.True(t, ex.Excludes("Rate*"))
	assert.False(t, ex.Excludes("Rate Card"))
	assert.True(t, ex.Excludes("Bad["))
	assert.True(t, ex.Excludes("Z[z-a]"))
	assert.False(t, ex.Excludes("Zq"))
}

func TestExclusionSet_Nil(t *testing.T) {
	var ex *ExclusionSet
	assert.False(t, ex.Excludes("anything"))
	assert.Equal(t, 0, ex.Len())
}

func TestReconcile_CollapsesDuplicateSuffix(t *testing.T) {
	a := Reconcile("a.csv", []string{"Country", "Country...5", "Employer City"}, nil)
	b := Reconcile("b.csv", []string{"Country", "Country...5", "Employer_City"}, nil)

	assert.Equal(t, []string{"COUNTRY", "EMPLOYER_CITY"}, a.Fields)
	assert.Equal(t, a.Fields, b.Fields)
	assert.Equal(t, [][]int{{0, 1}, {2}}, a.Groups)
	assert.Equal(t, map[string][]string{"COUNTRY": {"Country", "Country...5"}}, a.Duplicates())
}

func TestReconcile_Exclusions(t *testing.T) {
	ex := NewExclusionSet([]string{"Date_of_Birth"})
	fs := Reconcile("f.csv", []string{"Date.of.Birth...4", "Country", "date_of_birth"}, ex)

	assert.Equal(t, []string{"COUNTRY"}, fs.Fields)
	assert.Equal(t, []string{"Date.of.Birth...4", "date_of_birth"}, fs.Excluded)
}

func TestReconcile_AllExcludedIsValid(t *testing.T) {
	ex := NewExclusionSet([]string{"A", "B"})
	fs := Reconcile("f.csv", []string{"A", "B"}, ex)

	require.NotNil(t, fs.Fields)
	assert.Equal(t, 0, fs.Len())
	assert.Empty(t, fs.Set())
}

func TestKindOf(t *testing.T) {
	dates := map[string]struct{}{"START_DATE": {}}
	zips := map[string]struct{}{"CAMPUS_ZIP": {}}

	assert.Equal(t, types.KindDate, KindOf("START_DATE", dates, zips))
	assert.Equal(t, types.KindZip, KindOf("CAMPUS_ZIP", dates, zips))
	assert.Equal(t, types.KindText, KindOf("COUNTRY", dates, zips))
}
