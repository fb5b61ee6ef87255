package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// col builds a column; an empty string is a missing cell.
func col(name string, kind types.Kind, values ...string) *types.Column {
	null := make([]bool, len(values))
	for i, v := range values {
		null[i] = v == ""
	}
	return types.NewColumn(name, name, kind, values, null)
}

func testRules(t *testing.T) *config.Rules {
	t.Helper()
	cfg, err := config.Parse([]byte(`
date_columns: [Authorization Start Date, OPT End Date]
text_cleaning_columns: [Employer Name]
zip_columns: [Employer Zip]
state_columns: [Employer State]
state_abbreviations: {NJ: new jersey, MA: massachusetts}
zip_fix_states: [new jersey]
date_formats: ["%Y-%m-%d", "%m/%d/%Y"]
date_cutoffs:
  column: Authorization Start Date
  future_cutoff: "2030-12-31"
  historic_cutoff: "1990-01-01"
`))
	require.NoError(t, err)
	rules, err := cfg.Rules()
	require.NoError(t, err)
	return rules
}

func TestNormalizeValue(t *testing.T) {
	tests := map[string]string{
		"  ACME,  Inc. ":     "acme inc",
		"Foo\t\tBar":         "foo bar",
		"O'Neil & Sons":      "oneil sons",
		"Ｆｕｌｌｗｉｄｔｈ":          "fullwidth",
		"...":                "",
		"already clean text": "already clean text",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeValue(in), in)
	}
}

func TestNormalizeText_MissingStaysMissing(t *testing.T) {
	out := NormalizeText(col("EMPLOYER_NAME", types.KindText, "ACME", "", "!!!"))

	assert.Equal(t, "acme", out.Values[0])
	assert.True(t, out.IsNull(1))
	assert.True(t, out.IsNull(2), "a value reduced to nothing becomes missing")
	assert.Equal(t, "EMPLOYER_NAME", out.Name)
}

func TestExpandStates(t *testing.T) {
	in := NormalizeText(col("EMPLOYER_STATE", types.KindText, "NJ", " ma ", "Texas", ""))
	out := ExpandStates(in, map[string]string{"nj": "new jersey", "ma": "massachusetts"})

	assert.Equal(t, []string{"new jersey", "massachusetts", "texas", ""}, out.Values)
	assert.True(t, out.IsNull(3))
}

func TestPadZips(t *testing.T) {
	zip := col("EMPLOYER_ZIP", types.KindZip, "8540", "8540", "123456", "", "2134")
	state := col("EMPLOYER_STATE", types.KindText, "new jersey", "texas", "new jersey", "new jersey", " New Jersey ")

	out, padded := PadZips(zip, state, map[string]struct{}{"new jersey": {}})

	assert.Equal(t, "08540", out.Values[0])
	assert.Equal(t, "8540", out.Values[1], "states outside the fix set are untouched")
	assert.Equal(t, "123456", out.Values[2])
	assert.True(t, out.IsNull(3))
	assert.Equal(t, "02134", out.Values[4])
	assert.Equal(t, 2, padded)
	assert.Equal(t, types.KindZip, out.Kind)
	assert.Equal(t, "8540", zip.Values[0], "the input column is not mutated")
}

func TestParseDates(t *testing.T) {
	c := col("OPT_END_DATE", types.KindDate,
		"2020-01-05", "1/5/2020", "2020-01-05 00:00:00", "2020-01-05T13:45:10Z", "03/04/2021 9:30 PM EST", "garbage", "")

	out, stats := ParseDates(c, []string{"2006-1-2", "1/2/2006"}, nil)

	assert.Equal(t, []string{"2020-01-05", "2020-01-05", "2020-01-05", "2020-01-05", "2021-03-04", "", ""}, out.Values)
	assert.True(t, out.IsNull(5))
	assert.True(t, out.IsNull(6))

	assert.Equal(t, 6, stats.Present)
	assert.Equal(t, 5, stats.Parsed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"garbage"}, stats.FailedExamples)
	assert.InDelta(t, 5.0/6.0, stats.SuccessRate(), 1e-9)
}

func TestParseDates_FirstFormatWins(t *testing.T) {
	d, ok := ParseDate("02-03-2020", []string{"2-1-2006", "1-2-2006"})
	require.True(t, ok)
	assert.Equal(t, time.March, d.Month())
}

func TestParseDates_FutureCutoffCountedOnce(t *testing.T) {
	rules := testRules(t)
	c := col("AUTHORIZATION_START_DATE", types.KindDate, "2020-06-01", "2099-01-01", "1985-01-01", "2030-12-31")

	out, stats := CleanColumn(c, Date, rules)

	require.NotNil(t, stats.Dates)
	assert.Equal(t, 1, stats.Dates.FutureNullified)
	assert.Equal(t, 1, stats.Dates.HistoricNullified)
	assert.Equal(t, "2020-06-01", out.Values[0])
	assert.True(t, out.IsNull(1))
	assert.True(t, out.IsNull(2))
	assert.Equal(t, "2030-12-31", out.Values[3], "the cutoff bound itself is kept")
}

func TestParseDates_CutoffOnlyOnDesignatedColumn(t *testing.T) {
	rules := testRules(t)
	c := col("OPT_END_DATE", types.KindDate, "2099-01-01")

	out, stats := CleanColumn(c, Date, rules)

	assert.Equal(t, "2099-01-01", out.Values[0])
	assert.Zero(t, stats.Dates.FutureNullified)
}

func TestDateStats_Degradation(t *testing.T) {
	s := DateStats{Column: "X", Present: 100, Parsed: 98, Failed: 2, FailedExamples: []string{"?"}}

	d, degraded := s.Degradation(0.99)
	require.True(t, degraded)
	assert.Equal(t, "X", d.Column)
	assert.InDelta(t, 0.98, d.SuccessRate, 1e-9)
	assert.Contains(t, d.String(), "98.00% parsed")

	_, degraded = s.Degradation(0.95)
	assert.False(t, degraded)

	assert.Equal(t, 1.0, DateStats{}.SuccessRate())
}

func TestKindsFor(t *testing.T) {
	rules := testRules(t)

	assert.Equal(t, []Kind{Date}, KindsFor(col("OPT_END_DATE", types.KindDate), rules))
	assert.Equal(t, []Kind{State}, KindsFor(col("EMPLOYER_STATE", types.KindText), rules))
	assert.Equal(t, []Kind{Text}, KindsFor(col("EMPLOYER_NAME", types.KindText), rules))
	assert.Nil(t, KindsFor(col("EMPLOYER_ZIP", types.KindZip), rules))
	assert.Nil(t, KindsFor(col("COUNTRY", types.KindText), rules))

	// Set-aside duplicates are cleaned like their group.
	assert.Equal(t, []Kind{State}, KindsFor(col("EMPLOYER_STATE...4", types.KindText), rules))
	assert.Equal(t, []Kind{Text}, KindsFor(col("EMPLOYER_NAME...2", types.KindText), rules))
}

func TestCleanColumn_StateCountsChanges(t *testing.T) {
	rules := testRules(t)
	out, stats := CleanColumn(col("EMPLOYER_STATE", types.KindText, "NJ", "new jersey", ""), State, rules)

	assert.Equal(t, []string{"new jersey", "new jersey", ""}, out.Values)
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 1, stats.Changed)
}

func TestPadLeft(t *testing.T) {
	assert.Equal(t, "00042", PadLeft("42", 5, '0'))
	assert.Equal(t, "123456", PadLeft("123456", 5, '0'))
}
