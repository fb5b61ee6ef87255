package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/validation"
)

type testDirs struct {
	raw, combined, cleaned, reports string
}

func testDriver(t *testing.T) (*Driver, testDirs) {
	t.Helper()
	root := t.TempDir()
	dirs := testDirs{
		raw:      filepath.Join(root, "raw"),
		combined: filepath.Join(root, "combined"),
		cleaned:  filepath.Join(root, "cleaned"),
		reports:  filepath.Join(root, "reports"),
	}
	require.NoError(t, os.MkdirAll(dirs.raw, 0o755))

	doc := testConfig + fmt.Sprintf(`
paths:
  raw_dir: %q
  combined_dir: %q
  cleaned_dir: %q
  report_dir: %q
processing:
  max_workers: 2
`, dirs.raw, dirs.combined, dirs.cleaned, dirs.reports)

	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	d, err := NewDriver(cfg, nil)
	require.NoError(t, err)
	return d, dirs
}

func TestEffectiveWorkers(t *testing.T) {
	tests := []struct {
		max, cpus, want int
	}{
		{max: 4, cpus: 8, want: 4},
		{max: 4, cpus: 3, want: 2},
		{max: 4, cpus: 1, want: 1},
		{max: 0, cpus: 8, want: 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveWorkers(tt.max, tt.cpus), "max=%d cpus=%d", tt.max, tt.cpus)
	}
}

func TestRun_RequiresStage(t *testing.T) {
	d, _ := testDriver(t)
	_, err := d.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoStage)
}

func TestRun_PartialSuccess(t *testing.T) {
	d, dirs := testDriver(t)
	writeFile(t, filepath.Join(dirs.raw, "2019", "a.csv"), "Country,Employer City\nIndia,Boston\n")
	writeFile(t, filepath.Join(dirs.raw, "2019", "b.csv"), "Country,Employer_City\nChina,Newark\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "a.csv"), "Country,Employer City\nIndia,Boston\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "b.csv"), "Country,Employer Zip\nChina,07001\n")

	report, err := d.Run(context.Background(), Options{Combine: true, Clean: true})
	require.NoError(t, err)

	require.Len(t, report.Combine, 2)
	assert.Equal(t, "2019", report.Combine[0].Year)
	assert.True(t, report.Combine[0].OK())
	assert.Equal(t, "2020", report.Combine[1].Year)

	var mismatch *validation.SchemaMismatchError
	assert.True(t, errors.As(report.Combine[1].Err, &mismatch))

	// The failed year is not cleaned.
	require.Len(t, report.Clean, 1)
	assert.Equal(t, "2019", report.Clean[0].Year)
	assert.True(t, report.Clean[0].OK())

	assert.False(t, report.OK())
	assert.Len(t, report.Failures(), 1)
	assert.NotEmpty(t, report.RunID)
	assert.FileExists(t, filepath.Join(dirs.combined, "2019_all.csv"))
	assert.FileExists(t, filepath.Join(dirs.cleaned, "cleaned_2019_all.csv"))
	assert.NoFileExists(t, filepath.Join(dirs.combined, "2020_all.csv"))
}

func TestRun_IrreconcilableColumnsStayYearLocal(t *testing.T) {
	d, dirs := testDriver(t)
	// The repeated Country columns disagree on every row.
	writeFile(t, filepath.Join(dirs.raw, "2019", "a.csv"),
		"Country,Country,Employer City\nIndia,China,Boston\nChina,India,Newark\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "a.csv"), "Country,Employer City\nIndia,Boston\n")
	writeFile(t, filepath.Join(dirs.raw, "2021", "a.csv"), "Country,Employer_City\nChina,Newark\n")

	report, err := d.Run(context.Background(), Options{Combine: true, Clean: true})
	require.NoError(t, err)
	require.NoError(t, report.DirectoryCheck)

	require.Len(t, report.Combine, 3)
	require.Len(t, report.Clean, 3)
	for _, res := range report.Results() {
		assert.True(t, res.OK(), "%s %s: %v", res.Stage, res.Year, res.Err)
	}
	assert.True(t, report.OK())

	require.Len(t, report.Combine[0].Stats.Review, 1)
	assert.Equal(t, "Country...2", report.Combine[0].Stats.Review[0].Member)

	data, err := os.ReadFile(filepath.Join(dirs.cleaned, "cleaned_2019_all.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"COUNTRY,COUNTRY...2,EMPLOYER_CITY,YEAR\nindia,china,Boston,2019\nchina,india,Newark,2019\n",
		string(data))

	// The combined directory still passes the on-demand check.
	files, err := d.Files().DiscoverCombinedYears()
	require.NoError(t, err)
	assert.Equal(t, []string{"2019", "2020", "2021"}, files)
	paths := []string{
		d.Files().CombinedPath("2019"),
		d.Files().CombinedPath("2020"),
		d.Files().CombinedPath("2021"),
	}
	assert.NoError(t, d.Processor(false).CheckConsistency(dirs.combined, paths))
}

func TestRun_YearFilter(t *testing.T) {
	d, dirs := testDriver(t)
	writeFile(t, filepath.Join(dirs.raw, "2019", "a.csv"), "A,B\n1,2\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "a.csv"), "A,B\n1,2\n")

	report, err := d.Run(context.Background(), Options{Combine: true, Years: []string{"2020"}})
	require.NoError(t, err)
	require.Len(t, report.Combine, 1)
	assert.Equal(t, "2020", report.Combine[0].Year)
	assert.Empty(t, report.Clean)
	assert.True(t, report.OK())
}

func TestRun_CleanDirectoryMismatch(t *testing.T) {
	d, dirs := testDriver(t)
	writeFile(t, filepath.Join(dirs.combined, "2019_all.csv"), "A,B,YEAR\n1,2,2019\n")
	writeFile(t, filepath.Join(dirs.combined, "2020_all.csv"), "A,C,YEAR\n1,2,2020\n")

	report, err := d.Run(context.Background(), Options{Clean: true})
	require.NoError(t, err)

	var mismatch *validation.SchemaMismatchError
	require.True(t, errors.As(report.DirectoryCheck, &mismatch))
	assert.Equal(t, []string{"2020_all.csv"}, mismatch.Mismatched())

	require.Len(t, report.Clean, 2)
	for _, res := range report.Clean {
		assert.ErrorIs(t, res.Err, report.DirectoryCheck)
		assert.Equal(t, ConsistencyChecked, res.FailedAt)
	}
	assert.NoFileExists(t, filepath.Join(dirs.cleaned, "cleaned_2019_all.csv"))
}

func TestRun_Cancelled(t *testing.T) {
	d, dirs := testDriver(t)
	writeFile(t, filepath.Join(dirs.raw, "2019", "a.csv"), "A,B\n1,2\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Run(ctx, Options{Combine: true})
	require.NoError(t, err)
	require.Len(t, report.Combine, 1)
	assert.ErrorIs(t, report.Combine[0].Err, context.Canceled)
}

func TestCheckYears(t *testing.T) {
	d, dirs := testDriver(t)
	writeFile(t, filepath.Join(dirs.raw, "2019", "a.csv"), "A,B\n1,2\n")
	writeFile(t, filepath.Join(dirs.raw, "2019", "b.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "a.csv"), "A,B\n1,2\n")
	writeFile(t, filepath.Join(dirs.raw, "2020", "b.csv"), "A,D\n1,2\n")

	failures, err := d.CheckYears([]string{"2019", "2020"})
	require.NoError(t, err)
	assert.NotContains(t, failures, "2019")
	assert.Contains(t, failures, "2020")
}

func TestRunPool_RecoversPanic(t *testing.T) {
	results := runPool(context.Background(), 2, []string{"2019", "2020"}, StageClean,
		func(_ context.Context, year string) YearResult {
			if year == "2020" {
				panic("boom")
			}
			return YearResult{Year: year, Stage: StageClean, State: Done}
		})

	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.Error(t, results[1].Err)
	assert.Equal(t, "2020", results[1].Year)
}
