package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("A,B\n"), 0o644))
}

func TestDiscoverYearsAndFiles(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	touch(t, filepath.Join(raw, "2021", "b.csv"))
	touch(t, filepath.Join(raw, "2021", "a.TXT"))
	touch(t, filepath.Join(raw, "2021", "notes.md"))
	touch(t, filepath.Join(raw, "2021", ".hidden.csv"))
	touch(t, filepath.Join(raw, "2019", "x.tsv"))
	touch(t, filepath.Join(raw, "stray.csv"))

	fm := NewFileManager(raw, "", "", "")

	years, err := fm.DiscoverYears()
	require.NoError(t, err)
	assert.Equal(t, []string{"2019", "2021"}, years)

	files, err := fm.DiscoverYearFiles("2021")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(raw, "2021", "a.TXT"),
		filepath.Join(raw, "2021", "b.csv"),
	}, files)

	_, err = fm.DiscoverYearFiles("1999")
	assert.Error(t, err)
}

func TestDiscoverOutputYears(t *testing.T) {
	root := t.TempDir()
	combined := filepath.Join(root, "combined")
	cleaned := filepath.Join(root, "cleaned")
	touch(t, filepath.Join(combined, "2020_all.csv"))
	touch(t, filepath.Join(combined, "2019_all.csv"))
	touch(t, filepath.Join(combined, "cleaned_2018_all.csv"))
	touch(t, filepath.Join(combined, "readme.csv"))
	touch(t, filepath.Join(cleaned, "cleaned_2020_all.csv"))

	fm := NewFileManager("", combined, cleaned, "")

	years, err := fm.DiscoverCombinedYears()
	require.NoError(t, err)
	assert.Equal(t, []string{"2019", "2020"}, years)

	years, err = fm.DiscoverCleanedYears()
	require.NoError(t, err)
	assert.Equal(t, []string{"2020"}, years)
}

func TestOutputPaths(t *testing.T) {
	fm := NewFileManager("raw", "combined", "cleaned", "reports")

	assert.Equal(t, filepath.Join("combined", "2020_all.csv"), fm.CombinedPath("2020"))
	assert.Equal(t, filepath.Join("cleaned", "cleaned_2020_all.csv"), fm.CleanedPath("2020"))

	year, ok := YearFromCleaned("cleaned_2020_all.csv")
	assert.True(t, ok)
	assert.Equal(t, "2020", year)

	_, ok = YearFromCombined("_all.csv")
	assert.False(t, ok)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager("", filepath.Join(root, "c"), filepath.Join(root, "d"), filepath.Join(root, "r"))

	require.NoError(t, fm.EnsureDirectories())
	assert.True(t, FileExists(filepath.Join(root, "c")))
	assert.True(t, FileExists(filepath.Join(root, "r")))
}

func TestGenerateOutputFileName(t *testing.T) {
	name := GenerateOutputFileName("run_{timestamp}_{id}_{stage}.xlsx", map[string]string{"stage": "clean"})
	assert.Regexp(t, regexp.MustCompile(`^run_\d{8}_\d{6}_[0-9a-f]{8}_clean\.xlsx$`), name)
}

func TestParseYearFilter(t *testing.T) {
	years, err := ParseYearFilter("2019, 2015-2017,2016")
	require.NoError(t, err)
	assert.Equal(t, []string{"2015", "2016", "2017", "2019"}, years)

	years, err = ParseYearFilter("")
	require.NoError(t, err)
	assert.Empty(t, years)

	_, err = ParseYearFilter("2018-2015")
	assert.Error(t, err)
}

func TestFilterYears(t *testing.T) {
	all := []string{"2018", "2019", "2020"}
	assert.Equal(t, all, FilterYears(all, nil))
	assert.Equal(t, []string{"2020"}, FilterYears(all, []string{"2020", "1999"}))
}

func TestGetFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.csv")
	touch(t, path)

	size, err := GetFileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestListSourceFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "2020_all.csv"))
	touch(t, filepath.Join(dir, "2019_all.csv"))
	touch(t, filepath.Join(dir, "run.log"))

	files, err := ListSourceFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "2019_all.csv"),
		filepath.Join(dir, "2020_all.csv"),
	}, files)
}
