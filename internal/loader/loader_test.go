package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

func settings() config.CSVSettings {
	return config.CSVSettings{Delimiter: ",", Encoding: "UTF-8"}
}

func writeYear(t *testing.T, dir, year string, rows int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("COUNTRY,EDU_LEVEL,YEAR\n")
	for i := 0; i < rows; i++ {
		level := "bachelor"
		if i%2 == 1 {
			level = "master"
		}
		fmt.Fprintf(&b, "country%d,%s,%s\n", i, level, year)
	}
	path := filepath.Join(dir, "cleaned_"+year+"_all.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func testLoader(t *testing.T) *Loader {
	t.Helper()
	dir := t.TempDir()
	writeYear(t, dir, "2021", 4)
	writeYear(t, dir, "2020", 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cleaned_draft_all.csv"), []byte("A,B\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2020_all.csv"), []byte("A,B\n"), 0o644))

	l, err := New(dir, settings())
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	l := testLoader(t)
	assert.Equal(t, []string{"2020", "2021"}, l.Years())

	_, err := New(filepath.Join(t.TempDir(), "missing"), settings())
	assert.Error(t, err)
}

func TestPath_UnknownYearListsAvailable(t *testing.T) {
	_, err := testLoader(t).Path("1999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2020, 2021")
}

func TestLoadYear(t *testing.T) {
	l := testLoader(t)

	table, err := l.LoadYear("2021", Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, table.Rows())
	assert.Equal(t, []string{"COUNTRY", "EDU_LEVEL", "YEAR"}, table.Names())

	table, err = l.LoadYear("2021", Options{Columns: []string{"YEAR", "COUNTRY"}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"YEAR", "COUNTRY"}, table.Names())
	assert.Equal(t, []string{"country0", "country1"}, table.Column("COUNTRY").Values)

	table, err = l.LoadYear("2021", Options{Filter: func(t *types.Table, row int) bool {
		return t.Column("EDU_LEVEL").Values[row] == "master"
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"country1", "country3"}, table.Column("COUNTRY").Values)

	_, err = l.LoadYear("2021", Options{Columns: []string{"NOPE"}})
	assert.Error(t, err)
}

func TestLoadYears(t *testing.T) {
	l := testLoader(t)

	for _, parallel := range []bool{false, true} {
		table, err := l.LoadYears(context.Background(), []string{"2021", "2020"}, Options{}, parallel)
		require.NoError(t, err)
		assert.Equal(t, 7, table.Rows())
		assert.Equal(t, "2021", table.Column("YEAR").Values[0])
		assert.Equal(t, "2020", table.Column("YEAR").Values[6])
	}

	_, err := l.LoadYears(context.Background(), []string{"2020", "1999"}, Options{}, true)
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	table, err := testLoader(t).LoadAll(context.Background(), Options{Columns: []string{"YEAR"}}, true)
	require.NoError(t, err)
	assert.Equal(t, 7, table.Rows())
	assert.Equal(t, "2020", table.Column("YEAR").Values[0])

	l, err := New(t.TempDir(), settings())
	require.NoError(t, err)
	_, err = l.LoadAll(context.Background(), Options{}, false)
	assert.ErrorIs(t, err, ErrNoYears)
}

func TestChunks(t *testing.T) {
	l := testLoader(t)

	var sizes []int
	err := l.Chunks("2021", 3, []string{"COUNTRY"}, func(chunk *types.Table) error {
		sizes = append(sizes, chunk.Rows())
		assert.Equal(t, []string{"COUNTRY"}, chunk.Names())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, sizes)

	stop := errors.New("stop")
	err = l.Chunks("2021", 1, nil, func(*types.Table) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestSample(t *testing.T) {
	l := testLoader(t)

	a, err := l.Sample("2021", 2, nil)
	require.NoError(t, err)
	b, err := l.Sample("2021", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Rows())
	assert.Equal(t, a.Column("COUNTRY").Values, b.Column("COUNTRY").Values)

	all, err := l.Sample("2021", 10, []string{"COUNTRY"})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Rows())
}

func TestColumnsAndInfo(t *testing.T) {
	l := testLoader(t)

	cols, err := l.Columns("")
	require.NoError(t, err)
	assert.Equal(t, []string{"COUNTRY", "EDU_LEVEL", "YEAR"}, cols)

	info, err := l.Info("2020")
	require.NoError(t, err)
	assert.Equal(t, 3, info.EstimatedRows)
	assert.Equal(t, 3, info.Columns)
	assert.Positive(t, info.Size)
	assert.NotEmpty(t, info.SizeHuman)
}
