package csvwriter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

func sample() *types.Table {
	return types.MustTable(
		types.NewColumn("COUNTRY", "Country", types.KindText, []string{"india", ""}, []bool{false, true}),
		types.NewColumn("EMPLOYER_ZIP", "Employer Zip", types.KindZip, []string{"02134", "a,b"}, nil),
	)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), DefaultWriteOptions()))

	assert.Equal(t, "COUNTRY,EMPLOYER_ZIP\nindia,02134\n,\"a,b\"\n", buf.String())
}

func TestWrite_Delimiter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), WriteOptions{Delimiter: '|'}))

	assert.Equal(t, "COUNTRY|EMPLOYER_ZIP\nindia|02134\n|a,b\n", buf.String())
}

func TestWriteFile_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined", "2020_all.csv")

	n, err := WriteFile(path, sample(), DefaultWriteOptions())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Contains(t, string(data), "india,02134")
}

func TestWrite_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, types.MustTable(), DefaultWriteOptions()))
	assert.Equal(t, "\n", buf.String())
}
