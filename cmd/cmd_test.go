package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, "raw")

	for year, body := range map[string]string{
		"2019": "Country,Employer City\nIndia,Boston\n",
		"2020": "Country,Employer_City\nChina,Newark\n",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(raw, year), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(raw, year, "part1.csv"), []byte(body), 0o644))
	}

	doc := fmt.Sprintf(`
paths:
  raw_dir: %q
  combined_dir: %q
  cleaned_dir: %q
  report_dir: %q
text_cleaning_columns: [Country]
date_cutoffs:
  future_cutoff: "2030-12-31"
  historic_cutoff: "1990-01-01"
`, raw, filepath.Join(root, "combined"), filepath.Join(root, "cleaned"), filepath.Join(root, "reports"))

	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path, root
}

func TestRunCommand(t *testing.T) {
	cfg, root := writeTestConfig(t)

	out, err := execute(t, "run", "--combine", "--clean", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Report:")

	data, err := os.ReadFile(filepath.Join(root, "cleaned", "cleaned_2020_all.csv"))
	require.NoError(t, err)
	assert.Equal(t, "COUNTRY,EMPLOYER_CITY,YEAR\nchina,Newark,2020\n", string(data))

	reports, err := filepath.Glob(filepath.Join(root, "reports", "run_*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	out, err = execute(t, "validate", "--config", cfg, "--dir", filepath.Join(root, "cleaned"))
	require.NoError(t, err)
	assert.Contains(t, out, "All headers consistent.")

	out, err = execute(t, "inspect", "years", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "2019\n2020\n", out)
}

func TestRunCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--combine", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "OPT Observatory ETL")
}
