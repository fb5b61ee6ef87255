// =============================================================================
// OPT Observatory ETL - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the pipeline, including:
//   - Year directory and source file discovery
//   - Output file naming for the combined and cleaned stages
//   - Year filter parsing
//   - Directory management
//
// DIRECTORY LAYOUT:
//   raw_dir/2019/part1.csv         <-- one subdirectory per fiscal year
//   raw_dir/2019/part2.csv
//   combined_dir/2019_all.csv      <-- combine stage output
//   cleaned_dir/cleaned_2019_all.csv
//   report_dir/run_<timestamp>_<id>.xlsx
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceExtensions are the file extensions read from a raw year directory.
var SourceExtensions = []string{".csv", ".txt", ".tsv", ".xlsx"}

const (
	combinedSuffix = "_all.csv"
	cleanedPrefix  = "cleaned_"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the pipeline.
type FileManager struct {
	// RawDir holds one subdirectory per fiscal year.
	RawDir string

	// CombinedDir receives the combine stage output.
	CombinedDir string

	// CleanedDir receives the clean stage output.
	CleanedDir string

	// ReportDir receives run reports.
	ReportDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(rawDir, combinedDir, cleanedDir, reportDir string) *FileManager {
	return &FileManager{
		RawDir:      rawDir,
		CombinedDir: combinedDir,
		CleanedDir:  cleanedDir,
		ReportDir:   reportDir,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the output directories if they don't exist.
//
// RETURNS:
//   - An error if any directory cannot be created.
func (fm *FileManager) EnsureDirectories() error {
	dirs := []string{
		fm.CombinedDir,
		fm.CleanedDir,
		fm.ReportDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverYears lists the year subdirectories of RawDir, sorted.
//
// RETURNS:
//   - The year labels (subdirectory names).
//   - An error if RawDir cannot be read.
func (fm *FileManager) DiscoverYears() ([]string, error) {
	entries, err := os.ReadDir(fm.RawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan raw directory: %w", err)
	}

	var years []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			years = append(years, entry.Name())
		}
	}

	sort.Strings(years)
	return years, nil
}

// DiscoverYearFiles lists the source files of one year, sorted by name.
// Rows of a year are combined in this order.
func (fm *FileManager) DiscoverYearFiles(year string) ([]string, error) {
	return ListSourceFiles(filepath.Join(fm.RawDir, year))
}

// ListSourceFiles lists the delimited files directly inside dir, sorted by
// name. Hidden files are ignored.
func ListSourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if isSourceFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// DiscoverCombinedYears lists the years with a combined file, sorted.
func (fm *FileManager) DiscoverCombinedYears() ([]string, error) {
	return discoverOutputYears(fm.CombinedDir, YearFromCombined)
}

// DiscoverCleanedYears lists the years with a cleaned file, sorted.
func (fm *FileManager) DiscoverCleanedYears() ([]string, error) {
	return discoverOutputYears(fm.CleanedDir, YearFromCleaned)
}

func discoverOutputYears(dir string, parse func(string) (string, bool)) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan output directory: %w", err)
	}

	var years []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if year, ok := parse(entry.Name()); ok {
			years = append(years, year)
		}
	}

	sort.Strings(years)
	return years, nil
}

func isSourceFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range SourceExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE NAMING
// =============================================================================

// CombinedPath returns combined_dir/<year>_all.csv.
func (fm *FileManager) CombinedPath(year string) string {
	return filepath.Join(fm.CombinedDir, CombinedFileName(year))
}

// CleanedPath returns cleaned_dir/cleaned_<year>_all.csv.
func (fm *FileManager) CleanedPath(year string) string {
	return filepath.Join(fm.CleanedDir, CleanedFileName(year))
}

// CombinedFileName returns <year>_all.csv.
func CombinedFileName(year string) string {
	return year + combinedSuffix
}

// CleanedFileName returns cleaned_<year>_all.csv.
func CleanedFileName(year string) string {
	return cleanedPrefix + year + combinedSuffix
}

// YearFromCombined extracts the year from a combined file name.
func YearFromCombined(name string) (string, bool) {
	if strings.HasPrefix(name, cleanedPrefix) || !strings.HasSuffix(name, combinedSuffix) {
		return "", false
	}
	year := strings.TrimSuffix(name, combinedSuffix)
	return year, year != ""
}

// YearFromCleaned extracts the year from a cleaned file name.
func YearFromCleaned(name string) (string, bool) {
	if !strings.HasPrefix(name, cleanedPrefix) || !strings.HasSuffix(name, combinedSuffix) {
		return "", false
	}
	year := strings.TrimSuffix(strings.TrimPrefix(name, cleanedPrefix), combinedSuffix)
	return year, year != ""
}

// GenerateOutputFileName generates a file name from a format string.
//
// SUPPORTED PLACEHOLDERS:
//   - {uuid}: A random UUID
//   - {id}: The first eight characters of a random UUID
//   - {timestamp}: The current timestamp (YYYYMMDD_HHMMSS)
//   - {date}: The current date (YYYYMMDD)
//   - {time}: The current time (HHMMSS)
//   - Any key of params
//
// EXAMPLE:
//   format: "run_{timestamp}_{id}.xlsx"
//   output: "run_20240115_143022_a1b2c3d4.xlsx"
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()
	id := uuid.New().String()

	replacements := map[string]string{
		"{uuid}":      id,
		"{id}":        id[:8],
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// =============================================================================
// YEAR FILTERS
// =============================================================================

// ParseYearFilter parses a comma-separated list of year labels. Numeric
// ranges such as "2015-2018" expand to every year in the range.
//
// EXAMPLE:
//   "2019,2015-2017" -> ["2015", "2016", "2017", "2019"]
func ParseYearFilter(s string) ([]string, error) {
	seen := make(map[string]bool)
	var years []string

	add := func(y string) {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			add(part)
			continue
		}

		from, err1 := strconv.Atoi(strings.TrimSpace(lo))
		to, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil || from > to {
			return nil, fmt.Errorf("invalid year range %q", part)
		}
		for y := from; y <= to; y++ {
			add(strconv.Itoa(y))
		}
	}

	sort.Strings(years)
	return years, nil
}

// FilterYears returns the years present in the filter, in input order. An
// empty filter keeps every year.
func FilterYears(years, filter []string) []string {
	if len(filter) == 0 {
		return years
	}

	keep := make(map[string]bool, len(filter))
	for _, y := range filter {
		keep[y] = true
	}

	var out []string
	for _, y := range years {
		if keep[y] {
			out = append(out, y)
		}
	}
	return out
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
