// =============================================================================
// OPT Observatory ETL - Cleaned Data Loader
// =============================================================================
//
// This module gives analyses read access to the clean stage output,
// cleaned_dir/cleaned_<year>_all.csv.
//
// ACCESS PATTERNS:
//   - LoadYear: one year, optionally a column subset, a row limit and a row
//     filter
//   - LoadYears / LoadAll: several years concatenated in year order, loaded
//     in parallel when asked
//   - Chunks: a year in bounded chunks, for aggregations over large files
//   - Sample: a reproducible random sample of one year
//   - Columns / Info: header and file metadata without loading data
//
// =============================================================================

package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/csvparser"
	"github.com/ginjaninja78/opt-observatory-etl/internal/logger"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
	"github.com/ginjaninja78/opt-observatory-etl/pkg/utils"
)

// SampleSeed seeds Sample so that repeated samples are identical.
const SampleSeed = 42

// ErrNoYears is returned when the directory holds no cleaned files.
var ErrNoYears = errors.New("no cleaned years available")

// Options restricts what LoadYear returns.
type Options struct {
	// Columns selects a subset of columns, in the given order. Empty means
	// every column.
	Columns []string

	// Limit caps the number of rows read. Zero means no limit.
	Limit int

	// Filter keeps the rows for which it returns true. It runs after the
	// read and after the column subset.
	Filter func(t *types.Table, row int) bool
}

// YearInfo describes one cleaned file.
type YearInfo struct {
	Year string
	Path string

	// Size is the file size in bytes; SizeHuman is the same value for
	// display.
	Size      int64
	SizeHuman string

	// EstimatedRows is the line count minus the header line.
	EstimatedRows int

	Columns int
}

// Loader reads cleaned yearly files.
type Loader struct {
	dir      string
	settings config.CSVSettings
	years    []string
	files    *utils.FileManager
	logger   *logger.Logger
}

// New creates a Loader over dir and discovers its years.
//
// RETURNS:
//   - An error if dir does not exist or is not a directory.
func New(dir string, settings config.CSVSettings) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", dir)
	}

	files := utils.NewFileManager("", "", dir, "")
	found, err := files.DiscoverCleanedYears()
	if err != nil {
		return nil, err
	}

	var years []string
	for _, y := range found {
		if _, err := strconv.Atoi(y); err == nil {
			years = append(years, y)
		}
	}
	sort.Slice(years, func(i, j int) bool {
		a, _ := strconv.Atoi(years[i])
		b, _ := strconv.Atoi(years[j])
		return a < b
	})

	return &Loader{
		dir:      dir,
		settings: settings,
		years:    years,
		files:    files,
		logger:   logger.Discard(),
	}, nil
}

// WithLogger sets the logger used for load progress.
func (l *Loader) WithLogger(log *logger.Logger) *Loader {
	if log != nil {
		l.logger = log
	}
	return l
}

// Dir returns the data directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Years returns the available years in ascending order.
func (l *Loader) Years() []string {
	out := make([]string, len(l.years))
	copy(out, l.years)
	return out
}

// Latest returns the most recent available year.
func (l *Loader) Latest() (string, error) {
	if len(l.years) == 0 {
		return "", ErrNoYears
	}
	return l.years[len(l.years)-1], nil
}

// Path returns the cleaned file of a year.
func (l *Loader) Path(year string) (string, error) {
	path := l.files.CleanedPath(year)
	if !utils.FileExists(path) {
		return "", fmt.Errorf("no data file found for year %s (available years: %s)",
			year, strings.Join(l.years, ", "))
	}
	return path, nil
}

// =============================================================================
// LOADING
// =============================================================================

// LoadYear loads one year.
//
// PARAMETERS:
//   - year: The year label.
//   - opts: Column subset, row limit and row filter.
//
// RETURNS:
//   - The loaded table.
//   - An error if the year is unknown, the file cannot be read, or a
//     requested column does not exist.
func (l *Loader) LoadYear(year string, opts Options) (*types.Table, error) {
	path, err := l.Path(year)
	if err != nil {
		return nil, err
	}

	var table *types.Table
	if opts.Limit > 0 {
		table, err = l.readLimited(path, opts.Limit)
	} else {
		table, err = l.readAll(path)
	}
	if err != nil {
		return nil, err
	}

	if len(opts.Columns) > 0 {
		if table, err = table.Select(opts.Columns); err != nil {
			return nil, fmt.Errorf("year %s: %w", year, err)
		}
	}

	if opts.Filter != nil {
		t := table
		table = t.Filter(func(row int) bool { return opts.Filter(t, row) })
	}

	l.logger.Debug("loaded year", slog.String("year", year),
		slog.Int("rows", table.Rows()), slog.Int("columns", table.Width()))
	return table, nil
}

// LoadYears loads several years and concatenates them in the given order.
// With parallel set, years load concurrently with at most
// min(len(years), NumCPU) at once. Any failed year fails the call.
func (l *Loader) LoadYears(ctx context.Context, years []string, opts Options, parallel bool) (*types.Table, error) {
	tables := make([]*types.Table, len(years))

	if !parallel || len(years) < 2 {
		for i, year := range years {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			t, err := l.LoadYear(year, opts)
			if err != nil {
				return nil, err
			}
			tables[i] = t
		}
		return types.Concat(tables...), nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(years), runtime.NumCPU()))

	for i, year := range years {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := l.LoadYear(year, opts)
			if err != nil {
				return fmt.Errorf("failed to load year %s: %w", year, err)
			}
			tables[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := types.Concat(tables...)
	l.logger.Info("loaded years", slog.Int("years", len(years)), slog.String("rows", humanize.Comma(int64(out.Rows()))))
	return out, nil
}

// LoadAll loads every available year.
func (l *Loader) LoadAll(ctx context.Context, opts Options, parallel bool) (*types.Table, error) {
	if len(l.years) == 0 {
		return nil, ErrNoYears
	}
	return l.LoadYears(ctx, l.years, opts, parallel)
}

// Chunks streams a year to fn in tables of at most size rows. Iteration stops
// at the first error fn returns.
func (l *Loader) Chunks(year string, size int, columns []string, fn func(*types.Table) error) error {
	path, err := l.Path(year)
	if err != nil {
		return err
	}

	parser, err := csvparser.NewStreamingParser(path, l.settings)
	if err != nil {
		return err
	}
	defer parser.Close()

	for {
		chunk, err := parser.Chunk(size)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("year %s: %w", year, err)
		}

		if len(columns) > 0 {
			if chunk, err = chunk.Select(columns); err != nil {
				return fmt.Errorf("year %s: %w", year, err)
			}
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}

// Sample returns n rows of a year chosen at random with a fixed seed, or the
// whole year when it has n rows or fewer.
func (l *Loader) Sample(year string, n int, columns []string) (*types.Table, error) {
	table, err := l.LoadYear(year, Options{Columns: columns})
	if err != nil {
		return nil, err
	}
	if n >= table.Rows() {
		return table, nil
	}

	rng := rand.New(rand.NewSource(SampleSeed))
	return table.Take(rng.Perm(table.Rows())[:n]), nil
}

// =============================================================================
// METADATA
// =============================================================================

// Columns returns the header of a year. An empty year means the most recent.
func (l *Loader) Columns(year string) ([]string, error) {
	if year == "" {
		latest, err := l.Latest()
		if err != nil {
			return nil, err
		}
		year = latest
	}

	path, err := l.Path(year)
	if err != nil {
		return nil, err
	}
	return csvparser.ReadHeader(path, l.settings)
}

// Info describes the file of a year without loading its data.
func (l *Loader) Info(year string) (YearInfo, error) {
	path, err := l.Path(year)
	if err != nil {
		return YearInfo{}, err
	}

	size, err := utils.GetFileSize(path)
	if err != nil {
		return YearInfo{}, err
	}

	lines, err := countLines(path)
	if err != nil {
		return YearInfo{}, err
	}

	headers, err := l.Columns(year)
	if err != nil {
		return YearInfo{}, err
	}

	rows := lines - 1
	if rows < 0 {
		rows = 0
	}

	return YearInfo{
		Year:          year,
		Path:          path,
		Size:          size,
		SizeHuman:     humanize.Bytes(uint64(size)),
		EstimatedRows: rows,
		Columns:       len(headers),
	}, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (l *Loader) readAll(path string) (*types.Table, error) {
	raw, err := csvparser.Parse(path, l.settings)
	if err != nil {
		return nil, err
	}
	return types.NewTable(raw.Columns...)
}

func (l *Loader) readLimited(path string, limit int) (*types.Table, error) {
	parser, err := csvparser.NewStreamingParser(path, l.settings)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	table, err := parser.Chunk(limit)
	if err == io.EOF {
		cols := make([]*types.Column, len(parser.Headers()))
		for i, h := range parser.Headers() {
			cols[i] = types.NewColumn(h, h, types.KindText, nil, nil)
		}
		return types.NewTable(cols...)
	}
	return table, err
}

// countLines counts newline-terminated lines, plus a final unterminated one.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	count := 0
	var last byte = '\n'

	for {
		n, err := f.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if last != '\n' {
		count++
	}
	return count, nil
}
