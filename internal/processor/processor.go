// =============================================================================
// OPT Observatory ETL - Year Processor
// =============================================================================
//
// This module contains the per-year pipeline. It orchestrates, for one fiscal
// year, everything from the raw source files to one output file.
//
// COMBINE STAGE (CombineYear):
//   1. Read the header row of every source file, in file-name order
//   2. Reconcile each header row to a FileStructure (exclusions applied)
//   3. Validate that every structure is identical
//   4. Load each file, resolving duplicate columns on the loaded data
//   5. Concatenate the files row-wise and append the year tag
//   6. Write combined_dir/<year>_all.csv
//
// CLEAN STAGE (CleanYear):
//   1. Load the combined file (exclusions applied again)
//   2. Normalize text, expand states, pad ZIP codes, parse dates
//   3. Drop exact duplicate rows
//   4. Drop CPT records unless they are retained
//   5. Ensure the year tag column
//   6. Write cleaned_dir/cleaned_<year>_all.csv
//
// FAILURE ISOLATION:
//   Every failure is returned in the YearResult. A Processor holds only
//   immutable configuration, so one Processor serves any number of
//   concurrent years.
//
// =============================================================================

package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/cleaner"
	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/csvparser"
	"github.com/ginjaninja78/opt-observatory-etl/internal/csvwriter"
	"github.com/ginjaninja78/opt-observatory-etl/internal/dedupe"
	"github.com/ginjaninja78/opt-observatory-etl/internal/logger"
	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
	"github.com/ginjaninja78/opt-observatory-etl/internal/validation"
	"github.com/ginjaninja78/opt-observatory-etl/internal/xlsxparser"
)

// =============================================================================
// PROCESSOR STRUCTURE
// =============================================================================

// Processor runs the per-year stages.
type Processor struct {
	rules    *config.Rules
	settings config.CSVSettings
	resolver *dedupe.Resolver
	logger   *logger.Logger

	// KeepCPT retains CPT records in the clean stage.
	KeepCPT bool
}

// New creates a Processor.
//
// PARAMETERS:
//   - rules: The immutable rule set derived from the configuration.
//   - settings: The CSV settings used to read every input file.
//   - log: The logger. A nil logger discards output.
func New(rules *config.Rules, settings config.CSVSettings, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{
		rules:    rules,
		settings: settings,
		resolver: dedupe.NewResolver(rules.SimilarityThreshold),
		logger:   log,
	}
}

// =============================================================================
// FILE LOADING
// =============================================================================

// loadedFile is one file reduced to a Table of canonical columns.
type loadedFile struct {
	structure schema.FileStructure
	table     *types.Table
	decisions []ColumnDecision
	review    []ReviewItem
}

// loadFile parses a file, reconciles its headers, resolves every duplicate
// group and tags each surviving column with its semantic kind.
func (p *Processor) loadFile(path string) (*loadedFile, error) {
	raw, err := p.parse(path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	fs := schema.Reconcile(source, raw.Headers, p.rules.Exclusions)
	out := &loadedFile{structure: fs}

	// Canonical names are reserved so that no set-aside column can take one.
	taken := make(map[string]bool, len(fs.Fields))
	for _, field := range fs.Fields {
		taken[field] = true
	}

	columns := make([]*types.Column, 0, len(fs.Fields))
	for i, field := range fs.Fields {
		kind := schema.KindOf(field, p.rules.DateColumns, p.rules.ZipColumns)

		group := make([]*types.Column, len(fs.Groups[i]))
		for j, pos := range fs.Groups[i] {
			group[j] = raw.Columns[pos].Renamed(field).WithKind(kind)
		}

		res := p.resolver.Resolve(group)
		for _, col := range res.Kept {
			if col.Name != field {
				name := col.Name
				for n := 2; taken[name]; n++ {
					name = fmt.Sprintf("%s_%d", col.Name, n)
				}
				taken[name] = true
				col = col.Renamed(name)
			}
			columns = append(columns, col)
		}

		if len(group) < 2 {
			continue
		}

		decision := ColumnDecision{File: source, Name: field, Decision: res.Decision, Discarded: res.Discarded}
		for _, col := range res.Kept {
			decision.Kept = append(decision.Kept, col.Source)
		}
		out.decisions = append(out.decisions, decision)

		for _, pair := range res.Review {
			out.review = append(out.review, ReviewItem{File: source, ReviewPair: pair})
			p.logger.Warn("columns too different to merge, both kept",
				slog.String("file", source),
				slog.String("column", pair.Name),
				slog.String("candidate", pair.Candidate),
				slog.String("member", pair.Member),
				slog.Float64("similarity", pair.Similarity))
		}
	}

	if len(columns) == 0 {
		out.table = types.EmptyTable(raw.Rows)
		return out, nil
	}

	table, err := types.NewTable(columns...)
	if err != nil {
		return nil, fmt.Errorf("failed to build table for %s: %w", source, err)
	}
	out.table = table
	return out, nil
}

// parse reads a source file in the format its extension names.
func (p *Processor) parse(path string) (*csvparser.RawFile, error) {
	if xlsxparser.IsWorkbook(path) {
		return xlsxparser.Parse(path, p.settings)
	}
	return csvparser.Parse(path, p.settings)
}

func (p *Processor) readHeader(path string) ([]string, error) {
	if xlsxparser.IsWorkbook(path) {
		return xlsxparser.ReadHeader(path, p.settings)
	}
	return csvparser.ReadHeader(path, p.settings)
}

// reconcileHeaders reads and reconciles the header row of every file.
// Unreadable files are returned as skips.
func (p *Processor) reconcileHeaders(files []string) ([]string, []schema.FileStructure, []FileSkip) {
	var valid []string
	var structures []schema.FileStructure
	var skipped []FileSkip

	for _, path := range files {
		headers, err := p.readHeader(path)
		if err != nil {
			skipped = append(skipped, FileSkip{Path: path, Reason: err.Error()})
			p.logger.Warn("skipping unreadable file", slog.String("file", path), slog.Any("error", err))
			continue
		}
		valid = append(valid, path)
		structures = append(structures, schema.Reconcile(filepath.Base(path), headers, p.rules.Exclusions))
	}

	return valid, structures, skipped
}

// =============================================================================
// COMBINE STAGE
// =============================================================================

// Combine reconciles, validates and concatenates one year's source files and
// appends the year tag. Nothing is written.
//
// PARAMETERS:
//   - ctx: Checked between files.
//   - year: The year label.
//   - files: The source files, in combine order.
//
// RETURNS:
//   - The combined table, or nil on failure.
//   - The YearResult for the combine stage.
func (p *Processor) Combine(ctx context.Context, year string, files []string) (table *types.Table, result YearResult) {
	start := time.Now()
	result = YearResult{Year: year, Stage: StageCombine, State: AwaitingFiles}
	log := p.logger.Year(year)
	defer func() { result.Duration = time.Since(start) }()

	valid, structures, skipped := p.reconcileHeaders(files)
	result.Stats.FilesSkipped = skipped
	if len(valid) == 0 {
		return nil, result.fail(fmt.Errorf("year %s: %w (%d file(s) found)", year, ErrNoValidFiles, len(files)))
	}
	result.State = HeadersReconciled

	if err := validation.ValidateConsistency(year, structures); err != nil {
		var mismatch *validation.SchemaMismatchError
		if errors.As(err, &mismatch) {
			log.Error("schema mismatch", slog.String("detail", mismatch.Detail()))
		}
		result.State = ConsistencyChecked
		return nil, result.fail(err)
	}
	result.State = ConsistencyChecked
	log.Debug("headers consistent", slog.Int("files", len(valid)), slog.Int("columns", structures[0].Len()))

	tables := make([]*types.Table, 0, len(valid))
	for _, path := range valid {
		if err := ctx.Err(); err != nil {
			return nil, result.fail(err)
		}

		loaded, err := p.loadFile(path)
		if err != nil {
			var unreadable *csvparser.UnreadableFileError
			if errors.As(err, &unreadable) {
				result.Stats.FilesSkipped = append(result.Stats.FilesSkipped, FileSkip{Path: path, Reason: err.Error()})
				log.Warn("skipping unreadable file", slog.String("file", path), slog.Any("error", err))
				continue
			}
			return nil, result.fail(err)
		}

		result.Stats.Decisions = append(result.Stats.Decisions, loaded.decisions...)
		result.Stats.Review = append(result.Stats.Review, loaded.review...)
		tables = append(tables, loaded.table)
		log.Debug("loaded file", slog.String("file", path), slog.Int("rows", loaded.table.Rows()))
	}

	if len(tables) == 0 {
		return nil, result.fail(fmt.Errorf("year %s: %w", year, ErrNoValidFiles))
	}
	result.Stats.FilesCombined = len(tables)

	combined := types.Concat(tables...)
	result.Stats.InitialRows = combined.Rows()

	combined, err := withYear(combined, p.rules.YearColumn, year, true)
	if err != nil {
		return nil, result.fail(err)
	}

	result.State = Combined
	result.Stats.FinalRows = combined.Rows()
	result.Stats.FinalColumns = combined.Width()
	return combined, result
}

// CombineYear runs Combine and writes the combined file to outputPath.
func (p *Processor) CombineYear(ctx context.Context, year string, files []string, outputPath string) YearResult {
	start := time.Now()
	table, result := p.Combine(ctx, year, files)
	if result.Err != nil {
		return result
	}

	result = p.write(table, result, outputPath)
	result.Duration = time.Since(start)
	if result.OK() {
		result.State = Done
		p.logger.Year(year).Info("combined year",
			slog.Int("files", result.Stats.FilesCombined),
			slog.Int("rows", result.Stats.FinalRows),
			slog.String("output", outputPath))
	}
	return result
}

// =============================================================================
// CLEAN STAGE
// =============================================================================

// Clean applies the field cleaners and row filters to a combined table.
// Nothing is read or written.
func (p *Processor) Clean(ctx context.Context, year string, table *types.Table) (_ *types.Table, result YearResult) {
	start := time.Now()
	result = YearResult{Year: year, Stage: StageClean, State: Combined}
	log := p.logger.Year(year)
	defer func() { result.Duration = time.Since(start) }()

	result.Stats.InitialRows = table.Rows()

	var err error

	// Field cleaners, one column at a time.
	for _, col := range table.Columns() {
		if err := ctx.Err(); err != nil {
			return nil, result.fail(err)
		}

		for _, kind := range cleaner.KindsFor(col, p.rules) {
			cleaned, stats := cleaner.CleanColumn(table.Column(col.Name), kind, p.rules)
			if table, err = table.Replace(cleaned); err != nil {
				return nil, result.fail(err)
			}
			result.Stats.Columns = append(result.Stats.Columns, stats)

			if stats.Dates == nil {
				continue
			}
			ds := *stats.Dates
			result.Stats.Dates = append(result.Stats.Dates, ds)
			result.Stats.FutureDatesNullified += ds.FutureNullified
			result.Stats.HistoricDatesNullified += ds.HistoricNullified
			if d, degraded := ds.Degradation(p.rules.DateSuccessThreshold); degraded {
				result.Stats.Degraded = append(result.Stats.Degraded, d)
				log.Warn("date parsing degraded", slog.String("column", d.Column),
					slog.Float64("success_rate", d.SuccessRate), slog.Any("examples", d.Examples))
			}
		}
	}

	// ZIP padding reads the expanded state column.
	for _, pair := range p.rules.ZipPairs {
		zip, state := table.Column(pair.Zip), table.Column(pair.State)
		if zip == nil || state == nil {
			continue
		}
		padded, n := cleaner.PadZips(zip, state, p.rules.ZipFixStates)
		if table, err = table.Replace(padded); err != nil {
			return nil, result.fail(err)
		}
		result.Stats.ZipsPadded += n
	}

	// Row filters.
	var removed int
	table, removed = DropDuplicateRows(table)
	result.Stats.DuplicateRowsRemoved = removed

	if !p.KeepCPT {
		table, removed = DropCPT(table, p.rules.CPTColumn, p.rules.CPTMarker)
		result.Stats.CPTRowsRemoved = removed
	}

	if table, err = withYear(table, p.rules.YearColumn, year, false); err != nil {
		return nil, result.fail(err)
	}

	result.State = Cleaned
	result.Stats.FinalRows = table.Rows()
	result.Stats.FinalColumns = table.Width()
	return table, result
}

// CleanYear reads a combined file, runs Clean and writes the cleaned file to
// outputPath.
func (p *Processor) CleanYear(ctx context.Context, year, inputPath, outputPath string) YearResult {
	start := time.Now()
	log := p.logger.Year(year)

	loaded, err := p.loadFile(inputPath)
	if err != nil {
		result := YearResult{Year: year, Stage: StageClean, State: AwaitingFiles, Duration: time.Since(start)}
		return result.fail(fmt.Errorf("failed to load combined file: %w", err))
	}

	table, result := p.Clean(ctx, year, loaded.table)
	result.Stats.FilesCombined = 1
	result.Stats.Decisions = loaded.decisions
	result.Stats.Review = loaded.review
	if result.Err != nil {
		return result
	}

	result = p.write(table, result, outputPath)
	result.Duration = time.Since(start)
	if result.OK() {
		result.State = Done
		log.Info("cleaned year",
			slog.Int("initial_rows", result.Stats.InitialRows),
			slog.Int("duplicates_removed", result.Stats.DuplicateRowsRemoved),
			slog.Int("cpt_removed", result.Stats.CPTRowsRemoved),
			slog.Int("future_nullified", result.Stats.FutureDatesNullified),
			slog.Int("historic_nullified", result.Stats.HistoricDatesNullified),
			slog.String("output", outputPath))
	}
	return result
}

// =============================================================================
// BOTH STAGES
// =============================================================================

// ProcessYear runs Combine then Clean in memory. It returns the cleaned table
// and the clean-stage result, whose statistics include the combine inputs.
func (p *Processor) ProcessYear(ctx context.Context, year string, files []string) (*types.Table, YearResult) {
	combined, result := p.Combine(ctx, year, files)
	if result.Err != nil {
		return nil, result
	}

	cleaned, cleanResult := p.Clean(ctx, year, combined)
	cleanResult.Stats.FilesCombined = result.Stats.FilesCombined
	cleanResult.Stats.FilesSkipped = result.Stats.FilesSkipped
	cleanResult.Stats.Decisions = result.Stats.Decisions
	cleanResult.Stats.Review = result.Stats.Review
	cleanResult.Duration += result.Duration
	return cleaned, cleanResult
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// write writes the table and advances the result to Written.
func (p *Processor) write(table *types.Table, result YearResult, outputPath string) YearResult {
	n, err := csvwriter.WriteFile(outputPath, table, csvwriter.DefaultWriteOptions())
	if err != nil {
		return result.fail(err)
	}

	result.OutputPath = outputPath
	result.BytesOut = n
	result.State = Written
	return result
}

// withYear sets the year tag column. With overwrite false an existing year
// column is left as it is.
func withYear(t *types.Table, name, year string, overwrite bool) (*types.Table, error) {
	if !overwrite && t.Column(name) != nil {
		return t, nil
	}

	values := make([]string, t.Rows())
	for i := range values {
		values[i] = year
	}
	return t.Replace(types.NewColumn(name, name, types.KindText, values, nil))
}

// isCPT reports whether a value is the CPT marker.
func isCPT(value, marker string) bool {
	return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(marker))
}
