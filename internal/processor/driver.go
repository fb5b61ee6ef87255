// =============================================================================
// OPT Observatory ETL - Pipeline Driver
// =============================================================================
//
// The driver distributes years across a fixed-size worker pool and collects
// one YearResult per year and stage.
//
// PROCESSING FLOW:
//   1. Derive the immutable Rules from the configuration (fatal on error)
//   2. Combine stage: one unit per raw year directory
//   3. Directory check: the combined files selected for cleaning must share
//      one FileStructure
//   4. Clean stage: one unit per combined file
//
// PARTIAL SUCCESS:
//   A failed year never stops the others. Results are stored by index, so the
//   report lists years in sorted order whatever the completion order.
//
// =============================================================================

package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/opt-observatory-etl/internal/config"
	"github.com/ginjaninja78/opt-observatory-etl/internal/logger"
	"github.com/ginjaninja78/opt-observatory-etl/internal/validation"
	"github.com/ginjaninja78/opt-observatory-etl/pkg/utils"
)

// ErrNoStage is returned by Run when neither stage is selected.
var ErrNoStage = errors.New("select at least one of combine or clean")

// Options selects what one run does.
type Options struct {
	// Combine and Clean select the stages. Combine runs first.
	Combine bool
	Clean   bool

	// Years restricts the run to these year labels. Empty means every year.
	Years []string

	// KeepCPT retains CPT records in the clean stage.
	KeepCPT bool

	// Workers overrides processing.max_workers when positive.
	Workers int
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Workers  int
	Options  Options

	// Combine and Clean hold one result per year, sorted by year.
	Combine []YearResult
	Clean   []YearResult

	// DirectoryCheck is the directory-level mismatch that failed the clean
	// stage, if any.
	DirectoryCheck error
}

// Results returns the combine results followed by the clean results.
func (r *Report) Results() []YearResult {
	out := make([]YearResult, 0, len(r.Combine)+len(r.Clean))
	out = append(out, r.Combine...)
	return append(out, r.Clean...)
}

// Failures returns every failed result.
func (r *Report) Failures() []YearResult {
	var out []YearResult
	for _, res := range r.Results() {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every year of every stage completed.
func (r *Report) OK() bool {
	return len(r.Failures()) == 0
}

// Duration returns the wall-clock duration of the run.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver runs the pipeline over the configured directories.
type Driver struct {
	cfg    *config.Config
	rules  *config.Rules
	files  *utils.FileManager
	logger *logger.Logger
}

// NewDriver derives the rule set and builds a Driver.
//
// RETURNS:
//   - A *config.ConfigurationError if the rules cannot be derived.
func NewDriver(cfg *config.Config, log *logger.Logger) (*Driver, error) {
	if log == nil {
		log = logger.Discard()
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, &config.ConfigurationError{Path: "rules", Err: err}
	}

	return &Driver{
		cfg:    cfg,
		rules:  rules,
		files:  utils.NewFileManager(cfg.Paths.RawDir, cfg.Paths.CombinedDir, cfg.Paths.CleanedDir, cfg.Paths.ReportDir),
		logger: log,
	}, nil
}

// Files returns the driver's file manager.
func (d *Driver) Files() *utils.FileManager {
	return d.files
}

// Rules returns the derived rule set.
func (d *Driver) Rules() *config.Rules {
	return d.rules
}

// Processor returns a Processor sharing the driver's rules.
func (d *Driver) Processor(keepCPT bool) *Processor {
	p := New(d.rules, d.cfg.CSVSettings, d.logger)
	p.KeepCPT = keepCPT
	return p
}

// EffectiveWorkers returns min(max, cpus-1), at least 1.
func EffectiveWorkers(max, cpus int) int {
	n := cpus - 1
	if max < n {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run executes the selected stages.
//
// RETURNS:
//   - The run report. Year failures are recorded in it and are not errors.
//   - An error only when the run cannot start.
func (d *Driver) Run(ctx context.Context, opts Options) (*Report, error) {
	if !opts.Combine && !opts.Clean {
		return nil, ErrNoStage
	}

	max := d.cfg.Processing.MaxWorkers
	if opts.Workers > 0 {
		max = opts.Workers
	}

	report := &Report{
		RunID:   uuid.New().String(),
		Started: time.Now(),
		Workers: EffectiveWorkers(max, runtime.NumCPU()),
		Options: opts,
	}
	log := d.logger.With(slog.String("run_id", report.RunID))

	if err := d.files.EnsureDirectories(); err != nil {
		return nil, err
	}

	p := d.Processor(opts.KeepCPT)
	failedCombine := make(map[string]bool)

	if opts.Combine {
		years, err := d.files.DiscoverYears()
		if err != nil {
			return nil, err
		}
		years = utils.FilterYears(years, opts.Years)
		log.Info("combine stage", slog.Int("years", len(years)), slog.Int("workers", report.Workers))

		report.Combine = runPool(ctx, report.Workers, years, StageCombine, func(ctx context.Context, year string) YearResult {
			files, err := d.files.DiscoverYearFiles(year)
			if err != nil {
				res := YearResult{Year: year, Stage: StageCombine, State: AwaitingFiles}
				return res.fail(err)
			}
			return p.CombineYear(ctx, year, files, d.files.CombinedPath(year))
		})

		for _, res := range report.Combine {
			if !res.OK() {
				failedCombine[res.Year] = true
				log.Error("combine failed", slog.String("year", res.Year),
					slog.String("state", res.FailedAt.String()), slog.Any("error", res.Err))
			}
		}
	}

	if opts.Clean {
		years, err := d.files.DiscoverCombinedYears()
		if err != nil {
			return nil, err
		}

		var selected []string
		for _, year := range utils.FilterYears(years, opts.Years) {
			if !failedCombine[year] {
				selected = append(selected, year)
			}
		}
		log.Info("clean stage", slog.Int("years", len(selected)), slog.Int("workers", report.Workers))

		paths := make([]string, len(selected))
		for i, year := range selected {
			paths[i] = d.files.CombinedPath(year)
		}

		if err := p.CheckConsistency(d.files.CombinedDir, paths); err != nil {
			report.DirectoryCheck = err
			log.Error("combined files disagree, clean stage skipped", slog.Any("error", err))
			for _, year := range selected {
				res := YearResult{Year: year, Stage: StageClean, State: ConsistencyChecked}
				report.Clean = append(report.Clean, res.fail(err))
			}
		} else {
			report.Clean = runPool(ctx, report.Workers, selected, StageClean, func(ctx context.Context, year string) YearResult {
				return p.CleanYear(ctx, year, d.files.CombinedPath(year), d.files.CleanedPath(year))
			})
		}

		for _, res := range report.Clean {
			if !res.OK() && report.DirectoryCheck == nil {
				log.Error("clean failed", slog.String("year", res.Year),
					slog.String("state", res.FailedAt.String()), slog.Any("error", res.Err))
			}
		}
	}

	report.Finished = time.Now()
	log.Info("run finished",
		slog.Int("failures", len(report.Failures())),
		slog.Duration("duration", report.Duration()))
	return report, nil
}

// CheckConsistency reconciles the header rows of files and validates them as
// one group named group. Unreadable files are left out of the check.
func (p *Processor) CheckConsistency(group string, files []string) error {
	_, structures, _ := p.reconcileHeaders(files)
	if len(structures) < 2 {
		return nil
	}
	return validation.ValidateConsistency(group, structures)
}

// CheckYears validates every raw year directory and returns the failures by
// year label. Nothing is written.
func (d *Driver) CheckYears(years []string) (map[string]error, error) {
	p := d.Processor(false)
	failures := make(map[string]error)

	for _, year := range years {
		files, err := d.files.DiscoverYearFiles(year)
		if err != nil {
			return nil, err
		}
		valid, structures, _ := p.reconcileHeaders(files)
		if len(valid) == 0 {
			failures[year] = fmt.Errorf("year %s: %w", year, ErrNoValidFiles)
			continue
		}
		if err := validation.ValidateConsistency(filepath.Join(d.files.RawDir, year), structures); err != nil {
			failures[year] = err
		}
	}

	return failures, nil
}

// =============================================================================
// WORKER POOL
// =============================================================================

// runPool runs fn once per year with at most workers running at once. A
// panicking unit yields a failed result.
func runPool(ctx context.Context, workers int, years []string, stage Stage, fn func(context.Context, string) YearResult) []YearResult {
	results := make([]YearResult, len(years))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, year := range years {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					res := YearResult{Year: year, Stage: stage}
					results[i] = res.fail(fmt.Errorf("year %s: panic: %v", year, r))
				}
			}()

			if err := ctx.Err(); err != nil {
				res := YearResult{Year: year, Stage: stage}
				results[i] = res.fail(err)
				return nil
			}
			results[i] = fn(ctx, year)
			return nil
		})
	}

	_ = g.Wait()
	return results
}
