package processor

import (
	"errors"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/cleaner"
	"github.com/ginjaninja78/opt-observatory-etl/internal/dedupe"
)

// ErrNoValidFiles is returned when every source file of a year was skipped.
var ErrNoValidFiles = errors.New("no valid source files")

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is a step of the per-year state machine.
//
//   AwaitingFiles -> HeadersReconciled -> ConsistencyChecked -> Combined
//     -> (Cleaned) -> Written -> Done
//
// Failed is reachable from ConsistencyChecked or from any I/O step.
type State int

const (
	AwaitingFiles State = iota
	HeadersReconciled
	ConsistencyChecked
	Combined
	Cleaned
	Written
	Done
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case AwaitingFiles:
		return "awaiting-files"
	case HeadersReconciled:
		return "headers-reconciled"
	case ConsistencyChecked:
		return "consistency-checked"
	case Combined:
		return "combined"
	case Cleaned:
		return "cleaned"
	case Written:
		return "written"
	case Done:
		return "done"
	default:
		return "failed"
	}
}

// Stage identifies one of the two pipeline stages.
type Stage int

const (
	// StageCombine concatenates a year's raw files.
	StageCombine Stage = iota

	// StageClean cleans a year's combined file.
	StageClean
)

// String returns the stage name.
func (s Stage) String() string {
	if s == StageClean {
		return "clean"
	}
	return "combine"
}

// =============================================================================
// RESULTS
// =============================================================================

// FileSkip records a source file that was excluded from a year.
type FileSkip struct {
	Path   string
	Reason string
}

// ColumnDecision records how one duplicate-column group of one file was
// resolved.
type ColumnDecision struct {
	File      string
	Name      string
	Decision  dedupe.Decision
	Kept      []string
	Discarded []string
}

// ReviewItem is a pair of columns flagged for manual review.
type ReviewItem struct {
	File string
	dedupe.ReviewPair
}

// YearStats holds the statistics of one year in one stage.
type YearStats struct {
	// FilesCombined and FilesSkipped describe the combine inputs.
	FilesCombined int
	FilesSkipped  []FileSkip

	// InitialRows is the row count entering the stage.
	InitialRows int

	// DuplicateRowsRemoved and CPTRowsRemoved are the rows dropped by the
	// clean stage.
	DuplicateRowsRemoved int
	CPTRowsRemoved       int

	// FutureDatesNullified and HistoricDatesNullified total the cutoff
	// nullifications of the designated date column.
	FutureDatesNullified   int
	HistoricDatesNullified int

	// ZipsPadded is the number of ZIP codes given leading zeros.
	ZipsPadded int

	// FinalRows and FinalColumns describe the output table.
	FinalRows    int
	FinalColumns int

	// Columns holds one entry per cleaner applied.
	Columns []cleaner.ColumnStats

	// Dates holds the parse statistics of every date column.
	Dates []cleaner.DateStats

	// Degraded lists the date columns below the success threshold.
	Degraded []cleaner.DateParseDegradation

	// Decisions and Review describe duplicate-column resolution.
	Decisions []ColumnDecision
	Review    []ReviewItem
}

// YearResult is the outcome of one year in one stage. A failed year carries
// Err, State Failed, and in FailedAt the last state it reached.
type YearResult struct {
	Year       string
	Stage      Stage
	State      State
	FailedAt   State
	OutputPath string
	BytesOut   int64
	Stats      YearStats
	Err        error
	Duration   time.Duration
}

// OK reports whether the year completed.
func (r YearResult) OK() bool {
	return r.Err == nil
}

// fail marks the result failed with err.
func (r *YearResult) fail(err error) YearResult {
	r.Err = err
	r.FailedAt = r.State
	r.State = Failed
	return *r
}
