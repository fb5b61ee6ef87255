package cleaner

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/types"
)

// ISODate is the layout every parsed date is written in.
const ISODate = "2006-01-02"

// maxFailedExamples caps the unparseable values kept per column.
const maxFailedExamples = 5

// timeSuffix matches a trailing time of day with optional fraction, meridiem
// and zone: " 00:00:00", "T13:45:10.5Z", " 9:30 PM EST", " 12:00:00+05:30".
var timeSuffix = regexp.MustCompile(`(?i)(?:T|\s+)\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:\s*[ap]\.?m\.?)?(?:\s*(?:Z|UTC|GMT|[+-]\d{2}:?\d{2}|[A-Z]{3,4}))?\s*$`)

// Cutoff bounds a date column. Dates before Historic or after Future are
// nullified.
type Cutoff struct {
	Historic time.Time
	Future   time.Time
}

// DateStats summarizes parsing of one date column.
type DateStats struct {
	// Column is the canonical column name.
	Column string

	// Present is the number of non-missing input values.
	Present int

	// Parsed is the number of present values that matched a format.
	Parsed int

	// Failed is Present - Parsed. Failed values become missing.
	Failed int

	// FailedExamples holds up to five distinct unparseable values.
	FailedExamples []string

	// FutureNullified and HistoricNullified count parsed dates removed by the
	// cutoff window, one count per bound.
	FutureNullified   int
	HistoricNullified int
}

// SuccessRate is Parsed / Present, or 1 for a column with no present values.
func (s DateStats) SuccessRate() float64 {
	if s.Present == 0 {
		return 1
	}
	return float64(s.Parsed) / float64(s.Present)
}

// Degradation returns the degradation record for the column when its
// success rate is below threshold.
func (s DateStats) Degradation(threshold float64) (DateParseDegradation, bool) {
	rate := s.SuccessRate()
	if rate >= threshold {
		return DateParseDegradation{}, false
	}
	return DateParseDegradation{
		Column:      s.Column,
		SuccessRate: rate,
		Threshold:   threshold,
		Failed:      s.Failed,
		Examples:    s.FailedExamples,
	}, true
}

// DateParseDegradation records a date column whose parse success rate fell
// below the configured threshold. It is reported, never fatal.
type DateParseDegradation struct {
	Column      string
	SuccessRate float64
	Threshold   float64
	Failed      int
	Examples    []string
}

// String formats the record for logs.
func (d DateParseDegradation) String() string {
	return fmt.Sprintf("%s: %.2f%% parsed (threshold %.2f%%), %d failed, e.g. %s",
		d.Column, d.SuccessRate*100, d.Threshold*100, d.Failed, strings.Join(d.Examples, ", "))
}

// ParseDates parses every present value against layouts in order and writes
// the first match as an ISO date. Unparseable values become missing. When
// cutoff is non-nil, parsed dates outside its window also become missing.
func ParseDates(col *types.Column, layouts []string, cutoff *Cutoff) (*types.Column, DateStats) {
	stats := DateStats{Column: col.Name}
	values := make([]string, col.Len())
	null := make([]bool, col.Len())
	seenFailure := make(map[string]bool)

	for i := 0; i < col.Len(); i++ {
		if col.Null[i] {
			null[i] = true
			continue
		}
		stats.Present++

		d, ok := ParseDate(col.Values[i], layouts)
		if !ok {
			null[i] = true
			stats.Failed++
			if v := col.Values[i]; !seenFailure[v] && len(stats.FailedExamples) < maxFailedExamples {
				seenFailure[v] = true
				stats.FailedExamples = append(stats.FailedExamples, v)
			}
			continue
		}
		stats.Parsed++

		if cutoff != nil {
			if d.After(cutoff.Future) {
				null[i] = true
				stats.FutureNullified++
				continue
			}
			if d.Before(cutoff.Historic) {
				null[i] = true
				stats.HistoricNullified++
				continue
			}
		}

		values[i] = d.Format(ISODate)
	}

	return col.WithData(values, null), stats
}

// ParseDate strips a trailing time of day and zone from s and tries each
// layout in order. The first layout that parses wins.
func ParseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(timeSuffix.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
