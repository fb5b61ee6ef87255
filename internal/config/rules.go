package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ginjaninja78/opt-observatory-etl/internal/schema"
)

const isoDate = "2006-01-02"

// ZipStatePair names a ZIP column and the state column that governs it.
type ZipStatePair struct {
	Zip   string
	State string
}

// Rules is the immutable rule set derived from a Config. It is built once,
// before any year is processed, and shared read-only by every worker.
type Rules struct {
	// Exclusions matches any spelling of an excluded column.
	Exclusions *schema.ExclusionSet

	// StateNames maps a lower-case abbreviation to its full state name.
	StateNames map[string]string

	// StateSuffix identifies state columns by canonical-name suffix.
	StateSuffix string

	// ZipFixStates holds lower-case state names whose ZIPs need padding.
	ZipFixStates map[string]struct{}

	// ZipPairs pairs each ZIP column with its state column, canonical names.
	ZipPairs []ZipStatePair

	// DateColumns, ZipColumns and TextColumns hold canonical names.
	DateColumns map[string]struct{}
	ZipColumns  map[string]struct{}
	TextColumns map[string]struct{}

	// DateLayouts are the accepted formats as Go layouts, in priority order.
	DateLayouts []string

	// CutoffColumn is the canonical name of the column bounded by
	// HistoricCutoff and FutureCutoff.
	CutoffColumn   string
	HistoricCutoff time.Time
	FutureCutoff   time.Time

	// CPTColumn and CPTMarker identify CPT records.
	CPTColumn string
	CPTMarker string

	// YearColumn is the appended year tag column name.
	YearColumn string

	SimilarityThreshold  float64
	DateSuccessThreshold float64
}

// Rules derives the immutable rule set. Column names given in any spelling
// are reduced to their canonical form.
func (c *Config) Rules() (*Rules, error) {
	r := &Rules{
		Exclusions:           schema.NewExclusionSet(c.ExcludeColumns),
		StateNames:           make(map[string]string, len(c.StateAbbreviations)),
		StateSuffix:          strings.ToUpper(c.StateSuffix),
		ZipFixStates:         make(map[string]struct{}, len(c.ZipFixStates)),
		DateColumns:          canonicalSet(c.DateColumns),
		ZipColumns:           canonicalSet(c.ZipColumns),
		TextColumns:          canonicalSet(c.TextCleaningColumns),
		CutoffColumn:         schema.Normalize(c.DateCutoffs.Column),
		CPTColumn:            schema.Normalize(c.CPTFilter.Column),
		CPTMarker:            strings.ToLower(strings.TrimSpace(c.CPTFilter.Marker)),
		YearColumn:           schema.Normalize(c.YearColumn),
		SimilarityThreshold:  c.Processing.SimilarityThreshold,
		DateSuccessThreshold: c.Processing.DateSuccessThreshold,
	}

	for abbr, name := range c.StateAbbreviations {
		r.StateNames[strings.ToLower(strings.TrimSpace(abbr))] = strings.ToLower(strings.TrimSpace(name))
	}
	for _, state := range c.ZipFixStates {
		r.ZipFixStates[strings.ToLower(strings.TrimSpace(state))] = struct{}{}
	}

	for i := range c.ZipColumns {
		r.ZipPairs = append(r.ZipPairs, ZipStatePair{
			Zip:   schema.Normalize(c.ZipColumns[i]),
			State: schema.Normalize(c.StateColumns[i]),
		})
	}

	for _, f := range c.DateFormats {
		layout, err := StrftimeToLayout(f)
		if err != nil {
			return nil, err
		}
		r.DateLayouts = append(r.DateLayouts, layout)
	}

	var err error
	if r.HistoricCutoff, err = time.Parse(isoDate, c.DateCutoffs.HistoricCutoff); err != nil {
		return nil, fmt.Errorf("date_cutoffs.historic_cutoff: %w", err)
	}
	if r.FutureCutoff, err = time.Parse(isoDate, c.DateCutoffs.FutureCutoff); err != nil {
		return nil, fmt.Errorf("date_cutoffs.future_cutoff: %w", err)
	}

	return r, nil
}

// IsStateColumn reports whether a canonical name is a state column.
func (r *Rules) IsStateColumn(name string) bool {
	return r.StateSuffix != "" && strings.HasSuffix(name, r.StateSuffix)
}

func canonicalSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[schema.Normalize(n)] = struct{}{}
	}
	return set
}

// =============================================================================
// DATE FORMAT CONVERSION
// =============================================================================

// strftimeDirectives maps strftime directives to Go layout elements. Numeric
// month and day map to the unpadded elements so both "1" and "01" parse.
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "1",
	'd': "2",
	'b': "Jan",
	'B': "January",
	'H': "15",
	'I': "3",
	'M': "4",
	'S': "5",
	'p': "PM",
	'%': "%",
}

// StrftimeToLayout converts a strftime format ("%m/%d/%Y") to a Go layout.
// A format with no directive is returned as is, so Go layouts are accepted
// directly.
func StrftimeToLayout(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("date format %q ends with a bare %%", format)
		}
		i++
		elem, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("date format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(elem)
	}
	return b.String(), nil
}
