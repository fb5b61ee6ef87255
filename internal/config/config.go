// =============================================================================
// OPT Observatory ETL - Configuration Module
// =============================================================================
//
// This module loads the pipeline configuration document and derives the
// immutable lookup tables every stage reads.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults
//   2. The YAML document (config.yaml)
//   3. Environment variables, optionally loaded from a .env file
//
// ARCHITECTURE:
//   - Config mirrors the YAML document.
//   - Rules (rules.go) is derived from Config once, before any work is
//     distributed, and is passed explicitly into every component. Nothing in
//     the pipeline reads configuration from a global.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// ERRORS
// =============================================================================

// ConfigurationError is returned when the configuration document is missing or
// malformed. It is fatal for the whole run.
type ConfigurationError struct {
	// Path is the configuration file path.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the pipeline configuration.
type Config struct {
	// =========================================================================
	// DIRECTORY AND RUNTIME SETTINGS
	// =========================================================================

	Paths       PathsConfig      `yaml:"paths"`
	Processing  ProcessingConfig `yaml:"processing"`
	CSVSettings CSVSettings      `yaml:"csv_settings"`
	Logging     LoggingConfig    `yaml:"logging"`

	// =========================================================================
	// SCHEMA RULES
	// =========================================================================

	// ExcludeColumns lists columns that must never appear in output.
	// Entries may use any spelling of the column, or a glob pattern.
	ExcludeColumns []string `yaml:"exclude_columns"`

	// DateColumns lists the canonical names of date fields.
	DateColumns []string `yaml:"date_columns"`

	// DateFormats lists accepted date formats in strftime notation
	// ("%Y-%m-%d") or Go layout notation ("2006-01-02"). First match wins.
	DateFormats []string `yaml:"date_formats"`

	// DateCutoffs bounds the designated cutoff column.
	DateCutoffs DateCutoffs `yaml:"date_cutoffs"`

	// TextCleaningColumns lists the canonical names of text fields to
	// normalize.
	TextCleaningColumns []string `yaml:"text_cleaning_columns"`

	// =========================================================================
	// GEOGRAPHY RULES
	// =========================================================================

	// StateAbbreviations maps an abbreviation to a full state name.
	// Example: "ny": "new york"
	StateAbbreviations map[string]string `yaml:"state_abbreviations"`

	// StateSuffix identifies state columns by canonical-name suffix.
	// Default: "_STATE"
	StateSuffix string `yaml:"state_suffix"`

	// ZipFixStates lists lower-case states whose ZIP codes lost a leading zero.
	ZipFixStates []string `yaml:"zip_fix_states"`

	// ZipColumns and StateColumns are parallel lists pairing each ZIP field
	// with the state field that governs it.
	ZipColumns   []string `yaml:"zip_columns"`
	StateColumns []string `yaml:"state_columns"`

	// =========================================================================
	// ROW RULES
	// =========================================================================

	// CPTFilter identifies CPT records.
	CPTFilter CPTFilter `yaml:"cpt_filter"`

	// YearColumn is the name of the appended fiscal-year tag column.
	// Default: "YEAR"
	YearColumn string `yaml:"year_column"`
}

// PathsConfig holds directory settings.
type PathsConfig struct {
	// RawDir holds one subdirectory per fiscal year of source files.
	// Default: "./data/raw"
	RawDir string `yaml:"raw_dir"`

	// CombinedDir receives <year>_all.csv.
	// Default: "./data/combined"
	CombinedDir string `yaml:"combined_dir"`

	// CleanedDir receives cleaned_<year>_all.csv.
	// Default: "./data/cleaned"
	CleanedDir string `yaml:"cleaned_dir"`

	// ReportDir receives run reports.
	// Default: "./data/reports"
	ReportDir string `yaml:"report_dir"`
}

// ProcessingConfig holds processing settings.
type ProcessingConfig struct {
	// MaxWorkers caps the number of years processed at once. The effective
	// pool size is min(MaxWorkers, NumCPU-1). Peak memory grows with it.
	// Default: 4
	MaxWorkers int `yaml:"max_workers"`

	// SimilarityThreshold is the strict bound for merging duplicate columns.
	// Default: 0.95
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// DateSuccessThreshold is the parse success rate below which a date
	// column is reported as degraded.
	// Default: 0.99
	DateSuccessThreshold float64 `yaml:"date_success_threshold"`
}

// CSVSettings contains settings for reading source files.
type CSVSettings struct {
	// Delimiter is the field separator. Common values: ",", "|", "\t"
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Encoding is the source character encoding. Output is always UTF-8.
	// Supported: "UTF-8", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`

	// NullValues are cell values read as missing.
	// Default: "", "NA", "N/A", "NULL", "NaN", "nan", "null", "None"
	NullValues []string `yaml:"null_values"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format: "text" or "json". Default: "text"
	Format string `yaml:"format"`
}

// DateCutoffs bounds the designated cutoff column.
type DateCutoffs struct {
	// Column is the canonical name of the cutoff column.
	// Default: "AUTHORIZATION_START_DATE"
	Column string `yaml:"column"`

	// FutureCutoff and HistoricCutoff are ISO dates (YYYY-MM-DD).
	FutureCutoff   string `yaml:"future_cutoff"`
	HistoricCutoff string `yaml:"historic_cutoff"`
}

// CPTFilter identifies CPT records.
type CPTFilter struct {
	// Column is the canonical name of the employment-type field.
	// Default: "EMPLOYMENT_OPT_TYPE"
	Column string `yaml:"column"`

	// Marker is the value marking a CPT record, compared case-insensitively.
	// Default: "CPT"
	Marker string `yaml:"marker"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load loads the configuration from a YAML file.
//
// PARAMETERS:
//   - path: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - A *ConfigurationError if the file is missing, unparseable, or invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse parses a YAML document, applies defaults and environment overrides,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadEnv loads variables from a .env file in the working directory, if one
// exists. Variables already set in the environment are not overridden.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ResolvePath returns the configuration path: the flag value if it was set
// explicitly, otherwise OPTETL_CONFIG, otherwise the flag default.
func ResolvePath(flagValue string, flagChanged bool) string {
	if flagChanged {
		return flagValue
	}
	return getEnv("OPTETL_CONFIG", flagValue)
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Paths.RawDir == "" {
		cfg.Paths.RawDir = "./data/raw"
	}
	if cfg.Paths.CombinedDir == "" {
		cfg.Paths.CombinedDir = "./data/combined"
	}
	if cfg.Paths.CleanedDir == "" {
		cfg.Paths.CleanedDir = "./data/cleaned"
	}
	if cfg.Paths.ReportDir == "" {
		cfg.Paths.ReportDir = "./data/reports"
	}

	if cfg.Processing.MaxWorkers == 0 {
		cfg.Processing.MaxWorkers = 4
	}
	if cfg.Processing.SimilarityThreshold == 0 {
		cfg.Processing.SimilarityThreshold = 0.95
	}
	if cfg.Processing.DateSuccessThreshold == 0 {
		cfg.Processing.DateSuccessThreshold = 0.99
	}

	if cfg.CSVSettings.Delimiter == "" {
		cfg.CSVSettings.Delimiter = ","
	}
	if cfg.CSVSettings.Encoding == "" {
		cfg.CSVSettings.Encoding = "UTF-8"
	}
	if cfg.CSVSettings.NullValues == nil {
		cfg.CSVSettings.NullValues = []string{"", "NA", "N/A", "NULL", "NaN", "nan", "null", "None"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if len(cfg.DateFormats) == 0 {
		cfg.DateFormats = []string{"%Y-%m-%d", "%m/%d/%Y", "%d-%m-%Y", "%Y/%m/%d", "%m-%d-%Y", "%d-%b-%Y"}
	}
	if cfg.DateCutoffs.Column == "" {
		cfg.DateCutoffs.Column = "AUTHORIZATION_START_DATE"
	}
	if cfg.StateSuffix == "" {
		cfg.StateSuffix = "_STATE"
	}
	if cfg.CPTFilter.Column == "" {
		cfg.CPTFilter.Column = "EMPLOYMENT_OPT_TYPE"
	}
	if cfg.CPTFilter.Marker == "" {
		cfg.CPTFilter.Marker = "CPT"
	}
	if cfg.YearColumn == "" {
		cfg.YearColumn = "YEAR"
	}
}

// applyEnvOverrides applies OPTETL_* environment variables.
func applyEnvOverrides(cfg *Config) {
	cfg.Paths.RawDir = getEnv("OPTETL_RAW_DIR", cfg.Paths.RawDir)
	cfg.Paths.CombinedDir = getEnv("OPTETL_COMBINED_DIR", cfg.Paths.CombinedDir)
	cfg.Paths.CleanedDir = getEnv("OPTETL_CLEANED_DIR", cfg.Paths.CleanedDir)
	cfg.Paths.ReportDir = getEnv("OPTETL_REPORT_DIR", cfg.Paths.ReportDir)
	cfg.Processing.MaxWorkers = getEnvInt("OPTETL_MAX_WORKERS", cfg.Processing.MaxWorkers)
	cfg.Logging.Level = getEnv("OPTETL_LOG_LEVEL", cfg.Logging.Level)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Processing.MaxWorkers < 1 {
		return fmt.Errorf("processing.max_workers must be at least 1, got %d", c.Processing.MaxWorkers)
	}
	if t := c.Processing.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("processing.similarity_threshold must be in (0, 1], got %v", t)
	}
	if t := c.Processing.DateSuccessThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("processing.date_success_threshold must be in (0, 1], got %v", t)
	}

	if len(c.ZipColumns) != len(c.StateColumns) {
		return fmt.Errorf("zip_columns (%d) and state_columns (%d) must be parallel lists",
			len(c.ZipColumns), len(c.StateColumns))
	}

	if c.DateCutoffs.FutureCutoff == "" || c.DateCutoffs.HistoricCutoff == "" {
		return fmt.Errorf("date_cutoffs.future_cutoff and date_cutoffs.historic_cutoff are required")
	}
	future, err := time.Parse(isoDate, c.DateCutoffs.FutureCutoff)
	if err != nil {
		return fmt.Errorf("date_cutoffs.future_cutoff: %w", err)
	}
	historic, err := time.Parse(isoDate, c.DateCutoffs.HistoricCutoff)
	if err != nil {
		return fmt.Errorf("date_cutoffs.historic_cutoff: %w", err)
	}
	if future.Before(historic) {
		return fmt.Errorf("date_cutoffs.future_cutoff %s is before historic_cutoff %s",
			c.DateCutoffs.FutureCutoff, c.DateCutoffs.HistoricCutoff)
	}

	for _, f := range c.DateFormats {
		if _, err := StrftimeToLayout(f); err != nil {
			return fmt.Errorf("date_formats: %w", err)
		}
	}

	switch strings.ToLower(c.CSVSettings.Encoding) {
	case "utf-8", "utf8", "iso-8859-1", "latin1", "latin-1", "windows-1252", "cp1252":
	default:
		return fmt.Errorf("csv_settings.encoding %q is not supported", c.CSVSettings.Encoding)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// =============================================================================
// ENVIRONMENT HELPERS
// =============================================================================

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
