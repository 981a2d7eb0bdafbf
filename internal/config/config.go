package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lox/latamstats/internal/models"
)

const (
	DefaultBaseURL    = "https://api.worldbank.org/v2"
	DefaultData360URL = "https://data360api.worldbank.org/data360/data"
	DefaultDateFrom   = 2019
	DefaultDateTo     = 2024
	DefaultPerPage    = 1000

	DefaultDatasetDir  = "archivos csv"
	DefaultDatasetFile = "datos_sudamerica.csv"
)

// DefaultCountries are the South American ISO3 codes queried by default.
var DefaultCountries = []string{
	"ARG", "BOL", "BRA", "CHL", "COL", "ECU",
	"GUY", "PRY", "PER", "SUR", "URY", "VEN",
}

func ptr(v float64) *float64 { return &v }

// DefaultIndicators maps World Bank series to dataset columns, in fetch order.
var DefaultIndicators = []models.Indicator{
	{Code: "NY.GDP.MKTP.CD", Name: models.ColGDP, Bounds: &models.Bounds{Min: ptr(0)}},
	{Code: "SP.POP.TOTL", Name: models.ColPopulation, Bounds: &models.Bounds{Min: ptr(0)}},
	{Code: "SI.POV.NAHC", Name: models.ColPoverty, Bounds: &models.Bounds{Min: ptr(0), Max: ptr(100)}},
	{Code: "FP.CPI.TOTL.ZG", Name: models.ColInflation, Bounds: &models.Bounds{Min: ptr(-50)}},
	{Code: "SI.POV.GINI", Name: models.ColGini, Bounds: &models.Bounds{Min: ptr(0), Max: ptr(100)}},
}

// DefaultColumnOrder is the column order of the persisted dataset. Columns
// missing from a run's table are skipped.
var DefaultColumnOrder = []string{
	models.ColCountry, models.ColISO3, models.ColYear,
	models.ColGDPBillions, models.ColPopulationMillion,
	models.ColPoverty, models.ColInflation, models.ColGini,
	models.ColGDPPerCapita,
}

// TrendSeries identifies the Data360 series used for the GDP trend forecast.
type TrendSeries struct {
	Database  string `yaml:"database"`
	Area      string `yaml:"area"`
	Indicator string `yaml:"indicator"`
	Degree    int    `yaml:"degree"`
	Target    int    `yaml:"target_year"`
}

// Config is the static pipeline configuration.
type Config struct {
	BaseURL     string             `yaml:"base_url"`
	Data360URL  string             `yaml:"data360_url"`
	Countries   []string           `yaml:"countries"`
	Indicators  []models.Indicator `yaml:"indicators"`
	DateFrom    int                `yaml:"date_from"`
	DateTo      int                `yaml:"date_to"`
	PerPage     int                `yaml:"per_page"`
	ColumnOrder []string           `yaml:"column_order"`
	DatasetPath string             `yaml:"dataset_path"`
	Trend       TrendSeries        `yaml:"trend"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Data360URL:  DefaultData360URL,
		Countries:   append([]string(nil), DefaultCountries...),
		Indicators:  append([]models.Indicator(nil), DefaultIndicators...),
		DateFrom:    DefaultDateFrom,
		DateTo:      DefaultDateTo,
		PerPage:     DefaultPerPage,
		ColumnOrder: append([]string(nil), DefaultColumnOrder...),
		DatasetPath: filepath.Join(DefaultDatasetDir, DefaultDatasetFile),
		Trend: TrendSeries{
			Database:  "WB_WDI",
			Area:      "PER",
			Indicator: "WB_WDI_NY_GDP_MKTP_KD",
			Degree:    3,
			Target:    2025,
		},
	}
}

// Load returns the default configuration overlaid with the YAML file at path.
// An empty path returns the defaults. Fields absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the fetcher relies on.
func (c Config) Validate() error {
	if len(c.Countries) == 0 {
		return errors.New("at least one country is required")
	}
	for _, code := range c.Countries {
		if len(code) != 3 || strings.ToUpper(code) != code {
			return fmt.Errorf("invalid ISO3 country code %q", code)
		}
	}
	if len(c.Indicators) == 0 {
		return errors.New("at least one indicator is required")
	}
	seen := make(map[string]bool)
	for _, ind := range c.Indicators {
		if ind.Code == "" || ind.Name == "" {
			return fmt.Errorf("indicator %q: code and name are required", ind.Code)
		}
		if seen[ind.Name] {
			return fmt.Errorf("duplicate indicator column %q", ind.Name)
		}
		seen[ind.Name] = true
	}
	if c.DateFrom > c.DateTo {
		return fmt.Errorf("date range %d:%d is inverted", c.DateFrom, c.DateTo)
	}
	if c.PerPage <= 0 {
		return errors.New("per_page must be positive")
	}
	return nil
}

// CountryCodes returns the semicolon-delimited country list used in API paths.
func (c Config) CountryCodes() string {
	return strings.Join(c.Countries, ";")
}
