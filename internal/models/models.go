package models

import "time"

// Column names of the merged dataset. These are part of the CSV contract read
// by the plotting and regression commands.
const (
	ColCountry = "País"
	ColISO3    = "Codigo_ISO"
	ColYear    = "Año"

	ColGDP        = "PBI_USD"
	ColPopulation = "Poblacion"
	ColPoverty    = "Pobreza_Nacional"
	ColInflation  = "Inflacion_Anual"
	ColGini       = "Indice_Gini"

	ColGDPBillions       = "PBI_Billions"
	ColPopulationMillion = "Poblacion_Millones"
	ColGDPPerCapita      = "PBI_Per_Capita"
)

// Bounds is the plausible range of an indicator's values. A nil bound is open.
type Bounds struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type Indicator struct {
	Code   string  `yaml:"code"` // World Bank series ID, e.g. "SP.POP.TOTL"
	Name   string  `yaml:"name"` // column name in the merged table
	Bounds *Bounds `yaml:"bounds,omitempty"`
}

// Observation is one (country, year, value) point for an indicator. Null
// values at the source never become Observations.
type Observation struct {
	Indicator string
	ISO3      string
	Country   string
	Year      int
	Value     float64
}

// IndicatorMeta is the descriptive metadata of a World Bank series.
type IndicatorMeta struct {
	Code               string
	Name               string
	Unit               string
	SourceOrganization string
	SourceNote         string
}

// SeriesPoint is one point of a single-country time series.
type SeriesPoint struct {
	Year  int
	Value float64
}

// CountryKey is the join key of the merged table.
type CountryKey struct {
	ISO3 string
	Name string
}

// CountryRecord is one row of the merged table. A column missing from Values
// is an absent cell, never zero.
type CountryRecord struct {
	Name   string
	ISO3   string
	Values map[string]float64
	Years  map[string]int
}

func (r CountryRecord) Key() CountryKey {
	return CountryKey{ISO3: r.ISO3, Name: r.Name}
}

// Value returns the cell for column and whether it is present.
func (r CountryRecord) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// LatestYear returns the most recent year among the record's observations.
func (r CountryRecord) LatestYear() (int, bool) {
	year, ok := 0, false
	for _, y := range r.Years {
		if !ok || y > year {
			year, ok = y, true
		}
	}
	return year, ok
}

// Clone returns a deep copy of the record.
func (r CountryRecord) Clone() CountryRecord {
	out := CountryRecord{
		Name:   r.Name,
		ISO3:   r.ISO3,
		Values: make(map[string]float64, len(r.Values)),
		Years:  make(map[string]int, len(r.Years)),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	for k, v := range r.Years {
		out.Years[k] = v
	}
	return out
}

// Table is the per-country wide table. Columns lists the value columns in
// order; the key columns (country, ISO3, year) are implicit.
type Table struct {
	Columns []string
	Rows    []CountryRecord
}

// HasColumn reports whether the table carries the value column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Row returns the record for a country name.
func (t Table) Row(country string) (CountryRecord, bool) {
	for _, r := range t.Rows {
		if r.Name == country {
			return r, true
		}
	}
	return CountryRecord{}, false
}

// Column returns the present values of a column along with the country names
// they belong to, in row order.
func (t Table) Column(name string) (countries []string, values []float64) {
	for _, r := range t.Rows {
		if v, ok := r.Values[name]; ok {
			countries = append(countries, r.Name)
			values = append(values, v)
		}
	}
	return countries, values
}

// PipelineRun summarises one fetch-and-merge execution.
type PipelineRun struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	Indicators       int
	IndicatorsOK     int
	IndicatorsFailed int
	Countries        int
	OutputPath       string
	Success          bool
	ErrorMessage     string
}
