package merge

import (
	"math"

	"github.com/lox/latamstats/internal/models"
)

// Availability is the set of value columns a table carries. It replaces
// per-call "column exists" checks: derivations, charts and analyses ask it
// whether their inputs are present.
type Availability map[string]bool

// AvailabilityOf returns the columns present in t.
func AvailabilityOf(t models.Table) Availability {
	a := make(Availability, len(t.Columns))
	for _, c := range t.Columns {
		a[c] = true
	}
	return a
}

// Has reports whether every named column is present.
func (a Availability) Has(columns ...string) bool {
	for _, c := range columns {
		if !a[c] {
			return false
		}
	}
	return true
}

// DerivedColumn computes a column from already-merged inputs. Compute receives
// the input values in the order of Inputs.
type DerivedColumn struct {
	Name    string
	Inputs  []string
	Compute func(in []float64) float64
}

// PerCapita converts GDP in billions and population in millions to USD per
// person.
func PerCapita(gdpBillions, populationMillions float64) float64 {
	return gdpBillions / populationMillions * 1000
}

// DefaultDerivations are applied in order, so later rules may use earlier
// outputs.
var DefaultDerivations = []DerivedColumn{
	{
		Name:    models.ColGDPBillions,
		Inputs:  []string{models.ColGDP},
		Compute: func(in []float64) float64 { return in[0] / 1e9 },
	},
	{
		Name:    models.ColPopulationMillion,
		Inputs:  []string{models.ColPopulation},
		Compute: func(in []float64) float64 { return in[0] / 1e6 },
	},
	{
		Name:    models.ColGDPPerCapita,
		Inputs:  []string{models.ColGDPBillions, models.ColPopulationMillion},
		Compute: func(in []float64) float64 { return PerCapita(in[0], in[1]) },
	},
}

// Derive applies the rules whose input columns are all available and returns
// the new table with the names of the rules that were skipped. Within a rule,
// a row only gets a cell when all its inputs are present and the result is
// finite.
func Derive(t models.Table, rules []DerivedColumn) (models.Table, []string) {
	out := models.Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.Clone())
	}

	var skipped []string
	for _, rule := range rules {
		if !AvailabilityOf(out).Has(rule.Inputs...) {
			skipped = append(skipped, rule.Name)
			continue
		}
		if !out.HasColumn(rule.Name) {
			out.Columns = append(out.Columns, rule.Name)
		}
		for i := range out.Rows {
			applyRule(&out.Rows[i], rule)
		}
	}
	return out, skipped
}

func applyRule(row *models.CountryRecord, rule DerivedColumn) {
	in := make([]float64, len(rule.Inputs))
	year := 0
	for i, col := range rule.Inputs {
		v, ok := row.Values[col]
		if !ok {
			return
		}
		in[i] = v
		if y := row.Years[col]; y > year {
			year = y
		}
	}

	v := rule.Compute(in)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	row.Values[rule.Name] = v
	if year > 0 {
		row.Years[rule.Name] = year
	}
}
