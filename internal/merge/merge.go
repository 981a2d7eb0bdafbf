// Package merge turns per-indicator observation lists into the per-country
// wide table: latest observation per country, outer join on (ISO3, country
// name), then derived columns.
//
// Every function here is pure: inputs are never mutated and a new table is
// returned.
package merge

import (
	"errors"
	"sort"

	"github.com/lox/latamstats/internal/models"
)

// ErrNoData is returned when no indicator produced any rows.
var ErrNoData = errors.New("no data obtained")

// LatestPerCountry keeps the most recent observation for each ISO3 code. The
// observations are stably sorted by year descending and the first occurrence
// per country wins, so equal years resolve to source order.
func LatestPerCountry(obs []models.Observation) []models.Observation {
	sorted := append([]models.Observation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Year > sorted[j].Year
	})

	seen := make(map[string]bool, len(sorted))
	var out []models.Observation
	for _, o := range sorted {
		if seen[o.ISO3] {
			continue
		}
		seen[o.ISO3] = true
		out = append(out, o)
	}
	return out
}

// Series builds the single-column table of one indicator, relabelling the
// selected values with the indicator's column name. An indicator without
// observations yields an empty table with no columns.
func Series(ind models.Indicator, obs []models.Observation) models.Table {
	latest := LatestPerCountry(obs)
	if len(latest) == 0 {
		return models.Table{}
	}

	t := models.Table{Columns: []string{ind.Name}}
	for _, o := range latest {
		t.Rows = append(t.Rows, models.CountryRecord{
			Name:   o.Country,
			ISO3:   o.ISO3,
			Values: map[string]float64{ind.Name: o.Value},
			Years:  map[string]int{ind.Name: o.Year},
		})
	}
	sortRows(t.Rows)
	return t
}

// OuterJoin merges b into a on (ISO3, country name). Every key of either table
// appears in the result; cells missing on one side stay absent. When both
// tables carry the same column, a's value is kept where present.
func OuterJoin(a, b models.Table) models.Table {
	out := models.Table{Columns: append([]string(nil), a.Columns...)}
	for _, c := range b.Columns {
		if !out.HasColumn(c) {
			out.Columns = append(out.Columns, c)
		}
	}

	index := make(map[models.CountryKey]int, len(a.Rows)+len(b.Rows))
	for _, r := range a.Rows {
		index[r.Key()] = len(out.Rows)
		out.Rows = append(out.Rows, r.Clone())
	}

	for _, r := range b.Rows {
		i, ok := index[r.Key()]
		if !ok {
			index[r.Key()] = len(out.Rows)
			out.Rows = append(out.Rows, r.Clone())
			continue
		}
		dst := out.Rows[i]
		for col, v := range r.Values {
			if _, exists := dst.Values[col]; exists {
				continue
			}
			dst.Values[col] = v
			if y, ok := r.Years[col]; ok {
				dst.Years[col] = y
			}
		}
	}

	sortRows(out.Rows)
	return out
}

// Merge folds OuterJoin over the non-empty tables, in order. It returns
// ErrNoData when none of them has rows.
func Merge(tables ...models.Table) (models.Table, error) {
	var (
		acc   models.Table
		found bool
	)
	for _, t := range tables {
		if len(t.Rows) == 0 {
			continue
		}
		if !found {
			acc, found = OuterJoin(models.Table{}, t), true
			continue
		}
		acc = OuterJoin(acc, t)
	}
	if !found {
		return models.Table{}, ErrNoData
	}
	return acc, nil
}

// Select projects the table onto order, keeping only columns that exist. The
// returned header includes the key columns named in order; the returned
// table's Columns holds only value columns.
func Select(t models.Table, order []string) (models.Table, []string) {
	out := models.Table{}
	var header []string
	for _, c := range order {
		switch c {
		case models.ColCountry, models.ColISO3:
			header = append(header, c)
		case models.ColYear:
			if hasYears(t) {
				header = append(header, c)
			}
		default:
			if t.HasColumn(c) {
				header = append(header, c)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, r := range t.Rows {
		row := models.CountryRecord{
			Name:   r.Name,
			ISO3:   r.ISO3,
			Values: make(map[string]float64, len(out.Columns)),
			Years:  make(map[string]int, len(out.Columns)),
		}
		for _, c := range out.Columns {
			if v, ok := r.Values[c]; ok {
				row.Values[c] = v
			}
			if y, ok := r.Years[c]; ok {
				row.Years[c] = y
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, header
}

func hasYears(t models.Table) bool {
	for _, r := range t.Rows {
		if len(r.Years) > 0 {
			return true
		}
	}
	return false
}

func sortRows(rows []models.CountryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ISO3 != rows[j].ISO3 {
			return rows[i].ISO3 < rows[j].ISO3
		}
		return rows[i].Name < rows[j].Name
	})
}
