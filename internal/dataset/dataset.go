// Package dataset persists the merged country table as CSV and reads it back
// for the plotting and regression commands.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lox/latamstats/internal/models"
)

// ErrDuplicateCountry is returned when two rows share a country name, which
// downstream consumers use as the row key.
var ErrDuplicateCountry = errors.New("duplicate country")

// Write creates the parent directory if needed and writes the table with the
// given header. Identical tables produce identical bytes.
func Write(path string, t models.Table, header []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dataset dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	if err := Encode(f, t, header); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the table as CSV.
func Encode(w io.Writer, t models.Table, header []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		for i, col := range header {
			record[i] = cell(r, col)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", r.ISO3, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func cell(r models.CountryRecord, col string) string {
	switch col {
	case models.ColCountry:
		return r.Name
	case models.ColISO3:
		return r.ISO3
	case models.ColYear:
		if y, ok := r.LatestYear(); ok {
			return strconv.Itoa(y)
		}
		return ""
	}
	if v, ok := r.Values[col]; ok {
		return FormatFloat(v)
	}
	return ""
}

// FormatFloat renders v in the shortest form that parses back to v.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Read loads a dataset written by Write. A missing file yields an error
// wrapping fs.ErrNotExist.
func Read(path string) (models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Table{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return models.Table{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return t, nil
}

// missingTokens are read as absent cells, matching the markers spreadsheet
// and dataframe tools write for missing values.
var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "#N/A": true, "<NA>": true,
	"NaN": true, "nan": true, "-NaN": true, "-nan": true,
	"NULL": true, "null": true, "None": true,
}

// Decode parses CSV produced by Encode. Rows keep file order. Missing-value
// markers and non-finite numbers become absent cells.
func Decode(r io.Reader) (models.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return models.Table{}, errors.New("empty dataset")
	}
	if err != nil {
		return models.Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	countryIdx, isoIdx, yearIdx := -1, -1, -1
	var t models.Table
	for i, col := range header {
		switch col {
		case models.ColCountry:
			countryIdx = i
		case models.ColISO3:
			isoIdx = i
		case models.ColYear:
			yearIdx = i
		default:
			t.Columns = append(t.Columns, col)
		}
	}
	if countryIdx < 0 {
		return models.Table{}, fmt.Errorf("missing %q column", models.ColCountry)
	}

	seen := make(map[string]bool)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Table{}, fmt.Errorf("line %d: %w", line, err)
		}

		row := models.CountryRecord{
			Name:   rec[countryIdx],
			Values: make(map[string]float64),
			Years:  make(map[string]int),
		}
		if isoIdx >= 0 {
			row.ISO3 = rec[isoIdx]
		}
		if seen[row.Name] {
			return models.Table{}, fmt.Errorf("line %d: %w %q", line, ErrDuplicateCountry, row.Name)
		}
		seen[row.Name] = true

		for i, col := range header {
			cellText := strings.TrimSpace(rec[i])
			if i == countryIdx || i == isoIdx || missingTokens[cellText] {
				continue
			}
			if i == yearIdx {
				y, err := strconv.Atoi(cellText)
				if err != nil {
					return models.Table{}, fmt.Errorf("line %d: invalid year %q", line, rec[i])
				}
				row.Years[models.ColYear] = y
				continue
			}
			v, err := strconv.ParseFloat(cellText, 64)
			if err != nil {
				return models.Table{}, fmt.Errorf("line %d: column %s: invalid number %q", line, col, rec[i])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row.Values[col] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Header returns the file header for a read table: key columns then the value
// columns in file order.
func Header(t models.Table) []string {
	header := []string{models.ColCountry, models.ColISO3, models.ColYear}
	return append(header, t.Columns...)
}
