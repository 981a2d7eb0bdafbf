package worldbank

import (
	"github.com/lox/latamstats/internal/models"
)

const (
	FlagBelowMin    = "value_below_min"
	FlagAboveMax    = "value_above_max"
	FlagYearOutside = "year_out_of_window"
	FlagMissingISO3 = "missing_iso3"
)

// ValidateObservation returns plausibility flags for an observation. Flagged
// observations are still used; the flags only feed logs and metrics.
func ValidateObservation(obs models.Observation, ind models.Indicator, dateFrom, dateTo int) []string {
	var flags []string

	if obs.ISO3 == "" {
		flags = append(flags, FlagMissingISO3)
	}

	if ind.Bounds != nil {
		if ind.Bounds.Min != nil && obs.Value < *ind.Bounds.Min {
			flags = append(flags, FlagBelowMin)
		}
		if ind.Bounds.Max != nil && obs.Value > *ind.Bounds.Max {
			flags = append(flags, FlagAboveMax)
		}
	}

	if obs.Year < dateFrom || obs.Year > dateTo {
		flags = append(flags, FlagYearOutside)
	}

	return flags
}
