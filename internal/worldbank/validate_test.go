package worldbank

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/latamstats/internal/models"
)

func TestValidateObservation(t *testing.T) {
	zero, hundred := 0.0, 100.0
	gini := models.Indicator{Code: "SI.POV.GINI", Name: models.ColGini, Bounds: &models.Bounds{Min: &zero, Max: &hundred}}
	inflation := models.Indicator{Code: "FP.CPI.TOTL.ZG", Name: models.ColInflation}

	tests := []struct {
		name      string
		obs       models.Observation
		ind       models.Indicator
		wantFlags []string
	}{
		{
			name: "valid gini",
			obs:  models.Observation{ISO3: "PER", Year: 2023, Value: 40.3},
			ind:  gini,
		},
		{
			name:      "gini above max",
			obs:       models.Observation{ISO3: "PER", Year: 2023, Value: 140},
			ind:       gini,
			wantFlags: []string{FlagAboveMax},
		},
		{
			name:      "gini below min",
			obs:       models.Observation{ISO3: "PER", Year: 2023, Value: -1},
			ind:       gini,
			wantFlags: []string{FlagBelowMin},
		},
		{
			name: "gini at boundary",
			obs:  models.Observation{ISO3: "PER", Year: 2019, Value: 100},
			ind:  gini,
		},
		{
			name: "unbounded indicator accepts hyperinflation",
			obs:  models.Observation{ISO3: "VEN", Year: 2019, Value: 19906},
			ind:  inflation,
		},
		{
			name:      "year outside window and missing iso3",
			obs:       models.Observation{Year: 2018, Value: 3},
			ind:       inflation,
			wantFlags: []string{FlagMissingISO3, FlagYearOutside},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateObservation(tt.obs, tt.ind, 2019, 2024)
			if diff := cmp.Diff(tt.wantFlags, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
