package worldbank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/latamstats/internal/httputil"
	"github.com/lox/latamstats/internal/models"
)

// Data360Client reads single-country series from the World Bank Data360 API.
type Data360Client struct {
	api     *Client
	dataURL string
}

func NewData360Client(dataURL string) *Data360Client {
	api := &Client{httpClient: httputil.NewClient(), retryMaxElapsed: DefaultRetryMaxElapsed}
	return &Data360Client{api: api, dataURL: dataURL}
}

// SetRetryMaxElapsed bounds retries; zero disables them.
func (d *Data360Client) SetRetryMaxElapsed(dur time.Duration) {
	d.api.SetRetryMaxElapsed(dur)
}

type data360Response struct {
	Count int                  `json:"count"`
	Value []data360Observation `json:"value"`
}

type data360Observation struct {
	TimePeriod string          `json:"TIME_PERIOD"`
	ObsValue   json.RawMessage `json:"OBS_VALUE"`
}

// FetchSeries returns the (year, value) points of one indicator for one area,
// sorted by year. Values that are missing or not numeric are dropped.
func (d *Data360Client) FetchSeries(ctx context.Context, database, area, indicator string) ([]models.SeriesPoint, error) {
	q := url.Values{}
	q.Set("DATABASE_ID", database)
	q.Set("REF_AREA", area)
	q.Set("INDICATOR", indicator)

	body, _, err := d.api.get(ctx, d.dataURL+"?"+q.Encode(), "data360", indicator)
	if err != nil {
		return nil, err
	}

	var resp data360Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal data360: %w", err)
	}

	var points []models.SeriesPoint
	for _, obs := range resp.Value {
		year, err := strconv.Atoi(strings.TrimSpace(obs.TimePeriod))
		if err != nil {
			continue
		}
		v, ok := parseLooseFloat(obs.ObsValue)
		if !ok {
			continue
		}
		points = append(points, models.SeriesPoint{Year: year, Value: v})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Year < points[j].Year })
	return points, nil
}

// parseLooseFloat accepts a JSON number or a numeric string.
func parseLooseFloat(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
