package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/latamstats/internal/htmlutil"
	"github.com/lox/latamstats/internal/httputil"
	"github.com/lox/latamstats/internal/metrics"
	"github.com/lox/latamstats/internal/models"
)

const DefaultRetryMaxElapsed = 30 * time.Second

// Client fetches indicator observations from the World Bank v2 API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	dateFrom        int
	dateTo          int
	perPage         int
	retryMaxElapsed time.Duration
}

func NewClient(baseURL string, dateFrom, dateTo, perPage int) *Client {
	return &Client{
		httpClient:      httputil.NewClient(),
		baseURL:         strings.TrimRight(baseURL, "/"),
		dateFrom:        dateFrom,
		dateTo:          dateTo,
		perPage:         perPage,
		retryMaxElapsed: DefaultRetryMaxElapsed,
	}
}

// SetRetryMaxElapsed bounds the time spent retrying rate-limited or 5xx
// responses. Zero disables retries.
func (c *Client) SetRetryMaxElapsed(d time.Duration) {
	c.retryMaxElapsed = d
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// DateRange returns the inclusive year window requested from the API.
func (c *Client) DateRange() (int, int) {
	return c.dateFrom, c.dateTo
}

// FetchResult describes one API call for auditing.
type FetchResult struct {
	Indicator    string
	URL          string
	Observations []models.Observation
	HTTPStatus   int
	ResponseSize int
	RecordCount  int // entries in the observation array, including nulls
	NullValues   int
	ParseErrors  int
	ParseError   string
	RawBody      []byte
}

// ObservationsURL builds the request URL for an indicator and country set.
func (c *Client) ObservationsURL(indicator string, countries []string) string {
	return fmt.Sprintf("%s/country/%s/indicator/%s?format=json&date=%d:%d&per_page=%d",
		c.baseURL, strings.Join(countries, ";"), url.PathEscape(indicator), c.dateFrom, c.dateTo, c.perPage)
}

// FetchObservations issues a single request for the indicator over the
// configured date window. A response envelope without an observation array
// yields an empty result rather than an error. The returned FetchResult is
// non-nil even on error so callers can record the attempt.
func (c *Client) FetchObservations(ctx context.Context, indicator string, countries []string) (*FetchResult, error) {
	result := &FetchResult{
		Indicator: indicator,
		URL:       c.ObservationsURL(indicator, countries),
	}
	if len(countries) == 0 {
		return result, errors.New("fetch observations: no countries requested")
	}

	body, status, err := c.get(ctx, result.URL, "observations", indicator)
	result.HTTPStatus = status
	result.ResponseSize = len(body)
	result.RawBody = body
	if err != nil {
		return result, err
	}

	if err := parseObservations(body, indicator, result); err != nil {
		return result, err
	}

	metrics.ObservationsFetched.WithLabelValues(indicator).Add(float64(len(result.Observations)))
	if result.NullValues > 0 {
		metrics.ObservationsDropped.WithLabelValues(indicator, "null_value").Add(float64(result.NullValues))
	}
	if result.ParseErrors > 0 {
		metrics.ObservationsDropped.WithLabelValues(indicator, "parse_error").Add(float64(result.ParseErrors))
	}
	return result, nil
}

type apiMetadata struct {
	Page    json.Number  `json:"page"`
	Pages   json.Number  `json:"pages"`
	Total   json.Number  `json:"total"`
	Message []apiMessage `json:"message"`
}

type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type apiObservation struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
}

func parseObservations(body []byte, indicator string, result *FetchResult) error {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	if len(envelope) > 0 {
		var meta apiMetadata
		if err := json.Unmarshal(envelope[0], &meta); err == nil {
			for _, m := range meta.Message {
				log.Printf("worldbank: %s: api message %s: %s %s", indicator, m.ID, m.Key, m.Value)
			}
		}
	}
	if len(envelope) < 2 {
		return nil
	}

	var items []apiObservation
	if err := json.Unmarshal(envelope[1], &items); err != nil {
		return fmt.Errorf("unmarshal observations: %w", err)
	}

	result.RecordCount = len(items)
	for _, item := range items {
		if item.Value == nil {
			result.NullValues++
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(item.Date))
		if err != nil {
			result.ParseErrors++
			result.ParseError = fmt.Sprintf("invalid date %q for %s", item.Date, item.CountryISO3)
			continue
		}
		result.Observations = append(result.Observations, models.Observation{
			Indicator: indicator,
			ISO3:      item.CountryISO3,
			Country:   item.Country.Value,
			Year:      year,
			Value:     *item.Value,
		})
	}
	return nil
}

type apiIndicator struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Unit               string `json:"unit"`
	SourceNote         string `json:"sourceNote"`
	SourceOrganization string `json:"sourceOrganization"`
}

// FetchIndicatorMeta returns the descriptive metadata of a series, with HTML
// removed from the source note.
func (c *Client) FetchIndicatorMeta(ctx context.Context, indicator string) (*models.IndicatorMeta, error) {
	u := fmt.Sprintf("%s/indicator/%s?format=json", c.baseURL, url.PathEscape(indicator))
	body, _, err := c.get(ctx, u, "indicator", indicator)
	if err != nil {
		return nil, err
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(envelope) < 2 {
		return nil, fmt.Errorf("indicator %s not found", indicator)
	}

	var items []apiIndicator
	if err := json.Unmarshal(envelope[1], &items); err != nil {
		return nil, fmt.Errorf("unmarshal indicator: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("indicator %s not found", indicator)
	}

	it := items[0]
	return &models.IndicatorMeta{
		Code:               it.ID,
		Name:               it.Name,
		Unit:               it.Unit,
		SourceOrganization: htmlutil.ToText(it.SourceOrganization),
		SourceNote:         htmlutil.ToText(it.SourceNote),
	}, nil
}

// get performs a GET with bounded retries on rate limiting and server errors.
func (c *Client) get(ctx context.Context, u, endpoint, indicator string) ([]byte, int, error) {
	var (
		body   []byte
		status int
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		metrics.WorldBankAPILatency.WithLabelValues(endpoint, indicator).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.WorldBankAPICallsTotal.WithLabelValues(endpoint, indicator, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", endpoint, err))
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		metrics.WorldBankAPICallsTotal.WithLabelValues(endpoint, indicator, strconv.Itoa(resp.StatusCode)).Inc()

		if retryable(resp.StatusCode) {
			return fmt.Errorf("fetch %s: retryable status %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(b))))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.retryMaxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = c.retryMaxElapsed
		bo = exp
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return body, status, err
	}
	return body, status, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
