package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/son-tlv/tavlui-hw1/internal/circuitbreaker"
	"github.com/son-tlv/tavlui-hw1/internal/models"
	"github.com/son-tlv/tavlui-hw1/internal/observability"
)

// DefaultVisualCrossingURL is the timeline endpoint; location and date are appended as path segments.
const DefaultVisualCrossingURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// WeatherClient fetches a single day's weather for a location.
type WeatherClient interface {
	GetDayWeather(ctx context.Context, location, date string) (models.DayWeather, error)
}

var (
	ErrInvalidAPIKey       = errors.New("invalid API key")
	ErrNoWeatherData       = errors.New("no weather data")
	ErrMalformedResponse   = errors.New("malformed upstream response")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// StatusError is a non-2xx upstream reply. Body is the raw response text.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsBreakerFailure reports whether err says something about upstream health.
// 4xx replies are the caller's problem (bad location, bad key) and do not count.
func IsBreakerFailure(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrNoWeatherData) && !errors.Is(err, context.Canceled)
}

// VisualCrossingClient calls the Visual Crossing timeline API.
type VisualCrossingClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewVisualCrossingClient(apiKey, apiURL string, timeout time.Duration) (*VisualCrossingClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if apiURL == "" {
		apiURL = DefaultVisualCrossingURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &VisualCrossingClient{
		apiKey:  apiKey,
		apiURL:  strings.TrimRight(apiURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker guards every call with cb. Nil disables it.
func (c *VisualCrossingClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type timelineResponse struct {
	Days []timelineDay `json:"days"`
}

type timelineDay struct {
	Temp      *float64 `json:"temp"`
	WindSpeed *float64 `json:"windspeed"`
	Pressure  *float64 `json:"pressure"`
	Humidity  *float64 `json:"humidity"`
}

// GetDayWeather returns the first day of the timeline for location and date.
// Errors: *StatusError for non-2xx, ErrNoWeatherData for an empty day list,
// ErrMalformedResponse, ErrUpstreamUnreachable, or circuitbreaker.ErrOpen.
func (c *VisualCrossingClient) GetDayWeather(ctx context.Context, location, date string) (models.DayWeather, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, location, date)
	}
	var day models.DayWeather
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		day, err = c.callAPI(ctx, location, date)
		return err
	})
	return day, err
}

func (c *VisualCrossingClient) callAPI(ctx context.Context, location, date string) (models.DayWeather, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, location, date)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.DayWeather{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.Canceled) {
			return models.DayWeather{}, err
		}
		return models.DayWeather{}, fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.DayWeather{}, fmt.Errorf("%w: read body: %w", ErrUpstreamUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.DayWeather{}, &StatusError{
			Provider:   "Visual Crossing",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var apiResp timelineResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.DayWeather{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Days) == 0 {
		return models.DayWeather{}, ErrNoWeatherData
	}
	return mapDay(apiResp.Days[0]), nil
}

func (c *VisualCrossingClient) buildRequest(ctx context.Context, location, date string) (*http.Request, error) {
	params := url.Values{}
	params.Set("unitGroup", "metric")
	params.Set("key", c.apiKey)
	params.Set("contentType", "json")

	endpoint := c.apiURL + "/" + url.PathEscape(location) + "/" + url.PathEscape(date) + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func mapDay(d timelineDay) models.DayWeather {
	return models.DayWeather{
		TempC:      d.Temp,
		WindKPH:    d.WindSpeed,
		PressureMB: d.Pressure,
		Humidity:   d.Humidity,
	}
}
