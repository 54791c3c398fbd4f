package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/son-tlv/tavlui-hw1/internal/apierror"
	"github.com/son-tlv/tavlui-hw1/internal/circuitbreaker"
	"github.com/son-tlv/tavlui-hw1/internal/client"
	"github.com/son-tlv/tavlui-hw1/internal/models"
	"github.com/son-tlv/tavlui-hw1/internal/observability"
	"github.com/son-tlv/tavlui-hw1/internal/suggestion"
)

// Messages returned for weather provider failures.
const (
	MsgNoWeatherData       = "No weather data found"
	MsgProviderUnreachable = "Weather provider unreachable"
	MsgProviderInvalid     = "Invalid response from weather provider"
	MsgProviderTimeout     = "Weather provider timed out"
	MsgProviderOpen        = "Weather provider temporarily unavailable"
)

// RelayService runs the weather fetch and the suggestion attempt for an
// already validated query. It holds no per-request state.
type RelayService struct {
	weather     client.WeatherClient
	suggestions *suggestion.Fetcher
	now         func() time.Time
}

func NewRelayService(weather client.WeatherClient, suggestions *suggestion.Fetcher) *RelayService {
	return &RelayService{
		weather:     weather,
		suggestions: suggestions,
		now:         time.Now,
	}
}

// Relay fetches the day's weather, then the suggestion, and assembles the
// payload. Weather failures are returned as *apierror.Error; suggestion
// failures are absorbed.
func (s *RelayService) Relay(ctx context.Context, q models.WeatherQuery) (models.ResponsePayload, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()
	observability.RecordWeatherQuery(q.Location)

	day, err := s.weather.GetDayWeather(ctx, q.Location, q.Date)
	if err != nil {
		apiErr := mapWeatherError(err)
		logger.Debug("weather fetch failed",
			zap.String("location", q.Location),
			zap.String("date", q.Date),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.ResponsePayload{}, fmt.Errorf("fetch weather for %s on %s: %w", q.Location, q.Date, apiErr)
	}

	result := s.suggestions.Fetch(ctx, q.Location, q.Date, day)
	payload := Assemble(q, day, result.Value(), s.now())

	logger.Debug("weather relayed",
		zap.String("location", q.Location),
		zap.String("date", q.Date),
		zap.Bool("suggestion_fallback", result.Err() != nil),
		zap.Duration("duration", time.Since(start)))
	return payload, nil
}

// mapWeatherError turns a client error into the client-facing error.
func mapWeatherError(err error) *apierror.Error {
	var statusErr *client.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return apierror.ClientClosed(err)
	case errors.As(err, &statusErr):
		if statusErr.StatusCode < http.StatusBadRequest {
			return apierror.BadGateway(MsgProviderInvalid, err)
		}
		return apierror.Upstream(statusErr.StatusCode, statusErr.Provider, statusErr.Body)
	case errors.Is(err, client.ErrNoWeatherData):
		return apierror.NotFound(MsgNoWeatherData)
	case errors.Is(err, circuitbreaker.ErrOpen):
		return apierror.Unavailable(MsgProviderOpen, err)
	case errors.Is(err, client.ErrMalformedResponse):
		return apierror.BadGateway(MsgProviderInvalid, err)
	case client.CategorizeError(err) == client.ErrorCategoryTimeout:
		return apierror.GatewayTimeout(MsgProviderTimeout, err)
	default:
		return apierror.BadGateway(MsgProviderUnreachable, err)
	}
}
