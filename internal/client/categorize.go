package client

import (
	"context"
	"errors"
	"net"

	"github.com/son-tlv/tavlui-hw1/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryCanceled      ErrorCategory = "canceled"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryMissingAPIKey ErrorCategory = "missing_api_key"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryNoData        ErrorCategory = "no_data"
	ErrorCategoryCircuitOpen   ErrorCategory = "circuit_open"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an outbound-call error to an ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return ErrorCategoryUpstream5xx
		}
		return ErrorCategoryUpstream4xx
	}

	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryMissingAPIKey
	case errors.Is(err, ErrNoWeatherData), errors.Is(err, ErrNoSuggestion):
		return ErrorCategoryNoData
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryParsing
	case errors.Is(err, ErrUpstreamUnreachable):
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
