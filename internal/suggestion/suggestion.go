// Package suggestion produces the clothing suggestion attached to relay
// responses. Failures never leave this package as errors: they become a
// Result whose Value is the fallback text.
package suggestion

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/son-tlv/tavlui-hw1/internal/client"
	"github.com/son-tlv/tavlui-hw1/internal/models"
	"github.com/son-tlv/tavlui-hw1/internal/observability"
)

// Fallback is served whenever no suggestion could be generated.
const Fallback = "AI suggestion currently unavailable."

// Result is the outcome of one suggestion attempt.
type Result struct {
	text string
	err  error
}

func Succeeded(text string) Result { return Result{text: text} }

func Failed(err error) Result { return Result{err: err} }

// Err returns the failure, or nil on success.
func (r Result) Err() error { return r.err }

// Value collapses the result to the string placed in the response.
func (r Result) Value() string {
	if r.err != nil {
		return Fallback
	}
	return r.text
}

// BuildPrompt renders the prompt sent to the text model.
func BuildPrompt(location, date string, day models.DayWeather) string {
	return fmt.Sprintf(
		"The weather in %s on %s will be %s°C with %s kph wind. Give a single, short sentence suggesting what a student should wear.",
		location, date, formatMetric(day.TempC), formatMetric(day.WindKPH),
	)
}

func formatMetric(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Fetcher asks a SuggestionClient for a suggestion, once.
type Fetcher struct {
	client client.SuggestionClient
}

func NewFetcher(c client.SuggestionClient) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch never fails; inspect Result.Err to see whether the fallback applies.
func (f *Fetcher) Fetch(ctx context.Context, location, date string, day models.DayWeather) (res Result) {
	logger := observability.LoggerFromContext(ctx)
	defer func() {
		if p := recover(); p != nil {
			res = Failed(fmt.Errorf("suggestion client panic: %v", p))
		}
		if res.err != nil {
			category := string(client.CategorizeError(res.err))
			observability.SuggestionFallbacksTotal.WithLabelValues(category).Inc()
			logger.Warn("ai suggestion unavailable, using fallback",
				zap.String("category", category),
				zap.Error(res.err))
		}
	}()

	if f == nil || f.client == nil {
		return Failed(fmt.Errorf("%w: no suggestion client", client.ErrInvalidAPIKey))
	}
	text, err := f.client.Suggest(ctx, BuildPrompt(location, date, day))
	if err != nil {
		return Failed(err)
	}
	return Succeeded(text)
}
