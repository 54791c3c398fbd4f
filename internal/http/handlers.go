package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/son-tlv/tavlui-hw1/internal/apierror"
	"github.com/son-tlv/tavlui-hw1/internal/circuitbreaker"
	"github.com/son-tlv/tavlui-hw1/internal/lifecycle"
	"github.com/son-tlv/tavlui-hw1/internal/observability"
	"github.com/son-tlv/tavlui-hw1/internal/service"
	"github.com/son-tlv/tavlui-hw1/internal/traffic"
	"github.com/son-tlv/tavlui-hw1/internal/validation"
)

const (
	serviceName = "weather-relay"

	maxRequestBodyBytes = 1 << 20
)

// HealthConfig holds the thresholds and dependencies the health handler reads.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Breaker, when set, reports degraded while the weather circuit is open.
	Breaker *circuitbreaker.CircuitBreaker
	Version string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	relay            *service.RelayService
	secret           string
	banner           string
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. secret is the shared token every
// POST /api/weather body must carry.
func NewHandler(
	relay *service.RelayService,
	secret string,
	banner string,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		relay:        relay,
		secret:       secret,
		banner:       banner,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetHome handles GET /.
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, h.banner)
}

// PostWeather handles POST /api/weather.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeAPIError(w, r, apierror.BadRequest(validation.MsgInvalidPayload))
		return
	}

	query, err := validation.ParseQuery(body, h.secret)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	payload, err := h.relay.Relay(r.Context(), query)
	// Abandoned requests stay out of the health error rate.
	abandoned := errors.Is(r.Context().Err(), context.Canceled)
	if err != nil {
		if !abandoned {
			recordOutcome(apierror.From(err).Status)
		}
		writeAPIError(w, r, err)
		return
	}
	if !abandoned {
		recordOutcome(http.StatusOK)
	}
	writeJSON(w, http.StatusOK, payload)
}

// recordOutcome feeds the health error rate: 5xx relay results are errors.
func recordOutcome(status int) {
	if status >= http.StatusInternalServerError {
		traffic.RecordError()
		return
	}
	traffic.RecordSuccess()
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.Breaker != nil {
			checks["circuitBreaker"] = h.healthConfig.Breaker.State().String()
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > circuit open > error rate > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if b := h.healthConfig.Breaker; b != nil && b.State() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAPIError writes {"message": ...} with the error's status. Errors that
// are not *apierror.Error become a 500 without leaking their text.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.From(err)
	observability.RelayErrorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()

	logger := observability.LoggerFromContext(r.Context())
	fields := []zap.Field{
		zap.Int("status", apiErr.Status),
		zap.String("kind", string(apiErr.Kind)),
		zap.Error(err),
	}
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Warn("request failed", fields...)
	} else {
		logger.Debug("request rejected", fields...)
	}
	writeJSON(w, apiErr.Status, apiErr.Body())
}
