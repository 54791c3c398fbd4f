package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/son-tlv/tavlui-hw1/internal/circuitbreaker"
	"github.com/son-tlv/tavlui-hw1/internal/client"
	"github.com/son-tlv/tavlui-hw1/internal/config"
	httphandler "github.com/son-tlv/tavlui-hw1/internal/http"
	"github.com/son-tlv/tavlui-hw1/internal/lifecycle"
	"github.com/son-tlv/tavlui-hw1/internal/observability"
	"github.com/son-tlv/tavlui-hw1/internal/service"
	"github.com/son-tlv/tavlui-hw1/internal/suggestion"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var opts config.Options
	pflag.StringVar(&opts.Env, "env", "", "config environment name (default $ENV_NAME or dev)")
	pflag.StringVar(&opts.Dir, "config-dir", "", "directory holding {env}.yaml and secrets.yaml (default ./config)")
	pflag.StringVar(&opts.Port, "port", "", "listen port, overrides server.port")
	pflag.Parse()

	// .env may carry LOG_LEVEL, so it is applied before the logger exists.
	dotEnvErr := config.LoadDotEnv("")

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if dotEnvErr != nil {
		logger.Fatal("config", zap.Error(dotEnvErr))
	}

	cfg, err := config.Load(opts)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("config loaded", zap.String("env", cfg.Env), zap.String("version", version))

	weatherClient, err := client.NewVisualCrossingClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", "weather_api"),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(breaker)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	if cfg.SuggestionAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; every response will carry the fallback suggestion")
	}
	geminiClient := client.NewGeminiClient(cfg.SuggestionAPIKey, cfg.SuggestionAPIURL, cfg.SuggestionAPITimeout)
	relay := service.NewRelayService(weatherClient, suggestion.NewFetcher(geminiClient))

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Breaker:          breaker,
		Version:          version,
	}
	handler := httphandler.NewHandler(relay, cfg.SaaSToken, cfg.Banner, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	observability.RegisterTrafficGauges(cfg.DegradedWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
