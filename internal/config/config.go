package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/son-tlv/tavlui-hw1/internal/traffic"
)

const (
	DefaultWeatherAPIURL    = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"
	DefaultSuggestionAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"
	DefaultBanner           = "<p><h2>Server running.</h2></p>"
)

// Options selects where configuration is read from. Zero values fall back to
// ENV_NAME (or "dev") and ./config.
type Options struct {
	Env    string
	Dir    string
	Port   string
	DotEnv string
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	Env string

	ServerPort string
	Banner     string

	SaaSToken string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	SuggestionAPIKey     string
	SuggestionAPIURL     string
	SuggestionAPITimeout time.Duration

	RequestTimeout time.Duration

	// RateLimitRPS of 0 disables the /api limiter.
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout time.Duration
	InFlightTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	TrackedLocations []string
}

type fileConfig struct {
	Banner string `yaml:"banner"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	SuggestionAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"suggestion_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   *int `yaml:"rate_limit_rps"`
		RateLimitBurst int  `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	SaaSToken     string `yaml:"saas_token"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
}

// Load reads {Dir}/{Env}.yaml and {Dir}/secrets.yaml after applying a .env
// file from the working directory. Secrets prefer the environment.
// WEATHER_API_KEY and SAAS_TOKEN are required; GEMINI_API_KEY is optional.
func Load(opts Options) (*Config, error) {
	if err := LoadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	env := strings.TrimSpace(opts.Env)
	if env == "" {
		env = os.Getenv("ENV_NAME")
	}
	if env == "" {
		env = "dev"
	}
	dir := opts.Dir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		dir = filepath.Join(cwd, "config")
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{Env: env}

	cfg.ServerPort = strings.TrimSpace(opts.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.Banner = fc.Banner
	if cfg.Banner == "" {
		cfg.Banner = DefaultBanner
	}

	cfg.WeatherAPIKey = secret("WEATHER_API_KEY", sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.SaaSToken = secret("SAAS_TOKEN", sec.SaaSToken)
	if cfg.SaaSToken == "" {
		return nil, fmt.Errorf("SAAS_TOKEN required (set env or config/secrets.yaml saas_token)")
	}
	cfg.SuggestionAPIKey = secret("GEMINI_API_KEY", sec.GeminiAPIKey)

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = DefaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.SuggestionAPIURL = strings.TrimSpace(fc.SuggestionAPI.URL)
	if cfg.SuggestionAPIURL == "" {
		cfg.SuggestionAPIURL = DefaultSuggestionAPIURL
	}
	cfg.SuggestionAPITimeout = parseDurationOrZero(fc.SuggestionAPI.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 12*time.Second)

	cfg.RateLimitRPS = 100
	if rps := fc.Reliability.RateLimitRPS; rps != nil && *rps >= 0 {
		cfg.RateLimitRPS = *rps
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv applies a .env file (default ./.env) without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func secret(envKey, fromFile string) string {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return strings.TrimSpace(fromFile)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects non-positive upstream timeouts, lifts RequestTimeout
// above the time both upstream calls may take and caps DegradedWindow at
// what the traffic tracker keeps.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.SuggestionAPITimeout <= 0 {
		return fmt.Errorf("suggestion_api.timeout must be positive")
	}
	if minimum := cfg.WeatherAPITimeout + cfg.SuggestionAPITimeout; cfg.RequestTimeout <= minimum {
		cfg.RequestTimeout = minimum + time.Second
	}
	if cfg.DegradedWindow > traffic.Retention {
		cfg.DegradedWindow = traffic.Retention
	}
	return nil
}
