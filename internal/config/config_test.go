package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/son-tlv/tavlui-hw1/internal/traffic"
)

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://weather.example.com/timeline"
  timeout: "3s"
suggestion_api:
  url: "https://ai.example.com/generate"
  timeout: "4s"
request:
  timeout: "10s"
`

// setSecrets sets the secret env vars for one test. Empty values count as unset.
func setSecrets(t *testing.T, weatherKey, saasToken, geminiKey string) {
	t.Helper()
	t.Setenv("WEATHER_API_KEY", weatherKey)
	t.Setenv("SAAS_TOKEN", saasToken)
	t.Setenv("GEMINI_API_KEY", geminiKey)
	t.Setenv("ENV_NAME", "")
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func loadFrom(dir string) (*Config, error) {
	return Load(Options{Dir: dir, DotEnv: filepath.Join(dir, ".env")})
}

func TestLoad_SucceedsWithEnvVars(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "gemini-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != "dev" {
		t.Errorf("Env = %q, want dev", cfg.Env)
	}
	if cfg.WeatherAPIKey != "weather-key" || cfg.SaaSToken != "saas-secret" || cfg.SuggestionAPIKey != "gemini-key" {
		t.Errorf("secrets = %q/%q/%q", cfg.WeatherAPIKey, cfg.SaaSToken, cfg.SuggestionAPIKey)
	}
	if cfg.WeatherAPIURL != "https://weather.example.com/timeline" {
		t.Errorf("WeatherAPIURL = %q", cfg.WeatherAPIURL)
	}
	if cfg.SuggestionAPIURL != "https://ai.example.com/generate" {
		t.Errorf("SuggestionAPIURL = %q", cfg.SuggestionAPIURL)
	}
	if cfg.WeatherAPITimeout != 3*time.Second || cfg.SuggestionAPITimeout != 4*time.Second {
		t.Errorf("timeouts = %v/%v, want 3s/4s", cfg.WeatherAPITimeout, cfg.SuggestionAPITimeout)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"\"\n")

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"Banner", cfg.Banner, DefaultBanner},
		{"WeatherAPIURL", cfg.WeatherAPIURL, DefaultWeatherAPIURL},
		{"SuggestionAPIURL", cfg.SuggestionAPIURL, DefaultSuggestionAPIURL},
		{"SuggestionAPIKey", cfg.SuggestionAPIKey, ""},
		{"WeatherAPITimeout", cfg.WeatherAPITimeout, 5 * time.Second},
		{"SuggestionAPITimeout", cfg.SuggestionAPITimeout, 5 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 12 * time.Second},
		{"RateLimitRPS", cfg.RateLimitRPS, 100},
		{"RateLimitBurst", cfg.RateLimitBurst, 250},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 5},
		{"CircuitBreakerSuccessThreshold", cfg.CircuitBreakerSuccessThreshold, 2},
		{"CircuitBreakerTimeout", cfg.CircuitBreakerTimeout, 30 * time.Second},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
		{"InFlightTimeout", cfg.InFlightTimeout, 10 * time.Second},
		{"DegradedWindow", cfg.DegradedWindow, 60 * time.Second},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_FailsWithoutRequiredSecrets(t *testing.T) {
	tests := []struct {
		name       string
		weatherKey string
		saasToken  string
		wantInErr  string
	}{
		{"no weather key", "", "saas-secret", "WEATHER_API_KEY"},
		{"no saas token", "weather-key", "", "SAAS_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSecrets(t, tt.weatherKey, tt.saasToken, "")
			dir := t.TempDir()
			writeEnvFile(t, dir, minimalEnvYAML)

			cfg, err := loadFrom(dir)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if cfg != nil {
				t.Fatalf("Load() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("Load() error = %v, want message containing %s", err, tt.wantInErr)
			}
		})
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	setSecrets(t, "", "", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-file\nsaas_token: token-from-file\ngemini_api_key: gemini-from-file\n")

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-file" || cfg.SaaSToken != "token-from-file" || cfg.SuggestionAPIKey != "gemini-from-file" {
		t.Errorf("secrets = %q/%q/%q, want values from secrets file", cfg.WeatherAPIKey, cfg.SaaSToken, cfg.SuggestionAPIKey)
	}
}

func TestLoad_EnvVarBeatsSecretsFile(t *testing.T) {
	setSecrets(t, "key-from-env", "", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-file\nsaas_token: token-from-file\n")

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want env value", cfg.WeatherAPIKey)
	}
	if cfg.SaaSToken != "token-from-file" {
		t.Errorf("SaaSToken = %q, want file value", cfg.SaaSToken)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	setSecrets(t, "weather-key", "", "")
	os.Unsetenv("SAAS_TOKEN")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SAAS_TOKEN=from-dotenv\nWEATHER_API_KEY=ignored\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SaaSToken != "from-dotenv" {
		t.Errorf("SaaSToken = %q, want value from .env", cfg.SaaSToken)
	}
	if cfg.WeatherAPIKey != "weather-key" {
		t.Errorf("WeatherAPIKey = %q, .env must not override the environment", cfg.WeatherAPIKey)
	}
}

func TestLoad_OptionsOverride(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte("server:\n  port: \"9000\"\nbanner: \"<p>prod</p>\"\n"), 0o644); err != nil {
		t.Fatalf("write prod.yaml: %v", err)
	}

	cfg, err := Load(Options{Env: "prod", Dir: dir, Port: "7000", DotEnv: filepath.Join(dir, ".env")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want flag value 7000", cfg.ServerPort)
	}
	if cfg.Banner != "<p>prod</p>" {
		t.Errorf("Banner = %q", cfg.Banner)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	t.Setenv("ENV_NAME", "staging")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("server:\n  port: \"8181\"\n"), 0o644); err != nil {
		t.Fatalf("write staging.yaml: %v", err)
	}

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != "staging" || cfg.ServerPort != "8181" {
		t.Errorf("Env/Port = %q/%q, want staging/8181", cfg.Env, cfg.ServerPort)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()

	cfg, err := Load(Options{Env: "nonexistent", Dir: dir, DotEnv: filepath.Join(dir, ".env")})
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	tests := []struct {
		name      string
		config    string
		secrets   string
		wantInErr string
	}{
		{"config", "server: [unterminated\n", "", "parse config file"},
		{"secrets", minimalEnvYAML, "weather_api_key: [unterminated\n", "parse secrets file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.config)
			if tt.secrets != "" {
				writeSecretsFile(t, dir, tt.secrets)
			}
			_, err := loadFrom(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("Load() error = %v, want %q", err, tt.wantInErr)
			}
		})
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: "not-a-duration"
suggestion_api:
  timeout: ""
reliability:
  circuit_breaker:
    timeout: "-5s"
shutdown:
  timeout: "soon"
`)

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 5*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want default 5s", cfg.WeatherAPITimeout)
	}
	if cfg.SuggestionAPITimeout != 5*time.Second {
		t.Errorf("SuggestionAPITimeout = %v, want default 5s", cfg.SuggestionAPITimeout)
	}
	if cfg.CircuitBreakerTimeout != 30*time.Second {
		t.Errorf("CircuitBreakerTimeout = %v, want default 30s", cfg.CircuitBreakerTimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_ValidationRejectsNonPositiveUpstreamTimeout(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	tests := []struct {
		name      string
		yaml      string
		wantInErr string
	}{
		{"weather zero", "weather_api:\n  timeout: \"0s\"\n", "weather_api.timeout"},
		{"suggestion negative", "suggestion_api:\n  timeout: \"-1s\"\n", "suggestion_api.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			_, err := loadFrom(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("Load() error = %v, want message containing %s", err, tt.wantInErr)
			}
		})
	}
}

func TestLoad_RequestTimeoutLiftedAboveUpstreamTimeouts(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: "3s"
suggestion_api:
  timeout: "4s"
request:
  timeout: "2s"
`)

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 8*time.Second {
		t.Errorf("RequestTimeout = %v, want 8s", cfg.RequestTimeout)
	}
}

func TestLoad_ReliabilityAndLifecycle(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
reliability:
  rate_limit_rps: 7
  rate_limit_burst: 9
  circuit_breaker:
    enabled: false
    failure_threshold: 3
    success_threshold: 1
    timeout: "15s"
shutdown:
  in_flight_timeout: "2s"
lifecycle:
  degraded_window: "30s"
  degraded_error_pct: 20
metrics:
  tracked_locations: ["Paris", "Kyiv"]
`)

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimitRPS != 7 || cfg.RateLimitBurst != 9 {
		t.Errorf("rate limit = %d/%d, want 7/9", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false")
	}
	if cfg.CircuitBreakerFailureThreshold != 3 || cfg.CircuitBreakerSuccessThreshold != 1 || cfg.CircuitBreakerTimeout != 15*time.Second {
		t.Errorf("breaker = %d/%d/%v", cfg.CircuitBreakerFailureThreshold, cfg.CircuitBreakerSuccessThreshold, cfg.CircuitBreakerTimeout)
	}
	if cfg.InFlightTimeout != 2*time.Second {
		t.Errorf("InFlightTimeout = %v, want 2s", cfg.InFlightTimeout)
	}
	if cfg.DegradedWindow != 30*time.Second || cfg.DegradedErrorPct != 20 {
		t.Errorf("degraded = %v/%d, want 30s/20", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
	if len(cfg.TrackedLocations) != 2 || cfg.TrackedLocations[1] != "Kyiv" {
		t.Errorf("TrackedLocations = %v", cfg.TrackedLocations)
	}
}

func TestLoad_RateLimitZeroDisablesLimiter(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"explicit zero", "reliability:\n  rate_limit_rps: 0\n", 0},
		{"absent", "server:\n  port: \"8080\"\n", 100},
		{"negative", "reliability:\n  rate_limit_rps: -3\n", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			cfg, err := loadFrom(dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.RateLimitRPS != tt.want {
				t.Errorf("RateLimitRPS = %d, want %d", cfg.RateLimitRPS, tt.want)
			}
		})
	}
}

func TestLoad_DegradedWindowCappedAtTrafficRetention(t *testing.T) {
	setSecrets(t, "weather-key", "saas-secret", "")
	dir := t.TempDir()
	writeEnvFile(t, dir, "lifecycle:\n  degraded_window: \"30m\"\n")

	cfg, err := loadFrom(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DegradedWindow != traffic.Retention {
		t.Errorf("DegradedWindow = %v, want %v", cfg.DegradedWindow, traffic.Retention)
	}
}
