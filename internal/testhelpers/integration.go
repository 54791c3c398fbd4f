//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/son-tlv/tavlui-hw1/internal/client"
	"github.com/son-tlv/tavlui-hw1/internal/service"
	"github.com/son-tlv/tavlui-hw1/internal/suggestion"
)

// IntegrationTestConfig holds the live provider settings for integration tests.
type IntegrationTestConfig struct {
	WeatherAPIKey    string
	WeatherAPIURL    string
	SuggestionAPIKey string
	SuggestionAPIURL string
}

// GetIntegrationConfig reads provider settings from the environment.
// Skips the test if WEATHER_API_KEY is not set. GEMINI_API_KEY is optional.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		WeatherAPIKey:    apiKey,
		WeatherAPIURL:    os.Getenv("WEATHER_API_URL"),
		SuggestionAPIKey: os.Getenv("GEMINI_API_KEY"),
		SuggestionAPIURL: os.Getenv("GEMINI_API_URL"),
	}
}

// SetupIntegrationRelay builds a relay service against the live providers.
func SetupIntegrationRelay(t *testing.T, cfg IntegrationTestConfig) *service.RelayService {
	t.Helper()
	weatherClient, err := client.NewVisualCrossingClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, 10*time.Second)
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	geminiClient := client.NewGeminiClient(cfg.SuggestionAPIKey, cfg.SuggestionAPIURL, 10*time.Second)
	return service.NewRelayService(weatherClient, suggestion.NewFetcher(geminiClient))
}
