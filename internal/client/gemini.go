package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/son-tlv/tavlui-hw1/internal/observability"
)

// DefaultGeminiURL is the generateContent endpoint the relay prompts.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// ErrNoSuggestion is returned when a 2xx reply carries no usable text.
var ErrNoSuggestion = errors.New("no suggestion in response")

// SuggestionClient turns a prompt into generated text.
type SuggestionClient interface {
	Suggest(ctx context.Context, prompt string) (string, error)
}

// GeminiClient calls Gemini's generateContent. An empty API key is allowed;
// every call then fails with ErrInvalidAPIKey without touching the network.
type GeminiClient struct {
	apiKey string
	apiURL string
	client *http.Client
}

func NewGeminiClient(apiKey, apiURL string, timeout time.Duration) *GeminiClient {
	if apiURL == "" {
		apiURL = DefaultGeminiURL
	}
	return &GeminiClient{
		apiKey: strings.TrimSpace(apiKey),
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text *string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Suggest makes exactly one call and returns the trimmed text of the first
// part of the first candidate.
func (c *GeminiClient) Suggest(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY not configured", ErrInvalidAPIKey)
	}
	start := time.Now()

	req, err := c.buildRequest(ctx, prompt)
	if err != nil {
		observability.SuggestionAPICallsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.SuggestionAPICallsTotal.WithLabelValues("error").Inc()
		observability.SuggestionAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	status := observability.StatusLabel(resp.StatusCode)
	observability.SuggestionAPICallsTotal.WithLabelValues(status).Inc()
	observability.SuggestionAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrUpstreamUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Provider: "Gemini", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp generateResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoSuggestion
	}
	text := apiResp.Candidates[0].Content.Parts[0].Text
	if text == nil || strings.TrimSpace(*text) == "" {
		return "", ErrNoSuggestion
	}
	return strings.TrimSpace(*text), nil
}

func (c *GeminiClient) buildRequest(ctx context.Context, prompt string) (*http.Request, error) {
	endpoint, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := endpoint.Query()
	params.Set("key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: &prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}
