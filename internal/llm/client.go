package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/s33g/llm-probe/internal/config"
)

// Client handles communication with an OpenAI-compatible provider
type Client struct {
	httpClient *http.Client
	provider   *config.Provider
	apiKey     string
	logger     zerolog.Logger
}

// NewClient creates a new LLM client for a provider
func NewClient(provider *config.Provider, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	// Get API key from environment if specified
	apiKey := ""
	if provider.APIKeyEnv != "" {
		apiKey = os.Getenv(provider.APIKeyEnv)
		// API key is optional (e.g., for local Ollama)
	}

	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		provider: provider,
		apiKey:   apiKey,
		logger:   logger.With().Str("provider", provider.Name).Logger(),
	}, nil
}

// Chat sends a chat completion request and normalizes the response,
// tolerating malformed and stream-shaped bodies. The returned Result
// always carries usage metrics, zero-filled when the provider reported
// none.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Logger()

	raw, err := c.send(ctx, req, requestID, logger)
	if err != nil {
		return nil, err
	}

	// Check for errors
	if raw.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(raw.Body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", raw.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", raw.StatusCode, string(raw.Body))
	}

	// The last message in the request is the prompt being answered
	var prompt Message
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1]
	}

	return NewNormalizer(logger).Normalize(raw, prompt)
}

// ChatRaw sends a chat completion request and returns the raw exchange
// without normalizing or checking the HTTP status. Used by the probe's
// raw mode to dump exactly what the server sent.
func (c *Client) ChatRaw(ctx context.Context, req ChatRequest) (*RawResponse, error) {
	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Logger()
	return c.send(ctx, req, requestID, logger)
}

func (c *Client) send(ctx context.Context, req ChatRequest, requestID string, logger zerolog.Logger) (*RawResponse, error) {
	url := c.provider.BaseURL + "/chat/completions"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.Debug().
		Str("url", url).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Bool("stream", req.Stream).
		Msg("Sending chat completion request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return NewRawResponse(resp), nil
}

// Provider returns the provider configuration this client talks to
func (c *Client) Provider() *config.Provider {
	return c.provider
}
