package llm

import (
	"encoding/json"
	"net/http"
)

// Request and response types for OpenAI-compatible APIs

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	// Stream is always serialized so gateways don't default to SSE
	Stream bool `json:"stream"`
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatCompletion represents a chat completion response
type ChatCompletion struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	// Choices is a pointer so a response that omits the field entirely can
	// be told apart from one that returns an empty list
	Choices           *[]Choice `json:"choices"`
	Usage             *Usage    `json:"usage,omitempty"`
	SystemFingerprint string    `json:"system_fingerprint,omitempty"`
}

// HasChoices reports whether the response carried a choices field at all
func (c *ChatCompletion) HasChoices() bool {
	return c.Choices != nil
}

// ChoiceList returns the choices, or nil when the field was absent
func (c *ChatCompletion) ChoiceList() []Choice {
	if c.Choices == nil {
		return nil
	}
	return *c.Choices
}

// Choice represents a completion choice
type Choice struct {
	Index        int             `json:"index"`
	Message      Message         `json:"message"`
	FinishReason string          `json:"finish_reason"`
	Logprobs     json.RawMessage `json:"logprobs"`
}

// Usage represents token usage information as reported on the wire
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageMetrics is the normalized token accounting handed to callers.
// Always present on a Result, zero-filled when the server reported no
// usage block.
type UsageMetrics struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the normalized output of a chat completion call
type Result struct {
	// RawInput is the prompt message that was sent
	RawInput Message
	// RawOutput is the first choice's message as returned
	RawOutput Message
	// Content is the text content of the first choice
	Content string
	// Completion is the full (possibly reassembled) completion
	Completion *ChatCompletion
	// Usage is never absent; zero-filled when the server omitted it
	Usage UsageMetrics
	// Headers are the original response headers
	Headers http.Header
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
