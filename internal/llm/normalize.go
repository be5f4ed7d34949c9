package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Normalizer validates raw chat-completion responses and extracts the first
// choice, logging full response diagnostics on every failure mode. Some
// gateways serve a text/event-stream body even when streaming was not
// requested; the Normalizer reassembles those into a single completion
// rather than failing the call.
//
// A Normalizer holds no state between calls and is safe for concurrent use.
type Normalizer struct {
	logger zerolog.Logger
}

// NewNormalizer creates a Normalizer that logs through the given logger
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// ResponseDetails is the diagnostic context attached to every log record
// emitted while normalizing a response
type ResponseDetails struct {
	StatusCode   int               `json:"status_code"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	ResponseBody string            `json:"response_body"`
	// ParsedType names the Go type the body decoded into, empty when
	// nothing was parsed yet
	ParsedType string `json:"parsed_type,omitempty"`
}

// Summary renders the details as a one-line human-readable string
func (d ResponseDetails) Summary() string {
	return fmt.Sprintf("status=%d url=%s parsed=%s body=%s",
		d.StatusCode, d.URL, d.ParsedType, d.ResponseBody)
}

// buildResponseDetails collects response metadata for logging. A body read
// failure becomes a placeholder string; it never masks the error actually
// being reported.
func buildResponseDetails(raw *RawResponse, parsed any) ResponseDetails {
	headers := make(map[string]string, len(raw.Headers))
	for key, values := range raw.Headers {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	body := string(raw.Body)
	if raw.ReadErr != nil {
		body = fmt.Sprintf("<failed to read response body: %v>", raw.ReadErr)
	}

	return ResponseDetails{
		StatusCode:   raw.StatusCode,
		URL:          raw.URL,
		Headers:      headers,
		ResponseBody: body,
		ParsedType:   typeName(parsed),
	}
}

// typeName returns a bare type name for diagnostics ("ChatCompletion",
// "string"), or empty when nothing was parsed
func typeName(parsed any) string {
	if parsed == nil {
		return ""
	}
	name := fmt.Sprintf("%T", parsed)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Normalize turns a raw response into a validated Result. The prompt
// message is carried through so callers get the full exchange back.
//
// Failure modes: body decode errors are logged and returned unchanged,
// a completion without a choices field fails with ErrMissingChoices, and
// a completion with an empty choices list fails with ErrNoChoicesAvailable.
func (n *Normalizer) Normalize(raw *RawResponse, prompt Message) (*Result, error) {
	parsed, err := raw.Parse()
	if err != nil {
		details := buildResponseDetails(raw, nil)
		n.logger.Error().Err(err).Interface("details", details).
			Msgf("Failed to parse response from LLM; %s", details.Summary())
		return nil, err
	}

	normalized := n.normalizeCompletion(parsed, raw)

	completion, ok := normalized.(*ChatCompletion)
	if !ok || !completion.HasChoices() {
		details := buildResponseDetails(raw, normalized)
		n.logger.Error().Interface("details", details).
			Msgf("LLM response missing 'choices' field; %s", details.Summary())
		return nil, ErrMissingChoices
	}

	choices := completion.ChoiceList()
	if len(choices) == 0 {
		details := buildResponseDetails(raw, normalized)
		n.logger.Error().Interface("details", details).
			Msgf("LLM response contained no choices; %s", details.Summary())
		return nil, ErrNoChoicesAvailable
	}

	result := choices[0].Message

	metrics := UsageMetrics{}
	if completion.Usage != nil {
		metrics.InputTokens = completion.Usage.PromptTokens
		metrics.OutputTokens = completion.Usage.CompletionTokens
	}

	return &Result{
		RawInput:   prompt,
		RawOutput:  result,
		Content:    result.Content,
		Completion: completion,
		Usage:      metrics,
		Headers:    raw.Headers,
	}, nil
}

// normalizeCompletion coerces SSE text that leaked through as a plain
// string into a completion object; anything else passes through untouched.
// A successful coercion is logged at warning level with full diagnostics.
func (n *Normalizer) normalizeCompletion(parsed any, raw *RawResponse) any {
	text, ok := parsed.(string)
	if !ok || !looksLikeSSEStream(text) {
		return parsed
	}

	assembled := coalesceStreamChunks(text)
	if assembled == nil {
		return parsed
	}

	details := buildResponseDetails(raw, nil)
	n.logger.Warn().Interface("details", details).
		Msgf("Coerced streaming response into chat completion; %s", details.Summary())
	return assembled
}

// looksLikeSSEStream reports whether a body that parsed as a plain string
// is actually a serialized server-sent-events stream. Kept as a named
// predicate so the heuristic can be tightened without touching reassembly.
func looksLikeSSEStream(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "data:")
}

// streamChunk is the subset of a streaming delta payload that reassembly
// cares about. Usage stays raw so it is only copied when it is actually a
// JSON object.
type streamChunk struct {
	ID                string          `json:"id"`
	Model             string          `json:"model"`
	Created           int64           `json:"created"`
	SystemFingerprint string          `json:"system_fingerprint"`
	Usage             json.RawMessage `json:"usage"`
	Choices           []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// coalesceStreamChunks reassembles an SSE body into a single completion.
// Delta contents are concatenated in stream order with no separator. The
// last decodable payload supplies top-level metadata. Returns nil when no
// payload decodes, in which case the caller keeps the original string.
//
// Pure function of its input: no logging, no shared state.
func coalesceStreamChunks(text string) *ChatCompletion {
	var content strings.Builder
	var last *streamChunk

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Individually malformed lines are skipped, not fatal
			continue
		}
		last = &chunk

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
			}
		}
	}

	if last == nil {
		return nil
	}

	completion := &ChatCompletion{
		ID:      last.ID,
		Object:  "chat.completion",
		Created: last.Created,
		Model:   last.Model,
		Choices: &[]Choice{{
			Index: 0,
			Message: Message{
				Role:    "assistant",
				Content: content.String(),
			},
			FinishReason: "stop",
			Logprobs:     nil,
		}},
		SystemFingerprint: last.SystemFingerprint,
	}
	if completion.ID == "" {
		completion.ID = "streamed-response"
	}
	if completion.Model == "" {
		completion.Model = "unknown-model"
	}

	if isJSONObject(last.Usage) {
		var usage Usage
		if err := json.Unmarshal(last.Usage, &usage); err == nil {
			completion.Usage = &usage
		}
	}

	return completion
}

// isJSONObject reports whether a raw JSON value is a mapping
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
