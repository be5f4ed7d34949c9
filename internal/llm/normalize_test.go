package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// newTestNormalizer returns a Normalizer writing JSON log records into buf
func newTestNormalizer(buf *bytes.Buffer) *Normalizer {
	return NewNormalizer(zerolog.New(buf))
}

func rawResponse(body, contentType string) *RawResponse {
	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	return &RawResponse{
		StatusCode: 200,
		Status:     "200 OK",
		URL:        "http://localhost/v1/chat/completions",
		Headers:    headers,
		Body:       []byte(body),
	}
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("Failed to parse log record %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

func TestNormalize_ValidCompletion(t *testing.T) {
	body := `{
		"id": "cmpl-123",
		"object": "chat.completion",
		"created": 1234567890,
		"model": "test-model",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": "This is a test response."},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18}
	}`

	var buf bytes.Buffer
	prompt := Message{Role: "user", Content: "Hello!"}
	result, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "application/json"), prompt)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if result.Content != "This is a test response." {
		t.Errorf("Content = %q, want 'This is a test response.'", result.Content)
	}
	if result.RawOutput.Role != "assistant" {
		t.Errorf("RawOutput.Role = %q, want assistant", result.RawOutput.Role)
	}
	if result.RawInput != prompt {
		t.Errorf("RawInput = %+v, want %+v", result.RawInput, prompt)
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 8 {
		t.Errorf("Usage = %+v, want input=10 output=8", result.Usage)
	}
	if result.Completion.ID != "cmpl-123" {
		t.Errorf("Completion.ID = %q, want cmpl-123", result.Completion.ID)
	}
	if result.Headers.Get("Content-Type") != "application/json" {
		t.Error("Headers were not carried through")
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no log records, got %s", buf.String())
	}
}

func TestNormalize_UsageAbsentDefaultsToZero(t *testing.T) {
	body := `{"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi"}, "finish_reason": "stop"}]}`

	var buf bytes.Buffer
	result, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "application/json"), Message{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if result.Usage != (UsageMetrics{}) {
		t.Errorf("Usage = %+v, want zero-filled", result.Usage)
	}
}

func TestNormalize_ParseFailure(t *testing.T) {
	body := `{"choices": [not valid json`

	var buf bytes.Buffer
	_, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "application/json"), Message{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	// The original decode error must surface unchanged
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("Expected *json.SyntaxError, got %T", err)
	}

	records := logRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 log record, got %d", len(records))
	}
	if records[0]["level"] != "error" {
		t.Errorf("Log level = %v, want error", records[0]["level"])
	}
	details, ok := records[0]["details"].(map[string]any)
	if !ok {
		t.Fatal("Log record has no details mapping")
	}
	if details["response_body"] != body {
		t.Errorf("response_body = %v, want %q", details["response_body"], body)
	}
}

func TestNormalize_MissingChoices(t *testing.T) {
	body := `{"id": "cmpl-123", "object": "chat.completion", "model": "test-model"}`

	var buf bytes.Buffer
	_, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "application/json"), Message{})
	if !errors.Is(err, ErrMissingChoices) {
		t.Fatalf("Expected ErrMissingChoices, got %v", err)
	}

	records := logRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 log record, got %d", len(records))
	}
	message, _ := records[0]["message"].(string)
	if !strings.Contains(message, "missing 'choices'") {
		t.Errorf("Log message %q does not mention missing 'choices'", message)
	}
}

func TestNormalize_EmptyChoices(t *testing.T) {
	body := `{"id": "cmpl-123", "choices": []}`

	var buf bytes.Buffer
	_, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "application/json"), Message{})
	if !errors.Is(err, ErrNoChoicesAvailable) {
		t.Fatalf("Expected ErrNoChoicesAvailable, got %v", err)
	}
	if errors.Is(err, ErrMissingChoices) {
		t.Error("Empty and missing choices must be distinct failures")
	}

	records := logRecords(t, &buf)
	if len(records) != 1 || records[0]["level"] != "error" {
		t.Errorf("Expected exactly 1 error record, got %s", buf.String())
	}
}

func TestNormalize_StreamReassembly(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"delta":{"content":" World"}}]}`,
		`data: [DONE]`,
	}, "\n")

	var buf bytes.Buffer
	result, err := newTestNormalizer(&buf).Normalize(rawResponse(body, "text/event-stream"), Message{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	// Delta contents concatenate in order with no separator
	if result.Content != "Hello World" {
		t.Errorf("Content = %q, want 'Hello World'", result.Content)
	}

	completion := result.Completion
	if completion.ID != "streamed-response" {
		t.Errorf("ID = %q, want streamed-response", completion.ID)
	}
	if completion.Object != "chat.completion" {
		t.Errorf("Object = %q, want chat.completion", completion.Object)
	}
	if completion.Model != "unknown-model" {
		t.Errorf("Model = %q, want unknown-model", completion.Model)
	}
	choices := completion.ChoiceList()
	if len(choices) != 1 {
		t.Fatalf("Choices = %d, want 1", len(choices))
	}
	if choices[0].FinishReason != "stop" || choices[0].Message.Role != "assistant" {
		t.Errorf("Synthetic choice = %+v", choices[0])
	}

	// Coercion is logged at warning level with the original body
	records := logRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 log record, got %d", len(records))
	}
	if records[0]["level"] != "warn" {
		t.Errorf("Log level = %v, want warn", records[0]["level"])
	}
}

func TestNormalize_StreamOnlyDone(t *testing.T) {
	// No decodable payload: the string passes through unchanged and fails
	// choices validation
	var buf bytes.Buffer
	_, err := newTestNormalizer(&buf).Normalize(rawResponse("data: [DONE]\n", "text/event-stream"), Message{})
	if !errors.Is(err, ErrMissingChoices) {
		t.Fatalf("Expected ErrMissingChoices, got %v", err)
	}
}

func TestNormalize_BodyReadFailure(t *testing.T) {
	raw := rawResponse("", "application/json")
	raw.Body = nil
	raw.ReadErr = errors.New("connection reset")

	var buf bytes.Buffer
	_, err := newTestNormalizer(&buf).Normalize(raw, Message{})
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("Expected the read error to surface, got %v", err)
	}

	records := logRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 log record, got %d", len(records))
	}
	details, _ := records[0]["details"].(map[string]any)
	body, _ := details["response_body"].(string)
	if !strings.Contains(body, "<failed to read response body: connection reset>") {
		t.Errorf("response_body = %q, want read-failure placeholder", body)
	}
}

func TestCoalesceStreamChunks_Metadata(t *testing.T) {
	body := strings.Join([]string{
		`data: {"id":"cmpl-9","model":"gpt-4o","created":1700000000,"choices":[{"delta":{"content":"hi"}}]}`,
		`data: {"id":"cmpl-9","model":"gpt-4o","created":1700000000,"system_fingerprint":"fp_44709d","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		`data: [DONE]`,
	}, "\n")

	completion := coalesceStreamChunks(body)
	if completion == nil {
		t.Fatal("Expected reassembly, got nil")
	}

	if completion.ID != "cmpl-9" {
		t.Errorf("ID = %q, want cmpl-9", completion.ID)
	}
	if completion.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", completion.Model)
	}
	if completion.Created != 1700000000 {
		t.Errorf("Created = %d, want 1700000000", completion.Created)
	}
	if completion.SystemFingerprint != "fp_44709d" {
		t.Errorf("SystemFingerprint = %q, want fp_44709d", completion.SystemFingerprint)
	}
	if completion.Usage == nil || completion.Usage.PromptTokens != 5 || completion.Usage.CompletionTokens != 2 {
		t.Errorf("Usage = %+v, want prompt=5 completion=2", completion.Usage)
	}
}

func TestCoalesceStreamChunks_SkipsMalformedLines(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {broken`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`: comment line`,
		`data:`,
		`data: [DONE]`,
	}, "\n")

	completion := coalesceStreamChunks(body)
	if completion == nil {
		t.Fatal("Expected reassembly, got nil")
	}
	if content := completion.ChoiceList()[0].Message.Content; content != "ab" {
		t.Errorf("Content = %q, want 'ab'", content)
	}
}

func TestCoalesceStreamChunks_NonObjectUsageIgnored(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"x"}}],"usage":42}`

	completion := coalesceStreamChunks(body)
	if completion == nil {
		t.Fatal("Expected reassembly, got nil")
	}
	if completion.Usage != nil {
		t.Errorf("Usage = %+v, want nil for non-mapping usage", completion.Usage)
	}
}

func TestCoalesceStreamChunks_NoDecodableLines(t *testing.T) {
	if got := coalesceStreamChunks("data: [DONE]\n"); got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
	if got := coalesceStreamChunks("not sse at all"); got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
}

func TestCoalesceStreamChunks_Idempotent(t *testing.T) {
	body := strings.Join([]string{
		`data: {"id":"cmpl-1","choices":[{"delta":{"content":"one"}}]}`,
		`data: {"id":"cmpl-1","choices":[{"delta":{"content":" two"}}]}`,
		`data: [DONE]`,
	}, "\n")

	first := coalesceStreamChunks(body)
	second := coalesceStreamChunks(body)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Reassembly is not idempotent: %+v vs %+v", first, second)
	}
}

func TestLooksLikeSSEStream(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"data: {}", true},
		{"  \n data: [DONE]", true},
		{"data:", true},
		{"{\"choices\": []}", false},
		{"plain text", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := looksLikeSSEStream(tt.text); got != tt.want {
			t.Errorf("looksLikeSSEStream(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestBuildResponseDetails(t *testing.T) {
	raw := rawResponse(`{"ok": true}`, "application/json")

	details := buildResponseDetails(raw, &ChatCompletion{})
	if details.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", details.StatusCode)
	}
	if details.URL != "http://localhost/v1/chat/completions" {
		t.Errorf("URL = %q", details.URL)
	}
	if details.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers = %v", details.Headers)
	}
	if details.ParsedType != "ChatCompletion" {
		t.Errorf("ParsedType = %q, want ChatCompletion", details.ParsedType)
	}

	// Nothing parsed yet
	if got := buildResponseDetails(raw, nil).ParsedType; got != "" {
		t.Errorf("ParsedType = %q, want empty", got)
	}
	if got := buildResponseDetails(raw, "text").ParsedType; got != "string" {
		t.Errorf("ParsedType = %q, want string", got)
	}

	summary := details.Summary()
	for _, part := range []string{"status=200", "url=http://localhost", "parsed=ChatCompletion", `body={"ok": true}`} {
		if !strings.Contains(summary, part) {
			t.Errorf("Summary %q missing %q", summary, part)
		}
	}
}
