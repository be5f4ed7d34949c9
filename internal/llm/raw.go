package llm

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// RawResponse captures a complete HTTP exchange for normalization and
// diagnostics: status, URL, headers and the raw body text.
type RawResponse struct {
	StatusCode int
	Status     string
	URL        string
	Headers    http.Header
	Body       []byte

	// ReadErr records a body read failure. Diagnostics substitute a
	// placeholder for the body instead of losing the rest of the exchange.
	ReadErr error
}

// NewRawResponse drains an *http.Response into a RawResponse. The response
// body is consumed; closing it remains the caller's responsibility.
func NewRawResponse(resp *http.Response) *RawResponse {
	raw := &RawResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		raw.URL = resp.Request.URL.String()
	}
	raw.Body, raw.ReadErr = io.ReadAll(resp.Body)
	return raw
}

// Parse attempts to decode the body into a structured completion. It
// returns either a *ChatCompletion or a plain string: bodies that are not
// JSON (such as an SSE stream served as text) survive as strings so stream
// detection can inspect them instead of failing outright.
func (r *RawResponse) Parse() (any, error) {
	if r.ReadErr != nil {
		return nil, r.ReadErr
	}
	if !r.jsonContentType() {
		return string(r.Body), nil
	}

	body := bytes.TrimSpace(r.Body)
	if len(body) > 0 && body[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		return s, nil
	}

	var completion ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

func (r *RawResponse) jsonContentType() bool {
	ct := r.Headers.Get("Content-Type")
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}
