package tokens

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter handles token counting for different models. Used by the probe
// to estimate prompt size when the server omits its usage block.
type Counter struct {
	// Cache encoders for reuse
	encoders map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter
func NewCounter() *Counter {
	return &Counter{
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// Count returns the number of tokens in a text for a given model
func (c *Counter) Count(text, model string) int {
	encoding := encodingName(model)

	encoder, ok := c.encoders[encoding]
	if !ok {
		var err error
		encoder, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			// Fallback to simple estimation if tiktoken fails
			return estimate(text)
		}
		c.encoders[encoding] = encoder
	}

	return len(encoder.Encode(text, nil, nil))
}

// CountMessages counts tokens for a slice of message contents
func (c *Counter) CountMessages(contents []string, model string) int {
	total := 0
	for _, content := range contents {
		// OpenAI format adds ~4 tokens per message for formatting
		total += c.Count(content, model) + 4
	}
	// Add 3 tokens for reply priming (assistant: )
	return total + 3
}

// encodingName returns the tiktoken encoding name for a model
func encodingName(model string) string {
	model = strings.ToLower(model)

	// GPT-4, GPT-3.5-turbo use cl100k_base; most modern models are close
	// enough to it for an estimate
	if strings.Contains(model, "gpt-4") || strings.Contains(model, "gpt-3.5") || strings.Contains(model, "gpt-35") {
		return "cl100k_base"
	}
	if strings.Contains(model, "claude") {
		return "cl100k_base"
	}
	return "cl100k_base"
}

// estimate provides a rough token estimate (chars/4)
func estimate(text string) int {
	return (len(text) + 3) / 4
}
