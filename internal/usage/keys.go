package usage

import (
	"fmt"
)

// Keys generates Redis keys with consistent naming
type Keys struct {
	prefix string
}

// NewKeys creates a new Keys generator
func NewKeys(prefix string) *Keys {
	return &Keys{prefix: prefix}
}

// Usage returns the key for a model's daily usage counters
func (k *Keys) Usage(model, date string) string {
	return fmt.Sprintf("%susage:%s:%s", k.prefix, model, date)
}
