package llm

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/s33g/llm-probe/internal/config"
)

// Registry manages LLM providers and their clients
type Registry struct {
	clients map[string]*Client // key: provider name
	mu      sync.RWMutex
	config  *config.Config
}

// NewRegistry creates a new provider registry
func NewRegistry(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]*Client),
		config:  cfg,
	}

	timeout := cfg.Defaults.RequestTimeout()
	for i := range cfg.Providers {
		client, err := NewClient(&cfg.Providers[i], timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for provider %s: %w", cfg.Providers[i].Name, err)
		}
		r.clients[cfg.Providers[i].Name] = client
	}

	return r, nil
}

// GetClient returns the client for a provider
func (r *Registry) GetClient(providerName string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[providerName]
	if !ok {
		return nil, fmt.Errorf("no client for provider %s", providerName)
	}
	return client, nil
}

// Config returns the configuration the registry was built from
func (r *Registry) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
