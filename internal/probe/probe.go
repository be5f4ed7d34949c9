package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s33g/llm-probe/internal/config"
	"github.com/s33g/llm-probe/internal/llm"
	"github.com/s33g/llm-probe/internal/tokens"
	"github.com/s33g/llm-probe/internal/usage"
)

// Exit codes reported by the CLI
const (
	ExitOK            = 0 // request succeeded
	ExitRequestFailed = 1 // request could not be sent or response was unusable
	ExitHTTPError     = 2 // server answered with an error status
)

// Options control a single probe run
type Options struct {
	// Provider to use; defaults to the first configured provider
	Provider string
	// Model to request; accepts "provider/model" references. Defaults to
	// the provider's default model, then its first model.
	Model string
	// Prompt to send
	Prompt string
	// Stream asks the server for an SSE response
	Stream bool
	// Raw dumps the wire response instead of normalizing it
	Raw bool
}

// Prober sends chat completion requests to configured providers and
// reports on what came back
type Prober struct {
	mu       sync.RWMutex
	cfg      *config.Config
	registry *llm.Registry

	counter  *tokens.Counter
	recorder *usage.Recorder // nil when usage tracking is disabled
	out      io.Writer
	logger   zerolog.Logger
}

// New creates a Prober for the given configuration
func New(cfg *config.Config, recorder *usage.Recorder, out io.Writer, logger zerolog.Logger) (*Prober, error) {
	registry, err := llm.NewRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Prober{
		cfg:      cfg,
		registry: registry,
		counter:  tokens.NewCounter(),
		recorder: recorder,
		out:      out,
		logger:   logger,
	}, nil
}

// Reload swaps in a new configuration. Called by the config watcher in
// monitor mode.
func (p *Prober) Reload(cfg *config.Config) error {
	registry, err := llm.NewRegistry(cfg, p.logger)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.cfg = cfg
	p.registry = registry
	p.mu.Unlock()
	return nil
}

func (p *Prober) snapshot() (*config.Config, *llm.Registry) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg, p.registry
}

// Run performs a single probe and returns the exit code
func (p *Prober) Run(ctx context.Context, opts Options) int {
	cfg, registry := p.snapshot()

	provider, modelID, err := resolveTarget(cfg, opts)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to resolve probe target")
		return ExitRequestFailed
	}

	client, err := registry.GetClient(provider.Name)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to get provider client")
		return ExitRequestFailed
	}

	req := llm.ChatRequest{
		Model:       modelID,
		Messages:    []llm.Message{{Role: "user", Content: opts.Prompt}},
		MaxTokens:   provider.DefaultMaxTokensFor(cfg.Defaults),
		Temperature: cfg.Defaults.Temperature,
		Stream:      opts.Stream,
	}

	if opts.Raw {
		return p.runRaw(ctx, client, req, opts)
	}
	return p.runNormalized(ctx, client, req, opts)
}

// Monitor probes repeatedly until the context is cancelled
func (p *Prober) Monitor(ctx context.Context, opts Options, interval time.Duration) {
	p.logger.Info().Dur("interval", interval).Msg("Starting monitor mode")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Run(ctx, opts)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Monitor stopped")
			return
		case <-ticker.C:
			p.Run(ctx, opts)
		}
	}
}

// runRaw dumps the wire exchange the way a manual smoke test would:
// status line, headers, then the body (pretty-printed when it is JSON and
// streaming was not requested)
func (p *Prober) runRaw(ctx context.Context, client *llm.Client, req llm.ChatRequest, opts Options) int {
	raw, err := client.ChatRaw(ctx, req)
	if err != nil {
		p.logger.Error().Err(err).Msg("Request failed")
		return ExitRequestFailed
	}

	fmt.Fprintf(p.out, "HTTP %s\n", raw.Status)
	fmt.Fprintln(p.out, "-- response headers --")
	for _, key := range sortedHeaderKeys(raw.Headers) {
		fmt.Fprintf(p.out, "%s: %s\n", key, raw.Headers.Get(key))
	}

	fmt.Fprintln(p.out, "\n-- response body --")
	switch {
	case raw.ReadErr != nil:
		fmt.Fprintf(p.out, "<failed to read body: %v>\n", raw.ReadErr)
	case !opts.Stream && json.Valid(raw.Body):
		var pretty map[string]any
		if err := json.Unmarshal(raw.Body, &pretty); err == nil {
			indented, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintf(p.out, "%s\n", indented)
		} else {
			fmt.Fprintf(p.out, "%s\n", raw.Body)
		}
	default:
		fmt.Fprintf(p.out, "%s\n", raw.Body)
	}

	if raw.StatusCode >= 400 {
		return ExitHTTPError
	}
	return ExitOK
}

// runNormalized pushes the response through the Normalizer and reports the
// extracted content and usage
func (p *Prober) runNormalized(ctx context.Context, client *llm.Client, req llm.ChatRequest, opts Options) int {
	raw, err := client.ChatRaw(ctx, req)
	if err != nil {
		p.logger.Error().Err(err).Msg("Request failed")
		return ExitRequestFailed
	}

	if raw.StatusCode != http.StatusOK {
		fmt.Fprintf(p.out, "HTTP %s\n%s\n", raw.Status, raw.Body)
		return ExitHTTPError
	}

	result, err := llm.NewNormalizer(p.logger).Normalize(raw, req.Messages[len(req.Messages)-1])
	if err != nil {
		// Diagnostics were already logged by the Normalizer
		return ExitRequestFailed
	}

	fmt.Fprintf(p.out, "HTTP %s\n", raw.Status)
	fmt.Fprintf(p.out, "model: %s\n", result.Completion.Model)
	fmt.Fprintf(p.out, "content:\n%s\n", result.Content)

	if result.Usage == (llm.UsageMetrics{}) {
		estimated := p.counter.Count(opts.Prompt, req.Model)
		fmt.Fprintf(p.out, "usage: not reported (estimated prompt tokens: %d)\n", estimated)
	} else {
		fmt.Fprintf(p.out, "usage: input=%d output=%d\n",
			result.Usage.InputTokens, result.Usage.OutputTokens)
	}

	p.recordUsage(ctx, req.Model, result.Usage)
	return ExitOK
}

func (p *Prober) recordUsage(ctx context.Context, model string, metrics llm.UsageMetrics) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, model, metrics); err != nil {
		// Usage tracking is best-effort; the probe result stands
		p.logger.Warn().Err(err).Msg("Failed to record usage")
	}
}

// resolveTarget picks the provider and model for a run, applying defaults
// when the options leave them unset
func resolveTarget(cfg *config.Config, opts Options) (*config.Provider, string, error) {
	// A provider/model reference selects both at once
	if opts.Model != "" {
		for _, ch := range opts.Model {
			if ch == '/' {
				provider, model, err := cfg.ResolveModel(opts.Model)
				if err != nil {
					return nil, "", err
				}
				return provider, model.ID, nil
			}
		}
	}

	var provider *config.Provider
	if opts.Provider != "" {
		found, err := cfg.GetProvider(opts.Provider)
		if err != nil {
			return nil, "", err
		}
		provider = found
	} else {
		if len(cfg.Providers) == 0 {
			return nil, "", fmt.Errorf("no providers configured")
		}
		provider = &cfg.Providers[0]
	}

	modelID := opts.Model
	if modelID == "" {
		modelID = provider.DefaultModel
	}
	if modelID == "" {
		modelID = provider.Models[0].ID
	}

	// Unknown model IDs are allowed through: probing what a server does
	// with them is a legitimate use
	return provider, modelID, nil
}

func sortedHeaderKeys(headers http.Header) []string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
