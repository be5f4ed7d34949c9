package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/s33g/llm-probe/internal/config"
	"github.com/s33g/llm-probe/internal/probe"
	"github.com/s33g/llm-probe/internal/usage"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	baseURL := flag.String("base-url", os.Getenv("LLM_PROBE_BASE_URL"), "Probe a single endpoint directly, bypassing the config file")
	apiKeyEnv := flag.String("api-key-env", "LLM_PROBE_API_KEY", "Environment variable holding the API key (with -base-url)")
	providerName := flag.String("provider", "", "Provider to probe (defaults to the first configured provider)")
	model := flag.String("model", "", "Model to request (accepts provider/model references)")
	promptFlag := flag.String("prompt", "", "Prompt to send (overrides the positional argument)")
	stream := flag.Bool("stream", false, "Ask the server for a streaming response")
	raw := flag.Bool("raw", false, "Dump the raw wire response instead of normalizing it")
	timeout := flag.Duration("timeout", 0, "Request timeout override (e.g. 60s)")
	interval := flag.Duration("interval", 0, "Probe repeatedly at this interval (monitor mode)")
	flag.Parse()

	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := log.With().Str("component", "probe").Logger()

	// Load configuration, or build one from flags when probing a single
	// endpoint directly
	var cfg *config.Config
	var err error
	if *baseURL != "" {
		cfg = adHocConfig(*baseURL, *apiKeyEnv, *model)
	} else {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load configuration")
		}
	}
	applyLogging(cfg.Logging, &logger)

	if *timeout > 0 {
		cfg.Defaults.RequestTimeoutSeconds = int(timeout.Seconds())
	}

	prompt := *promptFlag
	if prompt == "" && flag.NArg() > 0 {
		prompt = strings.Join(flag.Args(), " ")
	}
	if prompt == "" {
		prompt = "Say hello"
	}

	// Usage tracking is optional
	var recorder *usage.Recorder
	if cfg.Usage.Enabled {
		recorder, err = usage.NewRecorder(cfg.Usage)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect usage recorder")
		}
		defer recorder.Close()
	}

	prober, err := probe.New(cfg, recorder, os.Stdout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create prober")
	}

	opts := probe.Options{
		Provider: *providerName,
		Model:    *model,
		Prompt:   prompt,
		Stream:   *stream,
		Raw:      *raw,
	}

	if *interval <= 0 {
		os.Exit(prober.Run(context.Background(), opts))
	}

	// Monitor mode: hot-reload the config file while looping
	if *baseURL == "" {
		watcher, err := config.NewWatcher(*configPath, prober.Reload, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create config watcher")
		}
		watcher.Start()
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sc
		logger.Info().Msg("Shutting down...")
		cancel()
	}()

	prober.Monitor(ctx, opts, *interval)
}

// adHocConfig builds a single-provider configuration from command line
// flags, for smoke-testing an endpoint without a config file
func adHocConfig(baseURL, apiKeyEnv, model string) *config.Config {
	if model == "" {
		model = "gpt-4o"
	}

	cfg := config.DefaultConfig()
	cfg.Providers = []config.Provider{{
		Name:         "cli",
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKeyEnv:    apiKeyEnv,
		DefaultModel: model,
		Models: []config.Model{
			{ID: model, DisplayName: model},
		},
	}}
	return cfg
}

// applyLogging adjusts the global log level and format from configuration
func applyLogging(cfg config.LoggingConfig, logger *zerolog.Logger) {
	if level, err := zerolog.ParseLevel(cfg.Level); err == nil && cfg.Level != "" {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		*logger = log.With().Str("component", "probe").Logger()
	}
}
