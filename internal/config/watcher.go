package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches for configuration file changes so long-running monitor
// runs pick up provider changes without a restart
type Watcher struct {
	configPath string
	logger     zerolog.Logger
	watcher    *fsnotify.Watcher
	reloadFunc func(*Config) error
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWatcher creates a new config file watcher
func NewWatcher(configPath string, reloadFunc func(*Config) error, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(configPath); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		configPath: configPath,
		logger:     logger,
		watcher:    fsWatcher,
		reloadFunc: reloadFunc,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start starts watching for config changes. SIGHUP also triggers a reload.
func (w *Watcher) Start() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	go func() {
		defer w.watcher.Close()

		// Debounce timer to avoid multiple rapid reloads
		var debounceTimer *time.Timer
		const debounceDelay = 500 * time.Millisecond

		for {
			select {
			case <-w.ctx.Done():
				w.logger.Info().Msg("Config watcher stopped")
				return

			case sig := <-sigChan:
				w.logger.Info().
					Str("signal", sig.String()).
					Msg("Received signal, reloading configuration")
				w.reload()

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}

				// Only handle Write and Create events
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					w.logger.Debug().
						Str("file", event.Name).
						Str("op", event.Op.String()).
						Msg("Config file changed")

					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDelay, func() {
						w.reload()
					})
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error().Err(err).Msg("Config watcher error")
			}
		}
	}()

	w.logger.Info().
		Str("path", w.configPath).
		Msg("Config watcher started")
}

// Stop stops the watcher
func (w *Watcher) Stop() {
	w.cancel()
}

// reload loads and applies the new configuration. Load failures keep the
// current config.
func (w *Watcher) reload() {
	w.logger.Info().Msg("Reloading configuration...")

	newCfg, err := Load(w.configPath)
	if err != nil {
		w.logger.Error().
			Err(err).
			Msg("Failed to load new configuration - keeping current config")
		return
	}

	if err := w.reloadFunc(newCfg); err != nil {
		w.logger.Error().
			Err(err).
			Msg("Failed to apply new configuration - keeping current config")
		return
	}

	w.logger.Info().Msg("Configuration reloaded successfully")
}
