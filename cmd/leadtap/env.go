package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/config"
	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/contact"
	"github.com/rendis/leadtap/internal/engine/fetch"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

// loadConfig loads the .env file, then the YAML config over the defaults.
func loadConfig(path, envPath string) (*config.Config, error) {
	if err := config.LoadEnv(envPath); err != nil {
		return nil, err
	}
	return config.Load(path)
}

// outputPaths creates dir and returns timestamped database and log paths in it.
func outputPaths(dir, prefix string) (dbPath, logPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating output dir: %w", err)
	}
	base := fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
	return filepath.Join(dir, base+".db"), filepath.Join(dir, base+".log"), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(quiet bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if !quiet {
				fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func newEnv(cfg *config.Config, stats *model.Stats, logger logrus.FieldLogger) provider.Env {
	env := provider.Env{
		Browser: browser.NewManager(cfg.Browser.Engine, logger),
		Options: cfg.BrowserOptions(),
		Pacing: provider.Pacing{
			Delay:           cfg.Pacing.Delay.Duration,
			Jitter:          cfg.Pacing.Jitter.Duration,
			Settle:          cfg.Pacing.Settle.Duration,
			ReadyTimeout:    cfg.Pacing.ReadyTimeout.Duration,
			BlockDelay:      cfg.Pacing.BlockDelay.Duration,
			MaxScrollRounds: cfg.Pacing.MaxScrollRounds,
			DetailWorkers:   cfg.DetailWorkers,
		},
		ContactTimeout: cfg.Contacts.Timeout.Duration,
		Stats:          stats,
		Logger:         logger,
	}
	if cfg.Contacts.Enabled {
		env.Contacts = contact.NewFinder(fetch.New(cfg.FetchOptions(), logger), cfg.FinderOptions(), logger)
	}
	return env
}

const rule = "══════════════════════════════"

func summary(title string, rows [][2]string) {
	fmt.Fprintf(os.Stderr, "\n%s\n  %s\n%s\n", rule, title, rule)
	for _, r := range rows {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", r[0]+":", r[1])
	}
	fmt.Fprintln(os.Stderr, rule)
}
