// Package config loads the scanner configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/leadtap/internal/engine/browser"
	"github.com/rendis/leadtap/internal/engine/contact"
	"github.com/rendis/leadtap/internal/engine/fetch"
)

// PeopleCookieEnv names the variable holding the professional network session cookie.
const PeopleCookieEnv = "LEADTAP_PEOPLE_COOKIE"

type Config struct {
	Browser          BrowserConfig  `yaml:"browser"`
	Pacing           PacingConfig   `yaml:"pacing"`
	Contacts         ContactsConfig `yaml:"contacts"`
	Fetch            FetchConfig    `yaml:"fetch"`
	Concurrency      int            `yaml:"concurrency"`
	DetailWorkers    int            `yaml:"detail_workers"`
	OperationTimeout Duration       `yaml:"operation_timeout"`
	Logging          LoggingConfig  `yaml:"logging"`
}

// BrowserConfig controls sessions and page setup.
type BrowserConfig struct {
	Engine            string            `yaml:"engine"`
	Headless          bool              `yaml:"headless"`
	Bin               string            `yaml:"bin"`
	ViewportWidth     int               `yaml:"viewport_width"`
	ViewportHeight    int               `yaml:"viewport_height"`
	UserAgent         string            `yaml:"user_agent"`
	RandomAgent       bool              `yaml:"random_agent"`
	Headers           map[string]string `yaml:"headers"`
	Evasion           bool              `yaml:"evasion"`
	NavigationTimeout Duration          `yaml:"navigation_timeout"`
}

// PacingConfig holds the waits between list pages, scroll rounds and detail views.
type PacingConfig struct {
	Delay           Duration `yaml:"delay"`
	Jitter          Duration `yaml:"jitter"`
	Settle          Duration `yaml:"settle"`
	MaxScrollRounds int      `yaml:"max_scroll_rounds"`
	ReadyTimeout    Duration `yaml:"ready_timeout"`
	BlockDelay      Duration `yaml:"block_delay"`
}

// ContactsConfig controls the website contact finder.
type ContactsConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Paths         []string `yaml:"paths"`
	MaxPages      int      `yaml:"max_pages"`
	CheckMX       bool     `yaml:"check_mx"`
	RespectRobots bool     `yaml:"respect_robots"`
	Timeout       Duration `yaml:"timeout"`
	Resolvers     []string `yaml:"resolvers"`
}

// FetchConfig controls the static HTTP client used for websites.
type FetchConfig struct {
	Timeout         Duration `yaml:"timeout"`
	Proxy           string   `yaml:"proxy"`
	PerHostInterval Duration `yaml:"per_host_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a working configuration.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Engine:            browser.EngineRod,
			Headless:          true,
			ViewportWidth:     1366,
			ViewportHeight:    768,
			RandomAgent:       true,
			Headers:           map[string]string{},
			Evasion:           true,
			NavigationTimeout: DurationFrom(30 * time.Second),
		},
		Pacing: PacingConfig{
			Delay:           DurationFrom(2 * time.Second),
			Jitter:          DurationFrom(1500 * time.Millisecond),
			Settle:          DurationFrom(1500 * time.Millisecond),
			MaxScrollRounds: 30,
			ReadyTimeout:    DurationFrom(10 * time.Second),
			BlockDelay:      DurationFrom(3 * time.Second),
		},
		Contacts: ContactsConfig{
			Enabled:       true,
			Paths:         append([]string(nil), contact.DefaultPaths...),
			MaxPages:      6,
			RespectRobots: true,
			Timeout:       DurationFrom(45 * time.Second),
		},
		Fetch: FetchConfig{
			Timeout:         DurationFrom(15 * time.Second),
			PerHostInterval: DurationFrom(500 * time.Millisecond),
		},
		Concurrency:      2,
		DetailWorkers:    3,
		OperationTimeout: DurationFrom(10 * time.Minute),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return &cfg, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Browser.Engine {
	case browser.EngineRod, browser.EngineChromedp:
	default:
		return fmt.Errorf("browser.engine must be %q or %q (got %q)", browser.EngineRod, browser.EngineChromedp, c.Browser.Engine)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive (got %dx%d)", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0 (got %d)", c.Concurrency)
	}
	if c.DetailWorkers <= 0 {
		return fmt.Errorf("detail_workers must be > 0 (got %d)", c.DetailWorkers)
	}
	if c.Pacing.MaxScrollRounds <= 0 {
		return fmt.Errorf("pacing.max_scroll_rounds must be > 0 (got %d)", c.Pacing.MaxScrollRounds)
	}
	if c.Pacing.ReadyTimeout.Duration <= 0 {
		return errors.New("pacing.ready_timeout must be set")
	}
	if c.OperationTimeout.Duration <= 0 {
		return errors.New("operation_timeout must be set")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}

func (c *Config) normalise() {
	c.Browser.Engine = strings.ToLower(strings.TrimSpace(c.Browser.Engine))
	if c.Browser.Engine == "" {
		c.Browser.Engine = browser.EngineRod
	}
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Fetch.Proxy = strings.TrimSpace(c.Fetch.Proxy)

	paths := c.Contacts.Paths[:0]
	for _, p := range c.Contacts.Paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		paths = append(paths, p)
	}
	c.Contacts.Paths = paths
}

// BrowserOptions converts the browser section for the session manager.
func (c Config) BrowserOptions() browser.Options {
	return browser.Options{
		Engine:            c.Browser.Engine,
		Headless:          c.Browser.Headless,
		Bin:               c.Browser.Bin,
		Viewport:          browser.Viewport{Width: c.Browser.ViewportWidth, Height: c.Browser.ViewportHeight},
		UserAgent:         c.Browser.UserAgent,
		RandomAgent:       c.Browser.RandomAgent,
		Headers:           c.Browser.Headers,
		Evasion:           c.Browser.Evasion,
		NavigationTimeout: c.Browser.NavigationTimeout.Duration,
	}
}

// FetchOptions converts the fetch section for the static client.
func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:         c.Fetch.Timeout.Duration,
		ProxyURL:        c.Fetch.Proxy,
		PerHostInterval: c.Fetch.PerHostInterval.Duration,
	}
}

// FinderOptions converts the contacts section. MX validation gets its own checker.
func (c Config) FinderOptions() contact.FinderOptions {
	opts := contact.FinderOptions{
		Paths:         c.Contacts.Paths,
		MaxPages:      c.Contacts.MaxPages,
		RespectRobots: c.Contacts.RespectRobots,
	}
	if c.Contacts.CheckMX {
		opts.MX = contact.NewMXChecker(c.Contacts.Resolvers, 0)
	}
	return opts
}

// LoadEnv loads variables from a .env file when it exists. Variables already set win.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// PeopleCookie returns the professional network session cookie from the environment.
func PeopleCookie() string {
	return strings.TrimSpace(os.Getenv(PeopleCookieEnv))
}
