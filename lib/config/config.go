// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the configuration shared by the chatsync commands.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Homeserver HomeserverConfig `yaml:"homeserver"`
	Sync       SyncConfig       `yaml:"sync"`
	Window     WindowConfig     `yaml:"window"`
	Store      StoreConfig      `yaml:"store"`
	Sender     SenderConfig     `yaml:"sender"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Only non-empty string and non-zero numeric fields are
// applied; booleans cannot be overridden.
type ConfigOverrides struct {
	Homeserver *HomeserverConfig `yaml:"homeserver,omitempty"`
	Sync       *SyncConfig       `yaml:"sync,omitempty"`
	Window     *WindowConfig     `yaml:"window,omitempty"`
	Store      *StoreConfig      `yaml:"store,omitempty"`
	Sender     *SenderConfig     `yaml:"sender,omitempty"`
}

// HomeserverConfig says where to sync from and as whom.
type HomeserverConfig struct {
	// URL is the homeserver base URL, e.g. https://matrix.example.org.
	URL string `yaml:"url"`

	// UserID is the full Matrix user ID the token belongs to.
	UserID string `yaml:"user_id"`

	// TokenFile holds the access token, either in plain text or sealed
	// with age (see chatsync-tail seal-token).
	TokenFile string `yaml:"token_file"`

	// IdentityFile is the age identity that unseals TokenFile. Empty
	// when the token file is plain text.
	IdentityFile string `yaml:"identity_file"`

	// Guest registers a guest account instead of using a token.
	Guest bool `yaml:"guest"`
}

// SyncConfig tunes the sync loop.
type SyncConfig struct {
	// PollTimeout is the server-side long-poll timeout.
	// Default: 80s
	PollTimeout string `yaml:"poll_timeout"`

	// RequestMargin is added to PollTimeout for the client-side
	// request deadline.
	// Default: 10s
	RequestMargin string `yaml:"request_margin"`

	// FilterFile is a JSONC filter definition replacing the default
	// filter. Optional.
	FilterFile string `yaml:"filter_file"`

	// TimelineLimit caps the events per room in each sync batch. Zero
	// keeps the filter's own limit.
	TimelineLimit int `yaml:"timeline_limit"`

	// IncludeLeave asks for rooms the user has left.
	IncludeLeave bool `yaml:"include_leave"`

	// LazyLoadMembers asks the server to send only the members needed
	// to render the timeline.
	LazyLoadMembers bool `yaml:"lazy_load_members"`

	// PendingEventOrdering is "chronological" (local echoes in the live
	// timeline) or "detached" (in a separate list).
	// Default: chronological
	PendingEventOrdering string `yaml:"pending_event_ordering"`

	// DuplicateStrategy is "ignore" or "replace".
	// Default: ignore
	DuplicateStrategy string `yaml:"duplicate_strategy"`
}

// WindowConfig bounds the viewer's timeline window.
type WindowConfig struct {
	// MaxEvents is the most events a window holds.
	// Default: 1000
	MaxEvents int `yaml:"max_events"`

	// InitialSize is how many events a window loads at first.
	// Default: 20
	InitialSize int `yaml:"initial_size"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty keeps everything in
	// memory.
	Path string `yaml:"path"`

	// Compression applies to stored room snapshots: none, lz4, or zstd.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// SenderConfig tunes outgoing event delivery.
type SenderConfig struct {
	// MaxAttempts is the most times one event is tried, counting the
	// first attempt.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`
}

var (
	pendingOrderings    = []string{"chronological", "detached"}
	duplicateStrategies = []string{"ignore", "replace"}
	compressions        = []string{"none", "lz4", "zstd"}
)

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Sync: SyncConfig{
			PollTimeout:          "80s",
			RequestMargin:        "10s",
			PendingEventOrdering: "chronological",
			DuplicateStrategy:    "ignore",
		},
		Window: WindowConfig{
			MaxEvents:   1000,
			InitialSize: 20,
		},
		Store: StoreConfig{
			Path:        filepath.Join(homeDir, ".cache", "chatsync", "chatsync.db"),
			Compression: "zstd",
		},
		Sender: SenderConfig{
			MaxAttempts: 5,
		},
	}
}

// Load loads configuration from the CHATSYNC_CONFIG environment
// variable. There are no fallbacks: if CHATSYNC_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CHATSYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CHATSYNC_CONFIG environment variable not set; " +
			"set it to the path of your chatsync.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// only take part through ${VAR} and ${VAR:-default} references in path
// and URL fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if o := overrides.Homeserver; o != nil {
		override(&c.Homeserver.URL, o.URL)
		override(&c.Homeserver.UserID, o.UserID)
		override(&c.Homeserver.TokenFile, o.TokenFile)
		override(&c.Homeserver.IdentityFile, o.IdentityFile)
	}
	if o := overrides.Sync; o != nil {
		override(&c.Sync.PollTimeout, o.PollTimeout)
		override(&c.Sync.RequestMargin, o.RequestMargin)
		override(&c.Sync.FilterFile, o.FilterFile)
		override(&c.Sync.TimelineLimit, o.TimelineLimit)
		override(&c.Sync.PendingEventOrdering, o.PendingEventOrdering)
		override(&c.Sync.DuplicateStrategy, o.DuplicateStrategy)
	}
	if o := overrides.Window; o != nil {
		override(&c.Window.MaxEvents, o.MaxEvents)
		override(&c.Window.InitialSize, o.InitialSize)
	}
	if o := overrides.Store; o != nil {
		override(&c.Store.Path, o.Path)
		override(&c.Store.Compression, o.Compression)
	}
	if o := overrides.Sender; o != nil {
		override(&c.Sender.MaxAttempts, o.MaxAttempts)
	}
}

func override[T comparable](field *T, value T) {
	var zero T
	if value != zero {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and the homeserver URL.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	for _, field := range []*string{
		&c.Homeserver.URL,
		&c.Homeserver.TokenFile,
		&c.Homeserver.IdentityFile,
		&c.Sync.FilterFile,
		&c.Store.Path,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// PollTimeout returns sync.poll_timeout as a duration.
func (c *Config) PollTimeout() (time.Duration, error) {
	return parseDuration("sync.poll_timeout", c.Sync.PollTimeout)
}

// RequestMargin returns sync.request_margin as a duration.
func (c *Config) RequestMargin() (time.Duration, error) {
	return parseDuration("sync.request_margin", c.Sync.RequestMargin)
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver.url %q is not an absolute URL", c.Homeserver.URL))
	} else if c.Environment == Production && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("homeserver.url must use https in production"))
	}
	if !c.Homeserver.Guest {
		if c.Homeserver.UserID == "" {
			errs = append(errs, fmt.Errorf("homeserver.user_id is required unless homeserver.guest is set"))
		}
		if c.Homeserver.TokenFile == "" {
			errs = append(errs, fmt.Errorf("homeserver.token_file is required unless homeserver.guest is set"))
		}
	}

	if _, err := c.PollTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RequestMargin(); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.TimelineLimit < 0 {
		errs = append(errs, fmt.Errorf("sync.timeline_limit must not be negative"))
	}
	if !slices.Contains(pendingOrderings, c.Sync.PendingEventOrdering) {
		errs = append(errs, fmt.Errorf("sync.pending_event_ordering must be one of: %v", pendingOrderings))
	}
	if !slices.Contains(duplicateStrategies, c.Sync.DuplicateStrategy) {
		errs = append(errs, fmt.Errorf("sync.duplicate_strategy must be one of: %v", duplicateStrategies))
	}

	if c.Window.MaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("window.max_events must be positive"))
	}
	if c.Window.InitialSize <= 0 || c.Window.InitialSize > c.Window.MaxEvents {
		errs = append(errs, fmt.Errorf("window.initial_size must be between 1 and window.max_events"))
	}

	if !slices.Contains(compressions, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressions))
	}

	if c.Sender.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("sender.max_attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

// EnsureStoreDir creates the directory holding the store database.
func (c *Config) EnsureStoreDir() error {
	if c.Store.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Store.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
