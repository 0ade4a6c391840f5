// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// validConfig returns defaults plus the homeserver fields Validate
// requires.
func validConfig() *Config {
	cfg := Default()
	cfg.Homeserver = HomeserverConfig{
		URL:       "https://matrix.example.org",
		UserID:    "@alice:example.org",
		TokenFile: "/run/chatsync/token",
	}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Sync.PendingEventOrdering != "chronological" {
		t.Errorf("expected pending_event_ordering=chronological, got %s", cfg.Sync.PendingEventOrdering)
	}
	if cfg.Store.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Store.Compression)
	}
	if cfg.Sender.MaxAttempts != 5 {
		t.Errorf("expected max_attempts=5, got %d", cfg.Sender.MaxAttempts)
	}
	timeout, err := cfg.PollTimeout()
	if err != nil {
		t.Fatalf("PollTimeout failed: %v", err)
	}
	if timeout != 80*time.Second {
		t.Errorf("expected poll timeout 80s, got %v", timeout)
	}
}

func TestLoad_RequiresChatsyncConfig(t *testing.T) {
	t.Setenv("CHATSYNC_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CHATSYNC_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CHATSYNC_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithChatsyncConfig(t *testing.T) {
	path := writeConfig(t, `
environment: staging
homeserver:
  url: https://staging.example.org
  user_id: "@alice:example.org"
  token_file: /tmp/token
`)
	t.Setenv("CHATSYNC_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Homeserver.URL != "https://staging.example.org" {
		t.Errorf("expected staging URL, got %s", cfg.Homeserver.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: development

homeserver:
  url: http://localhost:8008
  guest: true

sync:
  poll_timeout: 30s
  timeline_limit: 50
  include_leave: true
  pending_event_ordering: detached
  duplicate_strategy: replace

window:
  max_events: 200
  initial_size: 40

store:
  path: /var/lib/chatsync/db
  compression: lz4

sender:
  max_attempts: 3
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if !cfg.Homeserver.Guest {
		t.Error("expected guest=true")
	}
	if timeout, _ := cfg.PollTimeout(); timeout != 30*time.Second {
		t.Errorf("expected poll timeout 30s, got %v", timeout)
	}
	if margin, _ := cfg.RequestMargin(); margin != 10*time.Second {
		t.Errorf("expected default request margin 10s, got %v", margin)
	}
	if cfg.Sync.TimelineLimit != 50 || !cfg.Sync.IncludeLeave {
		t.Errorf("unexpected sync section: %+v", cfg.Sync)
	}
	if cfg.Sync.PendingEventOrdering != "detached" || cfg.Sync.DuplicateStrategy != "replace" {
		t.Errorf("unexpected sync strategies: %+v", cfg.Sync)
	}
	if cfg.Window.MaxEvents != 200 || cfg.Window.InitialSize != 40 {
		t.Errorf("unexpected window section: %+v", cfg.Window)
	}
	if cfg.Store.Path != "/var/lib/chatsync/db" || cfg.Store.Compression != "lz4" {
		t.Errorf("unexpected store section: %+v", cfg.Store)
	}
	if cfg.Sender.MaxAttempts != 3 {
		t.Errorf("expected max_attempts=3, got %d", cfg.Sender.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "homeserver: [not, a, map\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production

homeserver:
  url: http://localhost:8008
  user_id: "@alice:example.org"
  token_file: /dev/token

store:
  compression: none

development:
  store:
    path: /dev/db

production:
  homeserver:
    url: https://matrix.example.org
    token_file: /prod/token
  store:
    compression: zstd
  sender:
    max_attempts: 8
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Homeserver.URL != "https://matrix.example.org" {
		t.Errorf("expected production URL, got %s", cfg.Homeserver.URL)
	}
	if cfg.Homeserver.TokenFile != "/prod/token" {
		t.Errorf("expected production token file, got %s", cfg.Homeserver.TokenFile)
	}
	if cfg.Homeserver.UserID != "@alice:example.org" {
		t.Errorf("expected base user_id to survive, got %s", cfg.Homeserver.UserID)
	}
	if cfg.Store.Compression != "zstd" {
		t.Errorf("expected compression=zstd from production override, got %s", cfg.Store.Compression)
	}
	if cfg.Store.Path == "/dev/db" {
		t.Error("development override applied in production")
	}
	if cfg.Sender.MaxAttempts != 8 {
		t.Errorf("expected max_attempts=8, got %d", cfg.Sender.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestPathsExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	t.Setenv("CHATSYNC_TEST_SERVER", "")
	path := writeConfig(t, `
homeserver:
  url: ${CHATSYNC_TEST_SERVER:-http://localhost:8008}
  token_file: ${HOME}/.config/chatsync/token
store:
  path: ${HOME}/.cache/chatsync/db
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Homeserver.URL != "http://localhost:8008" {
		t.Errorf("expected default URL, got %s", cfg.Homeserver.URL)
	}
	if cfg.Homeserver.TokenFile != "/home/alice/.config/chatsync/token" {
		t.Errorf("expected expanded token file, got %s", cfg.Homeserver.TokenFile)
	}
	if cfg.Store.Path != "/home/alice/.cache/chatsync/db" {
		t.Errorf("expected expanded store path, got %s", cfg.Store.Path)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/chatsync",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/chatsync",
		},
		{
			input:    "${CHATSYNC_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name: "guest needs no token",
			modify: func(c *Config) {
				c.Homeserver.Guest = true
				c.Homeserver.UserID = ""
				c.Homeserver.TokenFile = ""
			},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "missing URL",
			modify:  func(c *Config) { c.Homeserver.URL = "" },
			wantErr: "homeserver.url is required",
		},
		{
			name:    "relative URL",
			modify:  func(c *Config) { c.Homeserver.URL = "matrix.example.org" },
			wantErr: "not an absolute URL",
		},
		{
			name: "plain http in production",
			modify: func(c *Config) {
				c.Environment = Production
				c.Homeserver.URL = "http://matrix.example.org"
			},
			wantErr: "https",
		},
		{
			name:    "missing token file",
			modify:  func(c *Config) { c.Homeserver.TokenFile = "" },
			wantErr: "homeserver.token_file",
		},
		{
			name:    "bad poll timeout",
			modify:  func(c *Config) { c.Sync.PollTimeout = "soon" },
			wantErr: "sync.poll_timeout",
		},
		{
			name:    "bad ordering",
			modify:  func(c *Config) { c.Sync.PendingEventOrdering = "random" },
			wantErr: "sync.pending_event_ordering",
		},
		{
			name:    "initial size above max",
			modify:  func(c *Config) { c.Window.InitialSize = c.Window.MaxEvents + 1 },
			wantErr: "window.initial_size",
		},
		{
			name:    "bad compression",
			modify:  func(c *Config) { c.Store.Compression = "gzip" },
			wantErr: "store.compression",
		},
		{
			name:    "no attempts",
			modify:  func(c *Config) { c.Sender.MaxAttempts = 0 },
			wantErr: "sender.max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want one mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Homeserver.URL = ""
	cfg.Sender.MaxAttempts = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"homeserver.url", "sender.max_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnsureStoreDir(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "state", "chatsync.db")

	if err := cfg.EnsureStoreDir(); err != nil {
		t.Fatalf("EnsureStoreDir failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(cfg.Store.Path))
	if err != nil {
		t.Fatalf("store directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("store path parent is not a directory")
	}
}
