package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shopkeep.ai/internal/transfer/model"
)

type Config struct {
	NegotiationTTLSeconds int    `yaml:"negotiation_ttl_seconds"`
	SweepIntervalSeconds  int    `yaml:"sweep_interval_seconds"`
	OverrideCapability    string `yaml:"override_capability"`

	DenyUnlimitedTransfer bool     `yaml:"deny_unlimited_transfer"`
	FrozenWorlds          []string `yaml:"frozen_worlds,omitempty"`

	MaxClientQueue int    `yaml:"max_client_queue"`
	MessagesPath   string `yaml:"messages_path,omitempty"`

	Permissions Permissions       `yaml:"permissions"`
	Messages    map[string]string `yaml:"messages,omitempty"`
}

// Permissions grants capabilities by player uuid. Names in the HELLO are not
// authenticated, so grants keyed by name are refused unless AllowNameGrants
// is set (local dev servers).
type Permissions struct {
	Grants          map[string][]string `yaml:"grants,omitempty"`
	AllowNameGrants bool                `yaml:"allow_name_grants,omitempty"`
}

func Defaults() Config {
	return Config{
		NegotiationTTLSeconds: 60,
		SweepIntervalSeconds:  30,
		OverrideCapability:    "shop.transfer.other",
		DenyUnlimitedTransfer: true,
		MaxClientQueue:        32,
	}
}

// Load reads path on top of Defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("shopkeep.yaml: %w", err)
	}
	if cfg.MessagesPath != "" && !filepath.IsAbs(cfg.MessagesPath) {
		cfg.MessagesPath = filepath.Join(filepath.Dir(path), cfg.MessagesPath)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("shopkeep.yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	d := Defaults()
	if c.NegotiationTTLSeconds <= 0 {
		c.NegotiationTTLSeconds = d.NegotiationTTLSeconds
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = d.SweepIntervalSeconds
	}
	c.OverrideCapability = strings.TrimSpace(c.OverrideCapability)
	if c.OverrideCapability == "" {
		c.OverrideCapability = d.OverrideCapability
	}
	if c.MaxClientQueue <= 0 {
		c.MaxClientQueue = d.MaxClientQueue
	}
	if c.MaxClientQueue > 1024 {
		c.MaxClientQueue = 1024
	}
	seen := map[string]bool{}
	worlds := c.FrozenWorlds[:0]
	for _, w := range c.FrozenWorlds {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		worlds = append(worlds, w)
	}
	sort.Strings(worlds)
	c.FrozenWorlds = worlds
}

func (c Config) Validate() error {
	if c.SweepIntervalSeconds > c.NegotiationTTLSeconds*10 {
		return fmt.Errorf("sweep_interval_seconds=%d is far beyond negotiation_ttl_seconds=%d", c.SweepIntervalSeconds, c.NegotiationTTLSeconds)
	}
	for who, caps := range c.Permissions.Grants {
		who = strings.TrimSpace(who)
		if who == "" {
			return fmt.Errorf("permissions: empty grantee")
		}
		if _, err := model.ParseIdentity(who); err != nil && who != "*" && !c.Permissions.AllowNameGrants {
			return fmt.Errorf("permissions: grantee %q is not a uuid (set allow_name_grants for dev servers)", who)
		}
		for _, cp := range caps {
			if strings.TrimSpace(cp) == "" {
				return fmt.Errorf("permissions: empty capability for %q", who)
			}
		}
	}
	return nil
}

// LoadEnv is Load followed by env overrides, normalized and validated again so
// an override cannot produce a config the file would have been refused for.
func LoadEnv(path string, getenv func(string) string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(getenv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

func (c Config) NegotiationTTL() time.Duration {
	return time.Duration(c.NegotiationTTLSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ApplyEnv overrides selected fields from SK_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v, ok := envInt(getenv, "SK_NEGOTIATION_TTL_SECONDS"); ok && v > 0 {
		c.NegotiationTTLSeconds = v
	}
	if v, ok := envInt(getenv, "SK_SWEEP_INTERVAL_SECONDS"); ok && v > 0 {
		c.SweepIntervalSeconds = v
	}
	if v := strings.TrimSpace(getenv("SK_DENY_UNLIMITED_TRANSFER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DenyUnlimitedTransfer = b
		}
	}
}

func envInt(getenv func(string) string, key string) (int, bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
