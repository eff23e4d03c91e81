// Package config loads the simulator's HCL configuration file. Every field
// has a working default so the file is optional.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config holds simulator settings.
type Config struct {
	// StatePath is the SQLite file mirroring the declared topology, so
	// each CLI invocation sees what earlier ones declared. Set it empty
	// for an in-memory store that lives for one process only.
	StatePath string `hcl:"state_path,optional"`

	// NamePrefix prefixes every kernel object name. Short, because
	// interface names are capped at 15 chars.
	NamePrefix string `hcl:"name_prefix,optional"`

	// LinkWaitSeconds bounds how long provisioning polls for a link to
	// come up before failing.
	LinkWaitSeconds int `hcl:"link_wait_seconds,optional"`

	// PolicyDefault is the verdict when no policy rule matches: "deny" or
	// "allow". Applies only once a policy document has been applied.
	PolicyDefault string `hcl:"policy_default,optional"`

	LogLevel string `hcl:"log_level,optional"`
	LogJSON  bool   `hcl:"log_json,optional"`
}

var prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9]{0,3}$`)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StatePath:       "/var/lib/vpcsim/state.db",
		NamePrefix:      "vs",
		LinkWaitSeconds: 5,
		PolicyDefault:   "deny",
		LogLevel:        "info",
	}
}

// Load reads an HCL config file. A missing file yields the defaults; a
// malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := hclsimple.Decode(path, data, nil, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if c.NamePrefix != "" && !prefixRegex.MatchString(c.NamePrefix) {
		return fmt.Errorf("name_prefix %q: must be 1-4 lowercase alphanumerics starting with a letter", c.NamePrefix)
	}
	if c.LinkWaitSeconds < 0 {
		return fmt.Errorf("link_wait_seconds must not be negative")
	}
	switch c.PolicyDefault {
	case "", "deny", "allow":
	default:
		return fmt.Errorf("policy_default %q: must be deny or allow", c.PolicyDefault)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	return nil
}

// LinkWait returns the configured link-up timeout as a duration.
func (c *Config) LinkWait() time.Duration {
	return time.Duration(c.LinkWaitSeconds) * time.Second
}

// DefaultAccept reports whether unmatched ingress traffic is accepted once a
// policy is applied.
func (c *Config) DefaultAccept() bool {
	return c.PolicyDefault == "allow"
}
