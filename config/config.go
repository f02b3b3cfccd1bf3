// Package config loads the layered TOML + environment configuration
// recognized by both agent binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/naoina/toml"
)

// ChainConfig is one entry under [chains.<name>].
type ChainConfig struct {
	Domain    uint32 `toml:"domain"`
	IndexFrom int64  `toml:"index_from"`
	ChunkSize uint32 `toml:"chunk_size"`
	RPCURL    string `toml:"rpc_url"`
	Mailbox   string `toml:"mailbox"`

	// MinPollInterval and MaxPollInterval configure rangecursor.Config's
	// fields of the same name directly: events per second (1/seconds),
	// not seconds. MinPollInterval is the rate used while behind the tip
	// or just caught back up; 0 means unlimited (rate.Inf). MaxPollInterval
	// is the floor rate (the slowest polling is allowed to ramp down to)
	// while the cursor stays caught up; 0 disables the ramp.
	MinPollInterval float64 `toml:"min_poll_interval"`
	MaxPollInterval float64 `toml:"max_poll_interval"`

	// Kind selects which registered provider factory builds this chain's
	// chainscraper.Provider (see chainscraper.RegisterProviderFactory),
	// e.g. "evm-jsonrpc". Decoding on-chain logs is family-specific and
	// out of scope here; only the factory registry is.
	Kind string `toml:"kind"`
}

// CheckpointSyncerConfig describes where to read a validator's signed
// checkpoints from.
type CheckpointSyncerConfig struct {
	Kind     string `toml:"kind"`     // e.g. "s3", "local", "gcs"
	Location string `toml:"location"` // bucket/path/url, kind-specific
}

// ValidatorConfig is one entry under [validators.<addr>].
type ValidatorConfig struct {
	CheckpointSyncer CheckpointSyncerConfig `toml:"checkpoint_syncer"`
}

// Config is the fully-resolved configuration surface for a scraper or
// validator process.
type Config struct {
	DB          string                     `toml:"db"`
	MetricsPort int                        `toml:"metrics_port"`
	Chains      map[string]ChainConfig     `toml:"chains"`
	Validators  map[string]ValidatorConfig `toml:"validators"`

	// Threshold is the minimum number of distinct validator signatures
	// required for a checkpoint quorum (component E).
	Threshold int `toml:"threshold"`
}

// ConfigError is returned for any invalid or unknown configuration value,
// fatal at bootstrap.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads path (if non-empty) as TOML, then overlays environment
// variables of the form ICHAIN_DB, ICHAIN_METRICS_PORT, and
// ICHAIN_CHAINS_<NAME>_{DOMAIN,INDEX_FROM,CHUNK_SIZE,RPC_URL,MAILBOX,
// MIN_POLL_INTERVAL,MAX_POLL_INTERVAL},
// so a container deployment needs no file at all.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Chains:     map[string]ChainConfig{},
		Validators: map[string]ValidatorConfig{},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	overlayEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("ICHAIN_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("ICHAIN_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
	if v := os.Getenv("ICHAIN_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threshold = n
		}
	}

	// ICHAIN_CHAINS_<NAME>_DOMAIN=1234 style overrides/additions.
	const prefix = "ICHAIN_CHAINS_"
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		rest := strings.TrimPrefix(kv, prefix)
		parts := strings.SplitN(rest, "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyParts := strings.SplitN(parts[0], "_", 2)
		if len(keyParts) != 2 {
			continue
		}
		name := strings.ToLower(keyParts[0])
		field := keyParts[1]
		value := parts[1]

		cc := cfg.Chains[name]
		switch field {
		case "DOMAIN":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				cc.Domain = uint32(n)
			}
		case "INDEX_FROM":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cc.IndexFrom = n
			}
		case "CHUNK_SIZE":
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				cc.ChunkSize = uint32(n)
			}
		case "RPC_URL":
			cc.RPCURL = value
		case "MAILBOX":
			cc.Mailbox = value
		case "MIN_POLL_INTERVAL":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cc.MinPollInterval = f
			}
		case "MAX_POLL_INTERVAL":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cc.MaxPollInterval = f
			}
		}
		cfg.Chains[name] = cc
	}
}

// Validate rejects unknown/invalid domain ids and chains missing
// required fields.
func (c *Config) Validate() error {
	if c.DB == "" {
		return &ConfigError{Field: "db", Reason: "must not be empty"}
	}
	seenDomains := map[uint32]string{}
	for name, cc := range c.Chains {
		if cc.Domain == 0 {
			return &ConfigError{Field: "chains." + name + ".domain", Reason: "must be a nonzero uint32"}
		}
		if other, ok := seenDomains[cc.Domain]; ok {
			return &ConfigError{Field: "chains." + name + ".domain", Reason: fmt.Sprintf("domain %d already used by chain %q", cc.Domain, other)}
		}
		seenDomains[cc.Domain] = name
		if cc.ChunkSize == 0 {
			return &ConfigError{Field: "chains." + name + ".chunk_size", Reason: "must be > 0"}
		}
		if cc.Mailbox == "" {
			return &ConfigError{Field: "chains." + name + ".mailbox", Reason: "must not be empty"}
		}
		if cc.Kind == "" {
			return &ConfigError{Field: "chains." + name + ".kind", Reason: "must not be empty"}
		}
		if cc.MinPollInterval < 0 {
			return &ConfigError{Field: "chains." + name + ".min_poll_interval", Reason: "must not be negative"}
		}
		if cc.MaxPollInterval < 0 {
			return &ConfigError{Field: "chains." + name + ".max_poll_interval", Reason: "must not be negative"}
		}
		if cc.MaxPollInterval > 0 && cc.MinPollInterval > 0 && cc.MaxPollInterval > cc.MinPollInterval {
			return &ConfigError{Field: "chains." + name + ".max_poll_interval", Reason: "is a floor rate and must not exceed min_poll_interval"}
		}
	}
	if len(c.Validators) > 0 && c.Threshold <= 0 {
		return &ConfigError{Field: "threshold", Reason: "must be > 0 when validators are configured"}
	}
	if c.Threshold > len(c.Validators) {
		return &ConfigError{Field: "threshold", Reason: "cannot exceed the number of configured validators"}
	}
	return nil
}
