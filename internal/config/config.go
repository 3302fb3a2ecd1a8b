package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// BootConfig describes one bootstrap run: which packs must be present,
// where the private install tree lives, and how the transport negotiator
// verifies remote peers.
type BootConfig struct {
	HostVersion  string             `toml:"host_version"`
	DataDir      string             `toml:"data_dir"`
	Packs        []string           `toml:"packs"`
	Trust        TrustConfig        `toml:"trust"`
	Transport    TransportConfig    `toml:"transport"`
	Repositories []RepositoryConfig `toml:"repositories"`
}

// TrustConfig selects the certificate/hostname verification policy.
type TrustConfig struct {
	Policy string `toml:"policy"`
	File   string `toml:"file"`
}

// TransportConfig tunes the external transport client negotiation.
type TransportConfig struct {
	Clients          []string `toml:"clients"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	PollInterval     string   `toml:"poll_interval"`
}

// RepositoryConfig overrides the fallback pack repository set.
type RepositoryConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

const (
	TrustPolicyNever  = "never"
	TrustPolicyAsk    = "ask"
	TrustPolicyAlways = "always"

	defaultTrustFile        = "/etc/ssl/certs/ca-certificates.crt"
	defaultHandshakeTimeout = 30 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
)

func LoadBootConfig(path string) (BootConfig, error) {
	var cfg BootConfig
	if err := loadToml(path, &cfg); err != nil {
		return BootConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateBootConfig(cfg); err != nil {
		return BootConfig{}, err
	}
	return cfg, nil
}

// DefaultBootConfig returns a runnable config for hosts without a config file.
func DefaultBootConfig() BootConfig {
	var cfg BootConfig
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *BootConfig) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir()
	}
	if strings.TrimSpace(cfg.Trust.Policy) == "" {
		cfg.Trust.Policy = TrustPolicyAsk
	}
	if strings.TrimSpace(cfg.Trust.File) == "" {
		cfg.Trust.File = defaultTrustFile
	}
	if strings.TrimSpace(cfg.Transport.HandshakeTimeout) == "" {
		cfg.Transport.HandshakeTimeout = defaultHandshakeTimeout.String()
	}
	if strings.TrimSpace(cfg.Transport.PollInterval) == "" {
		cfg.Transport.PollInterval = defaultPollInterval.String()
	}
}

func defaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", ".bootctl")
	}
	return filepath.Join(home, ".bootctl")
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBootConfig(cfg BootConfig) error {
	switch strings.TrimSpace(cfg.Trust.Policy) {
	case TrustPolicyNever, TrustPolicyAsk, TrustPolicyAlways:
	default:
		return fmt.Errorf("trust policy invalid: %q", cfg.Trust.Policy)
	}
	if _, err := cfg.HandshakeTimeout(); err != nil {
		return err
	}
	if _, err := cfg.PollInterval(); err != nil {
		return err
	}
	for i, pack := range cfg.Packs {
		if strings.TrimSpace(pack) == "" {
			return fmt.Errorf("packs[%d] is empty", i)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Repositories))
	for i, repo := range cfg.Repositories {
		if err := ValidateRepositoryEntry(repo); err != nil {
			return fmt.Errorf("repository[%d] invalid: %w", i, err)
		}
		if _, ok := seen[repo.Name]; ok {
			return fmt.Errorf("repository[%d] duplicate name %q", i, repo.Name)
		}
		seen[repo.Name] = struct{}{}
	}
	return nil
}

func ValidateRepositoryEntry(repo RepositoryConfig) error {
	if strings.TrimSpace(repo.Name) == "" {
		return fmt.Errorf("repository missing name")
	}
	if strings.TrimSpace(repo.URL) == "" {
		return fmt.Errorf("repository missing url")
	}
	return nil
}

func (c BootConfig) HandshakeTimeout() (time.Duration, error) {
	return parseDuration("transport.handshake_timeout", c.Transport.HandshakeTimeout, defaultHandshakeTimeout)
}

func (c BootConfig) PollInterval() (time.Duration, error) {
	return parseDuration("transport.poll_interval", c.Transport.PollInterval, defaultPollInterval)
}

func parseDuration(field string, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive, got %q", field, raw)
	}
	return d, nil
}
