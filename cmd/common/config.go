package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/services"
)

// Config holds settings for the marketd command, loadable from a YAML file
// with command-line flag overrides.
type Config struct {
	// InstanceID distinguishes this deployment. It is bound into every
	// disclosure digest, so two instances never accept each other's proofs.
	InstanceID string `yaml:"instance_id"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	// Owner is the hex-encoded public key holding the admin role at boot.
	Owner string `yaml:"owner"`

	// Cooldown is the initial per-actor rate limit window, parsed with
	// time.ParseDuration ("1h", "30m").
	Cooldown string `yaml:"cooldown"`

	// CallbackURL is the externally reachable address of this node's
	// /oracle/callback endpoint. Derived from http_addr when empty.
	CallbackURL string `yaml:"callback_url"`

	Oracle   OracleConfig            `yaml:"oracle"`
	Postgres services.PostgresConfig `yaml:"postgres"`
	Log      LogConfig               `yaml:"log"`
}

// OracleConfig names the decryption oracle and the result-signing keys to
// trust.
type OracleConfig struct {
	// URL is the base address of the oracle.
	URL string `yaml:"url"`

	// TrustedSigners pins result-signing keys (hex-encoded). When empty the
	// published set is fetched from the oracle's /oracle/signers endpoint.
	TrustedSigners []string `yaml:"trusted_signers"`
}

// LogConfig selects the output format and level of the process logger.
type LogConfig struct {
	JSON  bool `yaml:"json"`
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		InstanceID:  "star-trader-dev",
		HTTPAddr:    ":8080",
		MetricsAddr: ":8090",
		Cooldown:    "1h",
		Oracle: OracleConfig{
			URL: "http://localhost:8081",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// CooldownDuration parses the configured cooldown window.
func (c *Config) CooldownDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Cooldown)
	if err != nil {
		return 0, fmt.Errorf("invalid cooldown %q: %w", c.Cooldown, err)
	}
	return d, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if c.Owner == "" {
		return fmt.Errorf("owner public key is required (via --owner or config file)")
	}
	if _, err := crypto.NewPublicKeyFromString(c.Owner); err != nil {
		return fmt.Errorf("invalid owner public key: %w", err)
	}
	if _, err := c.CooldownDuration(); err != nil {
		return err
	}
	if c.Oracle.URL == "" {
		return fmt.Errorf("oracle url is required (via --oracle or config file)")
	}
	return nil
}
