// Package common provides shared utilities for Star Trader CLI commands.
//
// This package contains helper functions used across the standalone binaries
// (marketd, oracled, market-cli) to reduce code duplication:
//
//   - Key loading and generation for Ed25519 signing keys
//   - YAML configuration loading with flag overrides
//   - Factories for the logger, signer source, and state store
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/edipietro-895n3/Star-Trader-Fhe/common"
	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/services"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg *LogConfig, service string) *slog.Logger {
	return common.SetupLogger(&common.LoggingOpts{
		Debug:   cfg.Debug,
		JSON:    cfg.JSON,
		Service: service,
		Version: common.Version,
	})
}

// NewSignerSource builds the trusted-signer source used to verify decryption
// proofs. Pinned keys take precedence; otherwise the published set is fetched
// from the oracle itself.
func NewSignerSource(cfg *OracleConfig) (fhe.SignerSource, error) {
	if len(cfg.TrustedSigners) > 0 {
		published := make(fhe.PublishedSigners, 0, len(cfg.TrustedSigners))
		for i, hexKey := range cfg.TrustedSigners {
			if _, err := crypto.NewPublicKeyFromString(hexKey); err != nil {
				return nil, fmt.Errorf("trusted signer %d: %w", i, err)
			}
			published = append(published, fhe.SignerEntry{
				SignerID:  fmt.Sprintf("pinned-%d", i),
				PublicKey: hexKey,
			})
		}
		return fhe.NewStaticSignerSource(published), nil
	}
	return fhe.NewRemoteSignerSource(cfg.URL + "/oracle/signers"), nil
}

// NewStore selects the state store: PostgreSQL when a database is configured,
// otherwise an in-memory store that loses state on restart.
func NewStore(cfg *Config) (services.MarketStore, error) {
	if cfg.Postgres.Host != "" {
		return services.NewPostgresStore(&cfg.Postgres, cfg.InstanceID)
	}
	return services.NewInMemoryStore(), nil
}
