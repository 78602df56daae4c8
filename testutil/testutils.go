// Package testutil provides generators shared by market tests.
package testutil

import (
	"context"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// =====================================
// Configuration Generators
// =====================================

// MarketConfigOption is a function that modifies a MarketConfig.
type MarketConfigOption func(*protocol.MarketConfig)

// WithInstanceID sets the instance identifier.
func WithInstanceID(id string) MarketConfigOption {
	return func(cfg *protocol.MarketConfig) {
		cfg.InstanceID = id
	}
}

// WithCooldown sets the per-actor action cooldown.
func WithCooldown(d time.Duration) MarketConfigOption {
	return func(cfg *protocol.MarketConfig) {
		cfg.Cooldown = d
	}
}

// WithCallbackURL sets the oracle callback address.
func WithCallbackURL(url string) MarketConfigOption {
	return func(cfg *protocol.MarketConfig) {
		cfg.CallbackURL = url
	}
}

// NewTestMarketConfig creates a market configuration with default values
// that can be customized using options.
func NewTestMarketConfig(owner protocol.Actor, options ...MarketConfigOption) protocol.MarketConfig {
	cfg := protocol.MarketConfig{
		InstanceID:  "test-market",
		Owner:       owner,
		Cooldown:    time.Minute,
		CallbackURL: "http://localhost:0/oracle/callback",
	}

	for _, option := range options {
		option(&cfg)
	}

	return cfg
}

// =====================================
// Crypto Generators
// =====================================

// GenerateTestKeyPair generates a test key pair for signing.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// GenerateTestActor generates a fresh actor identity with its signing key.
func GenerateTestActor() (protocol.Actor, crypto.PrivateKey, error) {
	pubKey, privKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", nil, err
	}
	return protocol.ActorFromPublicKey(pubKey), privKey, nil
}

// NewTestCoprocessor creates a local coprocessor with a fresh signing key.
func NewTestCoprocessor() (*fhe.LocalCoprocessor, error) {
	_, signingKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return fhe.NewLocalCoprocessor(signingKey)
}

// =====================================
// Contribution Generators
// =====================================

// EncryptDeltas encrypts a five-tuple of metric values through the
// coprocessor, yielding handles ready for a contribution.
func EncryptDeltas(ctx context.Context, coproc fhe.Coprocessor, values protocol.MetricValues) (protocol.MetricHandles, error) {
	var handles protocol.MetricHandles
	var err error

	if handles.TotalVolume, err = coproc.Encrypt(ctx, values.TotalVolume); err != nil {
		return protocol.MetricHandles{}, err
	}
	if handles.AvgProfit, err = coproc.Encrypt(ctx, values.AvgProfit); err != nil {
		return protocol.MetricHandles{}, err
	}
	if handles.TradeCount, err = coproc.Encrypt(ctx, values.TradeCount); err != nil {
		return protocol.MetricHandles{}, err
	}
	if handles.TradeVolume, err = coproc.Encrypt(ctx, values.TradeVolume); err != nil {
		return protocol.MetricHandles{}, err
	}
	if handles.TradeProfit, err = coproc.Encrypt(ctx, values.TradeProfit); err != nil {
		return protocol.MetricHandles{}, err
	}

	return handles, nil
}
