// Package crypto provides cryptographic primitives for the confidential
// market-telemetry service.
//
// This package implements the low-level operations that the aggregation and
// disclosure layers build on, including:
//
//   - Digital signatures (Ed25519) for actor identity and oracle proofs
//   - A generic signed-envelope type for authenticated JSON messages
//   - Field arithmetic used by the local coprocessor's homomorphic addition
//   - ECIES sealing (P-256 + AES-256-GCM) for ciphertext storage at rest
//
// Note: not all operations are constant-time (in particular field math).
//
// # Field Operations
//
// The package supports modular addition and subtraction in a finite field:
//   - MetricFieldOrder: a 127-bit prime field wide enough for any sum of
//     64-bit metric values that the accumulators can reach
//
// # Key Management
//
// Ed25519 keys identify actors (owner, providers, the oracle) and sign
// envelopes; the hex form of a public key doubles as an actor identifier.
// All key types include helper methods for serialization and comparison.
package crypto
