// Package fhe models the confidential-computing service that holds the
// encrypted metric values and performs all operations on them.
//
// The market service never sees plaintext metrics. It works exclusively with
// opaque ciphertext handles and delegates every cryptographic operation to a
// Coprocessor:
//
//   - Encrypt produces a fresh handle for a 64-bit value (including the
//     encrypted zero used to initialize accumulators)
//   - Add combines two handles homomorphically
//   - IsInitialized probes whether a handle references stored data
//   - RequestDecryption submits a set of handles for asynchronous disclosure
//     and returns a request identifier
//   - CheckSignatures verifies the oracle's proof over decrypted values
//
// # Implementations
//
// LocalCoprocessor runs in-process: values are sealed at rest with ECIES
// under the coprocessor's exchange key, addition happens in a prime field,
// and decryption results are signed with the coprocessor's Ed25519 key.
// Delivery of decryption results is explicit (Fulfill), which lets tests and
// the oracled daemon control exactly when a callback fires relative to other
// operations.
//
// RemoteCoprocessor talks to a coprocessor daemon over HTTP and verifies
// decryption proofs against a trusted signer set obtained from a
// SignerSource.
//
// # Proof format
//
// A decryption proof is a JSON-encoded crypto.Signed[DecryptionResult]: the
// oracle signs the request identifier together with the fixed-width
// cleartext payload. Verifiers recover the envelope, compare the request
// identifier and payload, and check the signer against the trusted set.
package fhe
