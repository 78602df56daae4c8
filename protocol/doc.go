// Package protocol implements the confidential market-telemetry state
// machine: homomorphic accumulation of encrypted market metrics from
// authorized providers, a sequential batch lifecycle, and a two-phase
// request/callback protocol for disclosing the decrypted aggregate of a
// closed batch.
//
// # Architecture
//
// The market is composed of five components gated top-down, wired together
// by the Market facade:
//
//  1. AccessControl: owner singleton, provider set, and a process-wide halt
//     flag. Every privileged operation routes its capability check through
//     here.
//
//  2. RateLimiter: one cooldown duration applied per actor and per action
//     class. Submissions and disclosure requests are limited independently;
//     no operation ever touches another actor's record.
//
//  3. BatchManager: sequential accumulation windows. Batch 1 opens at boot;
//     closing the open batch opens its successor, so exactly one batch is
//     open at any time and identifiers grow monotonically from 1. Closed is
//     terminal.
//
//  4. EncryptedAggregateStore: five process-wide ciphertext accumulators
//     (total volume, average-profit running sum, player trade count, player
//     trade volume, player trade profit), lazily initialized to encrypted
//     zero and mutated only through the coprocessor's homomorphic addition.
//     The aggregate is shared across batches; closing a batch freezes the
//     count association, not the values.
//
//  5. DecryptionCoordinator: the disclosure handshake described below.
//
// # Contribution flow
//
// A provider submits five ciphertext deltas. The market checks the halt
// flag, the provider capability, and the submission cooldown, folds the
// deltas into the accumulators, increments the open batch's item count,
// stamps the rate-limit record, and publishes a contribution-recorded
// event. All checks precede all mutation: a rejected submission leaves no
// trace.
//
// # Disclosure flow
//
// Disclosure is a two-phase handshake with an asynchronous gap in the
// middle that this system does not control.
//
// Phase one, RequestDisclosure: any actor may request disclosure of a
// batch that is strictly before the current one and closed. After the
// pause and cooldown gates, the coordinator snapshots the five accumulator
// handles, digests them together with the deployment's instance identity,
// submits the handles to the decryption oracle, and stores a
// DecryptionContext (batch id, digest, processed=false) under the request
// id the oracle returned.
//
// Phase two, CompleteDisclosure: invoked by the oracle at an unspecified
// later time, possibly after many intervening operations. The guards run
// in a fixed order:
//
//  1. Unknown request ids are rejected.
//  2. An already processed context is rejected as a replay, regardless of
//     proof validity.
//  3. The digest is recomputed from a fresh snapshot; a mismatch aborts as
//     stale state. Any accumulation between request and callback trips
//     this, because the aggregate is process-wide.
//  4. The oracle's proof is verified over the request id and cleartext
//     payload.
//  5. The five fixed-width cleartexts are decoded in the submission order.
//
// Only then does the context flip to processed, exactly once, and the
// decrypted values are published tagged with the originating batch. A
// stale context stays unprocessed forever; there is no retry path, and a
// caller who still wants the values issues a fresh request.
//
// The digest check is what makes the unbounded oracle round trip safe:
// without it, a requester could ask for disclosure, wait for further
// confidential contributions to land in the same running accumulators, and
// receive cleartexts reflecting data beyond what existed at request time.
// Binding the instance identity into the digest stops a captured proof
// from replaying against a different deployment with coincidentally equal
// handle encodings.
//
// # Concurrency
//
// Market operations serialize under a single state mutex and never block
// inside it on anything but the coprocessor. The request/callback gap is
// not a suspended call; it is two independent entry points sharing the
// persisted context table. Events fan out through the EventCoordinator on
// bounded channels and are never consumed by the core itself.
package protocol
