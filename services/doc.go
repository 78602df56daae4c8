/*
# Star Trader Services Package

The services package provides HTTP-based implementations of the market
protocol components for real-world deployment.

## Overview

This package wraps the core protocol implementation with HTTP APIs, enabling:
- RESTful communication between providers, owners, and market nodes
- Signed request envelopes with per-actor replay protection
- Durable state snapshots and an append-only audit log
- A self-contained oracle for local deployments and tests

## Components

### MarketHandler (`handler.go`)

Exposes one `protocol.Market` over HTTP.

  - Public endpoints:
  - `GET /market/status` - Instance, owner, pause flag, current batch
  - `GET /market/aggregate` - Encrypted accumulator handles
  - `GET /market/batches`, `GET /market/batches/{id}` - Batch records
  - `GET /market/disclosures`, `GET /market/disclosures/{request_id}` - Disclosure progress
  - `GET /market/events` - Audit log
  - Signed endpoints (crypto.Signed envelopes):
  - `POST /market/contributions` - Provider metric deltas
  - `POST /market/disclose` - Disclosure request for a closed batch
  - `POST /admin/...` - Owner operations
  - Oracle delivery:
  - `POST /oracle/callback` - Decryption results with proof

The handler resolves the acting identity from the envelope signature and
enforces a strictly increasing per-actor sequence before the market core
sees the operation. After every successful mutation it writes a state
snapshot through to the store.

### OracleHandler (`oracle.go`)

Hosts a `fhe.LocalCoprocessor` behind the same REST surface
`fhe.RemoteCoprocessor` speaks, plus fulfillment endpoints:

  - `POST /coprocessor/encrypt`, `POST /coprocessor/add`
  - `GET /coprocessor/initialized/{handle}`
  - `POST /coprocessor/request-decryption`
  - `GET /oracle/signers` - Published result-signing keys
  - `GET /oracle/pending`, `POST /oracle/fulfill/{request_id}`

Fulfillment decrypts the requested handles, signs the cleartexts, and
POSTs the result to the callback URL captured with the request.

### Stores (`store.go`, `postgres_store.go`)

`MarketStore` persists state snapshots and audit events. The PostgreSQL
implementation keeps one JSONB snapshot row per market instance and an
append-only events table; the in-memory implementation backs tests and
single-process demos.

### EventRecorder (`recorder.go`)

Subscribes to market events and appends them to the store from its own
goroutine.

## Usage

```go
market, _ := protocol.NewMarket(config, coproc, events)
store := services.NewInMemoryStore()

handler := services.NewMarketHandler(market, store, log)
router := chi.NewRouter()
handler.RegisterRoutes(router)
http.ListenAndServe(":8080", router)
```

## Disclosure Flow

1. A requester signs `POST /market/disclose` naming a closed batch.
2. The market snapshots its aggregate handles, binds a digest of them to
   the instance identity, and queues a decryption request with the oracle.
3. The oracle decrypts, signs the cleartexts, and POSTs them to
   `/oracle/callback`.
4. The handler verifies the proof against the trusted signer set, checks
   the digest still matches the live aggregate, decodes the five values,
   and marks the request processed exactly once.

## Security Notes

- Ed25519 envelope signatures identify actors; there are no separate
  credentials
- Sequences are consumed even when an operation fails, so a captured
  envelope cannot be replayed
- Decryption proofs bind request id, instance, and cleartexts; results
  for a stale aggregate are rejected and the request stays unprocessed
*/
package services
