// Package cmd provides CLI commands for Star Trader services.
//
// # Commands
//
// marketd: Runs a confidential market telemetry node. Accepts encrypted
// metric contributions, manages the batch lifecycle, and coordinates
// disclosure through a decryption oracle.
//
//	go run ./cmd/marketd --config=market.yaml
//	go run ./cmd/marketd --owner=<hex> --oracle=http://localhost:8081
//
// oracled: Runs a standalone decryption oracle hosting the coprocessor API.
// Fulfills decryption requests and delivers signed results to market
// callback endpoints.
//
//	go run ./cmd/oracled --addr=:8081
//	go run ./cmd/oracled --auto-fulfill=false
//
// market-cli: CLI for interacting with a deployed market node.
//
//	market-cli keygen
//	market-cli submit -k <hex> --total-volume 10 --avg-profit 5
//	market-cli disclose -k <hex> -b 1 --wait
//
// # Configuration
//
// The marketd command supports YAML configuration files via the --config
// flag. Command-line flags override config file values.
//
// Example config:
//
//	instance_id: "star-trader-1"
//	http_addr: ":8080"
//	metrics_addr: ":8090"
//	owner: "hex-encoded-ed25519-key..."
//	cooldown: "1h"
//	oracle:
//	  url: "http://localhost:8081"
//	  trusted_signers: []
//	postgres:
//	  host: ""
//	log:
//	  json: false
//
// # Local Development Flow
//
// Start an oracle, note the printed signer key, start a market node owned
// by a fresh key, then drive it with market-cli:
//
//	go run ./cmd/oracled
//	market-cli keygen                                  # owner key pair
//	go run ./cmd/marketd --owner=<owner-pub>
//	market-cli keygen                                  # provider key pair
//	market-cli admin grant -k <owner-priv> -p <provider-pub>
//	market-cli submit -k <provider-priv> --total-volume 10 --avg-profit 5 --trade-count 1
//	market-cli admin close-batch -k <owner-priv>
//	market-cli disclose -k <owner-priv> -b 1 --wait
package cmd
