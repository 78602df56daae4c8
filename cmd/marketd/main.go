// Command marketd runs a confidential market telemetry node.
//
// The node folds encrypted metric contributions from authorized providers
// into batch aggregates and coordinates two-phase disclosure through a
// decryption oracle.
//
// # Configuration File
//
// Create a YAML file with node settings:
//
//	instance_id: "star-trader-1"
//	http_addr: ":8080"
//	metrics_addr: ":8090"
//	owner: "hex-encoded-ed25519-key..."
//	cooldown: "1h"
//	callback_url: "http://market.example.com:8080/oracle/callback"
//	oracle:
//	  url: "http://localhost:8081"
//	  trusted_signers: []   # pin result-signing keys, fetched when empty
//	postgres:
//	  host: ""              # in-memory store when empty
//	  port: 5432
//	  user: "startrader"
//	  password: ""
//	  database: "startrader"
//	log:
//	  json: false
//	  debug: false
//
// # Endpoints
//
// Public:
//   - GET /market/status - Instance, owner, pause flag, current batch
//   - GET /market/aggregate - Encrypted accumulator handles
//   - GET /market/batches - Batch lifecycle records
//   - GET /market/disclosures - Disclosure requests and results
//   - GET /market/events - Audit log
//
// Signed (crypto.Signed envelopes):
//   - POST /market/contributions - Provider metric deltas
//   - POST /market/disclose - Disclosure request for a closed batch
//   - POST /admin/* - Owner operations
//
// Oracle:
//   - POST /oracle/callback - Decryption result delivery
//
// # Usage
//
//	go run ./cmd/marketd --config=market.yaml
//	go run ./cmd/marketd --owner=<hex> --oracle=http://localhost:8081
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/api/httpserver"
	"github.com/edipietro-895n3/Star-Trader-Fhe/cmd/common"
	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
	"github.com/edipietro-895n3/Star-Trader-Fhe/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		instanceID  = flag.String("instance", "", "Market instance identifier")
		owner       = flag.String("owner", "", "Owner public key (hex)")
		cooldown    = flag.Duration("cooldown", 0, "Per-actor action cooldown")
		oracleURL   = flag.String("oracle", "", "Oracle base URL")
		callbackURL = flag.String("callback-url", "", "Externally reachable URL of /oracle/callback")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Enable debug logging")
	)
	flag.Parse()

	// isFlagSet checks if a flag was explicitly provided on command line
	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyFlagOverrides(cfg, *addr, *metricsAddr, *instanceID, *owner, *cooldown,
		*oracleURL, *callbackURL, *enablePprof, *logJSON, *logDebug,
		isFlagSet("addr"), isFlagSet("metrics-addr"))

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func applyFlagOverrides(cfg *common.Config, addr, metricsAddr, instanceID, owner string,
	cooldown time.Duration, oracleURL, callbackURL string,
	enablePprof, logJSON, logDebug bool, addrExplicit, metricsExplicit bool) {

	if addrExplicit {
		cfg.HTTPAddr = addr
	}
	if metricsExplicit {
		cfg.MetricsAddr = metricsAddr
	}
	if instanceID != "" {
		cfg.InstanceID = instanceID
	}
	if owner != "" {
		cfg.Owner = owner
	}
	if cooldown != 0 {
		cfg.Cooldown = cooldown.String()
	}
	if oracleURL != "" {
		cfg.Oracle.URL = oracleURL
	}
	if callbackURL != "" {
		cfg.CallbackURL = callbackURL
	}
	if enablePprof {
		cfg.EnablePprof = true
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	if logDebug {
		cfg.Log.Debug = true
	}
}

func run(cfg *common.Config) error {
	log := common.NewLogger(&cfg.Log, "marketd")

	ownerKey, err := crypto.NewPublicKeyFromString(cfg.Owner)
	if err != nil {
		return fmt.Errorf("owner key: %w", err)
	}

	cooldown, err := cfg.CooldownDuration()
	if err != nil {
		return err
	}

	if cfg.CallbackURL == "" {
		cfg.CallbackURL = "http://localhost" + cfg.HTTPAddr + "/oracle/callback"
	}

	signerSource, err := common.NewSignerSource(&cfg.Oracle)
	if err != nil {
		return fmt.Errorf("signer source: %w", err)
	}
	coproc := fhe.NewRemoteCoprocessor(cfg.Oracle.URL, signerSource)

	store, err := common.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	marketConfig := protocol.MarketConfig{
		InstanceID:  cfg.InstanceID,
		Owner:       protocol.ActorFromPublicKey(ownerKey),
		Cooldown:    cooldown,
		CallbackURL: cfg.CallbackURL,
	}

	events := protocol.NewEventCoordinator()

	state, err := store.LoadState()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	var market *protocol.Market
	if state != nil {
		market, err = protocol.NewMarketFromState(marketConfig, coproc, events, state)
		if err != nil {
			return fmt.Errorf("restoring market: %w", err)
		}
		log.Info("Resumed market from stored state",
			"instance", cfg.InstanceID,
			"currentBatch", market.CurrentBatch().ID,
			"disclosures", len(market.Disclosures()))
	} else {
		market, err = protocol.NewMarket(marketConfig, coproc, events)
		if err != nil {
			return fmt.Errorf("creating market: %w", err)
		}
		log.Info("Created new market", "instance", cfg.InstanceID, "owner", cfg.Owner)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := services.NewEventRecorder(store, log)
	go recorder.Run(ctx, market)

	handler := services.NewMarketHandler(market, store, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down market node")
	cancel()
	srv.Shutdown()
	return nil
}
