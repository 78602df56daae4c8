// Command oracled runs a standalone decryption oracle.
//
// The oracle hosts the coprocessor API market nodes encrypt and aggregate
// against, and fulfills decryption requests by signing the cleartexts and
// delivering them to the requesting node's callback endpoint.
//
// # Endpoints
//
// Coprocessor (used by market nodes and providers):
//   - POST /coprocessor/encrypt - Trivially encrypt a value
//   - POST /coprocessor/add - Homomorphic addition of two handles
//   - GET /coprocessor/initialized/{handle} - Handle existence check
//   - POST /coprocessor/request-decryption - Queue a decryption request
//
// Oracle:
//   - GET /oracle/signers - Published result-signing keys
//   - GET /oracle/pending - Decryption requests not yet fulfilled
//   - POST /oracle/fulfill/{request_id} - Fulfill one request manually
//
// By default requests are fulfilled automatically after a short delay,
// mimicking the asynchronous gateway of a production deployment. Disable
// with --auto-fulfill=false and drive fulfillment through the API.
//
// # Usage
//
//	go run ./cmd/oracled --addr=:8081
//	go run ./cmd/oracled --signing-key=<hex> --fulfill-delay=5s
//	go run ./cmd/oracled --auto-fulfill=false
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/edipietro-895n3/Star-Trader-Fhe/cmd/common"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/services"
)

func main() {
	var (
		addr          = flag.String("addr", ":8081", "HTTP listen address")
		signingKeyHex = flag.String("signing-key", "", "Result-signing key (hex, generates if empty)")
		autoFulfill   = flag.Bool("auto-fulfill", true, "Fulfill decryption requests automatically")
		fulfillDelay  = flag.Duration("fulfill-delay", 2*time.Second, "Delay before auto-fulfilling a request")
		logJSON       = flag.Bool("log-json", false, "Log in JSON format")
		logDebug      = flag.Bool("log-debug", false, "Enable debug logging")
	)
	flag.Parse()

	log := common.NewLogger(&common.LogConfig{JSON: *logJSON, Debug: *logDebug}, "oracled")

	signingKey, err := common.LoadOrGenerateSigningKey(*signingKeyHex)
	if err != nil {
		fmt.Printf("Error loading signing key: %v\n", err)
		os.Exit(1)
	}

	coproc, err := fhe.NewLocalCoprocessor(signingKey)
	if err != nil {
		fmt.Printf("Error creating coprocessor: %v\n", err)
		os.Exit(1)
	}

	// Operators pin this key in market configs via oracle.trusted_signers.
	fmt.Printf("Oracle signer public key: %s\n", coproc.SignerPublicKey().String())

	handler := services.NewOracleHandler(&services.OracleConfig{
		AutoFulfill:  *autoFulfill,
		FulfillDelay: *fulfillDelay,
	}, coproc, log)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handler.RegisterRoutes(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		fmt.Printf("Oracle listening on %s (auto-fulfill=%v)\n", *addr, *autoFulfill)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println("Shutting down oracle...")
	if err := httpServer.Shutdown(ctx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
}
