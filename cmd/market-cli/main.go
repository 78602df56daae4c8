// Command market-cli provides CLI tools for interacting with a deployed
// Star Trader market node.
//
// # Commands
//
// keygen: Generate an Ed25519 key pair for an owner or provider identity.
//
//	market-cli keygen
//
// status: Display market state and the current batch.
//
//	market-cli status --node=http://localhost:8080
//
// submit: Encrypt metric deltas through the oracle and submit a contribution.
//
//	market-cli submit --key=<hex> --total-volume=10 --avg-profit=5 --trade-count=1
//
// disclose: Request disclosure of a closed batch and optionally wait for
// the decrypted values.
//
//	market-cli disclose --key=<hex> --batch=1 --wait
//
// admin: Owner operations (grant, revoke, pause, unpause, close-batch,
// cooldown, transfer).
//
//	market-cli admin grant --key=<hex> --provider=<hex>
//	market-cli admin close-batch --key=<hex>
//
// events: Print the market audit log.
//
//	market-cli events --limit=20
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
	"github.com/edipietro-895n3/Star-Trader-Fhe/services"
)

const (
	defaultNodeURL   = "http://localhost:8080"
	defaultOracleURL = "http://localhost:8081"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "keygen":
		err = runKeygen(args)
	case "status":
		err = runStatus(args)
	case "submit":
		err = runSubmit(args)
	case "disclose":
		err = runDisclose(args)
	case "admin":
		err = runAdmin(args)
	case "events":
		err = runEvents(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`market-cli - CLI tools for Star Trader market nodes

Usage:
  market-cli <command> [options]

Commands:
  keygen    Generate an Ed25519 key pair
  status    Display market state
  submit    Submit an encrypted metric contribution
  disclose  Request disclosure of a closed batch
  admin     Owner operations (grant, revoke, pause, ...)
  events    Print the market audit log

Run 'market-cli <command> --help' for command-specific options.`)
}

// nextSequence returns a strictly increasing sequence for signed requests.
// Wall-clock nanoseconds keep separate CLI invocations ordered without
// shared state.
func nextSequence() uint64 {
	return uint64(time.Now().UnixNano())
}

func loadKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("--key is required")
	}
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return crypto.NewPrivateKeyFromBytes(keyBytes), nil
}

// doSigned wraps a payload in a signed envelope and delivers it.
func doSigned[T any](httpClient *http.Client, method, url string, key crypto.PrivateKey, payload *T) ([]byte, error) {
	signed, err := crypto.NewSigned(key, payload)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	body, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func getJSON(httpClient *http.Client, url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Keygen Command ---

func runKeygen(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			fmt.Println(`market-cli keygen - Generate an Ed25519 key pair

The private key signs market requests (--key for other commands). The
public key is the identity granted roles on the market.`)
			return nil
		}
	}

	pubKey, privKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	fmt.Printf("Private key: %s\n", hex.EncodeToString(privKey.Bytes()))
	fmt.Printf("Public key:  %s\n", pubKey.String())
	return nil
}

// --- Status Command ---

func runStatus(args []string) error {
	nodeURL := defaultNodeURL

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--node", "-n":
			i++
			if i < len(args) {
				nodeURL = args[i]
			}
		case "--help", "-h":
			fmt.Println(`market-cli status - Display market state

Usage:
  market-cli status [--node=<url>]

Options:
  --node, -n    Market node URL (default: ` + defaultNodeURL + `)`)
			return nil
		}
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var status services.StatusResponse
	if err := getJSON(httpClient, nodeURL+"/market/status", &status); err != nil {
		return err
	}

	batchState := "closed"
	if status.CurrentBatch.Open {
		batchState = "open"
	}

	fmt.Printf("Instance:  %s\n", status.InstanceID)
	fmt.Printf("Owner:     %s\n", status.Owner)
	fmt.Printf("Paused:    %v\n", status.Paused)
	fmt.Printf("Cooldown:  %s\n", status.Cooldown)
	fmt.Printf("Batch:     %d (%s, %d items)\n", status.CurrentBatch.ID, batchState, status.CurrentBatch.ItemCount)
	fmt.Printf("Providers: %d\n", len(status.Providers))
	for _, p := range status.Providers {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

// --- Submit Command ---

func runSubmit(args []string) error {
	var (
		nodeURL   = defaultNodeURL
		oracleURL = defaultOracleURL
		keyHex    string
		deltas    [protocol.NumMetrics]uint64
	)

	metricFlags := map[string]int{
		"--total-volume": 0,
		"--avg-profit":   1,
		"--trade-count":  2,
		"--trade-volume": 3,
		"--trade-profit": 4,
	}

	for i := 0; i < len(args); i++ {
		if idx, ok := metricFlags[args[i]]; ok {
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &deltas[idx])
			}
			continue
		}
		switch args[i] {
		case "--node", "-n":
			i++
			if i < len(args) {
				nodeURL = args[i]
			}
		case "--oracle", "-o":
			i++
			if i < len(args) {
				oracleURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--help", "-h":
			printSubmitHelp()
			return nil
		}
	}

	key, err := loadKey(keyHex)
	if err != nil {
		return err
	}

	return submitContribution(nodeURL, oracleURL, key, deltas)
}

func printSubmitHelp() {
	fmt.Println(`market-cli submit - Submit an encrypted metric contribution

The five deltas are encrypted through the oracle's coprocessor API; only
the resulting handles are sent to the market node. The signing key must
hold the provider role.

Usage:
  market-cli submit --key=<hex> [metric options]

Options:
  --key, -k         Provider private key (hex, required)
  --node, -n        Market node URL (default: ` + defaultNodeURL + `)
  --oracle, -o      Oracle URL (default: ` + defaultOracleURL + `)
  --total-volume    Total market volume delta
  --avg-profit      Average-profit running sum delta
  --trade-count     Trade count delta
  --trade-volume    Trade volume delta
  --trade-profit    Trade profit delta

Example:
  market-cli submit -k <hex> --total-volume 10 --avg-profit 5 --trade-count 1 --trade-volume 10 --trade-profit 5`)
}

func submitContribution(nodeURL, oracleURL string, key crypto.PrivateKey, deltas [protocol.NumMetrics]uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	signers := fhe.NewRemoteSignerSource(oracleURL + "/oracle/signers")
	coproc := fhe.NewRemoteCoprocessor(oracleURL, signers)

	fmt.Println("Encrypting deltas...")
	handles := make([]fhe.Ciphertext, protocol.NumMetrics)
	for i, value := range deltas {
		handle, err := coproc.Encrypt(ctx, value)
		if err != nil {
			return fmt.Errorf("encrypting delta %d: %w", i, err)
		}
		handles[i] = handle
	}

	request := services.ContributionRequest{
		Sequence: nextSequence(),
		Deltas: protocol.MetricHandles{
			TotalVolume: handles[0],
			AvgProfit:   handles[1],
			TradeCount:  handles[2],
			TradeVolume: handles[3],
			TradeProfit: handles[4],
		},
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	body, err := doSigned(httpClient, http.MethodPost, nodeURL+"/market/contributions", key, &request)
	if err != nil {
		return err
	}

	var resp services.ContributionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("Contribution accepted into batch %d (%d items)\n", resp.BatchID, resp.ItemCount)
	return nil
}

// --- Disclose Command ---

func runDisclose(args []string) error {
	var (
		nodeURL = defaultNodeURL
		keyHex  string
		batchID uint64
		wait    bool
		timeout = 2 * time.Minute
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--node", "-n":
			i++
			if i < len(args) {
				nodeURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--batch", "-b":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &batchID)
			}
		case "--wait", "-w":
			wait = true
		case "--timeout":
			i++
			if i < len(args) {
				timeout, _ = time.ParseDuration(args[i])
			}
		case "--help", "-h":
			printDiscloseHelp()
			return nil
		}
	}

	key, err := loadKey(keyHex)
	if err != nil {
		return err
	}
	if batchID == 0 {
		return fmt.Errorf("--batch is required and must be > 0")
	}

	return requestDisclosure(nodeURL, key, batchID, wait, timeout)
}

func printDiscloseHelp() {
	fmt.Println(`market-cli disclose - Request disclosure of a closed batch

The market snapshots its encrypted aggregate and asks the oracle to
decrypt it. Values arrive asynchronously; --wait polls until the oracle
callback has been processed.

Usage:
  market-cli disclose --key=<hex> --batch=<id> [--wait]

Options:
  --key, -k     Requester private key (hex, required)
  --node, -n    Market node URL (default: ` + defaultNodeURL + `)
  --batch, -b   Closed batch to disclose (required)
  --wait, -w    Wait for the decrypted values
  --timeout     Timeout for --wait (default: 2m)`)
}

func requestDisclosure(nodeURL string, key crypto.PrivateKey, batchID uint64, wait bool, timeout time.Duration) error {
	request := services.DisclosureRequest{
		Sequence: nextSequence(),
		BatchID:  batchID,
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	body, err := doSigned(httpClient, http.MethodPost, nodeURL+"/market/disclose", key, &request)
	if err != nil {
		return err
	}

	var ticket services.DisclosureTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("Disclosure requested: %s (batch %d)\n", ticket.RequestID, ticket.BatchID)

	if !wait {
		fmt.Printf("Poll %s/market/disclosures/%s for the result\n", nodeURL, ticket.RequestID)
		return nil
	}

	fmt.Println("Waiting for oracle callback...")
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(time.Second)

		var status services.DisclosureStatusResponse
		if err := getJSON(httpClient, nodeURL+"/market/disclosures/"+ticket.RequestID, &status); err != nil {
			continue
		}
		if !status.Processed || status.Values == nil {
			continue
		}

		printValues(ticket.BatchID, status.Values)
		return nil
	}

	return fmt.Errorf("timeout waiting for disclosure %s", ticket.RequestID)
}

func printValues(batchID uint64, values *protocol.MetricValues) {
	fmt.Printf("Batch %d disclosed:\n", batchID)
	fmt.Printf("  Total volume:    %d\n", values.TotalVolume)
	fmt.Printf("  Avg-profit sum:  %d\n", values.AvgProfit)
	fmt.Printf("  Trade count:     %d\n", values.TradeCount)
	fmt.Printf("  Trade volume:    %d\n", values.TradeVolume)
	fmt.Printf("  Trade profit:    %d\n", values.TradeProfit)
}

// --- Admin Command ---

func runAdmin(args []string) error {
	if len(args) < 1 {
		printAdminHelp()
		return fmt.Errorf("admin action is required")
	}

	action := args[0]
	if action == "--help" || action == "-h" {
		printAdminHelp()
		return nil
	}

	var (
		nodeURL  = defaultNodeURL
		keyHex   string
		provider string
		newOwner string
		duration time.Duration
	)

	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--node", "-n":
			i++
			if i < len(rest) {
				nodeURL = rest[i]
			}
		case "--key", "-k":
			i++
			if i < len(rest) {
				keyHex = rest[i]
			}
		case "--provider", "-p":
			i++
			if i < len(rest) {
				provider = rest[i]
			}
		case "--to":
			i++
			if i < len(rest) {
				newOwner = rest[i]
			}
		case "--duration", "-d":
			i++
			if i < len(rest) {
				var err error
				duration, err = time.ParseDuration(rest[i])
				if err != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
			}
		case "--help", "-h":
			printAdminHelp()
			return nil
		}
	}

	key, err := loadKey(keyHex)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var body []byte
	switch action {
	case "pause", "unpause", "close-batch":
		request := services.AdminActionRequest{
			Sequence: nextSequence(),
			Action:   services.AdminAction(action),
		}
		body, err = doSigned(httpClient, http.MethodPost, nodeURL+"/admin/"+action, key, &request)

	case "grant":
		if provider == "" {
			return fmt.Errorf("--provider is required")
		}
		request := services.ProviderGrantRequest{Sequence: nextSequence(), Provider: provider}
		body, err = doSigned(httpClient, http.MethodPost, nodeURL+"/admin/providers", key, &request)

	case "revoke":
		if provider == "" {
			return fmt.Errorf("--provider is required")
		}
		request := services.ProviderRevokeRequest{Sequence: nextSequence(), Provider: provider}
		body, err = doSigned(httpClient, http.MethodDelete, nodeURL+"/admin/providers/"+provider, key, &request)

	case "cooldown":
		if duration == 0 {
			return fmt.Errorf("--duration is required")
		}
		request := services.CooldownRequest{Sequence: nextSequence(), Cooldown: duration}
		body, err = doSigned(httpClient, http.MethodPost, nodeURL+"/admin/cooldown", key, &request)

	case "transfer":
		if newOwner == "" {
			return fmt.Errorf("--to is required")
		}
		request := services.TransferOwnershipRequest{Sequence: nextSequence(), NewOwner: newOwner}
		body, err = doSigned(httpClient, http.MethodPost, nodeURL+"/admin/transfer-ownership", key, &request)

	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin action: %s", action)
	}
	if err != nil {
		return err
	}

	var resp services.AdminResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if resp.Message != "" {
		fmt.Println(resp.Message)
	} else {
		fmt.Printf("%s: ok\n", action)
	}
	return nil
}

func printAdminHelp() {
	fmt.Println(`market-cli admin - Owner operations

Usage:
  market-cli admin <action> --key=<hex> [options]

Actions:
  grant        Grant the provider role (--provider)
  revoke       Revoke the provider role (--provider)
  pause        Pause all non-admin operations
  unpause      Resume operations
  close-batch  Close the current batch and open the next
  cooldown     Change the rate limit window (--duration)
  transfer     Transfer ownership (--to)

Options:
  --key, -k        Owner private key (hex, required)
  --node, -n       Market node URL (default: ` + defaultNodeURL + `)
  --provider, -p   Provider public key (hex)
  --to             New owner public key (hex)
  --duration, -d   Cooldown window ("30m", "1h")

Examples:
  market-cli admin grant -k <hex> -p <provider-hex>
  market-cli admin close-batch -k <hex>
  market-cli admin cooldown -k <hex> -d 30m`)
}

// --- Events Command ---

func runEvents(args []string) error {
	var (
		nodeURL = defaultNodeURL
		limit   = 20
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--node", "-n":
			i++
			if i < len(args) {
				nodeURL = args[i]
			}
		case "--limit", "-l":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &limit)
			}
		case "--help", "-h":
			fmt.Println(`market-cli events - Print the market audit log

Usage:
  market-cli events [--node=<url>] [--limit=<n>]

Options:
  --node, -n     Market node URL (default: ` + defaultNodeURL + `)
  --limit, -l    Number of events to fetch (default: 20)`)
			return nil
		}
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var list services.EventListResponse
	url := fmt.Sprintf("%s/market/events?limit=%d", nodeURL, limit)
	if err := getJSON(httpClient, url, &list); err != nil {
		return err
	}

	if len(list.Events) == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	for _, ev := range list.Events {
		fmt.Printf("%s  %-22s %s\n", ev.Time.Format(time.RFC3339), ev.Kind, string(ev.Payload))
	}
	return nil
}
