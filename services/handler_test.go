package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
	"github.com/edipietro-895n3/Star-Trader-Fhe/testutil"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type handlerFixture struct {
	router  chi.Router
	market  *protocol.Market
	coproc  *fhe.LocalCoprocessor
	store   *InMemoryStore
	handler *MarketHandler
	clock   *testClock

	ownerKey    crypto.PrivateKey
	providerKey crypto.PrivateKey
	seq         uint64
}

func setupTestHandler(t *testing.T) *handlerFixture {
	t.Helper()

	coproc, err := testutil.NewTestCoprocessor()
	require.NoError(t, err)

	owner, ownerKey, err := testutil.GenerateTestActor()
	require.NoError(t, err)
	provider, providerKey, err := testutil.GenerateTestActor()
	require.NoError(t, err)

	market, err := protocol.NewMarket(testutil.NewTestMarketConfig(owner, testutil.WithInstanceID("handler-test")), coproc, nil)
	require.NoError(t, err)

	clock := &testClock{now: time.Unix(1700000000, 0)}
	market.SetClock(clock.Now)

	require.NoError(t, market.AddProvider(owner, provider))

	store := NewInMemoryStore()
	handler := NewMarketHandler(market, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return &handlerFixture{
		router:      router,
		market:      market,
		coproc:      coproc,
		store:       store,
		handler:     handler,
		clock:       clock,
		ownerKey:    ownerKey,
		providerKey: providerKey,
	}
}

func (f *handlerFixture) nextSeq() uint64 {
	f.seq++
	return f.seq
}

func (f *handlerFixture) do(method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func signedBody[T any](t *testing.T, key crypto.PrivateKey, obj *T) io.Reader {
	t.Helper()

	signed, err := crypto.NewSigned(key, obj)
	require.NoError(t, err)
	body, err := json.Marshal(signed)
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func (f *handlerFixture) encrypt(t *testing.T, values protocol.MetricValues) protocol.MetricHandles {
	t.Helper()

	handles, err := testutil.EncryptDeltas(context.Background(), f.coproc, values)
	require.NoError(t, err)
	return handles
}

func (f *handlerFixture) submit(t *testing.T, values protocol.MetricValues) *httptest.ResponseRecorder {
	t.Helper()

	f.clock.advance(2 * time.Minute)
	return f.do("POST", "/market/contributions", signedBody(t, f.providerKey, &ContributionRequest{
		Sequence: f.nextSeq(),
		Deltas:   f.encrypt(t, values),
	}))
}

func (f *handlerFixture) adminAction(t *testing.T, action AdminAction) *httptest.ResponseRecorder {
	t.Helper()

	return f.do("POST", "/admin/"+string(action), signedBody(t, f.ownerKey, &AdminActionRequest{
		Sequence: f.nextSeq(),
		Action:   action,
	}))
}

func (f *handlerFixture) requestDisclosure(t *testing.T, batchID uint64) *httptest.ResponseRecorder {
	t.Helper()

	f.clock.advance(2 * time.Minute)
	return f.do("POST", "/market/disclose", signedBody(t, f.ownerKey, &DisclosureRequest{
		Sequence: f.nextSeq(),
		BatchID:  batchID,
	}))
}

// deliverCallback plays the oracle: it decrypts the pending request and
// POSTs the signed result to the callback endpoint.
func (f *handlerFixture) deliverCallback(t *testing.T, requestID string) *httptest.ResponseRecorder {
	t.Helper()

	result, proof, err := f.coproc.Fulfill(requestID)
	require.NoError(t, err)

	body, err := json.Marshal(&fhe.DecryptionCallback{
		RequestID:  result.RequestID,
		Cleartexts: result.Cleartexts,
		Proof:      proof,
	})
	require.NoError(t, err)
	return f.do("POST", "/oracle/callback", strings.NewReader(string(body)))
}

func TestMarketHandler_Status(t *testing.T) {
	f := setupTestHandler(t)

	w := f.do("GET", "/market/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.Equal(t, "handler-test", status.InstanceID)
	require.Equal(t, string(f.market.Owner()), status.Owner)
	require.False(t, status.Paused)
	require.Equal(t, uint64(1), status.CurrentBatch.ID)
	require.Len(t, status.Providers, 1)
}

func TestMarketHandler_GetBatch(t *testing.T) {
	f := setupTestHandler(t)

	w := f.do("GET", "/market/batches/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var batch protocol.Batch
	require.NoError(t, json.NewDecoder(w.Body).Decode(&batch))
	require.True(t, batch.Open)

	w = f.do("GET", "/market/batches/99", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do("GET", "/market/batches/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketHandler_ContributionFlow(t *testing.T) {
	f := setupTestHandler(t)

	w := f.submit(t, protocol.MetricValues{TotalVolume: 10, AvgProfit: 5, TradeCount: 1, TradeVolume: 10, TradeProfit: 5})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ContributionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, uint64(1), resp.BatchID)
	require.Equal(t, uint64(1), resp.ItemCount)

	// The mutation is written through to the store.
	state, err := f.store.LoadState()
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, uint64(1), state.Batches[0].ItemCount)
}

func TestMarketHandler_ContributionRejections(t *testing.T) {
	f := setupTestHandler(t)

	// Garbage body.
	w := f.do("POST", "/market/contributions", strings.NewReader("{not json"))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Tampered signature.
	signed, err := crypto.NewSigned(f.providerKey, &ContributionRequest{
		Sequence: f.nextSeq(),
		Deltas:   f.encrypt(t, protocol.MetricValues{TotalVolume: 1}),
	})
	require.NoError(t, err)
	signed.Signature[0] ^= 0xFF
	body, err := json.Marshal(signed)
	require.NoError(t, err)
	w = f.do("POST", "/market/contributions", strings.NewReader(string(body)))
	require.Equal(t, http.StatusForbidden, w.Code)

	// Signer without provider role.
	_, strangerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	w = f.do("POST", "/market/contributions", signedBody(t, strangerKey, &ContributionRequest{
		Sequence: f.nextSeq(),
		Deltas:   f.encrypt(t, protocol.MetricValues{TotalVolume: 1}),
	}))
	require.Equal(t, http.StatusForbidden, w.Code)

	// Reused sequence.
	w = f.submit(t, protocol.MetricValues{TotalVolume: 1})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do("POST", "/market/contributions", signedBody(t, f.providerKey, &ContributionRequest{
		Sequence: f.seq,
		Deltas:   f.encrypt(t, protocol.MetricValues{TotalVolume: 1}),
	}))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "stale sequence")

	// Cooldown still active.
	w = f.do("POST", "/market/contributions", signedBody(t, f.providerKey, &ContributionRequest{
		Sequence: f.nextSeq(),
		Deltas:   f.encrypt(t, protocol.MetricValues{TotalVolume: 1}),
	}))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMarketHandler_DisclosureRoundTrip(t *testing.T) {
	f := setupTestHandler(t)

	w := f.submit(t, protocol.MetricValues{TotalVolume: 10, AvgProfit: 5, TradeCount: 1, TradeVolume: 10, TradeProfit: 5})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.adminAction(t, ActionCloseBatch)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.requestDisclosure(t, 1)
	require.Equal(t, http.StatusOK, w.Code)

	var ticket DisclosureTicket
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ticket))
	require.NotEmpty(t, ticket.RequestID)
	require.Equal(t, uint64(1), ticket.BatchID)

	w = f.deliverCallback(t, ticket.RequestID)
	require.Equal(t, http.StatusOK, w.Code)

	var result protocol.DisclosureResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.Equal(t, protocol.MetricValues{TotalVolume: 10, AvgProfit: 5, TradeCount: 1, TradeVolume: 10, TradeProfit: 5}, result.Values)

	// The status endpoint now reports the decrypted values.
	w = f.do("GET", "/market/disclosures/"+ticket.RequestID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status DisclosureStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.True(t, status.Processed)
	require.NotNil(t, status.Values)
	require.Equal(t, uint64(10), status.Values.TotalVolume)

	// Replaying the same callback is rejected.
	body, err := json.Marshal(&fhe.DecryptionCallback{
		RequestID:  result.RequestID,
		Cleartexts: result.Values.Encode(),
		Proof:      []byte("irrelevant"),
	})
	require.NoError(t, err)
	w = f.do("POST", "/oracle/callback", strings.NewReader(string(body)))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestMarketHandler_CallbackStaleState(t *testing.T) {
	f := setupTestHandler(t)

	w := f.submit(t, protocol.MetricValues{TotalVolume: 10, AvgProfit: 5, TradeCount: 1, TradeVolume: 10, TradeProfit: 5})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.adminAction(t, ActionCloseBatch)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.requestDisclosure(t, 1)
	require.Equal(t, http.StatusOK, w.Code)
	var ticket DisclosureTicket
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ticket))

	// Another contribution lands before the oracle answers.
	w = f.submit(t, protocol.MetricValues{TotalVolume: 3, AvgProfit: 1, TradeCount: 1, TradeVolume: 3, TradeProfit: 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.deliverCallback(t, ticket.RequestID)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "aggregate changed")

	// The request stays unprocessed; a fresh request sees the new totals.
	w = f.do("GET", "/market/disclosures/"+ticket.RequestID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status DisclosureStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.False(t, status.Processed)

	w = f.requestDisclosure(t, 1)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ticket))

	w = f.deliverCallback(t, ticket.RequestID)
	require.Equal(t, http.StatusOK, w.Code)

	var result protocol.DisclosureResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	require.Equal(t, uint64(13), result.Values.TotalVolume)
	require.Equal(t, uint64(2), result.Values.TradeCount)
}

func TestMarketHandler_DisclosureGates(t *testing.T) {
	f := setupTestHandler(t)

	// The current batch is still open.
	w := f.requestDisclosure(t, 1)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/market/disclose", signedBody(t, f.ownerKey, &DisclosureRequest{
		Sequence: f.nextSeq(),
		BatchID:  0,
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketHandler_UnknownCallback(t *testing.T) {
	f := setupTestHandler(t)

	body, err := json.Marshal(&fhe.DecryptionCallback{
		RequestID:  "no-such-request",
		Cleartexts: protocol.MetricValues{}.Encode(),
		Proof:      []byte("proof"),
	})
	require.NoError(t, err)

	w := f.do("POST", "/oracle/callback", strings.NewReader(string(body)))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketHandler_AdminActionMismatch(t *testing.T) {
	f := setupTestHandler(t)

	// A signed pause delivered to the unpause endpoint must not apply.
	w := f.do("POST", "/admin/unpause", signedBody(t, f.ownerKey, &AdminActionRequest{
		Sequence: f.nextSeq(),
		Action:   ActionPause,
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "action mismatch")
	require.False(t, f.market.Paused())
}

func TestMarketHandler_PauseLifecycle(t *testing.T) {
	f := setupTestHandler(t)

	w := f.adminAction(t, ActionPause)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, f.market.Paused())

	w = f.submit(t, protocol.MetricValues{TotalVolume: 1})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.adminAction(t, ActionUnpause)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.submit(t, protocol.MetricValues{TotalVolume: 1})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMarketHandler_AdminRequiresOwner(t *testing.T) {
	f := setupTestHandler(t)

	w := f.do("POST", "/admin/pause", signedBody(t, f.providerKey, &AdminActionRequest{
		Sequence: f.nextSeq(),
		Action:   ActionPause,
	}))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, f.market.Paused())
}

func TestMarketHandler_ProviderLifecycle(t *testing.T) {
	f := setupTestHandler(t)

	providerPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	w := f.do("POST", "/admin/providers", signedBody(t, f.ownerKey, &ProviderGrantRequest{
		Sequence: f.nextSeq(),
		Provider: providerPub.String(),
	}))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, f.market.IsProvider(protocol.Actor(providerPub.String())))

	// URL and signed body must name the same key.
	w = f.do("DELETE", "/admin/providers/deadbeef", signedBody(t, f.ownerKey, &ProviderRevokeRequest{
		Sequence: f.nextSeq(),
		Provider: providerPub.String(),
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "provider mismatch")

	w = f.do("DELETE", "/admin/providers/"+providerPub.String(), signedBody(t, f.ownerKey, &ProviderRevokeRequest{
		Sequence: f.nextSeq(),
		Provider: providerPub.String(),
	}))
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, f.market.IsProvider(protocol.Actor(providerPub.String())))
}

func TestMarketHandler_TransferOwnershipAndCooldown(t *testing.T) {
	f := setupTestHandler(t)

	newOwnerPub, newOwnerKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	w := f.do("POST", "/admin/transfer-ownership", signedBody(t, f.ownerKey, &TransferOwnershipRequest{
		Sequence: f.nextSeq(),
		NewOwner: newOwnerPub.String(),
	}))
	require.Equal(t, http.StatusOK, w.Code)

	// The previous owner lost admin rights.
	w = f.adminAction(t, ActionPause)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do("POST", "/admin/cooldown", signedBody(t, newOwnerKey, &CooldownRequest{
		Sequence: f.nextSeq(),
		Cooldown: 30 * time.Second,
	}))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 30*time.Second, f.market.Cooldown())

	w = f.do("POST", "/admin/cooldown", signedBody(t, newOwnerKey, &CooldownRequest{
		Sequence: f.nextSeq(),
		Cooldown: 0,
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketHandler_EventLog(t *testing.T) {
	f := setupTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder := NewEventRecorder(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go recorder.Run(ctx, f.market)

	// The recorder subscribes asynchronously, so keep submitting until a
	// record shows up in the log.
	require.Eventually(t, func() bool {
		w := f.submit(t, protocol.MetricValues{TotalVolume: 1})
		require.Equal(t, http.StatusOK, w.Code)
		records, err := f.store.Events(0)
		require.NoError(t, err)
		return len(records) > 0
	}, time.Second, 10*time.Millisecond)

	records, err := f.store.Events(0)
	require.NoError(t, err)
	require.Equal(t, string(protocol.KindContributionRecorded), records[0].Kind)
	require.NotEmpty(t, records[0].Payload)

	w := f.do("GET", "/market/events?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Events, 1)
}
