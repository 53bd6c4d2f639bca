package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taji-labs/signing-service/pkg/auth"
	"github.com/taji-labs/signing-service/pkg/config"
	"github.com/taji-labs/signing-service/pkg/journal"
	"github.com/taji-labs/signing-service/pkg/journal/memory"
	"github.com/taji-labs/signing-service/pkg/metrics"
	"github.com/taji-labs/signing-service/pkg/testutil"
	"github.com/taji-labs/signing-service/pkg/transactionSigner"
	"github.com/taji-labs/signing-service/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2026, 10, 19, 8, 30, 0, 250000000, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingSigner struct {
	mu    sync.Mutex
	calls int
	inner transactionSigner.ITransactionSigner
}

func (c *countingSigner) SignTransaction(fields *types.TransactionFields, secret types.Secret) (*types.SignedTransaction, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.SignTransaction(fields, secret)
}

type panickingSigner struct{}

func (panickingSigner) SignTransaction(*types.TransactionFields, types.Secret) (*types.SignedTransaction, error) {
	panic("signer exploded")
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyToken(_ context.Context, token string) (*auth.Claims, error) {
	if token == "good-token" {
		return &auth.Claims{Subject: "wallet-backend"}, nil
	}
	return nil, auth.ErrInvalidToken
}

type brokenJournal struct {
	journal.IReceiptJournal
}

func (brokenJournal) Record(context.Context, *journal.Receipt) error {
	return fmt.Errorf("disk full")
}

type testServer struct {
	server *Server
	logs   *observer.ObservedLogs
}

func newTestServer(t *testing.T, mutate func(*config.SigningServerConfig), opts ...Option) *testServer {
	t.Helper()
	cfg := config.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s, err := NewServer(cfg, zap.New(core), opts...)
	require.NoError(t, err)
	return &testServer{server: s, logs: logs}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) types.SignTransactionResponse {
	t.Helper()
	var resp types.SignTransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// allLogText flattens every captured entry, fields included.
func allLogText(logs *observer.ObservedLogs) string {
	var sb strings.Builder
	for _, entry := range logs.All() {
		sb.WriteString(entry.Message)
		sb.WriteString(fmt.Sprint(entry.ContextMap()))
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestNewServer_InvalidConfig(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop())
	require.Error(t, err)

	cfg := config.NewDefaultConfig()
	cfg.Port = 0
	_, err = NewServer(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health types.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "taji-signing-service", health.Service)
	assert.Equal(t, "2026-10-19T08:30:00.250Z", health.Timestamp)
}

func TestSignTransaction_Success(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/sign-transaction",
		testutil.RequestBody(t, testutil.EIP155ExampleTransaction(), testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	_, addr := testutil.KeyAndAddress(t, testutil.TestPrivateKeyHex)
	assert.True(t, resp.Success)
	assert.Equal(t, testutil.EIP155ExampleEnvelope, resp.SignedTransaction)
	assert.Equal(t, "Transaction signed successfully", resp.Message)
	assert.Equal(t, addr.Hex(), resp.From)
	assert.True(t, strings.HasPrefix(resp.TransactionHash, "0x"))
}

func TestSignTransaction_Rejections(t *testing.T) {
	full := testutil.SimpleTransfer()

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"empty body", "", http.StatusBadRequest, "Transaction object is required"},
		{"empty object", `{}`, http.StatusBadRequest, "Transaction object is required"},
		{"null transaction", `{"transaction":null,"privateKey":"0x01"}`, http.StatusBadRequest, "Transaction object is required"},
		{"missing key", string(testutil.MustRaw(t, map[string]any{"transaction": full})), http.StatusBadRequest, "Private key is required"},
		{"empty key", string(testutil.RequestBody(t, full, "")), http.StatusBadRequest, "Private key is required"},
		{"missing fields", string(testutil.RequestBody(t, testutil.Without(full, "to", "chainId"), testutil.TestPrivateKeyHex)), http.StatusBadRequest, "Missing required transaction fields: to, chainId"},
		{"all fields missing", string(testutil.RequestBody(t, map[string]any{}, testutil.TestPrivateKeyHex)), http.StatusBadRequest, "Missing required transaction fields: nonce, gasPrice, gas, to, value, data, chainId"},
		{"malformed json", `{"transaction":`, http.StatusBadRequest, "Invalid request body"},
		{"array body", `[]`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &countingSigner{inner: transactionSigner.NewPrivateKeySigner()}
			ts := newTestServer(t, nil, WithSigner(signer))

			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			rec := ts.do(t, http.MethodPost, "/sign-transaction", body, nil)
			require.Equal(t, tt.status, rec.Code)

			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Empty(t, resp.SignedTransaction)
			assert.Zero(t, signer.calls)
		})
	}
}

func TestSignTransaction_InvalidKey(t *testing.T) {
	ts := newTestServer(t, nil)
	badKey := "0x" + strings.Repeat("ab", 31) + "zz"

	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, testutil.SimpleTransfer(), badKey), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid private key format", decodeResponse(t, rec).Message)
	assert.NotContains(t, rec.Body.String(), badKey)
	assert.NotContains(t, allLogText(ts.logs), strings.Repeat("ab", 31))
}

func TestSignTransaction_SigningFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	tx := testutil.With(testutil.SimpleTransfer(), "to", "0x1234")

	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, tx, testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Message, "Transaction signing failed: "), resp.Message)
}

func TestSignTransaction_PanicIsInternalError(t *testing.T) {
	ts := newTestServer(t, nil, WithSigner(panickingSigner{}))

	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeResponse(t, rec).Message)
	assert.NotContains(t, rec.Body.String(), "exploded")

	// the server keeps serving
	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSignTransaction_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.SigningServerConfig) { c.MaxBodyBytes = 256 })

	tx := testutil.With(testutil.SimpleTransfer(), "data", "0x"+strings.Repeat("00", 512))
	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, tx, testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decodeResponse(t, rec).Message)
}

func TestLogsNeverContainPrivateKey(t *testing.T) {
	ts := newTestServer(t, nil)
	keyBody := testutil.OtherPrivateKeyHex[2:]

	bodies := [][]byte{
		testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.OtherPrivateKeyHex),
		testutil.RequestBody(t, testutil.Without(testutil.SimpleTransfer(), "gas"), testutil.OtherPrivateKeyHex),
		testutil.RequestBody(t, testutil.With(testutil.SimpleTransfer(), "value", "-5"), testutil.OtherPrivateKeyHex),
	}
	for _, body := range bodies {
		rec := ts.do(t, http.MethodPost, "/sign-transaction", body, nil)
		assert.NotContains(t, rec.Body.String(), keyBody)
	}

	require.NotZero(t, ts.logs.Len())
	assert.NotContains(t, allLogText(ts.logs), keyBody)
}

func TestSignedEventIsLogged(t *testing.T) {
	ts := newTestServer(t, nil)
	tx := testutil.With(testutil.SimpleTransfer(), "data", "0xa9059cbb000000000000000000000000")

	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, tx, testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	signedLogs := ts.logs.FilterMessage("Transaction signed").All()
	require.Len(t, signedLogs, 1)
	assert.Equal(t, string(types.StageSigned), fmt.Sprint(signedLogs[0].ContextMap()["stage"]))

	prepared := ts.logs.FilterMessage("Prepared transaction request").All()
	require.Len(t, prepared, 1)
	assert.Contains(t, fmt.Sprint(prepared[0].ContextMap()["fields"]), "0xa9059cbb0000000000...")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/does-not-exist", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeResponse(t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/sign-transaction", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil, map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	rec = ts.do(t, http.MethodGet, "/health", nil, map[string]string{requestIDHeader: strings.Repeat("x", 200)})
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodOptions, "/sign-transaction", nil, map[string]string{
		"Origin":                        "https://wallet.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	restricted := newTestServer(t, func(c *config.SigningServerConfig) {
		c.CORSOrigins = []string{"https://wallet.example"}
	})
	rec = restricted.do(t, http.MethodGet, "/health", nil, map[string]string{"Origin": "https://wallet.example"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://wallet.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = restricted.do(t, http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.SigningServerConfig) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})
	body := testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex)

	rec := ts.do(t, http.MethodPost, "/sign-transaction", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sign-transaction", body, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", decodeResponse(t, rec).Message)

	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, nil, WithTokenVerifier(fakeVerifier{}))
	body := testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex)

	rec := ts.do(t, http.MethodPost, "/sign-transaction", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeResponse(t, rec).Message)

	rec = ts.do(t, http.MethodPost, "/sign-transaction", body, map[string]string{"Authorization": "Bearer bad-token"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sign-transaction", body, map[string]string{"Authorization": "Bearer good-token"})
	require.Equal(t, http.StatusOK, rec.Code)

	// liveness stays open
	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	ts := newTestServer(t, func(c *config.SigningServerConfig) { c.MetricsEnabled = true }, WithMetrics(m))

	rec := ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/sign-transaction", testutil.RequestBody(t, map[string]any{}, testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `signer_signing_requests_total{error_kind="",stage="signed"} 1`)
	assert.Contains(t, out, `signer_signing_requests_total{error_kind="MissingFields",stage="rejected"} 1`)
	assert.Contains(t, out, `signer_signed_transactions_total{chain="mainnet"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiptJournal(t *testing.T) {
	j := memory.NewMemoryJournal()
	ts := newTestServer(t, nil, WithJournal(j))

	rec := ts.do(t, http.MethodPost, "/sign-transaction",
		testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex),
		map[string]string{requestIDHeader: "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)
	signed := decodeResponse(t, rec)

	rec = ts.do(t, http.MethodGet, "/receipts?from="+signed.From, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list receiptListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Receipts, 1)
	receipt := list.Receipts[0]
	assert.Equal(t, "req-42", receipt.RequestID)
	assert.Equal(t, signed.TransactionHash, receipt.TxHash)
	assert.Equal(t, "1", receipt.ChainID)
	assert.True(t, fixedNow.Equal(receipt.SignedAt))

	rec = ts.do(t, http.MethodGet, "/receipts/"+receipt.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/receipts/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/receipts?from=nope", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/receipts?from="+signed.From+"&limit=0", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiptJournalFailureDoesNotFailSigning(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	ts := newTestServer(t, nil, WithJournal(brokenJournal{}), WithMetrics(m))

	rec := ts.do(t, http.MethodPost, "/sign-transaction",
		testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
	assert.Equal(t, 1, ts.logs.FilterMessage("Failed to record signing receipt").Len())
}

func TestReceiptRoutesAbsentWithoutJournal(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/receipts/anything", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForKind(types.ErrorKindMissingTransaction))
	assert.Equal(t, http.StatusBadRequest, StatusForKind(types.ErrorKindMissingPrivateKey))
	assert.Equal(t, http.StatusBadRequest, StatusForKind(types.ErrorKindMissingFields))
	assert.Equal(t, http.StatusBadRequest, StatusForKind(types.ErrorKindInvalidKeyFormat))
	assert.Equal(t, http.StatusInternalServerError, StatusForKind(types.ErrorKindSigningFailure))
	assert.Equal(t, http.StatusInternalServerError, StatusForKind(types.ErrorKindInternal))
}

func TestConcurrentSigning(t *testing.T) {
	ts := newTestServer(t, nil)
	body := testutil.RequestBody(t, testutil.SimpleTransfer(), testutil.TestPrivateKeyHex)

	var wg sync.WaitGroup
	envelopes := make([]string, 12)
	for i := range envelopes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/sign-transaction", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			ts.server.GetHandler().ServeHTTP(rec, req)
			var resp types.SignTransactionResponse
			if json.Unmarshal(rec.Body.Bytes(), &resp) == nil {
				envelopes[i] = resp.SignedTransaction
			}
		}(i)
	}
	wg.Wait()

	for _, envelope := range envelopes {
		require.Equal(t, envelopes[0], envelope)
		require.NotEmpty(t, envelope)
	}
}
