package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/taji-labs/signing-service/pkg/journal"
	"github.com/taji-labs/signing-service/pkg/transactionSigner"
	"github.com/taji-labs/signing-service/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

// ClientConfig holds the configuration for the signing service client
type ClientConfig struct {
	BaseURL string
	Logger  *zap.Logger

	// BearerToken is sent on signing and receipt requests when set.
	BearerToken string

	// VerifySender decodes every returned envelope and checks that it recovers to the
	// address of the key that was sent.
	VerifySender bool

	HTTPClient *http.Client
}

// Client talks to a signing service over HTTP.
type Client struct {
	baseURL      string
	bearerToken  string
	verifySender bool
	httpClient   *http.Client
	logger       *zap.Logger
}

// ResponseError is a non-success reply from the service.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("signing service returned %d: %s", e.StatusCode, e.Message)
}

// IsClientError reports whether the service rejected the request as malformed.
func (e *ResponseError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// SignResult is a verified signing response.
type SignResult struct {
	Envelope        string
	TransactionHash common.Hash
	From            common.Address
	Transaction     *ethtypes.Transaction
}

func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		bearerToken:  config.BearerToken,
		verifySender: config.VerifySender,
		httpClient:   httpClient,
		logger:       config.Logger,
	}, nil
}

// SignTransaction asks the service to sign tx, which must marshal to a JSON object
// carrying the seven transaction fields.
func (c *Client) SignTransaction(ctx context.Context, tx any, privateKey string) (*SignResult, error) {
	var expected *ecdsa.PrivateKey
	if c.verifySender {
		key, err := transactionSigner.DeriveSigningKey(types.NewSecret(privateKey))
		if err != nil {
			return nil, err
		}
		expected = key
	}

	body, err := json.Marshal(map[string]any{
		"transaction": tx,
		"privateKey":  privateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp types.SignTransactionResponse
	if err := c.do(ctx, http.MethodPost, "/sign-transaction", body, true, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &ResponseError{StatusCode: http.StatusOK, Message: resp.Message}
	}

	decoded, err := transactionSigner.DecodeEnvelope(resp.SignedTransaction)
	if err != nil {
		return nil, fmt.Errorf("service returned an undecodable envelope: %w", err)
	}

	result := &SignResult{
		Envelope:        resp.SignedTransaction,
		TransactionHash: decoded.Hash(),
		From:            common.HexToAddress(resp.From),
		Transaction:     decoded,
	}

	if resp.TransactionHash != "" && common.HexToHash(resp.TransactionHash) != result.TransactionHash {
		return nil, fmt.Errorf("reported hash %s does not match envelope hash %s", resp.TransactionHash, result.TransactionHash.Hex())
	}

	if expected != nil {
		sender, err := transactionSigner.RecoverSender(decoded)
		if err != nil {
			return nil, fmt.Errorf("failed to recover sender: %w", err)
		}
		want := crypto.PubkeyToAddress(expected.PublicKey)
		if sender != want {
			return nil, fmt.Errorf("envelope signed by %s, expected %s", sender.Hex(), want.Hex())
		}
		result.From = sender
	}

	c.logger.Sugar().Debugw("Transaction signed by service",
		"tx_hash", result.TransactionHash.Hex(),
		"from", result.From.Hex(),
	)
	return result, nil
}

func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var health types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, false, &health); err != nil {
		return nil, err
	}
	if health.Status != "ok" {
		return nil, fmt.Errorf("service unhealthy: status %q", health.Status)
	}
	return &health, nil
}

// ListReceipts returns the newest receipts issued for from.
func (c *Client) ListReceipts(ctx context.Context, from common.Address, limit int) ([]*journal.Receipt, error) {
	query := url.Values{}
	query.Set("from", from.Hex())
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Success  bool               `json:"success"`
		Message  string             `json:"message"`
		Receipts []*journal.Receipt `json:"receipts"`
	}
	if err := c.do(ctx, http.MethodGet, "/receipts?"+query.Encode(), nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, authenticated bool, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure types.SignTransactionResponse
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &failure) == nil && failure.Message != "" {
			message = failure.Message
		}
		c.logger.Sugar().Debugw("Signing service returned error", "path", path, "status_code", resp.StatusCode, "message", message)
		return &ResponseError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
