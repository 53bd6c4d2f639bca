package testutil

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/taji-labs/signing-service/pkg/types"
)

// Well known throwaway keys. Never fund these accounts.
const (
	// TestPrivateKeyHex is the key used in the EIP-155 specification example.
	TestPrivateKeyHex = "0x4646464646464646464646464646464646464646464646464646464646464646"
	// OtherPrivateKeyHex is a second unrelated key.
	OtherPrivateKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	TestRecipient = "0x3535353535353535353535353535353535353535"
)

// EIP155ExampleTransaction is the transaction from the EIP-155 specification.
func EIP155ExampleTransaction() map[string]any {
	return map[string]any{
		"nonce":    9,
		"gasPrice": "20000000000",
		"gas":      21000,
		"to":       TestRecipient,
		"value":    "1000000000000000000",
		"data":     "",
		"chainId":  1,
	}
}

// EIP155ExampleEnvelope is the signed encoding of EIP155ExampleTransaction under
// TestPrivateKeyHex, as published in the EIP.
const EIP155ExampleEnvelope = "0xf86c098504a817c800825208943535353535353535353535353535353535353535880de0b6b3a76400008025a028ef61340bd939bc2195fe537567866003e1a15d3c71ff63e1590620aa636276a067cbe9d8997f761aecb703304b3800ccf555c9f3dc64214b297fb1966a3b6d83"

// SimpleTransfer returns a minimal, valid transfer with zero nonce and value.
func SimpleTransfer() map[string]any {
	return map[string]any{
		"nonce":    0,
		"gasPrice": "0x1",
		"gas":      "0x5208",
		"to":       TestRecipient,
		"value":    "0x0",
		"data":     "0x",
		"chainId":  1,
	}
}

// Without returns a copy of tx with the named fields removed.
func Without(tx map[string]any, names ...string) map[string]any {
	out := make(map[string]any, len(tx))
	for k, v := range tx {
		out[k] = v
	}
	for _, name := range names {
		delete(out, name)
	}
	return out
}

// With returns a copy of tx with name set to value.
func With(tx map[string]any, name string, value any) map[string]any {
	out := Without(tx)
	out[name] = value
	return out
}

func MustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// TransactionFields builds validated fields directly, bypassing the validator.
func TransactionFields(t *testing.T, tx map[string]any) *types.TransactionFields {
	t.Helper()
	raw := make(map[string]json.RawMessage, len(tx))
	for k, v := range tx {
		raw[k] = MustRaw(t, v)
	}
	return types.NewTransactionFields(raw)
}

// SignRequest builds a request the way the HTTP layer decodes one.
func SignRequest(t *testing.T, tx map[string]any, privateKey string) *types.SignTransactionRequest {
	t.Helper()
	req := &types.SignTransactionRequest{PrivateKey: MustRaw(t, privateKey)}
	if tx != nil {
		req.Transaction = MustRaw(t, tx)
	}
	return req
}

// RequestBody renders a JSON body for POST /sign-transaction.
func RequestBody(t *testing.T, tx map[string]any, privateKey string) []byte {
	t.Helper()
	return MustRaw(t, map[string]any{
		"transaction": tx,
		"privateKey":  privateKey,
	})
}

func KeyAndAddress(t *testing.T, privateKeyHex string) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(privateKeyHex[2:])
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}
